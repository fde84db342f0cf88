package dispatch

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLoopTickDrainsAtMostBatchSize(t *testing.T) {
	queue := NewQueue(0)
	for i := 0; i < 25; i++ {
		// Mix event types; the bound is independent of the mix.
		if i%2 == 0 {
			queue.Push(MessageReceived("10.0.0.5", fmt.Sprintf("m%d", i)))
		} else {
			queue.Push(PeerOffline(fmt.Sprintf("10.0.0.%d", i)))
		}
	}

	var handled []Event
	loop, err := NewLoop(LoopOptions{
		Queue:   queue,
		Handler: func(e Event) { handled = append(handled, e) },
	})
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}

	if n := loop.Tick(); n != 10 {
		t.Fatalf("tick handled %d events, want 10", n)
	}
	if queue.Len() != 15 {
		t.Fatalf("queue has %d events left, want 15", queue.Len())
	}
	if len(handled) != 10 {
		t.Fatalf("handler saw %d events, want 10", len(handled))
	}
}

func TestLoopTickEmptyQueueEndsEarly(t *testing.T) {
	queue := NewQueue(0)
	loop, err := NewLoop(LoopOptions{Queue: queue, Handler: func(Event) {}})
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	if n := loop.Tick(); n != 0 {
		t.Fatalf("tick on empty queue handled %d events", n)
	}
}

func TestLoopPreservesProductionOrder(t *testing.T) {
	queue := NewQueue(0)
	for i := 0; i < 30; i++ {
		queue.Push(MessageReceived("10.0.0.5", fmt.Sprintf("m%d", i)))
	}

	var handled []string
	loop, err := NewLoop(LoopOptions{
		Queue:   queue,
		Handler: func(e Event) { handled = append(handled, e.Text) },
	})
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}

	for loop.Tick() > 0 {
	}

	for i, text := range handled {
		if want := fmt.Sprintf("m%d", i); text != want {
			t.Fatalf("event %d = %q, want %q", i, text, want)
		}
	}
}

func TestLoopBackgroundDrainAndStop(t *testing.T) {
	queue := NewQueue(0)

	var mu sync.Mutex
	handled := 0
	loop, err := NewLoop(LoopOptions{
		Queue:        queue,
		TickInterval: 5 * time.Millisecond,
		Handler: func(Event) {
			mu.Lock()
			handled++
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}

	loop.Start()
	for i := 0; i < 23; i++ {
		queue.Push(MessageReceived("10.0.0.5", "hi"))
	}

	waitForCondition(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled == 23
	})

	loop.Stop()

	// After Stop the queue is closed; racing producers get dropped pushes.
	if queue.Push(MessageReceived("10.0.0.5", "late")) {
		t.Fatalf("push accepted after loop stop")
	}
}

func TestLoopStopIsIdempotent(t *testing.T) {
	queue := NewQueue(0)
	loop, err := NewLoop(LoopOptions{Queue: queue, Handler: func(Event) {}})
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	loop.Start()
	loop.Stop()
	loop.Stop()
}

func TestNewLoopValidation(t *testing.T) {
	if _, err := NewLoop(LoopOptions{Handler: func(Event) {}}); err == nil {
		t.Fatalf("NewLoop accepted nil queue")
	}
	if _, err := NewLoop(LoopOptions{Queue: NewQueue(0)}); err == nil {
		t.Fatalf("NewLoop accepted nil handler")
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
