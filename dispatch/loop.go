package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultTickInterval is the fixed delay between drain ticks.
	DefaultTickInterval = 100 * time.Millisecond
	// DefaultBatchSize caps events handled per tick so one tick never
	// starves other scheduled work.
	DefaultBatchSize = 10
)

// Handler consumes one event on the loop's consumer goroutine.
type Handler func(Event)

// LoopOptions configures the dispatch loop.
type LoopOptions struct {
	Queue   *Queue
	Handler Handler

	TickInterval time.Duration
	BatchSize    int
}

// Loop drains the event queue in bounded batches on a fixed tick.
//
// All handler invocations happen on a single goroutine, which is what lets
// the registries and session manager go lock-free.
type Loop struct {
	opts LoopOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewLoop creates a dispatch loop with validated configuration.
func NewLoop(opts LoopOptions) (*Loop, error) {
	if opts.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Loop{opts: opts}, nil
}

// Start begins ticking in the background.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		l.ctx, l.cancel = context.WithCancel(context.Background())
		l.wg.Add(1)
		go l.run()
	})
}

// Stop tears the loop down and closes the queue so producers racing
// shutdown have their pushes dropped rather than dispatched into a dead
// consumer. Blocks until the consumer goroutine exits.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		if l.cancel != nil {
			l.cancel()
		}
		l.wg.Wait()
		l.opts.Queue.Close()
	})
}

// Tick synchronously drains one batch. Exposed for the consumer's own
// scheduling and for deterministic tests.
func (l *Loop) Tick() int {
	batch := l.opts.Queue.TryPopUpTo(l.opts.BatchSize)
	for _, event := range batch {
		l.opts.Handler(event)
	}
	return len(batch)
}

func (l *Loop) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := l.Tick(); n > 0 {
				logrus.WithField("events", n).Trace("dispatch tick drained batch")
			}
		case <-l.ctx.Done():
			return
		}
	}
}
