package transport

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"lanchat/dispatch"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("probe free port: %v", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}

func newTestMessenger(t *testing.T) (*Messenger, *dispatch.Queue) {
	t.Helper()

	queue := dispatch.NewQueue(dispatch.DefaultQueueCapacity)
	messenger, err := NewMessenger(Options{Port: freeUDPPort(t), Queue: queue})
	if err != nil {
		t.Fatalf("new messenger: %v", err)
	}
	if err := messenger.Start(); err != nil {
		t.Fatalf("start messenger: %v", err)
	}
	t.Cleanup(messenger.Stop)
	return messenger, queue
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

func TestNewMessengerValidation(t *testing.T) {
	queue := dispatch.NewQueue(dispatch.DefaultQueueCapacity)

	if _, err := NewMessenger(Options{Port: 0, Queue: queue}); err == nil {
		t.Fatalf("accepted port 0")
	}
	if _, err := NewMessenger(Options{Port: 70000, Queue: queue}); err == nil {
		t.Fatalf("accepted out-of-range port")
	}
	if _, err := NewMessenger(Options{Port: 5252}); err == nil {
		t.Fatalf("accepted nil queue")
	}
}

func TestSendBeforeStartFails(t *testing.T) {
	queue := dispatch.NewQueue(dispatch.DefaultQueueCapacity)
	messenger, err := NewMessenger(Options{Port: 5252, Queue: queue})
	if err != nil {
		t.Fatalf("new messenger: %v", err)
	}
	if err := messenger.SendMessage("127.0.0.1", "hi"); err == nil {
		t.Fatalf("send succeeded before Start")
	}
}

func TestSendMessageRoundTrip(t *testing.T) {
	messenger, queue := newTestMessenger(t)

	if err := messenger.SendMessage("127.0.0.1", "hello there"); err != nil {
		t.Fatalf("send message: %v", err)
	}

	waitForCondition(t, 2*time.Second, func() bool { return queue.Len() == 1 })

	events := queue.TryPopUpTo(1)
	if events[0].Type != dispatch.EventMessageReceived {
		t.Fatalf("event type = %q", events[0].Type)
	}
	if events[0].Sender != "127.0.0.1" {
		t.Fatalf("sender = %q", events[0].Sender)
	}
	if events[0].Text != "hello there" {
		t.Fatalf("text = %q", events[0].Text)
	}
}

func TestSendFileOfferRoundTrip(t *testing.T) {
	messenger, queue := newTestMessenger(t)

	if err := messenger.SendFileOffer("127.0.0.1", "report.pdf"); err != nil {
		t.Fatalf("send file offer: %v", err)
	}

	waitForCondition(t, 2*time.Second, func() bool { return queue.Len() == 1 })

	events := queue.TryPopUpTo(1)
	if events[0].Type != dispatch.EventFileOffered {
		t.Fatalf("event type = %q", events[0].Type)
	}
	if events[0].Filename != "report.pdf" {
		t.Fatalf("filename = %q", events[0].Filename)
	}
}

func TestReadLoopDiscardsMalformedFrames(t *testing.T) {
	messenger, queue := newTestMessenger(t)
	target := messenger.Addr().(*net.UDPAddr)

	client, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: target.Port})
	if err != nil {
		t.Fatalf("dial messenger: %v", err)
	}
	defer client.Close()

	malformed := [][]byte{
		[]byte("not json at all"),
		[]byte(`{"type":"unknown_kind"}`),
		[]byte(`{"type":"file_offer","filename":""}`),
	}
	for _, payload := range malformed {
		if _, err := client.Write(payload); err != nil {
			t.Fatalf("write malformed frame: %v", err)
		}
	}

	valid, err := json.Marshal(TextMessage{Type: TypeTextMessage, Content: "survivor", Timestamp: 1})
	if err != nil {
		t.Fatalf("marshal valid frame: %v", err)
	}
	if _, err := client.Write(valid); err != nil {
		t.Fatalf("write valid frame: %v", err)
	}

	waitForCondition(t, 2*time.Second, func() bool { return queue.Len() >= 1 })
	time.Sleep(50 * time.Millisecond)

	if queue.Len() != 1 {
		t.Fatalf("queued %d events, want only the valid frame", queue.Len())
	}
	events := queue.TryPopUpTo(1)
	if events[0].Text != "survivor" {
		t.Fatalf("text = %q", events[0].Text)
	}
}

func TestDecodeFrameType(t *testing.T) {
	cases := []struct {
		payload string
		want    string
		wantErr bool
	}{
		{payload: `{"type":"text_message","content":"hi"}`, want: TypeTextMessage},
		{payload: `{"type":"file_offer","filename":"a.txt"}`, want: TypeFileOffer},
		{payload: `{"type":"presence"}`, wantErr: true},
		{payload: `{}`, wantErr: true},
		{payload: `garbage`, wantErr: true},
	}
	for _, tc := range cases {
		got, err := DecodeFrameType([]byte(tc.payload))
		if tc.wantErr {
			if err == nil {
				t.Fatalf("DecodeFrameType(%q) accepted", tc.payload)
			}
			continue
		}
		if err != nil {
			t.Fatalf("DecodeFrameType(%q): %v", tc.payload, err)
		}
		if got != tc.want {
			t.Fatalf("DecodeFrameType(%q) = %q, want %q", tc.payload, got, tc.want)
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	messenger, _ := newTestMessenger(t)
	messenger.Stop()
	messenger.Stop()

	if err := messenger.SendMessage("127.0.0.1", "after stop"); err == nil {
		t.Fatalf("send succeeded after Stop")
	}
}

func TestOversizedFrameRejected(t *testing.T) {
	messenger, _ := newTestMessenger(t)

	huge := make([]byte, MaxDatagramSize+1)
	for i := range huge {
		huge[i] = 'a'
	}
	if err := messenger.SendMessage("127.0.0.1", string(huge)); err == nil {
		t.Fatalf("oversized frame accepted")
	}
}
