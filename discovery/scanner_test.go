package discovery

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"

	"lanchat/dispatch"
	"lanchat/models"
)

func TestScannerFiltersSelfAndManualRefresh(t *testing.T) {
	var browseCalls int32
	queue := dispatch.NewQueue(dispatch.DefaultQueueCapacity)
	cfg := Config{
		SelfDeviceID:    "self-device",
		Queue:           queue,
		RefreshInterval: time.Hour,
		ScanTimeout:     35 * time.Millisecond,
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			call := atomic.AddInt32(&browseCalls, 1)
			entries <- testServiceEntry("self-device", "Self", "10.0.0.1")
			entries <- testServiceEntry("peer-1", "Bob", "10.0.0.2")
			if call >= 2 {
				entries <- testServiceEntry("peer-2", "Carol", "10.0.0.3")
			}
			<-ctx.Done()
			return nil
		},
	}

	scanner, err := NewScanner(cfg)
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}
	if err := scanner.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer scanner.Stop()

	waitForCondition(t, time.Second, func() bool {
		peers := scanner.ListPeers()
		return len(peers) == 1 && peers[0].IP == "10.0.0.2"
	})

	if err := scanner.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	waitForCondition(t, time.Second, func() bool {
		return len(scanner.ListPeers()) == 2
	})

	if !sawQueuedEvent(queue, dispatch.EventPeerOnline, "10.0.0.2") {
		t.Fatalf("expected online event for 10.0.0.2")
	}
}

func TestScannerBackgroundPollingAndOfflineEvent(t *testing.T) {
	var browseCalls int32
	queue := dispatch.NewQueue(dispatch.DefaultQueueCapacity)
	cfg := Config{
		SelfDeviceID:    "self-device",
		Queue:           queue,
		RefreshInterval: 40 * time.Millisecond,
		ScanTimeout:     25 * time.Millisecond,
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			call := atomic.AddInt32(&browseCalls, 1)
			if call == 1 {
				entries <- testServiceEntry("peer-1", "Bob", "10.0.0.2")
				entries <- testServiceEntry("peer-2", "Carol", "10.0.0.3")
			} else {
				entries <- testServiceEntry("peer-2", "Carol", "10.0.0.3")
			}
			<-ctx.Done()
			return nil
		},
	}

	scanner, err := NewScanner(cfg)
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}
	if err := scanner.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer scanner.Stop()

	waitForCondition(t, 2*time.Second, func() bool {
		peers := scanner.ListPeers()
		return len(peers) == 1 && peers[0].IP == "10.0.0.3"
	})

	waitForCondition(t, 2*time.Second, func() bool {
		return sawQueuedEvent(queue, dispatch.EventPeerOffline, "10.0.0.2")
	})
}

func TestScannerEmitsUpdateOnChangedAttributes(t *testing.T) {
	var browseCalls int32
	queue := dispatch.NewQueue(dispatch.DefaultQueueCapacity)
	cfg := Config{
		SelfDeviceID:    "self-device",
		Queue:           queue,
		RefreshInterval: time.Hour,
		ScanTimeout:     35 * time.Millisecond,
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			call := atomic.AddInt32(&browseCalls, 1)
			name := "Bob"
			if call >= 2 {
				name = "Bobby"
			}
			entries <- testServiceEntry("peer-1", name, "10.0.0.2")
			<-ctx.Done()
			return nil
		},
	}

	scanner, err := NewScanner(cfg)
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}
	if err := scanner.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer scanner.Stop()

	waitForCondition(t, time.Second, func() bool {
		return len(scanner.ListPeers()) == 1
	})

	if err := scanner.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	waitForCondition(t, 2*time.Second, func() bool {
		return sawQueuedEvent(queue, dispatch.EventPeerUpdated, "10.0.0.2")
	})
}

func TestScannerRefreshIgnoresDeadlineExceededFromBrowse(t *testing.T) {
	queue := dispatch.NewQueue(dispatch.DefaultQueueCapacity)
	cfg := Config{
		SelfDeviceID:    "self-device",
		Queue:           queue,
		RefreshInterval: time.Hour,
		ScanTimeout:     35 * time.Millisecond,
		browseFn: func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
			entries <- testServiceEntry("peer-1", "Bob", "10.0.0.2")
			<-ctx.Done()
			return ctx.Err()
		},
	}

	scanner, err := NewScanner(cfg)
	if err != nil {
		t.Fatalf("NewScanner failed: %v", err)
	}
	if err := scanner.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer scanner.Stop()

	if err := scanner.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	waitForCondition(t, time.Second, func() bool {
		peers := scanner.ListPeers()
		return len(peers) == 1 && peers[0].IP == "10.0.0.2"
	})
}

func TestParseEntrySkipsMissingAddress(t *testing.T) {
	entry := testServiceEntry("peer-1", "Bob", "10.0.0.2")
	entry.AddrIPv4 = nil
	if _, ok := parseEntry(entry, "self-device"); ok {
		t.Fatalf("accepted entry without IPv4 address")
	}
}

func TestParseEntryReadsTXTAttributes(t *testing.T) {
	entry := testServiceEntry("peer-1", "Bob", "10.0.0.2")

	peer, ok := parseEntry(entry, "self-device")
	if !ok {
		t.Fatalf("entry rejected")
	}
	want := models.Peer{IP: "10.0.0.2", Name: "Bob", Group: "dev", Host: "bob-laptop", Online: true}
	if peer != want {
		t.Fatalf("peer = %+v, want %+v", peer, want)
	}
}

func testServiceEntry(deviceID, nickname, ip string) *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: nickname,
			Service:  DefaultService,
			Domain:   DefaultDomain,
		},
		HostName: nickname + ".local",
		Port:     5252,
		Text: []string{
			"device_id=" + deviceID,
			"nickname=" + nickname,
			"group=dev",
			"host=bob-laptop",
		},
		AddrIPv4: []net.IP{net.ParseIP(ip)},
	}
}

// sawQueuedEvent drains nothing; it peeks by popping and re-pushing so
// repeated calls across polls stay cheap in tests.
func sawQueuedEvent(queue *dispatch.Queue, eventType dispatch.EventType, identity string) bool {
	events := queue.TryPopUpTo(dispatch.DefaultQueueCapacity)
	found := false
	for _, event := range events {
		ip := event.Identity
		if ip == "" {
			ip = event.Peer.IP
		}
		if event.Type == eventType && ip == identity {
			found = true
		}
		queue.Push(event)
	}
	return found
}

func waitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout %s", timeout)
}
