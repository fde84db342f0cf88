package discovery

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"

	"lanchat/dispatch"
	"lanchat/models"
)

type refreshRequest struct {
	ctx  context.Context
	done chan error
}

// Scanner discovers chat peers with periodic and manual mDNS browse
// operations. Appearances, attribute changes and disappearances are pushed
// onto the dispatch queue; the scanner itself keeps only the last snapshot
// needed to diff scans, never the authoritative roster.
type Scanner struct {
	cfg Config

	browse browseFunc

	mu    sync.RWMutex
	peers map[string]models.Peer

	startOnce sync.Once
	stopOnce  sync.Once
	startErr  error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	refreshRequests chan refreshRequest
}

// NewScanner creates a scanner with config defaults applied.
func NewScanner(config Config) (*Scanner, error) {
	cfg := config.withDefaults()
	if err := cfg.validateForScan(); err != nil {
		return nil, err
	}

	browse := cfg.browseFn
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, err
		}
		browse = resolver.Browse
	}

	return &Scanner{
		cfg:             cfg,
		browse:          browse,
		peers:           make(map[string]models.Peer),
		refreshRequests: make(chan refreshRequest),
	}, nil
}

// Start begins background peer scanning.
func (s *Scanner) Start() error {
	s.startOnce.Do(func() {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.wg.Add(1)
		go s.loop()
	})
	return s.startErr
}

// Stop stops background scanning.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// Refresh triggers an immediate scan and waits for it to finish. This is
// the manual "detect peers" action.
func (s *Scanner) Refresh(ctx context.Context) error {
	if s.ctx == nil {
		return errors.New("scanner is not started")
	}

	req := refreshRequest{
		ctx:  ctx,
		done: make(chan error, 1),
	}

	select {
	case s.refreshRequests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return errors.New("scanner is stopped")
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return errors.New("scanner is stopped")
	}
}

// ListPeers returns the last scan's peers sorted by name then IP.
func (s *Scanner) ListPeers() []models.Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Peer, 0, len(s.peers))
	for _, peer := range s.peers {
		out = append(out, peer)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].IP < out[j].IP
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Scanner) loop() {
	defer s.wg.Done()

	// Prime the peer list immediately.
	s.runScan(context.Background())

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runScan(context.Background())
		case req := <-s.refreshRequests:
			req.done <- s.runScan(req.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scanner) runScan(requestCtx context.Context) error {
	scanCtx, cancel := context.WithTimeout(s.ctx, s.cfg.ScanTimeout)
	defer cancel()

	if requestCtx != nil {
		go func() {
			select {
			case <-requestCtx.Done():
				cancel()
			case <-scanCtx.Done():
			}
		}()
	}

	entries := make(chan *zeroconf.ServiceEntry, 32)
	collected := make(map[string]models.Peer)
	var collectedMu sync.Mutex
	collectorDone := make(chan struct{})

	go func() {
		defer close(collectorDone)
		for {
			select {
			case <-scanCtx.Done():
				return
			case entry := <-entries:
				if entry == nil {
					continue
				}
				peer, ok := parseEntry(entry, s.cfg.SelfDeviceID)
				if !ok {
					continue
				}
				collectedMu.Lock()
				collected[peer.IP] = peer
				collectedMu.Unlock()
			}
		}
	}()

	if err := s.browse(scanCtx, s.cfg.Service, s.cfg.Domain, entries); err != nil {
		// Some resolvers surface the scan window's own expiry as an error.
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Warn("mDNS browse failed")
			return err
		}
	}

	<-scanCtx.Done()
	<-collectorDone
	collectedMu.Lock()
	next := collected
	collectedMu.Unlock()

	s.applySnapshot(next)

	// A timeout just means this scan window ended naturally.
	if err := scanCtx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Scanner) applySnapshot(next map[string]models.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.peers
	s.peers = next

	for ip, peer := range next {
		old, exists := previous[ip]
		if !exists {
			s.cfg.Queue.Push(dispatch.PeerOnline(peer))
			continue
		}
		if old != peer {
			s.cfg.Queue.Push(dispatch.PeerUpdated(peer))
		}
	}

	for ip := range previous {
		if _, exists := next[ip]; !exists {
			s.cfg.Queue.Push(dispatch.PeerOffline(ip))
		}
	}
}

// parseEntry turns an mDNS answer into a chat peer. Entries without a
// usable IPv4 address or announced by this very device are skipped.
func parseEntry(entry *zeroconf.ServiceEntry, selfDeviceID string) (models.Peer, bool) {
	txt := txtToMap(entry.Text)

	deviceID := strings.TrimSpace(txt["device_id"])
	if deviceID == "" || deviceID == selfDeviceID {
		return models.Peer{}, false
	}

	ip := ""
	for _, addr := range entry.AddrIPv4 {
		if addr == nil {
			continue
		}
		if raw := addr.String(); raw != "" {
			ip = raw
			break
		}
	}
	if ip == "" {
		return models.Peer{}, false
	}

	name := strings.TrimSpace(txt["nickname"])
	if name == "" {
		name = strings.TrimSpace(entry.Instance)
	}

	host := strings.TrimSpace(txt["host"])
	if host == "" {
		host = strings.TrimSpace(entry.HostName)
	}

	return models.Peer{
		IP:     ip,
		Name:   name,
		Group:  strings.TrimSpace(txt["group"]),
		Host:   host,
		Online: true,
	}, true
}

func txtToMap(text []string) map[string]string {
	out := make(map[string]string, len(text))
	for _, entry := range text {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(parts[1])
	}
	return out
}
