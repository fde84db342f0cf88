package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"lanchat/dispatch"
)

// Options configures a Messenger.
type Options struct {
	// Port is the UDP port to listen on and to address peers at.
	Port int
	// Queue receives MessageReceived / FileOffered events for every
	// inbound frame, keyed by the sender's source IPv4.
	Queue *dispatch.Queue
}

// Messenger is the UDP chat endpoint: it listens for inbound frames and
// provides the per-recipient send primitives the coordinator plans
// against. Sends are independent; one failing recipient never affects the
// others.
type Messenger struct {
	opts Options

	conn *net.UDPConn
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	startErr  error
}

// NewMessenger creates a messenger with validated configuration.
func NewMessenger(opts Options) (*Messenger, error) {
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("invalid chat port %d", opts.Port)
	}
	if opts.Queue == nil {
		return nil, errors.New("event queue is required")
	}
	return &Messenger{opts: opts}, nil
}

// Start binds the UDP socket and begins reading inbound frames.
func (m *Messenger) Start() error {
	m.startOnce.Do(func() {
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: m.opts.Port})
		if err != nil {
			m.startErr = fmt.Errorf("listen udp port %d: %w", m.opts.Port, err)
			return
		}
		m.conn = conn

		m.wg.Add(1)
		go m.readLoop()
	})
	return m.startErr
}

// Stop closes the socket and waits for the read loop to exit.
func (m *Messenger) Stop() {
	m.stopOnce.Do(func() {
		if m.conn != nil {
			_ = m.conn.Close()
		}
		m.wg.Wait()
	})
}

// Addr returns the bound address, or nil before Start.
func (m *Messenger) Addr() net.Addr {
	if m.conn == nil {
		return nil
	}
	return m.conn.LocalAddr()
}

// SendMessage sends one chat text frame to the peer at ip.
func (m *Messenger) SendMessage(ip, text string) error {
	return m.send(ip, TextMessage{
		Type:      TypeTextMessage,
		Content:   text,
		Timestamp: time.Now().UnixMilli(),
	})
}

// SendFileOffer announces a shared file to the peer at ip.
func (m *Messenger) SendFileOffer(ip, filename string) error {
	return m.send(ip, FileOffer{
		Type:      TypeFileOffer,
		Filename:  filename,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (m *Messenger) send(ip string, frame any) error {
	if m.conn == nil {
		return errors.New("messenger is not started")
	}

	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(ip, strconv.Itoa(m.opts.Port)))
	if err != nil {
		return fmt.Errorf("resolve peer %q: %w", ip, err)
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(payload) > MaxDatagramSize {
		return fmt.Errorf("frame of %d bytes exceeds datagram limit", len(payload))
	}

	if _, err := m.conn.WriteToUDP(payload, addr); err != nil {
		return fmt.Errorf("send frame to %q: %w", ip, err)
	}
	return nil
}

func (m *Messenger) readLoop() {
	defer m.wg.Done()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, addr, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			// Closed socket ends the loop; anything else is logged and
			// the loop keeps serving.
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logrus.WithError(err).Warn("transport read failed")
			continue
		}

		sender := addr.IP.String()
		payload := buf[:n]

		frameType, err := DecodeFrameType(payload)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"sender": sender,
				"bytes":  n,
			}).Debug("discarding unparseable datagram")
			continue
		}

		switch frameType {
		case TypeTextMessage:
			var frame TextMessage
			if err := json.Unmarshal(payload, &frame); err != nil {
				continue
			}
			m.opts.Queue.Push(dispatch.MessageReceived(sender, frame.Content))
		case TypeFileOffer:
			var frame FileOffer
			if err := json.Unmarshal(payload, &frame); err != nil {
				continue
			}
			if frame.Filename == "" {
				continue
			}
			m.opts.Queue.Push(dispatch.FileOffered(sender, frame.Filename))
		}
	}
}
