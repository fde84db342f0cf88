// Package chat is the single-threaded core that consumes dispatched events
// and executes user actions against the roster, session and storage state.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lanchat/dispatch"
	"lanchat/models"
	"lanchat/protocol"
	"lanchat/roster"
	"lanchat/session"
	"lanchat/storage"
)

const (
	// SelfShareLinePrefix starts the local history line for a shared file.
	SelfShareLinePrefix = "📎 You shared: "
	// PeerShareLinePrefix starts the history line for a peer's shared file.
	PeerShareLinePrefix = "📎 Shared file: "
)

// Transport sends chat frames to single recipients. Sends are independent
// and fire-and-forget; a failed recipient never aborts the rest of a plan.
type Transport interface {
	SendMessage(ip, text string) error
	SendFileOffer(ip, filename string) error
}

// Detector triggers an immediate peer scan on demand.
type Detector interface {
	Refresh(ctx context.Context) error
}

// Notifier receives presentation updates. All methods are invoked from the
// coordinator's goroutine; implementations hand off to their own loop if
// they need one.
type Notifier interface {
	PeerUpserted(peer models.Peer)
	PeerRemoved(ip string)
	OnlineCountChanged(count int)
	GroupRegistered(group models.Group)
	SessionOpened(session *models.Session)
	MessageAppended(sessionKey string, line models.ChatLine)
	FileShared(sessionKey, filename string, isSelf bool)
}

// Options configures a Coordinator.
type Options struct {
	// Nickname labels this device's own history lines.
	Nickname string

	Transport Transport

	// Detector is optional; Detect reports an error without one.
	Detector Detector
	// Store is optional; without it nothing is persisted.
	Store *storage.Store
	// Notifier is optional.
	Notifier Notifier

	// HistoryPage caps how many persisted lines load into a freshly opened
	// session. Zero means 200.
	HistoryPage int

	Now func() time.Time
}

// Coordinator owns all chat state. Every method must be called from one
// goroutine: the dispatch loop's handler plus the presentation layer's
// entry points share it.
type Coordinator struct {
	opts Options

	peers    *roster.Peers
	groups   *roster.Groups
	sessions *session.Manager

	// preloaded marks sessions whose persisted history page has been
	// merged in, keyed by session key.
	preloaded map[string]bool
}

// NewCoordinator creates a coordinator with fresh registries and a session
// manager wired for persistence and presentation callbacks.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Nickname == "" {
		return nil, errors.New("nickname is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if opts.HistoryPage <= 0 {
		opts.HistoryPage = 200
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Coordinator{
		opts:      opts,
		peers:     roster.NewPeers(),
		groups:    roster.NewGroups(),
		preloaded: make(map[string]bool),
	}

	sessions, err := session.NewManager(session.Options{
		Peers:             c.peers,
		Groups:            c.groups,
		OnSessionOpened:   c.sessionOpened,
		OnMessageAppended: c.messageAppended,
		OnGroupRegistered: c.groupRegistered,
		Now:               opts.Now,
	})
	if err != nil {
		return nil, err
	}
	c.sessions = sessions
	return c, nil
}

// Peers exposes the peer registry for listings.
func (c *Coordinator) Peers() *roster.Peers { return c.peers }

// Groups exposes the group registry for listings.
func (c *Coordinator) Groups() *roster.Groups { return c.groups }

// Sessions exposes the session manager for listings.
func (c *Coordinator) Sessions() *session.Manager { return c.sessions }

// RestoreGroups reloads persisted group definitions into the registry.
// Existing registrations win, so a restore never clobbers live state.
func (c *Coordinator) RestoreGroups() error {
	if c.opts.Store == nil {
		return nil
	}

	groups, err := c.opts.Store.ListGroups()
	if err != nil {
		return fmt.Errorf("restore groups: %w", err)
	}
	for _, group := range groups {
		c.groups.Register(group.Name, group.Members)
	}
	return nil
}

// HandleEvent consumes one dispatched event. It is the dispatch loop's
// handler and the only place network input mutates state.
func (c *Coordinator) HandleEvent(event dispatch.Event) {
	switch event.Type {
	case dispatch.EventPeerOnline, dispatch.EventPeerUpdated:
		c.handlePeerUpsert(event.Peer)
	case dispatch.EventPeerOffline:
		c.handlePeerOffline(event.Identity)
	case dispatch.EventMessageReceived:
		c.handleInboundText(event.Sender, event.Text)
	case dispatch.EventFileOffered:
		c.handleFileOffered(event.Sender, event.Filename)
	default:
		logrus.WithField("event_type", event.Type).Warn("dropping unknown event")
	}
}

func (c *Coordinator) handlePeerUpsert(peer models.Peer) {
	stored, ok := c.peers.Upsert(peer.IP, peer.Name, peer.Group, peer.Host)
	if !ok {
		logrus.WithField("identity", peer.IP).Warn("refusing peer identity")
		return
	}

	if c.opts.Store != nil {
		if err := c.opts.Store.UpsertPeer(stored, c.opts.Now().UnixMilli()); err != nil {
			logrus.WithError(err).WithField("peer", stored.IP).Warn("persist peer failed")
		}
	}

	if c.opts.Notifier != nil {
		c.opts.Notifier.PeerUpserted(stored)
		c.opts.Notifier.OnlineCountChanged(c.peers.Count())
	}
}

func (c *Coordinator) handlePeerOffline(ip string) {
	if !c.peers.Remove(ip) {
		return
	}
	if c.opts.Notifier != nil {
		c.opts.Notifier.PeerRemoved(ip)
		c.opts.Notifier.OnlineCountChanged(c.peers.Count())
	}
}

func (c *Coordinator) handleInboundText(sender, raw string) {
	target, text, displaySender := c.sessions.RouteInbound(sender, raw)
	if displaySender == sender {
		displaySender = c.displayNameFor(sender)
	}
	c.sessions.Append(target, models.ChatLine{
		ID:     uuid.NewString(),
		Sender: displaySender,
		Text:   text,
	})
}

func (c *Coordinator) handleFileOffered(sender, filename string) {
	target := c.sessions.OpenDirect(sender)
	c.sessions.Append(target, models.ChatLine{
		ID:     uuid.NewString(),
		Sender: c.displayNameFor(sender),
		Text:   PeerShareLinePrefix + filename,
	})
	if c.opts.Notifier != nil {
		c.opts.Notifier.FileShared(target.Key, filename, false)
	}
}

// displayNameFor resolves a sender label like the roster does, but falls
// back to the persisted last-seen name before settling for the bare IP.
func (c *Coordinator) displayNameFor(ip string) string {
	name := c.peers.DisplayName(ip)
	if name != ip || c.opts.Store == nil {
		return name
	}
	stored, err := c.opts.Store.GetPeer(ip)
	if err == nil && stored.Name != "" {
		return stored.Name
	}
	return name
}

// OpenDirect opens (or returns) the direct session with a peer. The first
// user open merges in the most recent persisted history page, even when an
// inbound message already created the session.
func (c *Coordinator) OpenDirect(ip string) *models.Session {
	target := c.sessions.OpenDirect(ip)
	if !c.preloaded[target.Key] {
		c.preloaded[target.Key] = true
		c.preloadHistory(target)
	}
	return target
}

// preloadHistory prepends the newest persisted page to the in-memory log.
// Lines already present (appended live, then persisted) are skipped by ID
// so the merge never duplicates them.
func (c *Coordinator) preloadHistory(target *models.Session) {
	if c.opts.Store == nil {
		return
	}
	lines, err := c.opts.Store.GetRecentMessages(target.Key, c.opts.HistoryPage)
	if err != nil {
		logrus.WithError(err).WithField("session", target.Key).Warn("history preload failed")
		return
	}
	if len(lines) == 0 {
		return
	}

	seen := make(map[string]bool, len(target.History))
	for _, line := range target.History {
		seen[line.ID] = true
	}
	merged := make([]models.ChatLine, 0, len(lines)+len(target.History))
	for _, line := range lines {
		if !seen[line.ID] {
			merged = append(merged, line)
		}
	}
	target.History = append(merged, target.History...)
}

// KnownPeers returns the persisted last-seen peers, for listings before
// discovery has found anyone.
func (c *Coordinator) KnownPeers() ([]models.Peer, error) {
	if c.opts.Store == nil {
		return nil, nil
	}
	return c.opts.Store.ListPeers()
}

// CreateGroup registers a group, opens its session and invites every
// member. Registration is first-writer-wins: creating a name that already
// exists reuses the existing membership and sends no invites.
func (c *Coordinator) CreateGroup(name string, members []string) (*models.Session, error) {
	if name == "" {
		return nil, errors.New("group name is required")
	}

	group, created := c.groups.Register(name, members)
	target := c.sessions.OpenGroup(name, group.Members)
	for _, member := range group.Members {
		target.AddParticipant(member)
	}

	if !created {
		return target, nil
	}

	c.persistGroup(group)
	if c.opts.Notifier != nil {
		c.opts.Notifier.GroupRegistered(group)
	}

	invite := protocol.WrapInvite(name, group.Members)
	for _, member := range group.Members {
		if err := c.opts.Transport.SendMessage(member, invite); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"group":  name,
				"member": member,
			}).Warn("group invite send failed")
		}
	}
	return target, nil
}

// SendText appends the user's own line to the session and transmits it to
// every recipient of the outbound plan. Send failures are logged per
// recipient and never roll back the history line.
func (c *Coordinator) SendText(sessionKey, text string) error {
	target, exists := c.sessions.Get(sessionKey)
	if !exists {
		return fmt.Errorf("unknown session %q", sessionKey)
	}

	c.sessions.Append(target, models.ChatLine{
		ID:     uuid.NewString(),
		Sender: c.opts.Nickname,
		Text:   text,
		IsSelf: true,
	})

	for _, delivery := range c.sessions.RouteOutbound(target, text) {
		if err := c.opts.Transport.SendMessage(delivery.Recipient, delivery.WireText); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"session":   sessionKey,
				"recipient": delivery.Recipient,
			}).Warn("message send failed")
		}
	}
	return nil
}

// ShareFile records the local share line and offers the file to every
// participant of the session.
func (c *Coordinator) ShareFile(sessionKey, filename string) error {
	if filename == "" {
		return errors.New("filename is required")
	}
	target, exists := c.sessions.Get(sessionKey)
	if !exists {
		return fmt.Errorf("unknown session %q", sessionKey)
	}

	c.sessions.Append(target, models.ChatLine{
		ID:     uuid.NewString(),
		Sender: c.opts.Nickname,
		Text:   SelfShareLinePrefix + filename,
		IsSelf: true,
	})

	for _, recipient := range target.Participants {
		if err := c.opts.Transport.SendFileOffer(recipient, filename); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"session":   sessionKey,
				"recipient": recipient,
			}).Warn("file offer send failed")
		}
	}

	if c.opts.Notifier != nil {
		c.opts.Notifier.FileShared(target.Key, filename, true)
	}
	return nil
}

// Detect triggers an immediate peer scan.
func (c *Coordinator) Detect(ctx context.Context) error {
	if c.opts.Detector == nil {
		return errors.New("no detector configured")
	}
	return c.opts.Detector.Refresh(ctx)
}

// History returns up to limit persisted lines for a session, oldest first.
func (c *Coordinator) History(sessionKey string, limit int) ([]models.ChatLine, error) {
	if c.opts.Store == nil {
		return nil, nil
	}
	return c.opts.Store.GetMessages(sessionKey, limit, 0)
}

func (c *Coordinator) sessionOpened(target *models.Session) {
	if c.opts.Notifier != nil {
		c.opts.Notifier.SessionOpened(target)
	}
}

func (c *Coordinator) messageAppended(sessionKey string, line models.ChatLine) {
	if c.opts.Store != nil {
		// System notices carry no ID in memory; give the stored copy one.
		if line.ID == "" {
			line.ID = uuid.NewString()
		}
		if err := c.opts.Store.AppendMessage(sessionKey, line); err != nil {
			logrus.WithError(err).WithField("session", sessionKey).Warn("persist message failed")
		}
	}
	if c.opts.Notifier != nil {
		c.opts.Notifier.MessageAppended(sessionKey, line)
	}
}

// groupRegistered handles groups learned from inbound envelopes; groups
// created locally go through CreateGroup instead.
func (c *Coordinator) groupRegistered(group models.Group) {
	c.persistGroup(group)
	if c.opts.Notifier != nil {
		c.opts.Notifier.GroupRegistered(group)
	}
}

func (c *Coordinator) persistGroup(group models.Group) {
	if c.opts.Store == nil {
		return
	}
	if err := c.opts.Store.SaveGroup(group); err != nil {
		logrus.WithError(err).WithField("group", group.Name).Warn("persist group failed")
	}
}
