// Package session owns conversation state: one Session per peer or group,
// created lazily, routed to by sender and message shape.
package session

import (
	"errors"
	"time"

	"lanchat/models"
	"lanchat/protocol"
	"lanchat/roster"
)

// Delivery is one entry of an outbound send plan: wire text addressed to a
// single recipient. Transmission is the caller's job; entries are
// independent and fire-and-forget, a failed send is never rolled back.
type Delivery struct {
	Recipient string
	WireText  string
}

// Options configures a session manager.
type Options struct {
	Peers  *roster.Peers
	Groups *roster.Groups

	// OnSessionOpened fires once per session, at creation.
	OnSessionOpened func(*models.Session)
	// OnMessageAppended fires for every history line, system notices
	// included.
	OnMessageAppended func(sessionKey string, line models.ChatLine)
	// OnGroupRegistered fires when inbound routing registers a group that
	// was previously unknown.
	OnGroupRegistered func(models.Group)

	Now func() time.Time
}

// Manager maps session keys to sessions and routes messages between the
// wire and conversation histories.
//
// Like the registries it is mutated only from the dispatch tick plus the
// presentation layer's entry points, which share one goroutine, so it
// carries no locking.
type Manager struct {
	opts     Options
	sessions map[string]*models.Session
	order    []string
}

// NewManager creates a session manager with validated configuration.
func NewManager(opts Options) (*Manager, error) {
	if opts.Peers == nil {
		return nil, errors.New("peer registry is required")
	}
	if opts.Groups == nil {
		return nil, errors.New("group registry is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		opts:     opts,
		sessions: make(map[string]*models.Session),
	}, nil
}

// Get returns the session for key, if one exists.
func (m *Manager) Get(key string) (*models.Session, bool) {
	session, exists := m.sessions[key]
	return session, exists
}

// All returns every session in creation order.
func (m *Manager) All() []*models.Session {
	out := make([]*models.Session, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.sessions[key])
	}
	return out
}

// OpenDirect returns the direct session for ip, creating it on first use.
func (m *Manager) OpenDirect(ip string) *models.Session {
	if session, exists := m.sessions[ip]; exists {
		return session
	}

	session := &models.Session{
		Key:          ip,
		Participants: []string{ip},
		CreatedAt:    m.opts.Now(),
	}
	m.insert(session)
	return session
}

// OpenGroup returns the group session for name, creating it on first use
// with the given participants. First creation appends a synthetic system
// notice to the history; it is a session mutation, not a network send.
func (m *Manager) OpenGroup(name string, members []string) *models.Session {
	key := models.GroupSessionKey(name)
	if session, exists := m.sessions[key]; exists {
		return session
	}

	session := &models.Session{
		Key:       key,
		IsGroup:   true,
		CreatedAt: m.opts.Now(),
	}
	for _, member := range members {
		session.AddParticipant(member)
	}
	m.insert(session)

	m.Append(session, models.ChatLine{Text: "— " + name + " created —"})
	return session
}

// RouteInbound classifies raw inbound text from sender and resolves the
// session it belongs to, creating sessions and registering or growing
// groups as needed. It returns the session, the text to display and the
// sender's display name. The caller appends the history line, so replayed
// messages still append duplicates while membership merges stay set-union.
func (m *Manager) RouteInbound(sender, raw string) (*models.Session, string, string) {
	displaySender := m.opts.Peers.DisplayName(sender)

	groupName, body, ok := protocol.TryUnwrap(raw)
	if !ok {
		// Malformed or plain text degrades to a direct message.
		return m.OpenDirect(sender), raw, displaySender
	}

	group, known := m.opts.Groups.Get(groupName)
	if !known {
		members, isInvite := protocol.TryParseInvite(body)
		if !isInvite {
			members = []string{sender}
		}
		group, _ = m.opts.Groups.Register(groupName, members)
		if !group.HasMember(sender) {
			group, _ = m.opts.Groups.MergeMember(groupName, sender)
		}
		if m.opts.OnGroupRegistered != nil {
			m.opts.OnGroupRegistered(group)
		}
	} else {
		group, _ = m.opts.Groups.MergeMember(groupName, sender)
	}

	session := m.OpenGroup(groupName, group.Members)
	for _, member := range group.Members {
		session.AddParticipant(member)
	}

	return session, body, displaySender
}

// RouteOutbound builds the send plan for text in the given session: one
// pair for a direct session, one wrapped pair per participant for a group.
func (m *Manager) RouteOutbound(session *models.Session, text string) []Delivery {
	if !session.IsGroup {
		return []Delivery{{Recipient: session.Key, WireText: text}}
	}

	wire := protocol.Wrap(session.GroupName(), text)
	plan := make([]Delivery, 0, len(session.Participants))
	for _, participant := range session.Participants {
		plan = append(plan, Delivery{Recipient: participant, WireText: wire})
	}
	return plan
}

// Append adds a line to the session's history log and notifies the sink.
func (m *Manager) Append(session *models.Session, line models.ChatLine) {
	if line.SentAt == 0 {
		line.SentAt = m.opts.Now().UnixMilli()
	}
	session.History = append(session.History, line)
	if m.opts.OnMessageAppended != nil {
		m.opts.OnMessageAppended(session.Key, line)
	}
}

func (m *Manager) insert(session *models.Session) {
	m.sessions[session.Key] = session
	m.order = append(m.order, session.Key)
	if m.opts.OnSessionOpened != nil {
		m.opts.OnSessionOpened(session)
	}
}
