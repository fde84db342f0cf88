package models

import (
	"strings"
	"time"
)

// GroupSessionPrefix namespaces group session keys away from peer IPs.
// A peer identity must never begin with this prefix; the roster refuses
// such identities so the two namespaces cannot collide.
const GroupSessionPrefix = "group:"

// GroupSessionKey returns the session key for a named group.
func GroupSessionKey(name string) string {
	return GroupSessionPrefix + name
}

// IsGroupSessionKey reports whether key addresses a group session.
func IsGroupSessionKey(key string) bool {
	return strings.HasPrefix(key, GroupSessionPrefix)
}

// GroupNameFromKey strips the group prefix from a session key.
func GroupNameFromKey(key string) string {
	return strings.TrimPrefix(key, GroupSessionPrefix)
}

// ChatLine is one entry in a session's history log.
type ChatLine struct {
	ID     string `json:"id"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	IsSelf bool   `json:"is_self"`
	SentAt int64  `json:"sent_at"`
}

// Session is one ongoing conversation, direct or group.
//
// Sessions are created lazily and live for the rest of the process; exactly
// one exists per key. History is an append log: replayed messages append
// duplicate lines, they are not deduplicated.
type Session struct {
	Key          string
	IsGroup      bool
	Participants []string
	CreatedAt    time.Time
	History      []ChatLine
}

// GroupName returns the group name for a group session, or "".
func (s *Session) GroupName() string {
	if !s.IsGroup {
		return ""
	}
	return GroupNameFromKey(s.Key)
}

// HasParticipant reports whether ip is in the participant set.
func (s *Session) HasParticipant(ip string) bool {
	for _, participant := range s.Participants {
		if participant == ip {
			return true
		}
	}
	return false
}

// AddParticipant appends ip to the participant set if absent and reports
// whether the set changed.
func (s *Session) AddParticipant(ip string) bool {
	if ip == "" || s.HasParticipant(ip) {
		return false
	}
	s.Participants = append(s.Participants, ip)
	return true
}
