// Package roster tracks the live set of known peers and groups, built
// solely from observed events.
//
// Both registries are mutated only by the dispatch tick (single writer),
// so they carry no internal locking; correctness follows from construction
// rather than synchronization.
package roster

import (
	"sort"

	"lanchat/models"
)

// Peers is the registry of known peers keyed by IPv4 address.
type Peers struct {
	byIP map[string]*models.Peer
}

// NewPeers creates an empty peer registry.
func NewPeers() *Peers {
	return &Peers{byIP: make(map[string]*models.Peer)}
}

// Upsert inserts or replaces the record for ip and marks it online.
// Identities that would collide with the group session namespace are
// refused; the call reports whether the record was stored.
func (p *Peers) Upsert(ip, name, group, host string) (models.Peer, bool) {
	if ip == "" || models.IsGroupSessionKey(ip) {
		return models.Peer{}, false
	}
	record := &models.Peer{IP: ip, Name: name, Group: group, Host: host, Online: true}
	p.byIP[ip] = record
	return *record, true
}

// Remove deletes the record for ip, reporting whether it was present.
func (p *Peers) Remove(ip string) bool {
	if _, exists := p.byIP[ip]; !exists {
		return false
	}
	delete(p.byIP, ip)
	return true
}

// Get returns the record for ip.
func (p *Peers) Get(ip string) (models.Peer, bool) {
	record, exists := p.byIP[ip]
	if !exists {
		return models.Peer{}, false
	}
	return *record, true
}

// DisplayName returns the peer's human-readable name, falling back to the
// IP when the peer is unknown or unnamed.
func (p *Peers) DisplayName(ip string) string {
	if record, exists := p.byIP[ip]; exists {
		return record.DisplayName()
	}
	return ip
}

// Count returns the number of known peers.
func (p *Peers) Count() int {
	return len(p.byIP)
}

// All returns a snapshot of every record, sorted by name then IP so
// listings are deterministic.
func (p *Peers) All() []models.Peer {
	out := make([]models.Peer, 0, len(p.byIP))
	for _, record := range p.byIP {
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].IP < out[j].IP
		}
		return out[i].Name < out[j].Name
	})
	return out
}
