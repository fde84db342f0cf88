package models

// Peer represents a remote device known from discovery events.
//
// IP is the peer's IPv4 address and acts as its identity for the life of
// the connection; all roster and session lookups key on it.
type Peer struct {
	IP     string `json:"ip"`
	Name   string `json:"name"`
	Group  string `json:"group"`
	Host   string `json:"host"`
	Online bool   `json:"online"`
}

// DisplayName returns the human-readable label for the peer.
func (p Peer) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.IP
}
