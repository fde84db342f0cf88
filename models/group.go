package models

// Group is a named chat group layered on top of point-to-point messaging.
//
// Members is an ordered set of peer IPs: insertion order is preserved and
// duplicates are never stored.
type Group struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// HasMember reports whether ip is already in the member set.
func (g *Group) HasMember(ip string) bool {
	for _, member := range g.Members {
		if member == ip {
			return true
		}
	}
	return false
}

// AddMember appends ip to the member set if absent and reports whether the
// set changed.
func (g *Group) AddMember(ip string) bool {
	if ip == "" || g.HasMember(ip) {
		return false
	}
	g.Members = append(g.Members, ip)
	return true
}
