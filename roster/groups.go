package roster

import (
	"sort"

	"lanchat/models"
)

// Groups is the registry of known groups keyed by name.
type Groups struct {
	byName map[string]*models.Group
}

// NewGroups creates an empty group registry.
func NewGroups() *Groups {
	return &Groups{byName: make(map[string]*models.Group)}
}

// Register creates the group if the name is new and reports whether it was
// created. Registration is first-writer-wins: if the name already exists
// the existing membership is preserved untouched, so a later explicit
// creation never clobbers a group that has grown organically.
func (g *Groups) Register(name string, members []string) (models.Group, bool) {
	if existing, exists := g.byName[name]; exists {
		return snapshot(existing), false
	}

	group := &models.Group{Name: name}
	for _, member := range members {
		group.AddMember(member)
	}
	g.byName[name] = group
	return snapshot(group), true
}

// MergeMember adds ip to an existing group's member set if absent.
// The group must already exist; callers create-or-merge based on a prior
// existence check.
func (g *Groups) MergeMember(name, ip string) (models.Group, bool) {
	group, exists := g.byName[name]
	if !exists {
		return models.Group{}, false
	}
	group.AddMember(ip)
	return snapshot(group), true
}

// Get returns the group record for name.
func (g *Groups) Get(name string) (models.Group, bool) {
	group, exists := g.byName[name]
	if !exists {
		return models.Group{}, false
	}
	return snapshot(group), true
}

// All returns a snapshot of every group sorted by name.
func (g *Groups) All() []models.Group {
	out := make([]models.Group, 0, len(g.byName))
	for _, group := range g.byName {
		out = append(out, snapshot(group))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func snapshot(group *models.Group) models.Group {
	out := models.Group{Name: group.Name}
	out.Members = append(out.Members, group.Members...)
	return out
}
