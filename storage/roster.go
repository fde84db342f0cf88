package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"lanchat/models"
)

// UpsertPeer records the last-seen attributes for a peer.
func (s *Store) UpsertPeer(peer models.Peer, lastSeen int64) error {
	if peer.IP == "" {
		return errors.New("peer ip is required")
	}

	_, err := s.db.Exec(
		`INSERT INTO peers (ip, name, grp, host, last_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(ip) DO UPDATE SET
		   name = excluded.name,
		   grp = excluded.grp,
		   host = excluded.host,
		   last_seen = excluded.last_seen`,
		peer.IP, peer.Name, peer.Group, peer.Host, lastSeen,
	)
	if err != nil {
		return fmt.Errorf("upsert peer %q: %w", peer.IP, err)
	}
	return nil
}

// GetPeer returns the stored record for ip.
func (s *Store) GetPeer(ip string) (models.Peer, error) {
	var peer models.Peer
	err := s.db.QueryRow(
		`SELECT ip, name, grp, host FROM peers WHERE ip = ?`, ip,
	).Scan(&peer.IP, &peer.Name, &peer.Group, &peer.Host)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Peer{}, ErrNotFound
	}
	if err != nil {
		return models.Peer{}, fmt.Errorf("get peer %q: %w", ip, err)
	}
	return peer, nil
}

// ListPeers returns every stored peer ordered by IP.
func (s *Store) ListPeers() ([]models.Peer, error) {
	rows, err := s.db.Query(`SELECT ip, name, grp, host FROM peers ORDER BY ip ASC`)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	defer rows.Close()

	peers := make([]models.Peer, 0)
	for rows.Next() {
		var peer models.Peer
		if err := rows.Scan(&peer.IP, &peer.Name, &peer.Group, &peer.Host); err != nil {
			return nil, fmt.Errorf("scan peer row: %w", err)
		}
		peers = append(peers, peer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate peer rows: %w", err)
	}
	return peers, nil
}

// SaveGroup inserts or replaces a group and its member list.
func (s *Store) SaveGroup(group models.Group) error {
	if group.Name == "" {
		return errors.New("group name is required")
	}

	members, err := json.Marshal(group.Members)
	if err != nil {
		return fmt.Errorf("marshal members for group %q: %w", group.Name, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO groups (name, members) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET members = excluded.members`,
		group.Name, string(members),
	)
	if err != nil {
		return fmt.Errorf("save group %q: %w", group.Name, err)
	}
	return nil
}

// ListGroups returns every stored group ordered by name.
func (s *Store) ListGroups() ([]models.Group, error) {
	rows, err := s.db.Query(`SELECT name, members FROM groups ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	groups := make([]models.Group, 0)
	for rows.Next() {
		var group models.Group
		var members string
		if err := rows.Scan(&group.Name, &members); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		if err := json.Unmarshal([]byte(members), &group.Members); err != nil {
			return nil, fmt.Errorf("unmarshal members for group %q: %w", group.Name, err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group rows: %w", err)
	}
	return groups, nil
}
