package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"lanchat/models"
)

// AppendMessage inserts one history line for a session.
func (s *Store) AppendMessage(sessionKey string, line models.ChatLine) error {
	if sessionKey == "" {
		return errors.New("session key is required")
	}
	if line.ID == "" {
		return errors.New("line id is required")
	}

	isSelf := 0
	if line.IsSelf {
		isSelf = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO messages (id, session_key, sender, content, is_self, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		line.ID, sessionKey, line.Sender, line.Text, isSelf, line.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert message %q: %w", line.ID, err)
	}
	return nil
}

// GetRecentMessages returns the newest limit lines for a session, still
// ordered oldest first so they can seed a history log directly.
func (s *Store) GetRecentMessages(sessionKey string, limit int) ([]models.ChatLine, error) {
	if sessionKey == "" {
		return nil, errors.New("session key is required")
	}
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.db.Query(
		`SELECT id, sender, content, is_self, sent_at FROM (
		   SELECT id, sender, content, is_self, sent_at
		   FROM messages
		   WHERE session_key = ?
		   ORDER BY sent_at DESC, id DESC
		   LIMIT ?
		 ) ORDER BY sent_at ASC, id ASC`,
		sessionKey, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get recent messages for session %q: %w", sessionKey, err)
	}
	defer rows.Close()

	return scanLines(rows)
}

// GetMessages returns a session's history ordered by sent timestamp.
func (s *Store) GetMessages(sessionKey string, limit, offset int) ([]models.ChatLine, error) {
	if sessionKey == "" {
		return nil, errors.New("session key is required")
	}
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(
		`SELECT id, sender, content, is_self, sent_at
		 FROM messages
		 WHERE session_key = ?
		 ORDER BY sent_at ASC, id ASC
		 LIMIT ? OFFSET ?`,
		sessionKey, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("get messages for session %q: %w", sessionKey, err)
	}
	defer rows.Close()

	return scanLines(rows)
}

func scanLines(rows *sql.Rows) ([]models.ChatLine, error) {
	lines := make([]models.ChatLine, 0)
	for rows.Next() {
		var line models.ChatLine
		var isSelf int
		if err := rows.Scan(&line.ID, &line.Sender, &line.Text, &isSelf, &line.SentAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		line.IsSelf = isSelf != 0
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return lines, nil
}
