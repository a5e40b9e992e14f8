package store

import (
	"database/sql"
	"fmt"
	"strconv"
)

const indexCursorKey = "message_index_cursor"

// GetIndexCursor returns the sequence number of the last message handed to
// the vector index, or 0 when nothing has been indexed yet.
func (s *Store) GetIndexCursor() (int64, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM indexer_state WHERE key = ?`, indexCursorKey,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read index cursor: %w", err)
	}

	seq, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt index cursor %q: %w", value, err)
	}
	return seq, nil
}

// SetIndexCursor records the sequence number of the newest indexed message.
func (s *Store) SetIndexCursor(seq int64) error {
	_, err := s.db.Exec(
		`INSERT INTO indexer_state (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		indexCursorKey, strconv.FormatInt(seq, 10),
	)
	if err != nil {
		return fmt.Errorf("failed to store index cursor: %w", err)
	}
	return nil
}
