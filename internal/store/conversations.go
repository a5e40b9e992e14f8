package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateConversation inserts a conversation with the given members
func (s *Store) CreateConversation(isChannel bool, memberIDs []string) (*Conversation, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	channelFlag := 0
	if isChannel {
		channelFlag = 1
	}

	if _, err := tx.Exec(`INSERT INTO conversations (id, is_channel, created_at) VALUES (?, ?, ?)`,
		id, channelFlag, now); err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}

	for _, userID := range memberIDs {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO conversation_members (conversation_id, user_id) VALUES (?, ?)`,
			id, userID); err != nil {
			return nil, fmt.Errorf("failed to insert member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit conversation: %w", err)
	}

	return &Conversation{ID: id, IsChannel: isChannel, CreatedAt: now}, nil
}

// GetConversation returns a conversation by id, or nil when absent
func (s *Store) GetConversation(id string) (*Conversation, error) {
	row := s.db.QueryRow(`SELECT id, is_channel, created_at FROM conversations WHERE id = ?`, id)

	var conv Conversation
	var channelFlag int
	err := row.Scan(&conv.ID, &channelFlag, &conv.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}

	conv.IsChannel = channelFlag != 0
	return &conv, nil
}

// ListMembers returns the member user ids of a conversation
func (s *Store) ListMembers(conversationID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT user_id FROM conversation_members WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, userID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return members, nil
}

// IsMember reports whether userID belongs to the conversation
func (s *Store) IsMember(conversationID, userID string) (bool, error) {
	row := s.db.QueryRow(`
		SELECT 1 FROM conversation_members
		WHERE conversation_id = ? AND user_id = ?`, conversationID, userID)

	var one int
	err := row.Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check membership: %w", err)
	}

	return true, nil
}

// AddMember adds a user to a conversation; adding an existing member is a no-op
func (s *Store) AddMember(conversationID, userID string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO conversation_members (conversation_id, user_id) VALUES (?, ?)`,
		conversationID, userID)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// FindDirectConversation returns the id of an existing two-member
// conversation between userA and userB, or "" when none exists.
func (s *Store) FindDirectConversation(userA, userB string) (string, error) {
	row := s.db.QueryRow(`
		SELECT cm.conversation_id
		FROM conversation_members cm
		JOIN conversations c ON c.id = cm.conversation_id AND c.is_channel = 0
		WHERE cm.user_id IN (?, ?)
		GROUP BY cm.conversation_id
		HAVING COUNT(DISTINCT cm.user_id) = 2
		   AND (SELECT COUNT(*) FROM conversation_members total
		        WHERE total.conversation_id = cm.conversation_id) = 2`, userA, userB)

	var conversationID string
	err := row.Scan(&conversationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to find direct conversation: %w", err)
	}

	return conversationID, nil
}
