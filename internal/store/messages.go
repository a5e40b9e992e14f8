package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewMessageInput carries the caller-supplied fields of a message insert
type NewMessageInput struct {
	ConversationID  string
	CreatedBy       string
	Content         string
	FileAttachments []Attachment
	ParentMessageID string
	AudioURL        string
}

// CreateMessage inserts a message and returns the stored row
func (s *Store) CreateMessage(input NewMessageInput) (*Message, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	var attachments sql.NullString
	if len(input.FileAttachments) > 0 {
		data, err := json.Marshal(input.FileAttachments)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal attachments: %w", err)
		}
		attachments = sql.NullString{String: string(data), Valid: true}
	}

	var parent sql.NullString
	if input.ParentMessageID != "" {
		parent = sql.NullString{String: input.ParentMessageID, Valid: true}
	}

	var audioURL sql.NullString
	if input.AudioURL != "" {
		audioURL = sql.NullString{String: input.AudioURL, Valid: true}
	}

	res, err := s.db.Exec(`
		INSERT INTO messages (id, conversation_id, created_by, content, file_attachments, parent_message_id, audio_url, reactions, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, '[]', ?)`,
		id, input.ConversationID, input.CreatedBy, input.Content, attachments, parent, audioURL, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read message seq: %w", err)
	}

	return &Message{
		Seq:             seq,
		ID:              id,
		ConversationID:  input.ConversationID,
		CreatedBy:       input.CreatedBy,
		Content:         input.Content,
		FileAttachments: input.FileAttachments,
		ParentMessageID: input.ParentMessageID,
		AudioURL:        input.AudioURL,
		Reactions:       []Reaction{},
		CreatedAt:       now,
	}, nil
}

const messageColumns = `seq, id, conversation_id, created_by, content, file_attachments, parent_message_id, audio_url, reactions, created_at`

// GetMessage returns a message by id, or nil when absent
func (s *Store) GetMessage(id string) (*Message, error) {
	row := s.db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)

	msg, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	return msg, nil
}

// ListMessages returns a conversation's messages in ascending creation order
func (s *Store) ListMessages(conversationID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ListThreadReplies returns the replies to a parent message in ascending order
func (s *Store) ListThreadReplies(parentMessageID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE parent_message_id = ?
		ORDER BY created_at ASC, seq ASC`, parentMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread replies: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ListMessagesAfterSeq returns messages newer than seq, oldest first.
// Used by the incremental indexer.
func (s *Store) ListMessagesAfterSeq(seq int64) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE seq > ?
		ORDER BY seq ASC`, seq)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages after seq: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// SetAudioURL attaches a synthesized-audio URL to an existing message
func (s *Store) SetAudioURL(messageID, audioURL string) error {
	_, err := s.db.Exec(`UPDATE messages SET audio_url = ? WHERE id = ?`, audioURL, messageID)
	if err != nil {
		return fmt.Errorf("failed to set audio url: %w", err)
	}
	return nil
}

// ToggleReaction adds userID to the emoji's reaction on the message, or
// removes it when already present. Empty reactions are dropped. Returns the
// updated message.
func (s *Store) ToggleReaction(messageID, userID, emoji string) (*Message, error) {
	msg, err := s.GetMessage(messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("message not found: %s", messageID)
	}

	reactions := msg.Reactions
	found := false
	for i := range reactions {
		if reactions[i].Emoji != emoji {
			continue
		}
		found = true

		removed := false
		users := reactions[i].Users[:0]
		for _, u := range reactions[i].Users {
			if u == userID {
				removed = true
				continue
			}
			users = append(users, u)
		}

		if removed {
			reactions[i].Users = users
			if len(users) == 0 {
				reactions = append(reactions[:i], reactions[i+1:]...)
			}
		} else {
			reactions[i].Users = append(reactions[i].Users, userID)
		}
		break
	}

	if !found {
		reactions = append(reactions, Reaction{Emoji: emoji, Users: []string{userID}})
	}

	data, err := json.Marshal(reactions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reactions: %w", err)
	}

	if _, err := s.db.Exec(`UPDATE messages SET reactions = ? WHERE id = ?`, string(data), messageID); err != nil {
		return nil, fmt.Errorf("failed to update reactions: %w", err)
	}

	msg.Reactions = reactions
	return msg, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var attachments, parent, audioURL sql.NullString
	var reactions string

	err := row.Scan(&msg.Seq, &msg.ID, &msg.ConversationID, &msg.CreatedBy, &msg.Content,
		&attachments, &parent, &audioURL, &reactions, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}

	if attachments.Valid && attachments.String != "" {
		if err := json.Unmarshal([]byte(attachments.String), &msg.FileAttachments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
	}
	msg.ParentMessageID = parent.String
	msg.AudioURL = audioURL.String

	if err := json.Unmarshal([]byte(reactions), &msg.Reactions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reactions: %w", err)
	}

	return &msg, nil
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	return messages, nil
}
