package store

import (
	"time"
)

// Message is an immutable-once-created chat message. Only the reactions
// column is ever updated after insert.
type Message struct {
	Seq             int64        `json:"-"`
	ID              string       `json:"id"`
	ConversationID  string       `json:"conversation_id"`
	CreatedBy       string       `json:"created_by"`
	Content         string       `json:"content"`
	FileAttachments []Attachment `json:"file_attachments,omitempty"`
	ParentMessageID string       `json:"parent_message_id,omitempty"`
	AudioURL        string       `json:"audio_url,omitempty"`
	Reactions       []Reaction   `json:"reactions"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Attachment describes one uploaded file referenced by a message
type Attachment struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	FileURL  string `json:"file_url,omitempty"`
}

// Reaction aggregates the users who reacted with one emoji
type Reaction struct {
	Emoji string   `json:"emoji"`
	Users []string `json:"users"`
}

// Conversation groups a set of members sharing a message history
type Conversation struct {
	ID        string    `json:"id"`
	IsChannel bool      `json:"is_channel"`
	CreatedAt time.Time `json:"created_at"`
}
