package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentType distinguishes text messages from file attachments.
type ContentType string

const (
	ContentText ContentType = "text"
	ContentFile ContentType = "file"
)

// Message is one unit of communication inside a channel. The stored
// record is the system of record; realtime delivery is an accelerant.
type Message struct {
	ID          string      `json:"id"` // ULID, sortable by creation
	ChannelID   uuid.UUID   `json:"channel_id"`
	SenderID    uuid.UUID   `json:"sender_id"`
	Content     string      `json:"content,omitempty"`
	ContentType ContentType `json:"content_type"`
	FileURL     string      `json:"file_url,omitempty"`
	IsRead      bool        `json:"is_read"`
	ReadAt      *time.Time  `json:"read_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}
