package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/advisorly/advisorly/internal/models"
)

// Inbound event kinds. The union is closed: anything else is rejected
// at the boundary before dispatch.
const (
	EventJoinRoom    = "join_room"
	EventSendMessage = "send_message"
	EventTypingStart = "typing_start"
	EventTypingEnd   = "typing_end"
	EventMarkRead    = "mark_read"
)

// Outbound event kinds.
const (
	EventJoinedRoom   = "joined_room"
	EventNewMessage   = "new_message"
	EventMessageSent  = "message_sent"
	EventMessagesRead = "messages_read"
	EventMinutesReady = "minutes_ready"
	EventMinutesError = "minutes_error"
	EventError        = "error"
)

// InboundEvent is the wire shape of a client event. The sender identity
// comes from the authenticated connection, never from the payload.
type InboundEvent struct {
	Type        string    `json:"type"`
	ChannelID   uuid.UUID `json:"channel_id"`
	Content     string    `json:"content,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	UserName    string    `json:"user_name,omitempty"`
	MessageIDs  []string  `json:"message_ids,omitempty"`
}

// Validate enforces the fixed field set of each event kind.
func (e *InboundEvent) Validate() error {
	if e.ChannelID == uuid.Nil {
		return fmt.Errorf("channel_id is required")
	}
	switch e.Type {
	case EventJoinRoom, EventTypingStart, EventTypingEnd:
		return nil
	case EventSendMessage:
		if e.Content == "" {
			return fmt.Errorf("content is required")
		}
		if e.ContentType != "" && e.ContentType != string(models.ContentText) {
			return fmt.Errorf("only text messages are sent over the socket")
		}
		return nil
	case EventMarkRead:
		if len(e.MessageIDs) == 0 {
			return fmt.Errorf("message_ids is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
}

// OutboundEvent is the envelope for every server-to-client event.
type OutboundEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func (e OutboundEvent) encode() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return []byte(`{"type":"error","payload":{"message":"internal encoding error"}}`)
	}
	return data
}

// JoinedPayload acknowledges room admission.
type JoinedPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
}

// SentPayload acknowledges the originator of a persisted message,
// distinct from the room broadcast so optimistic UI can reconcile.
type SentPayload struct {
	MessageID string `json:"message_id"`
}

// TypingPayload carries ephemeral typing state.
type TypingPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
}

// ReadPayload tells the room which messages a member has read.
type ReadPayload struct {
	UserID     uuid.UUID `json:"user_id"`
	MessageIDs []string  `json:"message_ids"`
}

// MinutesPayload announces a finished pipeline run.
type MinutesPayload struct {
	RequestID       uuid.UUID `json:"request_id"`
	RunID           uuid.UUID `json:"run_id"`
	Status          string    `json:"status"`
	ProcessingError string    `json:"processing_error,omitempty"`
}

// ErrorPayload is delivered to the originating connection only.
type ErrorPayload struct {
	Message string `json:"message"`
}
