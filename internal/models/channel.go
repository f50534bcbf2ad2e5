package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the communication scope bound 1:1 to an accepted request.
// It is lazily created on first access after acceptance and deactivated,
// never deleted, when the request reaches a terminal state.
type Channel struct {
	ID        uuid.UUID `json:"id"`
	RequestID uuid.UUID `json:"request_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
