package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/advisorly/advisorly/internal/models"
)

// ErrActiveRun is returned by CreateMinutesRun when a non-terminal
// pipeline run already exists for the request.
var ErrActiveRun = errors.New("store: active minutes run exists for request")

// DataStore defines the interface for persistent storage of requests,
// channels, messages and minutes runs. Both PostgresStore and
// SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Consultation request operations
	CreateRequest(ctx context.Context, req *models.ConsultationRequest) error
	GetRequest(ctx context.Context, id uuid.UUID) (*models.ConsultationRequest, error)
	ListRequestsByUser(ctx context.Context, userID uuid.UUID) ([]models.ConsultationRequest, error)
	// HasAcceptedOverlap reports whether the advisor already has an
	// accepted request on the given date whose time window overlaps
	// [start, end).
	HasAcceptedOverlap(ctx context.Context, advisorID uuid.UUID, date, start, end string) (bool, error)
	// AcceptRequest transitions pending -> accepted and records meeting
	// details in one statement. Returns false if the request was not
	// pending.
	AcceptRequest(ctx context.Context, id uuid.UUID, meetingURL, meetingPlatform string) (bool, error)
	// TransitionRequest performs a compare-and-swap status change.
	// Returns false if the request was not in the from state.
	TransitionRequest(ctx context.Context, id uuid.UUID, from, to models.RequestStatus) (bool, error)

	// Channel operations
	// GetOrCreateChannel is idempotent under concurrent first access:
	// all callers for the same request observe the same channel row.
	GetOrCreateChannel(ctx context.Context, requestID uuid.UUID) (*models.Channel, error)
	GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	GetChannelByRequest(ctx context.Context, requestID uuid.UUID) (*models.Channel, error)
	DeactivateChannel(ctx context.Context, requestID uuid.UUID) error

	// Message operations
	InsertMessage(ctx context.Context, msg *models.Message) error
	// RecentMessages returns the most-recent-N window ordered ascending
	// by creation. Offset counts back from the newest message.
	RecentMessages(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]models.Message, error)
	// MarkMessagesRead flips is_read on messages in the channel that
	// were not sent by the reader and are still unread. Ids outside the
	// channel are silently ignored.
	MarkMessagesRead(ctx context.Context, channelID uuid.UUID, messageIDs []string, readerID uuid.UUID, readAt time.Time) (int64, error)
	UnreadCount(ctx context.Context, channelID, userID uuid.UUID) (int, error)

	// Minutes pipeline operations
	// CreateMinutesRun inserts a new run. Returns ErrActiveRun when a
	// queued or processing run already exists for the request.
	CreateMinutesRun(ctx context.Context, m *models.ConsultationMinutes) error
	GetMinutes(ctx context.Context, id uuid.UUID) (*models.ConsultationMinutes, error)
	LatestMinutesByRequest(ctx context.Context, requestID uuid.UUID) (*models.ConsultationMinutes, error)
	// TransitionMinutes performs a compare-and-swap status change.
	TransitionMinutes(ctx context.Context, id uuid.UUID, from, to models.MinutesStatus) (bool, error)
	// SetMinutesReady transitions processing -> ready and populates the
	// pipeline output atomically.
	SetMinutesReady(ctx context.Context, id uuid.UUID, transcript, summary string, keyPoints []string, actionItems []models.ActionItem) (bool, error)
	// SetMinutesError transitions a non-terminal run to error, records
	// the failure and clears any partial content.
	SetMinutesError(ctx context.Context, id uuid.UUID, processingError string) (bool, error)
	// UpdateMinutesContent edits summary/recommendations on a ready or
	// published run. Nil fields are left untouched.
	UpdateMinutesContent(ctx context.Context, id uuid.UUID, summary, recommendations *string) (bool, error)
	// PublishMinutes transitions ready -> published and stamps
	// published_at.
	PublishMinutes(ctx context.Context, id uuid.UUID, publishedAt time.Time) (bool, error)
}
