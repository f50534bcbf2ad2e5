// Package chat is the message store adapter: durable append, bounded
// history, read receipts and unread counts for a channel.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/advisorly/advisorly/internal/access"
	"github.com/advisorly/advisorly/internal/errs"
	"github.com/advisorly/advisorly/internal/metrics"
	"github.com/advisorly/advisorly/internal/models"
	"github.com/advisorly/advisorly/internal/store"
)

const (
	// MaxContentBytes bounds a single text message.
	MaxContentBytes = 4096

	// DefaultHistoryLimit applies when the caller passes no limit.
	DefaultHistoryLimit = 50

	// MaxHistoryLimit caps a single history query.
	MaxHistoryLimit = 200
)

// Service persists and retrieves channel messages. Membership is
// re-checked on every append even when the realtime layer already
// checked, so the adapter stays safe when invoked directly (file
// uploads arrive here without a websocket in the path).
type Service struct {
	db       store.DataStore
	resolver *access.Resolver
}

// NewService creates a message service.
func NewService(db store.DataStore, resolver *access.Resolver) *Service {
	return &Service{db: db, resolver: resolver}
}

// Append validates membership and persists a message. The returned
// message carries the server-assigned id and timestamp; broadcasting
// that stored form is what converges every client on the canonical
// record.
func (s *Service) Append(ctx context.Context, channelID, senderID uuid.UUID, content string, contentType models.ContentType, fileURL string) (*models.Message, error) {
	if !s.resolver.IsMember(ctx, channelID, senderID) {
		return nil, errs.Authorization()
	}

	switch contentType {
	case models.ContentText:
		if strings.TrimSpace(content) == "" {
			return nil, errs.Validation("content is required")
		}
	case models.ContentFile:
		if fileURL == "" {
			return nil, errs.Validation("file_url is required for file messages")
		}
	default:
		return nil, errs.Validation("unknown content type %q", contentType)
	}
	if len(content) > MaxContentBytes {
		return nil, errs.Validation("content too long (max %d bytes)", MaxContentBytes)
	}

	msg := &models.Message{
		ID:          ulid.Make().String(),
		ChannelID:   channelID,
		SenderID:    senderID,
		Content:     content,
		ContentType: contentType,
		FileURL:     fileURL,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.db.InsertMessage(ctx, msg); err != nil {
		return nil, errs.External("failed to store message", err)
	}

	metrics.MessagesSent.WithLabelValues(string(contentType)).Inc()
	return msg, nil
}

// History returns the most-recent-limit messages ordered ascending by
// creation. Offset counts back from the newest message; callers paginate
// by issuing a new bounded query.
func (s *Service) History(ctx context.Context, channelID, userID uuid.UUID, limit, offset int) ([]models.Message, error) {
	if !s.resolver.IsMember(ctx, channelID, userID) {
		return nil, errs.Authorization()
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	messages, err := s.db.RecentMessages(ctx, channelID, limit, offset)
	if err != nil {
		return nil, errs.External("failed to fetch messages", err)
	}
	return messages, nil
}

// MarkRead flips is_read on messages the reader did not send. Ids the
// reader cannot see are silently skipped: the count reveals nothing
// about messages in foreign channels.
func (s *Service) MarkRead(ctx context.Context, channelID, readerID uuid.UUID, messageIDs []string) (int64, error) {
	if !s.resolver.IsMember(ctx, channelID, readerID) {
		return 0, errs.Authorization()
	}

	n, err := s.db.MarkMessagesRead(ctx, channelID, messageIDs, readerID, time.Now().UTC())
	if err != nil {
		return 0, errs.External("failed to mark messages read", err)
	}
	return n, nil
}

// UnreadCount counts unread messages addressed to the user.
func (s *Service) UnreadCount(ctx context.Context, channelID, userID uuid.UUID) (int, error) {
	if !s.resolver.IsMember(ctx, channelID, userID) {
		return 0, errs.Authorization()
	}

	count, err := s.db.UnreadCount(ctx, channelID, userID)
	if err != nil {
		return 0, errs.External("failed to count unread messages", err)
	}
	return count, nil
}
