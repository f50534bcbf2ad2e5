// Package access decides channel membership. Every connect, send,
// history read and unread count goes through the resolver; nothing is
// cached between calls so a membership change is never trusted stale.
package access

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/advisorly/advisorly/internal/store"
)

// Resolver answers membership questions for channels.
type Resolver struct {
	db     store.DataStore
	logger zerolog.Logger
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(db store.DataStore, logger zerolog.Logger) *Resolver {
	return &Resolver{db: db, logger: logger}
}

// IsMember reports whether userID is the client or advisor of the
// channel's request. It never returns an error: lookup failures and
// missing channels both report false so callers reply with the uniform
// authorization error regardless of why access was denied.
func (r *Resolver) IsMember(ctx context.Context, channelID, userID uuid.UUID) bool {
	ch, err := r.db.GetChannel(ctx, channelID)
	if err != nil {
		r.logger.Warn().Err(err).Stringer("channel_id", channelID).Msg("membership lookup failed")
		return false
	}
	if ch == nil {
		return false
	}

	req, err := r.db.GetRequest(ctx, ch.RequestID)
	if err != nil {
		r.logger.Warn().Err(err).Stringer("channel_id", channelID).Msg("membership lookup failed")
		return false
	}
	if req == nil {
		return false
	}

	return req.IsMember(userID)
}
