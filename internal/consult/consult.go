// Package consult owns the consultation request state machine:
// pending -> {accepted, rejected, cancelled}, accepted -> {completed,
// cancelled}, with channel provisioning on accept.
package consult

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/advisorly/advisorly/internal/errs"
	"github.com/advisorly/advisorly/internal/metrics"
	"github.com/advisorly/advisorly/internal/models"
	"github.com/advisorly/advisorly/internal/store"
)

// Decision is an advisor's answer to a pending request.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// Slot describes the requested booking window.
type Slot struct {
	Date            string // YYYY-MM-DD
	StartTime       string // HH:MM
	EndTime         string // HH:MM
	DurationMinutes int
	Timezone        string
}

// MeetingDetails carries the conferencing info required on accept.
type MeetingDetails struct {
	URL      string
	Platform string
}

// Service manages consultation request lifecycles.
type Service struct {
	db     store.DataStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a lifecycle service.
func NewService(db store.DataStore, logger zerolog.Logger) *Service {
	return &Service{db: db, logger: logger, now: time.Now}
}

// Create validates the slot and persists a pending request.
func (s *Service) Create(ctx context.Context, clientID, advisorID uuid.UUID, slot Slot, topic, description string) (*models.ConsultationRequest, error) {
	if advisorID == uuid.Nil {
		return nil, errs.Validation("advisor_id is required")
	}
	if advisorID == clientID {
		return nil, errs.Validation("cannot book a consultation with yourself")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errs.Validation("topic is required")
	}
	if err := validateSlot(slot); err != nil {
		return nil, err
	}

	overlap, err := s.db.HasAcceptedOverlap(ctx, advisorID, slot.Date, slot.StartTime, slot.EndTime)
	if err != nil {
		return nil, errs.External("failed to check advisor availability", err)
	}
	if overlap {
		return nil, errs.Validation("slot overlaps an accepted consultation for this advisor")
	}

	req := &models.ConsultationRequest{
		ID:              uuid.New(),
		ClientID:        clientID,
		AdvisorID:       advisorID,
		Topic:           strings.TrimSpace(topic),
		Description:     strings.TrimSpace(description),
		RequestedDate:   slot.Date,
		RequestedStart:  slot.StartTime,
		RequestedEnd:    slot.EndTime,
		DurationMinutes: slot.DurationMinutes,
		Timezone:        slot.Timezone,
		Status:          models.RequestPending,
		CreatedAt:       s.now().UTC(),
	}

	if err := s.db.CreateRequest(ctx, req); err != nil {
		return nil, errs.External("failed to create request", err)
	}

	metrics.RequestsCreated.Inc()
	s.logger.Info().
		Stringer("request_id", req.ID).
		Stringer("advisor_id", advisorID).
		Str("date", slot.Date).
		Msg("consultation request created")
	return req, nil
}

// Respond records the addressed advisor's accept/reject decision. On
// accept the channel is provisioned in the same call; concurrent first
// access from both parties still yields exactly one channel because
// provisioning is an idempotent get-or-create.
func (s *Service) Respond(ctx context.Context, requestID, advisorID uuid.UUID, decision Decision, meeting *MeetingDetails) (*models.ConsultationRequest, error) {
	req, err := s.db.GetRequest(ctx, requestID)
	if err != nil {
		return nil, errs.External("failed to load request", err)
	}
	if req == nil || req.AdvisorID != advisorID {
		return nil, errs.Authorization()
	}
	if req.Status != models.RequestPending {
		return nil, errs.Conflict("request is %s, not pending", req.Status)
	}

	switch decision {
	case DecisionAccept:
		if meeting == nil || meeting.URL == "" || meeting.Platform == "" {
			return nil, errs.Validation("accepting requires meeting_url and meeting_platform")
		}
		ok, err := s.db.AcceptRequest(ctx, requestID, meeting.URL, meeting.Platform)
		if err != nil {
			return nil, errs.External("failed to accept request", err)
		}
		if !ok {
			// Lost a race with another transition.
			return nil, errs.Conflict("request is no longer pending")
		}
		if _, err := s.db.GetOrCreateChannel(ctx, requestID); err != nil {
			return nil, errs.External("failed to provision channel", err)
		}
		metrics.RequestsResponded.WithLabelValues("accepted").Inc()

	case DecisionReject:
		ok, err := s.db.TransitionRequest(ctx, requestID, models.RequestPending, models.RequestRejected)
		if err != nil {
			return nil, errs.External("failed to reject request", err)
		}
		if !ok {
			return nil, errs.Conflict("request is no longer pending")
		}
		metrics.RequestsResponded.WithLabelValues("rejected").Inc()

	default:
		return nil, errs.Validation("decision must be accept or reject")
	}

	req, err = s.db.GetRequest(ctx, requestID)
	if err != nil {
		return nil, errs.External("failed to load request", err)
	}
	s.logger.Info().
		Stringer("request_id", requestID).
		Str("decision", string(decision)).
		Msg("advisor responded to request")
	return req, nil
}

// Complete transitions accepted -> completed once the scheduled end has
// elapsed. Calling it on an already-completed request is a no-op so a
// double click never surfaces as an error.
func (s *Service) Complete(ctx context.Context, requestID, callerID uuid.UUID) (*models.ConsultationRequest, error) {
	req, err := s.db.GetRequest(ctx, requestID)
	if err != nil {
		return nil, errs.External("failed to load request", err)
	}
	if req == nil || !req.IsMember(callerID) {
		return nil, errs.Authorization()
	}

	if req.Status == models.RequestCompleted {
		return req, nil
	}
	if req.Status != models.RequestAccepted {
		return nil, errs.Conflict("cannot complete a %s request", req.Status)
	}
	if s.now().Before(req.EndsAt()) {
		return nil, errs.Conflict("consultation has not ended yet")
	}

	ok, err := s.db.TransitionRequest(ctx, requestID, models.RequestAccepted, models.RequestCompleted)
	if err != nil {
		return nil, errs.External("failed to complete request", err)
	}
	if !ok {
		// Re-read: a concurrent complete is still a success.
		req, err = s.db.GetRequest(ctx, requestID)
		if err != nil {
			return nil, errs.External("failed to load request", err)
		}
		if req != nil && req.Status == models.RequestCompleted {
			return req, nil
		}
		return nil, errs.Conflict("request state changed concurrently")
	}

	if err := s.db.DeactivateChannel(ctx, requestID); err != nil {
		s.logger.Warn().Err(err).Stringer("request_id", requestID).Msg("channel deactivation failed")
	}

	return s.db.GetRequest(ctx, requestID)
}

// Cancel transitions pending or accepted -> cancelled. A completed
// request cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, requestID, callerID uuid.UUID) (*models.ConsultationRequest, error) {
	req, err := s.db.GetRequest(ctx, requestID)
	if err != nil {
		return nil, errs.External("failed to load request", err)
	}
	if req == nil || !req.IsMember(callerID) {
		return nil, errs.Authorization()
	}

	if req.Status != models.RequestPending && req.Status != models.RequestAccepted {
		return nil, errs.Conflict("cannot cancel a %s request", req.Status)
	}

	ok, err := s.db.TransitionRequest(ctx, requestID, req.Status, models.RequestCancelled)
	if err != nil {
		return nil, errs.External("failed to cancel request", err)
	}
	if !ok {
		return nil, errs.Conflict("request state changed concurrently")
	}

	if err := s.db.DeactivateChannel(ctx, requestID); err != nil {
		s.logger.Warn().Err(err).Stringer("request_id", requestID).Msg("channel deactivation failed")
	}

	return s.db.GetRequest(ctx, requestID)
}

// Get returns a request to one of its members.
func (s *Service) Get(ctx context.Context, requestID, callerID uuid.UUID) (*models.ConsultationRequest, error) {
	req, err := s.db.GetRequest(ctx, requestID)
	if err != nil {
		return nil, errs.External("failed to load request", err)
	}
	if req == nil || !req.IsMember(callerID) {
		return nil, errs.Authorization()
	}
	return req, nil
}

// ListForUser returns every request the user is a member of.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.ConsultationRequest, error) {
	requests, err := s.db.ListRequestsByUser(ctx, userID)
	if err != nil {
		return nil, errs.External("failed to list requests", err)
	}
	return requests, nil
}

// Channel returns the channel for a request once it has been accepted,
// creating it on first access.
func (s *Service) Channel(ctx context.Context, requestID, callerID uuid.UUID) (*models.Channel, error) {
	req, err := s.db.GetRequest(ctx, requestID)
	if err != nil {
		return nil, errs.External("failed to load request", err)
	}
	if req == nil || !req.IsMember(callerID) {
		return nil, errs.Authorization()
	}
	switch req.Status {
	case models.RequestAccepted, models.RequestCompleted:
		ch, err := s.db.GetOrCreateChannel(ctx, requestID)
		if err != nil {
			return nil, errs.External("failed to provision channel", err)
		}
		return ch, nil
	case models.RequestCancelled:
		// A channel exists only when the cancellation came after
		// acceptance; one is never provisioned retroactively.
		ch, err := s.db.GetChannelByRequest(ctx, requestID)
		if err != nil {
			return nil, errs.External("failed to load channel", err)
		}
		if ch == nil {
			return nil, errs.Conflict("request has no channel before acceptance")
		}
		return ch, nil
	default:
		return nil, errs.Conflict("request has no channel before acceptance")
	}
}

func parseClock(v string) (time.Time, error) {
	return time.Parse("15:04", v)
}

func validateSlot(slot Slot) error {
	if _, err := time.Parse("2006-01-02", slot.Date); err != nil {
		return errs.Validation("requested_date must be YYYY-MM-DD")
	}
	start, err := parseClock(slot.StartTime)
	if err != nil {
		return errs.Validation("requested_start_time must be HH:MM")
	}
	end, err := parseClock(slot.EndTime)
	if err != nil {
		return errs.Validation("requested_end_time must be HH:MM")
	}
	if !end.After(start) {
		return errs.Validation("requested_end_time must be after requested_start_time")
	}
	if slot.DurationMinutes <= 0 {
		return errs.Validation("duration_minutes must be positive")
	}
	if _, err := time.LoadLocation(slot.Timezone); err != nil {
		return errs.Validation("unknown timezone %q", slot.Timezone)
	}
	return nil
}
