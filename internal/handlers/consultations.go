package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/advisorly/advisorly/internal/api/middleware"
	"github.com/advisorly/advisorly/internal/consult"
	"github.com/advisorly/advisorly/internal/models"
)

// CreateConsultationRequest represents the booking creation request.
type CreateConsultationRequest struct {
	AdvisorID       uuid.UUID `json:"advisor_id"`
	Topic           string    `json:"topic"`
	Description     string    `json:"description,omitempty"`
	Date            string    `json:"requested_date"`
	StartTime       string    `json:"requested_start_time"`
	EndTime         string    `json:"requested_end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Timezone        string    `json:"timezone"`
}

// RespondRequest represents the advisor's accept/reject decision.
type RespondRequest struct {
	Decision        string `json:"decision"` // "accept" or "reject"
	MeetingURL      string `json:"meeting_url,omitempty"`
	MeetingPlatform string `json:"meeting_platform,omitempty"`
}

// ConsultationResponse pairs a request with its channel, when one exists.
type ConsultationResponse struct {
	Request *models.ConsultationRequest `json:"request"`
	Channel *models.Channel             `json:"channel,omitempty"`
}

// CreateConsultation handles POST /consultations.
func (h *Handler) CreateConsultation(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromContext(r.Context())

	var req CreateConsultationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := h.consult.Create(r.Context(), callerID, req.AdvisorID, consult.Slot{
		Date:            req.Date,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		DurationMinutes: req.DurationMinutes,
		Timezone:        req.Timezone,
	}, req.Topic, req.Description)
	if err != nil {
		h.ServiceError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, created)
}

// ListConsultations handles GET /consultations.
func (h *Handler) ListConsultations(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromContext(r.Context())

	requests, err := h.consult.ListForUser(r.Context(), callerID)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	if requests == nil {
		requests = []models.ConsultationRequest{}
	}
	h.JSON(w, http.StatusOK, requests)
}

// GetConsultation handles GET /consultations/{id}. Members also get
// the channel once the request has been accepted.
func (h *Handler) GetConsultation(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromContext(r.Context())

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid consultation ID")
		return
	}

	req, err := h.consult.Get(r.Context(), requestID, callerID)
	if err != nil {
		h.ServiceError(w, err)
		return
	}

	resp := ConsultationResponse{Request: req}
	if req.Status == models.RequestAccepted || req.Status == models.RequestCompleted {
		if ch, err := h.consult.Channel(r.Context(), requestID, callerID); err == nil {
			resp.Channel = ch
		}
	}
	h.JSON(w, http.StatusOK, resp)
}

// RespondConsultation handles POST /consultations/{id}/respond.
func (h *Handler) RespondConsultation(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromContext(r.Context())

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid consultation ID")
		return
	}

	var body RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var meeting *consult.MeetingDetails
	if body.MeetingURL != "" || body.MeetingPlatform != "" {
		meeting = &consult.MeetingDetails{URL: body.MeetingURL, Platform: body.MeetingPlatform}
	}

	req, err := h.consult.Respond(r.Context(), requestID, callerID, consult.Decision(body.Decision), meeting)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, req)
}

// CompleteConsultation handles POST /consultations/{id}/complete.
func (h *Handler) CompleteConsultation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.consult.Complete)
}

// CancelConsultation handles POST /consultations/{id}/cancel.
func (h *Handler) CancelConsultation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.consult.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, requestID, callerID uuid.UUID) (*models.ConsultationRequest, error)) {
	callerID := middleware.UserFromContext(r.Context())

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid consultation ID")
		return
	}

	req, err := op(r.Context(), requestID, callerID)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, req)
}
