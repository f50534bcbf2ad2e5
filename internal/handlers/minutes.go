package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/advisorly/advisorly/internal/api/middleware"
)

// UpdateMinutesRequest represents the minutes edit request. Absent
// fields are left untouched.
type UpdateMinutesRequest struct {
	Summary         *string `json:"summary,omitempty"`
	Recommendations *string `json:"recommendations,omitempty"`
}

// SubmitRecording handles POST /consultations/{id}/minutes.
func (h *Handler) SubmitRecording(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromContext(r.Context())

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid consultation ID")
		return
	}

	file, header, err := r.FormFile("recording")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "recording field is required")
		return
	}
	defer file.Close()

	run, err := h.pipeline.Submit(r.Context(), requestID, callerID,
		header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		h.ServiceError(w, err)
		return
	}

	// The run id returns immediately; conversion and transcription
	// happen out of band and are observable via polling.
	h.JSON(w, http.StatusAccepted, run)
}

// GetMinutes handles GET /consultations/{id}/minutes. A bare status
// poll (?status=1) hits the cached snapshot and skips content.
func (h *Handler) GetMinutes(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromContext(r.Context())

	requestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid consultation ID")
		return
	}

	if r.URL.Query().Get("status") != "" {
		snap, err := h.pipeline.Status(r.Context(), requestID, callerID)
		if err != nil {
			h.ServiceError(w, err)
			return
		}
		h.JSON(w, http.StatusOK, snap)
		return
	}

	run, err := h.pipeline.Get(r.Context(), requestID, callerID)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, run)
}

// UpdateMinutes handles PATCH /minutes/{id}.
func (h *Handler) UpdateMinutes(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromContext(r.Context())

	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid minutes ID")
		return
	}

	var body UpdateMinutesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Summary == nil && body.Recommendations == nil {
		h.Error(w, http.StatusBadRequest, "nothing to update")
		return
	}

	run, err := h.pipeline.Update(r.Context(), runID, callerID, body.Summary, body.Recommendations)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, run)
}

// PublishMinutes handles POST /minutes/{id}/publish.
func (h *Handler) PublishMinutes(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromContext(r.Context())

	runID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid minutes ID")
		return
	}

	run, err := h.pipeline.Publish(r.Context(), runID, callerID)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, run)
}
