package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/advisorly/advisorly/internal/chat"
	"github.com/advisorly/advisorly/internal/consult"
	"github.com/advisorly/advisorly/internal/errs"
	"github.com/advisorly/advisorly/internal/media"
	"github.com/advisorly/advisorly/internal/minutes"
	"github.com/advisorly/advisorly/internal/realtime"
	"github.com/advisorly/advisorly/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	consult  *consult.Service
	messages *chat.Service
	pipeline *minutes.Pipeline
	blobs    media.BlobStore
	hub      *realtime.Hub
	db       store.DataStore
	redis    *store.RedisStore // optional, health checks only

	maxChatFileBytes int64
}

// NewHandler creates a new Handler with the given services.
func NewHandler(consultSvc *consult.Service, messages *chat.Service, pipeline *minutes.Pipeline, blobs media.BlobStore, hub *realtime.Hub, db store.DataStore, redis *store.RedisStore) *Handler {
	return &Handler{
		consult:          consultSvc,
		messages:         messages,
		pipeline:         pipeline,
		blobs:            blobs,
		hub:              hub,
		db:               db,
		redis:            redis,
		maxChatFileBytes: 16 << 20,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// ServiceError maps a typed service error onto the HTTP surface.
// Authorization failures are uniform: the caller cannot tell a foreign
// resource from a missing one.
func (h *Handler) ServiceError(w http.ResponseWriter, err error) {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		h.Error(w, http.StatusBadRequest, err.Error())
	case errs.KindAuthorization:
		h.Error(w, http.StatusForbidden, "not authorized")
	case errs.KindConflict:
		h.Error(w, http.StatusConflict, err.Error())
	case errs.KindPayload:
		h.Error(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		h.Error(w, http.StatusServiceUnavailable, "temporarily unavailable")
	}
}
