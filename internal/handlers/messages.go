package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/advisorly/advisorly/internal/api/middleware"
	"github.com/advisorly/advisorly/internal/models"
)

// HistoryResponse represents the message history response.
type HistoryResponse struct {
	ChannelID uuid.UUID        `json:"channel_id"`
	Messages  []models.Message `json:"messages"`
}

// UnreadResponse represents the unread count response.
type UnreadResponse struct {
	ChannelID uuid.UUID `json:"channel_id"`
	Unread    int       `json:"unread"`
}

// GetHistory handles GET /channels/{id}/messages.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromContext(r.Context())

	channelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	messages, err := h.messages.History(r.Context(), channelID, callerID, limit, offset)
	if err != nil {
		h.ServiceError(w, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, HistoryResponse{ChannelID: channelID, Messages: messages})
}

// GetUnread handles GET /channels/{id}/unread.
func (h *Handler) GetUnread(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromContext(r.Context())

	channelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID")
		return
	}

	count, err := h.messages.UnreadCount(r.Context(), channelID, callerID)
	if err != nil {
		h.ServiceError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, UnreadResponse{ChannelID: channelID, Unread: count})
}
