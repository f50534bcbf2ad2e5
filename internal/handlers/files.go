package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/advisorly/advisorly/internal/api/middleware"
	"github.com/advisorly/advisorly/internal/media"
)

// UploadFile handles POST /channels/{id}/files. The file lands in the
// blob store and the resulting URL is appended to the channel as a
// file message through the hub, which also pushes it to live room
// members; membership is enforced by the message service.
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	callerID := middleware.UserFromContext(r.Context())

	channelID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid channel ID")
		return
	}

	if err := r.ParseMultipartForm(h.maxChatFileBytes); err != nil {
		h.Error(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxChatFileBytes {
		h.Error(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	if !media.ChatFileAllowed(header.Filename) {
		h.Error(w, http.StatusUnsupportedMediaType, "file type not allowed")
		return
	}

	url, err := h.blobs.Put(r.Context(), header.Filename, file)
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "failed to store file")
		return
	}

	msg, err := h.hub.AppendFile(r.Context(), channelID, callerID, r.FormValue("caption"), url)
	if err != nil {
		h.ServiceError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}
