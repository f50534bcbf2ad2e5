package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/advisorly/advisorly/internal/access"
	"github.com/advisorly/advisorly/internal/chat"
	"github.com/advisorly/advisorly/internal/config"
	"github.com/advisorly/advisorly/internal/consult"
	"github.com/advisorly/advisorly/internal/handlers"
	"github.com/advisorly/advisorly/internal/media"
	"github.com/advisorly/advisorly/internal/minutes"
	"github.com/advisorly/advisorly/internal/models"
	"github.com/advisorly/advisorly/internal/realtime"
	"github.com/advisorly/advisorly/internal/store"
)

type testConverter struct{}

func (testConverter) Convert(ctx context.Context, videoURL string) (string, error) {
	return videoURL + ".mp3", nil
}

type testTranscriber struct{}

func (testTranscriber) Transcribe(ctx context.Context, audioURL string) (*media.Transcript, error) {
	return &media.Transcript{Text: "transcript", Summary: "summary"}, nil
}

type testServer struct {
	srv *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	blobs, err := media.NewDiskStore(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatal(err)
	}

	logger := zerolog.Nop()
	resolver := access.NewResolver(db, logger)
	messages := chat.NewService(db, resolver)
	consultSvc := consult.NewService(db, logger)

	pipeline := minutes.NewPipeline(db, nil, blobs, testConverter{}, testTranscriber{}, logger, minutes.Config{
		Workers:        1,
		MaxUploadBytes: 1 << 20,
	})
	hub := realtime.NewHub(resolver, messages, db, logger)
	pipeline.SetNotifier(hub)
	pipeline.Start()
	t.Cleanup(pipeline.Stop)

	h := handlers.NewHandler(consultSvc, messages, pipeline, blobs, hub, db, nil)
	cfg := &config.Config{Env: "development", MaxUploadBytes: 1 << 20}

	router := NewRouter(cfg, logger, h, hub, nil, blobs.Dir())
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv}
}

func (s *testServer) do(t *testing.T, method, path string, userID uuid.UUID, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.srv.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != uuid.Nil {
		req.Header.Set("X-User-ID", userID.String())
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func (s *testServer) upload(t *testing.T, path string, userID uuid.UUID, field, filename, content string) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	io.Copy(fw, strings.NewReader(content))
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, s.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", userID.String())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func createBooking(t *testing.T, s *testServer, client, advisor uuid.UUID) models.ConsultationRequest {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/consultations", client, map[string]any{
		"advisor_id":           advisor,
		"topic":                "annuity options",
		"requested_date":       "2020-01-02",
		"requested_start_time": "10:00",
		"requested_end_time":   "11:00",
		"duration_minutes":     60,
		"timezone":             "UTC",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var req models.ConsultationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatal(err)
	}
	return req
}

func acceptBooking(t *testing.T, s *testServer, req models.ConsultationRequest) models.Channel {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/consultations/"+req.ID.String()+"/respond", req.AdvisorID, map[string]any{
		"decision":         "accept",
		"meeting_url":      "https://meet.example.com/abc",
		"meeting_platform": "zoom",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("respond: expected 200, got %d: %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, http.MethodGet, "/consultations/"+req.ID.String(), req.ClientID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var full handlers.ConsultationResponse
	if err := json.Unmarshal(body, &full); err != nil {
		t.Fatal(err)
	}
	if full.Channel == nil {
		t.Fatalf("accepted consultation should carry a channel: %s", body)
	}
	return *full.Channel
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/health", uuid.Nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var health handlers.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" {
		t.Fatalf("expected healthy, got %s", health.Status)
	}
	if health.Checks["datastore"].Status != "pass" {
		t.Fatalf("datastore check failed: %+v", health.Checks)
	}
}

func TestIdentityRequired(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodGet, "/consultations", uuid.Nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, s.srv.URL+"/consultations", nil)
	req.Header.Set("X-User-ID", "not-a-uuid")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed identity, got %d", resp2.StatusCode)
	}
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	client := uuid.New()
	advisor := uuid.New()

	req := createBooking(t, s, client, advisor)
	if req.Status != models.RequestPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}

	// A stranger sees neither the request nor evidence it exists.
	resp, body := s.do(t, http.MethodGet, "/consultations/"+req.ID.String(), uuid.New(), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "not authorized") {
		t.Fatalf("expected uniform denial, got %s", body)
	}

	ch := acceptBooking(t, s, req)
	if ch.RequestID != req.ID {
		t.Fatalf("channel bound to wrong request: %+v", ch)
	}

	// Responding twice conflicts.
	resp, body = s.do(t, http.MethodPost, "/consultations/"+req.ID.String()+"/respond", advisor, map[string]any{"decision": "reject"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.StatusCode, body)
	}

	// The scheduled slot is in the past, so completion is allowed.
	resp, body = s.do(t, http.MethodPost, "/consultations/"+req.ID.String()+"/complete", client, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var completed models.ConsultationRequest
	if err := json.Unmarshal(body, &completed); err != nil {
		t.Fatal(err)
	}
	if completed.Status != models.RequestCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}

	// Cancel after completion conflicts.
	resp, _ = s.do(t, http.MethodPost, "/consultations/"+req.ID.String()+"/cancel", client, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	// Both parties see it in their listings.
	for _, user := range []uuid.UUID{client, advisor} {
		resp, body = s.do(t, http.MethodGet, "/consultations", user, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("list: expected 200, got %d", resp.StatusCode)
		}
		var list []models.ConsultationRequest
		if err := json.Unmarshal(body, &list); err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 {
			t.Fatalf("expected 1 request for %s, got %d", user, len(list))
		}
	}
}

func TestChannelEndpoints(t *testing.T) {
	s := newTestServer(t)
	req := createBooking(t, s, uuid.New(), uuid.New())
	ch := acceptBooking(t, s, req)

	resp, body := s.do(t, http.MethodGet, "/channels/"+ch.ID.String()+"/messages", req.ClientID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var history handlers.HistoryResponse
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatal(err)
	}
	if history.Messages == nil || len(history.Messages) != 0 {
		t.Fatalf("expected empty message array, got %s", body)
	}

	// File upload becomes a file message in the channel.
	resp, body = s.upload(t, "/channels/"+ch.ID.String()+"/files", req.AdvisorID, "file", "allocation.pdf", "pdf-bytes")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var msg models.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.ContentType != models.ContentFile || msg.FileURL == "" {
		t.Fatalf("unexpected file message %+v", msg)
	}

	// Recordings are not chat attachments.
	resp, _ = s.upload(t, "/channels/"+ch.ID.String()+"/files", req.AdvisorID, "file", "session.mp4", "video")
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 for recording in chat, got %d", resp.StatusCode)
	}

	resp, body = s.do(t, http.MethodGet, "/channels/"+ch.ID.String()+"/unread", req.ClientID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unread: expected 200, got %d", resp.StatusCode)
	}
	var unread handlers.UnreadResponse
	if err := json.Unmarshal(body, &unread); err != nil {
		t.Fatal(err)
	}
	if unread.Unread != 1 {
		t.Fatalf("expected 1 unread, got %d", unread.Unread)
	}

	// Non-members get the uniform denial on every channel surface.
	resp, _ = s.do(t, http.MethodGet, "/channels/"+ch.ID.String()+"/messages", uuid.New(), nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestMinutesOverHTTP(t *testing.T) {
	s := newTestServer(t)
	req := createBooking(t, s, uuid.New(), uuid.New())
	acceptBooking(t, s, req)

	base := "/consultations/" + req.ID.String() + "/minutes"
	resp, body := s.upload(t, base, req.AdvisorID, "recording", "session.mp3", "audio-bytes")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit: expected 202, got %d: %s", resp.StatusCode, body)
	}
	var run models.ConsultationMinutes
	if err := json.Unmarshal(body, &run); err != nil {
		t.Fatal(err)
	}

	// Poll until the run lands in a terminal or ready state.
	deadline := time.Now().Add(5 * time.Second)
	var snap store.MinutesStatusSnapshot
	for {
		resp, body = s.do(t, http.MethodGet, base+"?status=1", req.ClientID, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status: expected 200, got %d: %s", resp.StatusCode, body)
		}
		if err := json.Unmarshal(body, &snap); err != nil {
			t.Fatal(err)
		}
		if snap.Status == string(models.MinutesReady) || snap.Status == string(models.MinutesError) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run stuck in %s", snap.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if snap.Status != string(models.MinutesReady) {
		t.Fatalf("expected ready, got %s (%s)", snap.Status, snap.ProcessingError)
	}

	// The client sees status but no content until publication.
	resp, body = s.do(t, http.MethodGet, base, req.ClientID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	var view models.ConsultationMinutes
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatal(err)
	}
	if view.Transcript != "" || view.Summary != "" {
		t.Fatalf("client saw unpublished content: %s", body)
	}

	// The advisor edits, then publishes.
	summary := "revised summary"
	resp, body = s.do(t, http.MethodPatch, "/minutes/"+run.ID.String(), req.AdvisorID, handlers.UpdateMinutesRequest{Summary: &summary})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, http.MethodPost, fmt.Sprintf("/minutes/%s/publish", run.ID), req.AdvisorID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish: expected 200, got %d: %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, http.MethodGet, base, req.ClientID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatal(err)
	}
	if view.Status != models.MinutesPublished || view.Summary != summary {
		t.Fatalf("published view wrong: %s", body)
	}

	// The client cannot publish or edit.
	resp, _ = s.do(t, http.MethodPost, fmt.Sprintf("/minutes/%s/publish", run.ID), req.ClientID, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestSecurityHeadersPresent(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodGet, "/health", uuid.Nil, nil)
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing X-Content-Type-Options header")
	}
	if resp.Header.Get("X-Frame-Options") == "" {
		t.Fatal("missing X-Frame-Options header")
	}
}
