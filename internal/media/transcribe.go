package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/advisorly/advisorly/internal/models"
)

// Transcript is the structured output of the transcription engine.
type Transcript struct {
	Text        string              `json:"text"`
	Summary     string              `json:"summary"`
	KeyPoints   []string            `json:"key_points"`
	ActionItems []models.ActionItem `json:"action_items"`
}

// Transcriber produces a transcript and summary from an audio artifact.
// Calls can take minutes; implementations must honor ctx cancellation.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (*Transcript, error)
}

// HTTPTranscriber submits transcription jobs to an external speech
// service.
type HTTPTranscriber struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTranscriber creates a transcriber client for the given service.
func NewHTTPTranscriber(baseURL string) *HTTPTranscriber {
	return &HTTPTranscriber{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Minute},
	}
}

type transcribeRequest struct {
	AudioURL string `json:"audio_url"`
}

type transcribeResponse struct {
	Transcript
	Error string `json:"error,omitempty"`
}

// Transcribe posts the job and blocks until the service responds.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audioURL string) (*Transcript, error) {
	body, err := json.Marshal(transcribeRequest{AudioURL: audioURL})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/transcribe", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return nil, fmt.Errorf("transcriber: %s", out.Error)
		}
		return nil, fmt.Errorf("transcriber: unexpected status %d", resp.StatusCode)
	}
	return &out.Transcript, nil
}
