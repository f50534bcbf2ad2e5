package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Converter turns a stored video recording into an audio artifact the
// transcriber can consume. Conversion runs out-of-band and can take
// minutes; implementations must honor ctx cancellation.
type Converter interface {
	// Convert returns the URL of the extracted audio.
	Convert(ctx context.Context, videoURL string) (audioURL string, err error)
}

// HTTPConverter submits conversion jobs to an external media service.
type HTTPConverter struct {
	baseURL string
	client  *http.Client
}

// NewHTTPConverter creates a converter client for the given service.
func NewHTTPConverter(baseURL string) *HTTPConverter {
	return &HTTPConverter{
		baseURL: baseURL,
		// The per-run deadline lives in the caller's context; this
		// timeout only bounds a wedged TCP connection.
		client: &http.Client{Timeout: 15 * time.Minute},
	}
}

type convertRequest struct {
	SourceURL string `json:"source_url"`
	Format    string `json:"format"`
}

type convertResponse struct {
	AudioURL string `json:"audio_url"`
	Error    string `json:"error,omitempty"`
}

// Convert posts the job and blocks until the service responds.
func (c *HTTPConverter) Convert(ctx context.Context, videoURL string) (string, error) {
	body, err := json.Marshal(convertRequest{SourceURL: videoURL, Format: "mp3"})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return "", fmt.Errorf("converter: %s", out.Error)
		}
		return "", fmt.Errorf("converter: unexpected status %d", resp.StatusCode)
	}
	if out.AudioURL == "" {
		return "", fmt.Errorf("converter: empty audio URL in response")
	}
	return out.AudioURL, nil
}
