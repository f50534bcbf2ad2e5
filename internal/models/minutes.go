package models

import (
	"time"

	"github.com/google/uuid"
)

// MinutesStatus is the state of one minutes-of-meeting pipeline run.
type MinutesStatus string

const (
	MinutesQueued     MinutesStatus = "queued"
	MinutesProcessing MinutesStatus = "processing"
	MinutesReady      MinutesStatus = "ready"
	MinutesError      MinutesStatus = "error"
	MinutesPublished  MinutesStatus = "published"
)

// Terminal reports whether the run can no longer transition.
func (s MinutesStatus) Terminal() bool {
	return s == MinutesError || s == MinutesPublished
}

// ActionItem is a single follow-up extracted from the transcript.
type ActionItem struct {
	Task     string `json:"task"`
	Priority string `json:"priority"`
}

// ConsultationMinutes is the artifact of one recording-pipeline run.
// A retried upload after an error creates a fresh run rather than
// mutating the failed one.
type ConsultationMinutes struct {
	ID              uuid.UUID     `json:"id"`
	RequestID       uuid.UUID     `json:"request_id"`
	Status          MinutesStatus `json:"status"`
	Transcript      string        `json:"transcript,omitempty"`
	Summary         string        `json:"summary,omitempty"`
	KeyPoints       []string      `json:"key_points,omitempty"`
	ActionItems     []ActionItem  `json:"action_items,omitempty"`
	Recommendations string        `json:"recommendations,omitempty"`
	ProcessingError string        `json:"processing_error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	PublishedAt     *time.Time    `json:"published_at,omitempty"`
}
