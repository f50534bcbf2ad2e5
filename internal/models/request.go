package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle state of a consultation request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestCompleted RequestStatus = "completed"
	RequestCancelled RequestStatus = "cancelled"
)

// Terminal reports whether no further transition is permitted.
func (s RequestStatus) Terminal() bool {
	return s == RequestRejected || s == RequestCompleted || s == RequestCancelled
}

// ConsultationRequest is a single advisory booking between a client and
// an advisor.
type ConsultationRequest struct {
	ID              uuid.UUID     `json:"id"`
	ClientID        uuid.UUID     `json:"client_id"`
	AdvisorID       uuid.UUID     `json:"advisor_id"`
	Topic           string        `json:"topic"`
	Description     string        `json:"description,omitempty"`
	RequestedDate   string        `json:"requested_date"`       // YYYY-MM-DD
	RequestedStart  string        `json:"requested_start_time"` // HH:MM
	RequestedEnd    string        `json:"requested_end_time"`   // HH:MM
	DurationMinutes int           `json:"duration_minutes"`
	Timezone        string        `json:"timezone"`
	Status          RequestStatus `json:"status"`
	MeetingURL      string        `json:"meeting_url,omitempty"`
	MeetingPlatform string        `json:"meeting_platform,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// EndsAt resolves the scheduled end instant in the request's timezone.
// A malformed record resolves to the zero time, which callers treat as
// "already elapsed".
func (r *ConsultationRequest) EndsAt() time.Time {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", r.RequestedDate+" "+r.RequestedEnd, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsMember reports whether userID is the request's client or advisor.
func (r *ConsultationRequest) IsMember(userID uuid.UUID) bool {
	return userID == r.ClientID || userID == r.AdvisorID
}
