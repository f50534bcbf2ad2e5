package models

import (
	"testing"
	"time"
)

func TestEndsAt(t *testing.T) {
	req := &ConsultationRequest{
		RequestedDate: "2026-09-10",
		RequestedEnd:  "11:30",
		Timezone:      "America/New_York",
	}

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 9, 10, 11, 30, 0, 0, loc)
	if got := req.EndsAt(); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestEndsAtMalformed(t *testing.T) {
	req := &ConsultationRequest{
		RequestedDate: "garbage",
		RequestedEnd:  "11:30",
		Timezone:      "UTC",
	}
	if !req.EndsAt().IsZero() {
		t.Fatal("malformed schedule should resolve to the zero time")
	}

	// An unknown timezone falls back to UTC rather than failing.
	req = &ConsultationRequest{
		RequestedDate: "2026-09-10",
		RequestedEnd:  "11:30",
		Timezone:      "Nowhere/Unknown",
	}
	want := time.Date(2026, 9, 10, 11, 30, 0, 0, time.UTC)
	if got := req.EndsAt(); !got.Equal(want) {
		t.Fatalf("expected UTC fallback %v, got %v", want, got)
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []RequestStatus{RequestRejected, RequestCompleted, RequestCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []RequestStatus{RequestPending, RequestAccepted} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestMinutesTerminal(t *testing.T) {
	for _, s := range []MinutesStatus{MinutesError, MinutesPublished} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []MinutesStatus{MinutesQueued, MinutesProcessing, MinutesReady} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
