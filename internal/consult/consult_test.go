package consult

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/advisorly/advisorly/internal/errs"
	"github.com/advisorly/advisorly/internal/models"
	"github.com/advisorly/advisorly/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)
	return NewService(db, zerolog.Nop())
}

func testSlot() Slot {
	return Slot{
		Date:            "2026-09-10",
		StartTime:       "10:00",
		EndTime:         "11:00",
		DurationMinutes: 60,
		Timezone:        "UTC",
	}
}

func meeting() *MeetingDetails {
	return &MeetingDetails{URL: "https://meet.example.com/abc", Platform: "zoom"}
}

func createPending(t *testing.T, s *Service) *models.ConsultationRequest {
	t.Helper()
	req, err := s.Create(context.Background(), uuid.New(), uuid.New(), testSlot(), "tax planning", "")
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func wantKind(t *testing.T, err error, kind errs.Kind) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errs.Is(err, kind) {
		t.Fatalf("expected kind %v, got %v (%v)", kind, errs.KindOf(err), err)
	}
}

func TestCreateValidation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	client := uuid.New()
	advisor := uuid.New()

	cases := []struct {
		name    string
		advisor uuid.UUID
		slot    Slot
		topic   string
	}{
		{"missing advisor", uuid.Nil, testSlot(), "t"},
		{"self booking", client, testSlot(), "t"},
		{"missing topic", advisor, testSlot(), "  "},
		{"bad date", advisor, Slot{Date: "10-09-2026", StartTime: "10:00", EndTime: "11:00", DurationMinutes: 60, Timezone: "UTC"}, "t"},
		{"bad start", advisor, Slot{Date: "2026-09-10", StartTime: "10am", EndTime: "11:00", DurationMinutes: 60, Timezone: "UTC"}, "t"},
		{"end before start", advisor, Slot{Date: "2026-09-10", StartTime: "11:00", EndTime: "10:00", DurationMinutes: 60, Timezone: "UTC"}, "t"},
		{"zero duration", advisor, Slot{Date: "2026-09-10", StartTime: "10:00", EndTime: "11:00", DurationMinutes: 0, Timezone: "UTC"}, "t"},
		{"bad timezone", advisor, Slot{Date: "2026-09-10", StartTime: "10:00", EndTime: "11:00", DurationMinutes: 60, Timezone: "Mars/Olympus"}, "t"},
	}
	for _, tc := range cases {
		_, err := s.Create(ctx, client, tc.advisor, tc.slot, tc.topic, "")
		if !errs.Is(err, errs.KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestCreateRejectsOverlap(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	advisor := uuid.New()

	req, err := s.Create(ctx, uuid.New(), advisor, testSlot(), "estate planning", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Respond(ctx, req.ID, advisor, DecisionAccept, meeting()); err != nil {
		t.Fatal(err)
	}

	overlapping := testSlot()
	overlapping.StartTime = "10:30"
	overlapping.EndTime = "11:30"
	_, err = s.Create(ctx, uuid.New(), advisor, overlapping, "another", "")
	wantKind(t, err, errs.KindValidation)

	// An adjacent slot is fine.
	adjacent := testSlot()
	adjacent.StartTime = "11:00"
	adjacent.EndTime = "12:00"
	if _, err := s.Create(ctx, uuid.New(), advisor, adjacent, "another", ""); err != nil {
		t.Fatal(err)
	}

	// A pending request on the same slot never blocks: only accepted
	// bookings reserve advisor time.
	if _, err := s.Create(ctx, uuid.New(), advisor, adjacent, "third", ""); err != nil {
		t.Fatal(err)
	}
}

func TestRespondAcceptProvisionsChannel(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	req := createPending(t, s)

	got, err := s.Respond(ctx, req.ID, req.AdvisorID, DecisionAccept, meeting())
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.RequestAccepted {
		t.Fatalf("expected accepted, got %s", got.Status)
	}
	if got.MeetingURL == "" || got.MeetingPlatform == "" {
		t.Fatalf("meeting details missing: %+v", got)
	}

	ch, err := s.Channel(ctx, req.ID, req.ClientID)
	if err != nil {
		t.Fatal(err)
	}
	if ch.RequestID != req.ID || !ch.IsActive {
		t.Fatalf("unexpected channel %+v", ch)
	}
}

func TestRespondAcceptRequiresMeetingDetails(t *testing.T) {
	s := newTestService(t)
	req := createPending(t, s)

	_, err := s.Respond(context.Background(), req.ID, req.AdvisorID, DecisionAccept, nil)
	wantKind(t, err, errs.KindValidation)

	_, err = s.Respond(context.Background(), req.ID, req.AdvisorID, DecisionAccept, &MeetingDetails{URL: "https://meet.example.com/abc"})
	wantKind(t, err, errs.KindValidation)
}

func TestRespondOnlyAddressedAdvisor(t *testing.T) {
	s := newTestService(t)
	req := createPending(t, s)
	ctx := context.Background()

	// The client cannot respond, and neither can a stranger. Both get
	// the same denial.
	_, err := s.Respond(ctx, req.ID, req.ClientID, DecisionReject, nil)
	wantKind(t, err, errs.KindAuthorization)

	_, err = s.Respond(ctx, req.ID, uuid.New(), DecisionReject, nil)
	wantKind(t, err, errs.KindAuthorization)

	// Unknown request looks identical to a foreign one.
	_, err = s.Respond(ctx, uuid.New(), req.AdvisorID, DecisionReject, nil)
	wantKind(t, err, errs.KindAuthorization)
}

func TestRespondOnlyPending(t *testing.T) {
	s := newTestService(t)
	req := createPending(t, s)
	ctx := context.Background()

	if _, err := s.Respond(ctx, req.ID, req.AdvisorID, DecisionReject, nil); err != nil {
		t.Fatal(err)
	}

	_, err := s.Respond(ctx, req.ID, req.AdvisorID, DecisionAccept, meeting())
	wantKind(t, err, errs.KindConflict)
}

func TestRespondUnknownDecision(t *testing.T) {
	s := newTestService(t)
	req := createPending(t, s)

	_, err := s.Respond(context.Background(), req.ID, req.AdvisorID, Decision("maybe"), nil)
	wantKind(t, err, errs.KindValidation)
}

func TestCompleteAfterScheduledEnd(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	req := createPending(t, s)
	if _, err := s.Respond(ctx, req.ID, req.AdvisorID, DecisionAccept, meeting()); err != nil {
		t.Fatal(err)
	}

	// Before the scheduled end: refused.
	s.now = func() time.Time {
		return time.Date(2026, 9, 10, 10, 30, 0, 0, time.UTC)
	}
	_, err := s.Complete(ctx, req.ID, req.AdvisorID)
	wantKind(t, err, errs.KindConflict)

	// After the end: completes and deactivates the channel.
	s.now = func() time.Time {
		return time.Date(2026, 9, 10, 11, 0, 1, 0, time.UTC)
	}
	got, err := s.Complete(ctx, req.ID, req.ClientID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.RequestCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}

	ch, err := s.db.GetChannelByRequest(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ch.IsActive {
		t.Fatal("channel should be inactive after completion")
	}

	// Completing again is a no-op, not an error.
	again, err := s.Complete(ctx, req.ID, req.AdvisorID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != models.RequestCompleted {
		t.Fatalf("expected completed, got %s", again.Status)
	}
}

func TestCompleteRequiresAccepted(t *testing.T) {
	s := newTestService(t)
	req := createPending(t, s)

	_, err := s.Complete(context.Background(), req.ID, req.ClientID)
	wantKind(t, err, errs.KindConflict)
}

func TestCompleteNonMember(t *testing.T) {
	s := newTestService(t)
	req := createPending(t, s)

	_, err := s.Complete(context.Background(), req.ID, uuid.New())
	wantKind(t, err, errs.KindAuthorization)
}

func TestCancel(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	// Pending requests can be cancelled by either party.
	req := createPending(t, s)
	got, err := s.Cancel(ctx, req.ID, req.ClientID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.RequestCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}

	// So can accepted ones; the channel goes inactive.
	req = createPending(t, s)
	if _, err := s.Respond(ctx, req.ID, req.AdvisorID, DecisionAccept, meeting()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Cancel(ctx, req.ID, req.AdvisorID); err != nil {
		t.Fatal(err)
	}
	ch, _ := s.db.GetChannelByRequest(ctx, req.ID)
	if ch.IsActive {
		t.Fatal("channel should be inactive after cancellation")
	}

	// Terminal states refuse further transitions.
	_, err = s.Cancel(ctx, req.ID, req.ClientID)
	wantKind(t, err, errs.KindConflict)
}

func TestCancelCompletedRefused(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	req := createPending(t, s)
	if _, err := s.Respond(ctx, req.ID, req.AdvisorID, DecisionAccept, meeting()); err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time {
		return time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC)
	}
	if _, err := s.Complete(ctx, req.ID, req.ClientID); err != nil {
		t.Fatal(err)
	}

	_, err := s.Cancel(ctx, req.ID, req.ClientID)
	wantKind(t, err, errs.KindConflict)
}

func TestGetMembersOnly(t *testing.T) {
	s := newTestService(t)
	req := createPending(t, s)
	ctx := context.Background()

	if _, err := s.Get(ctx, req.ID, req.ClientID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, req.ID, req.AdvisorID); err != nil {
		t.Fatal(err)
	}

	_, err := s.Get(ctx, req.ID, uuid.New())
	wantKind(t, err, errs.KindAuthorization)
}

func TestChannelBeforeAcceptance(t *testing.T) {
	s := newTestService(t)
	req := createPending(t, s)

	_, err := s.Channel(context.Background(), req.ID, req.ClientID)
	wantKind(t, err, errs.KindConflict)
}

func TestChannelAfterCancellation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	// Cancelled straight from pending: the request never reached
	// acceptance, so no channel may be provisioned for it.
	req := createPending(t, s)
	if _, err := s.Cancel(ctx, req.ID, req.ClientID); err != nil {
		t.Fatal(err)
	}
	_, err := s.Channel(ctx, req.ID, req.ClientID)
	wantKind(t, err, errs.KindConflict)
	ch, err := s.db.GetChannelByRequest(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ch != nil {
		t.Fatal("channel provisioned for a request that was never accepted")
	}

	// Cancelled after acceptance: the existing channel stays reachable.
	req = createPending(t, s)
	if _, err := s.Respond(ctx, req.ID, req.AdvisorID, DecisionAccept, meeting()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Cancel(ctx, req.ID, req.AdvisorID); err != nil {
		t.Fatal(err)
	}
	got, err := s.Channel(ctx, req.ID, req.ClientID)
	if err != nil {
		t.Fatal(err)
	}
	if got.RequestID != req.ID {
		t.Fatalf("unexpected channel %+v", got)
	}
}

func TestChannelConcurrentFirstAccess(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	req := createPending(t, s)
	if _, err := s.Respond(ctx, req.ID, req.AdvisorID, DecisionAccept, meeting()); err != nil {
		t.Fatal(err)
	}

	const n = 50
	ids := make([]uuid.UUID, n)
	failures := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := req.ClientID
			if i%2 == 0 {
				caller = req.AdvisorID
			}
			ch, err := s.Channel(ctx, req.ID, caller)
			if err != nil {
				failures[i] = err
				return
			}
			ids[i] = ch.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if failures[i] != nil {
			t.Fatal(failures[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d observed channel %s, caller 0 observed %s", i, ids[i], ids[0])
		}
	}
}

func TestListForUser(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	client := uuid.New()
	advisor := uuid.New()

	if _, err := s.Create(ctx, client, advisor, testSlot(), "first", ""); err != nil {
		t.Fatal(err)
	}
	other := testSlot()
	other.Date = "2026-09-11"
	if _, err := s.Create(ctx, client, uuid.New(), other, "second", ""); err != nil {
		t.Fatal(err)
	}

	asClient, err := s.ListForUser(ctx, client)
	if err != nil {
		t.Fatal(err)
	}
	if len(asClient) != 2 {
		t.Fatalf("expected 2 requests for client, got %d", len(asClient))
	}

	asAdvisor, err := s.ListForUser(ctx, advisor)
	if err != nil {
		t.Fatal(err)
	}
	if len(asAdvisor) != 1 {
		t.Fatalf("expected 1 request for advisor, got %d", len(asAdvisor))
	}
}
