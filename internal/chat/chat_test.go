package chat

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/advisorly/advisorly/internal/access"
	"github.com/advisorly/advisorly/internal/errs"
	"github.com/advisorly/advisorly/internal/models"
	"github.com/advisorly/advisorly/internal/store"
)

type fixture struct {
	svc     *Service
	db      *store.SQLiteStore
	channel *models.Channel
	client  uuid.UUID
	advisor uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	req := &models.ConsultationRequest{
		ID:              uuid.New(),
		ClientID:        uuid.New(),
		AdvisorID:       uuid.New(),
		Topic:           "retirement planning",
		RequestedDate:   "2026-09-10",
		RequestedStart:  "10:00",
		RequestedEnd:    "11:00",
		DurationMinutes: 60,
		Timezone:        "UTC",
		Status:          models.RequestAccepted,
		CreatedAt:       time.Now().UTC(),
	}
	if err := db.CreateRequest(ctx, req); err != nil {
		t.Fatal(err)
	}
	ch, err := db.GetOrCreateChannel(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}

	resolver := access.NewResolver(db, zerolog.Nop())
	return &fixture{
		svc:     NewService(db, resolver),
		db:      db,
		channel: ch,
		client:  req.ClientID,
		advisor: req.AdvisorID,
	}
}

func TestAppendAndHistoryOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var sent []string
	for _, content := range []string{"first", "second", "third"} {
		msg, err := f.svc.Append(ctx, f.channel.ID, f.client, content, models.ContentText, "")
		if err != nil {
			t.Fatal(err)
		}
		if msg.ID == "" {
			t.Fatal("message id not assigned")
		}
		sent = append(sent, msg.ID)
		time.Sleep(2 * time.Millisecond)
	}

	got, err := f.svc.History(ctx, f.channel.ID, f.advisor, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, msg := range got {
		if msg.ID != sent[i] {
			t.Fatalf("position %d: expected %s, got %s", i, sent[i], msg.ID)
		}
	}
	if got[0].Content != "first" || got[2].Content != "third" {
		t.Fatalf("history not in creation order: %+v", got)
	}
}

func TestAppendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Append(ctx, f.channel.ID, f.client, "   ", models.ContentText, "")
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("blank text: expected validation error, got %v", err)
	}

	_, err = f.svc.Append(ctx, f.channel.ID, f.client, strings.Repeat("a", MaxContentBytes+1), models.ContentText, "")
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("oversize text: expected validation error, got %v", err)
	}

	_, err = f.svc.Append(ctx, f.channel.ID, f.client, "caption", models.ContentFile, "")
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("file without url: expected validation error, got %v", err)
	}

	_, err = f.svc.Append(ctx, f.channel.ID, f.client, "x", models.ContentType("audio"), "")
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("unknown content type: expected validation error, got %v", err)
	}

	// A file message with a url but no caption is fine.
	if _, err := f.svc.Append(ctx, f.channel.ID, f.client, "", models.ContentFile, "/uploads/doc.pdf"); err != nil {
		t.Fatal(err)
	}
}

func TestAppendNonMember(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Append(context.Background(), f.channel.ID, uuid.New(), "hi", models.ContentText, "")
	if !errs.Is(err, errs.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	// Unknown channel produces the identical denial.
	_, err = f.svc.Append(context.Background(), uuid.New(), f.client, "hi", models.ContentText, "")
	if !errs.Is(err, errs.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestHistoryNonMember(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.History(context.Background(), f.channel.ID, uuid.New(), 10, 0)
	if !errs.Is(err, errs.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestHistoryBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := f.svc.Append(ctx, f.channel.ID, f.client, "m", models.ContentText, ""); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	// Absurd limits are clamped, not rejected.
	got, err := f.svc.History(ctx, f.channel.ID, f.client, 100000, -5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(got))
	}

	got, err = f.svc.History(ctx, f.channel.ID, f.client, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 2; i++ {
		msg, err := f.svc.Append(ctx, f.channel.ID, f.client, "hello", models.ContentText, "")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, msg.ID)
	}

	count, err := f.svc.UnreadCount(ctx, f.channel.ID, f.advisor)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected 2 unread, got %d", count)
	}

	// The sender has nothing unread from themselves.
	count, err = f.svc.UnreadCount(ctx, f.channel.ID, f.client)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("expected 0 unread for sender, got %d", count)
	}

	n, err := f.svc.MarkRead(ctx, f.channel.ID, f.advisor, ids)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 marked, got %d", n)
	}

	count, _ = f.svc.UnreadCount(ctx, f.channel.ID, f.advisor)
	if count != 0 {
		t.Fatalf("expected 0 unread after read, got %d", count)
	}
}

func TestMarkReadForeignIDsSilentlySkipped(t *testing.T) {
	f := newFixture(t)
	other := newFixture(t)
	ctx := context.Background()

	foreign, err := other.svc.Append(ctx, other.channel.ID, other.client, "private", models.ContentText, "")
	if err != nil {
		t.Fatal(err)
	}

	// Acknowledging an id from someone else's channel succeeds with
	// zero matches; the response reveals nothing about the foreign
	// message.
	n, err := f.svc.MarkRead(ctx, f.channel.ID, f.advisor, []string{foreign.ID, "not-a-real-id"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0 matches, got %d", n)
	}

	count, _ := other.svc.UnreadCount(ctx, other.channel.ID, other.advisor)
	if count != 1 {
		t.Fatalf("foreign message should stay unread, got %d", count)
	}
}

func TestMarkReadNonMember(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.MarkRead(context.Background(), f.channel.ID, uuid.New(), []string{"x"})
	if !errs.Is(err, errs.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}
