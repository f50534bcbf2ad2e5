package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/advisorly/advisorly/internal/models"
)

// SQLiteStore handles SQLite database operations. It backs local
// development and storage-level tests; production uses PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/advisorly.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/advisorly.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	// SQLite serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent store access.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS consultation_requests (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		advisor_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		requested_date TEXT NOT NULL,
		requested_start_time TEXT NOT NULL,
		requested_end_time TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		timezone TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		meeting_url TEXT NOT NULL DEFAULT '',
		meeting_platform TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_advisor
		ON consultation_requests (advisor_id, requested_date);

	CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL UNIQUE REFERENCES consultation_requests(id),
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL REFERENCES channels(id),
		sender_id TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT 'text',
		file_url TEXT NOT NULL DEFAULT '',
		is_read INTEGER NOT NULL DEFAULT 0,
		read_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_channel
		ON messages (channel_id, created_at, id);

	CREATE TABLE IF NOT EXISTS consultation_minutes (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL REFERENCES consultation_requests(id),
		status TEXT NOT NULL DEFAULT 'queued',
		transcript TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		key_points TEXT NOT NULL DEFAULT '[]',
		action_items TEXT NOT NULL DEFAULT '[]',
		recommendations TEXT NOT NULL DEFAULT '',
		processing_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		published_at TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_minutes_active
		ON consultation_minutes (request_id)
		WHERE status IN ('queued', 'processing');
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateRequest inserts a new consultation request.
func (s *SQLiteStore) CreateRequest(ctx context.Context, req *models.ConsultationRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consultation_requests (
			id, client_id, advisor_id, topic, description,
			requested_date, requested_start_time, requested_end_time,
			duration_minutes, timezone, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, req.ID.String(), req.ClientID.String(), req.AdvisorID.String(),
		req.Topic, req.Description, req.RequestedDate, req.RequestedStart,
		req.RequestedEnd, req.DurationMinutes, req.Timezone, req.Status,
		req.CreatedAt)
	return err
}

func (s *SQLiteStore) scanRequestRow(row *sql.Row) (*models.ConsultationRequest, error) {
	req := &models.ConsultationRequest{}
	var id, clientID, advisorID string
	err := row.Scan(
		&id, &clientID, &advisorID, &req.Topic, &req.Description,
		&req.RequestedDate, &req.RequestedStart, &req.RequestedEnd,
		&req.DurationMinutes, &req.Timezone, &req.Status,
		&req.MeetingURL, &req.MeetingPlatform, &req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if req.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if req.ClientID, err = uuid.Parse(clientID); err != nil {
		return nil, err
	}
	if req.AdvisorID, err = uuid.Parse(advisorID); err != nil {
		return nil, err
	}
	return req, nil
}

// GetRequest retrieves a consultation request by ID.
func (s *SQLiteStore) GetRequest(ctx context.Context, id uuid.UUID) (*models.ConsultationRequest, error) {
	return s.scanRequestRow(s.db.QueryRowContext(ctx, `
		SELECT id, client_id, advisor_id, topic, description,
		       requested_date, requested_start_time, requested_end_time,
		       duration_minutes, timezone, status, meeting_url,
		       meeting_platform, created_at
		FROM consultation_requests WHERE id = ?
	`, id.String()))
}

// ListRequestsByUser retrieves requests where the user is client or advisor.
func (s *SQLiteStore) ListRequestsByUser(ctx context.Context, userID uuid.UUID) ([]models.ConsultationRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, advisor_id, topic, description,
		       requested_date, requested_start_time, requested_end_time,
		       duration_minutes, timezone, status, meeting_url,
		       meeting_platform, created_at
		FROM consultation_requests
		WHERE client_id = ? OR advisor_id = ?
		ORDER BY created_at DESC
	`, userID.String(), userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.ConsultationRequest
	for rows.Next() {
		var req models.ConsultationRequest
		var id, clientID, advisorID string
		err := rows.Scan(
			&id, &clientID, &advisorID, &req.Topic, &req.Description,
			&req.RequestedDate, &req.RequestedStart, &req.RequestedEnd,
			&req.DurationMinutes, &req.Timezone, &req.Status,
			&req.MeetingURL, &req.MeetingPlatform, &req.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if req.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if req.ClientID, err = uuid.Parse(clientID); err != nil {
			return nil, err
		}
		if req.AdvisorID, err = uuid.Parse(advisorID); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// HasAcceptedOverlap checks for an accepted request overlapping the slot.
func (s *SQLiteStore) HasAcceptedOverlap(ctx context.Context, advisorID uuid.UUID, date, start, end string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM consultation_requests
		WHERE advisor_id = ?
		  AND requested_date = ?
		  AND status = 'accepted'
		  AND requested_start_time < ?
		  AND requested_end_time > ?
	`, advisorID.String(), date, end, start).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AcceptRequest transitions pending -> accepted with meeting details.
func (s *SQLiteStore) AcceptRequest(ctx context.Context, id uuid.UUID, meetingURL, meetingPlatform string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE consultation_requests
		SET status = 'accepted', meeting_url = ?, meeting_platform = ?
		WHERE id = ? AND status = 'pending'
	`, meetingURL, meetingPlatform, id.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// TransitionRequest performs a compare-and-swap status change.
func (s *SQLiteStore) TransitionRequest(ctx context.Context, id uuid.UUID, from, to models.RequestStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE consultation_requests
		SET status = ?
		WHERE id = ? AND status = ?
	`, to, id.String(), from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetOrCreateChannel returns the channel for a request, creating it if
// necessary.
func (s *SQLiteStore) GetOrCreateChannel(ctx context.Context, requestID uuid.UUID) (*models.Channel, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (id, request_id, is_active, created_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (request_id) DO NOTHING
	`, uuid.New().String(), requestID.String(), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return s.GetChannelByRequest(ctx, requestID)
}

func (s *SQLiteStore) scanChannelRow(row *sql.Row) (*models.Channel, error) {
	ch := &models.Channel{}
	var id, requestID string
	err := row.Scan(&id, &requestID, &ch.IsActive, &ch.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if ch.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if ch.RequestID, err = uuid.Parse(requestID); err != nil {
		return nil, err
	}
	return ch, nil
}

// GetChannel retrieves a channel by ID.
func (s *SQLiteStore) GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	return s.scanChannelRow(s.db.QueryRowContext(ctx, `
		SELECT id, request_id, is_active, created_at
		FROM channels WHERE id = ?
	`, id.String()))
}

// GetChannelByRequest retrieves a channel by its request ID.
func (s *SQLiteStore) GetChannelByRequest(ctx context.Context, requestID uuid.UUID) (*models.Channel, error) {
	return s.scanChannelRow(s.db.QueryRowContext(ctx, `
		SELECT id, request_id, is_active, created_at
		FROM channels WHERE request_id = ?
	`, requestID.String()))
}

// DeactivateChannel marks the request's channel inactive.
func (s *SQLiteStore) DeactivateChannel(ctx context.Context, requestID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE channels SET is_active = 0 WHERE request_id = ?
	`, requestID.String())
	return err
}

// InsertMessage persists a message.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (
			id, channel_id, sender_id, content, content_type,
			file_url, is_read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`, msg.ID, msg.ChannelID.String(), msg.SenderID.String(), msg.Content,
		msg.ContentType, msg.FileURL, msg.CreatedAt)
	return err
}

// RecentMessages returns the most-recent-N window ordered ascending.
func (s *SQLiteStore) RecentMessages(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, sender_id, content, content_type,
		       file_url, is_read, read_at, created_at
		FROM (
			SELECT id, channel_id, sender_id, content, content_type,
			       file_url, is_read, read_at, created_at
			FROM messages
			WHERE channel_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ? OFFSET ?
		)
		ORDER BY created_at ASC, id ASC
	`, channelID.String(), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var chID, senderID string
		var readAt sql.NullTime
		err := rows.Scan(
			&msg.ID, &chID, &senderID, &msg.Content, &msg.ContentType,
			&msg.FileURL, &msg.IsRead, &readAt, &msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if msg.ChannelID, err = uuid.Parse(chID); err != nil {
			return nil, err
		}
		if msg.SenderID, err = uuid.Parse(senderID); err != nil {
			return nil, err
		}
		if readAt.Valid {
			t := readAt.Time
			msg.ReadAt = &t
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkMessagesRead flips is_read on the reader's unread messages.
func (s *SQLiteStore) MarkMessagesRead(ctx context.Context, channelID uuid.UUID, messageIDs []string, readerID uuid.UUID, readAt time.Time) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(messageIDs)), ",")
	args := make([]any, 0, len(messageIDs)+3)
	args = append(args, readAt, channelID.String())
	for _, id := range messageIDs {
		args = append(args, id)
	}
	args = append(args, readerID.String())

	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET is_read = 1, read_at = ?
		WHERE channel_id = ?
		  AND id IN (`+placeholders+`)
		  AND sender_id <> ?
		  AND is_read = 0
	`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UnreadCount counts unread messages not sent by the user.
func (s *SQLiteStore) UnreadCount(ctx context.Context, channelID, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE channel_id = ? AND sender_id <> ? AND is_read = 0
	`, channelID.String(), userID.String()).Scan(&count)
	return count, err
}

// CreateMinutesRun inserts a new pipeline run.
func (s *SQLiteStore) CreateMinutesRun(ctx context.Context, m *models.ConsultationMinutes) error {
	keyPoints, err := json.Marshal(emptyIfNilStrings(m.KeyPoints))
	if err != nil {
		return err
	}
	actionItems, err := json.Marshal(emptyIfNilItems(m.ActionItems))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO consultation_minutes (
			id, request_id, status, transcript, summary, key_points,
			action_items, recommendations, processing_error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID.String(), m.RequestID.String(), m.Status, m.Transcript,
		m.Summary, string(keyPoints), string(actionItems),
		m.Recommendations, m.ProcessingError, m.CreatedAt)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return ErrActiveRun
		}
		return err
	}
	return nil
}

func (s *SQLiteStore) scanMinutesRow(row *sql.Row) (*models.ConsultationMinutes, error) {
	m := &models.ConsultationMinutes{}
	var id, requestID, keyPoints, actionItems string
	var publishedAt sql.NullTime
	err := row.Scan(
		&id, &requestID, &m.Status, &m.Transcript, &m.Summary,
		&keyPoints, &actionItems, &m.Recommendations,
		&m.ProcessingError, &m.CreatedAt, &publishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if m.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if m.RequestID, err = uuid.Parse(requestID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keyPoints), &m.KeyPoints); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actionItems), &m.ActionItems); err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		m.PublishedAt = &t
	}
	return m, nil
}

// GetMinutes retrieves a pipeline run by ID.
func (s *SQLiteStore) GetMinutes(ctx context.Context, id uuid.UUID) (*models.ConsultationMinutes, error) {
	return s.scanMinutesRow(s.db.QueryRowContext(ctx, `
		SELECT id, request_id, status, transcript, summary, key_points,
		       action_items, recommendations, processing_error,
		       created_at, published_at
		FROM consultation_minutes WHERE id = ?
	`, id.String()))
}

// LatestMinutesByRequest retrieves the most recent run for a request.
func (s *SQLiteStore) LatestMinutesByRequest(ctx context.Context, requestID uuid.UUID) (*models.ConsultationMinutes, error) {
	return s.scanMinutesRow(s.db.QueryRowContext(ctx, `
		SELECT id, request_id, status, transcript, summary, key_points,
		       action_items, recommendations, processing_error,
		       created_at, published_at
		FROM consultation_minutes
		WHERE request_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, requestID.String()))
}

// TransitionMinutes performs a compare-and-swap status change.
func (s *SQLiteStore) TransitionMinutes(ctx context.Context, id uuid.UUID, from, to models.MinutesStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE consultation_minutes
		SET status = ?
		WHERE id = ? AND status = ?
	`, to, id.String(), from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetMinutesReady transitions processing -> ready with pipeline output.
func (s *SQLiteStore) SetMinutesReady(ctx context.Context, id uuid.UUID, transcript, summary string, keyPoints []string, actionItems []models.ActionItem) (bool, error) {
	kp, err := json.Marshal(emptyIfNilStrings(keyPoints))
	if err != nil {
		return false, err
	}
	ai, err := json.Marshal(emptyIfNilItems(actionItems))
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE consultation_minutes
		SET status = 'ready', transcript = ?, summary = ?,
		    key_points = ?, action_items = ?
		WHERE id = ? AND status = 'processing'
	`, transcript, summary, string(kp), string(ai), id.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetMinutesError moves a non-terminal run to error and clears content.
func (s *SQLiteStore) SetMinutesError(ctx context.Context, id uuid.UUID, processingError string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE consultation_minutes
		SET status = 'error', processing_error = ?,
		    transcript = '', summary = '', key_points = '[]',
		    action_items = '[]', recommendations = ''
		WHERE id = ? AND status IN ('queued', 'processing')
	`, processingError, id.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateMinutesContent edits summary/recommendations on a ready or
// published run.
func (s *SQLiteStore) UpdateMinutesContent(ctx context.Context, id uuid.UUID, summary, recommendations *string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE consultation_minutes
		SET summary = COALESCE(?, summary),
		    recommendations = COALESCE(?, recommendations)
		WHERE id = ? AND status IN ('ready', 'published')
	`, summary, recommendations, id.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// PublishMinutes transitions ready -> published.
func (s *SQLiteStore) PublishMinutes(ctx context.Context, id uuid.UUID, publishedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE consultation_minutes
		SET status = 'published', published_at = ?
		WHERE id = ? AND status = 'ready'
	`, publishedAt, id.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
