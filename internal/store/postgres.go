package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/advisorly/advisorly/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const requestColumns = `id, client_id, advisor_id, topic, description,
	requested_date, requested_start_time, requested_end_time,
	duration_minutes, timezone, status, meeting_url, meeting_platform,
	created_at`

func scanRequest(row pgx.Row) (*models.ConsultationRequest, error) {
	req := &models.ConsultationRequest{}
	err := row.Scan(
		&req.ID,
		&req.ClientID,
		&req.AdvisorID,
		&req.Topic,
		&req.Description,
		&req.RequestedDate,
		&req.RequestedStart,
		&req.RequestedEnd,
		&req.DurationMinutes,
		&req.Timezone,
		&req.Status,
		&req.MeetingURL,
		&req.MeetingPlatform,
		&req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

// CreateRequest inserts a new consultation request.
func (s *PostgresStore) CreateRequest(ctx context.Context, req *models.ConsultationRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO consultation_requests (
			id, client_id, advisor_id, topic, description,
			requested_date, requested_start_time, requested_end_time,
			duration_minutes, timezone, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, req.ID, req.ClientID, req.AdvisorID, req.Topic, req.Description,
		req.RequestedDate, req.RequestedStart, req.RequestedEnd,
		req.DurationMinutes, req.Timezone, req.Status, req.CreatedAt)
	return err
}

// GetRequest retrieves a consultation request by ID.
func (s *PostgresStore) GetRequest(ctx context.Context, id uuid.UUID) (*models.ConsultationRequest, error) {
	return scanRequest(s.pool.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM consultation_requests WHERE id = $1
	`, id))
}

// ListRequestsByUser retrieves requests where the user is client or advisor.
func (s *PostgresStore) ListRequestsByUser(ctx context.Context, userID uuid.UUID) ([]models.ConsultationRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM consultation_requests
		WHERE client_id = $1 OR advisor_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.ConsultationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// HasAcceptedOverlap checks for an accepted request overlapping the slot.
func (s *PostgresStore) HasAcceptedOverlap(ctx context.Context, advisorID uuid.UUID, date, start, end string) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM consultation_requests
		WHERE advisor_id = $1
		  AND requested_date = $2
		  AND status = 'accepted'
		  AND requested_start_time < $4
		  AND requested_end_time > $3
	`, advisorID, date, start, end).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AcceptRequest transitions pending -> accepted with meeting details.
func (s *PostgresStore) AcceptRequest(ctx context.Context, id uuid.UUID, meetingURL, meetingPlatform string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE consultation_requests
		SET status = 'accepted', meeting_url = $2, meeting_platform = $3
		WHERE id = $1 AND status = 'pending'
	`, id, meetingURL, meetingPlatform)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// TransitionRequest performs a compare-and-swap status change.
func (s *PostgresStore) TransitionRequest(ctx context.Context, id uuid.UUID, from, to models.RequestStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE consultation_requests
		SET status = $3
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetOrCreateChannel returns the channel for a request, creating it if
// necessary. Concurrent callers converge on a single row via the unique
// constraint on request_id.
func (s *PostgresStore) GetOrCreateChannel(ctx context.Context, requestID uuid.UUID) (*models.Channel, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channels (id, request_id, is_active, created_at)
		VALUES ($1, $2, TRUE, NOW())
		ON CONFLICT (request_id) DO NOTHING
	`, uuid.New(), requestID)
	if err != nil {
		return nil, err
	}
	return s.GetChannelByRequest(ctx, requestID)
}

func scanChannel(row pgx.Row) (*models.Channel, error) {
	ch := &models.Channel{}
	err := row.Scan(&ch.ID, &ch.RequestID, &ch.IsActive, &ch.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ch, nil
}

// GetChannel retrieves a channel by ID.
func (s *PostgresStore) GetChannel(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	return scanChannel(s.pool.QueryRow(ctx, `
		SELECT id, request_id, is_active, created_at
		FROM channels WHERE id = $1
	`, id))
}

// GetChannelByRequest retrieves a channel by its request ID.
func (s *PostgresStore) GetChannelByRequest(ctx context.Context, requestID uuid.UUID) (*models.Channel, error) {
	return scanChannel(s.pool.QueryRow(ctx, `
		SELECT id, request_id, is_active, created_at
		FROM channels WHERE request_id = $1
	`, requestID))
}

// DeactivateChannel marks the request's channel inactive.
func (s *PostgresStore) DeactivateChannel(ctx context.Context, requestID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE channels SET is_active = FALSE WHERE request_id = $1
	`, requestID)
	return err
}

// InsertMessage persists a message.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (
			id, channel_id, sender_id, content, content_type,
			file_url, is_read, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
	`, msg.ID, msg.ChannelID, msg.SenderID, msg.Content, msg.ContentType,
		msg.FileURL, msg.CreatedAt)
	return err
}

// RecentMessages returns the most-recent-N window ordered ascending.
func (s *PostgresStore) RecentMessages(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, channel_id, sender_id, content, content_type,
		       file_url, is_read, read_at, created_at
		FROM (
			SELECT id, channel_id, sender_id, content, content_type,
			       file_url, is_read, read_at, created_at
			FROM messages
			WHERE channel_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2 OFFSET $3
		) recent
		ORDER BY created_at ASC, id ASC
	`, channelID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID,
			&msg.ChannelID,
			&msg.SenderID,
			&msg.Content,
			&msg.ContentType,
			&msg.FileURL,
			&msg.IsRead,
			&msg.ReadAt,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkMessagesRead flips is_read on the reader's unread messages.
func (s *PostgresStore) MarkMessagesRead(ctx context.Context, channelID uuid.UUID, messageIDs []string, readerID uuid.UUID, readAt time.Time) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE, read_at = $4
		WHERE channel_id = $1
		  AND id = ANY($2)
		  AND sender_id <> $3
		  AND is_read = FALSE
	`, channelID, messageIDs, readerID, readAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UnreadCount counts unread messages not sent by the user.
func (s *PostgresStore) UnreadCount(ctx context.Context, channelID, userID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE channel_id = $1 AND sender_id <> $2 AND is_read = FALSE
	`, channelID, userID).Scan(&count)
	return count, err
}

// CreateMinutesRun inserts a new pipeline run. The partial unique index
// on active runs turns a duplicate into ErrActiveRun.
func (s *PostgresStore) CreateMinutesRun(ctx context.Context, m *models.ConsultationMinutes) error {
	keyPoints, err := json.Marshal(emptyIfNilStrings(m.KeyPoints))
	if err != nil {
		return err
	}
	actionItems, err := json.Marshal(emptyIfNilItems(m.ActionItems))
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO consultation_minutes (
			id, request_id, status, transcript, summary, key_points,
			action_items, recommendations, processing_error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.ID, m.RequestID, m.Status, m.Transcript, m.Summary, keyPoints,
		actionItems, m.Recommendations, m.ProcessingError, m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrActiveRun
		}
		return err
	}
	return nil
}

const minutesColumns = `id, request_id, status, transcript, summary,
	key_points, action_items, recommendations, processing_error,
	created_at, published_at`

func scanMinutes(row pgx.Row) (*models.ConsultationMinutes, error) {
	m := &models.ConsultationMinutes{}
	var keyPoints, actionItems []byte
	err := row.Scan(
		&m.ID,
		&m.RequestID,
		&m.Status,
		&m.Transcript,
		&m.Summary,
		&keyPoints,
		&actionItems,
		&m.Recommendations,
		&m.ProcessingError,
		&m.CreatedAt,
		&m.PublishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(keyPoints, &m.KeyPoints); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(actionItems, &m.ActionItems); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMinutes retrieves a pipeline run by ID.
func (s *PostgresStore) GetMinutes(ctx context.Context, id uuid.UUID) (*models.ConsultationMinutes, error) {
	return scanMinutes(s.pool.QueryRow(ctx, `
		SELECT `+minutesColumns+`
		FROM consultation_minutes WHERE id = $1
	`, id))
}

// LatestMinutesByRequest retrieves the most recent run for a request.
func (s *PostgresStore) LatestMinutesByRequest(ctx context.Context, requestID uuid.UUID) (*models.ConsultationMinutes, error) {
	return scanMinutes(s.pool.QueryRow(ctx, `
		SELECT `+minutesColumns+`
		FROM consultation_minutes
		WHERE request_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, requestID))
}

// TransitionMinutes performs a compare-and-swap status change.
func (s *PostgresStore) TransitionMinutes(ctx context.Context, id uuid.UUID, from, to models.MinutesStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE consultation_minutes
		SET status = $3
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetMinutesReady transitions processing -> ready with pipeline output.
func (s *PostgresStore) SetMinutesReady(ctx context.Context, id uuid.UUID, transcript, summary string, keyPoints []string, actionItems []models.ActionItem) (bool, error) {
	kp, err := json.Marshal(emptyIfNilStrings(keyPoints))
	if err != nil {
		return false, err
	}
	ai, err := json.Marshal(emptyIfNilItems(actionItems))
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE consultation_minutes
		SET status = 'ready', transcript = $2, summary = $3,
		    key_points = $4, action_items = $5
		WHERE id = $1 AND status = 'processing'
	`, id, transcript, summary, kp, ai)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetMinutesError moves a non-terminal run to error and clears content.
func (s *PostgresStore) SetMinutesError(ctx context.Context, id uuid.UUID, processingError string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE consultation_minutes
		SET status = 'error', processing_error = $2,
		    transcript = '', summary = '', key_points = '[]',
		    action_items = '[]', recommendations = ''
		WHERE id = $1 AND status IN ('queued', 'processing')
	`, id, processingError)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateMinutesContent edits summary/recommendations on a ready or
// published run.
func (s *PostgresStore) UpdateMinutesContent(ctx context.Context, id uuid.UUID, summary, recommendations *string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE consultation_minutes
		SET summary = COALESCE($2, summary),
		    recommendations = COALESCE($3, recommendations)
		WHERE id = $1 AND status IN ('ready', 'published')
	`, id, summary, recommendations)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// PublishMinutes transitions ready -> published.
func (s *PostgresStore) PublishMinutes(ctx context.Context, id uuid.UUID, publishedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE consultation_minutes
		SET status = 'published', published_at = $2
		WHERE id = $1 AND status = 'ready'
	`, id, publishedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func emptyIfNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyIfNilItems(s []models.ActionItem) []models.ActionItem {
	if s == nil {
		return []models.ActionItem{}
	}
	return s
}
