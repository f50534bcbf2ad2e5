package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgSchema is the full PostgreSQL schema. Statements are idempotent so
// migrations can run on every boot.
const pgSchema = `
CREATE TABLE IF NOT EXISTS consultation_requests (
	id UUID PRIMARY KEY,
	client_id UUID NOT NULL,
	advisor_id UUID NOT NULL,
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
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_requests_advisor
	ON consultation_requests (advisor_id, requested_date);
CREATE INDEX IF NOT EXISTS idx_requests_client
	ON consultation_requests (client_id);

CREATE TABLE IF NOT EXISTS channels (
	id UUID PRIMARY KEY,
	request_id UUID NOT NULL UNIQUE REFERENCES consultation_requests(id),
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	channel_id UUID NOT NULL REFERENCES channels(id),
	sender_id UUID NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT 'text',
	file_url TEXT NOT NULL DEFAULT '',
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	read_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_messages_channel
	ON messages (channel_id, created_at, id);

CREATE TABLE IF NOT EXISTS consultation_minutes (
	id UUID PRIMARY KEY,
	request_id UUID NOT NULL REFERENCES consultation_requests(id),
	status TEXT NOT NULL DEFAULT 'queued',
	transcript TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	key_points JSONB NOT NULL DEFAULT '[]',
	action_items JSONB NOT NULL DEFAULT '[]',
	recommendations TEXT NOT NULL DEFAULT '',
	processing_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	published_at TIMESTAMPTZ
);

-- At most one non-terminal run per request.
CREATE UNIQUE INDEX IF NOT EXISTS idx_minutes_active
	ON consultation_minutes (request_id)
	WHERE status IN ('queued', 'processing');

CREATE INDEX IF NOT EXISTS idx_minutes_request
	ON consultation_minutes (request_id, created_at);
`

// RunMigrations applies the schema to the PostgreSQL database.
func RunMigrations(databaseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	_, err = pool.Exec(ctx, pgSchema)
	return err
}
