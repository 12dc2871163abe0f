package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Only the tables the realtime layer reads or writes. Account and stream
// management own the rest of the schema; every statement is a no-op
// against a database they already created.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		username   TEXT NOT NULL,
		email      TEXT NOT NULL DEFAULT '',
		role       TEXT NOT NULL DEFAULT 'viewer',
		is_active  BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS streams (
		id           TEXT PRIMARY KEY,
		viewer_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id           BIGSERIAL PRIMARY KEY,
		stream_id    TEXT NOT NULL,
		user_id      TEXT NOT NULL REFERENCES users(id),
		message      TEXT NOT NULL,
		message_type TEXT NOT NULL DEFAULT 'text',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_stream_created_idx
		ON chat_messages (stream_id, created_at DESC, id DESC)`,
}

func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.SugaredLogger) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	if logger != nil {
		logger.Infow("postgres schema is up to date", "statements", len(migrations))
	}
	return nil
}
