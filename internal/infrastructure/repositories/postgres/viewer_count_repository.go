package postgres

import (
	"context"
	"fmt"

	"streamhub/internal/core/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresViewerCountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresViewerCountRepository(pool *pgxpool.Pool) *PostgresViewerCountRepository {
	return &PostgresViewerCountRepository{pool: pool}
}

// SetViewerCount updates the stream row. Streams that were never created
// are left alone.
func (r *PostgresViewerCountRepository) SetViewerCount(ctx context.Context, streamID domain.StreamID, count int) error {
	if _, err := r.pool.Exec(ctx, `UPDATE streams SET viewer_count = $1 WHERE id = $2`, count, string(streamID)); err != nil {
		return fmt.Errorf("failed to update viewer count: %w", err)
	}
	return nil
}
