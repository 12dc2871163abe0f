package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"streamhub/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	migrationLockTTL     = 30 * time.Second
	migrationLockTimeout = 10 * time.Second
)

// Migration is one versioned change to the key layout.
type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client) error
}

var migrations = []Migration{
	{
		// chat ids are allocated with INCR; start the counter explicitly so
		// a restored snapshot never hands out ids that already exist.
		Version: 1,
		Up: func(ctx context.Context, client *redis.Client) error {
			return client.SetNX(ctx, chatSeqKey, 0, 0).Err()
		},
	},
}

// Migrate runs every migration newer than the stored schema version. It
// holds a lock so concurrently starting instances apply each one once.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	return distributed.WithLock(ctx, client, migrationLockKey, migrationLockTTL, migrationLockTimeout, func(ctx context.Context) error {
		return migrate(ctx, client, logger)
	})
}

func migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	current, err := schemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if logger != nil {
			logger.Infow("running migration", "version", m.Version)
		}
		if err := m.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if err := client.Set(ctx, schemaVersionKey, m.Version, 0).Err(); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
		current = m.Version
	}

	if logger != nil {
		logger.Infow("schema is up to date", "version", current)
	}
	return nil
}

func schemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	v, err := client.Get(ctx, schemaVersionKey).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}
