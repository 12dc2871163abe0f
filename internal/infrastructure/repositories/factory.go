package repositories

import (
	"context"
	"errors"
	"fmt"

	"streamhub/internal/core/domain"
	"streamhub/internal/core/ports"
	badgerrepo "streamhub/internal/infrastructure/repositories/badger"
	"streamhub/internal/infrastructure/repositories/memory"
	pgrepo "streamhub/internal/infrastructure/repositories/postgres"
	redisrepo "streamhub/internal/infrastructure/repositories/redis"
	"streamhub/pkg/config"

	"github.com/dgraph-io/badger/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IdentityRepository is an identity store that can also be seeded.
type IdentityRepository interface {
	ports.IdentityStore
	PutIdentity(ctx context.Context, identity domain.Identity) error
}

// RepositoryFactory opens the configured storage backend and hands out the
// three stores the realtime layer needs. A backend that cannot be reached
// falls back to memory so the server still starts.
type RepositoryFactory struct {
	driver string
	logger *zap.SugaredLogger

	redisClient *redis.Client
	pool        *pgxpool.Pool
	badgerDB    *badger.DB

	identities IdentityRepository
	chat       ports.ChatHistoryStore
	viewers    ports.ViewerCountStore
}

func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	f := &RepositoryFactory{driver: cfg.Storage.Driver, logger: logger}

	// the notification bus needs redis even when chat lives elsewhere
	if cfg.Redis.Enabled || f.driver == "redis" {
		client, err := redisrepo.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis", "address", cfg.Redis.Address, "error", err)
		} else {
			f.redisClient = client
		}
	}

	switch f.driver {
	case "redis":
		if f.redisClient != nil {
			f.identities = redisrepo.NewRedisIdentityRepository(f.redisClient)
			f.chat = redisrepo.NewRedisChatRepository(f.redisClient, 0)
			f.viewers = redisrepo.NewRedisViewerCountRepository(f.redisClient)
		}
	case "postgres":
		pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.Migrate, logger)
		if err != nil {
			logger.Warnw("failed to connect to Postgres", "error", err)
			break
		}
		f.pool = pool
		f.identities = pgrepo.NewPostgresIdentityRepository(pool)
		f.chat = pgrepo.NewPostgresChatRepository(pool)
		f.viewers = pgrepo.NewPostgresViewerCountRepository(pool)
	case "badger":
		db, err := badgerrepo.Open(cfg.Storage.BadgerPath)
		if err != nil {
			logger.Warnw("failed to open badger", "path", cfg.Storage.BadgerPath, "error", err)
			break
		}
		f.badgerDB = db
		f.identities = badgerrepo.NewBadgerIdentityRepository(db)
		f.chat = badgerrepo.NewBadgerChatRepository(db)
		f.viewers = badgerrepo.NewBadgerViewerCountRepository(db)
	}

	if f.chat == nil {
		if f.driver != "memory" {
			logger.Warnw("falling back to memory repositories", "driver", f.driver)
		}
		f.driver = "memory"
		f.identities = memory.NewMemoryIdentityRepository()
		f.chat = memory.NewMemoryChatRepository()
		f.viewers = memory.NewMemoryViewerCountRepository()
	}
	logger.Infow("using repositories", "driver", f.driver)

	if err := f.seed(ctx, cfg); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) seed(ctx context.Context, cfg *config.Config) error {
	for _, s := range cfg.Storage.Seed {
		identity := domain.Identity{
			UserID:      domain.UserID(s.ID),
			DisplayName: s.DisplayName,
			Email:       s.Email,
			Role:        domain.Role(s.Role),
		}
		if err := f.identities.PutIdentity(ctx, identity); err != nil {
			return fmt.Errorf("seed identity %s: %w", s.ID, err)
		}
	}
	if n := len(cfg.Storage.Seed); n > 0 {
		f.logger.Infow("seeded identities", "count", n)
	}
	return nil
}

func (f *RepositoryFactory) Driver() string                           { return f.driver }
func (f *RepositoryFactory) IdentityStore() IdentityRepository        { return f.identities }
func (f *RepositoryFactory) ChatStore() ports.ChatHistoryStore        { return f.chat }
func (f *RepositoryFactory) ViewerCountStore() ports.ViewerCountStore { return f.viewers }

// RedisClient is nil unless Redis was enabled and reachable.
func (f *RepositoryFactory) RedisClient() *redis.Client { return f.redisClient }

func (f *RepositoryFactory) Close() error {
	var errs []error
	if f.redisClient != nil {
		errs = append(errs, redisrepo.CloseRedisClient(f.redisClient))
	}
	if f.pool != nil {
		f.pool.Close()
	}
	if f.badgerDB != nil {
		errs = append(errs, f.badgerDB.Close())
	}
	return errors.Join(errs...)
}

// HealthCheck pings whichever backends are open.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		if err := f.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if f.pool != nil {
		if err := f.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if f.badgerDB != nil && f.badgerDB.IsClosed() {
		return errors.New("badger: database is closed")
	}
	return nil
}
