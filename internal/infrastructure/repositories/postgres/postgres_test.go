package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"streamhub/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestPool connects to STREAMHUB_TEST_POSTGRES_DSN; the tests are
// skipped without it.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("STREAMHUB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STREAMHUB_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, dsn, 4, true, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresIdentityRepository(t *testing.T) {
	pool := openTestPool(t)
	repo := NewPostgresIdentityRepository(pool)
	ctx := context.Background()

	id := domain.UserID(uuid.NewString())
	require.NoError(t, repo.PutIdentity(ctx, domain.Identity{UserID: id, DisplayName: "olga", Email: "olga@example.com", Role: domain.RoleOperator}))

	identity, err := repo.FindIdentityByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "olga", identity.DisplayName)
	assert.Equal(t, domain.RoleOperator, identity.Role)

	_, err = pool.Exec(ctx, `UPDATE users SET is_active = FALSE WHERE id = $1`, string(id))
	require.NoError(t, err)
	_, err = repo.FindIdentityByID(ctx, id)
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)
}

func TestPostgresChatRepository_RecentOldestFirst(t *testing.T) {
	pool := openTestPool(t)
	identities := NewPostgresIdentityRepository(pool)
	chat := NewPostgresChatRepository(pool)
	ctx := context.Background()

	author := domain.Identity{UserID: domain.UserID(uuid.NewString()), DisplayName: "bob", Role: domain.RoleViewer}
	require.NoError(t, identities.PutIdentity(ctx, author))
	room := domain.StreamID("pg-" + uuid.NewString()[:8])

	for i := 0; i < 5; i++ {
		_, err := chat.AppendChatMessage(ctx, domain.ChatDraft{StreamID: room, Author: author, Body: fmt.Sprint(i), Kind: domain.MessageKindText})
		require.NoError(t, err)
	}

	messages, err := chat.FetchRecentChatMessages(ctx, room, 3)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, []string{"2", "3", "4"}, []string{messages[0].Message, messages[1].Message, messages[2].Message})
	assert.Equal(t, "bob", messages[0].User.DisplayName)
}

func TestPostgresViewerCountRepository(t *testing.T) {
	pool := openTestPool(t)
	repo := NewPostgresViewerCountRepository(pool)
	ctx := context.Background()

	room := uuid.NewString()
	_, err := pool.Exec(ctx, `INSERT INTO streams (id) VALUES ($1)`, room)
	require.NoError(t, err)

	require.NoError(t, repo.SetViewerCount(ctx, domain.StreamID(room), 4))
	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT viewer_count FROM streams WHERE id = $1`, room).Scan(&count))
	assert.Equal(t, 4, count)

	assert.NoError(t, repo.SetViewerCount(ctx, "missing-stream", 1))
}
