package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"streamhub/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *BadgerChatRepository {
	t.Helper()
	db, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerChatRepository(db)
}

var author = domain.Identity{UserID: "1", DisplayName: "alice", Role: domain.RoleViewer}

func TestBadgerChatRepository_RecentOldestFirst(t *testing.T) {
	req := require.New(t)
	repo := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := repo.AppendChatMessage(ctx, domain.ChatDraft{StreamID: "7", Author: author, Body: fmt.Sprint(i), Kind: domain.MessageKindText})
		req.NoError(err)
	}
	_, err := repo.AppendChatMessage(ctx, domain.ChatDraft{StreamID: "70", Author: author, Body: "other room", Kind: domain.MessageKindText})
	req.NoError(err)

	messages, err := repo.FetchRecentChatMessages(ctx, "7", 3)
	req.NoError(err)
	req.Len(messages, 3)
	assert.Equal(t, "4", messages[0].Message)
	assert.Equal(t, "6", messages[2].Message)
	for i := 1; i < len(messages); i++ {
		assert.True(t, messages[i].Timestamp.After(messages[i-1].Timestamp))
	}
	assert.Equal(t, domain.UserID("1"), messages[0].User.ID)
}

func TestBadgerChatRepository_SameInstantStaysOrdered(t *testing.T) {
	repo := openTestDB(t)
	frozen := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return frozen }
	ctx := context.Background()

	for _, body := range []string{"a", "b", "c"} {
		_, err := repo.AppendChatMessage(ctx, domain.ChatDraft{StreamID: "s", Author: author, Body: body, Kind: domain.MessageKindText})
		require.NoError(t, err)
	}

	messages, err := repo.FetchRecentChatMessages(ctx, "s", 50)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "a", messages[0].Message)
	assert.Equal(t, "c", messages[2].Message)
}

func TestBadgerChatRepository_EmptyStream(t *testing.T) {
	repo := openTestDB(t)

	messages, err := repo.FetchRecentChatMessages(context.Background(), "nobody", 50)
	require.NoError(t, err)
	assert.NotNil(t, messages)
	assert.Empty(t, messages)
}

func TestBadgerViewerCountRepository(t *testing.T) {
	db, err := Open("")
	require.NoError(t, err)
	defer db.Close()
	repo := NewBadgerViewerCountRepository(db)
	ctx := context.Background()

	count, err := repo.ViewerCount(ctx, "7")
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, repo.SetViewerCount(ctx, "7", 3))
	require.NoError(t, repo.SetViewerCount(ctx, "7", 2))
	count, err = repo.ViewerCount(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBadgerIdentityRepository(t *testing.T) {
	db, err := Open("")
	require.NoError(t, err)
	defer db.Close()
	repo := NewBadgerIdentityRepository(db)
	ctx := context.Background()

	_, err = repo.FindIdentityByID(ctx, "42")
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)

	want := domain.Identity{UserID: "42", DisplayName: "root", Email: "root@example.com", Role: domain.RoleAdmin}
	require.NoError(t, repo.PutIdentity(ctx, want))
	got, err := repo.FindIdentityByID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}
