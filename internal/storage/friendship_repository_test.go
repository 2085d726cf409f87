package storage

import (
	"context"
	"testing"

	"diarylink/internal/models"

	"github.com/stretchr/testify/require"
)

func TestFriendshipRepositoryCreateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormFriendshipRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, models.NewFriendship("u1", "u2")))
	// Same pair again, opposite argument order. Must be a silent no-op.
	require.NoError(t, repo.Create(ctx, models.NewFriendship("u2", "u1")))

	var count int64
	require.NoError(t, db.Model(&models.Friendship{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestFriendshipRepositoryExists(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormFriendshipRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, models.NewFriendship("u1", "u2")))

	exists, err := repo.Exists(ctx, "u2", "u1")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = repo.Exists(ctx, "u1", "u3")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestFriendshipRepositoryRemove(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormFriendshipRepository(db)
	ctx := context.Background()

	friendship := models.NewFriendship("u1", "u2")
	require.NoError(t, repo.Create(ctx, friendship))

	removed, err := repo.Remove(ctx, friendship.PairID)
	require.NoError(t, err)
	require.True(t, removed)

	// Second removal finds nothing; the loser of a concurrent unfriend
	// race sees exactly this.
	removed, err = repo.Remove(ctx, friendship.PairID)
	require.NoError(t, err)
	require.False(t, removed)
}

func TestFriendshipRepositoryListFor(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormFriendshipRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, models.NewFriendship("u1", "u2")))
	require.NoError(t, repo.Create(ctx, models.NewFriendship("u3", "u1")))
	require.NoError(t, repo.Create(ctx, models.NewFriendship("u2", "u3")))

	list, err := repo.ListFor(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, f := range list {
		require.True(t, f.HasMember("u1"))
	}

	list, err = repo.ListFor(ctx, "u4")
	require.NoError(t, err)
	require.Empty(t, list)
}
