package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/models"
)

func TestPostRepository_SetOperations(t *testing.T) {
	ctx := context.Background()
	repo := NewStorePostRepository(backend.NewMemory())

	post := &models.Post{UID: "alice", Content: "hi"}
	require.NoError(t, repo.CreatePost(ctx, post))
	require.NotEmpty(t, post.ID)
	assert.False(t, post.CreatedAt.IsZero())

	require.NoError(t, repo.AddLike(ctx, post.ID, "bob"))
	require.NoError(t, repo.AddLike(ctx, post.ID, "bob"))
	require.NoError(t, repo.AppendComment(ctx, post.ID, models.Comment{ID: "c1", UID: "bob", Text: "same"}))
	require.NoError(t, repo.AppendComment(ctx, post.ID, models.Comment{ID: "c2", UID: "bob", Text: "same"}))

	got, err := repo.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, got.Likes)
	require.Len(t, got.Comments, 2)
	assert.Equal(t, "c1", got.Comments[0].ID)

	require.NoError(t, repo.RemoveLike(ctx, post.ID, "bob"))
	require.NoError(t, repo.UpdateContent(ctx, post.ID, "edited", nil))
	got, err = repo.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Likes)
	assert.Equal(t, "edited", got.Content)
	assert.Equal(t, []string{}, got.ImageURLs)

	require.NoError(t, repo.DeletePost(ctx, post.ID))
	_, err = repo.GetPostByID(ctx, post.ID)
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestUserRepository_DeviceTokens(t *testing.T) {
	ctx := context.Background()
	repo := NewStoreUserRepository(backend.NewMemory())

	require.NoError(t, repo.CreateUser(ctx, &models.User{UID: "alice", Name: "Alice"}))
	require.NoError(t, repo.AddDeviceToken(ctx, "alice", "t1"))
	require.NoError(t, repo.AddDeviceToken(ctx, "alice", "t2"))
	require.NoError(t, repo.AddDeviceToken(ctx, "alice", "t1"))
	require.NoError(t, repo.RemoveDeviceToken(ctx, "alice", "t2"))
	require.NoError(t, repo.SetField(ctx, "alice", "avatar", "a.png"))

	u, err := repo.GetUserByUID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, u.DeviceTokens)
	assert.Equal(t, "a.png", u.Avatar)

	assert.ErrorIs(t, repo.SetField(ctx, "nobody", "avatar", "x"), backend.ErrNotFound)
}

func TestNotificationRepository_LogOrder(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMemory()
	repo := NewStoreNotificationRepository(store)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var keys []string
	for i, actor := range []string{"Bob", "Carol", "Dan"} {
		key, err := repo.Append(ctx, "alice", models.Notification{
			ActorName: actor, Kind: models.NotificationLike, PostID: "p1",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		keys = append(keys, key)
	}
	assert.Less(t, keys[0], keys[2])

	require.NoError(t, repo.MarkSeen(ctx, "alice", keys[1]))
	require.NoError(t, repo.MarkDisplayed(ctx, "alice", keys[2]))

	snaps, err := store.Find(ctx, repo.ListQuery("alice"))
	require.NoError(t, err)
	items, err := backend.DecodeAll[models.Notification](snaps)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "Dan", items[0].ActorName)
	assert.True(t, items[0].Displayed)
	assert.True(t, items[1].Seen)
	assert.Equal(t, keys[2], items[0].Key)

	other, err := store.Find(ctx, repo.ListQuery("bob"))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSubscriptionRepository_FirstForUser(t *testing.T) {
	ctx := context.Background()
	repo := NewStoreSubscriptionRepository(backend.NewMemory())

	_, err := repo.FirstForUser(ctx, "alice")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	sub := &models.Subscription{UID: "alice", Package: models.TierStandard}
	require.NoError(t, repo.CreateSubscription(ctx, sub))
	require.NotEmpty(t, sub.ID)

	got, err := repo.FirstForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.TierStandard, got.Package)
	assert.Equal(t, sub.ID, got.ID)
}
