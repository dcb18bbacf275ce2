package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/common"
	"github.com/anonto42/nano-midea/client/internal/live"
	"github.com/anonto42/nano-midea/client/internal/logging"
	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// seedPosts writes p01..pNN, pNN being the newest.
func seedPosts(t *testing.T, store backend.Store, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		require.NoError(t, store.Set(context.Background(), "posts", postID(i), models.Post{
			UID:       "author",
			Content:   fmt.Sprintf("post %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Likes:     []string{},
			Comments:  []models.Comment{},
		}))
	}
}

func postID(i int) string { return fmt.Sprintf("p%02d", i) }

func ids(posts []models.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func expectIDs(from, to int) []string {
	var out []string
	for i := from; i >= to; i-- {
		out = append(out, postID(i))
	}
	return out
}

func newController(t *testing.T, store backend.Store) *Controller {
	t.Helper()
	c := NewController(context.Background(), store, repositories.NewStorePostRepository(store),
		DefaultPageSize, logging.Discard(), nil)
	t.Cleanup(c.Close)
	return c
}

func waitFor(t *testing.T, c *Controller, cond func(View) bool) View {
	t.Helper()
	require.Eventually(t, func() bool { return cond(c.View()) }, 2*time.Second, 5*time.Millisecond)
	return c.View()
}

func settled(n int) func(View) bool {
	return func(v View) bool {
		return (v.State == StateReady || v.State == StateExhausted) && len(v.Posts) == n
	}
}

func TestController_PaginatesUntilExhausted(t *testing.T) {
	store := backend.NewMemory()
	seedPosts(t, store, 25)
	before := live.Active()
	c := newController(t, store)

	assert.Equal(t, StateEmpty, c.View().State)
	assert.False(t, c.LoadMore(), "loadMore before loadInitial")

	require.True(t, c.LoadInitial())
	assert.False(t, c.LoadInitial())
	v := waitFor(t, c, settled(10))
	assert.Equal(t, StateReady, v.State)
	assert.True(t, v.HasMore)
	assert.Equal(t, expectIDs(25, 16), ids(v.Posts))

	require.True(t, c.LoadMore())
	v = waitFor(t, c, settled(20))
	assert.Equal(t, StateReady, v.State)
	assert.True(t, v.HasMore)
	assert.Equal(t, expectIDs(25, 6), ids(v.Posts))

	require.True(t, c.LoadMore())
	v = waitFor(t, c, settled(25))
	assert.Equal(t, StateExhausted, v.State)
	assert.False(t, v.HasMore)
	assert.Equal(t, expectIDs(25, 1), ids(v.Posts))

	assert.False(t, c.LoadMore())
	assert.Len(t, c.View().Posts, 25)
	assert.Equal(t, before+3, live.Active())

	c.Close()
	assert.Equal(t, before, live.Active())
}

func TestController_LoadMoreOnlyFromLastVisibleItem(t *testing.T) {
	store := backend.NewMemory()
	seedPosts(t, store, 15)
	c := newController(t, store)

	c.LoadInitial()
	waitFor(t, c, settled(10))

	assert.False(t, c.ItemVisible(3))
	assert.False(t, c.ItemVisible(10))
	assert.True(t, c.ItemVisible(9))
	v := waitFor(t, c, settled(15))
	assert.Equal(t, StateExhausted, v.State)
}

func TestController_FirstPageIsLive(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMemory()
	seedPosts(t, store, 3)
	c := newController(t, store)

	c.LoadInitial()
	waitFor(t, c, settled(3))

	require.NoError(t, store.Update(ctx, "posts", postID(2), []backend.Update{{Path: "content", Value: "edited"}}))
	v := waitFor(t, c, func(v View) bool { return len(v.Posts) == 3 && v.Posts[1].Content == "edited" })
	assert.Equal(t, postID(2), v.Posts[1].ID)

	require.NoError(t, store.Delete(ctx, "posts", postID(3)))
	v = waitFor(t, c, settled(2))
	assert.Equal(t, expectIDs(2, 1), ids(v.Posts))
}

// A post created at the head pushes the oldest post of page one past the
// boundary the second page was fetched from, so it is shown zero times.
func TestController_HeadInsertSkipsBoundaryPost(t *testing.T) {
	store := backend.NewMemory()
	seedPosts(t, store, 25)
	c := newController(t, store)

	c.LoadInitial()
	waitFor(t, c, settled(10))
	c.LoadMore()
	waitFor(t, c, settled(20))

	require.NoError(t, store.Set(context.Background(), "posts", "fresh", models.Post{
		UID: "author", CreatedAt: base.Add(time.Hour), Likes: []string{}, Comments: []models.Comment{},
	}))
	v := waitFor(t, c, func(v View) bool { return len(v.Posts) == 20 && v.Posts[0].ID == "fresh" })

	assert.NotContains(t, ids(v.Posts), postID(16))
	assert.Equal(t, postID(17), v.Posts[9].ID)
	assert.Equal(t, postID(15), v.Posts[10].ID)
}

// Deleting from page one pulls the first post of page two into page one's
// window while page two still holds it, so it is shown twice.
func TestController_DeleteDuplicatesBoundaryPost(t *testing.T) {
	store := backend.NewMemory()
	seedPosts(t, store, 25)
	c := newController(t, store)

	c.LoadInitial()
	waitFor(t, c, settled(10))
	c.LoadMore()
	waitFor(t, c, settled(20))

	require.NoError(t, store.Delete(context.Background(), "posts", postID(20)))
	v := waitFor(t, c, func(v View) bool {
		return len(v.Posts) == 20 && !containsID(v.Posts, postID(20))
	})

	count := 0
	for _, id := range ids(v.Posts) {
		if id == postID(15) {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestController_ErrorAndRetry(t *testing.T) {
	store := backend.NewMemory()
	seedPosts(t, store, 5)
	store.SetFault(func(op, _ string) error {
		if op == "watch" {
			return errors.New("offline")
		}
		return nil
	})
	c := newController(t, store)

	assert.False(t, c.Retry(), "retry outside the error state")
	c.LoadInitial()
	v := waitFor(t, c, func(v View) bool { return v.State == StateError })
	assert.ErrorIs(t, v.Err, common.ErrFetchFailed)
	assert.False(t, c.LoadMore())

	store.SetFault(nil)
	require.True(t, c.Retry())
	v = waitFor(t, c, settled(5))
	assert.Equal(t, StateExhausted, v.State)
	assert.NoError(t, v.Err)
}

func TestController_OnChangeReceivesViews(t *testing.T) {
	store := backend.NewMemory()
	seedPosts(t, store, 2)
	views := make(chan View, 16)
	c := NewController(context.Background(), store, repositories.NewStorePostRepository(store),
		DefaultPageSize, logging.Discard(), func(v View) { views <- v })
	defer c.Close()

	c.LoadInitial()
	require.Eventually(t, func() bool {
		select {
		case v := <-views:
			return v.State == StateExhausted && len(v.Posts) == 2
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func containsID(posts []models.Post, id string) bool {
	for _, p := range posts {
		if p.ID == id {
			return true
		}
	}
	return false
}
