package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Likes     []string  `json:"likes"`
	CreatedAt time.Time `json:"createdAt"`
}

func (d *doc) SetKey(id string) { d.ID = id }

func seed(t *testing.T, m *Memory, n int) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		err := m.Set(context.Background(), "docs", fmt.Sprintf("d%02d", i), doc{
			Owner:     "o",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
}

func TestMemory_GetMissing(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "docs", "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	err = m.Update(context.Background(), "docs", "nope", []Update{{Path: "owner", Value: "x"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ArrayUnionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "docs", "a", doc{Owner: "o"}))

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Update(ctx, "docs", "a", []Update{{Path: "likes", Value: ArrayUnion("u1")}}))
	}
	require.NoError(t, m.Update(ctx, "docs", "a", []Update{{Path: "likes", Value: ArrayUnion("u2")}}))

	snap, err := m.Get(ctx, "docs", "a")
	require.NoError(t, err)
	d, err := Decode[doc](snap)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, d.Likes)
	assert.Equal(t, "a", d.ID)

	require.NoError(t, m.Update(ctx, "docs", "a", []Update{{Path: "likes", Value: ArrayRemove("u1")}}))
	require.NoError(t, m.Update(ctx, "docs", "a", []Update{{Path: "likes", Value: ArrayRemove("u1")}}))

	snap, err = m.Get(ctx, "docs", "a")
	require.NoError(t, err)
	d, err = Decode[doc](snap)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, d.Likes)
}

func TestMemory_FindOrdersAndPages(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seed(t, m, 25)

	q := Query{Collection: "docs", OrderBy: "createdAt", Desc: true, Limit: 10}
	page1, err := m.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, page1, 10)
	assert.Equal(t, "d25", page1[0].ID())
	assert.Equal(t, "d16", page1[9].ID())

	q.StartAfter = page1[9]
	page2, err := m.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, page2, 10)
	assert.Equal(t, "d15", page2[0].ID())

	q.StartAfter = page2[9]
	page3, err := m.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, page3, 5)
	assert.Equal(t, "d01", page3[4].ID())
}

func TestMemory_FindFilters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "docs", "a", doc{Owner: "x"}))
	require.NoError(t, m.Set(ctx, "docs", "b", doc{Owner: "y"}))

	got, err := m.Find(ctx, Query{Collection: "docs", Filters: []Filter{{Path: "owner", Value: "y"}}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID())
}

func TestMemory_WatchDocumentEmitsInitialAndChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMemory()

	it := m.WatchDocument(ctx, "docs", "a")
	defer it.Stop()

	snap, err := it.Next()
	require.NoError(t, err)
	assert.False(t, snap.Exists())

	require.NoError(t, m.Set(ctx, "docs", "a", doc{Owner: "o"}))
	snap, err = it.Next()
	require.NoError(t, err)
	assert.True(t, snap.Exists())

	require.NoError(t, m.Delete(ctx, "docs", "a"))
	snap, err = it.Next()
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}

func TestMemory_WatchQueryReportsAdded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMemory()
	seed(t, m, 2)

	it := m.WatchQuery(ctx, Query{Collection: "docs", OrderBy: "createdAt"})
	defer it.Stop()

	qs, err := it.Next()
	require.NoError(t, err)
	assert.Len(t, qs.Docs, 2)
	assert.Len(t, qs.Added, 2)

	require.NoError(t, m.Set(ctx, "docs", "d03", doc{CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}))
	qs, err = it.Next()
	require.NoError(t, err)
	assert.Len(t, qs.Docs, 3)
	require.Len(t, qs.Added, 1)
	assert.Equal(t, "d03", qs.Added[0].ID())

	require.NoError(t, m.Update(ctx, "docs", "d01", []Update{{Path: "owner", Value: "z"}}))
	qs, err = it.Next()
	require.NoError(t, err)
	assert.Empty(t, qs.Added)
}

func TestMemory_WatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemory()

	it := m.WatchQuery(ctx, Query{Collection: "docs"})
	_, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, m.Watchers())

	cancel()
	_, err = it.Next()
	assert.ErrorIs(t, err, ErrStopped)

	it.Stop()
	it.Stop()
	assert.Equal(t, 0, m.Watchers())
}

func TestMemory_FaultHook(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")
	m.SetFault(func(op, collection string) error {
		if op == "set" {
			return boom
		}
		return nil
	})

	assert.ErrorIs(t, m.Set(ctx, "docs", "a", doc{}), boom)
	_, err := m.Find(ctx, Query{Collection: "docs"})
	assert.NoError(t, err)
}
