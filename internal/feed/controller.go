// Package feed implements the paginated home feed: a chain of live page
// windows, newest first, extended at the tail when the last item is seen.
package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/common"
	"github.com/anonto42/nano-midea/client/internal/live"
	"github.com/anonto42/nano-midea/client/internal/logging"
	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

// DefaultPageSize is the number of posts per page.
const DefaultPageSize = 10

// State of a feed instance.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
	StateLoadingMore
	StateExhausted
	StateError
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateLoadingMore:
		return "loadingMore"
	case StateExhausted:
		return "exhausted"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON events.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// View is an immutable rendering of the feed.
type View struct {
	State   State         `json:"state"`
	Posts   []models.Post `json:"posts"`
	HasMore bool          `json:"hasMore"`
	Err     error         `json:"-"`
}

// page is one live window. Pages are never merged or deduplicated against
// each other: a post that crosses a page boundary while both windows are
// live can show up twice or not at all.
type page struct {
	sub    *live.Subscription
	posts  []models.Post
	last   backend.Snapshot
	loaded bool
	dead   bool
}

type Controller struct {
	ctx      context.Context
	store    backend.Store
	posts    repositories.PostRepository
	pageSize int
	log      logging.Logger
	onChange func(View)

	mu      sync.Mutex
	state   State
	pages   []*page
	hasMore bool
	err     error

	emitMu sync.Mutex
}

// NewController creates an idle feed. onChange, when set, receives a fresh
// View after every state change; it must not call LoadInitial, LoadMore,
// ItemVisible or Retry. Subscriptions live until Close or until ctx is
// cancelled.
func NewController(ctx context.Context, store backend.Store, posts repositories.PostRepository,
	pageSize int, log logging.Logger, onChange func(View)) *Controller {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Controller{
		ctx:      ctx,
		store:    store,
		posts:    posts,
		pageSize: pageSize,
		log:      log,
		onChange: onChange,
	}
}

// LoadInitial subscribes to the first page. Only valid from StateEmpty.
func (c *Controller) LoadInitial() bool {
	c.mu.Lock()
	if c.state != StateEmpty {
		c.mu.Unlock()
		return false
	}
	c.state = StateLoading
	c.openLocked(nil)
	c.mu.Unlock()

	c.emit()
	return true
}

// LoadMore subscribes to the page after the tail page's last document.
// It is a no-op unless the feed is Ready with more posts to fetch.
func (c *Controller) LoadMore() bool {
	c.mu.Lock()
	if c.state != StateReady || !c.hasMore {
		c.mu.Unlock()
		return false
	}
	tail := c.pages[len(c.pages)-1]
	c.state = StateLoadingMore
	c.openLocked(tail.last)
	n := len(c.pages)
	c.mu.Unlock()

	c.log.Debug(c.ctx, "feed page requested", "page", n)
	c.emit()
	return true
}

// ItemVisible reports that the item at index entered the viewport. Seeing
// the last rendered item is the only trigger for LoadMore.
func (c *Controller) ItemVisible(index int) bool {
	c.mu.Lock()
	n := c.countLocked()
	c.mu.Unlock()
	if n == 0 || index != n-1 {
		return false
	}
	return c.LoadMore()
}

// Retry drops every page and loads the feed again. Only valid from StateError.
func (c *Controller) Retry() bool {
	c.mu.Lock()
	if c.state != StateError {
		c.mu.Unlock()
		return false
	}
	old := c.resetLocked()
	c.mu.Unlock()

	dispose(old)
	return c.LoadInitial()
}

// View returns the current rendering.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Close disposes every page subscription.
func (c *Controller) Close() {
	c.mu.Lock()
	old := c.pages
	c.pages = nil
	for _, p := range old {
		p.dead = true
	}
	c.mu.Unlock()
	dispose(old)
}

func (c *Controller) openLocked(after backend.Snapshot) {
	p := &page{}
	c.pages = append(c.pages, p)
	q := c.posts.FeedQuery(c.pageSize, after)
	p.sub = live.WatchQuery(c.ctx, c.store, q,
		func(qs *backend.QuerySnapshot) { c.onPage(p, qs) },
		func(err error) { c.onPageError(p, err) })
}

func (c *Controller) onPage(p *page, qs *backend.QuerySnapshot) {
	posts, err := backend.DecodeAll[models.Post](qs.Docs)
	if err != nil {
		c.onPageError(p, err)
		return
	}

	c.mu.Lock()
	if p.dead {
		c.mu.Unlock()
		return
	}
	p.posts = posts
	p.loaded = true
	if n := len(qs.Docs); n > 0 {
		p.last = qs.Docs[n-1]
	}
	if p == c.pages[len(c.pages)-1] {
		c.hasMore = len(qs.Docs) >= c.pageSize
		switch c.state {
		case StateLoading, StateLoadingMore, StateReady, StateExhausted:
			c.state = StateExhausted
			if c.hasMore {
				c.state = StateReady
			}
		}
	}
	c.mu.Unlock()

	c.emit()
}

func (c *Controller) onPageError(p *page, err error) {
	c.mu.Lock()
	if p.dead {
		c.mu.Unlock()
		return
	}
	c.state = StateError
	c.err = fmt.Errorf("%w: feed page: %w", common.ErrFetchFailed, err)
	c.mu.Unlock()

	c.log.Warn(c.ctx, "feed subscription failed", "error", err)
	c.emit()
}

func (c *Controller) resetLocked() []*page {
	old := c.pages
	for _, p := range old {
		p.dead = true
	}
	c.pages = nil
	c.state = StateEmpty
	c.hasMore = false
	c.err = nil
	return old
}

func (c *Controller) countLocked() int {
	n := 0
	for _, p := range c.pages {
		n += len(p.posts)
	}
	return n
}

func (c *Controller) viewLocked() View {
	posts := make([]models.Post, 0, c.countLocked())
	for _, p := range c.pages {
		posts = append(posts, p.posts...)
	}
	return View{State: c.state, Posts: posts, HasMore: c.hasMore, Err: c.err}
}

// emit hands the latest view to onChange. Deliveries are serialized, so the
// last call always carries the newest state.
func (c *Controller) emit() {
	if c.onChange == nil {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.onChange(c.View())
}

func dispose(pages []*page) {
	for _, p := range pages {
		p.sub.Dispose()
	}
}
