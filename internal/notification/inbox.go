package notification

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/common"
	"github.com/anonto42/nano-midea/client/internal/live"
	"github.com/anonto42/nano-midea/client/internal/logging"
	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

// ShownSet remembers which log keys were already alerted in this process.
// It is shared by every inbox so a remounted inbox does not alert again.
type ShownSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewShownSet() *ShownSet {
	return &ShownSet{keys: make(map[string]struct{})}
}

// Add records key and reports whether it was new.
func (s *ShownSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// InboxView is the bell dropdown rendering.
type InboxView struct {
	Notifications []models.Notification `json:"notifications"`
	Unseen        int                   `json:"unseen"`
	Badge         string                `json:"badge"`
	Err           error                 `json:"-"`
}

// Inbox is the read side of one user's notification log.
type Inbox struct {
	ctx      context.Context
	store    backend.Store
	repo     repositories.NotificationRepository
	uid      string
	shown    *ShownSet
	toaster  *Toaster
	log      logging.Logger
	onChange func(InboxView)
	scope    *live.Scope

	mu    sync.Mutex
	items []models.Notification
	err   error
}

func NewInbox(ctx context.Context, store backend.Store, repo repositories.NotificationRepository,
	uid string, shown *ShownSet, toaster *Toaster, log logging.Logger, onChange func(InboxView)) *Inbox {
	return &Inbox{
		ctx:      ctx,
		store:    store,
		repo:     repo,
		uid:      uid,
		shown:    shown,
		toaster:  toaster,
		log:      log.With("uid", uid),
		onChange: onChange,
		scope:    live.NewScope(),
	}
}

// Start opens the list subscription and the append subscription.
func (i *Inbox) Start() {
	i.scope.Replace("list", func() *live.Subscription {
		return live.WatchQuery(i.ctx, i.store, i.repo.ListQuery(i.uid), i.onList, i.onError)
	})
	i.scope.Replace("appends", func() *live.Subscription {
		return live.WatchQuery(i.ctx, i.store, i.repo.AppendsQuery(i.uid), i.onAppends, i.onError)
	})
}

// Close disposes both subscriptions.
func (i *Inbox) Close() { i.scope.Close() }

func (i *Inbox) onList(qs *backend.QuerySnapshot) {
	items, err := backend.DecodeAll[models.Notification](qs.Docs)
	if err != nil {
		i.onError(err)
		return
	}
	i.mu.Lock()
	i.items = items
	i.err = nil
	i.mu.Unlock()
	i.emit()
}

// onAppends alerts each newly added entry that was neither seen nor
// displayed, at most once per key, then persists the displayed flag.
func (i *Inbox) onAppends(qs *backend.QuerySnapshot) {
	for _, snap := range qs.Added {
		n, err := backend.Decode[models.Notification](snap)
		if err != nil {
			i.log.Warn(i.ctx, "undecodable notification", "key", snap.ID(), "error", err)
			continue
		}
		if n.Seen || n.Displayed || !i.shown.Add(n.Key) {
			continue
		}

		i.toaster.Show(Alert{Key: n.Key, Message: n.Message(), PostID: n.PostID})
		if err := i.repo.MarkDisplayed(i.ctx, i.uid, n.Key); err != nil {
			i.log.Warn(i.ctx, "could not mark notification displayed", "key", n.Key, "error", err)
		}
	}
}

func (i *Inbox) onError(err error) {
	i.mu.Lock()
	i.err = fmt.Errorf("%w: notifications: %w", common.ErrFetchFailed, err)
	i.mu.Unlock()
	i.log.Warn(i.ctx, "notification subscription failed", "error", err)
	i.emit()
}

// Open marks the entry seen and returns the related post id. The local list
// is updated at once so the badge is right before the next emission.
func (i *Inbox) Open(ctx context.Context, key string) (string, error) {
	i.mu.Lock()
	idx := -1
	for n := range i.items {
		if i.items[n].Key == key {
			idx = n
			break
		}
	}
	if idx < 0 {
		i.mu.Unlock()
		return "", fmt.Errorf("%w: unknown notification %s", common.ErrInvalidInput, key)
	}
	items := make([]models.Notification, len(i.items))
	copy(items, i.items)
	items[idx].Seen = true
	i.items = items
	postID := items[idx].PostID
	i.mu.Unlock()
	i.emit()

	if err := i.repo.MarkSeen(ctx, i.uid, key); err != nil {
		return postID, fmt.Errorf("%w: mark seen: %w", common.ErrWriteFailed, err)
	}
	return postID, nil
}

// UnseenCount counts entries not opened yet.
func (i *Inbox) UnseenCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return unseen(i.items)
}

// View returns the current rendering.
func (i *Inbox) View() InboxView {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := unseen(i.items)
	return InboxView{
		Notifications: i.items,
		Unseen:        n,
		Badge:         Badge(n),
		Err:           i.err,
	}
}

func (i *Inbox) emit() {
	if i.onChange != nil {
		i.onChange(i.View())
	}
}

// Badge renders the unseen count; empty means no badge.
func Badge(unseen int) string {
	if unseen <= 0 {
		return ""
	}
	return strconv.Itoa(unseen)
}

func unseen(items []models.Notification) int {
	n := 0
	for _, it := range items {
		if !it.Seen {
			n++
		}
	}
	return n
}
