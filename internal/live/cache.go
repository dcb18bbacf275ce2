package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/common"
)

// Document keeps the latest decoded snapshot of one document.
type Document[T any] struct {
	mu     sync.RWMutex
	value  *T
	exists bool
	loaded bool
	err    error
	sub    *Subscription
}

// OpenDocument subscribes to collection/id and decodes each emission into T.
// onChange, when set, runs after every update of the cached state; value is
// nil when the document does not exist. Subscription errors are reported as
// common.ErrFetchFailed.
func OpenDocument[T any](ctx context.Context, store backend.Store, collection, id string,
	onChange func(value *T, err error)) *Document[T] {
	d := &Document[T]{}
	d.sub = WatchDocument(ctx, store, collection, id,
		func(snap backend.Snapshot) {
			var (
				v   *T
				err error
			)
			if snap.Exists() {
				v, err = backend.Decode[T](snap)
				if err != nil {
					err = fmt.Errorf("%w: decode %s/%s: %w", common.ErrFetchFailed, collection, id, err)
				}
			}
			d.set(v, snap.Exists(), err)
			if onChange != nil {
				onChange(v, err)
			}
		},
		func(err error) {
			err = fmt.Errorf("%w: %s/%s: %w", common.ErrFetchFailed, collection, id, err)
			d.set(nil, false, err)
			if onChange != nil {
				onChange(nil, err)
			}
		})
	return d
}

func (d *Document[T]) set(v *T, exists bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = true
	d.err = err
	if err != nil {
		return
	}
	d.value = v
	d.exists = exists
}

// Get returns the latest value, whether the document exists, and whether
// the first emission has arrived.
func (d *Document[T]) Get() (value *T, exists, loaded bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.value, d.exists, d.loaded
}

// Err returns the subscription error, if any.
func (d *Document[T]) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

// Close disposes the underlying subscription.
func (d *Document[T]) Close() { d.sub.Dispose() }

// Scope owns the subscriptions of one UI unit, at most one per key.
type Scope struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

func NewScope() *Scope {
	return &Scope{subs: make(map[string]*Subscription)}
}

// Replace disposes the subscription registered under key, if any, and only
// then opens a new one with open. It returns false when the scope is closed.
func (s *Scope) Replace(key string, open func() *Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if prev, ok := s.subs[key]; ok {
		prev.Dispose()
		delete(s.subs, key)
	}
	s.subs[key] = open()
	return true
}

// Release disposes the subscription registered under key.
func (s *Scope) Release(key string) {
	s.mu.Lock()
	prev, ok := s.subs[key]
	delete(s.subs, key)
	s.mu.Unlock()
	if ok {
		prev.Dispose()
	}
}

// Len returns the number of registered subscriptions.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close disposes every subscription; later Replace calls are refused.
func (s *Scope) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]*Subscription)
	s.closed = true
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Dispose()
	}
}
