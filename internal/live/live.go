// Package live runs backend subscriptions as cancellable tasks.
//
// Every listener in the client is a *Subscription: a goroutine that drives a
// backend iterator and invokes callbacks in the order the backend delivers
// emissions. Owners must call Dispose on teardown; Active reports how many
// subscriptions are still open so leaks show up in tests.
package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/anonto42/nano-midea/client/internal/backend"
)

var active atomic.Int64

// Active returns the number of subscriptions that have not finished.
func Active() int64 { return active.Load() }

// Subscription is one running listener.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Dispose cancels the subscription and waits until its goroutine has
// returned. No callback runs after Dispose returns. Safe to call twice.
func (s *Subscription) Dispose() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed once the subscription has ended, either through Dispose or
// because the backend reported an error.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func start(parent context.Context, run func(ctx context.Context)) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	s := &Subscription{cancel: cancel, done: make(chan struct{})}
	active.Add(1)
	go func() {
		defer func() {
			active.Add(-1)
			close(s.done)
		}()
		run(ctx)
	}()
	return s
}

// WatchDocument subscribes to one document. onSnapshot receives the initial
// state (possibly non-existent) and then every change. A backend error ends
// the subscription after a single onError call.
func WatchDocument(ctx context.Context, store backend.Store, collection, id string,
	onSnapshot func(backend.Snapshot), onError func(error)) *Subscription {
	return start(ctx, func(ctx context.Context) {
		it := store.WatchDocument(ctx, collection, id)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				report(ctx, err, onError)
				return
			}
			onSnapshot(snap)
		}
	})
}

// WatchQuery subscribes to a query window. onSnapshot receives the full
// window on every change.
func WatchQuery(ctx context.Context, store backend.Store, q backend.Query,
	onSnapshot func(*backend.QuerySnapshot), onError func(error)) *Subscription {
	return start(ctx, func(ctx context.Context) {
		it := store.WatchQuery(ctx, q)
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err != nil {
				report(ctx, err, onError)
				return
			}
			onSnapshot(qs)
		}
	})
}

func report(ctx context.Context, err error, onError func(error)) {
	if ctx.Err() != nil || errors.Is(err, backend.ErrStopped) || errors.Is(err, context.Canceled) {
		return
	}
	if onError != nil {
		onError(err)
	}
}
