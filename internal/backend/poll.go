package backend

import (
	"context"
	"reflect"
	"sync"
)

// mapSnapshot is the snapshot type of the stores that keep documents as
// field maps (memory, mongo). Its data map is never mutated after creation.
type mapSnapshot struct {
	id     string
	exists bool
	data   map[string]any
	decode func(data map[string]any, v any) error
}

func (s *mapSnapshot) ID() string   { return s.id }
func (s *mapSnapshot) Exists() bool { return s.exists }

func (s *mapSnapshot) DataTo(v any) error {
	if !s.exists {
		return ErrNotFound
	}
	return s.decode(s.data, v)
}

func (s *mapSnapshot) field(path string) any {
	if s == nil || s.data == nil {
		return nil
	}
	return s.data[path]
}

func sameSnapshot(a, b *mapSnapshot) bool {
	return a.id == b.id && a.exists == b.exists && reflect.DeepEqual(a.data, b.data)
}

func sameWindow(a, b []*mapSnapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameSnapshot(a[i], b[i]) {
			return false
		}
	}
	return true
}

// pollDocIterator turns a change signal plus a fetch into a DocumentIterator.
// It re-reads the document after every signal and only yields when the
// document actually changed.
type pollDocIterator struct {
	ctx      context.Context
	wait     func(ctx context.Context) error
	fetch    func(ctx context.Context) (*mapSnapshot, error)
	release  func()
	stopOnce sync.Once
	emitted  bool
	last     *mapSnapshot
}

func (it *pollDocIterator) Next() (Snapshot, error) {
	for {
		if it.ctx.Err() != nil {
			return nil, ErrStopped
		}
		if it.emitted {
			if err := it.wait(it.ctx); err != nil {
				return nil, stoppedOr(it.ctx, err)
			}
		}
		snap, err := it.fetch(it.ctx)
		if err != nil {
			return nil, stoppedOr(it.ctx, err)
		}
		if it.emitted && sameSnapshot(it.last, snap) {
			continue
		}
		it.emitted = true
		it.last = snap
		return snap, nil
	}
}

func (it *pollDocIterator) Stop() {
	it.stopOnce.Do(it.release)
}

// pollQueryIterator is the query counterpart of pollDocIterator. Added holds
// the documents whose ids were not in the previous emission.
type pollQueryIterator struct {
	ctx      context.Context
	wait     func(ctx context.Context) error
	fetch    func(ctx context.Context) ([]*mapSnapshot, error)
	release  func()
	stopOnce sync.Once
	emitted  bool
	last     []*mapSnapshot
}

func (it *pollQueryIterator) Next() (*QuerySnapshot, error) {
	for {
		if it.ctx.Err() != nil {
			return nil, ErrStopped
		}
		if it.emitted {
			if err := it.wait(it.ctx); err != nil {
				return nil, stoppedOr(it.ctx, err)
			}
		}
		docs, err := it.fetch(it.ctx)
		if err != nil {
			return nil, stoppedOr(it.ctx, err)
		}
		if it.emitted && sameWindow(it.last, docs) {
			continue
		}

		prev := make(map[string]struct{}, len(it.last))
		for _, d := range it.last {
			prev[d.id] = struct{}{}
		}
		qs := &QuerySnapshot{Docs: make([]Snapshot, 0, len(docs))}
		for _, d := range docs {
			qs.Docs = append(qs.Docs, d)
			if _, ok := prev[d.id]; !ok {
				qs.Added = append(qs.Added, d)
			}
		}
		it.emitted = true
		it.last = docs
		return qs, nil
	}
}

func (it *pollQueryIterator) Stop() {
	it.stopOnce.Do(it.release)
}

func stoppedOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrStopped
	}
	return err
}
