package backend

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store with the same semantics as the managed
// backends. Documents are kept as JSON-normalised field maps, so models must
// carry json tags matching their stored field names.
type Memory struct {
	mu       sync.Mutex
	colls    map[string]map[string]map[string]any
	watchers map[*memWatcher]struct{}
	fault    func(op, collection string) error
}

type memWatcher struct {
	collection string
	ch         chan struct{}
}

func (w *memWatcher) wait(ctx context.Context) error {
	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		colls:    make(map[string]map[string]map[string]any),
		watchers: make(map[*memWatcher]struct{}),
	}
}

// SetFault installs a hook consulted before every operation. A non-nil
// return aborts the operation with that error. Ops are get, set, add,
// update, delete, find and watch.
func (m *Memory) SetFault(f func(op, collection string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = f
}

func (m *Memory) checkFault(op, collection string) error {
	m.mu.Lock()
	f := m.fault
	m.mu.Unlock()
	if f == nil {
		return nil
	}
	return f(op, collection)
}

// Get retrieves a document by id
func (m *Memory) Get(ctx context.Context, collection, id string) (Snapshot, error) {
	if err := m.checkFault("get", collection); err != nil {
		return nil, err
	}
	snap := m.snapshot(collection, id)
	if !snap.exists {
		return nil, ErrNotFound
	}
	return snap, nil
}

// Set creates or fully replaces a document
func (m *Memory) Set(ctx context.Context, collection, id string, data any) error {
	if err := m.checkFault("set", collection); err != nil {
		return err
	}
	fields, err := normalizeMap(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.colls[collection] == nil {
		m.colls[collection] = make(map[string]map[string]any)
	}
	m.colls[collection][id] = fields
	m.notifyLocked(collection)
	return nil
}

// Add creates a document under a generated id
func (m *Memory) Add(ctx context.Context, collection string, data any) (string, error) {
	if err := m.checkFault("add", collection); err != nil {
		return "", err
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := m.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// Update applies field-level updates to an existing document
func (m *Memory) Update(ctx context.Context, collection, id string, updates []Update) error {
	if err := m.checkFault("update", collection); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.colls[collection][id]
	if !ok {
		return ErrNotFound
	}

	next := maps.Clone(doc)
	for _, u := range updates {
		switch v := u.Value.(type) {
		case arrayUnion:
			cur := cloneSlice(next[u.Path])
			for _, e := range v.elems {
				ne, err := normalizeValue(e)
				if err != nil {
					return err
				}
				if !containsDeep(cur, ne) {
					cur = append(cur, ne)
				}
			}
			next[u.Path] = cur
		case arrayRemove:
			cur := cloneSlice(next[u.Path])
			for _, e := range v.elems {
				ne, err := normalizeValue(e)
				if err != nil {
					return err
				}
				cur = slices.DeleteFunc(cur, func(x any) bool { return reflect.DeepEqual(x, ne) })
			}
			next[u.Path] = cur
		default:
			nv, err := normalizeValue(v)
			if err != nil {
				return err
			}
			next[u.Path] = nv
		}
	}
	m.colls[collection][id] = next
	m.notifyLocked(collection)
	return nil
}

// Delete removes a document; deleting a missing document is a no-op
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := m.checkFault("delete", collection); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.colls[collection][id]; ok {
		delete(m.colls[collection], id)
		m.notifyLocked(collection)
	}
	return nil
}

// Find runs a one-shot query
func (m *Memory) Find(ctx context.Context, q Query) ([]Snapshot, error) {
	if err := m.checkFault("find", q.Collection); err != nil {
		return nil, err
	}
	docs, err := m.evaluate(q)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out, nil
}

// WatchDocument subscribes to one document
func (m *Memory) WatchDocument(ctx context.Context, collection, id string) DocumentIterator {
	w := m.register(collection)
	return &pollDocIterator{
		ctx:  ctx,
		wait: w.wait,
		fetch: func(ctx context.Context) (*mapSnapshot, error) {
			if err := m.checkFault("watch", collection); err != nil {
				return nil, err
			}
			return m.snapshot(collection, id), nil
		},
		release: func() { m.unregister(w) },
	}
}

// WatchQuery subscribes to a query window
func (m *Memory) WatchQuery(ctx context.Context, q Query) QueryIterator {
	w := m.register(q.Collection)
	return &pollQueryIterator{
		ctx:  ctx,
		wait: w.wait,
		fetch: func(ctx context.Context) ([]*mapSnapshot, error) {
			if err := m.checkFault("watch", q.Collection); err != nil {
				return nil, err
			}
			return m.evaluate(q)
		},
		release: func() { m.unregister(w) },
	}
}

// Watchers reports the number of registered live listeners.
func (m *Memory) Watchers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

func (m *Memory) register(collection string) *memWatcher {
	w := &memWatcher{collection: collection, ch: make(chan struct{}, 1)}
	m.mu.Lock()
	m.watchers[w] = struct{}{}
	m.mu.Unlock()
	return w
}

func (m *Memory) unregister(w *memWatcher) {
	m.mu.Lock()
	delete(m.watchers, w)
	m.mu.Unlock()
}

func (m *Memory) notifyLocked(collection string) {
	for w := range m.watchers {
		if w.collection != collection {
			continue
		}
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
}

func (m *Memory) snapshot(collection, id string) *mapSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.colls[collection][id]
	return &mapSnapshot{id: id, exists: ok, data: doc, decode: jsonDecode}
}

func (m *Memory) evaluate(q Query) ([]*mapSnapshot, error) {
	var cursor *mapSnapshot
	if q.StartAfter != nil {
		c, ok := q.StartAfter.(*mapSnapshot)
		if !ok {
			return nil, fmt.Errorf("memory: cursor of type %T not supported", q.StartAfter)
		}
		cursor = c
	}

	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		v, err := normalizeValue(f.Value)
		if err != nil {
			return nil, err
		}
		filters[i] = Filter{Path: f.Path, Value: v}
	}

	m.mu.Lock()
	var out []*mapSnapshot
	for id, doc := range m.colls[q.Collection] {
		if matches(doc, filters) {
			out = append(out, &mapSnapshot{id: id, exists: true, data: doc, decode: jsonDecode})
		}
	}
	m.mu.Unlock()

	order := func(a, b *mapSnapshot) int {
		c := 0
		if q.OrderBy != "" {
			c = compareValues(a.field(q.OrderBy), b.field(q.OrderBy))
		}
		if c == 0 {
			c = strings.Compare(a.id, b.id)
		}
		if q.Desc {
			c = -c
		}
		return c
	}
	slices.SortFunc(out, order)

	if cursor != nil {
		out = slices.DeleteFunc(out, func(d *mapSnapshot) bool { return order(cursor, d) >= 0 })
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matches(doc map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !reflect.DeepEqual(doc[f.Path], f.Value) {
			return false
		}
	}
	return true
}

// compareValues orders JSON-normalised values. Strings that parse as
// RFC 3339 timestamps compare chronologically.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case nil:
		if b == nil {
			return 0
		}
		return -1
	case float64:
		bv, _ := b.(float64)
		return cmp.Compare(av, bv)
	case bool:
		bv, _ := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case string:
		bv, _ := b.(string)
		ta, errA := time.Parse(time.RFC3339Nano, av)
		tb, errB := time.Parse(time.RFC3339Nano, bv)
		if errA == nil && errB == nil {
			return ta.Compare(tb)
		}
		return strings.Compare(av, bv)
	}
	if b == nil {
		return 1
	}
	return 0
}

func normalizeMap(data any) (map[string]any, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("memory: encode document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("memory: document is not an object: %w", err)
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("memory: encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func jsonDecode(data map[string]any, v any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func cloneSlice(v any) []any {
	s, _ := v.([]any)
	return slices.Clone(s)
}

func containsDeep(s []any, v any) bool {
	return slices.ContainsFunc(s, func(x any) bool { return reflect.DeepEqual(x, v) })
}
