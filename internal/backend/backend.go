// Package backend abstracts the managed document store the client syncs
// against: keyed documents, field-level set updates, and live subscriptions
// to single documents or ordered query windows.
package backend

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get and Update when the document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrStopped is returned by an iterator's Next once it has been stopped
	// or its context has been cancelled.
	ErrStopped = errors.New("iterator stopped")
)

// Snapshot is the decoded state of one document at one point in time.
type Snapshot interface {
	ID() string
	Exists() bool
	DataTo(v any) error
}

// QuerySnapshot is one emission of a live query: the full current window and
// the documents that entered it since the previous emission.
type QuerySnapshot struct {
	Docs  []Snapshot
	Added []Snapshot
}

// Filter is an equality constraint on a top-level field.
type Filter struct {
	Path  string
	Value any
}

// Query selects an ordered, limited window of a collection.
// StartAfter must be a snapshot produced by the same Store.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
	Limit      int
	StartAfter Snapshot
}

// Update sets one top-level field. Value is either a plain value or the
// result of ArrayUnion / ArrayRemove.
type Update struct {
	Path  string
	Value any
}

type arrayUnion struct{ elems []any }

type arrayRemove struct{ elems []any }

// ArrayUnion adds each element to an array field unless already present.
func ArrayUnion(elems ...any) any { return arrayUnion{elems: elems} }

// ArrayRemove removes every occurrence of each element from an array field.
func ArrayRemove(elems ...any) any { return arrayRemove{elems: elems} }

// DocumentIterator yields the state of one document: the current state on
// the first call to Next, then once per observed change.
type DocumentIterator interface {
	Next() (Snapshot, error)
	Stop()
}

// QueryIterator yields the full window of a query on every observed change.
type QueryIterator interface {
	Next() (*QuerySnapshot, error)
	Stop()
}

// Store is the document database contract consumed by the sync layer.
type Store interface {
	Get(ctx context.Context, collection, id string) (Snapshot, error)
	Set(ctx context.Context, collection, id string, data any) error
	Add(ctx context.Context, collection string, data any) (string, error)
	Update(ctx context.Context, collection, id string, updates []Update) error
	Delete(ctx context.Context, collection, id string) error
	Find(ctx context.Context, q Query) ([]Snapshot, error)
	WatchDocument(ctx context.Context, collection, id string) DocumentIterator
	WatchQuery(ctx context.Context, q Query) QueryIterator
}

// Decode decodes a snapshot into a new T. When T has a SetKey(string) method
// the document id is passed to it.
func Decode[T any](s Snapshot) (*T, error) {
	v := new(T)
	if err := s.DataTo(v); err != nil {
		return nil, err
	}
	if k, ok := any(v).(interface{ SetKey(string) }); ok {
		k.SetKey(s.ID())
	}
	return v, nil
}

// DecodeAll decodes every snapshot in order.
func DecodeAll[T any](snaps []Snapshot) ([]T, error) {
	out := make([]T, 0, len(snaps))
	for _, s := range snaps {
		v, err := Decode[T](s)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}
