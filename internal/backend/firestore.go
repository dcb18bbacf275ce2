package backend

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore implements Store on Cloud Firestore. Nested collection paths
// such as "notifications/{uid}/entries" map to subcollections.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a Store on an initialized Firestore client
func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

type fsSnapshot struct {
	snap *firestore.DocumentSnapshot
}

func (s fsSnapshot) ID() string   { return s.snap.Ref.ID }
func (s fsSnapshot) Exists() bool { return s.snap.Exists() }

func (s fsSnapshot) DataTo(v any) error {
	if !s.snap.Exists() {
		return ErrNotFound
	}
	return s.snap.DataTo(v)
}

// Get retrieves a document by id
func (f *Firestore) Get(ctx context.Context, collection, id string) (Snapshot, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fsSnapshot{snap: snap}, nil
}

// Set creates or fully replaces a document
func (f *Firestore) Set(ctx context.Context, collection, id string, data any) error {
	_, err := f.client.Collection(collection).Doc(id).Set(ctx, data)
	return err
}

// Add creates a document under a generated id
func (f *Firestore) Add(ctx context.Context, collection string, data any) (string, error) {
	ref, _, err := f.client.Collection(collection).Add(ctx, data)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

// Update applies field-level updates, translating set operations to
// firestore.ArrayUnion / firestore.ArrayRemove
func (f *Firestore) Update(ctx context.Context, collection, id string, updates []Update) error {
	fsUpdates := make([]firestore.Update, 0, len(updates))
	for _, u := range updates {
		value := u.Value
		switch v := u.Value.(type) {
		case arrayUnion:
			value = firestore.ArrayUnion(v.elems...)
		case arrayRemove:
			value = firestore.ArrayRemove(v.elems...)
		}
		fsUpdates = append(fsUpdates, firestore.Update{Path: u.Path, Value: value})
	}

	_, err := f.client.Collection(collection).Doc(id).Update(ctx, fsUpdates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

// Delete removes a document
func (f *Firestore) Delete(ctx context.Context, collection, id string) error {
	_, err := f.client.Collection(collection).Doc(id).Delete(ctx)
	return err
}

// Find runs a one-shot query
func (f *Firestore) Find(ctx context.Context, q Query) ([]Snapshot, error) {
	fq, err := f.query(q)
	if err != nil {
		return nil, err
	}
	docs, err := fq.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, len(docs))
	for i, d := range docs {
		out[i] = fsSnapshot{snap: d}
	}
	return out, nil
}

func (f *Firestore) query(q Query) (firestore.Query, error) {
	fq := f.client.Collection(q.Collection).Query
	for _, flt := range q.Filters {
		fq = fq.Where(flt.Path, "==", flt.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.StartAfter != nil {
		cursor, ok := q.StartAfter.(fsSnapshot)
		if !ok {
			return fq, fmt.Errorf("firestore: cursor of type %T not supported", q.StartAfter)
		}
		fq = fq.StartAfter(cursor.snap)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq, nil
}

// WatchDocument subscribes to one document
func (f *Firestore) WatchDocument(ctx context.Context, collection, id string) DocumentIterator {
	return &fsDocIterator{ctx: ctx, it: f.client.Collection(collection).Doc(id).Snapshots(ctx)}
}

// WatchQuery subscribes to a query window
func (f *Firestore) WatchQuery(ctx context.Context, q Query) QueryIterator {
	fq, err := f.query(q)
	if err != nil {
		return &fsQueryIterator{ctx: ctx, err: err}
	}
	return &fsQueryIterator{ctx: ctx, it: fq.Snapshots(ctx)}
}

type fsDocIterator struct {
	ctx context.Context
	it  *firestore.DocumentSnapshotIterator
}

func (i *fsDocIterator) Next() (Snapshot, error) {
	snap, err := i.it.Next()
	if err != nil {
		return nil, fsIterErr(i.ctx, err)
	}
	return fsSnapshot{snap: snap}, nil
}

func (i *fsDocIterator) Stop() { i.it.Stop() }

type fsQueryIterator struct {
	ctx context.Context
	it  *firestore.QuerySnapshotIterator
	err error
}

func (i *fsQueryIterator) Next() (*QuerySnapshot, error) {
	if i.err != nil {
		return nil, i.err
	}
	qs, err := i.it.Next()
	if err != nil {
		return nil, fsIterErr(i.ctx, err)
	}
	docs, err := qs.Documents.GetAll()
	if err != nil {
		return nil, fsIterErr(i.ctx, err)
	}

	out := &QuerySnapshot{Docs: make([]Snapshot, len(docs))}
	for n, d := range docs {
		out.Docs[n] = fsSnapshot{snap: d}
	}
	for _, ch := range qs.Changes {
		if ch.Kind == firestore.DocumentAdded {
			out.Added = append(out.Added, fsSnapshot{snap: ch.Doc})
		}
	}
	return out, nil
}

func (i *fsQueryIterator) Stop() {
	if i.it != nil {
		i.it.Stop()
	}
}

func fsIterErr(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
		return ErrStopped
	}
	return err
}
