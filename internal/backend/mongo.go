package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// parentField scopes documents of a nested path ("notifications/{uid}/entries")
// that share one flat MongoDB collection ("notifications_entries").
const parentField = "_parent"

// Mongo implements Store on MongoDB. Live subscriptions use change streams,
// so the server must run as a replica set.
type Mongo struct {
	db *mongo.Database
}

// NewMongo creates a Store on a MongoDB database
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

func (m *Mongo) resolve(path string) (*mongo.Collection, string) {
	parts := strings.Split(path, "/")
	if len(parts) == 3 {
		return m.db.Collection(parts[0] + "_" + parts[2]), parts[1]
	}
	return m.db.Collection(path), ""
}

func scoped(parent string, filter bson.M) bson.M {
	if parent != "" {
		filter[parentField] = parent
	}
	return filter
}

func toDocument(data any, id, parent string) (bson.M, error) {
	raw, err := bson.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("mongo: encode document: %w", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	doc["_id"] = id
	if parent != "" {
		doc[parentField] = parent
	}
	return doc, nil
}

func fromDocument(doc bson.M) *mapSnapshot {
	id, _ := doc["_id"].(string)
	return &mapSnapshot{id: id, exists: true, data: doc, decode: bsonDecode}
}

func bsonDecode(data map[string]any, v any) error {
	raw, err := bson.Marshal(data)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, v)
}

// Get retrieves a document by id
func (m *Mongo) Get(ctx context.Context, collection, id string) (Snapshot, error) {
	snap, err := m.get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if !snap.exists {
		return nil, ErrNotFound
	}
	return snap, nil
}

func (m *Mongo) get(ctx context.Context, collection, id string) (*mapSnapshot, error) {
	coll, parent := m.resolve(collection)
	var doc bson.M
	err := coll.FindOne(ctx, scoped(parent, bson.M{"_id": id})).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &mapSnapshot{id: id, decode: bsonDecode}, nil
		}
		return nil, err
	}
	return fromDocument(doc), nil
}

// Set creates or fully replaces a document
func (m *Mongo) Set(ctx context.Context, collection, id string, data any) error {
	coll, parent := m.resolve(collection)
	doc, err := toDocument(data, id, parent)
	if err != nil {
		return err
	}
	_, err = coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

// Add creates a document under a generated id
func (m *Mongo) Add(ctx context.Context, collection string, data any) (string, error) {
	id := primitive.NewObjectID().Hex()
	if err := m.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// Update applies field-level updates: plain values through $set, set
// operations through $addToSet and $pull
func (m *Mongo) Update(ctx context.Context, collection, id string, updates []Update) error {
	set, addToSet, pull := bson.M{}, bson.M{}, bson.M{}
	for _, u := range updates {
		switch v := u.Value.(type) {
		case arrayUnion:
			addToSet[u.Path] = bson.M{"$each": v.elems}
		case arrayRemove:
			pull[u.Path] = bson.M{"$in": v.elems}
		default:
			set[u.Path] = v
		}
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}
	if len(pull) > 0 {
		update["$pull"] = pull
	}

	coll, parent := m.resolve(collection)
	res, err := coll.UpdateOne(ctx, scoped(parent, bson.M{"_id": id}), update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document
func (m *Mongo) Delete(ctx context.Context, collection, id string) error {
	coll, parent := m.resolve(collection)
	_, err := coll.DeleteOne(ctx, scoped(parent, bson.M{"_id": id}))
	return err
}

// Find runs a one-shot query
func (m *Mongo) Find(ctx context.Context, q Query) ([]Snapshot, error) {
	docs, err := m.evaluate(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out, nil
}

func (m *Mongo) evaluate(ctx context.Context, q Query) ([]*mapSnapshot, error) {
	coll, parent := m.resolve(q.Collection)
	filter := scoped(parent, bson.M{})
	for _, f := range q.Filters {
		filter[f.Path] = f.Value
	}

	dir, op := 1, "$gt"
	if q.Desc {
		dir, op = -1, "$lt"
	}
	sort := bson.D{{Key: "_id", Value: dir}}
	if q.OrderBy != "" {
		sort = append(bson.D{{Key: q.OrderBy, Value: dir}}, sort...)
	}

	if q.StartAfter != nil {
		cursor, ok := q.StartAfter.(*mapSnapshot)
		if !ok {
			return nil, fmt.Errorf("mongo: cursor of type %T not supported", q.StartAfter)
		}
		if q.OrderBy == "" {
			filter["_id"] = bson.M{op: cursor.id}
		} else {
			v := cursor.field(q.OrderBy)
			filter["$or"] = bson.A{
				bson.M{q.OrderBy: bson.M{op: v}},
				bson.M{q.OrderBy: v, "_id": bson.M{op: cursor.id}},
			}
		}
	}

	findOptions := options.Find().SetSort(sort)
	if q.Limit > 0 {
		findOptions.SetLimit(int64(q.Limit))
	}
	cur, err := coll.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*mapSnapshot, len(docs))
	for i, d := range docs {
		out[i] = fromDocument(d)
	}
	return out, nil
}

// WatchDocument subscribes to one document through a collection change stream
func (m *Mongo) WatchDocument(ctx context.Context, collection, id string) DocumentIterator {
	wait, release := m.changes(ctx, collection)
	return &pollDocIterator{
		ctx:     ctx,
		wait:    wait,
		fetch:   func(ctx context.Context) (*mapSnapshot, error) { return m.get(ctx, collection, id) },
		release: release,
	}
}

// WatchQuery subscribes to a query window through a collection change stream
func (m *Mongo) WatchQuery(ctx context.Context, q Query) QueryIterator {
	wait, release := m.changes(ctx, q.Collection)
	return &pollQueryIterator{
		ctx:     ctx,
		wait:    wait,
		fetch:   func(ctx context.Context) ([]*mapSnapshot, error) { return m.evaluate(ctx, q) },
		release: release,
	}
}

// changes opens the change stream before the first fetch so no write between
// the initial read and the first wait is lost.
func (m *Mongo) changes(ctx context.Context, collection string) (func(context.Context) error, func()) {
	coll, _ := m.resolve(collection)
	cs, err := coll.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return func(context.Context) error { return err }, func() {}
	}

	wait := func(ctx context.Context) error {
		if cs.Next(ctx) {
			return nil
		}
		if err := cs.Err(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return errors.New("mongo: change stream closed")
	}
	release := func() { cs.Close(context.Background()) }
	return wait, release
}
