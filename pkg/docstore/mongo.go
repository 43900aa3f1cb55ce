package docstore

import (
	"context"
	"errors"
	"maps"
	"slices"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Mongo is a Driver backed by a MongoDB database.
type Mongo struct {
	db *mongo.Database
}

// NewMongo creates a MongoDB driver. Panics on a nil database.
func NewMongo(db *mongo.Database) *Mongo {
	if db == nil {
		panic("docstore: mongo database is required")
	}
	return &Mongo{db: db}
}

func (m *Mongo) Insert(ctx context.Context, collection string, doc bson.Raw) error {
	_, err := m.db.Collection(collection).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return errors.Join(ErrDuplicateID, err)
	}
	return err
}

func (m *Mongo) Get(ctx context.Context, collection, id string) (bson.Raw, error) {
	raw, err := m.db.Collection(collection).FindOne(ctx, byID(id)).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (m *Mongo) Find(ctx context.Context, collection string, q Query) ([]bson.Raw, error) {
	opts := options.Find()
	if q.Sort != "" {
		dir := 1
		if q.Direction == Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.Sort, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := m.db.Collection(collection).Find(ctx, toFilter(q), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	docs := make([]bson.Raw, 0)
	for cur.Next(ctx) {
		// cur.Current is reused by the cursor between iterations
		docs = append(docs, slices.Clone(cur.Current))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (m *Mongo) Count(ctx context.Context, collection string, q Query) (int64, error) {
	return m.db.Collection(collection).CountDocuments(ctx, toFilter(q))
}

func (m *Mongo) Update(ctx context.Context, collection, id string, fields Fields, upsert bool) error {
	set := make(bson.D, 0, len(fields))
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		set = append(set, bson.E{Key: key, Value: fields[key]})
	}
	update := bson.D{{Key: "$set", Value: set}}

	res, err := m.db.Collection(collection).UpdateOne(ctx, byID(id), update,
		options.UpdateOne().SetUpsert(upsert))
	if err != nil {
		return err
	}
	if !upsert && res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) Delete(ctx context.Context, collection, id string) error {
	res, err := m.db.Collection(collection).DeleteOne(ctx, byID(id))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Watch opens a change stream on the collection. Requires a replica set.
func (m *Mongo) Watch(ctx context.Context, collection string, onChange func()) (func(), error) {
	if onChange == nil {
		return nil, errors.New("docstore: onChange is required")
	}

	wctx, cancel := context.WithCancel(ctx)
	stream, err := m.db.Collection(collection).Watch(wctx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(wctx) {
			onChange()
		}
	}()

	return cancel, nil
}

func byID(id string) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}

func toFilter(q Query) bson.D {
	filter := make(bson.D, 0, len(q.Filters))
	for _, f := range q.Filters {
		filter = append(filter, bson.E{Key: f.Field, Value: f.Value})
	}
	return filter
}
