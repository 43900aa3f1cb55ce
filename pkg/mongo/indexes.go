package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Index describes a secondary index. Keys prefixed with "-" are descending.
type Index struct {
	Collection string
	Keys       []string
	Unique     bool
}

func (i Index) model() mongo.IndexModel {
	keys := make(bson.D, 0, len(i.Keys))
	for _, k := range i.Keys {
		if name, ok := strings.CutPrefix(k, "-"); ok {
			keys = append(keys, bson.E{Key: name, Value: -1})
			continue
		}
		keys = append(keys, bson.E{Key: k, Value: 1})
	}
	return mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(i.Unique),
	}
}

// EnsureIndexes creates the given indexes. Existing identical indexes are a no-op.
func EnsureIndexes(ctx context.Context, db *mongo.Database, indexes ...Index) error {
	byColl := make(map[string][]mongo.IndexModel)
	var order []string
	for _, idx := range indexes {
		if idx.Collection == "" || len(idx.Keys) == 0 {
			return fmt.Errorf("%w: index needs a collection and keys", ErrCreateIndexes)
		}
		if _, ok := byColl[idx.Collection]; !ok {
			order = append(order, idx.Collection)
		}
		byColl[idx.Collection] = append(byColl[idx.Collection], idx.model())
	}

	for _, coll := range order {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, byColl[coll]); err != nil {
			return errors.Join(ErrCreateIndexes, fmt.Errorf("%s: %w", coll, err))
		}
	}
	return nil
}
