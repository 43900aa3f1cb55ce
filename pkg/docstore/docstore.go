package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Driver is a storage backend operating on raw BSON documents.
// Every document carries a string "_id".
type Driver interface {
	// Insert stores a new document. Returns ErrDuplicateID if the id is taken.
	Insert(ctx context.Context, collection string, doc bson.Raw) error

	// Get returns a document by id or ErrNotFound.
	Get(ctx context.Context, collection, id string) (bson.Raw, error)

	// Find returns documents matching the query.
	Find(ctx context.Context, collection string, q Query) ([]bson.Raw, error)

	// Count returns the number of documents matching the query filters.
	Count(ctx context.Context, collection string, q Query) (int64, error)

	// Update merges fields into the document with the given id.
	// When upsert is false a missing document yields ErrNotFound.
	Update(ctx context.Context, collection, id string, fields Fields, upsert bool) error

	// Delete removes a document by id or returns ErrNotFound.
	Delete(ctx context.Context, collection, id string) error

	// Watch calls onChange after writes to the collection until stop is called
	// or ctx is done. Calls may be coalesced.
	Watch(ctx context.Context, collection string, onChange func()) (stop func(), err error)
}

// Collection is a typed view over one driver collection.
// T is encoded with its bson tags and must map its id to "_id".
type Collection[T any] interface {
	Name() string

	// Create inserts doc, generating an id when doc has none, and writes the
	// stored state (including the id) back into doc.
	Create(ctx context.Context, doc *T) (string, error)
	Get(ctx context.Context, id string) (*T, error)
	Find(ctx context.Context, q Query) ([]T, error)

	// First returns the first document of the query or ErrNotFound.
	First(ctx context.Context, q Query) (*T, error)
	Count(ctx context.Context, q Query) (int64, error)
	Update(ctx context.Context, id string, fields Fields) error

	// Upsert merges fields into the document, creating it when missing.
	Upsert(ctx context.Context, id string, fields Fields) error
	Delete(ctx context.Context, id string) error

	// Watch pushes the query result to fn now and after every change.
	Watch(ctx context.Context, q Query, fn func([]T)) (stop func(), err error)
}

type collection[T any] struct {
	driver Driver
	name   string
}

// NewCollection returns a typed collection backed by driver.
// Panics on a nil driver or empty name: both are wiring mistakes.
func NewCollection[T any](driver Driver, name string) Collection[T] {
	if driver == nil {
		panic("docstore: driver is required")
	}
	if name == "" {
		panic("docstore: collection name is required")
	}
	return &collection[T]{driver: driver, name: name}
}

func (c *collection[T]) Name() string {
	return c.name
}

func (c *collection[T]) Create(ctx context.Context, doc *T) (string, error) {
	if doc == nil {
		return "", ErrInvalidDocument
	}

	raw, id, err := encodeWithID(doc)
	if err != nil {
		return "", err
	}

	if err := c.driver.Insert(ctx, c.name, raw); err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", c.name, err)
	}

	if err := bson.Unmarshal(raw, doc); err != nil {
		return "", errors.Join(ErrInvalidDocument, err)
	}

	return id, nil
}

func (c *collection[T]) Get(ctx context.Context, id string) (*T, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	raw, err := c.driver.Get(ctx, c.name, id)
	if err != nil {
		return nil, err
	}

	return decode[T](raw)
}

func (c *collection[T]) Find(ctx context.Context, q Query) ([]T, error) {
	raws, err := c.driver.Find(ctx, c.name, q)
	if err != nil {
		return nil, err
	}

	docs := make([]T, 0, len(raws))
	for _, raw := range raws {
		doc, err := decode[T](raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

func (c *collection[T]) First(ctx context.Context, q Query) (*T, error) {
	docs, err := c.Find(ctx, q.Take(1))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return &docs[0], nil
}

func (c *collection[T]) Count(ctx context.Context, q Query) (int64, error) {
	return c.driver.Count(ctx, c.name, q)
}

func (c *collection[T]) Update(ctx context.Context, id string, fields Fields) error {
	if err := validateUpdate(id, fields); err != nil {
		return err
	}
	return c.driver.Update(ctx, c.name, id, fields, false)
}

func (c *collection[T]) Upsert(ctx context.Context, id string, fields Fields) error {
	if err := validateUpdate(id, fields); err != nil {
		return err
	}
	return c.driver.Update(ctx, c.name, id, fields, true)
}

func (c *collection[T]) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	return c.driver.Delete(ctx, c.name, id)
}

func (c *collection[T]) Watch(ctx context.Context, q Query, fn func([]T)) (func(), error) {
	if fn == nil {
		return nil, errors.New("docstore: watch callback is required")
	}

	// Serializes snapshot delivery so fn never runs concurrently with itself.
	var mu sync.Mutex
	refresh := func() {
		mu.Lock()
		defer mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		docs, err := c.Find(ctx, q)
		if err != nil {
			return
		}
		fn(docs)
	}

	stop, err := c.driver.Watch(ctx, c.name, refresh)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", c.name, err)
	}

	refresh()
	return stop, nil
}

func validateUpdate(id string, fields Fields) error {
	if id == "" {
		return ErrEmptyID
	}
	for key := range fields {
		if !validFieldName(key) || key == "_id" {
			return fmt.Errorf("%w: %q", ErrInvalidField, key)
		}
	}
	return nil
}

func validFieldName(name string) bool {
	if name == "" || name[0] == '$' {
		return false
	}
	for _, r := range name {
		if r == '.' {
			return false
		}
	}
	return true
}

func decode[T any](raw bson.Raw) (*T, error) {
	doc := new(T)
	if err := bson.Unmarshal(raw, doc); err != nil {
		return nil, errors.Join(ErrInvalidDocument, err)
	}
	return doc, nil
}

// encodeWithID marshals doc and makes sure it carries a string "_id",
// generating a UUID when the document has none.
func encodeWithID(doc any) (bson.Raw, string, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, "", errors.Join(ErrInvalidDocument, err)
	}

	var d bson.D
	if err := bson.Unmarshal(data, &d); err != nil {
		return nil, "", errors.Join(ErrInvalidDocument, err)
	}

	id := ""
	found := false
	for i, e := range d {
		if e.Key != "_id" {
			continue
		}
		s, ok := e.Value.(string)
		if !ok {
			return nil, "", fmt.Errorf("%w: _id must be a string", ErrInvalidDocument)
		}
		if s == "" {
			s = uuid.NewString()
			d[i].Value = s
		}
		id = s
		found = true
		break
	}

	if !found {
		id = uuid.NewString()
		d = append(bson.D{{Key: "_id", Value: id}}, d...)
	}

	raw, err := bson.Marshal(d)
	if err != nil {
		return nil, "", errors.Join(ErrInvalidDocument, err)
	}
	return raw, id, nil
}
