package docstore

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type memDoc struct {
	raw bson.Raw
	seq uint64 // insertion order, used as natural order
}

type memWatcher struct {
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (w *memWatcher) notify() {
	select {
	case w.signal <- struct{}{}:
	default:
		// a refresh is already pending
	}
}

func (w *memWatcher) close() {
	w.once.Do(func() { close(w.done) })
}

// Memory is an in-memory Driver. Suitable for tests and local development.
// All methods are safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]memDoc
	watchers    map[string]map[*memWatcher]struct{}
	seq         uint64
}

// NewMemory creates an empty in-memory driver.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]memDoc),
		watchers:    make(map[string]map[*memWatcher]struct{}),
	}
}

func (m *Memory) Insert(ctx context.Context, collection string, doc bson.Raw) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id, ok := doc.Lookup("_id").StringValueOK()
	if !ok || id == "" {
		return ErrEmptyID
	}

	m.mu.Lock()
	docs := m.collection(collection)
	if _, exists := docs[id]; exists {
		m.mu.Unlock()
		return ErrDuplicateID
	}
	m.seq++
	docs[id] = memDoc{raw: slices.Clone(doc), seq: m.seq}
	m.mu.Unlock()

	m.notify(collection)
	return nil
}

func (m *Memory) Get(ctx context.Context, collection, id string) (bson.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(doc.raw), nil
}

func (m *Memory) Find(ctx context.Context, collection string, q Query) ([]bson.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	matched := make([]memDoc, 0)
	for _, doc := range m.collections[collection] {
		if matches(doc.raw, q.Filters) {
			matched = append(matched, doc)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].seq < matched[j].seq
	})

	if q.Sort != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareValues(lookup(matched[i].raw, q.Sort), lookup(matched[j].raw, q.Sort))
			if q.Direction == Desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	result := make([]bson.Raw, len(matched))
	for i, doc := range matched {
		result[i] = slices.Clone(doc.raw)
	}
	return result, nil
}

func (m *Memory) Count(ctx context.Context, collection string, q Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, doc := range m.collections[collection] {
		if matches(doc.raw, q.Filters) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields Fields, upsert bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	docs := m.collection(collection)
	existing, ok := docs[id]
	if !ok && !upsert {
		m.mu.Unlock()
		return ErrNotFound
	}

	var d bson.D
	if ok {
		if err := bson.Unmarshal(existing.raw, &d); err != nil {
			m.mu.Unlock()
			return errors.Join(ErrInvalidDocument, err)
		}
	} else {
		d = bson.D{{Key: "_id", Value: id}}
		m.seq++
		existing.seq = m.seq
	}

	for _, key := range slices.Sorted(maps.Keys(fields)) {
		d = setField(d, key, fields[key])
	}

	raw, err := bson.Marshal(d)
	if err != nil {
		m.mu.Unlock()
		return errors.Join(ErrInvalidDocument, err)
	}
	docs[id] = memDoc{raw: raw, seq: existing.seq}
	m.mu.Unlock()

	m.notify(collection)
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	docs := m.collections[collection]
	if _, ok := docs[id]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(docs, id)
	m.mu.Unlock()

	m.notify(collection)
	return nil
}

func (m *Memory) Watch(ctx context.Context, collection string, onChange func()) (func(), error) {
	if onChange == nil {
		return nil, errors.New("docstore: onChange is required")
	}

	w := &memWatcher{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	if m.watchers[collection] == nil {
		m.watchers[collection] = make(map[*memWatcher]struct{})
	}
	m.watchers[collection][w] = struct{}{}
	m.mu.Unlock()

	stop := func() {
		m.mu.Lock()
		delete(m.watchers[collection], w)
		m.mu.Unlock()
		w.close()
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case <-w.done:
				return
			case <-w.signal:
				onChange()
			}
		}
	}()

	return stop, nil
}

// collection returns the document map for name, creating it. Caller holds m.mu.
func (m *Memory) collection(name string) map[string]memDoc {
	docs, ok := m.collections[name]
	if !ok {
		docs = make(map[string]memDoc)
		m.collections[name] = docs
	}
	return docs
}

func (m *Memory) notify(collection string) {
	m.mu.RLock()
	watchers := make([]*memWatcher, 0, len(m.watchers[collection]))
	for w := range m.watchers[collection] {
		watchers = append(watchers, w)
	}
	m.mu.RUnlock()

	for _, w := range watchers {
		w.notify()
	}
}

func setField(d bson.D, key string, val any) bson.D {
	for i := range d {
		if d[i].Key == key {
			d[i].Value = val
			return d
		}
	}
	return append(d, bson.E{Key: key, Value: val})
}
