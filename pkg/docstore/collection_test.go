package docstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fintrack/pkg/docstore"
)

type kind string

type card struct {
	ID        string    `bson:"_id,omitempty"`
	UserID    string    `bson:"userId"`
	Kind      kind      `bson:"kind"`
	Limit     int64     `bson:"limit"`
	Active    bool      `bson:"active"`
	CreatedAt time.Time `bson:"createdAt"`
}

func newCards(t *testing.T) docstore.Collection[card] {
	t.Helper()
	return docstore.NewCollection[card](docstore.NewMemory(), "cards")
}

func TestCollection_Create(t *testing.T) {
	t.Parallel()

	t.Run("generates id and writes it back", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		cards := newCards(t)

		c := &card{UserID: "u1", Kind: "debit"}
		id, err := cards.Create(ctx, c)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, c.ID)

		got, err := cards.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, kind("debit"), got.Kind)
	})

	t.Run("keeps provided id", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		cards := newCards(t)

		id, err := cards.Create(ctx, &card{ID: "fixed", UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, "fixed", id)
	})

	t.Run("rejects duplicate id", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		cards := newCards(t)

		_, err := cards.Create(ctx, &card{ID: "dup"})
		require.NoError(t, err)

		_, err = cards.Create(ctx, &card{ID: "dup"})
		assert.ErrorIs(t, err, docstore.ErrDuplicateID)
	})

	t.Run("rejects nil document", func(t *testing.T) {
		t.Parallel()
		_, err := newCards(t).Create(context.Background(), nil)
		assert.ErrorIs(t, err, docstore.ErrInvalidDocument)
	})
}

func TestCollection_Get(t *testing.T) {
	t.Parallel()

	t.Run("returns not found", func(t *testing.T) {
		t.Parallel()
		_, err := newCards(t).Get(context.Background(), "missing")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("rejects empty id", func(t *testing.T) {
		t.Parallel()
		_, err := newCards(t).Get(context.Background(), "")
		assert.ErrorIs(t, err, docstore.ErrEmptyID)
	})
}

func TestCollection_Find(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cards := newCards(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []card{
		{UserID: "u1", Kind: "debit", Limit: 300, Active: true, CreatedAt: base},
		{UserID: "u1", Kind: "credit", Limit: 100, Active: false, CreatedAt: base.Add(2 * time.Hour)},
		{UserID: "u1", Kind: "credit", Limit: 200, Active: true, CreatedAt: base.Add(time.Hour)},
		{UserID: "u2", Kind: "debit", Limit: 50, Active: true, CreatedAt: base.Add(3 * time.Hour)},
	}
	for i := range seed {
		_, err := cards.Create(ctx, &seed[i])
		require.NoError(t, err)
	}

	t.Run("filters by equality", func(t *testing.T) {
		t.Parallel()
		got, err := cards.Find(ctx, docstore.Where("userId", "u1").Where("kind", kind("credit")))
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("filters by bool and int", func(t *testing.T) {
		t.Parallel()
		got, err := cards.Find(ctx, docstore.Where("active", true).Where("limit", 50))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "u2", got[0].UserID)
	})

	t.Run("orders by time descending with limit", func(t *testing.T) {
		t.Parallel()
		got, err := cards.Find(ctx, docstore.Where("userId", "u1").OrderBy("createdAt", docstore.Desc).Take(2))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, int64(100), got[0].Limit)
		assert.Equal(t, int64(200), got[1].Limit)
	})

	t.Run("orders by number ascending", func(t *testing.T) {
		t.Parallel()
		got, err := cards.Find(ctx, docstore.All().OrderBy("limit", docstore.Asc))
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, int64(50), got[0].Limit)
		assert.Equal(t, int64(300), got[3].Limit)
	})

	t.Run("first returns not found on empty result", func(t *testing.T) {
		t.Parallel()
		_, err := cards.First(ctx, docstore.Where("userId", "nobody"))
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("counts matches", func(t *testing.T) {
		t.Parallel()
		n, err := cards.Count(ctx, docstore.Where("userId", "u1"))
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})
}

func TestCollection_Update(t *testing.T) {
	t.Parallel()

	t.Run("merges fields", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		cards := newCards(t)

		id, err := cards.Create(ctx, &card{UserID: "u1", Kind: "debit", Limit: 10})
		require.NoError(t, err)

		require.NoError(t, cards.Update(ctx, id, docstore.Fields{"limit": int64(20), "active": true}))

		got, err := cards.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(20), got.Limit)
		assert.True(t, got.Active)
		assert.Equal(t, kind("debit"), got.Kind)
	})

	t.Run("returns not found for missing document", func(t *testing.T) {
		t.Parallel()
		err := newCards(t).Update(context.Background(), "missing", docstore.Fields{"limit": 1})
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("upsert creates missing document", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		cards := newCards(t)

		require.NoError(t, cards.Upsert(ctx, "new", docstore.Fields{"userId": "u9"}))

		got, err := cards.Get(ctx, "new")
		require.NoError(t, err)
		assert.Equal(t, "u9", got.UserID)
	})

	t.Run("rejects invalid field names", func(t *testing.T) {
		t.Parallel()
		cards := newCards(t)
		for _, key := range []string{"", "_id", "a.b", "$set"} {
			err := cards.Upsert(context.Background(), "x", docstore.Fields{key: 1})
			assert.ErrorIs(t, err, docstore.ErrInvalidField, key)
		}
	})
}

func TestCollection_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cards := newCards(t)

	id, err := cards.Create(ctx, &card{UserID: "u1"})
	require.NoError(t, err)

	require.NoError(t, cards.Delete(ctx, id))
	assert.ErrorIs(t, cards.Delete(ctx, id), docstore.ErrNotFound)
}

func TestCollection_Watch(t *testing.T) {
	t.Parallel()

	t.Run("pushes initial snapshot and changes", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		cards := newCards(t)

		_, err := cards.Create(ctx, &card{UserID: "u1"})
		require.NoError(t, err)

		var (
			mu        sync.Mutex
			snapshots [][]card
		)
		stop, err := cards.Watch(ctx, docstore.Where("userId", "u1"), func(docs []card) {
			mu.Lock()
			defer mu.Unlock()
			snapshots = append(snapshots, docs)
		})
		require.NoError(t, err)
		defer stop()

		mu.Lock()
		require.Len(t, snapshots, 1)
		assert.Len(t, snapshots[0], 1)
		mu.Unlock()

		_, err = cards.Create(ctx, &card{UserID: "u1"})
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(snapshots) > 1 && len(snapshots[len(snapshots)-1]) == 2
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("stops after stop is called", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		cards := newCards(t)

		var (
			mu    sync.Mutex
			calls int
		)
		stop, err := cards.Watch(ctx, docstore.All(), func([]card) {
			mu.Lock()
			calls++
			mu.Unlock()
		})
		require.NoError(t, err)
		stop()

		_, err = cards.Create(ctx, &card{UserID: "u1"})
		require.NoError(t, err)

		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		assert.Equal(t, 1, calls)
		mu.Unlock()
	})

	t.Run("requires callback", func(t *testing.T) {
		t.Parallel()
		_, err := newCards(t).Watch(context.Background(), docstore.All(), nil)
		assert.Error(t, err)
	})
}
