package favorites

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tOgg1/bazaar/internal/kv"
	"github.com/tOgg1/bazaar/internal/market"
)

var bike = market.ProductRef{ID: "p1", Name: "Bike", Image: "bike.png", Price: 120}

func TestToggle_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemoryStore())
	c.Load(ctx)

	added, err := c.Toggle(ctx, bike)
	require.NoError(t, err)
	assert.True(t, added)
	assert.True(t, c.IsFavorite("p1"))

	added, err = c.Toggle(ctx, bike)
	require.NoError(t, err)
	assert.False(t, added)
	assert.False(t, c.IsFavorite("p1"))
	assert.Empty(t, c.List())
}

func TestToggle_PersistsSnapshots(t *testing.T) {
	ctx := context.Background()
	store, err := kv.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	c := New(store)
	c.Load(ctx)
	_, err = c.Toggle(ctx, bike)
	require.NoError(t, err)
	_, err = c.Toggle(ctx, market.ProductRef{ID: "p2", Name: "Lamp"})
	require.NoError(t, err)

	raw, err := store.Get(ctx, Key)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"_id":"p1","name":"Bike","image":"bike.png","price":120},{"_id":"p2","name":"Lamp"}]`, string(raw))

	reloaded := New(store)
	assert.Equal(t, []market.ProductRef{bike, {ID: "p2", Name: "Lamp"}}, reloaded.Load(ctx))
	assert.True(t, reloaded.IsFavorite("p2"))
}

func TestLoad_ToleratesBadData(t *testing.T) {
	cases := map[string]string{
		"corrupt":   `{not json`,
		"object":    `{"_id":"p1"}`,
		"wrongtype": `"favorites"`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			store := kv.NewMemoryStore()
			require.NoError(t, store.Put(context.Background(), Key, []byte(payload)))
			c := New(store)
			assert.Empty(t, c.Load(context.Background()))
		})
	}
}

func TestLoad_SkipsMissingAndDuplicateIDs(t *testing.T) {
	store := kv.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), Key, []byte(`[{"_id":"p1"},{"name":"ghost"},{"id":"p2"},{"_id":"p1","name":"dup"}]`)))
	got := New(store).Load(context.Background())
	assert.Equal(t, []market.ProductRef{{ID: "p1"}, {ID: "p2"}}, got)
}

func TestToggle_RequiresID(t *testing.T) {
	_, err := New(kv.NewMemoryStore()).Toggle(context.Background(), market.ProductRef{Name: "nameless"})
	require.ErrorIs(t, err, market.ErrValidation)
}

type brokenStore struct {
	kv.Store
	fail bool
}

func (s *brokenStore) Put(ctx context.Context, key string, value []byte) error {
	if s.fail && key == Key {
		return errors.New("disk full")
	}
	return s.Store.Put(ctx, key, value)
}

func TestToggle_PersistFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	store := &brokenStore{Store: kv.NewMemoryStore(), fail: true}
	c := New(store)
	c.Load(ctx)

	added, err := c.Toggle(ctx, bike)
	require.Error(t, err)
	assert.True(t, added)
	assert.True(t, c.IsFavorite("p1"))

	_, err = store.Get(ctx, Key)
	require.ErrorIs(t, err, kv.ErrNotFound)

	store.fail = false
	_, err = c.Toggle(ctx, market.ProductRef{ID: "p2"})
	require.NoError(t, err)
	assert.Len(t, New(store).Load(ctx), 2)
}

func TestNewFavoriteNotification(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	c := New(store)
	c.Load(ctx)
	assert.False(t, c.HasNewFavorite())

	_, err := c.Toggle(ctx, bike)
	require.NoError(t, err)
	assert.True(t, c.HasNewFavorite())

	// Survives a restart until cleared.
	assert.True(t, func() bool { r := New(store); r.Load(ctx); return r.HasNewFavorite() }())

	c.ClearNewFavoriteNotification(ctx)
	assert.False(t, c.HasNewFavorite())
	assert.True(t, c.IsFavorite("p1"), "clearing the notice must not touch favorites")

	// Removing does not raise the flag.
	_, err = c.Toggle(ctx, bike)
	require.NoError(t, err)
	assert.False(t, c.HasNewFavorite())

	r := New(store)
	r.Load(ctx)
	assert.False(t, r.HasNewFavorite())
}

func TestToggle_ConcurrentWritesKeepLatestSnapshot(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	c := New(store)
	c.Load(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = c.Toggle(ctx, market.ProductRef{ID: fmt.Sprintf("p%d", i)})
		}(i)
	}
	wg.Wait()

	assert.Len(t, c.List(), 20)
	assert.Len(t, New(store).Load(ctx), 20)
}
