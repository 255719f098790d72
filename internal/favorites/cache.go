// Package favorites keeps the user's favorited product snapshots in memory
// and mirrors them to the local key-value store.
package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/bazaar/internal/kv"
	"github.com/tOgg1/bazaar/internal/logging"
	"github.com/tOgg1/bazaar/internal/market"
	"github.com/tOgg1/bazaar/internal/metrics"
	"github.com/tOgg1/bazaar/internal/notify"
)

// Store keys: the JSON array of snapshots and the pending new-favorite flag.
const (
	Key       = "favorites"
	NoticeKey = "favorites_notice"
)

// Cache is the favorites set. Mutations are visible immediately; the store
// write follows and its failure does not undo the change.
type Cache struct {
	store  kv.Store
	logger zerolog.Logger
	added  notify.Flag

	mu    sync.RWMutex
	items []market.ProductRef
	seq   uint64

	// writeMu orders store writes; written is the newest snapshot stored.
	writeMu sync.Mutex
	written uint64
}

// New creates an empty cache backed by store. Call Load to restore it.
func New(store kv.Store) *Cache {
	return &Cache{
		store:  store,
		logger: logging.Component("favorites"),
	}
}

// Load replaces the in-memory set with the persisted one. Missing or
// unreadable data yields an empty set; Load never fails.
func (c *Cache) Load(ctx context.Context) []market.ProductRef {
	items := c.read(ctx)
	c.added.Set(c.readNotice(ctx))

	c.mu.Lock()
	c.items = items
	c.seq++
	n := len(c.items)
	out := c.snapshotLocked()
	c.mu.Unlock()

	metrics.FavoritesCount.Set(float64(n))
	c.logger.Debug().Int("count", n).Msg("favorites loaded")
	return out
}

func (c *Cache) read(ctx context.Context) []market.ProductRef {
	raw, err := c.store.Get(ctx, Key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			logging.Err(c.logger.Warn(), err).Msg("failed to read favorites")
		}
		return nil
	}
	var stored []market.ProductRef
	if err := json.Unmarshal(raw, &stored); err != nil {
		c.logger.Warn().Err(err).Msg("ignoring unreadable favorites")
		return nil
	}

	seen := make(map[string]struct{}, len(stored))
	items := make([]market.ProductRef, 0, len(stored))
	for _, p := range stored {
		if p.IsZero() {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		items = append(items, p)
	}
	return items
}

// Toggle adds product if absent and removes it otherwise. It reports whether
// the product is now a favorite. Adding raises the new-favorite flag. The
// returned error is the persistence failure, if any; the in-memory change
// stands either way.
func (c *Cache) Toggle(ctx context.Context, product market.ProductRef) (bool, error) {
	product.ID = strings.TrimSpace(product.ID)
	if product.IsZero() {
		return false, market.ValidationError("toggle favorite", "product id is required", nil)
	}

	c.mu.Lock()
	added := true
	for i, p := range c.items {
		if p.ID == product.ID {
			c.items = append(c.items[:i:i], c.items[i+1:]...)
			added = false
			break
		}
	}
	if added {
		c.items = append(c.items, product)
	}
	c.seq++
	seq := c.seq
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if added {
		c.added.Raise()
		c.writeNotice(ctx, true)
	}
	metrics.FavoritesCount.Set(float64(len(snapshot)))
	c.logger.Debug().Str("product_id", product.ID).Bool("added", added).Msg("favorite toggled")

	return added, c.persist(ctx, seq, snapshot)
}

func (c *Cache) persist(ctx context.Context, seq uint64, snapshot []market.ProductRef) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if seq < c.written {
		return nil
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}
	if err := c.store.Put(ctx, Key, payload); err != nil {
		metrics.FavoritesPersistFailures.Inc()
		logging.Err(c.logger.Error(), err).Int("count", len(snapshot)).Msg("failed to persist favorites")
		return fmt.Errorf("persist favorites: %w", err)
	}
	c.written = seq
	return nil
}

// IsFavorite reports whether productID is in the set.
func (c *Cache) IsFavorite(productID string) bool {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.items {
		if p.ID == productID {
			return true
		}
	}
	return false
}

// List returns the favorites in the order they were added.
func (c *Cache) List() []market.ProductRef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// HasNewFavorite reports whether a favorite was added since the last clear.
func (c *Cache) HasNewFavorite() bool {
	return c.added.IsSet()
}

// ClearNewFavoriteNotification resets the new-favorite flag only.
func (c *Cache) ClearNewFavoriteNotification(ctx context.Context) {
	c.added.Clear()
	c.writeNotice(ctx, false)
}

func (c *Cache) readNotice(ctx context.Context) bool {
	raw, err := c.store.Get(ctx, NoticeKey)
	if err != nil {
		return false
	}
	var set bool
	_ = json.Unmarshal(raw, &set)
	return set
}

// writeNotice is best-effort; the flag is advisory.
func (c *Cache) writeNotice(ctx context.Context, set bool) {
	payload, _ := json.Marshal(set)
	if err := c.store.Put(ctx, NoticeKey, payload); err != nil {
		logging.Err(c.logger.Debug(), err).Msg("failed to persist favorite notice")
	}
}

func (c *Cache) snapshotLocked() []market.ProductRef {
	out := make([]market.ProductRef, len(c.items))
	copy(out, c.items)
	return out
}
