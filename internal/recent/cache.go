package recent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streamie/streamie/internal/metrics"
)

// Key namespaces the fixed blob key by visitor.
func Key(visitorID string) string {
	if visitorID == "" {
		return BlobKey
	}
	return BlobKey + ":" + visitorID
}

// Cache loads, mutates and saves one visitor's list at a time. Calls for the
// same visitor are serialized; different visitors proceed in parallel.
type Cache struct {
	store Store
	locks keyedMutex
}

func NewCache(store Store) *Cache {
	return &Cache{store: store, locks: keyedMutex{entries: make(map[string]*lockEntry)}}
}

func (c *Cache) List(ctx context.Context, visitorID string) ([]Item, error) {
	key := Key(visitorID)
	unlock := c.locks.lock(key)
	defer unlock()

	list, err := c.restore(ctx, key)
	if err != nil {
		return nil, err
	}
	return list.Items(), nil
}

// Touch records item as the most recently watched and persists the result.
func (c *Cache) Touch(ctx context.Context, visitorID string, item Item) ([]Item, error) {
	key := Key(visitorID)
	unlock := c.locks.lock(key)
	defer unlock()

	list, err := c.restore(ctx, key)
	if err != nil {
		return nil, err
	}
	list.Touch(item)

	blob, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("encode recent list: %w", err)
	}
	if err := c.store.Save(ctx, key, blob); err != nil {
		return nil, fmt.Errorf("save recent list: %w", err)
	}
	metrics.RecentTouchesTotal.Inc()
	return list.Items(), nil
}

func (c *Cache) Clear(ctx context.Context, visitorID string) error {
	key := Key(visitorID)
	unlock := c.locks.lock(key)
	defer unlock()

	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("clear recent list: %w", err)
	}
	return nil
}

func (c *Cache) restore(ctx context.Context, key string) (*List, error) {
	blob, err := c.store.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return NewList(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load recent list: %w", err)
	}

	list, ok := Decode(blob)
	if !ok {
		slog.Warn("recent: discarding unreadable list", "key", key, "bytes", len(blob))
		metrics.RecentCorruptTotal.Inc()
	}
	return list, nil
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets it once no caller holds it.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
