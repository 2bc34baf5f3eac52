package storage

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ashita-ai/alacard/internal/model"
)

// CachedStore is a read-through LRU cache over a NotebookStore. Counter
// increments are applied to cached entries in place so reads stay warm.
type CachedStore struct {
	NotebookStore
	cache *lru.Cache[string, model.NotebookRecord]
	mu    sync.Mutex // serializes read-modify-write of cached counters
}

// NewCachedStore wraps store with an LRU of size entries. A size of zero
// or less returns store unchanged.
func NewCachedStore(store NotebookStore, size int) (NotebookStore, error) {
	if size <= 0 {
		return store, nil
	}
	cache, err := lru.New[string, model.NotebookRecord](size)
	if err != nil {
		return nil, fmt.Errorf("storage: create cache: %w", err)
	}
	return &CachedStore{NotebookStore: store, cache: cache}, nil
}

// SaveNotebook writes through and refreshes the cache.
func (c *CachedStore) SaveNotebook(ctx context.Context, rec *model.NotebookRecord) error {
	if err := c.NotebookStore.SaveNotebook(ctx, rec); err != nil {
		c.cache.Remove(rec.ShareID)
		return err
	}
	// Counters are owned by the backend; reload on next read.
	c.cache.Remove(rec.ShareID)
	return nil
}

// GetNotebook serves from cache when possible.
func (c *CachedStore) GetNotebook(ctx context.Context, shareID string) (model.NotebookRecord, error) {
	if rec, ok := c.cache.Get(shareID); ok {
		return rec, nil
	}
	rec, err := c.NotebookStore.GetNotebook(ctx, shareID)
	if err != nil {
		return model.NotebookRecord{}, err
	}
	c.cache.Add(shareID, rec)
	return rec, nil
}

// IncrementViews bumps the backend counter and the cached copy.
func (c *CachedStore) IncrementViews(ctx context.Context, shareID string) error {
	if err := c.NotebookStore.IncrementViews(ctx, shareID); err != nil {
		return err
	}
	c.bump(shareID, func(r *model.NotebookRecord) { r.ViewCount++ })
	return nil
}

// IncrementDownloads bumps the backend counter and the cached copy.
func (c *CachedStore) IncrementDownloads(ctx context.Context, shareID string) error {
	if err := c.NotebookStore.IncrementDownloads(ctx, shareID); err != nil {
		return err
	}
	c.bump(shareID, func(r *model.NotebookRecord) { r.DownloadCount++ })
	return nil
}

func (c *CachedStore) bump(shareID string, fn func(*model.NotebookRecord)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.cache.Peek(shareID); ok {
		fn(&rec)
		c.cache.Add(shareID, rec)
	}
}

// Len reports the number of cached records.
func (c *CachedStore) Len() int {
	return c.cache.Len()
}
