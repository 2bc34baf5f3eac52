package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/alacard/internal/model"
)

// countingStore records backend reads.
type countingStore struct {
	NotebookStore
	gets int
}

func (c *countingStore) GetNotebook(ctx context.Context, shareID string) (model.NotebookRecord, error) {
	c.gets++
	return c.NotebookStore.GetNotebook(ctx, shareID)
}

func TestCachedStoreReadThrough(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{NotebookStore: newSQLite(t)}
	store, err := NewCachedStore(backend, 8)
	require.NoError(t, err)

	rec := sampleRecord()
	require.NoError(t, store.SaveNotebook(ctx, rec))

	for range 3 {
		got, err := store.GetNotebook(ctx, rec.ShareID)
		require.NoError(t, err)
		assert.Equal(t, rec.ShareID, got.ShareID)
	}
	assert.Equal(t, 1, backend.gets)

	require.NoError(t, store.IncrementViews(ctx, rec.ShareID))
	require.NoError(t, store.IncrementDownloads(ctx, rec.ShareID))
	got, err := store.GetNotebook(ctx, rec.ShareID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ViewCount)
	assert.Equal(t, int64(1), got.DownloadCount)
	assert.Equal(t, 1, backend.gets)

	_, err = store.GetNotebook(ctx, "missing1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStoreDisabled(t *testing.T) {
	backend := newSQLite(t)
	store, err := NewCachedStore(backend, 0)
	require.NoError(t, err)
	assert.Same(t, backend, store)
}
