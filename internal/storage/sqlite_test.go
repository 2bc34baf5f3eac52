package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/alacard/internal/model"
	"github.com/ashita-ai/alacard/internal/testutil"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "alacard.db"), testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func sampleRecord() *model.NotebookRecord {
	return &model.NotebookRecord{
		Recipe: model.Recipe{
			Model:      &model.ModelCard{ID: "openai-community/gpt2"},
			PromptPack: &model.PromptPack{ID: "p", Prompts: []string{"hi"}},
		},
		Notebook: model.Notebook{
			Cells: []model.Cell{
				model.NewCell(model.CellMarkdown, "# Title\nbody"),
				model.NewCell(model.CellCode, "print(1)"),
			},
			Metadata: model.NotebookMetadata{
				KernelSpec:   model.DefaultKernelSpec(),
				LanguageInfo: model.DefaultLanguageInfo(),
			},
			NBFormat:      model.NotebookFormat,
			NBFormatMinor: model.NotebookFormatMinor,
		},
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	rec := sampleRecord()
	require.NoError(t, s.SaveNotebook(ctx, rec))
	assert.Len(t, rec.ShareID, ShareIDLength)
	assert.Equal(t, "openai-community/gpt2", rec.ModelID)

	got, err := s.GetNotebook(ctx, rec.ShareID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.ModelID, got.ModelID)
	assert.Equal(t, rec.Notebook.CellTypes(), got.Notebook.CellTypes())
	assert.Equal(t, []string{"# Title\n", "body"}, got.Notebook.Cells[0].Source)
	assert.Equal(t, "python3", got.Notebook.Metadata.KernelSpec.Name)
	assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, 0)
}

func TestSQLiteShareIDCollisionKeepsExisting(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	first := sampleRecord()
	first.ModelID = "owner/a"
	require.NoError(t, s.SaveNotebook(ctx, first))
	require.NoError(t, s.IncrementViews(ctx, first.ShareID))

	second := sampleRecord()
	second.ModelID = "owner/b"
	second.ShareID = first.ShareID
	err := s.SaveNotebook(ctx, second)
	require.ErrorIs(t, err, ErrShareIDTaken)

	got, err := s.GetNotebook(ctx, first.ShareID)
	require.NoError(t, err)
	assert.Equal(t, "owner/a", got.ModelID)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, int64(1), got.ViewCount)

	second.ShareID = NewShareID()
	require.NoError(t, s.SaveNotebook(ctx, second))
}

func TestSQLiteNotFound(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	_, err := s.GetNotebook(ctx, "missing1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.IncrementViews(ctx, "missing1"), ErrNotFound)
	assert.ErrorIs(t, s.IncrementDownloads(ctx, "missing1"), ErrNotFound)
}

func TestSQLiteConcurrentCounters(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	rec := sampleRecord()
	require.NoError(t, s.SaveNotebook(ctx, rec))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.IncrementDownloads(ctx, rec.ShareID))
		}()
	}
	wg.Wait()

	got, err := s.GetNotebook(ctx, rec.ShareID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.DownloadCount)
}

func TestOpenSelectsSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "x.db"), testutil.TestLogger())
	require.NoError(t, err)
	defer store.Close(ctx)
	_, ok := store.(*SQLiteStore)
	assert.True(t, ok)
	require.NoError(t, store.Ping(ctx))

	_, err = Open(ctx, "", testutil.TestLogger())
	assert.Error(t, err)
}

func TestNewShareID(t *testing.T) {
	seen := map[string]bool{}
	for range 100 {
		id := NewShareID()
		assert.Len(t, id, ShareIDLength)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
