//go:build integration

package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/alacard/internal/testutil"
	"github.com/ashita-ai/alacard/migrations"
)

var testDB *DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	ctx := context.Background()
	db, err := New(ctx, tc.DSN, testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		panic(err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		tc.Terminate()
		panic(err)
	}
	testDB = db

	code := m.Run()
	db.Close(ctx)
	tc.Terminate()
	os.Exit(code)
}

func TestPostgresRoundTrip(t *testing.T) {
	ctx := context.Background()
	rec := sampleRecord()
	require.NoError(t, testDB.SaveNotebook(ctx, rec))

	got, err := testDB.GetNotebook(ctx, rec.ShareID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Notebook.CellTypes(), got.Notebook.CellTypes())
	assert.Equal(t, "python3", got.Notebook.Metadata.KernelSpec.Name)
}

func TestPostgresCountersAndShareIDCollision(t *testing.T) {
	ctx := context.Background()
	rec := sampleRecord()
	rec.ModelID = "owner/a"
	require.NoError(t, testDB.SaveNotebook(ctx, rec))
	require.NoError(t, testDB.IncrementViews(ctx, rec.ShareID))
	require.NoError(t, testDB.IncrementDownloads(ctx, rec.ShareID))
	require.NoError(t, testDB.IncrementDownloads(ctx, rec.ShareID))

	other := sampleRecord()
	other.ModelID = "owner/b"
	other.ShareID = rec.ShareID
	require.ErrorIs(t, testDB.SaveNotebook(ctx, other), ErrShareIDTaken)

	got, err := testDB.GetNotebook(ctx, rec.ShareID)
	require.NoError(t, err)
	assert.Equal(t, "owner/a", got.ModelID)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, int64(1), got.ViewCount)
	assert.Equal(t, int64(2), got.DownloadCount)
}

func TestPostgresNotFound(t *testing.T) {
	ctx := context.Background()
	_, err := testDB.GetNotebook(ctx, "nope0000")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, testDB.IncrementViews(ctx, "nope0000"), ErrNotFound)
}

func TestMigrationsIdempotent(t *testing.T) {
	require.NoError(t, testDB.RunMigrations(context.Background(), migrations.FS))
}
