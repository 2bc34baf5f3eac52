// Package storage persists generated notebooks under short share IDs.
//
// Two backends implement NotebookStore: DB (PostgreSQL through pgxpool)
// and SQLiteStore (modernc.org/sqlite) for single-node deployments.
// CachedStore adds an LRU read-through cache in front of either.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ashita-ai/alacard/internal/model"
	"github.com/ashita-ai/alacard/migrations"
)

// ShareIDLength is the length of public notebook identifiers.
const ShareIDLength = 8

// NotebookStore is the record store for generated notebooks.
type NotebookStore interface {
	// SaveNotebook inserts rec. ID, ShareID and CreatedAt are filled in
	// when zero. A share ID that is already in use yields ErrShareIDTaken
	// and leaves the stored notebook unchanged.
	SaveNotebook(ctx context.Context, rec *model.NotebookRecord) error
	// GetNotebook returns ErrNotFound when no record has shareID.
	GetNotebook(ctx context.Context, shareID string) (model.NotebookRecord, error)
	IncrementViews(ctx context.Context, shareID string) error
	IncrementDownloads(ctx context.Context, shareID string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context)
}

// NewShareID returns a fresh short public identifier.
func NewShareID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:ShareIDLength]
}

// Open connects to the store named by url. postgres:// and postgresql://
// select PostgreSQL; sqlite:// or a bare path selects SQLite. Migrations
// run before Open returns.
func Open(ctx context.Context, url string, logger *slog.Logger) (NotebookStore, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		db, err := New(ctx, url, logger)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			db.Close(ctx)
			return nil, err
		}
		return db, nil
	case url == "":
		return nil, fmt.Errorf("storage: empty database url")
	default:
		return NewSQLite(ctx, strings.TrimPrefix(url, "sqlite://"), logger)
	}
}
