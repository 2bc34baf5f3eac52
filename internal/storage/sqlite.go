package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashita-ai/alacard/internal/model"
)

// SQLiteStore is the single-file notebook store.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite opens (creating if needed) the database at path and migrates it.
func NewSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("storage: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS notebooks (
		id             TEXT PRIMARY KEY,
		share_id       TEXT NOT NULL UNIQUE,
		model_id       TEXT NOT NULL,
		recipe         TEXT NOT NULL,
		notebook       TEXT NOT NULL,
		created_at     TEXT NOT NULL,
		view_count     INTEGER NOT NULL DEFAULT 0,
		download_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_notebooks_model_id ON notebooks (model_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("storage: migrate sqlite: %w", err)
	}
	return nil
}

// Ping checks the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close(_ context.Context) {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("storage: close sqlite", "error", err)
	}
}

// SaveNotebook inserts a notebook, or returns ErrShareIDTaken when the
// share ID is already in use.
func (s *SQLiteStore) SaveNotebook(ctx context.Context, rec *model.NotebookRecord) error {
	prepareRecord(rec)
	recipe, err := json.Marshal(rec.Recipe)
	if err != nil {
		return fmt.Errorf("storage: marshal recipe: %w", err)
	}
	nb, err := json.Marshal(rec.Notebook)
	if err != nil {
		return fmt.Errorf("storage: marshal notebook: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notebooks (id, share_id, model_id, recipe, notebook, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (share_id) DO NOTHING`,
		rec.ID.String(), rec.ShareID, rec.ModelID, string(recipe), string(nb), rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storage: save notebook %s: %w", rec.ShareID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: save notebook %s: %w", rec.ShareID, err)
	}
	if n == 0 {
		return fmt.Errorf("storage: save notebook %s: %w", rec.ShareID, ErrShareIDTaken)
	}
	return nil
}

// GetNotebook loads a notebook by share ID.
func (s *SQLiteStore) GetNotebook(ctx context.Context, shareID string) (model.NotebookRecord, error) {
	var (
		rec                      model.NotebookRecord
		id, recipe, nb, createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, share_id, model_id, recipe, notebook, created_at, view_count, download_count
		FROM notebooks WHERE share_id = ?`, shareID,
	).Scan(&id, &rec.ShareID, &rec.ModelID, &recipe, &nb, &createdAt, &rec.ViewCount, &rec.DownloadCount)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NotebookRecord{}, ErrNotFound
	}
	if err != nil {
		return model.NotebookRecord{}, fmt.Errorf("storage: get notebook %s: %w", shareID, err)
	}
	if err := rec.ID.UnmarshalText([]byte(id)); err != nil {
		return model.NotebookRecord{}, fmt.Errorf("storage: decode id %s: %w", shareID, err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return model.NotebookRecord{}, fmt.Errorf("storage: decode created_at %s: %w", shareID, err)
	}
	if err := decodeRecord(&rec, []byte(recipe), []byte(nb)); err != nil {
		return model.NotebookRecord{}, err
	}
	return rec, nil
}

// IncrementViews bumps the view counter.
func (s *SQLiteStore) IncrementViews(ctx context.Context, shareID string) error {
	return s.increment(ctx, `UPDATE notebooks SET view_count = view_count + 1 WHERE share_id = ?`, shareID)
}

// IncrementDownloads bumps the download counter.
func (s *SQLiteStore) IncrementDownloads(ctx context.Context, shareID string) error {
	return s.increment(ctx, `UPDATE notebooks SET download_count = download_count + 1 WHERE share_id = ?`, shareID)
}

func (s *SQLiteStore) increment(ctx context.Context, query, shareID string) error {
	res, err := s.db.ExecContext(ctx, query, shareID)
	if err != nil {
		return fmt.Errorf("storage: increment %s: %w", shareID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: increment %s: %w", shareID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
