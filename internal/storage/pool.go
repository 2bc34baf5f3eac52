package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ashita-ai/alacard/internal/model"
)

// DB is the PostgreSQL notebook store.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a DB with a connection pool and verifies connectivity.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &DB{pool: pool, logger: logger}, nil
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close(_ context.Context) {
	db.pool.Close()
}

// SaveNotebook inserts a notebook. It returns ErrShareIDTaken when the
// share ID already belongs to another notebook; the existing row is left
// untouched.
func (db *DB) SaveNotebook(ctx context.Context, rec *model.NotebookRecord) error {
	prepareRecord(rec)
	recipe, err := json.Marshal(rec.Recipe)
	if err != nil {
		return fmt.Errorf("storage: marshal recipe: %w", err)
	}
	nb, err := json.Marshal(rec.Notebook)
	if err != nil {
		return fmt.Errorf("storage: marshal notebook: %w", err)
	}

	var inserted int64
	err = WithRetry(ctx, 3, 10*time.Millisecond, func() error {
		tag, err := db.pool.Exec(ctx, `
			INSERT INTO notebooks (id, share_id, model_id, recipe, notebook, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (share_id) DO NOTHING`,
			rec.ID, rec.ShareID, rec.ModelID, recipe, nb, rec.CreatedAt,
		)
		inserted = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("storage: save notebook %s: %w", rec.ShareID, err)
	}
	if inserted == 0 {
		return fmt.Errorf("storage: save notebook %s: %w", rec.ShareID, ErrShareIDTaken)
	}
	return nil
}

// GetNotebook loads a notebook by share ID.
func (db *DB) GetNotebook(ctx context.Context, shareID string) (model.NotebookRecord, error) {
	var (
		rec          model.NotebookRecord
		recipe, nbJS []byte
	)
	err := db.pool.QueryRow(ctx, `
		SELECT id, share_id, model_id, recipe, notebook, created_at, view_count, download_count
		FROM notebooks WHERE share_id = $1`, shareID,
	).Scan(&rec.ID, &rec.ShareID, &rec.ModelID, &recipe, &nbJS, &rec.CreatedAt, &rec.ViewCount, &rec.DownloadCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NotebookRecord{}, ErrNotFound
	}
	if err != nil {
		return model.NotebookRecord{}, fmt.Errorf("storage: get notebook %s: %w", shareID, err)
	}
	if err := decodeRecord(&rec, recipe, nbJS); err != nil {
		return model.NotebookRecord{}, err
	}
	return rec, nil
}

// IncrementViews bumps the view counter.
func (db *DB) IncrementViews(ctx context.Context, shareID string) error {
	return db.increment(ctx, "view_count", shareID)
}

// IncrementDownloads bumps the download counter.
func (db *DB) IncrementDownloads(ctx context.Context, shareID string) error {
	return db.increment(ctx, "download_count", shareID)
}

func (db *DB) increment(ctx context.Context, column, shareID string) error {
	// column is one of two constants above, never caller input.
	tag, err := db.pool.Exec(ctx,
		`UPDATE notebooks SET `+column+` = `+column+` + 1 WHERE share_id = $1`, shareID)
	if err != nil {
		return fmt.Errorf("storage: increment %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func prepareRecord(rec *model.NotebookRecord) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.ShareID == "" {
		rec.ShareID = NewShareID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.ModelID == "" && rec.Recipe.Model != nil {
		rec.ModelID = rec.Recipe.Model.ID
	}
}

func decodeRecord(rec *model.NotebookRecord, recipe, nb []byte) error {
	if err := json.Unmarshal(recipe, &rec.Recipe); err != nil {
		return fmt.Errorf("storage: decode recipe %s: %w", rec.ShareID, err)
	}
	if err := json.Unmarshal(nb, &rec.Notebook); err != nil {
		return fmt.Errorf("storage: decode notebook %s: %w", rec.ShareID, err)
	}
	return nil
}
