package alacard

import "context"

// NotebookStore persists generated notebooks. When provided via
// WithNotebookStore, it replaces the store selected by DATABASE_URL.
// Implementations must be safe for concurrent use.
type NotebookStore interface {
	// SaveNotebook inserts nb. When a notebook with the same share ID
	// exists it must be left unchanged and ErrShareIDTaken returned.
	SaveNotebook(ctx context.Context, nb Notebook) error
	// GetNotebook returns ErrNotFound when no notebook has shareID.
	GetNotebook(ctx context.Context, shareID string) (Notebook, error)
	IncrementViews(ctx context.Context, shareID string) error
	IncrementDownloads(ctx context.Context, shareID string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context)
}

// MetadataSource reads model metadata and documentation from a model
// registry. When provided via WithMetadataSource, it replaces the Hugging
// Face Hub client. A false result means "absent": generation carries on
// with generic content.
type MetadataSource interface {
	ModelInfo(ctx context.Context, modelID string) (ModelInfo, bool)
	// Documentation returns the model's README at revision.
	Documentation(ctx context.Context, modelID, revision string) (string, bool)
}
