package alacard

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by a NotebookStore when no notebook has the
// requested share ID.
var ErrNotFound = errors.New("alacard: not found")

// ErrShareIDTaken is returned by a NotebookStore when SaveNotebook is given
// a share ID that already belongs to a stored notebook. Alacard then retries
// with a fresh ID.
var ErrShareIDTaken = errors.New("alacard: share id already in use")

// ModelInfo is the registry metadata a MetadataSource reports for a model.
// No internal package imports; safe to use from outside the module.
type ModelInfo struct {
	ID            string
	PipelineTag   string
	DownloadCount int64
	LikeCount     int64
	Tags          []string
	License       string
	// Revision is the documentation revision to read, usually a commit SHA.
	Revision string
}

// Notebook is a generated notebook as seen by a NotebookStore. Recipe and
// Document are opaque JSON: stores keep them as written.
type Notebook struct {
	ShareID       string
	ModelID       string
	Recipe        json.RawMessage
	Document      json.RawMessage
	CreatedAt     time.Time
	ViewCount     int64
	DownloadCount int64
}
