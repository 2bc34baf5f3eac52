package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Notebook format version written into every envelope.
const (
	NotebookFormat      = 4
	NotebookFormatMinor = 5
)

// NotebookContentType is the media type used for downloads.
const NotebookContentType = "application/x-ipynb+json"

// CellType is markdown or code.
type CellType string

const (
	CellMarkdown CellType = "markdown"
	CellCode     CellType = "code"
)

// Cell is one ordered unit of a notebook. Source holds the text as a list
// of line fragments, each but the last ending in a newline.
type Cell struct {
	ID       string         `json:"id,omitempty"`
	Type     CellType       `json:"cell_type"`
	Source   []string       `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

// NewCell builds a cell of the given type from free text.
func NewCell(t CellType, text string) Cell {
	return Cell{Type: t, Source: SourceLines(text), Metadata: map[string]any{}}
}

// Text joins the source fragments back into a single string.
func (c Cell) Text() string {
	return strings.Join(c.Source, "")
}

// MarshalJSON emits the nbformat shape: code cells carry outputs and an
// execution count, markdown cells do not.
func (c Cell) MarshalJSON() ([]byte, error) {
	md := c.Metadata
	if md == nil {
		md = map[string]any{}
	}
	src := c.Source
	if src == nil {
		src = []string{}
	}
	if c.Type == CellCode {
		return json.Marshal(struct {
			ID             string         `json:"id,omitempty"`
			Type           CellType       `json:"cell_type"`
			Source         []string       `json:"source"`
			Metadata       map[string]any `json:"metadata"`
			ExecutionCount *int           `json:"execution_count"`
			Outputs        []any          `json:"outputs"`
		}{c.ID, c.Type, src, md, nil, []any{}})
	}
	return json.Marshal(struct {
		ID       string         `json:"id,omitempty"`
		Type     CellType       `json:"cell_type"`
		Source   []string       `json:"source"`
		Metadata map[string]any `json:"metadata"`
	}{c.ID, c.Type, src, md})
}

// SourceLines splits text into nbformat source fragments.
func SourceLines(text string) []string {
	if text == "" {
		return []string{}
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// KernelSpec identifies the kernel a notebook runs on.
type KernelSpec struct {
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
	Name        string `json:"name"`
}

// LanguageInfo describes the notebook language.
type LanguageInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Provenance records where a notebook came from.
type Provenance struct {
	Title          string    `json:"title"`
	Recipe         Recipe    `json:"recipe"`
	GeneratedAt    time.Time `json:"generated_at"`
	SourceRevision string    `json:"source_revision,omitempty"`
}

// NotebookMetadata is the envelope metadata block.
type NotebookMetadata struct {
	KernelSpec   *KernelSpec   `json:"kernelspec"`
	LanguageInfo *LanguageInfo `json:"language_info"`
	Alacard      *Provenance   `json:"alacard,omitempty"`
}

// Notebook is a generated document: ordered cells plus envelope.
type Notebook struct {
	Cells         []Cell           `json:"cells"`
	Metadata      NotebookMetadata `json:"metadata"`
	NBFormat      int              `json:"nbformat"`
	NBFormatMinor int              `json:"nbformat_minor"`
}

// DefaultKernelSpec is the Python 3 kernel every notebook targets.
func DefaultKernelSpec() *KernelSpec {
	return &KernelSpec{DisplayName: "Python 3", Language: "python", Name: "python3"}
}

// DefaultLanguageInfo is the language block every notebook carries.
func DefaultLanguageInfo() *LanguageInfo {
	return &LanguageInfo{Name: "python", Version: "3.10"}
}

// CellTypes returns the cell kind sequence, used to compare notebook shapes.
func (n Notebook) CellTypes() []CellType {
	out := make([]CellType, len(n.Cells))
	for i, c := range n.Cells {
		out[i] = c.Type
	}
	return out
}

// NotebookRecord is a persisted notebook addressed by its share ID.
type NotebookRecord struct {
	ID            uuid.UUID `json:"id"`
	ShareID       string    `json:"share_id"`
	ModelID       string    `json:"model_id"`
	Recipe        Recipe    `json:"recipe"`
	Notebook      Notebook  `json:"notebook"`
	CreatedAt     time.Time `json:"created_at"`
	ViewCount     int64     `json:"view_count"`
	DownloadCount int64     `json:"download_count"`
}
