package alacard

import (
	"encoding/json"
	"time"
)

// TaskState is a step of the generation task lifecycle.
type TaskState string

const (
	TaskQueued     TaskState = "queued"
	TaskFetching   TaskState = "fetching"
	TaskGenerating TaskState = "generating"
	TaskValidating TaskState = "validating"
	TaskReady      TaskState = "ready"
	TaskFailed     TaskState = "failed"
)

// Terminal reports whether the task can no longer change.
func (s TaskState) Terminal() bool {
	return s == TaskReady || s == TaskFailed
}

// Task is a snapshot of a generation task.
type Task struct {
	TaskID          string    `json:"task_id"`
	State           TaskState `json:"state"`
	ProgressPercent int       `json:"progress_percent"`
	CurrentStep     string    `json:"current_step"`
	DocumentRef     string    `json:"document_ref,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Warning         string    `json:"warning,omitempty"`
	ModelID         string    `json:"model_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// GenerateRequest selects the recipe cards for a new notebook. Recipe, when
// set, is a complete recipe object and wins over the card IDs. Omitted
// cards fall back to the server's default recipe.
type GenerateRequest struct {
	Recipe       json.RawMessage `json:"recipe,omitempty"`
	ModelID      string          `json:"model_id,omitempty"`
	PromptPackID string          `json:"prompt_pack_id,omitempty"`
	TopicID      string          `json:"topic_id,omitempty"`
	Difficulty   string          `json:"difficulty,omitempty"`
	UIComponent  string          `json:"ui_component,omitempty"`
}

// GenerateResponse is returned when the server accepts a generation task.
type GenerateResponse struct {
	TaskID           string    `json:"task_id"`
	Status           TaskState `json:"status"`
	EstimatedSeconds int       `json:"estimated_seconds"`
	StatusURL        string    `json:"status_url"`
	StreamURL        string    `json:"stream_url"`
}

// NotebookRecord is a generated notebook with its recipe and counters.
// Notebook is the nbformat document as returned by the server.
type NotebookRecord struct {
	ShareID       string          `json:"share_id"`
	ModelID       string          `json:"model_id"`
	Recipe        json.RawMessage `json:"recipe"`
	Notebook      json.RawMessage `json:"notebook"`
	CreatedAt     time.Time       `json:"created_at"`
	ViewCount     int             `json:"view_count"`
	DownloadCount int             `json:"download_count"`
}

// Download is a notebook file ready to be written to disk.
type Download struct {
	Filename string
	Content  []byte
}

// HealthResponse is returned by Health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Storage string `json:"storage"`
}

// progressMessage is the push channel envelope.
type progressMessage struct {
	Type string `json:"type"`
	Data Task   `json:"data"`
}

type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
