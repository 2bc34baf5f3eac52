package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnavailable   = "UNAVAILABLE"
)

// GenerateRequest is the request body for POST /v1/notebooks/generate.
// Full cards in Recipe take precedence over the ID selectors; anything
// still missing comes from the default recipe.
type GenerateRequest struct {
	Recipe       *Recipe `json:"recipe,omitempty"`
	ModelID      string  `json:"model_id,omitempty"`
	PromptPackID string  `json:"prompt_pack_id,omitempty"`
	TopicID      string  `json:"topic_id,omitempty"`
	Difficulty   string  `json:"difficulty,omitempty"`
	UIComponent  string  `json:"ui_component,omitempty"`
}

// GenerateResponse is returned when a generation task is accepted.
type GenerateResponse struct {
	TaskID           string    `json:"task_id"`
	Status           TaskState `json:"status"`
	EstimatedSeconds int       `json:"estimated_seconds"`
	StatusURL        string    `json:"status_url"`
	StreamURL        string    `json:"stream_url"`
}

// CardKind names one catalog table.
type CardKind string

const (
	CardModels       CardKind = "models"
	CardPromptPacks  CardKind = "prompt-packs"
	CardTopics       CardKind = "topics"
	CardDifficulties CardKind = "difficulties"
	CardUIComponents CardKind = "ui-components"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Storage string `json:"storage"`
}
