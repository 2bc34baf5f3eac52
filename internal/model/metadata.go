package model

// ModelMetadata describes a model as reported by the registry. Every field
// is optional in practice; zero values render as "unknown".
type ModelMetadata struct {
	ID            string   `json:"id"`
	DisplayName   string   `json:"display_name"`
	TaskKind      TaskKind `json:"task_kind"`
	PipelineTag   string   `json:"pipeline_tag,omitempty"`
	DownloadCount int64    `json:"download_count"`
	LikeCount     int64    `json:"like_count"`
	Tags          []string `json:"tags,omitempty"`
	License       string   `json:"license,omitempty"`
	Revision      string   `json:"revision,omitempty"`
}

// CodeSample is a trimmed block of source text extracted from documentation.
type CodeSample struct {
	Language string `json:"language,omitempty"`
	Code     string `json:"code"`
}
