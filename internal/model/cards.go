package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRecipe is returned when a recipe fails validation at the
// submission boundary. Callers wrap it with the offending field.
var ErrInvalidRecipe = errors.New("invalid recipe")

// TaskKind is the inferred task family of a model.
type TaskKind string

const (
	TaskTextGeneration TaskKind = "text-generation"
	TaskClassification TaskKind = "classification"
	TaskSummarization  TaskKind = "summarization"
	TaskTextToText     TaskKind = "text-to-text"
	TaskOther          TaskKind = "other"
)

// TaskKindFromPipelineTag maps a registry pipeline tag onto a TaskKind.
// Unknown or empty tags map to TaskOther.
func TaskKindFromPipelineTag(tag string) TaskKind {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "text-generation", "conversational":
		return TaskTextGeneration
	case "text-classification", "classification", "sentiment-analysis", "zero-shot-classification":
		return TaskClassification
	case "summarization":
		return TaskSummarization
	case "text2text-generation", "text-to-text", "translation":
		return TaskTextToText
	default:
		return TaskOther
	}
}

// DifficultyLevel drives the difficulty transform of the content adapter.
type DifficultyLevel string

const (
	LevelBeginner     DifficultyLevel = "beginner"
	LevelIntermediate DifficultyLevel = "intermediate"
	LevelAdvanced     DifficultyLevel = "advanced"
)

// Valid reports whether l is one of the three known levels.
func (l DifficultyLevel) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// ExplanationDepth is how much prose accompanies generated code.
type ExplanationDepth string

const (
	DepthLow    ExplanationDepth = "low"
	DepthMedium ExplanationDepth = "medium"
	DepthHigh   ExplanationDepth = "high"
)

// UIComponentType selects a scaffold template family.
type UIComponentType string

const (
	UIChatInterface   UIComponentType = "chat-interface"
	UIAPIEndpoint     UIComponentType = "api-endpoint"
	UIInteractiveDemo UIComponentType = "interactive-demo"
	UIDashboard       UIComponentType = "dashboard"
)

// uiAliases accepts the underscore spellings older clients send.
var uiAliases = map[string]UIComponentType{
	"chat_interface": UIChatInterface,
	"api_endpoint":   UIAPIEndpoint,
	"gradio_demo":    UIInteractiveDemo,
	"streamlit_app":  UIDashboard,
}

// ParseUIComponentType normalizes s to a known UI type. The second return
// value is false when s names no known family.
func ParseUIComponentType(s string) (UIComponentType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if t, ok := uiAliases[s]; ok {
		return t, true
	}
	t := UIComponentType(strings.ReplaceAll(s, "_", "-"))
	switch t {
	case UIChatInterface, UIAPIEndpoint, UIInteractiveDemo, UIDashboard:
		return t, true
	}
	return t, false
}

// Complexity of a UI component card.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// ModelCard references a model in the registry.
type ModelCard struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	TaskKind    TaskKind `json:"task_kind,omitempty" yaml:"task_kind"`
	Downloads   int64    `json:"downloads,omitempty" yaml:"downloads"`
	Likes       int64    `json:"likes,omitempty" yaml:"likes"`
	Tags        []string `json:"tags,omitempty" yaml:"tags"`
	License     string   `json:"license,omitempty" yaml:"license"`
}

// DisplayName returns Name, or the last path segment of the ID.
func (m ModelCard) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	if i := strings.LastIndex(m.ID, "/"); i >= 0 {
		return m.ID[i+1:]
	}
	return m.ID
}

// PromptPack is an ordered set of prompts.
type PromptPack struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description"`
	Category    string     `json:"category,omitempty" yaml:"category"`
	Prompts     []string   `json:"prompts" yaml:"prompts"`
	TaskKinds   []TaskKind `json:"task_kinds,omitempty" yaml:"task_kinds"`
}

// TopicCard reframes placeholder text inside generated code.
type TopicCard struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Examples    []string `json:"examples,omitempty" yaml:"examples"`
	Icon        string   `json:"icon,omitempty" yaml:"icon"`
}

// DifficultyCard controls comment density and explanation depth.
type DifficultyCard struct {
	Name             string           `json:"name,omitempty" yaml:"name"`
	Description      string           `json:"description,omitempty" yaml:"description"`
	Level            DifficultyLevel  `json:"level" yaml:"level"`
	CommentDensity   float64          `json:"comment_density" yaml:"comment_density"`
	ExplanationDepth ExplanationDepth `json:"explanation_depth" yaml:"explanation_depth"`
}

// UIComponentCard selects the scaffold family appended to the notebook.
type UIComponentCard struct {
	Type        UIComponentType `json:"type" yaml:"type"`
	Name        string          `json:"name,omitempty" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description"`
	Complexity  Complexity      `json:"complexity,omitempty" yaml:"complexity"`
	Features    []string        `json:"features,omitempty" yaml:"features"`
	TaskKinds   []TaskKind      `json:"task_kinds,omitempty" yaml:"task_kinds"`
}

// Recipe is the five-card selection for one generation run.
type Recipe struct {
	Model       *ModelCard       `json:"model"`
	PromptPack  *PromptPack      `json:"prompt_pack"`
	Topic       *TopicCard       `json:"topic"`
	Difficulty  *DifficultyCard  `json:"difficulty"`
	UIComponent *UIComponentCard `json:"ui_component"`
}

// Validate rejects recipes with missing cards or malformed card fields.
func (r Recipe) Validate() error {
	switch {
	case r.Model == nil:
		return fmt.Errorf("%w: model is required", ErrInvalidRecipe)
	case strings.TrimSpace(r.Model.ID) == "":
		return fmt.Errorf("%w: model.id is required", ErrInvalidRecipe)
	case r.PromptPack == nil:
		return fmt.Errorf("%w: prompt_pack is required", ErrInvalidRecipe)
	case r.Topic == nil:
		return fmt.Errorf("%w: topic is required", ErrInvalidRecipe)
	case r.Difficulty == nil:
		return fmt.Errorf("%w: difficulty is required", ErrInvalidRecipe)
	case r.UIComponent == nil:
		return fmt.Errorf("%w: ui_component is required", ErrInvalidRecipe)
	}
	if strings.ContainsAny(r.Model.ID, " \t\n\"'") {
		return fmt.Errorf("%w: model.id %q contains invalid characters", ErrInvalidRecipe, r.Model.ID)
	}
	if len(r.PromptPack.Prompts) == 0 {
		return fmt.Errorf("%w: prompt_pack.prompts must contain at least one prompt", ErrInvalidRecipe)
	}
	if strings.TrimSpace(r.Topic.ID) == "" {
		return fmt.Errorf("%w: topic.id is required", ErrInvalidRecipe)
	}
	if !r.Difficulty.Level.Valid() {
		return fmt.Errorf("%w: unknown difficulty level %q", ErrInvalidRecipe, r.Difficulty.Level)
	}
	if r.Difficulty.CommentDensity < 0 || r.Difficulty.CommentDensity > 1 {
		return fmt.Errorf("%w: difficulty.comment_density must be within [0, 1]", ErrInvalidRecipe)
	}
	if _, ok := ParseUIComponentType(string(r.UIComponent.Type)); !ok {
		return fmt.Errorf("%w: unknown ui_component type %q", ErrInvalidRecipe, r.UIComponent.Type)
	}
	return nil
}
