// Package catalog holds the preset card tables: popular models, prompt
// packs, topics with their example tables, difficulty levels and UI
// components. A Catalog is loaded once at startup, never mutated, and
// passed by reference to the components that need it.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/alacard/internal/model"
)

//go:embed cards.yaml
var embeddedCards []byte

// Default card selections used when a request omits a card.
const (
	DefaultTopicID    = "general"
	DefaultPromptPack = "default"
	DefaultLevel      = model.LevelIntermediate
	DefaultUIType     = model.UIAPIEndpoint
)

// Catalog is an immutable set of card tables.
type Catalog struct {
	Version         string                  `json:"version" yaml:"version"`
	FallbackExample string                  `json:"fallback_example" yaml:"fallback_example"`
	DefaultPrompt   string                  `json:"default_prompt" yaml:"default_prompt"`
	Models          []model.ModelCard       `json:"models" yaml:"models"`
	PromptPacks     []model.PromptPack      `json:"prompt_packs" yaml:"prompt_packs"`
	Topics          []model.TopicCard       `json:"topics" yaml:"topics"`
	Difficulties    []model.DifficultyCard  `json:"difficulties" yaml:"difficulties"`
	UIComponents    []model.UIComponentCard `json:"ui_components" yaml:"ui_components"`
}

// Default parses the embedded card tables.
func Default() (*Catalog, error) {
	return Parse(embeddedCards)
}

// MustDefault is Default for package-level wiring and tests.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads card tables from path, or the embedded tables when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates card tables from YAML.
func Parse(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("catalog: payload is empty")
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.FallbackExample == "" {
		c.FallbackExample = "general example"
	}
	if c.DefaultPrompt == "" {
		c.DefaultPrompt = "Default example prompt"
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	seen := map[string]bool{}
	for _, p := range c.PromptPacks {
		if p.ID == "" || len(p.Prompts) == 0 {
			return fmt.Errorf("catalog: prompt pack %q needs an id and at least one prompt", p.ID)
		}
		if seen["pack:"+p.ID] {
			return fmt.Errorf("catalog: duplicate prompt pack %q", p.ID)
		}
		seen["pack:"+p.ID] = true
	}
	for _, t := range c.Topics {
		if t.ID == "" {
			return fmt.Errorf("catalog: topic without id")
		}
		if seen["topic:"+t.ID] {
			return fmt.Errorf("catalog: duplicate topic %q", t.ID)
		}
		seen["topic:"+t.ID] = true
	}
	for _, d := range c.Difficulties {
		if !d.Level.Valid() {
			return fmt.Errorf("catalog: unknown difficulty level %q", d.Level)
		}
	}
	for _, u := range c.UIComponents {
		if _, ok := model.ParseUIComponentType(string(u.Type)); !ok {
			return fmt.Errorf("catalog: unknown ui component type %q", u.Type)
		}
	}
	return nil
}

// Model returns the preset card for id.
func (c *Catalog) Model(id string) (model.ModelCard, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return cloneModel(m), true
		}
	}
	return model.ModelCard{}, false
}

// PromptPack returns the prompt pack for id.
func (c *Catalog) PromptPack(id string) (model.PromptPack, bool) {
	for _, p := range c.PromptPacks {
		if p.ID == id {
			p.Prompts = slices.Clone(p.Prompts)
			p.TaskKinds = slices.Clone(p.TaskKinds)
			return p, true
		}
	}
	return model.PromptPack{}, false
}

// Topic returns the topic card for id.
func (c *Catalog) Topic(id string) (model.TopicCard, bool) {
	for _, t := range c.Topics {
		if t.ID == id {
			t.Examples = slices.Clone(t.Examples)
			return t, true
		}
	}
	return model.TopicCard{}, false
}

// TopicExamples returns the example table for a topic, or a single
// generic example when the topic has none.
func (c *Catalog) TopicExamples(id string) []string {
	if t, ok := c.Topic(id); ok && len(t.Examples) > 0 {
		return t.Examples
	}
	return []string{c.FallbackExample}
}

// Difficulty returns the card for level.
func (c *Catalog) Difficulty(level model.DifficultyLevel) (model.DifficultyCard, bool) {
	for _, d := range c.Difficulties {
		if d.Level == level {
			return d, true
		}
	}
	return model.DifficultyCard{}, false
}

// UIComponent returns the card for t. Aliases are accepted.
func (c *Catalog) UIComponent(t string) (model.UIComponentCard, bool) {
	typ, ok := model.ParseUIComponentType(t)
	if !ok {
		return model.UIComponentCard{}, false
	}
	for _, u := range c.UIComponents {
		if u.Type == typ {
			u.Features = slices.Clone(u.Features)
			u.TaskKinds = slices.Clone(u.TaskKinds)
			return u, true
		}
	}
	return model.UIComponentCard{Type: typ, Name: string(typ)}, true
}

// Cards returns a copy of the table for kind.
func (c *Catalog) Cards(kind model.CardKind) (any, bool) {
	switch kind {
	case model.CardModels:
		return slices.Clone(c.Models), true
	case model.CardPromptPacks:
		return slices.Clone(c.PromptPacks), true
	case model.CardTopics:
		return slices.Clone(c.Topics), true
	case model.CardDifficulties:
		return slices.Clone(c.Difficulties), true
	case model.CardUIComponents:
		return slices.Clone(c.UIComponents), true
	}
	return nil, false
}

// CompatiblePromptPacks lists prompt packs suited to a task kind.
func (c *Catalog) CompatiblePromptPacks(kind model.TaskKind) []model.PromptPack {
	var out []model.PromptPack
	for _, p := range c.PromptPacks {
		if len(p.TaskKinds) == 0 || slices.Contains(p.TaskKinds, kind) {
			out = append(out, p)
		}
	}
	return out
}

// CompatibleUIComponents lists UI components suited to a task kind.
func (c *Catalog) CompatibleUIComponents(kind model.TaskKind) []model.UIComponentCard {
	var out []model.UIComponentCard
	for _, u := range c.UIComponents {
		if len(u.TaskKinds) == 0 || slices.Contains(u.TaskKinds, kind) {
			out = append(out, u)
		}
	}
	return out
}

func cloneModel(m model.ModelCard) model.ModelCard {
	m.Tags = slices.Clone(m.Tags)
	return m
}

// modelCardFor returns the preset card for id, or a minimal card built
// from the identifier alone.
func (c *Catalog) modelCardFor(id string) model.ModelCard {
	id = strings.TrimSpace(id)
	if m, ok := c.Model(id); ok {
		return m
	}
	card := model.ModelCard{ID: id, TaskKind: model.TaskOther}
	card.Name = card.DisplayName()
	return card
}
