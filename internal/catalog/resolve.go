package catalog

import (
	"fmt"
	"strings"

	"github.com/ashita-ai/alacard/internal/model"
)

// DefaultRecipe synthesizes a complete recipe for a bare model identifier.
func (c *Catalog) DefaultRecipe(modelID string) model.Recipe {
	m := c.modelCardFor(modelID)
	pack := c.defaultPromptPack()
	topic := c.defaultTopic()
	diff := c.defaultDifficulty()
	ui, _ := c.UIComponent(string(DefaultUIType))
	return model.Recipe{
		Model:       &m,
		PromptPack:  &pack,
		Topic:       &topic,
		Difficulty:  &diff,
		UIComponent: &ui,
	}
}

func (c *Catalog) defaultPromptPack() model.PromptPack {
	if p, ok := c.PromptPack(DefaultPromptPack); ok {
		return p
	}
	return model.PromptPack{
		ID:       DefaultPromptPack,
		Name:     "Default",
		Category: "default",
		Prompts:  []string{c.DefaultPrompt},
	}
}

func (c *Catalog) defaultTopic() model.TopicCard {
	if t, ok := c.Topic(DefaultTopicID); ok {
		return t
	}
	return model.TopicCard{ID: DefaultTopicID, Name: "General", Description: "General purpose notebook", Icon: "📚"}
}

func (c *Catalog) defaultDifficulty() model.DifficultyCard {
	if d, ok := c.Difficulty(DefaultLevel); ok {
		return d
	}
	return model.DifficultyCard{Level: DefaultLevel, CommentDensity: 0.4, ExplanationDepth: model.DepthMedium}
}

// Resolve turns a generation request into a complete, validated recipe.
// Full cards in req.Recipe win, then the ID selectors, then defaults.
// Unknown selector IDs are rejected rather than silently replaced.
func (c *Catalog) Resolve(req model.GenerateRequest) (model.Recipe, error) {
	var r model.Recipe
	if req.Recipe != nil {
		r = *req.Recipe
	}

	if r.Model == nil {
		if strings.TrimSpace(req.ModelID) == "" {
			return model.Recipe{}, fmt.Errorf("%w: model or model_id is required", model.ErrInvalidRecipe)
		}
		m := c.modelCardFor(req.ModelID)
		r.Model = &m
	} else {
		m := *r.Model
		if m.Name == "" {
			m.Name = m.DisplayName()
		}
		if m.TaskKind == "" {
			if preset, ok := c.Model(m.ID); ok {
				m.TaskKind = preset.TaskKind
			} else {
				m.TaskKind = model.TaskOther
			}
		}
		r.Model = &m
	}

	if r.PromptPack == nil {
		var p model.PromptPack
		if req.PromptPackID != "" {
			var ok bool
			if p, ok = c.PromptPack(req.PromptPackID); !ok {
				return model.Recipe{}, fmt.Errorf("%w: unknown prompt_pack_id %q", model.ErrInvalidRecipe, req.PromptPackID)
			}
		} else {
			p = c.defaultPromptPack()
		}
		r.PromptPack = &p
	}

	if r.Topic == nil {
		var t model.TopicCard
		if req.TopicID != "" {
			var ok bool
			if t, ok = c.Topic(req.TopicID); !ok {
				return model.Recipe{}, fmt.Errorf("%w: unknown topic_id %q", model.ErrInvalidRecipe, req.TopicID)
			}
		} else {
			t = c.defaultTopic()
		}
		r.Topic = &t
	}

	if r.Difficulty == nil {
		var d model.DifficultyCard
		if req.Difficulty != "" {
			var ok bool
			level := model.DifficultyLevel(strings.ToLower(req.Difficulty))
			if d, ok = c.Difficulty(level); !ok {
				return model.Recipe{}, fmt.Errorf("%w: unknown difficulty %q", model.ErrInvalidRecipe, req.Difficulty)
			}
		} else {
			d = c.defaultDifficulty()
		}
		r.Difficulty = &d
	}

	if r.UIComponent == nil {
		sel := req.UIComponent
		if sel == "" {
			sel = string(DefaultUIType)
		}
		u, ok := c.UIComponent(sel)
		if !ok {
			return model.Recipe{}, fmt.Errorf("%w: unknown ui_component %q", model.ErrInvalidRecipe, req.UIComponent)
		}
		r.UIComponent = &u
	} else if typ, ok := model.ParseUIComponentType(string(r.UIComponent.Type)); ok {
		u := *r.UIComponent
		u.Type = typ
		r.UIComponent = &u
	}

	if err := r.Validate(); err != nil {
		return model.Recipe{}, err
	}
	return r, nil
}
