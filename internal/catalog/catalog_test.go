package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/alacard/internal/model"
)

func TestDefaultCatalogLoads(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Len(t, c.Models, 5)
	assert.Len(t, c.PromptPacks, 4)
	assert.Len(t, c.Difficulties, 3)
	assert.Len(t, c.UIComponents, 4)

	p, ok := c.PromptPack("quick_start")
	require.True(t, ok)
	assert.Equal(t, []string{"Hello, how are you?", "Introduce yourself", "What can you do?"}, p.Prompts)

	d, ok := c.Difficulty(model.LevelBeginner)
	require.True(t, ok)
	assert.InDelta(t, 0.8, d.CommentDensity, 1e-9)
	assert.Equal(t, model.DepthHigh, d.ExplanationDepth)
}

func TestTopicExamplesFallback(t *testing.T) {
	c := MustDefault()
	assert.Contains(t, c.TopicExamples("sourdough"), "fermentation process")
	assert.Equal(t, []string{"general example"}, c.TopicExamples("general"))
	assert.Equal(t, []string{"general example"}, c.TopicExamples("no-such-topic"))
}

func TestLookupsReturnCopies(t *testing.T) {
	c := MustDefault()
	p, _ := c.PromptPack("creative")
	p.Prompts[0] = "mutated"

	again, _ := c.PromptPack("creative")
	assert.Equal(t, "Write a story about", again.Prompts[0])
}

func TestDefaultRecipe(t *testing.T) {
	c := MustDefault()
	r := c.DefaultRecipe("openai-community/gpt2")

	require.NoError(t, r.Validate())
	assert.Equal(t, "openai-community/gpt2", r.Model.ID)
	assert.Equal(t, "gpt2", r.Model.Name)
	assert.Equal(t, []string{"Default example prompt"}, r.PromptPack.Prompts)
	assert.Equal(t, "general", r.Topic.ID)
	assert.Equal(t, model.LevelIntermediate, r.Difficulty.Level)
	assert.Equal(t, model.UIAPIEndpoint, r.UIComponent.Type)
}

func TestResolve(t *testing.T) {
	c := MustDefault()

	t.Run("selectors", func(t *testing.T) {
		r, err := c.Resolve(model.GenerateRequest{
			ModelID:      "facebook/bart-large-cnn",
			PromptPackID: "real_world",
			TopicID:      "finance",
			Difficulty:   "Advanced",
			UIComponent:  "streamlit_app",
		})
		require.NoError(t, err)
		assert.Equal(t, model.TaskSummarization, r.Model.TaskKind)
		assert.Equal(t, "real_world", r.PromptPack.ID)
		assert.Equal(t, "finance", r.Topic.ID)
		assert.Equal(t, model.LevelAdvanced, r.Difficulty.Level)
		assert.Equal(t, model.UIDashboard, r.UIComponent.Type)
	})

	t.Run("full cards win over selectors", func(t *testing.T) {
		r, err := c.Resolve(model.GenerateRequest{
			Recipe: &model.Recipe{
				Model: &model.ModelCard{ID: "openai-community/gpt2", TaskKind: model.TaskTextGeneration},
				Topic: &model.TopicCard{ID: "space", Name: "Space", Description: "Astronomy"},
			},
			ModelID: "ignored/model",
			TopicID: "finance",
		})
		require.NoError(t, err)
		assert.Equal(t, "openai-community/gpt2", r.Model.ID)
		assert.Equal(t, "space", r.Topic.ID)
		assert.Equal(t, "default", r.PromptPack.ID)
	})

	t.Run("missing model", func(t *testing.T) {
		_, err := c.Resolve(model.GenerateRequest{TopicID: "finance"})
		assert.ErrorIs(t, err, model.ErrInvalidRecipe)
	})

	t.Run("unknown selector", func(t *testing.T) {
		_, err := c.Resolve(model.GenerateRequest{ModelID: "gpt2", Difficulty: "expert"})
		assert.ErrorIs(t, err, model.ErrInvalidRecipe)
	})

	t.Run("empty prompt pack rejected", func(t *testing.T) {
		_, err := c.Resolve(model.GenerateRequest{
			ModelID: "gpt2",
			Recipe:  &model.Recipe{PromptPack: &model.PromptPack{ID: "empty"}},
		})
		assert.ErrorIs(t, err, model.ErrInvalidRecipe)
	})
}

func TestParseRejectsBadTables(t *testing.T) {
	_, err := Parse([]byte(""))
	assert.Error(t, err)

	_, err = Parse([]byte("difficulties:\n  - level: expert\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("prompt_packs:\n  - id: x\n"))
	assert.Error(t, err)
}
