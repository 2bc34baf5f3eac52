package scaffold

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/alacard/internal/model"
)

var allTypes = []model.UIComponentType{
	model.UIChatInterface,
	model.UIAPIEndpoint,
	model.UIInteractiveDemo,
	model.UIDashboard,
}

func TestGenerateReferencesModelAndPrompt(t *testing.T) {
	const modelID = "openai-community/gpt2"
	for _, typ := range allTypes {
		t.Run(string(typ), func(t *testing.T) {
			out := Generate(typ, modelID, []string{"Hello, how are you?", "Introduce yourself"})
			assert.NotEmpty(t, out)
			assert.Contains(t, out, modelID)
			assert.Contains(t, out, `"Hello, how are you?"`)
			assert.NotContains(t, out, "<no value>")
		})
	}
}

func TestGenerateDistinctFamilies(t *testing.T) {
	seen := map[string]model.UIComponentType{}
	for _, typ := range allTypes {
		out := Generate(typ, "m", nil)
		if prev, dup := seen[out]; dup {
			t.Fatalf("%s and %s rendered identical scaffolds", prev, typ)
		}
		seen[out] = typ
	}
	assert.Contains(t, Generate(model.UIAPIEndpoint, "m", nil), "FastAPI")
	assert.Contains(t, Generate(model.UIDashboard, "m", nil), "streamlit")
	assert.Contains(t, Generate(model.UIChatInterface, "m", nil), "ChatInterface")
	assert.Contains(t, Generate(model.UIInteractiveDemo, "m", nil), "gr.Interface")
}

func TestGenerateEmptyPromptsUsesDefault(t *testing.T) {
	for _, typ := range allTypes {
		out := Generate(typ, "m", []string{"  "})
		assert.Contains(t, out, `"`+DefaultPrompt+`"`, typ)
	}
}

func TestGenerateUnknownTypeFallsBack(t *testing.T) {
	out := Generate(model.UIComponentType("hologram"), "org/model", []string{"hi"})
	assert.Contains(t, out, "Minimal example for org/model")
	assert.Contains(t, out, `model_pipeline("hi")`)
}

func TestGenerateAcceptsLegacyAliases(t *testing.T) {
	assert.Equal(t,
		Generate(model.UIDashboard, "m", []string{"p"}),
		Generate(model.UIComponentType("streamlit_app"), "m", []string{"p"}))
}

func TestGenerateEscapesPrompts(t *testing.T) {
	out := Generate(model.UIAPIEndpoint, "m", []string{"say \"hi\"\nthen stop"})
	assert.Contains(t, out, `EXAMPLE_PROMPT = "say \"hi\"\nthen stop"`)
	assert.False(t, strings.HasSuffix(out, "\n"))
}

func TestRequirements(t *testing.T) {
	assert.Equal(t, []string{"gradio"}, Requirements(model.UIChatInterface))
	assert.Equal(t, []string{"fastapi", "uvicorn"}, Requirements(model.UIAPIEndpoint))
	assert.Equal(t, []string{"streamlit"}, Requirements(model.UIDashboard))
	assert.Nil(t, Requirements("hologram"))
}
