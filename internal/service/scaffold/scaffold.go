// Package scaffold renders runnable UI program skeletons around a model.
package scaffold

import (
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/ashita-ai/alacard/internal/model"
)

// DefaultPrompt seeds templates when the prompt list is empty.
const DefaultPrompt = "Hello! What can you do?"

//go:embed templates/*.py.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("scaffold").
		Funcs(template.FuncMap{"py": pyString}).
		ParseFS(templateFS, "templates/*.py.tmpl"),
)

const fallbackTemplate = "basic.py.tmpl"

type data struct {
	ModelID string
	Prompt  string
	Prompts []string
}

// Generate returns the scaffold program for uiType. Unknown types get a
// minimal single-call skeleton.
func Generate(uiType model.UIComponentType, modelID string, prompts []string) string {
	seeded := make([]string, 0, len(prompts))
	for _, p := range prompts {
		if strings.TrimSpace(p) != "" {
			seeded = append(seeded, p)
		}
	}
	if len(seeded) == 0 {
		seeded = []string{DefaultPrompt}
	}
	d := data{ModelID: modelID, Prompt: seeded[0], Prompts: seeded}

	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, templateName(uiType), d); err != nil {
		// Templates are parsed at init and only take strings, so this
		// cannot happen short of a broken embed.
		panic(fmt.Sprintf("scaffold: render %s: %v", uiType, err))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Requirements lists the pip packages a UI family needs beyond the core
// model-loading dependencies.
func Requirements(uiType model.UIComponentType) []string {
	t, _ := model.ParseUIComponentType(string(uiType))
	switch t {
	case model.UIChatInterface, model.UIInteractiveDemo:
		return []string{"gradio"}
	case model.UIAPIEndpoint:
		return []string{"fastapi", "uvicorn"}
	case model.UIDashboard:
		return []string{"streamlit"}
	}
	return nil
}

func templateName(uiType model.UIComponentType) string {
	t, ok := model.ParseUIComponentType(string(uiType))
	if !ok {
		return fallbackTemplate
	}
	return string(t) + ".py.tmpl"
}

// pyString renders s as a double-quoted Python string literal. Go's quoting
// escapes are a subset of Python's.
func pyString(s string) string {
	return strconv.Quote(s)
}
