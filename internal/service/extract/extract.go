// Package extract pulls the first usable code sample out of model
// documentation. Blocks are considered strictly in document order; the
// first block that qualifies wins, with no ranking by length or quality.
package extract

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/ashita-ai/alacard/internal/model"
)

// Language describes how to recognize samples for one target language.
type Language struct {
	Name string
	// Tags are the fence info strings that mark a block as this language.
	Tags []string
	// Hints are substrings that mark an untagged block as this language.
	Hints []string
}

// Python is the target language for generated notebooks.
var Python = Language{
	Name:  "python",
	Tags:  []string{"python", "py"},
	Hints: []string{"import ", "from ", "def ", "print("},
}

var md = goldmark.New()

type block struct {
	info string
	code string
}

// FirstSample returns the first code sample in doc for lang. Tagged blocks
// are preferred; only when none exist does it fall back to the first block
// of any tag whose content contains one of lang's hints.
func FirstSample(doc string, lang Language) (model.CodeSample, bool) {
	if strings.TrimSpace(doc) == "" {
		return model.CodeSample{}, false
	}
	blocks := fencedBlocks([]byte(doc))

	for _, b := range blocks {
		if lang.tagged(b.info) {
			if code := strings.TrimSpace(b.code); code != "" {
				return model.CodeSample{Language: lang.Name, Code: code}, true
			}
		}
	}
	for _, b := range blocks {
		if lang.hinted(b.code) {
			return model.CodeSample{Language: lang.Name, Code: strings.TrimSpace(b.code)}, true
		}
	}
	return model.CodeSample{}, false
}

func (l Language) tagged(info string) bool {
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return false
	}
	first := strings.Trim(strings.ToLower(fields[0]), "{}.")
	for _, t := range l.Tags {
		if first == t {
			return true
		}
	}
	return false
}

func (l Language) hinted(code string) bool {
	for _, h := range l.Hints {
		if strings.Contains(code, h) {
			return true
		}
	}
	return false
}

// fencedBlocks walks the markdown AST and returns fenced code blocks in
// document order.
func fencedBlocks(src []byte) []block {
	doc := md.Parser().Parse(text.NewReader(src))
	var out []block
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var info string
		if fb.Info != nil {
			info = string(fb.Info.Segment.Value(src))
		}
		var buf bytes.Buffer
		lines := fb.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		out = append(out, block{info: info, code: buf.String()})
		return ast.WalkSkipChildren, nil
	})
	return out
}
