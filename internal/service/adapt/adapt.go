// Package adapt rewrites code samples for a difficulty level and a topic.
// Both transforms are line-oriented text rewrites; they insert comments,
// replace sentinel prompt literals, or wrap the block in error handling,
// and never otherwise change the code.
package adapt

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/ashita-ai/alacard/internal/model"
)

// Comments injected for beginners.
const (
	CommentImport = "# Import the libraries this example needs"
	CommentLoad   = "# Load the model (weights are downloaded and cached on first use)"
)

// ExampleSource supplies a topic's example table.
type ExampleSource interface {
	TopicExamples(topicID string) []string
}

// Adapter applies the difficulty and topic transforms. The random source
// only picks which topic example replaces a placeholder.
type Adapter struct {
	examples ExampleSource

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates an Adapter. A nil rng uses a randomly seeded source.
func New(examples ExampleSource, rng *rand.Rand) *Adapter {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Adapter{examples: examples, rng: rng}
}

// Adapt applies the topic transform and then the difficulty transform.
func (a *Adapter) Adapt(code string, topic model.TopicCard, difficulty model.DifficultyCard) string {
	return ForDifficulty(a.ForTopic(code, topic), difficulty.Level)
}

// ForDifficulty applies the difficulty transform for level.
func ForDifficulty(code string, level model.DifficultyLevel) string {
	switch level {
	case model.LevelBeginner:
		return annotate(code)
	case model.LevelAdvanced:
		return wrapErrors(code)
	default:
		return code
	}
}

// annotate inserts an explanatory comment before import lines and model
// construction calls, keeping the line's indentation. Lines inside a
// multi-line string are left alone.
func annotate(code string) string {
	lines := strings.Split(code, "\n")
	inString := stringLines(lines)
	out := make([]string, 0, len(lines)+4)
	prev := ""
	for i, line := range lines {
		if inString[i] {
			out = append(out, line)
			prev = ""
			continue
		}
		trimmed := strings.TrimSpace(line)
		if comment := commentFor(trimmed); comment != "" && prev != comment {
			indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			out = append(out, indent+comment)
		}
		out = append(out, line)
		prev = trimmed
	}
	return strings.Join(out, "\n")
}

func commentFor(trimmed string) string {
	switch {
	case trimmed == "" || strings.HasPrefix(trimmed, "#"):
		return ""
	case strings.HasPrefix(trimmed, "from __future__ "):
		return ""
	case strings.HasPrefix(trimmed, "import "), strings.HasPrefix(trimmed, "from ") && strings.Contains(trimmed, " import "):
		return CommentImport
	case strings.Contains(trimmed, ".from_pretrained(") || strings.Contains(trimmed, "pipeline("):
		return CommentLoad
	}
	return ""
}

// wrapErrors wraps code in a try/except frame unless it already has a
// top-level one. Leading __future__ imports stay above the frame, and the
// bodies of multi-line strings are not re-indented.
func wrapErrors(code string) string {
	if strings.TrimSpace(code) == "" {
		return code
	}
	lines := strings.Split(code, "\n")
	inString := stringLines(lines)
	if hasTry(lines, inString) {
		return code
	}

	head := futureImports(lines, inString)
	if !hasStatement(lines[head:]) {
		return code
	}
	var b strings.Builder
	for _, line := range lines[:head] {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("try:\n")
	for i, line := range lines[head:] {
		switch {
		case inString[head+i]:
			b.WriteString(line)
		case strings.TrimSpace(line) != "":
			b.WriteString("    ")
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	b.WriteString("except Exception as e:\n")
	b.WriteString("    print(f\"Error: {e}\")\n")
	b.WriteString("    raise")
	return b.String()
}

// hasTry reports whether code already has an unindented try statement.
func hasTry(lines []string, inString []bool) bool {
	for i, line := range lines {
		if !inString[i] && strings.HasPrefix(line, "try:") {
			return true
		}
	}
	return false
}

// hasStatement reports whether lines hold anything besides blanks and
// comments. An empty try body does not compile.
func hasStatement(lines []string) bool {
	for _, line := range lines {
		if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "#") {
			return true
		}
	}
	return false
}

// futureImports returns the number of leading lines that must stay above a
// try frame: everything up to the last __future__ import in the opening run
// of blank lines, comments and __future__ imports.
func futureImports(lines []string, inString []bool) int {
	head := 0
	for i, line := range lines {
		if inString[i] {
			break
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "from __future__ ") {
			head = i + 1
			continue
		}
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			break
		}
	}
	return head
}

// stringLines marks each line that begins inside a triple-quoted string.
// Such lines belong to the literal and must not be rewritten.
func stringLines(lines []string) []bool {
	marks := make([]bool, len(lines))
	delim := ""
	for i, line := range lines {
		marks[i] = delim != ""
		delim = scanLine(line, delim)
	}
	return marks
}

// scanLine returns the triple-quote delimiter still open at the end of
// line, given the one open at its start.
func scanLine(line, delim string) string {
	for j := 0; j < len(line); j++ {
		c := line[j]
		if delim != "" {
			switch {
			case c == '\\':
				j++
			case strings.HasPrefix(line[j:], delim):
				j += len(delim) - 1
				delim = ""
			}
			continue
		}
		switch c {
		case '#':
			return ""
		case '"', '\'':
			if q := strings.Repeat(string(c), 3); strings.HasPrefix(line[j:], q) {
				delim = q
				j += 2
				continue
			}
			for j++; j < len(line) && line[j] != c; j++ {
				if line[j] == '\\' {
					j++
				}
			}
		}
	}
	return delim
}

// placeholders maps sentinel prompt literals to topic-specific rewrites.
// %s is replaced with the chosen topic example.
var placeholders = []struct {
	literal string
	format  string
}{
	{`"Hello, world!"`, `"Tell me about %s"`},
	{`'Hello, world!'`, `"Tell me about %s"`},
	{`"Your prompt here"`, `"Analyze this %s"`},
	{`'Your prompt here'`, `"Analyze this %s"`},
	{`"Sample text"`, `"%s"`},
	{`'Sample text'`, `"%s"`},
}

// ContextComment is the first line of topic-adapted code.
func ContextComment(topic model.TopicCard) string {
	desc := topic.Description
	if desc == "" {
		desc = topic.Name
	}
	if desc == "" {
		desc = topic.ID
	}
	return "# Context: " + desc
}

// ForTopic replaces placeholder prompts with an example from the topic's
// table and prepends a context comment. Applying it twice is a no-op.
func (a *Adapter) ForTopic(code string, topic model.TopicCard) string {
	example := a.pick(topic)
	out := code
	for _, p := range placeholders {
		if strings.Contains(out, p.literal) {
			out = strings.ReplaceAll(out, p.literal, strings.Replace(p.format, "%s", pyEscape(example), 1))
		}
	}
	comment := ContextComment(topic)
	if first, _, _ := strings.Cut(out, "\n"); first == comment {
		return out
	}
	return comment + "\n" + out
}

// Example draws one example for topic, falling back to the generic example.
func (a *Adapter) Example(topic model.TopicCard) string {
	return a.pick(topic)
}

func (a *Adapter) pick(topic model.TopicCard) string {
	examples := topic.Examples
	if len(examples) == 0 && a.examples != nil {
		examples = a.examples.TopicExamples(topic.ID)
	}
	if len(examples) == 0 {
		return "general example"
	}
	a.mu.Lock()
	i := a.rng.IntN(len(examples))
	a.mu.Unlock()
	return examples[i]
}

func pyEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}
