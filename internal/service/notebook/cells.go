package notebook

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/alacard/internal/model"
	"github.com/ashita-ai/alacard/internal/service/scaffold"
)

// CoreInstall is the dependency line every setup cell starts with.
const CoreInstall = "!pip install transformers torch"

func titleCell(r model.Recipe, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# 🃏 Alacard notebook: %s\n\n", r.Model.DisplayName())
	b.WriteString("This notebook was generated from a five-card recipe.\n\n")
	b.WriteString("| Card | Selection |\n|---|---|\n")
	fmt.Fprintf(&b, "| Model | `%s` |\n", r.Model.ID)
	fmt.Fprintf(&b, "| Prompt pack | %s |\n", orUnknown(r.PromptPack.Name, r.PromptPack.ID))
	fmt.Fprintf(&b, "| Topic | %s |\n", strings.TrimSpace(r.Topic.Icon+" "+orUnknown(r.Topic.Name, r.Topic.ID)))
	fmt.Fprintf(&b, "| Difficulty | %s |\n", orUnknown(r.Difficulty.Name, string(r.Difficulty.Level)))
	fmt.Fprintf(&b, "| UI component | %s |\n", orUnknown(r.UIComponent.Name, string(r.UIComponent.Type)))
	if r.Difficulty.ExplanationDepth == model.DepthHigh {
		b.WriteString("\n**How to use this notebook:** run the cells from top to bottom. ")
		b.WriteString("The first run downloads the model weights, which can take a few minutes.\n")
	}
	fmt.Fprintf(&b, "\n_Generated %s._", now.UTC().Format(time.RFC1123))
	return b.String()
}

func setupCell(ui model.UIComponentType) string {
	var b strings.Builder
	b.WriteString("# Install dependencies\n")
	b.WriteString(CoreInstall)
	if extra := scaffold.Requirements(ui); len(extra) > 0 {
		b.WriteString("\n!pip install ")
		b.WriteString(strings.Join(extra, " "))
	}
	return b.String()
}

// smokeTest is the "hello model" cell for a task kind.
func smokeTest(kind model.TaskKind, modelID string) string {
	id := strconv.Quote(modelID)
	switch kind {
	case model.TaskTextGeneration:
		return `from transformers import AutoTokenizer, AutoModelForCausalLM

model_id = ` + id + `
tokenizer = AutoTokenizer.from_pretrained(model_id)
model = AutoModelForCausalLM.from_pretrained(model_id)

inputs = tokenizer("Hello, my name is", return_tensors="pt")
outputs = model.generate(**inputs, max_new_tokens=30, pad_token_id=tokenizer.eos_token_id)
print(tokenizer.decode(outputs[0], skip_special_tokens=True))`
	case model.TaskClassification:
		return `from transformers import pipeline

classifier = pipeline("text-classification", model=` + id + `)
print(classifier("I love how easy this model is to use!"))`
	case model.TaskSummarization:
		return `from transformers import pipeline

summarizer = pipeline("summarization", model=` + id + `)
text = (
    "Machine learning models can be shared on public registries, downloaded with a single line "
    "of code and adapted to new problems. Notebooks make it easy to try them interactively."
)
print(summarizer(text, max_length=40, min_length=10)[0]["summary_text"])`
	default:
		return `from transformers import AutoTokenizer, AutoModel

model_id = ` + id + `
tokenizer = AutoTokenizer.from_pretrained(model_id)
model = AutoModel.from_pretrained(model_id)

print(model.config)`
	}
}

func (a *Assembler) infoCell(md model.ModelMetadata, fromRegistry bool) string {
	var b strings.Builder
	b.WriteString("## Model information\n\n")
	fmt.Fprintf(&b, "- **Model:** [%s](%s/%s)\n", md.ID, a.registryURL, md.ID)
	fmt.Fprintf(&b, "- **Name:** %s\n", orUnknown(md.DisplayName))
	fmt.Fprintf(&b, "- **Task:** %s\n", orUnknown(md.PipelineTag, taskName(md.TaskKind)))
	fmt.Fprintf(&b, "- **Downloads:** %s\n", count(md.DownloadCount))
	fmt.Fprintf(&b, "- **Likes:** %s\n", count(md.LikeCount))
	fmt.Fprintf(&b, "- **License:** %s\n", orUnknown(md.License))
	fmt.Fprintf(&b, "- **Tags:** %s", orUnknown(strings.Join(md.Tags, ", ")))
	if !fromRegistry {
		b.WriteString("\n\n_Live registry data was unavailable; showing the recipe's model card._")
	}
	return b.String()
}

// customExample is a task-specific example seeded with the prompt pack.
// The "Your prompt here" and "Sample text" literals are placeholders the
// topic transform rewrites.
func customExample(kind model.TaskKind, r model.Recipe) string {
	id := strconv.Quote(r.Model.ID)
	var prompts strings.Builder
	for _, p := range r.PromptPack.Prompts {
		fmt.Fprintf(&prompts, "    %s,\n", strconv.Quote(p))
	}

	switch kind {
	case model.TaskClassification:
		return `from transformers import pipeline

classifier = pipeline("text-classification", model=` + id + `)
texts = [
` + prompts.String() + `    "Your prompt here",
]
for text, result in zip(texts, classifier(texts)):
    print(f"{result['label']:>12} ({result['score']:.2f})  {text}")`
	case model.TaskSummarization:
		return `from transformers import pipeline

summarizer = pipeline("summarization", model=` + id + `)
documents = [
` + prompts.String() + `    "Sample text",
]
for doc in documents:
    print(summarizer(doc, max_length=40, min_length=5)[0]["summary_text"])`
	case model.TaskTextGeneration:
		return `from transformers import pipeline

generator = pipeline("text-generation", model=` + id + `)
prompts = [
` + prompts.String() + `    "Your prompt here",
]
for prompt in prompts:
    result = generator(prompt, max_new_tokens=60, do_sample=True, temperature=0.7)
    print(f"Prompt: {prompt}")
    print(result[0]["generated_text"])
    print("-" * 40)`
	default:
		return `from transformers import pipeline

model_pipeline = pipeline(model=` + id + `)
inputs = [
` + prompts.String() + `    "Your prompt here",
]
for text in inputs:
    print(text, "->", model_pipeline(text))`
	}
}

func scaffoldCell(r model.Recipe, rendered string) string {
	if rendered == "" {
		rendered = scaffold.Generate(r.UIComponent.Type, r.Model.ID, r.PromptPack.Prompts)
	}
	if r.UIComponent.Type == model.UIDashboard {
		return "%%writefile app.py\n" + rendered
	}
	return rendered
}

func nextStepsCell(r model.Recipe) string {
	var b strings.Builder
	b.WriteString("## Next steps\n\n")
	fmt.Fprintf(&b, "Try these prompts from the **%s** pack:\n\n", orUnknown(r.PromptPack.Name, r.PromptPack.ID))
	for i, p := range r.PromptPack.Prompts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p)
	}
	b.WriteString("\n### Remix and share\n\n")
	b.WriteString("- Swap a single card (topic, difficulty or UI component) and regenerate to compare notebooks.\n")
	fmt.Fprintf(&b, "- Try the same recipe with another model from the `%s` family.\n", taskName(r.Model.TaskKind))
	b.WriteString("- Share this notebook with its share link so others can run or remix it.")
	return b.String()
}

func taskName(k model.TaskKind) string {
	if k == "" {
		return string(model.TaskOther)
	}
	return string(k)
}

func count(n int64) string {
	if n <= 0 {
		return "unknown"
	}
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// orUnknown returns the first non-empty value, or "unknown".
func orUnknown(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return "unknown"
}
