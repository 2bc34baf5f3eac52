package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstSampleNoBlocks(t *testing.T) {
	for _, doc := range []string{
		"",
		"# Model card\n\nJust prose, no code here.\n",
		"Inline `import torch` is not a block.",
	} {
		_, ok := FirstSample(doc, Python)
		assert.False(t, ok, "doc %q", doc)
	}
}

func TestFirstSampleTaggedWinsInOrder(t *testing.T) {
	doc := "# Usage\n\n" +
		"```python\n\n  print(\"first\")  \n\n```\n\n" +
		"Some prose.\n\n" +
		"```python\nimport torch\nfrom transformers import AutoModel\nmodel = AutoModel.from_pretrained(\"x\")\nprint(model)\n```\n"

	s, ok := FirstSample(doc, Python)
	require.True(t, ok)
	assert.Equal(t, `print("first")`, s.Code)
	assert.Equal(t, "python", s.Language)
}

func TestFirstSampleTagCaseAndAlias(t *testing.T) {
	s, ok := FirstSample("```Python\nx = 1\n```\n", Python)
	require.True(t, ok)
	assert.Equal(t, "x = 1", s.Code)

	s, ok = FirstSample("```py title=\"demo\"\ny = 2\n```\n", Python)
	require.True(t, ok)
	assert.Equal(t, "y = 2", s.Code)
}

func TestFirstSampleTaggedPreferredOverEarlierUntagged(t *testing.T) {
	doc := "```\nimport os\n```\n\n```python\nprint(\"tagged\")\n```\n"
	s, ok := FirstSample(doc, Python)
	require.True(t, ok)
	assert.Equal(t, `print("tagged")`, s.Code)
}

func TestFirstSampleHeuristicFallback(t *testing.T) {
	doc := "```bash\npip install transformers\n```\n\n" +
		"```\nfrom transformers import pipeline\npipe = pipeline(\"text-generation\")\n```\n\n" +
		"```\nimport torch\n```\n"

	s, ok := FirstSample(doc, Python)
	require.True(t, ok)
	assert.Equal(t, "from transformers import pipeline\npipe = pipeline(\"text-generation\")", s.Code)
}

func TestFirstSampleNoQualifyingBlock(t *testing.T) {
	doc := "```bash\npip install transformers\n```\n\n```json\n{\"a\": 1}\n```\n"
	_, ok := FirstSample(doc, Python)
	assert.False(t, ok)
}

func TestFirstSampleWithFrontMatter(t *testing.T) {
	doc := "---\nlicense: mit\ntags:\n- text-generation\n---\n\n# GPT-2\n\n```python\nprint(\"hi\")\n```\n"
	s, ok := FirstSample(doc, Python)
	require.True(t, ok)
	assert.Equal(t, `print("hi")`, s.Code)
}
