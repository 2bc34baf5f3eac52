package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/alacard/internal/catalog"
	"github.com/ashita-ai/alacard/internal/server"
	"github.com/ashita-ai/alacard/internal/service/adapt"
	"github.com/ashita-ai/alacard/internal/service/generation"
	"github.com/ashita-ai/alacard/internal/service/notebook"
	"github.com/ashita-ai/alacard/internal/storage"
	"github.com/ashita-ai/alacard/internal/testutil"
)

// startServer runs the real API with an offline assembler.
func startServer(t *testing.T) string {
	t.Helper()
	logger := testutil.TestLogger()
	cat := catalog.MustDefault()
	store, err := storage.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "alacard.db"), logger)
	require.NoError(t, err)

	asm := notebook.NewAssembler(nil, adapt.New(cat, rand.New(rand.NewPCG(3, 3))))
	broker := server.NewBroker()
	runner := generation.NewRunner(asm, store, broker, logger, generation.Config{})
	srv := server.New(server.ServerConfig{
		Runner:  runner,
		Catalog: cat,
		Logger:  logger,
		Store:   store,
		Broker:  broker,
		Version: "test",
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = runner.Close(context.Background())
		store.Close(context.Background())
	})
	return ts.URL
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

var notebookLine = regexp.MustCompile(`notebook ([0-9a-f]{8})`)

func TestGenerateWatchAndDownload(t *testing.T) {
	url := startServer(t)

	out, err := execute(t, "--server", url, "generate",
		"--model", "distilbert-base-uncased", "--topic", "sourdough", "--difficulty", "beginner", "--watch")
	require.NoError(t, err, out)
	assert.Contains(t, out, "queued")
	assert.Contains(t, out, "[100%] ready")

	m := notebookLine.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	shareID := m[1]

	dest := filepath.Join(t.TempDir(), "nb.ipynb")
	out, err = execute(t, "--server", url, "download", shareID, "-o", dest)
	require.NoError(t, err, out)
	assert.Contains(t, out, "saved "+dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var nb struct {
		NBFormat int               `json:"nbformat"`
		Cells    []json.RawMessage `json:"cells"`
	}
	require.NoError(t, json.Unmarshal(data, &nb))
	assert.Equal(t, 4, nb.NBFormat)
	assert.NotEmpty(t, nb.Cells)
}

func TestStatusAndWatchUnknownTask(t *testing.T) {
	url := startServer(t)

	_, err := execute(t, "--server", url, "status", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found or expired")

	_, err = execute(t, "--server", url, "watch", "missing", "--poll-only", "--interval", "10ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found or expired")
}

func TestGenerateValidation(t *testing.T) {
	url := startServer(t)

	_, err := execute(t, "--server", url, "generate")
	require.Error(t, err, "--model is required")

	_, err = execute(t, "--server", url, "generate", "--model", "gpt2", "--difficulty", "expert")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_INPUT")
}

func TestCards(t *testing.T) {
	url := startServer(t)

	out, err := execute(t, "--server", url, "cards", "topics")
	require.NoError(t, err)
	var topics []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &topics))
	assert.Len(t, topics, 6)

	_, err = execute(t, "--server", url, "cards", "spells")
	assert.Error(t, err)
}
