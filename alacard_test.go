package alacard_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/alacard"
	"github.com/ashita-ai/alacard/internal/testutil"
)

type memStore struct {
	mu        sync.Mutex
	notebooks map[string]alacard.Notebook
	closed    bool
	// collisions reports the next n share IDs as taken.
	collisions int
	saves      int
}

func newMemStore() *memStore {
	return &memStore{notebooks: map[string]alacard.Notebook{}}
}

func (m *memStore) SaveNotebook(_ context.Context, nb alacard.Notebook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if _, ok := m.notebooks[nb.ShareID]; ok || m.collisions > 0 {
		m.collisions = max(m.collisions-1, 0)
		return alacard.ErrShareIDTaken
	}
	m.notebooks[nb.ShareID] = nb
	return nil
}

func (m *memStore) GetNotebook(_ context.Context, shareID string) (alacard.Notebook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nb, ok := m.notebooks[shareID]
	if !ok {
		return alacard.Notebook{}, alacard.ErrNotFound
	}
	return nb, nil
}

func (m *memStore) IncrementViews(_ context.Context, shareID string) error {
	return m.bump(shareID, func(nb *alacard.Notebook) { nb.ViewCount++ })
}

func (m *memStore) IncrementDownloads(_ context.Context, shareID string) error {
	return m.bump(shareID, func(nb *alacard.Notebook) { nb.DownloadCount++ })
}

func (m *memStore) bump(shareID string, fn func(*alacard.Notebook)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	nb, ok := m.notebooks[shareID]
	if !ok {
		return alacard.ErrNotFound
	}
	fn(&nb)
	m.notebooks[shareID] = nb
	return nil
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) Close(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

type staticSource struct{}

func (staticSource) ModelInfo(_ context.Context, modelID string) (alacard.ModelInfo, bool) {
	return alacard.ModelInfo{ID: modelID, PipelineTag: "summarization", Revision: "abc123"}, true
}

func (staticSource) Documentation(_ context.Context, _, revision string) (string, bool) {
	if revision != "abc123" {
		return "", false
	}
	return "# Usage\n\n```python\nfrom transformers import pipeline\nsummarizer = pipeline(\"summarization\")\n```\n", true
}

func TestAppWithInjectedCollaborators(t *testing.T) {
	t.Setenv("ALACARD_RATE_LIMIT_RPS", "0")
	t.Setenv("ALACARD_NOTEBOOK_CACHE_SIZE", "16")

	store := newMemStore()
	store.collisions = 1
	app, err := alacard.New(
		alacard.WithLogger(testutil.TestLogger()),
		alacard.WithVersion("test"),
		alacard.WithNotebookStore(store),
		alacard.WithMetadataSource(staticSource{}),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(app.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/notebooks/generate", "application/json",
		strings.NewReader(`{"model_id":"acme/tiny-summarizer","topic_id":"finance"}`))
	require.NoError(t, err)
	var accepted struct {
		Data struct {
			TaskID string `json:"task_id"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	_ = resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var task struct {
		State       string `json:"state"`
		DocumentRef string `json:"document_ref"`
		Warning     string `json:"warning"`
	}
	require.Eventually(t, func() bool {
		r, err := http.Get(ts.URL + "/v1/tasks/" + accepted.Data.TaskID)
		if err != nil {
			return false
		}
		defer func() { _ = r.Body.Close() }()
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if json.NewDecoder(r.Body).Decode(&env) != nil {
			return false
		}
		_ = json.Unmarshal(env.Data, &task)
		return task.State == "ready" || task.State == "failed"
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, "ready", task.State)
	assert.Empty(t, task.Warning)

	store.mu.Lock()
	saved, ok := store.notebooks[task.DocumentRef]
	saves := store.saves
	store.mu.Unlock()
	require.True(t, ok, "notebook should be saved through the injected store")
	assert.Equal(t, 2, saves, "a taken share id is retried with a new one")
	assert.Equal(t, "acme/tiny-summarizer", saved.ModelID)
	assert.Contains(t, string(saved.Document), "Adapted from the model documentation")
	assert.Contains(t, string(saved.Recipe), `"finance"`)

	r, err := http.Get(ts.URL + "/v1/notebooks/" + task.DocumentRef + "/download")
	require.NoError(t, err)
	_ = r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, "application/x-ipynb+json", r.Header.Get("Content-Type"))

	r, err = http.Get(ts.URL + "/v1/notebooks/zzzzzzzz")
	require.NoError(t, err)
	_ = r.Body.Close()
	assert.Equal(t, http.StatusNotFound, r.StatusCode)

	require.NoError(t, app.Shutdown(context.Background()))
	store.mu.Lock()
	assert.True(t, store.closed)
	assert.Equal(t, int64(1), store.notebooks[task.DocumentRef].DownloadCount)
	store.mu.Unlock()
}

func TestAppRejectsInvalidConfig(t *testing.T) {
	t.Setenv("ALACARD_MAX_CONCURRENT_TASKS", "zero")
	_, err := alacard.New(alacard.WithLogger(testutil.TestLogger()), alacard.WithNotebookStore(newMemStore()))
	assert.Error(t, err)
}
