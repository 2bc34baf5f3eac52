package generation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/alacard/internal/catalog"
	"github.com/ashita-ai/alacard/internal/model"
	"github.com/ashita-ai/alacard/internal/service/adapt"
	"github.com/ashita-ai/alacard/internal/service/notebook"
	"github.com/ashita-ai/alacard/internal/storage"
	"github.com/ashita-ai/alacard/internal/testutil"
)

// recorder collects published events and signals terminal ones.
type recorder struct {
	mu       sync.Mutex
	events   []model.ProgressEvent
	terminal chan model.ProgressEvent
}

func newRecorder() *recorder {
	return &recorder{terminal: make(chan model.ProgressEvent, 16)}
}

func (r *recorder) Publish(e model.ProgressEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if e.State.Terminal() {
		r.terminal <- e
	}
}

func (r *recorder) eventsFor(taskID string) []model.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ProgressEvent
	for _, e := range r.events {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) wait(t *testing.T) model.ProgressEvent {
	t.Helper()
	select {
	case e := <-r.terminal:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal event")
		return model.ProgressEvent{}
	}
}

type memStore struct {
	mu   sync.Mutex
	recs map[string]model.NotebookRecord
	err  error
	// collisions reports the next n share IDs as taken.
	collisions int
	tried      []string
}

func (m *memStore) SaveNotebook(_ context.Context, rec *model.NotebookRecord) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tried = append(m.tried, rec.ShareID)
	if m.recs == nil {
		m.recs = map[string]model.NotebookRecord{}
	}
	if _, ok := m.recs[rec.ShareID]; ok || m.collisions > 0 {
		m.collisions = max(m.collisions-1, 0)
		return fmt.Errorf("save %s: %w", rec.ShareID, storage.ErrShareIDTaken)
	}
	m.recs[rec.ShareID] = *rec
	return nil
}

func (m *memStore) get(id string) (model.NotebookRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	return r, ok
}

type nullSource struct{}

func (nullSource) FetchMetadata(context.Context, string) *model.ModelMetadata { return nil }
func (nullSource) FetchDocumentation(context.Context, string, string) string {
	return ""
}

func realAssembler() *notebook.Assembler {
	cat := catalog.MustDefault()
	return notebook.NewAssembler(nullSource{}, adapt.New(cat, rand.New(rand.NewPCG(1, 1))))
}

// stubAssembler lets tests control each stage.
type stubAssembler struct {
	fetch func(ctx context.Context) notebook.Sources
	build func() model.Notebook
}

func (s stubAssembler) Fetch(ctx context.Context, _ model.Recipe) notebook.Sources {
	if s.fetch != nil {
		return s.fetch(ctx)
	}
	return notebook.Sources{}
}

func (s stubAssembler) Build(model.Recipe, notebook.Sources) model.Notebook {
	return s.build()
}

func testRecipe() model.Recipe {
	return catalog.MustDefault().DefaultRecipe("openai-community/gpt2")
}

func newRunner(t *testing.T, a Assembler, store NotebookSaver, pub Publisher, cfg Config) *Runner {
	t.Helper()
	r := NewRunner(a, store, pub, testutil.TestLogger(), cfg)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func TestRunnerHappyPath(t *testing.T) {
	rec := newRecorder()
	store := &memStore{}
	r := newRunner(t, realAssembler(), store, rec, Config{})

	task, err := r.Submit(testRecipe())
	require.NoError(t, err)
	assert.Equal(t, model.TaskQueued, task.State)
	assert.Equal(t, 0, task.ProgressPercent)

	final := rec.wait(t)
	assert.Equal(t, model.TaskReady, final.State)
	assert.Equal(t, 100, final.ProgressPercent)

	status, err := r.Status(task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskReady, status.State)
	assert.NotEmpty(t, status.DocumentRef)
	assert.Empty(t, status.Warning)
	assert.Empty(t, status.ErrorMessage)

	saved, ok := store.get(status.DocumentRef)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(saved.Notebook.Cells), notebook.MinCells)

	var states []model.TaskState
	last := -1
	for _, e := range rec.eventsFor(task.TaskID) {
		assert.GreaterOrEqual(t, e.ProgressPercent, last)
		last = e.ProgressPercent
		states = append(states, e.State)
	}
	assert.Equal(t, []model.TaskState{
		model.TaskQueued, model.TaskFetching, model.TaskGenerating,
		model.TaskValidating, model.TaskValidating, model.TaskReady,
	}, states)
}

func TestRunnerRejectsInvalidRecipe(t *testing.T) {
	r := newRunner(t, realAssembler(), &memStore{}, nil, Config{})
	_, err := r.Submit(model.Recipe{})
	assert.ErrorIs(t, err, model.ErrInvalidRecipe)
}

func TestRunnerPersistenceFailureStillReady(t *testing.T) {
	rec := newRecorder()
	r := newRunner(t, realAssembler(), &memStore{err: errors.New("disk full")}, rec, Config{})

	task, err := r.Submit(testRecipe())
	require.NoError(t, err)
	final := rec.wait(t)
	assert.Equal(t, model.TaskReady, final.State)

	status, err := r.Status(task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, WarningNotSaved, status.Warning)
	require.NotEmpty(t, status.DocumentRef)

	nb, ok := r.UnsavedNotebook(status.DocumentRef)
	require.True(t, ok)
	assert.Equal(t, status.DocumentRef, nb.ShareID)
}

func TestRunnerRetriesShareIDCollisions(t *testing.T) {
	rec := newRecorder()
	store := &memStore{collisions: 2}
	r := newRunner(t, realAssembler(), store, rec, Config{})

	task, err := r.Submit(testRecipe())
	require.NoError(t, err)
	require.Equal(t, model.TaskReady, rec.wait(t).State)

	status, err := r.Status(task.TaskID)
	require.NoError(t, err)
	assert.Empty(t, status.Warning)

	store.mu.Lock()
	tried := append([]string(nil), store.tried...)
	store.mu.Unlock()
	require.Len(t, tried, 3)
	assert.NotEqual(t, tried[0], tried[1])
	assert.NotEqual(t, tried[1], tried[2])
	assert.Equal(t, tried[2], status.DocumentRef)

	saved, ok := store.get(status.DocumentRef)
	require.True(t, ok)
	assert.Equal(t, "openai-community/gpt2", saved.ModelID)
}

func TestRunnerGivesUpAfterRepeatedCollisions(t *testing.T) {
	rec := newRecorder()
	store := &memStore{collisions: saveAttempts}
	r := newRunner(t, realAssembler(), store, rec, Config{})

	task, err := r.Submit(testRecipe())
	require.NoError(t, err)
	require.Equal(t, model.TaskReady, rec.wait(t).State)

	status, err := r.Status(task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, WarningNotSaved, status.Warning)
	_, ok := r.UnsavedNotebook(status.DocumentRef)
	assert.True(t, ok)
}

func TestRunnerMalformedNotebookFails(t *testing.T) {
	rec := newRecorder()
	a := stubAssembler{build: func() model.Notebook {
		return model.Notebook{Cells: []model.Cell{model.NewCell(model.CellMarkdown, "x")}}
	}}
	r := newRunner(t, a, &memStore{}, rec, Config{})

	task, err := r.Submit(testRecipe())
	require.NoError(t, err)
	final := rec.wait(t)
	assert.Equal(t, model.TaskFailed, final.State)

	status, _ := r.Status(task.TaskID)
	assert.Contains(t, status.ErrorMessage, "malformed")
	assert.Equal(t, model.ProgressValidating, status.ProgressPercent)
	assert.Empty(t, status.DocumentRef)
}

func TestRunnerRecoversPanics(t *testing.T) {
	rec := newRecorder()
	a := stubAssembler{build: func() model.Notebook { panic("template exploded") }}
	r := newRunner(t, a, &memStore{}, rec, Config{})

	task, err := r.Submit(testRecipe())
	require.NoError(t, err)
	final := rec.wait(t)
	assert.Equal(t, model.TaskFailed, final.State)

	status, _ := r.Status(task.TaskID)
	assert.Equal(t, "internal error during generation", status.ErrorMessage)

	// The runner keeps working after a panic.
	_, err = r.Submit(testRecipe())
	require.NoError(t, err)
	rec.wait(t)
}

func TestRunnerTaskTimeout(t *testing.T) {
	rec := newRecorder()
	a := stubAssembler{
		fetch: func(ctx context.Context) notebook.Sources {
			<-ctx.Done()
			return notebook.Sources{}
		},
		build: func() model.Notebook { return model.Notebook{} },
	}
	r := newRunner(t, a, &memStore{}, rec, Config{TaskTimeout: 50 * time.Millisecond})

	task, err := r.Submit(testRecipe())
	require.NoError(t, err)
	final := rec.wait(t)
	assert.Equal(t, model.TaskFailed, final.State)

	status, _ := r.Status(task.TaskID)
	assert.Equal(t, "generation timed out while fetching model information", status.ErrorMessage)
}

func TestRunnerBoundsConcurrency(t *testing.T) {
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	release := make(chan struct{})
	a := stubAssembler{
		fetch: func(ctx context.Context) notebook.Sources {
			mu.Lock()
			running++
			peak = max(peak, running)
			mu.Unlock()
			<-release
			mu.Lock()
			running--
			mu.Unlock()
			return notebook.Sources{}
		},
		build: func() model.Notebook { return realAssembler().Build(testRecipe(), notebook.Sources{}) },
	}
	rec := newRecorder()
	r := newRunner(t, a, &memStore{}, rec, Config{MaxConcurrent: 2})

	for range 5 {
		_, err := r.Submit(testRecipe())
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return running == 2
	}, 2*time.Second, 5*time.Millisecond)
	close(release)

	for range 5 {
		assert.Equal(t, model.TaskReady, rec.wait(t).State)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, peak)
}

func TestRunnerStatusUnknown(t *testing.T) {
	r := newRunner(t, realAssembler(), nil, nil, Config{})
	_, err := r.Status("nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRunnerWithoutStoreWarns(t *testing.T) {
	rec := newRecorder()
	r := newRunner(t, realAssembler(), nil, rec, Config{})
	task, err := r.Submit(testRecipe())
	require.NoError(t, err)
	rec.wait(t)
	status, _ := r.Status(task.TaskID)
	assert.Equal(t, WarningNotSaved, status.Warning)
}

func TestRunnerClosedRejectsSubmit(t *testing.T) {
	r := NewRunner(realAssembler(), nil, nil, testutil.TestLogger(), Config{})
	require.NoError(t, r.Close(context.Background()))
	_, err := r.Submit(testRecipe())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRegistryEvictsFinishedTasks(t *testing.T) {
	reg := NewRegistry(time.Hour)
	defer reg.Close()
	now := time.Now()
	reg.now = func() time.Time { return now }

	done := &taskRecord{task: model.GenerationTask{TaskID: "done"}, finished: now.Add(-2 * time.Hour)}
	live := &taskRecord{task: model.GenerationTask{TaskID: "live"}}
	reg.add(done)
	reg.add(live)
	reg.indexUnsaved("share123", done)

	reg.evictExpired()

	_, ok := reg.get("done")
	assert.False(t, ok)
	_, ok = reg.get("live")
	assert.True(t, ok)
	_, ok = reg.unsaved("share123")
	assert.False(t, ok)
}
