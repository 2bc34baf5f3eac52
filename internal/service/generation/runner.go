// Package generation runs notebook generation tasks in the background and
// reports their progress.
//
// A task moves queued → fetching → generating → validating → ready, or to
// failed from any non-terminal state. Every transition is published as a
// ProgressEvent. Panics and timeouts inside a task end the task as failed;
// they never reach the host process.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/ashita-ai/alacard/internal/model"
	"github.com/ashita-ai/alacard/internal/service/notebook"
	"github.com/ashita-ai/alacard/internal/storage"
	"github.com/ashita-ai/alacard/internal/telemetry"
)

// ErrTaskNotFound is returned for unknown or expired task IDs.
var ErrTaskNotFound = errors.New("generation: task not found")

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("generation: runner closed")

// Step labels reported alongside each checkpoint.
const (
	LabelQueued     = "Queued"
	LabelFetching   = "Fetching model information"
	LabelGenerating = "Generating notebook cells"
	LabelValidating = "Validating notebook"
	LabelPersisting = "Saving notebook"
	LabelReady      = "Notebook ready"
	LabelFailed     = "Generation failed"
)

// WarningNotSaved is set on ready tasks whose notebook the store rejected.
const WarningNotSaved = "notebook generated but not saved"

// Publisher receives progress events. Implementations must not block.
type Publisher interface {
	Publish(event model.ProgressEvent)
}

// NotebookSaver is the slice of the record store the runner writes to.
type NotebookSaver interface {
	SaveNotebook(ctx context.Context, rec *model.NotebookRecord) error
}

// Assembler builds notebooks from recipes.
type Assembler interface {
	Fetch(ctx context.Context, r model.Recipe) notebook.Sources
	Build(r model.Recipe, src notebook.Sources) model.Notebook
}

// Config tunes the runner.
type Config struct {
	// TaskTimeout bounds one task from submission to a terminal state.
	TaskTimeout time.Duration
	// TaskTTL is how long finished tasks stay queryable.
	TaskTTL time.Duration
	// MaxConcurrent caps tasks past the queued state.
	MaxConcurrent int
	// EstimatedDuration is reported to callers on submission.
	EstimatedDuration time.Duration
}

func (c *Config) defaults() {
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 2 * time.Minute
	}
	if c.TaskTTL <= 0 {
		c.TaskTTL = time.Hour
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.EstimatedDuration <= 0 {
		c.EstimatedDuration = 30 * time.Second
	}
}

// Runner executes generation tasks.
type Runner struct {
	assembler Assembler
	store     NotebookSaver
	publisher Publisher
	registry  *Registry
	sem       *semaphore.Weighted
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
	closeMu sync.RWMutex

	taskCount    metric.Int64Counter
	taskDuration metric.Float64Histogram
	activeTasks  metric.Int64UpDownCounter
}

// NewRunner creates a Runner. store and publisher may be nil.
func NewRunner(assembler Assembler, store NotebookSaver, publisher Publisher, logger *slog.Logger, cfg Config) *Runner {
	cfg.defaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	meter := telemetry.Meter("alacard/generation")
	taskCount, _ := meter.Int64Counter("alacard.generation.tasks",
		metric.WithDescription("Generation tasks by outcome"),
	)
	taskDuration, _ := meter.Float64Histogram("alacard.generation.duration",
		metric.WithDescription("Time from submission to a terminal state"),
		metric.WithUnit("s"),
	)
	active, _ := meter.Int64UpDownCounter("alacard.generation.active",
		metric.WithDescription("Generation tasks not yet terminal"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		assembler:    assembler,
		store:        store,
		publisher:    publisher,
		registry:     NewRegistry(cfg.TaskTTL),
		sem:          semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		baseCtx:      ctx,
		cancel:       cancel,
		taskCount:    taskCount,
		taskDuration: taskDuration,
		activeTasks:  active,
	}
}

// EstimatedSeconds is the duration reported to callers on submission.
func (r *Runner) EstimatedSeconds() int {
	return int(r.cfg.EstimatedDuration / time.Second)
}

// Submit validates recipe and starts a task for it. The returned snapshot
// is in the queued state.
func (r *Runner) Submit(recipe model.Recipe) (model.GenerationTask, error) {
	if err := recipe.Validate(); err != nil {
		return model.GenerationTask{}, err
	}

	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		return model.GenerationTask{}, ErrClosed
	}

	now := r.now().UTC()
	rec := &taskRecord{task: model.GenerationTask{
		TaskID:          uuid.NewString(),
		State:           model.TaskQueued,
		ProgressPercent: model.ProgressQueued,
		CurrentStep:     LabelQueued,
		ModelID:         recipe.Model.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}}
	r.registry.add(rec)
	snap := rec.snapshot()
	r.publish(snap)
	r.activeTasks.Add(r.baseCtx, 1)
	r.logger.Info("task accepted", "task_id", snap.TaskID, "model_id", snap.ModelID)

	r.wg.Add(1)
	go r.run(rec, recipe)
	return snap, nil
}

// Status returns the current snapshot of a task.
func (r *Runner) Status(taskID string) (model.GenerationTask, error) {
	rec, ok := r.registry.get(taskID)
	if !ok {
		return model.GenerationTask{}, ErrTaskNotFound
	}
	return rec.snapshot(), nil
}

// UnsavedNotebook returns a notebook that was generated but rejected by the
// store, while its task is still retained.
func (r *Runner) UnsavedNotebook(shareID string) (model.NotebookRecord, bool) {
	return r.registry.unsaved(shareID)
}

// Close stops accepting tasks and waits for running ones until ctx ends,
// after which remaining tasks are cancelled and fail.
func (r *Runner) Close(ctx context.Context) error {
	r.closeMu.Lock()
	r.closed = true
	r.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		r.cancel()
		<-done
		err = fmt.Errorf("generation: close: %w", ctx.Err())
	}
	r.cancel()
	r.registry.Close()
	return err
}

func (r *Runner) run(rec *taskRecord, recipe model.Recipe) {
	defer r.wg.Done()
	start := r.now()
	ctx, cancel := context.WithTimeout(r.baseCtx, r.cfg.TaskTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("task panicked", "task_id", rec.snapshot().TaskID, "panic", p)
			r.fail(rec, "internal error during generation")
		}
		r.finish(rec, start)
	}()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.fail(rec, timeoutMessage(ctx, "while queued"))
		return
	}
	defer r.sem.Release(1)

	r.transition(rec, model.TaskFetching, model.ProgressFetching, LabelFetching)
	src := r.assembler.Fetch(ctx, recipe)
	if ctx.Err() != nil {
		r.fail(rec, timeoutMessage(ctx, "while fetching model information"))
		return
	}

	r.transition(rec, model.TaskGenerating, model.ProgressGenerating, LabelGenerating)
	nb := r.assembler.Build(recipe, src)

	r.transition(rec, model.TaskValidating, model.ProgressValidating, LabelValidating)
	if err := notebook.Validate(nb); err != nil {
		r.fail(rec, "generated notebook is malformed: "+err.Error())
		return
	}

	r.transition(rec, model.TaskValidating, model.ProgressPersisting, LabelPersisting)
	record := model.NotebookRecord{
		ShareID:  storage.NewShareID(),
		ModelID:  recipe.Model.ID,
		Recipe:   recipe,
		Notebook: nb,
	}
	warning := ""
	if err := r.save(ctx, &record); err != nil {
		r.logger.Warn("notebook persist failed", "task_id", rec.snapshot().TaskID, "share_id", record.ShareID, "error", err)
		warning = WarningNotSaved
		rec.mu.Lock()
		rec.unsaved = &record
		rec.mu.Unlock()
		r.registry.indexUnsaved(record.ShareID, rec)
	}
	r.complete(rec, record.ShareID, warning)
}

// saveAttempts bounds how many share IDs are tried before giving up.
const saveAttempts = 3

// save persists record, drawing a new share ID whenever the store reports
// the current one as taken.
func (r *Runner) save(ctx context.Context, record *model.NotebookRecord) error {
	if r.store == nil {
		return errors.New("no record store configured")
	}
	var err error
	for range saveAttempts {
		err = r.store.SaveNotebook(ctx, record)
		if !errors.Is(err, storage.ErrShareIDTaken) {
			return err
		}
		r.logger.Debug("share id collision", "share_id", record.ShareID)
		record.ShareID = storage.NewShareID()
	}
	return err
}

// transition moves rec forward and publishes the new snapshot. Illegal or
// backwards moves are ignored.
func (r *Runner) transition(rec *taskRecord, state model.TaskState, pct int, label string) {
	rec.mu.Lock()
	if !rec.task.State.CanTransition(state) || pct < rec.task.ProgressPercent {
		rec.mu.Unlock()
		return
	}
	rec.task.State = state
	rec.task.ProgressPercent = pct
	rec.task.CurrentStep = label
	rec.task.UpdatedAt = r.now().UTC()
	snap := rec.task
	rec.mu.Unlock()

	r.logger.Debug("task state changed", "task_id", snap.TaskID, "state", snap.State, "progress", snap.ProgressPercent)
	r.publish(snap)
}

func (r *Runner) complete(rec *taskRecord, shareID, warning string) {
	rec.mu.Lock()
	if rec.task.State.Terminal() {
		rec.mu.Unlock()
		return
	}
	rec.task.State = model.TaskReady
	rec.task.ProgressPercent = model.ProgressReady
	rec.task.CurrentStep = LabelReady
	rec.task.DocumentRef = shareID
	rec.task.Warning = warning
	rec.task.UpdatedAt = r.now().UTC()
	rec.finished = r.now()
	snap := rec.task
	rec.mu.Unlock()

	r.logger.Info("task ready", "task_id", snap.TaskID, "share_id", shareID, "warning", warning)
	r.publish(snap)
}

// fail moves rec to failed, keeping its last progress value.
func (r *Runner) fail(rec *taskRecord, msg string) {
	rec.mu.Lock()
	if rec.task.State.Terminal() {
		rec.mu.Unlock()
		return
	}
	rec.task.State = model.TaskFailed
	rec.task.CurrentStep = LabelFailed
	rec.task.ErrorMessage = msg
	rec.task.UpdatedAt = r.now().UTC()
	rec.finished = r.now()
	snap := rec.task
	rec.mu.Unlock()

	r.logger.Warn("task failed", "task_id", snap.TaskID, "error", msg)
	r.publish(snap)
}

func (r *Runner) finish(rec *taskRecord, start time.Time) {
	snap := rec.snapshot()
	if !snap.State.Terminal() {
		// Reached only if a step returned without a terminal transition.
		r.fail(rec, "generation ended unexpectedly")
		snap = rec.snapshot()
	}
	attrs := metric.WithAttributes(attribute.String("outcome", string(snap.State)))
	r.taskCount.Add(context.Background(), 1, attrs)
	r.taskDuration.Record(context.Background(), r.now().Sub(start).Seconds(), attrs)
	r.activeTasks.Add(context.Background(), -1)
}

func (r *Runner) publish(snap model.GenerationTask) {
	if r.publisher != nil {
		r.publisher.Publish(snap.Event())
	}
}

func timeoutMessage(ctx context.Context, where string) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "generation timed out " + where
	}
	return "generation cancelled " + where
}
