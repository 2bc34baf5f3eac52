package generation

import (
	"sync"
	"time"

	"github.com/ashita-ai/alacard/internal/model"
)

// taskRecord is the state of one task. Only the task's own goroutine
// mutates it; readers take snapshots under mu.
type taskRecord struct {
	mu       sync.Mutex
	task     model.GenerationTask
	unsaved  *model.NotebookRecord
	finished time.Time
}

func (t *taskRecord) snapshot() model.GenerationTask {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.task
}

// Registry indexes live and recently finished tasks. Finished tasks are
// evicted once they are older than the TTL.
type Registry struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	tasks   map[string]*taskRecord
	byShare map[string]*taskRecord

	stopOnce sync.Once
	done     chan struct{}
}

// NewRegistry creates a registry and starts its eviction goroutine.
// Call Close to stop it.
func NewRegistry(ttl time.Duration) *Registry {
	r := &Registry{
		ttl:     ttl,
		now:     time.Now,
		tasks:   make(map[string]*taskRecord),
		byShare: make(map[string]*taskRecord),
		done:    make(chan struct{}),
	}
	go r.cleanup()
	return r
}

func (r *Registry) add(rec *taskRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[rec.task.TaskID] = rec
}

func (r *Registry) get(id string) (*taskRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.tasks[id]
	return rec, ok
}

// indexUnsaved makes a notebook that missed the store reachable by share ID.
func (r *Registry) indexUnsaved(shareID string, rec *taskRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byShare[shareID] = rec
}

func (r *Registry) unsaved(shareID string) (model.NotebookRecord, bool) {
	r.mu.RLock()
	rec, ok := r.byShare[shareID]
	r.mu.RUnlock()
	if !ok {
		return model.NotebookRecord{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.unsaved == nil {
		return model.NotebookRecord{}, false
	}
	return *rec.unsaved, true
}

// Len reports the number of tracked tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Close stops the eviction goroutine. Safe to call multiple times.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Registry) cleanup() {
	interval := r.ttl / 4
	if interval > time.Minute || interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.evictExpired()
		}
	}
}

func (r *Registry) evictExpired() {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.tasks {
		rec.mu.Lock()
		expired := !rec.finished.IsZero() && rec.finished.Before(cutoff)
		rec.mu.Unlock()
		if expired {
			delete(r.tasks, id)
		}
	}
	for share, rec := range r.byShare {
		rec.mu.Lock()
		expired := !rec.finished.IsZero() && rec.finished.Before(cutoff)
		rec.mu.Unlock()
		if expired {
			delete(r.byShare, share)
		}
	}
}
