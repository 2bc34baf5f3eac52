package model

import "time"

// TaskState is a step of the generation task lifecycle.
type TaskState string

const (
	TaskQueued     TaskState = "queued"
	TaskFetching   TaskState = "fetching"
	TaskGenerating TaskState = "generating"
	TaskValidating TaskState = "validating"
	TaskReady      TaskState = "ready"
	TaskFailed     TaskState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s TaskState) Terminal() bool {
	return s == TaskReady || s == TaskFailed
}

// taskOrder ranks non-failed states along the linear lifecycle.
var taskOrder = map[TaskState]int{
	TaskQueued:     0,
	TaskFetching:   1,
	TaskGenerating: 2,
	TaskValidating: 3,
	TaskReady:      4,
}

// CanTransition reports whether moving from s to next is allowed. Staying
// in the same non-terminal state is allowed so a step can update its label.
func (s TaskState) CanTransition(next TaskState) bool {
	if s.Terminal() {
		return false
	}
	if next == TaskFailed {
		return true
	}
	from, ok := taskOrder[s]
	to, ok2 := taskOrder[next]
	if !ok || !ok2 {
		return false
	}
	return to == from || to == from+1
}

// Progress checkpoints and labels for each lifecycle step.
const (
	ProgressQueued     = 0
	ProgressFetching   = 20
	ProgressGenerating = 40
	ProgressValidating = 60
	ProgressPersisting = 80
	ProgressReady      = 100
)

// GenerationTask is the caller-visible snapshot of one generation run.
type GenerationTask struct {
	TaskID          string    `json:"task_id"`
	State           TaskState `json:"state"`
	ProgressPercent int       `json:"progress_percent"`
	CurrentStep     string    `json:"current_step"`
	DocumentRef     string    `json:"document_ref,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Warning         string    `json:"warning,omitempty"`
	ModelID         string    `json:"model_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Event derives the progress event for this snapshot.
func (t GenerationTask) Event() ProgressEvent {
	return ProgressEvent{
		TaskID:          t.TaskID,
		ProgressPercent: t.ProgressPercent,
		CurrentStep:     t.CurrentStep,
		State:           t.State,
		Task:            t,
	}
}

// ProgressEvent is emitted on each task transition. Task carries the full
// snapshot so push subscribers see the same shape as pollers.
type ProgressEvent struct {
	TaskID          string         `json:"task_id"`
	ProgressPercent int            `json:"progress_percent"`
	CurrentStep     string         `json:"current_step"`
	State           TaskState      `json:"state"`
	Task            GenerationTask `json:"-"`
}

// ProgressMessageType discriminates push channel messages.
const ProgressMessageType = "progress"

// ProgressMessage is the push channel envelope.
type ProgressMessage struct {
	Type string         `json:"type"`
	Data GenerationTask `json:"data"`
}
