package server

import (
	"encoding/json"
	"sync"

	"github.com/ashita-ai/alacard/internal/model"
)

// subscriberBuffer is sized above the number of checkpoints a task emits, so
// a subscriber that drains at all never misses one.
const subscriberBuffer = 16

// Broker fans progress events out to push subscribers of each task. It
// implements generation.Publisher.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan model.ProgressEvent]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[string]map[chan model.ProgressEvent]struct{})}
}

// Subscribe registers interest in taskID's events. The returned func
// unsubscribes and closes the channel; call it exactly once.
func (b *Broker) Subscribe(taskID string) (<-chan model.ProgressEvent, func()) {
	ch := make(chan model.ProgressEvent, subscriberBuffer)
	b.mu.Lock()
	subs, ok := b.subscribers[taskID]
	if !ok {
		subs = make(map[chan model.ProgressEvent]struct{})
		b.subscribers[taskID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subscribers, taskID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers event to every subscriber of its task. A subscriber with a
// full buffer misses the event instead of stalling the task.
func (b *Broker) Publish(event model.ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.TaskID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers reports how many subscribers taskID has.
func (b *Broker) Subscribers(taskID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[taskID])
}

// formatSSE formats a task snapshot as a Server-Sent Events message.
func formatSSE(eventType string, task model.GenerationTask) ([]byte, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	return []byte("event: " + eventType + "\ndata: " + string(data) + "\n\n"), nil
}
