package alacard

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ObserverState describes the Observer's link to the server.
type ObserverState string

const (
	StateIdle         ObserverState = "idle"
	StateConnecting   ObserverState = "connecting"
	StateConnected    ObserverState = "connected"
	StateDisconnected ObserverState = "disconnected"
	StateTerminal     ObserverState = "terminal"
	StateStopped      ObserverState = "stopped"
)

// DefaultPollInterval is the status polling period used when push is
// unavailable.
const DefaultPollInterval = 2 * time.Second

// eventBuffer exceeds the number of distinct progress checkpoints, so
// callers that only use Wait never block the observer.
const eventBuffer = 16

type observeConfig struct {
	pollInterval time.Duration
	pollOnly     bool
	dialer       *websocket.Dialer
}

// ObserveOption configures Observe.
type ObserveOption func(*observeConfig)

// WithPollInterval sets the status polling period.
func WithPollInterval(d time.Duration) ObserveOption {
	return func(c *observeConfig) { c.pollInterval = d }
}

// WithPollOnly skips the push channel and polls from the start.
func WithPollOnly() ObserveOption {
	return func(c *observeConfig) { c.pollOnly = true }
}

// WithDialer sets the websocket dialer used for the push channel.
func WithDialer(d *websocket.Dialer) ObserveOption {
	return func(c *observeConfig) { c.dialer = d }
}

// Observer follows one generation task until it is ready or failed. It
// listens on the websocket push channel first; if the socket cannot be
// opened or drops before a terminal event, it polls the status endpoint
// instead. Delivered snapshots never move backwards in progress.
type Observer struct {
	client *Client
	taskID string
	cfg    observeConfig
	events chan Task
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     ObserverState
	polling   bool
	delivered bool
	last      Task
	err       error
}

// Observe starts following taskID in the background. Cancelling ctx has
// the same effect as Stop.
func (c *Client) Observe(ctx context.Context, taskID string, opts ...ObserveOption) *Observer {
	cfg := observeConfig{pollInterval: DefaultPollInterval, dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = DefaultPollInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	o := &Observer{
		client: c,
		taskID: taskID,
		cfg:    cfg,
		events: make(chan Task, eventBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateIdle,
	}
	go o.run(ctx)
	return o
}

// Events delivers task snapshots in non-decreasing progress order. The
// channel is closed after the terminal snapshot or when observation stops.
func (o *Observer) Events() <-chan Task {
	return o.events
}

// State returns the current link state.
func (o *Observer) State() ObserverState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// PollingActive reports whether the observer is currently polling.
func (o *Observer) PollingActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.polling
}

// Stop ends observation and waits for the background work to finish. The
// socket is closed and polling stops. Stop is safe to call more than once
// and after the task has finished.
func (o *Observer) Stop() {
	o.cancel()
	<-o.done
}

// Wait blocks until observation ends and returns the last snapshot. The
// error is nil only when the task reached a terminal state; a failed task
// is still returned with a nil error and State TaskFailed.
func (o *Observer) Wait(ctx context.Context) (Task, error) {
	select {
	case <-o.done:
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateTerminal {
		return o.last, nil
	}
	return o.last, o.err
}

func (o *Observer) run(ctx context.Context) {
	defer close(o.done)
	defer close(o.events)
	defer o.finish()
	defer o.cancel()

	if !o.cfg.pollOnly {
		o.setState(StateConnecting)
		terminal, err := o.push(ctx)
		if terminal || ctx.Err() != nil {
			return
		}
		o.mu.Lock()
		o.err = err
		o.mu.Unlock()
	}
	o.setState(StateDisconnected)
	o.poll(ctx)
}

// push reads the websocket channel. It returns true once a terminal
// snapshot has been delivered.
func (o *Observer) push(ctx context.Context) (bool, error) {
	conn, resp, err := o.cfg.dialer.DialContext(ctx, o.client.wsURL("/v1/tasks/"+url.PathEscape(o.taskID)+"/ws"), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("alacard: dial progress channel: %w", err)
	}
	defer func() { _ = conn.Close() }()
	o.setState(StateConnected)

	// A blocked read only returns once the socket closes.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var msg progressMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return false, fmt.Errorf("alacard: read progress channel: %w", err)
		}
		if msg.Type != "progress" {
			continue
		}
		if !o.deliver(ctx, msg.Data) {
			return false, ctx.Err()
		}
		if msg.Data.State.Terminal() {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return true, nil
		}
	}
}

// poll reads the status endpoint immediately and then once per interval.
// Transient errors are retried on the next tick; a 404 ends observation.
func (o *Observer) poll(ctx context.Context) {
	o.mu.Lock()
	o.polling = true
	o.mu.Unlock()

	ticker := time.NewTicker(o.cfg.pollInterval)
	defer ticker.Stop()

	for {
		task, err := o.client.Status(ctx, o.taskID)
		switch {
		case err == nil:
			if !o.deliver(ctx, *task) || task.State.Terminal() {
				return
			}
		case ctx.Err() != nil:
			return
		case IsNotFound(err):
			o.mu.Lock()
			o.err = err
			o.mu.Unlock()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// deliver forwards t unless it would move progress backwards or repeats
// the last snapshot. It returns false when ctx ended first.
func (o *Observer) deliver(ctx context.Context, t Task) bool {
	o.mu.Lock()
	if o.delivered && (t.ProgressPercent < o.last.ProgressPercent ||
		(t.ProgressPercent == o.last.ProgressPercent && t.State == o.last.State && t.CurrentStep == o.last.CurrentStep)) {
		o.mu.Unlock()
		return true
	}
	o.delivered = true
	o.last = t
	if t.State.Terminal() {
		o.state = StateTerminal
		o.polling = false
	}
	o.mu.Unlock()

	select {
	case o.events <- t:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Observer) finish() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.polling = false
	if o.state == StateTerminal {
		return
	}
	o.state = StateStopped
	if o.err == nil || !IsNotFound(o.err) {
		o.err = ErrStopped
	}
}

func (o *Observer) setState(s ObserverState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateTerminal {
		o.state = s
	}
}
