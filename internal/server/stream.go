package server

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ashita-ai/alacard/internal/model"
)

const (
	// streamKeepalive is how often idle streams are pinged and the task
	// snapshot is re-read in case an event was dropped.
	streamKeepalive = 15 * time.Second
	wsWriteTimeout  = 10 * time.Second
)

// errTaskGone ends a stream whose task expired from the registry.
var errTaskGone = errors.New("server: task no longer tracked")

// HandleTaskWebSocket handles GET /v1/tasks/{task_id}/ws, the push path of
// the progress channel. Each message is a ProgressMessage; the server
// closes with a normal close frame after the terminal snapshot.
func (h *Handlers) HandleTaskWebSocket(w http.ResponseWriter, r *http.Request) {
	events, unsubscribe := h.subscribe(r.PathValue("task_id"))
	defer unsubscribe()

	// Unknown tasks get a plain 404 before any upgrade.
	task, ok := h.lookupTask(w, r)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.logger.Debug("websocket upgrade failed", "task_id", task.TaskID, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	// Drain client frames so close frames and pongs are processed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(t model.GenerationTask) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(model.ProgressMessage{Type: model.ProgressMessageType, Data: t})
	}
	ping := func() error {
		return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
	}

	last, err := h.streamTask(clientGone, task, events, send, ping)
	if err != nil {
		h.logger.Debug("websocket stream ended", "task_id", task.TaskID, "error", err)
		return
	}
	reason := "task " + string(last.State)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(wsWriteTimeout))

	// Give the client a moment to answer the close frame.
	select {
	case <-clientGone:
	case <-time.After(time.Second):
	}
}

// HandleTaskEvents handles GET /v1/tasks/{task_id}/events, the same stream
// as server-sent events.
func (h *Handlers) HandleTaskEvents(w http.ResponseWriter, r *http.Request) {
	events, unsubscribe := h.subscribe(r.PathValue("task_id"))
	defer unsubscribe()

	task, ok := h.lookupTask(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Without this, the server's WriteTimeout cuts long streams.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	send := func(t model.GenerationTask) error {
		msg, err := formatSSE(model.ProgressMessageType, t)
		if err != nil {
			return err
		}
		if _, err := w.Write(msg); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	ping := func() error {
		if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if _, err := h.streamTask(r.Context().Done(), task, events, send, ping); err != nil {
		h.logger.Debug("event stream ended", "task_id", task.TaskID, "error", err)
	}
}

func (h *Handlers) subscribe(taskID string) (<-chan model.ProgressEvent, func()) {
	if h.broker == nil {
		return nil, func() {}
	}
	return h.broker.Subscribe(taskID)
}

// streamTask sends first and then every later snapshot until one is
// terminal, which it returns. Snapshots that would move progress backwards
// or repeat the last one are skipped. The stream is subscribed before first
// is read, so no transition falls between the two.
func (h *Handlers) streamTask(
	done <-chan struct{},
	first model.GenerationTask,
	events <-chan model.ProgressEvent,
	send func(model.GenerationTask) error,
	ping func() error,
) (model.GenerationTask, error) {
	last := first
	if err := send(first); err != nil {
		return last, err
	}
	if first.State.Terminal() {
		return last, nil
	}

	forward := func(t model.GenerationTask) (bool, error) {
		if t.ProgressPercent < last.ProgressPercent ||
			(t.ProgressPercent == last.ProgressPercent && t.State == last.State && t.CurrentStep == last.CurrentStep) {
			return false, nil
		}
		if err := send(t); err != nil {
			return false, err
		}
		last = t
		return t.State.Terminal(), nil
	}

	keepalive := time.NewTicker(h.keepalive())
	defer keepalive.Stop()

	for {
		select {
		case <-done:
			return last, errors.New("server: client disconnected")
		case e, ok := <-events:
			if !ok {
				return last, errors.New("server: subscription closed")
			}
			if end, err := forward(e.Task); end || err != nil {
				return last, err
			}
		case <-keepalive.C:
			t, err := h.runner.Status(first.TaskID)
			if err != nil {
				return last, errTaskGone
			}
			if end, err := forward(t); end || err != nil {
				return last, err
			}
			if err := ping(); err != nil {
				return last, err
			}
		}
	}
}

func (h *Handlers) keepalive() time.Duration {
	if h.streamKeepalive > 0 {
		return h.streamKeepalive
	}
	return streamKeepalive
}

// checkOrigin admits requests without an Origin header (non-browser
// clients) and, when origins are configured, only those origins.
func (h *Handlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.allowedOrigins, origin)
}
