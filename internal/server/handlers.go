package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashita-ai/alacard/internal/catalog"
	"github.com/ashita-ai/alacard/internal/model"
	"github.com/ashita-ai/alacard/internal/service/generation"
	"github.com/ashita-ai/alacard/internal/storage"
)

// TaskRunner is the slice of the generation runner the API needs.
type TaskRunner interface {
	Submit(recipe model.Recipe) (model.GenerationTask, error)
	Status(taskID string) (model.GenerationTask, error)
	UnsavedNotebook(shareID string) (model.NotebookRecord, bool)
	EstimatedSeconds() int
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	runner              TaskRunner
	catalog             *catalog.Catalog
	store               storage.NotebookStore
	broker              *Broker
	logger              *slog.Logger
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
	allowedOrigins      []string
	streamKeepalive     time.Duration
	now                 func() time.Time
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Store, Broker, OpenAPISpec.
type HandlersDeps struct {
	Runner              TaskRunner
	Catalog             *catalog.Catalog
	Store               storage.NotebookStore
	Broker              *Broker
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
	AllowedOrigins      []string
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxBody := d.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handlers{
		runner:              d.Runner,
		catalog:             d.Catalog,
		store:               d.Store,
		broker:              d.Broker,
		logger:              logger,
		version:             d.Version,
		maxRequestBodyBytes: maxBody,
		openapiSpec:         d.OpenAPISpec,
		allowedOrigins:      d.AllowedOrigins,
		now:                 time.Now,
	}
}

// HandleGenerate handles POST /v1/notebooks/generate.
func (h *Handlers) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	recipe, ok := h.resolveBody(w, r)
	if !ok {
		return
	}

	task, err := h.runner.Submit(recipe)
	switch {
	case errors.Is(err, model.ErrInvalidRecipe):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	case errors.Is(err, generation.ErrClosed):
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "server is shutting down")
		return
	case err != nil:
		h.logger.Error("submit generation", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to start generation")
		return
	}

	writeJSON(w, r, http.StatusAccepted, model.GenerateResponse{
		TaskID:           task.TaskID,
		Status:           task.State,
		EstimatedSeconds: h.runner.EstimatedSeconds(),
		StatusURL:        "/v1/tasks/" + task.TaskID,
		StreamURL:        "/v1/tasks/" + task.TaskID + "/ws",
	})
}

// HandleValidateRecipe handles POST /v1/recipes/validate.
func (h *Handlers) HandleValidateRecipe(w http.ResponseWriter, r *http.Request) {
	recipe, ok := h.resolveBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, recipe)
}

// resolveBody decodes a GenerateRequest and resolves it against the
// catalog, writing a 400 on failure.
func (h *Handlers) resolveBody(w http.ResponseWriter, r *http.Request) (model.Recipe, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	var req model.GenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput, "request body too large")
			return model.Recipe{}, false
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return model.Recipe{}, false
	}
	recipe, err := h.catalog.Resolve(req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return model.Recipe{}, false
	}
	return recipe, true
}

// HandleTaskStatus handles GET /v1/tasks/{task_id}.
func (h *Handlers) HandleTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, ok := h.lookupTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, task)
}

func (h *Handlers) lookupTask(w http.ResponseWriter, r *http.Request) (model.GenerationTask, bool) {
	task, err := h.runner.Status(r.PathValue("task_id"))
	if err != nil {
		if errors.Is(err, generation.ErrTaskNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "task not found")
		} else {
			writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to read task")
		}
		return model.GenerationTask{}, false
	}
	return task, true
}

// HandleGetNotebook handles GET /v1/notebooks/{share_id}.
func (h *Handlers) HandleGetNotebook(w http.ResponseWriter, r *http.Request) {
	rec, stored, ok := h.lookupNotebook(w, r)
	if !ok {
		return
	}
	if stored {
		if err := h.store.IncrementViews(r.Context(), rec.ShareID); err != nil {
			h.logger.Warn("increment views", "share_id", rec.ShareID, "error", err)
		} else {
			rec.ViewCount++
		}
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// HandleDownloadNotebook handles GET /v1/notebooks/{share_id}/download.
func (h *Handlers) HandleDownloadNotebook(w http.ResponseWriter, r *http.Request) {
	rec, stored, ok := h.lookupNotebook(w, r)
	if !ok {
		return
	}
	body, err := json.MarshalIndent(rec.Notebook, "", " ")
	if err != nil {
		h.logger.Error("encode notebook", "share_id", rec.ShareID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to encode notebook")
		return
	}
	if stored {
		if err := h.store.IncrementDownloads(r.Context(), rec.ShareID); err != nil {
			h.logger.Warn("increment downloads", "share_id", rec.ShareID, "error", err)
		}
	}

	name := rec.ModelID
	if rec.Recipe.Model != nil {
		name = rec.Recipe.Model.DisplayName()
	}
	w.Header().Set("Content-Type", model.NotebookContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, DownloadFilename(name, h.now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// lookupNotebook finds a notebook in the store, then among generated but
// unsaved notebooks. stored reports which.
func (h *Handlers) lookupNotebook(w http.ResponseWriter, r *http.Request) (rec model.NotebookRecord, stored, ok bool) {
	shareID := r.PathValue("share_id")
	if h.store != nil {
		rec, err := h.store.GetNotebook(r.Context(), shareID)
		if err == nil {
			return rec, true, true
		}
		if !errors.Is(err, storage.ErrNotFound) {
			h.logger.Warn("read notebook", "share_id", shareID, "error", err)
		}
	}
	if rec, found := h.runner.UnsavedNotebook(shareID); found {
		return rec, false, true
	}
	writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "notebook not found")
	return model.NotebookRecord{}, false, false
}

// DownloadFilename names a notebook download after its model.
func DownloadFilename(displayName string, at time.Time) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		}
		return '-'
	}, displayName)
	if clean == "" {
		clean = "notebook"
	}
	return fmt.Sprintf("alacard-%s-%d.ipynb", clean, at.Unix())
}

// HandleListCards handles GET /v1/cards/{kind}. Prompt packs and UI
// components accept ?task_kind= to list only compatible cards.
func (h *Handlers) HandleListCards(w http.ResponseWriter, r *http.Request) {
	kind := model.CardKind(r.PathValue("kind"))
	if tk := r.URL.Query().Get("task_kind"); tk != "" {
		switch kind {
		case model.CardPromptPacks:
			writeJSON(w, r, http.StatusOK, h.catalog.CompatiblePromptPacks(model.TaskKind(tk)))
			return
		case model.CardUIComponents:
			writeJSON(w, r, http.StatusOK, h.catalog.CompatibleUIComponents(model.TaskKind(tk)))
			return
		}
	}
	cards, ok := h.catalog.Cards(kind)
	if !ok {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, fmt.Sprintf("unknown card kind %q", kind))
		return
	}
	writeJSON(w, r, http.StatusOK, cards)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{Status: "healthy", Version: h.version, Storage: "none"}
	status := http.StatusOK
	if h.store != nil {
		resp.Storage = "connected"
		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.Warn("health: storage ping failed", "error", err)
			resp.Status = "unhealthy"
			resp.Storage = "disconnected"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, r, status, resp)
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}
