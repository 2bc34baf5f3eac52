// Package alacard is the public API for embedding the Alacard notebook
// generation server.
//
// Consumers construct and run the server without forking it:
//
//	app, err := alacard.New(
//	    alacard.WithVersion(version),
//	    alacard.WithLogger(logger),
//	    alacard.WithNotebookStore(myStore),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// internal/* never imports this package. Public types (Notebook, ModelInfo)
// are standalone structs; the adapters that convert them to the internal
// model live in this file because it is the only one that sees both sides.
package alacard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/ashita-ai/alacard/api"
	"github.com/ashita-ai/alacard/internal/catalog"
	"github.com/ashita-ai/alacard/internal/config"
	"github.com/ashita-ai/alacard/internal/mcp"
	"github.com/ashita-ai/alacard/internal/model"
	"github.com/ashita-ai/alacard/internal/ratelimit"
	"github.com/ashita-ai/alacard/internal/server"
	"github.com/ashita-ai/alacard/internal/service/adapt"
	"github.com/ashita-ai/alacard/internal/service/generation"
	"github.com/ashita-ai/alacard/internal/service/hub"
	"github.com/ashita-ai/alacard/internal/service/notebook"
	"github.com/ashita-ai/alacard/internal/storage"
	"github.com/ashita-ai/alacard/internal/telemetry"
)

// App is the Alacard server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	store        storage.NotebookStore
	runner       *generation.Runner
	limiter      ratelimit.Limiter
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New loads configuration, opens the notebook store and wires every
// subsystem. It does NOT accept HTTP connections; call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.catalogPath != "" {
		cfg.CatalogPath = o.catalogPath
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("alacard starting", "version", version, "port", cfg.Port)

	ctx := context.Background()
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, err
	}
	logger.Info("catalog loaded", "version", cat.Version, "models", len(cat.Models), "topics", len(cat.Topics))

	var store storage.NotebookStore
	if o.store != nil {
		store = publicStore{s: o.store}
	} else {
		store, err = storage.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			_ = otelShutdown(ctx)
			return nil, err
		}
	}
	cached, err := storage.NewCachedStore(store, cfg.NotebookCacheSize)
	if err != nil {
		store.Close(ctx)
		_ = otelShutdown(ctx)
		return nil, err
	}
	store = cached

	var source notebook.MetadataSource
	if o.metadataSource != nil {
		source = publicSource{s: o.metadataSource}
	} else {
		source = hub.New(hub.Config{
			BaseURL: cfg.HubURL,
			Token:   cfg.HubToken,
			Timeout: cfg.FetchTimeout,
			Logger:  logger,
		})
	}

	assembler := notebook.NewAssembler(source, adapt.New(cat, nil), notebook.WithRegistryURL(cfg.HubURL))
	broker := server.NewBroker()
	runner := generation.NewRunner(assembler, store, broker, logger, generation.Config{
		TaskTimeout:   cfg.TaskTimeout,
		TaskTTL:       cfg.TaskTTL,
		MaxConcurrent: cfg.MaxConcurrentTasks,
	})
	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst)
	mcpSrv := mcp.New(runner, cat, store, logger, version)

	srv := server.New(server.ServerConfig{
		Runner:              runner,
		Catalog:             cat,
		Logger:              logger,
		Store:               store,
		Limiter:             limiter,
		Broker:              broker,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		AllowedOrigins:      cfg.CORSOrigins,
		OpenAPISpec:         api.OpenAPISpec,
	})

	return &App{
		cfg:          cfg,
		store:        store,
		runner:       runner,
		limiter:      limiter,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Handler returns the root HTTP handler, for mounting the API inside
// another server or for tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = a.Shutdown(context.Background())
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown stops accepting HTTP requests and drains in-flight ones, then
// gives running generation tasks until the shutdown timeout to finish.
// Tasks still running after that fail. It then closes the store and the
// OTEL providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("alacard shutting down")

	ctx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
		errs = append(errs, err)
	}
	if err := a.runner.Close(ctx); err != nil {
		a.logger.Warn("generation tasks cancelled at shutdown", "error", err)
		errs = append(errs, err)
	}
	_ = a.limiter.Close()
	a.store.Close(context.Background())
	_ = a.otelShutdown(context.Background())

	a.logger.Info("alacard stopped")
	return errors.Join(errs...)
}

// publicStore adapts a NotebookStore to the internal store interface.
type publicStore struct {
	s NotebookStore
}

func (p publicStore) SaveNotebook(ctx context.Context, rec *model.NotebookRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.ShareID == "" {
		rec.ShareID = storage.NewShareID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.ModelID == "" && rec.Recipe.Model != nil {
		rec.ModelID = rec.Recipe.Model.ID
	}
	recipe, err := json.Marshal(rec.Recipe)
	if err != nil {
		return fmt.Errorf("alacard: marshal recipe: %w", err)
	}
	doc, err := json.Marshal(rec.Notebook)
	if err != nil {
		return fmt.Errorf("alacard: marshal notebook: %w", err)
	}
	return toStorageErr(p.s.SaveNotebook(ctx, Notebook{
		ShareID:       rec.ShareID,
		ModelID:       rec.ModelID,
		Recipe:        recipe,
		Document:      doc,
		CreatedAt:     rec.CreatedAt,
		ViewCount:     rec.ViewCount,
		DownloadCount: rec.DownloadCount,
	}))
}

func (p publicStore) GetNotebook(ctx context.Context, shareID string) (model.NotebookRecord, error) {
	nb, err := p.s.GetNotebook(ctx, shareID)
	if err != nil {
		return model.NotebookRecord{}, toStorageErr(err)
	}
	rec := model.NotebookRecord{
		ShareID:       nb.ShareID,
		ModelID:       nb.ModelID,
		CreatedAt:     nb.CreatedAt,
		ViewCount:     nb.ViewCount,
		DownloadCount: nb.DownloadCount,
	}
	if err := json.Unmarshal(nb.Recipe, &rec.Recipe); err != nil {
		return model.NotebookRecord{}, fmt.Errorf("alacard: decode recipe %s: %w", shareID, err)
	}
	if err := json.Unmarshal(nb.Document, &rec.Notebook); err != nil {
		return model.NotebookRecord{}, fmt.Errorf("alacard: decode notebook %s: %w", shareID, err)
	}
	return rec, nil
}

func (p publicStore) IncrementViews(ctx context.Context, shareID string) error {
	return toStorageErr(p.s.IncrementViews(ctx, shareID))
}

func (p publicStore) IncrementDownloads(ctx context.Context, shareID string) error {
	return toStorageErr(p.s.IncrementDownloads(ctx, shareID))
}

func (p publicStore) Ping(ctx context.Context) error { return p.s.Ping(ctx) }

func (p publicStore) Close(ctx context.Context) { p.s.Close(ctx) }

func toStorageErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %w", storage.ErrNotFound, err)
	case errors.Is(err, ErrShareIDTaken):
		return fmt.Errorf("%w: %w", storage.ErrShareIDTaken, err)
	}
	return err
}

// publicSource adapts a MetadataSource to the assembler's source interface.
type publicSource struct {
	s MetadataSource
}

func (p publicSource) FetchMetadata(ctx context.Context, modelID string) *model.ModelMetadata {
	info, ok := p.s.ModelInfo(ctx, modelID)
	if !ok {
		return nil
	}
	id := info.ID
	if id == "" {
		id = modelID
	}
	return &model.ModelMetadata{
		ID:            id,
		DisplayName:   model.ModelCard{ID: id}.DisplayName(),
		TaskKind:      model.TaskKindFromPipelineTag(info.PipelineTag),
		PipelineTag:   info.PipelineTag,
		DownloadCount: info.DownloadCount,
		LikeCount:     info.LikeCount,
		Tags:          info.Tags,
		License:       info.License,
		Revision:      info.Revision,
	}
}

func (p publicSource) FetchDocumentation(ctx context.Context, modelID, revision string) string {
	doc, ok := p.s.Documentation(ctx, modelID, revision)
	if !ok {
		return ""
	}
	return doc
}
