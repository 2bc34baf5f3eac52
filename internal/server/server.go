package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/alacard/internal/catalog"
	"github.com/ashita-ai/alacard/internal/ratelimit"
	"github.com/ashita-ai/alacard/internal/storage"
)

// Server is the Alacard HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Store, Limiter, Broker, MCPServer, OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Runner  TaskRunner
	Catalog *catalog.Catalog
	Logger  *slog.Logger

	// Optional dependencies (nil = disabled).
	Store     storage.NotebookStore
	Limiter   ratelimit.Limiter
	Broker    *Broker
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	AllowedOrigins      []string

	OpenAPISpec []byte
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	h := NewHandlers(HandlersDeps{
		Runner:              cfg.Runner,
		Catalog:             cfg.Catalog,
		Store:               cfg.Store,
		Broker:              cfg.Broker,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
		AllowedOrigins:      cfg.AllowedOrigins,
	})

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	generateRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc, cfg.Logger)

	mux := http.NewServeMux()

	// Generation (rate limited by IP).
	mux.Handle("POST /v1/notebooks/generate", generateRL(http.HandlerFunc(h.HandleGenerate)))
	mux.HandleFunc("POST /v1/recipes/validate", h.HandleValidateRecipe)

	// Progress channel: poll, websocket push, SSE push.
	mux.HandleFunc("GET /v1/tasks/{task_id}", h.HandleTaskStatus)
	mux.HandleFunc("GET /v1/tasks/{task_id}/ws", h.HandleTaskWebSocket)
	mux.HandleFunc("GET /v1/tasks/{task_id}/events", h.HandleTaskEvents)

	// Stored notebooks.
	mux.HandleFunc("GET /v1/notebooks/{share_id}", h.HandleGetNotebook)
	mux.HandleFunc("GET /v1/notebooks/{share_id}/download", h.HandleDownloadNotebook)

	// Card catalog.
	mux.HandleFunc("GET /v1/cards/{kind}", h.HandleListCards)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
