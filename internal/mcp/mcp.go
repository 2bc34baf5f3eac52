// Package mcp implements the Model Context Protocol server for Alacard.
//
// MCP-compatible assistants can browse the card catalog, start notebook
// generation and follow a task to completion through the same runner the
// HTTP API uses.
package mcp

import (
	"context"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/alacard/internal/catalog"
	"github.com/ashita-ai/alacard/internal/model"
)

// TaskRunner is the slice of the generation runner the MCP server drives.
type TaskRunner interface {
	Submit(recipe model.Recipe) (model.GenerationTask, error)
	Status(taskID string) (model.GenerationTask, error)
	UnsavedNotebook(shareID string) (model.NotebookRecord, bool)
}

// NotebookReader reads stored notebooks.
type NotebookReader interface {
	GetNotebook(ctx context.Context, shareID string) (model.NotebookRecord, error)
}

// Server wraps the MCP server with Alacard's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	runner    TaskRunner
	catalog   *catalog.Catalog
	store     NotebookReader
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools
// and prompts. store may be nil.
func New(runner TaskRunner, cat *catalog.Catalog, store NotebookReader, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		runner:  runner,
		catalog: cat,
		store:   store,
		logger:  logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"alacard",
		version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithInstructions("Alacard turns a recipe of five cards (model, prompt pack, topic, difficulty, UI component) "+
			"into a runnable Jupyter notebook. Browse cards with alacard_list_cards, start a build with alacard_generate, "+
			"then poll alacard_task_status until the task is ready and read alacard://notebooks/{share_id}."),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
