package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/alacard/internal/storage"
)

const (
	catalogURI        = "alacard://catalog"
	notebookURIPrefix = "alacard://notebooks/"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			catalogURI,
			"Card Catalog",
			mcplib.WithResourceDescription("Every model, prompt pack, topic, difficulty and UI component card"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleCatalog,
	)

	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			notebookURIPrefix+"{share_id}",
			"Generated Notebook",
			mcplib.WithTemplateDescription("A generated notebook with its recipe, addressed by share ID"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleNotebook,
	)
}

func (s *Server) handleCatalog(_ context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(s.catalog, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal catalog: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleNotebook(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	shareID := strings.TrimPrefix(uri, notebookURIPrefix)
	if shareID == uri || shareID == "" || strings.Contains(shareID, "/") {
		return nil, fmt.Errorf("mcp: invalid notebook URI: %s", uri)
	}

	var found bool
	var payload any
	if s.store != nil {
		rec, err := s.store.GetNotebook(ctx, shareID)
		switch {
		case err == nil:
			payload, found = rec, true
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("mcp: read notebook %s: %w", shareID, err)
		}
	}
	if !found {
		rec, ok := s.runner.UnsavedNotebook(shareID)
		if !ok {
			return nil, fmt.Errorf("mcp: notebook %s not found", shareID)
		}
		payload = rec
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal notebook: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
