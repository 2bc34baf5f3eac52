package mcp

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// build-notebook: walks an assistant through choosing a recipe for a model.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("build-notebook",
			mcplib.WithPromptDescription("Choose recipe cards for a model and generate its notebook"),
			mcplib.WithArgument("model_id",
				mcplib.ArgumentDescription("Model registry identifier, e.g. facebook/bart-large-cnn"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("goal",
				mcplib.ArgumentDescription("What the user wants to explore, in their words"),
			),
		),
		s.handleBuildNotebookPrompt,
	)
}

func (s *Server) handleBuildNotebookPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	modelID := strings.TrimSpace(request.Params.Arguments["model_id"])
	if modelID == "" {
		return nil, fmt.Errorf("model_id argument is required")
	}
	goal := strings.TrimSpace(request.Params.Arguments["goal"])
	if goal == "" {
		goal = "a quick hands-on tour of the model"
	}

	var topics []string
	for _, t := range s.catalog.Topics {
		topics = append(topics, fmt.Sprintf("%s (%s)", t.ID, t.Description))
	}

	text := fmt.Sprintf(`Build a Jupyter notebook for %s. The user wants %s.

1. PICK cards that fit the goal. Call alacard_list_cards with kind="prompt-packs"
   and kind="ui-components" to see the options; pass task_kind once you know
   what the model does.
   Topics: %s.
   Difficulty: beginner adds explanations, advanced wraps code in error handling.

2. CALL alacard_generate with model_id="%s" and the card IDs you picked.

3. POLL alacard_task_status with the returned task_id until state is "ready"
   or "failed". If a warning is set, tell the user the notebook was not saved
   permanently.

4. READ alacard://notebooks/{document_ref} and summarize the cells for the user.`,
		modelID, goal, strings.Join(topics, ", "), modelID)

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Generate a notebook for %s", modelID),
		Messages: []mcplib.PromptMessage{
			{
				Role:    mcplib.RoleUser,
				Content: mcplib.TextContent{Type: "text", Text: text},
			},
		},
	}, nil
}
