package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/alacard/internal/model"
)

func (s *Server) registerTools() {
	// alacard_generate: start building a notebook from a recipe.
	s.mcpServer.AddTool(
		mcplib.NewTool("alacard_generate",
			mcplib.WithDescription(`Start generating a Jupyter notebook for a model.

Only model_id is required. Every other card falls back to the default
recipe: quick-start prompts, a general topic, intermediate difficulty
and an API endpoint scaffold. Use alacard_list_cards to see the options.

Returns a task_id right away. Generation takes a few seconds; poll
alacard_task_status until state is "ready", then read the notebook
resource at alacard://notebooks/{document_ref}.`),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("model_id",
				mcplib.Description("Model registry identifier, e.g. openai-community/gpt2"),
				mcplib.Required(),
			),
			mcplib.WithString("prompt_pack_id", mcplib.Description("Prompt pack card ID")),
			mcplib.WithString("topic_id", mcplib.Description("Topic card ID, e.g. sourdough or healthcare")),
			mcplib.WithString("difficulty",
				mcplib.Description("Difficulty level"),
				mcplib.Enum(string(model.LevelBeginner), string(model.LevelIntermediate), string(model.LevelAdvanced)),
			),
			mcplib.WithString("ui_component",
				mcplib.Description("UI scaffold type"),
				mcplib.Enum(string(model.UIChatInterface), string(model.UIAPIEndpoint), string(model.UIInteractiveDemo), string(model.UIDashboard)),
			),
		),
		s.handleGenerate,
	)

	// alacard_task_status: poll a generation task.
	s.mcpServer.AddTool(
		mcplib.NewTool("alacard_task_status",
			mcplib.WithDescription("Report the state, progress percent and current step of a generation task. When ready, document_ref is the notebook's share ID."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("task_id", mcplib.Description("Task ID returned by alacard_generate"), mcplib.Required()),
		),
		s.handleTaskStatus,
	)

	// alacard_list_cards: browse the card catalog.
	s.mcpServer.AddTool(
		mcplib.NewTool("alacard_list_cards",
			mcplib.WithDescription("List catalog cards of one kind. Prompt packs and UI components can be narrowed to those compatible with a model task kind."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("kind",
				mcplib.Description("Card kind"),
				mcplib.Required(),
				mcplib.Enum(string(model.CardModels), string(model.CardPromptPacks), string(model.CardTopics),
					string(model.CardDifficulties), string(model.CardUIComponents)),
			),
			mcplib.WithString("task_kind",
				mcplib.Description("Optional model task kind filter: text-generation, classification, summarization, text-to-text, other"),
			),
		),
		s.handleListCards,
	)
}

func (s *Server) handleGenerate(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	req := model.GenerateRequest{
		ModelID:      request.GetString("model_id", ""),
		PromptPackID: request.GetString("prompt_pack_id", ""),
		TopicID:      request.GetString("topic_id", ""),
		Difficulty:   request.GetString("difficulty", ""),
		UIComponent:  request.GetString("ui_component", ""),
	}
	if req.ModelID == "" {
		return errorResult("model_id is required"), nil
	}

	recipe, err := s.catalog.Resolve(req)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	task, err := s.runner.Submit(recipe)
	if err != nil {
		if errors.Is(err, model.ErrInvalidRecipe) {
			return errorResult(err.Error()), nil
		}
		s.logger.Error("mcp: submit generation", "model_id", req.ModelID, "error", err)
		return errorResult("failed to start generation"), nil
	}

	data, _ := json.MarshalIndent(map[string]any{
		"task_id": task.TaskID,
		"state":   task.State,
		"recipe": map[string]any{
			"model":        recipe.Model.ID,
			"prompt_pack":  recipe.PromptPack.ID,
			"topic":        recipe.Topic.ID,
			"difficulty":   recipe.Difficulty.Level,
			"ui_component": recipe.UIComponent.Type,
		},
	}, "", "  ")
	return textResult(string(data)), nil
}

func (s *Server) handleTaskStatus(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	taskID := request.GetString("task_id", "")
	if taskID == "" {
		return errorResult("task_id is required"), nil
	}
	task, err := s.runner.Status(taskID)
	if err != nil {
		return errorResult(fmt.Sprintf("task %s not found or expired", taskID)), nil
	}
	data, _ := json.MarshalIndent(task, "", "  ")
	return textResult(string(data)), nil
}

func (s *Server) handleListCards(_ context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	kind := model.CardKind(request.GetString("kind", ""))
	taskKind := model.TaskKind(request.GetString("task_kind", ""))

	var cards any
	switch {
	case taskKind != "" && kind == model.CardPromptPacks:
		cards = s.catalog.CompatiblePromptPacks(taskKind)
	case taskKind != "" && kind == model.CardUIComponents:
		cards = s.catalog.CompatibleUIComponents(taskKind)
	default:
		var ok bool
		if cards, ok = s.catalog.Cards(kind); !ok {
			return errorResult(fmt.Sprintf("unknown card kind %q", kind)), nil
		}
	}
	data, _ := json.MarshalIndent(cards, "", "  ")
	return textResult(string(data)), nil
}
