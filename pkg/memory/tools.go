package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/solenelabs/aria/pkg/agent"
	"github.com/solenelabs/aria/pkg/tool"
)

// RegisterTools registers the memory tools as native agent tools.
func (s *Store) RegisterTools(registry *tool.Registry) error {
	if err := registry.RegisterNative(tool.Definition{
		Name:        "remember",
		Description: "Save a fact about the user or the conversation for future sessions",
		Parameters: []tool.Parameter{
			{
				Name:        "fact",
				Type:        "string",
				Description: "The fact to remember, as a standalone statement",
				Required:    true,
			},
			{
				Name:        "category",
				Type:        "string",
				Description: "Optional category label, e.g. preference or biography",
				Required:    false,
			},
		},
	}, s.rememberHandler); err != nil {
		return fmt.Errorf("failed to register remember tool: %w", err)
	}

	if err := registry.RegisterNative(tool.Definition{
		Name:        "recall",
		Description: "Search remembered facts by keyword",
		Parameters: []tool.Parameter{
			{
				Name:        "query",
				Type:        "string",
				Description: "Search query",
				Required:    true,
			},
			{
				Name:        "limit",
				Type:        "integer",
				Description: "Maximum number of facts to return (default: 10)",
				Required:    false,
				Default:     10,
			},
		},
	}, s.recallHandler); err != nil {
		return fmt.Errorf("failed to register recall tool: %w", err)
	}

	if err := registry.RegisterNative(tool.Definition{
		Name:        "forget",
		Description: "Delete a remembered fact by id",
		Parameters: []tool.Parameter{
			{
				Name:        "id",
				Type:        "string",
				Description: "Fact id as returned by recall",
				Required:    true,
			},
		},
	}, s.forgetHandler); err != nil {
		return fmt.Errorf("failed to register forget tool: %w", err)
	}

	s.logger.Info().Msg("Memory tools registered")
	return nil
}

func (s *Store) rememberHandler(ctx context.Context, args map[string]interface{}, _ *agent.Context) (tool.Result, error) {
	content, _ := args["fact"].(string)
	category, _ := args["category"].(string)

	fact, err := s.Save(ctx, content, category)
	if err != nil {
		return tool.Result{}, err
	}
	return tool.Result{Value: fmt.Sprintf("remembered (id %s)", fact.ID)}, nil
}

func (s *Store) recallHandler(ctx context.Context, args map[string]interface{}, _ *agent.Context) (tool.Result, error) {
	query, _ := args["query"].(string)
	limit := 10
	if v, ok := args["limit"].(float64); ok {
		limit = int(v)
	}

	facts, err := s.Search(ctx, query, limit)
	if err != nil {
		return tool.Result{}, err
	}
	if len(facts) == 0 {
		return tool.Result{Value: "no matching facts"}, nil
	}

	payload, err := json.Marshal(facts)
	if err != nil {
		return tool.Result{}, fmt.Errorf("failed to encode facts: %w", err)
	}
	return tool.Result{Value: string(payload)}, nil
}

func (s *Store) forgetHandler(ctx context.Context, args map[string]interface{}, _ *agent.Context) (tool.Result, error) {
	id, _ := args["id"].(string)
	if id == "" {
		return tool.Result{}, fmt.Errorf("id is required")
	}

	deleted, err := s.Delete(ctx, id)
	if err != nil {
		return tool.Result{}, err
	}
	if !deleted {
		return tool.Result{Value: fmt.Sprintf("no fact with id %s", id)}, nil
	}
	return tool.Result{Value: "forgotten"}, nil
}
