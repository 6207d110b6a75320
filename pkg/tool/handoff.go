package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/solenelabs/aria/pkg/agent"
)

// HandoffToolName is the canonical name of the agent transfer tool.
const HandoffToolName = "handoff_to_agent"

// RegisterHandoffTool registers a native tool that transfers control to a
// named agent on the roster. The handoff takes effect from the next turn;
// remaining tool calls of the current turn still run under the old agent.
func RegisterHandoffTool(registry *Registry, roster *agent.Roster) error {
	def := Definition{
		Name:        HandoffToolName,
		Description: "Transfer the conversation to another agent by name. Use when another agent is better suited.",
		Parameters: []Parameter{{
			Name:        "agent",
			Type:        "string",
			Description: "Target agent name",
			Required:    true,
		}},
	}

	return registry.RegisterNative(def, func(_ context.Context, args map[string]interface{}, _ *agent.Context) (Result, error) {
		name, _ := args["agent"].(string)
		if strings.TrimSpace(name) == "" {
			return Result{}, fmt.Errorf("field 'agent' must be a non-empty string")
		}
		target, ok := roster.Lookup(name)
		if !ok {
			return Result{}, fmt.Errorf("unknown agent %q, available: %s", name, strings.Join(roster.Names(), ", "))
		}
		return HandoffResult(fmt.Sprintf("transferring to %s", name), target), nil
	})
}
