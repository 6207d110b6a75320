package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/solenelabs/aria/pkg/tool"
)

// RegisterTools discovers the client's tools and registers each with remote
// provenance. Names already taken by another remote tool are prefixed with
// the server id. It returns the registered names.
func RegisterTools(ctx context.Context, registry *tool.Registry, client *Client) ([]string, error) {
	if client == nil {
		return nil, fmt.Errorf("mcp client is required")
	}
	if strings.TrimSpace(client.ServerID()) == "" {
		return nil, fmt.Errorf("mcp server id is required")
	}

	defs, err := client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch MCP tools: %w", err)
	}

	taken := make(map[string]bool)
	for _, t := range registry.ResolveAll() {
		taken[t.Definition().Name] = true
	}

	registered := make([]string, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		remoteName := def.Name
		if taken[remoteName] {
			remoteName = fmt.Sprintf("%s_%s", client.ServerID(), def.Name)
		}

		originalName := def.Name
		def.Name = remoteName
		err := registry.RegisterRemote(def, func(ctx context.Context, argsJSON string) (string, error) {
			return client.CallTool(ctx, originalName, argsJSON)
		})
		if err != nil {
			return registered, fmt.Errorf("failed to register MCP tool %s: %w", remoteName, err)
		}
		taken[remoteName] = true
		registered = append(registered, remoteName)
	}

	return registered, nil
}
