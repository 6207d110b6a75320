package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/solenelabs/aria/internal/config"
	"github.com/solenelabs/aria/internal/logger"
	"github.com/solenelabs/aria/pkg/agent"
	"github.com/solenelabs/aria/pkg/mcp"
	"github.com/solenelabs/aria/pkg/memory"
	"github.com/solenelabs/aria/pkg/provider"
	"github.com/solenelabs/aria/pkg/runner"
	"github.com/solenelabs/aria/pkg/tool"
)

// runtime holds the assembled collaborators shared by the CLI commands.
type runtime struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *tool.Registry
	roster   *agent.Roster
	runner   *runner.Runner
	store    *memory.Store
	clients  []*mcp.Client
}

// buildRuntime loads the configuration and wires up the provider factory,
// tool registry, agent roster, memory store, MCP clients, and runner.
func buildRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	lg, err := logger.New(logger.Config{
		Level:     level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: true,
	})
	if err != nil {
		return nil, err
	}
	zl := lg.GetZerolog()

	rt := &runtime{cfg: cfg, log: lg}

	prov, err := buildProvider(cfg, zl)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.registry = tool.NewRegistry()

	rt.roster, err = buildRoster(cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if err := tool.RegisterHandoffTool(rt.registry, rt.roster); err != nil {
		rt.Close()
		return nil, err
	}

	var enricher runner.Enricher
	if cfg.Memory.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Memory.DBPath), 0755); err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		if cfg.Memory.FactsDir != "" {
			if err := os.MkdirAll(cfg.Memory.FactsDir, 0755); err != nil {
				rt.Close()
				return nil, fmt.Errorf("failed to create facts directory: %w", err)
			}
		}
		store, err := memory.NewStore(memory.Config{
			DBPath:   cfg.Memory.DBPath,
			FactsDir: cfg.Memory.FactsDir,
			Logger:   zl,
		})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open memory store: %w", err)
		}
		rt.store = store
		if err := store.RegisterTools(rt.registry); err != nil {
			rt.Close()
			return nil, err
		}
		enricher = memory.NewEnricher(store)
	}

	for _, srv := range cfg.MCP.Servers {
		client := mcp.NewClient(srv.ID, srv.Command, srv.Args)
		if err := client.Start(ctx); err != nil {
			zl.Warn().Err(err).Str("server", srv.ID).Msg("Failed to start MCP server, skipping")
			continue
		}
		names, err := mcp.RegisterTools(ctx, rt.registry, client)
		if err != nil {
			zl.Warn().Err(err).Str("server", srv.ID).Msg("Failed to register MCP tools, skipping")
			_ = client.Stop()
			continue
		}
		zl.Info().Str("server", srv.ID).Strs("tools", names).Msg("MCP server attached")
		rt.clients = append(rt.clients, client)
	}

	rt.runner, err = runner.New(runner.Config{
		Provider: prov,
		Registry: rt.registry,
		Enricher: enricher,
		Logger:   zl,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	return rt, nil
}

// Close releases the runtime's resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for _, client := range rt.clients {
		_ = client.Stop()
	}
	if rt.store != nil {
		_ = rt.store.Close()
	}
	if rt.log != nil {
		_ = rt.log.Close()
	}
}

func buildProvider(cfg *config.Config, zl zerolog.Logger) (provider.Provider, error) {
	if len(cfg.AI.Profiles) == 0 {
		return nil, fmt.Errorf("no AI profiles configured; add one under \"ai.profiles\" in %s", config.NewLoader(cfgFile).GetConfigPath())
	}

	profiles := make([]provider.Profile, 0, len(cfg.AI.Profiles))
	for _, p := range cfg.AI.Profiles {
		profiles = append(profiles, provider.Profile{
			ID:       p.ID,
			Vendor:   p.Provider,
			APIKey:   p.APIKey,
			Priority: p.Priority,
		})
	}
	return provider.NewFactory(profiles, zl)
}

// buildRoster converts the configured agents into a roster.
func buildRoster(cfg *config.Config) (*agent.Roster, error) {
	roster := agent.NewRoster()
	for _, a := range cfg.Agents {
		var opts []agent.Option
		if len(a.Tools) > 0 {
			opts = append(opts, agent.WithTools(a.Tools...))
		}
		switch a.ToolChoice {
		case "", "auto":
		case "required":
			opts = append(opts, agent.WithToolChoice(agent.ToolChoiceRequired))
		case "none":
			opts = append(opts, agent.WithToolChoice(agent.ToolChoiceNone))
		case "named":
			opts = append(opts, agent.WithNamedTool(a.NamedTool))
		default:
			return nil, fmt.Errorf("agent %s has invalid tool_choice %q", a.Name, a.ToolChoice)
		}

		if err := roster.Register(agent.New(a.Name, a.Model, agent.StaticInstructions(a.Instructions), opts...)); err != nil {
			return nil, err
		}
	}
	return roster, nil
}
