package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aria.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoader(t *testing.T) {
	t.Run("should return defaults when file does not exist", func(t *testing.T) {
		loader := NewLoader(filepath.Join(t.TempDir(), "missing.json"))

		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "aria", cfg.DefaultAgent)
		assert.Len(t, cfg.Agents, 1)
		assert.Equal(t, 10, cfg.Runner.MaxTurns)
		assert.NotEmpty(t, cfg.DataDir)
	})

	t.Run("should load values from file over defaults", func(t *testing.T) {
		path := writeConfigFile(t, `{
			"default_agent": "triage",
			"agents": [
				{"name": "triage", "model": "claude-sonnet-4", "instructions": "Route requests."}
			],
			"gateway": {"enabled": true, "port": 9090},
			"logging": {"level": "debug"}
		}`)
		loader := NewLoader(path)

		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "triage", cfg.DefaultAgent)
		assert.Equal(t, 9090, cfg.Gateway.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		// untouched sections keep their defaults
		assert.Equal(t, 10, cfg.Runner.MaxTurns)
	})

	t.Run("should derive data paths from data_dir", func(t *testing.T) {
		path := writeConfigFile(t, `{"data_dir": "/var/lib/aria"}`)
		loader := NewLoader(path)

		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/var/lib/aria", "memory.db"), cfg.Memory.DBPath)
		assert.Equal(t, filepath.Join("/var/lib/aria", "facts"), cfg.Memory.FactsDir)
		assert.Equal(t, filepath.Join("/var/lib/aria", "cron.json"), cfg.Cron.StorePath)
		assert.Equal(t, filepath.Join("/var/lib/aria", "aria.log"), cfg.Logging.File)
	})

	t.Run("should fail on malformed JSON", func(t *testing.T) {
		path := writeConfigFile(t, `{not json`)
		loader := NewLoader(path)

		_, err := loader.Load()

		assert.Error(t, err)
	})

	t.Run("should round-trip through save and load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "aria.json")
		loader := NewLoader(path)

		cfg := DefaultConfig()
		cfg.DefaultAgent = "billing"
		cfg.Agents = []AgentConfig{{Name: "billing", Model: "gpt-4-turbo", Instructions: "Handle invoices."}}
		cfg.Gateway.SharedSecret = "hunter2"
		require.NoError(t, loader.Save(cfg))

		loaded, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "billing", loaded.DefaultAgent)
		require.Len(t, loaded.Agents, 1)
		assert.Equal(t, "gpt-4-turbo", loaded.Agents[0].Model)
		assert.Equal(t, "hunter2", loaded.Gateway.SharedSecret)
	})
}

func TestValidator(t *testing.T) {
	validator := NewValidator()

	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.DataDir = "/tmp/aria"
		return cfg
	}

	t.Run("should accept the default config", func(t *testing.T) {
		assert.NoError(t, validator.Validate(valid()))
	})

	t.Run("should reject empty agent list", func(t *testing.T) {
		cfg := valid()
		cfg.Agents = nil

		assert.Error(t, validator.Validate(cfg))
	})

	t.Run("should reject unknown default agent", func(t *testing.T) {
		cfg := valid()
		cfg.DefaultAgent = "ghost"

		err := validator.Validate(cfg)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("should reject duplicate agent names", func(t *testing.T) {
		cfg := valid()
		cfg.Agents = append(cfg.Agents, cfg.Agents[0])

		assert.Error(t, validator.Validate(cfg))
	})

	t.Run("should reject handoff to unknown agent", func(t *testing.T) {
		cfg := valid()
		cfg.Agents[0].Handoffs = []string{"nobody"}

		assert.Error(t, validator.Validate(cfg))
	})

	t.Run("should reject named tool choice without a tool", func(t *testing.T) {
		cfg := valid()
		cfg.Agents[0].ToolChoice = "named"

		assert.Error(t, validator.Validate(cfg))
	})

	t.Run("should reject invalid tool choice", func(t *testing.T) {
		cfg := valid()
		cfg.Agents[0].ToolChoice = "sometimes"

		assert.Error(t, validator.Validate(cfg))
	})

	t.Run("should reject out-of-range gateway port", func(t *testing.T) {
		cfg := valid()
		cfg.Gateway.Port = 70000

		assert.Error(t, validator.Validate(cfg))
	})

	t.Run("should validate provider profiles", func(t *testing.T) {
		cfg := valid()
		cfg.AI.Profiles = []AIProfile{{ID: "main", Provider: "anthropic", APIKey: "sk-ant-abc123"}}
		assert.NoError(t, validator.Validate(cfg))

		cfg.AI.Profiles[0].APIKey = "wrong"
		assert.Error(t, validator.Validate(cfg))

		cfg.AI.Profiles[0] = AIProfile{ID: "alt", Provider: "gemini", APIKey: "key"}
		assert.Error(t, validator.Validate(cfg))
	})

	t.Run("should reject mcp server without command", func(t *testing.T) {
		cfg := valid()
		cfg.MCP.Servers = []MCPServerConfig{{ID: "files"}}

		assert.Error(t, validator.Validate(cfg))
	})
}
