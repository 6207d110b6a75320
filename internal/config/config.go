package config

import (
	"encoding/json"
)

// Config holds the full application configuration
type Config struct {
	// DataDir is the base directory for runtime data (memory DB, cron store)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// DefaultAgent is the agent used when a request does not name one
	DefaultAgent string `json:"default_agent" mapstructure:"default_agent"`

	Agents  []AgentConfig `json:"agents" mapstructure:"agents"`
	AI      AIConfig      `json:"ai" mapstructure:"ai"`
	Runner  RunnerConfig  `json:"runner" mapstructure:"runner"`
	Memory  MemoryConfig  `json:"memory" mapstructure:"memory"`
	MCP     MCPConfig     `json:"mcp" mapstructure:"mcp"`
	Cron    CronConfig    `json:"cron" mapstructure:"cron"`
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// AgentConfig describes a single conversational agent
type AgentConfig struct {
	Name         string   `json:"name" mapstructure:"name"`
	Model        string   `json:"model" mapstructure:"model"`
	Instructions string   `json:"instructions" mapstructure:"instructions"`
	Tools        []string `json:"tools,omitempty" mapstructure:"tools"`
	ToolChoice   string   `json:"tool_choice,omitempty" mapstructure:"tool_choice"` // auto, required, none, named
	NamedTool    string   `json:"named_tool,omitempty" mapstructure:"named_tool"`
	Handoffs     []string `json:"handoffs,omitempty" mapstructure:"handoffs"`
}

// AIConfig holds model provider profiles
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile is a single provider credential profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// RunnerConfig tunes the turn loop
type RunnerConfig struct {
	MaxTurns   int `json:"max_turns" mapstructure:"max_turns"`
	MaxHistory int `json:"max_history" mapstructure:"max_history"`
}

// MemoryConfig controls the persistent memory store
type MemoryConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	DBPath   string `json:"db_path" mapstructure:"db_path"`
	FactsDir string `json:"facts_dir" mapstructure:"facts_dir"`
}

// MCPConfig lists external MCP servers to attach on startup
type MCPConfig struct {
	Servers []MCPServerConfig `json:"servers" mapstructure:"servers"`
}

// MCPServerConfig describes one stdio MCP server
type MCPServerConfig struct {
	ID      string   `json:"id" mapstructure:"id"`
	Command string   `json:"command" mapstructure:"command"`
	Args    []string `json:"args,omitempty" mapstructure:"args"`
}

// CronConfig controls the scheduled-job service
type CronConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	StorePath string `json:"store_path" mapstructure:"store_path"`
}

// GatewayConfig holds HTTP gateway settings
type GatewayConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Port         int    `json:"port" mapstructure:"port"`
	Host         string `json:"host" mapstructure:"host"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		DefaultAgent: "aria",
		Agents: []AgentConfig{
			{
				Name:         "aria",
				Model:        "claude-sonnet-4",
				Instructions: "You are Aria, a helpful assistant. Be concise and direct.",
			},
		},
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Runner: RunnerConfig{
			MaxTurns:   10,
			MaxHistory: 50,
		},
		Memory: MemoryConfig{
			Enabled: true,
		},
		Cron: CronConfig{
			Enabled: true,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Port:    8080,
			Host:    "0.0.0.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
