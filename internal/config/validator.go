package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the full configuration for inconsistencies
func (v *Validator) Validate(cfg *Config) error {
	if len(cfg.Agents) == 0 {
		return fmt.Errorf("at least one agent must be configured")
	}

	seen := make(map[string]bool, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if err := v.ValidateAgent(a); err != nil {
			return err
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate agent name: %s", a.Name)
		}
		seen[a.Name] = true
	}

	if cfg.DefaultAgent == "" {
		return fmt.Errorf("default_agent cannot be empty")
	}
	if !seen[cfg.DefaultAgent] {
		return fmt.Errorf("default_agent %q is not a configured agent", cfg.DefaultAgent)
	}

	for _, a := range cfg.Agents {
		for _, target := range a.Handoffs {
			if !seen[target] {
				return fmt.Errorf("agent %s hands off to unknown agent %q", a.Name, target)
			}
		}
	}

	if cfg.Gateway.Enabled {
		if cfg.Gateway.Port < 1 || cfg.Gateway.Port > 65535 {
			return fmt.Errorf("gateway port must be between 1 and 65535, got %d", cfg.Gateway.Port)
		}
	}

	for _, p := range cfg.AI.Profiles {
		if err := v.ValidateProfile(p); err != nil {
			return err
		}
	}

	for _, s := range cfg.MCP.Servers {
		if s.ID == "" {
			return fmt.Errorf("mcp server id cannot be empty")
		}
		if s.Command == "" {
			return fmt.Errorf("mcp server %s has no command", s.ID)
		}
	}

	return nil
}

// ValidateAgent checks a single agent entry
func (v *Validator) ValidateAgent(a AgentConfig) error {
	if a.Name == "" {
		return fmt.Errorf("agent name cannot be empty")
	}
	if a.Model == "" {
		return fmt.Errorf("agent %s has no model", a.Name)
	}

	switch a.ToolChoice {
	case "", "auto", "required", "none":
	case "named":
		if a.NamedTool == "" {
			return fmt.Errorf("agent %s uses tool_choice \"named\" but sets no named_tool", a.Name)
		}
	default:
		return fmt.Errorf("agent %s has invalid tool_choice %q", a.Name, a.ToolChoice)
	}

	return nil
}

// ValidateProfile checks a provider credential profile
func (v *Validator) ValidateProfile(p AIProfile) error {
	if p.ID == "" {
		return fmt.Errorf("ai profile id cannot be empty")
	}
	switch p.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("ai profile %s has unsupported provider %q", p.ID, p.Provider)
	}
	return v.ValidateAPIKey(p.APIKey, p.Provider)
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}
