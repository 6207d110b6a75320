package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/solenelabs/aria/pkg/agent"
	"github.com/xeipuuv/gojsonschema"
)

// Source identifies which registry a tool implementation came from.
type Source string

const (
	SourceNative   Source = "native"   // closures with run-context access
	SourceProvider Source = "provider" // callbacks introspected by an LLM provider
	SourceRemote   Source = "remote"   // tools discovered on a remote tool server
)

// Parameter describes one argument a tool accepts.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Definition is a tool's model-visible metadata.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters,omitempty"`
	Source      Source      `json:"source"`
}

// InputSchema renders the definition as a JSON-Schema object for provider
// tool declarations.
func (d Definition) InputSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(d.Parameters))
	var required []string
	for _, param := range d.Parameters {
		propSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			propSchema["default"] = param.Default
		}
		properties[param.Name] = propSchema
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Result is the outcome of one tool execution. Value is always present, even
// for failures, so the model sees errors as tool output. Handoff, when set,
// instructs the runner to replace the active agent for subsequent turns.
type Result struct {
	Value          string            `json:"value"`
	Handoff        *agent.Agent      `json:"-"`
	ContextUpdates map[string]string `json:"context_updates,omitempty"`
}

// HandoffResult builds a result that transfers control to target.
func HandoffResult(value string, target agent.Agent) Result {
	return Result{Value: value, Handoff: &target}
}

// Handler is the signature of a native agent tool. It receives the parsed
// arguments and the run's shared context.
type Handler func(ctx context.Context, args map[string]interface{}, runCtx *agent.Context) (Result, error)

// Executable is a resolved tool ready for dispatch.
type Executable interface {
	// Definition returns the model-visible metadata.
	Definition() Definition

	// Invoke executes the tool with parsed arguments. Errors are converted to
	// error-text results at the registry boundary.
	Invoke(ctx context.Context, args map[string]interface{}, runCtx *agent.Context) (Result, error)
}

// nativeTool wraps a Handler plus its validation schema.
type nativeTool struct {
	def     Definition
	schema  *gojsonschema.Schema
	handler Handler
}

func (t *nativeTool) Definition() Definition { return t.def }

func (t *nativeTool) Invoke(ctx context.Context, args map[string]interface{}, runCtx *agent.Context) (Result, error) {
	if err := validateArgs(t.schema, args); err != nil {
		return Result{}, fmt.Errorf("parameter validation failed: %w", err)
	}
	return t.handler(ctx, args, runCtx)
}

// ProviderCallbackFunc executes a provider-introspected tool.
type ProviderCallbackFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// providerCallback adapts a provider-introspected implementation. It cannot
// hand off or mutate the run context.
type providerCallback struct {
	def      Definition
	callback ProviderCallbackFunc
}

func (t *providerCallback) Definition() Definition { return t.def }

func (t *providerCallback) Invoke(ctx context.Context, args map[string]interface{}, _ *agent.Context) (Result, error) {
	value, err := t.callback(ctx, args)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value}, nil
}

// RemoteInvoker executes a remotely discovered tool with raw JSON arguments.
// Transport, lifecycle and reconnection live behind this function.
type RemoteInvoker func(ctx context.Context, argsJSON string) (string, error)

// remoteTool adapts a tool surfaced by a remote tool-protocol server.
type remoteTool struct {
	def    Definition
	invoke RemoteInvoker
}

func (t *remoteTool) Definition() Definition { return t.def }

func (t *remoteTool) Invoke(ctx context.Context, args map[string]interface{}, _ *agent.Context) (Result, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode arguments: %w", err)
	}
	value, err := t.invoke(ctx, string(payload))
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value}, nil
}

// buildSchema compiles the declared parameters into a validation schema.
func buildSchema(def Definition) (*gojsonschema.Schema, error) {
	if len(def.Parameters) == 0 {
		return nil, nil
	}
	loader := gojsonschema.NewGoLoader(def.InputSchema())
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}
	return schema, nil
}

// validateArgs checks parsed arguments against a compiled schema.
func validateArgs(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("validation errors: %v", problems)
	}
	return nil
}
