package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/solenelabs/aria/internal/observability"
	"github.com/solenelabs/aria/pkg/agent"
)

// Registry stores tools in three disjoint maps, one per provenance, and
// dispatches execution with fixed lookup priority. Registration happens at
// startup; execution is read-only and safe across concurrent runs.
type Registry struct {
	mu       sync.RWMutex
	native   map[string]*nativeTool
	provider map[string]*providerCallback
	remote   map[string]*remoteTool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	observability.EnsureRegistered()
	return &Registry{
		native:   make(map[string]*nativeTool),
		provider: make(map[string]*providerCallback),
		remote:   make(map[string]*remoteTool),
	}
}

// RegisterNative registers a native agent tool. Native tools have run-context
// access and may hand off to another agent.
func (r *Registry) RegisterNative(def Definition, handler Handler) error {
	if err := validateDefinition(def); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}
	schema, err := buildSchema(def)
	if err != nil {
		return err
	}
	def.Source = SourceNative

	r.mu.Lock()
	defer r.mu.Unlock()
	r.native[def.Name] = &nativeTool{def: def, schema: schema, handler: handler}

	log.Info().Str("tool", def.Name).Str("source", string(SourceNative)).Msg("Tool registered")
	return nil
}

// RegisterProviderCallback registers a tool whose schema was derived by an
// LLM provider's own introspection mechanism.
func (r *Registry) RegisterProviderCallback(def Definition, callback ProviderCallbackFunc) error {
	if err := validateDefinition(def); err != nil {
		return err
	}
	if callback == nil {
		return fmt.Errorf("tool callback cannot be nil")
	}
	def.Source = SourceProvider

	r.mu.Lock()
	defer r.mu.Unlock()
	r.provider[def.Name] = &providerCallback{def: def, callback: callback}

	log.Info().Str("tool", def.Name).Str("source", string(SourceProvider)).Msg("Tool registered")
	return nil
}

// RegisterRemote registers a tool discovered on a remote tool-protocol server.
func (r *Registry) RegisterRemote(def Definition, invoke RemoteInvoker) error {
	if err := validateDefinition(def); err != nil {
		return err
	}
	if invoke == nil {
		return fmt.Errorf("tool invoker cannot be nil")
	}
	def.Source = SourceRemote

	r.mu.Lock()
	defer r.mu.Unlock()
	r.remote[def.Name] = &remoteTool{def: def, invoke: invoke}

	log.Info().Str("tool", def.Name).Str("source", string(SourceRemote)).Msg("Tool registered")
	return nil
}

// Unregister removes a tool from every provenance map.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.native, name)
	delete(r.provider, name)
	delete(r.remote, name)
	log.Info().Str("tool", name).Msg("Tool unregistered")
}

// lookup resolves a name with fixed priority: native wins over provider,
// provider wins over remote. A local tool can therefore shadow a misbehaving
// remote tool without negotiation.
func (r *Registry) lookup(name string) (Executable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.native[name]; ok {
		return t, true
	}
	if t, ok := r.provider[name]; ok {
		return t, true
	}
	if t, ok := r.remote[name]; ok {
		return t, true
	}
	return nil, false
}

// Resolve returns the executables for the given names, skipping unknown
// names with a warning.
func (r *Registry) Resolve(names []string) []Executable {
	tools := make([]Executable, 0, len(names))
	for _, name := range names {
		t, ok := r.lookup(name)
		if !ok {
			log.Warn().Str("tool", name).Msg("Requested tool not registered, skipping")
			continue
		}
		tools = append(tools, t)
	}
	return tools
}

// ResolveAll returns every registered tool, applying the shadowing priority
// to duplicate names. Order is deterministic by name.
func (r *Registry) ResolveAll() []Executable {
	r.mu.RLock()
	seen := make(map[string]Executable)
	for name, t := range r.remote {
		seen[name] = t
	}
	for name, t := range r.provider {
		seen[name] = t
	}
	for name, t := range r.native {
		seen[name] = t
	}
	r.mu.RUnlock()

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	tools := make([]Executable, 0, len(names))
	for _, name := range names {
		tools = append(tools, seen[name])
	}
	return tools
}

// Count returns the number of distinct tool names.
func (r *Registry) Count() int {
	return len(r.ResolveAll())
}

// Execute runs the named tool with JSON-encoded arguments. Failures of any
// kind come back as error-text results; the run always continues.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string, runCtx *agent.Context) Result {
	start := time.Now()

	t, ok := r.lookup(name)
	if !ok {
		log.Warn().Str("tool", name).Msg("Tool not found")
		observability.RecordToolExecution("unknown", "not_found", time.Since(start))
		return Result{Value: fmt.Sprintf("tool not found: %s", name)}
	}
	source := string(t.Definition().Source)

	args := parseArgs(name, argsJSON)

	result, err := safeInvoke(ctx, t, args, runCtx)
	duration := time.Since(start)
	if err != nil {
		log.Error().Str("tool", name).Dur("duration", duration).Err(err).Msg("Tool execution failed")
		observability.RecordToolExecution(source, "error", duration)
		return Result{Value: fmt.Sprintf("tool %s failed: %v", name, err)}
	}

	log.Debug().Str("tool", name).Dur("duration", duration).Msg("Tool execution completed")
	observability.RecordToolExecution(source, "ok", duration)
	return result
}

// parseArgs decodes the argument payload, degrading malformed JSON to an
// empty map so a slightly broken model call does not abort a turn.
func parseArgs(name, argsJSON string) map[string]interface{} {
	if argsJSON == "" {
		return map[string]interface{}{}
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		log.Warn().Str("tool", name).Err(err).Msg("Malformed tool arguments, using empty map")
		return map[string]interface{}{}
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args
}

// safeInvoke shields the runner from panicking tool implementations.
func safeInvoke(ctx context.Context, t Executable, args map[string]interface{}, runCtx *agent.Context) (result Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool panicked: %v", rec)
		}
	}()
	return t.Invoke(ctx, args, runCtx)
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}
	return nil
}
