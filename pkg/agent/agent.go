package agent

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ToolChoice controls how the model is asked to use tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"     // model decides
	ToolChoiceRequired ToolChoice = "required" // model must call some tool
	ToolChoiceNone     ToolChoice = "none"     // tools disabled for the turn
	ToolChoiceNamed    ToolChoice = "named"    // model must call NamedTool
)

// InstructionsFunc derives an instruction string from a context snapshot.
// Implementations must be pure: same snapshot, same string, no side effects.
type InstructionsFunc func(contextSnapshot map[string]string) string

// Instructions is either a static string or a function of the run context.
type Instructions struct {
	text    string
	derived InstructionsFunc
}

// StaticInstructions wraps a literal instruction string.
func StaticInstructions(text string) Instructions {
	return Instructions{text: text}
}

// DerivedInstructions wraps a context-dependent instruction function.
func DerivedInstructions(fn InstructionsFunc) Instructions {
	return Instructions{derived: fn}
}

// IsStatic reports whether the instructions are a plain string.
func (i Instructions) IsStatic() bool {
	return i.derived == nil
}

// Resolve returns the instruction text for the given context snapshot.
func (i Instructions) Resolve(contextSnapshot map[string]string) string {
	if i.derived != nil {
		return i.derived(contextSnapshot)
	}
	return i.text
}

// Agent is an immutable persona definition. The zero value is not usable;
// construct with New.
type Agent struct {
	name         string
	model        string
	instructions Instructions
	toolNames    []string
	toolChoice   ToolChoice
	namedTool    string
}

// Option configures an Agent at construction time.
type Option func(*Agent)

// WithTools restricts the agent to the named tools. An agent without an
// explicit tool list may use every registered tool.
func WithTools(names ...string) Option {
	return func(a *Agent) {
		a.toolNames = append([]string(nil), names...)
	}
}

// WithToolChoice sets the tool choice policy.
func WithToolChoice(choice ToolChoice) Option {
	return func(a *Agent) {
		a.toolChoice = choice
	}
}

// WithNamedTool forces the model to call the given tool. Implies ToolChoiceNamed.
func WithNamedTool(name string) Option {
	return func(a *Agent) {
		a.toolChoice = ToolChoiceNamed
		a.namedTool = name
	}
}

// New constructs an agent persona.
func New(name, model string, instructions Instructions, opts ...Option) Agent {
	a := Agent{
		name:         name,
		model:        model,
		instructions: instructions,
		toolChoice:   ToolChoiceAuto,
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// Name returns the display name of the agent.
func (a Agent) Name() string { return a.name }

// Model returns the model identifier the agent runs on.
func (a Agent) Model() string { return a.model }

// ToolChoice returns the tool choice policy.
func (a Agent) ToolChoice() ToolChoice { return a.toolChoice }

// NamedTool returns the forced tool name when ToolChoice is ToolChoiceNamed.
func (a Agent) NamedTool() string { return a.namedTool }

// ToolNames returns a copy of the agent's explicit tool list. Empty means
// "use everything available".
func (a Agent) ToolNames() []string {
	if len(a.toolNames) == 0 {
		return nil
	}
	return append([]string(nil), a.toolNames...)
}

// ResolveInstructions resolves the instruction text against a context snapshot.
func (a Agent) ResolveInstructions(contextSnapshot map[string]string) string {
	return a.instructions.Resolve(contextSnapshot)
}

// String implements fmt.Stringer for log fields.
func (a Agent) String() string {
	return fmt.Sprintf("agent(%s/%s)", a.name, a.model)
}

// Roster is a lookup of agent personas by name, used by handoff tools and
// callers resolving configured agents. Safe for concurrent reads after
// registration.
type Roster struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{agents: make(map[string]Agent)}
}

// Register adds or replaces an agent by name.
func (r *Roster) Register(a Agent) error {
	if strings.TrimSpace(a.name) == "" {
		return fmt.Errorf("agent name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.name] = a
	return nil
}

// Lookup returns the agent registered under name.
func (r *Roster) Lookup(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// Names returns the sorted registered agent names.
func (r *Roster) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
