package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/solenelabs/aria/internal/observability"
	"github.com/solenelabs/aria/pkg/agent"
	"github.com/solenelabs/aria/pkg/conversation"
	"github.com/solenelabs/aria/pkg/provider"
	"github.com/solenelabs/aria/pkg/tool"
)

// DefaultMaxTurns bounds a run when the caller does not set a budget.
const DefaultMaxTurns = 10

// sessionIDKey is the run-context key under which the runner records the
// session identifier of the current run.
const sessionIDKey = "session_id"

// Enricher augments an agent's resolved instructions with additional run
// context (retrieved memories, ambient facts, and the like) before every
// model call.
type Enricher interface {
	EnrichInstructions(ctx context.Context, base string, agentName string, lastUserMessage string) (string, error)
}

// Params describes a single run.
type Params struct {
	// Agent is the starting active agent.
	Agent agent.Agent
	// Messages is the incoming transcript, ending with the latest user turn.
	Messages []conversation.Message
	// Context seeds the run-scoped context. May be nil.
	Context map[string]string
	// MaxTurns caps model calls for this run. Zero means DefaultMaxTurns.
	MaxTurns int
	// MaxHistory caps the retained non-system transcript. Zero means the
	// conversation package default.
	MaxHistory int
	// SessionID names the session this run belongs to. Minted when empty.
	SessionID string
}

// Response is the outcome of a completed (or budget-exhausted) run.
type Response struct {
	// Messages is the full transcript produced by the run, compaction
	// summaries included.
	Messages []conversation.Message
	// ActiveAgent is whichever agent was active when the run stopped.
	ActiveAgent agent.Agent
	// Context is a snapshot of the run context after all tool updates.
	Context map[string]string
}

// Config wires a Runner's collaborators.
type Config struct {
	Provider provider.Provider
	Registry *tool.Registry
	// Enricher is optional; when nil the runner falls back to a minimal
	// enrichment of agent name plus tool names.
	Enricher Enricher
	Logger   zerolog.Logger
}

// Runner executes agent runs against a model provider and a tool registry.
// It is safe for concurrent use; every run carries its own state.
type Runner struct {
	provider provider.Provider
	registry *tool.Registry
	enricher Enricher
	logger   zerolog.Logger
}

// New builds a Runner from cfg. Provider and Registry are required.
func New(cfg Config) (*Runner, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("runner: provider is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("runner: registry is required")
	}
	return &Runner{
		provider: cfg.Provider,
		registry: cfg.Registry,
		enricher: cfg.Enricher,
		logger:   cfg.Logger,
	}, nil
}

// Run executes the synchronous turn loop and blocks until the run reaches a
// terminal response, exhausts its turn budget, or fails.
func (r *Runner) Run(ctx context.Context, params Params) (Response, error) {
	st, err := r.newRunState(params)
	if err != nil {
		return Response{}, err
	}
	started := time.Now()

	for turn := 1; turn <= st.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			observability.RecordAgentRun("canceled", time.Since(started))
			return Response{}, err
		}

		resp, err := r.provider.Complete(ctx, r.buildRequest(ctx, st))
		if err != nil {
			observability.RecordAgentRun("error", time.Since(started))
			return Response{}, fmt.Errorf("model call failed on turn %d: %w", turn, err)
		}
		observability.RecordTurn()

		if len(resp.ToolCalls) == 0 {
			st.history.Append(conversation.AssistantMessage(resp.Content, st.active.Name()))
			observability.RecordAgentRun("completed", time.Since(started))
			r.logger.Debug().
				Str("agent", st.active.Name()).
				Int("turns", turn).
				Msg("Run completed")
			return st.response(), nil
		}

		r.executeToolTurn(ctx, st, resp)
	}

	log.Warn().
		Str("agent", st.active.Name()).
		Int("max_turns", st.maxTurns).
		Msg("Turn budget exhausted, returning best-effort response")
	observability.RecordAgentRun("max_turns", time.Since(started))
	return st.response(), nil
}

// runState is the per-run mutable state of the turn loop.
type runState struct {
	active   agent.Agent
	history  *conversation.History
	runCtx   *agent.Context
	maxTurns int
	session  string
}

func (r *Runner) newRunState(params Params) (*runState, error) {
	if params.Agent.Name() == "" {
		return nil, fmt.Errorf("runner: agent is required")
	}
	if len(params.Messages) == 0 {
		return nil, fmt.Errorf("runner: at least one message is required")
	}

	session := params.SessionID
	if session == "" {
		session = gonanoid.Must()
	}
	runCtx := agent.NewContext(params.Context)
	runCtx.Set(sessionIDKey, session)

	maxTurns := params.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	return &runState{
		active:   params.Agent,
		history:  conversation.NewHistoryFromMessages(params.Messages, params.MaxHistory),
		runCtx:   runCtx,
		maxTurns: maxTurns,
		session:  session,
	}, nil
}

func (st *runState) response() Response {
	return Response{
		Messages:    st.history.Messages(),
		ActiveAgent: st.active,
		Context:     st.runCtx.Snapshot(),
	}
}

// buildRequest assembles the provider request for the current turn: resolved
// and enriched instructions, in-transcript system notes folded into the
// system prompt, and the tool set the active agent's tool choice allows.
func (r *Runner) buildRequest(ctx context.Context, st *runState) provider.Request {
	systemNotes, convo := splitTranscript(st.history.Messages())

	prompt := r.systemPrompt(ctx, st)
	if len(systemNotes) > 0 {
		prompt = prompt + "\n\n" + strings.Join(systemNotes, "\n\n")
	}

	return provider.Request{
		Model:        st.active.Model(),
		SystemPrompt: prompt,
		Messages:     convo,
		Tools:        r.toolDefinitions(st),
	}
}

// splitTranscript separates system messages (compaction summaries and seeded
// notes) from the conversational transcript so the former can ride along in
// the system prompt regardless of provider.
func splitTranscript(messages []conversation.Message) ([]string, []conversation.Message) {
	var notes []string
	convo := make([]conversation.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == conversation.RoleSystem {
			notes = append(notes, msg.Content)
			continue
		}
		convo = append(convo, msg)
	}
	return notes, convo
}

func (r *Runner) systemPrompt(ctx context.Context, st *runState) string {
	base := st.active.ResolveInstructions(st.runCtx.Snapshot())

	if r.enricher != nil {
		enriched, err := r.enricher.EnrichInstructions(ctx, base, st.active.Name(), lastUserMessage(st.history))
		if err == nil {
			return r.applyToolChoiceHint(enriched, st)
		}
		r.logger.Warn().Err(err).
			Str("agent", st.active.Name()).
			Msg("Instruction enrichment failed, using minimal enrichment")
	}

	var b strings.Builder
	b.WriteString(base)
	fmt.Fprintf(&b, "\n\nYou are %s.", st.active.Name())
	if names := r.visibleToolNames(st); len(names) > 0 {
		fmt.Fprintf(&b, " Available tools: %s.", strings.Join(names, ", "))
	}
	return r.applyToolChoiceHint(b.String(), st)
}

// applyToolChoiceHint nudges the model when the agent requires tool use. The
// "none" and "named" policies are enforced structurally by withholding tool
// schemas, so only "required" needs prompt support.
func (r *Runner) applyToolChoiceHint(prompt string, st *runState) string {
	if st.active.ToolChoice() == agent.ToolChoiceRequired {
		return prompt + "\n\nYou must respond by calling one of the provided tools."
	}
	return prompt
}

func lastUserMessage(history *conversation.History) string {
	messages := history.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == conversation.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// resolveTools yields the executables visible to the active agent under its
// tool-choice policy.
func (r *Runner) resolveTools(st *runState) []tool.Executable {
	switch st.active.ToolChoice() {
	case agent.ToolChoiceNone:
		return nil
	case agent.ToolChoiceNamed:
		return r.registry.Resolve([]string{st.active.NamedTool()})
	default:
		if names := st.active.ToolNames(); len(names) > 0 {
			return r.registry.Resolve(names)
		}
		return r.registry.ResolveAll()
	}
}

func (r *Runner) visibleToolNames(st *runState) []string {
	tools := r.resolveTools(st)
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Definition().Name)
	}
	return names
}

func (r *Runner) toolDefinitions(st *runState) []provider.ToolDefinition {
	tools := r.resolveTools(st)
	defs := make([]provider.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		def := t.Definition()
		defs = append(defs, provider.ToolDefinition{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema(),
		})
	}
	return defs
}

// executeToolTurn appends the assistant's tool-calling message, runs each
// requested call in order, merges context updates, and applies any handoff
// so the next turn sees the new active agent.
func (r *Runner) executeToolTurn(ctx context.Context, st *runState, resp *provider.Response) {
	calls := make([]conversation.ToolCall, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		calls = append(calls, conversation.ToolCall{
			ID:            tc.ID,
			Name:          tc.Name,
			ArgumentsJSON: tc.ArgumentsJSON,
		})
	}
	assistant := conversation.AssistantMessage(resp.Content, st.active.Name())
	assistant.ToolCalls = calls
	st.history.Append(assistant)

	var handoff *agent.Agent
	for _, tc := range resp.ToolCalls {
		result := r.registry.Execute(ctx, tc.Name, tc.ArgumentsJSON, st.runCtx)
		st.runCtx.Merge(result.ContextUpdates)
		st.history.Append(conversation.ToolMessage(result.Value, tc.ID))

		if result.Handoff != nil {
			handoff = result.Handoff
			r.logger.Info().
				Str("from", st.active.Name()).
				Str("to", handoff.Name()).
				Str("session_id", st.session).
				Msg("Agent handoff requested")
		}
	}

	// The handoff takes effect on the next model call; the loop above has
	// already executed the remaining calls of this turn under the old agent.
	if handoff != nil {
		st.active = *handoff
	}
}
