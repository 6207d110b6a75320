package runner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solenelabs/aria/pkg/agent"
	"github.com/solenelabs/aria/pkg/conversation"
	"github.com/solenelabs/aria/pkg/provider"
	"github.com/solenelabs/aria/pkg/tool"
)

// scriptedProvider replays canned responses and records every request it saw.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*provider.Response
	repeat    *provider.Response
	streamFn  func(req provider.Request, onDelta provider.StreamFunc) (*provider.Response, error)
	requests  []provider.Request
}

func (s *scriptedProvider) Complete(_ context.Context, req provider.Request) (*provider.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.repeat != nil {
		return s.repeat, nil
	}
	if len(s.responses) == 0 {
		return nil, errors.New("scripted provider exhausted")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedProvider) Stream(_ context.Context, req provider.Request, onDelta provider.StreamFunc) (*provider.Response, error) {
	if s.streamFn == nil {
		return nil, provider.ErrStreamingUnsupported
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.streamFn(req, onDelta)
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedProvider) request(i int) provider.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

func textResponse(content string) *provider.Response {
	return &provider.Response{Content: content}
}

func toolCallResponse(calls ...provider.ToolCallRequest) *provider.Response {
	return &provider.Response{ToolCalls: calls}
}

func newTestRunner(t *testing.T, p provider.Provider, registry *tool.Registry) *Runner {
	t.Helper()
	r, err := New(Config{Provider: p, Registry: registry, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return r
}

func registerClock(t *testing.T, registry *tool.Registry) {
	t.Helper()
	err := registry.RegisterNative(tool.Definition{
		Name:        "get_time",
		Description: "Returns the current time.",
	}, func(_ context.Context, _ map[string]interface{}, _ *agent.Context) (tool.Result, error) {
		return tool.Result{Value: "12:00"}, nil
	})
	require.NoError(t, err)
}

func userTurn(text string) []conversation.Message {
	return []conversation.Message{conversation.UserMessage(text)}
}

func TestNew(t *testing.T) {
	t.Run("should require a provider and a registry", func(t *testing.T) {
		_, err := New(Config{Registry: tool.NewRegistry()})
		assert.Error(t, err)

		_, err = New(Config{Provider: &scriptedProvider{}})
		assert.Error(t, err)
	})
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should complete in one turn when the model returns no tool calls", func(t *testing.T) {
		p := &scriptedProvider{responses: []*provider.Response{textResponse("hello there")}}
		r := newTestRunner(t, p, tool.NewRegistry())

		a := agent.New("A", "test-model", agent.StaticInstructions("Be brief."))
		resp, err := r.Run(ctx, Params{Agent: a, Messages: userTurn("hi")})
		require.NoError(t, err)

		assert.Equal(t, 1, p.callCount())
		require.Len(t, resp.Messages, 2)
		assert.Equal(t, conversation.RoleAssistant, resp.Messages[1].Role)
		assert.Equal(t, "hello there", resp.Messages[1].Content)
		assert.Equal(t, "A", resp.Messages[1].SenderName)
		assert.Equal(t, "A", resp.ActiveAgent.Name())
		assert.NotEmpty(t, resp.Context["session_id"])
	})

	t.Run("should execute a tool and feed the result back to the model", func(t *testing.T) {
		registry := tool.NewRegistry()
		registerClock(t, registry)
		p := &scriptedProvider{responses: []*provider.Response{
			toolCallResponse(provider.ToolCallRequest{ID: "call_1", Name: "get_time", ArgumentsJSON: "{}"}),
			textResponse("It is 12:00."),
		}}
		r := newTestRunner(t, p, registry)

		a := agent.New("A", "test-model", agent.StaticInstructions("Tell the time."))
		resp, err := r.Run(ctx, Params{Agent: a, Messages: userTurn("what time is it?")})
		require.NoError(t, err)

		require.Len(t, resp.Messages, 4)
		assert.Equal(t, conversation.RoleUser, resp.Messages[0].Role)

		assert.Equal(t, conversation.RoleAssistant, resp.Messages[1].Role)
		require.Len(t, resp.Messages[1].ToolCalls, 1)
		assert.Equal(t, "get_time", resp.Messages[1].ToolCalls[0].Name)

		assert.Equal(t, conversation.RoleTool, resp.Messages[2].Role)
		assert.Equal(t, "12:00", resp.Messages[2].Content)
		assert.Equal(t, "call_1", resp.Messages[2].ToolCallID)

		assert.Equal(t, conversation.RoleAssistant, resp.Messages[3].Role)
		assert.Equal(t, "It is 12:00.", resp.Messages[3].Content)
		assert.Equal(t, "A", resp.ActiveAgent.Name())
	})

	t.Run("should stop after the turn budget with a best-effort response", func(t *testing.T) {
		registry := tool.NewRegistry()
		registerClock(t, registry)
		p := &scriptedProvider{repeat: toolCallResponse(
			provider.ToolCallRequest{ID: "call_x", Name: "get_time", ArgumentsJSON: "{}"},
		)}
		r := newTestRunner(t, p, registry)

		a := agent.New("A", "test-model", agent.StaticInstructions("Loop forever."))
		resp, err := r.Run(ctx, Params{Agent: a, Messages: userTurn("go"), MaxTurns: 3})
		require.NoError(t, err)

		assert.Equal(t, 3, p.callCount())
		last := resp.Messages[len(resp.Messages)-1]
		assert.Equal(t, conversation.RoleTool, last.Role)
	})

	t.Run("should merge tool context updates last-write-wins", func(t *testing.T) {
		registry := tool.NewRegistry()
		err := registry.RegisterNative(tool.Definition{
			Name:        "set_city",
			Description: "Remembers the user's city.",
			Parameters: []tool.Parameter{
				{Name: "city", Type: "string", Description: "City name", Required: true},
			},
		}, func(_ context.Context, args map[string]interface{}, _ *agent.Context) (tool.Result, error) {
			city, _ := args["city"].(string)
			return tool.Result{Value: "saved", ContextUpdates: map[string]string{"city": city}}, nil
		})
		require.NoError(t, err)

		p := &scriptedProvider{responses: []*provider.Response{
			toolCallResponse(
				provider.ToolCallRequest{ID: "c1", Name: "set_city", ArgumentsJSON: `{"city":"paris"}`},
				provider.ToolCallRequest{ID: "c2", Name: "set_city", ArgumentsJSON: `{"city":"tokyo"}`},
			),
			textResponse("noted"),
		}}
		r := newTestRunner(t, p, registry)

		a := agent.New("A", "test-model", agent.StaticInstructions("Remember things."))
		resp, err := r.Run(ctx, Params{Agent: a, Messages: userTurn("I moved"), Context: map[string]string{"city": "oslo"}})
		require.NoError(t, err)
		assert.Equal(t, "tokyo", resp.Context["city"])
	})

	t.Run("should apply a handoff on the next turn and run remaining calls under the old agent", func(t *testing.T) {
		registry := tool.NewRegistry()
		registerClock(t, registry)

		roster := agent.NewRoster()
		billing := agent.New("billing", "billing-model", agent.StaticInstructions("You handle invoices."))
		require.NoError(t, roster.Register(billing))
		require.NoError(t, tool.RegisterHandoffTool(registry, roster))

		p := &scriptedProvider{responses: []*provider.Response{
			toolCallResponse(
				provider.ToolCallRequest{ID: "c1", Name: tool.HandoffToolName, ArgumentsJSON: `{"agent":"billing"}`},
				provider.ToolCallRequest{ID: "c2", Name: "get_time", ArgumentsJSON: "{}"},
			),
			textResponse("Your invoice is ready."),
		}}
		r := newTestRunner(t, p, registry)

		triage := agent.New("triage", "triage-model", agent.StaticInstructions("Route the user."))
		resp, err := r.Run(ctx, Params{Agent: triage, Messages: userTurn("billing question")})
		require.NoError(t, err)

		// First model call still belongs to the triage agent.
		assert.Equal(t, "triage-model", p.request(0).Model)
		assert.Contains(t, p.request(0).SystemPrompt, "Route the user.")

		// The remaining call of the handoff turn executed under the old agent.
		assert.Equal(t, "12:00", resp.Messages[3].Content)
		assert.Equal(t, "c2", resp.Messages[3].ToolCallID)

		// Next turn runs as the billing agent.
		assert.Equal(t, "billing-model", p.request(1).Model)
		assert.Contains(t, p.request(1).SystemPrompt, "You handle invoices.")
		assert.Equal(t, "billing", resp.ActiveAgent.Name())
		assert.Equal(t, "billing", resp.Messages[len(resp.Messages)-1].SenderName)
	})

	t.Run("should resolve derived instructions against the run context each turn", func(t *testing.T) {
		p := &scriptedProvider{responses: []*provider.Response{textResponse("ok")}}
		r := newTestRunner(t, p, tool.NewRegistry())

		a := agent.New("A", "test-model", agent.DerivedInstructions(func(snapshot map[string]string) string {
			return "Speak " + snapshot["lang"] + "."
		}))
		_, err := r.Run(ctx, Params{Agent: a, Messages: userTurn("hi"), Context: map[string]string{"lang": "French"}})
		require.NoError(t, err)
		assert.Contains(t, p.request(0).SystemPrompt, "Speak French.")
	})

	t.Run("should keep a caller-provided session id", func(t *testing.T) {
		p := &scriptedProvider{responses: []*provider.Response{textResponse("ok")}}
		r := newTestRunner(t, p, tool.NewRegistry())

		a := agent.New("A", "test-model", agent.StaticInstructions("Be brief."))
		resp, err := r.Run(ctx, Params{Agent: a, Messages: userTurn("hi"), SessionID: "s-42"})
		require.NoError(t, err)
		assert.Equal(t, "s-42", resp.Context["session_id"])
	})

	t.Run("should send no tool schemas when tool choice is none", func(t *testing.T) {
		registry := tool.NewRegistry()
		registerClock(t, registry)
		p := &scriptedProvider{responses: []*provider.Response{textResponse("ok")}}
		r := newTestRunner(t, p, registry)

		a := agent.New("A", "test-model", agent.StaticInstructions("No tools."),
			agent.WithToolChoice(agent.ToolChoiceNone))
		_, err := r.Run(ctx, Params{Agent: a, Messages: userTurn("hi")})
		require.NoError(t, err)
		assert.Empty(t, p.request(0).Tools)
	})

	t.Run("should send only the named tool when tool choice names one", func(t *testing.T) {
		registry := tool.NewRegistry()
		registerClock(t, registry)
		err := registry.RegisterNative(tool.Definition{Name: "other", Description: "Something else."},
			func(_ context.Context, _ map[string]interface{}, _ *agent.Context) (tool.Result, error) {
				return tool.Result{Value: "x"}, nil
			})
		require.NoError(t, err)

		p := &scriptedProvider{responses: []*provider.Response{textResponse("ok")}}
		r := newTestRunner(t, p, registry)

		a := agent.New("A", "test-model", agent.StaticInstructions("Clock only."),
			agent.WithNamedTool("get_time"))
		_, err = r.Run(ctx, Params{Agent: a, Messages: userTurn("hi")})
		require.NoError(t, err)
		require.Len(t, p.request(0).Tools, 1)
		assert.Equal(t, "get_time", p.request(0).Tools[0].Name)
	})

	t.Run("should expose every registered tool when the agent has no explicit list", func(t *testing.T) {
		registry := tool.NewRegistry()
		registerClock(t, registry)
		p := &scriptedProvider{responses: []*provider.Response{textResponse("ok")}}
		r := newTestRunner(t, p, registry)

		a := agent.New("A", "test-model", agent.StaticInstructions("Use anything."))
		_, err := r.Run(ctx, Params{Agent: a, Messages: userTurn("hi")})
		require.NoError(t, err)
		require.Len(t, p.request(0).Tools, 1)
		assert.Equal(t, "get_time", p.request(0).Tools[0].Name)
	})

	t.Run("should surface provider failures as run errors", func(t *testing.T) {
		p := &scriptedProvider{}
		r := newTestRunner(t, p, tool.NewRegistry())

		a := agent.New("A", "test-model", agent.StaticInstructions("Be brief."))
		_, err := r.Run(ctx, Params{Agent: a, Messages: userTurn("hi")})
		assert.Error(t, err)
	})

	t.Run("should reject runs without an agent or without messages", func(t *testing.T) {
		p := &scriptedProvider{responses: []*provider.Response{textResponse("ok")}}
		r := newTestRunner(t, p, tool.NewRegistry())

		_, err := r.Run(ctx, Params{Messages: userTurn("hi")})
		assert.Error(t, err)

		a := agent.New("A", "test-model", agent.StaticInstructions("Be brief."))
		_, err = r.Run(ctx, Params{Agent: a})
		assert.Error(t, err)
	})

	t.Run("should continue past a failing tool with an error-text result", func(t *testing.T) {
		registry := tool.NewRegistry()
		err := registry.RegisterNative(tool.Definition{Name: "boom", Description: "Always fails."},
			func(_ context.Context, _ map[string]interface{}, _ *agent.Context) (tool.Result, error) {
				return tool.Result{}, errors.New("kaput")
			})
		require.NoError(t, err)

		p := &scriptedProvider{responses: []*provider.Response{
			toolCallResponse(provider.ToolCallRequest{ID: "c1", Name: "boom", ArgumentsJSON: "{}"}),
			textResponse("sorry about that"),
		}}
		r := newTestRunner(t, p, registry)

		a := agent.New("A", "test-model", agent.StaticInstructions("Try things."))
		resp, err := r.Run(ctx, Params{Agent: a, Messages: userTurn("go")})
		require.NoError(t, err)
		assert.Contains(t, resp.Messages[2].Content, "boom failed")
		assert.Equal(t, "sorry about that", resp.Messages[len(resp.Messages)-1].Content)
	})
}

type staticEnricher struct{ suffix string }

func (e staticEnricher) EnrichInstructions(_ context.Context, base, agentName, _ string) (string, error) {
	return base + " " + e.suffix + " (" + agentName + ")", nil
}

type failingEnricher struct{}

func (failingEnricher) EnrichInstructions(context.Context, string, string, string) (string, error) {
	return "", errors.New("memory store offline")
}

func TestEnrichment(t *testing.T) {
	ctx := context.Background()

	t.Run("should pass enriched instructions to the provider", func(t *testing.T) {
		p := &scriptedProvider{responses: []*provider.Response{textResponse("ok")}}
		r, err := New(Config{
			Provider: p,
			Registry: tool.NewRegistry(),
			Enricher: staticEnricher{suffix: "Remember: user prefers metric units."},
			Logger:   zerolog.Nop(),
		})
		require.NoError(t, err)

		a := agent.New("A", "test-model", agent.StaticInstructions("Be helpful."))
		_, err = r.Run(ctx, Params{Agent: a, Messages: userTurn("hi")})
		require.NoError(t, err)
		assert.Contains(t, p.request(0).SystemPrompt, "user prefers metric units")
		assert.Contains(t, p.request(0).SystemPrompt, "(A)")
	})

	t.Run("should fall back to minimal enrichment when the enricher fails", func(t *testing.T) {
		registry := tool.NewRegistry()
		registerClock(t, registry)
		p := &scriptedProvider{responses: []*provider.Response{textResponse("ok")}}
		r, err := New(Config{
			Provider: p,
			Registry: registry,
			Enricher: failingEnricher{},
			Logger:   zerolog.Nop(),
		})
		require.NoError(t, err)

		a := agent.New("A", "test-model", agent.StaticInstructions("Be helpful."))
		_, err = r.Run(ctx, Params{Agent: a, Messages: userTurn("hi")})
		require.NoError(t, err)
		assert.Contains(t, p.request(0).SystemPrompt, "You are A.")
		assert.Contains(t, p.request(0).SystemPrompt, "get_time")
	})
}
