package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/solenelabs/aria/pkg/conversation"
)

// ErrStreamingUnsupported signals that a provider (or the current transport)
// cannot stream; the caller should retry the turn with Complete.
var ErrStreamingUnsupported = errors.New("streaming not supported by provider")

// ToolDefinition declares a callable tool to the model.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ToolCallRequest is a tool invocation the model asked for.
type ToolCallRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ArgumentsJSON string `json:"arguments_json"`
}

// TokenUsage tracks token consumption for one call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Request is one model invocation.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []conversation.Message
	Tools        []ToolDefinition
	Temperature  float64
	MaxTokens    int
}

// Response is the model's reply for one turn.
type Response struct {
	Content   string
	ToolCalls []ToolCallRequest
	Usage     *TokenUsage
}

// StreamFunc receives incremental text deltas. Returning an error stops the
// stream and propagates the error to the caller.
type StreamFunc func(delta string) error

// Provider is the LLM invocation collaborator the runner depends on.
type Provider interface {
	// Complete performs a blocking call and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream performs a streaming call, forwarding text deltas to onDelta and
	// returning the accumulated response. Implementations that cannot stream
	// return ErrStreamingUnsupported.
	Stream(ctx context.Context, req Request, onDelta StreamFunc) (*Response, error)

	// Name returns the vendor name.
	Name() string
}

// IsRetryable reports whether an error is worth retrying on another attempt
// or credential profile: network resets, rate limits and 5xx responses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection reset", "timeout", "ECONNRESET", "ETIMEDOUT",
		"429", "rate limit",
		"500", "502", "503", "504", "overloaded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
