package gateway

import "github.com/solenelabs/aria/pkg/conversation"

// secretHeader carries the shared secret on HTTP requests.
const secretHeader = "X-Aria-Secret"

// ChatRequest is the body of POST /v1/chat and the first frame of the
// WebSocket stream.
type ChatRequest struct {
	// Agent selects a configured agent. Empty uses the default agent.
	Agent string `json:"agent,omitempty"`
	// Message is the user's message.
	Message string `json:"message"`
	// Context seeds the run context.
	Context map[string]string `json:"context,omitempty"`
	// History is an optional prior transcript the message continues.
	History []conversation.Message `json:"history,omitempty"`
	// MaxTurns caps the run's turn budget. Zero uses the runner default.
	MaxTurns int `json:"max_turns,omitempty"`
	// SessionID names the session. Minted when empty.
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the result of a blocking chat run.
type ChatResponse struct {
	RunID string `json:"run_id"`
	// Reply is the final assistant message.
	Reply string `json:"reply"`
	// Agent is the agent that produced the reply (after any handoffs).
	Agent     string            `json:"agent"`
	SessionID string            `json:"session_id"`
	Context   map[string]string `json:"context,omitempty"`
	// Messages is the full transcript of the run.
	Messages []conversation.Message `json:"messages"`
}

// StreamFrame is one WebSocket message on the streaming endpoint.
type StreamFrame struct {
	Type string `json:"type"` // "token", "done" or "error"
	// Content carries the token text for "token" frames.
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
	// RunID is set on the terminal frame.
	RunID string `json:"run_id,omitempty"`
}

// errorResponse is the JSON error body of failed HTTP requests.
type errorResponse struct {
	Error string `json:"error"`
}
