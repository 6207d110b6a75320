package conversation

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation requested by an assistant message. Arguments
// stay JSON-encoded as produced by the model.
type ToolCall struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ArgumentsJSON string `json:"arguments_json"`
}

// Message represents a single conversation turn.
//
// A tool message must carry the ToolCallID of the assistant tool call it
// answers. An assistant message may carry the SenderName of the agent that
// produced it, which matters after a handoff, and the ToolCalls it requested.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	SenderName string     `json:"sender_name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant message tagged with the producing agent.
func AssistantMessage(content, senderName string) Message {
	return Message{Role: RoleAssistant, Content: content, SenderName: senderName}
}

// ToolMessage builds a tool result message keyed by the call it answers.
func ToolMessage(content, toolCallID string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}
