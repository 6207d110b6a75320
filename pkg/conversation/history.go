package conversation

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/solenelabs/aria/internal/observability"
)

// DefaultMaxMessages is the default cap on non-system messages.
const DefaultMaxMessages = 50

// topicHintLimit caps the first-line excerpt kept per dropped user message.
const topicHintLimit = 80

// History is an ordered, size-bounded message buffer. It grows by append and
// shrinks only through compaction, which runs synchronously on every append
// once the non-system message count exceeds the limit.
//
// History is owned by a single run; it is not safe for concurrent use.
type History struct {
	messages    []Message
	maxMessages int
}

// NewHistory creates a history bounded to maxMessages non-system messages.
// Non-positive values fall back to DefaultMaxMessages.
func NewHistory(maxMessages int) *History {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &History{maxMessages: maxMessages}
}

// NewHistoryFromMessages seeds a history with an existing transcript and
// compacts immediately if the seed already exceeds the limit.
func NewHistoryFromMessages(messages []Message, maxMessages int) *History {
	h := NewHistory(maxMessages)
	h.messages = append(h.messages, messages...)
	h.compact()
	return h
}

// MaxMessages returns the configured non-system limit.
func (h *History) MaxMessages() int {
	return h.maxMessages
}

// Append adds a message and compacts when the buffer exceeds the limit.
func (h *History) Append(msg Message) {
	h.messages = append(h.messages, msg)
	h.compact()
}

// Messages returns a copy of the buffer in order.
func (h *History) Messages() []Message {
	return append([]Message(nil), h.messages...)
}

// NonSystemCount returns the number of counted (non-system) messages.
func (h *History) NonSystemCount() int {
	count := 0
	for _, msg := range h.messages {
		if msg.Role != RoleSystem {
			count++
		}
	}
	return count
}

// compact trims the oldest conversation messages into a deterministic summary
// once the non-system count exceeds the limit. System messages are preserved
// verbatim and ordered first.
func (h *History) compact() {
	var systems, convo []Message
	for _, msg := range h.messages {
		if msg.Role == RoleSystem {
			systems = append(systems, msg)
		} else {
			convo = append(convo, msg)
		}
	}

	dropCount := len(convo) - h.maxMessages
	if dropCount <= 0 {
		return
	}

	// Advance past any contiguous tool results so the surviving tail never
	// starts with an orphaned tool message.
	split := dropCount
	for split < len(convo) && convo[split].Role == RoleTool {
		split++
	}

	dropped := convo[:split]
	kept := convo[split:]

	rebuilt := make([]Message, 0, len(systems)+1+len(kept))
	rebuilt = append(rebuilt, systems...)
	if summary := summarizeDropped(dropped); summary != "" {
		rebuilt = append(rebuilt, SystemMessage(
			fmt.Sprintf("%d earlier messages summarized. %s", len(dropped), summary)))
	}
	rebuilt = append(rebuilt, kept...)
	h.messages = rebuilt

	observability.RecordCompaction(len(dropped))
	log.Debug().
		Int("dropped", len(dropped)).
		Int("kept", len(kept)).
		Int("limit", h.maxMessages).
		Msg("History compacted")
}

// summarizeDropped builds the model-free summary of a dropped slice: per-role
// counts plus first-line excerpts of dropped user messages as topic hints.
func summarizeDropped(dropped []Message) string {
	if len(dropped) == 0 {
		return ""
	}

	var users, assistants, tools int
	var topics []string
	for _, msg := range dropped {
		switch msg.Role {
		case RoleUser:
			users++
			if hint := topicHint(msg.Content); hint != "" {
				topics = append(topics, hint)
			}
		case RoleAssistant:
			assistants++
		case RoleTool:
			tools++
		}
	}

	summary := fmt.Sprintf("Dropped %d user, %d assistant, %d tool messages.",
		users, assistants, tools)
	if len(topics) > 0 {
		summary += " Topics discussed: " + strings.Join(topics, "; ")
	}
	return summary
}

// topicHint returns the first line of content truncated to topicHintLimit runes.
func topicHint(content string) string {
	line := content
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if runes := []rune(line); len(runes) > topicHintLimit {
		line = string(runes[:topicHintLimit])
	}
	return line
}
