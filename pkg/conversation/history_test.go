package conversation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAppend(t *testing.T) {
	t.Run("should not compact below the limit", func(t *testing.T) {
		h := NewHistory(5)
		for i := 0; i < 5; i++ {
			h.Append(UserMessage(fmt.Sprintf("msg %d", i)))
		}

		assert.Len(t, h.Messages(), 5)
		assert.Equal(t, 5, h.NonSystemCount())
	})

	t.Run("should default the limit when non-positive", func(t *testing.T) {
		assert.Equal(t, DefaultMaxMessages, NewHistory(0).MaxMessages())
		assert.Equal(t, DefaultMaxMessages, NewHistory(-3).MaxMessages())
	})
}

func TestHistoryCompaction(t *testing.T) {
	t.Run("should keep non-system count at or below the limit", func(t *testing.T) {
		h := NewHistory(10)
		for i := 0; i < 100; i++ {
			h.Append(UserMessage(fmt.Sprintf("question %d", i)))
			h.Append(AssistantMessage(fmt.Sprintf("answer %d", i), "helper"))
		}

		assert.LessOrEqual(t, h.NonSystemCount(), 10+1)
	})

	t.Run("should never drop system messages", func(t *testing.T) {
		h := NewHistory(4)
		h.Append(SystemMessage("base instructions"))
		for i := 0; i < 20; i++ {
			h.Append(UserMessage(fmt.Sprintf("msg %d", i)))
		}

		messages := h.Messages()
		require.NotEmpty(t, messages)
		assert.Equal(t, RoleSystem, messages[0].Role)
		assert.Equal(t, "base instructions", messages[0].Content)
	})

	t.Run("should never leave a tool message first in the conversation tail", func(t *testing.T) {
		h := NewHistory(4)
		// Interleave assistant tool calls with tool results so the naive split
		// point regularly lands on a tool message.
		for i := 0; i < 30; i++ {
			h.Append(UserMessage(fmt.Sprintf("do thing %d", i)))
			h.Append(AssistantMessage("", "helper"))
			h.Append(ToolMessage(fmt.Sprintf("result %d", i), fmt.Sprintf("call-%d", i)))
			h.Append(ToolMessage(fmt.Sprintf("second result %d", i), fmt.Sprintf("call-%d-b", i)))

			for _, msg := range h.Messages() {
				if msg.Role == RoleSystem {
					continue
				}
				assert.NotEqual(t, RoleTool, msg.Role,
					"first conversation message must not be a tool result")
				break
			}
		}
	})

	t.Run("should summarize dropped messages deterministically", func(t *testing.T) {
		messages := []Message{
			UserMessage("plan my trip to Lisbon\nwith details"),
			AssistantMessage("sure", "helper"),
			UserMessage("book a hotel"),
			AssistantMessage("done", "helper"),
			UserMessage("latest"),
			AssistantMessage("ok", "helper"),
		}
		h := NewHistoryFromMessages(messages, 2)

		got := h.Messages()
		require.NotEmpty(t, got)
		summary := got[0]
		assert.Equal(t, RoleSystem, summary.Role)
		assert.Contains(t, summary.Content, "4 earlier messages summarized")
		assert.Contains(t, summary.Content, "2 user, 2 assistant, 0 tool")
		assert.Contains(t, summary.Content, "plan my trip to Lisbon")
		assert.NotContains(t, summary.Content, "with details")
		assert.Contains(t, summary.Content, "book a hotel")
	})

	t.Run("should truncate topic hints to 80 characters", func(t *testing.T) {
		long := strings.Repeat("a", 200)
		h := NewHistoryFromMessages([]Message{
			UserMessage(long),
			AssistantMessage("ok", "helper"),
			UserMessage("next"),
		}, 1)

		summary := h.Messages()[0]
		require.Equal(t, RoleSystem, summary.Role)
		assert.Contains(t, summary.Content, strings.Repeat("a", 80))
		assert.NotContains(t, summary.Content, strings.Repeat("a", 81))
	})

	t.Run("should keep identical output for identical input", func(t *testing.T) {
		build := func() []Message {
			h := NewHistory(3)
			for i := 0; i < 12; i++ {
				h.Append(UserMessage(fmt.Sprintf("topic %d", i)))
			}
			return h.Messages()
		}

		assert.Equal(t, build(), build())
	})
}
