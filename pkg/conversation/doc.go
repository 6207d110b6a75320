// Package conversation holds the message value type and the size-bounded
// history buffer consumed and produced by the runner.
//
// Invariants:
// - System messages are never counted against the limit and never dropped.
// - Compaction never leaves a tool message as the first conversation message.
// - Compaction is deterministic and never calls a model.
//
// Usage:
//
//	history := conversation.NewHistory(50)
//	history.Append(conversation.UserMessage("hello"))
//	messages := history.Messages()
//	_ = messages
package conversation
