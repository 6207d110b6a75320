// Package runner drives the agent turn loop: ask the model, execute requested
// tools, apply handoffs, repeat until a plain answer or the turn budget ends.
//
// Invariants:
// - At most MaxTurns model calls per run; budget exhaustion is a soft stop,
//   never an error.
// - A response without tool calls is the only other terminal condition.
// - A handoff replaces the active agent for subsequent turns; the remaining
//   tool calls of the turn it happened in still run before the switch is used.
// - All mutable run state (context, history) is per-run; concurrent runs
//   never share it.
//
// Usage:
//
//	r, _ := runner.New(runner.Config{Provider: p, Registry: registry, Logger: logger})
//	resp, _ := r.Run(ctx, runner.Params{
//		Agent:    persona,
//		Messages: []conversation.Message{conversation.UserMessage("hi")},
//	})
//	_ = resp
package runner
