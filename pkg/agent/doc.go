// Package agent defines the immutable agent personas the runner orchestrates
// and the mutable run-scoped context shared by tool executions.
//
// Invariants:
// - Agent values are immutable after construction; a handoff swaps the whole value.
// - Resolving instructions is pure given a context snapshot.
// - A Context is owned by exactly one run and is never shared across runs.
//
// Usage:
//
//	researcher := agent.New("researcher", "claude-3-5-sonnet-20241022",
//		agent.StaticInstructions("You research topics."),
//		agent.WithTools("search_web", "recall"),
//	)
//	runCtx := agent.NewContext(nil)
//	runCtx.Set("user_name", "Nadia")
//	_ = researcher.ResolveInstructions(runCtx.Snapshot())
package agent
