// Package tool resolves tool names to executable units across three
// provenances and dispatches execution for the runner.
//
// Invariants:
// - Lookup priority is fixed: native agent tool, then provider callback, then
//   remote callback. A local tool always shadows a remote one of the same name.
// - Execute never returns an error to the runner: unknown names, malformed
//   arguments, tool errors and panics all degrade to an error-text Result the
//   model sees as tool output.
// - Registration is concurrency-safe; execution takes only read locks.
//
// Usage:
//
//	registry := tool.NewRegistry()
//	_ = registry.RegisterNative(tool.Definition{Name: "get_time", Description: "Current time"},
//		func(ctx context.Context, args map[string]interface{}, runCtx *agent.Context) (tool.Result, error) {
//			return tool.Result{Value: time.Now().Format(time.RFC3339)}, nil
//		})
//	result := registry.Execute(ctx, "get_time", "{}", runCtx)
//	_ = result
package tool
