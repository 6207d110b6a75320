// Package memory persists long-lived facts about the user and recalls them
// by keyword relevance. Facts come from two places: agent tools that save
// them explicitly, and markdown files in a watched facts directory that are
// re-indexed whenever they change.
//
// Invariants:
// - Tool-saved facts survive restarts; file facts mirror the directory and
//   are pruned when their source file disappears.
// - Recall is deterministic: same store contents and query, same ranking.
//
// Usage:
//
//	store, _ := memory.NewStore(memory.Config{DBPath: dbPath, FactsDir: dir, Logger: logger})
//	defer store.Close()
//	_ = store.RegisterTools(registry)
package memory
