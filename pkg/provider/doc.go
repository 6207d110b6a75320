// Package provider adapts LLM vendor APIs behind a single invocation
// interface with structured tool-call detection and optional token streaming.
//
// Invariants:
// - Tool-call requests are normalized to {ID, Name, ArgumentsJSON}.
// - Stream returns ErrStreamingUnsupported when the transport cannot stream;
//   callers fall back to Complete.
// - Credential profiles are tried in priority order with cooldown on failure.
//
// Usage:
//
//	factory := provider.NewFactory([]provider.Profile{{ID: "main", Vendor: "anthropic", APIKey: key}}, logger)
//	p, _ := factory.Acquire()
//	resp, _ := p.Complete(ctx, provider.Request{Model: "claude-3-5-sonnet-20241022", ...})
//	_ = resp
package provider
