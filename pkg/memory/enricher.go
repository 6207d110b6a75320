package memory

import (
	"context"
	"fmt"
	"strings"
)

// enricherLimit caps how many recalled facts ride along in the system prompt.
const enricherLimit = 5

// Enricher injects recalled facts into agent instructions before each model
// call. It satisfies the runner's Enricher interface.
type Enricher struct {
	store *Store
}

// NewEnricher wraps a store for instruction enrichment.
func NewEnricher(store *Store) *Enricher {
	return &Enricher{store: store}
}

// EnrichInstructions appends the agent identity and the facts most relevant
// to the latest user message. An empty store enriches to identity only.
func (e *Enricher) EnrichInstructions(ctx context.Context, base, agentName, lastUserMessage string) (string, error) {
	var b strings.Builder
	b.WriteString(base)
	fmt.Fprintf(&b, "\n\nYou are %s.", agentName)

	if lastUserMessage != "" {
		facts, err := e.store.Search(ctx, lastUserMessage, enricherLimit)
		if err != nil {
			return "", fmt.Errorf("fact recall failed: %w", err)
		}
		if len(facts) > 0 {
			b.WriteString("\n\nRelevant remembered facts:")
			for _, fact := range facts {
				b.WriteString("\n- ")
				b.WriteString(fact.Content)
			}
		}
	}

	return b.String(), nil
}
