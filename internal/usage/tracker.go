package usage

import (
	"context"
	"log/slog"

	"github.com/kahyalabs/kahya/internal/config"
)

// Tracker couples the store with the pricing table so call sites can
// record an LLM call in one line. A nil *Tracker ignores all calls,
// which lets components treat usage accounting as optional.
type Tracker struct {
	store   *Store
	pricing map[string]config.PricingEntry
	logger  *slog.Logger
}

// NewTracker creates a tracker writing to store, pricing costs from
// the given table.
func NewTracker(store *Store, pricing map[string]config.PricingEntry, logger *slog.Logger) *Tracker {
	return &Tracker{store: store, pricing: pricing, logger: logger}
}

// Track records one LLM call. Errors are logged, not returned; usage
// accounting must never fail a user request.
func (t *Tracker) Track(ctx context.Context, component, model, provider string, inputTokens, outputTokens int) {
	if t == nil || t.store == nil {
		return
	}
	rec := Record{
		ConversationID: ConversationFromContext(ctx),
		Component:      component,
		Model:          model,
		Provider:       provider,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		CostUSD:        ComputeCost(model, inputTokens, outputTokens, t.pricing),
	}
	if err := t.store.Add(ctx, rec); err != nil {
		t.logger.Warn("failed to record usage", "component", component, "error", err)
	}
}
