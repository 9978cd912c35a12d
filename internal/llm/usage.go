package llm

import (
	"context"
	"sync"
)

// UsageTracker accumulates token usage and cost for one negotiation.
// A tracker is created at negotiation start, attached to the context, and
// torn down with it; there is no process-wide registry.
type UsageTracker struct {
	mu           sync.Mutex
	fastIn       int64
	fastOut      int64
	reasoningIn  int64
	reasoningOut int64
	calls        int
}

// NewUsageTracker creates an empty usage tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{}
}

// Add records token usage from one API call.
func (t *UsageTracker) Add(tier Tier, input, output int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if tier == TierReasoning {
		t.reasoningIn += input
		t.reasoningOut += output
	} else {
		t.fastIn += input
		t.fastOut += output
	}
	t.calls++
}

// Calls returns the number of API calls recorded.
func (t *UsageTracker) Calls() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Totals returns total input and output tokens across both tiers.
func (t *UsageTracker) Totals() (input, output int64) {
	if t == nil {
		return 0, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fastIn + t.reasoningIn, t.fastOut + t.reasoningOut
}

// Cost estimates the cost in USD based on current Claude pricing.
// Approximate pricing; update as pricing changes.
func (t *UsageTracker) Cost() float64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	// Haiku: $0.80/1M input, $4/1M output. Sonnet: $3/1M input, $15/1M output.
	fastCost := float64(t.fastIn)/1_000_000*0.80 + float64(t.fastOut)/1_000_000*4.0
	reasoningCost := float64(t.reasoningIn)/1_000_000*3.0 + float64(t.reasoningOut)/1_000_000*15.0
	return fastCost + reasoningCost
}

// usageKey is the context key for the per-negotiation usage tracker.
type usageKey struct{}

// WithUsage attaches a usage tracker to the context. Every completion made
// with the returned context records into the tracker.
func WithUsage(ctx context.Context, tracker *UsageTracker) context.Context {
	return context.WithValue(ctx, usageKey{}, tracker)
}

// usageFromContext returns the tracker attached to the context, or nil.
// All UsageTracker methods are nil-safe, so callers never check.
func usageFromContext(ctx context.Context) *UsageTracker {
	tracker, _ := ctx.Value(usageKey{}).(*UsageTracker)
	return tracker
}
