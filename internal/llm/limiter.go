package llm

import (
	"context"
	"fmt"
)

// Limiter bounds concurrent model calls with one counting semaphore per
// tier. Two independent semaphores exist so cheap, highly parallel fast-tier
// calls never starve the scarce reasoning-tier slots. Waiters are woken in
// arrival order.
type Limiter struct {
	fast      chan struct{}
	reasoning chan struct{}
}

// Default slot counts per tier.
const (
	// DefaultFastSlots is the default fast-tier concurrency.
	DefaultFastSlots = 8
	// DefaultReasoningSlots is the default reasoning-tier concurrency.
	DefaultReasoningSlots = 2
)

// NewLimiter creates a limiter with the given slot counts. Non-positive
// counts fall back to the defaults.
func NewLimiter(fastSlots, reasoningSlots int) *Limiter {
	if fastSlots <= 0 {
		fastSlots = DefaultFastSlots
	}
	if reasoningSlots <= 0 {
		reasoningSlots = DefaultReasoningSlots
	}
	return &Limiter{
		fast:      make(chan struct{}, fastSlots),
		reasoning: make(chan struct{}, reasoningSlots),
	}
}

// Acquire blocks until a slot is free on the tier's semaphore, then returns
// a release function. Callers must defer the release so the slot is returned
// on every exit path, including error paths.
func (l *Limiter) Acquire(ctx context.Context, tier Tier) (func(), error) {
	sem := l.sem(tier)

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s slot: %w", tier, ctx.Err())
	}
}

// InFlight returns the number of currently held slots for a tier.
func (l *Limiter) InFlight(tier Tier) int {
	return len(l.sem(tier))
}

func (l *Limiter) sem(tier Tier) chan struct{} {
	if tier == TierReasoning {
		return l.reasoning
	}
	return l.fast
}
