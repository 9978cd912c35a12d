package orchestrator

import (
	"github.com/parleylabs/parley/internal/counterparty"
	"github.com/parleylabs/parley/internal/llm"
	"github.com/parleylabs/parley/internal/state"
	"github.com/parleylabs/parley/pkg/models"
)

// RequiredConfig contains the minimal required configuration for an
// Orchestrator. All fields are required and have no defaults.
type RequiredConfig struct {
	// Completer performs all model calls.
	Completer llm.Completer
	// Store persists rounds, the disruption analysis, and the decision.
	Store state.Store
	// Responder produces counterparty replies.
	Responder counterparty.Responder
	// Baseline is the immutable reference item set.
	Baseline []models.BaselineItem
	// Counterparties are the negotiation participants.
	Counterparties []models.CounterpartyProfile
	// ReferenceID nominates the reference counterparty for round 1
	// staging.
	ReferenceID string
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	negotiationID       string
	maxRounds           int
	weightProfile       models.WeightProfile
	disruptionTarget    string
	disruptionCondition string
	disruptionRound     int
	disruptionCapacity  float64
	eventBuffer         int
	haltWatcher         *HaltWatcher
}

// WithNegotiationID sets the negotiation ID. A random UUID is used when
// unset.
func WithNegotiationID(id string) Option {
	return func(o *orchestratorOptions) { o.negotiationID = id }
}

// WithMaxRounds sets the round budget.
func WithMaxRounds(n int) Option {
	return func(o *orchestratorOptions) { o.maxRounds = n }
}

// WithWeightProfile sets the decision scoring weight profile.
func WithWeightProfile(p models.WeightProfile) Option {
	return func(o *orchestratorOptions) { o.weightProfile = p }
}

// WithDisruption nominates the counterparty hit by the mid-negotiation
// disruption and the capacity-constraint condition injected into its
// subsequent turns.
func WithDisruption(targetID, condition string) Option {
	return func(o *orchestratorOptions) {
		o.disruptionTarget = targetID
		o.disruptionCondition = condition
	}
}

// WithDisruptionCapacity sets the fraction of its committed volume the
// disruption target can still fulfill. The decision phase sheds the excess
// to the other counterparties. Zero leaves the decision unconstrained.
func WithDisruptionCapacity(fraction float64) Option {
	return func(o *orchestratorOptions) { o.disruptionCapacity = fraction }
}

// WithDisruptionRound sets the round boundary after which the disruption
// checkpoint fires. Defaults to maxRounds-1.
func WithDisruptionRound(n int) Option {
	return func(o *orchestratorOptions) { o.disruptionRound = n }
}

// WithEventBuffer sets the lifecycle event channel capacity.
func WithEventBuffer(n int) Option {
	return func(o *orchestratorOptions) { o.eventBuffer = n }
}

// WithHaltWatcher attaches an operator halt signal watcher.
func WithHaltWatcher(hw *HaltWatcher) Option {
	return func(o *orchestratorOptions) { o.haltWatcher = hw }
}
