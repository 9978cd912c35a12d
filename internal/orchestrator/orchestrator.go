package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/parleylabs/parley/internal/decision"
	"github.com/parleylabs/parley/internal/drafter"
	"github.com/parleylabs/parley/internal/llm"
	"github.com/parleylabs/parley/internal/offer"
	"github.com/parleylabs/parley/internal/state"
	"github.com/parleylabs/parley/pkg/models"
)

const (
	// DefaultMaxRounds is the default negotiation round budget.
	DefaultMaxRounds = 3
	// DefaultEventBuffer is the default lifecycle event channel capacity.
	DefaultEventBuffer = 64
)

// Orchestrator drives one negotiation through its full life cycle. It
// exclusively owns the mutable conversation histories and latest-offer map;
// every collaborator receives immutable snapshots.
type Orchestrator struct {
	id          string
	baseline    []models.BaselineItem
	profiles    []models.CounterpartyProfile
	referenceID string
	maxRounds   int

	disruptionTarget    string
	disruptionCondition string
	disruptionRound     int
	disruptionCapacity  float64

	completer llm.Completer
	store     state.Store
	scheduler *RoundScheduler
	engine    *decision.Engine
	emitter   *EventEmitter
	usage     *llm.UsageTracker
	halt      *HaltWatcher

	histories map[string][]models.ConversationTurn
	offers    map[string]models.StructuredOffer
	phase     models.RoundPhase
}

// New creates an orchestrator for one negotiation.
func New(cfg RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if cfg.Completer == nil {
		return nil, fmt.Errorf("orchestrator requires a completer")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("orchestrator requires a store")
	}
	if cfg.Responder == nil {
		return nil, fmt.Errorf("orchestrator requires a responder")
	}
	if len(cfg.Baseline) == 0 {
		return nil, fmt.Errorf("orchestrator requires a non-empty baseline")
	}
	if len(cfg.Counterparties) == 0 {
		return nil, fmt.Errorf("orchestrator requires at least one counterparty")
	}
	ref := false
	for _, p := range cfg.Counterparties {
		if p.ID == cfg.ReferenceID {
			ref = true
		}
	}
	if !ref {
		return nil, fmt.Errorf("reference counterparty %q is not a participant", cfg.ReferenceID)
	}

	options := orchestratorOptions{
		maxRounds:   DefaultMaxRounds,
		eventBuffer: DefaultEventBuffer,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.negotiationID == "" {
		options.negotiationID = uuid.NewString()
	}
	if options.disruptionRound <= 0 {
		options.disruptionRound = options.maxRounds - 1
	}
	if options.disruptionRound < 1 {
		options.disruptionRound = 1
	}

	emitter := NewEventEmitter(options.eventBuffer)

	o := &Orchestrator{
		id:                  options.negotiationID,
		baseline:            cfg.Baseline,
		profiles:            cfg.Counterparties,
		referenceID:         cfg.ReferenceID,
		maxRounds:           options.maxRounds,
		disruptionTarget:    options.disruptionTarget,
		disruptionCondition: options.disruptionCondition,
		disruptionRound:     options.disruptionRound,
		disruptionCapacity:  options.disruptionCapacity,
		completer:           cfg.Completer,
		store:               cfg.Store,
		scheduler:           NewRoundScheduler(drafter.New(cfg.Completer), cfg.Responder, offer.NewExtractor(cfg.Completer), cfg.Store, emitter),
		engine:              decision.New(decision.Config{Completer: cfg.Completer, Profile: options.weightProfile}),
		emitter:             emitter,
		usage:               &llm.UsageTracker{},
		halt:                options.haltWatcher,
		histories:           make(map[string][]models.ConversationTurn, len(cfg.Counterparties)),
		offers:              make(map[string]models.StructuredOffer, len(cfg.Counterparties)),
		phase:               models.PhaseInitial,
	}
	return o, nil
}

// ID returns the negotiation ID.
func (o *Orchestrator) ID() string { return o.id }

// Events returns the lifecycle event stream. Run closes the channel on
// return; standalone RunDisruptionPhase/Decide callers close it with Close
// once the negotiation is over.
func (o *Orchestrator) Events() <-chan Event { return o.emitter.Events() }

// Close closes the lifecycle event channel. Redundant after Run, which
// closes it on return.
func (o *Orchestrator) Close() { o.emitter.Close() }

// Usage returns the per-negotiation token/cost accumulator.
func (o *Orchestrator) Usage() *llm.UsageTracker { return o.usage }

// Run executes the full negotiation and terminates in a committed decision.
// Fatal failures are preceded by an error event; partial rounds already
// persisted remain queryable. The event channel is closed on return.
func (o *Orchestrator) Run(ctx context.Context) (*models.FinalDecision, error) {
	defer o.emitter.Close()

	if err := o.store.CreateNegotiation(o.id); err != nil {
		return nil, fmt.Errorf("create negotiation: %w", err)
	}
	ctx = llm.WithUsage(ctx, o.usage)

	log.Printf("[orchestrator] negotiation %s: %d counterparties, %d rounds, reference %s",
		o.id, len(o.profiles), o.maxRounds, o.referenceID)

	for round := 1; round <= o.maxRounds; round++ {
		if o.halted() {
			log.Printf("[orchestrator] halt signal received, skipping remaining rounds")
			break
		}

		if round == 1 {
			o.runStagedFirstRound(ctx)
		} else {
			o.runWave(ctx, o.profiles, round)
		}

		if o.disruptionTarget != "" && round == o.disruptionRound && o.phase == models.PhaseInitial {
			o.runDisruptionCheckpoint(ctx)
		}
	}

	return o.Decide(ctx)
}

// RunDisruptionPhase is the standalone re-entrant form of the disruption
// checkpoint: it rebuilds negotiation state from the store, fires the
// checkpoint, and runs the remaining post-disruption rounds. The caller
// commits the decision separately via Decide, then closes the event channel
// with Close.
func (o *Orchestrator) RunDisruptionPhase(ctx context.Context, target, condition string) (*models.DisruptionAnalysis, error) {
	o.disruptionTarget = target
	o.disruptionCondition = condition
	ctx = llm.WithUsage(ctx, o.usage)

	nextRound, err := o.rebuildState()
	if err != nil {
		return nil, err
	}

	analysis := o.runDisruptionCheckpoint(ctx)
	for round := nextRound; round <= o.maxRounds; round++ {
		if o.halted() {
			break
		}
		o.runWave(ctx, o.profiles, round)
	}
	return analysis, nil
}

// Decide hands the final offer set to the decision engine and commits the
// result. Scoring exhaustion is fatal: an error event precedes the abort
// and the negotiation is marked failed for manual inspection.
func (o *Orchestrator) Decide(ctx context.Context) (*models.FinalDecision, error) {
	ctx = llm.WithUsage(ctx, o.usage)

	in := decision.Input{
		NegotiationID: o.id,
		Baseline:      o.baseline,
		Profiles:      o.profiles,
		Offers:        o.snapshotOffers(),
	}
	if o.phase == models.PhasePostDisruption {
		in.ConstrainedID = o.disruptionTarget
		in.CapacityFraction = o.disruptionCapacity
	}
	final, err := o.engine.Decide(ctx, in)
	if err != nil {
		o.emitter.Emit(Event{
			Type:          EventError,
			NegotiationID: o.id,
			Message:       fmt.Sprintf("decision failed: %v", err),
		})
		if updateErr := o.store.UpdateStatus(o.id, state.StatusFailed); updateErr != nil {
			log.Printf("[orchestrator] marking negotiation %s failed: %v", o.id, updateErr)
		}
		return nil, err
	}

	if err := o.store.SaveDecision(o.id, *final); err != nil {
		return nil, fmt.Errorf("persist decision: %w", err)
	}
	o.emitter.Emit(Event{
		Type:          EventDecision,
		NegotiationID: o.id,
		Decision:      final,
	})

	tokensIn, tokensOut := o.usage.Totals()
	log.Printf("[orchestrator] negotiation %s complete: %d model calls, %d tokens, $%.4f",
		o.id, o.usage.Calls(), tokensIn+tokensOut, o.usage.Cost())
	return final, nil
}

// runStagedFirstRound runs round 1 in two waves: all non-reference
// counterparties first, then the reference counterparty with the wave 1
// offers as competitive leverage.
func (o *Orchestrator) runStagedFirstRound(ctx context.Context) {
	var wave1, wave2 []models.CounterpartyProfile
	for _, p := range o.profiles {
		if p.ID == o.referenceID {
			wave2 = append(wave2, p)
		} else {
			wave1 = append(wave1, p)
		}
	}

	log.Printf("[orchestrator] round 1 wave 1: %d counterparties", len(wave1))
	o.runWave(ctx, wave1, 1)
	log.Printf("[orchestrator] round 1 wave 2: reference %s", o.referenceID)
	o.runWave(ctx, wave2, 1)
}

// runWave executes one round for the given counterparties concurrently and
// absorbs the sealed results. Per-turn failures never cancel siblings.
func (o *Orchestrator) runWave(ctx context.Context, wave []models.CounterpartyProfile, round int) {
	results := make([]models.NegotiationRound, len(wave))

	var wg sync.WaitGroup
	for i, profile := range wave {
		wg.Add(1)
		go func(i int, in turnInput) {
			defer wg.Done()
			results[i] = o.scheduler.ExecuteTurn(ctx, in)
		}(i, o.turnInput(profile, round))
	}
	wg.Wait()

	for _, r := range results {
		o.absorb(r)
	}
}

// turnInput builds the immutable snapshot one turn runs against.
func (o *Orchestrator) turnInput(profile models.CounterpartyProfile, round int) turnInput {
	in := turnInput{
		NegotiationID: o.id,
		Profile:       profile,
		Round:         round,
		MaxRounds:     o.maxRounds,
		Phase:         o.phase,
		Baseline:      o.baseline,
		History:       append([]models.ConversationTurn(nil), o.histories[profile.ID]...),
	}

	if last, ok := o.offers[profile.ID]; ok {
		in.LastOffer = &last
	}

	competing := make(map[string]float64)
	for id, off := range o.offers {
		if id != profile.ID {
			competing[id] = off.TotalCost
		}
	}
	if len(competing) > 0 {
		in.CompetingTotals = competing
	}

	if o.phase == models.PhasePostDisruption {
		in.DisruptionNote = fmt.Sprintf("%s reports a capacity constraint: %s", o.disruptionTarget, o.disruptionCondition)
		if profile.ID == o.disruptionTarget {
			in.Condition = o.disruptionCondition
		}
	}
	return in
}

// absorb folds a sealed round into the orchestrator-owned state. Failed
// rounds are excluded: the counterparty keeps its prior history and offer.
func (o *Orchestrator) absorb(round models.NegotiationRound) {
	if round.Status != models.RoundComplete || round.Offer == nil {
		return
	}
	o.histories[round.CounterpartyID] = append(o.histories[round.CounterpartyID], round.Outbound, round.Reply)
	o.offers[round.CounterpartyID] = *round.Offer
}

// runDisruptionCheckpoint fires the one-time disruption: the condition
// becomes active for the target's remaining turns and a formal analysis is
// requested. Analysis failure is swallowed; the negotiation proceeds.
func (o *Orchestrator) runDisruptionCheckpoint(ctx context.Context) *models.DisruptionAnalysis {
	log.Printf("[orchestrator] disruption checkpoint: %s constrained", o.disruptionTarget)
	o.phase = models.PhasePostDisruption

	var target models.CounterpartyProfile
	for _, p := range o.profiles {
		if p.ID == o.disruptionTarget {
			target = p
		}
	}

	o.emitter.Emit(Event{
		Type:           EventDisruptionDetected,
		NegotiationID:  o.id,
		CounterpartyID: o.disruptionTarget,
		Message:        o.disruptionCondition,
	})

	analysis := analyzeDisruption(ctx, o.completer, target, o.disruptionCondition, o.snapshotOffers(), o.baseline)
	if analysis == nil {
		return nil
	}

	if err := o.store.SaveDisruption(o.id, *analysis); err != nil {
		log.Printf("[orchestrator] persisting disruption analysis: %v", err)
	}
	o.emitter.Emit(Event{
		Type:           EventDisruptionAnalysis,
		NegotiationID:  o.id,
		CounterpartyID: o.disruptionTarget,
		Analysis:       analysis,
		Message:        analysis.Recommendation,
	})
	return analysis
}

// rebuildState reconstructs histories and latest offers from persisted
// rounds and returns the next round number to run.
func (o *Orchestrator) rebuildState() (int, error) {
	rounds, err := o.store.Rounds(o.id)
	if err != nil {
		return 0, fmt.Errorf("rebuild state: %w", err)
	}

	nextRound := 1
	for _, r := range rounds {
		if r.Round >= nextRound {
			nextRound = r.Round + 1
		}
		if r.Phase == models.PhasePostDisruption {
			o.phase = models.PhasePostDisruption
		}
		o.absorb(r)
	}
	return nextRound, nil
}

// snapshotOffers copies the latest-offer map for hand-off across a
// component boundary.
func (o *Orchestrator) snapshotOffers() map[string]models.StructuredOffer {
	out := make(map[string]models.StructuredOffer, len(o.offers))
	for id, off := range o.offers {
		out[id] = off
	}
	return out
}

func (o *Orchestrator) halted() bool {
	return o.halt != nil && o.halt.Halted()
}
