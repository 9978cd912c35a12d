// Package server exposes negotiations over HTTP: starting a run, streaming
// its lifecycle events, and fetching the committed decision.
package server

import (
	"context"
	"log"
	"sync"

	"github.com/parleylabs/parley/internal/counterparty"
	"github.com/parleylabs/parley/internal/llm"
	"github.com/parleylabs/parley/internal/orchestrator"
	"github.com/parleylabs/parley/internal/scenario"
	"github.com/parleylabs/parley/internal/state"
	"github.com/parleylabs/parley/pkg/models"
)

// subscriberBuffer is the per-client event buffer. A slow client drops
// events rather than blocking the run.
const subscriberBuffer = 100

// Defaults are the negotiation parameters applied when a scenario does not
// override them.
type Defaults struct {
	MaxRounds     int
	WeightProfile models.WeightProfile
}

// Manager runs negotiations and fans their lifecycle events out to
// subscribers. Multiple negotiations run concurrently, each keyed by its
// negotiation ID.
type Manager struct {
	store     state.Store
	completer llm.Completer
	defaults  Defaults

	mu   sync.RWMutex
	runs map[string]*Run
}

// NewManager creates a manager over the shared store and completer.
func NewManager(store state.Store, completer llm.Completer, defaults Defaults) *Manager {
	if defaults.MaxRounds <= 0 {
		defaults.MaxRounds = orchestrator.DefaultMaxRounds
	}
	if defaults.WeightProfile == "" {
		defaults.WeightProfile = models.ProfileBalanced
	}
	return &Manager{
		store:     store,
		completer: completer,
		defaults:  defaults,
		runs:      make(map[string]*Run),
	}
}

// Run is one live or finished negotiation with its event fan-out.
type Run struct {
	// ID is the negotiation ID.
	ID string

	mu          sync.Mutex
	history     []orchestrator.Event
	subscribers map[chan orchestrator.Event]struct{}
	err         error

	done chan struct{}
}

// Start launches a negotiation for the scenario and returns immediately.
// Orchestration runs in the background; a subscriber disconnecting never
// aborts it.
func (m *Manager) Start(s *scenario.Scenario) (*Run, error) {
	maxRounds := s.MaxRounds
	if maxRounds <= 0 {
		maxRounds = m.defaults.MaxRounds
	}
	profile := s.WeightProfile
	if profile == "" {
		profile = m.defaults.WeightProfile
	}

	opts := []orchestrator.Option{
		orchestrator.WithMaxRounds(maxRounds),
		orchestrator.WithWeightProfile(profile),
	}
	if s.Disruption != nil {
		opts = append(opts, orchestrator.WithDisruption(s.Disruption.TargetID, s.Disruption.Condition))
		if s.Disruption.Round > 0 {
			opts = append(opts, orchestrator.WithDisruptionRound(s.Disruption.Round))
		}
		if s.Disruption.CapacityFraction > 0 {
			opts = append(opts, orchestrator.WithDisruptionCapacity(s.Disruption.CapacityFraction))
		}
	}

	o, err := orchestrator.New(orchestrator.RequiredConfig{
		Completer:      m.completer,
		Store:          m.store,
		Responder:      counterparty.NewSimulatedAgent(m.completer, s.Baseline),
		Baseline:       s.Baseline,
		Counterparties: s.Counterparties,
		ReferenceID:    s.ReferenceID,
	}, opts...)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:          o.ID(),
		subscribers: make(map[chan orchestrator.Event]struct{}),
		done:        make(chan struct{}),
	}

	m.mu.Lock()
	m.runs[run.ID] = run
	m.mu.Unlock()

	go m.drive(o, run)
	return run, nil
}

// Get returns the run for a negotiation ID.
func (m *Manager) Get(id string) (*Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	return run, ok
}

// drive pumps orchestration events into the fan-out and records the
// terminal outcome.
func (m *Manager) drive(o *orchestrator.Orchestrator, run *Run) {
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for event := range o.Events() {
			run.broadcast(event)
		}
	}()

	_, err := o.Run(context.Background())
	<-pumpDone

	run.mu.Lock()
	run.err = err
	run.mu.Unlock()
	close(run.done)

	if err != nil {
		log.Printf("[server] negotiation %s failed: %v", run.ID, err)
	} else {
		log.Printf("[server] negotiation %s complete", run.ID)
	}
}

// Subscribe registers an event channel. Events already emitted are replayed
// first so late subscribers see the full stream. The returned cancel
// function must be called when the subscriber disconnects.
func (r *Run) Subscribe() (<-chan orchestrator.Event, func()) {
	ch := make(chan orchestrator.Event, subscriberBuffer)

	r.mu.Lock()
	for _, event := range r.history {
		select {
		case ch <- event:
		default:
		}
	}
	r.subscribers[ch] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		delete(r.subscribers, ch)
		r.mu.Unlock()
	}
	return ch, cancel
}

// Done is closed when the negotiation terminates.
func (r *Run) Done() <-chan struct{} { return r.done }

// Err returns the terminal error, if any. Valid after Done is closed.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Run) broadcast(event orchestrator.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history = append(r.history, event)
	for ch := range r.subscribers {
		select {
		case ch <- event:
		default:
			// Slow subscriber, drop rather than block the run.
		}
	}
}

// Finished reports whether the run has terminated.
func (r *Run) Finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
