package state

import (
	"sort"
	"sync"

	"github.com/parleylabs/parley/pkg/models"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu          sync.RWMutex
	statuses    map[string]NegotiationStatus
	rounds      map[string][]models.NegotiationRound
	disruptions map[string]models.DisruptionAnalysis
	decisions   map[string]models.FinalDecision
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses:    make(map[string]NegotiationStatus),
		rounds:      make(map[string][]models.NegotiationRound),
		disruptions: make(map[string]models.DisruptionAnalysis),
		decisions:   make(map[string]models.FinalDecision),
	}
}

// CreateNegotiation registers a new negotiation in the running state.
func (s *MemoryStore) CreateNegotiation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = StatusRunning
	return nil
}

// UpdateStatus transitions a negotiation's lifecycle state.
func (s *MemoryStore) UpdateStatus(id string, status NegotiationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.statuses[id]; !ok {
		return &NotFoundError{ID: id}
	}
	s.statuses[id] = status
	return nil
}

// Status returns the current lifecycle state (test helper).
func (s *MemoryStore) Status(id string) NegotiationStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statuses[id]
}

// SaveRound persists one sealed round, replacing any previous record for
// the same (counterparty, round) pair.
func (s *MemoryStore) SaveRound(id string, round models.NegotiationRound) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.rounds[id]
	for i, r := range existing {
		if r.CounterpartyID == round.CounterpartyID && r.Round == round.Round {
			existing[i] = round
			return nil
		}
	}
	s.rounds[id] = append(existing, round)
	return nil
}

// Rounds returns all persisted rounds, ordered by round then counterparty.
func (s *MemoryStore) Rounds(id string) ([]models.NegotiationRound, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.NegotiationRound, len(s.rounds[id]))
	copy(out, s.rounds[id])
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].CounterpartyID < out[j].CounterpartyID
	})
	return out, nil
}

// SaveDisruption persists the disruption analysis.
func (s *MemoryStore) SaveDisruption(id string, analysis models.DisruptionAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.statuses[id]; !ok {
		return &NotFoundError{ID: id}
	}
	s.disruptions[id] = analysis
	return nil
}

// SaveDecision persists the final decision and marks the negotiation
// complete.
func (s *MemoryStore) SaveDecision(id string, decision models.FinalDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.statuses[id]; !ok {
		return &NotFoundError{ID: id}
	}
	s.decisions[id] = decision
	s.statuses[id] = StatusComplete
	return nil
}

// GetDecision returns the committed decision.
func (s *MemoryStore) GetDecision(id string) (*models.FinalDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	decision, ok := s.decisions[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return &decision, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
