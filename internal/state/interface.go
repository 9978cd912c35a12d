// Package state provides persistence for negotiations: sealed rounds,
// disruption analyses, and final decisions, keyed by negotiation ID.
package state

import "github.com/parleylabs/parley/pkg/models"

// NegotiationStatus is the persisted lifecycle state of a negotiation.
type NegotiationStatus string

const (
	// StatusRunning indicates orchestration is in progress.
	StatusRunning NegotiationStatus = "running"
	// StatusComplete indicates a final decision was committed.
	StatusComplete NegotiationStatus = "complete"
	// StatusFailed indicates a fatal failure; partial results remain
	// queryable for manual inspection.
	StatusFailed NegotiationStatus = "failed"
)

// Store is the persistence interface invoked at round and decision
// boundaries. Implementations must be safe for concurrent use: rounds for
// different counterparties seal concurrently within a wave.
type Store interface {
	// CreateNegotiation registers a new negotiation in the running state.
	CreateNegotiation(id string) error
	// UpdateStatus transitions a negotiation's lifecycle state.
	UpdateStatus(id string, status NegotiationStatus) error
	// SaveRound persists one sealed round (both turns plus the offer).
	SaveRound(id string, round models.NegotiationRound) error
	// Rounds returns all persisted rounds for a negotiation, ordered by
	// round number then counterparty ID.
	Rounds(id string) ([]models.NegotiationRound, error)
	// SaveDisruption persists the one-time disruption analysis.
	SaveDisruption(id string, analysis models.DisruptionAnalysis) error
	// SaveDecision persists the final decision and marks the negotiation
	// complete.
	SaveDecision(id string, decision models.FinalDecision) error
	// GetDecision returns the committed decision for a completed
	// negotiation. Repeated calls return the same decision.
	GetDecision(id string) (*models.FinalDecision, error)
	// Close releases underlying resources.
	Close() error
}

// NotFoundError is returned when a negotiation or decision does not exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return "negotiation " + e.ID + ": not found"
}
