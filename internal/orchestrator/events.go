// Package orchestrator drives a negotiation end to end: staged round 1,
// concurrent later rounds, the disruption checkpoint, and the hand-off to
// the decision engine.
package orchestrator

import (
	"time"

	"github.com/parleylabs/parley/pkg/models"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// EventRoundStart indicates a counterparty's turn has started.
	EventRoundStart EventType = "round_start"
	// EventMessage carries the initiator's outbound message for a turn.
	EventMessage EventType = "message"
	// EventOfferExtracted indicates a structured offer was extracted from
	// the counterparty's reply.
	EventOfferExtracted EventType = "offer_extracted"
	// EventRoundEnd indicates a counterparty's turn was sealed.
	EventRoundEnd EventType = "round_end"
	// EventDisruptionDetected indicates the disruption checkpoint fired.
	EventDisruptionDetected EventType = "disruption_detected"
	// EventDisruptionAnalysis carries the completed disruption analysis.
	EventDisruptionAnalysis EventType = "disruption_analysis"
	// EventDecision carries the committed final decision.
	EventDecision EventType = "decision"
	// EventError indicates a failure; fatal aborts are always preceded
	// by one of these.
	EventError EventType = "error"
)

// Event is one entry in the ordered lifecycle stream consumed by live
// subscribers.
type Event struct {
	// Type is the kind of event.
	Type EventType `json:"type"`
	// NegotiationID identifies the negotiation.
	NegotiationID string `json:"negotiation_id"`
	// CounterpartyID is the related counterparty, if applicable.
	CounterpartyID string `json:"counterparty_id,omitempty"`
	// Round is the related round number, if applicable.
	Round int `json:"round,omitempty"`
	// Message provides human-readable context about the event.
	Message string `json:"message,omitempty"`
	// Offer is the extracted offer for offer_extracted events.
	Offer *models.StructuredOffer `json:"offer,omitempty"`
	// Analysis is the result for disruption_analysis events.
	Analysis *models.DisruptionAnalysis `json:"analysis,omitempty"`
	// Decision is the result for decision events.
	Decision *models.FinalDecision `json:"decision,omitempty"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}
