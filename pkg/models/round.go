package models

// Role identifies which side of the negotiation produced a turn.
type Role string

const (
	// RoleInitiator is the buying agent driving the negotiation.
	RoleInitiator Role = "initiator"
	// RoleCounterparty is the selling counterparty.
	RoleCounterparty Role = "counterparty"
)

// ConversationTurn is one message in a counterparty's conversation history.
// Turns are append-only and never mutated after creation.
type ConversationTurn struct {
	// Role identifies who produced the turn.
	Role Role `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// RoundPhase distinguishes rounds before and after the disruption checkpoint.
type RoundPhase string

const (
	// PhaseInitial covers rounds before the disruption checkpoint.
	PhaseInitial RoundPhase = "initial"
	// PhasePostDisruption covers rounds after the disruption checkpoint.
	PhasePostDisruption RoundPhase = "post-disruption"
)

// RoundStatus is the lifecycle state of a negotiation round.
type RoundStatus string

const (
	// RoundInProgress indicates the round is executing.
	RoundInProgress RoundStatus = "in_progress"
	// RoundComplete indicates the round sealed with a usable offer.
	RoundComplete RoundStatus = "complete"
	// RoundFailed indicates the round failed; the counterparty is excluded
	// from this round's results.
	RoundFailed RoundStatus = "failed"
)

// NegotiationRound records one counterparty's turn in one round. It is
// created at round start and sealed at round end; sealed rounds are
// never mutated.
type NegotiationRound struct {
	// CounterpartyID identifies the counterparty.
	CounterpartyID string `json:"counterparty_id"`
	// Round is the 1-indexed round number.
	Round int `json:"round"`
	// Phase is initial or post-disruption.
	Phase RoundPhase `json:"phase"`
	// Status is the round lifecycle state.
	Status RoundStatus `json:"status"`
	// Outbound is the initiator's message for this round.
	Outbound ConversationTurn `json:"outbound"`
	// Reply is the counterparty's response.
	Reply ConversationTurn `json:"reply"`
	// Offer is the structured offer extracted from the reply. Nil only
	// when the round failed before extraction.
	Offer *StructuredOffer `json:"offer,omitempty"`
	// Error holds the failure message for failed rounds.
	Error string `json:"error,omitempty"`
}
