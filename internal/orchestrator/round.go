package orchestrator

import (
	"context"
	"fmt"
	"log"

	"github.com/parleylabs/parley/internal/counterparty"
	"github.com/parleylabs/parley/internal/drafter"
	"github.com/parleylabs/parley/internal/offer"
	"github.com/parleylabs/parley/internal/state"
	"github.com/parleylabs/parley/pkg/models"
)

// RoundScheduler executes one full turn for one counterparty in one round:
// draft, counterparty reply, offer extraction, seal, events.
type RoundScheduler struct {
	drafter   *drafter.Drafter
	responder counterparty.Responder
	extractor *offer.Extractor
	store     state.Store
	emitter   *EventEmitter
}

// NewRoundScheduler creates a scheduler over the given collaborators.
func NewRoundScheduler(d *drafter.Drafter, responder counterparty.Responder, extractor *offer.Extractor, store state.Store, emitter *EventEmitter) *RoundScheduler {
	return &RoundScheduler{
		drafter:   d,
		responder: responder,
		extractor: extractor,
		store:     store,
		emitter:   emitter,
	}
}

// turnInput is the immutable snapshot a single turn runs against. The
// orchestrator owns the live history and offer maps; the scheduler never
// sees them.
type turnInput struct {
	NegotiationID string
	Profile       models.CounterpartyProfile
	Round         int
	MaxRounds     int
	Phase         models.RoundPhase
	Baseline      []models.BaselineItem
	History       []models.ConversationTurn
	LastOffer     *models.StructuredOffer
	// CompetingTotals carries other counterparties' latest offer totals
	// for competitive leverage.
	CompetingTotals map[string]float64
	// Condition is the active disruption constraint injected into the
	// counterparty's instructions, empty when none.
	Condition string
	// DisruptionNote is the disruption context given to the drafter.
	DisruptionNote string
}

// ExecuteTurn runs one counterparty's turn and seals the resulting round.
// All failures are converted to an error event and a failed round; nothing
// propagates, so sibling turns in the same wave are unaffected.
func (s *RoundScheduler) ExecuteTurn(ctx context.Context, in turnInput) models.NegotiationRound {
	s.emitter.Emit(Event{
		Type:           EventRoundStart,
		NegotiationID:  in.NegotiationID,
		CounterpartyID: in.Profile.ID,
		Round:          in.Round,
	})

	round := models.NegotiationRound{
		CounterpartyID: in.Profile.ID,
		Round:          in.Round,
		Phase:          in.Phase,
		Status:         models.RoundInProgress,
	}

	outbound, err := s.drafter.Draft(ctx, drafter.Context{
		Counterparty:    in.Profile,
		Round:           in.Round,
		MaxRounds:       in.MaxRounds,
		BaselineTotal:   models.BaselineTotal(in.Baseline),
		LastOffer:       in.LastOffer,
		History:         in.History,
		CompetingTotals: in.CompetingTotals,
		DisruptionNote:  in.DisruptionNote,
	})
	if err != nil {
		return s.failTurn(in, round, fmt.Errorf("draft: %w", err))
	}
	round.Outbound = models.ConversationTurn{Role: models.RoleInitiator, Content: outbound}
	s.emitter.Emit(Event{
		Type:           EventMessage,
		NegotiationID:  in.NegotiationID,
		CounterpartyID: in.Profile.ID,
		Round:          in.Round,
		Message:        outbound,
	})

	history := append(append([]models.ConversationTurn(nil), in.History...), round.Outbound)
	reply, err := s.responder.Reply(ctx, in.Profile, history, in.Condition)
	if err != nil {
		return s.failTurn(in, round, fmt.Errorf("counterparty reply: %w", err))
	}
	round.Reply = models.ConversationTurn{Role: models.RoleCounterparty, Content: reply}

	extracted, notes := s.extractor.Extract(ctx, reply, in.Baseline, offer.Defaults{
		LeadTimeDays: in.Profile.LeadTimeDays,
		PaymentTerms: in.Profile.PaymentTerms,
	})
	for _, note := range notes {
		log.Printf("[round] %s round %d: %s", in.Profile.ID, in.Round, note)
	}
	round.Offer = &extracted
	s.emitter.Emit(Event{
		Type:           EventOfferExtracted,
		NegotiationID:  in.NegotiationID,
		CounterpartyID: in.Profile.ID,
		Round:          in.Round,
		Offer:          &extracted,
		Message:        fmt.Sprintf("total %.2f", extracted.TotalCost),
	})

	round.Status = models.RoundComplete
	if err := s.store.SaveRound(in.NegotiationID, round); err != nil {
		return s.failTurn(in, round, fmt.Errorf("seal round: %w", err))
	}

	s.emitter.Emit(Event{
		Type:           EventRoundEnd,
		NegotiationID:  in.NegotiationID,
		CounterpartyID: in.Profile.ID,
		Round:          in.Round,
	})
	return round
}

// failTurn converts a turn failure into an error event and a persisted
// failed round. The failure never raises out of the wave.
func (s *RoundScheduler) failTurn(in turnInput, round models.NegotiationRound, err error) models.NegotiationRound {
	log.Printf("[round] %s round %d failed: %v", in.Profile.ID, in.Round, err)

	round.Status = models.RoundFailed
	round.Error = err.Error()
	if saveErr := s.store.SaveRound(in.NegotiationID, round); saveErr != nil {
		log.Printf("[round] persisting failed round for %s round %d: %v", in.Profile.ID, in.Round, saveErr)
	}

	s.emitter.Emit(Event{
		Type:           EventError,
		NegotiationID:  in.NegotiationID,
		CounterpartyID: in.Profile.ID,
		Round:          in.Round,
		Message:        err.Error(),
	})
	return round
}
