package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/parleylabs/parley/internal/counterparty"
	"github.com/parleylabs/parley/internal/drafter"
	"github.com/parleylabs/parley/internal/offer"
	"github.com/parleylabs/parley/internal/state"
	"github.com/parleylabs/parley/pkg/models"
)

func newTestScheduler(completer *routingCompleter, responder counterparty.Responder) (*RoundScheduler, *state.MemoryStore, *EventEmitter) {
	store := state.NewMemoryStore()
	emitter := NewEventEmitter(32)
	scheduler := NewRoundScheduler(drafter.New(completer), responder, offer.NewExtractor(completer), store, emitter)
	return scheduler, store, emitter
}

func testTurnInput() turnInput {
	return turnInput{
		NegotiationID: "neg-test",
		Profile:       testProfiles()[1],
		Round:         1,
		MaxRounds:     2,
		Phase:         models.PhaseInitial,
		Baseline:      testBaseline(),
	}
}

func TestExecuteTurnSealsCompleteRound(t *testing.T) {
	scheduler, store, emitter := newTestScheduler(&routingCompleter{}, &scriptedResponder{})
	store.CreateNegotiation("neg-test")

	round := scheduler.ExecuteTurn(context.Background(), testTurnInput())

	if round.Status != models.RoundComplete {
		t.Fatalf("status = %s, want %s (error: %s)", round.Status, models.RoundComplete, round.Error)
	}
	if round.Outbound.Role != models.RoleInitiator || round.Outbound.Content == "" {
		t.Errorf("outbound turn = %+v", round.Outbound)
	}
	if round.Reply.Role != models.RoleCounterparty || round.Reply.Content == "" {
		t.Errorf("reply turn = %+v", round.Reply)
	}
	if round.Offer == nil || round.Offer.TotalCost != 66000 {
		t.Fatalf("offer = %+v, want derived total 66000", round.Offer)
	}

	persisted, err := store.Rounds("neg-test")
	if err != nil || len(persisted) != 1 {
		t.Fatalf("persisted rounds = %d, %v", len(persisted), err)
	}

	emitter.Close()
	var got []EventType
	for event := range emitter.Events() {
		got = append(got, event.Type)
	}
	want := []EventType{EventRoundStart, EventMessage, EventOfferExtracted, EventRoundEnd}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestExecuteTurnSynthesisFailureFailsRound(t *testing.T) {
	scheduler, store, emitter := newTestScheduler(&routingCompleter{failSynthesis: true}, &scriptedResponder{})
	store.CreateNegotiation("neg-test")

	round := scheduler.ExecuteTurn(context.Background(), testTurnInput())

	if round.Status != models.RoundFailed {
		t.Fatalf("status = %s, want %s", round.Status, models.RoundFailed)
	}
	if round.Error == "" {
		t.Error("failed round carries no error message")
	}
	if round.Offer != nil {
		t.Error("failed round must not carry an offer")
	}

	// The failure is persisted for inspection and surfaced as an error
	// event, never raised.
	persisted, _ := store.Rounds("neg-test")
	if len(persisted) != 1 || persisted[0].Status != models.RoundFailed {
		t.Fatalf("persisted = %+v", persisted)
	}

	emitter.Close()
	var sawError bool
	for event := range emitter.Events() {
		if event.Type == EventError {
			sawError = true
		}
		if event.Type == EventRoundEnd {
			t.Error("round_end emitted for a failed round")
		}
	}
	if !sawError {
		t.Error("no error event for failed round")
	}
}

func TestExecuteTurnResponderFailureFailsRound(t *testing.T) {
	responder := &scriptedResponder{err: errors.New("counterparty unreachable")}
	scheduler, _, emitter := newTestScheduler(&routingCompleter{}, responder)

	round := scheduler.ExecuteTurn(context.Background(), testTurnInput())
	emitter.Close()

	if round.Status != models.RoundFailed {
		t.Fatalf("status = %s, want %s", round.Status, models.RoundFailed)
	}
	// The outbound message was drafted before the failure and is kept in
	// the sealed record.
	if round.Outbound.Content == "" {
		t.Error("failed round lost its drafted outbound message")
	}
}

func TestExecuteTurnExtractionFailureStillCompletes(t *testing.T) {
	// Extraction never errors: after both attempts fail it substitutes a
	// synthetic baseline-equal offer, so the round still seals complete.
	scheduler, _, emitter := newTestScheduler(&routingCompleter{failExtraction: true}, &scriptedResponder{})

	round := scheduler.ExecuteTurn(context.Background(), testTurnInput())
	emitter.Close()

	if round.Status != models.RoundComplete {
		t.Fatalf("status = %s, want %s", round.Status, models.RoundComplete)
	}
	wantTotal := models.BaselineTotal(testBaseline())
	if round.Offer == nil || round.Offer.TotalCost != wantTotal {
		t.Fatalf("offer = %+v, want baseline total %.2f", round.Offer, wantTotal)
	}
}
