package state

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/parleylabs/parley/pkg/models"
)

// stores returns both Store implementations under a shared test.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "parley.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]Store{
		"sqlite": db,
		"memory": NewMemoryStore(),
	}
}

func sampleRound(counterparty string, round int) models.NegotiationRound {
	return models.NegotiationRound{
		CounterpartyID: counterparty,
		Round:          round,
		Phase:          models.PhaseInitial,
		Status:         models.RoundComplete,
		Outbound:       models.ConversationTurn{Role: models.RoleInitiator, Content: "our position"},
		Reply:          models.ConversationTurn{Role: models.RoleCounterparty, Content: "our counter"},
		Offer: &models.StructuredOffer{
			TotalCost: 84000,
			Items: []models.OfferItem{
				{SKU: "VLV-100", UnitPrice: 470, Quantity: 100},
			},
			LeadTimeDays: 21,
			PaymentTerms: "Net 30",
		},
	}
}

func TestStoreRoundLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.CreateNegotiation("neg-1"); err != nil {
				t.Fatalf("create: %v", err)
			}

			if err := store.SaveRound("neg-1", sampleRound("cp-1", 1)); err != nil {
				t.Fatalf("save round: %v", err)
			}
			if err := store.SaveRound("neg-1", sampleRound("cp-2", 1)); err != nil {
				t.Fatalf("save round: %v", err)
			}
			if err := store.SaveRound("neg-1", sampleRound("cp-1", 2)); err != nil {
				t.Fatalf("save round: %v", err)
			}

			rounds, err := store.Rounds("neg-1")
			if err != nil {
				t.Fatalf("rounds: %v", err)
			}
			if len(rounds) != 3 {
				t.Fatalf("got %d rounds, want 3", len(rounds))
			}
			// Ordered by round, then counterparty.
			if rounds[0].CounterpartyID != "cp-1" || rounds[1].CounterpartyID != "cp-2" || rounds[2].Round != 2 {
				t.Errorf("unexpected order: %+v", rounds)
			}
			if rounds[0].Offer == nil || rounds[0].Offer.TotalCost != 84000 {
				t.Errorf("offer did not round-trip: %+v", rounds[0].Offer)
			}
			if rounds[0].Outbound.Role != models.RoleInitiator || rounds[0].Reply.Role != models.RoleCounterparty {
				t.Error("turn roles lost in persistence")
			}
		})
	}
}

func TestStoreDecisionIdempotentFetch(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.CreateNegotiation("neg-2"); err != nil {
				t.Fatalf("create: %v", err)
			}

			decision := models.FinalDecision{
				NegotiationID: "neg-2",
				Recommendation: models.Recommendation{
					Primary:    "cp-1",
					SplitOrder: false,
					Allocations: []models.Allocation{
						{CounterpartyID: "cp-1", Percent: 100, Cost: 84000},
					},
				},
				Summary: "single source",
			}
			if err := store.SaveDecision("neg-2", decision); err != nil {
				t.Fatalf("save decision: %v", err)
			}

			first, err := store.GetDecision("neg-2")
			if err != nil {
				t.Fatalf("get decision: %v", err)
			}
			second, err := store.GetDecision("neg-2")
			if err != nil {
				t.Fatalf("second get decision: %v", err)
			}
			if first.Recommendation.Primary != "cp-1" || second.Recommendation.Primary != "cp-1" {
				t.Errorf("decision did not round-trip: %+v / %+v", first, second)
			}
			if first.AllocationTotal() != 100 {
				t.Errorf("allocation total = %v, want 100", first.AllocationTotal())
			}
		})
	}
}

func TestStoreDecisionNotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetDecision("missing")
			var notFound *NotFoundError
			if !errors.As(err, &notFound) {
				t.Fatalf("expected NotFoundError, got %v", err)
			}
		})
	}
}

func TestStoreFailedStatusKeepsPartialResults(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.CreateNegotiation("neg-3"); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := store.SaveRound("neg-3", sampleRound("cp-1", 1)); err != nil {
				t.Fatalf("save round: %v", err)
			}
			if err := store.UpdateStatus("neg-3", StatusFailed); err != nil {
				t.Fatalf("update status: %v", err)
			}

			rounds, err := store.Rounds("neg-3")
			if err != nil || len(rounds) != 1 {
				t.Fatalf("partial rounds must remain queryable: %v, %d rounds", err, len(rounds))
			}
			if _, err := store.GetDecision("neg-3"); err == nil {
				t.Error("failed negotiation must not report a decision")
			}
		})
	}
}

func TestSaveRoundReplacesSameKey(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.CreateNegotiation("neg-4"); err != nil {
				t.Fatalf("create: %v", err)
			}

			round := sampleRound("cp-1", 1)
			if err := store.SaveRound("neg-4", round); err != nil {
				t.Fatalf("save: %v", err)
			}
			round.Offer.TotalCost = 80000
			if err := store.SaveRound("neg-4", round); err != nil {
				t.Fatalf("re-save: %v", err)
			}

			rounds, _ := store.Rounds("neg-4")
			if len(rounds) != 1 {
				t.Fatalf("got %d rounds, want 1 after replace", len(rounds))
			}
			if rounds[0].Offer.TotalCost != 80000 {
				t.Errorf("offer total = %v, want replaced 80000", rounds[0].Offer.TotalCost)
			}
		})
	}
}
