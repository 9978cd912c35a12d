// Package drafter produces the initiator's outbound message for one
// counterparty in one round: three specialist analyses run in parallel and a
// synthesis call merges them into a single message.
package drafter

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/parleylabs/parley/internal/llm"
	"github.com/parleylabs/parley/pkg/models"
)

// Pillar identifies one specialist analysis.
type Pillar string

const (
	// PillarStrategy analyzes negotiation leverage and positioning.
	PillarStrategy Pillar = "strategy"
	// PillarRisk analyzes counterparty reliability and delivery risk.
	PillarRisk Pillar = "risk"
	// PillarCost analyzes cost and cash-flow impact.
	PillarCost Pillar = "cost"
)

// pillars is the fixed analysis set, in dispatch order.
var pillars = []Pillar{PillarStrategy, PillarRisk, PillarCost}

// FallbackAnalysis substitutes for a failed pillar so the synthesis join
// never waits on a missing input.
const FallbackAnalysis = "Analysis unavailable for this pillar; apply standard negotiation guidance."

// synthesisMaxTokens bounds the outbound message length.
const synthesisMaxTokens = 1024

// Context is the per-turn input to the drafter. Each pillar receives only a
// compact slice of it, never the full negotiation context.
type Context struct {
	// Counterparty is the profile being negotiated with.
	Counterparty models.CounterpartyProfile
	// Round is the current 1-indexed round number.
	Round int
	// MaxRounds is the total round budget.
	MaxRounds int
	// BaselineTotal is the reference quotation total.
	BaselineTotal float64
	// LastOffer is the counterparty's most recent structured offer, if any.
	LastOffer *models.StructuredOffer
	// History is the conversation so far; only the last turns are used.
	History []models.ConversationTurn
	// CompetingTotals maps other counterparty IDs to their latest offer
	// totals, used as competitive leverage.
	CompetingTotals map[string]float64
	// DisruptionNote describes an active supply disruption, if any.
	DisruptionNote string
}

// Drafter runs the analysis-then-synthesis sub-workflow.
type Drafter struct {
	completer llm.Completer
}

// New creates a drafter backed by the given completer.
func New(completer llm.Completer) *Drafter {
	return &Drafter{completer: completer}
}

// Draft produces the outbound message for one turn. The three pillar
// analyses run concurrently on the fast tier; each failure degrades to
// FallbackAnalysis. Synthesis is a hard join on all three outcomes and its
// failure is fatal to the round: no message can be sent without it.
func (d *Drafter) Draft(ctx context.Context, turn Context) (string, error) {
	analyses := d.runPillars(ctx, turn)

	message, err := d.synthesize(ctx, turn, analyses)
	if err != nil {
		return "", fmt.Errorf("synthesis for %s round %d: %w", turn.Counterparty.ID, turn.Round, err)
	}
	if message == "" {
		return "", fmt.Errorf("synthesis for %s round %d returned an empty message", turn.Counterparty.ID, turn.Round)
	}

	log.Printf("[drafter] drafted message for %s round %d (%s)",
		turn.Counterparty.ID, turn.Round, lastOfferSummary(turn.LastOffer))
	return message, nil
}

// runPillars dispatches all pillar analyses concurrently and waits for every
// outcome, successful or fallback.
func (d *Drafter) runPillars(ctx context.Context, turn Context) map[Pillar]string {
	results := make([]string, len(pillars))

	var wg sync.WaitGroup
	for i, pillar := range pillars {
		wg.Add(1)
		go func(i int, pillar Pillar) {
			defer wg.Done()

			text, err := d.completer.Complete(ctx, llm.Request{
				Tier:      llm.TierFast,
				System:    pillarSystem(pillar),
				Prompt:    pillarPrompt(pillar, turn),
				MaxTokens: 512,
			})
			if err != nil || text == "" {
				log.Printf("[drafter] %s pillar failed for %s round %d, using fallback: %v",
					pillar, turn.Counterparty.ID, turn.Round, err)
				text = FallbackAnalysis
			}
			results[i] = text
		}(i, pillar)
	}
	wg.Wait()

	out := make(map[Pillar]string, len(pillars))
	for i, pillar := range pillars {
		out[pillar] = results[i]
	}
	return out
}

// synthesize merges the pillar analyses and recent history into one bounded
// outbound message via a single reasoning-tier call.
func (d *Drafter) synthesize(ctx context.Context, turn Context, analyses map[Pillar]string) (string, error) {
	return d.completer.Complete(ctx, llm.Request{
		Tier:      llm.TierReasoning,
		System:    synthesisSystem,
		Prompt:    synthesisPrompt(turn, analyses),
		MaxTokens: synthesisMaxTokens,
	})
}
