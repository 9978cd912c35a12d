// Package decision converts a negotiation's final offer set into one
// committed allocation: model-scored dimensions, a split-order override, and
// a deterministic line-item assignment.
package decision

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/parleylabs/parley/internal/llm"
	"github.com/parleylabs/parley/pkg/models"
)

// scoringAttempts bounds scoring retries. Exhausting them is fatal: no
// decision is produced.
const scoringAttempts = 3

// allocationSumTolerance is how far (in percentage points) the model's
// recommended allocation sum may drift from 100 before the attempt is
// rejected. Accepted sums are renormalized to exactly 100.
const allocationSumTolerance = 1.0

// DefaultAnnualRate is the default time-value-of-money rate for landed
// cost.
const DefaultAnnualRate = 0.08

// Config configures the decision engine.
type Config struct {
	// Completer performs the reasoning-tier scoring call. Required.
	Completer llm.Completer
	// Profile selects the scoring weight profile.
	Profile models.WeightProfile
	// OverheadPenalty is the per-leg split coordination cost.
	// Zero uses DefaultOverheadPenalty.
	OverheadPenalty float64
	// AnnualRate is the time-value-of-money rate. Zero uses
	// DefaultAnnualRate.
	AnnualRate float64
}

// Engine scores final offers and computes the committed allocation.
type Engine struct {
	completer       llm.Completer
	profile         models.WeightProfile
	overheadPenalty float64
	annualRate      float64
}

// New creates a decision engine.
func New(cfg Config) *Engine {
	penalty := cfg.OverheadPenalty
	if penalty == 0 {
		penalty = DefaultOverheadPenalty
	}
	rate := cfg.AnnualRate
	if rate == 0 {
		rate = DefaultAnnualRate
	}
	return &Engine{
		completer:       cfg.Completer,
		profile:         cfg.Profile,
		overheadPenalty: penalty,
		annualRate:      rate,
	}
}

// Input is the final negotiation state handed to the engine.
type Input struct {
	// NegotiationID identifies the negotiation being decided.
	NegotiationID string
	// Baseline is the reference item set.
	Baseline []models.BaselineItem
	// Profiles are all participating counterparties.
	Profiles []models.CounterpartyProfile
	// Offers maps counterparty ID to its final structured offer.
	// Counterparties whose final round failed are absent.
	Offers map[string]models.StructuredOffer
	// ConstrainedID is the capacity-constrained counterparty, empty when
	// no disruption fired.
	ConstrainedID string
	// CapacityFraction is the fraction of its committed volume the
	// constrained counterparty can still fulfill. Zero or >=1 means no
	// constraint.
	CapacityFraction float64
}

// rawScoring mirrors the JSON schema the scoring call must fill in.
type rawScoring struct {
	Scores []struct {
		CounterpartyID string  `json:"counterparty_id"`
		Cost           float64 `json:"cost"`
		Quality        float64 `json:"quality"`
		LeadTime       float64 `json:"lead_time"`
		Terms          float64 `json:"terms"`
	} `json:"scores"`
	Recommendation struct {
		Primary     string `json:"primary"`
		SplitOrder  bool   `json:"split_order"`
		Allocations []struct {
			CounterpartyID string  `json:"counterparty_id"`
			Percent        float64 `json:"percent"`
		} `json:"allocations"`
	} `json:"recommendation"`
	Summary   string              `json:"summary"`
	KeyPoints map[string][]string `json:"key_points"`
	Reasoning string              `json:"reasoning"`
	Tradeoffs string              `json:"tradeoffs"`
}

// Decide scores all final offers and returns the committed decision.
// Scoring failure after all retries is fatal and propagates.
func (e *Engine) Decide(ctx context.Context, input Input) (*models.FinalDecision, error) {
	if len(input.Offers) == 0 {
		return nil, fmt.Errorf("no final offers to decide on")
	}

	raw, err := e.score(ctx, input)
	if err != nil {
		return nil, err
	}

	weights := e.profile.Weights()
	scores := make(map[string]models.DimensionScores, len(raw.Scores))
	for _, s := range raw.Scores {
		total := weights.Cost*s.Cost + weights.Quality*s.Quality +
			weights.LeadTime*s.LeadTime + weights.Terms*s.Terms
		scores[s.CounterpartyID] = models.DimensionScores{
			Cost:     s.Cost,
			Quality:  s.Quality,
			LeadTime: s.LeadTime,
			Terms:    s.Terms,
			Total:    total,
		}
	}

	targets := make([]targetAllocation, 0, len(raw.Recommendation.Allocations))
	for _, a := range raw.Recommendation.Allocations {
		targets = append(targets, targetAllocation{CounterpartyID: a.CounterpartyID, Percent: a.Percent})
	}
	renormalizeTargets(targets)

	targets = evaluateSplit(targets, scores, e.overheadPenalty)

	profiles := make(map[string]models.CounterpartyProfile, len(input.Profiles))
	for _, p := range input.Profiles {
		profiles[p.ID] = p
	}
	targetPcts := make(map[string]float64, len(targets))
	for _, t := range targets {
		targetPcts[t.CounterpartyID] = t.Percent
	}

	allocations := allocateItems(allocationInput{
		Baseline:   input.Baseline,
		Offers:     input.Offers,
		Profiles:   profiles,
		Targets:    targetPcts,
		AnnualRate: e.annualRate,
	})

	if input.ConstrainedID != "" && input.CapacityFraction > 0 && input.CapacityFraction < 1 {
		allocations = ReallocateForCapacity(allocations, input.ConstrainedID, input.CapacityFraction, input.Offers, profiles, e.annualRate)
	}

	primary := raw.Recommendation.Primary
	if len(targets) == 1 {
		primary = targets[0].CounterpartyID
	}

	decision := &models.FinalDecision{
		NegotiationID: input.NegotiationID,
		Recommendation: models.Recommendation{
			Primary:     primary,
			SplitOrder:  len(allocations) > 1,
			Allocations: allocations,
		},
		Scores:    scores,
		Summary:   raw.Summary,
		KeyPoints: raw.KeyPoints,
		Reasoning: raw.Reasoning,
		Tradeoffs: raw.Tradeoffs,
	}

	log.Printf("[decision] committed: primary=%s split=%v legs=%d",
		decision.Recommendation.Primary, decision.Recommendation.SplitOrder, len(allocations))
	return decision, nil
}

// score runs the scoring call with escalating completeness demands.
func (e *Engine) score(ctx context.Context, input Input) (*rawScoring, error) {
	prompt := e.scoringPrompt(input)

	var lastErr error
	for attempt := 1; attempt <= scoringAttempts; attempt++ {
		var raw rawScoring
		err := llm.CompleteJSON(ctx, e.completer, llm.Request{
			Tier:      llm.TierReasoning,
			System:    scoringSystem,
			Prompt:    prompt + completenessDemand(attempt),
			MaxTokens: 8192,
		}, &raw)
		if err == nil {
			err = validateScoring(&raw, input)
		}
		if err == nil {
			return &raw, nil
		}
		lastErr = err
		log.Printf("[decision] scoring attempt %d/%d failed: %v", attempt, scoringAttempts, err)
	}

	return nil, fmt.Errorf("scoring exhausted %d attempts: %w", scoringAttempts, lastErr)
}

// validateScoring rejects incomplete scoring results so retries can demand
// the missing pieces.
func validateScoring(raw *rawScoring, input Input) error {
	scored := make(map[string]bool, len(raw.Scores))
	for _, s := range raw.Scores {
		if s.CounterpartyID == "" {
			return fmt.Errorf("score entry missing counterparty_id")
		}
		if _, ok := input.Offers[s.CounterpartyID]; !ok {
			return fmt.Errorf("score entry for %s has no final offer", s.CounterpartyID)
		}
		for _, v := range []float64{s.Cost, s.Quality, s.LeadTime, s.Terms} {
			if v < 0 || v > 100 {
				return fmt.Errorf("score %v for %s outside 0-100", v, s.CounterpartyID)
			}
		}
		scored[s.CounterpartyID] = true
	}
	for id := range input.Offers {
		if !scored[id] {
			return fmt.Errorf("counterparty %s has a final offer but no scores", id)
		}
	}

	if raw.Recommendation.Primary == "" {
		return fmt.Errorf("recommendation missing primary counterparty")
	}
	if len(raw.Recommendation.Allocations) == 0 {
		return fmt.Errorf("recommendation missing allocations")
	}
	var sum float64
	for _, a := range raw.Recommendation.Allocations {
		if _, ok := input.Offers[a.CounterpartyID]; !ok {
			return fmt.Errorf("allocation references unknown counterparty %s", a.CounterpartyID)
		}
		sum += a.Percent
	}
	if math.Abs(sum-100) > allocationSumTolerance {
		return fmt.Errorf("allocation percentages sum to %.2f, want 100", sum)
	}
	return nil
}

// renormalizeTargets scales accepted target percentages to exactly 100.
func renormalizeTargets(targets []targetAllocation) {
	var sum float64
	for _, t := range targets {
		sum += t.Percent
	}
	if sum == 0 {
		return
	}
	for i := range targets {
		targets[i].Percent = targets[i].Percent / sum * 100
	}
}

const scoringSystem = `You are a procurement decision analyst. You score final
supplier offers and recommend an award. Respond with a single JSON object and
nothing else.`

// scoringPrompt renders the final offer set with per-unit prices so volume
// differences can never skew the cost comparison.
func (e *Engine) scoringPrompt(input Input) string {
	var sb strings.Builder

	weights := e.profile.Weights()
	fmt.Fprintf(&sb, "Score each counterparty 0-100 on cost, quality, lead_time, and terms.\n")
	fmt.Fprintf(&sb, "Weight profile %q: cost %.2f, quality %.2f, lead_time %.2f, terms %.2f.\n",
		e.profile, weights.Cost, weights.Quality, weights.LeadTime, weights.Terms)
	sb.WriteString("Cost MUST be compared on per-unit normalized prices, never on totals, so differing quantities cannot reward or penalize anyone.\n\n")

	fmt.Fprintf(&sb, "Baseline total: %.2f\n\n", models.BaselineTotal(input.Baseline))

	ids := make([]string, 0, len(input.Offers))
	for id := range input.Offers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	profiles := make(map[string]models.CounterpartyProfile, len(input.Profiles))
	for _, p := range input.Profiles {
		profiles[p.ID] = p
	}

	for _, id := range ids {
		offer := input.Offers[id]
		profile := profiles[id]
		fmt.Fprintf(&sb, "## %s (%s, quality %d/5)\n", id, profile.Name, profile.QualityRating)
		fmt.Fprintf(&sb, "Total %.2f, lead time %d days, terms %q\n",
			offer.TotalCost, offerLeadTime(offer, profile), offerTerms(offer, profile))
		for _, item := range offer.Items {
			fmt.Fprintf(&sb, "- %s: %.2f/unit x %d\n", item.SKU, item.UnitPrice, item.Quantity)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`Respond with JSON:
{"scores": [{"counterparty_id": string, "cost": number, "quality": number, "lead_time": number, "terms": number}],
"recommendation": {"primary": string, "split_order": bool, "allocations": [{"counterparty_id": string, "percent": number}]},
"summary": string, "key_points": {"cost": [string], "quality": [string], "lead_time": [string], "terms": [string]},
"reasoning": string, "tradeoffs": string}
`)
	return sb.String()
}

// completenessDemand escalates the completeness requirement per attempt.
func completenessDemand(attempt int) string {
	switch attempt {
	case 1:
		return ""
	case 2:
		return "\nYour previous response was incomplete. Include a scores entry for EVERY counterparty listed above, and allocation percents that sum to exactly 100."
	default:
		return "\nFINAL ATTEMPT. The JSON MUST contain: one scores entry per counterparty with all four dimensions in 0-100, a recommendation with primary and allocations summing to exactly 100, summary, key_points, reasoning, and tradeoffs. Do not omit any field."
	}
}
