package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/parleylabs/parley/internal/llm"
	"github.com/parleylabs/parley/pkg/models"
)

// disruptionAttempts bounds analysis retries. Unlike decision scoring,
// exhausting them is swallowed: the negotiation proceeds without a formal
// analysis.
const disruptionAttempts = 3

// analyzeDisruption requests a DisruptionAnalysis from the reasoning tier.
// Each retry re-prompts more directively on validation failure. Returns nil
// if all attempts fail.
func analyzeDisruption(ctx context.Context, completer llm.Completer, target models.CounterpartyProfile, condition string, offers map[string]models.StructuredOffer, baseline []models.BaselineItem) *models.DisruptionAnalysis {
	prompt := disruptionPrompt(target, condition, offers, baseline)

	for attempt := 1; attempt <= disruptionAttempts; attempt++ {
		var analysis models.DisruptionAnalysis
		err := llm.CompleteJSON(ctx, completer, llm.Request{
			Tier:      llm.TierReasoning,
			System:    disruptionSystem,
			Prompt:    prompt + disruptionDemand(attempt),
			MaxTokens: 4096,
		}, &analysis)
		if err == nil {
			err = validateDisruption(&analysis)
		}
		if err == nil {
			return &analysis
		}
		log.Printf("[orchestrator] disruption analysis attempt %d/%d failed: %v", attempt, disruptionAttempts, err)
	}

	log.Printf("[orchestrator] disruption analysis exhausted %d attempts, proceeding without one", disruptionAttempts)
	return nil
}

func validateDisruption(a *models.DisruptionAnalysis) error {
	if strings.TrimSpace(a.Impact) == "" {
		return fmt.Errorf("analysis missing impact narrative")
	}
	if len(a.Strategies) < 2 || len(a.Strategies) > 3 {
		return fmt.Errorf("analysis has %d strategies, want 2-3", len(a.Strategies))
	}
	for i, s := range a.Strategies {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("strategy %d missing name", i)
		}
		if len(s.Allocations) == 0 {
			return fmt.Errorf("strategy %q missing allocations", s.Name)
		}
	}
	if strings.TrimSpace(a.Recommendation) == "" {
		return fmt.Errorf("analysis missing recommendation")
	}
	return nil
}

const disruptionSystem = `You are a supply-chain risk analyst. A mid-negotiation
disruption has reduced one counterparty's fulfillable capacity. Assess the
impact and propose response strategies. Respond with a single JSON object and
nothing else.`

func disruptionPrompt(target models.CounterpartyProfile, condition string, offers map[string]models.StructuredOffer, baseline []models.BaselineItem) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Disruption: counterparty %s (%s) reports: %s\n\n", target.ID, target.Name, condition)
	fmt.Fprintf(&sb, "Baseline order total: %.2f\n\nCurrent offers:\n", models.BaselineTotal(baseline))

	ids := make([]string, 0, len(offers))
	for id := range offers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&sb, "- %s: total %.2f, lead time %d days\n", id, offers[id].TotalCost, offers[id].LeadTimeDays)
	}

	sb.WriteString(`
Respond with JSON:
{"impact": string,
"strategies": [{"name": string, "description": string, "allocations": {"<counterparty_id>": percent}, "estimated_cost": number, "pros": [string], "cons": [string]}],
"recommendation": string}
Provide 2 or 3 strategies.
`)
	return sb.String()
}

// disruptionDemand escalates the schema requirement per attempt.
func disruptionDemand(attempt int) string {
	switch attempt {
	case 1:
		return ""
	case 2:
		return "\nYour previous response did not validate. Include a non-empty impact, exactly 2 or 3 strategies each with a name and allocations, and a recommendation."
	default:
		return "\nFINAL ATTEMPT. Output ONLY the JSON object. Required: impact (non-empty string), strategies (array of 2-3, each with name, description, allocations map, estimated_cost, pros, cons), recommendation (non-empty string)."
	}
}
