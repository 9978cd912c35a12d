package drafter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/parleylabs/parley/pkg/models"
)

// historyTurns is how many trailing conversation turns synthesis sees.
const historyTurns = 2

// pillarSystem returns the system prompt for a pillar.
func pillarSystem(pillar Pillar) string {
	switch pillar {
	case PillarStrategy:
		return "You are a negotiation strategist. Assess leverage and recommend positioning in 3-5 sentences."
	case PillarRisk:
		return "You are a supply-chain risk analyst. Assess reliability and delivery risk in 3-5 sentences."
	default:
		return "You are a procurement cost analyst. Assess cost and cash-flow implications in 3-5 sentences."
	}
}

// pillarPrompt builds the compact context slice for one pillar. Slices are
// deliberately narrow to bound token and latency cost per analysis.
func pillarPrompt(pillar Pillar, turn Context) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Round %d of %d negotiating with %s (%s tier).\n",
		turn.Round, turn.MaxRounds, turn.Counterparty.Name, turn.Counterparty.PriceTier)

	switch pillar {
	case PillarStrategy:
		if turn.LastOffer != nil {
			fmt.Fprintf(&sb, "Their latest offer totals %.2f against a %.2f baseline.\n",
				turn.LastOffer.TotalCost, turn.BaselineTotal)
		} else {
			fmt.Fprintf(&sb, "No offer yet; baseline is %.2f.\n", turn.BaselineTotal)
		}
		for _, line := range competingLines(turn.CompetingTotals) {
			sb.WriteString(line)
		}
	case PillarRisk:
		fmt.Fprintf(&sb, "Quality rating %d/5, quoted lead time %d days.\n",
			turn.Counterparty.QualityRating, turn.Counterparty.LeadTimeDays)
		if turn.DisruptionNote != "" {
			fmt.Fprintf(&sb, "Active disruption: %s\n", turn.DisruptionNote)
		}
	case PillarCost:
		if turn.LastOffer != nil {
			fmt.Fprintf(&sb, "Offer total %.2f, payment terms %q, baseline %.2f.\n",
				turn.LastOffer.TotalCost, turn.LastOffer.PaymentTerms, turn.BaselineTotal)
		} else {
			fmt.Fprintf(&sb, "Baseline %.2f, profiled payment terms %q.\n",
				turn.BaselineTotal, turn.Counterparty.PaymentTerms)
		}
	}

	sb.WriteString("Give your analysis.")
	return sb.String()
}

// competingLines formats competitive leverage lines in a stable order.
func competingLines(totals map[string]float64) []string {
	if len(totals) == 0 {
		return nil
	}
	ids := make([]string, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, fmt.Sprintf("Competing counterparty %s currently totals %.2f.\n", id, totals[id]))
	}
	return lines
}

const synthesisSystem = `You are the buying agent in a supplier negotiation.
Write the single outbound message for this turn: professional, firm, specific
on numbers, under 250 words. Output only the message text.`

// synthesisPrompt merges the pillar analyses with the trailing conversation.
func synthesisPrompt(turn Context, analyses map[Pillar]string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Negotiation with %s, round %d of %d.\n\n", turn.Counterparty.Name, turn.Round, turn.MaxRounds)

	for _, pillar := range pillars {
		fmt.Fprintf(&sb, "## %s analysis\n%s\n\n", pillar, analyses[pillar])
	}

	recent := turn.History
	if len(recent) > historyTurns {
		recent = recent[len(recent)-historyTurns:]
	}
	if len(recent) > 0 {
		sb.WriteString("## Recent conversation\n")
		for _, t := range recent {
			fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Content)
		}
		sb.WriteString("\n")
	}

	if turn.DisruptionNote != "" {
		fmt.Fprintf(&sb, "## Active disruption\n%s\n\n", turn.DisruptionNote)
	}

	sb.WriteString("Write the outbound message now.")
	return sb.String()
}

// lastOfferSummary is used in logs when describing a drafted turn.
func lastOfferSummary(offer *models.StructuredOffer) string {
	if offer == nil {
		return "no prior offer"
	}
	return fmt.Sprintf("prior offer %.2f", offer.TotalCost)
}
