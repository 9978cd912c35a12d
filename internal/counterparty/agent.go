// Package counterparty provides the counterparty side of a negotiation
// turn: an interface the round scheduler calls, plus a model-backed
// simulated agent for counterparties flagged as simulated.
package counterparty

import (
	"context"
	"fmt"
	"strings"

	"github.com/parleylabs/parley/internal/llm"
	"github.com/parleylabs/parley/pkg/models"
)

// Responder produces one counterparty reply given the full conversation
// history. An active disruption condition is injected into the agent's
// instructions, not into the conversation itself.
type Responder interface {
	Reply(ctx context.Context, profile models.CounterpartyProfile, history []models.ConversationTurn, condition string) (string, error)
}

// SimulatedAgent plays a counterparty with a fast-tier model call, flavored
// by the profile's price tier and quality rating.
type SimulatedAgent struct {
	completer llm.Completer
	// Baseline grounds the agent's quoting so simulated offers stay in a
	// plausible range.
	baseline []models.BaselineItem
}

// NewSimulatedAgent creates a simulated counterparty agent.
func NewSimulatedAgent(completer llm.Completer, baseline []models.BaselineItem) *SimulatedAgent {
	return &SimulatedAgent{completer: completer, baseline: baseline}
}

// Reply generates the counterparty's response to the latest initiator
// message.
func (a *SimulatedAgent) Reply(ctx context.Context, profile models.CounterpartyProfile, history []models.ConversationTurn, condition string) (string, error) {
	reply, err := a.completer.Complete(ctx, llm.Request{
		Tier:      llm.TierFast,
		System:    a.persona(profile, condition),
		Prompt:    conversationPrompt(history),
		MaxTokens: 1024,
	})
	if err != nil {
		return "", fmt.Errorf("counterparty %s reply: %w", profile.ID, err)
	}
	if reply == "" {
		return "", fmt.Errorf("counterparty %s returned an empty reply", profile.ID)
	}
	return reply, nil
}

// persona builds the agent's standing instructions from the profile.
func (a *SimulatedAgent) persona(profile models.CounterpartyProfile, condition string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s, a supplier sales representative negotiating a purchase order.\n", profile.Name)

	switch profile.PriceTier {
	case models.PriceTierCheap:
		sb.WriteString("You compete on price: concede quickly but protect margins on premium lines.\n")
	case models.PriceTierExpensive:
		sb.WriteString("You are a premium supplier: defend your pricing, concede on terms before price.\n")
	default:
		sb.WriteString("You are mid-market: trade price concessions for volume or better terms.\n")
	}

	fmt.Fprintf(&sb, "Your delivery lead time is %d days and your standard payment terms are %s.\n",
		profile.LeadTimeDays, profile.PaymentTerms)
	fmt.Fprintf(&sb, "Your quality reputation is %d out of 5.\n", profile.QualityRating)

	sb.WriteString("Reference price list:\n")
	for _, item := range a.baseline {
		fmt.Fprintf(&sb, "- %s (%s): qty %d around %.2f/unit\n", item.SKU, item.Description, item.Quantity, item.UnitPrice)
	}

	if condition != "" {
		fmt.Fprintf(&sb, "\nIMPORTANT constraint you must honor in every reply: %s\n", condition)
	}

	sb.WriteString("\nAlways state concrete unit prices per SKU, a total, lead time, and payment terms in your reply.")
	return sb.String()
}

// conversationPrompt renders the conversation for the agent.
func conversationPrompt(history []models.ConversationTurn) string {
	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	for _, turn := range history {
		role := "Buyer"
		if turn.Role == models.RoleCounterparty {
			role = "You"
		}
		fmt.Fprintf(&sb, "%s: %s\n", role, turn.Content)
	}
	sb.WriteString("\nWrite your next reply.")
	return sb.String()
}
