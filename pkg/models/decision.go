package models

// Strategy is one response option in a disruption analysis.
type Strategy struct {
	// Name is the short strategy name.
	Name string `json:"name"`
	// Description explains the strategy.
	Description string `json:"description"`
	// Allocations maps counterparty ID to allocation percentage under
	// this strategy.
	Allocations map[string]float64 `json:"allocations"`
	// EstimatedCost is the projected total cost under this strategy.
	EstimatedCost float64 `json:"estimated_cost"`
	// Pros lists advantages.
	Pros []string `json:"pros"`
	// Cons lists disadvantages.
	Cons []string `json:"cons"`
}

// DisruptionAnalysis is the one-time analysis produced at the disruption
// checkpoint.
type DisruptionAnalysis struct {
	// Impact is the narrative assessment of the disruption's effect.
	Impact string `json:"impact"`
	// Strategies lists 2-3 response options.
	Strategies []Strategy `json:"strategies"`
	// Recommendation is the recommended course of action.
	Recommendation string `json:"recommendation"`
}

// DimensionScores holds the normalized 0-100 scores for one counterparty.
type DimensionScores struct {
	// Cost is the per-unit-normalized cost score.
	Cost float64 `json:"cost"`
	// Quality is the quality score.
	Quality float64 `json:"quality"`
	// LeadTime is the delivery lead-time score.
	LeadTime float64 `json:"lead_time"`
	// Terms is the payment-terms score.
	Terms float64 `json:"terms"`
	// Total is the weighted total under the selected weight profile.
	Total float64 `json:"total"`
}

// Allocation assigns a share of the order to one counterparty.
type Allocation struct {
	// CounterpartyID identifies the counterparty.
	CounterpartyID string `json:"counterparty_id"`
	// Percent is the allocation percentage. Percentages across all
	// allocations in one decision sum to exactly 100.
	Percent float64 `json:"percent"`
	// Cost is the agreed cost for this allocation's items.
	Cost float64 `json:"cost"`
	// LeadTimeDays is the counterparty's final lead time.
	LeadTimeDays int `json:"lead_time_days"`
	// PaymentTerms is the counterparty's final payment terms.
	PaymentTerms string `json:"payment_terms"`
	// Items are the baseline items assigned to this counterparty.
	Items []BaselineItem `json:"items"`
}

// Recommendation is the committed sourcing recommendation.
type Recommendation struct {
	// Primary is the primary counterparty ID.
	Primary string `json:"primary"`
	// SplitOrder indicates volume is allocated across more than one
	// counterparty.
	SplitOrder bool `json:"split_order"`
	// Allocations is the per-counterparty allocation set.
	Allocations []Allocation `json:"allocations"`
}

// FinalDecision is the terminal output of a negotiation.
type FinalDecision struct {
	// NegotiationID identifies the negotiation this decision concludes.
	NegotiationID string `json:"negotiation_id"`
	// Recommendation is the committed allocation.
	Recommendation Recommendation `json:"recommendation"`
	// Scores maps counterparty ID to its dimension scores.
	Scores map[string]DimensionScores `json:"scores"`
	// Summary is the executive summary.
	Summary string `json:"summary"`
	// KeyPoints maps dimension name to its key points.
	KeyPoints map[string][]string `json:"key_points"`
	// Reasoning is the long-form reasoning.
	Reasoning string `json:"reasoning"`
	// Tradeoffs describes the tradeoffs considered.
	Tradeoffs string `json:"tradeoffs"`
}

// AllocationTotal sums allocation percentages across the recommendation.
func (d *FinalDecision) AllocationTotal() float64 {
	var total float64
	for _, a := range d.Recommendation.Allocations {
		total += a.Percent
	}
	return total
}
