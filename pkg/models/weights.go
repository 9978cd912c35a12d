package models

// Weights holds the relative importance of each scoring dimension.
// The four weights sum to 1.0.
type Weights struct {
	Cost     float64 `json:"cost"`
	Quality  float64 `json:"quality"`
	LeadTime float64 `json:"lead_time"`
	Terms    float64 `json:"terms"`
}

// WeightProfile names a predefined weighting of the scoring dimensions.
type WeightProfile string

const (
	// ProfileBalanced weights all dimensions near-equally.
	ProfileBalanced WeightProfile = "balanced"
	// ProfileCostFocused prioritizes lowest total cost.
	ProfileCostFocused WeightProfile = "cost_focused"
	// ProfileQualityFocused prioritizes counterparty quality.
	ProfileQualityFocused WeightProfile = "quality_focused"
	// ProfileSpeedFocused prioritizes shortest lead time.
	ProfileSpeedFocused WeightProfile = "speed_focused"
	// ProfileCashFlowFocused prioritizes favorable payment terms.
	ProfileCashFlowFocused WeightProfile = "cashflow_focused"
)

// profileWeights maps each named profile to its dimension weights.
var profileWeights = map[WeightProfile]Weights{
	ProfileBalanced:        {Cost: 0.30, Quality: 0.30, LeadTime: 0.20, Terms: 0.20},
	ProfileCostFocused:     {Cost: 0.55, Quality: 0.20, LeadTime: 0.15, Terms: 0.10},
	ProfileQualityFocused:  {Cost: 0.20, Quality: 0.55, LeadTime: 0.15, Terms: 0.10},
	ProfileSpeedFocused:    {Cost: 0.20, Quality: 0.20, LeadTime: 0.50, Terms: 0.10},
	ProfileCashFlowFocused: {Cost: 0.25, Quality: 0.20, LeadTime: 0.10, Terms: 0.45},
}

// Valid returns true if the profile is a known value.
func (p WeightProfile) Valid() bool {
	_, ok := profileWeights[p]
	return ok
}

// Weights returns the dimension weights for the profile. Unknown profiles
// fall back to the balanced profile.
func (p WeightProfile) Weights() Weights {
	if w, ok := profileWeights[p]; ok {
		return w
	}
	return profileWeights[ProfileBalanced]
}
