// Package scenario loads negotiation scenario files: the baseline quotation,
// the counterparty set, and the optional disruption script.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/parleylabs/parley/pkg/models"
)

// Disruption scripts the mid-negotiation capacity event.
type Disruption struct {
	// TargetID is the counterparty hit by the disruption.
	TargetID string `yaml:"target_id"`
	// Condition is the capacity constraint injected into the target's
	// turns.
	Condition string `yaml:"condition"`
	// Round is the round boundary after which the checkpoint fires.
	// Zero defers to the orchestrator default.
	Round int `yaml:"round,omitempty"`
	// CapacityFraction is the fraction of committed volume the target can
	// still fulfill after the disruption; the decision phase sheds the
	// excess. Zero leaves the decision unconstrained.
	CapacityFraction float64 `yaml:"capacity_fraction,omitempty"`
}

// Scenario is one complete negotiation setup.
type Scenario struct {
	// Name labels the scenario.
	Name string `yaml:"name"`
	// MaxRounds overrides the configured round budget when positive.
	MaxRounds int `yaml:"max_rounds,omitempty"`
	// WeightProfile overrides the configured decision weight profile.
	WeightProfile models.WeightProfile `yaml:"weight_profile,omitempty"`
	// ReferenceID nominates the reference counterparty for round 1
	// staging.
	ReferenceID string `yaml:"reference_id"`
	// Baseline is the reference quotation all offers are compared against.
	Baseline []models.BaselineItem `yaml:"baseline"`
	// Counterparties are the negotiation participants.
	Counterparties []models.CounterpartyProfile `yaml:"counterparties"`
	// Disruption optionally scripts the capacity event.
	Disruption *Disruption `yaml:"disruption,omitempty"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates scenario YAML.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks scenario consistency.
func (s *Scenario) Validate() error {
	if len(s.Baseline) == 0 {
		return fmt.Errorf("scenario %q has no baseline items", s.Name)
	}
	seen := make(map[string]bool, len(s.Baseline))
	for i, item := range s.Baseline {
		if item.SKU == "" {
			return fmt.Errorf("baseline item %d missing sku", i)
		}
		if seen[item.SKU] {
			return fmt.Errorf("duplicate baseline sku %q", item.SKU)
		}
		seen[item.SKU] = true
		if item.Quantity <= 0 {
			return fmt.Errorf("baseline item %s has non-positive quantity", item.SKU)
		}
		if item.UnitPrice <= 0 {
			return fmt.Errorf("baseline item %s has non-positive unit price", item.SKU)
		}
	}

	if len(s.Counterparties) == 0 {
		return fmt.Errorf("scenario %q has no counterparties", s.Name)
	}
	ids := make(map[string]bool, len(s.Counterparties))
	for _, p := range s.Counterparties {
		if !p.Valid() {
			return fmt.Errorf("counterparty %q is invalid", p.ID)
		}
		if ids[p.ID] {
			return fmt.Errorf("duplicate counterparty id %q", p.ID)
		}
		ids[p.ID] = true
	}

	if !ids[s.ReferenceID] {
		return fmt.Errorf("reference counterparty %q is not in the scenario", s.ReferenceID)
	}

	if s.WeightProfile != "" && !s.WeightProfile.Valid() {
		return fmt.Errorf("unknown weight profile %q", s.WeightProfile)
	}

	if s.Disruption != nil {
		if !ids[s.Disruption.TargetID] {
			return fmt.Errorf("disruption target %q is not in the scenario", s.Disruption.TargetID)
		}
		if s.Disruption.Condition == "" {
			return fmt.Errorf("disruption for %q has no condition", s.Disruption.TargetID)
		}
		if s.Disruption.CapacityFraction < 0 || s.Disruption.CapacityFraction > 1 {
			return fmt.Errorf("disruption capacity fraction %v outside [0, 1]", s.Disruption.CapacityFraction)
		}
	}
	return nil
}
