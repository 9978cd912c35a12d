// Package models defines the core negotiation entities shared across Parley.
package models

// PriceTier classifies a counterparty's general market positioning.
type PriceTier string

const (
	// PriceTierCheap indicates an aggressive low-cost counterparty.
	PriceTierCheap PriceTier = "cheap"
	// PriceTierMid indicates a mid-market counterparty.
	PriceTierMid PriceTier = "mid"
	// PriceTierExpensive indicates a premium counterparty.
	PriceTierExpensive PriceTier = "expensive"
)

// Valid returns true if the price tier is a known value.
func (p PriceTier) Valid() bool {
	switch p {
	case PriceTierCheap, PriceTierMid, PriceTierExpensive:
		return true
	default:
		return false
	}
}

// CounterpartyProfile describes one counterparty in a negotiation.
// Profiles are created before orchestration starts and are immutable
// for the lifetime of the negotiation.
type CounterpartyProfile struct {
	// ID is the unique identifier for this counterparty.
	ID string `json:"id" yaml:"id"`
	// Name is the display name.
	Name string `json:"name" yaml:"name"`
	// Code is a short code used in logs and summaries (e.g. "ACM").
	Code string `json:"code" yaml:"code"`
	// QualityRating is a 1-5 quality assessment.
	QualityRating int `json:"quality_rating" yaml:"quality_rating"`
	// PriceTier classifies the counterparty's pricing posture.
	PriceTier PriceTier `json:"price_tier" yaml:"price_tier"`
	// LeadTimeDays is the quoted delivery lead time in days.
	LeadTimeDays int `json:"lead_time_days" yaml:"lead_time_days"`
	// PaymentTerms is the payment terms string (e.g. "Net 30").
	PaymentTerms string `json:"payment_terms" yaml:"payment_terms"`
	// Simulated indicates the counterparty is played by a model agent
	// rather than an external party.
	Simulated bool `json:"is_simulated" yaml:"is_simulated"`
}

// Valid returns true if the profile has the fields every component relies on.
func (c CounterpartyProfile) Valid() bool {
	return c.ID != "" && c.Name != "" &&
		c.QualityRating >= 1 && c.QualityRating <= 5 &&
		c.PriceTier.Valid()
}
