package models

// VolumeTier is one quantity break in a tiered quote.
type VolumeTier struct {
	// Quantity is the minimum order quantity for this tier.
	Quantity int `json:"quantity" yaml:"quantity"`
	// UnitPrice is the per-unit price at this tier.
	UnitPrice float64 `json:"unit_price" yaml:"unit_price"`
	// LineTotal is quantity x unit price for this tier.
	LineTotal float64 `json:"line_total" yaml:"line_total"`
}

// BaselineItem is one line of the reference quotation that every
// counterparty offer is compared against. Baseline items are immutable.
type BaselineItem struct {
	// SKU is the stock keeping unit identifier.
	SKU string `json:"sku" yaml:"sku"`
	// Description is the human-readable item description.
	Description string `json:"description" yaml:"description"`
	// Quantity is the order quantity for this line.
	Quantity int `json:"quantity" yaml:"quantity"`
	// UnitPrice is the baseline per-unit price.
	UnitPrice float64 `json:"unit_price" yaml:"unit_price"`
	// LineTotal is quantity x unit price.
	LineTotal float64 `json:"line_total" yaml:"line_total"`
	// Tiers lists optional volume price breaks.
	Tiers []VolumeTier `json:"tiers,omitempty" yaml:"tiers,omitempty"`
}

// BaselineTotal sums line totals across baseline items, recomputing each
// line from its unit price and quantity so a stale LineTotal cannot skew it.
func BaselineTotal(items []BaselineItem) float64 {
	var total float64
	for _, item := range items {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return total
}

// OfferItem is one line of a structured counterparty offer.
type OfferItem struct {
	// SKU is the stock keeping unit identifier, matched against the baseline.
	SKU string `json:"sku"`
	// UnitPrice is the quoted per-unit price.
	UnitPrice float64 `json:"unit_price"`
	// Quantity is the order quantity. Always normalized to the baseline
	// quantity for the same SKU.
	Quantity int `json:"quantity"`
	// Tiers lists optional volume price breaks quoted by the counterparty.
	Tiers []VolumeTier `json:"tiers,omitempty"`
}

// StructuredOffer is a validated, internally consistent offer produced once
// per counterparty per round. TotalCost is always derived from the items,
// never taken from counterparty text.
type StructuredOffer struct {
	// TotalCost is the derived sum of unit price x quantity over valid items.
	TotalCost float64 `json:"total_cost"`
	// Items are the per-SKU offer lines, covering the full baseline set.
	Items []OfferItem `json:"items"`
	// LeadTimeDays is the quoted delivery lead time.
	LeadTimeDays int `json:"lead_time_days"`
	// PaymentTerms is the quoted payment terms string.
	PaymentTerms string `json:"payment_terms"`
	// Concessions lists concessions the counterparty granted this round.
	Concessions []string `json:"concessions,omitempty"`
	// Conditions lists conditions the counterparty attached to the offer.
	Conditions []string `json:"conditions,omitempty"`
}

// Item returns the offer line for the given SKU, or nil if absent.
func (o *StructuredOffer) Item(sku string) *OfferItem {
	for i := range o.Items {
		if o.Items[i].SKU == sku {
			return &o.Items[i]
		}
	}
	return nil
}
