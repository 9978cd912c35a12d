// Package offer converts free-form counterparty replies into validated,
// internally consistent structured offers. The model extraction is never
// trusted on numbers: quantities, totals, and implausible prices are all
// corrected deterministically against the baseline.
package offer

import (
	"fmt"
	"log"
	"math"

	"github.com/parleylabs/parley/pkg/models"
)

// Tunable constants for the normalization pipeline. These thresholds are
// empirically chosen defaults, not correctness invariants.
const (
	// blanketShare is the fraction of items that must carry an identical
	// unit price before the extraction is treated as a blanket quote.
	blanketShare = 0.70
	// baselineMatchShare is the fraction of baseline prices a blanket
	// price must plausibly match to be accepted as a real per-item quote.
	baselineMatchShare = 0.30
	// priceMatchTolerance is the relative tolerance for "plausibly match".
	priceMatchTolerance = 0.05
	// ratioClampMin and ratioClampMax bound the blanket rescale ratio.
	ratioClampMin = 0.5
	ratioClampMax = 2.0
	// outlierHigh and outlierLow bound plausible per-item prices relative
	// to baseline; prices outside are snapped back to baseline.
	outlierHigh = 3.0
	outlierLow  = 0.2
)

// Defaults carries counterparty defaults used for fields the extraction
// leaves empty and for synthetic fallback offers.
type Defaults struct {
	// LeadTimeDays is the counterparty's profiled lead time.
	LeadTimeDays int
	// PaymentTerms is the counterparty's profiled payment terms.
	PaymentTerms string
}

// Raw is the schema-validated model extraction before normalization.
// StatedTotal is the total the counterparty claimed; it is used only to
// size blanket-quote rescaling and is otherwise discarded.
type Raw struct {
	StatedTotal  float64            `json:"total_cost"`
	Items        []models.OfferItem `json:"items"`
	LeadTimeDays int                `json:"lead_time_days"`
	PaymentTerms string             `json:"payment_terms"`
	Concessions  []string           `json:"concessions"`
	Conditions   []string           `json:"conditions"`
}

// Normalize applies the deterministic correction pipeline to a raw
// extraction and returns the validated offer plus human-readable notes for
// every correction made. Normalization is idempotent: feeding a normalized
// offer back through (with its derived total as the stated total) yields
// identical output.
func Normalize(raw Raw, baseline []models.BaselineItem, defaults Defaults) (models.StructuredOffer, []string) {
	var notes []string

	bysku := make(map[string]models.BaselineItem, len(baseline))
	for _, item := range baseline {
		bysku[item.SKU] = item
	}
	baselineTotal := models.BaselineTotal(baseline)

	// Drop lines that do not match any baseline SKU; they cannot be
	// compared apples-to-apples and usually indicate extraction noise.
	items := make([]models.OfferItem, 0, len(raw.Items))
	for _, item := range raw.Items {
		if _, ok := bysku[item.SKU]; !ok {
			notes = append(notes, fmt.Sprintf("dropped unknown SKU %q", item.SKU))
			continue
		}
		items = append(items, item)
	}

	// Step 1: force every quantity to the baseline quantity for its SKU so
	// all counterparties are compared on identical order volumes.
	for i := range items {
		base := bysku[items[i].SKU]
		if items[i].Quantity != base.Quantity {
			notes = append(notes, fmt.Sprintf("quantity for %s normalized %d -> %d", items[i].SKU, items[i].Quantity, base.Quantity))
		}
		items[i].Quantity = base.Quantity
	}

	// Step 2: blanket-price detection. A single undifferentiated price
	// across most lines is a total quote, not per-item pricing; rescale
	// every line from the baseline by the stated-vs-baseline ratio.
	if price, ok := blanketPrice(items); ok && !matchesBaseline(price, baseline) {
		ratio := 1.0
		if raw.StatedTotal > 0 && baselineTotal > 0 {
			ratio = raw.StatedTotal / baselineTotal
		}
		if ratio < ratioClampMin || ratio > ratioClampMax {
			notes = append(notes, fmt.Sprintf("discrepancy: stated total %.2f vs baseline %.2f (ratio %.2f outside [%.1f, %.1f])",
				raw.StatedTotal, baselineTotal, ratio, ratioClampMin, ratioClampMax))
			ratio = clamp(ratio, ratioClampMin, ratioClampMax)
		}
		for i := range items {
			base := bysku[items[i].SKU]
			items[i].UnitPrice = base.UnitPrice * ratio
		}
		notes = append(notes, fmt.Sprintf("blanket price %.2f detected, rescaled all lines by %.3f", price, ratio))
	}

	// Step 3: per-item outlier correction. A wildly implausible price is
	// extraction noise, not a real quote for that SKU.
	for i := range items {
		base := bysku[items[i].SKU]
		if base.UnitPrice <= 0 || items[i].UnitPrice <= 0 {
			continue
		}
		ratio := items[i].UnitPrice / base.UnitPrice
		if ratio > outlierHigh || ratio < outlierLow {
			notes = append(notes, fmt.Sprintf("outlier price %.2f for %s snapped to baseline %.2f", items[i].UnitPrice, items[i].SKU, base.UnitPrice))
			items[i].UnitPrice = base.UnitPrice
		}
	}

	// Step 5: backfill baseline SKUs the extraction missed so every offer
	// always covers the full baseline item set.
	covered := make(map[string]bool, len(items))
	for _, item := range items {
		covered[item.SKU] = true
	}
	for _, base := range baseline {
		if covered[base.SKU] {
			continue
		}
		items = append(items, models.OfferItem{
			SKU:       base.SKU,
			UnitPrice: base.UnitPrice,
			Quantity:  base.Quantity,
		})
		notes = append(notes, fmt.Sprintf("backfilled missing SKU %s at baseline price", base.SKU))
	}

	// Step 4: the total is always derived, never trusted from the text.
	total := derivedTotal(items)
	if total == 0 {
		total = baselineTotal
		notes = append(notes, "no valid line items, total fell back to baseline")
	}

	leadTime := raw.LeadTimeDays
	if leadTime <= 0 {
		leadTime = defaults.LeadTimeDays
	}
	terms := raw.PaymentTerms
	if terms == "" {
		terms = defaults.PaymentTerms
	}

	for _, note := range notes {
		log.Printf("[normalizer] %s", note)
	}

	return models.StructuredOffer{
		TotalCost:    total,
		Items:        items,
		LeadTimeDays: leadTime,
		PaymentTerms: terms,
		Concessions:  raw.Concessions,
		Conditions:   raw.Conditions,
	}, notes
}

// BaselineOffer builds a synthetic offer identical to the baseline: full
// coverage, zero negotiation movement. Used when extraction fails entirely,
// because a round must always end with some usable offer.
func BaselineOffer(baseline []models.BaselineItem, defaults Defaults) models.StructuredOffer {
	items := make([]models.OfferItem, 0, len(baseline))
	for _, base := range baseline {
		items = append(items, models.OfferItem{
			SKU:       base.SKU,
			UnitPrice: base.UnitPrice,
			Quantity:  base.Quantity,
		})
	}
	return models.StructuredOffer{
		TotalCost:    models.BaselineTotal(baseline),
		Items:        items,
		LeadTimeDays: defaults.LeadTimeDays,
		PaymentTerms: defaults.PaymentTerms,
	}
}

// blanketPrice returns the dominant identical unit price if at least
// blanketShare of the items carry it.
func blanketPrice(items []models.OfferItem) (float64, bool) {
	if len(items) == 0 {
		return 0, false
	}

	counts := make(map[int64]int)
	for _, item := range items {
		counts[priceKey(item.UnitPrice)]++
	}

	var bestKey int64
	best := 0
	for key, count := range counts {
		if count > best {
			best = count
			bestKey = key
		}
	}

	if float64(best) < blanketShare*float64(len(items)) {
		return 0, false
	}
	return float64(bestKey) / 100, true
}

// matchesBaseline reports whether the price plausibly matches at least
// baselineMatchShare of the baseline unit prices.
func matchesBaseline(price float64, baseline []models.BaselineItem) bool {
	if len(baseline) == 0 {
		return false
	}
	matched := 0
	for _, base := range baseline {
		if base.UnitPrice <= 0 {
			continue
		}
		if math.Abs(price-base.UnitPrice)/base.UnitPrice <= priceMatchTolerance {
			matched++
		}
	}
	return float64(matched) >= baselineMatchShare*float64(len(baseline))
}

// derivedTotal sums unit price x quantity over items with a positive SKU,
// quantity, and price.
func derivedTotal(items []models.OfferItem) float64 {
	var total float64
	for _, item := range items {
		if item.SKU == "" || item.Quantity <= 0 || item.UnitPrice <= 0 {
			continue
		}
		total += item.UnitPrice * float64(item.Quantity)
	}
	return total
}

// priceKey buckets a price to whole cents for identity comparison.
func priceKey(price float64) int64 {
	return int64(math.Round(price * 100))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
