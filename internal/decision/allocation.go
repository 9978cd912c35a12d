package decision

import (
	"log"
	"math"
	"sort"

	"github.com/parleylabs/parley/pkg/models"
)

// relativeCostWeight is the penalty multiplier on relative landed cost when
// placing an item; distance-to-target dominates, cost breaks ties.
const relativeCostWeight = 5.0

// allocationInput bundles what the greedy assignment needs per counterparty.
type allocationInput struct {
	// Baseline is the full reference item set to assign.
	Baseline []models.BaselineItem
	// Offers holds the final structured offer per counterparty ID.
	Offers map[string]models.StructuredOffer
	// Profiles holds the counterparty profile per ID.
	Profiles map[string]models.CounterpartyProfile
	// Targets maps counterparty ID to its target allocation percentage.
	// Only counterparties present here are eligible for items.
	Targets map[string]float64
	// AnnualRate is the time-value-of-money rate for landed cost.
	AnnualRate float64
}

// allocateItems deterministically assigns baseline items to counterparties
// to realize the target percentages. Items are placed in descending
// line-value order (high-value items most affect the running percentage);
// each goes to the counterparty that simultaneously minimizes
// distance-to-target and relative landed-cost penalty.
func allocateItems(in allocationInput) []models.Allocation {
	ids := make([]string, 0, len(in.Targets))
	for id := range in.Targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]models.BaselineItem, len(in.Baseline))
	copy(items, in.Baseline)
	sort.SliceStable(items, func(i, j int) bool {
		return lineValue(items[i]) > lineValue(items[j])
	})

	var totalValue float64
	for _, item := range items {
		totalValue += lineValue(item)
	}

	assignedValue := make(map[string]float64, len(ids))
	assignedItems := make(map[string][]models.BaselineItem, len(ids))
	var assignedTotal float64

	for _, item := range items {
		best := ""
		bestScore := math.Inf(-1)

		minLanded := math.Inf(1)
		landedByID := make(map[string]float64, len(ids))
		for _, id := range ids {
			landedByID[id] = itemLandedCost(item, id, in)
			if landedByID[id] < minLanded {
				minLanded = landedByID[id]
			}
		}

		for _, id := range ids {
			// Share of the value placed so far, were this item assigned
			// here. Measuring against placed value (not the whole order)
			// keeps early high-value assignments from pinning every later
			// item to one leg.
			afterPct := (assignedValue[id] + lineValue(item)) / (assignedTotal + lineValue(item)) * 100
			relativeCost := 0.0
			if minLanded > 0 {
				relativeCost = landedByID[id]/minLanded - 1
			}
			score := -math.Abs(in.Targets[id]-afterPct) - relativeCostWeight*relativeCost
			if score > bestScore {
				bestScore = score
				best = id
			}
		}

		assignedValue[best] += lineValue(item)
		assignedItems[best] = append(assignedItems[best], item)
		assignedTotal += lineValue(item)
	}

	allocations := make([]models.Allocation, 0, len(ids))
	for _, id := range ids {
		if len(assignedItems[id]) == 0 && in.Targets[id] == 0 {
			continue
		}
		offer := in.Offers[id]
		profile := in.Profiles[id]

		pct := 0.0
		if totalValue > 0 {
			pct = assignedValue[id] / totalValue * 100
		}

		allocations = append(allocations, models.Allocation{
			CounterpartyID: id,
			Percent:        pct,
			Cost:           agreedCost(assignedItems[id], offer),
			LeadTimeDays:   offerLeadTime(offer, profile),
			PaymentTerms:   offerTerms(offer, profile),
			Items:          assignedItems[id],
		})
	}

	exactifyPercentages(allocations)
	return allocations
}

// exactifyPercentages forces the allocation percentages to sum to exactly
// 100 by absorbing float residue into the largest allocation.
func exactifyPercentages(allocations []models.Allocation) {
	if len(allocations) == 0 {
		return
	}
	largest := 0
	var sum float64
	for i, a := range allocations {
		sum += a.Percent
		if a.Percent > allocations[largest].Percent {
			largest = i
		}
	}
	if sum == 0 {
		log.Printf("[decision] allocation percentages sum to zero, forcing largest leg to 100")
	}
	allocations[largest].Percent += 100 - sum
}

// itemLandedCost computes the landed cost of one item at one counterparty:
// the counterparty's offered unit price plus the financing cost of its
// payment terms over its lead time.
func itemLandedCost(item models.BaselineItem, id string, in allocationInput) float64 {
	offer := in.Offers[id]
	profile := in.Profiles[id]

	unit := item.UnitPrice
	if line := offer.Item(item.SKU); line != nil && line.UnitPrice > 0 {
		unit = line.UnitPrice
	}
	fob := unit * float64(item.Quantity)

	return landedCost(fob, offerLeadTime(offer, profile), paymentNetDays(offerTerms(offer, profile)), in.AnnualRate)
}

// agreedCost totals the counterparty's offered prices over assigned items.
func agreedCost(items []models.BaselineItem, offer models.StructuredOffer) float64 {
	var total float64
	for _, item := range items {
		unit := item.UnitPrice
		if line := offer.Item(item.SKU); line != nil && line.UnitPrice > 0 {
			unit = line.UnitPrice
		}
		total += unit * float64(item.Quantity)
	}
	return total
}

func offerLeadTime(offer models.StructuredOffer, profile models.CounterpartyProfile) int {
	if offer.LeadTimeDays > 0 {
		return offer.LeadTimeDays
	}
	return profile.LeadTimeDays
}

func offerTerms(offer models.StructuredOffer, profile models.CounterpartyProfile) string {
	if offer.PaymentTerms != "" {
		return offer.PaymentTerms
	}
	return profile.PaymentTerms
}

func lineValue(item models.BaselineItem) float64 {
	return item.UnitPrice * float64(item.Quantity)
}
