package decision

import (
	"log"
	"sort"

	"github.com/parleylabs/parley/pkg/models"
)

// ReallocateForCapacity rebalances a committed allocation set when one
// counterparty can no longer fulfill its full volume. The constrained
// counterparty keeps its highest-value items up to the reduced capacity
// threshold; the shed remainder is redistributed across the other
// counterparties with the same greedy assignment under evenly split targets.
func ReallocateForCapacity(allocations []models.Allocation, constrainedID string, capacityFraction float64, offers map[string]models.StructuredOffer, profiles map[string]models.CounterpartyProfile, annualRate float64) []models.Allocation {
	var constrained *models.Allocation
	others := make([]models.Allocation, 0, len(allocations))
	for i := range allocations {
		if allocations[i].CounterpartyID == constrainedID {
			constrained = &allocations[i]
		} else {
			others = append(others, allocations[i])
		}
	}
	if constrained == nil || capacityFraction >= 1 {
		return allocations
	}

	// Counterparties with a final offer but no current leg are still
	// eligible to absorb shed volume.
	present := map[string]bool{constrainedID: true}
	for _, a := range others {
		present[a.CounterpartyID] = true
	}
	extra := make([]string, 0, len(offers))
	for id := range offers {
		if !present[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		others = append(others, models.Allocation{
			CounterpartyID: id,
			LeadTimeDays:   offerLeadTime(offers[id], profiles[id]),
			PaymentTerms:   offerTerms(offers[id], profiles[id]),
		})
	}
	if len(others) == 0 {
		return allocations
	}

	kept, shed := splitByCapacity(constrained.Items, capacityFraction)
	if len(shed) == 0 {
		return allocations
	}
	log.Printf("[decision] %s sheds %d of %d items at %.0f%% capacity",
		constrainedID, len(shed), len(constrained.Items), capacityFraction*100)

	// Redistribute the shed items across the remaining counterparties with
	// even targets.
	evenTargets := make(map[string]float64, len(others))
	for _, a := range others {
		evenTargets[a.CounterpartyID] = 100 / float64(len(others))
	}
	redistributed := allocateItems(allocationInput{
		Baseline:   shed,
		Offers:     offers,
		Profiles:   profiles,
		Targets:    evenTargets,
		AnnualRate: annualRate,
	})

	// Merge the redistributed items into the surviving allocations.
	byID := make(map[string]*models.Allocation, len(others))
	out := make([]models.Allocation, 0, len(allocations))
	constrainedOut := models.Allocation{
		CounterpartyID: constrainedID,
		Cost:           agreedCost(kept, offers[constrainedID]),
		LeadTimeDays:   constrained.LeadTimeDays,
		PaymentTerms:   constrained.PaymentTerms,
		Items:          kept,
	}
	out = append(out, constrainedOut)
	for _, a := range others {
		a.Items = append([]models.BaselineItem(nil), a.Items...)
		out = append(out, a)
	}
	for i := range out {
		byID[out[i].CounterpartyID] = &out[i]
	}
	for _, r := range redistributed {
		dst := byID[r.CounterpartyID]
		if dst == nil {
			continue
		}
		dst.Items = append(dst.Items, r.Items...)
		dst.Cost += r.Cost
	}

	// Seeded legs that absorbed nothing do not survive into the decision.
	merged := out[:0]
	for _, a := range out {
		if len(a.Items) > 0 {
			merged = append(merged, a)
		}
	}

	recomputePercentages(merged)
	return merged
}

// splitByCapacity keeps the highest-value items whose cumulative value fits
// within the capacity fraction of the original total; the rest are shed.
func splitByCapacity(items []models.BaselineItem, capacityFraction float64) (kept, shed []models.BaselineItem) {
	sorted := make([]models.BaselineItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lineValue(sorted[i]) > lineValue(sorted[j])
	})

	var total float64
	for _, item := range sorted {
		total += lineValue(item)
	}
	threshold := total * capacityFraction

	var running float64
	for _, item := range sorted {
		if running+lineValue(item) <= threshold {
			running += lineValue(item)
			kept = append(kept, item)
		} else {
			shed = append(shed, item)
		}
	}
	return kept, shed
}

// recomputePercentages rederives allocation percentages from assigned item
// values and forces them to sum to exactly 100.
func recomputePercentages(allocations []models.Allocation) {
	var total float64
	for _, a := range allocations {
		for _, item := range a.Items {
			total += lineValue(item)
		}
	}
	if total == 0 {
		return
	}
	for i := range allocations {
		var v float64
		for _, item := range allocations[i].Items {
			v += lineValue(item)
		}
		allocations[i].Percent = v / total * 100
	}
	exactifyPercentages(allocations)
}
