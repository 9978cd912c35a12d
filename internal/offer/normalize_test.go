package offer

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/parleylabs/parley/pkg/models"
)

func testBaseline() []models.BaselineItem {
	// Totals 87,150.
	return []models.BaselineItem{
		{SKU: "VLV-100", Description: "Gate valve", Quantity: 100, UnitPrice: 500.00},
		{SKU: "PMP-200", Description: "Booster pump", Quantity: 50, UnitPrice: 400.00},
		{SKU: "FLT-300", Description: "Inline filter", Quantity: 100, UnitPrice: 171.50},
	}
}

func testDefaults() Defaults {
	return Defaults{LeadTimeDays: 21, PaymentTerms: "Net 30"}
}

func hasNote(notes []string, substr string) bool {
	for _, note := range notes {
		if strings.Contains(note, substr) {
			return true
		}
	}
	return false
}

func TestNormalizeDerivesTotalFromItems(t *testing.T) {
	raw := Raw{
		StatedTotal: 99999, // stated total must be discarded
		Items: []models.OfferItem{
			{SKU: "VLV-100", UnitPrice: 480, Quantity: 100},
			{SKU: "PMP-200", UnitPrice: 390, Quantity: 50},
			{SKU: "FLT-300", UnitPrice: 170, Quantity: 100},
		},
	}

	offer, _ := Normalize(raw, testBaseline(), testDefaults())

	var want float64
	for _, item := range offer.Items {
		want += item.UnitPrice * float64(item.Quantity)
	}
	if offer.TotalCost != want {
		t.Errorf("TotalCost = %v, want derived sum %v", offer.TotalCost, want)
	}
	if offer.TotalCost == 99999 {
		t.Error("stated total must never be trusted")
	}
}

func TestNormalizeOverwritesQuantities(t *testing.T) {
	raw := Raw{
		Items: []models.OfferItem{
			{SKU: "VLV-100", UnitPrice: 480, Quantity: 7},    // wrong quantity
			{SKU: "PMP-200", UnitPrice: 390, Quantity: 5000}, // wrong quantity
		},
	}

	offer, notes := Normalize(raw, testBaseline(), testDefaults())

	for _, base := range testBaseline() {
		item := offer.Item(base.SKU)
		if item == nil {
			t.Fatalf("missing SKU %s after normalization", base.SKU)
		}
		if item.Quantity != base.Quantity {
			t.Errorf("quantity for %s = %d, want baseline %d", base.SKU, item.Quantity, base.Quantity)
		}
	}
	if !hasNote(notes, "quantity for VLV-100 normalized") {
		t.Error("expected a quantity normalization note")
	}
}

func TestNormalizeBackfillsMissingSKUs(t *testing.T) {
	raw := Raw{
		Items: []models.OfferItem{
			{SKU: "VLV-100", UnitPrice: 480, Quantity: 100},
		},
	}

	offer, notes := Normalize(raw, testBaseline(), testDefaults())

	if len(offer.Items) != 3 {
		t.Fatalf("expected full baseline coverage (3 items), got %d", len(offer.Items))
	}
	filt := offer.Item("FLT-300")
	if filt == nil || filt.UnitPrice != 171.50 || filt.Quantity != 100 {
		t.Errorf("backfilled FLT-300 = %+v, want baseline price/quantity", filt)
	}
	if !hasNote(notes, "backfilled missing SKU") {
		t.Error("expected a backfill note")
	}
}

func TestNormalizeSnapsOutlierPrices(t *testing.T) {
	raw := Raw{
		Items: []models.OfferItem{
			{SKU: "VLV-100", UnitPrice: 5000, Quantity: 100}, // 10x baseline
			{SKU: "PMP-200", UnitPrice: 40, Quantity: 50},    // 0.1x baseline
			{SKU: "FLT-300", UnitPrice: 160, Quantity: 100},  // plausible
		},
	}

	offer, notes := Normalize(raw, testBaseline(), testDefaults())

	if got := offer.Item("VLV-100").UnitPrice; got != 500 {
		t.Errorf("high outlier = %v, want snapped to 500", got)
	}
	if got := offer.Item("PMP-200").UnitPrice; got != 400 {
		t.Errorf("low outlier = %v, want snapped to 400", got)
	}
	if got := offer.Item("FLT-300").UnitPrice; got != 160 {
		t.Errorf("plausible price = %v, want untouched 160", got)
	}
	if !hasNote(notes, "outlier price") {
		t.Error("expected an outlier note")
	}
}

func TestNormalizeBlanketPriceRescale(t *testing.T) {
	// Counterparty stated a single flat "$80,000 total" against an 87,150
	// baseline: every line must be rescaled by 80000/87150.
	raw := Raw{
		StatedTotal: 80000,
		Items: []models.OfferItem{
			{SKU: "VLV-100", UnitPrice: 80, Quantity: 100},
			{SKU: "PMP-200", UnitPrice: 80, Quantity: 50},
			{SKU: "FLT-300", UnitPrice: 80, Quantity: 100},
		},
	}

	offer, notes := Normalize(raw, testBaseline(), testDefaults())

	ratio := 80000.0 / 87150.0
	for _, base := range testBaseline() {
		want := base.UnitPrice * ratio
		got := offer.Item(base.SKU).UnitPrice
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("price for %s = %v, want %v (baseline x %.4f)", base.SKU, got, want, ratio)
		}
	}
	if math.Abs(offer.TotalCost-80000) > 1e-6 {
		t.Errorf("TotalCost = %v, want 80000", offer.TotalCost)
	}
	if !hasNote(notes, "blanket price") {
		t.Error("expected a blanket-price note")
	}
}

func TestNormalizeDiscrepancyFlag(t *testing.T) {
	baseline := []models.BaselineItem{
		{SKU: "A", Quantity: 100, UnitPrice: 5000}, // 500,000
		{SKU: "B", Quantity: 100, UnitPrice: 2000}, // 200,000
	}

	// Stated total 7,000,000 against a 700,000 baseline: ratio 10 >= 2.0.
	raw := Raw{
		StatedTotal: 7_000_000,
		Items: []models.OfferItem{
			{SKU: "A", UnitPrice: 999, Quantity: 100},
			{SKU: "B", UnitPrice: 999, Quantity: 100},
		},
	}

	offer, notes := Normalize(raw, baseline, Defaults{})

	if !hasNote(notes, "discrepancy") {
		t.Fatal("expected discrepancy flag for ratio 10.0 >= 2.0")
	}
	// Ratio is clamped to 2.0.
	if math.Abs(offer.TotalCost-1_400_000) > 1e-6 {
		t.Errorf("TotalCost = %v, want clamped 1,400,000", offer.TotalCost)
	}
}

func TestNormalizeBlanketSkippedWhenPricesMatchBaseline(t *testing.T) {
	// A uniform price that genuinely matches the baseline is a real quote.
	baseline := []models.BaselineItem{
		{SKU: "A", Quantity: 10, UnitPrice: 100},
		{SKU: "B", Quantity: 10, UnitPrice: 100},
		{SKU: "C", Quantity: 10, UnitPrice: 250},
	}
	raw := Raw{
		StatedTotal: 4500,
		Items: []models.OfferItem{
			{SKU: "A", UnitPrice: 100, Quantity: 10},
			{SKU: "B", UnitPrice: 100, Quantity: 10},
			{SKU: "C", UnitPrice: 100, Quantity: 10},
		},
	}

	offer, notes := Normalize(raw, baseline, Defaults{})

	if hasNote(notes, "blanket price") {
		t.Error("blanket rescale should be skipped when the price matches baseline lines")
	}
	if got := offer.Item("A").UnitPrice; got != 100 {
		t.Errorf("price for A = %v, want untouched 100", got)
	}
}

func TestNormalizeRoundTripOfBaselineRestatement(t *testing.T) {
	baseline := testBaseline()
	raw := Raw{
		StatedTotal: models.BaselineTotal(baseline),
		Items: []models.OfferItem{
			{SKU: "VLV-100", UnitPrice: 500.00, Quantity: 100},
			{SKU: "PMP-200", UnitPrice: 400.00, Quantity: 50},
			{SKU: "FLT-300", UnitPrice: 171.50, Quantity: 100},
		},
	}

	offer, _ := Normalize(raw, baseline, testDefaults())

	if offer.TotalCost != models.BaselineTotal(baseline) {
		t.Errorf("TotalCost = %v, want baseline total %v", offer.TotalCost, models.BaselineTotal(baseline))
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := Raw{
		StatedTotal: 80000,
		Items: []models.OfferItem{
			{SKU: "VLV-100", UnitPrice: 80, Quantity: 7},
			{SKU: "PMP-200", UnitPrice: 80, Quantity: 50},
		},
	}

	first, _ := Normalize(raw, testBaseline(), testDefaults())

	second, _ := Normalize(Raw{
		StatedTotal:  first.TotalCost,
		Items:        first.Items,
		LeadTimeDays: first.LeadTimeDays,
		PaymentTerms: first.PaymentTerms,
		Concessions:  first.Concessions,
		Conditions:   first.Conditions,
	}, testBaseline(), testDefaults())

	if !reflect.DeepEqual(first, second) {
		t.Errorf("normalization is not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestNormalizeDropsUnknownSKUs(t *testing.T) {
	raw := Raw{
		Items: []models.OfferItem{
			{SKU: "VLV-100", UnitPrice: 480, Quantity: 100},
			{SKU: "MYSTERY-9", UnitPrice: 10, Quantity: 1},
		},
	}

	offer, notes := Normalize(raw, testBaseline(), testDefaults())

	if offer.Item("MYSTERY-9") != nil {
		t.Error("unknown SKU should be dropped")
	}
	if !hasNote(notes, "dropped unknown SKU") {
		t.Error("expected a dropped-SKU note")
	}
}

func TestNormalizeEmptyExtractionFallsBackToBaselineTotal(t *testing.T) {
	offer, notes := Normalize(Raw{}, testBaseline(), testDefaults())

	if offer.TotalCost != models.BaselineTotal(testBaseline()) {
		t.Errorf("TotalCost = %v, want baseline total", offer.TotalCost)
	}
	if len(offer.Items) != len(testBaseline()) {
		t.Errorf("expected full backfill, got %d items", len(offer.Items))
	}
	if !hasNote(notes, "backfilled") {
		t.Error("expected backfill notes")
	}
	if offer.LeadTimeDays != 21 || offer.PaymentTerms != "Net 30" {
		t.Errorf("expected counterparty defaults, got lead=%d terms=%q", offer.LeadTimeDays, offer.PaymentTerms)
	}
}

func TestBaselineOfferCoversBaseline(t *testing.T) {
	offer := BaselineOffer(testBaseline(), testDefaults())

	if offer.TotalCost != models.BaselineTotal(testBaseline()) {
		t.Errorf("TotalCost = %v, want baseline total", offer.TotalCost)
	}
	if len(offer.Items) != 3 {
		t.Errorf("expected 3 items, got %d", len(offer.Items))
	}
	for _, base := range testBaseline() {
		item := offer.Item(base.SKU)
		if item == nil || item.UnitPrice != base.UnitPrice || item.Quantity != base.Quantity {
			t.Errorf("item %s = %+v, want baseline copy", base.SKU, item)
		}
	}
}
