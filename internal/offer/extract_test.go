package offer

import (
	"context"
	"errors"
	"testing"

	"github.com/parleylabs/parley/internal/llm"
	"github.com/parleylabs/parley/pkg/models"
)

// scriptedCompleter returns queued responses (or errors) in order, then
// repeats the last entry.
type scriptedCompleter struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedCompleter) Complete(_ context.Context, _ llm.Request) (string, error) {
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.responses[i], err
}

func TestExtractParsesAndNormalizes(t *testing.T) {
	completer := &scriptedCompleter{
		responses: []string{`{
			"total_cost": 84000,
			"items": [
				{"sku": "VLV-100", "unit_price": 470, "quantity": 100},
				{"sku": "PMP-200", "unit_price": 395, "quantity": 999}
			],
			"lead_time_days": 14,
			"payment_terms": "Net 45",
			"concessions": ["expedited shipping"],
			"conditions": []
		}`},
	}

	extractor := NewExtractor(completer)
	offer, _ := extractor.Extract(context.Background(), "our best offer...", testBaseline(), testDefaults())

	if offer.Item("PMP-200").Quantity != 50 {
		t.Errorf("quantity = %d, want normalized baseline 50", offer.Item("PMP-200").Quantity)
	}
	if offer.Item("FLT-300") == nil {
		t.Error("expected FLT-300 backfilled")
	}
	if offer.LeadTimeDays != 14 || offer.PaymentTerms != "Net 45" {
		t.Errorf("lead=%d terms=%q, want extracted 14 / Net 45", offer.LeadTimeDays, offer.PaymentTerms)
	}
	if len(offer.Concessions) != 1 {
		t.Errorf("concessions = %v, want one entry", offer.Concessions)
	}
}

func TestExtractRetriesOnceThenSucceeds(t *testing.T) {
	completer := &scriptedCompleter{
		responses: []string{
			"no json here at all",
			`{"total_cost": 0, "items": [{"sku": "VLV-100", "unit_price": 490, "quantity": 100}]}`,
		},
	}

	extractor := NewExtractor(completer)
	offer, _ := extractor.Extract(context.Background(), "text", testBaseline(), testDefaults())

	if completer.calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", completer.calls)
	}
	if offer.Item("VLV-100").UnitPrice != 490 {
		t.Errorf("price = %v, want 490 from the retry attempt", offer.Item("VLV-100").UnitPrice)
	}
}

func TestExtractFallsBackToBaselineOffer(t *testing.T) {
	completer := &scriptedCompleter{
		responses: []string{""},
		errs:      []error{errors.New("model timeout")},
	}

	extractor := NewExtractor(completer)
	offer, notes := extractor.Extract(context.Background(), "text", testBaseline(), testDefaults())

	if completer.calls != extractAttempts {
		t.Errorf("calls = %d, want %d", completer.calls, extractAttempts)
	}
	if offer.TotalCost != models.BaselineTotal(testBaseline()) {
		t.Errorf("TotalCost = %v, want baseline total (synthetic fallback)", offer.TotalCost)
	}
	if !hasNote(notes, "synthetic baseline offer") {
		t.Error("expected a fallback note")
	}
}

func TestExtractRejectsEmptyItemList(t *testing.T) {
	completer := &scriptedCompleter{
		responses: []string{`{"total_cost": 80000, "items": []}`},
	}

	extractor := NewExtractor(completer)
	offer, _ := extractor.Extract(context.Background(), "text", testBaseline(), testDefaults())

	// Both attempts return an empty item list, so the synthetic baseline
	// offer is substituted.
	if offer.TotalCost != models.BaselineTotal(testBaseline()) {
		t.Errorf("TotalCost = %v, want baseline total", offer.TotalCost)
	}
}
