package offer

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/parleylabs/parley/internal/llm"
	"github.com/parleylabs/parley/pkg/models"
)

// extractAttempts is the number of model extraction attempts before the
// extractor degrades to a synthetic baseline offer.
const extractAttempts = 2

// Extractor turns free-form counterparty text into normalized structured
// offers via a schema-prompted fast-tier model call.
type Extractor struct {
	completer llm.Completer
}

// NewExtractor creates an extractor backed by the given completer.
func NewExtractor(completer llm.Completer) *Extractor {
	return &Extractor{completer: completer}
}

// Extract parses the counterparty's reply into a structured offer and runs
// the normalization pipeline over it. Extraction is retried once; if both
// attempts fail the baseline synthetic offer is returned so the round always
// ends with a usable offer. Extract never returns an error.
func (e *Extractor) Extract(ctx context.Context, counterpartyText string, baseline []models.BaselineItem, defaults Defaults) (models.StructuredOffer, []string) {
	prompt := e.buildPrompt(counterpartyText, baseline)

	var lastErr error
	for attempt := 1; attempt <= extractAttempts; attempt++ {
		var raw Raw
		err := llm.CompleteJSON(ctx, e.completer, llm.Request{
			Tier:   llm.TierFast,
			System: extractionSystem,
			Prompt: prompt,
		}, &raw)
		if err == nil {
			if err = validateRaw(raw); err == nil {
				return Normalize(raw, baseline, defaults)
			}
		}
		lastErr = err
		log.Printf("[normalizer] extraction attempt %d failed: %v", attempt, err)
	}

	log.Printf("[normalizer] extraction exhausted, using baseline synthetic offer: %v", lastErr)
	return BaselineOffer(baseline, defaults), []string{"extraction failed, synthetic baseline offer substituted"}
}

// validateRaw rejects extractions with no usable line items at all; the
// pipeline can correct bad numbers but not a fully empty parse.
func validateRaw(raw Raw) error {
	for _, item := range raw.Items {
		if item.SKU != "" {
			return nil
		}
	}
	return fmt.Errorf("extraction contains no line items with a SKU")
}

const extractionSystem = `You extract structured purchase offers from supplier negotiation messages.
Respond with a single JSON object and nothing else.`

// buildPrompt assembles the extraction prompt with the baseline SKU set so
// the model maps free-form item references onto known SKUs.
func (e *Extractor) buildPrompt(counterpartyText string, baseline []models.BaselineItem) string {
	var sb strings.Builder

	sb.WriteString("Extract the offer from this supplier message into JSON with this exact shape:\n")
	sb.WriteString(`{"total_cost": number, "items": [{"sku": string, "unit_price": number, "quantity": number}], "lead_time_days": number, "payment_terms": string, "concessions": [string], "conditions": [string]}`)
	sb.WriteString("\n\nKnown SKUs (map every quoted item to one of these):\n")
	for _, item := range baseline {
		fmt.Fprintf(&sb, "- %s: %s (qty %d)\n", item.SKU, item.Description, item.Quantity)
	}
	sb.WriteString("\nIf the message states only a total price, set total_cost and list items with that flat unit price.\n")
	sb.WriteString("Use 0 for numbers the message does not state.\n\nSupplier message:\n")
	sb.WriteString(counterpartyText)

	return sb.String()
}
