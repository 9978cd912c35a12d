package decision

import (
	"strconv"
	"strings"
	"unicode"
)

// defaultNetDays is assumed when payment terms cannot be parsed.
const defaultNetDays = 30

// paymentNetDays parses payment terms like "Net 30", "net45", or
// "2/10 Net 60" into the net payment window in days.
func paymentNetDays(terms string) int {
	lower := strings.ToLower(terms)
	idx := strings.Index(lower, "net")
	if idx == -1 {
		return defaultNetDays
	}

	rest := lower[idx+len("net"):]
	start := -1
	for i, r := range rest {
		if unicode.IsDigit(r) {
			start = i
			break
		}
		if r != ' ' && r != '-' {
			return defaultNetDays
		}
	}
	if start == -1 {
		return defaultNetDays
	}

	end := start
	for end < len(rest) && unicode.IsDigit(rune(rest[end])) {
		end++
	}

	days, err := strconv.Atoi(rest[start:end])
	if err != nil || days <= 0 {
		return defaultNetDays
	}
	return days
}

// landedCost is the FOB cost plus the time-value-of-money cost implied by
// payment-term timing over the delivery lead time. Paying after delivery
// (net window longer than the lead time) earns a financing credit.
func landedCost(fob float64, leadTimeDays, netDays int, annualRate float64) float64 {
	financingDays := float64(leadTimeDays - netDays)
	return fob * (1 + annualRate*financingDays/365)
}
