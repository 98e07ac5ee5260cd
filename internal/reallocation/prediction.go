package reallocation

import (
	"math"

	"fintrack/internal/core"
)

// ProvisionalTotal sums the adjusted summary.
func ProvisionalTotal(adjusted core.CategorySummary) float64 {
	return adjusted.Total()
}

// ApplySavings discounts total by each savings directive in order. The
// discounts compound: 10% then 5% leaves 85.5%, not 85%.
func ApplySavings(total float64, savings []SavingsDirective) float64 {
	for _, s := range savings {
		total *= s.Factor()
	}
	return total
}

// RoundAmount rounds to the nearest whole unit, halves away from zero.
func RoundAmount(v float64) float64 {
	return math.Round(v)
}
