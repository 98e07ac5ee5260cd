package reallocation

import "fintrack/internal/core"

// Reallocate applies the rebalance directives to baseline against
// currentTotal and returns a new summary. Each named category becomes
// TargetRatio * currentTotal; when a category is named more than once the
// last directive wins. Categories missing from baseline are added.
// Unnamed categories keep their baseline amount.
func Reallocate(baseline core.CategorySummary, rebalances []RebalanceDirective, currentTotal float64) core.CategorySummary {
	adjusted := make(core.CategorySummary, len(baseline)+len(rebalances))
	for name, amount := range baseline {
		adjusted[name] = amount
	}
	for _, d := range rebalances {
		adjusted[d.Category] = d.TargetRatio() * currentTotal
	}
	return adjusted
}
