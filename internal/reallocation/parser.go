package reallocation

import (
	"regexp"
	"strconv"
)

// Rebalance lines name the category in single quotes, state its current
// share and give a LOW-HIGH target band. The dash before "reduce" may be an
// em dash, en dash or hyphen.
var rebalancePatterns = []*regexp.Regexp{
	regexp.MustCompile(`Spending on '(.+?)' is [\d.]+% [—–-] reduce to (\d+)-(\d+)%`),
	regexp.MustCompile(`Chi tiêu '(.+?)' chiếm [\d.]+% [—–-] nên giảm xuống (\d+)-(\d+)%`),
}

var savingsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Set aside (\d+)% for savings`),
	regexp.MustCompile(`Hãy dành (\d+)% để tiết kiệm`),
}

// ClassifyLine extracts at most one rebalance and at most one savings
// directive from line. index is recorded on the directives so anomalies can
// point back at the advice list.
func ClassifyLine(index int, line string) Classification {
	var c Classification

	for _, re := range rebalancePatterns {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		low, errLow := strconv.Atoi(m[2])
		high, errHigh := strconv.Atoi(m[3])
		if errLow != nil || errHigh != nil {
			// Digits too long for an int: treated as no match.
			continue
		}
		c.Rebalance = &RebalanceDirective{
			Category:    m[1],
			LowPercent:  low,
			HighPercent: high,
			Line:        index,
		}
		break
	}

	for _, re := range savingsPatterns {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		percent, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		c.Savings = &SavingsDirective{Percent: percent, Line: index}
		break
	}

	return c
}

// ParseAdvice classifies every line and collects the directives in advice
// order. Lines without a directive are simply skipped.
func ParseAdvice(advice []string) Directives {
	var d Directives
	for i, line := range advice {
		c := ClassifyLine(i, line)
		if c.Rebalance != nil {
			d.Rebalances = append(d.Rebalances, *c.Rebalance)
		}
		if c.Savings != nil {
			d.Savings = append(d.Savings, *c.Savings)
		}
	}
	return d
}
