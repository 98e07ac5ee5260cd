// Package reallocation turns the free-text advice of an analysis report into
// structured directives and applies them to the report's category summary
// and monthly prediction.
//
// The pipeline is a chain of pure steps:
//
//	advice -> ParseAdvice -> Directives
//	category summary + Rebalances -> Reallocate -> adjusted summary
//	adjusted summary -> ProvisionalTotal -> ApplySavings -> RoundAmount
//
// Every step returns new values; inputs are never modified.
package reallocation

import "fmt"

// Kind tags what an advice line asks for.
type Kind int

const (
	// DirectiveInformational lines carry no actionable intent.
	DirectiveInformational Kind = iota
	DirectiveRebalance
	DirectiveSavings
)

func (k Kind) String() string {
	switch k {
	case DirectiveRebalance:
		return "rebalance"
	case DirectiveSavings:
		return "savings"
	default:
		return "informational"
	}
}

// RebalanceDirective asks for a category's share of total spend to be
// brought into the [LowPercent, HighPercent] band. The bounds are kept in
// the order they appeared in the text.
type RebalanceDirective struct {
	Category    string `json:"category"`
	LowPercent  int    `json:"low_percent"`
	HighPercent int    `json:"high_percent"`
	Line        int    `json:"line"`
}

// TargetRatio is the midpoint of the band as a fraction of one.
func (d RebalanceDirective) TargetRatio() float64 {
	return (float64(d.LowPercent) + float64(d.HighPercent)) / 2 / 100
}

// SavingsDirective asks for a flat percentage of predicted spend to be set
// aside.
type SavingsDirective struct {
	Percent int `json:"percent"`
	Line    int `json:"line"`
}

// Factor is the multiplier the directive applies to a running total.
func (d SavingsDirective) Factor() float64 {
	return 1 - float64(d.Percent)/100
}

// Directives holds everything extracted from one advice list, each slice in
// advice order.
type Directives struct {
	Rebalances []RebalanceDirective `json:"rebalances"`
	Savings    []SavingsDirective   `json:"savings"`
}

// Empty reports whether no actionable directive was found.
func (d Directives) Empty() bool {
	return len(d.Rebalances) == 0 && len(d.Savings) == 0
}

// Classification is the result of scanning a single advice line. A line may
// carry both a rebalance and a savings directive.
type Classification struct {
	Rebalance *RebalanceDirective
	Savings   *SavingsDirective
}

// Kinds lists the directive kinds found on the line, or
// DirectiveInformational alone when there are none.
func (c Classification) Kinds() []Kind {
	var kinds []Kind
	if c.Rebalance != nil {
		kinds = append(kinds, DirectiveRebalance)
	}
	if c.Savings != nil {
		kinds = append(kinds, DirectiveSavings)
	}
	if len(kinds) == 0 {
		kinds = append(kinds, DirectiveInformational)
	}
	return kinds
}

// AnomalyKind names a directive that was applied as written but falls
// outside the expected ranges.
type AnomalyKind string

const (
	AnomalyInvertedBand      AnomalyKind = "inverted_band"
	AnomalyPercentOutOfRange AnomalyKind = "percent_out_of_range"
)

// Anomaly describes a suspicious directive. Anomalies never block the
// computation.
type Anomaly struct {
	Kind     AnomalyKind `json:"kind"`
	Line     int         `json:"line"`
	Category string      `json:"category,omitempty"`
	Detail   string      `json:"detail"`
}

func (a Anomaly) String() string {
	if a.Category != "" {
		return fmt.Sprintf("line %d (%s): %s: %s", a.Line, a.Category, a.Kind, a.Detail)
	}
	return fmt.Sprintf("line %d: %s: %s", a.Line, a.Kind, a.Detail)
}

// Anomalies inspects the directives for inverted bands and percentages
// above 100.
func (d Directives) Anomalies() []Anomaly {
	var out []Anomaly
	for _, r := range d.Rebalances {
		if r.LowPercent > r.HighPercent {
			out = append(out, Anomaly{
				Kind:     AnomalyInvertedBand,
				Line:     r.Line,
				Category: r.Category,
				Detail:   fmt.Sprintf("low %d%% is above high %d%%", r.LowPercent, r.HighPercent),
			})
		}
		if r.LowPercent > 100 || r.HighPercent > 100 {
			out = append(out, Anomaly{
				Kind:     AnomalyPercentOutOfRange,
				Line:     r.Line,
				Category: r.Category,
				Detail:   fmt.Sprintf("band %d-%d%% exceeds 100%%", r.LowPercent, r.HighPercent),
			})
		}
	}
	for _, s := range d.Savings {
		if s.Percent > 100 {
			out = append(out, Anomaly{
				Kind:   AnomalyPercentOutOfRange,
				Line:   s.Line,
				Detail: fmt.Sprintf("savings %d%% exceeds 100%%", s.Percent),
			})
		}
	}
	return out
}
