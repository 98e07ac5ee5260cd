package reallocation

import (
	"context"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// Outcome records what a run did, for logging and for the preview endpoint.
type Outcome struct {
	Directives       Directives           `json:"directives"`
	Anomalies        []Anomaly            `json:"anomalies,omitempty"`
	BaselineAmount   float64              `json:"baseline_amount"`
	BaselineSummary  core.CategorySummary `json:"baseline_summary"`
	AdjustedSummary  core.CategorySummary `json:"adjusted_summary"`
	ProvisionalTotal float64              `json:"provisional_total"`
	DiscountedTotal  float64              `json:"discounted_total"`
	FinalAmount      float64              `json:"final_amount"`
}

// Engine runs the reallocation pipeline over a report. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	logger *log.Logger
}

// NewEngine builds an engine. A nil logger discards output.
func NewEngine(logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Discard()
	}
	return &Engine{logger: logger.WithComponent(log.ComponentReallocation)}
}

// Apply returns a copy of report with category_summary replaced by the
// adjusted summary and monthly_prediction.predicted_amount replaced by the
// recomputed total. Advice and pass-through fields are copied unchanged.
// The input report is not modified.
func (e *Engine) Apply(ctx context.Context, report core.Report) (core.Report, Outcome, error) {
	if err := report.Validate(); err != nil {
		return core.Report{}, Outcome{}, err
	}

	directives := ParseAdvice(report.Advice)
	anomalies := directives.Anomalies()
	for _, a := range anomalies {
		e.logger.WarnContext(ctx, "Suspicious advice directive applied as written",
			"anomaly", string(a.Kind),
			"line", a.Line,
			log.FieldCategory, a.Category,
			"detail", a.Detail,
		)
	}

	baseline := report.MonthlyPrediction.PredictedAmount
	adjusted := Reallocate(report.CategorySummary, directives.Rebalances, baseline)
	provisional := ProvisionalTotal(adjusted)
	discounted := ApplySavings(provisional, directives.Savings)
	final := RoundAmount(discounted)

	out := report.Clone()
	out.CategorySummary = adjusted
	out.MonthlyPrediction.PredictedAmount = final

	e.logger.DebugContext(ctx, "Report reallocated",
		log.NewFields().
			WithOperation(log.OpReallocate).
			WithPrediction(baseline, provisional, final, len(directives.Rebalances), len(directives.Savings), len(anomalies)).
			ToSlice()...,
	)

	return out, Outcome{
		Directives:       directives,
		Anomalies:        anomalies,
		BaselineAmount:   baseline,
		BaselineSummary:  report.CategorySummary.Clone(),
		AdjustedSummary:  adjusted.Clone(),
		ProvisionalTotal: provisional,
		DiscountedTotal:  discounted,
		FinalAmount:      final,
	}, nil
}
