// Package analysis defines the boundary to the financial-analysis
// collaborator and the decorators placed in front of it.
package analysis

import (
	"context"

	"fintrack/internal/core"
)

// Analyzer produces the baseline report for a list of transactions. The
// returned report must carry advice, category_summary and
// monthly_prediction.predicted_amount; implementations report a missing one
// with a *core.MissingFieldError.
type Analyzer interface {
	Analyze(ctx context.Context, txs []core.Transaction) (core.Report, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, txs []core.Transaction) (core.Report, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, txs []core.Transaction) (core.Report, error) {
	return f(ctx, txs)
}

// Named is implemented by analyzers that can describe themselves in logs
// and readiness output.
type Named interface {
	Name() string
}

// NameOf returns the analyzer's name, or "custom".
func NameOf(a Analyzer) string {
	if n, ok := a.(Named); ok {
		return n.Name()
	}
	return "custom"
}
