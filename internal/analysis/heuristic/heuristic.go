// Package heuristic is a built-in analysis collaborator. It averages spend
// per calendar month and phrases its advice the way the reallocation
// engine parses it, so the service runs without a remote analysis service.
package heuristic

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"fintrack/internal/core"
)

const (
	DefaultShareThreshold = 30.0
	DefaultSavingsPercent = 10
	// bandWidth is the width in points of the suggested target band.
	bandWidth = 10

	noDataAdvice = "Not enough transactions to analyze spending yet"
)

type Config struct {
	// ShareThreshold is the share of monthly spend, in percent, above which
	// a category gets a rebalance line.
	ShareThreshold float64
	// SavingsPercent is the savings line's percentage; zero disables it.
	SavingsPercent int
}

type Analyzer struct {
	cfg Config
}

func New(cfg Config) *Analyzer {
	if cfg.ShareThreshold <= 0 || cfg.ShareThreshold > 100 {
		cfg.ShareThreshold = DefaultShareThreshold
	}
	if cfg.SavingsPercent < 0 || cfg.SavingsPercent > 100 {
		cfg.SavingsPercent = DefaultSavingsPercent
	}
	return &Analyzer{cfg: cfg}
}

func (a *Analyzer) Name() string { return "heuristic" }

// Analyze builds a report whose category summary holds the average monthly
// spend per category and whose prediction is the sum of those averages.
func (a *Analyzer) Analyze(ctx context.Context, txs []core.Transaction) (core.Report, error) {
	if err := ctx.Err(); err != nil {
		return core.Report{}, err
	}

	totals := make(core.CategorySummary)
	months := make(map[string]struct{})
	for i, tx := range txs {
		if err := tx.Validate(); err != nil {
			return core.Report{}, fmt.Errorf("transaction %d: %w", i, err)
		}
		totals[tx.CategoryName()] += tx.Amount
		months[tx.Date.Format("2006-01")] = struct{}{}
	}

	report := core.Report{
		Advice:          []string{},
		CategorySummary: core.CategorySummary{},
		MonthlyPrediction: core.MonthlyPrediction{
			Extra: map[string]json.RawMessage{
				"method": json.RawMessage(`"monthly_average"`),
			},
		},
		Extra: map[string]json.RawMessage{
			"transaction_count": rawInt(len(txs)),
			"months_observed":   rawInt(len(months)),
		},
	}

	if len(txs) == 0 {
		report.Advice = append(report.Advice, noDataAdvice)
		return report, nil
	}

	n := float64(len(months))
	for _, name := range totals.Names() {
		report.CategorySummary[name] = round2(totals[name] / n)
	}
	predicted := report.CategorySummary.Total()
	report.MonthlyPrediction.PredictedAmount = round2(predicted)

	if predicted > 0 {
		high := int(math.Floor(a.cfg.ShareThreshold))
		low := high - bandWidth
		if low < 0 {
			low = 0
		}
		for _, name := range report.CategorySummary.Names() {
			share := report.CategorySummary[name] / predicted * 100
			if share <= a.cfg.ShareThreshold {
				continue
			}
			report.Advice = append(report.Advice,
				fmt.Sprintf("Spending on '%s' is %.1f%% — reduce to %d-%d%%", name, share, low, high))
		}
	}
	if a.cfg.SavingsPercent > 0 {
		report.Advice = append(report.Advice, fmt.Sprintf("Set aside %d%% for savings", a.cfg.SavingsPercent))
	}

	return report, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func rawInt(n int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf("%d", n))
}
