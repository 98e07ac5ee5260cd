package heuristic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/reallocation"
)

func tx(amount float64, category, date string) core.Transaction {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return core.Transaction{Amount: amount, Category: category, Date: d}
}

func TestAnalyzeAveragesPerMonth(t *testing.T) {
	a := New(Config{ShareThreshold: 30, SavingsPercent: 10})
	report, err := a.Analyze(context.Background(), []core.Transaction{
		tx(600, "Food", "2024-01-05"),
		tx(200, "Food", "2024-02-05"),
		tx(100, "Transport", "2024-01-10"),
		tx(100, "Transport", "2024-02-10"),
		tx(50, "", "2024-02-11"),
	})
	require.NoError(t, err)

	assert.Equal(t, core.CategorySummary{"Food": 400, "Transport": 100, core.DefaultCategory: 25}, report.CategorySummary)
	assert.Equal(t, 525.0, report.MonthlyPrediction.PredictedAmount)
	assert.Equal(t, []string{
		"Spending on 'Food' is 76.2% — reduce to 20-30%",
		"Set aside 10% for savings",
	}, report.Advice)
	assert.JSONEq(t, "5", string(report.Extra["transaction_count"]))
	assert.JSONEq(t, "2", string(report.Extra["months_observed"]))
	require.NoError(t, report.Validate())
}

func TestAnalyzeAdviceIsUnderstoodByEngine(t *testing.T) {
	a := New(Config{SavingsPercent: DefaultSavingsPercent})
	report, err := a.Analyze(context.Background(), []core.Transaction{
		tx(800, "Rent", "2024-03-01"),
		tx(200, "Food", "2024-03-02"),
	})
	require.NoError(t, err)

	d := reallocation.ParseAdvice(report.Advice)
	require.Len(t, d.Rebalances, 1)
	assert.Equal(t, "Rent", d.Rebalances[0].Category)
	assert.Equal(t, 20, d.Rebalances[0].LowPercent)
	assert.Equal(t, 30, d.Rebalances[0].HighPercent)
	require.Len(t, d.Savings, 1)
	assert.Equal(t, DefaultSavingsPercent, d.Savings[0].Percent)
}

func TestAnalyzeEmpty(t *testing.T) {
	report, err := New(Config{SavingsPercent: 0}).Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{noDataAdvice}, report.Advice)
	assert.Empty(t, report.CategorySummary)
	assert.Equal(t, 0.0, report.MonthlyPrediction.PredictedAmount)
	require.NoError(t, report.Validate())
}

func TestAnalyzeRejectsInvalidTransaction(t *testing.T) {
	_, err := New(Config{}).Analyze(context.Background(), []core.Transaction{{Amount: 1}})
	assert.ErrorIs(t, err, core.ErrMissingDate)
}

func TestAnalyzeHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Analyze(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
