package reallocation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		rebalance *RebalanceDirective
		savings   *SavingsDirective
	}{
		{
			name:      "rebalance em dash",
			line:      "Spending on 'Food' is 40% — reduce to 20-30%",
			rebalance: &RebalanceDirective{Category: "Food", LowPercent: 20, HighPercent: 30},
		},
		{
			name:      "rebalance hyphen and decimal share",
			line:      "Spending on 'Ăn uống' is 42.5% - reduce to 25-35%",
			rebalance: &RebalanceDirective{Category: "Ăn uống", LowPercent: 25, HighPercent: 35},
		},
		{
			name:      "rebalance vietnamese",
			line:      "Chi tiêu 'Ăn uống' chiếm 45.2% — nên giảm xuống 30-35%",
			rebalance: &RebalanceDirective{Category: "Ăn uống", LowPercent: 30, HighPercent: 35},
		},
		{
			name:      "inverted band kept as written",
			line:      "Spending on 'Food' is 40% — reduce to 30-20%",
			rebalance: &RebalanceDirective{Category: "Food", LowPercent: 30, HighPercent: 20},
		},
		{
			name:    "savings",
			line:    "Set aside 10% for savings",
			savings: &SavingsDirective{Percent: 10},
		},
		{
			name:    "savings vietnamese",
			line:    "Hãy dành 20% để tiết kiệm",
			savings: &SavingsDirective{Percent: 20},
		},
		{
			name:      "both on one line",
			line:      "Spending on 'Rent' is 50% — reduce to 30-40%. Set aside 5% for savings",
			rebalance: &RebalanceDirective{Category: "Rent", LowPercent: 30, HighPercent: 40},
			savings:   &SavingsDirective{Percent: 5},
		},
		{name: "informational", line: "Great job keeping transport costs low"},
		{name: "empty", line: ""},
		{name: "missing band", line: "Spending on 'Food' is 40% — reduce it"},
		{name: "non integer savings", line: "Set aside 7.5% for savings"},
		{name: "overflowing digits", line: "Set aside 99999999999999999999999% for savings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyLine(0, tt.line)
			assert.Equal(t, tt.rebalance, got.Rebalance)
			assert.Equal(t, tt.savings, got.Savings)
		})
	}
}

func TestClassificationKinds(t *testing.T) {
	c := ClassifyLine(0, "nothing to see")
	assert.Equal(t, []Kind{DirectiveInformational}, c.Kinds())

	c = ClassifyLine(0, "Spending on 'Rent' is 50% — reduce to 30-40%; Set aside 5% for savings")
	assert.Equal(t, []Kind{DirectiveRebalance, DirectiveSavings}, c.Kinds())
	assert.Equal(t, "savings", DirectiveSavings.String())
}

func TestParseAdviceKeepsOrderAndLineIndex(t *testing.T) {
	advice := []string{
		"Set aside 10% for savings",
		"Spending on 'Food' is 40% — reduce to 20-30%",
		"Keep it up",
		"Set aside 5% for savings",
		"Spending on 'Food' is 40% — reduce to 10-20%",
	}

	got := ParseAdvice(advice)
	want := Directives{
		Rebalances: []RebalanceDirective{
			{Category: "Food", LowPercent: 20, HighPercent: 30, Line: 1},
			{Category: "Food", LowPercent: 10, HighPercent: 20, Line: 4},
		},
		Savings: []SavingsDirective{
			{Percent: 10, Line: 0},
			{Percent: 5, Line: 3},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ParseAdvice mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAdviceEmpty(t *testing.T) {
	require.True(t, ParseAdvice(nil).Empty())
	require.True(t, ParseAdvice([]string{"hello"}).Empty())
}

func TestDirectiveAnomalies(t *testing.T) {
	d := Directives{
		Rebalances: []RebalanceDirective{
			{Category: "Food", LowPercent: 30, HighPercent: 20, Line: 0},
			{Category: "Rent", LowPercent: 90, HighPercent: 120, Line: 1},
			{Category: "Fun", LowPercent: 5, HighPercent: 10, Line: 2},
		},
		Savings: []SavingsDirective{{Percent: 150, Line: 3}, {Percent: 10, Line: 4}},
	}

	got := d.Anomalies()
	require.Len(t, got, 3)
	assert.Equal(t, AnomalyInvertedBand, got[0].Kind)
	assert.Equal(t, "Food", got[0].Category)
	assert.Equal(t, AnomalyPercentOutOfRange, got[1].Kind)
	assert.Equal(t, 1, got[1].Line)
	assert.Equal(t, AnomalyPercentOutOfRange, got[2].Kind)
	assert.Equal(t, 3, got[2].Line)
	assert.Contains(t, got[0].String(), "inverted_band")
}

func TestTargetRatio(t *testing.T) {
	assert.Equal(t, 0.25, RebalanceDirective{LowPercent: 20, HighPercent: 30}.TargetRatio())
	assert.Equal(t, 0.25, RebalanceDirective{LowPercent: 30, HighPercent: 20}.TargetRatio())
	assert.Equal(t, 0.0, RebalanceDirective{}.TargetRatio())
}
