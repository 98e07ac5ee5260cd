package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// Field names of the analysis collaborator contract.
const (
	FieldAdvice            = "advice"
	FieldCategorySummary   = "category_summary"
	FieldMonthlyPrediction = "monthly_prediction"
	FieldPredictedAmount   = "predicted_amount"
)

// ErrMissingAnalysisField is returned when the analysis collaborator omits
// one of the fields the reallocation engine consumes.
var ErrMissingAnalysisField = errors.New("missing analysis field")

// MissingFieldError names the absent field. It unwraps to
// ErrMissingAnalysisField.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingAnalysisField, e.Field)
}

func (e *MissingFieldError) Unwrap() error {
	return ErrMissingAnalysisField
}

// CategorySummary maps a category name to an aggregate amount. Names are
// compared byte for byte, so case and accents matter.
type CategorySummary map[string]float64

// Clone returns an independent copy. A nil summary clones to nil.
func (s CategorySummary) Clone() CategorySummary {
	if s == nil {
		return nil
	}
	out := make(CategorySummary, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Names returns the category names in sorted order.
func (s CategorySummary) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Total sums the amounts in name order so the result does not depend on
// map iteration order.
func (s CategorySummary) Total() float64 {
	var total float64
	for _, name := range s.Names() {
		total += s[name]
	}
	return total
}

// MonthlyPrediction is the collaborator's prediction block. Fields other
// than predicted_amount are kept verbatim in Extra.
type MonthlyPrediction struct {
	PredictedAmount float64
	Extra           map[string]json.RawMessage
}

// Report is the collaborator output and, after reallocation, the response
// body. Unknown top-level fields are kept verbatim in Extra.
type Report struct {
	Advice            []string
	CategorySummary   CategorySummary
	MonthlyPrediction MonthlyPrediction
	Extra             map[string]json.RawMessage
}

// DecodeReport parses collaborator JSON. advice, category_summary and
// monthly_prediction.predicted_amount must all be present and non-null;
// otherwise a *MissingFieldError is returned and nothing is defaulted.
func DecodeReport(data []byte) (Report, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return Report{}, fmt.Errorf("decode analysis report: %w", err)
	}
	if top == nil {
		return Report{}, &MissingFieldError{Field: FieldAdvice}
	}

	var report Report

	adviceRaw, ok := present(top, FieldAdvice)
	if !ok {
		return Report{}, &MissingFieldError{Field: FieldAdvice}
	}
	if err := json.Unmarshal(adviceRaw, &report.Advice); err != nil {
		return Report{}, fmt.Errorf("decode %s: %w", FieldAdvice, err)
	}

	summaryRaw, ok := present(top, FieldCategorySummary)
	if !ok {
		return Report{}, &MissingFieldError{Field: FieldCategorySummary}
	}
	if err := json.Unmarshal(summaryRaw, &report.CategorySummary); err != nil {
		return Report{}, fmt.Errorf("decode %s: %w", FieldCategorySummary, err)
	}

	predictionRaw, ok := present(top, FieldMonthlyPrediction)
	if !ok {
		return Report{}, &MissingFieldError{Field: FieldMonthlyPrediction + "." + FieldPredictedAmount}
	}
	var prediction map[string]json.RawMessage
	if err := json.Unmarshal(predictionRaw, &prediction); err != nil {
		return Report{}, fmt.Errorf("decode %s: %w", FieldMonthlyPrediction, err)
	}
	amountRaw, ok := present(prediction, FieldPredictedAmount)
	if !ok {
		return Report{}, &MissingFieldError{Field: FieldMonthlyPrediction + "." + FieldPredictedAmount}
	}
	if err := json.Unmarshal(amountRaw, &report.MonthlyPrediction.PredictedAmount); err != nil {
		return Report{}, fmt.Errorf("decode %s.%s: %w", FieldMonthlyPrediction, FieldPredictedAmount, err)
	}

	delete(prediction, FieldPredictedAmount)
	if len(prediction) > 0 {
		report.MonthlyPrediction.Extra = prediction
	}

	delete(top, FieldAdvice)
	delete(top, FieldCategorySummary)
	delete(top, FieldMonthlyPrediction)
	if len(top) > 0 {
		report.Extra = top
	}

	return report, nil
}

func present(m map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := m[key]
	if !ok {
		return nil, false
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

// UnmarshalJSON decodes through DecodeReport.
func (r *Report) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeReport(data)
	if err != nil {
		return err
	}
	*r = decoded
	return nil
}

// MarshalJSON writes the three contract fields on top of the pass-through
// fields.
func (r Report) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+3)
	for k, v := range r.Extra {
		out[k] = v
	}

	advice := r.Advice
	if advice == nil {
		advice = []string{}
	}
	summary := r.CategorySummary
	if summary == nil {
		summary = CategorySummary{}
	}
	out[FieldAdvice] = advice
	out[FieldCategorySummary] = summary
	out[FieldMonthlyPrediction] = r.MonthlyPrediction
	return json.Marshal(out)
}

func (p MonthlyPrediction) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+1)
	for k, v := range p.Extra {
		out[k] = v
	}
	out[FieldPredictedAmount] = p.PredictedAmount
	return json.Marshal(out)
}

// Validate checks that a report built in-process carries the fields the
// engine needs. Decoded reports already satisfy it.
func (r Report) Validate() error {
	if r.Advice == nil {
		return &MissingFieldError{Field: FieldAdvice}
	}
	if r.CategorySummary == nil {
		return &MissingFieldError{Field: FieldCategorySummary}
	}
	amount := r.MonthlyPrediction.PredictedAmount
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("invalid %s.%s: %v", FieldMonthlyPrediction, FieldPredictedAmount, amount)
	}
	return nil
}

// Clone deep-copies the report so a cached baseline is never mutated by a
// request.
func (r Report) Clone() Report {
	out := Report{
		CategorySummary: r.CategorySummary.Clone(),
		MonthlyPrediction: MonthlyPrediction{
			PredictedAmount: r.MonthlyPrediction.PredictedAmount,
			Extra:           cloneRaw(r.MonthlyPrediction.Extra),
		},
		Extra: cloneRaw(r.Extra),
	}
	if r.Advice != nil {
		out.Advice = append([]string{}, r.Advice...)
	}
	return out
}

func cloneRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
