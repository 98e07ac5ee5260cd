package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/analysis"
	"fintrack/internal/core"
)

type fakeStore struct {
	mu        sync.Mutex
	records   []core.PredictionRecord
	recordErr error
	pingErr   error
	closed    bool
}

func (f *fakeStore) Record(_ context.Context, rec core.PredictionRecord) (core.PredictionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return core.PredictionRecord{}, f.recordErr
	}
	rec.ID = int64(len(f.records) + 1)
	rec.SyncStatus = core.SyncPending
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeStore) ListRecent(_ context.Context, limit int) ([]core.PredictionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.PredictionRecord
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.records[i])
	}
	return out, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []int64
	err       error
	closed    bool
}

func (f *fakePublisher) PublishPredictionRecorded(_ context.Context, id int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func fixedAnalyzer(report core.Report, err error) analysis.Analyzer {
	return analysis.AnalyzerFunc(func(context.Context, []core.Transaction) (core.Report, error) {
		return report.Clone(), err
	})
}

func baselineReport() core.Report {
	return core.Report{
		Advice:            []string{"Spending on 'Food' is 40% — reduce to 20-30%", "Set aside 10% for savings"},
		CategorySummary:   core.CategorySummary{"Food": 400, "Transport": 100},
		MonthlyPrediction: core.MonthlyPrediction{PredictedAmount: 1000},
	}
}

func transactions() []core.Transaction {
	return []core.Transaction{{Amount: 10, Category: "Food", Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}
}

func TestPredictWithoutHistory(t *testing.T) {
	svc := NewPredictionService(fixedAnalyzer(baselineReport(), nil), nil, nil)

	res, err := svc.Predict(context.Background(), "req-1", transactions())
	require.NoError(t, err)
	assert.Equal(t, 315.0, res.Report.MonthlyPrediction.PredictedAmount)
	assert.Equal(t, core.CategorySummary{"Food": 250, "Transport": 100}, res.Report.CategorySummary)
	assert.Zero(t, res.PredictionID)
	assert.False(t, svc.HistoryEnabled())

	_, err = svc.History(context.Background(), 10)
	assert.ErrorIs(t, err, ErrHistoryDisabled)
}

func TestPredictRecordsAndPublishes(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	svc := NewPredictionService(fixedAnalyzer(baselineReport(), nil), nil, nil, WithStore(store), WithPublisher(pub))

	res, err := svc.Predict(context.Background(), "req-1", transactions())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.PredictionID)

	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, "req-1", rec.RequestID)
	assert.Equal(t, "custom", rec.Analyzer)
	assert.Equal(t, 1, rec.TransactionCount)
	assert.Equal(t, 1000.0, rec.BaselineAmount)
	assert.Equal(t, 315.0, rec.FinalAmount)
	assert.Equal(t, 1, rec.RebalanceCount)
	assert.Equal(t, 1, rec.SavingsCount)
	assert.Equal(t, []int64{1}, pub.published)

	history, err := svc.History(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestPredictSurvivesRecordingFailures(t *testing.T) {
	store := &fakeStore{recordErr: errors.New("disk full")}
	pub := &fakePublisher{}
	svc := NewPredictionService(fixedAnalyzer(baselineReport(), nil), nil, nil, WithStore(store), WithPublisher(pub))

	res, err := svc.Predict(context.Background(), "req-1", transactions())
	require.NoError(t, err)
	assert.Zero(t, res.PredictionID)
	assert.Empty(t, pub.published)

	store.recordErr = nil
	pub.err = errors.New("broker down")
	res, err = svc.Predict(context.Background(), "req-2", transactions())
	require.NoError(t, err)
	assert.NotZero(t, res.PredictionID)
}

func TestPredictAnalysisFailure(t *testing.T) {
	boom := errors.New("upstream exploded")
	svc := NewPredictionService(fixedAnalyzer(core.Report{}, boom), nil, nil)

	_, err := svc.Predict(context.Background(), "req-1", transactions())
	assert.ErrorIs(t, err, ErrAnalysisFailed)
	assert.ErrorIs(t, err, boom)
}

func TestPredictMissingAnalysisField(t *testing.T) {
	report := baselineReport()
	report.Advice = nil
	svc := NewPredictionService(fixedAnalyzer(report, nil), nil, nil)

	_, err := svc.Predict(context.Background(), "req-1", transactions())
	assert.ErrorIs(t, err, ErrAnalysisFailed)
	assert.ErrorIs(t, err, core.ErrMissingAnalysisField)
}

func TestPredictRejectsInvalidTransactions(t *testing.T) {
	called := false
	svc := NewPredictionService(analysis.AnalyzerFunc(func(context.Context, []core.Transaction) (core.Report, error) {
		called = true
		return baselineReport(), nil
	}), nil, nil)

	txs := append(transactions(), core.Transaction{Amount: 5})
	_, err := svc.Predict(context.Background(), "req-1", txs)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 1, ve.Index)
	assert.ErrorIs(t, err, core.ErrMissingDate)
	assert.False(t, called)
}

func TestPreviewDoesNotRecord(t *testing.T) {
	store := &fakeStore{}
	svc := NewPredictionService(fixedAnalyzer(core.Report{}, errors.New("unused")), nil, nil, WithStore(store))

	res, err := svc.Preview(context.Background(), "req-1", baselineReport())
	require.NoError(t, err)
	assert.Equal(t, 315.0, res.Report.MonthlyPrediction.PredictedAmount)
	assert.Empty(t, store.records)
}

func TestReady(t *testing.T) {
	store := &fakeStore{}
	svc := NewPredictionService(fixedAnalyzer(baselineReport(), nil), nil, nil, WithStore(store))
	require.NoError(t, svc.Ready(context.Background()))

	store.pingErr = errors.New("locked")
	assert.Error(t, svc.Ready(context.Background()))

	assert.Error(t, NewPredictionService(nil, nil, nil).Ready(context.Background()))
}

func TestClose(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	svc := NewPredictionService(fixedAnalyzer(baselineReport(), nil), nil, nil, WithStore(store), WithPublisher(pub))

	require.NoError(t, svc.Close())
	assert.True(t, store.closed)
	assert.True(t, pub.closed)

	require.NoError(t, NewPredictionService(nil, nil, nil).Close())
}
