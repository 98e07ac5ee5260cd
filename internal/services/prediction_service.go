package services

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/analysis"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/reallocation"
)

var (
	// ErrAnalysisFailed wraps every failure of the analysis collaborator,
	// including reports that lack a required field.
	ErrAnalysisFailed = errors.New("analysis failed")
	// ErrHistoryDisabled is returned by History when no store is configured.
	ErrHistoryDisabled = errors.New("history disabled")
)

// ValidationError reports an inbound transaction that cannot be analyzed.
type ValidationError struct {
	Index int
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("transaction %d: %v", e.Index, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PredictionStore persists prediction snapshots.
type PredictionStore interface {
	Record(ctx context.Context, rec core.PredictionRecord) (core.PredictionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]core.PredictionRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

// EventPublisher announces recorded predictions.
type EventPublisher interface {
	PublishPredictionRecorded(ctx context.Context, id int64, requestID string) error
	Close() error
}

// PredictionResult is what Predict and Preview return.
type PredictionResult struct {
	Report       core.Report
	Outcome      reallocation.Outcome
	PredictionID int64
}

// PredictionService runs the analysis collaborator and the reallocation
// engine, then records and announces the result when history is enabled.
type PredictionService struct {
	analyzer   analysis.Analyzer
	engine     *reallocation.Engine
	store      PredictionStore
	publisher  EventPublisher
	logger     *log.Logger
	structured *log.StructuredLogger
}

type PredictionOption func(*PredictionService)

// WithStore enables prediction history.
func WithStore(store PredictionStore) PredictionOption {
	return func(s *PredictionService) { s.store = store }
}

// WithPublisher enables prediction-recorded events. It only has an effect
// together with a store.
func WithPublisher(p EventPublisher) PredictionOption {
	return func(s *PredictionService) { s.publisher = p }
}

func NewPredictionService(analyzer analysis.Analyzer, engine *reallocation.Engine, logger *log.Logger, opts ...PredictionOption) *PredictionService {
	if logger == nil {
		logger = log.Discard()
	}
	if engine == nil {
		engine = reallocation.NewEngine(logger)
	}
	s := &PredictionService{
		analyzer:   analyzer,
		engine:     engine,
		logger:     logger.WithComponent(log.ComponentPrediction),
		structured: log.NewStructuredLogger(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HistoryEnabled reports whether predictions are recorded.
func (s *PredictionService) HistoryEnabled() bool {
	return s.store != nil
}

// AnalyzerName names the configured collaborator.
func (s *PredictionService) AnalyzerName() string {
	return analysis.NameOf(s.analyzer)
}

// Predict analyzes txs and reallocates the resulting report.
func (s *PredictionService) Predict(ctx context.Context, requestID string, txs []core.Transaction) (PredictionResult, error) {
	for i, tx := range txs {
		if err := tx.Validate(); err != nil {
			return PredictionResult{}, &ValidationError{Index: i, Err: err}
		}
	}

	baseline, err := s.analyzer.Analyze(ctx, txs)
	if err != nil {
		s.structured.LogError(ctx, "Analysis collaborator failed", err, log.ComponentAnalysis, log.OpAnalyze,
			log.NewFields().WithRequestID(requestID))
		return PredictionResult{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	report, outcome, err := s.engine.Apply(ctx, baseline)
	if err != nil {
		if errors.Is(err, core.ErrMissingAnalysisField) {
			return PredictionResult{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
		}
		return PredictionResult{}, fmt.Errorf("reallocate: %w", err)
	}

	result := PredictionResult{Report: report, Outcome: outcome}
	result.PredictionID = s.record(ctx, requestID, len(txs), report, outcome)

	s.structured.LogPrediction(ctx, requestID, outcome.BaselineAmount, outcome.ProvisionalTotal,
		outcome.FinalAmount, len(outcome.Directives.Rebalances), len(outcome.Directives.Savings), len(outcome.Anomalies))

	return result, nil
}

// Preview runs the engine on a report supplied by the caller. Nothing is
// recorded.
func (s *PredictionService) Preview(ctx context.Context, requestID string, baseline core.Report) (PredictionResult, error) {
	report, outcome, err := s.engine.Apply(ctx, baseline)
	if err != nil {
		return PredictionResult{}, err
	}
	s.logger.DebugContext(ctx, "Preview computed", log.FieldRequestID, requestID, log.FieldFinalAmount, outcome.FinalAmount)
	return PredictionResult{Report: report, Outcome: outcome}, nil
}

// History returns the most recent recorded predictions.
func (s *PredictionService) History(ctx context.Context, limit int) ([]core.PredictionRecord, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	return s.store.ListRecent(ctx, limit)
}

// Ready checks the optional store.
func (s *PredictionService) Ready(ctx context.Context) error {
	if s.analyzer == nil {
		return errors.New("no analyzer configured")
	}
	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			return fmt.Errorf("history store: %w", err)
		}
	}
	return nil
}

// record saves the snapshot and publishes the event. Failures are logged
// and never fail the request; the returned id is zero when nothing was
// saved.
func (s *PredictionService) record(ctx context.Context, requestID string, txCount int, report core.Report, outcome reallocation.Outcome) int64 {
	if s.store == nil {
		return 0
	}

	saved, err := s.store.Record(ctx, core.PredictionRecord{
		RequestID:        requestID,
		Analyzer:         s.AnalyzerName(),
		TransactionCount: txCount,
		BaselineAmount:   outcome.BaselineAmount,
		ProvisionalTotal: outcome.ProvisionalTotal,
		FinalAmount:      outcome.FinalAmount,
		RebalanceCount:   len(outcome.Directives.Rebalances),
		SavingsCount:     len(outcome.Directives.Savings),
		AnomalyCount:     len(outcome.Anomalies),
		Advice:           report.Advice,
		Categories:       report.CategorySummary,
	})
	if err != nil {
		s.structured.LogError(ctx, "Failed to record prediction", err, log.ComponentStorage, log.OpCreate,
			log.NewFields().WithRequestID(requestID))
		return 0
	}

	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not available, skipping prediction event", log.FieldPredictionID, saved.ID)
		return saved.ID
	}
	if err := s.publisher.PublishPredictionRecorded(ctx, saved.ID, requestID); err != nil {
		s.structured.LogError(ctx, "Failed to publish prediction event", err, log.ComponentAMQP, log.OpPublish,
			log.NewFields().WithRequestID(requestID))
	}
	return saved.ID
}

// Close closes the store and the publisher.
func (s *PredictionService) Close() error {
	var errs []error

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	return errors.Join(errs...)
}
