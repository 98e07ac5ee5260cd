// Package worker exports recorded predictions to the configured sheet,
// driven by prediction-recorded messages and a periodic sweep of rows the
// messages missed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// RecordStore is the part of the prediction history the worker needs.
type RecordStore interface {
	Get(ctx context.Context, id int64) (core.PredictionRecord, error)
	GetPendingSync(ctx context.Context, limit int) ([]core.PredictionRecord, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

// ExportWorker handles exporting predictions from SQLite to a sheet.
type ExportWorker struct {
	store     RecordStore
	exporter  sheets.PredictionExporter
	batchSize int
	logger    *log.Logger
}

func NewExportWorker(store RecordStore, exporter sheets.PredictionExporter, batchSize int, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	if batchSize < 1 {
		batchSize = 10
	}
	return &ExportWorker{
		store:     store,
		exporter:  exporter,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleRecordedMessage exports the prediction named by msg. A message for
// a prediction that no longer exists is acknowledged and dropped.
func (w *ExportWorker) HandleRecordedMessage(ctx context.Context, msg *amqp.PredictionRecordedMessage) error {
	w.logger.InfoContext(ctx, "Processing prediction message",
		log.FieldPredictionID, msg.ID,
		log.FieldRequestID, msg.RequestID)

	rec, err := w.store.Get(ctx, msg.ID)
	if errors.Is(err, storage.ErrNotFound) {
		w.logger.WarnContext(ctx, "Prediction not found, dropping message",
			log.FieldPredictionID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get prediction from storage: %w", err)
	}

	if rec.SyncStatus == core.SyncSynced {
		w.logger.DebugContext(ctx, "Prediction already exported", log.FieldPredictionID, msg.ID)
		return nil
	}

	if err := w.export(ctx, rec); err != nil {
		return fmt.Errorf("export prediction: %w", err)
	}
	return nil
}

// ProcessPending exports up to one batch of pending predictions. It is the
// backup path for lost messages. It returns how many were exported.
func (w *ExportWorker) ProcessPending(ctx context.Context) (int, error) {
	return w.processPending(ctx, w.batchSize)
}

// StartupSyncCheck sweeps a larger batch once at worker startup to recover
// from downtime.
func (w *ExportWorker) StartupSyncCheck(ctx context.Context) error {
	exported, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup sync completed", log.FieldCount, exported)
	return nil
}

func (w *ExportWorker) processPending(ctx context.Context, limit int) (int, error) {
	pending, err := w.store.GetPendingSync(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending predictions: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending predictions", log.FieldCount, len(pending))

	exported := 0
	for _, rec := range pending {
		if ctx.Err() != nil {
			return exported, ctx.Err()
		}
		if err := w.export(ctx, rec); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export prediction",
				log.FieldPredictionID, rec.ID,
				log.FieldError, err)
			continue
		}
		exported++
	}
	return exported, nil
}

func (w *ExportWorker) export(ctx context.Context, rec core.PredictionRecord) error {
	start := time.Now()
	ref, err := w.exporter.Export(ctx, rec)
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, rec.ID); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error",
				log.FieldPredictionID, rec.ID,
				log.FieldError, markErr)
		}
		return err
	}

	// The row is written; a failed status update only means a later
	// sweep may export it again.
	if err := w.store.MarkSynced(ctx, rec.ID); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark as synced",
			log.FieldPredictionID, rec.ID,
			log.FieldError, err)
	}

	w.logger.InfoContext(ctx, "Prediction exported",
		log.FieldPredictionID, rec.ID,
		"sheets_ref", ref,
		log.FieldFinalAmount, rec.FinalAmount,
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}
