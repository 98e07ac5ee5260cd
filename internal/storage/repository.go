// Package storage keeps the prediction history in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a prediction id does not exist.
var ErrNotFound = errors.New("prediction not found")

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger.WithComponent(log.ComponentStorage),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Record stores a snapshot and returns it with ID, CreatedAt and SyncStatus
// filled in.
func (r *SQLiteRepository) Record(ctx context.Context, rec core.PredictionRecord) (core.PredictionRecord, error) {
	advice := rec.Advice
	if advice == nil {
		advice = []string{}
	}
	adviceJSON, err := json.Marshal(advice)
	if err != nil {
		return core.PredictionRecord{}, fmt.Errorf("encode advice: %w", err)
	}
	categories := rec.Categories
	if categories == nil {
		categories = core.CategorySummary{}
	}
	categoriesJSON, err := json.Marshal(categories)
	if err != nil {
		return core.PredictionRecord{}, fmt.Errorf("encode categories: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	row, err := r.queries.CreatePrediction(ctx, CreatePredictionParams{
		RequestID:        rec.RequestID,
		Analyzer:         rec.Analyzer,
		TransactionCount: int64(rec.TransactionCount),
		BaselineAmount:   rec.BaselineAmount,
		ProvisionalTotal: rec.ProvisionalTotal,
		FinalAmount:      rec.FinalAmount,
		RebalanceCount:   int64(rec.RebalanceCount),
		SavingsCount:     int64(rec.SavingsCount),
		AnomalyCount:     int64(rec.AnomalyCount),
		AdviceJSON:       string(adviceJSON),
		CategoriesJSON:   string(categoriesJSON),
		CreatedAt:        createdAt.UTC().Format(timeLayout),
	})
	if err != nil {
		return core.PredictionRecord{}, fmt.Errorf("create prediction: %w", err)
	}

	r.logger.DebugContext(ctx, "Prediction saved to SQLite",
		log.FieldPredictionID, row.ID,
		log.FieldRequestID, row.RequestID,
		log.FieldFinalAmount, row.FinalAmount)

	return toRecord(row)
}

// Get returns one prediction or ErrNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, id int64) (core.PredictionRecord, error) {
	row, err := r.queries.GetPrediction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PredictionRecord{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return core.PredictionRecord{}, fmt.Errorf("get prediction %d: %w", id, err)
	}
	return toRecord(row)
}

// ListRecent returns up to limit predictions, newest first.
func (r *SQLiteRepository) ListRecent(ctx context.Context, limit int) ([]core.PredictionRecord, error) {
	rows, err := r.queries.ListRecentPredictions(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	return toRecords(rows)
}

// GetPendingSync returns up to limit unsynced predictions, oldest first.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]core.PredictionRecord, error) {
	rows, err := r.queries.GetPendingSyncPredictions(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending predictions: %w", err)
	}
	return toRecords(rows)
}

// MarkSynced marks a prediction as exported.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	n, err := r.queries.MarkPredictionSynced(ctx, r.now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("mark prediction %d synced: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// MarkSyncError marks a prediction whose export failed.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	n, err := r.queries.MarkPredictionSyncError(ctx, id)
	if err != nil {
		return fmt.Errorf("mark prediction %d sync error: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// SyncCounts returns the number of predictions per sync status.
func (r *SQLiteRepository) SyncCounts(ctx context.Context) (map[string]int64, error) {
	counts, err := r.queries.CountPredictionsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count predictions: %w", err)
	}
	return counts, nil
}

func toRecords(rows []Prediction) ([]core.PredictionRecord, error) {
	out := make([]core.PredictionRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := toRecord(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func toRecord(p Prediction) (core.PredictionRecord, error) {
	rec := core.PredictionRecord{
		ID:               p.ID,
		RequestID:        p.RequestID,
		Analyzer:         p.Analyzer,
		TransactionCount: int(p.TransactionCount),
		BaselineAmount:   p.BaselineAmount,
		ProvisionalTotal: p.ProvisionalTotal,
		FinalAmount:      p.FinalAmount,
		RebalanceCount:   int(p.RebalanceCount),
		SavingsCount:     int(p.SavingsCount),
		AnomalyCount:     int(p.AnomalyCount),
		SyncStatus:       p.SyncStatus,
	}
	if err := json.Unmarshal([]byte(p.AdviceJSON), &rec.Advice); err != nil {
		return core.PredictionRecord{}, fmt.Errorf("decode advice of prediction %d: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(p.CategoriesJSON), &rec.Categories); err != nil {
		return core.PredictionRecord{}, fmt.Errorf("decode categories of prediction %d: %w", p.ID, err)
	}
	createdAt, err := time.Parse(timeLayout, p.CreatedAt)
	if err != nil {
		return core.PredictionRecord{}, fmt.Errorf("decode created_at of prediction %d: %w", p.ID, err)
	}
	rec.CreatedAt = createdAt
	return rec, nil
}
