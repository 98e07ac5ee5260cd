package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Prediction mirrors a row of the predictions table.
type Prediction struct {
	ID               int64
	RequestID        string
	Analyzer         string
	TransactionCount int64
	BaselineAmount   float64
	ProvisionalTotal float64
	FinalAmount      float64
	RebalanceCount   int64
	SavingsCount     int64
	AnomalyCount     int64
	AdviceJSON       string
	CategoriesJSON   string
	CreatedAt        string
	SyncStatus       string
	SyncedAt         sql.NullString
}

const predictionColumns = `id, request_id, analyzer, transaction_count, baseline_amount, provisional_total,
	final_amount, rebalance_count, savings_count, anomaly_count, advice_json, categories_json,
	created_at, sync_status, synced_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(row scanner) (Prediction, error) {
	var p Prediction
	err := row.Scan(
		&p.ID,
		&p.RequestID,
		&p.Analyzer,
		&p.TransactionCount,
		&p.BaselineAmount,
		&p.ProvisionalTotal,
		&p.FinalAmount,
		&p.RebalanceCount,
		&p.SavingsCount,
		&p.AnomalyCount,
		&p.AdviceJSON,
		&p.CategoriesJSON,
		&p.CreatedAt,
		&p.SyncStatus,
		&p.SyncedAt,
	)
	return p, err
}

const createPrediction = `INSERT INTO predictions (
	request_id, analyzer, transaction_count, baseline_amount, provisional_total, final_amount,
	rebalance_count, savings_count, anomaly_count, advice_json, categories_json, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + predictionColumns

type CreatePredictionParams struct {
	RequestID        string
	Analyzer         string
	TransactionCount int64
	BaselineAmount   float64
	ProvisionalTotal float64
	FinalAmount      float64
	RebalanceCount   int64
	SavingsCount     int64
	AnomalyCount     int64
	AdviceJSON       string
	CategoriesJSON   string
	CreatedAt        string
}

func (q *Queries) CreatePrediction(ctx context.Context, arg CreatePredictionParams) (Prediction, error) {
	row := q.db.QueryRowContext(ctx, createPrediction,
		arg.RequestID,
		arg.Analyzer,
		arg.TransactionCount,
		arg.BaselineAmount,
		arg.ProvisionalTotal,
		arg.FinalAmount,
		arg.RebalanceCount,
		arg.SavingsCount,
		arg.AnomalyCount,
		arg.AdviceJSON,
		arg.CategoriesJSON,
		arg.CreatedAt,
	)
	return scanPrediction(row)
}

const getPrediction = `SELECT ` + predictionColumns + ` FROM predictions WHERE id = ?`

func (q *Queries) GetPrediction(ctx context.Context, id int64) (Prediction, error) {
	return scanPrediction(q.db.QueryRowContext(ctx, getPrediction, id))
}

const listRecentPredictions = `SELECT ` + predictionColumns + ` FROM predictions ORDER BY id DESC LIMIT ?`

func (q *Queries) ListRecentPredictions(ctx context.Context, limit int64) ([]Prediction, error) {
	return q.list(ctx, listRecentPredictions, limit)
}

const getPendingSyncPredictions = `SELECT ` + predictionColumns + ` FROM predictions
WHERE sync_status = 'pending' ORDER BY id ASC LIMIT ?`

func (q *Queries) GetPendingSyncPredictions(ctx context.Context, limit int64) ([]Prediction, error) {
	return q.list(ctx, getPendingSyncPredictions, limit)
}

func (q *Queries) list(ctx context.Context, query string, args ...interface{}) ([]Prediction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markPredictionSynced = `UPDATE predictions SET sync_status = 'synced', synced_at = ? WHERE id = ?`

func (q *Queries) MarkPredictionSynced(ctx context.Context, syncedAt string, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markPredictionSynced, syncedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markPredictionSyncError = `UPDATE predictions SET sync_status = 'error' WHERE id = ?`

func (q *Queries) MarkPredictionSyncError(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markPredictionSyncError, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countPredictionsByStatus = `SELECT sync_status, COUNT(*) FROM predictions GROUP BY sync_status`

func (q *Queries) CountPredictionsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := q.db.QueryContext(ctx, countPredictionsByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
