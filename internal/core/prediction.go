package core

import "time"

// Sync states of a recorded prediction.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

// PredictionRecord is the stored snapshot of one reallocation run.
type PredictionRecord struct {
	ID               int64           `json:"id"`
	RequestID        string          `json:"request_id"`
	Analyzer         string          `json:"analyzer"`
	TransactionCount int             `json:"transaction_count"`
	BaselineAmount   float64         `json:"baseline_amount"`
	ProvisionalTotal float64         `json:"provisional_total"`
	FinalAmount      float64         `json:"final_amount"`
	RebalanceCount   int             `json:"rebalance_count"`
	SavingsCount     int             `json:"savings_count"`
	AnomalyCount     int             `json:"anomaly_count"`
	Advice           []string        `json:"advice"`
	Categories       CategorySummary `json:"categories"`
	CreatedAt        time.Time       `json:"created_at"`
	SyncStatus       string          `json:"sync_status"`
}
