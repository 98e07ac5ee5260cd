package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// PredictionExporter writes a recorded prediction to an external
	// destination and returns a reference to the written row.
	PredictionExporter interface {
		Export(ctx context.Context, rec core.PredictionRecord) (rowRef string, err error)
	}
)

// Header is the column layout shared by every exporter.
var Header = []string{
	"ID", "Created", "Request", "Analyzer", "Transactions",
	"Baseline", "Provisional", "Final", "Rebalances", "Savings", "Anomalies", "Categories",
}
