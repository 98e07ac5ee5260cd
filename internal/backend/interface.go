package backend

import (
	"context"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/analysis"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// History bundles the optional prediction-history collaborators. Publisher
// is nil when no broker is configured or the broker was unreachable.
type History struct {
	Store     *storage.SQLiteRepository
	Publisher *amqp.Client
	Cleanup   CleanupFunc
}

// Factory builds the collaborators the server and worker need.
type Factory interface {
	// CreateAnalyzer returns the configured analysis collaborator, wrapped
	// in a result cache when caching is enabled.
	CreateAnalyzer(ctx context.Context, config Config) (analysis.Analyzer, error)
	// CreateHistory opens the prediction store and, if configured, the
	// broker. It returns nil when history is disabled.
	CreateHistory(ctx context.Context, config Config) (*History, error)
	// CreateExporter returns the Google Sheets exporter, or an in-memory
	// one when no spreadsheet is configured.
	CreateExporter(ctx context.Context, config Config) (sheets.PredictionExporter, error)
}

// Config holds configuration for backend creation
type Config struct {
	Analyzer AnalyzerType

	// Remote analyzer
	AnalysisURL     string
	AnalysisAPIKey  string
	AnalysisTimeout time.Duration

	// Result cache; size 0 disables it
	CacheSize int
	CacheTTL  time.Duration

	// Heuristic analyzer
	ShareThreshold float64
	SavingsPercent int

	// History
	HistoryEnabled bool
	SQLiteDBPath   string
	AMQPURL        string
	AMQPExchange   string
	AMQPQueue      string

	// Google Sheets export
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
}

// AnalyzerType selects the analysis collaborator.
type AnalyzerType string

const (
	HeuristicAnalyzer AnalyzerType = "heuristic"
	RemoteAnalyzer    AnalyzerType = "remote"
)

// String implements fmt.Stringer
func (t AnalyzerType) String() string {
	return string(t)
}

// IsValid returns true if the analyzer type is valid
func (t AnalyzerType) IsValid() bool {
	switch t {
	case HeuristicAnalyzer, RemoteAnalyzer:
		return true
	default:
		return false
	}
}
