package backend

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/analysis"
	"fintrack/internal/analysis/heuristic"
	"fintrack/internal/analysis/remote"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/sheets/memory"
	"fintrack/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateAnalyzer implements Factory.CreateAnalyzer
func (f *DefaultFactory) CreateAnalyzer(ctx context.Context, config Config) (analysis.Analyzer, error) {
	if !config.Analyzer.IsValid() {
		return nil, fmt.Errorf("invalid analyzer type: %s", config.Analyzer)
	}

	var base analysis.Analyzer
	switch config.Analyzer {
	case RemoteAnalyzer:
		client, err := remote.New(config.AnalysisURL, config.AnalysisAPIKey, config.AnalysisTimeout,
			remote.WithLogger(f.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize remote analyzer: %w", err)
		}
		base = client
	default:
		base = heuristic.New(heuristic.Config{
			ShareThreshold: config.ShareThreshold,
			SavingsPercent: config.SavingsPercent,
		})
	}

	f.logger.InfoContext(ctx, "Initialized analysis collaborator",
		"analyzer", analysis.NameOf(base),
		"cache_size", config.CacheSize)

	if config.CacheSize > 0 {
		return analysis.NewCached(base, config.CacheSize, config.CacheTTL, f.logger,
			analysis.WithCallTimeout(config.AnalysisTimeout)), nil
	}
	return base, nil
}

// CreateHistory implements Factory.CreateHistory
func (f *DefaultFactory) CreateHistory(ctx context.Context, config Config) (*History, error) {
	if !config.HistoryEnabled {
		return nil, nil
	}
	if config.SQLiteDBPath == "" {
		return nil, errors.New("SQLite database path is required when history is enabled")
	}

	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// AMQP is optional; the worker's sweep picks up rows without events.
	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", log.FieldError, err)
			amqpClient = nil
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	f.logger.InfoContext(ctx, "Initialized prediction history",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", amqpClient != nil)

	h := &History{Store: repo, Publisher: amqpClient}
	h.Cleanup = func() error {
		var errs []error
		if amqpClient != nil {
			errs = append(errs, amqpClient.Close())
		}
		errs = append(errs, repo.Close())
		return errors.Join(errs...)
	}
	return h, nil
}

// CreateExporter implements Factory.CreateExporter
func (f *DefaultFactory) CreateExporter(ctx context.Context, config Config) (sheets.PredictionExporter, error) {
	if !config.SheetsConfigured() {
		f.logger.WarnContext(ctx, "Google Sheets not configured, exporting to memory")
		return memory.New(), nil
	}

	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleCredentialsJSON,
		CredentialsFile: config.GoogleCredentialsFile,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized Google Sheets exporter",
		"sheet", config.GoogleSheetName)
	return client, nil
}
