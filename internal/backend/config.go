package backend

import (
	"errors"
	"fmt"

	"fintrack/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	analyzer := AnalyzerType(appConfig.AnalysisBackend)
	if !analyzer.IsValid() {
		return Config{}, fmt.Errorf("invalid analysis backend in config: %s", appConfig.AnalysisBackend)
	}

	return Config{
		Analyzer: analyzer,

		AnalysisURL:     appConfig.AnalysisURL,
		AnalysisAPIKey:  appConfig.AnalysisAPIKey,
		AnalysisTimeout: appConfig.AnalysisTimeout,
		CacheSize:       appConfig.AnalysisCacheSize,
		CacheTTL:        appConfig.AnalysisCacheTTL,

		ShareThreshold: appConfig.HeuristicShareThreshold,
		SavingsPercent: appConfig.HeuristicSavingsPercent,

		HistoryEnabled: appConfig.HistoryEnabled,
		SQLiteDBPath:   appConfig.SQLiteDBPath,
		AMQPURL:        appConfig.AMQPURL,
		AMQPExchange:   appConfig.AMQPExchange,
		AMQPQueue:      appConfig.AMQPQueue,

		GoogleSpreadsheetID:   appConfig.GoogleSpreadsheetID,
		GoogleSheetName:       appConfig.GoogleSheetName,
		GoogleCredentialsFile: appConfig.GoogleCredentialsFile,
		GoogleCredentialsJSON: appConfig.GoogleCredentialsJSON,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Analyzer.IsValid() {
		return fmt.Errorf("invalid analyzer type: %s", c.Analyzer)
	}

	if c.Analyzer == RemoteAnalyzer && c.AnalysisURL == "" {
		return errors.New("analysis URL is required for remote analyzer")
	}
	if c.CacheSize < 0 {
		return errors.New("cache size must not be negative")
	}
	if c.HistoryEnabled && c.SQLiteDBPath == "" {
		return errors.New("SQLite database path is required when history is enabled")
	}

	return nil
}

// SheetsConfigured reports whether a Google Sheets destination is set.
func (c Config) SheetsConfigured() bool {
	return c.GoogleSpreadsheetID != "" && (c.GoogleCredentialsFile != "" || c.GoogleCredentialsJSON != "")
}

// GetAnalyzerTypes returns all valid analyzer types
func GetAnalyzerTypes() []AnalyzerType {
	return []AnalyzerType{HeuristicAnalyzer, RemoteAnalyzer}
}

// GetAnalyzerTypeStrings returns all valid analyzer type strings
func GetAnalyzerTypeStrings() []string {
	types := GetAnalyzerTypes()
	strs := make([]string, len(types))
	for i, t := range types {
		strs[i] = t.String()
	}
	return strs
}
