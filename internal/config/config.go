package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	AnalysisHeuristic = "heuristic"
	AnalysisRemote    = "remote"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Logging
	LogLevel  string
	LogFormat string

	// Analysis collaborator
	AnalysisBackend   string
	AnalysisURL       string
	AnalysisAPIKey    string
	AnalysisTimeout   time.Duration
	AnalysisCacheSize int
	AnalysisCacheTTL  time.Duration

	// Heuristic analyzer
	HeuristicShareThreshold float64
	HeuristicSavingsPercent int

	// Prediction history
	HistoryEnabled bool
	SQLiteDBPath   string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string

	// Worker
	SyncBatchSize int
	SyncInterval  time.Duration
}

// fileConfig is the layout of the optional TOML file. Durations are Go
// duration strings ("30s").
type fileConfig struct {
	Server struct {
		Port               string `toml:"port"`
		RateLimitPerMinute int    `toml:"rate_limit_per_minute"`
	} `toml:"server"`
	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"logging"`
	Analysis struct {
		Backend        string  `toml:"backend"`
		URL            string  `toml:"url"`
		APIKey         string  `toml:"api_key"`
		Timeout        string  `toml:"timeout"`
		CacheSize      int     `toml:"cache_size"`
		CacheTTL       string  `toml:"cache_ttl"`
		ShareThreshold float64 `toml:"share_threshold"`
		SavingsPercent *int    `toml:"savings_percent"`
	} `toml:"analysis"`
	History struct {
		Enabled      *bool  `toml:"enabled"`
		SQLiteDBPath string `toml:"sqlite_db_path"`
	} `toml:"history"`
	AMQP struct {
		URL      string `toml:"url"`
		Exchange string `toml:"exchange"`
		Queue    string `toml:"queue"`
	} `toml:"amqp"`
	Sheets struct {
		SpreadsheetID   string `toml:"spreadsheet_id"`
		SheetName       string `toml:"sheet_name"`
		CredentialsFile string `toml:"credentials_file"`
	} `toml:"sheets"`
	Worker struct {
		BatchSize int    `toml:"batch_size"`
		Interval  string `toml:"interval"`
	} `toml:"worker"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:               "8081",
		RateLimitPerMinute: 60,

		LogLevel:  "info",
		LogFormat: "text",

		AnalysisBackend:   AnalysisHeuristic,
		AnalysisTimeout:   10 * time.Second,
		AnalysisCacheSize: 128,
		AnalysisCacheTTL:  5 * time.Minute,

		HeuristicShareThreshold: 30,
		HeuristicSavingsPercent: 10,

		HistoryEnabled: false,
		SQLiteDBPath:   "./data/fintrack.db",

		AMQPExchange: "fintrack",
		AMQPQueue:    "prediction_exports",

		GoogleSheetName: "Predictions",

		SyncBatchSize: 10,
		SyncInterval:  30 * time.Second,
	}
}

// Load reads configuration with priority defaults -> CONFIG_FILE -> env.
func Load() (*Config, error) {
	return LoadFromFile(os.Getenv("CONFIG_FILE"))
}

// LoadFromFile is Load with an explicit TOML path. An empty path skips the
// file.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		var fc fileConfig
		if err := toml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if err := cfg.applyFile(fc); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyFile(fc fileConfig) error {
	setString(&c.Port, fc.Server.Port)
	setInt(&c.RateLimitPerMinute, fc.Server.RateLimitPerMinute)
	setString(&c.LogLevel, fc.Logging.Level)
	setString(&c.LogFormat, fc.Logging.Format)

	setString(&c.AnalysisBackend, fc.Analysis.Backend)
	setString(&c.AnalysisURL, fc.Analysis.URL)
	setString(&c.AnalysisAPIKey, fc.Analysis.APIKey)
	setInt(&c.AnalysisCacheSize, fc.Analysis.CacheSize)
	if fc.Analysis.ShareThreshold != 0 {
		c.HeuristicShareThreshold = fc.Analysis.ShareThreshold
	}
	if fc.Analysis.SavingsPercent != nil {
		c.HeuristicSavingsPercent = *fc.Analysis.SavingsPercent
	}

	if fc.History.Enabled != nil {
		c.HistoryEnabled = *fc.History.Enabled
	}
	setString(&c.SQLiteDBPath, fc.History.SQLiteDBPath)

	setString(&c.AMQPURL, fc.AMQP.URL)
	setString(&c.AMQPExchange, fc.AMQP.Exchange)
	setString(&c.AMQPQueue, fc.AMQP.Queue)

	setString(&c.GoogleSpreadsheetID, fc.Sheets.SpreadsheetID)
	setString(&c.GoogleSheetName, fc.Sheets.SheetName)
	setString(&c.GoogleCredentialsFile, fc.Sheets.CredentialsFile)

	setInt(&c.SyncBatchSize, fc.Worker.BatchSize)

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"analysis.timeout", fc.Analysis.Timeout, &c.AnalysisTimeout},
		{"analysis.cache_ttl", fc.Analysis.CacheTTL, &c.AnalysisCacheTTL},
		{"worker.interval", fc.Worker.Interval, &c.SyncInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.AnalysisBackend = getEnv("ANALYSIS_BACKEND", c.AnalysisBackend)
	c.AnalysisURL = getEnv("ANALYSIS_URL", c.AnalysisURL)
	c.AnalysisAPIKey = getEnv("ANALYSIS_API_KEY", c.AnalysisAPIKey)
	c.AnalysisTimeout = getEnvDuration("ANALYSIS_TIMEOUT", c.AnalysisTimeout)
	c.AnalysisCacheSize = getEnvInt("ANALYSIS_CACHE_SIZE", c.AnalysisCacheSize)
	c.AnalysisCacheTTL = getEnvDuration("ANALYSIS_CACHE_TTL", c.AnalysisCacheTTL)

	c.HeuristicShareThreshold = getEnvFloat("HEURISTIC_SHARE_THRESHOLD", c.HeuristicShareThreshold)
	c.HeuristicSavingsPercent = getEnvInt("HEURISTIC_SAVINGS_PERCENT", c.HeuristicSavingsPercent)

	c.HistoryEnabled = getEnvBool("HISTORY_ENABLED", c.HistoryEnabled)
	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleSheetName = getEnv("GOOGLE_SHEET_NAME", c.GoogleSheetName)
	c.GoogleCredentialsFile = getEnv("GOOGLE_CREDENTIALS_FILE", c.GoogleCredentialsFile)
	c.GoogleCredentialsJSON = getEnv("GOOGLE_CREDENTIALS_JSON", c.GoogleCredentialsJSON)

	c.SyncBatchSize = getEnvInt("SYNC_BATCH_SIZE", c.SyncBatchSize)
	c.SyncInterval = getEnvDuration("SYNC_INTERVAL", c.SyncInterval)
}

// SheetsConfigured reports whether a Google Sheets export target is set.
func (c *Config) SheetsConfigured() bool {
	return c.GoogleSpreadsheetID != "" && (c.GoogleCredentialsFile != "" || c.GoogleCredentialsJSON != "")
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of [text json]", c.LogFormat))
	}

	// Validate analysis backend
	switch c.AnalysisBackend {
	case AnalysisHeuristic:
		if c.HeuristicShareThreshold <= 0 || c.HeuristicShareThreshold > 100 {
			errors = append(errors, fmt.Sprintf("invalid heuristic share threshold %v: must be in (0, 100]", c.HeuristicShareThreshold))
		}
		if c.HeuristicSavingsPercent < 0 || c.HeuristicSavingsPercent > 100 {
			errors = append(errors, fmt.Sprintf("invalid heuristic savings percent %d: must be between 0 and 100", c.HeuristicSavingsPercent))
		}
	case AnalysisRemote:
		if c.AnalysisURL == "" {
			errors = append(errors, "analysis URL is required when using the remote analysis backend")
		} else if u, err := url.Parse(c.AnalysisURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid analysis URL '%s': must be an absolute http(s) URL", c.AnalysisURL))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid analysis backend '%s': must be one of [%s %s]", c.AnalysisBackend, AnalysisHeuristic, AnalysisRemote))
	}

	if c.AnalysisTimeout < 100*time.Millisecond || c.AnalysisTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid analysis timeout %v: must be between 100ms and 5m", c.AnalysisTimeout))
	}
	if c.AnalysisCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid analysis cache size %d: must not be negative", c.AnalysisCacheSize))
	}
	if c.AnalysisCacheSize > 0 && c.AnalysisCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid analysis cache TTL %v: must be positive when caching is enabled", c.AnalysisCacheTTL))
	}

	// Validate SQLite configuration if history is enabled
	if c.HistoryEnabled {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when prediction history is enabled")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Google Sheets export if a spreadsheet is set
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
		}
		hasFile := c.GoogleCredentialsFile != ""
		hasJSON := c.GoogleCredentialsJSON != ""
		if !hasFile && !hasJSON {
			errors = append(errors, "either GOOGLE_CREDENTIALS_FILE or GOOGLE_CREDENTIALS_JSON must be provided when a spreadsheet ID is set")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
	}

	// Validate worker configuration
	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
