package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/analysis"
	"fintrack/internal/config"
	"fintrack/internal/sheets/memory"
)

func TestFromAppConfig(t *testing.T) {
	app := config.Defaults()
	app.AnalysisBackend = "remote"
	app.AnalysisURL = "http://analysis:8000"
	app.HistoryEnabled = true

	cfg, err := FromAppConfig(app)
	require.NoError(t, err)
	assert.Equal(t, RemoteAnalyzer, cfg.Analyzer)
	assert.Equal(t, "http://analysis:8000", cfg.AnalysisURL)
	assert.True(t, cfg.HistoryEnabled)
	assert.Equal(t, app.SQLiteDBPath, cfg.SQLiteDBPath)

	_, err = FromAppConfig(nil)
	assert.Error(t, err)

	app.AnalysisBackend = "oracle"
	_, err = FromAppConfig(app)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"heuristic", Config{Analyzer: HeuristicAnalyzer}, false},
		{"remote without url", Config{Analyzer: RemoteAnalyzer}, true},
		{"remote", Config{Analyzer: RemoteAnalyzer, AnalysisURL: "http://x"}, false},
		{"unknown", Config{Analyzer: "x"}, true},
		{"negative cache", Config{Analyzer: HeuristicAnalyzer, CacheSize: -1}, true},
		{"history without path", Config{Analyzer: HeuristicAnalyzer, HistoryEnabled: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetAnalyzerTypeStrings(t *testing.T) {
	assert.Equal(t, []string{"heuristic", "remote"}, GetAnalyzerTypeStrings())
}

func TestCreateAnalyzer(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	a, err := f.CreateAnalyzer(ctx, Config{Analyzer: HeuristicAnalyzer})
	require.NoError(t, err)
	assert.Equal(t, "heuristic", analysis.NameOf(a))

	a, err = f.CreateAnalyzer(ctx, Config{Analyzer: HeuristicAnalyzer, CacheSize: 4, CacheTTL: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "heuristic+cache", analysis.NameOf(a))

	a, err = f.CreateAnalyzer(ctx, Config{Analyzer: RemoteAnalyzer, AnalysisURL: "http://localhost:8000", AnalysisTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "remote", analysis.NameOf(a))

	_, err = f.CreateAnalyzer(ctx, Config{Analyzer: "x"})
	assert.Error(t, err)
}

func TestCreateHistory(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	h, err := f.CreateHistory(ctx, Config{})
	require.NoError(t, err)
	assert.Nil(t, h)

	h, err = f.CreateHistory(ctx, Config{HistoryEnabled: true, SQLiteDBPath: filepath.Join(t.TempDir(), "h.db")})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Nil(t, h.Publisher)
	require.NoError(t, h.Store.Ping(ctx))
	assert.NoError(t, h.Cleanup())
}

func TestCreateExporterFallsBackToMemory(t *testing.T) {
	exp, err := NewFactory(nil).CreateExporter(context.Background(), Config{})
	require.NoError(t, err)
	_, ok := exp.(*memory.Store)
	assert.True(t, ok)
}
