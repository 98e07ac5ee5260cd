package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

// PredictionService is what the handlers need from the service layer.
type PredictionService interface {
	Predict(ctx context.Context, requestID string, txs []core.Transaction) (services.PredictionResult, error)
	Preview(ctx context.Context, requestID string, report core.Report) (services.PredictionResult, error)
	History(ctx context.Context, limit int) ([]core.PredictionRecord, error)
	Ready(ctx context.Context) error
	AnalyzerName() string
	HistoryEnabled() bool
}

// Options configures the server. Zero values pick defaults.
type Options struct {
	RateLimitPerMinute int
	Logger             *log.Logger
	// CacheStats reports analysis cache counters on /metrics when set.
	CacheStats func() cache.Stats
}

type Server struct {
	http.Server
	service    PredictionService
	logger     *log.Logger
	structured *log.StructuredLogger
	cacheStats func() cache.Stats

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

// appMetrics tracks prediction outcomes.
type appMetrics struct {
	uptime             time.Time
	predictions        int64
	previews           int64
	analysisFailures   int64
	anomalies          int64
	recordedPrediction int64
}

func (m *appMetrics) observe(result services.PredictionResult, preview bool) {
	if preview {
		atomic.AddInt64(&m.previews, 1)
	} else {
		atomic.AddInt64(&m.predictions, 1)
	}
	atomic.AddInt64(&m.anomalies, int64(len(result.Outcome.Anomalies)))
	if result.PredictionID != 0 {
		atomic.AddInt64(&m.recordedPrediction, 1)
	}
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, svc PredictionService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		service:          svc,
		logger:           logger.WithComponent(log.ComponentHTTP),
		structured:       log.NewStructuredLogger(logger),
		cacheStats:       opts.CacheStats,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		securityDetector: security.NewDetector(logger),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ai/prediction", s.handlePrediction)
	mux.HandleFunc("/api/ai/prediction/preview", s.handlePreview)
	mux.HandleFunc("/api/ai/predictions", s.handleHistory)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/", s.handleNotFound)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, logger)

	var handler http.Handler = mux
	handler = limit(handler)
	handler = headers.Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	s.Handler = handler

	return s
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
