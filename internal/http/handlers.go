package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/reallocation"
	"fintrack/internal/services"
)

// explainedResponse is returned instead of the bare report when the
// caller asks for ?explain=true.
type explainedResponse struct {
	Report       core.Report          `json:"report"`
	Outcome      reallocation.Outcome `json:"outcome"`
	PredictionID int64                `json:"prediction_id,omitempty"`
}

type historyResponse struct {
	Predictions []core.PredictionRecord `json:"predictions"`
	Count       int                     `json:"count"`
}

// handlePrediction analyzes the posted transactions and returns the
// reallocated report.
func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}

	txs, err := ParsePredictionRequest(w, r)
	if err != nil {
		s.writeError(w, r, err, log.OpParse)
		return
	}

	result, err := s.service.Predict(r.Context(), trace.GetRequestID(r.Context()), txs)
	if err != nil {
		if errors.Is(err, services.ErrAnalysisFailed) {
			atomic.AddInt64(&s.appMetrics.analysisFailures, 1)
		}
		s.writeError(w, r, err, log.OpAnalyze)
		return
	}
	s.appMetrics.observe(result, false)

	s.writeResult(w, r, result)
}

// handlePreview runs only the reallocation engine on a caller-supplied
// analysis report. Nothing is recorded.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}

	report, err := ParseReportRequest(w, r)
	if err != nil {
		s.writeError(w, r, err, log.OpParse)
		return
	}

	result, err := s.service.Preview(r.Context(), trace.GetRequestID(r.Context()), report)
	if err != nil {
		if errors.Is(err, core.ErrMissingAnalysisField) {
			err = unprocessable(err.Error(), err)
		}
		s.writeError(w, r, err, log.OpReallocate)
		return
	}
	s.appMetrics.observe(result, true)

	s.writeResult(w, r, result)
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, result services.PredictionResult) {
	resp := NewJSONResponse()
	if result.PredictionID != 0 {
		resp.Header("X-Prediction-ID", strconv.FormatInt(result.PredictionID, 10))
	}
	if explain, _ := strconv.ParseBool(r.URL.Query().Get("explain")); explain {
		resp.Body(explainedResponse{
			Report:       result.Report,
			Outcome:      result.Outcome,
			PredictionID: result.PredictionID,
		})
	} else {
		resp.Body(result.Report)
	}
	resp.Write(w)
}

// handleHistory lists recorded predictions, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}

	limit, err := ParseLimit(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err, log.OpList)
		return
	}

	records, err := s.service.History(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err, log.OpList)
		return
	}
	if records == nil {
		records = []core.PredictionRecord{}
	}

	NewJSONResponse().Body(historyResponse{Predictions: records, Count: len(records)}).Write(w)
}

// writeError maps err to a status and a {"message"} body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	status, message := statusFor(err)

	if status >= http.StatusInternalServerError {
		s.structured.LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op,
			log.NewFields().
				WithRequestID(trace.GetRequestID(r.Context())).
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), r.Referer()))
	} else {
		s.logger.WarnContext(r.Context(), "Request rejected",
			log.FieldRequestID, trace.GetRequestID(r.Context()),
			log.FieldOperation, op,
			log.FieldStatusCode, status,
			log.FieldError, err)
	}

	ErrorResponse(status, message).Write(w)
}

func statusFor(err error) (int, string) {
	var reqErr *RequestError
	var validationErr *services.ValidationError
	var missing *core.MissingFieldError

	switch {
	case errors.As(err, &reqErr):
		return reqErr.Status, reqErr.Message
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity, validationErr.Error()
	case isTimeout(err):
		return http.StatusGatewayTimeout, "request timed out"
	case errors.Is(err, services.ErrAnalysisFailed) && errors.As(err, &missing):
		return http.StatusBadGateway, "analysis response is missing " + missing.Field
	case errors.Is(err, services.ErrAnalysisFailed):
		return http.StatusBadGateway, "analysis service failed"
	case errors.Is(err, services.ErrHistoryDisabled):
		return http.StatusNotFound, "history disabled"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// isTimeout matches deadlines anywhere in the chain, including transport
// timeouts from the analysis client.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	NotFoundError("not found").Write(w)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{
		"analyzer": s.service.AnalyzerName(),
		"history":  s.service.HistoryEnabled(),
	}

	if err := s.service.Ready(ctx); err != nil {
		checks["dependencies"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["dependencies"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.WriteHeader(http.StatusOK)

	counter(w, "http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter(w, "http_server_errors_total", "Total number of 5xx responses", traceMetrics.ServerErrors)
	counter(w, "predictions_total", "Predictions computed from transactions", atomic.LoadInt64(&s.appMetrics.predictions))
	counter(w, "prediction_previews_total", "Predictions computed from supplied reports", atomic.LoadInt64(&s.appMetrics.previews))
	counter(w, "predictions_recorded_total", "Predictions saved to history", atomic.LoadInt64(&s.appMetrics.recordedPrediction))
	counter(w, "analysis_failures_total", "Analysis collaborator failures", atomic.LoadInt64(&s.appMetrics.analysisFailures))
	counter(w, "reallocation_anomalies_total", "Advice directives applied despite an inverted band or out-of-range percent", atomic.LoadInt64(&s.appMetrics.anomalies))

	if s.cacheStats != nil {
		stats := s.cacheStats()
		counter(w, "analysis_cache_hits_total", "Analysis cache hits", int64(stats.Hits))
		counter(w, "analysis_cache_misses_total", "Analysis cache misses", int64(stats.Misses))
		counter(w, "analysis_cache_evictions_total", "Analysis cache evictions", int64(stats.Evictions))
		gauge(w, "analysis_cache_entries", "Current analysis cache entries", float64(stats.Size))
	}

	counter(w, "rate_limit_hits_total", "Total rate limit hits", rateLimitMetrics.TotalHits)
	gauge(w, "active_rate_limit_clients", "Currently tracked rate limit clients", float64(rateLimitMetrics.ClientCount))
	counter(w, "suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	counter(w, "invalid_ip_attempts_total", "Forwarded headers carrying an invalid IP", securityMetrics.InvalidIPAttempts)
	gauge(w, "uptime_seconds", "Application uptime in seconds", time.Since(s.appMetrics.uptime).Seconds())
}

func counter(w http.ResponseWriter, name, help string, v int64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
}

func gauge(w http.ResponseWriter, name, help string, v float64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %.0f\n\n", name, help, name, name, v)
}
