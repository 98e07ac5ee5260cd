package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/analysis"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

const transactionsBody = `{"transactions":[
	{"amount":400,"category":"Food","date":"2024-05-01"},
	{"amount":100,"category":"Transport","date":"2024-05-02"}
]}`

func baselineReport() core.Report {
	return core.Report{
		Advice:            []string{"Spending on 'Food' is 40% — reduce to 20-30%", "Set aside 10% for savings"},
		CategorySummary:   core.CategorySummary{"Food": 400, "Transport": 100},
		MonthlyPrediction: core.MonthlyPrediction{PredictedAmount: 1000, Extra: map[string]json.RawMessage{"confidence": json.RawMessage(`0.8`)}},
		Extra:             map[string]json.RawMessage{"trend": json.RawMessage(`"up"`)},
	}
}

func fixedAnalyzer(report core.Report, err error) analysis.Analyzer {
	return analysis.AnalyzerFunc(func(context.Context, []core.Transaction) (core.Report, error) {
		if err != nil {
			return core.Report{}, err
		}
		return report.Clone(), nil
	})
}

func newTestServer(t *testing.T, a analysis.Analyzer, opts ...services.PredictionOption) *Server {
	t.Helper()
	svc := services.NewPredictionService(a, nil, nil, opts...)
	srv := NewServer(":0", svc, Options{RateLimitPerMinute: 1000})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "203.0.113.10:40000"
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body.Message
}

func TestPredictionEndToEnd(t *testing.T) {
	srv := newTestServer(t, fixedAnalyzer(baselineReport(), nil))

	rr := do(srv, http.MethodPost, "/api/ai/prediction", transactionsBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Empty(t, rr.Header().Get("X-Prediction-ID"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))

	want := map[string]any{
		"advice":           []any{"Spending on 'Food' is 40% — reduce to 20-30%", "Set aside 10% for savings"},
		"category_summary": map[string]any{"Food": 250.0, "Transport": 100.0},
		"monthly_prediction": map[string]any{
			"predicted_amount": 315.0,
			"confidence":       0.8,
		},
		"trend": "up",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestPredictionExplain(t *testing.T) {
	srv := newTestServer(t, fixedAnalyzer(baselineReport(), nil))

	rr := do(srv, http.MethodPost, "/api/ai/prediction?explain=true", transactionsBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var got struct {
		Report  core.Report `json:"report"`
		Outcome struct {
			ProvisionalTotal float64 `json:"provisional_total"`
			FinalAmount      float64 `json:"final_amount"`
		} `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, 350.0, got.Outcome.ProvisionalTotal)
	assert.Equal(t, 315.0, got.Outcome.FinalAmount)
	assert.Equal(t, 315.0, got.Report.MonthlyPrediction.PredictedAmount)
}

func TestPredictionErrors(t *testing.T) {
	missing := baselineReport()
	missing.CategorySummary = nil

	tests := []struct {
		name       string
		analyzer   analysis.Analyzer
		method     string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"wrong method", fixedAnalyzer(baselineReport(), nil), http.MethodGet, "", http.StatusMethodNotAllowed, "method not allowed"},
		{"malformed body", fixedAnalyzer(baselineReport(), nil), http.MethodPost, "{", http.StatusBadRequest, "malformed request body"},
		{"invalid transaction", fixedAnalyzer(baselineReport(), nil), http.MethodPost, `{"transactions":[{"amount":"x","date":"2024-01-01"}]}`, http.StatusUnprocessableEntity, "invalid transaction"},
		{"collaborator down", fixedAnalyzer(core.Report{}, errors.New("connection refused")), http.MethodPost, transactionsBody, http.StatusBadGateway, "analysis service failed"},
		{"collaborator missing field", fixedAnalyzer(missing, nil), http.MethodPost, transactionsBody, http.StatusBadGateway, "analysis response is missing category_summary"},
		{"collaborator deadline", fixedAnalyzer(core.Report{}, context.DeadlineExceeded), http.MethodPost, transactionsBody, http.StatusGatewayTimeout, "request timed out"},
		{"collaborator transport timeout", fixedAnalyzer(core.Report{}, &url.Error{Op: "Post", URL: "http://analysis/analyze", Err: &net.DNSError{Err: "i/o timeout", IsTimeout: true}}), http.MethodPost, transactionsBody, http.StatusGatewayTimeout, "request timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.analyzer)
			rr := do(srv, tt.method, "/api/ai/prediction", tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			assert.Equal(t, tt.wantMsg, decodeMessage(t, rr))
		})
	}
}

func TestPreview(t *testing.T) {
	srv := newTestServer(t, fixedAnalyzer(core.Report{}, errors.New("must not be called")))

	body := `{
		"advice": ["Chi tiêu 'Ăn uống' chiếm 40% - nên giảm xuống 20-30%", "Hãy dành 10% để tiết kiệm"],
		"category_summary": {"Ăn uống": 400, "Đi lại": 100},
		"monthly_prediction": {"predicted_amount": 1000}
	}`
	rr := do(srv, http.MethodPost, "/api/ai/prediction/preview", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var got core.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, core.CategorySummary{"Ăn uống": 250, "Đi lại": 100}, got.CategorySummary)
	assert.Equal(t, 315.0, got.MonthlyPrediction.PredictedAmount)

	rr = do(srv, http.MethodPost, "/api/ai/prediction/preview", `{"advice":[],"category_summary":{}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, decodeMessage(t, rr), "monthly_prediction.predicted_amount")
}

func TestHistory(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "history.db"), nil)
	require.NoError(t, err)

	srv := newTestServer(t, fixedAnalyzer(baselineReport(), nil), services.WithStore(repo))

	rr := do(srv, http.MethodPost, "/api/ai/prediction", transactionsBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "1", rr.Header().Get("X-Prediction-ID"))

	rr = do(srv, http.MethodGet, "/api/ai/predictions?limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var got historyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, 1, got.Count)
	assert.Equal(t, 315.0, got.Predictions[0].FinalAmount)
	assert.Equal(t, 2, got.Predictions[0].TransactionCount)
	assert.Equal(t, core.SyncPending, got.Predictions[0].SyncStatus)

	rr = do(srv, http.MethodGet, "/api/ai/predictions?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHistoryDisabled(t *testing.T) {
	srv := newTestServer(t, fixedAnalyzer(baselineReport(), nil))

	rr := do(srv, http.MethodGet, "/api/ai/predictions", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "history disabled", decodeMessage(t, rr))
}

func TestHealthReadyAndNotFound(t *testing.T) {
	srv := newTestServer(t, fixedAnalyzer(baselineReport(), nil))

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"), path)
	}

	rr := do(srv, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not found", decodeMessage(t, rr))
}

func TestReadyReportsStoreFailure(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ready.db"), nil)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	srv := newTestServer(t, fixedAnalyzer(baselineReport(), nil), services.WithStore(repo))
	rr := do(srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "not_ready")
}

func TestRateLimitAppliesToPost(t *testing.T) {
	svc := services.NewPredictionService(fixedAnalyzer(baselineReport(), nil), nil, nil)
	srv := NewServer(":0", svc, Options{RateLimitPerMinute: 2})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	for i := 0; i < 2; i++ {
		rr := do(srv, http.MethodPost, "/api/ai/prediction", transactionsBody)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := do(srv, http.MethodPost, "/api/ai/prediction", transactionsBody)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = do(srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetrics(t *testing.T) {
	svc := services.NewPredictionService(fixedAnalyzer(baselineReport(), nil), nil, nil)
	srv := NewServer(":0", svc, Options{
		CacheStats: func() cache.Stats { return cache.Stats{Hits: 3, Misses: 1, Size: 1} },
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	require.Equal(t, http.StatusOK, do(srv, http.MethodPost, "/api/ai/prediction", transactionsBody).Code)

	rr := do(srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	for _, want := range []string{
		"predictions_total 1\n",
		"analysis_cache_hits_total 3\n",
		"analysis_cache_entries 1\n",
		"http_requests_total 2\n",
	} {
		assert.Contains(t, body, want)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{badRequest("x", nil), http.StatusBadRequest},
		{&services.ValidationError{Index: 0, Err: core.ErrInvalidAmount}, http.StatusUnprocessableEntity},
		{services.ErrAnalysisFailed, http.StatusBadGateway},
		{services.ErrHistoryDisabled, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("%w: %w", services.ErrAnalysisFailed, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("%w: %w", services.ErrAnalysisFailed, &net.DNSError{IsTimeout: true}), http.StatusGatewayTimeout},
		{fmt.Errorf("%w: %w", services.ErrAnalysisFailed, &net.DNSError{IsNotFound: true}), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}
