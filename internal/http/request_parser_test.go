package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"fintrack/internal/core"
)

func TestParsePredictionRequest(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCount  int
	}{
		{
			name:      "english fields",
			body:      `{"transactions":[{"amount":12.5,"category":"Food","date":"2024-05-01"}]}`,
			wantCount: 1,
		},
		{
			name:      "vietnamese fields and string amount",
			body:      `{"transactions":[{"so_tien":"1.234,50","danh_muc":"Ăn uống","ngay":"2024-05-01T10:00:00Z"}]}`,
			wantCount: 1,
		},
		{
			name:      "empty list",
			body:      `{"transactions":[]}`,
			wantCount: 0,
		},
		{name: "empty body", body: ``, wantStatus: http.StatusBadRequest},
		{name: "not json", body: `transactions=1`, wantStatus: http.StatusBadRequest},
		{name: "missing transactions", body: `{"items":[]}`, wantStatus: http.StatusBadRequest},
		{name: "wrong type", body: `{"transactions":{}}`, wantStatus: http.StatusBadRequest},
		{
			name:       "bad amount",
			body:       `{"transactions":[{"amount":"abc","date":"2024-05-01"}]}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "missing date",
			body:       `{"transactions":[{"amount":1}]}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "bad date",
			body:       `{"transactions":[{"amount":1,"date":"yesterday"}]}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/ai/prediction", strings.NewReader(tt.body))
			txs, err := ParsePredictionRequest(httptest.NewRecorder(), r)

			if tt.wantStatus != 0 {
				var reqErr *RequestError
				if !errors.As(err, &reqErr) {
					t.Fatalf("expected RequestError, got %v", err)
				}
				if reqErr.Status != tt.wantStatus {
					t.Errorf("status = %d, want %d (%v)", reqErr.Status, tt.wantStatus, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(txs) != tt.wantCount {
				t.Errorf("len = %d, want %d", len(txs), tt.wantCount)
			}
		})
	}
}

func TestParsePredictionRequest_TooLarge(t *testing.T) {
	body := `{"transactions":[` + strings.Repeat(" ", maxBodyBytes) + `]}`
	r := httptest.NewRequest(http.MethodPost, "/api/ai/prediction", strings.NewReader(body))
	_, err := ParsePredictionRequest(httptest.NewRecorder(), r)

	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Status != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}
}

func TestParseReportRequest(t *testing.T) {
	ok := `{"advice":[],"category_summary":{"Food":1},"monthly_prediction":{"predicted_amount":10}}`
	r := httptest.NewRequest(http.MethodPost, "/api/ai/prediction/preview", strings.NewReader(ok))
	report, err := ParseReportRequest(httptest.NewRecorder(), r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.MonthlyPrediction.PredictedAmount != 10 {
		t.Errorf("predicted_amount = %v", report.MonthlyPrediction.PredictedAmount)
	}

	missing := `{"advice":[],"monthly_prediction":{"predicted_amount":10}}`
	r = httptest.NewRequest(http.MethodPost, "/api/ai/prediction/preview", strings.NewReader(missing))
	_, err = ParseReportRequest(httptest.NewRecorder(), r)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
	if !errors.Is(err, core.ErrMissingAnalysisField) {
		t.Errorf("error should unwrap to ErrMissingAnalysisField: %v", err)
	}

	r = httptest.NewRequest(http.MethodPost, "/api/ai/prediction/preview", strings.NewReader(`{`))
	_, err = ParseReportRequest(httptest.NewRecorder(), r)
	if !errors.As(err, &reqErr) || reqErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", DefaultHistoryLimit, false},
		{"limit=5", 5, false},
		{"limit=1000", MaxHistoryLimit, false},
		{"limit=0", 0, true},
		{"limit=-3", 0, true},
		{"limit=abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			got, err := ParseLimit(q)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRequireMethod(t *testing.T) {
	if RequirePOST(httptest.NewRequest(http.MethodPost, "/", nil)) != nil {
		t.Error("POST should pass")
	}
	if RequirePOST(httptest.NewRequest(http.MethodGet, "/", nil)) == nil {
		t.Error("GET should be rejected")
	}
	if RequireGET(httptest.NewRequest(http.MethodHead, "/", nil)) != nil {
		t.Error("HEAD should pass RequireGET")
	}
}
