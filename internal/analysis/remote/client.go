// Package remote calls an external analysis service over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

const (
	analyzePath     = "/analyze"
	maxResponseSize = 4 << 20
)

// ErrResponseTooLarge is returned when a successful response exceeds the
// read limit.
var ErrResponseTooLarge = errors.New("analysis response too large")

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis service returned status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether a retry could succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *log.Logger
	maxRetries int
	backoff    func(attempt int) time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetries sets how many times a transport error, 429 or 5xx is retried.
func WithRetries(n int, backoff func(attempt int) time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = n
		if backoff != nil {
			c.backoff = backoff
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentAnalysis) }
}

// New builds a client for baseURL. apiKey may be empty.
func New(baseURL, apiKey string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("analysis service URL is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.Discard(),
		maxRetries: 2,
		backoff: func(attempt int) time.Duration {
			return time.Duration(250*(1<<attempt)) * time.Millisecond
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Name() string { return "remote" }

type analyzeRequest struct {
	Transactions []core.Transaction `json:"transactions"`
}

// Analyze posts the transactions and decodes the report. A response without
// one of the consumed fields yields a *core.MissingFieldError.
func (c *Client) Analyze(ctx context.Context, txs []core.Transaction) (core.Report, error) {
	if txs == nil {
		txs = []core.Transaction{}
	}
	payload, err := json.Marshal(analyzeRequest{Transactions: txs})
	if err != nil {
		return core.Report{}, fmt.Errorf("marshaling analysis request: %w", err)
	}

	body, err := c.post(ctx, payload)
	if err != nil {
		return core.Report{}, err
	}

	report, err := core.DecodeReport(body)
	if err != nil {
		return core.Report{}, fmt.Errorf("analysis response: %w", err)
	}
	return report, nil
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	url := c.baseURL + analyzePath
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff(attempt - 1)):
			}
		}

		body, err := c.do(ctx, url, payload)
		if err == nil {
			c.logger.DebugContext(ctx, "Analysis service responded",
				log.FieldOperation, log.OpAnalyze,
				"attempt", attempt+1,
				log.FieldDuration, time.Since(start).Milliseconds(),
				"bytes", len(body))
			return body, nil
		}
		lastErr = err

		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			break
		}
		if errors.Is(err, ErrResponseTooLarge) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		c.logger.WarnContext(ctx, "Analysis request failed, retrying", log.FieldError, err.Error(), "attempt", attempt+1)
	}

	c.logger.ErrorContext(ctx, "Analysis request failed",
		log.FieldError, lastErr.Error(),
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending analysis request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading analysis response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, maxResponseSize)
	}
	return body, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
