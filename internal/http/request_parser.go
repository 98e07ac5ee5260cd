// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fintrack/internal/core"
)

const (
	// maxBodyBytes caps request bodies.
	maxBodyBytes = 1 << 20

	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// RequestError carries the status a parse failure maps to.
type RequestError struct {
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RequestError) Unwrap() error { return e.Err }

func badRequest(msg string, err error) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Message: msg, Err: err}
}

func unprocessable(msg string, err error) *RequestError {
	return &RequestError{Status: http.StatusUnprocessableEntity, Message: msg, Err: err}
}

// readBody reads at most maxBodyBytes from r.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &RequestError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large", Err: err}
		}
		return nil, badRequest("failed to read request body", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, badRequest("request body is empty", nil)
	}
	return body, nil
}

type predictionRequest struct {
	Transactions *[]core.Transaction `json:"transactions"`
}

// ParsePredictionRequest decodes {"transactions": [...]}. Malformed JSON is
// a 400; a transaction with a bad amount or date is a 422.
func ParsePredictionRequest(w http.ResponseWriter, r *http.Request) ([]core.Transaction, error) {
	body, err := readBody(w, r)
	if err != nil {
		return nil, err
	}

	var req predictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		if isTransactionError(err) {
			return nil, unprocessable("invalid transaction", err)
		}
		return nil, badRequest("malformed request body", err)
	}
	if req.Transactions == nil {
		return nil, badRequest("transactions is required", nil)
	}
	return *req.Transactions, nil
}

func isTransactionError(err error) bool {
	return errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrInvalidDate) ||
		errors.Is(err, core.ErrMissingDate)
}

// ParseReportRequest decodes a full analysis report supplied by the
// caller. A report missing a required field is a 422.
func ParseReportRequest(w http.ResponseWriter, r *http.Request) (core.Report, error) {
	body, err := readBody(w, r)
	if err != nil {
		return core.Report{}, err
	}

	report, err := core.DecodeReport(body)
	if err != nil {
		if errors.Is(err, core.ErrMissingAnalysisField) {
			return core.Report{}, unprocessable(err.Error(), err)
		}
		return core.Report{}, badRequest("malformed report", err)
	}
	return report, nil
}

// ParseLimit reads ?limit=, defaulting to DefaultHistoryLimit and capping
// at MaxHistoryLimit.
func ParseLimit(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return DefaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, badRequest("limit must be a positive integer", err)
	}
	if n > MaxHistoryLimit {
		n = MaxHistoryLimit
	}
	return n, nil
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *JSONResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *JSONResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// RequireGET is a convenience function for read-only handlers. HEAD is
// accepted too.
func RequireGET(r *http.Request) *JSONResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodHead)
}
