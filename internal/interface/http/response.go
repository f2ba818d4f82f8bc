package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sio4242/Godsaeng-project/internal/domain/shared"
	"github.com/sio4242/Godsaeng-project/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope of every response body.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError is the error part of the envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta carries response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
}

// Stable error codes.
const (
	codeSessionNotFound = "session_not_found"
	codeLedgerMissing   = "ledger_missing"
	codeStorageFailure  = "storage_failure"
	codeInvalidRequest  = "invalid_request"
	codeUnauthorized    = "unauthorized"
	codeInternal        = "internal_server_error"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: requestIDFrom(r.Context()),
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	write(w, status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: requestIDFrom(r.Context()),
	})
}

func write(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeDomainError maps an application error to its status and code.
// Storage details are logged, never returned.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context(), logger.Default()).Error("request failed",
			logger.String("code", code),
			logger.Err(err),
		)
	}
	writeError(w, r, status, code, message)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, shared.ErrSessionNotFound):
		return http.StatusNotFound, codeSessionNotFound, "no open session with that id"
	case errors.Is(err, shared.ErrLedgerMissing):
		return http.StatusInternalServerError, codeLedgerMissing, "progression ledger is not provisioned"
	case errors.Is(err, shared.ErrStorageFailure):
		return http.StatusInternalServerError, codeStorageFailure, "storage is unavailable, try again"
	case errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest, codeInvalidRequest, domainMessage(err)
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, codeUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, codeInternal, "an unexpected error occurred"
	}
}

func domainMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return "invalid request"
}
