package web

// errors.go provides unified JSON error responses. Technical errors
// are logged server-side with the request's correlation ID; clients
// receive a sanitized message plus a stable code they can quote to
// support.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/CRM/internal/ingest"
	"github.com/JonMunkholm/CRM/internal/logging"
	"github.com/JonMunkholm/CRM/internal/store"
)

var errTooManyRequests = errors.New("rate limit exceeded")

// ErrorResponse is the JSON body for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError logs err with full detail and writes a sanitized JSON
// error. The status code is mapped from the error when it carries a
// known type.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", code,
		"error", err.Error(),
	)

	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// classify maps an error to status code, support code, and client
// message. Unknown errors deliberately leak nothing.
func classify(err error) (int, string, string) {
	var fatal *ingest.FatalError

	switch {
	case errors.As(err, &fatal):
		return http.StatusUnprocessableEntity, "IMP001", fatal.Reason

	case errors.Is(err, ingest.ErrTooManyImports):
		return http.StatusTooManyRequests, "IMP002", "too many concurrent imports, try again shortly"

	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "REQ404", "resource not found"

	case store.IsUniqueViolation(err):
		return http.StatusConflict, "DB409", "a customer with this code already exists"

	case errors.Is(err, errTooManyRequests):
		return http.StatusTooManyRequests, "REQ429", "rate limit exceeded"

	case isTimeout(err):
		return http.StatusGatewayTimeout, "DB504", "operation timed out, try again"

	default:
		return http.StatusInternalServerError, "SRV500", "internal error"
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "timeout")
}

// writeError writes a JSON error for a static message without going
// through error classification.
func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	logging.FromContext(r.Context()).Warn("request rejected",
		"path", r.URL.Path,
		"status", status,
		"error", err.Error(),
	)
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: "REQ400"})
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers already sent; nothing left but to log.
		slog.Error("json encode", "error", err)
	}
}
