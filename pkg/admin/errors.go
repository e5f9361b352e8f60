// Error handling utilities for the admin API.
// Registry errors map to fixed codes and safe messages; details go to the log.

package admin

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/getmockd/wshub/pkg/registry"
	"github.com/getmockd/wshub/pkg/tagexpr"
)

// Safe error messages for client responses.
const (
	// ErrMsgInternalError is returned for unexpected internal errors.
	ErrMsgInternalError = "An internal error occurred"

	// ErrMsgInvalidRequest is returned for malformed requests.
	ErrMsgInvalidRequest = "Invalid request format"

	// ErrMsgOperationFailed is returned for generic operation failures.
	ErrMsgOperationFailed = "Operation failed"

	// ErrMsgNotFound is returned when a connection is not live.
	ErrMsgNotFound = "Connection not found"

	// ErrMsgKeyNotFound is returned when a stored key is absent.
	ErrMsgKeyNotFound = "Key not found"

	// ErrMsgConflict is returned when an id is already in use.
	ErrMsgConflict = "Connection id already in use"

	// ErrMsgInvalidState is returned when an operation does not apply to the
	// connection's current state.
	ErrMsgInvalidState = "Operation not allowed in the current connection state"

	// ErrMsgRouteMismatch is returned when a connection is not on the
	// requested route.
	ErrMsgRouteMismatch = "Connection is not on the requested route"

	// ErrMsgTransportGone is returned when a ghost connection has no transport.
	ErrMsgTransportGone = "Connection transport is gone"

	// ErrMsgInvalidTag is returned for an empty tag.
	ErrMsgInvalidTag = "Tag must not be empty"

	// ErrMsgInvalidExpression is returned for a malformed tag expression.
	ErrMsgInvalidExpression = "Invalid tag expression"

	// ErrMsgInvalidOperator is returned for an unknown search operator or a
	// pattern that does not compile.
	ErrMsgInvalidOperator = "Invalid search operator or pattern"

	// ErrMsgBodyTooLarge is returned when a request body exceeds the limit.
	ErrMsgBodyTooLarge = "Request body too large"

	// ErrMsgMetricsDisabled is returned when no metrics registry is wired.
	ErrMsgMetricsDisabled = "Metrics are not enabled"
)

// apiError is the status, code and safe message for an error.
type apiError struct {
	status  int
	code    string
	message string
}

// classifyError maps registry and parser errors onto an HTTP response.
func classifyError(err error) apiError {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return apiError{http.StatusNotFound, "not_found", ErrMsgNotFound}
	case errors.Is(err, registry.ErrConflict):
		return apiError{http.StatusConflict, "conflict", ErrMsgConflict}
	case errors.Is(err, registry.ErrInvalidState):
		return apiError{http.StatusConflict, "invalid_state", ErrMsgInvalidState}
	case errors.Is(err, registry.ErrRouteMismatch):
		return apiError{http.StatusConflict, "route_mismatch", ErrMsgRouteMismatch}
	case errors.Is(err, registry.ErrTransportGone):
		return apiError{http.StatusGone, "transport_gone", ErrMsgTransportGone}
	case errors.Is(err, registry.ErrInvalidTag):
		return apiError{http.StatusBadRequest, "invalid_tag", ErrMsgInvalidTag}
	case errors.Is(err, tagexpr.ErrParse):
		return apiError{http.StatusBadRequest, "invalid_expression", ErrMsgInvalidExpression}
	case errors.Is(err, registry.ErrInvalidOperator):
		return apiError{http.StatusBadRequest, "invalid_operator", ErrMsgInvalidOperator}
	default:
		return apiError{http.StatusBadGateway, "operation_failed", ErrMsgOperationFailed}
	}
}

// writeRegistryError logs err and writes the sanitized response for it.
// Client errors log at debug, everything else at warn.
func writeRegistryError(w http.ResponseWriter, err error, log *slog.Logger, operation string, details ...any) {
	e := classifyError(err)
	if log != nil {
		args := []any{"operation", operation, "error", err}
		args = append(args, details...)
		if e.status >= http.StatusInternalServerError {
			log.Warn("operation failed", args...)
		} else {
			log.Debug("operation rejected", args...)
		}
	}
	writeError(w, e.status, e.code, e.message)
}

// writeBodyError reports a failed body read.
func writeBodyError(w http.ResponseWriter, err error, log *slog.Logger) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", ErrMsgBodyTooLarge)
		return
	}
	if log != nil {
		log.Debug("reading request body failed", "error", err)
	}
	writeError(w, http.StatusBadRequest, "invalid_request", ErrMsgInvalidRequest)
}
