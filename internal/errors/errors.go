// Package errors turns frontier errors into HTTP responses and keeps handler
// panics from taking the service down.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/copyleftdev/augmecon/internal/optimization"
)

// Error codes carried in API error bodies.
const (
	CodeInvalidRequest = "invalid_request"
	CodeConfiguration  = "configuration_error"
	CodeModel          = "model_error"
	CodeSolverFailure  = "solver_failure"
	CodeNotFound       = "not_found"
	CodeConflict       = "conflict"
	CodeCancelled      = "cancelled"
	CodeInternal       = "internal_error"
)

// ErrNotFound and ErrConflict are returned by the job store.
var (
	ErrNotFound = stderrors.New("not found")
	ErrConflict = stderrors.New("conflict")
)

// APIError is the body of an error response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	// Operation and Component are copied from an optimization.Error.
	Operation string `json:"operation,omitempty"`
	Component string `json:"component,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// FromError classifies err.
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}
	var api *APIError
	if stderrors.As(err, &api) {
		return api
	}

	e := &APIError{Message: err.Error()}
	switch {
	case stderrors.Is(err, optimization.ErrConfiguration):
		e.Status, e.Code = http.StatusBadRequest, CodeConfiguration
	case stderrors.Is(err, optimization.ErrModel):
		e.Status, e.Code = http.StatusUnprocessableEntity, CodeModel
	case stderrors.Is(err, optimization.ErrSolverFailure):
		e.Status, e.Code = http.StatusUnprocessableEntity, CodeSolverFailure
	case stderrors.Is(err, ErrNotFound):
		e.Status, e.Code = http.StatusNotFound, CodeNotFound
	case stderrors.Is(err, ErrConflict):
		e.Status, e.Code = http.StatusConflict, CodeConflict
	case stderrors.Is(err, context.Canceled):
		e.Status, e.Code = http.StatusConflict, CodeCancelled
	default:
		e.Status, e.Code = http.StatusInternalServerError, CodeInternal
	}
	if oe, ok := optimization.IsOptimizationError(err); ok {
		e.Operation, e.Component = oe.Op, oe.Component
	}
	return e
}

// InvalidRequest builds a 400 error for a malformed request.
func InvalidRequest(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: message}
}

// Write sends err as a JSON error body with its status code.
func Write(w http.ResponseWriter, err error) {
	e := FromError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": e})
}
