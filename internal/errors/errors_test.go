package errors

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/augmecon/internal/logging"
	"github.com/copyleftdev/augmecon/internal/optimization"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"configuration", optimization.ConfigErrorf("bad nadir"), http.StatusBadRequest, CodeConfiguration},
		{"model", optimization.ModelErrorf("unknown variable"), http.StatusUnprocessableEntity, CodeModel},
		{"solver failure", optimization.WrapError(optimization.SolverFailuref("infeasible"), "payoff"), http.StatusUnprocessableEntity, CodeSolverFailure},
		{"not found", fmt.Errorf("job abc: %w", ErrNotFound), http.StatusNotFound, CodeNotFound},
		{"conflict", ErrConflict, http.StatusConflict, CodeConflict},
		{"cancelled", optimization.WrapError(context.Canceled, "grid"), http.StatusConflict, CodeCancelled},
		{"other", stderrors.New("boom"), http.StatusInternalServerError, CodeInternal},
		{"invalid request", InvalidRequest("missing model"), http.StatusBadRequest, CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := FromError(tt.err)
			require.NotNil(t, e)
			assert.Equal(t, tt.status, e.Status)
			assert.Equal(t, tt.code, e.Code)
		})
	}

	assert.Nil(t, FromError(nil))

	e := FromError(optimization.ConfigErrorf("x").WithOperation("NewGrid").WithComponent("augmecon"))
	assert.Equal(t, "NewGrid", e.Operation)
	assert.Equal(t, "augmecon", e.Component)
}

func TestWrite(t *testing.T) {
	rr := httptest.NewRecorder()
	Write(rr, optimization.ConfigErrorf("got 1 nadir points, need 2"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body struct {
		Error APIError `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, CodeConfiguration, body.Error.Code)
	assert.Contains(t, body.Error.Message, "nadir")
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.DebugLevel, &buf)

	h := RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("grid exploded")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/frontier", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), CodeInternal)
	assert.Contains(t, buf.String(), "grid exploded")
	assert.Contains(t, buf.String(), "Recovered from panic")

	ok := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr = httptest.NewRecorder()
	ok.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
