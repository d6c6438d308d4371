package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/copyleftdev/augmecon/internal/config"
	apierrors "github.com/copyleftdev/augmecon/internal/errors"
	"github.com/copyleftdev/augmecon/internal/logging"
	"github.com/copyleftdev/augmecon/internal/metrics"
	"github.com/copyleftdev/augmecon/internal/optimization/linprog"
	"github.com/copyleftdev/augmecon/internal/optimization/optimizationtest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testConfig creates a test configuration writing run logs and exports to
// temporary directories.
func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{
		Environment: "test",
	}

	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second

	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "text"
	cfg.Logging.RunDir = t.TempDir()

	cfg.Augmecon.GridPoints = 10
	cfg.Augmecon.EarlyExit = true
	cfg.Augmecon.BypassCoefficient = true
	cfg.Augmecon.Precision = 2
	cfg.Augmecon.PenaltyWeight = 0.01
	cfg.Augmecon.ExportDir = t.TempDir()
	cfg.Augmecon.ExportFormat = "csv"
	cfg.Augmecon.MaxRuns = 2

	return cfg
}

func testLogger(t *testing.T) *logging.Logger {
	return logging.New(logging.DebugLevel, io.Discard)
}

func testServer(t *testing.T, cfg *config.Config) (*Server, chi.Router) {
	srv := NewServer(cfg, testLogger(t), metrics.New(prometheus.NewRegistry()))
	t.Cleanup(func() { srv.Close() })
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	return srv, r
}

func energyRequest(t *testing.T) FrontierRequest {
	def, err := linprog.Parse([]byte(optimizationtest.EnergyYAML))
	require.NoError(t, err)
	return FrontierRequest{Model: *def}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, &buf))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func waitFor(t *testing.T, srv *Server, id string, want JobStatus) *StatusResponse {
	var resp *StatusResponse
	require.Eventually(t, func() bool {
		got, err := srv.Status(id)
		if err != nil {
			return false
		}
		resp = got
		return got.Status == want
	}, 30*time.Second, 10*time.Millisecond)
	return resp
}

func TestRegisterRoutes(t *testing.T) {
	_, r := testServer(t, testConfig(t))

	tests := []struct {
		method      string
		path        string
		shouldExist bool
	}{
		{"POST", "/api/v1/frontier", true},
		{"GET", "/api/v1/frontier", true},
		{"GET", "/api/v1/status/123", true},
		{"DELETE", "/api/v1/frontier/123", true},
		{"POST", "/rpc", true},
		{"GET", "/healthz", false},
		{"GET", "/nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))

			var body struct {
				Error apierrors.APIError `json:"error"`
			}
			_ = json.Unmarshal(rr.Body.Bytes(), &body)
			routeMissing := rr.Code == http.StatusNotFound && body.Error.Code != apierrors.CodeNotFound
			assert.Equal(t, !tt.shouldExist, routeMissing)
		})
	}
}

func TestStartAndStatus(t *testing.T) {
	cfg := testConfig(t)
	srv, r := testServer(t, cfg)

	rr := doJSON(t, r, http.MethodPost, "/api/v1/frontier", energyRequest(t))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	started := decode[StatusResponse](t, rr)
	require.NotEmpty(t, started.ID)
	assert.True(t, strings.HasPrefix(started.Name, "energy_"))
	assert.Equal(t, []string{"cost", "emissions", "fossil"}, started.Objectives)

	waitFor(t, srv, started.ID, StatusCompleted)

	rr = doJSON(t, r, http.MethodGet, "/api/v1/status/"+started.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[StatusResponse](t, rr)

	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 1.0, got.Progress)
	assert.NotNil(t, got.EndTime)
	assert.Empty(t, got.Error)
	assert.Equal(t, 9, got.PayoffSolves)
	assert.Equal(t, 100, got.ModelsSolved+got.Skipped)
	optimizationtest.AssertRowsEqual(t, got.ParetoSet, optimizationtest.EnergyPareto, 1e-6)
	optimizationtest.AssertRowsEqual(t, got.PayoffTable, optimizationtest.EnergyPayoff, 1e-6)

	assert.FileExists(t, got.ExportPath)
	assert.Equal(t, ".csv", got.ExportPath[len(got.ExportPath)-4:])
	require.FileExists(t, got.LogPath)
	runLog, err := os.ReadFile(got.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(runLog), "run finished")

	rr = doJSON(t, r, http.MethodGet, "/api/v1/frontier", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]StatusResponse](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, started.ID, list[0].ID)

	rr = doJSON(t, r, http.MethodDelete, "/api/v1/frontier/"+started.ID, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestStartOptions(t *testing.T) {
	srv, _ := testServer(t, testConfig(t))

	req := energyRequest(t)
	grid, bypass := 5, false
	req.Name = "coarse"
	req.GridPoints = &grid
	req.BypassCoefficient = &bypass
	req.ExportFormat = "xlsx"

	started, err := srv.Start(req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(started.Name, "coarse_"))

	got := waitFor(t, srv, started.ID, StatusCompleted)
	assert.Equal(t, 25, got.ModelsSolved+got.Skipped)
	assert.NotEmpty(t, got.ParetoSet)
	assert.Equal(t, ".xlsx", got.ExportPath[len(got.ExportPath)-5:])
}

func TestStartErrors(t *testing.T) {
	cfg := testConfig(t)
	_, r := testServer(t, cfg)

	one := 1
	badGrid := energyRequest(t)
	badGrid.GridPoints = &one

	badFormat := energyRequest(t)
	badFormat.ExportFormat = "parquet"

	badNadir := energyRequest(t)
	badNadir.NadirPoints = []float64{1}

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"not json", "{", http.StatusBadRequest, apierrors.CodeInvalidRequest},
		{"no objectives", FrontierRequest{Model: linprog.Definition{Name: "empty"}}, http.StatusUnprocessableEntity, apierrors.CodeModel},
		{"grid points", badGrid, http.StatusBadRequest, apierrors.CodeConfiguration},
		{"export format", badFormat, http.StatusBadRequest, apierrors.CodeConfiguration},
		{"nadir points", badNadir, http.StatusBadRequest, apierrors.CodeConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rr *httptest.ResponseRecorder
			if s, ok := tt.body.(string); ok {
				rr = httptest.NewRecorder()
				r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/frontier", strings.NewReader(s)))
			} else {
				rr = doJSON(t, r, http.MethodPost, "/api/v1/frontier", tt.body)
			}
			assert.Equal(t, tt.status, rr.Code)
			body := decode[struct {
				Error apierrors.APIError `json:"error"`
			}](t, rr)
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}

	entries, err := os.ReadDir(cfg.Logging.RunDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected jobs must not leave run logs behind")
}

func TestCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Augmecon.MaxRuns = 1
	srv, r := testServer(t, cfg)

	// Hold the only slot so the job stays pending.
	srv.slots <- struct{}{}

	started, err := srv.Start(energyRequest(t))
	require.NoError(t, err)
	got, err := srv.Status(started.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	rr := doJSON(t, r, http.MethodDelete, "/api/v1/frontier/"+started.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	got, err = srv.Status(started.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.NotNil(t, got.EndTime)
	assert.Empty(t, got.ParetoSet)

	rr = doJSON(t, r, http.MethodDelete, "/api/v1/frontier/"+started.ID, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, r, http.MethodDelete, "/api/v1/frontier/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = doJSON(t, r, http.MethodGet, "/api/v1/status/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	<-srv.slots
	require.NoError(t, srv.Close())
	got, err = srv.Status(started.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int                 `json:"code"`
		Message string              `json:"message"`
		Data    *apierrors.APIError `json:"data"`
	} `json:"error"`
}

func rpc(t *testing.T, h http.Handler, method string, params ...interface{}) rpcResponse {
	rr := doJSON(t, h, http.MethodPost, "/rpc", map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	return decode[rpcResponse](t, rr)
}

func TestJSONRPC(t *testing.T) {
	srv, r := testServer(t, testConfig(t))

	resp := rpc(t, r, "frontier.start", energyRequest(t))
	require.Nil(t, resp.Error)
	var started StatusResponse
	require.NoError(t, json.Unmarshal(resp.Result, &started))
	waitFor(t, srv, started.ID, StatusCompleted)

	resp = rpc(t, r, "frontier.status", map[string]string{"id": started.ID})
	require.Nil(t, resp.Error)
	var got StatusResponse
	require.NoError(t, json.Unmarshal(resp.Result, &got))
	assert.Len(t, got.ParetoSet, len(optimizationtest.EnergyPareto))

	resp = rpc(t, r, "frontier.list")
	require.Nil(t, resp.Error)

	resp = rpc(t, r, "frontier.cancel", map[string]string{"id": started.ID})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32000, resp.Error.Code)
	assert.Equal(t, apierrors.CodeConflict, resp.Error.Data.Code)

	resp = rpc(t, r, "frontier.status", map[string]string{"id": "unknown"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, apierrors.CodeNotFound, resp.Error.Data.Code)

	resp = rpc(t, r, "frontier.status")
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)

	resp = rpc(t, r, "frontier.status", map[string]string{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)

	resp = rpc(t, r, "optimization.start")
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)

	rr := doJSON(t, r, http.MethodPost, "/rpc", map[string]interface{}{"jsonrpc": "1.0", "id": 7, "method": "frontier.list"})
	assert.Equal(t, -32600, decode[rpcResponse](t, rr).Error.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader("{")))
	assert.Equal(t, -32700, decode[rpcResponse](t, rr).Error.Code)
}

func TestClose(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t), metrics.New(prometheus.NewRegistry()))
	assert.NoError(t, srv.Close(), "Close should not return an error")
}

func TestRespondWithError(t *testing.T) {
	srv, _ := testServer(t, testConfig(t))

	tests := []struct {
		name       string
		code       int
		message    string
		id         interface{}
		expectedID interface{}
	}{
		{
			name:       "valid error response",
			code:       -32602,
			message:    "invalid input",
			id:         "123",
			expectedID: "123",
		},
		{
			name:       "nil id",
			code:       -32000,
			message:    "server error",
			id:         nil,
			expectedID: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.respondWithError(rr, tt.code, tt.message, tt.id, nil)

			// JSON-RPC errors travel with a 200 status.
			assert.Equal(t, http.StatusOK, rr.Code)

			var response map[string]interface{}
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))

			errObj, ok := response["error"].(map[string]interface{})
			require.True(t, ok, "response should contain error object")
			assert.Equal(t, float64(tt.code), errObj["code"])
			assert.Equal(t, tt.message, errObj["message"])
			assert.NotContains(t, errObj, "data")
			assert.Equal(t, tt.expectedID, response["id"])
		})
	}
}
