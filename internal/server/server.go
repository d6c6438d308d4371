package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/copyleftdev/augmecon/internal/config"
	apierrors "github.com/copyleftdev/augmecon/internal/errors"
	"github.com/copyleftdev/augmecon/internal/export"
	"github.com/copyleftdev/augmecon/internal/logging"
	"github.com/copyleftdev/augmecon/internal/metrics"
	"github.com/copyleftdev/augmecon/internal/optimization"
	"github.com/copyleftdev/augmecon/internal/optimization/augmecon"
	"github.com/copyleftdev/augmecon/internal/optimization/linprog"
)

// Logger defines the logging interface used by the server
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// JobStatus is the lifecycle state of a frontier job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// FrontierRequest starts a frontier job. Unset options fall back to the
// service configuration.
type FrontierRequest struct {
	Model linprog.Definition `json:"model"`

	Name              string    `json:"name,omitempty"`
	GridPoints        *int      `json:"grid_points,omitempty"`
	NadirPoints       []float64 `json:"nadir_points,omitempty"`
	EarlyExit         *bool     `json:"early_exit,omitempty"`
	BypassCoefficient *bool     `json:"bypass_coefficient,omitempty"`
	Precision         *int      `json:"precision,omitempty"`
	PenaltyWeight     *float64  `json:"penalty_weight,omitempty"`
	ExportFormat      string    `json:"export_format,omitempty"`
}

// Job is the state of one frontier computation. Fields are guarded by the
// server's job lock, the counters are updated by the running computation.
type Job struct {
	ID          string
	Name        string
	Objectives  []string
	Status      JobStatus
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Err         error
	Result      *augmecon.Result
	ExportPath  string
	LogPath     string

	total     int
	processed atomic.Int64

	runner   *augmecon.Runner
	exporter *export.File
	runLog   *logging.RunLog
	cancel   context.CancelFunc
}

// Progress is the share of grid points solved or skipped so far.
func (j *Job) Progress() float64 {
	if j.total == 0 {
		return 0
	}
	return float64(j.processed.Load()) / float64(j.total)
}

// jobObserver counts grid progress and forwards to the metrics observer.
type jobObserver struct {
	job  *Job
	next augmecon.Observer
}

func (o *jobObserver) Solved(stage augmecon.Stage, status optimization.Status) {
	if stage == augmecon.StageGrid {
		o.job.processed.Add(1)
	}
	o.next.Solved(stage, status)
}

func (o *jobObserver) Skipped(index augmecon.GridIndex) {
	o.job.processed.Add(1)
	o.next.Skipped(index)
}

func (o *jobObserver) Finished(r *augmecon.Result, err error) {
	o.next.Finished(r, err)
}

// StatusResponse reports a job.
type StatusResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      JobStatus  `json:"status"`
	Progress    float64    `json:"progress"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	LastUpdated time.Time  `json:"last_update"`
	Error       string     `json:"error,omitempty"`
	Objectives  []string   `json:"objectives"`

	ParetoSet       [][]float64 `json:"pareto_set,omitempty"`
	PayoffTable     [][]float64 `json:"payoff_table,omitempty"`
	Ranges          []float64   `json:"ranges,omitempty"`
	ModelsSolved    int         `json:"models_solved,omitempty"`
	PayoffSolves    int         `json:"payoff_solves,omitempty"`
	Skipped         int         `json:"skipped,omitempty"`
	Infeasible      int         `json:"infeasible,omitempty"`
	DurationSeconds float64     `json:"duration_seconds,omitempty"`
	ExportPath      string      `json:"export_path,omitempty"`
	LogPath         string      `json:"log_path,omitempty"`
}

// Server implements the HTTP and JSON-RPC server for the frontier service.
// It manages frontier jobs and provides endpoints to start, monitor, and
// cancel them.
type Server struct {
	cfg     *config.Config
	logger  Logger
	metrics *metrics.Metrics

	jobs   map[string]*Job
	jobsMu sync.RWMutex

	// slots bounds the number of jobs computing at once.
	slots chan struct{}
	wg    sync.WaitGroup
}

// NewServer creates a new server instance with the given config, logger and
// metrics.
func NewServer(cfg *config.Config, logger Logger, m *metrics.Metrics) *Server {
	maxRuns := cfg.Augmecon.MaxRuns
	if maxRuns < 1 {
		maxRuns = 1
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		jobs:    make(map[string]*Job),
		slots:   make(chan struct{}, maxRuns),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/frontier", s.handleStart)
		r.Get("/frontier", s.handleList)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/frontier/{id}", s.handleCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// Start validates req, builds the model and the run and queues the job.
func (s *Server) Start(req FrontierRequest) (*StatusResponse, error) {
	model, err := req.Model.Build()
	if err != nil {
		return nil, err
	}

	rc := s.cfg.RunConfig()
	if req.Name != "" {
		rc.Name = req.Name
	} else if req.Model.Name != "" {
		rc.Name = req.Model.Name
	}
	if req.GridPoints != nil {
		rc.GridPoints = *req.GridPoints
	}
	rc.NadirPoints = req.NadirPoints
	if req.EarlyExit != nil {
		rc.EarlyExit = *req.EarlyExit
	}
	if req.BypassCoefficient != nil {
		rc.BypassCoefficient = *req.BypassCoefficient
	}
	if req.Precision != nil {
		rc.Precision = *req.Precision
	}
	if req.PenaltyWeight != nil {
		rc.PenaltyWeight = *req.PenaltyWeight
	}
	rc.Timestamp = time.Now()

	now := time.Now()
	job := &Job{
		ID:          uuid.NewString(),
		Name:        augmecon.RunName(rc.Name, rc.Timestamp),
		Objectives:  req.Model.ObjectiveNames(),
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
	}
	jobLogger := s.logger.WithFields(map[string]interface{}{"job_id": job.ID})

	if dir := s.cfg.Augmecon.ExportDir; dir != "" {
		format := s.cfg.Augmecon.ExportFormat
		if req.ExportFormat != "" {
			format = req.ExportFormat
		}
		if job.exporter, err = export.NewFile(dir, format, job.Objectives); err != nil {
			return nil, err
		}
		rc.Exporter = job.exporter
	}

	if dir := s.cfg.Logging.RunDir; dir != "" {
		runLog, err := logging.NewRunLog(dir, job.Name, logging.ParseLevel(s.cfg.Logging.Level))
		if err != nil {
			return nil, optimization.WrapError(err, "opening run log").WithComponent("server")
		}
		job.runLog, job.LogPath = runLog, runLog.Path
		rc.Logger = runLog.Zap(jobLogger)
	} else {
		rc.Logger = logging.NewZapLogger(jobLogger)
	}
	rc.Observer = &jobObserver{job: job, next: s.metrics.Observer()}

	if job.runner, err = augmecon.New(model, rc); err != nil {
		job.closeRunLog(jobLogger)
		if job.LogPath != "" {
			os.Remove(job.LogPath)
		}
		return nil, err
	}
	job.total = gridSize(rc.GridPoints, model.NumObjectives())

	ctx, cancel := context.WithCancel(context.Background())
	job.cancel = cancel

	s.jobsMu.Lock()
	s.jobs[job.ID] = job
	s.jobsMu.Unlock()

	jobLogger.Info("Frontier job queued", map[string]interface{}{
		"run":         job.Name,
		"objectives":  len(job.Objectives),
		"grid_points": rc.GridPoints,
	})

	s.wg.Add(1)
	go s.runJob(ctx, job, jobLogger)

	return s.status(job), nil
}

// runJob waits for a free slot and runs the job.
func (s *Server) runJob(ctx context.Context, job *Job, logger *logging.Logger) {
	defer s.wg.Done()
	defer job.closeRunLog(logger)

	select {
	case <-ctx.Done():
		return
	case s.slots <- struct{}{}:
	}
	defer func() { <-s.slots }()

	s.jobsMu.Lock()
	if job.Status != StatusPending {
		s.jobsMu.Unlock()
		return
	}
	job.Status = StatusRunning
	job.LastUpdated = time.Now()
	s.jobsMu.Unlock()

	s.metrics.RunStarted()
	result, err := job.runner.Run(ctx)

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	now := time.Now()
	job.LastUpdated = now
	if job.Status == StatusCancelled {
		return
	}
	job.EndTime = &now
	if err != nil {
		logger.Error("Frontier job failed", map[string]interface{}{"error": err.Error()})
		job.Status, job.Err = StatusFailed, err
		return
	}
	job.Status, job.Result = StatusCompleted, result
	if job.exporter != nil {
		job.ExportPath = job.exporter.Path
	}
	logger.Info("Frontier job completed", map[string]interface{}{
		"solutions":     len(result.ParetoSet),
		"models_solved": result.ModelsSolved,
		"skipped":       result.Skipped,
	})
}

func (j *Job) closeRunLog(logger *logging.Logger) {
	if j.runLog == nil {
		return
	}
	if err := j.runLog.Close(); err != nil {
		logger.Warn("Closing run log failed", map[string]interface{}{"error": err.Error()})
	}
}

// Status returns the state of job id.
func (s *Server) Status(id string) (*StatusResponse, error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("frontier job %s: %w", id, apierrors.ErrNotFound)
	}
	return s.status(job), nil
}

// List returns every job, oldest first.
func (s *Server) List() []*StatusResponse {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	out := make([]*StatusResponse, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, s.status(job))
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].StartTime.Equal(out[k].StartTime) {
			return out[i].ID < out[k].ID
		}
		return out[i].StartTime.Before(out[k].StartTime)
	})
	return out
}

// Cancel stops job id. Finished jobs cannot be cancelled.
func (s *Server) Cancel(id string) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("frontier job %s: %w", id, apierrors.ErrNotFound)
	}
	if job.Status.terminal() {
		return fmt.Errorf("frontier job %s is %s: %w", id, job.Status, apierrors.ErrConflict)
	}

	job.cancel()
	now := time.Now()
	job.Status = StatusCancelled
	job.EndTime = &now
	job.LastUpdated = now

	s.logger.Info("Frontier job cancelled", map[string]interface{}{
		"job_id": id,
	})
	return nil
}

// status must be called with jobsMu held.
func (s *Server) status(job *Job) *StatusResponse {
	resp := &StatusResponse{
		ID:          job.ID,
		Name:        job.Name,
		Status:      job.Status,
		Progress:    job.Progress(),
		StartTime:   job.StartTime,
		EndTime:     job.EndTime,
		LastUpdated: job.LastUpdated,
		Objectives:  job.Objectives,
		ExportPath:  job.ExportPath,
		LogPath:     job.LogPath,
	}
	if job.Err != nil {
		resp.Error = job.Err.Error()
	}
	if r := job.Result; r != nil {
		resp.Progress = 1
		resp.ParetoSet = r.ParetoSet
		resp.Ranges = r.Ranges
		resp.ModelsSolved = r.ModelsSolved
		resp.PayoffSolves = r.PayoffSolves
		resp.Skipped = r.Skipped
		resp.Infeasible = r.Infeasible
		resp.DurationSeconds = r.Duration().Seconds()
		if r.PayoffTable != nil {
			p, _ := r.PayoffTable.Dims()
			resp.PayoffTable = make([][]float64, p)
			for i := range resp.PayoffTable {
				resp.PayoffTable[i] = r.PayoffTable.RawRowView(i)
			}
		}
	}
	return resp
}

// Close cancels all jobs and waits for their goroutines.
func (s *Server) Close() error {
	s.jobsMu.Lock()
	now := time.Now()
	for _, job := range s.jobs {
		if !job.Status.terminal() {
			job.cancel()
			job.Status = StatusCancelled
			job.EndTime = &now
			job.LastUpdated = now
		}
	}
	s.jobsMu.Unlock()

	s.wg.Wait()
	return nil
}

func gridSize(g, p int) int {
	total := 1
	for i := 1; i < p; i++ {
		total *= g
	}
	return total
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      interface{}       `json:"id"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, -32700, "Parse error", nil, nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, -32600, "Invalid Request", request.ID, nil)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "frontier.start":
		var req FrontierRequest
		if err = decodeParam(request.Params, &req); err == nil {
			result, err = s.Start(req)
		}
	case "frontier.status":
		var p idParam
		if err = decodeParam(request.Params, &p); err == nil {
			result, err = s.Status(p.ID)
		}
	case "frontier.cancel":
		var p idParam
		if err = decodeParam(request.Params, &p); err == nil {
			if err = s.Cancel(p.ID); err == nil {
				result = map[string]string{"status": "cancellation requested"}
			}
		}
	case "frontier.list":
		result = s.List()
	default:
		s.respondWithError(w, -32601, "Method not found", request.ID, nil)
		return
	}

	if err != nil {
		e := apierrors.FromError(err)
		code := -32000
		if e.Status == http.StatusBadRequest {
			code = -32602
		}
		s.respondWithError(w, code, e.Message, request.ID, e)
		return
	}

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

type idParam struct {
	ID string `json:"id"`
}

func decodeParam(params []json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return apierrors.InvalidRequest("missing required parameters")
	}
	if err := json.Unmarshal(params[0], v); err != nil {
		return apierrors.InvalidRequest("invalid parameter format: " + err.Error())
	}
	if p, ok := v.(*idParam); ok && p.ID == "" {
		return apierrors.InvalidRequest("id is required")
	}
	return nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}, data *apierrors.APIError) {
	s.logger.Error("Request error", map[string]interface{}{
		"status":  code,
		"message": message,
	})

	rpcErr := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if data != nil {
		rpcErr["data"] = data
	}
	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   rpcErr,
		"id":      id,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// handleStart handles POST /api/v1/frontier
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req FrontierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.Write(w, apierrors.InvalidRequest(fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	resp, err := s.Start(req)
	if err != nil {
		apierrors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// handleList handles GET /api/v1/frontier
func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.List())
}

// handleStatus handles GET /api/v1/status/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.Status(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCancel handles DELETE /api/v1/frontier/{id}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.Cancel(chi.URLParam(r, "id")); err != nil {
		apierrors.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "cancellation requested",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
