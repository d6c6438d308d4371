// Package augmecon computes the Pareto frontier of a multi-objective model with
// the augmented epsilon-constraint method.
//
// Objective 1 is optimized. Every other objective is turned into a constraint
// whose bound sweeps a grid between its best and worst payoff value, and a
// small reward for constraint slack keeps weakly dominated points out of the
// result.
package augmecon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/augmecon/internal/optimization"
)

// Result is the outcome of a successful run.
type Result struct {
	Name       string
	Objectives int

	PayoffTable *mat.Dense
	IdealPoint  []float64
	Ranges      []float64
	Grid        *mat.Dense

	Candidates []Candidate
	ParetoSet  [][]float64

	// ModelsSolved counts grid solves; PayoffSolves counts the solves that
	// built the payoff table.
	ModelsSolved int
	PayoffSolves int
	Skipped      int
	Infeasible   int

	Started  time.Time
	Finished time.Time
}

// ParetoMatrix returns the Pareto set as a matrix with one row per solution,
// nil when the set is empty.
func (r *Result) ParetoMatrix() *mat.Dense {
	return ParetoMatrix(r.ParetoSet)
}

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Runner drives one frontier computation over one model. A Runner runs once.
type Runner struct {
	cfg     Config
	name    string
	session *session
	logger  *zap.Logger

	mu   sync.Mutex
	used bool
}

// New validates cfg against model and configures the model's solver. No
// solve happens before Run.
func New(model optimization.Model, cfg Config) (*Runner, error) {
	const op = "New"
	if model == nil {
		return nil, optimization.ConfigErrorf("model is nil").WithOperation(op)
	}
	if cfg.PenaltyWeight == 0 {
		cfg.PenaltyWeight = DefaultPenaltyWeight
	}
	if err := cfg.validate(model.NumObjectives()); err != nil {
		return nil, err.WithOperation(op)
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}

	cfg.Solver.Gap = 0
	if err := model.Configure(cfg.Solver); err != nil {
		return nil, optimization.WrapError(err, "configuring solver").WithOperation(op)
	}

	if cfg.Timestamp.IsZero() {
		cfg.Timestamp = time.Now()
	}
	name := RunName(cfg.Name, cfg.Timestamp)
	logger := cfg.Logger.With(zap.String("run", name))
	s, err := newSession(model, cfg.Observer, logger)
	if err != nil {
		return nil, optimization.WrapError(err, "reading model").WithOperation(op)
	}
	return &Runner{cfg: cfg, name: name, session: s, logger: logger}, nil
}

// RunName appends a timestamp to prefix.
func RunName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s", prefix, t.Format("2006-01-02_15-04-05"))
}

// Name returns the run name.
func (r *Runner) Name() string {
	return r.name
}

// Run builds the payoff table, the grid and the augmented problem, explores
// the grid and returns the deduplicated Pareto set. The exporter, if any, is
// called once on success.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	const op = "Run"
	r.mu.Lock()
	if r.used {
		r.mu.Unlock()
		return nil, optimization.ModelErrorf("runner %s has already run", r.name).WithOperation(op)
	}
	r.used = true
	r.mu.Unlock()

	res, err := r.run(ctx)
	if err != nil {
		r.logger.Error("run failed", zap.Error(err))
		r.cfg.Observer.Finished(nil, err)
		return nil, err
	}
	r.cfg.Observer.Finished(res, nil)
	return res, nil
}

func (r *Runner) run(ctx context.Context) (*Result, error) {
	const op = "run"
	res := &Result{
		Name:       r.name,
		Objectives: r.session.objectives(),
		Started:    time.Now(),
	}
	r.logger.Info("run started",
		zap.Int("objectives", res.Objectives),
		zap.Int("grid_points", r.cfg.GridPoints),
		zap.Bool("early_exit", r.cfg.EarlyExit),
		zap.Bool("bypass_coefficient", r.cfg.BypassCoefficient),
	)

	payoff, ideal, err := buildPayoffTable(ctx, r.session)
	if err != nil {
		return nil, optimization.WrapError(err, "building payoff table").WithOperation(op)
	}
	res.PayoffTable, res.IdealPoint = payoff, ideal
	res.PayoffSolves = r.session.solves[StagePayoff]

	grid, err := NewGrid(payoff, r.session.senses, r.cfg.NadirPoints, r.cfg.GridPoints)
	if err != nil {
		return nil, err
	}
	res.Ranges, res.Grid = grid.Ranges(), grid.Points()
	r.logger.Info("grid built",
		zap.Float64s("min", grid.Min()),
		zap.Float64s("max", grid.Max()),
		zap.Float64s("ranges", res.Ranges),
	)

	problem, err := augment(r.session, res.Ranges, r.cfg.PenaltyWeight)
	if err != nil {
		return nil, err
	}

	exp, err := newExplorer(r.session, grid, problem, &r.cfg).Explore(ctx)
	if err != nil {
		return nil, err
	}
	res.Candidates = exp.Candidates
	res.ModelsSolved = exp.ModelsSolved
	res.Skipped = exp.Skipped
	res.Infeasible = exp.Infeasible
	res.ParetoSet = Deduplicate(exp.Candidates, r.cfg.Precision)
	res.Finished = time.Now()

	r.logger.Info("run finished",
		zap.Int("solutions", len(res.ParetoSet)),
		zap.Int("models_solved", res.ModelsSolved),
		zap.Int("skipped", res.Skipped),
		zap.Duration("duration", res.Duration()),
	)

	if r.cfg.Exporter != nil {
		if err := r.cfg.Exporter.Export(ctx, res); err != nil {
			return nil, optimization.WrapError(err, "exporting Pareto set").WithOperation(op)
		}
	}
	return res, nil
}
