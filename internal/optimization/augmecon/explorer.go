package augmecon

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/augmecon/internal/optimization"
)

// Candidate is the rounded objective vector found at a grid point: the
// corrected primary value followed by the secondary values.
type Candidate struct {
	Index  GridIndex
	Values []float64
}

// Exploration is the outcome of one scan of the grid.
type Exploration struct {
	Candidates   []Candidate
	ModelsSolved int
	Skipped      int
	Infeasible   int
}

// Explorer scans every grid point of an augmented problem, skipping points
// that pruning proves redundant or infeasible.
type Explorer struct {
	session   *session
	grid      *Grid
	problem   *AugmentedProblem
	earlyExit bool
	bypass    bool
	precision int
	logger    *zap.Logger
	observer  Observer
}

func newExplorer(s *session, grid *Grid, problem *AugmentedProblem, cfg *Config) *Explorer {
	return &Explorer{
		session:   s,
		grid:      grid,
		problem:   problem,
		earlyExit: cfg.EarlyExit,
		bypass:    cfg.BypassCoefficient,
		precision: cfg.Precision,
		logger:    s.logger,
		observer:  s.observer,
	}
}

// Explore visits the grid in enumeration order.
func (e *Explorer) Explore(ctx context.Context) (*Exploration, error) {
	const op = "Explore"
	size, dims := e.grid.Size(), e.grid.Dims()
	skips := NewSkipMap(size, dims)
	out := &Exploration{}

	if err := e.session.model.Activate(1); err != nil {
		return nil, optimization.WrapError(err, "activating primary objective").WithOperation(op)
	}
	defer func() {
		if err := e.session.model.Deactivate(1); err != nil {
			e.logger.Warn("deactivating primary objective failed", zap.Error(err))
		}
	}()

	c := make(GridIndex, dims)
	active := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, optimization.WrapError(err, "grid scan interrupted").WithOperation(op)
		}

		active = skips.Resume(c, active)
		if active > 0 {
			active--
			out.Skipped++
			e.observer.Skipped(c)
			e.logger.Debug("grid point skipped",
				zap.Stringer("index", c),
				zap.Int("skip", active),
			)
		} else {
			cand, err := e.visit(ctx, c, skips)
			if err != nil {
				return nil, err
			}
			out.ModelsSolved++
			active = skips.After(c)
			if cand == nil {
				out.Infeasible++
				e.logger.Info("grid point infeasible",
					zap.Stringer("index", c),
					zap.Int("skip", active),
				)
			} else {
				out.Candidates = append(out.Candidates, *cand)
				e.logger.Info("grid point solved",
					zap.Stringer("index", c),
					zap.Float64s("candidate", cand.Values),
					zap.Int("skip", active),
				)
			}
		}

		if !advance(c, size) {
			break
		}
	}

	e.logger.Info("grid scan finished",
		zap.Int("models_solved", out.ModelsSolved),
		zap.Int("skipped", out.Skipped),
		zap.Int("infeasible", out.Infeasible),
		zap.Int("candidates", len(out.Candidates)),
		zap.Int("marked_points", skips.Len()),
	)
	return out, nil
}

// visit solves the grid point c, records pruning marks and returns the
// candidate, or nil when the point is not optimal.
func (e *Explorer) visit(ctx context.Context, c GridIndex, skips *SkipMap) (*Candidate, error) {
	const op = "visit"
	m := e.session.model
	for k, name := range e.problem.params {
		if err := m.SetParameter(name, e.grid.Bound(k, c[k])); err != nil {
			return nil, optimization.WrapErrorf(err, "setting epsilon at %s", c).WithOperation(op)
		}
	}

	status, err := e.session.solve(ctx, StageGrid)
	if err != nil {
		return nil, optimization.WrapErrorf(err, "grid point %s", c).WithOperation(op)
	}
	if status != optimization.StatusOptimal {
		if e.earlyExit {
			skips.MarkInfeasible(c)
		}
		return nil, nil
	}

	slacks := make([]float64, len(e.problem.slacks))
	for k, name := range e.problem.slacks {
		v, err := m.VariableValue(name)
		if err != nil {
			return nil, optimization.WrapErrorf(err, "reading slack at %s", c).WithOperation(op)
		}
		slacks[k] = v
	}

	if e.bypass {
		jumps := make([]int, len(slacks))
		for k, s := range slacks {
			ratio := Round(Round(s, slackPrecision)/e.grid.Step(k), stepPrecision)
			jumps[k] = int(math.Max(0, math.Floor(ratio)))
		}
		skips.MarkBypass(c, jumps)
	}

	values := make([]float64, e.session.objectives())
	raw, err := e.session.value(1)
	if err != nil {
		return nil, err
	}
	values[0] = Round(e.problem.Correct(raw, slacks), e.precision)
	for i := 2; i <= len(values); i++ {
		v, err := e.session.value(i)
		if err != nil {
			return nil, err
		}
		values[i-1] = Round(v, e.precision)
	}

	return &Candidate{Index: append(GridIndex(nil), c...), Values: values}, nil
}
