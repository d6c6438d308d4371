package augmecon

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/augmecon/internal/optimization"
)

// auxConstraint pins one objective to its optimum while another is solved.
const auxConstraint = "augmecon_aux"

// buildPayoffTable solves every objective alone for the diagonal, then every
// objective j with objective i pinned to its optimum for entry (i, j). All
// entries are rounded to payoffPrecision decimals.
func buildPayoffTable(ctx context.Context, s *session) (*mat.Dense, []float64, error) {
	const op = "buildPayoffTable"
	p := s.objectives()
	table := mat.NewDense(p, p, nil)
	ideal := make([]float64, p)

	for i := 1; i <= p; i++ {
		if err := s.model.Activate(i); err != nil {
			return nil, nil, optimization.WrapErrorf(err, "activating objective %d", i).WithOperation(op)
		}
		if err := s.solveOptimal(ctx, StagePayoff, fmt.Sprintf("objective %d alone", i)); err != nil {
			return nil, nil, err
		}
		v, err := s.value(i)
		if err != nil {
			return nil, nil, err
		}
		v = Round(v, payoffPrecision)
		table.Set(i-1, i-1, v)
		ideal[i-1] = v
		if err := s.model.Deactivate(i); err != nil {
			return nil, nil, optimization.WrapErrorf(err, "deactivating objective %d", i).WithOperation(op)
		}
	}

	for i := 1; i <= p; i++ {
		for j := 1; j <= p; j++ {
			if i == j {
				continue
			}
			v, err := solvePinned(ctx, s, j, i, table.At(i-1, i-1))
			if err != nil {
				return nil, nil, err
			}
			table.Set(i-1, j-1, Round(v, payoffPrecision))
		}
	}

	s.logger.Info("payoff table built",
		zap.Float64s("ideal_point", ideal),
		zap.Int("solves", s.solves[StagePayoff]),
	)
	return table, ideal, nil
}

// solvePinned optimizes objective active with objective pinned fixed at value
// and returns the optimum of active.
func solvePinned(ctx context.Context, s *session, active, pinned int, value float64) (float64, error) {
	const op = "solvePinned"
	if err := s.model.Activate(active); err != nil {
		return 0, optimization.WrapErrorf(err, "activating objective %d", active).WithOperation(op)
	}
	err := s.model.AddConstraint(optimization.Constraint{
		Name: auxConstraint,
		LHS:  optimization.Sum(optimization.Obj(pinned, 1)),
		Op:   optimization.Eq,
		RHS:  optimization.Const(value),
	})
	if err != nil {
		return 0, optimization.WrapErrorf(err, "pinning objective %d", pinned).WithOperation(op)
	}
	what := fmt.Sprintf("objective %d with objective %d pinned at %v", active, pinned, value)
	if err := s.solveOptimal(ctx, StagePayoff, what); err != nil {
		return 0, err
	}
	v, err := s.value(active)
	if err != nil {
		return 0, err
	}
	if err := s.model.RemoveConstraint(auxConstraint); err != nil {
		return 0, optimization.WrapError(err, "removing pin").WithOperation(op)
	}
	if err := s.model.Deactivate(active); err != nil {
		return 0, optimization.WrapErrorf(err, "deactivating objective %d", active).WithOperation(op)
	}
	return v, nil
}
