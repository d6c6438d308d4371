package augmecon

import (
	"context"

	"go.uber.org/zap"

	"github.com/copyleftdev/augmecon/internal/optimization"
)

// session is the only path through which a run touches its model. It counts
// solves and turns a missing optimum into a SolverFailure where one is
// required.
type session struct {
	model    optimization.Model
	senses   []optimization.Sense
	observer Observer
	logger   *zap.Logger

	solves map[Stage]int

	augmented *AugmentedProblem
}

func newSession(model optimization.Model, observer Observer, logger *zap.Logger) (*session, error) {
	p := model.NumObjectives()
	senses := make([]optimization.Sense, p)
	for i := range senses {
		s, err := model.Sense(i + 1)
		if err != nil {
			return nil, optimization.WrapErrorf(err, "reading sense of objective %d", i+1)
		}
		senses[i] = s
	}
	return &session{
		model:    model,
		senses:   senses,
		observer: observer,
		logger:   logger,
		solves:   make(map[Stage]int),
	}, nil
}

// objectives returns p.
func (s *session) objectives() int {
	return len(s.senses)
}

// sense returns the direction of the 1-based objective index.
func (s *session) sense(index int) optimization.Sense {
	return s.senses[index-1]
}

// solve runs the solver once. A non-optimal status is not an error.
func (s *session) solve(ctx context.Context, stage Stage) (optimization.Status, error) {
	status, err := s.model.Solve(ctx)
	s.solves[stage]++
	if err != nil {
		return status, optimization.WrapErrorf(err, "%s solve", stage).WithOperation("Solve")
	}
	s.observer.Solved(stage, status)
	return status, nil
}

// solveOptimal runs the solver and fails unless it reaches an optimum.
func (s *session) solveOptimal(ctx context.Context, stage Stage, what string) error {
	status, err := s.solve(ctx, stage)
	if err != nil {
		return err
	}
	if status != optimization.StatusOptimal {
		s.logger.Error("solve did not reach an optimum",
			zap.String("stage", string(stage)),
			zap.String("problem", what),
			zap.Stringer("status", status),
		)
		return optimization.SolverFailuref("%s terminated %s", what, status).WithOperation("Solve")
	}
	return nil
}

// value reads an objective's current value.
func (s *session) value(index int) (float64, error) {
	v, err := s.model.ObjectiveValue(index)
	if err != nil {
		return 0, optimization.WrapErrorf(err, "reading objective %d", index)
	}
	return v, nil
}
