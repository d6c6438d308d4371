package augmecon

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/augmecon/internal/optimization"
)

// AugmentedProblem records how the model was transformed: one slack variable,
// one epsilon parameter and one equality constraint per secondary objective,
// and a slack reward added to the primary objective.
type AugmentedProblem struct {
	primary     optimization.Sense
	weight      float64
	ranges      []float64
	coefs       []float64
	slacks      []string
	params      []string
	constraints []string
}

func slackName(objective int) string      { return fmt.Sprintf("augmecon_slack_%d", objective) }
func epsilonName(objective int) string    { return fmt.Sprintf("augmecon_eps_%d", objective) }
func constraintName(objective int) string { return fmt.Sprintf("augmecon_eps_con_%d", objective) }

// augment transforms the session's model. For secondary objective k:
//
//	maximize: f_k - s_k = e_k
//	minimize: f_k + s_k = e_k
//
// and the primary becomes f_1 ± weight · Σ 10^-(r-1) · s_r / range_r, with the
// sign chosen so that slack always improves the primary.
func augment(s *session, ranges []float64, weight float64) (*AugmentedProblem, error) {
	const op = "augment"
	if s.augmented != nil {
		return nil, optimization.ModelErrorf("model is already augmented").WithOperation(op)
	}
	p := s.objectives()
	if len(ranges) != p-1 {
		return nil, optimization.ConfigErrorf("got %d ranges for %d secondary objectives", len(ranges), p-1).WithOperation(op)
	}

	a := &AugmentedProblem{
		primary: s.sense(1),
		weight:  weight,
		ranges:  append([]float64(nil), ranges...),
	}
	reward := optimization.Expr{}
	for k := 0; k < p-1; k++ {
		obj := k + 2
		if !(ranges[k] > 0) {
			return nil, optimization.ConfigErrorf("objective %d has range %v; it must be positive", obj, ranges[k]).WithOperation(op)
		}
		slack, param, con := slackName(obj), epsilonName(obj), constraintName(obj)
		if err := s.model.AddVariable(slack, 0); err != nil {
			return nil, optimization.WrapErrorf(err, "adding slack for objective %d", obj).WithOperation(op)
		}
		if err := s.model.AddParameter(param, 0); err != nil {
			return nil, optimization.WrapErrorf(err, "adding epsilon for objective %d", obj).WithOperation(op)
		}
		// f_k - s_k = e_k when maximizing, f_k + s_k = e_k when minimizing.
		err := s.model.AddConstraint(optimization.Constraint{
			Name: con,
			LHS: optimization.Sum(
				optimization.Obj(obj, 1),
				optimization.Var(slack, -s.sense(obj).Sign()),
			),
			Op:  optimization.Eq,
			RHS: optimization.Sum(optimization.Param(param, 1)),
		})
		if err != nil {
			return nil, optimization.WrapErrorf(err, "adding epsilon constraint for objective %d", obj).WithOperation(op)
		}

		coef := weight * math.Pow(10, -float64(k)) / ranges[k]
		a.coefs = append(a.coefs, coef)
		a.slacks = append(a.slacks, slack)
		a.params = append(a.params, param)
		a.constraints = append(a.constraints, con)
		reward.Terms = append(reward.Terms, optimization.Var(slack, a.primary.Sign()*coef))
	}

	if err := s.model.AugmentObjective(1, reward); err != nil {
		return nil, optimization.WrapError(err, "augmenting primary objective").WithOperation(op)
	}
	s.augmented = a

	s.logger.Info("augmented problem built",
		zap.Stringer("primary_sense", a.primary),
		zap.Float64("penalty_weight", weight),
		zap.Float64s("slack_coefficients", a.coefs),
	)
	return a, nil
}

// Slacks returns the names of the slack variables in secondary order.
func (a *AugmentedProblem) Slacks() []string {
	return append([]string(nil), a.slacks...)
}

// Parameters returns the names of the epsilon parameters in secondary order.
func (a *AugmentedProblem) Parameters() []string {
	return append([]string(nil), a.params...)
}

// Penalty returns the term that was added to the primary objective for the
// given slack values.
func (a *AugmentedProblem) Penalty(slacks []float64) float64 {
	sum := 0.0
	for k, s := range slacks {
		sum += a.coefs[k] * s
	}
	return a.primary.Sign() * sum
}

// Correct recovers the primary objective value from its augmented value.
func (a *AugmentedProblem) Correct(augmented float64, slacks []float64) float64 {
	return augmented - a.Penalty(slacks)
}
