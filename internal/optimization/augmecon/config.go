package augmecon

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/augmecon/internal/optimization"
)

const (
	// DefaultPrecision is the number of decimals candidate values are rounded
	// to. Two candidates that round to the same tuple are the same point.
	DefaultPrecision = 2

	// DefaultPenaltyWeight scales the slack term added to the primary
	// objective.
	DefaultPenaltyWeight = 0.01

	// DefaultName is used when Config.Name is empty.
	DefaultName = "augmecon"

	// payoffPrecision trims solver noise from payoff entries.
	payoffPrecision = 10

	// slackPrecision trims solver noise from slack values before they are
	// turned into skip counts.
	slackPrecision = 10

	// stepPrecision is applied to slack/step so a slack of exactly k steps is
	// not floored to k-1 by representation error.
	stepPrecision = 9
)

// Config holds the settings of one frontier run.
type Config struct {
	// Name prefixes the run name. A timestamp is appended.
	Name string

	// Timestamp is the time appended to Name. Zero means the time New is
	// called.
	Timestamp time.Time

	// GridPoints is the number of breakpoints per secondary objective.
	// It must be at least 2.
	GridPoints int

	// NadirPoints overrides the payoff-derived worst value of each secondary
	// objective. When set it must hold exactly one value per secondary
	// objective.
	NadirPoints []float64

	// EarlyExit skips the rest of a row once a grid point is infeasible.
	EarlyExit bool

	// BypassCoefficient skips grid points whose solution is already known
	// from the slack of an earlier solve.
	BypassCoefficient bool

	// Precision is the number of decimals used to round candidate values.
	Precision int

	// PenaltyWeight scales the slack term of the augmented objective. Zero
	// selects DefaultPenaltyWeight.
	PenaltyWeight float64

	// Solver is handed to the model untouched, except that the gap is
	// always forced to zero.
	Solver optimization.SolverOptions

	// Logger receives the run log. Nil discards it.
	Logger *zap.Logger

	// Observer is notified of solves and skips. Nil ignores them.
	Observer Observer

	// Exporter receives the result once the run succeeded. Nil skips export.
	Exporter Exporter
}

// DefaultConfig returns a configuration with both pruning strategies enabled.
func DefaultConfig() Config {
	return Config{
		Name:              DefaultName,
		GridPoints:        10,
		EarlyExit:         true,
		BypassCoefficient: true,
		Precision:         DefaultPrecision,
		PenaltyWeight:     DefaultPenaltyWeight,
	}
}

// validate checks the configuration against a model with p objectives. It
// runs before any solve.
func (c *Config) validate(p int) *optimization.Error {
	if p < 2 {
		return optimization.ConfigErrorf("need at least 2 objectives, model has %d", p)
	}
	if c.GridPoints < 2 {
		return optimization.ConfigErrorf("grid points must be at least 2, got %d", c.GridPoints)
	}
	if c.NadirPoints != nil && len(c.NadirPoints) != p-1 {
		return optimization.ConfigErrorf("got %d nadir points, need exactly %d (one per secondary objective)",
			len(c.NadirPoints), p-1)
	}
	for i, v := range c.NadirPoints {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return optimization.ConfigErrorf("nadir point %d is not finite: %v", i+1, v)
		}
	}
	if c.Precision < 0 {
		return optimization.ConfigErrorf("precision must not be negative, got %d", c.Precision)
	}
	if c.PenaltyWeight < 0 || math.IsNaN(c.PenaltyWeight) || math.IsInf(c.PenaltyWeight, 0) {
		return optimization.ConfigErrorf("penalty weight must be a non-negative number, got %v", c.PenaltyWeight)
	}
	if _, ok := enumerationSize(c.GridPoints, p-1); !ok {
		return optimization.ConfigErrorf("%d^%d grid points do not fit the enumeration", c.GridPoints, p-1)
	}
	return nil
}

// enumerationSize returns size^dims, or false when it overflows an int.
func enumerationSize(size, dims int) (int, bool) {
	total := 1
	for i := 0; i < dims; i++ {
		if total > math.MaxInt/size {
			return 0, false
		}
		total *= size
	}
	return total, true
}

// Stage names the part of a run a solve belongs to.
type Stage string

const (
	StagePayoff Stage = "payoff"
	StageGrid   Stage = "grid"
)

// Observer is notified about the progress of a run. Implementations must not
// touch the model.
type Observer interface {
	// Solved is called after every solve.
	Solved(stage Stage, status optimization.Status)
	// Skipped is called for every grid point skipped by pruning.
	Skipped(index GridIndex)
	// Finished is called once at the end of a run. err is nil on success.
	Finished(result *Result, err error)
}

// Exporter writes the final Pareto set somewhere.
type Exporter interface {
	Export(ctx context.Context, result *Result) error
}

type nopObserver struct{}

func (nopObserver) Solved(Stage, optimization.Status) {}
func (nopObserver) Skipped(GridIndex)                 {}
func (nopObserver) Finished(*Result, error)           {}
