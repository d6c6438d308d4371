package augmecon

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/augmecon/internal/optimization"
)

// Grid holds the epsilon breakpoints of the secondary objectives. Row k
// belongs to objective k+2 and is strictly increasing.
type Grid struct {
	points *mat.Dense
	senses []optimization.Sense
	min    []float64
	max    []float64
	ranges []float64
}

// NewGrid derives the breakpoints from a p×p payoff table. senses holds the
// direction of all p objectives; nadir, when non-nil, holds one worst value
// per secondary objective and replaces the payoff-derived minimum of a
// maximized objective or the maximum of a minimized one.
func NewGrid(payoff mat.Matrix, senses []optimization.Sense, nadir []float64, size int) (*Grid, error) {
	const op = "NewGrid"
	p, c := payoff.Dims()
	if p != c || p != len(senses) {
		return nil, optimization.ConfigErrorf("payoff table is %dx%d for %d objectives", p, c, len(senses)).WithOperation(op)
	}
	if p < 2 {
		return nil, optimization.ConfigErrorf("need at least 2 objectives, got %d", p).WithOperation(op)
	}
	if size < 2 {
		return nil, optimization.ConfigErrorf("grid points must be at least 2, got %d", size).WithOperation(op)
	}
	if nadir != nil && len(nadir) != p-1 {
		return nil, optimization.ConfigErrorf("got %d nadir points, need %d", len(nadir), p-1).WithOperation(op)
	}

	d := p - 1
	g := &Grid{
		points: mat.NewDense(d, size, nil),
		senses: append([]optimization.Sense(nil), senses[1:]...),
		min:    make([]float64, d),
		max:    make([]float64, d),
		ranges: make([]float64, d),
	}
	column := make([]float64, p)
	for k := 0; k < d; k++ {
		mat.Col(column, k+1, payoff)
		lo, hi := floats.Min(column), floats.Max(column)
		if nadir != nil {
			if g.senses[k] == optimization.Maximize {
				lo = nadir[k]
			} else {
				hi = nadir[k]
			}
		}
		r := hi - lo
		if !(r > 0) {
			return nil, optimization.ConfigErrorf("objective %d has range %v (min %v, max %v); it must be positive",
				k+2, r, lo, hi).WithOperation(op)
		}
		g.min[k], g.max[k], g.ranges[k] = lo, hi, r
		step := r / float64(size-1)
		for j := 0; j < size-1; j++ {
			g.points.Set(k, j, lo+float64(j)*step)
		}
		g.points.Set(k, size-1, hi)
	}
	return g, nil
}

// Points returns the (p-1)×g breakpoint matrix. It must not be modified.
func (g *Grid) Points() *mat.Dense {
	return g.points
}

// Size returns the number of breakpoints per secondary objective.
func (g *Grid) Size() int {
	_, c := g.points.Dims()
	return c
}

// Dims returns the number of secondary objectives.
func (g *Grid) Dims() int {
	r, _ := g.points.Dims()
	return r
}

// Ranges returns max-min per secondary objective.
func (g *Grid) Ranges() []float64 {
	return append([]float64(nil), g.ranges...)
}

// Min returns the lowest breakpoint per secondary objective.
func (g *Grid) Min() []float64 {
	return append([]float64(nil), g.min...)
}

// Max returns the highest breakpoint per secondary objective.
func (g *Grid) Max() []float64 {
	return append([]float64(nil), g.max...)
}

// Step returns the spacing between breakpoints of secondary objective k
// (0-based).
func (g *Grid) Step(k int) float64 {
	return g.ranges[k] / float64(g.Size()-1)
}

// Bound returns the epsilon bound of secondary objective k at position pos.
// Positions run from the loosest to the tightest bound: upward for a
// maximized objective, downward for a minimized one.
func (g *Grid) Bound(k, pos int) float64 {
	if g.senses[k] == optimization.Maximize {
		return g.points.At(k, pos)
	}
	return g.points.At(k, g.Size()-1-pos)
}
