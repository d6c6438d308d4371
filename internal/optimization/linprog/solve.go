package linprog

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/copyleftdev/augmecon/internal/optimization"
)

const (
	// SolverName is the only backend this package provides.
	SolverName = "simplex"
	// SolverIO is the only interface mode: the solver runs in-process.
	SolverIO = "direct"

	// rankTol is the relative tolerance below which a reduced row counts as
	// linearly dependent.
	rankTol = 1e-9

	// feasibilityTol is the largest violation of a unit-scaled row that still
	// counts as feasible.
	feasibilityTol = 1e-9
)

// standardForm is minimize c·y s.t. A·y = b, y >= 0 where y is the vector of
// shifted structural variables followed by slack columns.
type standardForm struct {
	c    []float64
	rows [][]float64
	b    []float64

	// nStruct is the number of leading columns that belong to variables.
	nStruct int
}

// Solve optimizes the active objective.
func (m *Model) Solve(ctx context.Context) (optimization.Status, error) {
	const op = "Solve"
	m.invalidate()
	if err := ctx.Err(); err != nil {
		return optimization.StatusNotSolved, err
	}

	var active *objective
	for _, o := range m.objectives {
		if !o.active {
			continue
		}
		if active != nil {
			return optimization.StatusNotSolved, optimization.ModelErrorf("more than one active objective").
				WithComponent(component).WithOperation(op)
		}
		active = o
	}
	if active == nil {
		return optimization.StatusNotSolved, optimization.ModelErrorf("no active objective").
			WithComponent(component).WithOperation(op)
	}

	sf, err := m.standardForm(active)
	if err != nil {
		return optimization.StatusNotSolved, optimization.WrapError(err, "building standard form").
			WithComponent(component).WithOperation(op)
	}

	y, status, err := sf.solve(m.tolerance)
	if err != nil {
		return optimization.StatusNotSolved, optimization.WrapError(err, "simplex").
			WithComponent(component).WithOperation(op)
	}
	m.status = status
	if status != optimization.StatusOptimal {
		return status, nil
	}

	x := make([]float64, len(m.vars))
	for i, v := range m.vars {
		yi := y[i]
		if yi < 0 && yi > -m.tolerance {
			yi = 0
		}
		x[i] = v.lower + yi
	}
	m.x = x
	return status, nil
}

// standardForm converts the model into equality form over non-negative
// columns. Variable x_i becomes y_i = x_i - lower_i.
func (m *Model) standardForm(obj *objective) (*standardForm, error) {
	n := len(m.vars)
	lower := make([]float64, n)
	for i, v := range m.vars {
		lower[i] = v.lower
	}

	type row struct {
		a   []float64
		op  optimization.Op
		rhs float64
	}
	rows := make([]row, 0, len(m.constraints)+n)
	for _, c := range m.constraints {
		a, k, err := m.linearize(c.LHS.Plus(c.RHS.Scale(-1)))
		if err != nil {
			return nil, err
		}
		// a·x + k op 0  =>  a·y op -k - a·lower
		rhs := -k
		for i := range a {
			rhs -= a[i] * lower[i]
		}
		rows = append(rows, row{a: a, op: c.Op, rhs: rhs})
	}
	for i, v := range m.vars {
		if math.IsInf(v.upper, 1) {
			continue
		}
		a := make([]float64, n)
		a[i] = 1
		rows = append(rows, row{a: a, op: optimization.Le, rhs: v.upper - v.lower})
	}

	nSlack := 0
	for _, r := range rows {
		if r.op != optimization.Eq {
			nSlack++
		}
	}

	sf := &standardForm{
		c:       make([]float64, n+nSlack),
		rows:    make([][]float64, 0, len(rows)),
		b:       make([]float64, 0, len(rows)),
		nStruct: n,
	}

	coefs, _, err := m.linearize(obj.base.Plus(obj.aug))
	if err != nil {
		return nil, err
	}
	// The simplex minimizes.
	sign := -obj.sense.Sign()
	for i, c := range coefs {
		sf.c[i] = sign * c
	}

	slack := n
	for _, r := range rows {
		full := make([]float64, n+nSlack)
		copy(full, r.a)
		switch r.op {
		case optimization.Le:
			full[slack] = 1
			slack++
		case optimization.Ge:
			full[slack] = -1
			slack++
		}
		sf.rows = append(sf.rows, full)
		sf.b = append(sf.b, r.rhs)
	}
	return sf, nil
}

// solve runs the simplex on the standard form and returns one value per
// column of the original standard form.
func (sf *standardForm) solve(tol float64) ([]float64, optimization.Status, error) {
	nCols := len(sf.c)
	y := make([]float64, nCols)

	// Drop all-zero rows; a zero row with a non-zero right-hand side can never
	// be satisfied.
	rows := make([][]float64, 0, len(sf.rows))
	b := make([]float64, 0, len(sf.b))
	for i, r := range sf.rows {
		if maxAbs(r) == 0 {
			if math.Abs(sf.b[i]) > tol*math.Max(1, math.Abs(sf.b[i])) {
				return nil, optimization.StatusInfeasible, nil
			}
			continue
		}
		rows = append(rows, r)
		b = append(b, sf.b[i])
	}

	// Columns that appear in no row are free to move on their own: they sit at
	// zero unless their cost makes the problem unbounded.
	keep := make([]int, 0, nCols)
	for j := 0; j < nCols; j++ {
		zero := true
		for _, r := range rows {
			if r[j] != 0 {
				zero = false
				break
			}
		}
		if !zero {
			keep = append(keep, j)
			continue
		}
		if sf.c[j] < 0 {
			return nil, optimization.StatusUnbounded, nil
		}
	}
	if len(keep) == 0 || len(rows) == 0 {
		return y, optimization.StatusOptimal, nil
	}

	if len(rows) > len(keep) {
		var ok bool
		rows, b, ok = independentRows(rows, b)
		if !ok {
			return nil, optimization.StatusInfeasible, nil
		}
	}

	x, err := simplex(sf.c, rows, b, keep, tol)
	if errors.Is(err, lp.ErrSingular) {
		var ok bool
		rows, b, ok = independentRows(rows, b)
		if !ok {
			return nil, optimization.StatusInfeasible, nil
		}
		x, err = simplex(sf.c, rows, b, keep, tol)
	}
	if err != nil && !errors.Is(err, lp.ErrUnbounded) {
		// The built-in phase one judges feasibility with a fixed absolute
		// tolerance. Confirm the failure against feasibilityTol instead and
		// keep the first verdict when that check cannot finish.
		x2, err2 := reduce(sf.c, rows, b, keep).twoPhase(tol)
		if err2 == nil || errors.Is(err2, lp.ErrInfeasible) || errors.Is(err2, lp.ErrUnbounded) {
			x, err = x2, err2
		}
	}
	switch {
	case err == nil:
	case errors.Is(err, lp.ErrInfeasible):
		return nil, optimization.StatusInfeasible, nil
	case errors.Is(err, lp.ErrUnbounded):
		return nil, optimization.StatusUnbounded, nil
	default:
		return nil, optimization.StatusNotSolved, err
	}

	for k, j := range keep {
		y[j] = x[k]
	}
	return y, optimization.StatusOptimal, nil
}

// reduced is the problem restricted to the kept columns. Every row is scaled
// to unit magnitude so that tol means the same for a row with coefficients
// near 1 and one with a right-hand side in the millions.
type reduced struct {
	c []float64
	a *mat.Dense
	b []float64
}

func reduce(cost []float64, rows [][]float64, b []float64, keep []int) *reduced {
	m, n := len(rows), len(keep)
	data := make([]float64, 0, m*n)
	rhs := make([]float64, m)
	for i, r := range rows {
		scale := math.Abs(b[i])
		for _, j := range keep {
			scale = math.Max(scale, math.Abs(r[j]))
		}
		for _, j := range keep {
			data = append(data, r[j]/scale)
		}
		rhs[i] = b[i] / scale
	}
	c := make([]float64, n)
	for k, j := range keep {
		c[k] = cost[j]
	}
	return &reduced{c: c, a: mat.NewDense(m, n, data), b: rhs}
}

// simplex solves the reduced problem over the kept columns.
func simplex(cost []float64, rows [][]float64, b []float64, keep []int, tol float64) ([]float64, error) {
	r := reduce(cost, rows, b, keep)
	_, x, err := lp.Simplex(r.c, r.a, r.b, tol, nil)
	return x, err
}

// twoPhase solves the problem from explicit starting bases. Phase one
// minimizes the sum of one artificial column per row; the problem is
// infeasible when an artificial stays above feasibilityTol. Phase two starts
// from the phase one point with the right-hand side moved onto it, so the
// result satisfies every row to within feasibilityTol.
func (r *reduced) twoPhase(tol float64) ([]float64, error) {
	m, n := r.a.Dims()

	a1 := mat.NewDense(m, n+m, nil)
	c1 := make([]float64, n+m)
	start := make([]int, m)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			a1.Set(i, j, r.a.At(i, j))
		}
		sign := 1.0
		if r.b[i] < 0 {
			sign = -1
		}
		a1.Set(i, n+i, sign)
		c1[n+i] = 1
		start[i] = n + i
	}
	x1, err := simplexFrom(c1, a1, r.b, tol, start)
	if err != nil {
		return nil, err
	}
	for i := 0; i < m; i++ {
		if x1[n+i] > feasibilityTol {
			return nil, lp.ErrInfeasible
		}
	}

	y := x1[:n]
	for j, v := range y {
		if v < 0 {
			y[j] = 0
		}
	}
	basis, ok := feasibleBasis(r.a, y)
	if !ok {
		return nil, lp.ErrSingular
	}
	if m == n {
		return y, nil
	}
	b2 := mat.NewVecDense(m, nil)
	b2.MulVec(r.a, mat.NewVecDense(n, y))
	return simplexFrom(r.c, r.a, b2.RawVector().Data, tol, basis)
}

// simplexFrom runs lp.Simplex from a starting basis, turning its panic on an
// unusable basis into an error.
func simplexFrom(c []float64, a mat.Matrix, b []float64, tol float64, basis []int) (x []float64, err error) {
	defer func() {
		if p := recover(); p != nil {
			x, err = nil, optimization.SolverFailuref("starting basis rejected: %v", p)
		}
	}()
	_, x, err = lp.Simplex(c, a, b, tol, basis)
	return x, err
}

// feasibleBasis picks m linearly independent columns of a that include every
// positive entry of y. Positive entries whose column depends on the ones
// already picked are reset to zero. It reports false when a has rank below m.
func feasibleBasis(a *mat.Dense, y []float64) ([]int, bool) {
	m, n := a.Dims()
	q := make([][]float64, 0, m)
	basis := make([]int, 0, m)
	picked := make([]bool, n)
	pick := func(j int) bool {
		if len(basis) == m {
			return false
		}
		v := mat.Col(nil, j, a)
		norm := floats.Norm(v, 2)
		// Two Gram-Schmidt passes keep the residual orthogonal.
		for pass := 0; pass < 2; pass++ {
			for _, u := range q {
				floats.AddScaled(v, -floats.Dot(u, v), u)
			}
		}
		rest := floats.Norm(v, 2)
		if rest <= rankTol*norm {
			return false
		}
		floats.Scale(1/rest, v)
		q = append(q, v)
		basis = append(basis, j)
		picked[j] = true
		return true
	}
	for j, v := range y {
		if v > 0 && !pick(j) {
			y[j] = 0
		}
	}
	for j := 0; j < n && len(basis) < m; j++ {
		if !picked[j] {
			pick(j)
		}
	}
	return basis, len(basis) == m
}

// independentRows removes rows that are linear combinations of earlier rows.
// It reports false when a dependent row contradicts the rows it depends on.
func independentRows(rows [][]float64, b []float64) ([][]float64, []float64, bool) {
	type pivotRow struct {
		a   []float64
		b   float64
		col int
	}
	basis := make([]pivotRow, 0, len(rows))
	keptRows := make([][]float64, 0, len(rows))
	keptB := make([]float64, 0, len(b))

	for i, r := range rows {
		scale := math.Max(maxAbs(r), math.Abs(b[i]))
		if scale == 0 {
			continue
		}
		a := append([]float64(nil), r...)
		rhs := b[i]
		for _, p := range basis {
			if f := a[p.col] / p.a[p.col]; f != 0 {
				for j := range a {
					a[j] -= f * p.a[j]
				}
				rhs -= f * p.b
			}
		}
		col, v := argMaxAbs(a)
		if v <= rankTol*scale {
			if math.Abs(rhs) > rankTol*scale {
				return nil, nil, false
			}
			continue
		}
		basis = append(basis, pivotRow{a: a, b: rhs, col: col})
		keptRows = append(keptRows, r)
		keptB = append(keptB, b[i])
	}
	return keptRows, keptB, true
}

func maxAbs(v []float64) float64 {
	_, m := argMaxAbs(v)
	return m
}

func argMaxAbs(v []float64) (int, float64) {
	idx, best := -1, 0.0
	for i, x := range v {
		if a := math.Abs(x); a > best {
			idx, best = i, a
		}
	}
	return idx, best
}
