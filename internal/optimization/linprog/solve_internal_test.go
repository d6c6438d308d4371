package linprog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

func TestTwoPhase(t *testing.T) {
	// x - s1 = lo, x + s2 = hi over columns x, s1, s2.
	rows := [][]float64{{1, -1, 0}, {1, 0, 1}}
	keep := []int{0, 1, 2}
	cost := []float64{1, 0, 0}

	t.Run("bound a rounding error below the optimum", func(t *testing.T) {
		x, err := reduce(cost, rows, []float64{23000, 22999.999999999993}, keep).twoPhase(DefaultTolerance)
		require.NoError(t, err)
		assert.InDelta(t, 23000, x[0], 1e-6)
		assert.InDelta(t, 0, x[1], 1e-6)
		assert.InDelta(t, 0, x[2], 1e-6)
	})

	t.Run("bound well below the optimum", func(t *testing.T) {
		_, err := reduce(cost, rows, []float64{23000, 22999}, keep).twoPhase(DefaultTolerance)
		assert.ErrorIs(t, err, lp.ErrInfeasible)
	})

	t.Run("agrees with the default path", func(t *testing.T) {
		// maximize 3x + 2y s.t. x + y <= 4, x + 3y <= 6
		rows := [][]float64{{1, 1, 1, 0}, {1, 3, 0, 1}}
		cost := []float64{-3, -2, 0, 0}
		keep := []int{0, 1, 2, 3}
		b := []float64{4, 6}

		want, err := simplex(cost, rows, b, keep, DefaultTolerance)
		require.NoError(t, err)
		got, err := reduce(cost, rows, b, keep).twoPhase(DefaultTolerance)
		require.NoError(t, err)
		assert.InDeltaSlice(t, want, got, 1e-9)
		assert.InDelta(t, 4, got[0], 1e-9)
		assert.InDelta(t, 0, got[1], 1e-9)
	})

	t.Run("unbounded", func(t *testing.T) {
		// minimize -x s.t. x - y = 0
		_, err := reduce([]float64{-1, 0}, [][]float64{{1, -1}}, []float64{0}, []int{0, 1}).twoPhase(DefaultTolerance)
		assert.ErrorIs(t, err, lp.ErrUnbounded)
	})
}

func TestFeasibleBasis(t *testing.T) {
	r := reduce([]float64{0, 0, 0}, [][]float64{{1, 2, 0}, {0, 0, 1}}, []float64{1, 1}, []int{0, 1, 2})

	y := []float64{1, 1, 0}
	basis, ok := feasibleBasis(r.a, y)
	require.True(t, ok)
	assert.Equal(t, []int{0, 2}, basis)
	assert.Equal(t, []float64{1, 0, 0}, y, "a positive entry on a dependent column is dropped")

	_, ok = feasibleBasis(reduce([]float64{0, 0}, [][]float64{{1, 2}, {2, 4}}, []float64{1, 2}, []int{0, 1}).a, []float64{0, 0})
	assert.False(t, ok)
}
