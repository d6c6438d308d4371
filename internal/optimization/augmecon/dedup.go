package augmecon

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Round rounds v half away from zero to places decimals. Negative zero comes
// back as zero so that -0 and 0 compare equal after rounding.
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow(10, float64(places))
	r := math.Round(v*scale) / scale
	if math.IsInf(r, 0) || math.IsNaN(r) {
		// v*scale overflowed; v has no digits beyond places anyway.
		r = v
	}
	if r == 0 {
		return 0
	}
	return r
}

// Deduplicate returns the distinct candidate vectors after rounding to
// precision, sorted lexicographically. Dominated vectors are kept.
func Deduplicate(candidates []Candidate, precision int) [][]float64 {
	rows := make([][]float64, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, c.Values)
	}
	return Unique(rows, precision)
}

// Unique rounds every row to precision and returns the distinct rows sorted
// lexicographically. Applying it to its own output changes nothing.
func Unique(rows [][]float64, precision int) [][]float64 {
	out := make([][]float64, 0, len(rows))
	for _, row := range rows {
		r := make([]float64, len(row))
		for i, v := range row {
			r[i] = Round(v, precision)
		}
		out = append(out, r)
	}
	slices.SortFunc(out, compareRows)
	return slices.CompactFunc(out, func(a, b []float64) bool {
		return compareRows(a, b) == 0
	})
}

func compareRows(a, b []float64) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return len(a) - len(b)
}

// ParetoMatrix stacks rows into a matrix, nil when there are none.
func ParetoMatrix(rows [][]float64) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, row := range rows {
		m.SetRow(i, row)
	}
	return m
}
