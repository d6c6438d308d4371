// Package optimizationtest holds fixtures and assertions shared by the
// optimization tests.
package optimizationtest

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/augmecon/internal/optimization/linprog"
)

// EnergyYAML is a three-objective power generation planning model. All
// objectives are minimized: cost, CO2 emissions and the amount of oil and
// natural gas burnt.
const EnergyYAML = `
name: energy
variables:
  - {name: LIGN, upper: 31000}
  - {name: LIGN1}
  - {name: LIGN2}
  - {name: OIL, upper: 15000}
  - {name: OIL2}
  - {name: OIL3}
  - {name: NG, upper: 22000}
  - {name: NG1}
  - {name: NG2}
  - {name: NG3}
  - {name: RES, upper: 10000}
  - {name: RES1}
  - {name: RES3}
objectives:
  - name: cost
    sense: minimize
    terms: {LIGN: 30, OIL: 75, NG: 60, RES: 90}
  - name: emissions
    sense: minimize
    terms: {LIGN: 1.44, OIL: 0.72, NG: 0.45}
  - name: fossil
    sense: minimize
    terms: {OIL: 1, NG: 1}
constraints:
  - {name: lign_split, terms: {LIGN: 1, LIGN1: -1, LIGN2: -1}, op: "==", rhs: 0}
  - {name: oil_split, terms: {OIL: 1, OIL2: -1, OIL3: -1}, op: "==", rhs: 0}
  - {name: ng_split, terms: {NG: 1, NG1: -1, NG2: -1, NG3: -1}, op: "==", rhs: 0}
  - {name: res_split, terms: {RES: 1, RES1: -1, RES3: -1}, op: "==", rhs: 0}
  - {name: base_load, terms: {LIGN1: 1, NG1: 1, RES1: 1}, op: ">=", rhs: 38400}
  - {name: middle_load, terms: {LIGN2: 1, OIL2: 1, NG2: 1}, op: ">=", rhs: 19200}
  - {name: peak_load, terms: {OIL3: 1, NG3: 1, RES3: 1}, op: ">=", rhs: 6400}
`

// EnergyPayoff is the payoff table of EnergyYAML.
var EnergyPayoff = [][]float64{
	{3075000, 62460, 33000},
	{3855000, 45180, 37000},
	{3225000, 55260, 23000},
}

// EnergyPareto is the Pareto set of EnergyYAML on a 10 point grid, rounded to
// two decimals and sorted.
var EnergyPareto = [][]float64{
	{3075000, 62460, 33000},
	{3085000, 61980, 32333.33},
	{3108333.33, 60860, 30777.78},
	{3115000, 60540, 30333.33},
	{3131666.67, 59740, 29222.22},
	{3155000, 58620, 27666.67},
	{3178333.33, 57500, 26111.11},
	{3195000, 56700, 25000},
	{3201666.67, 56380, 24555.56},
	{3225000, 55260, 23000},
	{3255000, 54780, 23666.67},
	{3375000, 52860, 26333.33},
	{3495000, 50940, 29000},
	{3615000, 49020, 31666.67},
	{3735000, 47100, 34333.33},
	{3855000, 45180, 37000},
}

// EnergyModel builds a fresh instance of EnergyYAML.
func EnergyModel(t testing.TB) *linprog.Model {
	t.Helper()
	return BuildModel(t, EnergyYAML)
}

// BuildModel parses and builds a model definition, failing the test on error.
func BuildModel(t testing.TB, src string) *linprog.Model {
	t.Helper()
	def, err := linprog.Parse([]byte(src))
	if err != nil {
		t.Fatalf("parsing model: %v", err)
	}
	m, err := def.Build()
	if err != nil {
		t.Fatalf("building model: %v", err)
	}
	return m
}

// AssertFloat64SlicesEqual checks if two float64 slices are approximately equal
func AssertFloat64SlicesEqual(t testing.TB, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

// AssertRowsEqual checks if two row sets are approximately equal, row by row
func AssertRowsEqual(t testing.TB, got, want [][]float64, tol float64) {
	t.Helper()

	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, tol)); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

// AssertMatDimsEqual checks if two matrices have the same dimensions
func AssertMatDimsEqual(t testing.TB, got, want mat.Matrix) {
	t.Helper()

	rg, cg := got.Dims()
	rw, cw := want.Dims()

	if rg != rw || cg != cw {
		t.Fatalf("matrix dimensions mismatch: got %dx%d, want %dx%d", rg, cg, rw, cw)
	}
}

// AssertMatEqual checks if two matrices are approximately equal
func AssertMatEqual(t testing.TB, got, want mat.Matrix, tol float64) {
	t.Helper()

	AssertMatDimsEqual(t, got, want)

	r, c := got.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			g := got.At(i, j)
			w := want.At(i, j)
			if math.Abs(g-w) > tol {
				t.Fatalf("at (%d,%d): got %v, want %v (tolerance %v)", i, j, g, w, tol)
			}
		}
	}
}

// Dense builds a matrix from rows.
func Dense(rows [][]float64) *mat.Dense {
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		m.SetRow(i, r)
	}
	return m
}
