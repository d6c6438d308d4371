package linprog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/augmecon/internal/optimization"
	"github.com/copyleftdev/augmecon/internal/optimization/linprog"
	"github.com/copyleftdev/augmecon/internal/optimization/optimizationtest"
)

func TestParseEnergy(t *testing.T) {
	def, err := linprog.Parse([]byte(optimizationtest.EnergyYAML))
	require.NoError(t, err)
	assert.Equal(t, "energy", def.Name)
	assert.Len(t, def.Variables, 13)
	assert.Len(t, def.Constraints, 7)
	assert.Equal(t, []string{"cost", "emissions", "fossil"}, def.ObjectiveNames())

	m, err := def.Build()
	require.NoError(t, err)
	assert.Equal(t, 13, m.NumVariables())
	assert.Equal(t, 7, m.NumConstraints())
	for i := 1; i <= 3; i++ {
		s, err := m.Sense(i)
		require.NoError(t, err)
		assert.Equal(t, optimization.Minimize, s)
	}
}

func TestParseJSON(t *testing.T) {
	src := `{
		"name": "tiny",
		"variables": [{"name": "x", "lower": 1, "upper": 4}, {"name": "y"}],
		"parameters": {"cap": 6},
		"objectives": [
			{"sense": "max", "terms": {"x": 1, "y": 1}},
			{"sense": "min", "terms": {"y": 1}, "constant": 2}
		],
		"constraints": [{"name": "cap", "terms": {"x": 1, "y": 1, "cap": -1}, "op": "<=", "rhs": 0}]
	}`
	def, err := linprog.Parse([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, def.ObjectiveNames())

	m, err := def.Build()
	require.NoError(t, err)
	require.NoError(t, m.Activate(1))
	status, err := m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, optimization.StatusOptimal, status)
	v, err := m.ObjectiveValue(1)
	require.NoError(t, err)
	assert.InDelta(t, 6, v, 1e-9)

	require.NoError(t, m.Deactivate(1))
	require.NoError(t, m.Activate(2))
	status, err = m.Solve(context.Background())
	require.NoError(t, err)
	require.Equal(t, optimization.StatusOptimal, status)
	v, err = m.ObjectiveValue(2)
	require.NoError(t, err)
	assert.InDelta(t, 2, v, 1e-9)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{
			name: "no objectives",
			src:  "name: empty\nvariables: [{name: x}]\n",
			want: optimization.ErrModel,
		},
		{
			name: "unknown term",
			src:  "variables: [{name: x}]\nobjectives: [{sense: min, terms: {z: 1}}]\n",
			want: optimization.ErrModel,
		},
		{
			name: "duplicate objective",
			src:  "variables: [{name: x}]\nobjectives: [{name: a, sense: min, terms: {x: 1}}, {name: a, sense: max, terms: {x: 1}}]\n",
			want: optimization.ErrModel,
		},
		{
			name: "upper below lower",
			src:  "variables: [{name: x, lower: 3, upper: 1}]\nobjectives: [{sense: min, terms: {x: 1}}]\n",
			want: optimization.ErrModel,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := linprog.Parse([]byte(tt.src))
			require.NoError(t, err)
			_, err = def.Build()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	t.Run("bad sense", func(t *testing.T) {
		def, err := linprog.Parse([]byte("variables: [{name: x}]\nobjectives: [{sense: sideways, terms: {x: 1}}]\n"))
		require.NoError(t, err)
		_, err = def.Build()
		assert.Error(t, err)
	})

	t.Run("bad relation", func(t *testing.T) {
		def, err := linprog.Parse([]byte("variables: [{name: x}]\nobjectives: [{sense: min, terms: {x: 1}}]\nconstraints: [{name: c, terms: {x: 1}, op: '!=', rhs: 1}]\n"))
		require.NoError(t, err)
		_, err = def.Build()
		assert.Error(t, err)
	})

	t.Run("malformed document", func(t *testing.T) {
		_, err := linprog.Parse([]byte("variables: ["))
		assert.Error(t, err)
	})
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "energy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(optimizationtest.EnergyYAML), 0o600))

	def, err := linprog.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "energy", def.Name)

	_, err = linprog.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
