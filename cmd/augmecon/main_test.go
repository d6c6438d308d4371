package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/augmecon/internal/optimization"
	"github.com/copyleftdev/augmecon/internal/optimization/optimizationtest"
)

func writeModel(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "energy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(optimizationtest.EnergyYAML), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestRunJSON(t *testing.T) {
	exportDir, logDir := t.TempDir(), t.TempDir()
	out, err := execute(t, "run",
		"--model", writeModel(t),
		"--grid-points", "10",
		"--early-exit", "--bypass-coefficient",
		"--precision", "2",
		"--export-dir", exportDir,
		"--export-format", "csv",
		"--log-dir", logDir,
		"--log-level", "error",
		"--json",
	)
	require.NoError(t, err)

	var res jsonResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []string{"cost", "emissions", "fossil"}, res.Objectives)
	assert.Equal(t, 9, res.PayoffSolves)
	assert.Equal(t, 100, res.ModelsSolved+res.Skipped)
	optimizationtest.AssertRowsEqual(t, res.ParetoSet, optimizationtest.EnergyPareto, 1e-6)
	optimizationtest.AssertRowsEqual(t, res.PayoffTable, optimizationtest.EnergyPayoff, 1e-6)

	assert.Equal(t, filepath.Join(exportDir, res.Name+".csv"), res.ExportPath)
	assert.FileExists(t, res.ExportPath)
	assert.FileExists(t, filepath.Join(logDir, res.Name+".log"))
}

func TestRunSummary(t *testing.T) {
	out, err := execute(t, "run",
		"-m", writeModel(t),
		"-g", "4",
		"--name", "coarse",
		"--nadir", "62460,37000",
		"--export-dir", "",
		"--log-dir", "",
		"--log-level", "error",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Run coarse_")
	assert.Contains(t, out, "Payoff table")
	assert.Contains(t, out, "Pareto set")
	assert.Contains(t, out, "emissions")
	assert.NotContains(t, out, "Exported to")
}

func TestRunErrors(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err, "--model is required")

	_, err = execute(t, "run", "-m", filepath.Join(t.TempDir(), "missing.yaml"), "--log-dir", "")
	assert.Error(t, err)

	_, err = execute(t, "run", "-m", writeModel(t), "--export-format", "parquet", "--log-dir", "")
	assert.True(t, errors.Is(err, optimization.ErrConfiguration))

	_, err = execute(t, "run", "-m", writeModel(t), "-g", "1", "--export-dir", "", "--log-dir", "")
	assert.True(t, errors.Is(err, optimization.ErrConfiguration))

	_, err = execute(t, "run", "-m", writeModel(t), "--nadir", "1", "--export-dir", "", "--log-dir", "")
	assert.True(t, errors.Is(err, optimization.ErrConfiguration))
}
