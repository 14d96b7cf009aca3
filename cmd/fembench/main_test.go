package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/fembench/internal/storage"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

// executeOut runs the command and returns what it wrote to stdout.
func executeOut(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestPoissonRunPlotExport(t *testing.T) {
	dir := t.TempDir()
	results := filepath.Join(dir, "results")

	require.NoError(t, execute(t, "poisson", "--dim", "2", "--degrees", "1", "--sizes", "2,4",
		"--repeats", "1", "--results", results))
	require.NoError(t, execute(t, "list", "--results", results))
	require.NoError(t, execute(t, "show", "poisson", "--results", results))

	out := filepath.Join(dir, "run.json")
	require.NoError(t, execute(t, "export", "Poisson_np1_Go", "--results", results, "-o", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var exported storage.ExportData
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Equal(t, "Poisson", exported.Run.Benchmark)
	assert.Len(t, exported.Records, 2)

	plots := filepath.Join(dir, "plots")
	require.NoError(t, execute(t, "plot", "Poisson", "--results", results, "--plotdir", plots))
	entries, err := os.ReadDir(plots)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestCahnHilliardElapsed(t *testing.T) {
	elapsed := filepath.Join(t.TempDir(), "elapsed.csv")
	require.NoError(t, execute(t, "cahn-hilliard", "4", "--elapsed-out", elapsed, "--compute-norms"))
	names, values, err := storage.ReadElapsed(elapsed)
	require.NoError(t, err)
	assert.Equal(t, []string{"mesh", "mesh_s", "setup_s", "solve_s"}, names)
	assert.Equal(t, 4.0, values[0])
}

func TestCahnHilliardTableNeedsElapsedOut(t *testing.T) {
	out, err := executeOut(t, "cahn-hilliard", "4")
	require.NoError(t, err)
	assert.NotContains(t, out, "solve_s")

	elapsed := filepath.Join(t.TempDir(), "elapsed.csv")
	out, err = executeOut(t, "cahn-hilliard", "4", "--elapsed-out", elapsed)
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("%20s: ", "solve_s"))
	assert.Contains(t, out, fmt.Sprintf("%20s: %8.2f", "mesh", 4.0))
}

func TestErrors(t *testing.T) {
	results := t.TempDir()
	assert.Error(t, execute(t, "cahn-hilliard", "zero"))
	assert.Error(t, execute(t, "plot", "stokes", "--results", results))
	assert.Error(t, execute(t, "plot", "wave", "--results", results))
	assert.Error(t, execute(t, "poisson", "--preset", "huge", "--results", results))
	assert.Error(t, execute(t, "wave", "--repeats", "0", "--results", results))
}
