package assembly

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/fembench/internal/fem"
	"github.com/san-kum/fembench/internal/mesh"
	"github.com/san-kum/fembench/internal/plot"
	"github.com/san-kum/fembench/internal/storage"
	"github.com/san-kum/fembench/internal/timing"
)

func TestAssembleAppliesBCs(t *testing.T) {
	for _, ranks := range []int{1, 3} {
		h := NewHarness(DefaultConfig(), ranks)
		tm := timing.New()
		A, err := h.Assemble(context.Background(), 3, 2, 2, "scalar", tm)
		require.NoError(t, err)
		assert.Equal(t, []string{"mesh", "setup", "assembly", "reassembly", "assembly bcs", "reassembly bcs"}, tm.Names())

		// P2 on a 3x3 square has 7x7 nodes
		require.Equal(t, 49, A.Sparsity.Rows)
		m, err := mesh.UnitSquare(3)
		require.NoError(t, err)
		V, err := fem.NewFunctionSpace(m, 2, 1)
		require.NoError(t, err)
		constrained := 0
		for n := 0; n < V.NumNodes(); n++ {
			x := V.NodeCoord(n)
			if !mesh.OnBoundary(3, x) && !mesh.OnBoundary(4, x) {
				continue
			}
			constrained++
			for k := A.Sparsity.Indptr[n]; k < A.Sparsity.Indptr[n+1]; k++ {
				want := 0.0
				if A.Sparsity.Ind[k] == n {
					want = 1
				}
				assert.Equal(t, want, A.Values()[k])
			}
		}
		assert.Equal(t, 2*7, constrained)
		for i := 0; i < A.Sparsity.Rows; i++ {
			for k := A.Sparsity.Indptr[i]; k < A.Sparsity.Indptr[i+1]; k++ {
				j := A.Sparsity.Ind[k]
				assert.InDelta(t, A.At(i, j), A.At(j, i), 1e-12)
			}
		}
	}
}

func TestAssembleVectorSpace(t *testing.T) {
	h := NewHarness(DefaultConfig(), 2)
	A, err := h.Assemble(context.Background(), 2, 1, 3, "vector", timing.New())
	require.NoError(t, err)
	assert.Equal(t, 3*27, A.Sparsity.Rows)

	_, err = h.Assemble(context.Background(), 2, 1, 2, "tensor", timing.New())
	assert.Error(t, err)
}

func TestBenchmarkSweep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sizes = []int{2}
	cfg.Degrees = []int{1, 2}
	cfg.Dims = []int{2}
	h := NewHarness(cfg, 1)
	b := h.Benchmark(storage.Series{NP: 1, Variant: "Go"})
	records, err := b.Run(context.Background(), h.Run)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, map[string]string{"size": "2", "degree": "1", "dim": "2", "fs": "vector"}, records[1].Params)

	st := storage.New(t.TempDir())
	_, err = b.Save(st, records)
	require.NoError(t, err)
	figs := h.Figures(plot.Selection{Variants: []string{"Go"}, NPs: []int{1}, Base: storage.Series{NP: 1, Variant: "Go"}})
	require.Len(t, figs, 4)
	lines, err := figs[0].Lines(st, Name)
	require.NoError(t, err)
	assert.Len(t, lines, len(Regions)*2)
	lines, err = figs[1].Lines(st, Name)
	require.NoError(t, err)
	assert.Len(t, lines, len(Regions))

	paths, err := figs[1].Save(st, Name, t.TempDir())
	require.NoError(t, err)
	assert.NotEmpty(t, paths)
}

func TestParallelFigures(t *testing.T) {
	h := NewHarness(DefaultConfig(), 1)
	figs := h.Figures(plot.Selection{Variants: []string{"Go"}, NPs: []int{1, 2}})
	assert.Len(t, figs, 3*len(h.Config.Dims)*len(h.Config.Spaces))
	assert.Equal(t, []string{"assembly", "reassembly", "assembly bcs", "reassembly bcs"}, h.ProfileRegions())
}
