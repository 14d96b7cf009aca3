package wave

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/fembench/internal/bench"
	"github.com/san-kum/fembench/internal/mesh"
	"github.com/san-kum/fembench/internal/plot"
	"github.com/san-kum/fembench/internal/storage"
	"github.com/san-kum/fembench/internal/timing"
)

func TestMeshSize(t *testing.T) {
	assert.Equal(t, 145, MeshSize(1))
	assert.Equal(t, 290, MeshSize(0.5))
	assert.Equal(t, 2*145*145, Cells(1))
	assert.Equal(t, 146*146, Vertices(1))
}

func TestSolveForcesBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Steps = 3
	for _, ranks := range []int{1, 4} {
		h := NewHarness(cfg, ranks)
		tm := timing.New()
		st, err := h.Solve(context.Background(), 8, tm)
		require.NoError(t, err)
		assert.InDelta(t, 3*cfg.Dt, st.Time, 1e-15)

		want := math.Sin(2 * math.Pi * cfg.Frequency * 2 * cfg.Dt)
		var interior float64
		for n := 0; n < st.Space.NumNodes(); n++ {
			x := st.Space.NodeCoord(n)
			if mesh.OnBoundary(1, x) {
				assert.InDelta(t, want, st.P[n], 1e-12)
			} else if x[0] > 0.5 {
				interior = math.Max(interior, math.Abs(st.P[n]))
			}
		}
		// three steps do not reach the far half of the domain
		assert.Zero(t, interior)

		assert.Equal(t, 3, tm.Count("p"))
		assert.Equal(t, 6, tm.Count("phi"))
		assert.GreaterOrEqual(t, tm.Seconds(bench.Total), tm.Seconds("timestepping"))
	}
}

func TestSolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHarness(DefaultConfig(), 1).Solve(ctx, 4, timing.New())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBenchmarkKeepsWallTotal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scales = []float64{29, 14.5}
	cfg.Steps = 2
	h := NewHarness(cfg, 1)
	b := h.Benchmark(storage.Series{NP: 1, Variant: "Go"})
	assert.Equal(t, "50", b.Meta["cells_29"])

	records, err := b.Run(context.Background(), h.Run)
	require.NoError(t, err)
	require.Len(t, records, 2)
	r := records[1].Regions
	assert.Less(t, r[bench.Total].Mean, r["mesh"].Mean+r["setup"].Mean+r["p"].Mean+r["phi"].Mean+r["timestepping"].Mean)

	st := storage.New(t.TempDir())
	_, err = b.Save(st, records)
	require.NoError(t, err)
	figs := h.Figures(plot.Selection{Variants: []string{"Go"}, NPs: []int{1}, Base: storage.Series{NP: 1, Variant: "Go"}})
	require.Len(t, figs, 2)
	lines, err := figs[0].Lines(st, Name)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, []float64{50, 200}, []float64{lines[0].Points[0].X, lines[0].Points[1].X})
}

func TestScalingFigures(t *testing.T) {
	h := NewHarness(DefaultConfig(), 1)
	sel := plot.Selection{Variants: []string{"Go"}, NPs: []int{1, 2, 4}, Base: storage.Series{NP: 1, Variant: "Go"}}
	figs := h.Figures(sel)
	// 2 sequential, 3 weak, 4 strong per scale
	assert.Len(t, figs, 2+3+4*len(h.Config.Scales))
	assert.Empty(t, h.ModeFigures(Weak, plot.Selection{}))
	strong := h.ModeFigures(Strong, sel)
	require.NotEmpty(t, strong)
	assert.Equal(t, "1", strong[0].Filter["scale"])
	assert.Contains(t, strong[3].Series, sel.Base)
}

func TestWeakBenchmarkRunsWeakScale(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weak = true
	for _, np := range []int{1, 2, 4} {
		b := NewHarness(cfg, np).Benchmark(storage.Series{NP: np, Variant: "Go"})
		require.Len(t, b.Params, 1)
		assert.Equal(t, []any{WeakScale(np)}, b.Params[0].Values)
	}
	assert.Equal(t, 290, MeshSize(WeakScale(4)))
	// DOFs per rank stay close to those of one rank at scale 1
	assert.InDelta(t, float64(Vertices(1)), float64(Vertices(WeakScale(4)))/4, 0.02*float64(Vertices(1)))
}

// storeWeak saves two rank counts that each swept both scales 1 and 0.5.
// The time of a record is np*10 + scale, so every point is traceable.
func storeWeak(t *testing.T) *storage.Store {
	t.Helper()
	st := storage.New(t.TempDir())
	for _, np := range []int{1, 4} {
		series := storage.Series{NP: np, Variant: "Go"}
		meta := storage.RunMetadata{
			Benchmark:  Name,
			Series:     series,
			ParamNames: []string{"scale"},
			Regions:    []string{"p", "phi"},
			Repeats:    1,
		}
		var records []storage.Record
		for _, scale := range []float64{1, 0.5} {
			y := float64(np)*10 + scale
			records = append(records, storage.Record{
				Params: map[string]string{"scale": fmt.Sprint(scale)},
				Regions: map[string]storage.RegionStats{
					"p":   {Samples: []float64{y}, Min: y, Mean: y},
					"phi": {Samples: []float64{2 * y}, Min: 2 * y, Mean: 2 * y},
				},
			})
		}
		_, err := st.Save(meta, records)
		require.NoError(t, err)
	}
	return st
}

func TestWeakFiguresTakeOneScalePerRankCount(t *testing.T) {
	st := storeWeak(t)
	h := NewHarness(DefaultConfig(), 1)
	sel := plot.Selection{Variants: []string{"Go"}, NPs: []int{1, 4}, Base: storage.Series{NP: 1, Variant: "Go"}}
	figs := h.ModeFigures(Weak, sel)
	require.Len(t, figs, 3)

	lines, err := figs[0].Lines(st, Name)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	p := lines[0]
	assert.Equal(t, "p", p.Region)
	require.Len(t, p.Points, 2)
	assert.Equal(t, 1.0, p.Points[0].X)
	assert.Equal(t, 4.0, p.Points[1].X)
	// np 1 at scale 1, np 4 at scale 0.5
	assert.Equal(t, 11.0, p.Points[0].Y)
	assert.Equal(t, 40.5, p.Points[1].Y)

	eff, err := figs[2].Lines(st, Name)
	require.NoError(t, err)
	require.Len(t, eff, 2)
	for _, l := range eff {
		require.Len(t, l.Points, 2)
		assert.Equal(t, 1.0, l.Points[0].Y)
		assert.InDelta(t, 11.0/40.5, l.Points[1].Y, 1e-12)
	}
}
