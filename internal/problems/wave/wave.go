package wave

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/san-kum/fembench/internal/bench"
	"github.com/san-kum/fembench/internal/fem"
	"github.com/san-kum/fembench/internal/mesh"
	"github.com/san-kum/fembench/internal/parallel"
	"github.com/san-kum/fembench/internal/plot"
	"github.com/san-kum/fembench/internal/storage"
	"github.com/san-kum/fembench/internal/timing"
)

const Name = "Wave"

// Regions are the per-step updates that are plotted and profiled.
var Regions = []string{"p", "phi"}

var plotStyle = map[string]string{
	bench.Total:    "*",
	"mesh":         "+",
	"setup":        "x",
	"p":            ">",
	"phi":          "<",
	"timestepping": "d",
}

// baseCells is the mesh resolution at scale 1.
const baseCells = 145

type Config struct {
	Scales []float64 `yaml:"scales"`
	Dt     float64   `yaml:"dt"`
	Steps  int       `yaml:"steps"`
	// Frequency of the boundary forcing sin(2 pi f t).
	Frequency float64 `yaml:"frequency"`
	// Weak replaces Scales by WeakScale of the rank count.
	Weak bool `yaml:"weak"`
}

func DefaultConfig() Config {
	return Config{
		Scales:    []float64{1.0, 0.707, 0.5, 0.354, 0.25},
		Dt:        0.001,
		Steps:     100,
		Frequency: 5,
	}
}

// MeshSize is the number of intervals per side at the given scale.
func MeshSize(scale float64) int {
	return int(math.Round(baseCells / scale))
}

// WeakScale is the scale that keeps the DOFs per rank of np ranks equal to
// those of one rank at scale 1.
func WeakScale(np int) float64 {
	return 1 / math.Sqrt(float64(max(np, 1)))
}

// Cells is the number of triangles at the given scale.
func Cells(scale float64) int {
	return mesh.CellsForSize(2, MeshSize(scale))
}

// Vertices is the number of P1 dofs at the given scale.
func Vertices(scale float64) int {
	n := MeshSize(scale) + 1
	return n * n
}

type Harness struct {
	Config Config
	Ranks  int
	Logger *slog.Logger
}

func NewHarness(cfg Config, ranks int) *Harness {
	return &Harness{Config: cfg, Ranks: ranks, Logger: slog.Default()}
}

// scales are the mesh scales one run sweeps.
func (h *Harness) scales() []float64 {
	if h.Config.Weak {
		return []float64{WeakScale(h.Ranks)}
	}
	return h.Config.Scales
}

func (h *Harness) Benchmark(series storage.Series) *bench.Benchmark {
	scales := h.scales()
	meta := map[string]string{}
	for _, s := range scales {
		key := fmt.Sprint(s)
		meta["cells_"+key] = strconv.Itoa(Cells(s))
		meta["vertices_"+key] = strconv.Itoa(Vertices(s))
	}
	return &bench.Benchmark{
		Name:      Name,
		Method:    "wave",
		Params:    []bench.Param{bench.Floats("scale", scales...)},
		Regions:   []string{"mesh", "setup", "p", "phi", "timestepping"},
		PlotStyle: plotStyle,
		Meta:      meta,
		Series:    series,
		Logger:    h.Logger,
	}
}

func (h *Harness) ProfileRegions() []string { return Regions }

func (h *Harness) Run(ctx context.Context, p bench.Values, t *timing.Timer) error {
	scale, err := p.Float("scale")
	if err != nil {
		return err
	}
	_, err = h.Solve(ctx, MeshSize(scale), t)
	return err
}

// State is the field pair after time stepping.
type State struct {
	Space  *fem.FunctionSpace
	P, Phi []float64
	Time   float64
}

// Solve integrates the explicit wave equation with mass lumping and a
// leapfrog split of phi, forced by sin(2 pi f t) on the x = 0 boundary.
// The total region is the wall time of the whole run.
func (h *Harness) Solve(ctx context.Context, n int, t *timing.Timer) (*State, error) {
	start := time.Now()
	var m *mesh.Mesh
	err := t.Time(ctx, "mesh", func(context.Context) error {
		var err error
		m, err = mesh.UnitSquare(n)
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		st     = &State{}
		lumped []float64
		action fem.Form
		bc     *fem.DirichletBC
		ranks  = fem.WithRanks(h.Ranks)
	)
	dt := h.Config.Dt
	err = t.Time(ctx, "setup", func(ctx context.Context) error {
		V, err := fem.NewFunctionSpace(m, 1, 1)
		if err != nil {
			return err
		}
		st.Space = V
		st.P = make([]float64, V.Dofs())
		st.Phi = make([]float64, V.Dofs())
		mk, err := fem.NewLumpedMassKernel(V)
		if err != nil {
			return err
		}
		if lumped, err = fem.AssembleVector(ctx, fem.Form{Test: V, Kernel: mk}, ranks); err != nil {
			return err
		}
		ak, err := fem.NewLaplaceActionKernel(V, dt)
		if err != nil {
			return err
		}
		phi := &fem.Function{Space: V, Values: st.Phi}
		action = fem.Form{Test: V, Kernel: ak, Coefficients: []*fem.Function{phi}}
		bc = fem.NewDirichletBC(V, 0, 1)
		return nil
	})
	if err != nil {
		return nil, err
	}

	workers := parallel.NewWorld(h.Ranks).Size
	halfStep := func() {
		parallel.For(len(st.Phi), 1024, workers, func(s, e int) {
			for i := s; i < e; i++ {
				st.Phi[i] -= dt / 2 * st.P[i]
			}
		})
	}
	err = t.Time(ctx, "timestepping", func(ctx context.Context) error {
		for step := 0; step < h.Config.Steps; step++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			stop := t.Region(ctx, "phi")
			halfStep()
			stop()

			stop = t.Region(ctx, "p")
			dp, err := fem.AssembleVector(ctx, action, ranks)
			if err != nil {
				stop()
				return err
			}
			parallel.For(len(st.P), 1024, workers, func(s, e int) {
				for i := s; i < e; i++ {
					st.P[i] += dp[i] / lumped[i]
				}
			})
			bc.SetValue(math.Sin(2 * math.Pi * h.Config.Frequency * st.Time))
			bc.Apply(st.P)
			stop()

			stop = t.Region(ctx, "phi")
			halfStep()
			stop()
			st.Time += dt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.Set(bench.Total, time.Since(start).Seconds())
	h.Logger.Debug("wave done", "n", n, "steps", h.Config.Steps, "t", st.Time, "norm_phi", fem.Norm2(st.Phi))
	return st, nil
}

func dofLabel(dofs float64) string {
	if dofs > 1e6 {
		return fmt.Sprintf("%.2fM", dofs/1e6)
	}
	if dofs > 1e3 {
		return fmt.Sprintf("%dk", int(dofs/1e3))
	}
	return strconv.Itoa(int(dofs))
}

// weakFilter keeps, for each rank count, the run at its weak scale.
func weakFilter(s storage.Series) map[string]string {
	return map[string]string{"scale": fmt.Sprint(WeakScale(s.NP))}
}

// Mode selects a family of wave figures.
type Mode string

const (
	Sequential Mode = "sequential"
	Weak       Mode = "weak"
	Strong     Mode = "strong"
)

// Figures draws the sequential sweep over mesh scales. With several rank
// counts it adds weak and strong scaling with their efficiencies, and the
// speedup relative to the base series.
func (h *Harness) Figures(sel plot.Selection) []plot.Figure {
	figs := h.ModeFigures(Sequential, sel)
	if len(sel.NPs) > 1 {
		figs = append(figs, h.ModeFigures(Weak, sel)...)
		figs = append(figs, h.ModeFigures(Strong, sel)...)
	}
	return figs
}

func (h *Harness) ModeFigures(mode Mode, sel plot.Selection) []plot.Figure {
	zero := 0.0
	var figs []plot.Figure
	switch mode {
	case Sequential:
		cells := make(map[string]float64, len(h.Config.Scales))
		for _, s := range h.Config.Scales {
			cells[fmt.Sprint(s)] = float64(Cells(s))
		}
		for _, kind := range []plot.Kind{plot.KindPlot, plot.KindLogLog} {
			figs = append(figs, plot.Figure{Series: sel.Series(1), Options: plot.Options{
				Kind: kind, XAxis: "scale", XValues: cells, Regions: Regions,
				XLabel: "mesh size (cells)", YLabel: "time [s]", Styles: plotStyle,
				Title: "Explicit wave equation (single core, 2D, mass lumping)", FigName: fmt.Sprintf("%s_%s", Name, kind),
			}})
		}

	case Weak:
		nps := sel.NPs
		if len(nps) == 0 {
			return nil
		}
		last := nps[len(nps)-1]
		dpp := float64(Vertices(WeakScale(last))) / float64(last)
		xlabel := fmt.Sprintf("Number of processors (DOFs per processor: %s)", dofLabel(dpp))
		title := "Explicit wave equation (weak scaling, 2D, mass lumping)"
		for _, kind := range []plot.Kind{plot.KindPlot, plot.KindLogLog} {
			figs = append(figs, plot.Figure{Series: sel.Series(), Options: plot.Options{
				Kind: kind, XAxis: plot.XNP, Regions: Regions, SeriesFilter: weakFilter,
				XLabel: xlabel, YLabel: "time [s]", Title: title, Styles: plotStyle,
				FigName: fmt.Sprintf("WaveWeak_%s", kind),
			}})
		}
		figs = append(figs, plot.Figure{Series: sel.Series(), Options: plot.Options{
			Kind:         plot.KindSemiLogX,
			XAxis:        plot.XNP,
			Regions:      Regions,
			SeriesFilter: weakFilter,
			XLabel:       xlabel,
			YLabel:       fmt.Sprintf("Parallel efficiency w.r.t. %d cores", nps[0]),
			Title:        title,
			FigName:      "WaveWeakEfficiency",
			YMin:         &zero,
			Transform:    plot.WeakEfficiency,
			Styles:       plotStyle,
		}})

	case Strong:
		nps := sel.NPs
		if len(nps) == 0 {
			return nil
		}
		base := sel.Base
		for _, sc := range h.Config.Scales {
			key := fmt.Sprint(sc)
			filter := map[string]string{"scale": key}
			title := fmt.Sprintf("Explicit wave equation (strong scaling, 2D, %.2fM cells, %.2fM DOFs)",
				float64(Cells(sc))/1e6, float64(Vertices(sc))/1e6)
			xlabel := "Number of processors / DOFs per processor"
			for _, kind := range []plot.Kind{plot.KindPlot, plot.KindLogLog} {
				figs = append(figs, plot.Figure{Series: sel.Series(), Options: plot.Options{
					Kind: kind, XAxis: plot.XNP, Regions: Regions, Filter: filter,
					XLabel: xlabel, YLabel: "time [s]", Title: title, Styles: plotStyle,
					FigName: fmt.Sprintf("WaveStrong_%s_%s", key, kind),
				}})
			}
			figs = append(figs, plot.Figure{Series: sel.Series(), Options: plot.Options{
				Kind:      plot.KindSemiLogX,
				XAxis:     plot.XNP,
				Regions:   Regions,
				Filter:    filter,
				XLabel:    xlabel,
				YLabel:    fmt.Sprintf("Parallel efficiency w.r.t. %d cores", nps[0]),
				Title:     title,
				FigName:   fmt.Sprintf("WaveStrongEfficiency_%s", key),
				YMin:      &zero,
				Transform: plot.StrongEfficiency,
				Styles:    plotStyle,
			}})
			figs = append(figs, plot.Figure{Series: sel.WithBase(sel.Series()), Options: plot.Options{
				Kind:    plot.KindPlot,
				XAxis:   plot.XNP,
				Regions: Regions,
				Filter:  filter,
				XLabel:  xlabel,
				YLabel:  fmt.Sprintf("Speedup relative to %s on %d core(s)", base.Variant, base.NP),
				Title:   title,
				FigName: fmt.Sprintf("WaveStrongSpeedup_%s", key),
				Speedup: &base,
				Styles:  plotStyle,
			}})
		}
	}
	return figs
}
