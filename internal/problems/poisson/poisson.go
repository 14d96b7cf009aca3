package poisson

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/san-kum/fembench/internal/bench"
	"github.com/san-kum/fembench/internal/fem"
	"github.com/san-kum/fembench/internal/mesh"
	"github.com/san-kum/fembench/internal/plot"
	"github.com/san-kum/fembench/internal/solver"
	"github.com/san-kum/fembench/internal/storage"
	"github.com/san-kum/fembench/internal/timing"
)

const Name = "Poisson"

// Regions are the timed phases that are plotted and profiled.
var Regions = []string{"matrix assembly", "rhs assembly", "solve"}

var plotStyle = map[string]string{
	bench.Total:       "*",
	"mesh":            "+",
	"setup":           "x",
	"matrix assembly": ">",
	"rhs assembly":    "<",
	"solve":           "d",
}

type Config struct {
	Dim     int             `yaml:"dim"`
	Degrees []int           `yaml:"degrees"`
	Sizes   []int           `yaml:"sizes"`
	KSP     string          `yaml:"ksp"`
	PC      string          `yaml:"pc"`
	Linear  solver.Settings `yaml:"linear"`
}

// DefaultSizes gives meshes that roughly double the number of dofs from
// one size to the next, starting at 1e4.
func DefaultSizes(dim, n int) []int {
	sizes := make([]int, n)
	for x := range sizes {
		sizes[x] = int(math.Pow(1e4*math.Pow(2, float64(x)), 1/float64(dim))) + 1
	}
	return sizes
}

func DefaultConfig() Config {
	return Config{
		Dim:     3,
		Degrees: []int{1, 2, 3},
		Sizes:   DefaultSizes(3, 4),
		KSP:     "cg",
		PC:      "jacobi",
		Linear:  solver.DefaultSettings(),
	}
}

// Source is the gaussian bump f = 10 exp(-((x-0.5)^2 + (y-0.5)^2) / 0.02).
func Source(x []float64) float64 {
	dx, dy := x[0]-0.5, x[1]-0.5
	return 10 * math.Exp(-(dx*dx+dy*dy)/0.02)
}

type Harness struct {
	Config Config
	Ranks  int
	Logger *slog.Logger
}

func NewHarness(cfg Config, ranks int) *Harness {
	return &Harness{Config: cfg, Ranks: ranks, Logger: slog.Default()}
}

func (h *Harness) Benchmark(series storage.Series) *bench.Benchmark {
	cfg := h.Config
	meta := map[string]string{}
	for _, s := range cfg.Sizes {
		meta["cells_"+strconv.Itoa(s)] = strconv.Itoa(mesh.CellsForSize(cfg.Dim, s))
		meta["dofs_"+strconv.Itoa(s)] = strconv.Itoa(int(math.Pow(float64(s+1), float64(cfg.Dim))))
	}
	return &bench.Benchmark{
		Name:   Name,
		Method: "poisson",
		Params: []bench.Param{
			bench.Ints("dim", cfg.Dim),
			bench.Ints("degree", cfg.Degrees...),
			bench.Ints("size", cfg.Sizes...),
		},
		Regions:   []string{"mesh", "setup", "matrix assembly", "rhs assembly", "solve"},
		PlotStyle: plotStyle,
		Meta:      meta,
		Series:    series,
		Logger:    h.Logger,
	}
}

func (h *Harness) ProfileRegions() []string { return Regions }

func (h *Harness) Run(ctx context.Context, p bench.Values, t *timing.Timer) error {
	v, err := p.Ints("dim", "degree", "size")
	if err != nil {
		return err
	}
	_, err = h.Solve(ctx, v[0], v[1], v[2], t)
	return err
}

// Solution is the outcome of one solve.
type Solution struct {
	Space  *fem.FunctionSpace
	U      []float64
	A      *fem.Matrix
	B      []float64
	Result solver.Result
}

// Solve runs -div(grad(u)) = f with homogeneous Dirichlet conditions on the
// whole boundary.
func (h *Harness) Solve(ctx context.Context, dim, degree, size int, t *timing.Timer) (*Solution, error) {
	var m *mesh.Mesh
	err := t.Time(ctx, "mesh", func(context.Context) error {
		var err error
		m, err = mesh.New(dim, size)
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		V     *fem.FunctionSpace
		a, L  fem.Form
		bc    *fem.DirichletBC
		ksp   solver.KSP
		pc    solver.Preconditioner
		ranks = fem.WithRanks(h.Ranks)
		sol   = &Solution{}
	)
	err = t.Time(ctx, "setup", func(context.Context) error {
		var err error
		if V, err = fem.NewFunctionSpace(m, degree, 1); err != nil {
			return err
		}
		stiff, err := fem.NewFormKernel(fem.FormPoisson, dim, degree, 1, 0, nil, fem.KernelOptions{LICM: true})
		if err != nil {
			return err
		}
		src, err := fem.NewSourceKernel(V, degree+2, Source)
		if err != nil {
			return err
		}
		a = fem.Form{Test: V, Trial: V, Kernel: stiff}
		L = fem.Form{Test: V, Kernel: src}
		bc = fem.NewDirichletBC(V, 0, mesh.Markers(dim)...)
		if ksp, err = solver.NewKSP(h.Config.KSP, h.Config.Linear); err != nil {
			return err
		}
		pc, err = solver.NewPC(h.Config.PC, solver.PCOptions{})
		return err
	})
	if err != nil {
		return nil, err
	}
	sol.Space = V

	err = t.Time(ctx, "matrix assembly", func(ctx context.Context) error {
		var err error
		sol.A, err = fem.Assemble(ctx, a, ranks, fem.WithBCs(bc))
		return err
	})
	if err != nil {
		return nil, err
	}
	err = t.Time(ctx, "rhs assembly", func(ctx context.Context) error {
		var err error
		sol.B, err = fem.AssembleVector(ctx, L, ranks, fem.WithBCs(bc))
		return err
	})
	if err != nil {
		return nil, err
	}

	err = t.Time(ctx, "solve", func(ctx context.Context) error {
		if err := pc.Setup(sol.A); err != nil {
			return err
		}
		sol.U = make([]float64, V.Dofs())
		var err error
		sol.Result, err = ksp.Solve(ctx, sol.A, pc, sol.B, sol.U)
		return err
	})
	if err != nil {
		return nil, err
	}
	h.Logger.Debug("poisson solved", "dim", dim, "degree", degree, "size", size,
		"dofs", V.Dofs(), "iterations", sol.Result.Iterations, "residual", sol.Result.Residual)
	return sol, nil
}

// Figures draws the size and degree sweeps of the sequential series and,
// with several rank counts, the parallel scaling and speedup relative to
// the base series.
func (h *Harness) Figures(sel plot.Selection) []plot.Figure {
	cells := make(map[string]float64, len(h.Config.Sizes))
	for _, s := range h.Config.Sizes {
		cells[strconv.Itoa(s)] = float64(mesh.CellsForSize(h.Config.Dim, s))
	}
	seq := sel.Series(1)
	var figs []plot.Figure
	for _, kind := range []plot.Kind{plot.KindPlot, plot.KindLogLog} {
		figs = append(figs, plot.Figure{Series: seq, Options: plot.Options{
			Kind: kind, XAxis: "size", XValues: cells, Regions: Regions,
			Groups: []string{"degree"}, XLabel: "mesh size (cells)", YLabel: "time [s]",
			Title: "Poisson", FigName: fmt.Sprintf("%s_size_%s", Name, kind), Styles: plotStyle,
		}})
	}
	for _, kind := range []plot.Kind{plot.KindBar, plot.KindBarLog} {
		figs = append(figs, plot.Figure{Series: seq, Options: plot.Options{
			Kind: kind, XAxis: "degree", Regions: Regions, Groups: []string{"size"},
			XLabel: "Polynomial degree", YLabel: "time [s]",
			Title: "Poisson", FigName: fmt.Sprintf("%s_degree_%s", Name, kind), Styles: plotStyle,
		}})
	}
	if len(sel.NPs) < 2 {
		return figs
	}
	par := sel.Series()
	for _, kind := range []plot.Kind{plot.KindPlot, plot.KindLogLog} {
		figs = append(figs, plot.Figure{Series: par, Options: plot.Options{
			Kind: kind, XAxis: plot.XNP, Regions: Regions, Groups: []string{"degree", "size"},
			XLabel: "Number of processors", YLabel: "time [s]",
			Title: "Poisson (parallel)", FigName: fmt.Sprintf("PoissonParallel_%s", kind), Styles: plotStyle,
		}})
	}
	base := sel.Base
	figs = append(figs, plot.Figure{Series: sel.WithBase(par), Options: plot.Options{
		Kind:    plot.KindPlot,
		XAxis:   plot.XNP,
		Regions: Regions,
		Groups:  []string{"degree", "size"},
		XLabel:  "Number of processors",
		YLabel:  fmt.Sprintf("Speedup relative to %s on %d core(s)", base.Variant, base.NP),
		Title:   "Poisson (parallel)",
		FigName: "PoissonParallel_speedup",
		Styles:  plotStyle,
		Speedup: &base,
	}})
	return figs
}
