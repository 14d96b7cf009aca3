package assembly

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/san-kum/fembench/internal/bench"
	"github.com/san-kum/fembench/internal/fem"
	"github.com/san-kum/fembench/internal/mesh"
	"github.com/san-kum/fembench/internal/plot"
	"github.com/san-kum/fembench/internal/storage"
	"github.com/san-kum/fembench/internal/timing"
)

const Name = "MatrixAssembly"

// Regions are the assembly phases that are plotted and profiled.
var Regions = []string{"assembly", "reassembly", "assembly bcs", "reassembly bcs"}

var plotStyle = map[string]string{
	bench.Total:      "*",
	"mesh":           "+",
	"setup":          "x",
	"assembly":       ">",
	"reassembly":     "<",
	"assembly bcs":   "^",
	"reassembly bcs": "v",
}

type Config struct {
	Sizes   []int    `yaml:"sizes"`
	Degrees []int    `yaml:"degrees"`
	Dims    []int    `yaml:"dims"`
	Spaces  []string `yaml:"spaces"`
	// BCMarkers are the boundary parts constrained in the bcs regions.
	BCMarkers []int `yaml:"bc_markers"`
}

func DefaultConfig() Config {
	return Config{
		Sizes:     []int{8, 16, 32},
		Degrees:   []int{1, 2, 3},
		Dims:      []int{2, 3},
		Spaces:    []string{"scalar", "vector"},
		BCMarkers: []int{3, 4},
	}
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
	return &bench.Benchmark{
		Name:   Name,
		Method: "matrix_assembly",
		Params: []bench.Param{
			bench.Ints("size", h.Config.Sizes...),
			bench.Ints("degree", h.Config.Degrees...),
			bench.Ints("dim", h.Config.Dims...),
			bench.Strings("fs", h.Config.Spaces...),
		},
		Regions:   append([]string{"mesh", "setup"}, Regions...),
		PlotStyle: plotStyle,
		Series:    series,
		Logger:    h.Logger,
	}
}

func (h *Harness) ProfileRegions() []string { return Regions }

func (h *Harness) Run(ctx context.Context, p bench.Values, t *timing.Timer) error {
	v, err := p.Ints("size", "degree", "dim")
	if err != nil {
		return err
	}
	_, err = h.Assemble(ctx, v[0], v[1], v[2], p.String("fs"), t)
	return err
}

func components(fs string, dim int) (int, error) {
	switch fs {
	case "scalar":
		return 1, nil
	case "vector":
		return dim, nil
	}
	return 0, fmt.Errorf("assembly: unknown function space %q", fs)
}

// Assemble times the Laplace operator assembled fresh and into an existing
// matrix, both without and with Dirichlet conditions. The sparsity cache is
// cleared before the first assembly with conditions. It returns the last
// matrix.
func (h *Harness) Assemble(ctx context.Context, size, degree, dim int, fs string, t *timing.Timer) (*fem.Matrix, error) {
	comps, err := components(fs, dim)
	if err != nil {
		return nil, err
	}
	var m *mesh.Mesh
	err = t.Time(ctx, "mesh", func(context.Context) error {
		m, err = mesh.New(dim, size)
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		a  fem.Form
		bc *fem.DirichletBC
	)
	err = t.Time(ctx, "setup", func(context.Context) error {
		V, err := fem.NewFunctionSpace(m, degree, comps)
		if err != nil {
			return err
		}
		k, err := fem.NewFormKernel(fem.FormPoisson, dim, degree, comps, 0, nil, fem.KernelOptions{LICM: true})
		if err != nil {
			return err
		}
		a = fem.Form{Test: V, Trial: V, Kernel: k}
		bc = fem.NewDirichletBC(V, 0, h.Config.BCMarkers...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	ranks := fem.WithRanks(h.Ranks)
	var A *fem.Matrix
	err = t.Time(ctx, "assembly", func(ctx context.Context) error {
		A, err = fem.Assemble(ctx, a, ranks)
		return err
	})
	if err != nil {
		return nil, err
	}
	err = t.Time(ctx, "reassembly", func(ctx context.Context) error {
		return fem.Reassemble(ctx, a, A, ranks)
	})
	if err != nil {
		return nil, err
	}

	fem.ClearSparsityCache()
	err = t.Time(ctx, "assembly bcs", func(ctx context.Context) error {
		A, err = fem.Assemble(ctx, a, ranks, fem.WithBCs(bc))
		return err
	})
	if err != nil {
		return nil, err
	}
	err = t.Time(ctx, "reassembly bcs", func(ctx context.Context) error {
		return fem.Reassemble(ctx, a, A, ranks, fem.WithBCs(bc))
	})
	if err != nil {
		return nil, err
	}
	h.Logger.Debug("assembled", "size", size, "degree", degree, "dim", dim, "fs", fs, "nnz", A.Sparsity.NNZ())
	return A, nil
}

// Figures plots every (dim, fs) pair over mesh size and degree, and over
// rank counts when several are selected.
func (h *Harness) Figures(sel plot.Selection) []plot.Figure {
	var figs []plot.Figure
	for _, dim := range h.Config.Dims {
		for _, fs := range h.Config.Spaces {
			filter := map[string]string{"dim": fmt.Sprint(dim), "fs": fs}
			title := fmt.Sprintf("Matrix assembly (%dD, %s)", dim, fs)
			figs = append(figs, plot.Figure{Series: sel.Series(1), Options: plot.Options{
				Kind: plot.KindLogLog, XAxis: "size", Regions: Regions, Groups: []string{"degree"}, Filter: filter,
				XLabel: "mesh size", YLabel: "time [s]", Title: title, Styles: plotStyle,
				FigName: fmt.Sprintf("%s_%dD_%s_size", Name, dim, fs),
			}})
			figs = append(figs, plot.Figure{Series: sel.Series(1), Options: plot.Options{
				Kind: plot.KindBarLog, XAxis: "degree", Regions: Regions, Groups: []string{"size"}, Filter: filter,
				XLabel: "Polynomial degree", YLabel: "time [s]", Title: title, Styles: plotStyle,
				FigName: fmt.Sprintf("%s_%dD_%s_degree", Name, dim, fs),
			}})
			if len(sel.NPs) > 1 {
				figs = append(figs, plot.Figure{Series: sel.Series(), Options: plot.Options{
					Kind: plot.KindLogLog, XAxis: plot.XNP, Regions: Regions, Groups: []string{"degree", "size"}, Filter: filter,
					XLabel: "Number of processors", YLabel: "time [s]", Title: title, Styles: plotStyle,
					FigName: fmt.Sprintf("%s_%dD_%s_np", Name, dim, fs),
				}})
			}
		}
	}
	return figs
}
