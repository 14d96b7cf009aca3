package cahnhilliard

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/san-kum/fembench/internal/bench"
	"github.com/san-kum/fembench/internal/fem"
	"github.com/san-kum/fembench/internal/plot"
	"github.com/san-kum/fembench/internal/storage"
	"github.com/san-kum/fembench/internal/timing"
)

const Name = "CahnHilliard"

var Regions = []string{"mesh", "setup", "solve"}

var plotStyle = map[string]string{
	bench.Total: "*",
	"mesh":      "+",
	"setup":     "x",
	"solve":     "d",
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
		Name:      Name,
		Method:    "cahn_hilliard",
		Params:    []bench.Param{bench.Ints("size", h.Config.Sizes...)},
		Regions:   append([]string(nil), Regions...),
		PlotStyle: plotStyle,
		Meta: map[string]string{
			"degree": fmt.Sprint(h.Config.Degree),
			"steps":  fmt.Sprint(h.Config.Steps),
			"ksp":    h.Config.KSP,
			"pc":     h.Config.Preconditioner,
		},
		Series: series,
		Logger: h.Logger,
	}
}

func (h *Harness) ProfileRegions() []string { return []string{"setup", "solve"} }

func (h *Harness) Run(ctx context.Context, p bench.Values, t *timing.Timer) error {
	size, err := p.Int("size")
	if err != nil {
		return err
	}
	_, _, err = h.Solve(ctx, size, t, nil)
	return err
}

// Solve runs the mesh, setup and solve phases on a size x size mesh.
func (h *Harness) Solve(ctx context.Context, size int, t *timing.Timer, out *fem.VTKWriter) (*Problem, []StepResult, error) {
	pr := New(h.Config, h.Ranks)
	pr.Logger = h.Logger
	err := t.Time(ctx, "mesh", func(context.Context) error {
		return pr.MakeMesh(size)
	})
	if err != nil {
		return nil, nil, err
	}
	if err := t.Time(ctx, "setup", pr.Setup); err != nil {
		return nil, nil, err
	}
	var steps []StepResult
	err = t.Time(ctx, "solve", func(ctx context.Context) error {
		var err error
		steps, err = pr.Solve(ctx, h.Config.Steps, out)
		return err
	})
	return pr, steps, err
}

// Elapsed lays out the phase times as the mesh,mesh_s,setup_s,solve_s row.
func Elapsed(size int, t *timing.Timer) ([]string, []float64) {
	return []string{"mesh", "mesh_s", "setup_s", "solve_s"},
		[]float64{float64(size), t.Seconds("mesh"), t.Seconds("setup"), t.Seconds("solve")}
}

func PrintElapsed(w io.Writer, names []string, values []float64) {
	for i, name := range names {
		fmt.Fprintf(w, "%20s: %8.2f\n", name, values[i])
	}
}

func (h *Harness) Figures(sel plot.Selection) []plot.Figure {
	seq := sel.Series(1)
	figs := []plot.Figure{}
	for _, kind := range []plot.Kind{plot.KindPlot, plot.KindLogLog} {
		figs = append(figs, plot.Figure{Series: seq, Options: plot.Options{
			Kind:    kind,
			XAxis:   "size",
			Regions: Regions,
			XLabel:  "mesh size",
			YLabel:  "time [s]",
			Title:   "Cahn-Hilliard (single core)",
			FigName: fmt.Sprintf("%s_%s", Name, kind),
			Styles:  plotStyle,
		}})
	}
	if len(sel.NPs) > 1 {
		figs = append(figs, plot.Figure{Series: sel.Series(), Options: plot.Options{
			Kind:    plot.KindLogLog,
			XAxis:   plot.XNP,
			Regions: Regions,
			Groups:  []string{"size"},
			XLabel:  "Number of processors",
			YLabel:  "time [s]",
			Title:   "Cahn-Hilliard (strong scaling)",
			FigName: Name + "Parallel",
			Styles:  plotStyle,
		}})
	}
	return figs
}
