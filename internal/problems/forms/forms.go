package forms

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

const Name = "Forms"

// MaxCoefficients is the largest number of coefficient fields a form is
// multiplied by.
const MaxCoefficients = 3

// Regions are "nf 0" .. "nf 3", one per coefficient count.
var Regions = func() []string {
	out := make([]string, MaxCoefficients+1)
	for i := range out {
		out[i] = fmt.Sprintf("nf %d", i)
	}
	return out
}()

var plotStyle = map[string]string{
	bench.Total: "*",
	"mesh":      "+",
	"setup":     "x",
	"nf 0":      "o",
	"nf 1":      "s",
	"nf 2":      "^",
	"nf 3":      "d",
}

type Config struct {
	Degrees  []int    `yaml:"degrees"`
	QDegrees []int    `yaml:"qdegrees"`
	Forms    []string `yaml:"forms"`
	// Opts indexes fem.AllKernelOptions.
	Opts     []int `yaml:"opts"`
	Dim      int   `yaml:"dim"`
	MeshSize int   `yaml:"mesh_size"`
}

func DefaultConfig() Config {
	return Config{
		Degrees:  []int{1, 2, 3, 4},
		QDegrees: []int{1, 2, 3, 4},
		Forms:    []string{"mass", "elasticity", "poisson", "mixed_poisson"},
		Opts:     []int{0, 1, 2, 3},
		Dim:      3,
		MeshSize: 8,
	}
}

// ParseOpt maps an opt parameter label back to its kernel options.
func ParseOpt(label string) (fem.KernelOptions, error) {
	for _, o := range fem.AllKernelOptions {
		if o.String() == label {
			return o, nil
		}
	}
	return fem.KernelOptions{}, fmt.Errorf("%w: opt %q", bench.ErrUnknownParam, label)
}

type Harness struct {
	Config Config
	Ranks  int
	Logger *slog.Logger
}

func NewHarness(cfg Config, ranks int) *Harness {
	return &Harness{Config: cfg, Ranks: ranks, Logger: slog.Default()}
}

// Validate rejects opt indices outside fem.AllKernelOptions.
func (c Config) Validate() error {
	for _, i := range c.Opts {
		if i < 0 || i >= len(fem.AllKernelOptions) {
			return fmt.Errorf("%w: forms opt %d, want 0..%d", bench.ErrInvalidParam, i, len(fem.AllKernelOptions)-1)
		}
	}
	return nil
}

// optLabels names the selected kernel options. An index out of range keeps
// a label that ParseOpt rejects, so the run fails instead of skipping it.
func (h *Harness) optLabels() []string {
	out := make([]string, 0, len(h.Config.Opts))
	for _, i := range h.Config.Opts {
		if i < 0 || i >= len(fem.AllKernelOptions) {
			out = append(out, fmt.Sprintf("opt %d", i))
			continue
		}
		out = append(out, fem.AllKernelOptions[i].String())
	}
	return out
}

func (h *Harness) Benchmark(series storage.Series) *bench.Benchmark {
	return &bench.Benchmark{
		Name:   Name,
		Method: "forms",
		Params: []bench.Param{
			bench.Ints("degree", h.Config.Degrees...),
			bench.Ints("qdegree", h.Config.QDegrees...),
			bench.Strings("form", h.Config.Forms...),
			bench.Strings("opt", h.optLabels()...),
		},
		Regions:   append([]string{"mesh", "setup"}, Regions...),
		PlotStyle: plotStyle,
		Meta:      map[string]string{"dim": fmt.Sprint(h.Config.Dim), "mesh_size": fmt.Sprint(h.Config.MeshSize)},
		Series:    series,
		Logger:    h.Logger,
	}
}

func (h *Harness) ProfileRegions() []string { return Regions }

func (h *Harness) Run(ctx context.Context, p bench.Values, t *timing.Timer) error {
	opts, err := ParseOpt(p.String("opt"))
	if err != nil {
		return err
	}
	v, err := p.Ints("degree", "qdegree")
	if err != nil {
		return err
	}
	_, err = h.Assemble(ctx, p.String("form"), v[0], v[1], opts, t)
	return err
}

// Assemble times the form assembled with 0 to MaxCoefficients scalar P_q
// coefficient fields multiplied in. It returns the matrices in region
// order.
func (h *Harness) Assemble(ctx context.Context, form string, degree, qdegree int, opts fem.KernelOptions, t *timing.Timer) ([]*fem.Matrix, error) {
	kind, err := fem.ParseForm(form)
	if err != nil {
		return nil, err
	}
	var m *mesh.Mesh
	err = t.Time(ctx, "mesh", func(context.Context) error {
		m, err = mesh.New(h.Config.Dim, h.Config.MeshSize)
		return err
	})
	if err != nil {
		return nil, err
	}

	forms := make([]fem.Form, MaxCoefficients+1)
	err = t.Time(ctx, "setup", func(context.Context) error {
		V, err := fem.FormSpace(m, kind, degree, 1)
		if err != nil {
			return err
		}
		Q, err := fem.NewFunctionSpace(m, qdegree, 1)
		if err != nil {
			return err
		}
		spaces := make([]*fem.FunctionSpace, MaxCoefficients)
		fields := make([]*fem.Function, MaxCoefficients)
		for i := range fields {
			spaces[i] = Q
			fields[i] = fem.NewFunction(Q)
			shift := float64(i + 1)
			fem.Interpolate(Q, fields[i].Values, 0, func(x []float64) float64 {
				return shift + x[0]*x[len(x)-1]
			})
		}
		for nf := range forms {
			k, err := fem.NewFormKernel(kind, m.Dim, degree, 1, 0, spaces[:nf], opts)
			if err != nil {
				return err
			}
			forms[nf] = fem.Form{Test: V, Trial: V, Kernel: k, Coefficients: fields[:nf]}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*fem.Matrix, len(forms))
	for nf, f := range forms {
		err := t.Time(ctx, Regions[nf], func(ctx context.Context) error {
			var err error
			out[nf], err = fem.Assemble(ctx, f, fem.WithRanks(h.Ranks))
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("forms: %s with %d coefficients: %w", form, nf, err)
		}
	}
	h.Logger.Debug("forms assembled", "form", form, "degree", degree, "qdegree", qdegree, "opt", opts)
	return out, nil
}

// Figures draws one bar chart per form over the kernel optimisation levels.
func (h *Harness) Figures(sel plot.Selection) []plot.Figure {
	order := make(map[string]float64, len(fem.AllKernelOptions))
	for i, o := range fem.AllKernelOptions {
		order[o.String()] = float64(i)
	}
	var figs []plot.Figure
	for _, form := range h.Config.Forms {
		figs = append(figs, plot.Figure{Series: sel.Series(1), Options: plot.Options{
			Kind:    plot.KindBar,
			XAxis:   "opt",
			XValues: order,
			Regions: Regions,
			Groups:  []string{"degree", "qdegree"},
			Filter:  map[string]string{"form": form},
			XLabel:  "Kernel optimisations (LICM, AP, VECT)",
			YLabel:  "time [s]",
			Title:   fmt.Sprintf("Assembly of the %s form", form),
			FigName: fmt.Sprintf("%s_%s", Name, form),
			Styles:  plotStyle,
		}})
	}
	return figs
}
