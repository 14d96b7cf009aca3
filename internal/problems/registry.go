package problems

import (
	"context"
	"fmt"
	"slices"

	"github.com/san-kum/fembench/internal/bench"
	"github.com/san-kum/fembench/internal/config"
	"github.com/san-kum/fembench/internal/plot"
	"github.com/san-kum/fembench/internal/problems/assembly"
	"github.com/san-kum/fembench/internal/problems/cahnhilliard"
	"github.com/san-kum/fembench/internal/problems/forms"
	"github.com/san-kum/fembench/internal/problems/poisson"
	"github.com/san-kum/fembench/internal/problems/wave"
	"github.com/san-kum/fembench/internal/storage"
	"github.com/san-kum/fembench/internal/timing"
)

// Harness is a benchmarked problem: a parameter sweep, the timed body run
// for each combination and the figures drawn from stored results.
type Harness interface {
	Benchmark(series storage.Series) *bench.Benchmark
	Run(ctx context.Context, p bench.Values, t *timing.Timer) error
	Figures(sel plot.Selection) []plot.Figure
	ProfileRegions() []string
}

type Factory func(cfg *config.Config, np int) Harness

type Registry struct {
	harnesses map[string]Factory
	// benchmarks maps command names to stored benchmark names.
	benchmarks map[string]string
}

func NewRegistry() *Registry {
	r := &Registry{
		harnesses:  make(map[string]Factory),
		benchmarks: make(map[string]string),
	}

	r.Register("cahn-hilliard", cahnhilliard.Name, func(cfg *config.Config, np int) Harness {
		return cahnhilliard.NewHarness(cfg.CahnHilliard, np)
	})
	r.Register("poisson", poisson.Name, func(cfg *config.Config, np int) Harness {
		return poisson.NewHarness(cfg.Poisson, np)
	})
	r.Register("wave", wave.Name, func(cfg *config.Config, np int) Harness {
		return wave.NewHarness(cfg.Wave, np)
	})
	r.Register("assembly", assembly.Name, func(cfg *config.Config, np int) Harness {
		return assembly.NewHarness(cfg.Assembly, np)
	})
	r.Register("forms", forms.Name, func(cfg *config.Config, np int) Harness {
		return forms.NewHarness(cfg.Forms, np)
	})

	return r
}

func (r *Registry) Register(name, benchmark string, f Factory) {
	r.harnesses[name] = f
	r.benchmarks[name] = benchmark
}

func (r *Registry) Get(name string, cfg *config.Config, np int) (Harness, error) {
	fn, ok := r.harnesses[name]
	if !ok {
		return nil, fmt.Errorf("unknown benchmark: %s", name)
	}
	return fn(cfg, np), nil
}

// Lookup resolves either a command name or a stored benchmark name to the
// command name.
func (r *Registry) Lookup(name string) (string, bool) {
	if _, ok := r.harnesses[name]; ok {
		return name, true
	}
	for cmd, b := range r.benchmarks {
		if b == name {
			return cmd, true
		}
	}
	return "", false
}

// BenchmarkName is the name results of the command are stored under.
func (r *Registry) BenchmarkName(name string) string {
	return r.benchmarks[name]
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.harnesses))
	for k := range r.harnesses {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
