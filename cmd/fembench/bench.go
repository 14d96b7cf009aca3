package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/san-kum/fembench/internal/bench"
	"github.com/san-kum/fembench/internal/config"
	"github.com/san-kum/fembench/internal/problems"
	"github.com/san-kum/fembench/internal/storage"
	"github.com/san-kum/fembench/internal/tui"
)

var benchShort = map[string]string{
	"poisson":  "benchmark a Poisson solve over dimension, degree and mesh size",
	"wave":     "benchmark explicit wave time stepping over mesh scales",
	"assembly": "benchmark matrix assembly and reassembly with and without boundary conditions",
	"forms":    "benchmark form assembly over kernel optimisations and coefficient counts",
}

func newBenchCmd(name string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: benchShort[name],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmark(cmd, name)
		},
	}
	addSweepFlags(cmd)

	f := cmd.Flags()
	switch name {
	case "poisson":
		f.Int("dim", 3, "spatial dimension")
		f.IntSlice("degrees", nil, "polynomial degrees")
		f.IntSlice("sizes", nil, "mesh sizes")
		f.String("ksp", "cg", "krylov solver")
		f.String("pc", "jacobi", "preconditioner")
	case "wave":
		f.Float64Slice("scales", nil, "mesh scales (cells = 2*(145/scale)^2)")
		f.Int("steps", 100, "time steps")
		f.Float64("dt", 0.001, "time step")
	case "assembly":
		f.IntSlice("degrees", nil, "polynomial degrees")
		f.IntSlice("sizes", nil, "mesh sizes")
		f.IntSlice("dims", nil, "spatial dimensions")
	case "forms":
		f.IntSlice("degrees", nil, "polynomial degrees")
		f.IntSlice("qdegrees", nil, "coefficient field degrees")
		f.StringSlice("forms", nil, "forms (mass, poisson, elasticity, mixed_poisson)")
		f.Int("mesh-size", 8, "unit cube mesh size")
	}
	return cmd
}

// addSweepFlags adds the flags shared by every parameter sweep.
func addSweepFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("np", config.DefaultNP, "number of ranks")
	f.String("variant", config.DefaultVariant, "variant label of the stored series")
	f.Int("repeats", config.DefaultRepeats, "repetitions per parameter combination")
	f.String("results", config.DefaultResults, "results directory")
	f.String("preset", "", "use preset configuration")
	f.Bool("profile", false, "run once under the CPU profiler instead of timing")
	f.Bool("tui", false, "show sweep progress in a terminal UI")
}

// applySweepFlags layers the preset and every flag set on the command line
// over the loaded config.
func applySweepFlags(cmd *cobra.Command, name string) error {
	f := cmd.Flags()
	if preset, _ := f.GetString("preset"); preset != "" {
		if err := config.ApplyPreset(cfg, name, preset); err != nil {
			return err
		}
	}
	if f.Changed("np") {
		cfg.NP, _ = f.GetInt("np")
	}
	if f.Changed("variant") {
		cfg.Variant, _ = f.GetString("variant")
	}
	if f.Changed("repeats") {
		cfg.Repeats, _ = f.GetInt("repeats")
	}
	if f.Changed("results") {
		cfg.Results, _ = f.GetString("results")
	}

	switch name {
	case "poisson":
		if f.Changed("dim") {
			cfg.Poisson.Dim, _ = f.GetInt("dim")
		}
		if f.Changed("degrees") {
			cfg.Poisson.Degrees, _ = f.GetIntSlice("degrees")
		}
		if f.Changed("sizes") {
			cfg.Poisson.Sizes, _ = f.GetIntSlice("sizes")
		}
		if f.Changed("ksp") {
			cfg.Poisson.KSP, _ = f.GetString("ksp")
		}
		if f.Changed("pc") {
			cfg.Poisson.PC, _ = f.GetString("pc")
		}
	case "wave":
		if f.Changed("scales") {
			cfg.Wave.Scales, _ = f.GetFloat64Slice("scales")
		}
		if f.Changed("steps") {
			cfg.Wave.Steps, _ = f.GetInt("steps")
		}
		if f.Changed("dt") {
			cfg.Wave.Dt, _ = f.GetFloat64("dt")
		}
	case "assembly":
		if f.Changed("degrees") {
			cfg.Assembly.Degrees, _ = f.GetIntSlice("degrees")
		}
		if f.Changed("sizes") {
			cfg.Assembly.Sizes, _ = f.GetIntSlice("sizes")
		}
		if f.Changed("dims") {
			cfg.Assembly.Dims, _ = f.GetIntSlice("dims")
		}
	case "forms":
		if f.Changed("degrees") {
			cfg.Forms.Degrees, _ = f.GetIntSlice("degrees")
		}
		if f.Changed("qdegrees") {
			cfg.Forms.QDegrees, _ = f.GetIntSlice("qdegrees")
		}
		if f.Changed("forms") {
			cfg.Forms.Forms, _ = f.GetStringSlice("forms")
		}
		if f.Changed("mesh-size") {
			cfg.Forms.MeshSize, _ = f.GetInt("mesh-size")
		}
	}
	return cfg.Validate()
}

func runBenchmark(cmd *cobra.Command, name string) error {
	if err := applySweepFlags(cmd, name); err != nil {
		return err
	}
	h, err := registry.Get(name, cfg, cfg.NP)
	if err != nil {
		return err
	}
	series := storage.Series{NP: cfg.NP, Variant: cfg.Variant}
	b := h.Benchmark(series)
	b.Repeats = cfg.Repeats
	b.TimerOpts = timerOpts()
	ctx := cmd.Context()

	if profile, _ := cmd.Flags().GetBool("profile"); profile {
		path, err := b.Profile(ctx, h.Run, cfg.ProfileDir, h.ProfileRegions())
		if err != nil {
			return err
		}
		fmt.Printf("profile: %s\n", path)
		return nil
	}

	records, err := sweep(cmd, b, h)
	if err != nil {
		return err
	}
	runID, err := b.Save(storage.New(cfg.Results), records)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d parameter combinations\n", b.Name, len(records))
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func sweep(cmd *cobra.Command, b *bench.Benchmark, h problems.Harness) ([]storage.Record, error) {
	useTUI, _ := cmd.Flags().GetBool("tui")
	if !useTUI {
		b.OnProgress = func(p bench.Progress) {
			slog.Info("progress", "benchmark", b.Name, "done", p.Done, "of", p.Total, "params", p.Key, "seconds", p.Seconds)
		}
		return b.Run(cmd.Context(), h.Run)
	}

	var records []storage.Record
	title := fmt.Sprintf("%s %s", b.Name, b.Series)
	err := tui.RunSweep(cmd.Context(), title, func(ctx context.Context, onProgress func(bench.Progress)) error {
		b.OnProgress = onProgress
		var err error
		records, err = b.Run(ctx, h.Run)
		return err
	})
	return records, err
}
