package main

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/san-kum/fembench/internal/plot"
	"github.com/san-kum/fembench/internal/problems/wave"
	"github.com/san-kum/fembench/internal/storage"
)

func newPlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot [benchmark]",
		Short: "draw the figures of a stored benchmark",
		Args:  cobra.ExactArgs(1),
		RunE:  plotBenchmark,
	}
	f := cmd.Flags()
	f.StringSlice("variant", nil, "variants to compare (default: the configured variant)")
	f.IntSlice("np", nil, "rank counts of the parallel series (default: all stored)")
	f.Int("base-np", 1, "rank count of the speedup baseline")
	f.String("base-variant", "", "variant of the speedup baseline (default: first variant)")
	f.String("results", "", "results directory")
	f.String("plotdir", "", "output directory for html and svg figures")
	f.String("mode", "", "wave figure family (sequential, weak, strong)")
	f.Float64("scale", 0, "only draw strong scaling for this wave mesh scale")
	f.Bool("preview", false, "print terminal previews instead of writing files")
	return cmd
}

func plotBenchmark(cmd *cobra.Command, args []string) error {
	name, ok := registry.Lookup(args[0])
	if !ok {
		return fmt.Errorf("unknown benchmark: %s (available: %v)", args[0], registry.List())
	}
	f := cmd.Flags()
	if f.Changed("plotdir") {
		cfg.PlotDir, _ = f.GetString("plotdir")
	}
	if f.Changed("scale") {
		scale, _ := f.GetFloat64("scale")
		cfg.Wave.Scales = []float64{scale}
	}
	st := storage.New(resultsDir(cmd))
	benchmark := registry.BenchmarkName(name)

	variants, _ := f.GetStringSlice("variant")
	if len(variants) == 0 {
		variants = []string{cfg.Variant}
	}
	nps, _ := f.GetIntSlice("np")
	if len(nps) == 0 {
		var err error
		if nps, err = storedNPs(st, benchmark, variants); err != nil {
			return err
		}
	}
	baseNP, _ := f.GetInt("base-np")
	baseVariant, _ := f.GetString("base-variant")
	if baseVariant == "" {
		baseVariant = variants[0]
	}
	sel := plot.Selection{
		Variants: variants,
		NPs:      nps,
		Base:     storage.Series{NP: baseNP, Variant: baseVariant},
	}

	h, err := registry.Get(name, cfg, baseNP)
	if err != nil {
		return err
	}
	figs := h.Figures(sel)
	if mode, _ := f.GetString("mode"); mode != "" {
		wh, ok := h.(*wave.Harness)
		if !ok {
			return fmt.Errorf("--mode only applies to wave")
		}
		figs = wh.ModeFigures(wave.Mode(mode), sel)
	}

	preview, _ := f.GetBool("preview")
	drawn := 0
	for _, fig := range figs {
		if preview {
			lines, err := fig.Lines(st, benchmark)
			if err != nil {
				if skippable(err) {
					slog.Warn("skipping figure", "figure", fig.FigName, "err", err)
					continue
				}
				return err
			}
			fmt.Println(plot.Preview(lines, fig.Options, 70, 15))
			drawn++
			continue
		}
		paths, err := fig.Save(st, benchmark, cfg.PlotDir)
		if err != nil {
			if skippable(err) {
				slog.Warn("skipping figure", "figure", fig.FigName, "err", err)
				continue
			}
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		drawn++
	}
	if drawn == 0 {
		return fmt.Errorf("%w for %s", plot.ErrNoPoints, benchmark)
	}
	return nil
}

// skippable reports errors of figures whose series were never run.
func skippable(err error) bool {
	return errors.Is(err, storage.ErrNoResults) || errors.Is(err, plot.ErrNoPoints)
}

// storedNPs lists the rank counts stored for any of the variants.
func storedNPs(st *storage.Store, benchmark string, variants []string) ([]int, error) {
	runs, err := st.ListBenchmark(benchmark)
	if err != nil {
		return nil, err
	}
	var nps []int
	for _, r := range runs {
		if slices.Contains(variants, r.Series.Variant) && !slices.Contains(nps, r.Series.NP) {
			nps = append(nps, r.Series.NP)
		}
	}
	if len(nps) == 0 {
		return nil, fmt.Errorf("%w: %s %v", storage.ErrNoResults, benchmark, variants)
	}
	slices.Sort(nps)
	return nps, nil
}
