package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/fembench/internal/bench"
	"github.com/san-kum/fembench/internal/storage"
	"github.com/san-kum/fembench/internal/tui"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(resultsDir(cmd))
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBENCHMARK\tNP\tVARIANT\tREPEATS\tTIME")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\n",
			run.ID,
			run.Benchmark,
			run.Series.NP,
			run.Series.Variant,
			run.Repeats,
			run.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	return w.Flush()
}

func showBenchmark(cmd *cobra.Command, args []string) error {
	benchmark := args[0]
	if name, ok := registry.Lookup(benchmark); ok {
		benchmark = registry.BenchmarkName(name)
	}
	st := storage.New(resultsDir(cmd))
	runs, err := st.ListBenchmark(benchmark)
	if err != nil {
		return err
	}

	for _, run := range runs {
		fmt.Println(tui.Title.Render(fmt.Sprintf("%s %s", run.Benchmark, run.Series)))
		fmt.Println(tui.Subtle.Render(fmt.Sprintf("method %s, %d repeats, %s", run.Method, run.Repeats,
			run.Timestamp.Format("2006-01-02 15:04:05"))))

		header, rows, err := st.LoadTimings(run.ID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, strings.ToUpper(strings.Join(header, "\t")))
		for _, row := range rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		_, records, err := bench.Load(st, run.Benchmark, run.Series)
		if err != nil {
			return err
		}
		totals := make([]float64, len(records))
		for i, r := range records {
			totals[i] = r.Regions[bench.Total].Mean
		}
		if len(totals) > 1 {
			fmt.Println()
			fmt.Println(asciigraph.Plot(totals,
				asciigraph.Height(8),
				asciigraph.Caption("total [s] per parameter combination"),
			))
		}
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(resultsDir(cmd))

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		return st.Export(os.Stdout, runID)
	}
	if err := st.ExportFile(output, runID); err != nil {
		return err
	}
	fmt.Printf("exported %s to %s\n", runID, output)
	return nil
}
