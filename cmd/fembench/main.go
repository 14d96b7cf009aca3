package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/san-kum/fembench/internal/config"
	"github.com/san-kum/fembench/internal/problems"
	"github.com/san-kum/fembench/internal/timing"
)

const service = "fembench"

var (
	configFile    string
	traceEndpoint string
	verbose       bool

	cfg             *config.Config
	registry        = problems.NewRegistry()
	shutdownTracing = func(context.Context) error { return nil }
)

// main registers the commands and runs the root command. It exits with
// status 1 if the command returns an error.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "fembench",
		Short:             "finite element performance benchmarks",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return shutdownTracing(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP/HTTP collector host:port for region spans")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")

	rootCmd.AddCommand(newCahnHilliardCmd())
	for _, name := range []string{"poisson", "wave", "assembly", "forms"} {
		rootCmd.AddCommand(newBenchCmd(name))
	}
	rootCmd.AddCommand(newPlotCmd())
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored benchmark runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}
	showCmd := &cobra.Command{
		Use:   "show [benchmark]",
		Short: "print the timings of every series of a benchmark",
		Args:  cobra.ExactArgs(1),
		RunE:  showBenchmark,
	}
	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata and records as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringP("output", "o", "", "output file (stdout if empty)")
	for _, c := range []*cobra.Command{listCmd, showCmd, exportCmd} {
		c.Flags().String("results", config.DefaultResults, "results directory")
		rootCmd.AddCommand(c)
	}
	return rootCmd
}

// setup installs the logger, loads the config file and starts tracing.
func setup(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg = config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if traceEndpoint == "" {
		traceEndpoint = cfg.TraceEndpoint
	}
	shutdown, err := timing.SetupTracing(cmd.Context(), traceEndpoint, service)
	if err != nil {
		return err
	}
	shutdownTracing = shutdown
	return nil
}

// resultsDir applies a --results flag set on the command line.
func resultsDir(cmd *cobra.Command) string {
	if fl := cmd.Flags().Lookup("results"); fl != nil && fl.Changed {
		cfg.Results = fl.Value.String()
	}
	return cfg.Results
}

func timerOpts() []timing.Option {
	if traceEndpoint == "" {
		return nil
	}
	return []timing.Option{timing.WithTracer(otel.Tracer(service))}
}
