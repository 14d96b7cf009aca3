package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/fembench/internal/fem"
	"github.com/san-kum/fembench/internal/problems/cahnhilliard"
	"github.com/san-kum/fembench/internal/storage"
	"github.com/san-kum/fembench/internal/timing"
)

var (
	solutionOut string
	elapsedOut  string
	chCfg       = cahnhilliard.DefaultConfig()
)

func newCahnHilliardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cahn-hilliard [mesh_size]",
		Short: "solve the Cahn-Hilliard equation; without a mesh size, sweep the configured sizes",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCahnHilliard,
	}
	f := cmd.Flags()
	f.StringVar(&solutionOut, "solution-out", "", "write the solution as a .pvd series to this path")
	f.StringVar(&elapsedOut, "elapsed-out", "", "write the phase times as csv to this path")
	f.IntVar(&chCfg.Degree, "degree", chCfg.Degree, "polynomial degree of c and mu")
	f.IntVar(&chCfg.Steps, "steps", chCfg.Steps, "number of time steps")
	f.StringVar(&chCfg.Preconditioner, "preconditioner", chCfg.Preconditioner, "preconditioner (fieldsplit, jacobi, none)")
	f.StringVar(&chCfg.KSP, "ksp", chCfg.KSP, "outer krylov solver")
	f.StringVar(&chCfg.InnerKSP, "inner-ksp", chCfg.InnerKSP, "krylov solver of the fieldsplit blocks")
	f.IntVar(&chCfg.MaxIterations, "max-iterations", chCfg.MaxIterations, "max iterations of the inner solver")
	f.Float64Var(&chCfg.Lmbda, "lmbda", chCfg.Lmbda, "surface parameter")
	f.Float64Var(&chCfg.Dt, "dt", chCfg.Dt, "time step")
	f.Float64Var(&chCfg.Theta, "theta", chCfg.Theta, "time stepping parameter")
	f.BoolVar(&chCfg.ComputeNorms, "compute-norms", chCfg.ComputeNorms, "print the norms of c and mu after each step")
	addSweepFlags(cmd)
	return cmd
}

// mergeCahnHilliard takes values from the config file for every flag that
// was not set on the command line.
func mergeCahnHilliard(cmd *cobra.Command) {
	file := cfg.CahnHilliard
	f := cmd.Flags()
	if !f.Changed("degree") {
		chCfg.Degree = file.Degree
	}
	if !f.Changed("steps") {
		chCfg.Steps = file.Steps
	}
	if !f.Changed("preconditioner") {
		chCfg.Preconditioner = file.Preconditioner
	}
	if !f.Changed("ksp") {
		chCfg.KSP = file.KSP
	}
	if !f.Changed("inner-ksp") {
		chCfg.InnerKSP = file.InnerKSP
	}
	if !f.Changed("max-iterations") {
		chCfg.MaxIterations = file.MaxIterations
	}
	if !f.Changed("lmbda") {
		chCfg.Lmbda = file.Lmbda
	}
	if !f.Changed("dt") {
		chCfg.Dt = file.Dt
	}
	if !f.Changed("theta") {
		chCfg.Theta = file.Theta
	}
	if !f.Changed("compute-norms") {
		chCfg.ComputeNorms = file.ComputeNorms
	}
	chCfg.Seed = file.Seed
	chCfg.Sizes = file.Sizes
	chCfg.Linear = file.Linear
	chCfg.Newton = file.Newton
	cfg.CahnHilliard = chCfg
}

func runCahnHilliard(cmd *cobra.Command, args []string) error {
	if err := applySweepFlags(cmd, "cahn-hilliard"); err != nil {
		return err
	}
	mergeCahnHilliard(cmd)
	if len(args) == 0 {
		return runBenchmark(cmd, "cahn-hilliard")
	}

	size, err := strconv.Atoi(args[0])
	if err != nil || size < 1 {
		return fmt.Errorf("invalid mesh size %q", args[0])
	}
	h := cahnhilliard.NewHarness(cfg.CahnHilliard, cfg.NP)
	t := timing.New(timerOpts()...)
	var vtk *fem.VTKWriter
	if solutionOut != "" {
		vtk = fem.NewVTKWriter(solutionOut)
	}
	_, steps, err := h.Solve(cmd.Context(), size, t, vtk)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if elapsedOut != "" {
		names, values := cahnhilliard.Elapsed(size, t)
		if err := storage.WriteElapsed(elapsedOut, names, values); err != nil {
			return err
		}
		cahnhilliard.PrintElapsed(out, names, values)
	}

	if cfg.CahnHilliard.ComputeNorms {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STEP\tTIME\tNEWTON\tKSP\t|C|\t|MU|")
		for _, s := range steps {
			fmt.Fprintf(w, "%d\t%.3e\t%d\t%d\t%.6e\t%.6e\n",
				s.Step, s.Time, s.Newton.Iterations, s.Newton.LinearIterations, s.NormC, s.NormMu)
		}
		return w.Flush()
	}
	return nil
}
