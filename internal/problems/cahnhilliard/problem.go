package cahnhilliard

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/san-kum/fembench/internal/fem"
	"github.com/san-kum/fembench/internal/mesh"
	"github.com/san-kum/fembench/internal/parallel"
	"github.com/san-kum/fembench/internal/solver"
)

type Config struct {
	Degree         int     `yaml:"degree"`
	Steps          int     `yaml:"steps"`
	Preconditioner string  `yaml:"preconditioner"`
	KSP            string  `yaml:"ksp"`
	InnerKSP       string  `yaml:"inner_ksp"`
	MaxIterations  int     `yaml:"max_iterations"`
	Lmbda          float64 `yaml:"lmbda"`
	Dt             float64 `yaml:"dt"`
	Theta          float64 `yaml:"theta"`
	ComputeNorms   bool    `yaml:"compute_norms"`
	Seed           int64   `yaml:"seed"`
	// Sizes are swept by the benchmark harness.
	Sizes  []int                 `yaml:"sizes"`
	Linear solver.Settings       `yaml:"linear"`
	Newton solver.NewtonSettings `yaml:"newton"`
}

func DefaultConfig() Config {
	return Config{
		Degree:         1,
		Steps:          1,
		Preconditioner: "fieldsplit",
		KSP:            "gmres",
		InnerKSP:       "preonly",
		MaxIterations:  1,
		Lmbda:          1e-2,
		Dt:             5e-6,
		Theta:          0.5,
		Seed:           11,
		Sizes:          []int{32, 64, 96},
		Linear:         solver.DefaultSettings(),
		Newton:         solver.DefaultNewtonSettings(),
	}
}

// Problem is the mixed (c, mu) Cahn-Hilliard system on the unit square,
// advanced in time with the theta scheme and solved by Newton's method.
type Problem struct {
	Config
	Ranks int
	// Rank is the rank of the calling process; only the root writes output.
	Rank   int
	Logger *slog.Logger

	Mesh *mesh.Mesh
	V    *fem.FunctionSpace
	W    *fem.MixedSpace
	// U is the current state, U0 the state of the previous step.
	U, U0 *fem.Function
	J     *fem.Matrix

	// mass is the mass matrix of V, assembled when ComputeNorms is set.
	mass     *fem.Matrix
	residual fem.Kernel
	jacobian fem.Kernel
	newton   *solver.Newton
}

func New(cfg Config, ranks int) *Problem {
	return &Problem{Config: cfg, Ranks: ranks, Rank: parallel.Root, Logger: slog.Default()}
}

func (p *Problem) MakeMesh(size int) error {
	m, err := mesh.UnitSquare(size)
	if err != nil {
		return err
	}
	p.Mesh = m
	return nil
}

// Setup builds the spaces, the initial condition and the solver, and
// assembles the Jacobian once to fix its pattern.
func (p *Problem) Setup(ctx context.Context) error {
	if p.Mesh == nil {
		return fmt.Errorf("cahnhilliard: setup before mesh")
	}
	V, err := fem.NewFunctionSpace(p.Mesh, p.Degree, 1)
	if err != nil {
		return err
	}
	W, err := fem.NewMixedSpace(V, V)
	if err != nil {
		return err
	}
	p.V, p.W = V, W
	p.U = fem.NewFunction(W)
	p.U0 = fem.NewFunction(W)

	rng := rand.New(rand.NewSource(p.Seed))
	fem.Interpolate(V, p.U.Values[:V.Dofs()], 0, func([]float64) float64 {
		return 0.63 + 0.02*(0.5-rng.Float64())
	})

	sk, err := newStageKernel(V, p.Dt, p.Theta, p.Lmbda)
	if err != nil {
		return err
	}
	p.residual = residualKernel{sk}
	p.jacobian = jacobianKernel{sk}

	ksp, err := solver.NewKSP(p.KSP, p.Linear)
	if err != nil {
		return err
	}
	n := V.Dofs()
	pc, err := solver.NewPC(p.Preconditioner, solver.PCOptions{
		Fields: []solver.Field{
			{Name: "c", Start: 0, End: n},
			{Name: "mu", Start: n, End: 2 * n},
		},
		InnerKSP:     p.InnerKSP,
		InnerMaxIter: p.MaxIterations,
	})
	if err != nil {
		return err
	}
	p.newton = solver.NewNewton(p.Newton, ksp, pc)
	p.newton.Logger = p.Logger

	p.J, err = fem.Assemble(ctx, p.jacobianForm(p.U), fem.WithRanks(p.Ranks))
	if err != nil {
		return err
	}
	if p.ComputeNorms {
		p.mass, err = fem.AssembleMass(ctx, V, fem.WithRanks(p.Ranks))
	}
	return err
}

// Norms returns the L2 norms of c and mu of the current state.
func (p *Problem) Norms() (float64, float64, error) {
	if p.mass == nil {
		return 0, 0, fmt.Errorf("cahnhilliard: norms need compute_norms at setup")
	}
	n := p.V.Dofs()
	return fem.NormL2(p.mass, p.U.Values[:n]), fem.NormL2(p.mass, p.U.Values[n:]), nil
}

func (p *Problem) jacobianForm(w *fem.Function) fem.Form {
	return fem.Form{Test: p.W, Trial: p.W, Kernel: p.jacobian, Coefficients: []*fem.Function{w}}
}

// Residual implements solver.NonlinearProblem.
func (p *Problem) Residual(ctx context.Context, x, F []float64) error {
	w := &fem.Function{Space: p.W, Values: x}
	f := fem.Form{Test: p.W, Kernel: p.residual, Coefficients: []*fem.Function{w, p.U0}}
	r, err := fem.AssembleVector(ctx, f, fem.WithRanks(p.Ranks))
	if err != nil {
		return err
	}
	copy(F, r)
	return nil
}

// Jacobian implements solver.NonlinearProblem. The matrix is reassembled in
// place.
func (p *Problem) Jacobian(ctx context.Context, x []float64) (*fem.Matrix, error) {
	w := &fem.Function{Space: p.W, Values: x}
	if err := fem.Reassemble(ctx, p.jacobianForm(w), p.J, fem.WithRanks(p.Ranks)); err != nil {
		return nil, err
	}
	return p.J, nil
}

// StepResult reports one time step.
type StepResult struct {
	Step   int
	Time   float64
	Newton solver.NewtonResult
	// NormC and NormMu are the L2 norms of c and mu, only set with
	// ComputeNorms.
	NormC, NormMu float64
}

// Solve advances steps time steps. out may be nil; it receives the initial
// state and every step.
func (p *Problem) Solve(ctx context.Context, steps int, out *fem.VTKWriter) ([]StepResult, error) {
	if p.newton == nil {
		return nil, fmt.Errorf("cahnhilliard: solve before setup")
	}
	if err := p.write(out, 0); err != nil {
		return nil, err
	}
	results := make([]StepResult, 0, steps)
	for s := 1; s <= steps; s++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		p.U0.Assign(p.U)
		nr, err := p.newton.Solve(ctx, p, p.U.Values)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", s, err)
		}
		r := StepResult{Step: s, Time: float64(s) * p.Dt, Newton: nr}
		if p.ComputeNorms {
			if r.NormC, r.NormMu, err = p.Norms(); err != nil {
				return results, err
			}
		}
		p.Logger.Debug("cahn-hilliard step", "step", s, "newton_its", nr.Iterations, "ksp_its", nr.LinearIterations, "residual", nr.Residual)
		results = append(results, r)
		if err := p.write(out, r.Time); err != nil {
			return results, err
		}
	}
	return results, nil
}

func (p *Problem) write(out *fem.VTKWriter, t float64) error {
	if out == nil || !parallel.IsRoot(p.Rank) {
		return nil
	}
	n := p.V.Dofs()
	return out.Write(t, p.Mesh,
		fem.PointField{Name: "c", Values: fem.VertexValues(p.V, p.U.Values[:n], 0)},
		fem.PointField{Name: "mu", Values: fem.VertexValues(p.V, p.U.Values[n:], 0)},
	)
}
