package solver

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/fembench/internal/fem"
)

// NonlinearProblem is F(x) = 0 with an assembled Jacobian.
type NonlinearProblem interface {
	Residual(ctx context.Context, x, F []float64) error
	Jacobian(ctx context.Context, x []float64) (*fem.Matrix, error)
}

type NewtonSettings struct {
	RTol    float64 `yaml:"rtol"`
	ATol    float64 `yaml:"atol"`
	MaxIter int     `yaml:"max_iter"`
}

func DefaultNewtonSettings() NewtonSettings {
	return NewtonSettings{RTol: 1e-8, ATol: 1e-10, MaxIter: 25}
}

type NewtonResult struct {
	Iterations       int
	LinearIterations int
	Residual         float64
}

// Newton takes full steps x -= J(x)^-1 F(x) until the residual norm drops
// below max(RTol*|F(x0)|, ATol).
type Newton struct {
	Settings NewtonSettings
	KSP      KSP
	PC       Preconditioner
	Logger   *slog.Logger
}

func NewNewton(s NewtonSettings, ksp KSP, pc Preconditioner) *Newton {
	return &Newton{Settings: s, KSP: ksp, PC: pc, Logger: slog.Default()}
}

func (n *Newton) Solve(ctx context.Context, p NonlinearProblem, x []float64) (NewtonResult, error) {
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}
	F := make([]float64, len(x))
	dx := make([]float64, len(x))

	var res NewtonResult
	if err := p.Residual(ctx, x, F); err != nil {
		return res, err
	}
	norm0 := floats.Norm(F, 2)
	res.Residual = norm0
	tol := math.Max(n.Settings.RTol*norm0, n.Settings.ATol)
	log.Debug("newton", "it", 0, "residual", norm0)

	for res.Residual > tol {
		if res.Iterations >= n.Settings.MaxIter {
			return res, &ConvergenceError{Method: "newton", Iterations: res.Iterations, Residual: res.Residual, Wrapped: ErrNotConverged}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		J, err := p.Jacobian(ctx, x)
		if err != nil {
			return res, fmt.Errorf("newton: jacobian: %w", err)
		}
		if n.PC != nil {
			if err := n.PC.Setup(J); err != nil {
				return res, fmt.Errorf("newton: pc setup: %w", err)
			}
		}
		for i := range dx {
			dx[i] = 0
		}
		lin, err := n.KSP.Solve(ctx, J, n.PC, F, dx)
		if err != nil {
			return res, fmt.Errorf("newton: linear solve: %w", err)
		}
		floats.Sub(x, dx)
		res.Iterations++
		res.LinearIterations += lin.Iterations

		if err := p.Residual(ctx, x, F); err != nil {
			return res, err
		}
		res.Residual = floats.Norm(F, 2)
		if math.IsNaN(res.Residual) {
			return res, fmt.Errorf("newton: residual is NaN after %d iterations", res.Iterations)
		}
		log.Debug("newton", "it", res.Iterations, "residual", res.Residual, "ksp", n.KSP.Name(), "ksp_its", lin.Iterations)
	}
	return res, nil
}
