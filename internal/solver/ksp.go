package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Operator is a linear map y = A*x.
type Operator interface {
	Apply(dst, x []float64)
}

// Settings are the stopping criteria of a Krylov solve. A solve converges
// when the residual norm drops below max(RTol*|r0|, ATol).
type Settings struct {
	RTol    float64 `yaml:"rtol"`
	ATol    float64 `yaml:"atol"`
	MaxIter int     `yaml:"max_iter"`
	// Restart is the gmres cycle length.
	Restart int `yaml:"restart"`
	// ErrorIfNotConverged turns hitting MaxIter into ErrNotConverged.
	ErrorIfNotConverged bool `yaml:"error_if_not_converged"`
}

func DefaultSettings() Settings {
	return Settings{RTol: 1e-5, ATol: 1e-50, MaxIter: 10000, Restart: 30}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.RTol <= 0 {
		s.RTol = d.RTol
	}
	if s.ATol <= 0 {
		s.ATol = d.ATol
	}
	if s.MaxIter <= 0 {
		s.MaxIter = d.MaxIter
	}
	if s.Restart <= 0 {
		s.Restart = d.Restart
	}
	return s
}

type Result struct {
	Iterations int
	Residual   float64
	Converged  bool
}

// KSP solves A*x = b starting from the contents of x.
type KSP interface {
	Name() string
	Solve(ctx context.Context, A Operator, pc Preconditioner, b, x []float64) (Result, error)
}

var kspNames = []string{"cg", "gmres", "bicgstab", "preonly"}

// KSPNames lists every method understood by NewKSP.
func KSPNames() []string { return append([]string(nil), kspNames...) }

func NewKSP(name string, s Settings) (KSP, error) {
	s = s.withDefaults()
	switch strings.ToLower(name) {
	case "cg":
		return &CG{s}, nil
	case "gmres":
		return &GMRES{s}, nil
	case "bicgstab":
		return &BiCGStab{s}, nil
	case "preonly":
		return PreOnly{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKSP, name)
}

func residual(A Operator, b, x, r []float64) float64 {
	A.Apply(r, x)
	floats.SubTo(r, b, r)
	return floats.Norm(r, 2)
}

func finish(method string, s Settings, res Result) (Result, error) {
	if !res.Converged && s.ErrorIfNotConverged {
		return res, &ConvergenceError{Method: method, Iterations: res.Iterations, Residual: res.Residual, Wrapped: ErrNotConverged}
	}
	return res, nil
}

func pcApply(pc Preconditioner, dst, r []float64) {
	if pc == nil {
		copy(dst, r)
		return
	}
	pc.Apply(dst, r)
}

// CG is the preconditioned conjugate gradient method for symmetric
// positive definite operators.
type CG struct {
	Settings Settings
}

func (k *CG) Name() string { return "cg" }

func (k *CG) Solve(ctx context.Context, A Operator, pc Preconditioner, b, x []float64) (Result, error) {
	n := len(b)
	r := make([]float64, n)
	z := make([]float64, n)
	p := make([]float64, n)
	ap := make([]float64, n)

	rn := residual(A, b, x, r)
	tol := math.Max(k.Settings.RTol*rn, k.Settings.ATol)
	res := Result{Residual: rn, Converged: rn <= tol}
	if res.Converged {
		return res, nil
	}
	pcApply(pc, z, r)
	copy(p, z)
	rz := floats.Dot(r, z)

	for res.Iterations < k.Settings.MaxIter {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		A.Apply(ap, p)
		pap := floats.Dot(p, ap)
		if pap == 0 {
			return res, fmt.Errorf("cg: %w", ErrBreakdown)
		}
		alpha := rz / pap
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)
		res.Iterations++
		res.Residual = floats.Norm(r, 2)
		if res.Residual <= tol {
			res.Converged = true
			break
		}
		pcApply(pc, z, r)
		rzNew := floats.Dot(r, z)
		beta := rzNew / rz
		rz = rzNew
		floats.AddScaledTo(p, z, beta, p)
	}
	return finish(k.Name(), k.Settings, res)
}

// GMRES is restarted flexible GMRES with right preconditioning, so the
// preconditioner may itself be an iterative solve.
type GMRES struct {
	Settings Settings
}

func (k *GMRES) Name() string { return "gmres" }

func (k *GMRES) Solve(ctx context.Context, A Operator, pc Preconditioner, b, x []float64) (Result, error) {
	n := len(b)
	m := k.Settings.Restart
	r := make([]float64, n)
	w := make([]float64, n)
	V := make([][]float64, m+1)
	Z := make([][]float64, m)
	for i := range V {
		V[i] = make([]float64, n)
	}
	for i := range Z {
		Z[i] = make([]float64, n)
	}
	H := make([][]float64, m+1)
	for i := range H {
		H[i] = make([]float64, m)
	}
	cs := make([]float64, m)
	sn := make([]float64, m)
	g := make([]float64, m+1)

	beta := residual(A, b, x, r)
	tol := math.Max(k.Settings.RTol*beta, k.Settings.ATol)
	res := Result{Residual: beta, Converged: beta <= tol}

	for !res.Converged && res.Iterations < k.Settings.MaxIter {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		floats.ScaleTo(V[0], 1/beta, r)
		for i := range g {
			g[i] = 0
		}
		g[0] = beta

		steps := 0
		for j := 0; j < m && res.Iterations < k.Settings.MaxIter; j++ {
			pcApply(pc, Z[j], V[j])
			A.Apply(w, Z[j])
			for i := 0; i <= j; i++ {
				H[i][j] = floats.Dot(w, V[i])
				floats.AddScaled(w, -H[i][j], V[i])
			}
			H[j+1][j] = floats.Norm(w, 2)
			if H[j+1][j] != 0 {
				floats.ScaleTo(V[j+1], 1/H[j+1][j], w)
			}
			for i := 0; i < j; i++ {
				h0, h1 := H[i][j], H[i+1][j]
				H[i][j] = cs[i]*h0 + sn[i]*h1
				H[i+1][j] = -sn[i]*h0 + cs[i]*h1
			}
			d := math.Hypot(H[j][j], H[j+1][j])
			if d == 0 {
				return res, fmt.Errorf("gmres: %w", ErrBreakdown)
			}
			cs[j], sn[j] = H[j][j]/d, H[j+1][j]/d
			H[j][j] = d
			H[j+1][j] = 0
			g[j+1] = -sn[j] * g[j]
			g[j] = cs[j] * g[j]

			steps++
			res.Iterations++
			res.Residual = math.Abs(g[j+1])
			if res.Residual <= tol {
				res.Converged = true
				break
			}
		}

		y, err := solveUpper(H, g, steps)
		if err != nil {
			return res, fmt.Errorf("gmres: %w", err)
		}
		for i := 0; i < steps; i++ {
			floats.AddScaled(x, y[i], Z[i])
		}
		if !res.Converged {
			beta = residual(A, b, x, r)
			res.Residual = beta
			res.Converged = beta <= tol
		}
	}
	return finish(k.Name(), k.Settings, res)
}

// solveUpper solves the leading k*k block of the rotated Hessenberg matrix.
func solveUpper(H [][]float64, g []float64, k int) ([]float64, error) {
	if k == 0 {
		return nil, nil
	}
	data := make([]float64, k*k)
	for i := 0; i < k; i++ {
		copy(data[i*k+i:(i+1)*k], H[i][i:k])
	}
	tri := mat.NewTriDense(k, mat.Upper, data)
	var y mat.VecDense
	err := y.SolveVec(tri, mat.NewVecDense(k, append([]float64(nil), g[:k]...)))
	if err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
	}
	return y.RawVector().Data, nil
}

// BiCGStab is right-preconditioned BiCGStab for general operators.
type BiCGStab struct {
	Settings Settings
}

func (k *BiCGStab) Name() string { return "bicgstab" }

func (k *BiCGStab) Solve(ctx context.Context, A Operator, pc Preconditioner, b, x []float64) (Result, error) {
	n := len(b)
	r := make([]float64, n)
	rhat := make([]float64, n)
	p := make([]float64, n)
	v := make([]float64, n)
	s := make([]float64, n)
	t := make([]float64, n)
	phat := make([]float64, n)
	shat := make([]float64, n)

	rn := residual(A, b, x, r)
	tol := math.Max(k.Settings.RTol*rn, k.Settings.ATol)
	res := Result{Residual: rn, Converged: rn <= tol}
	if res.Converged {
		return res, nil
	}
	copy(rhat, r)
	rho, alpha, omega := 1.0, 1.0, 1.0

	for res.Iterations < k.Settings.MaxIter {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rhoNew := floats.Dot(rhat, r)
		if rhoNew == 0 {
			return res, fmt.Errorf("bicgstab: %w", ErrBreakdown)
		}
		beta := (rhoNew / rho) * (alpha / omega)
		for i := range p {
			p[i] = r[i] + beta*(p[i]-omega*v[i])
		}
		pcApply(pc, phat, p)
		A.Apply(v, phat)
		rv := floats.Dot(rhat, v)
		if rv == 0 {
			return res, fmt.Errorf("bicgstab: %w", ErrBreakdown)
		}
		alpha = rhoNew / rv
		floats.AddScaledTo(s, r, -alpha, v)
		res.Iterations++
		if sn := floats.Norm(s, 2); sn <= tol {
			floats.AddScaled(x, alpha, phat)
			res.Residual, res.Converged = sn, true
			break
		}
		pcApply(pc, shat, s)
		A.Apply(t, shat)
		tt := floats.Dot(t, t)
		if tt == 0 {
			return res, fmt.Errorf("bicgstab: %w", ErrBreakdown)
		}
		omega = floats.Dot(t, s) / tt
		floats.AddScaled(x, alpha, phat)
		floats.AddScaled(x, omega, shat)
		floats.AddScaledTo(r, s, -omega, t)
		res.Residual = floats.Norm(r, 2)
		if res.Residual <= tol {
			res.Converged = true
			break
		}
		if omega == 0 {
			return res, fmt.Errorf("bicgstab: %w", ErrBreakdown)
		}
		rho = rhoNew
	}
	return finish(k.Name(), k.Settings, res)
}

// PreOnly applies the preconditioner once: x = M^-1 b.
type PreOnly struct{}

func (PreOnly) Name() string { return "preonly" }

func (PreOnly) Solve(_ context.Context, _ Operator, pc Preconditioner, b, x []float64) (Result, error) {
	pcApply(pc, x, b)
	return Result{Iterations: 1, Converged: true}, nil
}
