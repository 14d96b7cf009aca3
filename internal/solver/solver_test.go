package solver

import (
	"context"
	"math"
	"testing"

	"github.com/james-bowman/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/fembench/internal/fem"
	"github.com/san-kum/fembench/internal/mesh"
)

// denseToMatrix stores the nonzeros of a small dense matrix as CSR.
func denseToMatrix(rows [][]float64) *fem.Matrix {
	n := len(rows)
	s := &fem.Sparsity{Rows: n, Cols: len(rows[0]), Indptr: make([]int, n+1)}
	var data []float64
	for i, row := range rows {
		for j, v := range row {
			if v != 0 || i == j {
				s.Ind = append(s.Ind, j)
				data = append(data, v)
			}
		}
		s.Indptr[i+1] = len(s.Ind)
	}
	return &fem.Matrix{CSR: sparse.NewCSR(n, s.Cols, s.Indptr, s.Ind, data), Sparsity: s}
}

func tridiag(n int, d, off float64) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		rows[i][i] = d
		if i > 0 {
			rows[i][i-1] = off
		}
		if i < n-1 {
			rows[i][i+1] = off
		}
	}
	return rows
}

// poissonSystem builds -lap(u) = 0 with u = 1 + x + 2y on the boundary;
// P1 reproduces the linear solution exactly.
func poissonSystem(t *testing.T) (*fem.Matrix, []float64, []float64) {
	t.Helper()
	m, err := mesh.UnitSquare(8)
	require.NoError(t, err)
	fs, err := fem.NewFunctionSpace(m, 1, 1)
	require.NoError(t, err)
	k, err := fem.NewFormKernel(fem.FormPoisson, 2, 1, 1, 0, nil, fem.KernelOptions{})
	require.NoError(t, err)
	A, err := fem.Assemble(context.Background(), fem.Form{Test: fs, Trial: fs, Kernel: k})
	require.NoError(t, err)

	exact := func(x []float64) float64 { return 1 + x[0] + 2*x[1] }
	bc := fem.NewDirichletBC(fs, 0, mesh.Markers(2)...)
	bc.SetFunc(exact)
	b := make([]float64, fs.Dofs())
	fem.ApplyBCsToSystem(A, b, bc)

	want := make([]float64, fs.Dofs())
	fem.Interpolate(fs, want, 0, exact)
	return A, b, want
}

func TestKrylovSolvesPoisson(t *testing.T) {
	tests := []struct {
		ksp, pc string
	}{
		{"cg", "none"},
		{"cg", "jacobi"},
		{"gmres", "none"},
		{"gmres", "jacobi"},
		{"bicgstab", "jacobi"},
		{"gmres", "fieldsplit"},
	}
	for _, tt := range tests {
		t.Run(tt.ksp+"/"+tt.pc, func(t *testing.T) {
			A, b, want := poissonSystem(t)
			ksp, err := NewKSP(tt.ksp, Settings{RTol: 1e-12, ErrorIfNotConverged: true})
			require.NoError(t, err)
			pc, err := NewPC(tt.pc, PCOptions{InnerKSP: "cg", InnerMaxIter: 200})
			require.NoError(t, err)
			require.NoError(t, pc.Setup(A))

			x := make([]float64, len(b))
			res, err := ksp.Solve(context.Background(), A, pc, b, x)
			require.NoError(t, err)
			assert.True(t, res.Converged)
			assert.Greater(t, res.Iterations, 0)
			assert.InDeltaSlice(t, want, x, 1e-8)
		})
	}
}

func TestGMRESRestart(t *testing.T) {
	A, b, want := poissonSystem(t)
	ksp := &GMRES{Settings{RTol: 1e-12, ATol: 1e-50, MaxIter: 2000, Restart: 5}}
	x := make([]float64, len(b))
	res, err := ksp.Solve(context.Background(), A, nil, b, x)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Greater(t, res.Iterations, 5)
	assert.InDeltaSlice(t, want, x, 1e-8)
}

func TestFieldSplitBlocks(t *testing.T) {
	rows := make([][]float64, 9)
	a, c := tridiag(5, 4, -1), tridiag(4, 10, 2)
	for i := range rows {
		rows[i] = make([]float64, 9)
	}
	for i := 0; i < 5; i++ {
		copy(rows[i][:5], a[i])
	}
	for i := 0; i < 4; i++ {
		copy(rows[5+i][5:], c[i])
	}
	A := denseToMatrix(rows)

	pc, err := NewPC("fieldsplit", PCOptions{
		Fields:       []Field{{Name: "a", Start: 0, End: 5}, {Name: "c", Start: 5, End: 9}},
		InnerKSP:     "cg",
		InnerMaxIter: 50,
	})
	require.NoError(t, err)
	require.NoError(t, pc.Setup(A))

	sub := SubMatrix(A, 5, 9)
	assert.Equal(t, 4, sub.Sparsity.Rows)
	assert.Equal(t, 10.0, sub.Diagonal()[0])

	b := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	x := make([]float64, 9)
	ksp, _ := NewKSP("gmres", Settings{RTol: 1e-10})
	res, err := ksp.Solve(context.Background(), A, pc, b, x)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Iterations, 4)

	ax := make([]float64, 9)
	A.Apply(ax, x)
	assert.InDeltaSlice(t, b, ax, 1e-8)
}

func TestFieldSplitBadRange(t *testing.T) {
	A := denseToMatrix(tridiag(3, 2, -1))
	pc, err := NewPC("fieldsplit", PCOptions{Fields: []Field{{Name: "x", Start: 0, End: 7}}})
	require.NoError(t, err)
	assert.Error(t, pc.Setup(A))
}

func TestPreOnlyJacobiInvertsDiagonal(t *testing.T) {
	A := denseToMatrix([][]float64{{2, 0}, {0, 4}})
	pc, _ := NewPC("jacobi", PCOptions{})
	require.NoError(t, pc.Setup(A))
	ksp, _ := NewKSP("preonly", Settings{})
	x := make([]float64, 2)
	res, err := ksp.Solve(context.Background(), A, pc, []float64{2, 2}, x)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, []float64{1, 0.5}, x)
}

func TestUnknownNames(t *testing.T) {
	_, err := NewKSP("minres", Settings{})
	assert.ErrorIs(t, err, ErrUnknownKSP)
	_, err = NewPC("ilu", PCOptions{})
	assert.ErrorIs(t, err, ErrUnknownPC)
	_, err = NewPC("fieldsplit", PCOptions{InnerKSP: "lsqr"})
	assert.ErrorIs(t, err, ErrUnknownKSP)
	_, err = NewPC("fieldsplit", PCOptions{InnerPC: "fieldsplit"})
	assert.ErrorIs(t, err, ErrUnknownPC)
}

func TestNotConverged(t *testing.T) {
	A, b, _ := poissonSystem(t)
	ksp, _ := NewKSP("cg", Settings{RTol: 1e-14, MaxIter: 2, ErrorIfNotConverged: true})
	x := make([]float64, len(b))
	res, err := ksp.Solve(context.Background(), A, nil, b, x)
	assert.ErrorIs(t, err, ErrNotConverged)
	var ce *ConvergenceError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "cg", ce.Method)
	assert.Equal(t, 2, res.Iterations)

	quiet, _ := NewKSP("cg", Settings{RTol: 1e-14, MaxIter: 2})
	_, err = quiet.Solve(context.Background(), A, nil, b, make([]float64, len(b)))
	assert.NoError(t, err)
}

func TestBiCGStabBreakdown(t *testing.T) {
	// A rotation keeps A*r orthogonal to r, so the first alpha has a zero
	// denominator while rho does not.
	A := denseToMatrix([][]float64{{0, 1}, {-1, 0}})
	ksp, err := NewKSP("bicgstab", Settings{})
	require.NoError(t, err)
	x := make([]float64, 2)
	res, err := ksp.Solve(context.Background(), A, nil, []float64{1, 0}, x)
	assert.ErrorIs(t, err, ErrBreakdown)
	assert.Zero(t, res.Iterations)
	for _, v := range x {
		assert.False(t, math.IsNaN(v))
	}
}

func TestSolveCancelled(t *testing.T) {
	A, b, _ := poissonSystem(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, name := range []string{"cg", "gmres", "bicgstab"} {
		ksp, _ := NewKSP(name, Settings{})
		_, err := ksp.Solve(ctx, A, nil, b, make([]float64, len(b)))
		assert.ErrorIs(t, err, context.Canceled, name)
	}
}

// cubeRoot solves x^3 = a componentwise.
type cubeRoot struct {
	a []float64
}

func (p cubeRoot) Residual(_ context.Context, x, F []float64) error {
	for i, v := range x {
		F[i] = v*v*v - p.a[i]
	}
	return nil
}

func (p cubeRoot) Jacobian(_ context.Context, x []float64) (*fem.Matrix, error) {
	rows := make([][]float64, len(x))
	for i, v := range x {
		rows[i] = make([]float64, len(x))
		rows[i][i] = 3 * v * v
	}
	return denseToMatrix(rows), nil
}

func TestNewton(t *testing.T) {
	ksp, _ := NewKSP("preonly", Settings{})
	pc, _ := NewPC("jacobi", PCOptions{})
	n := NewNewton(DefaultNewtonSettings(), ksp, pc)

	p := cubeRoot{a: []float64{8, 27, 2}}
	x := []float64{1, 1, 1}
	res, err := n.Solve(context.Background(), p, x)
	require.NoError(t, err)
	assert.Greater(t, res.Iterations, 2)
	assert.Equal(t, res.Iterations, res.LinearIterations)
	assert.InDelta(t, 2.0, x[0], 1e-8)
	assert.InDelta(t, 3.0, x[1], 1e-8)
	assert.InDelta(t, math.Cbrt(2), x[2], 1e-8)
}

func TestNewtonMaxIter(t *testing.T) {
	ksp, _ := NewKSP("preonly", Settings{})
	pc, _ := NewPC("jacobi", PCOptions{})
	n := NewNewton(NewtonSettings{RTol: 1e-14, ATol: 1e-300, MaxIter: 1}, ksp, pc)
	_, err := n.Solve(context.Background(), cubeRoot{a: []float64{1000}}, []float64{1})
	assert.ErrorIs(t, err, ErrNotConverged)
}

func BenchmarkCGJacobi(b *testing.B) {
	m, _ := mesh.UnitSquare(32)
	fs, _ := fem.NewFunctionSpace(m, 1, 1)
	k, _ := fem.NewFormKernel(fem.FormPoisson, 2, 1, 1, 0, nil, fem.KernelOptions{})
	A, _ := fem.Assemble(context.Background(), fem.Form{Test: fs, Trial: fs, Kernel: k})
	bc := fem.NewDirichletBC(fs, 1, 1)
	rhs := make([]float64, fs.Dofs())
	fem.ApplyBCsToSystem(A, rhs, bc)
	pc, _ := NewPC("jacobi", PCOptions{})
	pc.Setup(A)
	ksp, _ := NewKSP("cg", Settings{RTol: 1e-8})
	x := make([]float64, len(rhs))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := range x {
			x[j] = 0
		}
		ksp.Solve(context.Background(), A, pc, rhs, x)
	}
}
