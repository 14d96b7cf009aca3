package fem

import (
	"context"
	"fmt"

	"github.com/james-bowman/sparse"
	"github.com/san-kum/fembench/internal/parallel"
)

// Form binds a kernel to its spaces and coefficient fields. Trial is nil
// for linear forms.
type Form struct {
	Test         Space
	Trial        Space
	Kernel       Kernel
	Coefficients []*Function
}

func (f Form) check() error {
	rows, cols := f.Kernel.Shape()
	if rows != f.Test.LocalDofs() {
		return fmt.Errorf("%w: kernel rows %d, test space %d", ErrShapeMismatch, rows, f.Test.LocalDofs())
	}
	if f.Trial == nil {
		if cols != 0 {
			return fmt.Errorf("%w: bilinear kernel without trial space", ErrShapeMismatch)
		}
		return nil
	}
	if cols != f.Trial.LocalDofs() {
		return fmt.Errorf("%w: kernel cols %d, trial space %d", ErrShapeMismatch, cols, f.Trial.LocalDofs())
	}
	if f.Trial.Mesh() != f.Test.Mesh() {
		return fmt.Errorf("%w: test and trial live on different meshes", ErrShapeMismatch)
	}
	return nil
}

// Matrix is an assembled CSR operator together with its pattern.
type Matrix struct {
	*sparse.CSR
	Sparsity *Sparsity
}

func newMatrix(s *Sparsity) *Matrix {
	data := make([]float64, s.NNZ())
	return &Matrix{
		CSR:      sparse.NewCSR(s.Rows, s.Cols, s.Indptr, s.Ind, data),
		Sparsity: s,
	}
}

// Values is the CSR data array, aligned with Sparsity.Ind.
func (m *Matrix) Values() []float64 { return m.RawMatrix().Data }

// Diagonal extracts the main diagonal (zero where it is not stored).
func (m *Matrix) Diagonal() []float64 {
	n := m.Sparsity.Rows
	if m.Sparsity.Cols < n {
		n = m.Sparsity.Cols
	}
	d := make([]float64, n)
	vals := m.Values()
	for i := range d {
		if k := m.Sparsity.Find(i, i); k >= 0 {
			d[i] = vals[k]
		}
	}
	return d
}

// Apply computes dst = A*x.
func (m *Matrix) Apply(dst, x []float64) {
	m.MulVecTo(dst, false, x)
}

type assembleConfig struct {
	ranks int
	bcs   []*DirichletBC
}

type AssembleOption func(*assembleConfig)

// WithRanks spreads the cell loop over n ranks.
func WithRanks(n int) AssembleOption {
	return func(c *assembleConfig) { c.ranks = n }
}

// WithBCs zeroes constrained rows and columns and puts ones on the diagonal.
func WithBCs(bcs ...*DirichletBC) AssembleOption {
	return func(c *assembleConfig) { c.bcs = append(c.bcs, bcs...) }
}

func newAssembleConfig(opts []AssembleOption) assembleConfig {
	cfg := assembleConfig{ranks: 1}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// Assemble builds a new matrix for a bilinear form. The sparsity pattern is
// taken from the cache when one exists for the same spaces.
func Assemble(ctx context.Context, f Form, opts ...AssembleOption) (*Matrix, error) {
	if f.Trial == nil {
		return nil, fmt.Errorf("%w: Assemble needs a bilinear form", ErrShapeMismatch)
	}
	if err := f.check(); err != nil {
		return nil, err
	}
	A := newMatrix(SparsityFor(f.Test, f.Trial))
	cfg := newAssembleConfig(opts)
	if err := fillMatrix(ctx, f, A, cfg); err != nil {
		return nil, err
	}
	return A, nil
}

// Reassemble refills an existing matrix in place, reusing its pattern.
func Reassemble(ctx context.Context, f Form, A *Matrix, opts ...AssembleOption) error {
	if f.Trial == nil {
		return fmt.Errorf("%w: Reassemble needs a bilinear form", ErrShapeMismatch)
	}
	if err := f.check(); err != nil {
		return err
	}
	if A.Sparsity.Rows != f.Test.Dofs() || A.Sparsity.Cols != f.Trial.Dofs() {
		return ErrSparsityChanged
	}
	vals := A.Values()
	for i := range vals {
		vals[i] = 0
	}
	return fillMatrix(ctx, f, A, newAssembleConfig(opts))
}

func fillMatrix(ctx context.Context, f Form, A *Matrix, cfg assembleConfig) error {
	sp := A.Sparsity
	data := A.Values()
	_, nc := f.Kernel.Shape()

	err := forEachRank(ctx, f, cfg.ranks, len(data), data, func(rd, cd []int, local, dst []float64) error {
		for r, gr := range rd {
			row := local[r*nc : (r+1)*nc]
			for c, gc := range cd {
				k := sp.Find(gr, gc)
				if k < 0 {
					return fmt.Errorf("%w: missing entry (%d, %d)", ErrSparsityChanged, gr, gc)
				}
				dst[k] += row[c]
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(cfg.bcs) > 0 {
		ApplyBCsToMatrix(A, cfg.bcs...)
	}
	return nil
}

// AssembleVector assembles a linear form into a new dof vector.
func AssembleVector(ctx context.Context, f Form, opts ...AssembleOption) ([]float64, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	if f.Trial != nil {
		return nil, fmt.Errorf("%w: AssembleVector needs a linear form", ErrShapeMismatch)
	}
	cfg := newAssembleConfig(opts)
	out := make([]float64, f.Test.Dofs())
	err := forEachRank(ctx, f, cfg.ranks, len(out), out, func(rd, _ []int, local, dst []float64) error {
		for r, gr := range rd {
			dst[gr] += local[r]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, bc := range cfg.bcs {
		bc.Apply(out)
	}
	return out, nil
}

// forEachRank runs the cell loop, computing the kernel per cell and handing
// the local tensor to scatter. With more than one rank each rank scatters
// into a private buffer and the buffers are summed into out afterwards.
func forEachRank(ctx context.Context, f Form, ranks, size int, out []float64,
	scatter func(rd, cd []int, local, dst []float64) error) error {

	m := f.Test.Mesh()
	world := parallel.NewWorld(ranks)
	blocks := parallel.Partition(m.NumCells(), world.Size)
	locals := make([][]float64, world.Size)
	nr, nc := f.Kernel.Shape()
	localSize := nr * nc
	if nc == 0 {
		localSize = nr
	}

	err := world.Run(ctx, func(ctx context.Context, rank int) error {
		dst := out
		if world.Size > 1 {
			locals[rank] = make([]float64, size)
			dst = locals[rank]
		}
		var (
			g      Geometry
			rd, cd []int
			cdofs  []int
			local  = make([]float64, localSize)
			coeffs = make([][]float64, len(f.Coefficients))
		)
		for i, cf := range f.Coefficients {
			coeffs[i] = make([]float64, cf.Space.LocalDofs())
		}
		blk := blocks[rank]
		for c := blk.Start; c < blk.End; c++ {
			if (c-blk.Start)&255 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			g.Reset(m, c)
			for i, cf := range f.Coefficients {
				cdofs = cf.Space.CellDofs(c, cdofs)
				for j, d := range cdofs {
					coeffs[i][j] = cf.Values[d]
				}
			}
			for i := range local {
				local[i] = 0
			}
			f.Kernel.Compute(&g, coeffs, local)
			rd = f.Test.CellDofs(c, rd)
			if f.Trial != nil {
				cd = f.Trial.CellDofs(c, cd)
			}
			if err := scatter(rd, cd, local, dst); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if world.Size > 1 {
		parallel.ReduceSum(out, locals, world.Size)
	}
	return nil
}
