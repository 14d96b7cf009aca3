package solver

import (
	"context"
	"fmt"
	"strings"

	"github.com/james-bowman/sparse"

	"github.com/san-kum/fembench/internal/fem"
)

// Preconditioner approximates the action of A^-1. Setup is called whenever
// the operator changes.
type Preconditioner interface {
	Setup(A *fem.Matrix) error
	Apply(dst, r []float64)
}

// Field is a contiguous dof range [Start, End) handled as one block by the
// fieldsplit preconditioner.
type Field struct {
	Name       string
	Start, End int
}

// PCOptions configure composite preconditioners.
type PCOptions struct {
	Fields []Field
	// InnerKSP is the solver applied to every field block.
	InnerKSP string
	// InnerPC preconditions the field blocks, jacobi when empty.
	InnerPC string
	// InnerMaxIter caps the iterations of the inner solver.
	InnerMaxIter int
}

var pcNames = []string{"none", "jacobi", "fieldsplit"}

// PCNames lists every preconditioner understood by NewPC.
func PCNames() []string { return append([]string(nil), pcNames...) }

func NewPC(name string, opts PCOptions) (Preconditioner, error) {
	switch strings.ToLower(name) {
	case "none", "":
		return Identity{}, nil
	case "jacobi":
		return &Jacobi{}, nil
	case "fieldsplit":
		inner := opts.InnerKSP
		if inner == "" {
			inner = "preonly"
		}
		if _, err := NewKSP(inner, Settings{}); err != nil {
			return nil, err
		}
		innerPC := opts.InnerPC
		if innerPC == "" {
			innerPC = "jacobi"
		}
		if strings.EqualFold(innerPC, "fieldsplit") {
			return nil, fmt.Errorf("%w: fieldsplit cannot nest", ErrUnknownPC)
		}
		if _, err := NewPC(innerPC, PCOptions{}); err != nil {
			return nil, err
		}
		return &FieldSplit{Fields: opts.Fields, InnerKSP: inner, InnerPC: innerPC, InnerMaxIter: opts.InnerMaxIter}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPC, name)
}

type Identity struct{}

func (Identity) Setup(*fem.Matrix) error { return nil }

func (Identity) Apply(dst, r []float64) { copy(dst, r) }

// Jacobi scales by the inverse diagonal. Zero diagonal entries pass through.
type Jacobi struct {
	inv []float64
}

func (p *Jacobi) Setup(A *fem.Matrix) error {
	d := A.Diagonal()
	p.inv = make([]float64, len(d))
	for i, v := range d {
		if v != 0 {
			p.inv[i] = 1 / v
		} else {
			p.inv[i] = 1
		}
	}
	return nil
}

func (p *Jacobi) Apply(dst, r []float64) {
	for i, v := range r {
		dst[i] = v * p.inv[i]
	}
}

// FieldSplit is an additive block preconditioner: each field block of the
// diagonal is solved on its own with the inner ksp, coupling blocks are
// ignored.
type FieldSplit struct {
	Fields       []Field
	InnerKSP     string
	InnerPC      string
	InnerMaxIter int

	blocks []fieldBlock
}

type fieldBlock struct {
	Field
	A   *fem.Matrix
	ksp KSP
	pc  Preconditioner
	rhs []float64
	sol []float64
}

func (p *FieldSplit) Setup(A *fem.Matrix) error {
	fields := p.Fields
	if len(fields) == 0 {
		fields = []Field{{Name: "all", End: A.Sparsity.Rows}}
	}
	p.blocks = p.blocks[:0]
	for _, f := range fields {
		if f.Start < 0 || f.End > A.Sparsity.Rows || f.Start >= f.End {
			return fmt.Errorf("solver: field %s range [%d, %d) outside %d rows", f.Name, f.Start, f.End, A.Sparsity.Rows)
		}
		ksp, err := NewKSP(p.InnerKSP, Settings{MaxIter: p.InnerMaxIter})
		if err != nil {
			return err
		}
		pc, err := NewPC(p.InnerPC, PCOptions{})
		if err != nil {
			return err
		}
		sub := SubMatrix(A, f.Start, f.End)
		if err := pc.Setup(sub); err != nil {
			return fmt.Errorf("solver: field %s: %w", f.Name, err)
		}
		n := f.End - f.Start
		p.blocks = append(p.blocks, fieldBlock{
			Field: f, A: sub, ksp: ksp, pc: pc,
			rhs: make([]float64, n), sol: make([]float64, n),
		})
	}
	return nil
}

func (p *FieldSplit) Apply(dst, r []float64) {
	copy(dst, r)
	for i := range p.blocks {
		b := &p.blocks[i]
		copy(b.rhs, r[b.Start:b.End])
		for j := range b.sol {
			b.sol[j] = 0
		}
		// inner solves never error: ErrorIfNotConverged is off
		b.ksp.Solve(context.Background(), b.A, b.pc, b.rhs, b.sol)
		copy(dst[b.Start:b.End], b.sol)
	}
}

// SubMatrix extracts the diagonal block A[lo:hi, lo:hi].
func SubMatrix(A *fem.Matrix, lo, hi int) *fem.Matrix {
	sp := A.Sparsity
	vals := A.Values()
	n := hi - lo
	s := &fem.Sparsity{Rows: n, Cols: n, Indptr: make([]int, n+1)}
	var data []float64
	for i := lo; i < hi; i++ {
		for k := sp.Indptr[i]; k < sp.Indptr[i+1]; k++ {
			if j := sp.Ind[k]; j >= lo && j < hi {
				s.Ind = append(s.Ind, j-lo)
				data = append(data, vals[k])
			}
		}
		s.Indptr[i-lo+1] = len(s.Ind)
	}
	return &fem.Matrix{CSR: sparse.NewCSR(n, n, s.Indptr, s.Ind, data), Sparsity: s}
}
