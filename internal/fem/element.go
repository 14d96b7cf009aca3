package fem

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// Element is a nodal Lagrange element of arbitrary degree on a simplex.
// Nodes sit on the equispaced lattice of the reference simplex; the basis is
// obtained by inverting the monomial Vandermonde matrix at those nodes.
type Element struct {
	Dim    int
	Degree int

	// Lattice holds the integer barycentric index of every node. Entries sum
	// to Degree and entry k weighs reference vertex k.
	Lattice [][]int
	Points  [][]float64

	exps [][]int
	coef *mat.Dense // coef.At(j, i): weight of monomial j in basis function i
}

var (
	elemMu    sync.Mutex
	elemCache = map[[2]int]*Element{}
)

// Lagrange returns the (cached) degree-k element on the dim-simplex.
func Lagrange(dim, degree int) (*Element, error) {
	if dim != 2 && dim != 3 {
		return nil, fmt.Errorf("fem: unsupported element dimension %d", dim)
	}
	if degree < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDegree, degree)
	}
	key := [2]int{dim, degree}
	elemMu.Lock()
	defer elemMu.Unlock()
	if e, ok := elemCache[key]; ok {
		return e, nil
	}
	e, err := newLagrange(dim, degree)
	if err != nil {
		return nil, err
	}
	elemCache[key] = e
	return e, nil
}

// multiIndices enumerates exponent tuples of length dim with sum <= p.
func multiIndices(dim, p int) [][]int {
	var out [][]int
	var rec func(prefix []int, left int)
	rec = func(prefix []int, left int) {
		if len(prefix) == dim {
			out = append(out, append([]int(nil), prefix...))
			return
		}
		for a := 0; a <= left; a++ {
			rec(append(prefix, a), left-a)
		}
	}
	rec(make([]int, 0, dim), p)
	return out
}

func newLagrange(dim, p int) (*Element, error) {
	e := &Element{Dim: dim, Degree: p}
	e.exps = multiIndices(dim, p)
	for _, idx := range multiIndices(dim, p) {
		b := make([]int, dim+1)
		sum := 0
		for k, v := range idx {
			b[k+1] = v
			sum += v
		}
		b[0] = p - sum
		pt := make([]float64, dim)
		for k := range pt {
			pt[k] = float64(b[k+1]) / float64(p)
		}
		e.Lattice = append(e.Lattice, b)
		e.Points = append(e.Points, pt)
	}

	n := len(e.Points)
	v := mat.NewDense(n, n, nil)
	for i, pt := range e.Points {
		for j, ex := range e.exps {
			v.Set(i, j, monomial(ex, pt))
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(v); err != nil {
		return nil, fmt.Errorf("fem: vandermonde inversion for P%d: %w", p, err)
	}
	e.coef = &inv
	return e, nil
}

func ipow(x float64, n int) float64 {
	r := 1.0
	for ; n > 0; n-- {
		r *= x
	}
	return r
}

func monomial(ex []int, x []float64) float64 {
	r := 1.0
	for d, a := range ex {
		r *= ipow(x[d], a)
	}
	return r
}

func (e *Element) NumNodes() int { return len(e.Points) }

// Eval writes every basis function at x into dst.
func (e *Element) Eval(x []float64, dst []float64) {
	n := e.NumNodes()
	for i := 0; i < n; i++ {
		dst[i] = 0
	}
	for j, ex := range e.exps {
		m := monomial(ex, x)
		for i := 0; i < n; i++ {
			dst[i] += e.coef.At(j, i) * m
		}
	}
}

// Grad writes reference gradients of every basis function at x into dst[i][d].
func (e *Element) Grad(x []float64, dst [][]float64) {
	n := e.NumNodes()
	for i := 0; i < n; i++ {
		for d := 0; d < e.Dim; d++ {
			dst[i][d] = 0
		}
	}
	for j, ex := range e.exps {
		for d := 0; d < e.Dim; d++ {
			if ex[d] == 0 {
				continue
			}
			m := float64(ex[d])
			for k, a := range ex {
				if k == d {
					m *= ipow(x[k], a-1)
				} else {
					m *= ipow(x[k], a)
				}
			}
			for i := 0; i < n; i++ {
				dst[i][d] += e.coef.At(j, i) * m
			}
		}
	}
}

// Tabulation holds basis values and reference gradients at quadrature points.
type Tabulation struct {
	Phi  [][]float64   // [q][i]
	DPhi [][][]float64 // [q][i][d]
}

func (e *Element) Tabulate(q *Quadrature) *Tabulation {
	t := &Tabulation{
		Phi:  make([][]float64, q.Len()),
		DPhi: make([][][]float64, q.Len()),
	}
	n := e.NumNodes()
	for k, x := range q.Points {
		t.Phi[k] = make([]float64, n)
		e.Eval(x, t.Phi[k])
		t.DPhi[k] = make([][]float64, n)
		for i := range t.DPhi[k] {
			t.DPhi[k][i] = make([]float64, e.Dim)
		}
		e.Grad(x, t.DPhi[k])
	}
	return t
}
