package fem

import (
	"fmt"
	"strings"

	"github.com/san-kum/fembench/internal/mesh"
)

// Kernel computes one cell's local tensor. Bilinear kernels fill a
// rows*cols row-major matrix, linear kernels (cols == 0) a rows vector.
// Compute must be safe for concurrent use.
type Kernel interface {
	Shape() (rows, cols int)
	Compute(g *Geometry, coeffs [][]float64, out []float64)
}

// KernelOptions toggle the code paths used when generating a form kernel.
// They change how local tensors are computed, never their values.
type KernelOptions struct {
	// LICM hoists basis products out of the cell loop into reference tensors.
	LICM bool `yaml:"licm" json:"licm"`
	// AP pads local arrays to a multiple of four entries.
	AP bool `yaml:"ap" json:"ap"`
	// Vect unrolls the innermost loops by four.
	Vect bool `yaml:"vect" json:"vect"`
}

func (o KernelOptions) String() string {
	return fmt.Sprintf("(%t, %t, %t)", o.LICM, o.AP, o.Vect)
}

// AllKernelOptions lists the four optimisation levels that are benchmarked.
var AllKernelOptions = []KernelOptions{
	{},
	{AP: true, Vect: true},
	{LICM: true},
	{LICM: true, AP: true, Vect: true},
}

func pad4(n int) int { return (n + 3) &^ 3 }

// axpy computes y += a*x.
func axpy(y []float64, a float64, x []float64, unroll bool) {
	n := len(x)
	i := 0
	if unroll {
		for ; i+4 <= n; i += 4 {
			y[i] += a * x[i]
			y[i+1] += a * x[i+1]
			y[i+2] += a * x[i+2]
			y[i+3] += a * x[i+3]
		}
	}
	for ; i < n; i++ {
		y[i] += a * x[i]
	}
}

// FormKind names the bilinear forms the form kernel can generate.
type FormKind int

const (
	FormMass FormKind = iota
	FormPoisson
	FormElasticity
	FormMixedPoisson
)

var formNames = []string{"mass", "poisson", "elasticity", "mixed_poisson"}

func (k FormKind) String() string {
	if int(k) < len(formNames) {
		return formNames[k]
	}
	return fmt.Sprintf("form(%d)", int(k))
}

func ParseForm(name string) (FormKind, error) {
	for i, n := range formNames {
		if strings.EqualFold(n, name) {
			return FormKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownForm, name)
}

// FormNames lists every form understood by ParseForm.
func FormNames() []string { return append([]string(nil), formNames...) }

// FormSpace builds the test/trial space a form kind expects on m: vector
// P_k for elasticity, vector P_k x P_k for mixed poisson and P_k with comps
// components otherwise.
func FormSpace(m *mesh.Mesh, kind FormKind, degree, comps int) (Space, error) {
	switch kind {
	case FormElasticity:
		return NewFunctionSpace(m, degree, m.Dim)
	case FormMixedPoisson:
		v, err := NewFunctionSpace(m, degree, m.Dim)
		if err != nil {
			return nil, err
		}
		q, err := NewFunctionSpace(m, degree, 1)
		if err != nil {
			return nil, err
		}
		return NewMixedSpace(v, q)
	}
	if comps < 1 {
		comps = 1
	}
	return NewFunctionSpace(m, degree, comps)
}

// Lame parameters of the elasticity form.
const (
	lameMu     = 1.0
	lameLambda = 1.0
)

// FormKernel is a generated local kernel for one of the FormKind forms,
// optionally multiplied by a product of scalar coefficient fields.
//
// Every form is expressed through three cell tensors: M (phi_i phi_j),
// P (d_a phi_i d_b phi_j) and Q (d_a phi_i phi_j).
type FormKernel struct {
	Kind  FormKind
	dim   int
	n     int
	comps int
	rows  int
	opts  KernelOptions

	quad      *Quadrature
	tab       *Tabulation
	coeffTabs []*Tabulation

	needM, needP, needQ bool

	summed bool
	refM   [][]float64
	refP   [][]float64
	refQ   [][]float64

	ld   int
	ldr  int
	pool *scratchPool
}

// NewFormKernel builds the kernel. comps is the number of components of the
// test/trial space for mass and poisson forms; elasticity and mixed poisson
// fix their own layout. quadDegree <= 0 picks an exact degree.
func NewFormKernel(kind FormKind, dim, degree, comps, quadDegree int, coeffSpaces []*FunctionSpace, opts KernelOptions) (*FormKernel, error) {
	el, err := Lagrange(dim, degree)
	if err != nil {
		return nil, err
	}
	if comps < 1 {
		comps = 1
	}
	k := &FormKernel{Kind: kind, dim: dim, n: el.NumNodes(), comps: comps, opts: opts}

	switch kind {
	case FormMass:
		k.needM = true
		k.rows = k.n * comps
	case FormPoisson:
		k.needP = true
		k.rows = k.n * comps
	case FormElasticity:
		k.needP = true
		k.comps = dim
		k.rows = k.n * dim
	case FormMixedPoisson:
		k.needM, k.needQ = true, true
		k.comps = dim
		k.rows = k.n*dim + k.n
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownForm, int(kind))
	}

	if quadDegree <= 0 {
		quadDegree = 2 * degree
		if !k.needM {
			quadDegree = 2 * (degree - 1)
		}
		for _, cs := range coeffSpaces {
			quadDegree += cs.Degree()
		}
	}
	k.quad = NewQuadrature(dim, quadDegree)
	k.tab = el.Tabulate(k.quad)
	for _, cs := range coeffSpaces {
		if cs.Mesh().Dim != dim {
			return nil, fmt.Errorf("%w: coefficient dimension %d", ErrShapeMismatch, cs.Mesh().Dim)
		}
		k.coeffTabs = append(k.coeffTabs, cs.Element.Tabulate(k.quad))
	}

	k.ld, k.ldr = k.n, k.rows
	if opts.AP {
		k.ld, k.ldr = pad4(k.n), pad4(k.rows)
	}
	if opts.LICM {
		k.hoist()
	}
	k.pool = newScratchPool(k.scratchLen())
	return k, nil
}

func (k *FormKernel) Shape() (int, int) { return k.rows, k.rows }

// QuadratureDegree reports the degree of the rule the kernel integrates with.
func (k *FormKernel) QuadratureDegree() int { return k.quad.Degree }

func (k *FormKernel) hoist() {
	n, d := k.n, k.dim
	nq := k.quad.Len()
	k.summed = len(k.coeffTabs) == 0
	slots := nq
	if k.summed {
		slots = 1
	}
	alloc := func(size int) [][]float64 {
		out := make([][]float64, slots)
		for i := range out {
			out[i] = make([]float64, size)
		}
		return out
	}
	if k.needM {
		k.refM = alloc(n * k.ld)
	}
	if k.needP {
		k.refP = alloc(n * n * d * d)
	}
	if k.needQ {
		k.refQ = alloc(n * n * d)
	}
	for q := 0; q < nq; q++ {
		slot := q
		if k.summed {
			slot = 0
		}
		w := k.quad.Weights[q]
		phi, dphi := k.tab.Phi[q], k.tab.DPhi[q]
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if k.needM {
					k.refM[slot][i*k.ld+j] += w * phi[i] * phi[j]
				}
				if k.needP {
					base := (i*n + j) * d * d
					for e := 0; e < d; e++ {
						for f := 0; f < d; f++ {
							k.refP[slot][base+e*d+f] += w * dphi[i][e] * dphi[j][f]
						}
					}
				}
				if k.needQ {
					base := (i*n + j) * d
					for e := 0; e < d; e++ {
						k.refQ[slot][base+e] += w * dphi[i][e] * phi[j]
					}
				}
			}
		}
	}
}

func (k *FormKernel) scratchLen() int {
	n, d := k.n, k.dim
	return n*k.ld + n*n*d*d + n*n*d + n*d + k.rows*k.ldr
}

type formScratch struct {
	M, P, Q, pg, stage []float64
}

func (k *FormKernel) split(buf []float64) formScratch {
	n, d := k.n, k.dim
	var s formScratch
	s.M, buf = buf[:n*k.ld], buf[n*k.ld:]
	s.P, buf = buf[:n*n*d*d], buf[n*n*d*d:]
	s.Q, buf = buf[:n*n*d], buf[n*n*d:]
	s.pg, buf = buf[:n*d], buf[n*d:]
	s.stage = buf[:k.rows*k.ldr]
	return s
}

// coefficient is the product of all coefficient fields at quadrature point q.
func coefficient(tabs []*Tabulation, coeffs [][]float64, q int) float64 {
	c := 1.0
	for f, t := range tabs {
		v := 0.0
		for i, p := range t.Phi[q] {
			v += p * coeffs[f][i]
		}
		c *= v
	}
	return c
}

func (k *FormKernel) Compute(g *Geometry, coeffs [][]float64, out []float64) {
	bp := k.pool.Get()
	defer k.pool.Put(bp)
	s := k.split(*bp)

	switch {
	case k.summed:
		k.contract(g, g.DetJ, 0, s)
	case k.opts.LICM:
		for q := range k.quad.Weights {
			k.contract(g, g.DetJ*coefficient(k.coeffTabs, coeffs, q), q, s)
		}
	default:
		for q, w := range k.quad.Weights {
			k.direct(g, w*g.DetJ*coefficient(k.coeffTabs, coeffs, q), q, s)
		}
	}
	k.scatter(s, out)
}

// contract adds c times the hoisted reference tensors, pulled back through
// the cell Jacobian.
func (k *FormKernel) contract(g *Geometry, c float64, slot int, s formScratch) {
	n, d := k.n, k.dim
	if k.needM {
		axpy(s.M, c, k.refM[slot], k.opts.Vect)
	}
	if k.needP {
		ref := k.refP[slot]
		for ij := 0; ij < n*n; ij++ {
			r := ref[ij*d*d : (ij+1)*d*d]
			p := s.P[ij*d*d : (ij+1)*d*d]
			for a := 0; a < d; a++ {
				for b := 0; b < d; b++ {
					v := 0.0
					for e := 0; e < d; e++ {
						je := g.Jinv[e][a]
						for f := 0; f < d; f++ {
							v += je * g.Jinv[f][b] * r[e*d+f]
						}
					}
					p[a*d+b] += c * v
				}
			}
		}
	}
	if k.needQ {
		ref := k.refQ[slot]
		for ij := 0; ij < n*n; ij++ {
			for a := 0; a < d; a++ {
				v := 0.0
				for e := 0; e < d; e++ {
					v += g.Jinv[e][a] * ref[ij*d+e]
				}
				s.Q[ij*d+a] += c * v
			}
		}
	}
}

// direct integrates one quadrature point straight in physical coordinates.
func (k *FormKernel) direct(g *Geometry, c float64, q int, s formScratch) {
	n, d := k.n, k.dim
	phi := k.tab.Phi[q]
	if k.needP || k.needQ {
		for i := 0; i < n; i++ {
			g.PhysGrad(k.tab.DPhi[q][i], s.pg[i*d:(i+1)*d])
		}
	}
	for i := 0; i < n; i++ {
		if k.needM {
			axpy(s.M[i*k.ld:i*k.ld+n], c*phi[i], phi, k.opts.Vect)
		}
		gi := s.pg[i*d : (i+1)*d]
		for j := 0; j < n; j++ {
			ij := i*n + j
			if k.needP {
				gj := s.pg[j*d : (j+1)*d]
				p := s.P[ij*d*d : (ij+1)*d*d]
				for a := 0; a < d; a++ {
					axpy(p[a*d:(a+1)*d], c*gi[a], gj, k.opts.Vect)
				}
			}
			if k.needQ {
				axpy(s.Q[ij*d:(ij+1)*d], c*phi[j], gi, k.opts.Vect)
			}
		}
	}
}

func (k *FormKernel) scatter(s formScratch, out []float64) {
	n, d, ldr := k.n, k.dim, k.ldr
	st := s.stage
	switch k.Kind {
	case FormMass, FormPoisson:
		C := k.comps
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				var v float64
				if k.Kind == FormMass {
					v = s.M[i*k.ld+j]
				} else {
					p := s.P[(i*n+j)*d*d:]
					for a := 0; a < d; a++ {
						v += p[a*d+a]
					}
				}
				for a := 0; a < C; a++ {
					st[(i*C+a)*ldr+j*C+a] = v
				}
			}
		}
	case FormElasticity:
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				p := s.P[(i*n+j)*d*d:]
				tr := 0.0
				for a := 0; a < d; a++ {
					tr += p[a*d+a]
				}
				for a := 0; a < d; a++ {
					for b := 0; b < d; b++ {
						v := lameMu*p[b*d+a] + lameLambda*p[a*d+b]
						if a == b {
							v += lameMu * tr
						}
						st[(i*d+a)*ldr+j*d+b] = v
					}
				}
			}
		}
	case FormMixedPoisson:
		u := n * d
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				m := s.M[i*k.ld+j]
				for a := 0; a < d; a++ {
					st[(i*d+a)*ldr+j*d+a] = m
					st[(i*d+a)*ldr+u+j] = s.Q[(i*n+j)*d+a]
					st[(u+i)*ldr+j*d+a] = s.Q[(j*n+i)*d+a]
				}
			}
		}
	}
	for r := 0; r < k.rows; r++ {
		copy(out[r*k.rows:(r+1)*k.rows], st[r*ldr:r*ldr+k.rows])
	}
}
