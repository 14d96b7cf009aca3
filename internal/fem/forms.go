package fem

// Basis is a scalar element tabulated on a quadrature rule, the building
// block for hand-written kernels.
type Basis struct {
	Element *Element
	Quad    *Quadrature
	Tab     *Tabulation
}

func NewBasis(dim, degree, quadDegree int) (*Basis, error) {
	el, err := Lagrange(dim, degree)
	if err != nil {
		return nil, err
	}
	q := NewQuadrature(dim, quadDegree)
	return &Basis{Element: el, Quad: q, Tab: el.Tabulate(q)}, nil
}

func (b *Basis) N() int { return b.Element.NumNodes() }

// PhysGrads writes the physical gradients of all basis functions at
// quadrature point q into dst[i*dim+a].
func (b *Basis) PhysGrads(g *Geometry, q int, dst []float64) {
	d := g.Dim
	for i, ref := range b.Tab.DPhi[q] {
		g.PhysGrad(ref, dst[i*d:(i+1)*d])
	}
}

// Value interpolates local dof values at quadrature point q.
func (b *Basis) Value(q int, local []float64) float64 {
	v := 0.0
	for i, p := range b.Tab.Phi[q] {
		v += p * local[i]
	}
	return v
}

// SourceKernel is the linear form f*v*dx for a scalar space.
type SourceKernel struct {
	basis *Basis
	F     func(x []float64) float64
}

func NewSourceKernel(fs *FunctionSpace, quadDegree int, f func(x []float64) float64) (*SourceKernel, error) {
	if quadDegree <= 0 {
		quadDegree = fs.Degree() + 2
	}
	b, err := NewBasis(fs.Mesh().Dim, fs.Degree(), quadDegree)
	if err != nil {
		return nil, err
	}
	return &SourceKernel{basis: b, F: f}, nil
}

func (k *SourceKernel) Shape() (int, int) { return k.basis.N(), 0 }

func (k *SourceKernel) Compute(g *Geometry, _ [][]float64, out []float64) {
	var x [3]float64
	for q, w := range k.basis.Quad.Weights {
		g.Map(k.basis.Quad.Points[q], x[:g.Dim])
		c := w * g.DetJ * k.F(x[:g.Dim])
		axpy(out, c, k.basis.Tab.Phi[q], false)
	}
}

// LumpedMassKernel is the linear form v*dx; assembled it gives the
// diagonal of the row-summed mass matrix.
type LumpedMassKernel struct {
	basis *Basis
}

func NewLumpedMassKernel(fs *FunctionSpace) (*LumpedMassKernel, error) {
	b, err := NewBasis(fs.Mesh().Dim, fs.Degree(), fs.Degree())
	if err != nil {
		return nil, err
	}
	return &LumpedMassKernel{basis: b}, nil
}

func (k *LumpedMassKernel) Shape() (int, int) { return k.basis.N(), 0 }

func (k *LumpedMassKernel) Compute(g *Geometry, _ [][]float64, out []float64) {
	for q, w := range k.basis.Quad.Weights {
		axpy(out, w*g.DetJ, k.basis.Tab.Phi[q], false)
	}
}

// LaplaceActionKernel is the linear form scale*inner(grad(v), grad(u))*dx
// with u the single coefficient, i.e. the stiffness action without a matrix.
type LaplaceActionKernel struct {
	basis *Basis
	Scale float64
	pool  *scratchPool
}

func NewLaplaceActionKernel(fs *FunctionSpace, scale float64) (*LaplaceActionKernel, error) {
	qd := 2 * (fs.Degree() - 1)
	b, err := NewBasis(fs.Mesh().Dim, fs.Degree(), qd)
	if err != nil {
		return nil, err
	}
	return &LaplaceActionKernel{
		basis: b,
		Scale: scale,
		pool:  newScratchPool(b.N()*fs.Mesh().Dim + 3),
	}, nil
}

func (k *LaplaceActionKernel) Shape() (int, int) { return k.basis.N(), 0 }

func (k *LaplaceActionKernel) Compute(g *Geometry, coeffs [][]float64, out []float64) {
	d, n := g.Dim, k.basis.N()
	bp := k.pool.Get()
	defer k.pool.Put(bp)
	buf := *bp
	pg, grad := buf[:n*d], buf[n*d:n*d+d]
	u := coeffs[0]
	for q, w := range k.basis.Quad.Weights {
		k.basis.PhysGrads(g, q, pg)
		for a := 0; a < d; a++ {
			grad[a] = 0
		}
		for j := 0; j < n; j++ {
			axpy(grad, u[j], pg[j*d:(j+1)*d], false)
		}
		c := k.Scale * w * g.DetJ
		for i := 0; i < n; i++ {
			s := 0.0
			for a := 0; a < d; a++ {
				s += pg[i*d+a] * grad[a]
			}
			out[i] += c * s
		}
	}
}
