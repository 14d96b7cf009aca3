package cahnhilliard

import (
	"github.com/san-kum/fembench/internal/fem"
)

// Chemical free energy f = 100 c^2 (1-c)^2 and its derivatives.
func dfdc(c float64) float64   { return 200 * c * (1 - c) * (1 - 2*c) }
func d2fdc2(c float64) float64 { return 200 * (1 - 6*c + 6*c*c) }

// qpoint holds the fields of both stages at one quadrature point.
type qpoint struct {
	c, mu, c0     float64
	gc, gmu, gmu0 [3]float64
}

type stageKernel struct {
	basis *fem.Basis
	dt    float64
	theta float64
	lmbda float64
}

func newStageKernel(fs *fem.FunctionSpace, dt, theta, lmbda float64) (stageKernel, error) {
	b, err := fem.NewBasis(fs.Mesh().Dim, fs.Degree(), 4*fs.Degree())
	if err != nil {
		return stageKernel{}, err
	}
	return stageKernel{basis: b, dt: dt, theta: theta, lmbda: lmbda}, nil
}

// eval interpolates the current state w and the previous state w0, both
// laid out as [c dofs, mu dofs], at quadrature point q.
func (k stageKernel) eval(q int, pg []float64, w, w0 []float64, d int) qpoint {
	n := k.basis.N()
	var p qpoint
	for j, phi := range k.basis.Tab.Phi[q] {
		p.c += phi * w[j]
		p.mu += phi * w[n+j]
		p.c0 += phi * w0[j]
		for a := 0; a < d; a++ {
			g := pg[j*d+a]
			p.gc[a] += g * w[j]
			p.gmu[a] += g * w[n+j]
			p.gmu0[a] += g * w0[n+j]
		}
	}
	return p
}

// residualKernel is the theta-scheme residual
//
//	L0 = (c - c0) q + dt grad(mu_theta).grad(q)
//	L1 = mu v - f'(c) v - lmbda grad(c).grad(v)
//
// with coefficients [w, w0].
type residualKernel struct{ stageKernel }

func (k residualKernel) Shape() (int, int) { return 2 * k.basis.N(), 0 }

func (k residualKernel) Compute(g *fem.Geometry, coeffs [][]float64, out []float64) {
	d, n := g.Dim, k.basis.N()
	pg := make([]float64, n*d)
	w, w0 := coeffs[0], coeffs[1]
	for q, wq := range k.basis.Quad.Weights {
		k.basis.PhysGrads(g, q, pg)
		p := k.eval(q, pg, w, w0, d)
		var gmt [3]float64
		for a := 0; a < d; a++ {
			gmt[a] = k.theta*p.gmu[a] + (1-k.theta)*p.gmu0[a]
		}
		dx := wq * g.DetJ
		fp := dfdc(p.c)
		for i, phi := range k.basis.Tab.Phi[q] {
			var s0, s1 float64
			for a := 0; a < d; a++ {
				s0 += gmt[a] * pg[i*d+a]
				s1 += p.gc[a] * pg[i*d+a]
			}
			out[i] += dx * ((p.c-p.c0)*phi + k.dt*s0)
			out[n+i] += dx * (p.mu*phi - fp*phi - k.lmbda*s1)
		}
	}
}

// jacobianKernel is the derivative of residualKernel with respect to
// (c, mu):
//
//	[ M                     dt theta K ]
//	[ -lmbda K - f''(c) M   M          ]
type jacobianKernel struct{ stageKernel }

func (k jacobianKernel) Shape() (int, int) {
	n := 2 * k.basis.N()
	return n, n
}

func (k jacobianKernel) Compute(g *fem.Geometry, coeffs [][]float64, out []float64) {
	d, n := g.Dim, k.basis.N()
	cols := 2 * n
	pg := make([]float64, n*d)
	w := coeffs[0]
	for q, wq := range k.basis.Quad.Weights {
		k.basis.PhysGrads(g, q, pg)
		c := k.basis.Value(q, w[:n])
		fpp := d2fdc2(c)
		dx := wq * g.DetJ
		phi := k.basis.Tab.Phi[q]
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				m := phi[i] * phi[j]
				s := 0.0
				for a := 0; a < d; a++ {
					s += pg[i*d+a] * pg[j*d+a]
				}
				out[i*cols+j] += dx * m
				out[i*cols+n+j] += dx * k.dt * k.theta * s
				out[(n+i)*cols+j] += dx * (-fpp*m - k.lmbda*s)
				out[(n+i)*cols+n+j] += dx * m
			}
		}
	}
}
