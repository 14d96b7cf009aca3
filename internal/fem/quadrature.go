package fem

import (
	"sync"

	"gonum.org/v1/gonum/integrate/quad"
)

// Quadrature is a rule on the reference simplex with vertices at the origin
// and the unit points along each axis.
type Quadrature struct {
	Dim     int
	Degree  int
	Points  [][]float64
	Weights []float64
}

func (q *Quadrature) Len() int { return len(q.Weights) }

var (
	quadMu    sync.Mutex
	quadCache = map[[2]int]*Quadrature{}
)

// NewQuadrature returns a collapsed Gauss-Legendre rule exact for
// polynomials of total degree up to degree. Rules are cached.
func NewQuadrature(dim, degree int) *Quadrature {
	if degree < 0 {
		degree = 0
	}
	key := [2]int{dim, degree}
	quadMu.Lock()
	defer quadMu.Unlock()
	if q, ok := quadCache[key]; ok {
		return q
	}

	n := (degree + 4) / 2
	x := make([]float64, n)
	w := make([]float64, n)
	quad.Legendre{}.FixedLocations(x, w, 0, 1)

	q := &Quadrature{Dim: dim, Degree: degree}
	switch dim {
	case 2:
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				u, v := x[i], x[j]
				q.Points = append(q.Points, []float64{u, v * (1 - u)})
				q.Weights = append(q.Weights, w[i]*w[j]*(1-u))
			}
		}
	case 3:
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				for k := 0; k < n; k++ {
					u, v, s := x[i], x[j], x[k]
					q.Points = append(q.Points, []float64{u, v * (1 - u), s * (1 - u) * (1 - v)})
					q.Weights = append(q.Weights, w[i]*w[j]*w[k]*(1-u)*(1-u)*(1-v))
				}
			}
		}
	default:
		panic("fem: quadrature dimension must be 2 or 3")
	}
	quadCache[key] = q
	return q
}
