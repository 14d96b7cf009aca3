package fem

import (
	"math"

	"github.com/san-kum/fembench/internal/mesh"
)

// Geometry is the affine map from the reference simplex to one cell.
type Geometry struct {
	Dim    int
	Origin [3]float64
	J      [3][3]float64 // J[a][b] = d x_a / d xi_b
	Jinv   [3][3]float64
	DetJ   float64 // absolute value
}

// Reset fills g for the given cell.
func (g *Geometry) Reset(m *mesh.Mesh, cell int) {
	g.Dim = m.Dim
	vs := m.Cell(cell)
	o := m.Vertex(vs[0])
	for a := 0; a < m.Dim; a++ {
		g.Origin[a] = o[a]
	}
	for b := 0; b < m.Dim; b++ {
		v := m.Vertex(vs[b+1])
		for a := 0; a < m.Dim; a++ {
			g.J[a][b] = v[a] - o[a]
		}
	}
	if m.Dim == 2 {
		det := g.J[0][0]*g.J[1][1] - g.J[0][1]*g.J[1][0]
		g.Jinv[0][0] = g.J[1][1] / det
		g.Jinv[0][1] = -g.J[0][1] / det
		g.Jinv[1][0] = -g.J[1][0] / det
		g.Jinv[1][1] = g.J[0][0] / det
		g.DetJ = math.Abs(det)
		return
	}
	j := &g.J
	c00 := j[1][1]*j[2][2] - j[1][2]*j[2][1]
	c01 := j[1][2]*j[2][0] - j[1][0]*j[2][2]
	c02 := j[1][0]*j[2][1] - j[1][1]*j[2][0]
	det := j[0][0]*c00 + j[0][1]*c01 + j[0][2]*c02
	g.Jinv[0][0] = c00 / det
	g.Jinv[1][0] = c01 / det
	g.Jinv[2][0] = c02 / det
	g.Jinv[0][1] = (j[0][2]*j[2][1] - j[0][1]*j[2][2]) / det
	g.Jinv[1][1] = (j[0][0]*j[2][2] - j[0][2]*j[2][0]) / det
	g.Jinv[2][1] = (j[0][1]*j[2][0] - j[0][0]*j[2][1]) / det
	g.Jinv[0][2] = (j[0][1]*j[1][2] - j[0][2]*j[1][1]) / det
	g.Jinv[1][2] = (j[0][2]*j[1][0] - j[0][0]*j[1][2]) / det
	g.Jinv[2][2] = (j[0][0]*j[1][1] - j[0][1]*j[1][0]) / det
	g.DetJ = math.Abs(det)
}

// Map sends a reference point to physical coordinates.
func (g *Geometry) Map(ref []float64, dst []float64) {
	for a := 0; a < g.Dim; a++ {
		x := g.Origin[a]
		for b := 0; b < g.Dim; b++ {
			x += g.J[a][b] * ref[b]
		}
		dst[a] = x
	}
}

// PhysGrad maps a reference gradient to a physical one (J^-T applied).
func (g *Geometry) PhysGrad(ref []float64, dst []float64) {
	for a := 0; a < g.Dim; a++ {
		s := 0.0
		for b := 0; b < g.Dim; b++ {
			s += g.Jinv[b][a] * ref[b]
		}
		dst[a] = s
	}
}
