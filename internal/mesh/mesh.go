package mesh

import (
	"errors"
	"fmt"
)

var ErrInvalidSize = errors.New("mesh: size must be positive")

// Mesh is a structured simplex mesh of the unit square or unit cube.
//
// Vertices sit on an integer grid with spacing 1/N. Grid holds those integer
// coordinates so that higher order node lattices can be keyed exactly.
type Mesh struct {
	Dim    int
	N      int
	Coords []float64 // NumVertices * Dim
	Grid   []int     // NumVertices * Dim, in units of 1/N
	Cells  []int     // NumCells * (Dim+1)
}

func (m *Mesh) NumVertices() int { return len(m.Coords) / m.Dim }

func (m *Mesh) NumCells() int { return len(m.Cells) / (m.Dim + 1) }

// VerticesPerCell is Dim+1 for simplices.
func (m *Mesh) VerticesPerCell() int { return m.Dim + 1 }

func (m *Mesh) Cell(c int) []int {
	nv := m.Dim + 1
	return m.Cells[c*nv : (c+1)*nv]
}

func (m *Mesh) Vertex(v int) []float64 {
	return m.Coords[v*m.Dim : (v+1)*m.Dim]
}

func (m *Mesh) String() string {
	return fmt.Sprintf("mesh(dim=%d, n=%d, cells=%d, vertices=%d)", m.Dim, m.N, m.NumCells(), m.NumVertices())
}

// UnitSquare splits each of the n*n squares into two triangles.
func UnitSquare(n int) (*Mesh, error) {
	if n <= 0 {
		return nil, ErrInvalidSize
	}
	m := &Mesh{
		Dim:    2,
		N:      n,
		Coords: make([]float64, 0, 2*(n+1)*(n+1)),
		Grid:   make([]int, 0, 2*(n+1)*(n+1)),
		Cells:  make([]int, 0, 3*2*n*n),
	}
	h := 1.0 / float64(n)
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			m.Coords = append(m.Coords, float64(i)*h, float64(j)*h)
			m.Grid = append(m.Grid, i, j)
		}
	}
	idx := func(i, j int) int { return j*(n+1) + i }
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			v00, v10 := idx(i, j), idx(i+1, j)
			v01, v11 := idx(i, j+1), idx(i+1, j+1)
			m.Cells = append(m.Cells, v00, v10, v11, v00, v11, v01)
		}
	}
	return m, nil
}

// kuhn lists the axis orderings of the six tetrahedra sharing the main
// diagonal of a cube. The decomposition is conforming across neighbours.
var kuhn = [6][3]int{
	{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
}

// UnitCube splits each of the n*n*n cubes into six tetrahedra.
func UnitCube(n int) (*Mesh, error) {
	if n <= 0 {
		return nil, ErrInvalidSize
	}
	nv := (n + 1) * (n + 1) * (n + 1)
	m := &Mesh{
		Dim:    3,
		N:      n,
		Coords: make([]float64, 0, 3*nv),
		Grid:   make([]int, 0, 3*nv),
		Cells:  make([]int, 0, 4*6*n*n*n),
	}
	h := 1.0 / float64(n)
	for k := 0; k <= n; k++ {
		for j := 0; j <= n; j++ {
			for i := 0; i <= n; i++ {
				m.Coords = append(m.Coords, float64(i)*h, float64(j)*h, float64(k)*h)
				m.Grid = append(m.Grid, i, j, k)
			}
		}
	}
	idx := func(p [3]int) int { return (p[2]*(n+1)+p[1])*(n+1) + p[0] }
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				for _, order := range kuhn {
					p := [3]int{i, j, k}
					tet := [4]int{idx(p)}
					for s, axis := range order {
						p[axis]++
						tet[s+1] = idx(p)
					}
					m.Cells = append(m.Cells, tet[:]...)
				}
			}
		}
	}
	return m, nil
}

// New builds a unit square (dim 2) or unit cube (dim 3) mesh.
func New(dim, n int) (*Mesh, error) {
	switch dim {
	case 2:
		return UnitSquare(n)
	case 3:
		return UnitCube(n)
	default:
		return nil, fmt.Errorf("mesh: unsupported dimension %d", dim)
	}
}

// OnBoundary reports whether the point lies on the boundary with the given
// marker. Markers follow the usual unit-domain numbering: 1 x=0, 2 x=1,
// 3 y=0, 4 y=1, 5 z=0, 6 z=1.
func OnBoundary(marker int, x []float64) bool {
	const tol = 1e-12
	axis := (marker - 1) / 2
	if marker < 1 || axis >= len(x) {
		return false
	}
	target := 0.0
	if marker%2 == 0 {
		target = 1.0
	}
	d := x[axis] - target
	return d < tol && d > -tol
}

// Markers returns all boundary markers for a mesh of the given dimension.
func Markers(dim int) []int {
	out := make([]int, 2*dim)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// CellsForSize is the cell count of a size-n unit mesh.
func CellsForSize(dim, n int) int {
	if dim == 2 {
		return 2 * n * n
	}
	return 6 * n * n * n
}
