package fem

import (
	"github.com/san-kum/fembench/internal/mesh"
)

// DirichletBC constrains every component of a Lagrange space on the
// boundary parts named by Markers.
type DirichletBC struct {
	Space   *FunctionSpace
	Markers []int
	// Offset shifts the dofs when the space is a block of a mixed system.
	Offset int

	value float64
	fn    func(x []float64) float64
	nodes []int
}

func NewDirichletBC(fs *FunctionSpace, value float64, markers ...int) *DirichletBC {
	bc := &DirichletBC{Space: fs, Markers: markers, value: value}
	for n := 0; n < fs.NumNodes(); n++ {
		x := fs.NodeCoord(n)
		for _, mk := range markers {
			if mesh.OnBoundary(mk, x) {
				bc.nodes = append(bc.nodes, n)
				break
			}
		}
	}
	return bc
}

// SetValue switches the boundary data to a constant.
func (bc *DirichletBC) SetValue(v float64) {
	bc.value = v
	bc.fn = nil
}

// SetFunc switches the boundary data to a function of position.
func (bc *DirichletBC) SetFunc(fn func(x []float64) float64) { bc.fn = fn }

func (bc *DirichletBC) valueAt(node int) float64 {
	if bc.fn != nil {
		return bc.fn(bc.Space.NodeCoord(node))
	}
	return bc.value
}

// Dofs lists the constrained global dofs.
func (bc *DirichletBC) Dofs() []int {
	C := bc.Space.Components
	out := make([]int, 0, len(bc.nodes)*C)
	for _, n := range bc.nodes {
		for c := 0; c < C; c++ {
			out = append(out, bc.Offset+n*C+c)
		}
	}
	return out
}

// Apply writes the boundary values into x.
func (bc *DirichletBC) Apply(x []float64) {
	C := bc.Space.Components
	for _, n := range bc.nodes {
		v := bc.valueAt(n)
		for c := 0; c < C; c++ {
			x[bc.Offset+n*C+c] = v
		}
	}
}

// Zero writes zeros on the constrained dofs, as needed for Newton updates.
func (bc *DirichletBC) Zero(x []float64) {
	C := bc.Space.Components
	for _, n := range bc.nodes {
		for c := 0; c < C; c++ {
			x[bc.Offset+n*C+c] = 0
		}
	}
}

func bcMask(rows int, bcs []*DirichletBC) ([]bool, []float64) {
	mask := make([]bool, rows)
	vals := make([]float64, rows)
	for _, bc := range bcs {
		C := bc.Space.Components
		for _, n := range bc.nodes {
			v := bc.valueAt(n)
			for c := 0; c < C; c++ {
				d := bc.Offset + n*C + c
				mask[d] = true
				vals[d] = v
			}
		}
	}
	return mask, vals
}

// ApplyBCsToMatrix zeroes constrained rows and columns and sets a unit
// diagonal, keeping the pattern intact.
func ApplyBCsToMatrix(A *Matrix, bcs ...*DirichletBC) {
	ApplyBCsToSystem(A, nil, bcs...)
}

// ApplyBCsToSystem is ApplyBCsToMatrix plus lifting of the boundary values
// into b. b may be nil.
func ApplyBCsToSystem(A *Matrix, b []float64, bcs ...*DirichletBC) {
	sp := A.Sparsity
	mask, g := bcMask(sp.Rows, bcs)
	vals := A.Values()
	for i := 0; i < sp.Rows; i++ {
		for k := sp.Indptr[i]; k < sp.Indptr[i+1]; k++ {
			j := sp.Ind[k]
			switch {
			case mask[i]:
				if i == j {
					vals[k] = 1
				} else {
					vals[k] = 0
				}
			case j < len(mask) && mask[j]:
				if b != nil {
					b[i] -= vals[k] * g[j]
				}
				vals[k] = 0
			}
		}
	}
	if b != nil {
		for i, m := range mask {
			if m {
				b[i] = g[i]
			}
		}
	}
}
