package fem

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Function is a discrete field: one value per global dof of its space.
type Function struct {
	Space  Space
	Values []float64
}

func NewFunction(s Space) *Function {
	return &Function{Space: s, Values: make([]float64, s.Dofs())}
}

func (f *Function) Assign(other *Function) {
	copy(f.Values, other.Values)
}

func (f *Function) Clone() *Function {
	c := NewFunction(f.Space)
	copy(c.Values, f.Values)
	return c
}

// Interpolate sets component comp of a Lagrange field from fn at the nodes.
func Interpolate(fs *FunctionSpace, values []float64, comp int, fn func(x []float64) float64) {
	for n := 0; n < fs.NumNodes(); n++ {
		values[n*fs.Components+comp] = fn(fs.NodeCoord(n))
	}
}

// VertexValues samples component comp of a Lagrange field at mesh vertices.
func VertexValues(fs *FunctionSpace, values []float64, comp int) []float64 {
	m := fs.Mesh()
	out := make([]float64, m.NumVertices())
	for v := range out {
		out[v] = values[fs.VertexNode(v)*fs.Components+comp]
	}
	return out
}

// AssembleMass assembles the consistent mass matrix of fs.
func AssembleMass(ctx context.Context, fs *FunctionSpace, opts ...AssembleOption) (*Matrix, error) {
	k, err := NewFormKernel(FormMass, fs.Mesh().Dim, fs.Degree(), fs.Components, 0, nil, KernelOptions{LICM: true})
	if err != nil {
		return nil, err
	}
	return Assemble(ctx, Form{Test: fs, Trial: fs, Kernel: k}, opts...)
}

// NormL2 is the L2 norm sqrt(u^T M u) of a field u with mass matrix M.
func NormL2(M *Matrix, u []float64) float64 {
	mu := make([]float64, len(u))
	M.Apply(mu, u)
	return math.Sqrt(math.Max(floats.Dot(u, mu), 0))
}

// Norm2 is the Euclidean norm of a dof vector.
func Norm2(x []float64) float64 {
	return floats.Norm(x, 2)
}
