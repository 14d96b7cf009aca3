package fem

import (
	"fmt"

	"github.com/san-kum/fembench/internal/mesh"
)

// Space is anything that hands out global degrees of freedom per cell.
type Space interface {
	Mesh() *mesh.Mesh
	Dofs() int
	LocalDofs() int
	// CellDofs appends the global dofs of cell to dst[:0].
	CellDofs(cell int, dst []int) []int
}

// FunctionSpace is a continuous Lagrange space with one or more components.
// Vector components are interleaved: dof = node*Components + component.
type FunctionSpace struct {
	mesh       *mesh.Mesh
	Element    *Element
	Components int

	numNodes   int
	cellNodes  []int
	nodeCoords []float64
	vertexNode []int
}

type latticeKey [3]int

// NewFunctionSpace numbers the lattice nodes of every cell so that nodes
// shared between cells get one global index.
func NewFunctionSpace(m *mesh.Mesh, degree, components int) (*FunctionSpace, error) {
	if components < 1 {
		return nil, fmt.Errorf("fem: components must be positive, got %d", components)
	}
	el, err := Lagrange(m.Dim, degree)
	if err != nil {
		return nil, err
	}
	nn := el.NumNodes()
	fs := &FunctionSpace{
		mesh:       m,
		Element:    el,
		Components: components,
		cellNodes:  make([]int, m.NumCells()*nn),
	}

	ids := make(map[latticeKey]int, m.NumVertices()*degree*degree)
	for c := 0; c < m.NumCells(); c++ {
		verts := m.Cell(c)
		for i, b := range el.Lattice {
			var key latticeKey
			for k, v := range verts {
				g := m.Grid[v*m.Dim : (v+1)*m.Dim]
				for d := 0; d < m.Dim; d++ {
					key[d] += b[k] * g[d]
				}
			}
			id, ok := ids[key]
			if !ok {
				id = len(ids)
				ids[key] = id
			}
			fs.cellNodes[c*nn+i] = id
		}
	}
	fs.numNodes = len(ids)

	scale := 1.0 / float64(m.N*degree)
	fs.nodeCoords = make([]float64, fs.numNodes*m.Dim)
	for key, id := range ids {
		for d := 0; d < m.Dim; d++ {
			fs.nodeCoords[id*m.Dim+d] = float64(key[d]) * scale
		}
	}

	fs.vertexNode = make([]int, m.NumVertices())
	for v := 0; v < m.NumVertices(); v++ {
		var key latticeKey
		for d := 0; d < m.Dim; d++ {
			key[d] = m.Grid[v*m.Dim+d] * degree
		}
		fs.vertexNode[v] = ids[key]
	}
	return fs, nil
}

func (fs *FunctionSpace) Mesh() *mesh.Mesh { return fs.mesh }

func (fs *FunctionSpace) Degree() int { return fs.Element.Degree }

func (fs *FunctionSpace) NumNodes() int { return fs.numNodes }

func (fs *FunctionSpace) Dofs() int { return fs.numNodes * fs.Components }

func (fs *FunctionSpace) LocalDofs() int { return fs.Element.NumNodes() * fs.Components }

func (fs *FunctionSpace) CellNodes(cell int) []int {
	nn := fs.Element.NumNodes()
	return fs.cellNodes[cell*nn : (cell+1)*nn]
}

func (fs *FunctionSpace) CellDofs(cell int, dst []int) []int {
	dst = dst[:0]
	for _, n := range fs.CellNodes(cell) {
		for c := 0; c < fs.Components; c++ {
			dst = append(dst, n*fs.Components+c)
		}
	}
	return dst
}

func (fs *FunctionSpace) NodeCoord(node int) []float64 {
	d := fs.mesh.Dim
	return fs.nodeCoords[node*d : (node+1)*d]
}

// VertexNode maps a mesh vertex to the node sitting on it.
func (fs *FunctionSpace) VertexNode(v int) int { return fs.vertexNode[v] }

// MixedSpace concatenates sub spaces; global dofs are laid out block by block.
type MixedSpace struct {
	Subs    []Space
	offsets []int
	local   int
}

func NewMixedSpace(subs ...Space) (*MixedSpace, error) {
	if len(subs) == 0 {
		return nil, fmt.Errorf("fem: mixed space needs at least one sub space")
	}
	ms := &MixedSpace{Subs: subs, offsets: make([]int, len(subs)+1)}
	m := subs[0].Mesh()
	for i, s := range subs {
		if s.Mesh() != m {
			return nil, fmt.Errorf("fem: mixed sub spaces must share a mesh")
		}
		ms.offsets[i+1] = ms.offsets[i] + s.Dofs()
		ms.local += s.LocalDofs()
	}
	return ms, nil
}

func (ms *MixedSpace) Mesh() *mesh.Mesh { return ms.Subs[0].Mesh() }

func (ms *MixedSpace) Dofs() int { return ms.offsets[len(ms.Subs)] }

func (ms *MixedSpace) LocalDofs() int { return ms.local }

// Offset is the first global dof of sub space i.
func (ms *MixedSpace) Offset(i int) int { return ms.offsets[i] }

// Range returns the global dof range [lo, hi) of sub space i.
func (ms *MixedSpace) Range(i int) (int, int) { return ms.offsets[i], ms.offsets[i+1] }

func (ms *MixedSpace) CellDofs(cell int, dst []int) []int {
	dst = dst[:0]
	var buf []int
	for i, s := range ms.Subs {
		buf = s.CellDofs(cell, buf)
		for _, d := range buf {
			dst = append(dst, d+ms.offsets[i])
		}
	}
	return dst
}
