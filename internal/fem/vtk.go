package fem

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/san-kum/fembench/internal/mesh"
)

// PointField is a named array of per-vertex values.
type PointField struct {
	Name   string
	Values []float64
}

// VTKWriter writes one .vtu file per call to Write and keeps a .pvd
// collection listing them by time.
type VTKWriter struct {
	path    string
	entries []pvdDataSet
}

type pvdFile struct {
	XMLName    xml.Name      `xml:"VTKFile"`
	Type       string        `xml:"type,attr"`
	Version    string        `xml:"version,attr"`
	Collection pvdCollection `xml:"Collection"`
}

type pvdCollection struct {
	DataSets []pvdDataSet `xml:"DataSet"`
}

type pvdDataSet struct {
	Timestep float64 `xml:"timestep,attr"`
	Part     int     `xml:"part,attr"`
	File     string  `xml:"file,attr"`
}

func NewVTKWriter(path string) *VTKWriter {
	if !strings.HasSuffix(path, ".pvd") {
		path += ".pvd"
	}
	return &VTKWriter{path: path}
}

func (w *VTKWriter) Path() string { return w.path }

func (w *VTKWriter) Write(t float64, m *mesh.Mesh, fields ...PointField) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(w.path), ".pvd")
	name := fmt.Sprintf("%s_%d.vtu", base, len(w.entries))
	if err := writeVTU(filepath.Join(dir, name), m, fields); err != nil {
		return err
	}
	w.entries = append(w.entries, pvdDataSet{Timestep: t, File: name})
	return w.flush()
}

func (w *VTKWriter) flush() error {
	doc := pvdFile{Type: "Collection", Version: "0.1", Collection: pvdCollection{DataSets: w.entries}}
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append([]byte(xml.Header), data...)
	return os.WriteFile(w.path, data, 0644)
}

const (
	vtkTriangle = 5
	vtkTetra    = 10
)

func writeVTU(path string, m *mesh.Mesh, fields []PointField) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bw := bufio.NewWriter(f)

	nv, nc, npc := m.NumVertices(), m.NumCells(), m.VerticesPerCell()
	cellType := vtkTriangle
	if m.Dim == 3 {
		cellType = vtkTetra
	}

	fmt.Fprintln(bw, `<?xml version="1.0"?>`)
	fmt.Fprintln(bw, `<VTKFile type="UnstructuredGrid" version="0.1" byte_order="LittleEndian">`)
	fmt.Fprintln(bw, `<UnstructuredGrid>`)
	fmt.Fprintf(bw, "<Piece NumberOfPoints=\"%d\" NumberOfCells=\"%d\">\n", nv, nc)

	fmt.Fprintln(bw, `<Points><DataArray type="Float64" NumberOfComponents="3" format="ascii">`)
	for v := 0; v < nv; v++ {
		x := m.Vertex(v)
		z := 0.0
		if m.Dim == 3 {
			z = x[2]
		}
		fmt.Fprintf(bw, "%g %g %g\n", x[0], x[1], z)
	}
	fmt.Fprintln(bw, `</DataArray></Points>`)

	fmt.Fprintln(bw, `<Cells>`)
	fmt.Fprintln(bw, `<DataArray type="Int64" Name="connectivity" format="ascii">`)
	for c := 0; c < nc; c++ {
		for i, v := range m.Cell(c) {
			if i > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprint(bw, v)
		}
		bw.WriteByte('\n')
	}
	fmt.Fprintln(bw, `</DataArray>`)
	fmt.Fprintln(bw, `<DataArray type="Int64" Name="offsets" format="ascii">`)
	for c := 1; c <= nc; c++ {
		fmt.Fprintln(bw, c*npc)
	}
	fmt.Fprintln(bw, `</DataArray>`)
	fmt.Fprintln(bw, `<DataArray type="UInt8" Name="types" format="ascii">`)
	for c := 0; c < nc; c++ {
		fmt.Fprintln(bw, cellType)
	}
	fmt.Fprintln(bw, `</DataArray>`)
	fmt.Fprintln(bw, `</Cells>`)

	fmt.Fprintln(bw, `<PointData>`)
	for _, fd := range fields {
		if len(fd.Values) != nv {
			return fmt.Errorf("vtk: field %s has %d values for %d points", fd.Name, len(fd.Values), nv)
		}
		fmt.Fprintf(bw, "<DataArray type=\"Float64\" Name=\"%s\" format=\"ascii\">\n", fd.Name)
		for _, v := range fd.Values {
			fmt.Fprintf(bw, "%g\n", v)
		}
		fmt.Fprintln(bw, `</DataArray>`)
	}
	fmt.Fprintln(bw, `</PointData>`)
	fmt.Fprintln(bw, `</Piece></UnstructuredGrid></VTKFile>`)
	return bw.Flush()
}
