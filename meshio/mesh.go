// Package meshio holds the mesh result type produced by the mesher and
// the file codecs used to exchange meshes with refinement engines.
package meshio

import (
	"fmt"
	"math"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Cell block types.
const (
	Vertex   = "vertex"
	Line     = "line"
	Triangle = "triangle"
	Quad     = "quad"
	Tetra    = "tetra"
)

// NodesPerCell returns the number of points of a cell of the given type, or
// zero for unknown types.
func NodesPerCell(typ string) int {
	switch typ {
	case Vertex:
		return 1
	case Line:
		return 2
	case Triangle:
		return 3
	case Quad, Tetra:
		return 4
	}
	return 0
}

// CellBlock is a set of cells of a single type. Data holds point indices
// into Mesh.Points. Labels, when not nil, holds the subdomain or surface
// patch label of each cell.
type CellBlock struct {
	Type   string
	Data   [][]int
	Labels []int
}

// Mesh is a set of points and cell blocks referencing them.
type Mesh struct {
	Points []r3.Vec
	Cells  []CellBlock
}

// Block returns the cells of the given type, merging blocks of the same type.
// It returns nil if the mesh has no such cells.
func (m *Mesh) Block(typ string) *CellBlock {
	var out *CellBlock
	labeled := false
	for _, b := range m.Cells {
		if b.Type == typ {
			out = &CellBlock{Type: typ}
			labeled = labeled || b.Labels != nil
		}
	}
	if out == nil {
		return nil
	}
	for _, b := range m.Cells {
		if b.Type != typ {
			continue
		}
		out.Data = append(out.Data, b.Data...)
		if !labeled {
			continue
		}
		if b.Labels != nil {
			out.Labels = append(out.Labels, b.Labels...)
		} else {
			out.Labels = append(out.Labels, make([]int, len(b.Data))...)
		}
	}
	return out
}

// NumCells returns the number of cells of the given type.
func (m *Mesh) NumCells(typ string) int {
	n := 0
	for _, b := range m.Cells {
		if b.Type == typ {
			n += len(b.Data)
		}
	}
	return n
}

// Validate checks cell types, cell sizes and point indices.
func (m *Mesh) Validate() error {
	for _, p := range m.Points {
		if math.IsNaN(p.X+p.Y+p.Z) || math.IsInf(p.X+p.Y+p.Z, 0) {
			return fmt.Errorf("%w: non finite mesh point %v", sdfmesh.ErrLoad, p)
		}
	}
	for _, b := range m.Cells {
		n := NodesPerCell(b.Type)
		if n == 0 {
			return fmt.Errorf("%w: unknown cell type %q", sdfmesh.ErrLoad, b.Type)
		}
		if b.Labels != nil && len(b.Labels) != len(b.Data) {
			return fmt.Errorf("%w: %s block has %d labels for %d cells", sdfmesh.ErrLoad, b.Type, len(b.Labels), len(b.Data))
		}
		for i, c := range b.Data {
			if len(c) != n {
				return fmt.Errorf("%w: %s cell %d has %d points", sdfmesh.ErrLoad, b.Type, i, len(c))
			}
			for _, idx := range c {
				if idx < 0 || idx >= len(m.Points) {
					return fmt.Errorf("%w: %s cell %d references point %d of %d", sdfmesh.ErrLoad, b.Type, i, idx, len(m.Points))
				}
			}
		}
	}
	return nil
}

// Volume returns the sum of the absolute volumes of the tetrahedra.
func (m *Mesh) Volume() float64 {
	vol := 0.0
	for _, b := range m.Cells {
		if b.Type != Tetra {
			continue
		}
		for _, c := range b.Data {
			p := m.Points
			vol += math.Abs(d3.TetVolume(p[c[0]], p[c[1]], p[c[2]], p[c[3]]))
		}
	}
	return vol
}

// Area returns the sum of the areas of the triangles.
func (m *Mesh) Area() float64 {
	area := 0.0
	for _, b := range m.Cells {
		if b.Type != Triangle {
			continue
		}
		for _, c := range b.Data {
			t := d3.Triangle{m.Points[c[0]], m.Points[c[1]], m.Points[c[2]]}
			area += 0.5 * r3.Norm(t.Normal())
		}
	}
	return area
}

// Bounds returns the bounding box of the mesh points.
func (m *Mesh) Bounds() r3.Box {
	return r3.Box(d3.BoxOf(m.Points...))
}
