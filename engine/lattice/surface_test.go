package lattice

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/criteria"
	"github.com/soypat/sdfmesh/engine"
	"github.com/soypat/sdfmesh/inr"
	"github.com/soypat/sdfmesh/meshio"
	"gonum.org/v1/gonum/spatial/r3"
)

// unitCube returns the outward oriented surface of [0,1]^3. Vertex i sits
// at (i&1, i>>1&1, i>>2&1).
func unitCube() *meshio.Mesh {
	pts := make([]r3.Vec, 8)
	for i := range pts {
		pts[i] = r3.Vec{X: float64(i & 1), Y: float64(i >> 1 & 1), Z: float64(i >> 2 & 1)}
	}
	return &meshio.Mesh{
		Points: pts,
		Cells: []meshio.CellBlock{{Type: meshio.Triangle, Data: [][]int{
			{0, 2, 3}, {0, 3, 1}, // z=0
			{4, 5, 7}, {4, 7, 6}, // z=1
			{0, 1, 5}, {0, 5, 4}, // y=0
			{2, 6, 7}, {2, 7, 3}, // y=1
			{0, 4, 6}, {0, 6, 2}, // x=0
			{1, 3, 7}, {1, 7, 5}, // x=1
		}}},
	}
}

func flipped(m *meshio.Mesh) *meshio.Mesh {
	out := &meshio.Mesh{Points: m.Points}
	for _, b := range m.Cells {
		data := make([][]int, len(b.Data))
		for i, c := range b.Data {
			data[i] = []int{c[0], c[2], c[1]}
		}
		out.Cells = append(out.Cells, meshio.CellBlock{Type: b.Type, Data: data})
	}
	return out
}

func TestSurfaceDomain(t *testing.T) {
	tests := []struct {
		p    r3.Vec
		want float64
	}{
		{p: r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, want: -0.5},
		{p: r3.Vec{X: 0.5, Y: 0.5, Z: 0.9}, want: -0.1},
		{p: r3.Vec{X: 0.2, Y: 0.7, Z: 0.5}, want: -0.2},
		{p: r3.Vec{X: 2, Y: 0.5, Z: 0.5}, want: 1},
		{p: r3.Vec{X: 0.5, Y: -0.25, Z: 0.5}, want: 0.25},
		{p: r3.Vec{X: 1.2, Y: 1.2, Z: 0.5}, want: 0.2 * math.Sqrt2},   // edge
		{p: r3.Vec{X: -0.1, Y: -0.1, Z: -0.1}, want: 0.1 * math.Sqrt(3)}, // vertex
	}
	for _, reorient := range []bool{false, true} {
		m := unitCube()
		if reorient {
			m = flipped(m)
		}
		d, err := newSurfaceDomain(m, reorient)
		if err != nil {
			t.Fatal(err)
		}
		for _, tc := range tests {
			if got := d.Evaluate(tc.p); math.Abs(got-tc.want) > 1e-12 {
				t.Errorf("reorient=%v: Evaluate(%v) = %g, want %g", reorient, tc.p, got, tc.want)
			}
		}
	}
	// Without reorientation an inward surface flips the sign.
	d, err := newSurfaceDomain(flipped(unitCube()), false)
	if err != nil {
		t.Fatal(err)
	}
	if d.Evaluate(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}) <= 0 {
		t.Error("inward surface kept its orientation")
	}
}

func TestSurfaceDomainTooSmall(t *testing.T) {
	m := unitCube()
	m.Cells[0].Data = m.Cells[0].Data[:3]
	if _, err := newSurfaceDomain(m, false); !errors.Is(err, sdfmesh.ErrEngine) {
		t.Errorf("got %v, want engine error", err)
	}
}

func TestMeshSurfaceFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "cube.off")
	if err := meshio.WriteFile(in, flipped(unitCube())); err != nil {
		t.Fatal(err)
	}
	e := New(nil)
	out := filepath.Join(dir, "cube.mesh")
	err := e.MeshSurfaceFile(&engine.SurfaceJob{
		Common:   engine.Common{Criteria: criteria.Bundle{CellSize: criteria.Constant(0.1)}, Output: out},
		Input:    in,
		Reorient: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	m, err := meshio.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Volume(); math.Abs(got-1) > 0.05 {
		t.Errorf("volume %g, want about 1", got)
	}
	checkClosedSurface(t, m)

	remeshed := filepath.Join(dir, "remeshed.off")
	err = e.RemeshSurface(&engine.RemeshJob{
		Common: engine.Common{Criteria: criteria.Bundle{FacetSize: criteria.Constant(0.1)}, Output: remeshed},
		Input:  in,
	})
	if err != nil {
		t.Fatal(err)
	}
	s, err := meshio.ReadFile(remeshed)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Area(); math.Abs(got-6) > 0.3 {
		t.Errorf("remeshed area %g, want about 6", got)
	}
	checkClosedSurface(t, s)
}

// labeledBlock returns a 5^3 label grid with the inner 3^3 voxels set to label.
func labeledBlock(t *testing.T, label uint8) *inr.Grid {
	t.Helper()
	data := make([]uint8, 125)
	g, err := inr.NewGrid(sdfmesh.V3i{5, 5, 5}, r3.Vec{X: 1, Y: 1, Z: 1}, data)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		for j := 1; j <= 3; j++ {
			for k := 1; k <= 3; k++ {
				data[g.Index(i, j, k)] = label
			}
		}
	}
	return g
}

func TestVoxelDomain(t *testing.T) {
	d := newVoxelDomain(labeledBlock(t, 2))
	for _, tc := range []struct {
		p    r3.Vec
		want float64
	}{
		{p: r3.Vec{X: 2, Y: 2, Z: 2}, want: -0.5},
		{p: r3.Vec{}, want: 0.5},
		{p: r3.Vec{X: 0.5, Y: 2, Z: 2}, want: 0},
		{p: r3.Vec{X: 1.5, Y: 2.5, Z: 2}, want: -0.5},
		{p: r3.Vec{X: -1, Y: 2, Z: 2}, want: 1},
	} {
		if got := d.Evaluate(tc.p); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("Evaluate(%v) = %g, want %g", tc.p, got, tc.want)
		}
	}
	if got := d.label(r3.Vec{X: 2.2, Y: 1.9, Z: 2}); got != 2 {
		t.Errorf("inner label %d, want 2", got)
	}
	if got := d.label(r3.Vec{X: 0.6, Y: 2, Z: 2}); got != 2 {
		t.Errorf("boundary label %d, want 2", got)
	}
}

func TestMeshVoxelFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "block.inr")
	if err := inr.WriteFile(in, labeledBlock(t, 3)); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "block.mesh")
	err := New(nil).MeshVoxelFile(&engine.VoxelJob{
		Common: engine.Common{Criteria: criteria.Bundle{CellSize: criteria.Constant(0.5)}, Output: out},
		Input:  in,
	})
	if err != nil {
		t.Fatal(err)
	}
	m, err := meshio.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	// The level set of the interpolated labels is the cube [0.5, 3.5]^3
	// with edges and corners rounded off to enclose about 23.95.
	if got := m.Volume(); got < 21 || got > 24.5 {
		t.Errorf("volume %g, want about 23.9", got)
	}
	for _, l := range m.Block(meshio.Tetra).Labels {
		if l != 3 {
			t.Fatalf("got label %d, want 3", l)
		}
	}
	checkClosedSurface(t, m)
}
