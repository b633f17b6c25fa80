package lattice

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/criteria"
	"github.com/soypat/sdfmesh/engine"
	"github.com/soypat/sdfmesh/meshio"
	"gonum.org/v1/gonum/spatial/r3"
)

func periodicJob(t *testing.T, d sdfmesh.Domain, copies int, cell float64) *engine.PeriodicJob {
	return &engine.PeriodicJob{
		Common: engine.Common{
			Criteria: criteria.Bundle{CellSize: criteria.Constant(cell)},
			Output:   filepath.Join(t.TempDir(), "periodic.mesh"),
		},
		Domain: d,
		Cuboid: r3.Box{Max: r3.Vec{X: 1, Y: 1, Z: 1}},
		Copies: copies,
	}
}

func TestMeshPeriodicFull(t *testing.T) {
	full := funcDomain{fn: func(r3.Vec) float64 { return -1 }, r2: 3}
	for _, tc := range []struct {
		copies int
		size   r3.Vec
	}{
		{copies: 1, size: r3.Vec{X: 1, Y: 1, Z: 1}},
		{copies: 2, size: r3.Vec{X: 2, Y: 1, Z: 1}},
		{copies: 4, size: r3.Vec{X: 2, Y: 2, Z: 1}},
		{copies: 8, size: r3.Vec{X: 2, Y: 2, Z: 2}},
	} {
		job := periodicJob(t, full, tc.copies, 0.5)
		if err := New(nil).MeshPeriodic(job); err != nil {
			t.Fatal(err)
		}
		m, err := meshio.ReadFile(job.Output)
		if err != nil {
			t.Fatal(err)
		}
		vol := tc.size.X * tc.size.Y * tc.size.Z
		area := 2 * (tc.size.X*tc.size.Y + tc.size.Y*tc.size.Z + tc.size.X*tc.size.Z)
		if got := m.Volume(); math.Abs(got-vol) > 1e-9 {
			t.Errorf("%d copies: volume %g, want %g", tc.copies, got, vol)
		}
		if got := m.Area(); math.Abs(got-area) > 1e-9 {
			t.Errorf("%d copies: boundary area %g, want %g", tc.copies, got, area)
		}
		// Step 0.25 puts 4 cells per period on every axis.
		nodes := (4*int(tc.size.X) + 1) * (4*int(tc.size.Y) + 1) * (4*int(tc.size.Z) + 1)
		if len(m.Points) != nodes {
			t.Errorf("%d copies: got %d points, want %d", tc.copies, len(m.Points), nodes)
		}
		checkClosedSurface(t, m)
	}
}

func TestMeshPeriodicConforms(t *testing.T) {
	// Schwarz P surface, periodic over the unit cube.
	schwarz := funcDomain{fn: func(p r3.Vec) float64 {
		const w = 2 * math.Pi
		return math.Cos(w*p.X) + math.Cos(w*p.Y) + math.Cos(w*p.Z)
	}, r2: 3}
	job := periodicJob(t, schwarz, 2, 0.2)
	if err := New(nil).MeshPeriodic(job); err != nil {
		t.Fatal(err)
	}
	m, err := meshio.ReadFile(job.Output)
	if err != nil {
		t.Fatal(err)
	}
	checkClosedSurface(t, m)
	tris := m.Block(meshio.Triangle)
	for _, c := range tris.Data {
		onSeam := true
		for _, v := range c {
			onSeam = onSeam && math.Abs(m.Points[v].X-1) < 1e-9
		}
		if onSeam {
			t.Fatalf("boundary triangle %v left on the seam between copies", c)
		}
	}
	if b := m.Bounds(); math.Abs(b.Max.X-2) > 1e-9 || b.Max.Y > 1+1e-9 {
		t.Errorf("bounds %+v, want x up to 2", b)
	}
}

func TestMeshPeriodicErrors(t *testing.T) {
	ball := unitBall(t)
	bad := periodicJob(t, ball, 3, 0.5)
	if err := New(nil).MeshPeriodic(bad); !errors.Is(err, sdfmesh.ErrEngine) {
		t.Errorf("copies: got %v", err)
	}
	flat := periodicJob(t, ball, 1, 0.5)
	flat.Cuboid.Max.Z = 0
	if err := New(nil).MeshPeriodic(flat); !errors.Is(err, sdfmesh.ErrEngine) {
		t.Errorf("flat cuboid: got %v", err)
	}
	if err := New(nil).MeshPeriodic(periodicJob(t, nil, 1, 0.5)); !errors.Is(err, sdfmesh.ErrEngine) {
		t.Errorf("nil domain: got %v", err)
	}
}
