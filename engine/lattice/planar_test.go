package lattice

import (
	"errors"
	"math"
	"testing"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/engine"
	"github.com/soypat/sdfmesh/meshio"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

var unitSquare = []r2.Vec{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

var squareLoop = [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}}

func TestMesh2DConvexHull(t *testing.T) {
	pts := append(append([]r2.Vec(nil), unitSquare...), r2.Vec{X: 0.5, Y: 0.5})
	m, err := New(nil).Mesh2D(&engine.PlanarJob{Points: pts})
	if err != nil {
		t.Fatal(err)
	}
	if n := m.NumCells(meshio.Triangle); n != 4 {
		t.Errorf("got %d triangles, want 4", n)
	}
	if m.NumCells(meshio.Line) != 0 {
		t.Error("unexpected constraint edges")
	}
	if got := m.Area(); math.Abs(got-1) > 1e-12 {
		t.Errorf("area %g, want 1", got)
	}
	checkTriangulation(t, m)
}

func TestMesh2DConstraint(t *testing.T) {
	// The diagonal 1-3 is not Delaunay once 4 is added near corner 2.
	pts := append(append([]r2.Vec(nil), unitSquare...), r2.Vec{X: 0.8, Y: 0.8})
	m, err := New(nil).Mesh2D(&engine.PlanarJob{Points: pts, Constraints: [][2]int{{3, 1}}})
	if err != nil {
		t.Fatal(err)
	}
	lines := m.Block(meshio.Line)
	if lines == nil || len(lines.Data) == 0 {
		t.Fatal("constraint edges missing from output")
	}
	edges := meshEdges(m)
	for _, l := range lines.Data {
		if !edges[edgeKey(l[0], l[1])] {
			t.Errorf("constraint piece %v is not a mesh edge", l)
		}
	}
	// Open constraints do not bound a region, the hull is meshed.
	if got := m.Area(); math.Abs(got-1) > 1e-12 {
		t.Errorf("area %g, want 1", got)
	}
	checkTriangulation(t, m)
}

func TestMesh2DRefine(t *testing.T) {
	for _, tc := range []struct {
		name  string
		job   engine.PlanarJob
		edge  float64
		ratio float64
	}{
		{name: "edge", job: engine.PlanarJob{MaxEdgeSize: 0.2}, edge: 0.2},
		{name: "ratio", job: engine.PlanarJob{MaxCircumradiusShortestEdgeRatio: 1.5, MaxEdgeSize: 0.3}, edge: 0.3, ratio: 1.5},
		{name: "lloyd", job: engine.PlanarJob{MaxEdgeSize: 0.25, LloydSteps: 3, Seed: 7}},
	} {
		job := tc.job
		job.Points = unitSquare
		job.Constraints = squareLoop
		m, err := New(nil).Mesh2D(&job)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got := m.Area(); math.Abs(got-1) > 1e-9 {
			t.Errorf("%s: area %g, want 1", tc.name, got)
		}
		tris := m.Block(meshio.Triangle)
		for _, c := range tris.Data {
			a, b, d := m.Points[c[0]], m.Points[c[1]], m.Points[c[2]]
			lens := []float64{r3.Norm(r3.Sub(b, a)), r3.Norm(r3.Sub(d, b)), r3.Norm(r3.Sub(a, d))}
			shortest := math.Min(lens[0], math.Min(lens[1], lens[2]))
			longest := math.Max(lens[0], math.Max(lens[1], lens[2]))
			if tc.edge > 0 && longest > tc.edge+1e-9 {
				t.Fatalf("%s: edge of length %g exceeds %g", tc.name, longest, tc.edge)
			}
			if tc.ratio > 0 {
				_, rr := circumcircle(r2.Vec{X: a.X, Y: a.Y}, r2.Vec{X: b.X, Y: b.Y}, r2.Vec{X: d.X, Y: d.Y})
				if ratio := math.Sqrt(rr) / shortest; ratio > tc.ratio+1e-9 {
					t.Fatalf("%s: triangle ratio %g exceeds %g", tc.name, ratio, tc.ratio)
				}
			}
		}
		for _, p := range m.Points {
			if p.X < -1e-12 || p.Y < -1e-12 || p.X > 1+1e-12 || p.Y > 1+1e-12 || p.Z != 0 {
				t.Fatalf("%s: point %v outside the square", tc.name, p)
			}
		}
		checkTriangulation(t, m)
	}
}

func TestMesh2DHole(t *testing.T) {
	pts := []r2.Vec{
		{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4},
		{X: 1, Y: 1}, {X: 3, Y: 1}, {X: 3, Y: 3}, {X: 1, Y: 3},
	}
	cons := [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}, {4, 5}, {5, 6}, {6, 7}, {7, 4}}
	m, err := New(nil).Mesh2D(&engine.PlanarJob{Points: pts, Constraints: cons, MaxEdgeSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Area(); math.Abs(got-12) > 1e-9 {
		t.Errorf("area %g, want 12", got)
	}
	checkTriangulation(t, m)
}

func TestMesh2DErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		job  engine.PlanarJob
	}{
		{name: "few", job: engine.PlanarJob{Points: unitSquare[:2]}},
		{name: "index", job: engine.PlanarJob{Points: unitSquare, Constraints: [][2]int{{0, 4}}}},
		{name: "loop", job: engine.PlanarJob{Points: unitSquare, Constraints: [][2]int{{2, 2}}}},
		{name: "nan", job: engine.PlanarJob{Points: []r2.Vec{{}, {X: 1}, {X: math.NaN()}}}},
		{name: "bound", job: engine.PlanarJob{Points: unitSquare, MaxEdgeSize: -1}},
	} {
		if _, err := New(nil).Mesh2D(&tc.job); !errors.Is(err, sdfmesh.ErrEngine) {
			t.Errorf("%s: got %v, want engine error", tc.name, err)
		}
	}
}

func meshEdges(m *meshio.Mesh) map[[2]int]bool {
	edges := make(map[[2]int]bool)
	for _, c := range m.Block(meshio.Triangle).Data {
		for j := 0; j < 3; j++ {
			edges[edgeKey(c[j], c[(j+1)%3])] = true
		}
	}
	return edges
}

// checkTriangulation checks triangles are counter clockwise and no edge is shared
// by more than two triangles.
func checkTriangulation(t *testing.T, m *meshio.Mesh) {
	t.Helper()
	count := make(map[[2]int]int)
	for _, c := range m.Block(meshio.Triangle).Data {
		a, b, d := m.Points[c[0]], m.Points[c[1]], m.Points[c[2]]
		if (b.X-a.X)*(d.Y-a.Y)-(b.Y-a.Y)*(d.X-a.X) <= 0 {
			t.Fatalf("triangle %v is not counter clockwise", c)
		}
		for j := 0; j < 3; j++ {
			count[edgeKey(c[j], c[(j+1)%3])]++
		}
	}
	for e, n := range count {
		if n > 2 {
			t.Fatalf("edge %v shared by %d triangles", e, n)
		}
	}
}
