package lattice

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/criteria"
	"github.com/soypat/sdfmesh/engine"
	"github.com/soypat/sdfmesh/form3"
	"github.com/soypat/sdfmesh/internal/d3"
	"github.com/soypat/sdfmesh/meshio"
	"gonum.org/v1/gonum/spatial/r3"
)

// funcDomain adapts a function to sdfmesh.Domain.
type funcDomain struct {
	fn func(p r3.Vec) float64
	r2 float64
}

func (d funcDomain) Evaluate(p r3.Vec) float64    { return d.fn(p) }
func (d funcDomain) BoundingRadius2() float64     { return d.r2 }
func (d funcDomain) Features() []sdfmesh.Polyline { return nil }

func unitBall(t *testing.T) sdfmesh.Domain {
	t.Helper()
	ball, err := form3.Ball(r3.Vec{}, 1)
	if err != nil {
		t.Fatal(err)
	}
	return ball
}

func TestBCCTetras(t *testing.T) {
	const step = 0.25
	l, err := newBCC(d3.Box{Max: d3.Elem(1)}, step, DefaultMaxNodes)
	if err != nil {
		t.Fatal(err)
	}
	for i, div := range l.div {
		if float64(div)*step < 1+step {
			t.Errorf("axis %d: %d cells do not cover the box", i, div)
		}
	}
	want := step * step * step / 12
	tets := l.tetras()
	if len(tets) == 0 {
		t.Fatal("no tetrahedra")
	}
	for _, tet := range tets {
		for _, n := range tet {
			if n < 0 || n >= l.numNodes() {
				t.Fatalf("node %d out of range", n)
			}
		}
		vol := math.Abs(d3.TetVolume(l.pos(tet[0]), l.pos(tet[1]), l.pos(tet[2]), l.pos(tet[3])))
		if math.Abs(vol-want) > 1e-12 {
			t.Fatalf("tetra %v volume %g, want %g", tet, vol, want)
		}
	}
	// Centers sit half a step inside the corners.
	ctr := l.pos(l.center(0, 0, 0))
	if d3.Dist2(ctr, r3.Add(l.origin, d3.Elem(step/2))) > 1e-24 {
		t.Errorf("center at %v", ctr)
	}
}

func TestKuhnTetras(t *testing.T) {
	box := d3.Box{Min: r3.Vec{X: -1}, Max: r3.Vec{X: 1, Y: 1, Z: 0.5}}
	l, err := newKuhn(box, 0.3, DefaultMaxNodes)
	if err != nil {
		t.Fatal(err)
	}
	if l.div != [3]int{7, 4, 2} {
		t.Fatalf("got divisions %v", l.div)
	}
	total := 0.0
	for _, tet := range l.tetras() {
		total += math.Abs(d3.TetVolume(l.pos(tet[0]), l.pos(tet[1]), l.pos(tet[2]), l.pos(tet[3])))
	}
	if math.Abs(total-1) > 1e-12 {
		t.Errorf("tetras cover volume %g, want 1", total)
	}
	lo, hi := l.node(0, 1, 1), l.node(l.div[0], 1, 1)
	if l.key(lo) != l.key(hi) {
		t.Error("opposite boundary nodes have different keys")
	}
	if !l.fixed(lo) || !l.fixed(hi) || l.fixed(l.node(1, 1, 1)) {
		t.Error("bad fixed nodes")
	}
	if _, err := newKuhn(box, 0.3, 10); !errors.Is(err, sdfmesh.ErrEngine) {
		t.Errorf("node limit: got %v", err)
	}
}

func TestFalsePosition(t *testing.T) {
	for _, tc := range []struct {
		name string
		fn   func(p r3.Vec) float64
		want float64
	}{
		{name: "plane", fn: func(p r3.Vec) float64 { return p.X - 0.3 }, want: 0.3},
		{name: "sphere", fn: func(p r3.Vec) float64 { return r3.Norm(p) - 0.5 }, want: 0.5},
		{name: "cubic", fn: func(p r3.Vec) float64 { return p.X*p.X*p.X - 0.125 }, want: 0.5},
	} {
		r := &region{eval: tc.fn, tol: 1e-10}
		a, b := r3.Vec{}, r3.Vec{X: 1}
		got := falsePosition(r, a, b, r.value(a), r.value(b))
		if math.Abs(got.X-tc.want) > 1e-8 || got.Y != 0 || got.Z != 0 {
			t.Errorf("%s: got %v, want x=%g", tc.name, got, tc.want)
		}
	}
}

func TestClipConforms(t *testing.T) {
	e := New(nil)
	for _, tc := range []struct {
		name string
		step float64
		r    *region
		// volume of the clipped region when the lattice resolves it exactly.
		volume float64
	}{
		{
			name: "ball",
			step: 0.15,
			r:    &region{eval: unitBall(t).Evaluate, radius: 1.01, tol: 1e-6},
		},
		{
			// Faces land on lattice corners: nodes sit exactly on the boundary.
			name: "cube on lattice",
			step: 0.25,
			r: &region{eval: func(p r3.Vec) float64 {
				return math.Max(math.Abs(p.X), math.Max(math.Abs(p.Y), math.Abs(p.Z))) - 0.5
			}, radius: 1.01, tol: 1e-6},
			volume: 1,
		},
		{
			// Nodes within tol of the boundary but not on it.
			name: "near lattice",
			step: 0.25,
			r: &region{eval: func(p r3.Vec) float64 {
				return math.Max(math.Abs(p.X), math.Max(math.Abs(p.Y), math.Abs(p.Z))) - 0.5 - 1e-7
			}, radius: 1.01, tol: 1e-6},
		},
	} {
		l, err := newBCC(d3.NewBox(r3.Vec{}, d3.Elem(2.02)), tc.step, DefaultMaxNodes)
		if err != nil {
			t.Fatal(err)
		}
		m, err := e.stuff(l, tc.r, tc.step, 0, false)
		if err != nil {
			t.Fatal(err)
		}
		count := make(map[[3]int]int)
		vol := 0.0
		for _, tet := range m.tets {
			v := d3.TetVolume(m.points[tet[0]], m.points[tet[1]], m.points[tet[2]], m.points[tet[3]])
			if v <= 0 {
				t.Fatalf("%s: tetra %v not positively oriented", tc.name, tet)
			}
			vol += v
			for _, f := range tetFaces {
				count[sortedFace([3]int{tet[f[0]], tet[f[1]], tet[f[2]]})]++
			}
		}
		edges := make(map[[2]int]int)
		for f, n := range count {
			if n > 2 {
				t.Fatalf("%s: face %v shared by %d tetrahedra", tc.name, f, n)
			}
			if n == 2 {
				continue
			}
			// Unshared faces must lie on the clipped boundary.
			for i, v := range f {
				if d := math.Abs(tc.r.value(m.points[v])); d > 10*tc.r.tol {
					t.Fatalf("%s: unshared face %v has vertex %v at distance %g from the boundary", tc.name, f, m.points[v], d)
				}
				edges[edgeKey(v, f[(i+1)%3])]++
			}
		}
		for e, n := range edges {
			if n%2 != 0 {
				t.Fatalf("%s: boundary edge %v used by %d faces", tc.name, e, n)
			}
		}
		if tc.volume > 0 && math.Abs(vol-tc.volume) > 1e-9 {
			t.Errorf("%s: volume %g, want %g", tc.name, vol, tc.volume)
		}
	}
}

func TestBoundaryFacesCancel(t *testing.T) {
	// Two cells sharing face (0,1,2), plus an inverted copy of the second
	// which cancels it.
	tets := [][4]int{{0, 1, 2, 3}, {0, 2, 1, 4}, {0, 1, 2, 4}}
	faces, owner := boundaryFaces(tets)
	if len(faces) != 4 {
		t.Fatalf("got %d boundary faces, want 4: %v", len(faces), faces)
	}
	for i, f := range faces {
		if owner[i] != 0 {
			t.Errorf("face %v owned by cell %d, want 0", f, owner[i])
		}
	}
}

func TestMeshDomainBall(t *testing.T) {
	e := New(nil)
	out := filepath.Join(t.TempDir(), "ball.mesh")
	job := &engine.DomainJob{
		Common: engine.Common{
			Criteria: criteria.Bundle{CellSize: criteria.Constant(0.3)},
			Output:   out,
		},
		Domain:          unitBall(t),
		BoundingRadius2: 1.01 * 1.01,
	}
	if err := e.MeshDomain(job); err != nil {
		t.Fatal(err)
	}
	m, err := meshio.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := 4 * math.Pi / 3
	if got := m.Volume(); math.Abs(got-want)/want > 0.03 {
		t.Errorf("volume %g, want about %g", got, want)
	}
	for _, p := range m.Points {
		if r3.Norm(p) > 1+1e-3 {
			t.Fatalf("point %v outside the ball", p)
		}
	}
	checkClosedSurface(t, m)
	tets := m.Block(meshio.Tetra)
	for _, l := range tets.Labels {
		if l != 1 {
			t.Fatalf("got label %d, want 1", l)
		}
	}
}

func TestMeshSurfaceBall(t *testing.T) {
	e := New(nil)
	out := filepath.Join(t.TempDir(), "ball.mesh")
	job := &engine.DomainJob{
		Common:          engine.Common{Criteria: criteria.Bundle{FacetSize: criteria.Constant(0.2)}, Output: out},
		Domain:          unitBall(t),
		BoundingRadius2: 1.21,
	}
	if err := e.MeshSurface(job); err != nil {
		t.Fatal(err)
	}
	m, err := meshio.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if m.NumCells(meshio.Tetra) != 0 {
		t.Error("surface mesh has tetrahedra")
	}
	want := 4 * math.Pi
	if got := m.Area(); math.Abs(got-want)/want > 0.05 {
		t.Errorf("area %g, want about %g", got, want)
	}
	for _, p := range m.Points {
		if d := math.Abs(r3.Norm(p) - 1); d > 1e-3 {
			t.Fatalf("surface point %v at distance %g from the sphere", p, d)
		}
	}
	checkClosedSurface(t, m)
}

func TestRelaxation(t *testing.T) {
	e := New(nil)
	r := &region{eval: unitBall(t).Evaluate, radius: 1.01, tol: 1e-6}
	c := &engine.Common{
		Criteria: criteria.Bundle{
			CellSize: criteria.Constant(0.4),
			Lloyd:    true,
			ODT:      true,
			Perturb:  true,
			Exude:    true,
		},
		Seed: 42,
	}
	m, err := e.volume(d3.NewBox(r3.Vec{}, d3.Elem(2.02)), 1.01, r, c)
	if err != nil {
		t.Fatal(err)
	}
	vol := 0.0
	for _, tet := range m.tets {
		v := d3.TetVolume(m.points[tet[0]], m.points[tet[1]], m.points[tet[2]], m.points[tet[3]])
		if v <= 0 {
			t.Fatalf("relaxation inverted tetra %v", tet)
		}
		vol += v
	}
	want := 4 * math.Pi / 3
	if math.Abs(vol-want)/want > 0.05 {
		t.Errorf("volume %g, want about %g", vol, want)
	}
	if len(m.labels) != len(m.tets) {
		t.Errorf("got %d labels for %d tetrahedra", len(m.labels), len(m.tets))
	}
}

func TestExudeRemovesSlivers(t *testing.T) {
	m := &tetMesh{
		points: []r3.Vec{{}, {X: 1}, {Y: 1}, {X: 1, Y: 1, Z: 1e-3}, {Z: 1}},
		fixed:  make([]bool, 5),
		tets:   [][4]int{{0, 1, 2, 3}, {0, 1, 2, 4}},
		labels: []int{3, 4},
	}
	if d3.TetVolume(m.points[0], m.points[1], m.points[2], m.points[3]) <= 0 {
		t.Fatal("bad fixture orientation")
	}
	if removed := m.exude(0, 0); removed != 1 {
		t.Fatalf("removed %d cells, want 1", removed)
	}
	if len(m.tets) != 1 || m.tets[0] != [4]int{0, 1, 2, 4} || m.labels[0] != 4 {
		t.Errorf("kept %v with labels %v", m.tets, m.labels)
	}
}

func TestEngineErrors(t *testing.T) {
	dir := t.TempDir()
	nan := funcDomain{fn: func(r3.Vec) float64 { return math.NaN() }, r2: 1}
	panics := funcDomain{fn: func(p r3.Vec) float64 {
		if p.X > 0.5 {
			panic("boom")
		}
		return r3.Norm(p) - 1
	}, r2: 1.21}
	empty := funcDomain{fn: func(r3.Vec) float64 { return 1 }, r2: 1}
	for _, tc := range []struct {
		name     string
		domain   sdfmesh.Domain
		maxNodes int
	}{
		{name: "nan", domain: nan},
		{name: "panic", domain: panics},
		{name: "empty", domain: empty},
		{name: "nodes", domain: unitBall(t), maxNodes: 100},
		{name: "nil"},
	} {
		e := New(nil)
		e.MaxNodes = tc.maxNodes
		job := &engine.DomainJob{
			Common:          engine.Common{Criteria: criteria.Bundle{CellSize: criteria.Constant(0.4)}, Output: filepath.Join(dir, tc.name+".mesh")},
			Domain:          tc.domain,
			BoundingRadius2: 1.21,
		}
		err := e.MeshDomain(job)
		if !errors.Is(err, sdfmesh.ErrEngine) {
			t.Errorf("%s: got %v, want engine error", tc.name, err)
		}
	}
}

func TestSpacing(t *testing.T) {
	box := d3.NewBox(r3.Vec{}, d3.Elem(4))
	for _, tc := range []struct {
		name string
		b    criteria.Bundle
		want float64
	}{
		{name: "default", want: 0.25},
		{name: "cell", b: criteria.Bundle{CellSize: criteria.Constant(0.2)}, want: 0.1},
		{name: "smallest", b: criteria.Bundle{CellSize: criteria.Constant(0.2), EdgeSize: criteria.Constant(0.1)}, want: 0.05},
		{name: "distance", b: criteria.Bundle{FacetDistance: criteria.Constant(0.01)}, want: 0.2},
		{name: "field", b: criteria.Bundle{FacetSize: criteria.Field(func(p r3.Vec) float64 { return 0.3 + p.X*p.X })}, want: 0.15},
		{name: "table", b: criteria.Bundle{CellSize: criteria.Table{Default: 0.8, Labels: []int{2}, Values: []float64{0.4}}}, want: 0.2},
	} {
		if got := spacing(tc.b, box, 2); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("%s: got %g, want %g", tc.name, got, tc.want)
		}
	}
}

// checkClosedSurface checks every boundary edge is shared by an even number
// of triangles and the triangles enclose the mesh volume.
func checkClosedSurface(t *testing.T, m *meshio.Mesh) {
	t.Helper()
	tris := m.Block(meshio.Triangle)
	if tris == nil || len(tris.Data) == 0 {
		t.Fatal("no boundary triangles")
	}
	edges := make(map[[2]int]int)
	faces := make([][3]int, len(tris.Data))
	for i, c := range tris.Data {
		faces[i] = [3]int{c[0], c[1], c[2]}
		for j := 0; j < 3; j++ {
			edges[edgeKey(c[j], c[(j+1)%3])]++
		}
	}
	for e, n := range edges {
		if n%2 != 0 {
			t.Fatalf("edge %v used by %d triangles", e, n)
		}
	}
	if m.NumCells(meshio.Tetra) == 0 {
		if enclosedVolume(m.Points, faces) <= 0 {
			t.Error("surface is oriented inwards")
		}
		return
	}
	if got, want := enclosedVolume(m.Points, faces), m.Volume(); math.Abs(got-want) > 1e-9*want {
		t.Errorf("surface encloses %g, cells have volume %g", got, want)
	}
}
