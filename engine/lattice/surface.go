package lattice

import (
	"fmt"
	"math"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/internal/d3"
	"github.com/soypat/sdfmesh/meshio"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// surfaceDomain is the signed distance to a closed triangle surface. The
// sign comes from the angle weighted pseudo normal of the closest feature
// (Baerentzen, Aanaes).
type surfaceDomain struct {
	tree *kdtree.Tree
	surf *surface
}

type surface struct {
	box       d3.Box
	vertices  []pseudoVertex
	triangles []meshTriangle
	// edge pseudo normals, stored with the lower vertex index first.
	edgeN map[[2]int]r3.Vec
	// reach is the largest distance from a triangle centroid to its vertices.
	reach float64
}

type pseudoVertex struct {
	V r3.Vec
	N r3.Vec // vertex pseudo normal
}

// newSurfaceDomain builds a surface domain from the triangles of m. With
// reorient set, surfaces enclosing a negative volume are flipped first.
func newSurfaceDomain(m *meshio.Mesh, reorient bool) (*surfaceDomain, error) {
	tri := m.Block(meshio.Triangle)
	if tri == nil || len(tri.Data) < 4 {
		return nil, fmt.Errorf("%w: surface needs at least 4 triangles to enclose a volume", sdfmesh.ErrEngine)
	}
	faces := make([][3]int, len(tri.Data))
	for i, c := range tri.Data {
		faces[i] = [3]int{c[0], c[1], c[2]}
	}
	if reorient && enclosedVolume(m.Points, faces) < 0 {
		for i := range faces {
			faces[i][1], faces[i][2] = faces[i][2], faces[i][1]
		}
	}
	s := &surface{
		box:       d3.BoxOf(m.Points...),
		vertices:  make([]pseudoVertex, len(m.Points)),
		triangles: make([]meshTriangle, 0, len(faces)),
		edgeN:     make(map[[2]int]r3.Vec),
	}
	for i, p := range m.Points {
		s.vertices[i].V = p
	}
	for _, f := range faces {
		t := d3.Triangle{m.Points[f[0]], m.Points[f[1]], m.Points[f[2]]}
		if t.Degenerate(0) {
			continue
		}
		norm := r3.Unit(t.Normal())
		if math.IsNaN(norm.X) {
			continue
		}
		mt := meshTriangle{C: t.Centroid(), Vertices: f, N: norm, s: s}
		for j := range f {
			s.reach = math.Max(s.reach, r3.Norm(r3.Sub(t[j], mt.C)))
			e1, e2 := r3.Sub(t[(j+1)%3], t[j]), r3.Sub(t[(j+2)%3], t[j])
			alpha := math.Acos(sdfmesh.Clamp(r3.Cos(e1, e2), -1, 1))
			v := &s.vertices[f[j]]
			v.N = r3.Add(v.N, r3.Scale(alpha, norm))
			edge := [2]int{f[j], f[(j+1)%3]}
			if edge[0] > edge[1] {
				edge[0], edge[1] = edge[1], edge[0]
			}
			s.edgeN[edge] = r3.Add(s.edgeN[edge], norm)
		}
		s.triangles = append(s.triangles, mt)
	}
	if len(s.triangles) == 0 {
		return nil, fmt.Errorf("%w: surface has only degenerate triangles", sdfmesh.ErrEngine)
	}
	return &surfaceDomain{tree: kdtree.New(s, false), surf: s}, nil
}

// enclosedVolume returns the signed volume enclosed by the faces. It is
// positive for outward oriented surfaces.
func enclosedVolume(points []r3.Vec, faces [][3]int) float64 {
	var vol float64
	for _, f := range faces {
		vol += d3.TetVolume(r3.Vec{}, points[f[0]], points[f[1]], points[f[2]])
	}
	return vol
}

// Evaluate returns the signed distance from q to the surface.
func (s *surfaceDomain) Evaluate(q r3.Vec) float64 {
	nearest, dist2 := s.tree.Nearest(&meshTriangle{C: q})
	t := nearest.(*meshTriangle)
	closest, feat := t.triangle().Closest(q)
	var n r3.Vec
	switch {
	case feat.IsVertex():
		n = s.surf.vertices[t.Vertices[feat-d3.FeatureV0]].N
	case feat.IsEdge():
		j := int(feat - d3.FeatureE01)
		edge := [2]int{t.Vertices[j], t.Vertices[(j+1)%3]}
		if edge[0] > edge[1] {
			edge[0], edge[1] = edge[1], edge[0]
		}
		n = s.surf.edgeN[edge]
	default:
		n = t.N
	}
	return math.Copysign(math.Sqrt(dist2), r3.Dot(n, r3.Sub(q, closest)))
}

// meshTriangle is a surface triangle stored in the kd-tree by centroid.
// Query points are meshTriangles with a zero normal.
type meshTriangle struct {
	C        r3.Vec // Centroid
	Vertices [3]int
	N        r3.Vec // unit face normal
	s        *surface
}

func (t *meshTriangle) isPoint() bool { return t.N == (r3.Vec{}) }

func (t *meshTriangle) triangle() d3.Triangle {
	v := t.s.vertices
	return d3.Triangle{v[t.Vertices[0]].V, v[t.Vertices[1]].V, v[t.Vertices[2]].V}
}

// Compare returns the distance of t from the plane through c's centroid.
// When a query point is compared against a triangle the distance is reduced
// by the triangle reach, so the tree never prunes a triangle that extends
// past its centroid's plane.
func (t *meshTriangle) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(*meshTriangle)
	diff := d3.Component(t.C, int(d)) - d3.Component(q.C, int(d))
	if !t.isPoint() || q.isPoint() {
		return diff
	}
	reach := q.s.reach
	switch {
	case diff > reach:
		return diff - reach
	case diff < -reach:
		return diff + reach
	}
	return 0
}

func (t *meshTriangle) Dims() int { return 3 }

// Distance returns the squared distance between a query point and a triangle.
func (t *meshTriangle) Distance(c kdtree.Comparable) float64 {
	q := c.(*meshTriangle)
	if t.isPoint() {
		if q.isPoint() {
			return d3.Dist2(t.C, q.C)
		}
		t, q = q, t // make sure t is the triangle.
	}
	closest, _ := t.triangle().Closest(q.C)
	return d3.Dist2(closest, q.C)
}

// Index returns the ith element of the list of points.
func (s *surface) Index(i int) kdtree.Comparable { return &s.triangles[i] }

// Len returns the length of the list.
func (s *surface) Len() int { return len(s.triangles) }

// Pivot partitions the list based on the dimension specified.
func (s *surface) Pivot(d kdtree.Dim) int {
	p := kdPlane{dim: int(d), triangles: s.triangles}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

// Slice returns a slice of the list using zero-based half
// open indexing equivalent to built-in slice indexing.
func (s *surface) Slice(start, end int) kdtree.Interface {
	sub := *s
	sub.triangles = sub.triangles[start:end]
	return &sub
}

type kdPlane struct {
	dim       int
	triangles []meshTriangle
}

func (p kdPlane) Less(i, j int) bool {
	return p.triangles[i].Compare(&p.triangles[j], kdtree.Dim(p.dim)) < 0
}

func (p kdPlane) Swap(i, j int) {
	p.triangles[i], p.triangles[j] = p.triangles[j], p.triangles[i]
}

func (p kdPlane) Len() int { return len(p.triangles) }

func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	p.triangles = p.triangles[start:end]
	return p
}
