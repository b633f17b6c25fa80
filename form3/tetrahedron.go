package form3

import (
	"math"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// tetFaces lists the vertex indices of each face of a positively oriented
// tetrahedron so that the right hand normal points outward.
var tetFaces = [4][3]int{{1, 2, 3}, {0, 3, 2}, {0, 1, 3}, {0, 2, 1}}

type plane struct {
	n      r3.Vec // outward unit normal
	offset float64
}

// tetrahedron is the convex hull of 4 points.
type tetrahedron struct {
	v      [4]r3.Vec
	planes [4]plane
}

// Tetrahedron returns the domain of the tetrahedron with vertices p0..p3 in any order.
func Tetrahedron(p0, p1, p2, p3 r3.Vec) (sdfmesh.Domain, error) {
	v := [4]r3.Vec{p0, p1, p2, p3}
	for _, p := range v {
		if !finiteVec(p) {
			return nil, errf("non finite tetrahedron vertex")
		}
	}
	scale := d3.Max(d3.BoxOf(v[:]...).Size())
	vol := d3.TetVolume(v[0], v[1], v[2], v[3])
	if math.Abs(vol) <= 1e-12*scale*scale*scale || scale == 0 {
		return nil, errf("degenerate tetrahedron")
	}
	if vol < 0 {
		v[1], v[2] = v[2], v[1]
	}
	s := &tetrahedron{v: v}
	for i, f := range tetFaces {
		a, b, c := v[f[0]], v[f[1]], v[f[2]]
		n := r3.Unit(d3.Triangle{a, b, c}.Normal())
		s.planes[i] = plane{n: n, offset: r3.Dot(n, a)}
	}
	return s, nil
}

// Evaluate returns the minimum distance to the tetrahedron.
func (s *tetrahedron) Evaluate(p r3.Vec) float64 {
	d := math.Inf(-1)
	for _, pl := range s.planes {
		d = math.Max(d, r3.Dot(pl.n, p)-pl.offset)
	}
	if d <= 0 {
		return d
	}
	d2 := math.Inf(1)
	for _, f := range tetFaces {
		q, _ := d3.Triangle{s.v[f[0]], s.v[f[1]], s.v[f[2]]}.Closest(p)
		d2 = math.Min(d2, d3.Dist2(p, q))
	}
	return math.Sqrt(d2)
}

// BoundingRadius2 returns the largest squared vertex norm.
func (s *tetrahedron) BoundingRadius2() float64 {
	r2 := 0.0
	for _, v := range s.v {
		r2 = math.Max(r2, r3.Norm2(v))
	}
	return r2
}

// Features returns the 6 edges of the tetrahedron.
func (s *tetrahedron) Features() []sdfmesh.Polyline {
	lines := make([]sdfmesh.Polyline, 0, 6)
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			lines = append(lines, sdfmesh.Polyline{s.v[i], s.v[j]})
		}
	}
	return lines
}
