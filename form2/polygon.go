// Package form2 implements 2d shapes consumed by the extrusion domains.
package form2

import (
	"fmt"
	"math"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/internal/d2"
	"gonum.org/v1/gonum/spatial/r2"
)

const tolerance = 1e-9

// polygon is an SDF2 made from a closed set of line segments.
type polygon struct {
	ring   []r2.Vec  // vertices as given, implicitly closed
	vertex []r2.Vec  // closed vertex loop
	vector []r2.Vec  // unit line vectors
	length []float64 // line lengths
	bb     r2.Box
}

// Polygon returns a polygon made from a ring of vertices. The ring is closed
// implicitly; a repeated closing vertex is dropped.
func Polygon(vertices []r2.Vec) (sdfmesh.Polygon2, error) {
	ring := append([]r2.Vec(nil), vertices...)
	if n := len(ring); n > 1 && d2.EqualWithin(ring[0], ring[n-1], tolerance) {
		ring = ring[:n-1]
	}
	if len(ring) < 3 {
		return nil, fmt.Errorf("%w: polygon needs at least 3 vertices, got %d", sdfmesh.ErrConstruction, len(ring))
	}
	s := polygon{ring: ring}
	s.vertex = append(append([]r2.Vec(nil), ring...), ring[0])
	nsegs := len(ring)
	s.vector = make([]r2.Vec, nsegs)
	s.length = make([]float64, nsegs)
	for i := 0; i < nsegs; i++ {
		a, b := s.vertex[i], s.vertex[i+1]
		if math.IsNaN(a.X) || math.IsNaN(a.Y) || math.IsInf(a.X, 0) || math.IsInf(a.Y, 0) {
			return nil, fmt.Errorf("%w: polygon vertex %d is not finite", sdfmesh.ErrConstruction, i)
		}
		l := r2.Sub(b, a)
		s.length[i] = r2.Norm(l)
		if s.length[i] <= tolerance {
			return nil, fmt.Errorf("%w: polygon edge %d has zero length", sdfmesh.ErrConstruction, i)
		}
		s.vector[i] = r2.Scale(1/s.length[i], l)
	}
	s.bb = r2.Box(d2.BoxOf(ring...))
	return &s, nil
}

// Evaluate returns the minimum distance to the polygon, negative inside.
// Insideness follows the non-zero winding rule.
func (s *polygon) Evaluate(p r2.Vec) float64 {
	dd := math.MaxFloat64 // squared distance to the boundary
	wn := 0               // winding number

	nsegs := len(s.vertex) - 1
	pb := r2.Sub(p, s.vertex[0])
	for i := 0; i < nsegs; i++ {
		a := s.vertex[i]
		b := s.vertex[i+1]
		pa := pb
		pb = r2.Sub(p, b)

		t := r2.Dot(pa, s.vector[i])
		dn := r2.Dot(pa, r2.Vec{X: s.vector[i].Y, Y: -s.vector[i].X})
		switch {
		case t < 0:
			dd = math.Min(dd, r2.Norm2(pa))
		case t > s.length[i]:
			dd = math.Min(dd, r2.Norm2(pb))
		default:
			dd = math.Min(dd, dn*dn)
		}

		// See: http://geomalgorithms.com/a03-_inclusion.html
		if a.Y <= p.Y {
			if b.Y > p.Y && dn < 0 {
				wn++ // upward crossing, p left of segment
			}
		} else if b.Y <= p.Y && dn > 0 {
			wn-- // downward crossing, p right of segment
		}
	}
	d := math.Sqrt(dd)
	if wn != 0 {
		return -d
	}
	return d
}

// Bounds returns the bounding box of the polygon.
func (s *polygon) Bounds() r2.Box {
	return s.bb
}

// Vertices returns a copy of the polygon ring, without the closing vertex.
func (s *polygon) Vertices() []r2.Vec {
	return append([]r2.Vec(nil), s.ring...)
}

// Nagon returns the vertices of a regular n sided polygon of the given
// circumradius centered at the origin, counter-clockwise from (radius, 0).
func Nagon(n int, radius float64) (d2.Set, error) {
	if n < 3 {
		return nil, fmt.Errorf("%w: n-gon needs n >= 3, got %d", sdfmesh.ErrConstruction, n)
	}
	if !(radius > 0) {
		return nil, fmt.Errorf("%w: n-gon radius must be positive, got %g", sdfmesh.ErrConstruction, radius)
	}
	v := make(d2.Set, n)
	for i := range v {
		v[i] = d2.Rotate(r2.Vec{X: radius}, 2*math.Pi*float64(i)/float64(n))
	}
	return v, nil
}
