package sdfmesh

import (
	"fmt"
	"math"

	"github.com/soypat/sdfmesh/internal/d2"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// SDF2 is the interface to a 2d signed distance function object.
type SDF2 interface {
	// Evaluate returns the signed distance to the shape, negative inside.
	Evaluate(p r2.Vec) float64
	// Bounds returns the bounding box that completely contains the shape.
	Bounds() r2.Box
}

// Polygon2 is a polygonal SDF2 that exposes its vertices, which
// extrusions need to build their feature edges.
type Polygon2 interface {
	SDF2
	// Vertices returns the polygon ring. The ring is implicitly closed.
	Vertices() []r2.Vec
}

// extrude3 is a polygon swept along a vector with optional twist.
type extrude3 struct {
	poly     Polygon2
	verts    []r2.Vec
	dir      r3.Vec
	alpha    float64
	edgeSize float64
}

// Extrude sweeps poly from z=0 to z=direction.Z. The cross section at height z
// is translated by beta*direction and turned by beta*alpha radians, with
// beta = z/direction.Z. edgeSize discretizes the twisted vertical feature
// edges and is required when alpha is not zero.
func Extrude(poly Polygon2, direction r3.Vec, alpha, edgeSize float64) (Domain, error) {
	switch {
	case poly == nil:
		return nil, fmt.Errorf("%w: nil polygon argument to Extrude", ErrConstruction)
	case len(poly.Vertices()) < 3:
		return nil, fmt.Errorf("%w: extruded polygon needs at least 3 vertices", ErrConstruction)
	case !finiteVec(direction) || !finite(alpha, edgeSize):
		return nil, fmt.Errorf("%w: non finite extrusion parameters", ErrConstruction)
	case direction.Z <= 0:
		return nil, fmt.Errorf("%w: extrusion direction must have positive z, got %v", ErrConstruction, direction)
	case alpha != 0 && edgeSize <= 0:
		return nil, fmt.Errorf("%w: twisted extrusion requires a positive edge size", ErrConstruction)
	}
	return &extrude3{
		poly:     poly,
		verts:    append([]r2.Vec(nil), poly.Vertices()...),
		dir:      direction,
		alpha:    alpha,
		edgeSize: edgeSize,
	}, nil
}

// Evaluate returns the signed value of the extrusion.
func (s *extrude3) Evaluate(p r3.Vec) float64 {
	h := s.dir.Z
	beta := p.Z / h
	q := r2.Vec{X: p.X - beta*s.dir.X, Y: p.Y - beta*s.dir.Y}
	if s.alpha != 0 {
		q = d2.Rotate(q, -beta*s.alpha)
	}
	slab := math.Max(-p.Z, p.Z-h)
	return math.Max(s.poly.Evaluate(q), slab)
}

// BoundingRadius2 returns a bound covering both end caps.
func (s *extrude3) BoundingRadius2() float64 {
	rmax := 0.0
	for _, v := range s.verts {
		rmax = math.Max(rmax, r2.Norm(v))
	}
	r := rmax + math.Hypot(s.dir.X, s.dir.Y)
	return r*r + s.dir.Z*s.dir.Z
}

// sweep maps a polygon vertex to the point of its sweep at parameter beta.
func (s *extrude3) sweep(v r2.Vec, beta float64) r3.Vec {
	q := d2.Rotate(v, beta*s.alpha)
	return r3.Vec{X: q.X + beta*s.dir.X, Y: q.Y + beta*s.dir.Y, Z: beta * s.dir.Z}
}

// Features returns the bottom and top polygon edges and the edges
// connecting the corresponding vertices.
func (s *extrude3) Features() []Polyline {
	n := len(s.verts)
	lines := make([]Polyline, 0, 3*n)
	for _, beta := range []float64{0, 1} {
		for i := range s.verts {
			a, b := s.verts[i], s.verts[(i+1)%n]
			lines = append(lines, Polyline{s.sweep(a, beta), s.sweep(b, beta)})
		}
	}
	for _, v := range s.verts {
		if s.alpha == 0 {
			lines = append(lines, Polyline{s.sweep(v, 0), s.sweep(v, 1)})
			continue
		}
		l := math.Sqrt(s.alpha*s.alpha*r2.Norm2(v) + s.dir.Z*s.dir.Z)
		m := int(l/s.edgeSize-0.5) + 1
		if m < 1 {
			m = 1
		}
		line := make(Polyline, 0, m+1)
		line = append(line, s.sweep(v, 0))
		for i := 1; i <= m; i++ {
			line = append(line, s.sweep(v, float64(i)/float64(m)))
		}
		lines = append(lines, line)
	}
	return lines
}

// ringExtrude3 is a polygon in the (r, z) half plane revolved about the z axis.
type ringExtrude3 struct {
	poly     Polygon2
	verts    []r2.Vec
	edgeSize float64
}

// RingExtrude revolves poly, given in (r, z) coordinates with r > 0, a full
// turn about the z axis. edgeSize discretizes the circular feature edges
// traced by the polygon vertices.
func RingExtrude(poly Polygon2, edgeSize float64) (Domain, error) {
	switch {
	case poly == nil:
		return nil, fmt.Errorf("%w: nil polygon argument to RingExtrude", ErrConstruction)
	case !(edgeSize > 0) || !finite(edgeSize):
		return nil, fmt.Errorf("%w: ring extrusion requires a positive edge size", ErrConstruction)
	}
	verts := append([]r2.Vec(nil), poly.Vertices()...)
	if len(verts) < 3 {
		return nil, fmt.Errorf("%w: ring extruded polygon needs at least 3 vertices", ErrConstruction)
	}
	for i, v := range verts {
		if v.X <= 0 {
			return nil, fmt.Errorf("%w: ring extruded polygon vertex %d has non-positive radius %g", ErrConstruction, i, v.X)
		}
	}
	return &ringExtrude3{poly: poly, verts: verts, edgeSize: edgeSize}, nil
}

// Evaluate returns the polygon's signed value at (sqrt(x^2+y^2), z).
func (s *ringExtrude3) Evaluate(p r3.Vec) float64 {
	return s.poly.Evaluate(r2.Vec{X: math.Hypot(p.X, p.Y), Y: p.Z})
}

// BoundingRadius2 returns the largest squared norm of the profile vertices.
func (s *ringExtrude3) BoundingRadius2() float64 {
	r2max := 0.0
	for _, v := range s.verts {
		r2max = math.Max(r2max, r2.Norm2(v))
	}
	return r2max
}

// Features returns one circle per profile vertex.
func (s *ringExtrude3) Features() []Polyline {
	lines := make([]Polyline, len(s.verts))
	for i, v := range s.verts {
		lines[i] = Circle(v.X, v.Y, s.edgeSize)
	}
	return lines
}
