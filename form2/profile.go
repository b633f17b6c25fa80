package form2

import (
	"fmt"
	"math"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/internal/d2"
	"gonum.org/v1/gonum/spatial/r2"
)

// Profile builds the vertex ring of a polygon, typically the cross section
// of an extrusion. Vertices may be given relative to the previous vertex or
// in polar coordinates, and corners may be rounded, chamfered or replaced by
// circular arcs. The ring is implicitly closed.
type Profile struct {
	verts []profileVertex
}

type vertexKind int

const (
	kindPlain vertexKind = iota
	kindSmooth
	kindChamfer
	kindArc
)

type profileVertex struct {
	relative bool
	kind     vertexKind
	v        r2.Vec
	facets   int
	radius   float64 // fillet or arc radius, chamfer length
}

// Vertex refers to a vertex of a Profile. Its methods set options of the
// vertex and return it for chaining.
type Vertex struct {
	p *Profile
	i int
}

func (v Vertex) at() *profileVertex { return &v.p.verts[v.i] }

// Add appends the vertex (x, y).
func (p *Profile) Add(x, y float64) Vertex {
	return p.AddVec(r2.Vec{X: x, Y: y})
}

// AddVec appends the vertex v.
func (p *Profile) AddVec(v r2.Vec) Vertex {
	p.verts = append(p.verts, profileVertex{v: v})
	return Vertex{p: p, i: len(p.verts) - 1}
}

// AddSet appends every vertex of vs.
func (p *Profile) AddSet(vs []r2.Vec) {
	for _, v := range vs {
		p.AddVec(v)
	}
}

// Drop removes the last vertex.
func (p *Profile) Drop() {
	if len(p.verts) > 0 {
		p.verts = p.verts[:len(p.verts)-1]
	}
}

// Rel places the vertex relative to the previous one.
func (v Vertex) Rel() Vertex {
	v.at().relative = true
	return v
}

// Polar interprets the vertex as polar coordinates (radius, angle in radians).
func (v Vertex) Polar() Vertex {
	pv := v.at()
	s, c := math.Sincos(pv.v.Y)
	pv.v = r2.Vec{X: pv.v.X * c, Y: pv.v.X * s}
	return v
}

// Smooth rounds the corner at the vertex with a fillet of the given radius
// made of facets segments.
func (v Vertex) Smooth(radius float64, facets int) Vertex {
	v.set(kindSmooth, radius, facets)
	return v
}

// Chamfer cuts the corner at the vertex, size along each adjacent edge.
func (v Vertex) Chamfer(size float64) Vertex {
	v.set(kindChamfer, size, 1)
	return v
}

// Arc replaces the edge ending at the vertex with a circular arc of facets
// segments. A positive radius puts the arc center to the right of the edge
// direction, a negative one to the left.
func (v Vertex) Arc(radius float64, facets int) Vertex {
	v.set(kindArc, radius, facets)
	return v
}

func (v Vertex) set(kind vertexKind, radius float64, facets int) {
	if radius == 0 || facets == 0 {
		return
	}
	pv := v.at()
	pv.kind, pv.radius, pv.facets = kind, radius, facets
}

// Vertices returns the ring with relative vertices resolved and corners
// expanded. The profile is not modified.
func (p *Profile) Vertices() ([]r2.Vec, error) {
	if len(p.verts) < 3 {
		return nil, fmt.Errorf("%w: profile needs at least 3 vertices, got %d", sdfmesh.ErrConstruction, len(p.verts))
	}
	vs := append([]profileVertex(nil), p.verts...)
	for i := range vs {
		if !vs[i].relative {
			continue
		}
		if i == 0 {
			return nil, fmt.Errorf("%w: first profile vertex cannot be relative", sdfmesh.ErrConstruction)
		}
		vs[i].v = r2.Add(vs[i].v, vs[i-1].v)
		vs[i].relative = false
	}
	for _, v := range vs {
		if v.facets < 0 {
			return nil, fmt.Errorf("%w: negative number of facets %d", sdfmesh.ErrConstruction, v.facets)
		}
	}
	vs, err := expandArcs(vs)
	if err != nil {
		return nil, err
	}
	vs, err = expandCorners(vs)
	if err != nil {
		return nil, err
	}
	out := make([]r2.Vec, len(vs))
	for i, v := range vs {
		out[i] = v.v
	}
	return out, nil
}

// Polygon returns the polygon of the profile's vertices.
func (p *Profile) Polygon() (sdfmesh.Polygon2, error) {
	vs, err := p.Vertices()
	if err != nil {
		return nil, err
	}
	return Polygon(vs)
}

func sign(x float64) float64 { return math.Copysign(1, x) }

// expandArcs inserts the interior points of every arc before its end vertex.
func expandArcs(vs []profileVertex) ([]profileVertex, error) {
	n := len(vs)
	out := make([]profileVertex, 0, n)
	for i, v := range vs {
		if v.kind == kindArc {
			a := vs[(i+n-1)%n].v
			pts, err := arcPoints(a, v.v, v.radius, v.facets)
			if err != nil {
				return nil, fmt.Errorf("%w: vertex %d: %v", sdfmesh.ErrConstruction, i, err)
			}
			for _, p := range pts {
				out = append(out, profileVertex{v: p})
			}
			v.kind = kindPlain
		}
		out = append(out, v)
	}
	return out, nil
}

// arcPoints returns the facets-1 points strictly between a and b on the
// arc of the given signed radius.
func arcPoints(a, b r2.Vec, radius float64, facets int) ([]r2.Vec, error) {
	side := sign(radius)
	radius = math.Abs(radius)
	ba := r2.Unit(r2.Sub(b, a))
	normal := r2.Scale(side, r2.Vec{X: ba.Y, Y: -ba.X})
	mid := r2.Scale(0.5, r2.Add(a, b))
	half := r2.Norm(r2.Sub(mid, a))
	if radius < half {
		return nil, fmt.Errorf("arc radius %g is smaller than half the chord %g", radius, half)
	}
	c := r2.Add(mid, r2.Scale(math.Sqrt(radius*radius-half*half), normal))
	cos := sdfmesh.Clamp(r2.Dot(r2.Unit(r2.Sub(a, c)), r2.Unit(r2.Sub(b, c))), -1, 1)
	dtheta := -side * math.Acos(cos) / float64(facets)
	rv := d2.Rotate(r2.Sub(a, c), dtheta)
	pts := make([]r2.Vec, facets-1)
	for j := range pts {
		pts[j] = r2.Add(c, rv)
		rv = d2.Rotate(rv, dtheta)
	}
	return pts, nil
}

// expandCorners replaces smoothed and chamfered vertices by their fillet
// points. Corners are processed in order, each against the current ring.
func expandCorners(vs []profileVertex) ([]profileVertex, error) {
	for i := 0; i < len(vs); i++ {
		v := vs[i]
		if v.kind != kindSmooth && v.kind != kindChamfer {
			continue
		}
		n := len(vs)
		prev, next := vs[(i+n-1)%n].v, vs[(i+1)%n].v
		pts, err := fillet(prev, v.v, next, v)
		if err != nil {
			return nil, fmt.Errorf("%w: vertex %d: %v", sdfmesh.ErrConstruction, i, err)
		}
		repl := make([]profileVertex, len(pts))
		for j, p := range pts {
			repl[j] = profileVertex{v: p}
		}
		vs = append(vs[:i], append(repl, vs[i+1:]...)...)
		i += len(repl) - 1
	}
	return vs, nil
}

// fillet returns the points replacing corner v between prev and next.
func fillet(prev, v, next r2.Vec, pv profileVertex) ([]r2.Vec, error) {
	v0 := r2.Unit(r2.Sub(prev, v))
	v1 := r2.Unit(r2.Sub(next, v))
	cross := d2.Cross(v1, v0)
	if math.Abs(cross) < tolerance {
		if r2.Dot(v0, v1) < 0 {
			return []r2.Vec{v}, nil // straight, nothing to round
		}
		return nil, fmt.Errorf("corner folds back on itself")
	}
	theta := math.Acos(sdfmesh.Clamp(r2.Dot(v0, v1), -1, 1))
	radius := pv.radius
	if pv.kind == kindChamfer {
		radius = pv.radius * math.Tan(theta/2)
	}
	d1 := radius / math.Tan(theta/2)
	if d1 > r2.Norm(r2.Sub(prev, v)) || d1 > r2.Norm(r2.Sub(next, v)) {
		return nil, fmt.Errorf("corner size %g exceeds an adjacent edge", pv.radius)
	}
	p0 := r2.Add(v, r2.Scale(d1, v0))
	c := r2.Add(v, r2.Scale(radius/math.Sin(theta/2), r2.Unit(r2.Add(v0, v1))))
	dtheta := sign(cross) * (math.Pi - theta) / float64(pv.facets)
	rv := r2.Sub(p0, c)
	pts := make([]r2.Vec, pv.facets+1)
	for j := range pts {
		pts[j] = r2.Add(c, rv)
		rv = d2.Rotate(rv, dtheta)
	}
	return pts, nil
}
