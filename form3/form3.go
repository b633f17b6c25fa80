// Package form3 implements the primitive 3d domains: exact (or tightly
// bounded) signed distance functions with their bounding spheres and
// sharp feature edges.
package form3

import (
	"fmt"
	"math"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

func errf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sdfmesh.ErrConstruction}, args...)...)
}

func finite(v ...float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func finiteVec(v r3.Vec) bool { return finite(v.X, v.Y, v.Z) }

// ball is a sphere.
type ball struct {
	center r3.Vec
	radius float64
}

// Ball returns the domain of a ball.
func Ball(center r3.Vec, radius float64) (sdfmesh.Domain, error) {
	if !finiteVec(center) || !finite(radius) {
		return nil, errf("non finite ball parameters")
	}
	if radius <= 0 {
		return nil, errf("ball radius must be positive, got %g", radius)
	}
	return &ball{center: center, radius: radius}, nil
}

// Evaluate returns the minimum distance to the ball.
func (s *ball) Evaluate(p r3.Vec) float64 {
	return r3.Norm(r3.Sub(p, s.center)) - s.radius
}

// BoundingRadius2 returns (|c|+r)^2.
func (s *ball) BoundingRadius2() float64 {
	r := r3.Norm(s.center) + s.radius
	return r * r
}

func (s *ball) Features() []sdfmesh.Polyline { return nil }

// cuboid is an axis aligned box.
type cuboid struct {
	bb d3.Box
}

// Cuboid returns the domain of the axis aligned box spanning lo to hi.
func Cuboid(lo, hi r3.Vec) (sdfmesh.Domain, error) {
	if !finiteVec(lo) || !finiteVec(hi) {
		return nil, errf("non finite cuboid corners")
	}
	if lo.X >= hi.X || lo.Y >= hi.Y || lo.Z >= hi.Z {
		return nil, errf("cuboid corner %v must be below %v on every axis", lo, hi)
	}
	return &cuboid{bb: d3.Box{Min: lo, Max: hi}}, nil
}

// Evaluate returns the minimum distance to the cuboid.
func (s *cuboid) Evaluate(p r3.Vec) float64 {
	half := r3.Scale(0.5, s.bb.Size())
	q := r3.Sub(d3.AbsElem(r3.Sub(p, s.bb.Center())), half)
	outside := r3.Norm(d3.MaxElem(q, r3.Vec{}))
	return outside + math.Min(d3.Max(q), 0)
}

// BoundingRadius2 returns the squared norm of the farthest corner.
func (s *cuboid) BoundingRadius2() float64 {
	r2 := 0.0
	for _, v := range s.bb.Vertices() {
		r2 = math.Max(r2, r3.Norm2(v))
	}
	return r2
}

// Features returns the 12 edges of the cuboid.
func (s *cuboid) Features() []sdfmesh.Polyline {
	v := s.bb.Vertices()
	// Vertices are indexed by bits (x<<2 | y<<1 | z); edges join
	// corners that differ in a single bit.
	lines := make([]sdfmesh.Polyline, 0, 12)
	for i := range v {
		for _, bit := range []int{1, 2, 4} {
			if j := i | bit; j != i {
				lines = append(lines, sdfmesh.Polyline{v[i], v[j]})
			}
		}
	}
	return lines
}

// ellipsoid is an axis aligned ellipsoid.
type ellipsoid struct {
	center r3.Vec
	radii  r3.Vec
}

// Ellipsoid returns the domain of an axis aligned ellipsoid with semi-axes
// a0, a1, a2. The signed value is a bounded approximation of the distance
// that is exact on the surface.
func Ellipsoid(center r3.Vec, a0, a1, a2 float64) (sdfmesh.Domain, error) {
	if !finiteVec(center) || !finite(a0, a1, a2) {
		return nil, errf("non finite ellipsoid parameters")
	}
	if a0 <= 0 || a1 <= 0 || a2 <= 0 {
		return nil, errf("ellipsoid semi-axes must be positive, got %g %g %g", a0, a1, a2)
	}
	return &ellipsoid{center: center, radii: r3.Vec{X: a0, Y: a1, Z: a2}}, nil
}

// Evaluate returns the approximate distance to the ellipsoid.
func (s *ellipsoid) Evaluate(p r3.Vec) float64 {
	p = r3.Sub(p, s.center)
	r := s.radii
	k0 := r3.Norm(r3.Vec{X: p.X / r.X, Y: p.Y / r.Y, Z: p.Z / r.Z})
	k1 := r3.Norm(r3.Vec{X: p.X / (r.X * r.X), Y: p.Y / (r.Y * r.Y), Z: p.Z / (r.Z * r.Z)})
	if k1 == 0 {
		return -d3.Min(r)
	}
	return k0 * (k0 - 1) / k1
}

// BoundingRadius2 returns (|c| + max(a))^2.
func (s *ellipsoid) BoundingRadius2() float64 {
	r := r3.Norm(s.center) + d3.Max(s.radii)
	return r * r
}

func (s *ellipsoid) Features() []sdfmesh.Polyline { return nil }

// torus is a ring torus about the z axis.
type torus struct {
	major, minor float64
}

// Torus returns the domain of a torus centered at the origin about the z
// axis. The tube of radius minor sweeps a circle of radius major.
func Torus(major, minor float64) (sdfmesh.Domain, error) {
	if !finite(major, minor) {
		return nil, errf("non finite torus radii")
	}
	if minor <= 0 || major <= minor {
		return nil, errf("torus requires 0 < minor < major, got major=%g minor=%g", major, minor)
	}
	return &torus{major: major, minor: minor}, nil
}

// Evaluate returns the minimum distance to the torus.
func (s *torus) Evaluate(p r3.Vec) float64 {
	return math.Hypot(math.Hypot(p.X, p.Y)-s.major, p.Z) - s.minor
}

// BoundingRadius2 returns (R+r)^2.
func (s *torus) BoundingRadius2() float64 {
	r := s.major + s.minor
	return r * r
}

func (s *torus) Features() []sdfmesh.Polyline { return nil }

// halfSpace is the set of points p with n·p <= alpha.
type halfSpace struct {
	n      r3.Vec // unit normal
	offset float64
	bound2 float64
}

// HalfSpace returns the domain {p : n·p <= alpha}. A half space is unbounded
// so the caller supplies the radius of the sphere the mesher should consider.
func HalfSpace(n r3.Vec, alpha, boundingRadius float64) (sdfmesh.Domain, error) {
	norm := r3.Norm(n)
	switch {
	case !finiteVec(n) || !finite(alpha, boundingRadius):
		return nil, errf("non finite half space parameters")
	case norm == 0:
		return nil, errf("half space normal must be non-zero")
	case boundingRadius <= 0:
		return nil, errf("half space bounding radius must be positive, got %g", boundingRadius)
	}
	return &halfSpace{
		n:      r3.Scale(1/norm, n),
		offset: alpha / norm,
		bound2: boundingRadius * boundingRadius,
	}, nil
}

// Evaluate returns the signed distance to the bounding plane.
func (s *halfSpace) Evaluate(p r3.Vec) float64 {
	return r3.Dot(s.n, p) - s.offset
}

func (s *halfSpace) BoundingRadius2() float64 { return s.bound2 }

func (s *halfSpace) Features() []sdfmesh.Polyline { return nil }
