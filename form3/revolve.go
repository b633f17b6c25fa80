package form3

import (
	"math"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/internal/d2"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// profile converts p to the (radius, z) coordinates of a solid of revolution
// about the z axis.
func profile(p r3.Vec) r2.Vec {
	return r2.Vec{X: math.Hypot(p.X, p.Y), Y: p.Z}
}

// cylinder is a right circular cylinder about the z axis.
type cylinder struct {
	z0, z1   float64
	radius   float64
	edgeSize float64
}

// Cylinder returns the domain of the cylinder of the given radius about the
// z axis between heights z0 and z1. edgeSize sets the length of the segments
// discretizing the cap circle features.
func Cylinder(z0, z1, radius, edgeSize float64) (sdfmesh.Domain, error) {
	switch {
	case !finite(z0, z1, radius, edgeSize):
		return nil, errf("non finite cylinder parameters")
	case z0 >= z1:
		return nil, errf("cylinder requires z0 < z1, got %g, %g", z0, z1)
	case radius <= 0:
		return nil, errf("cylinder radius must be positive, got %g", radius)
	case edgeSize <= 0:
		return nil, errf("cylinder edge size must be positive, got %g", edgeSize)
	}
	return &cylinder{z0: z0, z1: z1, radius: radius, edgeSize: edgeSize}, nil
}

// Evaluate returns the minimum distance to the cylinder.
func (s *cylinder) Evaluate(p r3.Vec) float64 {
	q := profile(p)
	dr := q.X - s.radius
	dz := math.Max(s.z0-q.Y, q.Y-s.z1)
	if dr > 0 && dz > 0 {
		return math.Hypot(dr, dz)
	}
	return math.Max(dr, dz)
}

// BoundingRadius2 returns max(z0^2, z1^2) + r^2.
func (s *cylinder) BoundingRadius2() float64 {
	return math.Max(s.z0*s.z0, s.z1*s.z1) + s.radius*s.radius
}

// Features returns the two cap circles.
func (s *cylinder) Features() []sdfmesh.Polyline {
	return []sdfmesh.Polyline{
		sdfmesh.Circle(s.radius, s.z0, s.edgeSize),
		sdfmesh.Circle(s.radius, s.z1, s.edgeSize),
	}
}

// cone is a right circular cone with its base on the z=0 plane.
type cone struct {
	radius   float64
	height   float64
	edgeSize float64
}

// Cone returns the domain of a cone about the z axis with its base disk of the
// given radius at z=0 and its apex at z=height. edgeSize sets the length of
// the segments discretizing the base circle feature.
func Cone(radius, height, edgeSize float64) (sdfmesh.Domain, error) {
	switch {
	case !finite(radius, height, edgeSize):
		return nil, errf("non finite cone parameters")
	case radius <= 0 || height <= 0:
		return nil, errf("cone radius and height must be positive, got %g, %g", radius, height)
	case edgeSize <= 0:
		return nil, errf("cone edge size must be positive, got %g", edgeSize)
	}
	return &cone{radius: radius, height: height, edgeSize: edgeSize}, nil
}

// Evaluate returns the minimum distance to the cone, computed as the distance
// to its profile triangle in the (radius, z) half plane.
func (s *cone) Evaluate(p r3.Vec) float64 {
	q := profile(p)
	base0, base1 := r2.Vec{}, r2.Vec{X: s.radius}
	apex := r2.Vec{Y: s.height}
	dSlant := r2.Norm(r2.Sub(q, d2.ClosestOnSegment(base1, apex, q)))
	inside := q.Y >= 0 && q.X/s.radius+q.Y/s.height <= 1
	if inside {
		return -math.Min(q.Y, dSlant)
	}
	dBase := r2.Norm(r2.Sub(q, d2.ClosestOnSegment(base0, base1, q)))
	return math.Min(dBase, dSlant)
}

// BoundingRadius2 returns max(r^2, h^2).
func (s *cone) BoundingRadius2() float64 {
	return math.Max(s.radius*s.radius, s.height*s.height)
}

// Features returns the base circle.
func (s *cone) Features() []sdfmesh.Polyline {
	return []sdfmesh.Polyline{sdfmesh.Circle(s.radius, 0, s.edgeSize)}
}
