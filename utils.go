package sdfmesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	pi  = math.Pi
	tau = 2 * pi
	// tolerance is the length under which two points are considered coincident.
	tolerance = 1e-9
)

// DtoR converts degrees to radians
func DtoR(degrees float64) float64 {
	return (pi / 180) * degrees
}

// Clamp x between a and b, assume a <= b
func Clamp(x, a, b float64) float64 {
	if x < a {
		return a
	}
	if x > b {
		return b
	}
	return x
}

// Normal2 returns the normal of an SDF2 at a point (doesn't need to be on the surface).
func Normal2(s SDF2, p r2.Vec, eps float64) r2.Vec {
	return r2.Unit(r2.Vec{
		X: s.Evaluate(r2.Add(p, r2.Vec{X: eps})) - s.Evaluate(r2.Add(p, r2.Vec{X: -eps})),
		Y: s.Evaluate(r2.Add(p, r2.Vec{Y: eps})) - s.Evaluate(r2.Add(p, r2.Vec{Y: -eps})),
	})
}
