package d2

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// Box is an axis aligned 2d bounding box.
type Box r2.Box

// BoxOf returns the smallest box containing every point in pts.
// pts must not be empty.
func BoxOf(pts ...r2.Vec) Box {
	return Box{Min: Set(pts).Min(), Max: Set(pts).Max()}
}

// Include enlarges a box to include a point.
func (a Box) Include(v r2.Vec) Box {
	return Box{Min: MinElem(a.Min, v), Max: MaxElem(a.Max, v)}
}

// Size returns the size of the box.
func (a Box) Size() r2.Vec {
	return r2.Sub(a.Max, a.Min)
}

// Center returns the center of the box.
func (a Box) Center() r2.Vec {
	return r2.Add(a.Min, r2.Scale(0.5, a.Size()))
}

// Contains checks if the box contains v, bounds considered inside.
func (a Box) Contains(v r2.Vec) bool {
	return a.Min.X <= v.X && a.Min.Y <= v.Y && v.X <= a.Max.X && v.Y <= a.Max.Y
}
