package d3

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Box is an axis aligned 3d bounding box.
type Box r3.Box

// NewBox creates a box with a given center and size.
// Negative components of size are interpreted as zero.
func NewBox(center, size r3.Vec) Box {
	half := r3.Scale(0.5, MaxElem(size, r3.Vec{}))
	return Box{Min: r3.Sub(center, half), Max: r3.Add(center, half)}
}

// Empty returns a box that includes nothing. Including a point
// in it yields the degenerate box of that point.
func Empty() Box {
	inf := math.Inf(1)
	return Box{Min: Elem(inf), Max: Elem(-inf)}
}

// BoxOf returns the smallest box containing every point in pts.
func BoxOf(pts ...r3.Vec) Box {
	b := Empty()
	for _, p := range pts {
		b = b.Include(p)
	}
	return b
}

// Include enlarges a box to include a point.
func (a Box) Include(v r3.Vec) Box {
	return Box{Min: MinElem(a.Min, v), Max: MaxElem(a.Max, v)}
}

// Size returns the size of the box.
func (a Box) Size() r3.Vec {
	return r3.Sub(a.Max, a.Min)
}

// Center returns the center of the box.
func (a Box) Center() r3.Vec {
	return r3.Add(a.Min, r3.Scale(0.5, a.Size()))
}

// Enlarge returns the box grown by d on every side.
func (a Box) Enlarge(d float64) Box {
	v := Elem(d)
	return Box{Min: r3.Sub(a.Min, v), Max: r3.Add(a.Max, v)}
}

// Contains checks if the box contains v, bounds considered inside.
func (a Box) Contains(v r3.Vec) bool {
	return a.Min.X <= v.X && a.Min.Y <= v.Y && a.Min.Z <= v.Z &&
		v.X <= a.Max.X && v.Y <= a.Max.Y && v.Z <= a.Max.Z
}

// Vertices returns the 8 corners of the box.
func (a Box) Vertices() Set {
	v := make(Set, 8)
	for i := range v {
		v[i] = a.Min
		if i&1 != 0 {
			v[i].Z = a.Max.Z
		}
		if i&2 != 0 {
			v[i].Y = a.Max.Y
		}
		if i&4 != 0 {
			v[i].X = a.Max.X
		}
	}
	return v
}

// Dist2 returns the squared distance from p to the box.
// Points within the box are at distance zero.
func (a Box) Dist2(p r3.Vec) float64 {
	d := MaxElem(r3.Sub(a.Min, p), r3.Sub(p, a.Max))
	d = MaxElem(d, r3.Vec{})
	return r3.Norm2(d)
}
