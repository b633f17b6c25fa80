package sdfmesh

import (
	"fmt"
	"math"

	"github.com/soypat/sdfmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Circle returns a closed polyline approximating the circle of the given
// radius centered on the z axis at height z. The circle is split into
// segments no longer than about edgeSize, with a minimum of 3.
func Circle(radius, z, edgeSize float64) Polyline {
	n := 3
	if edgeSize > 0 {
		n = int(tau*radius/edgeSize-0.5) + 1
		if n < 3 {
			n = 3
		}
	}
	line := make(Polyline, n+1)
	for i := 0; i < n; i++ {
		s, c := math.Sincos(tau * float64(i) / float64(n))
		line[i] = r3.Vec{X: radius * c, Y: radius * s, Z: z}
	}
	line[n] = line[0]
	return line
}

type segment struct {
	line, idx int // polyline and segment index within it
	a, b      r3.Vec
}

// ValidateFeatures checks feature polylines are usable as protected edges.
// Every polyline needs at least two points and no segment shorter than tol.
// A polyline may not intersect itself and polylines may not intersect each
// other, except where segments meet at a shared vertex. Points closer than
// tol are considered coincident. The returned error wraps ErrConstruction.
func ValidateFeatures(lines []Polyline, tol float64) error {
	if tol <= 0 {
		tol = tolerance
	}
	var segs []segment
	for i, l := range lines {
		if len(l) < 2 {
			return fmt.Errorf("%w: feature %d has %d points, need at least 2", ErrConstruction, i, len(l))
		}
		for j := 0; j < len(l)-1; j++ {
			if !finiteVec(l[j]) || !finiteVec(l[j+1]) {
				return fmt.Errorf("%w: feature %d has non finite point", ErrConstruction, i)
			}
			if d3.Dist2(l[j], l[j+1]) <= tol*tol {
				return fmt.Errorf("%w: feature %d has zero length segment %d", ErrConstruction, i, j)
			}
			segs = append(segs, segment{line: i, idx: j, a: l[j], b: l[j+1]})
		}
	}
	boxes := make([]d3.Box, len(segs))
	for i, s := range segs {
		boxes[i] = d3.BoxOf(s.a, s.b).Enlarge(tol)
	}
	for i := range segs {
		for j := i + 1; j < len(segs); j++ {
			if !overlap(boxes[i], boxes[j]) {
				continue
			}
			s, t := segs[i], segs[j]
			if shared, ok := sharedVertex(s, t, tol); ok {
				if !touchOnlyAt(s, t, shared, tol) {
					return fmt.Errorf("%w: feature %d segment %d overlaps feature %d segment %d",
						ErrConstruction, s.line, s.idx, t.line, t.idx)
				}
				if s.line == t.line && !adjacent(lines[s.line], s.idx, t.idx) {
					return fmt.Errorf("%w: feature %d revisits a vertex between segments %d and %d",
						ErrConstruction, s.line, s.idx, t.idx)
				}
				continue
			}
			if d3.SegmentDist2(s.a, s.b, t.a, t.b) <= tol*tol {
				if s.line == t.line {
					return fmt.Errorf("%w: feature %d intersects itself at segments %d and %d",
						ErrConstruction, s.line, s.idx, t.idx)
				}
				return fmt.Errorf("%w: feature %d segment %d intersects feature %d segment %d",
					ErrConstruction, s.line, s.idx, t.line, t.idx)
			}
		}
	}
	return nil
}

func overlap(a, b d3.Box) bool {
	return a.Min.X <= b.Max.X && b.Min.X <= a.Max.X &&
		a.Min.Y <= b.Max.Y && b.Min.Y <= a.Max.Y &&
		a.Min.Z <= b.Max.Z && b.Min.Z <= a.Max.Z
}

// sharedVertex returns the vertex two segments have in common, if any.
func sharedVertex(s, t segment, tol float64) (r3.Vec, bool) {
	for _, p := range [2]r3.Vec{s.a, s.b} {
		for _, q := range [2]r3.Vec{t.a, t.b} {
			if d3.EqualWithin(p, q, tol) {
				return p, true
			}
		}
	}
	return r3.Vec{}, false
}

// touchOnlyAt reports whether segments s and t sharing vertex v meet nowhere else.
func touchOnlyAt(s, t segment, v r3.Vec, tol float64) bool {
	far := func(g segment) r3.Vec {
		if d3.Dist2(g.a, v) < d3.Dist2(g.b, v) {
			return g.b
		}
		return g.a
	}
	fs, ft := far(s), far(t)
	tol2 := tol * tol
	return d3.Dist2(d3.ClosestOnSegment(t.a, t.b, fs), fs) > tol2 &&
		d3.Dist2(d3.ClosestOnSegment(s.a, s.b, ft), ft) > tol2
}

// adjacent reports whether segments i < j of line l follow each other,
// counting the closing segment of a closed polyline as adjacent to the first.
func adjacent(l Polyline, i, j int) bool {
	if j == i+1 {
		return true
	}
	return l.Closed() && i == 0 && j == len(l)-2
}
