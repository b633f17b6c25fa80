package d3

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Feature identifies the part of a triangle nearest to a query point.
type Feature uint8

const (
	FeatureV0 Feature = iota
	FeatureV1
	FeatureV2
	FeatureE01
	FeatureE12
	FeatureE20
	FeatureFace
)

// IsVertex reports whether f is one of the triangle corners.
func (f Feature) IsVertex() bool { return f <= FeatureV2 }

// IsEdge reports whether f is one of the triangle edges.
func (f Feature) IsEdge() bool { return f >= FeatureE01 && f <= FeatureE20 }

// Triangle is a 3d triangle.
type Triangle [3]r3.Vec

// Normal returns the unnormalized normal of the triangle, following the
// right hand rule over the vertex order.
func (t Triangle) Normal() r3.Vec {
	return r3.Cross(r3.Sub(t[1], t[0]), r3.Sub(t[2], t[0]))
}

// Centroid returns the mean of the triangle vertices.
func (t Triangle) Centroid() r3.Vec {
	return r3.Scale(1./3, r3.Add(t[0], r3.Add(t[1], t[2])))
}

// Degenerate reports whether the triangle has area below tol.
func (t Triangle) Degenerate(tol float64) bool {
	return r3.Norm(t.Normal()) <= 2*tol
}

// Closest returns the point of t closest to p and the feature it lies on.
func (t Triangle) Closest(p r3.Vec) (r3.Vec, Feature) {
	a, b, c := t[0], t[1], t[2]
	ab := r3.Sub(b, a)
	ac := r3.Sub(c, a)
	ap := r3.Sub(p, a)
	d1 := r3.Dot(ab, ap)
	d2 := r3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		return a, FeatureV0
	}
	bp := r3.Sub(p, b)
	d3 := r3.Dot(ab, bp)
	d4 := r3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		return b, FeatureV1
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return r3.Add(a, r3.Scale(v, ab)), FeatureE01
	}
	cp := r3.Sub(p, c)
	d5 := r3.Dot(ab, cp)
	d6 := r3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		return c, FeatureV2
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return r3.Add(a, r3.Scale(w, ac)), FeatureE20
	}
	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return r3.Add(b, r3.Scale(w, r3.Sub(c, b))), FeatureE12
	}
	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return r3.Add(a, r3.Add(r3.Scale(v, ab), r3.Scale(w, ac))), FeatureFace
}

// ClosestOnSegment returns the point on segment ab closest to p.
func ClosestOnSegment(a, b, p r3.Vec) r3.Vec {
	ab := r3.Sub(b, a)
	l2 := r3.Norm2(ab)
	if l2 == 0 {
		return a
	}
	t := clamp(r3.Dot(r3.Sub(p, a), ab)/l2, 0, 1)
	return r3.Add(a, r3.Scale(t, ab))
}

// SegmentDist2 returns the squared distance between segments p1q1 and p2q2.
func SegmentDist2(p1, q1, p2, q2 r3.Vec) float64 {
	const eps = 1e-300
	d1 := r3.Sub(q1, p1)
	d2 := r3.Sub(q2, p2)
	r := r3.Sub(p1, p2)
	a := r3.Norm2(d1)
	e := r3.Norm2(d2)
	f := r3.Dot(d2, r)
	var s, t float64
	switch {
	case a <= eps && e <= eps:
		return Dist2(p1, p2)
	case a <= eps:
		t = clamp(f/e, 0, 1)
	default:
		c := r3.Dot(d1, r)
		if e <= eps {
			s = clamp(-c/a, 0, 1)
		} else {
			b := r3.Dot(d1, d2)
			denom := a*e - b*b
			if denom != 0 {
				s = clamp((b*f-c*e)/denom, 0, 1)
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = clamp(-c/a, 0, 1)
			} else if t > 1 {
				t = 1
				s = clamp((b-c)/a, 0, 1)
			}
		}
	}
	c1 := r3.Add(p1, r3.Scale(s, d1))
	c2 := r3.Add(p2, r3.Scale(t, d2))
	return Dist2(c1, c2)
}

// TetVolume returns the signed volume of tetrahedron abcd. It is positive
// when d lies on the side the right hand normal of abc points to.
func TetVolume(a, b, c, d r3.Vec) float64 {
	return r3.Dot(r3.Sub(b, a), r3.Cross(r3.Sub(c, a), r3.Sub(d, a))) / 6
}

// MinDihedral returns the smallest of the six dihedral angles of
// tetrahedron abcd, in radians.
func MinDihedral(a, b, c, d r3.Vec) float64 {
	v := [4]r3.Vec{a, b, c, d}
	minAngle := math.Pi
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			// Opposite edge vertices.
			var k, l int
			for m, n := 0, 0; m < 4; m++ {
				if m == i || m == j {
					continue
				}
				if n == 0 {
					k = m
				} else {
					l = m
				}
				n++
			}
			e := r3.Unit(r3.Sub(v[j], v[i]))
			pk := r3.Sub(v[k], v[i])
			pl := r3.Sub(v[l], v[i])
			pk = r3.Sub(pk, r3.Scale(r3.Dot(pk, e), e))
			pl = r3.Sub(pl, r3.Scale(r3.Dot(pl, e), e))
			nk, nl := r3.Norm(pk), r3.Norm(pl)
			if nk == 0 || nl == 0 {
				return 0
			}
			ang := math.Acos(clamp(r3.Dot(pk, pl)/(nk*nl), -1, 1))
			minAngle = math.Min(minAngle, ang)
		}
	}
	return minAngle
}

func clamp(x, a, b float64) float64 {
	return math.Min(b, math.Max(x, a))
}
