package sdfmesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Domain is the interface to an implicit 3d domain the mesher can consume.
type Domain interface {
	// Evaluate takes a point in 3D space as input and returns the signed
	// value of the domain at that point. The value is negative or zero
	// if the point is contained within the domain.
	Evaluate(p r3.Vec) float64
	// BoundingRadius2 returns the squared radius of an origin centered
	// sphere that completely contains the domain.
	BoundingRadius2() float64
	// Features returns the polylines the mesher should preserve as sharp
	// edges. It may return nil.
	Features() []Polyline
}

// Polyline is an ordered sequence of points. A closed polyline repeats
// its first point at the end.
type Polyline []r3.Vec

// Closed reports whether the polyline ends where it starts.
func (l Polyline) Closed() bool {
	return len(l) > 2 && l[0] == l[len(l)-1]
}

// Map returns a new polyline with fn applied to every point.
func (l Polyline) Map(fn func(r3.Vec) r3.Vec) Polyline {
	out := make(Polyline, len(l))
	for i, p := range l {
		out[i] = fn(p)
	}
	return out
}

func mapFeatures(lines []Polyline, fn func(r3.Vec) r3.Vec) []Polyline {
	if len(lines) == 0 {
		return nil
	}
	out := make([]Polyline, len(lines))
	for i, l := range lines {
		out[i] = l.Map(fn)
	}
	return out
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

// translate3 is a domain translated by a vector.
type translate3 struct {
	d Domain
	v r3.Vec
}

// Translate returns the domain d translated by v.
func Translate(d Domain, v r3.Vec) (Domain, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil domain argument to Translate", ErrConstruction)
	}
	if !finiteVec(v) {
		return nil, fmt.Errorf("%w: non finite translation %v", ErrConstruction, v)
	}
	return &translate3{d: d, v: v}, nil
}

// Evaluate returns the signed value of the translated domain.
func (s *translate3) Evaluate(p r3.Vec) float64 {
	return s.d.Evaluate(r3.Sub(p, s.v))
}

// BoundingRadius2 returns (sqrt(b)+|v|)^2 where b is the child bound.
func (s *translate3) BoundingRadius2() float64 {
	r := math.Sqrt(s.d.BoundingRadius2()) + r3.Norm(s.v)
	return r * r
}

// Features returns the child features moved by the translation.
func (s *translate3) Features() []Polyline {
	return mapFeatures(s.d.Features(), func(p r3.Vec) r3.Vec { return r3.Add(p, s.v) })
}

// rotate3 is a domain rotated about an axis through the origin.
type rotate3 struct {
	d   Domain
	fwd r3.Rotation
	inv r3.Rotation
}

// Rotate returns the domain d rotated by angle radians about axis,
// following the right hand rule. axis need not be normalized.
func Rotate(d Domain, axis r3.Vec, angle float64) (Domain, error) {
	switch {
	case d == nil:
		return nil, fmt.Errorf("%w: nil domain argument to Rotate", ErrConstruction)
	case !finiteVec(axis) || !finite(angle):
		return nil, fmt.Errorf("%w: non finite rotation", ErrConstruction)
	case r3.Norm(axis) == 0:
		return nil, fmt.Errorf("%w: zero rotation axis", ErrConstruction)
	}
	u := r3.Unit(axis)
	return &rotate3{
		d:   d,
		fwd: r3.NewRotation(angle, u),
		inv: r3.NewRotation(-angle, u),
	}, nil
}

// Evaluate returns the signed value of the rotated domain.
func (s *rotate3) Evaluate(p r3.Vec) float64 {
	return s.d.Evaluate(s.inv.Rotate(p))
}

// BoundingRadius2 returns the child bound, rotation about the origin preserves it.
func (s *rotate3) BoundingRadius2() float64 {
	return s.d.BoundingRadius2()
}

// Features returns the rotated child features.
func (s *rotate3) Features() []Polyline {
	return mapFeatures(s.d.Features(), s.fwd.Rotate)
}

// scale3 is a domain scaled uniformly about the origin.
type scale3 struct {
	d     Domain
	alpha float64
}

// Scale returns the domain d scaled about the origin by alpha > 0.
// The signed value is not rescaled, so only its sign and zero set are
// meaningful for alpha != 1.
func Scale(d Domain, alpha float64) (Domain, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil domain argument to Scale", ErrConstruction)
	}
	if !(alpha > 0) || !finite(alpha) {
		return nil, fmt.Errorf("%w: scale factor must be positive, got %g", ErrConstruction, alpha)
	}
	return &scale3{d: d, alpha: alpha}, nil
}

// Evaluate returns the signed value of the child at p/alpha.
func (s *scale3) Evaluate(p r3.Vec) float64 {
	return s.d.Evaluate(r3.Scale(1/s.alpha, p))
}

// BoundingRadius2 returns alpha^2 b.
func (s *scale3) BoundingRadius2() float64 {
	return s.alpha * s.alpha * s.d.BoundingRadius2()
}

// Features returns the scaled child features.
func (s *scale3) Features() []Polyline {
	return mapFeatures(s.d.Features(), func(p r3.Vec) r3.Vec { return r3.Scale(s.alpha, p) })
}

// stretch3 is a domain stretched along a single direction.
type stretch3 struct {
	d     Domain
	n     r3.Vec // unit direction
	alpha float64
}

// Stretch returns d stretched by |v| along the direction of v. Components
// perpendicular to v are unchanged.
func Stretch(d Domain, v r3.Vec) (Domain, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil domain argument to Stretch", ErrConstruction)
	}
	alpha := r3.Norm(v)
	if !finite(alpha) || alpha == 0 {
		return nil, fmt.Errorf("%w: stretch vector must be non-zero and finite, got %v", ErrConstruction, v)
	}
	return &stretch3{d: d, n: r3.Scale(1/alpha, v), alpha: alpha}, nil
}

// Evaluate returns the signed value of the child at the inverse stretched point.
func (s *stretch3) Evaluate(p r3.Vec) float64 {
	k := (1/s.alpha - 1) * r3.Dot(p, s.n)
	return s.d.Evaluate(r3.Add(p, r3.Scale(k, s.n)))
}

// BoundingRadius2 returns max(1, alpha^2) b.
func (s *stretch3) BoundingRadius2() float64 {
	return math.Max(1, s.alpha*s.alpha) * s.d.BoundingRadius2()
}

// Features returns the stretched child features.
func (s *stretch3) Features() []Polyline {
	return mapFeatures(s.d.Features(), func(p r3.Vec) r3.Vec {
		k := (s.alpha - 1) * r3.Dot(p, s.n)
		return r3.Add(p, r3.Scale(k, s.n))
	})
}

// union3 is a union of domains.
type union3 struct {
	ds []Domain
}

// Union returns the union of one or more domains.
func Union(ds ...Domain) (Domain, error) {
	if err := checkOperands("Union", ds); err != nil {
		return nil, err
	}
	return &union3{ds: append([]Domain(nil), ds...)}, nil
}

// Evaluate returns the minimum of the children's signed values.
func (s *union3) Evaluate(p r3.Vec) float64 {
	d := s.ds[0].Evaluate(p)
	for _, x := range s.ds[1:] {
		d = math.Min(d, x.Evaluate(p))
	}
	return d
}

// BoundingRadius2 returns the largest of the children's bounds.
func (s *union3) BoundingRadius2() float64 {
	b := s.ds[0].BoundingRadius2()
	for _, x := range s.ds[1:] {
		b = math.Max(b, x.BoundingRadius2())
	}
	return b
}

// Features returns the concatenated features of the children.
func (s *union3) Features() []Polyline {
	return concatFeatures(s.ds...)
}

// intersection3 is an intersection of domains.
type intersection3 struct {
	ds []Domain
}

// Intersection returns the intersection of one or more domains.
func Intersection(ds ...Domain) (Domain, error) {
	if err := checkOperands("Intersection", ds); err != nil {
		return nil, err
	}
	return &intersection3{ds: append([]Domain(nil), ds...)}, nil
}

// Evaluate returns the maximum of the children's signed values.
func (s *intersection3) Evaluate(p r3.Vec) float64 {
	d := s.ds[0].Evaluate(p)
	for _, x := range s.ds[1:] {
		d = math.Max(d, x.Evaluate(p))
	}
	return d
}

// BoundingRadius2 returns the bound of the first operand.
func (s *intersection3) BoundingRadius2() float64 {
	return s.ds[0].BoundingRadius2()
}

// Features returns the concatenated features of the children.
func (s *intersection3) Features() []Polyline {
	return concatFeatures(s.ds...)
}

// diff3 is the difference of two domains, a - b.
type diff3 struct {
	a, b Domain
}

// Difference returns the domain a with b removed.
func Difference(a, b Domain) (Domain, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: nil domain argument to Difference", ErrConstruction)
	}
	return &diff3{a: a, b: b}, nil
}

// Evaluate returns max(a, -b).
func (s *diff3) Evaluate(p r3.Vec) float64 {
	return math.Max(s.a.Evaluate(p), -s.b.Evaluate(p))
}

// BoundingRadius2 returns the bound of a.
func (s *diff3) BoundingRadius2() float64 {
	return s.a.BoundingRadius2()
}

// Features returns the features of a followed by those of b.
func (s *diff3) Features() []Polyline {
	return concatFeatures(s.a, s.b)
}

func checkOperands(op string, ds []Domain) error {
	if len(ds) == 0 {
		return fmt.Errorf("%w: %s requires at least one domain", ErrConstruction, op)
	}
	for i, d := range ds {
		if d == nil {
			return fmt.Errorf("%w: nil domain argument (%d) to %s", ErrConstruction, i, op)
		}
	}
	return nil
}

func concatFeatures(ds ...Domain) []Polyline {
	var out []Polyline
	for _, d := range ds {
		out = append(out, d.Features()...)
	}
	return out
}

// featured3 attaches extra feature polylines to a domain.
type featured3 struct {
	Domain
	extra []Polyline
}

// WithFeatures returns d with the extra polylines appended to its features.
// Polylines with fewer than two points are rejected.
func WithFeatures(d Domain, extra ...Polyline) (Domain, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil domain argument to WithFeatures", ErrConstruction)
	}
	lines := make([]Polyline, len(extra))
	for i, l := range extra {
		if len(l) < 2 {
			return nil, fmt.Errorf("%w: feature polyline %d has %d points", ErrConstruction, i, len(l))
		}
		lines[i] = append(Polyline(nil), l...)
	}
	return &featured3{Domain: d, extra: lines}, nil
}

// Features returns the wrapped domain's features followed by the extra ones.
func (s *featured3) Features() []Polyline {
	out := append([]Polyline(nil), s.Domain.Features()...)
	return append(out, s.extra...)
}
