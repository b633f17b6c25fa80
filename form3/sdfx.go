package form3

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/soypat/sdfmesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// sdfxDomain adapts an sdfx SDF3 into a Domain.
type sdfxDomain struct {
	s      sdf.SDF3
	bound2 float64
}

// SDFX returns a Domain evaluating an sdfx SDF3. The bounding sphere encloses
// the SDF's bounding box. sdfx shapes carry no feature edges; attach them
// with sdfmesh.WithFeatures if needed.
func SDFX(s sdf.SDF3) (sdfmesh.Domain, error) {
	if s == nil {
		return nil, errf("nil sdfx argument")
	}
	bb := s.BoundingBox()
	far := r3.Vec{
		X: math.Max(math.Abs(bb.Min.X), math.Abs(bb.Max.X)),
		Y: math.Max(math.Abs(bb.Min.Y), math.Abs(bb.Max.Y)),
		Z: math.Max(math.Abs(bb.Min.Z), math.Abs(bb.Max.Z)),
	}
	b := r3.Norm2(far)
	if !finite(b) {
		return nil, errf("sdfx shape has unbounded bounding box")
	}
	return &sdfxDomain{s: s, bound2: b}, nil
}

// Evaluate returns the sdfx distance at p.
func (s *sdfxDomain) Evaluate(p r3.Vec) float64 {
	return s.s.Evaluate(v3.Vec{X: p.X, Y: p.Y, Z: p.Z})
}

func (s *sdfxDomain) BoundingRadius2() float64 { return s.bound2 }

func (s *sdfxDomain) Features() []sdfmesh.Polyline { return nil }
