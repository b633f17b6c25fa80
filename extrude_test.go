package sdfmesh_test

import (
	"errors"
	"math"
	"testing"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/form2"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

func square(t testing.TB, cx, cy, half float64) sdfmesh.Polygon2 {
	t.Helper()
	p, err := form2.Polygon([]r2.Vec{
		{X: cx - half, Y: cy - half},
		{X: cx + half, Y: cy - half},
		{X: cx + half, Y: cy + half},
		{X: cx - half, Y: cy + half},
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExtrude(t *testing.T) {
	poly := square(t, 0, 0, 0.5)
	d, err := sdfmesh.Extrude(poly, r3.Vec{Z: 1}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, test := range []struct {
		p      r3.Vec
		inside bool
	}{
		{r3.Vec{Z: 0.5}, true},
		{r3.Vec{X: 0.4, Y: -0.4, Z: 0.9}, true},
		{r3.Vec{Z: 1.1}, false},
		{r3.Vec{Z: -0.1}, false},
		{r3.Vec{X: 0.6, Z: 0.5}, false},
	} {
		if got := d.Evaluate(test.p) < 0; got != test.inside {
			t.Errorf("%v: inside=%v, want %v", test.p, got, test.inside)
		}
	}
	if got := len(d.Features()); got != 12 {
		t.Errorf("straight extrusion: want 12 features, got %d", got)
	}
	want := 0.5 + 1.0
	if got := d.BoundingRadius2(); math.Abs(got-want) > 1e-12 {
		t.Errorf("bound: got %g, want %g", got, want)
	}
}

func TestTwistedExtrude(t *testing.T) {
	poly := square(t, 0, 0, 0.5)
	const alpha = math.Pi / 4
	dir := r3.Vec{X: 0.3, Z: 2}
	d, err := sdfmesh.Extrude(poly, dir, alpha, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	lines := d.Features()
	if len(lines) != 12 {
		t.Fatalf("want 12 features, got %d", len(lines))
	}
	r2 := d.BoundingRadius2()
	for _, l := range lines {
		for _, p := range l {
			if r3.Norm2(p) > r2 {
				t.Errorf("feature point %v outside bound", p)
			}
			if v := d.Evaluate(p); math.Abs(v) > 1e-9 {
				t.Errorf("feature point %v off surface: %g", p, v)
			}
		}
	}
	// The vertical edges are helices discretized near the edge size.
	helix := lines[8]
	l := math.Sqrt(alpha*alpha*0.5 + 4)
	if want := int(l/0.1-0.5) + 2; len(helix) != want {
		t.Errorf("helix has %d points, want %d", len(helix), want)
	}
	if _, err := sdfmesh.Extrude(poly, dir, alpha, 0); !errors.Is(err, sdfmesh.ErrConstruction) {
		t.Errorf("twist without edge size: want construction error, got %v", err)
	}
	if _, err := sdfmesh.Extrude(poly, r3.Vec{X: 1}, 0, 0); !errors.Is(err, sdfmesh.ErrConstruction) {
		t.Errorf("flat direction: want construction error, got %v", err)
	}
}

func TestRingExtrude(t *testing.T) {
	profile := square(t, 2, 0, 0.5)
	d, err := sdfmesh.RingExtrude(profile, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	for _, test := range []struct {
		p      r3.Vec
		inside bool
	}{
		{r3.Vec{X: 2}, true},
		{r3.Vec{Y: -2.2, Z: 0.3}, true},
		{r3.Vec{}, false},
		{r3.Vec{X: 3}, false},
	} {
		if got := d.Evaluate(test.p) < 0; got != test.inside {
			t.Errorf("%v: inside=%v, want %v", test.p, got, test.inside)
		}
	}
	if got := len(d.Features()); got != 4 {
		t.Errorf("want one circle per vertex, got %d", got)
	}
	if got, want := d.BoundingRadius2(), 2.5*2.5+0.25; math.Abs(got-want) > 1e-12 {
		t.Errorf("bound: got %g, want %g", got, want)
	}
	bad := square(t, 0, 0, 0.5)
	if _, err := sdfmesh.RingExtrude(bad, 0.1); !errors.Is(err, sdfmesh.ErrConstruction) {
		t.Errorf("profile crossing axis: want construction error, got %v", err)
	}
}
