package form2

import (
	"errors"
	"math"
	"testing"

	"github.com/soypat/sdfmesh"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestPolygonEvaluate(t *testing.T) {
	sq := []r2.Vec{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}}
	for _, test := range []struct {
		name  string
		verts []r2.Vec
		p     r2.Vec
		want  float64
	}{
		{"center", sq, r2.Vec{X: 1, Y: 1}, -1},
		{"near edge", sq, r2.Vec{X: 1.5, Y: 1}, -0.5},
		{"outside edge", sq, r2.Vec{X: 3, Y: 1}, 1},
		{"outside corner", sq, r2.Vec{X: 3, Y: 3}, math.Sqrt2},
		{"clockwise", []r2.Vec{sq[3], sq[2], sq[1], sq[0]}, r2.Vec{X: 1, Y: 1}, -1},
		{"explicitly closed", append(sq, sq[0]), r2.Vec{X: 1, Y: 1}, -1},
	} {
		p, err := Polygon(test.verts)
		if err != nil {
			t.Fatalf("%s: %v", test.name, err)
		}
		if got := p.Evaluate(test.p); math.Abs(got-test.want) > 1e-12 {
			t.Errorf("%s: got %g, want %g", test.name, got, test.want)
		}
	}
}

func TestPolygonVertices(t *testing.T) {
	in := []r2.Vec{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 0}}
	p, err := Polygon(in)
	if err != nil {
		t.Fatal(err)
	}
	got := p.Vertices()
	if len(got) != 3 {
		t.Fatalf("closing vertex kept: %v", got)
	}
	got[0] = r2.Vec{X: 10}
	if p.Vertices()[0] != (r2.Vec{}) {
		t.Error("Vertices exposes internal storage")
	}
	bb := p.Bounds()
	if bb.Min != (r2.Vec{}) || bb.Max != (r2.Vec{X: 1, Y: 1}) {
		t.Errorf("bad bounds %v", bb)
	}
}

func TestPolygonErrors(t *testing.T) {
	for _, verts := range [][]r2.Vec{
		nil,
		{{X: 0}, {X: 1}},
		{{X: 0}, {X: 1}, {X: 1}, {Y: 1}},
		{{X: math.NaN()}, {X: 1}, {Y: 1}},
	} {
		if _, err := Polygon(verts); !errors.Is(err, sdfmesh.ErrConstruction) {
			t.Errorf("%v: want construction error, got %v", verts, err)
		}
	}
}

func TestNagon(t *testing.T) {
	v, err := Nagon(6, 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range v {
		if math.Abs(r2.Norm(p)-2) > 1e-12 {
			t.Errorf("vertex %v not on circumcircle", p)
		}
	}
	if _, err := Nagon(2, 1); err == nil {
		t.Error("want error for n < 3")
	}
}
