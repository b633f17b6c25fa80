package inr

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/form3"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestWriteHeader(t *testing.T) {
	g, err := NewGrid(sdfmesh.V3i{2, 3, 4}, r3.Vec{X: 1, Y: 0.5, Z: 2}, make([]uint8, 24))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, g); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != HeaderSize+24 {
		t.Fatalf("got %d bytes, want %d", buf.Len(), HeaderSize+24)
	}
	hdr := buf.String()[:HeaderSize]
	const text = "#INRIMAGE-4#{\nXDIM=2\nYDIM=3\nZDIM=4\nVDIM=1\nTYPE=unsigned fixed\nPIXSIZE=8 bits\nCPU=decm\nVX=1.000000\nVY=0.500000\nVZ=2.000000\n"
	want := text + strings.Repeat("\n", HeaderSize-4-len(text)) + "##}\n"
	if hdr != want {
		t.Errorf("header mismatch:\n got %q\nwant %q", hdr, want)
	}
}

func TestElementTypes(t *testing.T) {
	dims := sdfmesh.V3i{2, 1, 1}
	for _, test := range []struct {
		data    any
		typ     string
		bits    int
		payload []byte
	}{
		{[]uint8{1, 2}, TypeUnsigned, 8, []byte{1, 2}},
		{[]uint16{1, 0x0203}, TypeUnsigned, 16, []byte{1, 0, 3, 2}},
		{[]float32{1, -2}, TypeFloat, 32, []byte{0, 0, 0x80, 0x3f, 0, 0, 0, 0xc0}},
		{[]float64{1, 0}, TypeFloat, 64, []byte{0, 0, 0, 0, 0, 0, 0xf0, 0x3f, 0, 0, 0, 0, 0, 0, 0, 0}},
	} {
		g, err := NewGrid(dims, r3.Vec{X: 1, Y: 1, Z: 1}, test.data)
		if err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := Write(&buf, g); err != nil {
			t.Fatal(err)
		}
		if got := buf.Bytes()[HeaderSize:]; !bytes.Equal(got, test.payload) {
			t.Errorf("%T payload: got %x, want %x", test.data, got, test.payload)
		}
		h, err := ReadHeader(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatal(err)
		}
		if h.Type != test.typ || h.Bits != test.bits || h.Dims != dims {
			t.Errorf("%T: header %+v", test.data, h)
		}
		back, err := Read(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 2; i++ {
			if back.At(i, 0, 0) != g.At(i, 0, 0) {
				t.Errorf("%T voxel %d: got %g, want %g", test.data, i, back.At(i, 0, 0), g.At(i, 0, 0))
			}
		}
	}
}

func TestInvalidGrid(t *testing.T) {
	one := r3.Vec{X: 1, Y: 1, Z: 1}
	for _, test := range []struct {
		name    string
		dims    sdfmesh.V3i
		spacing r3.Vec
		data    any
	}{
		{"int32", sdfmesh.V3i{1, 1, 1}, one, []int32{1}},
		{"int8", sdfmesh.V3i{1, 1, 1}, one, []int8{1}},
		{"complex", sdfmesh.V3i{1, 1, 1}, one, []complex64{1}},
		{"length", sdfmesh.V3i{2, 2, 2}, one, []uint8{1}},
		{"dims", sdfmesh.V3i{0, 1, 1}, one, []uint8{}},
		{"spacing", sdfmesh.V3i{1, 1, 1}, r3.Vec{X: 1}, []uint8{1}},
	} {
		if _, err := NewGrid(test.dims, test.spacing, test.data); !errors.Is(err, sdfmesh.ErrConstruction) {
			t.Errorf("%s: want construction error, got %v", test.name, err)
		}
		var buf bytes.Buffer
		g := &Grid{Dims: test.dims, Spacing: test.spacing, Data: test.data}
		if err := Write(&buf, g); !errors.Is(err, sdfmesh.ErrConstruction) {
			t.Errorf("%s: write: want construction error, got %v", test.name, err)
		}
		if buf.Len() != 0 {
			t.Errorf("%s: bytes written for invalid grid", test.name)
		}
	}
}

func TestReadMalformed(t *testing.T) {
	g, _ := NewGrid(sdfmesh.V3i{1, 1, 1}, r3.Vec{X: 1, Y: 1, Z: 1}, []uint8{7})
	var buf bytes.Buffer
	if err := Write(&buf, g); err != nil {
		t.Fatal(err)
	}
	good := buf.String()
	for _, test := range []struct {
		name string
		data string
	}{
		{"short", good[:100]},
		{"magic", "#INRIMAGE-5" + good[11:]},
		{"terminator", good[:HeaderSize-4] + "\n\n\n\n" + good[HeaderSize:]},
		{"truncated payload", good[:HeaderSize]},
		{"type", strings.Replace(good, "unsigned fixed", "signed fixed  ", 1)},
		{"cpu", strings.Replace(good, "decm", "sun ", 1)},
		{"dims", strings.Replace(good, "XDIM=1", "XDIM=x", 1)},
	} {
		if _, err := Read(strings.NewReader(test.data)); !errors.Is(err, sdfmesh.ErrLoad) {
			t.Errorf("%s: want load error, got %v", test.name, err)
		}
	}
}

func TestSampleRoundTrip(t *testing.T) {
	ball, err := form3.Ball(r3.Vec{}, 1)
	if err != nil {
		t.Fatal(err)
	}
	box := r3.Box{Min: r3.Vec{X: -1.5, Y: -1.5, Z: -1.5}, Max: r3.Vec{X: 1.5, Y: 1.5, Z: 1.5}}
	g, err := Sample(ball, box, sdfmesh.V3i{7, 7, 7})
	if err != nil {
		t.Fatal(err)
	}
	if g.Spacing != (r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}) {
		t.Errorf("spacing %v", g.Spacing)
	}
	if got := g.At(3, 3, 3); got != -1 {
		t.Errorf("center sample: got %g, want -1", got)
	}
	path := filepath.Join(t.TempDir(), "ball.inr")
	if err := WriteFile(path, g); err != nil {
		t.Fatal(err)
	}
	back, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Dims != g.Dims || back.Spacing != g.Spacing {
		t.Errorf("header round trip: got %v %v", back.Dims, back.Spacing)
	}
	got, want := back.Data.([]float32), g.Data.([]float32)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("voxel %d: got %g, want %g", i, got[i], want[i])
		}
	}
	corner := g.At(0, 0, 0)
	if math.Abs(corner-(math.Sqrt(3)*1.5-1)) > 1e-6 {
		t.Errorf("corner sample %g", corner)
	}
}
