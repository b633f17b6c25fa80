package meshio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/chewxy/math32"
	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

const stlTriangleSize = 50

// stlHeader defines the STL file header.
type stlHeader struct {
	_     [80]uint8 // Header
	Count uint32    // Number of triangles
}

// WriteSTL writes the triangle cells of m as binary STL.
func WriteSTL(w io.Writer, m *Mesh) error {
	if err := m.Validate(); err != nil {
		return err
	}
	b := m.Block(Triangle)
	if b == nil || len(b.Data) == 0 {
		return errors.New("meshio: no triangles to write as STL")
	}
	header := stlHeader{Count: uint32(len(b.Data))}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}
	buf := make([]byte, 0, 1<<10*stlTriangleSize)
	var d stlTriangle
	for i, c := range b.Data {
		t := d3.Triangle{m.Points[c[0]], m.Points[c[1]], m.Points[c[2]]}
		n := t.Normal()
		if nn := r3.Norm(n); nn > 0 {
			n = r3.Scale(1/nn, n)
		}
		d.Normal = to3F32(n)
		d.Vertex1 = to3F32(t[0])
		d.Vertex2 = to3F32(t[1])
		d.Vertex3 = to3F32(t[2])
		buf = buf[:len(buf)+stlTriangleSize]
		d.put(buf[len(buf)-stlTriangleSize:])
		if len(buf) == cap(buf) || i == len(b.Data)-1 {
			if _, err := w.Write(buf); err != nil {
				return err
			}
			buf = buf[:0]
		}
	}
	return nil
}

// ReadSTL reads a binary STL file. Vertices with identical float32
// coordinates are welded into a single point.
func ReadSTL(r io.Reader) (*Mesh, error) {
	var header stlHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: STL header read failed: %v", sdfmesh.ErrLoad, err)
	}
	if header.Count == 0 {
		return nil, fmt.Errorf("%w: STL header indicates 0 triangles present", sdfmesh.ErrLoad)
	}
	var (
		buf  [stlTriangleSize]byte
		d    stlTriangle
		m    Mesh
		weld = make(map[[3]float32]int)
	)
	index := func(v [3]float32) int {
		idx, ok := weld[v]
		if !ok {
			idx = len(m.Points)
			weld[v] = idx
			m.Points = append(m.Points, r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])})
		}
		return idx
	}
	tri := CellBlock{Type: Triangle, Data: make([][]int, 0, header.Count)}
	for i := 0; i < int(header.Count); i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: %d/%d STL triangles read: %v", sdfmesh.ErrLoad, i, header.Count, err)
		}
		d.get(buf[:])
		if bad3F32(d.Vertex1) || bad3F32(d.Vertex2) || bad3F32(d.Vertex3) {
			return nil, fmt.Errorf("%w: inf/NaN vertex in STL triangle %d", sdfmesh.ErrLoad, i)
		}
		c := []int{index(d.Vertex1), index(d.Vertex2), index(d.Vertex3)}
		if c[0] == c[1] || c[1] == c[2] || c[2] == c[0] {
			continue // degenerate after welding
		}
		tri.Data = append(tri.Data, c)
	}
	m.Cells = []CellBlock{tri}
	return &m, nil
}

// stlTriangle defines the triangle data within an STL file.
type stlTriangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

func (t stlTriangle) put(b []byte) {
	_ = b[stlTriangleSize-1]
	put3F32(b, t.Normal)
	put3F32(b[12:], t.Vertex1)
	put3F32(b[24:], t.Vertex2)
	put3F32(b[36:], t.Vertex3)
	binary.LittleEndian.PutUint16(b[48:], 0)
}

func (t *stlTriangle) get(b []byte) {
	_ = b[stlTriangleSize-1]
	get3F32(b, &t.Normal)
	get3F32(b[12:], &t.Vertex1)
	get3F32(b[24:], &t.Vertex2)
	get3F32(b[36:], &t.Vertex3)
}

func to3F32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

func put3F32(b []byte, f [3]float32) {
	_ = b[11] // early bounds check
	binary.LittleEndian.PutUint32(b, math.Float32bits(f[0]))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(f[1]))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(f[2]))
}

func get3F32(b []byte, f *[3]float32) {
	_ = b[11] // early bounds check
	f[0] = math.Float32frombits(binary.LittleEndian.Uint32(b))
	f[1] = math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))
	f[2] = math.Float32frombits(binary.LittleEndian.Uint32(b[8:]))
}

func bad3F32(f [3]float32) bool {
	return math32.IsNaN(f[0]) || math32.IsInf(f[0], 0) ||
		math32.IsNaN(f[1]) || math32.IsInf(f[1], 0) ||
		math32.IsNaN(f[2]) || math32.IsInf(f[2], 0)
}
