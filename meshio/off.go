package meshio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// WriteOFF writes the triangle cells of m as an OFF surface. All points are
// written so indices are preserved.
func WriteOFF(w io.Writer, m *Mesh) error {
	if err := m.Validate(); err != nil {
		return err
	}
	var faces [][]int
	if b := m.Block(Triangle); b != nil {
		faces = b.Data
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "OFF\n%d %d 0\n", len(m.Points), len(faces))
	for _, p := range m.Points {
		fmt.Fprintf(bw, "%s %s %s\n", ftoa(p.X), ftoa(p.Y), ftoa(p.Z))
	}
	for _, f := range faces {
		bw.WriteString("3")
		for _, idx := range f {
			bw.WriteByte(' ')
			bw.WriteString(strconv.Itoa(idx))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadOFF reads an OFF surface into a mesh with a single triangle block.
// Polygonal faces are split into triangle fans. Trailing face color
// values are ignored.
func ReadOFF(r io.Reader) (*Mesh, error) {
	t := newTokenizer(r)
	kw, err := t.next()
	if err != nil {
		return nil, t.errorf("empty OFF file")
	}
	if !strings.HasSuffix(kw, "OFF") {
		return nil, t.errorf("missing OFF keyword, got %q", kw)
	}
	nv, err := t.int()
	if err != nil {
		return nil, err
	}
	nf, err := t.int()
	if err != nil {
		return nil, err
	}
	if _, err = t.int(); err != nil { // edge count, unused
		return nil, err
	}
	if nv < 0 || nf < 0 {
		return nil, t.errorf("negative element count")
	}
	m := &Mesh{Points: make([]r3.Vec, nv)}
	for i := range m.Points {
		var c [3]float64
		for j := range c {
			if c[j], err = t.float(); err != nil {
				return nil, err
			}
		}
		t.restOfLine()
		m.Points[i] = r3.Vec{X: c[0], Y: c[1], Z: c[2]}
	}
	tri := CellBlock{Type: Triangle, Data: make([][]int, 0, nf)}
	for i := 0; i < nf; i++ {
		k, err := t.int()
		if err != nil {
			return nil, err
		}
		if k < 3 {
			return nil, t.errorf("face %d has %d vertices", i, k)
		}
		face := make([]int, k)
		for j := range face {
			if face[j], err = t.int(); err != nil {
				return nil, err
			}
		}
		t.restOfLine()
		for j := 1; j < k-1; j++ {
			tri.Data = append(tri.Data, []int{face[0], face[j], face[j+1]})
		}
	}
	m.Cells = []CellBlock{tri}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
