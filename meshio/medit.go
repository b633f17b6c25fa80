package meshio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/soypat/sdfmesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// medit section keywords by cell type.
var meditSections = []struct {
	keyword string
	typ     string
}{
	{"Edges", Line},
	{"Triangles", Triangle},
	{"Quadrilaterals", Quad},
	{"Tetrahedra", Tetra},
}

// WriteMedit writes m in the ASCII medit .mesh format. Indices are written
// 1-based, each element followed by its label (0 when unlabeled).
func WriteMedit(w io.Writer, m *Mesh) error {
	if err := m.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "MeshVersionFormatted 1\nDimension 3\nVertices\n%d\n", len(m.Points))
	for _, p := range m.Points {
		fmt.Fprintf(bw, "%s %s %s 0\n", ftoa(p.X), ftoa(p.Y), ftoa(p.Z))
	}
	for _, sec := range meditSections {
		b := m.Block(sec.typ)
		if b == nil {
			continue
		}
		fmt.Fprintf(bw, "%s\n%d\n", sec.keyword, len(b.Data))
		for i, c := range b.Data {
			for _, idx := range c {
				bw.WriteString(strconv.Itoa(idx + 1))
				bw.WriteByte(' ')
			}
			label := 0
			if b.Labels != nil {
				label = b.Labels[i]
			}
			bw.WriteString(strconv.Itoa(label))
			bw.WriteByte('\n')
		}
	}
	bw.WriteString("End\n")
	return bw.Flush()
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// tokenizer splits a text mesh file into whitespace separated tokens,
// dropping # comments.
type tokenizer struct {
	s    *bufio.Scanner
	line int
	toks []string
}

func newTokenizer(r io.Reader) *tokenizer {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1<<20)
	return &tokenizer{s: s}
}

// next returns the next token or io.EOF.
func (t *tokenizer) next() (string, error) {
	for len(t.toks) == 0 {
		if !t.s.Scan() {
			if err := t.s.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		t.line++
		line := t.s.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		t.toks = strings.Fields(line)
	}
	tok := t.toks[0]
	t.toks = t.toks[1:]
	return tok, nil
}

// restOfLine drops the tokens left on the current line.
func (t *tokenizer) restOfLine() { t.toks = nil }

func (t *tokenizer) int() (int, error) {
	tok, err := t.next()
	if err != nil {
		return 0, t.errorf("expected integer: %v", err)
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, t.errorf("expected integer, got %q", tok)
	}
	return v, nil
}

func (t *tokenizer) float() (float64, error) {
	tok, err := t.next()
	if err != nil {
		return 0, t.errorf("expected number: %v", err)
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, t.errorf("expected number, got %q", tok)
	}
	return v, nil
}

func (t *tokenizer) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: "+format, append([]any{sdfmesh.ErrLoad, t.line}, args...)...)
}

// ReadMedit reads an ASCII medit .mesh file. Element labels are kept in
// CellBlock.Labels. Corners, Ridges and Required* sections are skipped.
func ReadMedit(r io.Reader) (*Mesh, error) {
	t := newTokenizer(r)
	m := &Mesh{}
	dim := 3
	sawVertices := false
	for {
		kw, err := t.next()
		if err == io.EOF {
			return nil, t.errorf("missing End keyword")
		} else if err != nil {
			return nil, t.errorf("%v", err)
		}
		switch {
		case strings.EqualFold(kw, "End"):
			if !sawVertices {
				return nil, t.errorf("no Vertices section")
			}
			if err := m.Validate(); err != nil {
				return nil, err
			}
			return m, nil
		case strings.EqualFold(kw, "MeshVersionFormatted"):
			if _, err := t.int(); err != nil {
				return nil, err
			}
		case strings.EqualFold(kw, "Dimension"):
			if dim, err = t.int(); err != nil {
				return nil, err
			}
			if dim != 2 && dim != 3 {
				return nil, t.errorf("unsupported dimension %d", dim)
			}
		case strings.EqualFold(kw, "Vertices"):
			n, err := t.int()
			if err != nil {
				return nil, err
			}
			m.Points = make([]r3.Vec, n)
			for i := range m.Points {
				var c [3]float64
				for j := 0; j < dim; j++ {
					if c[j], err = t.float(); err != nil {
						return nil, err
					}
				}
				if _, err := t.int(); err != nil { // vertex reference
					return nil, err
				}
				m.Points[i] = r3.Vec{X: c[0], Y: c[1], Z: c[2]}
			}
			sawVertices = true
		case strings.EqualFold(kw, "Corners"), strings.EqualFold(kw, "Ridges"),
			strings.HasPrefix(strings.ToLower(kw), "required"):
			n, err := t.int()
			if err != nil {
				return nil, err
			}
			for i := 0; i < n; i++ {
				if _, err := t.int(); err != nil {
					return nil, err
				}
			}
		default:
			typ := ""
			for _, sec := range meditSections {
				if strings.EqualFold(kw, sec.keyword) {
					typ = sec.typ
				}
			}
			if typ == "" {
				return nil, t.errorf("unsupported section %q", kw)
			}
			b, err := readMeditBlock(t, typ)
			if err != nil {
				return nil, err
			}
			m.Cells = append(m.Cells, b)
		}
	}
}

func readMeditBlock(t *tokenizer, typ string) (CellBlock, error) {
	n, err := t.int()
	if err != nil {
		return CellBlock{}, err
	}
	k := NodesPerCell(typ)
	b := CellBlock{Type: typ, Data: make([][]int, n), Labels: make([]int, n)}
	flat := make([]int, n*k)
	for i := range b.Data {
		c := flat[i*k : (i+1)*k : (i+1)*k]
		for j := range c {
			idx, err := t.int()
			if err != nil {
				return CellBlock{}, err
			}
			c[j] = idx - 1
		}
		if b.Labels[i], err = t.int(); err != nil {
			return CellBlock{}, err
		}
		b.Data[i] = c
	}
	return b, nil
}
