// Package inr reads and writes voxel volumes in the INRIMAGE-4 format.
//
// A file is a 256 byte ASCII header followed by the raw voxel payload with
// the x index varying fastest:
//
//	#INRIMAGE-4#{
//	XDIM=64
//	YDIM=64
//	ZDIM=32
//	VDIM=1
//	TYPE=unsigned fixed
//	PIXSIZE=8 bits
//	CPU=decm
//	VX=1.000000
//	VY=1.000000
//	VZ=2.000000
//
// The header is padded with newlines and ends in "##}\n".
package inr

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"github.com/soypat/sdfmesh"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// HeaderSize is the size in bytes of an INR header.
	HeaderSize = 256
	magic      = "#INRIMAGE-4#{\n"
	terminator = "##}\n"

	TypeUnsigned = "unsigned fixed"
	TypeFloat    = "float"
)

// Grid is a single channel voxel volume. Data is one of []uint8, []uint16,
// []float32 or []float64 holding Dims.Prod() elements, x varying fastest.
type Grid struct {
	Dims    sdfmesh.V3i
	Spacing r3.Vec
	// Origin is the position of the first voxel. It is not stored in INR
	// files, grids read back have a zero origin.
	Origin r3.Vec
	Data   any
}

// NewGrid returns a grid after validating the element type and length of data.
func NewGrid(dims sdfmesh.V3i, spacing r3.Vec, data any) (*Grid, error) {
	g := &Grid{Dims: dims, Spacing: spacing, Data: data}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks the grid can be written. Errors wrap sdfmesh.ErrConstruction.
func (g *Grid) Validate() error {
	if !g.Dims.Positive() {
		return fmt.Errorf("%w: voxel dimensions must be positive, got %v", sdfmesh.ErrConstruction, g.Dims)
	}
	if err := g.validateSpacing(); err != nil {
		return err
	}
	_, _, n, err := elemInfo(g.Data)
	if err != nil {
		return err
	}
	if n != g.Dims.Prod() {
		return fmt.Errorf("%w: voxel data has %d elements, dimensions %v need %d", sdfmesh.ErrConstruction, n, g.Dims, g.Dims.Prod())
	}
	return nil
}

// elemInfo returns the INR type name, bit width and length of a payload.
func elemInfo(data any) (typ string, bits, n int, err error) {
	switch d := data.(type) {
	case []uint8:
		return TypeUnsigned, 8, len(d), nil
	case []uint16:
		return TypeUnsigned, 16, len(d), nil
	case []float32:
		return TypeFloat, 32, len(d), nil
	case []float64:
		return TypeFloat, 64, len(d), nil
	}
	return "", 0, 0, fmt.Errorf("%w: unsupported voxel element type %T", sdfmesh.ErrConstruction, data)
}

// Index returns the payload index of voxel (i, j, k).
func (g *Grid) Index(i, j, k int) int {
	return i + g.Dims[0]*(j+g.Dims[1]*k)
}

// At returns voxel (i, j, k) as a float64.
func (g *Grid) At(i, j, k int) float64 {
	idx := g.Index(i, j, k)
	switch d := g.Data.(type) {
	case []uint8:
		return float64(d[idx])
	case []uint16:
		return float64(d[idx])
	case []float32:
		return float64(d[idx])
	case []float64:
		return d[idx]
	}
	panic("inr: invalid grid data")
}

// Labeled reports whether the grid holds integer subdomain labels
// rather than signed samples.
func (g *Grid) Labeled() bool {
	switch g.Data.(type) {
	case []uint8, []uint16:
		return true
	}
	return false
}

// Header is the parsed INR header.
type Header struct {
	Dims    sdfmesh.V3i
	Spacing r3.Vec
	Type    string
	Bits    int
}

func (h Header) encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	fmt.Fprintf(&buf, "XDIM=%d\nYDIM=%d\nZDIM=%d\nVDIM=1\n", h.Dims[0], h.Dims[1], h.Dims[2])
	fmt.Fprintf(&buf, "TYPE=%s\nPIXSIZE=%d bits\nCPU=decm\n", h.Type, h.Bits)
	fmt.Fprintf(&buf, "VX=%f\nVY=%f\nVZ=%f\n", h.Spacing.X, h.Spacing.Y, h.Spacing.Z)
	pad := HeaderSize - len(terminator) - buf.Len()
	if pad < 0 {
		return nil, fmt.Errorf("%w: INR header exceeds %d bytes", sdfmesh.ErrConstruction, HeaderSize)
	}
	buf.Write(bytes.Repeat([]byte{'\n'}, pad))
	buf.WriteString(terminator)
	return buf.Bytes(), nil
}

// Write writes g to w in INR format.
func Write(w io.Writer, g *Grid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	typ, bits, _, _ := elemInfo(g.Data)
	hdr, err := Header{Dims: g.Dims, Spacing: g.Spacing, Type: typ, Bits: bits}.encode()
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(hdr); err != nil {
		return err
	}
	var b [8]byte
	switch d := g.Data.(type) {
	case []uint8:
		_, err = bw.Write(d)
	case []uint16:
		for _, v := range d {
			binary.LittleEndian.PutUint16(b[:2], v)
			if _, err = bw.Write(b[:2]); err != nil {
				break
			}
		}
	case []float32:
		for _, v := range d {
			binary.LittleEndian.PutUint32(b[:4], math32.Float32bits(v))
			if _, err = bw.Write(b[:4]); err != nil {
				break
			}
		}
	case []float64:
		for _, v := range d {
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
			if _, err = bw.Write(b[:]); err != nil {
				break
			}
		}
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}

// WriteFile writes g to the named file, creating or truncating it.
func WriteFile(name string, g *Grid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	fp, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := Write(fp, g); err != nil {
		fp.Close()
		return err
	}
	return fp.Close()
}

func loadErr(format string, args ...any) error {
	return fmt.Errorf("%w: inr: "+format, append([]any{sdfmesh.ErrLoad}, args...)...)
}

// ReadHeader reads and parses the 256 byte header from r.
// Errors wrap sdfmesh.ErrLoad.
func ReadHeader(r io.Reader) (Header, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Header{}, loadErr("reading header: %v", err)
	}
	s := string(raw[:])
	if !strings.HasPrefix(s, magic) {
		return Header{}, loadErr("bad magic %q", s[:len(magic)])
	}
	if !strings.HasSuffix(s, terminator) {
		return Header{}, loadErr("header not terminated by %q", terminator)
	}
	var h Header
	seen := make(map[string]bool)
	for _, line := range strings.Split(s[len(magic):HeaderSize-len(terminator)], "\n") {
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return Header{}, loadErr("malformed header line %q", line)
		}
		seen[key] = true
		var err error
		switch key {
		case "XDIM", "YDIM", "ZDIM":
			idx := int(key[0] - 'X')
			h.Dims[idx], err = strconv.Atoi(val)
		case "VDIM":
			if val != "1" {
				err = fmt.Errorf("only single channel volumes supported")
			}
		case "TYPE":
			h.Type = val
		case "PIXSIZE":
			bits, ok := strings.CutSuffix(val, " bits")
			if !ok {
				err = fmt.Errorf("missing bits unit")
				break
			}
			h.Bits, err = strconv.Atoi(bits)
		case "CPU":
			if val != "decm" {
				err = fmt.Errorf("unsupported byte order")
			}
		case "VX":
			h.Spacing.X, err = strconv.ParseFloat(val, 64)
		case "VY":
			h.Spacing.Y, err = strconv.ParseFloat(val, 64)
		case "VZ":
			h.Spacing.Z, err = strconv.ParseFloat(val, 64)
		}
		if err != nil {
			return Header{}, loadErr("header %s=%q: %v", key, val, err)
		}
	}
	for _, key := range []string{"XDIM", "YDIM", "ZDIM", "TYPE", "PIXSIZE"} {
		if !seen[key] {
			return Header{}, loadErr("header missing %s", key)
		}
	}
	if !h.Dims.Positive() {
		return Header{}, loadErr("non-positive dimensions %v", h.Dims)
	}
	return h, nil
}

// Read reads an INR volume from r. Grids read back have unit spacing where
// the header omits it.
func Read(r io.Reader) (*Grid, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	if h.Spacing == (r3.Vec{}) {
		h.Spacing = r3.Vec{X: 1, Y: 1, Z: 1}
	}
	n := h.Dims.Prod()
	br := bufio.NewReader(r)
	var data any
	switch {
	case h.Type == TypeUnsigned && h.Bits == 8:
		d := make([]uint8, n)
		_, err = io.ReadFull(br, d)
		data = d
	case h.Type == TypeUnsigned && h.Bits == 16:
		d := make([]uint16, n)
		err = binary.Read(br, binary.LittleEndian, d)
		data = d
	case h.Type == TypeFloat && h.Bits == 32:
		d := make([]float32, n)
		var b [4]byte
		for i := range d {
			if _, err = io.ReadFull(br, b[:]); err != nil {
				break
			}
			d[i] = math32.Float32frombits(binary.LittleEndian.Uint32(b[:]))
		}
		data = d
	case h.Type == TypeFloat && h.Bits == 64:
		d := make([]float64, n)
		err = binary.Read(br, binary.LittleEndian, d)
		data = d
	default:
		return nil, loadErr("unsupported voxel type %q with %d bits", h.Type, h.Bits)
	}
	if err != nil {
		return nil, loadErr("reading %d voxels: %v", n, err)
	}
	return &Grid{Dims: h.Dims, Spacing: h.Spacing, Data: data}, nil
}

// ReadFile reads an INR volume from the named file.
func ReadFile(name string) (*Grid, error) {
	fp, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return Read(fp)
}

// Sample evaluates d on a dims grid spanning box, corners included, and
// returns the signed values as a float32 grid with its origin at box.Min.
func Sample(d sdfmesh.Domain, box r3.Box, dims sdfmesh.V3i) (*Grid, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil domain", sdfmesh.ErrConstruction)
	}
	if dims[0] < 2 || dims[1] < 2 || dims[2] < 2 {
		return nil, fmt.Errorf("%w: sampling needs at least 2 voxels per axis, got %v", sdfmesh.ErrConstruction, dims)
	}
	size := r3.Sub(box.Max, box.Min)
	spacing := r3.Vec{
		X: size.X / float64(dims[0]-1),
		Y: size.Y / float64(dims[1]-1),
		Z: size.Z / float64(dims[2]-1),
	}
	g := &Grid{Dims: dims, Spacing: spacing, Origin: box.Min}
	if err := g.validateSpacing(); err != nil {
		return nil, err
	}
	data := make([]float32, dims.Prod())
	for k := 0; k < dims[2]; k++ {
		for j := 0; j < dims[1]; j++ {
			for i := 0; i < dims[0]; i++ {
				p := r3.Vec{
					X: box.Min.X + float64(i)*spacing.X,
					Y: box.Min.Y + float64(j)*spacing.Y,
					Z: box.Min.Z + float64(k)*spacing.Z,
				}
				data[g.Index(i, j, k)] = float32(d.Evaluate(p))
			}
		}
	}
	g.Data = data
	return g, nil
}

func (g *Grid) validateSpacing() error {
	if !(g.Spacing.X > 0 && g.Spacing.Y > 0 && g.Spacing.Z > 0) {
		return fmt.Errorf("%w: voxel spacing must be positive, got %v", sdfmesh.ErrConstruction, g.Spacing)
	}
	return nil
}
