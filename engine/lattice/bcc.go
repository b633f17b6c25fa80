package lattice

import (
	"fmt"
	"math"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// grid is a background tetrahedralization the mesher clips against the
// domain boundary.
type grid interface {
	numNodes() int
	pos(n int) r3.Vec
	// key orders nodes for splitting clipped prisms. Nodes with equal keys
	// must produce identical splits, which is how periodic faces agree.
	key(n int) int64
	// fixed reports whether a node must not be moved by smoothing or perturbation.
	fixed(n int) bool
	tetras() [][4]int
}

// maxAxisDiv is the largest number of cells per axis that still fits the
// packed node keys.
const maxAxisDiv = 1<<20 - 1

func packKey(a, b, c int) int64 {
	return int64(a)<<42 | int64(b)<<21 | int64(c)
}

// bcc is a body centered cubic lattice for isotropic tetrahedron generation.
// Tetrahedra join the centers of two neighbouring cells with an edge of
// their shared face. Inspired by Tetrahedral Mesh Generation for Deformable
// Bodies, Molino, Bridson, Fedkiw.
//
// Corner nodes are indexed first, followed by the cell centers.
type bcc struct {
	origin r3.Vec
	step   float64
	div    [3]int // cells per axis
}

// newBCC returns a lattice of spacing step whose centers cover box.
func newBCC(box d3.Box, step float64, maxNodes int) (*bcc, error) {
	if !(step > 0) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("%w: invalid lattice spacing %g", sdfmesh.ErrEngine, step)
	}
	l := &bcc{step: step}
	lo := [3]float64{box.Min.X, box.Min.Y, box.Min.Z}
	hi := [3]float64{box.Max.X, box.Max.Y, box.Max.Z}
	var origin [3]float64
	for i := range origin {
		origin[i] = (math.Floor(lo[i]/step) - 1) * step
		div := math.Ceil((hi[i]-origin[i])/step) + 1
		if div > maxAxisDiv {
			return nil, fmt.Errorf("%w: lattice needs %g cells along axis %d", sdfmesh.ErrEngine, div, i)
		}
		l.div[i] = int(div)
	}
	l.origin = r3.Vec{X: origin[0], Y: origin[1], Z: origin[2]}
	if n := l.numNodes(); n > maxNodes {
		return nil, fmt.Errorf("%w: lattice of %d nodes exceeds limit of %d, increase the sizing bounds", sdfmesh.ErrEngine, n, maxNodes)
	}
	return l, nil
}

func (l *bcc) numCorners() int {
	return (l.div[0] + 1) * (l.div[1] + 1) * (l.div[2] + 1)
}

func (l *bcc) numNodes() int {
	return l.numCorners() + l.div[0]*l.div[1]*l.div[2]
}

func (l *bcc) corner(i, j, k int) int {
	return (i*(l.div[1]+1)+j)*(l.div[2]+1) + k
}

func (l *bcc) center(i, j, k int) int {
	return l.numCorners() + (i*l.div[1]+j)*l.div[2] + k
}

// coords returns the lattice coordinates of node n in units of half a step.
// Corners have even coordinates and centers odd ones.
func (l *bcc) coords(n int) (a, b, c int) {
	nc := l.numCorners()
	if n < nc {
		k := n % (l.div[2] + 1)
		j := n / (l.div[2] + 1) % (l.div[1] + 1)
		i := n / ((l.div[2] + 1) * (l.div[1] + 1))
		return 2 * i, 2 * j, 2 * k
	}
	n -= nc
	k := n % l.div[2]
	j := n / l.div[2] % l.div[1]
	i := n / (l.div[2] * l.div[1])
	return 2*i + 1, 2*j + 1, 2*k + 1
}

func (l *bcc) pos(n int) r3.Vec {
	a, b, c := l.coords(n)
	half := l.step / 2
	return r3.Vec{
		X: l.origin.X + float64(a)*half,
		Y: l.origin.Y + float64(b)*half,
		Z: l.origin.Z + float64(c)*half,
	}
}

func (l *bcc) key(n int) int64 { return int64(n) }

func (l *bcc) fixed(int) bool { return false }

// bccFaces holds the corner offsets of the lower face of a cell normal to
// each axis, in ring order.
var bccFaces = [3][4][3]int{
	{{0, 0, 0}, {0, 1, 0}, {0, 1, 1}, {0, 0, 1}},
	{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}},
	{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
}

// tetras meshes the lattice. Tetrahedra are built on the lower face of
// every cell, so each shared face is visited once.
func (l *bcc) tetras() [][4]int {
	tetras := make([][4]int, 0, 12*l.div[0]*l.div[1]*l.div[2])
	for i := 0; i < l.div[0]; i++ {
		for j := 0; j < l.div[1]; j++ {
			for k := 0; k < l.div[2]; k++ {
				ctr := l.center(i, j, k)
				cell := [3]int{i, j, k}
				for axis, face := range bccFaces {
					nb := cell
					nb[axis]--
					if nb[axis] < 0 {
						continue
					}
					nctr := l.center(nb[0], nb[1], nb[2])
					for r := range face {
						a, b := face[r], face[(r+1)%4]
						tetras = append(tetras, [4]int{
							ctr,
							l.corner(i+a[0], j+a[1], k+a[2]),
							l.corner(i+b[0], j+b[1], k+b[2]),
							nctr,
						})
					}
				}
			}
		}
	}
	return tetras
}

// kuhn is a cubic grid with every cube split into six tetrahedra around its
// main diagonal. The split is invariant under translation by whole cells,
// so opposite faces of the grid are triangulated identically.
type kuhn struct {
	origin r3.Vec
	step   r3.Vec
	div    [3]int
}

func newKuhn(box d3.Box, step float64, maxNodes int) (*kuhn, error) {
	size := box.Size()
	l := &kuhn{origin: box.Min}
	var steps [3]float64
	for i, s := range [3]float64{size.X, size.Y, size.Z} {
		div := math.Max(2, math.Ceil(s/step))
		if !(s > 0) || div > maxAxisDiv {
			return nil, fmt.Errorf("%w: cannot fit periodic lattice of spacing %g into cuboid side %g", sdfmesh.ErrEngine, step, s)
		}
		l.div[i] = int(div)
		steps[i] = s / div
	}
	l.step = r3.Vec{X: steps[0], Y: steps[1], Z: steps[2]}
	if n := l.numNodes(); n > maxNodes {
		return nil, fmt.Errorf("%w: lattice of %d nodes exceeds limit of %d, increase the sizing bounds", sdfmesh.ErrEngine, n, maxNodes)
	}
	return l, nil
}

func (l *kuhn) numNodes() int {
	return (l.div[0] + 1) * (l.div[1] + 1) * (l.div[2] + 1)
}

func (l *kuhn) node(i, j, k int) int {
	return (i*(l.div[1]+1)+j)*(l.div[2]+1) + k
}

func (l *kuhn) coords(n int) (i, j, k int) {
	k = n % (l.div[2] + 1)
	j = n / (l.div[2] + 1) % (l.div[1] + 1)
	i = n / ((l.div[2] + 1) * (l.div[1] + 1))
	return i, j, k
}

func (l *kuhn) pos(n int) r3.Vec {
	i, j, k := l.coords(n)
	return r3.Vec{
		X: l.origin.X + float64(i)*l.step.X,
		Y: l.origin.Y + float64(j)*l.step.Y,
		Z: l.origin.Z + float64(k)*l.step.Z,
	}
}

// key wraps the node coordinates by one period.
func (l *kuhn) key(n int) int64 {
	i, j, k := l.coords(n)
	return packKey(i%l.div[0], j%l.div[1], k%l.div[2])
}

// fixed reports whether n lies on the grid boundary.
func (l *kuhn) fixed(n int) bool {
	i, j, k := l.coords(n)
	return i == 0 || j == 0 || k == 0 || i == l.div[0] || j == l.div[1] || k == l.div[2]
}

// kuhnPaths lists the axis orders of the six tetrahedra of a cube.
var kuhnPaths = [6][3]int{
	{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
}

func (l *kuhn) tetras() [][4]int {
	tetras := make([][4]int, 0, 6*l.div[0]*l.div[1]*l.div[2])
	for i := 0; i < l.div[0]; i++ {
		for j := 0; j < l.div[1]; j++ {
			for k := 0; k < l.div[2]; k++ {
				for _, path := range kuhnPaths {
					c := [3]int{i, j, k}
					var tet [4]int
					tet[0] = l.node(c[0], c[1], c[2])
					for s, axis := range path {
						c[axis]++
						tet[s+1] = l.node(c[0], c[1], c[2])
					}
					tetras = append(tetras, tet)
				}
			}
		}
	}
	return tetras
}
