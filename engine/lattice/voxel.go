package lattice

import (
	"math"

	"github.com/soypat/sdfmesh/internal/d3"
	"github.com/soypat/sdfmesh/inr"
	"gonum.org/v1/gonum/spatial/r3"
)

// voxelDomain interpolates an INR grid. Label grids are inside where the
// label is not zero, sample grids where the sample is not positive. Voxel
// (i,j,k) sits at (i*VX, j*VY, k*VZ).
type voxelDomain struct {
	g    *inr.Grid
	size r3.Vec // extent of the voxel centers
}

func newVoxelDomain(g *inr.Grid) *voxelDomain {
	return &voxelDomain{
		g: g,
		size: r3.Vec{
			X: float64(g.Dims[0]-1) * g.Spacing.X,
			Y: float64(g.Dims[1]-1) * g.Spacing.Y,
			Z: float64(g.Dims[2]-1) * g.Spacing.Z,
		},
	}
}

func (v *voxelDomain) box() d3.Box {
	return d3.Box{Max: v.size}
}

// sample returns the signed sample of a voxel. Labels map to -1/2 inside
// and 1/2 outside.
func (v *voxelDomain) sample(i, j, k int) float64 {
	s := v.g.At(i, j, k)
	if !v.g.Labeled() {
		return s
	}
	if s != 0 {
		return -0.5
	}
	return 0.5
}

// Evaluate trilinearly interpolates the samples. Outside the grid the value
// grows with the distance to it.
func (v *voxelDomain) Evaluate(p r3.Vec) float64 {
	b := v.box()
	q := d3.MaxElem(b.Min, d3.MinElem(b.Max, p))
	outside := math.Sqrt(d3.Dist2(p, q))
	x := [3]float64{q.X / v.g.Spacing.X, q.Y / v.g.Spacing.Y, q.Z / v.g.Spacing.Z}
	var i0 [3]int
	var t [3]float64
	for a := range x {
		n := v.g.Dims[a]
		if n == 1 {
			continue
		}
		f := math.Floor(x[a])
		i0[a] = int(f)
		if i0[a] >= n-1 {
			i0[a] = n - 2
		}
		t[a] = x[a] - float64(i0[a])
	}
	val := 0.0
	for c := 0; c < 8; c++ {
		w := 1.0
		var idx [3]int
		for a := 0; a < 3; a++ {
			bit := c >> a & 1
			idx[a] = i0[a] + bit
			if bit == 1 {
				w *= t[a]
			} else {
				w *= 1 - t[a]
			}
		}
		if w == 0 {
			continue
		}
		val += w * v.sample(idx[0], idx[1], idx[2])
	}
	if outside > 0 {
		return math.Max(val, outside)
	}
	return val
}

// label returns the label of the nearest labeled voxel among the eight
// around p, or 1 for sample grids. Cells clipped near the boundary may sit
// closest to an unlabeled voxel.
func (v *voxelDomain) label(p r3.Vec) int {
	if !v.g.Labeled() {
		return 1
	}
	x := [3]float64{p.X / v.g.Spacing.X, p.Y / v.g.Spacing.Y, p.Z / v.g.Spacing.Z}
	best, bestDist := 0, math.Inf(1)
	for c := 0; c < 8; c++ {
		var idx [3]int
		dist := 0.0
		for a := 0; a < 3; a++ {
			i := int(math.Floor(x[a])) + (c >> a & 1)
			i = max(0, min(v.g.Dims[a]-1, i))
			idx[a] = i
			dist += (x[a] - float64(i)) * (x[a] - float64(i))
		}
		l := int(v.g.At(idx[0], idx[1], idx[2]))
		if l != 0 && dist < bestDist {
			best, bestDist = l, dist
		}
	}
	if best == 0 {
		return 1
	}
	return best
}
