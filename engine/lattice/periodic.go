package lattice

import (
	"fmt"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/engine"
	"github.com/soypat/sdfmesh/internal/d3"
	"github.com/soypat/sdfmesh/meshio"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// MeshPeriodic meshes job.Domain inside job.Cuboid on a lattice whose
// opposite faces match, then replicates the cell along x, then y, then z
// until job.Copies cells are present.
func (e *Engine) MeshPeriodic(job *engine.PeriodicJob) error {
	axes, ok := copyAxes(job.Copies)
	switch {
	case !ok:
		return fmt.Errorf("%w: number of periodic copies must be 1, 2, 4 or 8, got %d", sdfmesh.ErrEngine, job.Copies)
	case job.Domain == nil:
		return fmt.Errorf("%w: nil domain", sdfmesh.ErrEngine)
	}
	box := d3.Box(job.Cuboid)
	size := box.Size()
	if !(size.X > 0 && size.Y > 0 && size.Z > 0) {
		return fmt.Errorf("%w: empty periodic cuboid %v", sdfmesh.ErrEngine, job.Cuboid)
	}
	diag := r3.Norm(size)
	r := &region{eval: job.Domain.Evaluate, tol: precision(job.BoundaryPrecision) * diag}
	step := spacing(job.Criteria, box, diag/2)
	l, err := newKuhn(box, step, e.maxNodes())
	if err != nil {
		return err
	}
	e.logger(job.Verbose).Info("periodic lattice", zap.Float64("spacing", step), zap.Int("nodes", l.numNodes()), zap.Int("copies", job.Copies))
	m, err := e.stuff(l, r, step, job.Seed, job.Criteria.Perturb)
	if err != nil {
		return err
	}
	if m, err = e.finish(m, r, step, &job.Common); err != nil {
		return err
	}
	out := m.volumeMesh()
	period := r3.Vec{
		X: float64(l.div[0]) * l.step.X,
		Y: float64(l.div[1]) * l.step.Y,
		Z: float64(l.div[2]) * l.step.Z,
	}
	for axis := 0; axis < axes; axis++ {
		var shift r3.Vec
		switch axis {
		case 0:
			shift.X = period.X
		case 1:
			shift.Y = period.Y
		case 2:
			shift.Z = period.Z
		}
		replicate(out, shift)
		weld(out, 1e-9*diag)
		dropInternalFaces(out)
	}
	return write(job.Output, out)
}

// copyAxes returns the number of axes a periodic cell is replicated along.
func copyAxes(copies int) (int, bool) {
	switch copies {
	case 1:
		return 0, true
	case 2:
		return 1, true
	case 4:
		return 2, true
	case 8:
		return 3, true
	}
	return 0, false
}

// replicate appends a copy of m translated by shift.
func replicate(m *meshio.Mesh, shift r3.Vec) {
	n := len(m.Points)
	for i := 0; i < n; i++ {
		m.Points = append(m.Points, r3.Add(m.Points[i], shift))
	}
	for bi := range m.Cells {
		b := &m.Cells[bi]
		count := len(b.Data)
		for i := 0; i < count; i++ {
			c := make([]int, len(b.Data[i]))
			for j, v := range b.Data[i] {
				c[j] = v + n
			}
			b.Data = append(b.Data, c)
			if b.Labels != nil {
				b.Labels = append(b.Labels, b.Labels[i])
			}
		}
	}
}

// dropInternalFaces removes triangles that appear twice with opposite
// orientation, which happens where welded copies meet.
func dropInternalFaces(m *meshio.Mesh) {
	for bi := range m.Cells {
		b := &m.Cells[bi]
		if b.Type != meshio.Triangle {
			continue
		}
		count := make(map[[3]int]int, len(b.Data))
		for _, c := range b.Data {
			count[sortedFace([3]int{c[0], c[1], c[2]})]++
		}
		kept := b.Data[:0]
		var labels []int
		for i, c := range b.Data {
			if count[sortedFace([3]int{c[0], c[1], c[2]})] > 1 {
				continue
			}
			kept = append(kept, c)
			if b.Labels != nil {
				labels = append(labels, b.Labels[i])
			}
		}
		b.Data = kept
		if b.Labels != nil {
			b.Labels = labels
		}
	}
}
