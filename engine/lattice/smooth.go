package lattice

import (
	"math"
	"time"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/internal/d3"
	"github.com/soypat/sdfmesh/meshio"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	smoothPasses = 3
	// defaultSliverBound is the dihedral angle in degrees under which
	// exudation removes a boundary cell.
	defaultSliverBound = 5.0
)

// incidence maps every point to the tetrahedra containing it.
type incidence struct {
	start []int
	tets  []int
}

func newIncidence(npoints int, tets [][4]int) incidence {
	inc := incidence{start: make([]int, npoints+1), tets: make([]int, 4*len(tets))}
	for _, t := range tets {
		for _, v := range t {
			inc.start[v+1]++
		}
	}
	for i := 1; i <= npoints; i++ {
		inc.start[i] += inc.start[i-1]
	}
	next := append([]int(nil), inc.start[:npoints]...)
	for ti, t := range tets {
		for _, v := range t {
			inc.tets[next[v]] = ti
			next[v]++
		}
	}
	return inc
}

func (inc incidence) of(v int) []int {
	return inc.tets[inc.start[v]:inc.start[v+1]]
}

// boundaryPoints marks the points on the boundary of the mesh.
func boundaryPoints(npoints int, tets [][4]int) []bool {
	onBoundary := make([]bool, npoints)
	faces, _ := boundaryFaces(tets)
	for _, f := range faces {
		for _, v := range f {
			onBoundary[v] = true
		}
	}
	return onBoundary
}

// smooth relaxes the interior points of m. The plain variant moves a point
// to the mean of its incident cells' vertices, the weighted variant to the
// volume weighted mean of the incident cell centroids. Moves that would
// flatten or invert a cell are rejected.
func (m *tetMesh) smooth(weighted bool, minVol float64) (moved int) {
	onBoundary := boundaryPoints(len(m.points), m.tets)
	inc := newIncidence(len(m.points), m.tets)
	for pass := 0; pass < smoothPasses; pass++ {
		for v := range m.points {
			cells := inc.of(v)
			if len(cells) == 0 || onBoundary[v] || m.fixed[v] {
				continue
			}
			var target r3.Vec
			wsum := 0.0
			for _, ti := range cells {
				t := m.tets[ti]
				if weighted {
					a, b, c, d := m.points[t[0]], m.points[t[1]], m.points[t[2]], m.points[t[3]]
					vol := d3.TetVolume(a, b, c, d)
					ctr := r3.Scale(0.25, r3.Add(r3.Add(a, b), r3.Add(c, d)))
					target = r3.Add(target, r3.Scale(vol, ctr))
					wsum += vol
					continue
				}
				for _, u := range t {
					if u != v {
						target = r3.Add(target, m.points[u])
						wsum++
					}
				}
			}
			if !(wsum > 0) {
				continue
			}
			target = r3.Scale(1/wsum, target)
			old := m.points[v]
			m.points[v] = target
			if !m.valid(cells, minVol) {
				m.points[v] = old
				continue
			}
			moved++
		}
	}
	return moved
}

// valid reports whether the cells keep a positive volume above minVol.
func (m *tetMesh) valid(cells []int, minVol float64) bool {
	for _, ti := range cells {
		t := m.tets[ti]
		if d3.TetVolume(m.points[t[0]], m.points[t[1]], m.points[t[2]], m.points[t[3]]) <= minVol {
			return false
		}
	}
	return true
}

// exude removes cells lying entirely on the boundary whose smallest
// dihedral angle is below bound degrees. A positive limit bounds the time
// spent.
func (m *tetMesh) exude(bound float64, limit time.Duration) (removed int) {
	if bound <= 0 {
		bound = defaultSliverBound
	}
	minAngle := sdfmesh.DtoR(bound)
	var deadline time.Time
	if limit > 0 {
		deadline = time.Now().Add(limit)
	}
	onBoundary := boundaryPoints(len(m.points), m.tets)
	kept := m.tets[:0]
	keptLabels := m.labels[:0]
	for i, t := range m.tets {
		sliver := onBoundary[t[0]] && onBoundary[t[1]] && onBoundary[t[2]] && onBoundary[t[3]] &&
			(deadline.IsZero() || time.Now().Before(deadline)) &&
			d3.MinDihedral(m.points[t[0]], m.points[t[1]], m.points[t[2]], m.points[t[3]]) < minAngle
		if sliver {
			removed++
			continue
		}
		kept = append(kept, t)
		if m.labels != nil {
			keptLabels = append(keptLabels, m.labels[i])
		}
	}
	m.tets = kept
	if m.labels != nil {
		m.labels = keptLabels
	}
	return removed
}

// assignLabels labels every cell by its centroid.
func (m *tetMesh) assignLabels(label func(r3.Vec) int) {
	m.labels = make([]int, len(m.tets))
	for i, t := range m.tets {
		if label == nil {
			m.labels[i] = 1
			continue
		}
		ctr := r3.Scale(0.25, r3.Add(
			r3.Add(m.points[t[0]], m.points[t[1]]),
			r3.Add(m.points[t[2]], m.points[t[3]]),
		))
		m.labels[i] = label(ctr)
	}
}

// volumeMesh returns the cells and their boundary faces with unused
// points removed.
func (m *tetMesh) volumeMesh() *meshio.Mesh {
	faces, owner := boundaryFaces(m.tets)
	faceLabels := make([]int, len(faces))
	for i, ti := range owner {
		faceLabels[i] = m.labels[ti]
	}
	tets := make([][]int, len(m.tets))
	for i, t := range m.tets {
		tets[i] = []int{t[0], t[1], t[2], t[3]}
	}
	out := &meshio.Mesh{
		Points: m.points,
		Cells: []meshio.CellBlock{
			{Type: meshio.Triangle, Data: triangles(faces), Labels: faceLabels},
			{Type: meshio.Tetra, Data: tets, Labels: append([]int(nil), m.labels...)},
		},
	}
	compact(out)
	return out
}

// surfaceMesh returns the boundary faces of m with unused points removed.
func (m *tetMesh) surfaceMesh() *meshio.Mesh {
	faces, owner := boundaryFaces(m.tets)
	labels := make([]int, len(faces))
	for i, ti := range owner {
		labels[i] = m.labels[ti]
	}
	out := &meshio.Mesh{
		Points: m.points,
		Cells:  []meshio.CellBlock{{Type: meshio.Triangle, Data: triangles(faces), Labels: labels}},
	}
	compact(out)
	return out
}

func triangles(faces [][3]int) [][]int {
	data := make([][]int, len(faces))
	for i, f := range faces {
		data[i] = []int{f[0], f[1], f[2]}
	}
	return data
}

// compact drops the points no cell references and renumbers the cells.
func compact(m *meshio.Mesh) {
	remap := make([]int, len(m.Points))
	for i := range remap {
		remap[i] = -1
	}
	var points []r3.Vec
	for _, b := range m.Cells {
		for _, c := range b.Data {
			for j, v := range c {
				if remap[v] < 0 {
					remap[v] = len(points)
					points = append(points, m.Points[v])
				}
				c[j] = remap[v]
			}
		}
	}
	m.Points = points
}

// weld merges points closer than tol and renumbers the cells. Cells that
// collapse are kept, callers weld only coincident copies.
func weld(m *meshio.Mesh, tol float64) {
	if !(tol > 0) {
		return
	}
	type cellKey [3]int64
	keyOf := func(p r3.Vec) cellKey {
		return cellKey{int64(math.Floor(p.X / tol)), int64(math.Floor(p.Y / tol)), int64(math.Floor(p.Z / tol))}
	}
	buckets := make(map[cellKey][]int)
	remap := make([]int, len(m.Points))
	var points []r3.Vec
	for i, p := range m.Points {
		k := keyOf(p)
		found := -1
	search:
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for dz := int64(-1); dz <= 1; dz++ {
					for _, cand := range buckets[cellKey{k[0] + dx, k[1] + dy, k[2] + dz}] {
						if d3.Dist2(points[cand], p) <= tol*tol {
							found = cand
							break search
						}
					}
				}
			}
		}
		if found < 0 {
			found = len(points)
			points = append(points, p)
			buckets[k] = append(buckets[k], found)
		}
		remap[i] = found
	}
	for _, b := range m.Cells {
		for _, c := range b.Data {
			for j, v := range c {
				c[j] = remap[v]
			}
		}
	}
	m.Points = points
}
