package lattice

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/engine"
	"github.com/soypat/sdfmesh/internal/d2"
	"github.com/soypat/sdfmesh/meshio"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// maxSteiner bounds the points refinement may add to a planar mesh.
const maxSteiner = 1 << 18

// Mesh2D returns a conforming Delaunay triangulation of the job's points
// and constraint segments, refined to the quality and size bounds.
func (e *Engine) Mesh2D(job *engine.PlanarJob) (*meshio.Mesh, error) {
	if err := checkPlanar(job); err != nil {
		return nil, err
	}
	log := e.logger(job.Verbose)
	p := newPlanar(job)
	if job.MaxEdgeSize > 0 {
		p.splitSegments(job.MaxEdgeSize)
	}
	if err := p.triangulate(rand.New(rand.NewSource(job.Seed))); err != nil {
		return nil, err
	}
	if job.MaxCircumradiusShortestEdgeRatio > 0 || job.MaxEdgeSize > 0 {
		if err := p.refine(job.MaxCircumradiusShortestEdgeRatio, job.MaxEdgeSize); err != nil {
			return nil, err
		}
	}
	for step := 0; step < job.LloydSteps; step++ {
		if err := p.lloyd(rand.New(rand.NewSource(job.Seed + int64(step) + 1))); err != nil {
			return nil, err
		}
	}
	m := p.mesh()
	log.Info("planar mesh done", zap.Int("points", len(m.Points)), zap.Int("triangles", m.NumCells(meshio.Triangle)))
	return m, nil
}

func checkPlanar(job *engine.PlanarJob) error {
	if len(job.Points) < 3 {
		return fmt.Errorf("%w: planar mesh needs at least 3 points, got %d", sdfmesh.ErrEngine, len(job.Points))
	}
	for i, p := range job.Points {
		if math.IsNaN(p.X+p.Y) || math.IsInf(p.X+p.Y, 0) {
			return fmt.Errorf("%w: non finite point %d", sdfmesh.ErrEngine, i)
		}
	}
	for i, c := range job.Constraints {
		if c[0] < 0 || c[1] < 0 || c[0] >= len(job.Points) || c[1] >= len(job.Points) || c[0] == c[1] {
			return fmt.Errorf("%w: invalid constraint %d %v", sdfmesh.ErrEngine, i, c)
		}
	}
	if job.MaxEdgeSize < 0 || job.MaxCircumradiusShortestEdgeRatio < 0 {
		return fmt.Errorf("%w: planar bounds must be non-negative", sdfmesh.ErrEngine)
	}
	return nil
}

// planar holds the point set, constraint subsegments and current
// triangulation of a planar mesh.
type planar struct {
	pts []r2.Vec
	// movable marks points added by refinement that do not lie on a segment.
	movable []bool
	segs    [][2]int
	// closed reports whether the constraints form loops bounding the region.
	closed bool
	tri    *delaunay
	box    d2.Box
}

func newPlanar(job *engine.PlanarJob) *planar {
	p := &planar{
		pts:     append([]r2.Vec(nil), job.Points...),
		movable: make([]bool, len(job.Points)),
		segs:    append([][2]int(nil), job.Constraints...),
		box:     d2.BoxOf(job.Points...),
	}
	degree := make(map[int]int)
	for _, s := range p.segs {
		degree[s[0]]++
		degree[s[1]]++
	}
	p.closed = len(p.segs) > 0
	for _, d := range degree {
		if d%2 != 0 {
			p.closed = false
		}
	}
	return p
}

func (p *planar) addPoint(v r2.Vec, movable bool) int {
	p.pts = append(p.pts, v)
	p.movable = append(p.movable, movable)
	return len(p.pts) - 1
}

// splitSegments divides every segment into pieces no longer than size.
func (p *planar) splitSegments(size float64) {
	var segs [][2]int
	for _, s := range p.segs {
		a, b := p.pts[s[0]], p.pts[s[1]]
		n := int(math.Ceil(r2.Norm(r2.Sub(b, a)) / size))
		prev := s[0]
		for i := 1; i < n; i++ {
			t := float64(i) / float64(n)
			next := p.addPoint(r2.Add(a, r2.Scale(t, r2.Sub(b, a))), false)
			segs = append(segs, [2]int{prev, next})
			prev = next
		}
		segs = append(segs, [2]int{prev, s[1]})
	}
	p.segs = segs
}

// triangulate builds the Delaunay triangulation of all points in a shuffled
// order and recovers the segments.
func (p *planar) triangulate(rng *rand.Rand) error {
	p.tri = newDelaunay(p.box, len(p.pts))
	for _, i := range rng.Perm(len(p.pts)) {
		p.tri.insert(p.pts[i], i)
	}
	return p.recoverSegments()
}

// recoverSegments splits subsegments missing from the triangulation at
// their midpoint until every subsegment is a mesh edge.
func (p *planar) recoverSegments() error {
	for added := 0; ; {
		missing := -1
		edges := p.tri.edges()
		for i, s := range p.segs {
			if !edges[edgeKey(s[0], s[1])] {
				missing = i
				break
			}
		}
		if missing < 0 {
			return nil
		}
		if added++; added > maxSteiner {
			return fmt.Errorf("%w: could not recover constraint segments", sdfmesh.ErrEngine)
		}
		p.splitSegment(missing)
	}
}

// splitSegment inserts the midpoint of subsegment i.
func (p *planar) splitSegment(i int) {
	s := p.segs[i]
	mid := p.addPoint(r2.Scale(0.5, r2.Add(p.pts[s[0]], p.pts[s[1]])), false)
	p.tri.insert(p.pts[mid], mid)
	p.segs[i] = [2]int{s[0], mid}
	p.segs = append(p.segs, [2]int{mid, s[1]})
}

// inside reports whether v lies in the meshed region.
func (p *planar) inside(v r2.Vec) bool {
	if !p.closed {
		return p.tri.inHull(v)
	}
	crossings := 0
	for _, s := range p.segs {
		a, b := p.pts[s[0]], p.pts[s[1]]
		if (a.Y > v.Y) != (b.Y > v.Y) {
			x := a.X + (v.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if v.X < x {
				crossings++
			}
		}
	}
	return crossings%2 == 1
}

// keep reports whether triangle v is part of the output.
func (p *planar) keep(v [3]int) bool {
	if p.tri.super(v) {
		return false
	}
	if !p.closed {
		return true
	}
	a, b, c := p.pts[v[0]], p.pts[v[1]], p.pts[v[2]]
	return p.inside(r2.Scale(1./3, r2.Add(a, r2.Add(b, c))))
}

// refine inserts circumcenters of triangles exceeding the ratio or edge
// bounds (Ruppert). Circumcenters encroaching a subsegment split the
// subsegment instead.
func (p *planar) refine(ratio, maxEdge float64) error {
	if ratio > 0 && ratio < math.Sqrt2 {
		ratio = math.Sqrt2 // smaller bounds do not terminate.
	}
	added := 0
	for {
		bad := p.badTriangles(ratio, maxEdge)
		if len(bad) == 0 {
			return nil
		}
		for _, t := range bad {
			if t.idx >= len(p.tri.tris) || p.tri.tris[t.idx].dead || p.tri.tris[t.idx].v != t.v {
				continue
			}
			if added++; added > maxSteiner {
				return fmt.Errorf("%w: planar refinement did not converge", sdfmesh.ErrEngine)
			}
			c := p.tri.tris[t.idx].c
			if s := p.encroached(c); s >= 0 {
				p.splitSegment(s)
				continue
			}
			if !p.inside(c) {
				// Split the longest edge instead of leaving the region.
				a, b := p.longestEdge(t.v)
				i := p.addPoint(r2.Scale(0.5, r2.Add(p.pts[a], p.pts[b])), true)
				p.tri.insert(p.pts[i], i)
				continue
			}
			i := p.addPoint(c, true)
			p.tri.insert(c, i)
		}
		if err := p.recoverSegments(); err != nil {
			return err
		}
	}
}

type triRef struct {
	idx int
	v   [3]int
}

func (p *planar) badTriangles(ratio, maxEdge float64) []triRef {
	var bad []triRef
	for i, t := range p.tri.tris {
		if t.dead || !p.keep(t.v) {
			continue
		}
		a, b, c := p.pts[t.v[0]], p.pts[t.v[1]], p.pts[t.v[2]]
		e1, e2, e3 := r2.Norm(r2.Sub(b, a)), r2.Norm(r2.Sub(c, b)), r2.Norm(r2.Sub(a, c))
		shortest := math.Min(e1, math.Min(e2, e3))
		longest := math.Max(e1, math.Max(e2, e3))
		if ratio > 0 && math.Sqrt(t.r2) > ratio*shortest || maxEdge > 0 && longest > maxEdge {
			bad = append(bad, triRef{idx: i, v: t.v})
		}
	}
	return bad
}

// encroached returns a subsegment whose diametral circle contains c, or -1.
func (p *planar) encroached(c r2.Vec) int {
	for i, s := range p.segs {
		a, b := p.pts[s[0]], p.pts[s[1]]
		if r2.Dot(r2.Sub(a, c), r2.Sub(b, c)) < 0 {
			return i
		}
	}
	return -1
}

func (p *planar) longestEdge(v [3]int) (int, int) {
	best, bi := -1.0, 0
	for i := 0; i < 3; i++ {
		if l := r2.Norm2(r2.Sub(p.pts[v[(i+1)%3]], p.pts[v[i]])); l > best {
			best, bi = l, i
		}
	}
	return v[bi], v[(bi+1)%3]
}

// lloyd moves every refinement point to the area weighted centroid of its
// incident triangles and rebuilds the triangulation.
func (p *planar) lloyd(rng *rand.Rand) error {
	sum := make([]r2.Vec, len(p.pts))
	area := make([]float64, len(p.pts))
	for _, t := range p.tri.tris {
		if t.dead || !p.keep(t.v) {
			continue
		}
		a, b, c := p.pts[t.v[0]], p.pts[t.v[1]], p.pts[t.v[2]]
		ctr := r2.Scale(1./3, r2.Add(a, r2.Add(b, c)))
		ar := 0.5 * math.Abs(d2.Orient(a, b, c))
		for _, v := range t.v {
			sum[v] = r2.Add(sum[v], r2.Scale(ar, ctr))
			area[v] += ar
		}
	}
	for i := range p.pts {
		if !p.movable[i] || area[i] == 0 {
			continue
		}
		v := r2.Scale(1/area[i], sum[i])
		if p.inside(v) && p.encroached(v) < 0 {
			p.pts[i] = v
		}
	}
	return p.triangulate(rng)
}

// mesh returns the triangles inside the region and the constraint
// subsegments.
func (p *planar) mesh() *meshio.Mesh {
	m := &meshio.Mesh{Points: make([]r3.Vec, len(p.pts))}
	for i, v := range p.pts {
		m.Points[i] = r3.Vec{X: v.X, Y: v.Y}
	}
	var tris [][]int
	for _, t := range p.tri.tris {
		if t.dead || !p.keep(t.v) {
			continue
		}
		tris = append(tris, []int{t.v[0], t.v[1], t.v[2]})
	}
	m.Cells = append(m.Cells, meshio.CellBlock{Type: meshio.Triangle, Data: tris})
	if len(p.segs) > 0 {
		lines := make([][]int, len(p.segs))
		for i, s := range p.segs {
			lines[i] = []int{p.tri.resolve(s[0]), p.tri.resolve(s[1])}
		}
		m.Cells = append(m.Cells, meshio.CellBlock{Type: meshio.Line, Data: lines})
	}
	compact(m)
	return m
}

func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// delaunay is an incremental Bowyer-Watson triangulation. Point indices
// are chosen by the caller. The super triangle uses indices -1, -2 and -3.
type delaunay struct {
	pos   map[int]r2.Vec
	tris  []dtri
	alias map[int]int // duplicate points to the index first inserted
	ndead int
}

type dtri struct {
	v    [3]int // counter clockwise
	c    r2.Vec // circumcenter
	r2   float64
	dead bool
}

func newDelaunay(box d2.Box, hint int) *delaunay {
	ctr := box.Center()
	size := box.Size()
	d := math.Max(1, math.Max(size.X, size.Y))
	t := &delaunay{pos: make(map[int]r2.Vec, hint+3), alias: make(map[int]int)}
	t.pos[-1] = r2.Vec{X: ctr.X - 20*d, Y: ctr.Y - d}
	t.pos[-2] = r2.Vec{X: ctr.X + 20*d, Y: ctr.Y - d}
	t.pos[-3] = r2.Vec{X: ctr.X, Y: ctr.Y + 20*d}
	t.addTri([3]int{-1, -2, -3})
	return t
}

func (t *delaunay) super(v [3]int) bool {
	return v[0] < 0 || v[1] < 0 || v[2] < 0
}

func (t *delaunay) addTri(v [3]int) {
	a, b, c := t.pos[v[0]], t.pos[v[1]], t.pos[v[2]]
	ctr, r2 := circumcircle(a, b, c)
	t.tris = append(t.tris, dtri{v: v, c: ctr, r2: r2})
}

// insert adds point id at p. Points coinciding with an existing point are
// not inserted.
func (t *delaunay) insert(p r2.Vec, id int) {
	var cavity []int
	for i := range t.tris {
		tr := &t.tris[i]
		if tr.dead {
			continue
		}
		d := r2.Norm2(r2.Sub(p, tr.c))
		if d < tr.r2*(1+1e-12) {
			cavity = append(cavity, i)
		}
	}
	for _, i := range cavity {
		for _, v := range t.tris[i].v {
			if q := t.pos[v]; v >= 0 && r2.Norm2(r2.Sub(q, p)) <= 1e-24*(1+r2.Norm2(p)) {
				t.alias[id] = v
				return
			}
		}
	}
	type dedge struct{ a, b int }
	count := make(map[[2]int]int)
	var boundary []dedge
	for _, i := range cavity {
		v := t.tris[i].v
		for j := 0; j < 3; j++ {
			count[edgeKey(v[j], v[(j+1)%3])]++
		}
	}
	for _, i := range cavity {
		v := t.tris[i].v
		for j := 0; j < 3; j++ {
			if count[edgeKey(v[j], v[(j+1)%3])] == 1 {
				boundary = append(boundary, dedge{v[j], v[(j+1)%3]})
			}
		}
		t.tris[i].dead = true
		t.ndead++
	}
	t.pos[id] = p
	for _, e := range boundary {
		t.addTri([3]int{e.a, e.b, id})
	}
	if t.ndead > len(t.tris)/2 {
		t.compact()
	}
}

// resolve returns the index point id was inserted under.
func (t *delaunay) resolve(id int) int {
	if orig, ok := t.alias[id]; ok {
		return orig
	}
	return id
}

func (t *delaunay) compact() {
	live := t.tris[:0]
	for _, tr := range t.tris {
		if !tr.dead {
			live = append(live, tr)
		}
	}
	t.tris = live
	t.ndead = 0
}

// edges returns the set of edges between real points. Edges to a
// duplicate point are reported under the duplicate's index too.
func (t *delaunay) edges() map[[2]int]bool {
	edges := make(map[[2]int]bool, 3*len(t.tris))
	for _, tr := range t.tris {
		if tr.dead {
			continue
		}
		for j := 0; j < 3; j++ {
			edges[edgeKey(tr.v[j], tr.v[(j+1)%3])] = true
		}
	}
	for dup, orig := range t.alias {
		for e := range edges {
			if e[0] == orig {
				edges[edgeKey(dup, e[1])] = true
			} else if e[1] == orig {
				edges[edgeKey(e[0], dup)] = true
			}
		}
	}
	return edges
}

// inHull reports whether p lies in a triangle not touching the super triangle.
func (t *delaunay) inHull(p r2.Vec) bool {
	for _, tr := range t.tris {
		if tr.dead || t.super(tr.v) {
			continue
		}
		a, b, c := t.pos[tr.v[0]], t.pos[tr.v[1]], t.pos[tr.v[2]]
		if d2.Orient(a, b, p) >= 0 && d2.Orient(b, c, p) >= 0 && d2.Orient(c, a, p) >= 0 {
			return true
		}
	}
	return false
}

func circumcircle(a, b, c r2.Vec) (r2.Vec, float64) {
	bx, by := b.X-a.X, b.Y-a.Y
	cx, cy := c.X-a.X, c.Y-a.Y
	d := 2 * (bx*cy - by*cx)
	if d == 0 {
		return a, math.Inf(1)
	}
	b2, c2 := bx*bx+by*by, cx*cx+cy*cy
	ux := (cy*b2 - by*c2) / d
	uy := (bx*c2 - cx*b2) / d
	return r2.Vec{X: a.X + ux, Y: a.Y + uy}, ux*ux + uy*uy
}
