package lattice

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/internal/d3"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// region is the signed function the lattice is clipped against.
type region struct {
	eval func(p r3.Vec) float64
	// radius clamps values outside the origin centered sphere to be
	// positive. Zero disables the clamp.
	radius float64
	// tol is the absolute precision of boundary points.
	tol float64
	// label returns the subdomain label of a cell. nil labels every cell 1.
	label func(p r3.Vec) int
}

func (r *region) value(p r3.Vec) float64 {
	v := r.eval(p)
	if r.radius > 0 {
		v = math.Max(v, r3.Norm(p)-r.radius)
	}
	return v
}

// tetMesh is the working mesh of the lattice mesher.
type tetMesh struct {
	points []r3.Vec
	// fixed marks points smoothing must not move.
	fixed  []bool
	tets   [][4]int
	labels []int
}

// parallel calls fn over [0, n) split into chunks run on at most workers
// goroutines. Panics in fn are returned as engine errors.
func parallel(workers, n int, fn func(start, end int) error) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := n/(4*workers) + 1
	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < n; start += chunk {
		start, end := start, start+chunk
		if end > n {
			end = n
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: panic during domain evaluation: %v", sdfmesh.ErrEngine, r)
				}
			}()
			return fn(start, end)
		})
	}
	return g.Wait()
}

// evaluate fills vals[i] for every index of idx with the region's value at pos[idx[i]].
func (e *Engine) evaluate(r *region, pos []r3.Vec, idx []int, vals []float64) error {
	return parallel(e.Workers, len(idx), func(start, end int) error {
		for i := start; i < end; i++ {
			p := pos[idx[i]]
			v := r.value(p)
			if math.IsNaN(v) {
				return fmt.Errorf("%w: domain evaluated to NaN at %v", sdfmesh.ErrEngine, p)
			}
			vals[idx[i]] = v
		}
		return nil
	})
}

// stuff samples r on the nodes of g and returns the lattice tetrahedra
// clipped to the region. step is the lattice spacing.
func (e *Engine) stuff(g grid, r *region, step float64, seed int64, perturb bool) (*tetMesh, error) {
	n := g.numNodes()
	pos := make([]r3.Vec, n)
	all := make([]int, n)
	for i := range pos {
		pos[i] = g.pos(i)
		all[i] = i
	}
	val := make([]float64, n)
	if err := e.evaluate(r, pos, all, val); err != nil {
		return nil, err
	}
	if perturb {
		// Jitter nodes far enough inside that they cannot leave the domain.
		rng := rand.New(rand.NewSource(seed))
		jitter := 0.05 * step
		var moved []int
		for i := range pos {
			if val[i] < -step && !g.fixed(i) {
				pos[i] = r3.Add(pos[i], r3.Vec{
					X: jitter * (2*rng.Float64() - 1),
					Y: jitter * (2*rng.Float64() - 1),
					Z: jitter * (2*rng.Float64() - 1),
				})
				moved = append(moved, i)
			}
		}
		if err := e.evaluate(r, pos, moved, val); err != nil {
			return nil, err
		}
	}
	c := &clipper{
		g:    g,
		r:    r,
		pos:  pos,
		val:  val,
		cuts: make(map[[2]int]int),
	}
	return c.clip(e.Workers)
}

// clipper cuts lattice tetrahedra at the zero level set. Cut points are
// shared by the tetrahedra around a lattice edge. A cut within tol of one of
// its edge's nodes is snapped to that node, cells left with a repeated
// vertex are dropped.
type clipper struct {
	g   grid
	r   *region
	pos []r3.Vec
	val []float64

	cuts     map[[2]int]int // lattice edge (inside, outside) to cut index
	cutEdges [][2]int
	cutSnap  []int // node a cut is snapped to, or -1
	cutPos   []r3.Vec
	out      [][4]int
}

func (c *clipper) inside(n int) bool { return c.val[n] <= 0 }

func (c *clipper) cut(in, out int) int {
	e := [2]int{in, out}
	idx, ok := c.cuts[e]
	if !ok {
		idx = len(c.cutEdges)
		c.cuts[e] = idx
		c.cutEdges = append(c.cutEdges, e)
		snap := -1
		switch {
		case c.val[in] >= -c.r.tol:
			snap = in
		case c.val[out] <= c.r.tol:
			snap = out
		}
		c.cutSnap = append(c.cutSnap, snap)
	}
	return c.g.numNodes() + idx
}

// resolve returns the mesh point of id after snapping.
func (c *clipper) resolve(id int) int {
	nn := c.g.numNodes()
	if id < nn {
		return id
	}
	if n := c.cutSnap[id-nn]; n >= 0 {
		return n
	}
	return id
}

// reference returns the position of id with every cut at the middle of its
// lattice edge. Clipped cells are never flat in this geometry, so it
// orients cells consistently whatever the cut positions.
func (c *clipper) reference(id int) r3.Vec {
	nn := c.g.numNodes()
	if id < nn {
		return c.pos[id]
	}
	e := c.cutEdges[id-nn]
	return r3.Scale(0.5, r3.Add(c.pos[e[0]], c.pos[e[1]]))
}

// rank orders mesh points consistently across neighbouring tetrahedra.
func (c *clipper) rank(id int) [2]int64 {
	nn := c.g.numNodes()
	if id < nn {
		k := c.g.key(id)
		return [2]int64{k, k}
	}
	e := c.cutEdges[id-nn]
	a, b := c.g.key(e[0]), c.g.key(e[1])
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

func (c *clipper) less(a, b int) bool {
	ra, rb := c.rank(a), c.rank(b)
	if ra != rb {
		return ra[0] < rb[0] || ra[0] == rb[0] && ra[1] < rb[1]
	}
	return a < b
}

func (c *clipper) clip(workers int) (*tetMesh, error) {
	lattice := c.g.tetras()
	var partial [][4]int
	for _, t := range lattice {
		nin := 0
		for _, n := range t {
			if c.inside(n) {
				nin++
			}
		}
		switch nin {
		case 0:
		case 4:
			c.emit(t)
		default:
			for _, a := range t {
				for _, b := range t {
					if c.inside(a) && !c.inside(b) {
						c.cut(a, b)
					}
				}
			}
			partial = append(partial, t)
		}
	}
	c.cutPos = make([]r3.Vec, len(c.cutEdges))
	err := parallel(workers, len(c.cutEdges), func(start, end int) error {
		for i := start; i < end; i++ {
			e := c.cutEdges[i]
			if n := c.cutSnap[i]; n >= 0 {
				c.cutPos[i] = c.pos[n]
				continue
			}
			c.cutPos[i] = falsePosition(c.r, c.pos[e[0]], c.pos[e[1]], c.val[e[0]], c.val[e[1]])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, t := range partial {
		c.clipTetra(t)
	}
	m := &tetMesh{
		points: append(append([]r3.Vec(nil), c.pos...), c.cutPos...),
		fixed:  make([]bool, len(c.pos)+len(c.cutPos)),
		tets:   c.out,
	}
	for i := range c.pos {
		m.fixed[i] = c.g.fixed(i)
	}
	for i := range c.cutPos {
		m.fixed[len(c.pos)+i] = true
		if n := c.cutSnap[i]; n >= 0 {
			m.fixed[n] = true
		}
	}
	return m, nil
}

// clipTetra emits the part of a lattice tetrahedron inside the region.
func (c *clipper) clipTetra(t [4]int) {
	var in, out []int
	for _, n := range t {
		if c.inside(n) {
			in = append(in, n)
		} else {
			out = append(out, n)
		}
	}
	switch len(in) {
	case 1:
		a := in[0]
		c.emit([4]int{a, c.cut(a, out[0]), c.cut(a, out[1]), c.cut(a, out[2])})
	case 2:
		a, b := in[0], in[1]
		c.emitPrism([6]int{
			a, c.cut(a, out[0]), c.cut(a, out[1]),
			b, c.cut(b, out[0]), c.cut(b, out[1]),
		})
	case 3:
		d := out[0]
		c.emitPrism([6]int{
			in[0], in[1], in[2],
			c.cut(in[0], d), c.cut(in[1], d), c.cut(in[2], d),
		})
	}
}

// prismRotations maps each prism vertex to position 0 keeping the prism
// structure, vertical edges join i and i+3.
var prismRotations = [6][6]int{
	{0, 1, 2, 3, 4, 5},
	{1, 2, 0, 4, 5, 3},
	{2, 0, 1, 5, 3, 4},
	{3, 5, 4, 0, 2, 1},
	{4, 3, 5, 1, 0, 2},
	{5, 4, 3, 2, 1, 0},
}

// emitPrism splits a prism with triangles (0,1,2), (3,4,5) into three
// tetrahedra. Every quad face is split along the diagonal through its
// lowest ranked vertex so neighbours agree (Dompierre et al.).
func (c *clipper) emitPrism(v [6]int) {
	lowest := 0
	for i := 1; i < 6; i++ {
		if c.less(v[i], v[lowest]) {
			lowest = i
		}
	}
	var w [6]int
	for i, p := range prismRotations[lowest] {
		w[i] = v[p]
	}
	lower := func(a, b int) int {
		if c.less(a, b) {
			return a
		}
		return b
	}
	if c.less(lower(w[1], w[5]), lower(w[2], w[4])) {
		c.emit([4]int{w[0], w[1], w[2], w[5]})
		c.emit([4]int{w[0], w[1], w[5], w[4]})
		c.emit([4]int{w[0], w[4], w[5], w[3]})
		return
	}
	c.emit([4]int{w[0], w[1], w[2], w[4]})
	c.emit([4]int{w[0], w[4], w[2], w[5]})
	c.emit([4]int{w[0], w[4], w[5], w[3]})
}

// emit appends a positively oriented tetrahedron. Cells collapsed by
// snapping are dropped, their faces cancel in pairs with the neighbours.
func (c *clipper) emit(t [4]int) {
	vol := d3.TetVolume(c.reference(t[0]), c.reference(t[1]), c.reference(t[2]), c.reference(t[3]))
	if vol < 0 {
		t[1], t[2] = t[2], t[1]
	}
	for i := range t {
		t[i] = c.resolve(t[i])
	}
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			if t[i] == t[j] {
				return
			}
		}
	}
	c.out = append(c.out, t)
}

// falsePosition locates the boundary on the segment from the inside point a
// to the outside point b with the Illinois variant of regula falsi.
func falsePosition(r *region, a, b r3.Vec, fa, fb float64) r3.Vec {
	const maxIter = 64
	length := r3.Norm(r3.Sub(b, a))
	lo, hi := 0.0, 1.0
	flo, fhi := fa, fb
	side := 0
	t := 0.0
	for i := 0; i < maxIter; i++ {
		t = (lo*fhi - hi*flo) / (fhi - flo)
		if (hi-lo)*length <= r.tol || flo == 0 {
			break
		}
		ft := r.value(d3.Lerp(a, b, t))
		if ft > 0 {
			hi, fhi = t, ft
			if side == 1 {
				flo /= 2
			}
			side = 1
		} else {
			lo, flo = t, ft
			if side == -1 {
				fhi /= 2
			}
			side = -1
		}
		if ft == 0 {
			break
		}
	}
	return d3.Lerp(a, b, t)
}

// boundaryFaces returns the outward oriented faces that belong to a single
// tetrahedron, together with the index of that tetrahedron. Faces are
// counted with their orientation so opposite copies cancel.
func boundaryFaces(tets [][4]int) (faces [][3]int, owner []int) {
	type entry struct {
		face [2][3]int // first face seen with even, odd orientation
		tet  [2]int
		net  int
	}
	seen := make(map[[3]int]*entry, 2*len(tets))
	var order []*entry
	for ti, t := range tets {
		for _, f := range tetFaces {
			face := [3]int{t[f[0]], t[f[1]], t[f[2]]}
			k, odd := sortedFace(face), faceParity(face)
			e, ok := seen[k]
			if !ok {
				e = &entry{tet: [2]int{-1, -1}}
				seen[k] = e
				order = append(order, e)
			}
			if e.tet[odd] < 0 {
				e.face[odd], e.tet[odd] = face, ti
			}
			if odd == 0 {
				e.net++
			} else {
				e.net--
			}
		}
	}
	for _, e := range order {
		switch e.net {
		case 1:
			faces = append(faces, e.face[0])
			owner = append(owner, e.tet[0])
		case -1:
			faces = append(faces, e.face[1])
			owner = append(owner, e.tet[1])
		}
	}
	return faces, owner
}

// faceParity returns 1 if sorting f takes an odd permutation.
func faceParity(f [3]int) int {
	odd := 0
	if f[0] > f[1] {
		odd ^= 1
	}
	if f[1] > f[2] {
		odd ^= 1
	}
	if f[0] > f[2] {
		odd ^= 1
	}
	return odd
}

// tetFaces lists the outward faces of a positively oriented tetrahedron.
var tetFaces = [4][3]int{{1, 2, 3}, {0, 3, 2}, {0, 1, 3}, {0, 2, 1}}

func sortedFace(f [3]int) [3]int {
	if f[0] > f[1] {
		f[0], f[1] = f[1], f[0]
	}
	if f[1] > f[2] {
		f[1], f[2] = f[2], f[1]
	}
	if f[0] > f[1] {
		f[0], f[1] = f[1], f[0]
	}
	return f
}
