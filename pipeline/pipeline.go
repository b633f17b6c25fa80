// Package pipeline drives a refinement engine. Every entry point validates
// its input, resolves the meshing criteria, stages intermediate files in
// the mesher's staging directory, invokes the engine and loads the result.
// Staged files are removed on every exit path. Files supplied by the
// caller are never modified.
//
// Errors wrap one of the error kinds of package sdfmesh.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/criteria"
	"github.com/soypat/sdfmesh/engine"
	"github.com/soypat/sdfmesh/inr"
	"github.com/soypat/sdfmesh/meshio"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"
)

const defaultPrecision = 1e-4

var kinds = []error{
	sdfmesh.ErrConstruction,
	sdfmesh.ErrResolution,
	sdfmesh.ErrStaging,
	sdfmesh.ErrEngine,
	sdfmesh.ErrLoad,
}

// Mesher runs meshing jobs on an engine. It is safe for concurrent use if
// its engine is.
type Mesher struct {
	eng engine.Engine
	dir string
	log *zap.Logger
}

// New returns a mesher staging intermediate files in stagingDir, which must
// be an existing directory.
func New(eng engine.Engine, stagingDir string, opts ...Option) (*Mesher, error) {
	if eng == nil {
		return nil, fmt.Errorf("%w: nil engine", sdfmesh.ErrConstruction)
	}
	info, err := os.Stat(stagingDir)
	if err != nil {
		return nil, fmt.Errorf("%w: staging directory: %w", sdfmesh.ErrStaging, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: staging path %q is not a directory", sdfmesh.ErrStaging, stagingDir)
	}
	m := &Mesher{eng: eng, dir: stagingDir, log: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// run tracks the files staged by one invocation.
type run struct {
	eng   engine.Engine
	dir   string
	log   *zap.Logger
	start time.Time
	paths []string
}

func (m *Mesher) begin(name string, verbose bool) *run {
	log := m.log.With(zap.String("run", name))
	if !verbose {
		log = log.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
	}
	return &run{eng: m.eng, dir: m.dir, log: log, start: time.Now()}
}

// stage returns a new unique path in the staging directory. The path is
// removed by cleanup whether or not it was created.
func (r *run) stage(ext string) string {
	p := filepath.Join(r.dir, "sdfmesh-"+uuid.NewString()+ext)
	r.paths = append(r.paths, p)
	return p
}

func (r *run) cleanup() error {
	var errs []error
	for _, p := range r.paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("%w: %w", sdfmesh.ErrStaging, err))
		}
	}
	r.paths = nil
	return errors.Join(errs...)
}

// finish removes the staged files and joins removal errors into err.
// A result is never returned together with an error.
func (r *run) finish(res **meshio.Mesh, err *error) {
	if cerr := r.cleanup(); cerr != nil {
		*err = errors.Join(*err, cerr)
	}
	if *err != nil {
		*res = nil
		return
	}
	r.log.Info("mesh loaded", zap.Duration("elapsed", time.Since(r.start)), zap.Int("points", len((*res).Points)))
}

// invoke calls the engine. Errors not carrying a kind are engine errors.
func (r *run) invoke(call func() error) error {
	r.log.Info("invoking engine")
	err := call()
	if err == nil {
		return nil
	}
	return withKind(sdfmesh.ErrEngine, err)
}

// load reads the engine output at path.
func (r *run) load(path string) (*meshio.Mesh, error) {
	m, err := meshio.ReadFile(path)
	if err != nil {
		return nil, withKind(sdfmesh.ErrLoad, err)
	}
	return validated(m)
}

func validated(m *meshio.Mesh) (*meshio.Mesh, error) {
	if m == nil || len(m.Points) == 0 {
		return nil, fmt.Errorf("%w: engine produced an empty mesh", sdfmesh.ErrLoad)
	}
	if err := m.Validate(); err != nil {
		return nil, withKind(sdfmesh.ErrLoad, err)
	}
	return m, nil
}

// withKind wraps err in kind unless it already wraps an error kind.
func withKind(kind, err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// stagingErr reports a failure to read or stage an input file. The cause
// is kept in the message only so the error carries a single kind.
func stagingErr(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", sdfmesh.ErrStaging, what, err)
}

func resolve(p criteria.Params, allowTable bool) (criteria.Bundle, error) {
	b, err := p.Resolve()
	if err != nil {
		return criteria.Bundle{}, err
	}
	if !allowTable {
		if err := b.RequireNoTable(); err != nil {
			return criteria.Bundle{}, err
		}
	}
	return b, nil
}

func checkPrecision(p float64) (float64, error) {
	switch {
	case math.IsNaN(p) || math.IsInf(p, 0) || p < 0:
		return 0, fmt.Errorf("%w: boundary precision must be a non-negative number, got %g", sdfmesh.ErrConstruction, p)
	case p == 0:
		return defaultPrecision, nil
	}
	return p, nil
}

// features collects the feature edges of d and extra, validating them if asked.
func features(d sdfmesh.Domain, extra []sdfmesh.Polyline, validate bool) ([]sdfmesh.Polyline, error) {
	lines := append(append([]sdfmesh.Polyline(nil), d.Features()...), extra...)
	if validate {
		if err := sdfmesh.ValidateFeatures(lines, 0); err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func (r *run) warnInertProtection(b criteria.Bundle, lines []sdfmesh.Polyline) {
	if b.EdgeProtection() && len(lines) == 0 {
		r.log.Warn("edge size at feature edges is set but the domain has no feature edges")
	}
}

func common(b criteria.Bundle, output string, seed int64, verbose bool) engine.Common {
	return engine.Common{Criteria: b, Output: output, Seed: seed, Verbose: verbose}
}

// VolumeFromDomain returns a tetrahedral mesh of d.
func (m *Mesher) VolumeFromDomain(d sdfmesh.Domain, opts Options) (*meshio.Mesh, error) {
	return m.fromDomain("volume", d, &opts, m.eng.MeshDomain)
}

// SurfaceFromDomain returns a triangle mesh of the boundary of d.
func (m *Mesher) SurfaceFromDomain(d sdfmesh.Domain, opts Options) (*meshio.Mesh, error) {
	return m.fromDomain("surface", d, &opts, m.eng.MeshSurface)
}

func (m *Mesher) fromDomain(name string, d sdfmesh.Domain, opts *Options, mesh func(*engine.DomainJob) error) (res *meshio.Mesh, err error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil domain", sdfmesh.ErrConstruction)
	}
	rad2, err := boundingRadius2(d, opts.BoundingSphereRadius)
	if err != nil {
		return nil, err
	}
	prec, err := checkPrecision(opts.BoundaryPrecision)
	if err != nil {
		return nil, err
	}
	lines, err := features(d, opts.Features, opts.ValidateFeatures)
	if err != nil {
		return nil, err
	}
	b, err := resolve(opts.Params, false)
	if err != nil {
		return nil, err
	}
	r := m.begin(name, opts.Verbose)
	defer r.finish(&res, &err)
	r.warnInertProtection(b, lines)
	job := &engine.DomainJob{
		Common:            common(b, r.stage(".mesh"), opts.Seed, opts.Verbose),
		Domain:            d,
		Features:          lines,
		BoundingRadius2:   rad2,
		BoundaryPrecision: prec,
	}
	if err := r.invoke(func() error { return mesh(job) }); err != nil {
		return nil, err
	}
	return r.load(job.Output)
}

// boundingRadius2 returns the squared bounding sphere radius for a domain.
func boundingRadius2(d sdfmesh.Domain, radius float64) (float64, error) {
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius < 0 {
		return 0, fmt.Errorf("%w: bounding sphere radius must be a non-negative number, got %g", sdfmesh.ErrConstruction, radius)
	}
	if radius > 0 {
		return radius * radius, nil
	}
	b := 1.01 * d.BoundingRadius2()
	if !(b > 0) || math.IsInf(b, 0) {
		return 0, fmt.Errorf("%w: domain bounding radius squared %g is not a positive number", sdfmesh.ErrConstruction, d.BoundingRadius2())
	}
	return b, nil
}

// VolumeFromSurfaceFile returns a tetrahedral mesh of the volume enclosed by
// the closed triangle surface at path. OFF, STL and medit files are read.
func (m *Mesher) VolumeFromSurfaceFile(path string, opts SurfaceFileOptions) (res *meshio.Mesh, err error) {
	b, err := resolve(opts.Params, false)
	if err != nil {
		return nil, err
	}
	r := m.begin("volume from surface", opts.Verbose)
	defer r.finish(&res, &err)
	in, err := r.stageSurface(path)
	if err != nil {
		return nil, err
	}
	job := &engine.SurfaceJob{
		Common:   common(b, r.stage(".mesh"), opts.Seed, opts.Verbose),
		Input:    in,
		Reorient: opts.Reorient,
	}
	if err := r.invoke(func() error { return m.eng.MeshSurfaceFile(job) }); err != nil {
		return nil, err
	}
	return r.load(job.Output)
}

// RemeshSurface returns a remeshed version of the triangle surface at path.
func (m *Mesher) RemeshSurface(path string, opts RemeshOptions) (res *meshio.Mesh, err error) {
	b, err := resolve(opts.Params, false)
	if err != nil {
		return nil, err
	}
	r := m.begin("remesh surface", opts.Verbose)
	defer r.finish(&res, &err)
	in, err := r.stageSurface(path)
	if err != nil {
		return nil, err
	}
	job := &engine.RemeshJob{
		Common: common(b, r.stage(".off"), opts.Seed, opts.Verbose),
		Input:  in,
	}
	if err := r.invoke(func() error { return m.eng.RemeshSurface(job) }); err != nil {
		return nil, err
	}
	return r.load(job.Output)
}

// stageSurface re-encodes the triangles of the surface file at path as a
// staged OFF file and returns its path.
func (r *run) stageSurface(path string) (string, error) {
	src, err := meshio.ReadFile(path)
	if err != nil {
		return "", stagingErr("reading surface", err)
	}
	tri := src.Block(meshio.Triangle)
	if tri == nil || len(tri.Data) == 0 {
		return "", fmt.Errorf("%w: surface %s has no triangles", sdfmesh.ErrStaging, path)
	}
	surf := &meshio.Mesh{Points: src.Points, Cells: []meshio.CellBlock{{Type: meshio.Triangle, Data: tri.Data}}}
	staged := r.stage(".off")
	if err := meshio.WriteFile(staged, surf); err != nil {
		return "", stagingErr("writing surface", err)
	}
	r.log.Info("staged surface", zap.String("input", path), zap.Int("triangles", len(tri.Data)))
	return staged, nil
}

// VolumeFromVoxels returns a tetrahedral mesh of the voxel grid g. Grids
// of unsigned integers are label volumes, every non-zero label is a
// subdomain. Floating point grids are level sets, negative inside.
// A per-subdomain CellSize table is accepted for label volumes.
func (m *Mesher) VolumeFromVoxels(g *inr.Grid, opts VoxelOptions) (res *meshio.Mesh, err error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil voxel grid", sdfmesh.ErrConstruction)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	b, err := resolveVoxel(opts.Params, g.Labeled())
	if err != nil {
		return nil, err
	}
	r := m.begin("volume from voxels", opts.Verbose)
	defer r.finish(&res, &err)
	in := r.stage(".inr")
	if err := inr.WriteFile(in, g); err != nil {
		return nil, withKind(sdfmesh.ErrStaging, err)
	}
	r.log.Info("staged voxels", zap.Ints("dims", g.Dims[:]))
	return r.voxel(in, b, &opts)
}

// VolumeFromVoxelFile returns a tetrahedral mesh of the INR file at path.
// The file is passed to the engine as is.
func (m *Mesher) VolumeFromVoxelFile(path string, opts VoxelOptions) (res *meshio.Mesh, err error) {
	h, err := readHeader(path)
	if err != nil {
		return nil, err
	}
	b, err := resolveVoxel(opts.Params, h.Type == inr.TypeUnsigned)
	if err != nil {
		return nil, err
	}
	r := m.begin("volume from voxel file", opts.Verbose)
	defer r.finish(&res, &err)
	return r.voxel(path, b, &opts)
}

func (r *run) voxel(in string, b criteria.Bundle, opts *VoxelOptions) (*meshio.Mesh, error) {
	job := &engine.VoxelJob{
		Common:             common(b, r.stage(".mesh"), opts.Seed, opts.Verbose),
		Input:              in,
		WithFeatures:       opts.WithFeatures,
		RelativeErrorBound: opts.RelativeErrorBound,
	}
	if err := r.invoke(func() error { return r.eng.MeshVoxelFile(job) }); err != nil {
		return nil, err
	}
	return r.load(job.Output)
}

func readHeader(path string) (inr.Header, error) {
	fp, err := os.Open(path)
	if err != nil {
		return inr.Header{}, stagingErr("opening voxel file", err)
	}
	defer fp.Close()
	h, err := inr.ReadHeader(fp)
	if err != nil {
		return inr.Header{}, stagingErr("reading voxel file", err)
	}
	return h, nil
}

// resolveVoxel resolves criteria for a voxel volume. Tables need labels.
func resolveVoxel(p criteria.Params, labeled bool) (criteria.Bundle, error) {
	b, err := resolve(p, true)
	if err != nil {
		return criteria.Bundle{}, err
	}
	if _, ok := b.CellSize.(criteria.Table); ok && !labeled {
		return criteria.Bundle{}, fmt.Errorf("%w: per-subdomain sizing requires a label volume, got a floating point grid", sdfmesh.ErrResolution)
	}
	return b, nil
}

// Mesh2D returns a triangle mesh of a planar point set. Each constraint is
// a pair of indices into points that must appear as a mesh edge. Closed
// constraint loops bound the meshed region; otherwise the convex hull of
// the points is meshed. Mesh points have a zero z coordinate.
func (m *Mesher) Mesh2D(points []r2.Vec, constraints [][2]int, opts PlanarOptions) (res *meshio.Mesh, err error) {
	if err := checkPlanar(points, constraints, &opts); err != nil {
		return nil, err
	}
	job := &engine.PlanarJob{
		Points:                           append([]r2.Vec(nil), points...),
		Constraints:                      append([][2]int(nil), constraints...),
		MaxCircumradiusShortestEdgeRatio: opts.MaxCircumradiusShortestEdgeRatio,
		MaxEdgeSize:                      opts.MaxEdgeSize,
		LloydSteps:                       opts.LloydSteps,
		Seed:                             opts.Seed,
		Verbose:                          opts.Verbose,
	}
	r := m.begin("planar", opts.Verbose)
	defer r.finish(&res, &err)
	if err := r.invoke(func() (err error) {
		res, err = m.eng.Mesh2D(job)
		return err
	}); err != nil {
		return nil, err
	}
	return validated(res)
}

func checkPlanar(points []r2.Vec, constraints [][2]int, opts *PlanarOptions) error {
	if len(points) < 3 {
		return fmt.Errorf("%w: planar meshing needs at least 3 points, got %d", sdfmesh.ErrConstruction, len(points))
	}
	for i, p := range points {
		if math.IsNaN(p.X+p.Y) || math.IsInf(p.X+p.Y, 0) {
			return fmt.Errorf("%w: point %d is not finite", sdfmesh.ErrConstruction, i)
		}
	}
	for i, c := range constraints {
		if c[0] < 0 || c[1] < 0 || c[0] >= len(points) || c[1] >= len(points) {
			return fmt.Errorf("%w: constraint %d references a point out of range %v", sdfmesh.ErrConstruction, i, c)
		}
		if points[c[0]] == points[c[1]] {
			return fmt.Errorf("%w: constraint %d has zero length", sdfmesh.ErrConstruction, i)
		}
	}
	switch {
	case !(opts.MaxCircumradiusShortestEdgeRatio >= 0) || math.IsInf(opts.MaxCircumradiusShortestEdgeRatio, 0):
		return fmt.Errorf("%w: invalid circumradius to shortest edge ratio %g", sdfmesh.ErrConstruction, opts.MaxCircumradiusShortestEdgeRatio)
	case !(opts.MaxEdgeSize >= 0) || math.IsInf(opts.MaxEdgeSize, 0):
		return fmt.Errorf("%w: invalid max edge size %g", sdfmesh.ErrConstruction, opts.MaxEdgeSize)
	case opts.LloydSteps < 0:
		return fmt.Errorf("%w: negative number of lloyd steps %d", sdfmesh.ErrConstruction, opts.LloydSteps)
	}
	return nil
}

// PeriodicVolume returns a tetrahedral mesh of the periodic domain d
// restricted to opts.Cuboid, replicated opts.Copies times along the
// periodic axes.
func (m *Mesher) PeriodicVolume(d sdfmesh.Domain, opts PeriodicOptions) (res *meshio.Mesh, err error) {
	c := opts.Cuboid
	switch {
	case d == nil:
		return nil, fmt.Errorf("%w: nil domain", sdfmesh.ErrConstruction)
	case !validCopies(opts.Copies):
		return nil, fmt.Errorf("%w: number of periodic copies must be 1, 2, 4 or 8, got %d", sdfmesh.ErrConstruction, opts.Copies)
	case !(c.Max.X > c.Min.X && c.Max.Y > c.Min.Y && c.Max.Z > c.Min.Z):
		return nil, fmt.Errorf("%w: empty periodic cuboid %v", sdfmesh.ErrConstruction, c)
	}
	prec, err := checkPrecision(opts.BoundaryPrecision)
	if err != nil {
		return nil, err
	}
	lines, err := features(d, opts.Features, opts.ValidateFeatures)
	if err != nil {
		return nil, err
	}
	b, err := resolve(opts.Params, false)
	if err != nil {
		return nil, err
	}
	r := m.begin("periodic", opts.Verbose)
	defer r.finish(&res, &err)
	r.warnInertProtection(b, lines)
	job := &engine.PeriodicJob{
		Common:            common(b, r.stage(".mesh"), opts.Seed, opts.Verbose),
		Domain:            d,
		Cuboid:            c,
		Copies:            opts.Copies,
		Features:          lines,
		BoundaryPrecision: prec,
	}
	if err := r.invoke(func() error { return m.eng.MeshPeriodic(job) }); err != nil {
		return nil, err
	}
	return r.load(job.Output)
}

func validCopies(n int) bool {
	switch n {
	case 1, 2, 4, 8:
		return true
	}
	return false
}
