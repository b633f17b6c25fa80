// Package lattice implements an in-process refinement engine. It stuffs a
// body centered cubic lattice of tetrahedra into the domain, clips the
// lattice at the zero level set and optionally relaxes the result.
//
// Facet angle and radius-edge ratio bounds are accepted but not enforced.
// Feature edges are not protected.
package lattice

import (
	"fmt"
	"math"
	"time"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/criteria"
	"github.com/soypat/sdfmesh/engine"
	"github.com/soypat/sdfmesh/internal/d3"
	"github.com/soypat/sdfmesh/inr"
	"github.com/soypat/sdfmesh/meshio"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultMaxNodes is the default lattice size limit.
const DefaultMaxNodes = 1 << 23

// Engine is the lattice refinement engine. The zero value is not usable,
// create engines with New.
type Engine struct {
	// MaxNodes bounds the number of lattice nodes. Larger meshes fail with
	// an engine error.
	MaxNodes int
	// Workers bounds the goroutines evaluating the domain. Zero uses GOMAXPROCS.
	Workers int

	log *zap.Logger
}

var _ engine.Engine = (*Engine)(nil)

// New returns a lattice engine logging to log. A nil log discards output.
func New(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{MaxNodes: DefaultMaxNodes, log: log.Named("lattice")}
}

func (e *Engine) logger(verbose bool) *zap.Logger {
	if verbose {
		return e.log
	}
	return e.log.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
}

// MeshDomain writes a tetrahedral mesh of job.Domain to job.Output.
func (e *Engine) MeshDomain(job *engine.DomainJob) error {
	m, err := e.meshDomain(job)
	if err != nil {
		return err
	}
	return write(job.Output, m.volumeMesh())
}

// MeshSurface writes the boundary of job.Domain to job.Output.
func (e *Engine) MeshSurface(job *engine.DomainJob) error {
	m, err := e.meshDomain(job)
	if err != nil {
		return err
	}
	return write(job.Output, m.surfaceMesh())
}

func (e *Engine) meshDomain(job *engine.DomainJob) (*tetMesh, error) {
	if job.Domain == nil {
		return nil, fmt.Errorf("%w: nil domain", sdfmesh.ErrEngine)
	}
	radius := math.Sqrt(job.BoundingRadius2)
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("%w: invalid bounding sphere radius squared %g", sdfmesh.ErrEngine, job.BoundingRadius2)
	}
	box := d3.NewBox(r3.Vec{}, d3.Elem(2*radius))
	r := &region{
		eval:   job.Domain.Evaluate,
		radius: radius,
		tol:    precision(job.BoundaryPrecision) * radius,
	}
	if len(job.Features) > 0 {
		e.logger(job.Verbose).Info("feature edges are not protected by the lattice engine", zap.Int("polylines", len(job.Features)))
	}
	return e.volume(box, radius, r, &job.Common)
}

// MeshSurfaceFile writes a tetrahedral mesh of the volume enclosed by the
// OFF surface at job.Input.
func (e *Engine) MeshSurfaceFile(job *engine.SurfaceJob) error {
	surf, err := readSurface(job.Input)
	if err != nil {
		return err
	}
	d, err := newSurfaceDomain(surf, job.Reorient)
	if err != nil {
		return err
	}
	m, err := e.meshSurfaceDomain(d, &job.Common)
	if err != nil {
		return err
	}
	return write(job.Output, m.volumeMesh())
}

// RemeshSurface writes the boundary of the volume enclosed by the OFF
// surface at job.Input as an OFF surface.
func (e *Engine) RemeshSurface(job *engine.RemeshJob) error {
	surf, err := readSurface(job.Input)
	if err != nil {
		return err
	}
	d, err := newSurfaceDomain(surf, true)
	if err != nil {
		return err
	}
	m, err := e.meshSurfaceDomain(d, &job.Common)
	if err != nil {
		return err
	}
	return write(job.Output, m.surfaceMesh())
}

func (e *Engine) meshSurfaceDomain(d *surfaceDomain, c *engine.Common) (*tetMesh, error) {
	size := d.surf.box.Size()
	diag := r3.Norm(size)
	box := d.surf.box.Enlarge(0.05 * diag)
	r := &region{eval: d.Evaluate, tol: 1e-4 * diag}
	return e.volume(box, diag/2, r, c)
}

func readSurface(path string) (*meshio.Mesh, error) {
	m, err := meshio.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading surface: %w", sdfmesh.ErrEngine, err)
	}
	return m, nil
}

// MeshVoxelFile writes a tetrahedral mesh of the INR volume at job.Input.
func (e *Engine) MeshVoxelFile(job *engine.VoxelJob) error {
	g, err := inr.ReadFile(job.Input)
	if err != nil {
		return fmt.Errorf("%w: reading voxels: %w", sdfmesh.ErrEngine, err)
	}
	d := newVoxelDomain(g)
	diag := r3.Norm(d.size)
	if !(diag > 0) {
		return fmt.Errorf("%w: voxel volume %v has no extent", sdfmesh.ErrEngine, g.Dims)
	}
	relErr := job.RelativeErrorBound
	if relErr <= 0 {
		relErr = 1e-3
	}
	r := &region{eval: d.Evaluate, tol: relErr * diag, label: d.label}
	if job.WithFeatures {
		e.logger(job.Verbose).Info("subdomain interfaces are not protected by the lattice engine")
	}
	box := d.box().Enlarge(0.5 * d3.Min(g.Spacing))
	m, err := e.volume(box, diag/2, r, &job.Common)
	if err != nil {
		return err
	}
	return write(job.Output, m.volumeMesh())
}

// volume stuffs a lattice over box and runs the optional relaxation passes.
// radius sets the default lattice spacing.
func (e *Engine) volume(box d3.Box, radius float64, r *region, c *engine.Common) (*tetMesh, error) {
	log := e.logger(c.Verbose)
	step := spacing(c.Criteria, box, radius)
	l, err := newBCC(box, step, e.maxNodes())
	if err != nil {
		return nil, err
	}
	log.Info("lattice", zap.Float64("spacing", step), zap.Int("nodes", l.numNodes()))
	m, err := e.stuff(l, r, step, c.Seed, c.Criteria.Perturb)
	if err != nil {
		return nil, err
	}
	return e.finish(m, r, step, c)
}

// finish relaxes and labels a clipped mesh.
func (e *Engine) finish(m *tetMesh, r *region, step float64, c *engine.Common) (*tetMesh, error) {
	log := e.logger(c.Verbose)
	if len(m.tets) == 0 {
		return nil, fmt.Errorf("%w: no cells inside the domain, is the domain empty or thinner than the lattice spacing %g", sdfmesh.ErrEngine, step)
	}
	minVol := 1e-12 * step * step * step
	if c.Criteria.Lloyd {
		log.Info("lloyd", zap.Int("moved", m.smooth(false, minVol)))
	}
	if c.Criteria.ODT {
		log.Info("odt", zap.Int("moved", m.smooth(true, minVol)))
	}
	m.assignLabels(r.label)
	if c.Criteria.Exude {
		limit := time.Duration(c.Criteria.ExudeTimeLimit * float64(time.Second))
		log.Info("exude", zap.Int("removed", m.exude(c.Criteria.ExudeSliverBound, limit)))
	}
	log.Info("mesh done", zap.Int("tetra", len(m.tets)))
	return m, nil
}

func (e *Engine) maxNodes() int {
	if e.MaxNodes <= 0 {
		return DefaultMaxNodes
	}
	return e.MaxNodes
}

func precision(p float64) float64 {
	if p <= 0 {
		return 1e-4
	}
	return p
}

// spacing returns the lattice spacing for a bundle: half the smallest
// positive length bound, or radius/8 when nothing is bounded.
func spacing(b criteria.Bundle, box d3.Box, radius float64) float64 {
	bounds := []float64{
		sizingBound(b.CellSize, box),
		sizingBound(b.FacetSize, box),
		sizingBound(b.EdgeSize, box),
	}
	if dist := sizingBound(b.FacetDistance, box); dist > 0 {
		bounds = append(bounds, math.Sqrt(8*radius*dist))
	}
	h := 0.0
	for _, v := range bounds {
		if v > 0 && (h == 0 || v < h) {
			h = v
		}
	}
	if h == 0 {
		return radius / 8
	}
	return h / 2
}

// sizingBound returns a representative bound of s. Fields are sampled on
// a coarse grid over box and their smallest positive value is used.
func sizingBound(s criteria.Sizing, box d3.Box) float64 {
	switch s := s.(type) {
	case criteria.Constant:
		return float64(s)
	case criteria.Table:
		return s.Min()
	case criteria.Field:
		const n = 5
		size := box.Size()
		lo := 0.0
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				for k := 0; k < n; k++ {
					p := r3.Add(box.Min, r3.Vec{
						X: size.X * float64(i) / (n - 1),
						Y: size.Y * float64(j) / (n - 1),
						Z: size.Z * float64(k) / (n - 1),
					})
					if v := s(p); v > 0 && (lo == 0 || v < lo) {
						lo = v
					}
				}
			}
		}
		return lo
	}
	return 0
}

func write(path string, m *meshio.Mesh) error {
	if err := meshio.WriteFile(path, m); err != nil {
		return fmt.Errorf("%w: writing result: %w", sdfmesh.ErrEngine, err)
	}
	return nil
}
