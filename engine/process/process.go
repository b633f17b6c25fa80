// Package process drives an external mesher executable. Every job is
// written as a YAML file, together with INR samples of implicit domains
// and sizing fields, and its path is passed as the last argument to the
// executable. The executable writes its result to the job's output path
// and signals failure with a non-zero exit status.
package process

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/engine"
	"github.com/soypat/sdfmesh/inr"
	"github.com/soypat/sdfmesh/meshio"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DefaultResolution is the default number of samples per axis of
	// staged domain and field grids.
	DefaultResolution = 64
	// stderrTail is the number of trailing stderr bytes kept in errors.
	stderrTail = 2048
)

// Engine runs an external mesher.
type Engine struct {
	// Path is the mesher executable.
	Path string
	// Args are passed before the job file path.
	Args []string
	// Env is appended to the environment of the mesher.
	Env []string
	// Dir holds the staged job files. Empty uses the directory of the job output.
	Dir string
	// Resolution is the number of samples per axis of staged grids.
	Resolution int

	log *zap.Logger
}

var _ engine.Engine = (*Engine)(nil)

// New returns an engine running the executable at path. A nil log discards output.
func New(path string, log *zap.Logger, args ...string) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		Path:       path,
		Args:       args,
		Resolution: DefaultResolution,
		log:        log.Named("process"),
	}
}

func (e *Engine) stagedPath(dir, ext string) string {
	return filepath.Join(dir, "sdfmesh-"+uuid.NewString()+ext)
}

func (e *Engine) newStager(output string, box r3.Box) *stager {
	dir := e.Dir
	if dir == "" {
		dir = filepath.Dir(output)
	}
	n := e.Resolution
	if n < 2 {
		n = DefaultResolution
	}
	return &stager{e: e, dir: dir, box: box, dims: sdfmesh.V3i{n, n, n}}
}

// MeshDomain samples job.Domain and runs a volume job.
func (e *Engine) MeshDomain(job *engine.DomainJob) error {
	return e.domainJob(KindVolume, job)
}

// MeshSurface samples job.Domain and runs a surface job.
func (e *Engine) MeshSurface(job *engine.DomainJob) error {
	return e.domainJob(KindSurface, job)
}

func (e *Engine) domainJob(kind string, job *engine.DomainJob) (err error) {
	if job.Domain == nil {
		return fmt.Errorf("%w: nil domain", sdfmesh.ErrEngine)
	}
	box, err := sphereBox(job.BoundingRadius2)
	if err != nil {
		return err
	}
	s := e.newStager(job.Output, box)
	defer func() { err = errors.Join(err, s.cleanup()) }()
	j := commonJob(kind, &job.Common)
	j.Grid = s.grid()
	j.Features = features(job.Features)
	j.BoundingRadius2 = job.BoundingRadius2
	j.BoundaryPrecision = job.BoundaryPrecision
	if j.Domain, err = s.sample(job.Domain); err != nil {
		return err
	}
	if j.Criteria, err = s.bundle(job.Criteria); err != nil {
		return err
	}
	return e.run(s, j)
}

// MeshSurfaceFile runs a volume from surface job. Sizing fields are
// sampled over the bounds of the input surface.
func (e *Engine) MeshSurfaceFile(job *engine.SurfaceJob) (err error) {
	m, err := meshio.ReadFile(job.Input)
	if err != nil {
		return fmt.Errorf("%w: reading surface: %w", sdfmesh.ErrEngine, err)
	}
	s := e.newStager(job.Output, m.Bounds())
	defer func() { err = errors.Join(err, s.cleanup()) }()
	j := commonJob(KindSurfaceFile, &job.Common)
	j.Input = job.Input
	j.Reorient = job.Reorient
	if j.Criteria, err = s.bundle(job.Criteria); err != nil {
		return err
	}
	j.Grid = s.grid()
	return e.run(s, j)
}

// MeshVoxelFile runs a volume from INR job. Sizing fields are sampled over
// the extent of the voxel volume.
func (e *Engine) MeshVoxelFile(job *engine.VoxelJob) (err error) {
	fp, err := os.Open(job.Input)
	if err != nil {
		return fmt.Errorf("%w: %w", sdfmesh.ErrEngine, err)
	}
	h, err := inr.ReadHeader(fp)
	fp.Close()
	if err != nil {
		return fmt.Errorf("%w: %w", sdfmesh.ErrEngine, err)
	}
	size := r3.Vec{
		X: float64(h.Dims[0]-1) * h.Spacing.X,
		Y: float64(h.Dims[1]-1) * h.Spacing.Y,
		Z: float64(h.Dims[2]-1) * h.Spacing.Z,
	}
	s := e.newStager(job.Output, r3.Box{Max: size})
	defer func() { err = errors.Join(err, s.cleanup()) }()
	j := commonJob(KindVoxelFile, &job.Common)
	j.Input = job.Input
	j.WithFeatures = job.WithFeatures
	j.RelativeErrorBound = job.RelativeErrorBound
	if j.Criteria, err = s.bundle(job.Criteria); err != nil {
		return err
	}
	j.Grid = s.grid()
	return e.run(s, j)
}

// RemeshSurface runs a remesh job. Sizing fields are sampled over the
// bounds of the input surface.
func (e *Engine) RemeshSurface(job *engine.RemeshJob) (err error) {
	m, err := meshio.ReadFile(job.Input)
	if err != nil {
		return fmt.Errorf("%w: reading surface: %w", sdfmesh.ErrEngine, err)
	}
	s := e.newStager(job.Output, m.Bounds())
	defer func() { err = errors.Join(err, s.cleanup()) }()
	j := commonJob(KindRemesh, &job.Common)
	j.Input = job.Input
	if j.Criteria, err = s.bundle(job.Criteria); err != nil {
		return err
	}
	j.Grid = s.grid()
	return e.run(s, j)
}

// MeshPeriodic samples job.Domain over job.Cuboid and runs a periodic job.
func (e *Engine) MeshPeriodic(job *engine.PeriodicJob) (err error) {
	if job.Domain == nil {
		return fmt.Errorf("%w: nil domain", sdfmesh.ErrEngine)
	}
	s := e.newStager(job.Output, job.Cuboid)
	defer func() { err = errors.Join(err, s.cleanup()) }()
	j := commonJob(KindPeriodic, &job.Common)
	j.Grid = s.grid()
	j.Copies = job.Copies
	j.Features = features(job.Features)
	j.BoundaryPrecision = job.BoundaryPrecision
	if j.Domain, err = s.sample(job.Domain); err != nil {
		return err
	}
	if j.Criteria, err = s.bundle(job.Criteria); err != nil {
		return err
	}
	return e.run(s, j)
}

// Mesh2D runs a planar job and reads back the medit result.
func (e *Engine) Mesh2D(job *engine.PlanarJob) (m *meshio.Mesh, err error) {
	dir := e.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	s := &stager{e: e, dir: dir}
	defer func() { err = errors.Join(err, s.cleanup()) }()
	output := e.stagedPath(dir, ".mesh")
	s.paths = append(s.paths, output)
	j := &Job{
		Kind:                             KindPlanar,
		Output:                           output,
		Seed:                             job.Seed,
		Verbose:                          job.Verbose,
		Points:                           points2(job.Points),
		Constraints:                      job.Constraints,
		MaxCircumradiusShortestEdgeRatio: job.MaxCircumradiusShortestEdgeRatio,
		MaxEdgeSize:                      job.MaxEdgeSize,
		LloydSteps:                       job.LloydSteps,
	}
	if err := e.run(s, j); err != nil {
		return nil, err
	}
	m, err = meshio.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("%w: reading planar result: %w", sdfmesh.ErrEngine, err)
	}
	return m, nil
}

func points2(pts []r2.Vec) [][2]float64 {
	out := make([][2]float64, len(pts))
	for i, p := range pts {
		out[i] = [2]float64{p.X, p.Y}
	}
	return out
}

// run writes the job file and runs the mesher on it.
func (e *Engine) run(s *stager, j *Job) error {
	path := e.stagedPath(s.dir, ".yaml")
	s.paths = append(s.paths, path)
	if err := j.write(path); err != nil {
		return fmt.Errorf("%w: writing job file: %w", sdfmesh.ErrStaging, err)
	}
	log := e.log
	if !j.Verbose {
		log = log.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
	}
	log.Info("running mesher", zap.String("path", e.Path), zap.String("kind", j.Kind), zap.String("job", path))
	cmd := exec.Command(e.Path, append(append([]string(nil), e.Args...), path)...)
	cmd.Env = append(os.Environ(), e.Env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %w: %s", sdfmesh.ErrEngine, filepath.Base(e.Path), err, tail(stderr.String()))
	}
	if out := strings.TrimSpace(stdout.String()); out != "" {
		log.Info("mesher output", zap.String("stdout", out))
	}
	return nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = "..." + s[len(s)-stderrTail:]
	}
	return s
}

// cleanup removes the staged files. Files that were never created are ignored.
func (s *stager) cleanup() error {
	var errs []error
	for _, p := range s.paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("%w: %w", sdfmesh.ErrStaging, err))
		}
	}
	s.paths = nil
	return errors.Join(errs...)
}
