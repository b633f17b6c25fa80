package process

import (
	"fmt"
	"math"
	"os"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/criteria"
	"github.com/soypat/sdfmesh/engine"
	"github.com/soypat/sdfmesh/inr"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// Job kinds written to the job file.
const (
	KindVolume      = "volume"
	KindSurface     = "surface"
	KindSurfaceFile = "volume_from_surface"
	KindVoxelFile   = "volume_from_inr"
	KindRemesh      = "remesh_surface"
	KindPeriodic    = "periodic"
	KindPlanar      = "planar"
)

// Job is the YAML document handed to the external mesher. Implicit domains
// and sizing fields are sampled into float32 INR grids over Grid.
type Job struct {
	Kind    string `yaml:"kind"`
	Output  string `yaml:"output"`
	Input   string `yaml:"input,omitempty"`
	Seed    int64  `yaml:"seed"`
	Verbose bool   `yaml:"verbose"`

	// Grid is the box every sampled grid spans, corners included.
	Grid *Grid `yaml:"grid,omitempty"`
	// Domain is the path of the sampled domain.
	Domain            string         `yaml:"domain,omitempty"`
	Features          [][][3]float64 `yaml:"features,omitempty"`
	BoundingRadius2   float64        `yaml:"bounding_sphere_radius_squared,omitempty"`
	BoundaryPrecision float64        `yaml:"boundary_precision,omitempty"`

	Criteria *Criteria `yaml:"criteria,omitempty"`

	Reorient           bool    `yaml:"reorient,omitempty"`
	WithFeatures       bool    `yaml:"with_features,omitempty"`
	RelativeErrorBound float64 `yaml:"relative_error_bound,omitempty"`
	Copies             int     `yaml:"number_of_copies_in_output,omitempty"`

	Points                           [][2]float64 `yaml:"points,omitempty"`
	Constraints                      [][2]int     `yaml:"constraints,omitempty"`
	MaxCircumradiusShortestEdgeRatio float64      `yaml:"max_circumradius_shortest_edge_ratio,omitempty"`
	MaxEdgeSize                      float64      `yaml:"max_edge_size,omitempty"`
	LloydSteps                       int          `yaml:"num_lloyd_steps,omitempty"`
}

// Grid describes the sampling lattice of the staged INR grids.
type Grid struct {
	Min  [3]float64 `yaml:"min"`
	Max  [3]float64 `yaml:"max"`
	Dims [3]int     `yaml:"dims"`
}

// Criteria mirrors criteria.Bundle with sizing fields flattened to slots.
type Criteria struct {
	EdgeSize            Sizing  `yaml:"edge_size"`
	FacetAngle          float64 `yaml:"facet_angle"`
	FacetSize           Sizing  `yaml:"facet_size"`
	FacetDistance       Sizing  `yaml:"facet_distance"`
	CellRadiusEdgeRatio float64 `yaml:"cell_radius_edge_ratio"`
	CellSize            Sizing  `yaml:"cell_size"`

	Lloyd            bool    `yaml:"lloyd"`
	ODT              bool    `yaml:"odt"`
	Perturb          bool    `yaml:"perturb"`
	Exude            bool    `yaml:"exude"`
	ExudeTimeLimit   float64 `yaml:"exude_time_limit,omitempty"`
	ExudeSliverBound float64 `yaml:"exude_sliver_bound,omitempty"`
}

// Sizing is a sizing criterion. Value is criteria.FieldActive when Field
// names a sampled grid. Labels holds per subdomain bounds of a table.
type Sizing struct {
	Value  float64         `yaml:"value"`
	Field  string          `yaml:"field,omitempty"`
	Labels map[int]float64 `yaml:"labels,omitempty"`
}

// ReadJob decodes a job file.
func ReadJob(path string) (*Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var job Job
	if err := yaml.Unmarshal(b, &job); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", path, err)
	}
	return &job, nil
}

func (j *Job) write(path string) error {
	b, err := yaml.Marshal(j)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// fieldDomain lets sizing fields be sampled like domains.
type fieldDomain criteria.Field

func (f fieldDomain) Evaluate(p r3.Vec) float64    { return f(p) }
func (f fieldDomain) BoundingRadius2() float64     { return 0 }
func (f fieldDomain) Features() []sdfmesh.Polyline { return nil }

// stager writes the grids of a job next to each other and remembers them
// for removal.
type stager struct {
	e     *Engine
	dir   string
	box   r3.Box
	dims  sdfmesh.V3i
	paths []string
}

func (s *stager) grid() *Grid {
	return &Grid{
		Min:  [3]float64{s.box.Min.X, s.box.Min.Y, s.box.Min.Z},
		Max:  [3]float64{s.box.Max.X, s.box.Max.Y, s.box.Max.Z},
		Dims: s.dims,
	}
}

// sample writes the samples of d over the stager box and returns the file path.
func (s *stager) sample(d sdfmesh.Domain) (string, error) {
	g, err := inr.Sample(d, s.box, s.dims)
	if err != nil {
		return "", err
	}
	path := s.e.stagedPath(s.dir, ".inr")
	s.paths = append(s.paths, path)
	if err := inr.WriteFile(path, g); err != nil {
		return "", fmt.Errorf("%w: %w", sdfmesh.ErrStaging, err)
	}
	return path, nil
}

func (s *stager) sizing(v criteria.Sizing) (Sizing, error) {
	if t, ok := v.(criteria.Table); ok {
		out := Sizing{Value: t.Default, Labels: make(map[int]float64, len(t.Labels))}
		for i, l := range t.Labels {
			out.Labels[l] = t.Values[i]
		}
		return out, nil
	}
	value, field := criteria.Slots(v)
	if field == nil {
		return Sizing{Value: value}, nil
	}
	path, err := s.sample(fieldDomain(field))
	if err != nil {
		return Sizing{}, err
	}
	return Sizing{Value: value, Field: path}, nil
}

func (s *stager) bundle(b criteria.Bundle) (*Criteria, error) {
	c := &Criteria{
		FacetAngle:          b.FacetAngle,
		CellRadiusEdgeRatio: b.CellRadiusEdgeRatio,
		Lloyd:               b.Lloyd,
		ODT:                 b.ODT,
		Perturb:             b.Perturb,
		Exude:               b.Exude,
		ExudeTimeLimit:      b.ExudeTimeLimit,
		ExudeSliverBound:    b.ExudeSliverBound,
	}
	for _, f := range []struct {
		dst *Sizing
		src criteria.Sizing
	}{
		{&c.EdgeSize, b.EdgeSize},
		{&c.FacetSize, b.FacetSize},
		{&c.FacetDistance, b.FacetDistance},
		{&c.CellSize, b.CellSize},
	} {
		var err error
		if *f.dst, err = s.sizing(f.src); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func features(lines []sdfmesh.Polyline) [][][3]float64 {
	if len(lines) == 0 {
		return nil
	}
	out := make([][][3]float64, len(lines))
	for i, l := range lines {
		out[i] = make([][3]float64, len(l))
		for j, p := range l {
			out[i][j] = [3]float64{p.X, p.Y, p.Z}
		}
	}
	return out
}

// sphereBox returns the box around the origin centered sphere of squared radius r2.
func sphereBox(r2 float64) (r3.Box, error) {
	r := math.Sqrt(r2)
	if !(r > 0) || math.IsInf(r, 0) {
		return r3.Box{}, fmt.Errorf("%w: invalid bounding sphere radius squared %g", sdfmesh.ErrEngine, r2)
	}
	return r3.Box{Min: r3.Vec{X: -r, Y: -r, Z: -r}, Max: r3.Vec{X: r, Y: r, Z: r}}, nil
}

func commonJob(kind string, c *engine.Common) *Job {
	return &Job{Kind: kind, Output: c.Output, Seed: c.Seed, Verbose: c.Verbose}
}
