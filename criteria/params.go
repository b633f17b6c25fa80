package criteria

import (
	"errors"
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"
)

// Params holds the unresolved meshing criteria. Sizing fields accept any
// value Resolve understands. Zero values leave a criterion unconstrained
// and toggles off.
type Params struct {
	// EdgeSize bounds the length of mesh edges on protected feature edges.
	EdgeSize any
	// FacetAngle is a lower bound in degrees for the angles of surface facets.
	FacetAngle float64
	// FacetSize bounds the radius of the surface Delaunay balls.
	FacetSize any
	// FacetDistance bounds the distance between facet circumcenters and
	// the center of their surface Delaunay ball.
	FacetDistance any
	// CellRadiusEdgeRatio bounds the circumradius to shortest edge ratio
	// of tetrahedra.
	CellRadiusEdgeRatio float64
	// CellSize bounds the circumradius of tetrahedra. It is the only
	// criterion that accepts a per-subdomain table.
	CellSize any

	Lloyd   bool
	ODT     bool
	Perturb bool
	Exude   bool
	// ExudeTimeLimit bounds the exudation time in seconds. Zero is no limit.
	ExudeTimeLimit float64
	// ExudeSliverBound is the dihedral angle in degrees under which a cell
	// is a sliver. Zero uses the engine default.
	ExudeSliverBound float64
}

// Bundle is the resolved set of criteria for one engine invocation.
type Bundle struct {
	EdgeSize            Sizing
	FacetAngle          float64
	FacetSize           Sizing
	FacetDistance       Sizing
	CellRadiusEdgeRatio float64
	CellSize            Sizing

	Lloyd            bool
	ODT              bool
	Perturb          bool
	Exude            bool
	ExudeTimeLimit   float64
	ExudeSliverBound float64
}

// Resolve resolves every sizing criterion of p. Only CellSize may resolve
// to a Table.
func (p Params) Resolve() (Bundle, error) {
	b := Bundle{
		FacetAngle:          p.FacetAngle,
		CellRadiusEdgeRatio: p.CellRadiusEdgeRatio,
		Lloyd:               p.Lloyd,
		ODT:                 p.ODT,
		Perturb:             p.Perturb,
		Exude:               p.Exude,
		ExudeTimeLimit:      p.ExudeTimeLimit,
		ExudeSliverBound:    p.ExudeSliverBound,
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"facet angle", p.FacetAngle},
		{"cell radius edge ratio", p.CellRadiusEdgeRatio},
		{"exude time limit", p.ExudeTimeLimit},
		{"exude sliver bound", p.ExudeSliverBound},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return Bundle{}, errf("%s must be a non-negative number, got %g", f.name, f.v)
		}
	}
	for _, f := range []struct {
		name       string
		in         any
		out        *Sizing
		allowTable bool
	}{
		{"max_edge_size_at_feature_edges", p.EdgeSize, &b.EdgeSize, false},
		{"max_radius_surface_delaunay_ball", p.FacetSize, &b.FacetSize, false},
		{"max_facet_distance", p.FacetDistance, &b.FacetDistance, false},
		{"max_cell_circumradius", p.CellSize, &b.CellSize, true},
	} {
		s, err := Resolve(f.in)
		if err != nil {
			return Bundle{}, fmt.Errorf("%s: %w", f.name, err)
		}
		if _, ok := s.(Table); ok && !f.allowTable {
			return Bundle{}, errf("%s does not accept per-subdomain sizing", f.name)
		}
		*f.out = s
	}
	return b, nil
}

// RequireNoTable returns a resolution error if the bundle holds a
// per-subdomain table, which only labeled voxel domains support.
func (b Bundle) RequireNoTable() error {
	if _, ok := b.CellSize.(Table); ok {
		return errf("max_cell_circumradius per-subdomain sizing requires a labeled voxel domain")
	}
	return nil
}

// EdgeProtection reports whether feature edge protection was requested.
func (b Bundle) EdgeProtection() bool {
	v, f := Slots(b.EdgeSize)
	return f != nil || v > 0
}

// paramsFile is the YAML layout of Params. Sizing keys are kept as nodes so
// subdomain mappings preserve their order.
type paramsFile struct {
	EdgeSize            yaml.Node `yaml:"max_edge_size_at_feature_edges"`
	FacetAngle          float64   `yaml:"min_facet_angle"`
	FacetSize           yaml.Node `yaml:"max_radius_surface_delaunay_ball"`
	FacetDistance       yaml.Node `yaml:"max_facet_distance"`
	CellRadiusEdgeRatio float64   `yaml:"max_circumradius_edge_ratio"`
	CellSize            yaml.Node `yaml:"max_cell_circumradius"`
	Lloyd               bool      `yaml:"lloyd"`
	ODT                 bool      `yaml:"odt"`
	Perturb             bool      `yaml:"perturb"`
	Exude               bool      `yaml:"exude"`
	ExudeTimeLimit      float64   `yaml:"exude_time_limit"`
	ExudeSliverBound    float64   `yaml:"exude_sliver_bound"`
}

// LoadParams reads Params from YAML. Keys follow the snake_case criteria
// names, for example:
//
//	max_cell_circumradius:
//	  default: 0.5
//	  1: 0.1
//	lloyd: true
//
// Unknown keys are an error. The sizing values are resolved later by
// Params.Resolve.
func LoadParams(r io.Reader) (Params, error) {
	var f paramsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Params{}, errf("params: %v", err)
	}
	node := func(n yaml.Node) any {
		if n.Kind == 0 {
			return nil
		}
		return &n
	}
	return Params{
		EdgeSize:            node(f.EdgeSize),
		FacetAngle:          f.FacetAngle,
		FacetSize:           node(f.FacetSize),
		FacetDistance:       node(f.FacetDistance),
		CellRadiusEdgeRatio: f.CellRadiusEdgeRatio,
		CellSize:            node(f.CellSize),
		Lloyd:               f.Lloyd,
		ODT:                 f.ODT,
		Perturb:             f.Perturb,
		Exude:               f.Exude,
		ExudeTimeLimit:      f.ExudeTimeLimit,
		ExudeSliverBound:    f.ExudeSliverBound,
	}, nil
}
