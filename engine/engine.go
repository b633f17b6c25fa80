// Package engine defines the boundary between the mesh pipeline and a
// refinement engine. An Engine receives a domain or a staged input file,
// a resolved criteria bundle and the path it must write its result to.
package engine

import (
	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/criteria"
	"github.com/soypat/sdfmesh/meshio"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Engine is a refinement engine. Every method blocks until the engine has
// written its output or failed. Volume and surface results are written in
// medit format to the job's Output path, RemeshSurface writes OFF.
//
// Field criteria and domains are invoked concurrently by engines and must
// be safe for concurrent use.
type Engine interface {
	// MeshDomain writes a tetrahedral mesh of job.Domain.
	MeshDomain(job *DomainJob) error
	// MeshSurface writes a triangle mesh of the boundary of job.Domain.
	MeshSurface(job *DomainJob) error
	// MeshSurfaceFile writes a tetrahedral mesh of the volume enclosed by
	// the closed OFF surface at job.Input.
	MeshSurfaceFile(job *SurfaceJob) error
	// MeshVoxelFile writes a tetrahedral mesh of the INR volume at job.Input.
	MeshVoxelFile(job *VoxelJob) error
	// RemeshSurface writes an OFF surface remeshed from the OFF surface at job.Input.
	RemeshSurface(job *RemeshJob) error
	// MeshPeriodic writes a tetrahedral mesh of the periodic domain
	// restricted to job.Cuboid, replicated job.Copies times.
	MeshPeriodic(job *PeriodicJob) error
	// Mesh2D returns a triangle mesh of a planar point set and constraints.
	Mesh2D(job *PlanarJob) (*meshio.Mesh, error)
}

// Common holds the fields shared by every job.
type Common struct {
	Criteria criteria.Bundle
	// Output is the path the engine writes its result to.
	Output  string
	Seed    int64
	Verbose bool
}

// DomainJob meshes an implicit domain.
type DomainJob struct {
	Common
	Domain   sdfmesh.Domain
	Features []sdfmesh.Polyline
	// BoundingRadius2 is the squared radius of the origin centered sphere
	// the engine may sample the domain in.
	BoundingRadius2 float64
	// BoundaryPrecision is the error bound for surface points, relative
	// to the bounding sphere radius.
	BoundaryPrecision float64
}

// SurfaceJob meshes the volume enclosed by a staged OFF surface.
type SurfaceJob struct {
	Common
	Input string
	// Reorient flips surfaces whose facets are oriented inwards.
	Reorient bool
}

// VoxelJob meshes an INR voxel volume.
type VoxelJob struct {
	Common
	Input string
	// WithFeatures protects the curves where labeled subdomains meet.
	WithFeatures bool
	// RelativeErrorBound bounds the surface error relative to the
	// volume's bounding box diagonal.
	RelativeErrorBound float64
}

// RemeshJob remeshes a staged OFF surface.
type RemeshJob struct {
	Common
	Input string
}

// PeriodicJob meshes a domain that repeats with the period of Cuboid.
type PeriodicJob struct {
	Common
	Domain   sdfmesh.Domain
	Cuboid   r3.Box
	Copies   int
	Features []sdfmesh.Polyline
	// BoundaryPrecision is the error bound for surface points, relative
	// to the cuboid diagonal.
	BoundaryPrecision float64
}

// PlanarJob meshes a planar point set. Constraints are pairs of indices
// into Points that must appear as mesh edges. Constraint loops bound the
// meshed region; without constraints the convex hull is meshed.
type PlanarJob struct {
	Points      []r2.Vec
	Constraints [][2]int
	// MaxCircumradiusShortestEdgeRatio bounds the triangle quality. Zero
	// disables quality refinement.
	MaxCircumradiusShortestEdgeRatio float64
	// MaxEdgeSize bounds the edge length. Zero is unconstrained.
	MaxEdgeSize float64
	LloydSteps  int
	Seed        int64
	Verbose     bool
}
