package pipeline

import (
	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/criteria"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// Option configures a Mesher.
type Option func(*Mesher)

// WithLogger sets the logger of the mesher and the runs it starts.
func WithLogger(log *zap.Logger) Option {
	return func(m *Mesher) {
		if log != nil {
			m.log = log
		}
	}
}

// Options configures meshing of an implicit domain.
type Options struct {
	criteria.Params
	// Features are protected in addition to the domain's own features.
	Features []sdfmesh.Polyline
	// BoundingSphereRadius is the radius of the origin centered sphere the
	// domain is sampled in. Zero uses the domain bound enlarged by 1%.
	BoundingSphereRadius float64
	// BoundaryPrecision is the error bound of boundary points relative to
	// the bounding sphere radius. Zero is 1e-4.
	BoundaryPrecision float64
	// ValidateFeatures rejects intersecting or degenerate feature edges
	// before invoking the engine.
	ValidateFeatures bool
	Seed             int64
	Verbose          bool
}

// SurfaceFileOptions configures meshing of the volume enclosed by a surface file.
type SurfaceFileOptions struct {
	criteria.Params
	// Reorient flips surfaces whose facets face inwards.
	Reorient bool
	Seed     int64
	Verbose  bool
}

// VoxelOptions configures meshing of a voxel volume.
type VoxelOptions struct {
	criteria.Params
	// WithFeatures protects the curves where labeled subdomains meet.
	WithFeatures bool
	// RelativeErrorBound bounds the surface error relative to the volume's
	// bounding box diagonal. Zero uses the engine default.
	RelativeErrorBound float64
	Seed               int64
	Verbose            bool
}

// RemeshOptions configures surface remeshing.
type RemeshOptions struct {
	criteria.Params
	Seed    int64
	Verbose bool
}

// PlanarOptions configures planar meshing.
type PlanarOptions struct {
	// MaxCircumradiusShortestEdgeRatio bounds triangle quality. Zero
	// disables quality refinement.
	MaxCircumradiusShortestEdgeRatio float64
	// MaxEdgeSize bounds edge lengths. Zero is unconstrained.
	MaxEdgeSize float64
	LloydSteps  int
	Seed        int64
	Verbose     bool
}

// PeriodicOptions configures meshing of a periodic domain.
type PeriodicOptions struct {
	criteria.Params
	// Cuboid is the fundamental cell of the periodic domain.
	Cuboid r3.Box
	// Copies is the number of fundamental cells in the output, one of 1, 2, 4 or 8.
	Copies   int
	Features []sdfmesh.Polyline
	// BoundaryPrecision is the error bound of boundary points relative to
	// the cuboid diagonal. Zero is 1e-4.
	BoundaryPrecision float64
	ValidateFeatures  bool
	Seed              int64
	Verbose           bool
}
