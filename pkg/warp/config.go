// Package warp implements the fiber transformation engine: coordinate
// conversion, deformation-field warping, tensor attribution and
// voxelization of fiber bundles into label volumes.
package warp

// Convention selects how a fiber point's stored position is interpreted.
// Upstream bundle formats differ: some store positions as continuous
// indices into a reference grid, others store pre-transformed world
// coordinates. The convention is chosen once per run and threaded through
// every conversion; mixing conventions within a run is an error.
type Convention int

const (
	// LocalIndex interprets a stored position directly as a continuous
	// index into the deformation and tensor grids. World coordinates are
	// derived as index*spacing + offset using the bundle's spacing and
	// object-to-world offset.
	LocalIndex Convention = iota

	// ObjectTransform interprets a stored position in the fiber's object
	// space and maps it through the bundle's object-to-world affine
	// transform. Field sampling converts the resulting world coordinate
	// through each grid's own geometry.
	ObjectTransform
)

// String returns the convention name used in logs and config files.
func (c Convention) String() string {
	switch c {
	case LocalIndex:
		return "local-index"
	case ObjectTransform:
		return "object-transform"
	default:
		return "unknown"
	}
}

// WriteMode selects the voxelizer's write policy.
type WriteMode int

const (
	// OverwriteLabel sets each touched voxel to a fixed label value.
	// Last writer wins when several points map to the same voxel; the
	// value is constant so the result is order-independent.
	OverwriteLabel WriteMode = iota

	// AccumulateCount increments each touched voxel by one per point.
	// This measures point density: a fiber with many samples inside one
	// voxel increments that voxel once per sample, not once per fiber.
	AccumulateCount
)

// Params is the immutable processing configuration, constructed once per
// run and passed by reference into each component. Per-point branching is
// driven only by this struct, never by global state.
type Params struct {
	// Convention selects the coordinate interpretation for the run.
	Convention Convention

	// NoWarp leaves the geometry untouched and only recomputes point
	// data. It is forced on when no deformation field is supplied.
	NoWarp bool

	// NoDataChange copies each input point's tensor and scalar fields to
	// the output verbatim instead of resampling them.
	NoDataChange bool

	// Voxelize enables rasterization of every processed point into a
	// label volume whose geometry is copied from the tensor field.
	Voxelize bool

	// WriteMode selects the voxel write policy when Voxelize is set.
	WriteMode WriteMode

	// VoxelLabel is the label written in OverwriteLabel mode.
	VoxelLabel int32

	// PointRadius is the display radius assigned to points whose tensor
	// data was recomputed.
	PointRadius float64
}
