package warp

import (
	"math"

	"github.com/charmbracelet/log"

	"fiberwarp/pkg/field"
)

// Voxelizer rasterizes point positions into a label volume. Each point
// updates at most one voxel.
type Voxelizer struct {
	volume *field.LabelVolume
	mode   WriteMode
	label  int32
	logger *log.Logger
}

// NewVoxelizer builds a voxelizer writing into the given label volume.
func NewVoxelizer(volume *field.LabelVolume, mode WriteMode, label int32, logger *log.Logger) *Voxelizer {
	return &Voxelizer{volume: volume, mode: mode, label: label, logger: logger}
}

// Write maps a world position to a discrete voxel and applies the write
// policy. Each axis of the continuous index is rounded to the nearest
// integer with ties-to-even, for reproducible classification of points
// that land exactly on voxel boundaries.
//
// A point that rounds outside the volume extent is skipped with a
// warning; the label volume is an auxiliary output and a stray point
// must not abort the run. Write reports whether a voxel was updated.
func (v *Voxelizer) Write(world [3]float64, fiberID, pointIdx int) bool {
	ci := v.volume.Grid.WorldToIndex(world)
	i := int(math.RoundToEven(ci[0]))
	j := int(math.RoundToEven(ci[1]))
	k := int(math.RoundToEven(ci[2]))

	if !v.volume.Grid.InsideVoxel(i, j, k) {
		v.logger.Warn("voxel index outside label volume, skipping",
			"fiber", fiberID, "point", pointIdx,
			"index", [3]int{i, j, k})
		return false
	}

	switch v.mode {
	case AccumulateCount:
		v.volume.Incr(i, j, k)
	default:
		v.volume.Set(i, j, k, v.label)
	}
	return true
}
