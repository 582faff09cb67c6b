package warp

import (
	"github.com/charmbracelet/log"

	"fiberwarp/pkg/field"
)

// Warper displaces fiber points through an optional deformation field.
// With no field configured it passes world positions through unchanged.
type Warper struct {
	deformation *field.VectorField
	transformer *Transformer
	logger      *log.Logger
}

// NewWarper builds a warper. deformation may be nil, in which case Warp
// degrades to the plain native-to-world conversion.
func NewWarper(deformation *field.VectorField, tr *Transformer, logger *log.Logger) *Warper {
	return &Warper{deformation: deformation, transformer: tr, logger: logger}
}

// Warp converts a stored position to world coordinates and applies the
// deformation field. The sampled displacement is in physical units and is
// added directly to the world position.
//
// A point outside the deformation field's extent is a recoverable
// condition: a warning is logged and the unwarped world position is
// returned for that point only. The second return value reports whether
// a displacement was actually applied.
func (w *Warper) Warp(p [3]float64, fiberID, pointIdx int) ([3]float64, bool) {
	world := w.transformer.ToWorld(p)
	if w.deformation == nil {
		return world, false
	}

	ci, inside := w.transformer.IndexFromWorld(w.deformation.Grid, world)
	if !inside {
		w.logger.Warn("point outside deformation field, using original position",
			"fiber", fiberID, "point", pointIdx,
			"index", ci)
		return world, false
	}

	disp, err := w.deformation.Sample(ci)
	if err != nil {
		// Inside check already passed; a sampling error here means the
		// index sits exactly on the boundary numerics. Treat it the same
		// as out-of-bounds.
		w.logger.Warn("deformation sample failed, using original position",
			"fiber", fiberID, "point", pointIdx, "err", err)
		return world, false
	}

	return [3]float64{world[0] + disp[0], world[1] + disp[1], world[2] + disp[2]}, true
}
