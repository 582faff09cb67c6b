package warp

import (
	"fiberwarp/pkg/fiber"
	"fiberwarp/pkg/field"
)

// Transformer converts fiber point positions between their stored native
// convention, world-physical coordinates and a target grid's continuous
// index space. Out-of-bounds conversions are reported through the inside
// flag; the transformer itself never fails, callers decide policy.
type Transformer struct {
	convention    Convention
	spacing       [3]float64
	objectToWorld fiber.Transform
}

// NewTransformer builds a transformer for one bundle under the given
// convention. The bundle's spacing and object-to-world transform are
// captured at construction; the transformer holds no other state.
func NewTransformer(convention Convention, b *fiber.Bundle) *Transformer {
	return &Transformer{
		convention:    convention,
		spacing:       b.Spacing,
		objectToWorld: b.ObjectToWorld,
	}
}

// ToWorld converts a stored position into world-physical coordinates.
//
// Under LocalIndex the stored position is a continuous index into the
// bundle's reference frame, so world = index*spacing + offset. Under
// ObjectTransform the full object-to-world affine applies.
func (t *Transformer) ToWorld(p [3]float64) [3]float64 {
	switch t.convention {
	case LocalIndex:
		var w [3]float64
		for i := 0; i < 3; i++ {
			w[i] = p[i]*t.spacing[i] + t.objectToWorld.Offset[i]
		}
		return w
	default:
		return t.objectToWorld.Apply(p)
	}
}

// IndexFromWorld converts a world coordinate into the continuous index
// space of a target grid, returning the index and whether it lies inside
// the grid's interpolation domain.
//
// Under LocalIndex the deformation and tensor grids share the bundle's
// frame, so the conversion inverts the bundle mapping rather than the
// grid's own geometry. Under ObjectTransform the grid's geometry applies.
func (t *Transformer) IndexFromWorld(g *field.Grid, w [3]float64) ([3]float64, bool) {
	var ci [3]float64
	switch t.convention {
	case LocalIndex:
		for i := 0; i < 3; i++ {
			ci[i] = (w[i] - t.objectToWorld.Offset[i]) / t.spacing[i]
		}
	default:
		ci = g.WorldToIndex(w)
	}
	return ci, g.InsideIndex(ci)
}
