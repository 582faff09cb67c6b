package warp

import (
	"fmt"

	"fiberwarp/pkg/fiber"
	"fiberwarp/pkg/field"
)

// Attributor resamples a tensor field at warped point positions and
// derives the per-point scalar fields: fractional anisotropy, mean
// diffusivity, Frobenius norm and the three eigenvalues in descending
// order (l1 >= l2 >= l3).
type Attributor struct {
	tensors     *field.TensorField
	transformer *Transformer
	radius      float64
}

// NewAttributor builds an attributor over the given tensor field.
func NewAttributor(tensors *field.TensorField, tr *Transformer, radius float64) *Attributor {
	return &Attributor{tensors: tensors, transformer: tr, radius: radius}
}

// Attribute samples the tensor field at the given world position and
// stores the tensor plus derived scalars on the output point.
//
// Unlike warp sampling, a position outside the tensor field is fatal:
// tensor volumes are expected to be registered to cover the full fiber
// domain, so an out-of-bounds sample indicates a misconfigured run.
func (a *Attributor) Attribute(out *fiber.Point, world [3]float64, fiberID, pointIdx int) error {
	ci, inside := a.transformer.IndexFromWorld(a.tensors.Grid, world)
	if !inside {
		return fmt.Errorf("fiber %d point %d: position (%g, %g, %g) outside tensor volume: %w",
			fiberID, pointIdx, world[0], world[1], world[2], field.ErrOutOfBounds)
	}

	tensor, err := a.tensors.Sample(ci)
	if err != nil {
		return fmt.Errorf("fiber %d point %d: %w", fiberID, pointIdx, err)
	}

	ev := tensor.Eigenvalues()

	out.Tensor = tensor
	out.Radius = a.radius
	out.SetField(fiber.FieldFA, tensor.FractionalAnisotropy())
	out.SetField(fiber.FieldMD, tensor.MeanDiffusivity())
	out.SetField(fiber.FieldFro, tensor.FrobeniusNorm())
	out.SetField(fiber.FieldL1, ev[0])
	out.SetField(fiber.FieldL2, ev[1])
	out.SetField(fiber.FieldL3, ev[2])
	return nil
}
