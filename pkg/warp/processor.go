package warp

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"fiberwarp/pkg/fiber"
	"fiberwarp/pkg/field"
)

// ErrMissingTensorVolume is returned when voxelization is requested
// without a tensor field to copy the label volume geometry from.
var ErrMissingTensorVolume = errors.New("voxelization requires a tensor volume for label volume geometry")

// Result carries the outputs of one processing run.
type Result struct {
	// Bundle is the transformed output bundle. It is always produced.
	Bundle *fiber.Bundle

	// Labels is the voxelized label volume, nil unless voxelization was
	// requested.
	Labels *field.LabelVolume

	// WarpedPoints counts points actually displaced by the deformation
	// field; WarpFallbacks counts points that fell outside it.
	WarpedPoints  int
	WarpFallbacks int

	// VoxelsSkipped counts points that rounded outside the label volume.
	VoxelsSkipped int
}

// Processor runs the fiber transformation pipeline: for every point of
// every fiber it converts coordinates, applies the deformation field,
// resamples tensor data and rasterizes into the label volume, then
// assembles the transformed points into a fresh output bundle.
//
// Processing is sequential per fiber and per point. The input bundle is
// never mutated; every output point, fiber and bundle is newly built.
type Processor struct {
	params      *Params
	deformation *field.VectorField
	tensors     *field.TensorField
	logger      *log.Logger
}

// NewProcessor creates a processor with the given immutable configuration.
// A nil logger falls back to the package default.
func NewProcessor(params *Params, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{params: params, logger: logger}
}

// SetDeformationField supplies the displacement field used to warp
// geometry. The field must already be in relative-displacement
// convention; h-fields are converted at read time.
func (p *Processor) SetDeformationField(f *field.VectorField) {
	p.deformation = f
}

// SetTensorField supplies the tensor volume used for attribution and for
// the label volume geometry.
func (p *Processor) SetTensorField(f *field.TensorField) {
	p.tensors = f
}

// Process transforms the input bundle. It validates the configuration,
// allocates the label volume if voxelization was requested, runs the
// per-fiber loop and returns the assembled outputs. On any fatal error
// no partial result is returned.
func (p *Processor) Process(in *fiber.Bundle) (*Result, error) {
	for i := 0; i < 3; i++ {
		if in.Spacing[i] <= 0 {
			return nil, fmt.Errorf("bundle spacing must be strictly positive, got %v", in.Spacing)
		}
	}

	// Without a deformation field the geometry cannot change.
	noWarp := p.params.NoWarp || p.deformation == nil

	var labels *field.LabelVolume
	if p.params.Voxelize {
		if p.tensors == nil {
			return nil, ErrMissingTensorVolume
		}
		labels = field.NewLabelVolume(p.tensors.Grid)
	}

	p.logger.Debug("processing bundle",
		"fibers", len(in.Fibers),
		"points", in.PointCount(),
		"convention", p.params.Convention,
		"spacing", in.Spacing,
		"offset", in.ObjectToWorld.Offset,
		"noWarp", noWarp)

	tr := NewTransformer(p.params.Convention, in)
	warper := NewWarper(p.deformation, tr, p.logger)

	var attributor *Attributor
	if p.tensors != nil && !p.params.NoDataChange {
		attributor = NewAttributor(p.tensors, tr, p.params.PointRadius)
	}

	var voxelizer *Voxelizer
	if labels != nil {
		voxelizer = NewVoxelizer(labels, p.params.WriteMode, p.params.VoxelLabel, p.logger)
	}

	out := p.newOutputBundle(in, noWarp)
	res := &Result{Bundle: out, Labels: labels}

	id := 1
	for fi := range in.Fibers {
		src := &in.Fibers[fi]
		dst := fiber.Fiber{ID: id, Points: make([]fiber.Point, 0, len(src.Points))}

		for pi := range src.Points {
			pt, err := p.processPoint(&src.Points[pi], src.ID, pi, noWarp, warper, attributor, voxelizer, res)
			if err != nil {
				return nil, err
			}
			dst.Points = append(dst.Points, pt)
		}

		out.Fibers = append(out.Fibers, dst)
		id++
	}

	p.logger.Debug("processing done",
		"warped", res.WarpedPoints,
		"fallbacks", res.WarpFallbacks,
		"voxelsSkipped", res.VoxelsSkipped)
	return res, nil
}

// processPoint runs one point through the warp/voxelize/attribute chain
// and returns the assembled output point.
func (p *Processor) processPoint(src *fiber.Point, fiberID, pointIdx int, noWarp bool,
	warper *Warper, attributor *Attributor, voxelizer *Voxelizer, res *Result) (fiber.Point, error) {

	world, warped := warper.Warp(src.Position, fiberID, pointIdx)
	if warper.deformation != nil {
		if warped {
			res.WarpedPoints++
		} else {
			res.WarpFallbacks++
		}
	}

	if voxelizer != nil {
		if !voxelizer.Write(world, fiberID, pointIdx) {
			res.VoxelsSkipped++
		}
	}

	var out fiber.Point
	if p.params.NoDataChange {
		out = src.Clone()
	} else {
		out.Radius = src.Radius
		out.Red, out.Green, out.Blue = src.Red, src.Green, src.Blue
	}

	// In no-warp mode the stored position is kept verbatim; otherwise
	// the output is the displaced world coordinate, expressed in
	// physical units.
	if noWarp {
		out.Position = src.Position
	} else {
		out.Position = world
	}

	if attributor != nil {
		if err := attributor.Attribute(&out, world, fiberID, pointIdx); err != nil {
			return fiber.Point{}, err
		}
	} else if !p.params.NoDataChange {
		out.Tensor = src.Tensor
		for name, v := range src.Fields {
			out.SetField(name, v)
		}
	}

	return out, nil
}

// newOutputBundle builds the empty output bundle with the metadata rules
// for the run: no-warp output keeps the source spacing and object-to-world
// transform, warped output is in physical units and therefore gets unit
// spacing and an identity transform.
func (p *Processor) newOutputBundle(in *fiber.Bundle, noWarp bool) *fiber.Bundle {
	out := fiber.NewBundle()
	if noWarp {
		out.Spacing = in.Spacing
		out.ObjectToWorld = in.ObjectToWorld
	}
	out.Fibers = make([]fiber.Fiber, 0, len(in.Fibers))
	return out
}
