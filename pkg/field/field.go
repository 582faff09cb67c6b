package field

import (
	"errors"
	"fmt"

	"fiberwarp/pkg/fiber"
)

// ErrOutOfBounds is returned by the sampling operations when a continuous
// index falls outside a field's interpolation domain. Callers decide the
// policy: the warper falls back to the unwarped position, the attributor
// treats it as fatal.
var ErrOutOfBounds = errors.New("continuous index outside field extent")

// VectorField is a 3D vector-valued field over a regular grid, stored as
// three interleaved components per voxel. Deformation fields are vector
// fields whose values are physical-space displacements.
type VectorField struct {
	Grid *Grid

	// Data holds 3 components per voxel in x-fastest voxel order.
	Data []float64
}

// NewVectorField allocates a zero-filled vector field over the grid.
func NewVectorField(g *Grid) *VectorField {
	return &VectorField{Grid: g, Data: make([]float64, 3*g.VoxelCount())}
}

// At returns the vector stored at voxel (i,j,k).
func (f *VectorField) At(i, j, k int) [3]float64 {
	o := 3 * f.Grid.offset(i, j, k)
	return [3]float64{f.Data[o], f.Data[o+1], f.Data[o+2]}
}

// Set stores a vector at voxel (i,j,k).
func (f *VectorField) Set(i, j, k int, v [3]float64) {
	o := 3 * f.Grid.offset(i, j, k)
	f.Data[o], f.Data[o+1], f.Data[o+2] = v[0], v[1], v[2]
}

// Sample evaluates the field at a continuous index with trilinear
// interpolation. It returns ErrOutOfBounds when the index lies outside
// the interpolation domain.
func (f *VectorField) Sample(ci [3]float64) ([3]float64, error) {
	var out [3]float64
	if err := trilinear(f.Grid, f.Data, 3, ci, out[:]); err != nil {
		return [3]float64{}, err
	}
	return out, nil
}

// HFieldToDisplacement converts the field in place from the h-field
// convention, where each voxel stores the absolute target position, to
// the relative-displacement convention used by the warper:
// displacement = h-field value - world position of the voxel.
func (f *VectorField) HFieldToDisplacement() {
	for k := 0; k < f.Grid.Size[2]; k++ {
		for j := 0; j < f.Grid.Size[1]; j++ {
			for i := 0; i < f.Grid.Size[0]; i++ {
				w := f.Grid.IndexToWorld([3]float64{float64(i), float64(j), float64(k)})
				h := f.At(i, j, k)
				f.Set(i, j, k, [3]float64{h[0] - w[0], h[1] - w[1], h[2] - w[2]})
			}
		}
	}
}

// TensorField is a 3D field of symmetric diffusion tensors over a regular
// grid, stored as 6 components per voxel in the same component order as
// fiber.Tensor.
type TensorField struct {
	Grid *Grid

	// Data holds 6 components per voxel in x-fastest voxel order.
	Data []float64
}

// NewTensorField allocates a zero-filled tensor field over the grid.
func NewTensorField(g *Grid) *TensorField {
	return &TensorField{Grid: g, Data: make([]float64, 6*g.VoxelCount())}
}

// At returns the tensor stored at voxel (i,j,k).
func (f *TensorField) At(i, j, k int) fiber.Tensor {
	o := 6 * f.Grid.offset(i, j, k)
	var t fiber.Tensor
	copy(t[:], f.Data[o:o+6])
	return t
}

// Set stores a tensor at voxel (i,j,k).
func (f *TensorField) Set(i, j, k int, t fiber.Tensor) {
	o := 6 * f.Grid.offset(i, j, k)
	copy(f.Data[o:o+6], t[:])
}

// Sample evaluates the field at a continuous index with trilinear
// interpolation, component-wise over the 6 symmetric components. It
// returns ErrOutOfBounds when the index lies outside the interpolation
// domain.
func (f *TensorField) Sample(ci [3]float64) (fiber.Tensor, error) {
	var t fiber.Tensor
	if err := trilinear(f.Grid, f.Data, 6, ci, t[:]); err != nil {
		return fiber.Tensor{}, err
	}
	return t, nil
}

// LabelVolume is a 3D integer grid used as the voxelization target. Its
// geometry is copied verbatim from a tensor field at allocation time and
// every voxel starts at zero.
type LabelVolume struct {
	Grid *Grid

	// Data holds one label per voxel in x-fastest voxel order.
	Data []int32
}

// NewLabelVolume allocates a zero-filled label volume sharing the given
// grid geometry.
func NewLabelVolume(g *Grid) *LabelVolume {
	return &LabelVolume{Grid: g, Data: make([]int32, g.VoxelCount())}
}

// At returns the label at voxel (i,j,k).
func (v *LabelVolume) At(i, j, k int) int32 {
	return v.Data[v.Grid.offset(i, j, k)]
}

// Set overwrites the label at voxel (i,j,k).
func (v *LabelVolume) Set(i, j, k int, label int32) {
	v.Data[v.Grid.offset(i, j, k)] = label
}

// Incr increments the count at voxel (i,j,k) by one.
func (v *LabelVolume) Incr(i, j, k int) {
	v.Data[v.Grid.offset(i, j, k)]++
}

// trilinear interpolates comps interleaved components at a continuous
// index, writing the result into out. Data layout is x-fastest voxel
// order with comps values per voxel.
func trilinear(g *Grid, data []float64, comps int, ci [3]float64, out []float64) error {
	if !g.InsideIndex(ci) {
		return fmt.Errorf("%w: index (%g, %g, %g)", ErrOutOfBounds, ci[0], ci[1], ci[2])
	}

	var i0, i1 [3]int
	var frac [3]float64
	for a := 0; a < 3; a++ {
		f := ci[a]
		i0[a] = int(f)
		// A sample exactly on the upper face keeps the interpolation
		// cell inside the grid.
		if i0[a] > g.Size[a]-2 {
			i0[a] = g.Size[a] - 2
			if i0[a] < 0 {
				i0[a] = 0
			}
		}
		i1[a] = i0[a] + 1
		if i1[a] > g.Size[a]-1 {
			i1[a] = g.Size[a] - 1
		}
		frac[a] = f - float64(i0[a])
	}

	for c := range out[:comps] {
		out[c] = 0
	}

	// Accumulate the 8 cell corners weighted by their trilinear factors.
	for dz := 0; dz < 2; dz++ {
		for dy := 0; dy < 2; dy++ {
			for dx := 0; dx < 2; dx++ {
				wx := 1 - frac[0]
				if dx == 1 {
					wx = frac[0]
				}
				wy := 1 - frac[1]
				if dy == 1 {
					wy = frac[1]
				}
				wz := 1 - frac[2]
				if dz == 1 {
					wz = frac[2]
				}
				w := wx * wy * wz
				if w == 0 {
					continue
				}

				ii, jj, kk := i0[0], i0[1], i0[2]
				if dx == 1 {
					ii = i1[0]
				}
				if dy == 1 {
					jj = i1[1]
				}
				if dz == 1 {
					kk = i1[2]
				}

				o := comps * g.offset(ii, jj, kk)
				for c := 0; c < comps; c++ {
					out[c] += w * data[o+c]
				}
			}
		}
	}
	return nil
}
