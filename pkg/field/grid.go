// Package field provides regular 3D grids (vector fields, tensor fields
// and integer label volumes) together with the coordinate conversions and
// trilinear sampling used to evaluate them at continuous positions.
package field

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Grid describes the geometry of a regular 3D grid: its extent in voxels,
// voxel spacing, world-space origin and a direction matrix mapping index
// axes to world axes. The mapping is
//
//	world = Direction * diag(Spacing) * index + Origin
//
// which matches the convention of medical image volumes.
type Grid struct {
	// Size is the extent in voxels along x, y, z. All values must be
	// positive.
	Size [3]int

	// Spacing is the physical size of a voxel along each axis in mm.
	Spacing [3]float64

	// Origin is the world coordinate of the center of voxel (0,0,0).
	Origin [3]float64

	// Direction maps index axes to world axes, stored row-major. It is
	// the identity for axis-aligned volumes.
	Direction [3][3]float64

	// inverse of Direction, precomputed at construction for
	// world-to-index conversion.
	inv [3][3]float64
}

// NewGrid validates the geometry and precomputes the inverse direction
// matrix. It returns an error if any spacing is non-positive, any size is
// non-positive, or the direction matrix is singular.
func NewGrid(size [3]int, spacing, origin [3]float64, direction [3][3]float64) (*Grid, error) {
	for i := 0; i < 3; i++ {
		if size[i] <= 0 {
			return nil, fmt.Errorf("grid size must be positive, got %v", size)
		}
		if spacing[i] <= 0 {
			return nil, fmt.Errorf("grid spacing must be strictly positive, got %v", spacing)
		}
	}

	d := mat.NewDense(3, 3, []float64{
		direction[0][0], direction[0][1], direction[0][2],
		direction[1][0], direction[1][1], direction[1][2],
		direction[2][0], direction[2][1], direction[2][2],
	})
	var dinv mat.Dense
	if err := dinv.Inverse(d); err != nil {
		return nil, fmt.Errorf("grid direction matrix is not invertible: %w", err)
	}

	g := &Grid{
		Size:      size,
		Spacing:   spacing,
		Origin:    origin,
		Direction: direction,
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			g.inv[i][j] = dinv.At(i, j)
		}
	}
	return g, nil
}

// NewAxisAlignedGrid is a convenience constructor for grids with an
// identity direction matrix.
func NewAxisAlignedGrid(size [3]int, spacing, origin [3]float64) (*Grid, error) {
	return NewGrid(size, spacing, origin, [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}})
}

// IndexToWorld converts a continuous index into a world coordinate.
func (g *Grid) IndexToWorld(ci [3]float64) [3]float64 {
	var scaled [3]float64
	for i := 0; i < 3; i++ {
		scaled[i] = ci[i] * g.Spacing[i]
	}
	var w [3]float64
	for i := 0; i < 3; i++ {
		w[i] = g.Direction[i][0]*scaled[0] + g.Direction[i][1]*scaled[1] + g.Direction[i][2]*scaled[2] + g.Origin[i]
	}
	return w
}

// WorldToIndex converts a world coordinate into a continuous index. The
// result may lie outside the grid extent; use InsideIndex or InsideVoxel
// to classify it.
func (g *Grid) WorldToIndex(w [3]float64) [3]float64 {
	var rel [3]float64
	for i := 0; i < 3; i++ {
		rel[i] = w[i] - g.Origin[i]
	}
	var ci [3]float64
	for i := 0; i < 3; i++ {
		ci[i] = (g.inv[i][0]*rel[0] + g.inv[i][1]*rel[1] + g.inv[i][2]*rel[2]) / g.Spacing[i]
	}
	return ci
}

// InsideIndex reports whether a continuous index lies inside the grid's
// interpolation domain, i.e. within [0, size-1] on every axis.
func (g *Grid) InsideIndex(ci [3]float64) bool {
	for i := 0; i < 3; i++ {
		if ci[i] < 0 || ci[i] > float64(g.Size[i]-1) {
			return false
		}
	}
	return true
}

// InsideVoxel reports whether a discrete voxel index is a valid voxel
// coordinate.
func (g *Grid) InsideVoxel(i, j, k int) bool {
	return i >= 0 && i < g.Size[0] &&
		j >= 0 && j < g.Size[1] &&
		k >= 0 && k < g.Size[2]
}

// VoxelCount returns the number of voxels in the grid.
func (g *Grid) VoxelCount() int {
	return g.Size[0] * g.Size[1] * g.Size[2]
}

// offset returns the flat data offset of voxel (i,j,k) in x-fastest order.
func (g *Grid) offset(i, j, k int) int {
	return (k*g.Size[1]+j)*g.Size[0] + i
}

// SameGeometry reports whether two grids have identical extent, spacing,
// origin and direction.
func (g *Grid) SameGeometry(o *Grid) bool {
	return g.Size == o.Size && g.Spacing == o.Spacing && g.Origin == o.Origin && g.Direction == o.Direction
}
