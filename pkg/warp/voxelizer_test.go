package warp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiberwarp/pkg/field"
)

func labelVolume(t *testing.T, size int) *field.LabelVolume {
	t.Helper()
	g, err := field.NewAxisAlignedGrid([3]int{size, size, size}, [3]float64{1, 1, 1}, [3]float64{})
	require.NoError(t, err)
	return field.NewLabelVolume(g)
}

// TestTiesToEvenRounding verifies banker's rounding of the continuous
// index: half-way coordinates round to the even neighbor, so a point
// exactly on a voxel boundary is classified reproducibly.
func TestTiesToEvenRounding(t *testing.T) {
	vol := labelVolume(t, 4)
	v := NewVoxelizer(vol, OverwriteLabel, 1, discardLogger())

	cases := []struct {
		world [3]float64
		voxel [3]int
	}{
		{[3]float64{0.5, 0, 0}, [3]int{0, 0, 0}},  // 0.5 -> 0 (even)
		{[3]float64{1.5, 0, 0}, [3]int{2, 0, 0}},  // 1.5 -> 2 (even)
		{[3]float64{2.5, 2.5, 0}, [3]int{2, 2, 0}},
		{[3]float64{1.4, 2.6, 3}, [3]int{1, 3, 3}}, // plain nearest
	}
	for _, tc := range cases {
		for i := range vol.Data {
			vol.Data[i] = 0
		}
		require.True(t, v.Write(tc.world, 1, 0), "point %v should land inside", tc.world)
		assert.Equal(t, int32(1), vol.At(tc.voxel[0], tc.voxel[1], tc.voxel[2]),
			"point %v should write voxel %v", tc.world, tc.voxel)
	}
}

// TestEdgeClassification verifies that a half-voxel coordinate on the
// upper edge is inside only when ties-to-even keeps it on a valid voxel.
func TestEdgeClassification(t *testing.T) {
	// Size 3: continuous index 2.5 rounds to 2, a valid voxel.
	v3 := NewVoxelizer(labelVolume(t, 3), OverwriteLabel, 1, discardLogger())
	assert.True(t, v3.Write([3]float64{2.5, 0, 0}, 1, 0))

	// Size 4: continuous index 3.5 rounds to 4, outside the extent.
	v4 := NewVoxelizer(labelVolume(t, 4), OverwriteLabel, 1, discardLogger())
	assert.False(t, v4.Write([3]float64{3.5, 0, 0}, 1, 0))
}

// TestWriteOutsideSkips verifies the skip-with-warning policy leaves the
// volume untouched.
func TestWriteOutsideSkips(t *testing.T) {
	vol := labelVolume(t, 4)
	v := NewVoxelizer(vol, AccumulateCount, 1, discardLogger())

	assert.False(t, v.Write([3]float64{-3, 0, 0}, 1, 0))
	for _, label := range vol.Data {
		assert.Equal(t, int32(0), label)
	}
}
