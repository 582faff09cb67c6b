package field

import (
	"math"
	"testing"
)

// TestGridValidation verifies that invalid geometry is rejected.
func TestGridValidation(t *testing.T) {
	if _, err := NewAxisAlignedGrid([3]int{4, 4, 0}, [3]float64{1, 1, 1}, [3]float64{}); err == nil {
		t.Error("Expected error for zero grid size")
	}
	if _, err := NewAxisAlignedGrid([3]int{4, 4, 4}, [3]float64{1, -1, 1}, [3]float64{}); err == nil {
		t.Error("Expected error for negative spacing")
	}
	if _, err := NewGrid([3]int{4, 4, 4}, [3]float64{1, 1, 1}, [3]float64{},
		[3][3]float64{{1, 0, 0}, {1, 0, 0}, {0, 0, 1}}); err == nil {
		t.Error("Expected error for singular direction matrix")
	}
}

// TestIndexWorldRoundTrip verifies the conversion in both directions for
// an axis-aligned grid with anisotropic spacing.
func TestIndexWorldRoundTrip(t *testing.T) {
	g, err := NewAxisAlignedGrid([3]int{10, 10, 10}, [3]float64{0.5, 1, 2}, [3]float64{-5, 3, 7})
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}

	ci := [3]float64{1.25, 4.5, 2}
	w := g.IndexToWorld(ci)
	want := [3]float64{-5 + 1.25*0.5, 3 + 4.5, 7 + 4}
	if w != want {
		t.Errorf("Expected world %v, got %v", want, w)
	}

	back := g.WorldToIndex(w)
	for i := 0; i < 3; i++ {
		if math.Abs(back[i]-ci[i]) > 1e-12 {
			t.Errorf("Round trip axis %d: expected %g, got %g", i, ci[i], back[i])
		}
	}
}

// TestOrientedGrid verifies conversions through a non-identity direction
// matrix (a 90 degree rotation about z).
func TestOrientedGrid(t *testing.T) {
	g, err := NewGrid([3]int{8, 8, 8}, [3]float64{2, 2, 2}, [3]float64{1, 1, 1},
		[3][3]float64{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}})
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}

	// Index (1,0,0) steps along the rotated x axis: world = origin + (0,2,0).
	w := g.IndexToWorld([3]float64{1, 0, 0})
	want := [3]float64{1, 3, 1}
	if w != want {
		t.Errorf("Expected world %v, got %v", want, w)
	}

	ci := g.WorldToIndex(w)
	for i, wantCI := range [3]float64{1, 0, 0} {
		if math.Abs(ci[i]-wantCI) > 1e-12 {
			t.Errorf("Axis %d: expected index %g, got %g", i, wantCI, ci[i])
		}
	}
}

// TestInsideClassification verifies the interpolation-domain and voxel
// bounds checks.
func TestInsideClassification(t *testing.T) {
	g, err := NewAxisAlignedGrid([3]int{4, 4, 4}, [3]float64{1, 1, 1}, [3]float64{})
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}

	inside := [][3]float64{{0, 0, 0}, {3, 3, 3}, {1.5, 2.9, 0.1}}
	for _, ci := range inside {
		if !g.InsideIndex(ci) {
			t.Errorf("Index %v should be inside", ci)
		}
	}

	outside := [][3]float64{{-0.1, 0, 0}, {3.01, 0, 0}, {0, 4, 0}}
	for _, ci := range outside {
		if g.InsideIndex(ci) {
			t.Errorf("Index %v should be outside", ci)
		}
	}

	if !g.InsideVoxel(0, 3, 2) {
		t.Error("Voxel (0,3,2) should be inside")
	}
	if g.InsideVoxel(0, 4, 2) || g.InsideVoxel(-1, 0, 0) {
		t.Error("Out-of-extent voxels should be outside")
	}
}
