package fiberio

import (
	"os"
	"path/filepath"
	"testing"

	"fiberwarp/pkg/fiber"
)

func testBundle() *fiber.Bundle {
	b := fiber.NewBundle()
	b.ID = 3
	b.Spacing = [3]float64{2, 2, 2}
	b.ObjectToWorld.Offset = [3]float64{1, 2, 3}
	b.ObjectToWorld.Matrix = [3][3]float64{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}}

	p1 := fiber.Point{Position: [3]float64{0, 0, 0}, Radius: 0.5, Green: 1}
	p1.Tensor = fiber.Tensor{0.003, 0.0001, 0, 0.002, 0, 0.001}
	p1.SetField(fiber.FieldFA, 0.75)
	p1.SetField(fiber.FieldMD, 0.002)

	p2 := fiber.Point{Position: [3]float64{1.5, 0.25, -2}, Radius: 0.5, Red: 1}
	p2.Tensor = fiber.Tensor{0.001, 0, 0, 0.001, 0, 0.001}
	p2.SetField(fiber.FieldFA, 0.25)
	p2.SetField(fiber.FieldMD, 0.001)

	p3 := fiber.Point{Position: [3]float64{4, 5, 6}}
	p3.SetField(fiber.FieldFA, 0.5)
	p3.SetField(fiber.FieldMD, 0.0015)

	b.Fibers = []fiber.Fiber{
		{ID: 1, Points: []fiber.Point{p1, p2}},
		{ID: 2, Points: []fiber.Point{p3}},
	}
	return b
}

// TestRoundTrip verifies that writing and re-reading a bundle preserves
// point count, ordering, positions, tensors and scalar-field values.
func TestRoundTrip(t *testing.T) {
	in := testBundle()
	path := filepath.Join(t.TempDir(), "fibers.vtk")

	if err := Write(path, in); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if len(out.Fibers) != len(in.Fibers) {
		t.Fatalf("Expected %d fibers, got %d", len(in.Fibers), len(out.Fibers))
	}
	if out.Spacing != in.Spacing {
		t.Errorf("Spacing not preserved: expected %v, got %v", in.Spacing, out.Spacing)
	}
	if out.ObjectToWorld != in.ObjectToWorld {
		t.Errorf("Transform not preserved: expected %+v, got %+v", in.ObjectToWorld, out.ObjectToWorld)
	}
	if out.ID != in.ID {
		t.Errorf("Bundle id not preserved: expected %d, got %d", in.ID, out.ID)
	}

	for fi := range in.Fibers {
		inPts, outPts := in.Fibers[fi].Points, out.Fibers[fi].Points
		if len(outPts) != len(inPts) {
			t.Fatalf("Fiber %d: expected %d points, got %d", fi, len(inPts), len(outPts))
		}
		for pi := range inPts {
			if outPts[pi].Position != inPts[pi].Position {
				t.Errorf("Fiber %d point %d: position %v != %v", fi, pi,
					outPts[pi].Position, inPts[pi].Position)
			}
			if outPts[pi].Tensor != inPts[pi].Tensor {
				t.Errorf("Fiber %d point %d: tensor %v != %v", fi, pi,
					outPts[pi].Tensor, inPts[pi].Tensor)
			}
			if outPts[pi].Radius != inPts[pi].Radius {
				t.Errorf("Fiber %d point %d: radius %g != %g", fi, pi,
					outPts[pi].Radius, inPts[pi].Radius)
			}
			for name, want := range inPts[pi].Fields {
				got, ok := outPts[pi].Field(name)
				if !ok {
					t.Errorf("Fiber %d point %d: field %q lost", fi, pi, name)
				} else if got != want {
					t.Errorf("Fiber %d point %d field %q: %g != %g", fi, pi, name, got, want)
				}
			}
		}
	}
}

// TestReadAssignsSequentialIDs verifies fiber numbering from file order.
func TestReadAssignsSequentialIDs(t *testing.T) {
	in := testBundle()
	path := filepath.Join(t.TempDir(), "fibers.vtk")
	if err := Write(path, in); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	out, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for i, fb := range out.Fibers {
		if fb.ID != i+1 {
			t.Errorf("Fiber %d: expected ID %d, got %d", i, i+1, fb.ID)
		}
	}
}

// TestReadSharedPoints verifies that point-data arrays attach by file
// point index when polylines share a point, so each occurrence carries
// the shared point's values.
func TestReadSharedPoints(t *testing.T) {
	src := `# vtk DataFile Version 3.0
shared-vertex fixture
ASCII
DATASET POLYDATA
POINTS 3 double
0 0 0
1 0 0
2 0 0
LINES 2 6
2 0 1
2 1 2
POINT_DATA 3
TENSORS tensors double
1 0 0 0 1 0 0 0 1
2 0 0 0 2 0 0 0 2
3 0 0 0 3 0 0 0 3
FIELD attributes 1
fa 1 3 double
0.1
0.2
0.3
`
	path := filepath.Join(t.TempDir(), "shared.vtk")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	b, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(b.Fibers) != 2 {
		t.Fatalf("Expected 2 fibers, got %d", len(b.Fibers))
	}
	if n := b.PointCount(); n != 4 {
		t.Fatalf("Expected 4 fiber points, got %d", n)
	}

	wantFA := [][]float64{{0.1, 0.2}, {0.2, 0.3}}
	wantTrace := [][]float64{{3, 6}, {6, 9}}
	for fi := range b.Fibers {
		for pi, pt := range b.Fibers[fi].Points {
			if fa, ok := pt.Field(fiber.FieldFA); !ok || fa != wantFA[fi][pi] {
				t.Errorf("Fiber %d point %d: fa = %g, want %g", fi, pi, fa, wantFA[fi][pi])
			}
			if tr := pt.Tensor.Trace(); tr != wantTrace[fi][pi] {
				t.Errorf("Fiber %d point %d: tensor trace %g, want %g", fi, pi, tr, wantTrace[fi][pi])
			}
		}
	}
	if b.Fibers[0].Points[1].Position != b.Fibers[1].Points[0].Position {
		t.Error("Shared point should appear in both fibers with the same position")
	}
}

// TestReadRejectsGarbage verifies the format guard.
func TestReadRejectsGarbage(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "missing.vtk")); err == nil {
		t.Error("Expected error for missing file")
	}
}

// TestBundleWithoutTensors verifies that tensor-free bundles omit the
// TENSORS block and still round trip.
func TestBundleWithoutTensors(t *testing.T) {
	b := fiber.NewBundle()
	b.Fibers = []fiber.Fiber{
		{ID: 1, Points: []fiber.Point{
			{Position: [3]float64{0, 0, 0}},
			{Position: [3]float64{1, 1, 1}},
			{Position: [3]float64{2, 2, 2}},
		}},
	}

	path := filepath.Join(t.TempDir(), "plain.vtk")
	if err := Write(path, b); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if n := out.PointCount(); n != 3 {
		t.Fatalf("Expected 3 points, got %d", n)
	}
	for pi, pt := range out.Fibers[0].Points {
		if !pt.Tensor.IsZero() {
			t.Errorf("Point %d should have no tensor, got %v", pi, pt.Tensor)
		}
		if pt.Position != b.Fibers[0].Points[pi].Position {
			t.Errorf("Point %d: position not preserved", pi)
		}
	}
}
