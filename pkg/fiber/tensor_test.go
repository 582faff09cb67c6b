package fiber

import (
	"math"
	"testing"
)

// TestTensorTraceAndMD verifies that mean diffusivity is exactly one
// third of the trace.
func TestTensorTraceAndMD(t *testing.T) {
	tensor := Tensor{0.003, 0.0001, 0.0002, 0.002, 0.0003, 0.001}

	trace := tensor.Trace()
	if trace != 0.003+0.002+0.001 {
		t.Errorf("Expected trace %g, got %g", 0.003+0.002+0.001, trace)
	}

	if md := tensor.MeanDiffusivity(); md != trace/3 {
		t.Errorf("Expected MD == trace/3 (%g), got %g", trace/3, md)
	}
}

// TestFrobeniusNorm verifies the norm over the 6 symmetric components
// with off-diagonal terms counted twice.
func TestFrobeniusNorm(t *testing.T) {
	tensor := Tensor{1, 2, 3, 4, 5, 6}

	want := math.Sqrt(1 + 2*4 + 2*9 + 16 + 2*25 + 36)
	if got := tensor.FrobeniusNorm(); math.Abs(got-want) > 1e-12 {
		t.Errorf("Expected Frobenius norm %g, got %g", want, got)
	}
}

// TestEigenvaluesDescending verifies that eigenvalues come back sorted
// descending, so l1 is always the principal eigenvalue.
func TestEigenvaluesDescending(t *testing.T) {
	// Diagonal tensor: eigenvalues are the diagonal entries.
	tensor := Tensor{0.001, 0, 0, 0.003, 0, 0.002}

	ev := tensor.Eigenvalues()
	want := [3]float64{0.003, 0.002, 0.001}
	for i := 0; i < 3; i++ {
		if math.Abs(ev[i]-want[i]) > 1e-12 {
			t.Errorf("Eigenvalue %d: expected %g, got %g", i, want[i], ev[i])
		}
	}
	if !(ev[0] >= ev[1] && ev[1] >= ev[2]) {
		t.Errorf("Eigenvalues not descending: %v", ev)
	}
}

// TestEigenvaluesOffDiagonal checks a tensor with off-diagonal terms
// against a hand-computed decomposition.
func TestEigenvaluesOffDiagonal(t *testing.T) {
	// [[2,1,0],[1,2,0],[0,0,3]] has eigenvalues 3, 3, 1.
	tensor := Tensor{2, 1, 0, 2, 0, 3}

	ev := tensor.Eigenvalues()
	want := [3]float64{3, 3, 1}
	for i := 0; i < 3; i++ {
		if math.Abs(ev[i]-want[i]) > 1e-9 {
			t.Errorf("Eigenvalue %d: expected %g, got %g", i, want[i], ev[i])
		}
	}
}

// TestFractionalAnisotropy verifies the FA bounds and the two analytic
// extremes: isotropic tensors have FA 0 and rank-one tensors have FA 1.
func TestFractionalAnisotropy(t *testing.T) {
	isotropic := Tensor{0.002, 0, 0, 0.002, 0, 0.002}
	if fa := isotropic.FractionalAnisotropy(); math.Abs(fa) > 1e-12 {
		t.Errorf("Isotropic tensor should have FA 0, got %g", fa)
	}

	// Single nonzero eigenvalue: FA = 1.
	stick := Tensor{0.003, 0, 0, 0, 0, 0}
	if fa := stick.FractionalAnisotropy(); math.Abs(fa-1) > 1e-9 {
		t.Errorf("Rank-one tensor should have FA 1, got %g", fa)
	}

	anisotropic := Tensor{0.0017, 0.0001, 0, 0.0004, 0, 0.0003}
	fa := anisotropic.FractionalAnisotropy()
	if fa < 0 || fa > 1 {
		t.Errorf("FA must be in [0,1], got %g", fa)
	}
	if fa == 0 {
		t.Error("Anisotropic tensor should have FA > 0")
	}
}

// TestZeroTensor verifies that an all-zero tensor produces safe scalar
// values instead of NaNs.
func TestZeroTensor(t *testing.T) {
	var zero Tensor

	if !zero.IsZero() {
		t.Error("Zero tensor should report IsZero")
	}
	if fa := zero.FractionalAnisotropy(); fa != 0 {
		t.Errorf("Zero tensor FA should be 0, got %g", fa)
	}
	if md := zero.MeanDiffusivity(); md != 0 {
		t.Errorf("Zero tensor MD should be 0, got %g", md)
	}

	nonzero := Tensor{0, 0, 0, 0, 1e-9, 0}
	if nonzero.IsZero() {
		t.Error("Tensor with a nonzero component should not report IsZero")
	}
}
