package fiber

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Tensor is a symmetric 3x3 diffusion tensor stored as its 6 independent
// components in the order Dxx, Dxy, Dxz, Dyy, Dyz, Dzz. This is the same
// packing used by diffusion MRI tensor volumes, so values sampled from a
// tensor field can be stored directly.
type Tensor [6]float64

// Component indices into a Tensor.
const (
	Dxx = iota
	Dxy
	Dxz
	Dyy
	Dyz
	Dzz
)

// Trace returns the sum of the diagonal components.
func (t Tensor) Trace() float64 {
	return t[Dxx] + t[Dyy] + t[Dzz]
}

// MeanDiffusivity returns the trace divided by three.
func (t Tensor) MeanDiffusivity() float64 {
	return t.Trace() / 3
}

// FrobeniusNorm returns the Frobenius norm of the full 3x3 matrix,
// computed over the 6 independent components with the off-diagonal
// terms counted twice.
func (t Tensor) FrobeniusNorm() float64 {
	return math.Sqrt(t[Dxx]*t[Dxx] +
		2*t[Dxy]*t[Dxy] +
		2*t[Dxz]*t[Dxz] +
		t[Dyy]*t[Dyy] +
		2*t[Dyz]*t[Dyz] +
		t[Dzz]*t[Dzz])
}

// Eigenvalues returns the three eigenvalues of the tensor sorted in
// descending order, so that the first value is the principal diffusion
// eigenvalue. The decomposition is delegated to gonum's symmetric
// eigensolver.
func (t Tensor) Eigenvalues() [3]float64 {
	sym := mat.NewSymDense(3, []float64{
		t[Dxx], t[Dxy], t[Dxz],
		t[Dxy], t[Dyy], t[Dyz],
		t[Dxz], t[Dyz], t[Dzz],
	})

	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		// Symmetric eigendecomposition only fails on non-finite input;
		// surface that as zero eigenvalues rather than panicking.
		return [3]float64{}
	}

	vals := eig.Values(nil)
	sort.Sort(sort.Reverse(sort.Float64Slice(vals)))
	return [3]float64{vals[0], vals[1], vals[2]}
}

// FractionalAnisotropy returns the standard FA scalar derived from the
// eigenvalues: sqrt(3/2) times the norm of the eigenvalue deviation from
// their mean, divided by the norm of the eigenvalues. The result is
// clamped to [0, 1]; an all-zero tensor yields 0.
func (t Tensor) FractionalAnisotropy() float64 {
	ev := t.Eigenvalues()
	mean := (ev[0] + ev[1] + ev[2]) / 3

	var num, den float64
	for _, l := range ev {
		d := l - mean
		num += d * d
		den += l * l
	}
	if den == 0 {
		return 0
	}

	fa := math.Sqrt(1.5 * num / den)
	if fa > 1 {
		fa = 1
	}
	return fa
}

// IsZero reports whether every component of the tensor is exactly zero.
func (t Tensor) IsZero() bool {
	for _, c := range t {
		if c != 0 {
			return false
		}
	}
	return true
}
