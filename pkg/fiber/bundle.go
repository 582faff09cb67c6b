// Package fiber models tractography fiber bundles: ordered polylines of
// 3D points carrying diffusion tensor data and derived scalar fields.
// A bundle is homogeneously a sequence of fibers from construction; there
// is no spatial-object hierarchy to walk or downcast.
package fiber

// Standard scalar-field names attached to fiber points by tensor
// attribution. Readers and writers must preserve these names exactly.
const (
	FieldFA  = "fa"  // fractional anisotropy
	FieldMD  = "md"  // mean diffusivity (trace/3)
	FieldFro = "fro" // Frobenius norm of the tensor
	FieldL1  = "l1"  // largest eigenvalue
	FieldL2  = "l2"  // middle eigenvalue
	FieldL3  = "l3"  // smallest eigenvalue
)

// Point is a single sample along a fiber. Depending on the bundle's
// coordinate convention its position is either a continuous index into a
// reference grid or a world-space coordinate; the processing configuration
// decides which interpretation applies.
type Point struct {
	// Position is the stored 3D location (x, y, z).
	Position [3]float64

	// Tensor is the symmetric diffusion tensor at this point. A zero
	// tensor means no tensor data is attached.
	Tensor Tensor

	// Fields holds named per-point scalars such as "fa" and "md".
	Fields map[string]float64

	// Display attributes carried through for output compatibility.
	Radius           float64
	Red, Green, Blue float64
}

// SetField attaches a named scalar to the point, allocating the field map
// on first use.
func (p *Point) SetField(name string, value float64) {
	if p.Fields == nil {
		p.Fields = make(map[string]float64)
	}
	p.Fields[name] = value
}

// Field returns the named scalar and whether it is present.
func (p *Point) Field(name string) (float64, bool) {
	v, ok := p.Fields[name]
	return v, ok
}

// Clone returns a deep copy of the point, including its field map.
func (p *Point) Clone() Point {
	out := *p
	if p.Fields != nil {
		out.Fields = make(map[string]float64, len(p.Fields))
		for k, v := range p.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// Fiber is an ordered polyline of points. Insertion order is arc-length
// order along the tract and must be preserved by every transformation.
type Fiber struct {
	// ID identifies the fiber within its bundle.
	ID int

	// Points are the samples along the fiber, in arc-length order.
	Points []Point
}

// Transform is an affine object-to-world transform: a row-major 3x3
// rotation/scale matrix plus a translation offset.
type Transform struct {
	Matrix [3][3]float64
	Offset [3]float64
}

// IdentityTransform returns the identity affine transform.
func IdentityTransform() Transform {
	return Transform{Matrix: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// Apply maps a point through the transform.
func (t Transform) Apply(p [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = t.Matrix[i][0]*p[0] + t.Matrix[i][1]*p[1] + t.Matrix[i][2]*p[2] + t.Offset[i]
	}
	return out
}

// IsIdentity reports whether the transform is exactly the identity.
func (t Transform) IsIdentity() bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if t.Matrix[i][j] != want {
				return false
			}
		}
		if t.Offset[i] != 0 {
			return false
		}
	}
	return true
}

// Bundle is an ordered collection of fibers together with the grid
// metadata needed to interpret their positions.
type Bundle struct {
	// ID identifies the bundle. Output bundles are created with ID 0.
	ID int

	// Spacing is the voxel spacing of the grid the fiber positions were
	// sampled on. All three values must be strictly positive.
	Spacing [3]float64

	// ObjectToWorld maps stored positions into world coordinates when the
	// bundle uses the object-transform convention.
	ObjectToWorld Transform

	Fibers []Fiber
}

// NewBundle returns an empty bundle with unit spacing and an identity
// object-to-world transform.
func NewBundle() *Bundle {
	return &Bundle{
		Spacing:       [3]float64{1, 1, 1},
		ObjectToWorld: IdentityTransform(),
	}
}

// PointCount returns the total number of points across all fibers.
func (b *Bundle) PointCount() int {
	n := 0
	for i := range b.Fibers {
		n += len(b.Fibers[i].Points)
	}
	return n
}
