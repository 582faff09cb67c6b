// Package fieldio reads and writes 3D field volumes in the NRRD format:
// deformation vector fields, diffusion tensor fields and integer label
// volumes. Raw and gzip encodings are supported; data is always
// little-endian with the component axis fastest, matching the in-memory
// layout of the field package.
package fieldio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"fiberwarp/pkg/field"
)

// DeformationKind selects how a deformation volume's values are
// interpreted at read time.
type DeformationKind int

const (
	// Displacement volumes store relative offsets in physical units.
	Displacement DeformationKind = iota

	// HField volumes store absolute target positions; they are converted
	// to relative displacements immediately after reading.
	HField
)

const nrrdMagic = "NRRD"

// header is the parsed subset of an NRRD header needed to reconstruct a
// grid and its data buffer.
type header struct {
	dtype    string
	sizes    []int
	encoding string
	origin   [3]float64
	// dirs[j] is the world-space step per increment of domain axis j.
	dirs    [3][3]float64
	hasDirs bool
}

// grid converts the parsed header geometry into a field.Grid. domainOff
// is the index of the first domain axis in sizes (1 for component-first
// volumes, 0 for scalar volumes).
func (h *header) grid(domainOff int) (*field.Grid, error) {
	var size [3]int
	for i := 0; i < 3; i++ {
		size[i] = h.sizes[domainOff+i]
	}

	spacing := [3]float64{1, 1, 1}
	direction := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	if h.hasDirs {
		for j := 0; j < 3; j++ {
			n := math.Sqrt(h.dirs[j][0]*h.dirs[j][0] + h.dirs[j][1]*h.dirs[j][1] + h.dirs[j][2]*h.dirs[j][2])
			if n == 0 {
				return nil, fmt.Errorf("degenerate space direction for axis %d", j)
			}
			spacing[j] = n
			for i := 0; i < 3; i++ {
				direction[i][j] = h.dirs[j][i] / n
			}
		}
	}

	return field.NewGrid(size, spacing, h.origin, direction)
}

// parseHeader reads an NRRD header up to the blank line separating it
// from the data.
func parseHeader(r *bufio.Reader) (*header, error) {
	magic, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if !strings.HasPrefix(magic, nrrdMagic) {
		return nil, fmt.Errorf("not an NRRD file (magic %q)", strings.TrimSpace(magic))
	}

	h := &header{encoding: "raw"}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header line %q", line)
		}
		value = strings.TrimSpace(strings.TrimPrefix(value, "="))

		switch strings.TrimSpace(key) {
		case "type":
			h.dtype = value
		case "encoding":
			h.encoding = value
		case "endian":
			if value != "little" {
				return nil, fmt.Errorf("unsupported endianness %q", value)
			}
		case "sizes":
			for _, f := range strings.Fields(value) {
				n, err := strconv.Atoi(f)
				if err != nil {
					return nil, fmt.Errorf("bad sizes field %q: %w", f, err)
				}
				h.sizes = append(h.sizes, n)
			}
		case "space origin":
			v, err := parseVector(value)
			if err != nil {
				return nil, fmt.Errorf("bad space origin: %w", err)
			}
			h.origin = v
		case "space directions":
			axis := 0
			for _, tok := range splitVectors(value) {
				if tok == "none" {
					continue
				}
				v, err := parseVector(tok)
				if err != nil {
					return nil, fmt.Errorf("bad space direction %q: %w", tok, err)
				}
				if axis > 2 {
					return nil, fmt.Errorf("too many space directions")
				}
				h.dirs[axis] = v
				axis++
			}
			h.hasDirs = axis == 3
		}
	}

	if len(h.sizes) == 0 {
		return nil, fmt.Errorf("header missing sizes")
	}
	return h, nil
}

// parseVector parses "(a,b,c)" into three floats.
func parseVector(s string) ([3]float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return [3]float64{}, fmt.Errorf("expected 3 components, got %d", len(parts))
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return [3]float64{}, err
		}
		v[i] = f
	}
	return v, nil
}

// splitVectors tokenizes a space-directions value into "none" markers and
// parenthesized vectors, allowing spaces inside the parentheses.
func splitVectors(s string) []string {
	var merged []string
	var cur strings.Builder
	depth := 0
	for _, tok := range strings.Fields(s) {
		if depth > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(tok)
		depth += strings.Count(tok, "(") - strings.Count(tok, ")")
		if depth == 0 {
			merged = append(merged, cur.String())
			cur.Reset()
		}
	}
	return merged
}

// dataReader wraps the remaining stream according to the encoding.
// The returned closer must be closed by the caller when non-nil.
func dataReader(r io.Reader, encoding string) (io.Reader, io.Closer, error) {
	switch encoding {
	case "raw":
		return r, nil, nil
	case "gzip", "gz":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("opening gzip data: %w", err)
		}
		return zr, zr, nil
	default:
		return nil, nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// readFloats decodes n little-endian values of the header's type into a
// float64 slice.
func readFloats(r io.Reader, dtype string, n int) ([]float64, error) {
	out := make([]float64, n)
	switch dtype {
	case "double", "float64":
		if err := binary.Read(r, binary.LittleEndian, out); err != nil {
			return nil, fmt.Errorf("reading data: %w", err)
		}
	case "float", "float32":
		buf := make([]float32, n)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return nil, fmt.Errorf("reading data: %w", err)
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("unsupported data type %q", dtype)
	}
	return out, nil
}

// readVolume opens path, parses the header and decodes the data buffer.
func readVolume(path string, comps int) (*header, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening volume %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	h, err := parseHeader(br)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	wantDims := 3
	if comps > 1 {
		wantDims = 4
	}
	if len(h.sizes) != wantDims {
		return nil, nil, fmt.Errorf("%s: expected %d axes, got %d", path, wantDims, len(h.sizes))
	}
	if comps > 1 && h.sizes[0] != comps {
		return nil, nil, fmt.Errorf("%s: expected %d components per voxel, got %d", path, comps, h.sizes[0])
	}

	n := 1
	for _, s := range h.sizes {
		n *= s
	}

	dr, closer, err := dataReader(br, h.encoding)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if closer != nil {
		defer closer.Close()
	}

	data, err := readFloats(dr, h.dtype, n)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, data, nil
}

// ReadDeformationField reads a 3-component vector volume. HField volumes
// are converted to the relative-displacement convention before being
// returned, so callers always receive displacements.
func ReadDeformationField(path string, kind DeformationKind) (*field.VectorField, error) {
	h, data, err := readVolume(path, 3)
	if err != nil {
		return nil, err
	}
	g, err := h.grid(1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	vf := &field.VectorField{Grid: g, Data: data}
	if kind == HField {
		vf.HFieldToDisplacement()
	}
	return vf, nil
}

// ReadTensorField reads a 6-component symmetric tensor volume.
func ReadTensorField(path string) (*field.TensorField, error) {
	h, data, err := readVolume(path, 6)
	if err != nil {
		return nil, err
	}
	g, err := h.grid(1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &field.TensorField{Grid: g, Data: data}, nil
}

// ReadLabelVolume reads a scalar int32 volume.
func ReadLabelVolume(path string) (*field.LabelVolume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening volume %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	h, err := parseHeader(br)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(h.sizes) != 3 {
		return nil, fmt.Errorf("%s: expected 3 axes, got %d", path, len(h.sizes))
	}
	if h.dtype != "int" && h.dtype != "int32" {
		return nil, fmt.Errorf("%s: unsupported label type %q", path, h.dtype)
	}

	g, err := h.grid(0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dr, closer, err := dataReader(br, h.encoding)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if closer != nil {
		defer closer.Close()
	}

	data := make([]int32, g.VoxelCount())
	if err := binary.Read(dr, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("%s: reading data: %w", path, err)
	}
	return &field.LabelVolume{Grid: g, Data: data}, nil
}

// writeHeader emits the NRRD header for a volume over g. comps of 0
// writes a scalar 3-axis header.
func writeHeader(w io.Writer, g *field.Grid, dtype string, comps int, encoding string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "NRRD0004")
	fmt.Fprintln(bw, "# generated by fiberwarp")
	fmt.Fprintf(bw, "type: %s\n", dtype)

	dirs := "space directions: "
	if comps > 0 {
		fmt.Fprintln(bw, "dimension: 4")
		fmt.Fprintf(bw, "sizes: %d %d %d %d\n", comps, g.Size[0], g.Size[1], g.Size[2])
		dirs += "none "
	} else {
		fmt.Fprintln(bw, "dimension: 3")
		fmt.Fprintf(bw, "sizes: %d %d %d\n", g.Size[0], g.Size[1], g.Size[2])
	}

	for j := 0; j < 3; j++ {
		if j > 0 {
			dirs += " "
		}
		dirs += fmt.Sprintf("(%g,%g,%g)",
			g.Direction[0][j]*g.Spacing[j],
			g.Direction[1][j]*g.Spacing[j],
			g.Direction[2][j]*g.Spacing[j])
	}
	fmt.Fprintln(bw, "space: left-posterior-superior")
	fmt.Fprintln(bw, dirs)
	fmt.Fprintf(bw, "space origin: (%g,%g,%g)\n", g.Origin[0], g.Origin[1], g.Origin[2])
	fmt.Fprintln(bw, "endian: little")
	fmt.Fprintf(bw, "encoding: %s\n", encoding)
	fmt.Fprintln(bw)
	return bw.Flush()
}

// writeVolume writes a header plus binary payload to path, optionally
// gzip-compressed.
func writeVolume(path string, g *field.Grid, dtype string, comps int, compress bool, payload any) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating volume %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()

	encoding := "raw"
	if compress {
		encoding = "gzip"
	}
	if err := writeHeader(f, g, dtype, comps, encoding); err != nil {
		return fmt.Errorf("writing header %s: %w", path, err)
	}

	var w io.Writer = f
	if compress {
		zw := gzip.NewWriter(f)
		defer func() {
			if cerr := zw.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing gzip stream %s: %w", path, cerr)
			}
		}()
		w = zw
	}

	if err := binary.Write(w, binary.LittleEndian, payload); err != nil {
		return fmt.Errorf("writing data %s: %w", path, err)
	}
	return nil
}

// WriteVectorField writes a 3-component vector volume.
func WriteVectorField(path string, f *field.VectorField, compress bool) error {
	return writeVolume(path, f.Grid, "double", 3, compress, f.Data)
}

// WriteTensorField writes a 6-component symmetric tensor volume.
func WriteTensorField(path string, f *field.TensorField, compress bool) error {
	return writeVolume(path, f.Grid, "double", 6, compress, f.Data)
}

// WriteLabelVolume writes a scalar int32 volume.
func WriteLabelVolume(path string, v *field.LabelVolume, compress bool) error {
	return writeVolume(path, v.Grid, "int32", 0, compress, v.Data)
}
