// Package fiberio reads and writes fiber bundles as VTK legacy ASCII
// polydata: one POINTS block, one polyline per fiber in the LINES block,
// and per-point tensors and named scalar fields as POINT_DATA arrays.
// Point ordering and scalar-field names are preserved exactly across a
// write/read round trip.
package fiberio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"fiberwarp/pkg/fiber"
)

// Reserved FIELD array names used for display attributes. Any other
// array is treated as a named per-point scalar field.
const (
	arrayRadius = "radius"
	arrayColor  = "color"
)

// Read loads a fiber bundle from a VTK polydata file. Fibers are
// numbered sequentially from 1 in file order.
func Read(path string) (*fiber.Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening fiber file %s: %w", path, err)
	}
	defer f.Close()

	b, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("reading fiber file %s: %w", path, err)
	}
	return b, nil
}

// Write saves a bundle to a VTK polydata file. Bundle-level spacing and
// object-to-world transform are carried in the title line so they
// survive a round trip.
func Write(path string, b *fiber.Bundle) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating fiber file %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()

	if err := write(f, b); err != nil {
		return fmt.Errorf("writing fiber file %s: %w", path, err)
	}
	return nil
}

func read(r io.Reader) (*fiber.Bundle, error) {
	br := bufio.NewReader(r)

	// Magic, title (bundle metadata), format, dataset type.
	magic, err := br.ReadString('\n')
	if err != nil || !strings.HasPrefix(magic, "# vtk DataFile") {
		return nil, fmt.Errorf("not a VTK legacy file")
	}
	title, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading title: %w", err)
	}

	b := fiber.NewBundle()
	parseBundleMeta(strings.TrimSpace(title), b)

	format, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading format: %w", err)
	}
	if strings.TrimSpace(format) != "ASCII" {
		return nil, fmt.Errorf("only ASCII VTK files are supported, got %q", strings.TrimSpace(format))
	}

	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)
	tok := &tokenizer{sc: sc}

	if kw, err := tok.word(); err != nil || kw != "DATASET" {
		return nil, fmt.Errorf("expected DATASET, got %q", kw)
	}
	if kw, err := tok.word(); err != nil || kw != "POLYDATA" {
		return nil, fmt.Errorf("expected POLYDATA dataset, got %q", kw)
	}

	var points [][3]float64
	var src []int // file point index for each bundle point, polyline order
	for {
		kw, err := tok.word()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch kw {
		case "POINTS":
			n, err := tok.count()
			if err != nil {
				return nil, fmt.Errorf("POINTS count: %w", err)
			}
			if _, err := tok.word(); err != nil { // data type
				return nil, err
			}
			points = make([][3]float64, n)
			for i := 0; i < n; i++ {
				for a := 0; a < 3; a++ {
					if points[i][a], err = tok.float(); err != nil {
						return nil, fmt.Errorf("point %d: %w", i, err)
					}
				}
			}

		case "LINES":
			nLines, err := tok.count()
			if err != nil {
				return nil, fmt.Errorf("LINES count: %w", err)
			}
			if _, err := tok.count(); err != nil { // total int count
				return nil, err
			}
			for li := 0; li < nLines; li++ {
				npts, err := tok.count()
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", li, err)
				}
				fb := fiber.Fiber{ID: li + 1, Points: make([]fiber.Point, 0, npts)}
				for pi := 0; pi < npts; pi++ {
					idx, err := tok.count()
					if err != nil {
						return nil, fmt.Errorf("line %d index: %w", li, err)
					}
					if idx < 0 || idx >= len(points) {
						return nil, fmt.Errorf("line %d references point %d of %d", li, idx, len(points))
					}
					fb.Points = append(fb.Points, fiber.Point{Position: points[idx]})
					src = append(src, idx)
				}
				b.Fibers = append(b.Fibers, fb)
			}

		case "POINT_DATA":
			n, err := tok.count()
			if err != nil {
				return nil, fmt.Errorf("POINT_DATA count: %w", err)
			}
			if n != len(points) {
				return nil, fmt.Errorf("POINT_DATA count %d does not match %d points", n, len(points))
			}
			if err := readPointData(tok, b, n, src); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("unexpected keyword %q", kw)
		}
	}

	return b, nil
}

// readPointData consumes TENSORS and FIELD blocks. Arrays hold one tuple
// per file point, so values are scattered through src: polylines may
// share or permute file points, and each bundle point takes the tuple of
// the file point it came from.
func readPointData(tok *tokenizer, b *fiber.Bundle, n int, src []int) error {
	for {
		kw, err := tok.word()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch kw {
		case "TENSORS":
			if _, err := tok.word(); err != nil { // array name
				return err
			}
			if _, err := tok.word(); err != nil { // data type
				return err
			}
			vals := make([]float64, 9*n)
			for i := range vals {
				if vals[i], err = tok.float(); err != nil {
					return fmt.Errorf("tensor value %d: %w", i, err)
				}
			}
			forEachPoint(b, func(i int, p *fiber.Point) {
				m := vals[9*src[i] : 9*src[i]+9]
				p.Tensor = fiber.Tensor{m[0], m[1], m[2], m[4], m[5], m[8]}
			})

		case "FIELD":
			if _, err := tok.word(); err != nil { // field data name
				return err
			}
			nArrays, err := tok.count()
			if err != nil {
				return fmt.Errorf("FIELD array count: %w", err)
			}
			for a := 0; a < nArrays; a++ {
				if err := readFieldArray(tok, b, n, src); err != nil {
					return err
				}
			}

		default:
			return fmt.Errorf("unexpected point-data keyword %q", kw)
		}
	}
}

// readFieldArray reads one FIELD array and attaches it to the points:
// "radius" and "color" map to display attributes, everything else
// becomes a named scalar field.
func readFieldArray(tok *tokenizer, b *fiber.Bundle, n int, src []int) error {
	name, err := tok.word()
	if err != nil {
		return err
	}
	comps, err := tok.count()
	if err != nil {
		return fmt.Errorf("array %s components: %w", name, err)
	}
	tuples, err := tok.count()
	if err != nil {
		return fmt.Errorf("array %s tuples: %w", name, err)
	}
	if _, err := tok.word(); err != nil { // data type
		return err
	}
	if tuples != n {
		return fmt.Errorf("array %s has %d tuples, want %d", name, tuples, n)
	}

	vals := make([]float64, comps*tuples)
	for i := range vals {
		if vals[i], err = tok.float(); err != nil {
			return fmt.Errorf("array %s value %d: %w", name, i, err)
		}
	}

	switch {
	case name == arrayRadius && comps == 1:
		forEachPoint(b, func(i int, p *fiber.Point) { p.Radius = vals[src[i]] })
	case name == arrayColor && comps == 3:
		forEachPoint(b, func(i int, p *fiber.Point) {
			p.Red, p.Green, p.Blue = vals[3*src[i]], vals[3*src[i]+1], vals[3*src[i]+2]
		})
	case comps == 1:
		forEachPoint(b, func(i int, p *fiber.Point) { p.SetField(name, vals[src[i]]) })
	default:
		return fmt.Errorf("array %s: unsupported component count %d", name, comps)
	}
	return nil
}

func write(w io.Writer, b *fiber.Bundle) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "# vtk DataFile Version 3.0")
	fmt.Fprintln(bw, bundleMeta(b))
	fmt.Fprintln(bw, "ASCII")
	fmt.Fprintln(bw, "DATASET POLYDATA")

	n := b.PointCount()
	fmt.Fprintf(bw, "POINTS %d double\n", n)
	forEachPoint(b, func(_ int, p *fiber.Point) {
		fmt.Fprintf(bw, "%g %g %g\n", p.Position[0], p.Position[1], p.Position[2])
	})

	total := 0
	for i := range b.Fibers {
		total += 1 + len(b.Fibers[i].Points)
	}
	fmt.Fprintf(bw, "LINES %d %d\n", len(b.Fibers), total)
	idx := 0
	for i := range b.Fibers {
		fmt.Fprintf(bw, "%d", len(b.Fibers[i].Points))
		for range b.Fibers[i].Points {
			fmt.Fprintf(bw, " %d", idx)
			idx++
		}
		fmt.Fprintln(bw)
	}

	fmt.Fprintf(bw, "POINT_DATA %d\n", n)

	hasTensors := false
	forEachPoint(b, func(_ int, p *fiber.Point) {
		if !p.Tensor.IsZero() {
			hasTensors = true
		}
	})
	if hasTensors {
		fmt.Fprintln(bw, "TENSORS tensors double")
		forEachPoint(b, func(_ int, p *fiber.Point) {
			t := p.Tensor
			fmt.Fprintf(bw, "%g %g %g %g %g %g %g %g %g\n",
				t[fiber.Dxx], t[fiber.Dxy], t[fiber.Dxz],
				t[fiber.Dxy], t[fiber.Dyy], t[fiber.Dyz],
				t[fiber.Dxz], t[fiber.Dyz], t[fiber.Dzz])
		})
	}

	names := scalarNames(b)
	fmt.Fprintf(bw, "FIELD attributes %d\n", len(names)+2)

	fmt.Fprintf(bw, "%s 1 %d double\n", arrayRadius, n)
	forEachPoint(b, func(_ int, p *fiber.Point) { fmt.Fprintf(bw, "%g\n", p.Radius) })

	fmt.Fprintf(bw, "%s 3 %d double\n", arrayColor, n)
	forEachPoint(b, func(_ int, p *fiber.Point) {
		fmt.Fprintf(bw, "%g %g %g\n", p.Red, p.Green, p.Blue)
	})

	for _, name := range names {
		fmt.Fprintf(bw, "%s 1 %d double\n", name, n)
		forEachPoint(b, func(_ int, p *fiber.Point) {
			v, _ := p.Field(name)
			fmt.Fprintf(bw, "%g\n", v)
		})
	}

	return bw.Flush()
}

// bundleMeta encodes spacing and the object-to-world transform into the
// VTK title line, which is limited to 256 characters and otherwise
// unused.
func bundleMeta(b *fiber.Bundle) string {
	m := b.ObjectToWorld.Matrix
	return fmt.Sprintf("fiberwarp bundle id=%d spacing=(%g,%g,%g) offset=(%g,%g,%g) matrix=(%g,%g,%g,%g,%g,%g,%g,%g,%g)",
		b.ID,
		b.Spacing[0], b.Spacing[1], b.Spacing[2],
		b.ObjectToWorld.Offset[0], b.ObjectToWorld.Offset[1], b.ObjectToWorld.Offset[2],
		m[0][0], m[0][1], m[0][2], m[1][0], m[1][1], m[1][2], m[2][0], m[2][1], m[2][2])
}

// parseBundleMeta restores spacing and transform from a title line
// written by bundleMeta. Titles from other producers are ignored and the
// bundle keeps its unit defaults.
func parseBundleMeta(title string, b *fiber.Bundle) {
	for _, tok := range strings.Fields(title) {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		vals := parseFloatList(value)
		switch key {
		case "id":
			if id, err := strconv.Atoi(value); err == nil {
				b.ID = id
			}
		case "spacing":
			if len(vals) == 3 && vals[0] > 0 && vals[1] > 0 && vals[2] > 0 {
				copy(b.Spacing[:], vals)
			}
		case "offset":
			if len(vals) == 3 {
				copy(b.ObjectToWorld.Offset[:], vals)
			}
		case "matrix":
			if len(vals) == 9 {
				for i := 0; i < 3; i++ {
					copy(b.ObjectToWorld.Matrix[i][:], vals[3*i:3*i+3])
				}
			}
		}
	}
}

// parseFloatList parses "(a,b,c)" into a float slice, returning nil on
// any malformed component.
func parseFloatList(s string) []float64 {
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil
		}
		out = append(out, f)
	}
	return out
}

// scalarNames returns the union of scalar field names across all points,
// sorted for deterministic output.
func scalarNames(b *fiber.Bundle) []string {
	seen := make(map[string]bool)
	for i := range b.Fibers {
		for j := range b.Fibers[i].Points {
			for name := range b.Fibers[i].Points[j].Fields {
				seen[name] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// forEachPoint visits every point in polyline order with its flat index.
func forEachPoint(b *fiber.Bundle, fn func(i int, p *fiber.Point)) {
	i := 0
	for fi := range b.Fibers {
		for pi := range b.Fibers[fi].Points {
			fn(i, &b.Fibers[fi].Points[pi])
			i++
		}
	}
}

// tokenizer yields whitespace-separated words and numbers from a VTK
// body.
type tokenizer struct {
	sc *bufio.Scanner
}

func (t *tokenizer) word() (string, error) {
	if !t.sc.Scan() {
		if err := t.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return t.sc.Text(), nil
}

func (t *tokenizer) count() (int, error) {
	w, err := t.word()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(w)
	if err != nil {
		return 0, fmt.Errorf("expected integer, got %q", w)
	}
	return n, nil
}

func (t *tokenizer) float() (float64, error) {
	w, err := t.word()
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return 0, fmt.Errorf("expected number, got %q", w)
	}
	return f, nil
}
