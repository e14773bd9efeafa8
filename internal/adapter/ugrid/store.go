// Package ugrid reads D-Flow FM map files: netCDF classic files following the
// UGRID conventions, holding the 1D network, the 2D mesh and their result
// time series.
package ugrid

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"
	"github.com/spf13/cast"

	"github.com/couchcryptid/flood-inundation/internal/domain"
)

// Variable name candidates, in lookup order.
var (
	timeNames       = []string{"time"}
	node1DX         = []string{"mesh1d_node_x", "Mesh1d_node_x"}
	node1DY         = []string{"mesh1d_node_y", "Mesh1d_node_y"}
	faceXBnd        = []string{"mesh2d_face_x_bnd", "Mesh2d_face_x_bnd"}
	faceYBnd        = []string{"mesh2d_face_y_bnd", "Mesh2d_face_y_bnd"}
	faceNodes       = []string{"mesh2d_face_nodes", "Mesh2d_face_nodes"}
	node2DX         = []string{"mesh2d_node_x", "Mesh2d_node_x"}
	node2DY         = []string{"mesh2d_node_y", "Mesh2d_node_y"}
	branchX         = []string{"network1d_geom_x", "network_geom_x"}
	branchY         = []string{"network1d_geom_y", "network_geom_y"}
	branchNodeCount = []string{"network1d_geom_node_count", "network_geom_node_count"}
	crsNames        = []string{"projected_coordinate_system", "wgs84"}
)

// Store is an open map file.
type Store struct {
	path string
	file *os.File
	nc   *cdf.File
	vars map[string]bool

	numRecs int
	times   []time.Time
}

// Open opens a map file for reading.
func Open(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrIO, path, err)
	}
	nc, err := cdf.Open(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is not a netCDF classic file: %w", domain.ErrIO, path, err)
	}
	s := &Store{path: path, file: f, nc: nc, vars: make(map[string]bool)}
	if s.numRecs, err = readNumRecs(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrIO, path, err)
	}
	for _, v := range nc.Header.Variables() {
		s.vars[v] = true
	}
	return s, nil
}

// readNumRecs returns the record count stored right after the magic bytes
// of a classic netCDF header.
func readNumRecs(f *os.File) (int, error) {
	var b [4]byte
	if _, err := f.ReadAt(b[:], 4); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(b[:])
	if n == math.MaxUint32 {
		// Streaming files leave the count indeterminate.
		return 0, nil
	}
	return int(n), nil
}

// Close releases the file.
func (s *Store) Close() error {
	return s.file.Close()
}

// Path returns the file the store was opened from.
func (s *Store) Path() string { return s.path }

// HasVariable reports whether the file defines name.
func (s *Store) HasVariable(name string) bool { return s.vars[name] }

func (s *Store) first(names []string) (string, bool) {
	for _, n := range names {
		if s.vars[n] {
			return n, true
		}
	}
	return "", false
}

// floats reads a whole numeric variable as float64, turning _FillValue and
// missing_value samples into NaN.
func (s *Store) floats(name string) ([]float64, []int, error) {
	lengths := append([]int(nil), s.nc.Header.Lengths(name)...)
	if len(lengths) > 0 && lengths[0] == 0 {
		// Record variables report the unlimited dimension as zero.
		lengths[0] = s.numRecs
	}
	n := 1
	for _, l := range lengths {
		n *= l
	}
	buf := s.nc.Header.ZeroValue(name, n)
	if buf == nil {
		return nil, nil, fmt.Errorf("%w: %s: variable %s has no readable type", domain.ErrIO, s.path, name)
	}
	if n > 0 {
		if _, err := s.nc.Reader(name, make([]int, len(lengths)), lengths).Read(buf); err != nil {
			return nil, nil, fmt.Errorf("%w: %s: read %s: %w", domain.ErrIO, s.path, name, err)
		}
	}
	vals, ok := toFloats(buf)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s: variable %s is not numeric", domain.ErrIO, s.path, name)
	}
	for _, attr := range []string{"_FillValue", "missing_value"} {
		fill, ok := number(s.nc.Header.GetAttribute(name, attr))
		if !ok {
			continue
		}
		for i, v := range vals {
			if v == fill {
				vals[i] = math.NaN()
			}
		}
	}
	return vals, lengths, nil
}

func (s *Store) floatsOf(names []string) ([]float64, []int, error) {
	name, ok := s.first(names)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s: none of %s", domain.ErrIO, s.path, strings.Join(names, ", "))
	}
	return s.floats(name)
}

// Times returns the result time axis.
func (s *Store) Times() ([]time.Time, error) {
	if s.times != nil {
		return s.times, nil
	}
	name, ok := s.first(timeNames)
	if !ok {
		return nil, fmt.Errorf("%w: %s: no time variable", domain.ErrIO, s.path)
	}
	units, _ := s.nc.Header.GetAttribute(name, "units").(string)
	step, ref, err := ParseTimeUnits(units)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	offsets, _, err := s.floats(name)
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, len(offsets))
	for i, o := range offsets {
		times[i] = ref.Add(time.Duration(math.Round(o * float64(step))))
	}
	s.times = times
	return times, nil
}

// Series reads a (time, location) result variable.
func (s *Store) Series(name string) (domain.TimeSeries, error) {
	if !s.vars[name] {
		return domain.TimeSeries{}, fmt.Errorf("%w: %s", domain.ErrUnknownQuantity, name)
	}
	times, err := s.Times()
	if err != nil {
		return domain.TimeSeries{}, err
	}
	vals, lengths, err := s.floats(name)
	if err != nil {
		return domain.TimeSeries{}, err
	}
	if len(lengths) != 2 || lengths[0] != len(times) {
		return domain.TimeSeries{}, fmt.Errorf("%w: %s: %s has shape %v, want (time=%d, location)",
			domain.ErrIO, s.path, name, lengths, len(times))
	}
	nloc := lengths[1]
	ts := domain.TimeSeries{Name: name, Times: times, Values: make([][]float64, len(times))}
	for t := range times {
		ts.Values[t] = vals[t*nloc : (t+1)*nloc]
	}
	return ts, nil
}

// Nodes1D returns the 1D computational nodes.
func (s *Store) Nodes1D() ([]domain.NodePoint, error) {
	xs, _, err := s.floatsOf(node1DX)
	if err != nil {
		return nil, err
	}
	ys, _, err := s.floatsOf(node1DY)
	if err != nil {
		return nil, err
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: %s: 1D node x/y lengths differ", domain.ErrIO, s.path)
	}
	out := make([]domain.NodePoint, len(xs))
	for i := range xs {
		out[i] = domain.NodePoint{Location: i, X: xs[i], Y: ys[i]}
	}
	return out, nil
}

// Faces2D returns one ring per 2D face, from the face bounds when present and
// from the face-node connectivity otherwise.
func (s *Store) Faces2D() ([]domain.Face, error) {
	if _, ok := s.first(faceXBnd); ok {
		return s.facesFromBounds()
	}
	return s.facesFromNodes()
}

func (s *Store) facesFromBounds() ([]domain.Face, error) {
	xs, lengths, err := s.floatsOf(faceXBnd)
	if err != nil {
		return nil, err
	}
	ys, _, err := s.floatsOf(faceYBnd)
	if err != nil {
		return nil, err
	}
	if len(lengths) != 2 || len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: %s: face bounds have shape %v", domain.ErrIO, s.path, lengths)
	}
	nf, nv := lengths[0], lengths[1]
	out := make([]domain.Face, nf)
	for f := range nf {
		ring := make(geom.Path, 0, nv)
		for v := range nv {
			x, y := xs[f*nv+v], ys[f*nv+v]
			if math.IsNaN(x) || math.IsNaN(y) {
				continue
			}
			ring = append(ring, geom.Point{X: x, Y: y})
		}
		out[f] = domain.Face{Location: f, Ring: ring}
	}
	return out, nil
}

func (s *Store) facesFromNodes() ([]domain.Face, error) {
	name, ok := s.first(faceNodes)
	if !ok {
		return nil, fmt.Errorf("%w: %s: no 2D face geometry", domain.ErrIO, s.path)
	}
	conn, lengths, err := s.floats(name)
	if err != nil {
		return nil, err
	}
	xs, _, err := s.floatsOf(node2DX)
	if err != nil {
		return nil, err
	}
	ys, _, err := s.floatsOf(node2DY)
	if err != nil {
		return nil, err
	}
	if len(lengths) != 2 {
		return nil, fmt.Errorf("%w: %s: %s has shape %v", domain.ErrIO, s.path, name, lengths)
	}
	start := 0.0
	if v, ok := number(s.nc.Header.GetAttribute(name, "start_index")); ok {
		start = v
	}
	nf, nv := lengths[0], lengths[1]
	out := make([]domain.Face, nf)
	for f := range nf {
		ring := make(geom.Path, 0, nv)
		for v := range nv {
			idx := conn[f*nv+v]
			if math.IsNaN(idx) {
				continue
			}
			k := int(idx - start)
			if k < 0 || k >= len(xs) {
				continue
			}
			ring = append(ring, geom.Point{X: xs[k], Y: ys[k]})
		}
		out[f] = domain.Face{Location: f, Ring: ring}
	}
	return out, nil
}

// Branches returns the 1D network geometry, one polyline per branch.
func (s *Store) Branches() ([]domain.Branch, error) {
	xs, _, err := s.floatsOf(branchX)
	if err != nil {
		return nil, err
	}
	ys, _, err := s.floatsOf(branchY)
	if err != nil {
		return nil, err
	}
	counts, _, err := s.floatsOf(branchNodeCount)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Branch, 0, len(counts))
	k := 0
	for b, c := range counts {
		n := int(c)
		if n < 0 || k+n > len(xs) || k+n > len(ys) {
			return nil, fmt.Errorf("%w: %s: branch %d geometry exceeds coordinate arrays", domain.ErrIO, s.path, b)
		}
		line := make(geom.LineString, n)
		for i := range n {
			line[i] = geom.Point{X: xs[k+i], Y: ys[k+i]}
		}
		k += n
		out = append(out, domain.Branch{ID: b, Line: line})
	}
	return out, nil
}

// EPSG returns the model CRS code, or 0 when the file does not carry one.
func (s *Store) EPSG() int {
	name, ok := s.first(crsNames)
	if !ok {
		return 0
	}
	if v, ok := number(s.nc.Header.GetAttribute(name, "epsg")); ok && v > 0 {
		return int(v)
	}
	if code, ok := s.nc.Header.GetAttribute(name, "EPSG_code").(string); ok {
		code = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(code)), "EPSG:")
		if v, err := cast.ToIntE(code); err == nil && v > 0 {
			return v
		}
	}
	return 0
}

// Proj4 returns the proj4 definition of the model CRS, or "" when absent.
func (s *Store) Proj4() string {
	name, ok := s.first(crsNames)
	if !ok {
		return ""
	}
	def, _ := s.nc.Header.GetAttribute(name, "proj4_params").(string)
	return strings.TrimSpace(def)
}

// toFloats converts any numeric slice returned by the netCDF reader.
func toFloats(buf any) ([]float64, bool) {
	switch b := buf.(type) {
	case []float64:
		return b, true
	case []float32:
		return convert(b), true
	case []int32:
		return convert(b), true
	case []int16:
		return convert(b), true
	case []int8:
		return convert(b), true
	case []uint8:
		return convert(b), true
	}
	return nil, false
}

func convert[T float32 | int32 | int16 | int8 | uint8](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// number returns the first value of a numeric attribute.
func number(attr any) (float64, bool) {
	if attr == nil {
		return 0, false
	}
	if s, ok := attr.(string); ok {
		v, err := cast.ToFloat64E(strings.TrimSpace(s))
		return v, err == nil
	}
	vals, ok := toFloats(attr)
	if !ok || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

// ParseTimeUnits parses CF units such as "seconds since 2000-01-01 00:00:00".
func ParseTimeUnits(units string) (time.Duration, time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, fmt.Errorf("%w: time units %q", domain.ErrIO, units)
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "seconds", "second", "s":
		step = time.Second
	case "minutes", "minute", "min":
		step = time.Minute
	case "hours", "hour", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("%w: time step in %q", domain.ErrIO, units)
	}
	ref := strings.TrimSpace(parts[1])
	for _, suffix := range []string{" +00:00", " UTC", " +0000", "Z"} {
		ref = strings.TrimSuffix(ref, suffix)
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, ref, time.UTC); err == nil {
			return step, t, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("%w: reference time in %q", domain.ErrIO, units)
}
