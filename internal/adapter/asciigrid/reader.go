// Package asciigrid reads ESRI ASCII grid (.asc) terrain files.
package asciigrid

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/spf13/cast"

	"github.com/couchcryptid/flood-inundation/internal/domain"
	"github.com/couchcryptid/flood-inundation/internal/raster"
)

// Read loads an ASCII grid from path.
func Read(path string) (*raster.Grid, raster.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, raster.Metadata{}, fmt.Errorf("%w: open %s: %w", domain.ErrIO, path, err)
	}
	defer f.Close()
	g, meta, err := Decode(f)
	if err != nil {
		return nil, raster.Metadata{}, fmt.Errorf("%s: %w", path, err)
	}
	return g, meta, nil
}

// Decode parses an ASCII grid. Both corner and centre registration of the
// lower-left origin are accepted, as are separate dx/dy cell sizes.
func Decode(r io.Reader) (*raster.Grid, raster.Metadata, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), 1<<30)
	sc.Split(bufio.ScanWords)

	header := make(map[string]float64)
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := cast.ToFloat64E(key); err == nil || key == "nan" {
			first = sc.Text()
			break
		}
		if !sc.Scan() {
			return nil, raster.Metadata{}, fmt.Errorf("%w: asciigrid: header %q has no value", domain.ErrIO, key)
		}
		v, err := cast.ToFloat64E(sc.Text())
		if err != nil {
			return nil, raster.Metadata{}, fmt.Errorf("%w: asciigrid: header %s: %w", domain.ErrIO, key, err)
		}
		header[key] = v
	}

	ncols, nrows := int(header["ncols"]), int(header["nrows"])
	if ncols <= 0 || nrows <= 0 {
		return nil, raster.Metadata{}, fmt.Errorf("%w: asciigrid: missing ncols/nrows", domain.ErrIO)
	}
	dx, dy := header["cellsize"], header["cellsize"]
	if v, ok := header["dx"]; ok {
		dx = v
	}
	if v, ok := header["dy"]; ok {
		dy = v
	}
	if dx <= 0 || dy <= 0 {
		return nil, raster.Metadata{}, fmt.Errorf("%w: asciigrid: missing cell size", domain.ErrIO)
	}
	x0, okX := header["xllcorner"]
	y0, okY := header["yllcorner"]
	if v, ok := header["xllcenter"]; ok && !okX {
		x0 = v - dx/2
	}
	if v, ok := header["yllcenter"]; ok && !okY {
		y0 = v - dy/2
	}

	var meta raster.Metadata
	if v, ok := header["nodata_value"]; ok {
		meta.NoData, meta.HasNoData = v, true
	}

	spec := raster.Spec{Width: ncols, Height: nrows, Transform: raster.NorthUp(x0, y0+float64(nrows)*dy, dx, dy)}
	g := raster.New(spec)
	n := 0
	next := first
	for next != "" || sc.Scan() {
		tok := next
		if tok == "" {
			tok = sc.Text()
		}
		next = ""
		if n >= len(g.Data) {
			return nil, raster.Metadata{}, fmt.Errorf("%w: asciigrid: more than %d values", domain.ErrIO, len(g.Data))
		}
		v, err := cast.ToFloat64E(tok)
		if err != nil {
			return nil, raster.Metadata{}, fmt.Errorf("%w: asciigrid: value %d: %w", domain.ErrIO, n, err)
		}
		g.Data[n] = float32(v)
		n++
	}
	if err := sc.Err(); err != nil {
		return nil, raster.Metadata{}, fmt.Errorf("%w: asciigrid: %w", domain.ErrIO, err)
	}
	if n != len(g.Data) {
		return nil, raster.Metadata{}, fmt.Errorf("%w: asciigrid: got %d values, want %d", domain.ErrIO, n, len(g.Data))
	}
	if meta.HasNoData && math.IsNaN(meta.NoData) {
		meta.HasNoData = false
	}
	return g, meta, nil
}
