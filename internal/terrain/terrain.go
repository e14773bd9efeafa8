// Package terrain loads the digital terrain model that every grid of a run is
// aligned to.
package terrain

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/flood-inundation/internal/adapter/asciigrid"
	"github.com/couchcryptid/flood-inundation/internal/adapter/geotiff"
	"github.com/couchcryptid/flood-inundation/internal/raster"
)

// Elevations outside (InvalidBelow, InvalidAbove) are treated as missing.
const (
	InvalidBelow = -999
	InvalidAbove = 9999
)

// Terrain is a sanitised DTM.
type Terrain struct {
	Grid *raster.Grid
	Meta raster.Metadata
	// Invalid counts the cells turned into NaN by sanitation.
	Invalid int
}

// Load reads a DTM, choosing the format by file extension (.asc for ESRI
// ASCII grids, GeoTIFF otherwise), and sanitises it.
func Load(path string) (Terrain, error) {
	var (
		g    *raster.Grid
		meta raster.Metadata
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".asc":
		g, meta, err = asciigrid.Read(path)
	default:
		g, meta, err = geotiff.Read(path)
	}
	if err != nil {
		return Terrain{}, err
	}
	return Terrain{Grid: g, Meta: meta, Invalid: Sanitize(g, meta)}, nil
}

// Sanitize replaces nodata cells and implausible elevations with NaN in place
// and returns how many cells were already or newly missing.
func Sanitize(g *raster.Grid, meta raster.Metadata) int {
	nan := float32(math.NaN())
	nodata := float32(meta.NoData)
	n := 0
	for i, v := range g.Data {
		switch {
		case math.IsNaN(float64(v)):
		case meta.HasNoData && v == nodata:
		case v <= InvalidBelow || v >= InvalidAbove:
		default:
			continue
		}
		g.Data[i] = nan
		n++
	}
	return n
}
