// Package shapefile reads bounding areas from ESRI shapefiles and writes the
// per-domain area polygons as debug layers.
package shapefile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"

	"github.com/couchcryptid/flood-inundation/internal/domain"
	"github.com/couchcryptid/flood-inundation/internal/geometry"
)

// areaRecord is the attribute layout of a debug area layer.
type areaRecord struct {
	geom.Polygon
	Location int     `shp:"location"`
	Max      float64 `shp:"max"`
}

// ReadPolygons returns every polygon in the shapefile at path, split into
// single-part polygons and repaired. When target is set and the file has a
// .prj companion the polygons are reprojected into target.
func ReadPolygons(path string, target *proj.SR) ([]geom.Polygon, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrIO, path, err)
	}
	defer dec.Close()

	var trans proj.Transformer
	if target != nil && hasProjection(path) {
		src, err := dec.SR()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: read projection: %w", domain.ErrIO, path, err)
		}
		if trans, err = src.NewTransform(target); err != nil {
			return nil, fmt.Errorf("%w: %s: reproject: %w", domain.ErrGeometry, path, err)
		}
	}

	var out []geom.Polygon
	for row := 0; ; row++ {
		g, _, more := dec.DecodeRowFields()
		if !more {
			break
		}
		if trans != nil {
			if g, err = g.Transform(trans); err != nil {
				return nil, fmt.Errorf("%w: %s: row %d: %w", domain.ErrGeometry, path, row, err)
			}
		}
		polys, err := polygons(g)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", path, row, err)
		}
		for _, p := range polys {
			for _, part := range geometry.Explode(p) {
				fixed, err := geometry.Repair(part)
				if err != nil {
					return nil, fmt.Errorf("%s: row %d: %w", path, row, err)
				}
				if fixed != nil {
					out = append(out, fixed)
				}
			}
		}
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrIO, path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s holds no polygons", domain.ErrGeometry, path)
	}
	return out, nil
}

func polygons(g geom.Geom) ([]geom.Polygon, error) {
	switch v := g.(type) {
	case geom.Polygon:
		return []geom.Polygon{v}, nil
	case geom.MultiPolygon:
		return []geom.Polygon(v), nil
	}
	return nil, fmt.Errorf("%w: bounding areas must be polygons, got %T", domain.ErrGeometry, g)
}

func hasProjection(path string) bool {
	_, err := os.Stat(strings.TrimSuffix(path, filepath.Ext(path)) + ".prj")
	return err == nil
}

// WriteAreas stores areas as a polygon layer with location and max fields.
// Areas without a maximum are written with a NaN max.
func WriteAreas(path string, areas []domain.AreaPolygon) (err error) {
	enc, err := shp.NewEncoder(path, areaRecord{})
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", domain.ErrIO, path, err)
	}
	defer func() {
		enc.Close()
		if err != nil {
			removeLayer(path)
		}
	}()
	for _, a := range areas {
		if len(a.Polygon) == 0 {
			continue
		}
		rec := areaRecord{Polygon: a.Polygon, Location: a.Location, Max: a.Max}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("%w: write %s: location %d: %w", domain.ErrIO, path, a.Location, err)
		}
	}
	return nil
}

// removeLayer deletes the files a failed write may have left behind.
func removeLayer(path string) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		_ = os.Remove(base + ext)
	}
}
