package pipeline

import (
	"github.com/couchcryptid/flood-inundation/internal/adapter/geotiff"
	"github.com/couchcryptid/flood-inundation/internal/adapter/shapefile"
	"github.com/couchcryptid/flood-inundation/internal/adapter/ugrid"
	"github.com/couchcryptid/flood-inundation/internal/terrain"
)

// FileStores reads D-Flow FM map files, GeoTIFF or ASCII terrain and
// shapefile bounding areas, and writes GeoTIFF rasters and shapefile layers.
func FileStores() Stores {
	return Stores{
		OpenResults: func(path string) (ResultStore, error) {
			s, err := ugrid.Open(path)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		LoadTerrain: terrain.Load,
		WriteRaster: geotiff.Write,
		ReadAreas:   shapefile.ReadPolygons,
		WriteAreas:  shapefile.WriteAreas,
	}
}
