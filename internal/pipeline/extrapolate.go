package pipeline

import (
	"math"

	"github.com/couchcryptid/flood-inundation/internal/domain"
	"github.com/couchcryptid/flood-inundation/internal/geometry"
	"github.com/couchcryptid/flood-inundation/internal/raster"
)

// Shapes lists areas in order as burnable shapes.
func Shapes(areas []domain.AreaPolygon) []raster.Shape {
	out := make([]raster.Shape, 0, len(areas))
	for _, a := range areas {
		out = append(out, raster.Shape{Polygon: a.Polygon, Value: a.Max})
	}
	return out
}

// Extrapolate returns the 2D shapes to burn. Areas without a maximum are
// dropped. With a positive factor every face is first burned grown by
// sqrt(area) * factor, then all faces are burned at their exact geometry,
// so a cell inside a face always takes that face's value while cells just
// outside the mesh take the value of a neighbouring face.
func Extrapolate(areas []domain.AreaPolygon, factor float64) []raster.Shape {
	wet := make([]domain.AreaPolygon, 0, len(areas))
	for _, a := range areas {
		if a.HasMax() {
			wet = append(wet, a)
		}
	}
	if factor <= 0 {
		return Shapes(wet)
	}
	out := make([]raster.Shape, 0, 2*len(wet))
	for _, a := range wet {
		grown := geometry.ConvexBuffer(a.Polygon, math.Sqrt(geometry.Area(a.Polygon))*factor)
		if grown == nil {
			continue
		}
		out = append(out, raster.Shape{Polygon: grown, Value: a.Max})
	}
	return append(out, Shapes(wet)...)
}
