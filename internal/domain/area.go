package domain

import (
	"math"

	"github.com/ctessum/geom"
)

// AreaPolygon is a polygon carrying the maximum of one hydraulic location:
// a 2D mesh face, an extrapolation buffer around a face, or the Voronoi cell
// of a 1D node. Max is NaN when the location had no value in the window.
type AreaPolygon struct {
	geom.Polygon
	Location int
	Max      float64
}

// HasMax reports whether the polygon carries a finite maximum.
func (a AreaPolygon) HasMax() bool {
	return !math.IsNaN(a.Max) && !math.IsInf(a.Max, 0)
}

// NodePoint is a 1D computational node with its position in model coordinates.
type NodePoint struct {
	Location int
	X, Y     float64
}

// Face is one 2D mesh cell: the outer ring of its vertices in model coordinates.
type Face struct {
	Location int
	Ring     geom.Path
}

// Branch is a 1D network branch polyline.
type Branch struct {
	ID   int
	Line geom.LineString
}
