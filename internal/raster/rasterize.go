package raster

import (
	"math"
	"sort"

	"github.com/ctessum/geom"
)

// SentinelFloor is the value at or below which a burned value is treated as
// corrupt and stored as NaN.
const SentinelFloor = -999

// Shape is one polygon to burn with its value. A slice of shapes is burned in
// order, so later shapes overwrite earlier ones.
type Shape struct {
	Polygon geom.Polygon
	Value   float64
}

// Rasterize burns shapes onto a new grid with the given spec. A cell receives
// the value of the last shape whose interior contains the cell centre; cells
// covered by no shape stay NaN. Rings are filled with the even-odd rule so
// holes are honoured.
func Rasterize(spec Spec, shapes []Shape) (*Grid, error) {
	out := New(spec)
	inv, err := spec.Transform.Invert()
	if err != nil {
		return nil, err
	}
	var (
		edges []edge
		xs    []float64
	)
	for _, s := range shapes {
		edges = toPixelEdges(edges[:0], s.Polygon, inv)
		if len(edges) == 0 {
			continue
		}
		v := burnValue(s.Value)
		minY, maxY := math.Inf(1), math.Inf(-1)
		for _, e := range edges {
			minY = math.Min(minY, math.Min(e.y0, e.y1))
			maxY = math.Max(maxY, math.Max(e.y0, e.y1))
		}
		rowStart := max(0, int(math.Ceil(minY-0.5)))
		rowEnd := min(spec.Height-1, int(math.Ceil(maxY-0.5))-1)
		for row := rowStart; row <= rowEnd; row++ {
			yc := float64(row) + 0.5
			xs = xs[:0]
			for _, e := range edges {
				if (e.y0 <= yc && yc < e.y1) || (e.y1 <= yc && yc < e.y0) {
					xs = append(xs, e.x0+(yc-e.y0)*(e.x1-e.x0)/(e.y1-e.y0))
				}
			}
			sort.Float64s(xs)
			for i := 0; i+1 < len(xs); i += 2 {
				c0 := max(0, int(math.Ceil(xs[i]-0.5)))
				c1 := min(spec.Width-1, int(math.Ceil(xs[i+1]-0.5))-1)
				base := row * spec.Width
				for col := c0; col <= c1; col++ {
					out.Data[base+col] = v
				}
			}
		}
	}
	return out, nil
}

type edge struct{ x0, y0, x1, y1 float64 }

// toPixelEdges appends the non-horizontal ring edges of p in pixel space.
func toPixelEdges(dst []edge, p geom.Polygon, inv Affine) []edge {
	for _, ring := range p {
		n := len(ring)
		if n < 3 {
			continue
		}
		for i := range n {
			a, b := ring[i], ring[(i+1)%n]
			x0, y0 := inv.Apply(a.X, a.Y)
			x1, y1 := inv.Apply(b.X, b.Y)
			if y0 == y1 {
				continue
			}
			dst = append(dst, edge{x0, y0, x1, y1})
		}
	}
	return dst
}

func burnValue(v float64) float32 {
	if math.IsNaN(v) || v <= SentinelFloor {
		return float32(math.NaN())
	}
	return float32(v)
}
