package geometry

import (
	"math"

	"github.com/ctessum/geom"
)

// PointBoxDistance returns the distance from p to the closed box b.
func PointBoxDistance(p geom.Point, b geom.Bounds) float64 {
	dx := math.Max(0, math.Max(b.Min.X-p.X, p.X-b.Max.X))
	dy := math.Max(0, math.Max(b.Min.Y-p.Y, p.Y-b.Max.Y))
	return math.Hypot(dx, dy)
}

// SegmentBoxDistance returns the shortest distance between segment ab and the
// closed box b. It is zero when the segment touches or crosses the box.
func SegmentBoxDistance(a, c geom.Point, b geom.Bounds) float64 {
	if clipsBox(a, c, b) {
		return 0
	}
	d := math.Min(PointBoxDistance(a, b), PointBoxDistance(c, b))
	corners := [4]geom.Point{b.Min, {X: b.Max.X, Y: b.Min.Y}, b.Max, {X: b.Min.X, Y: b.Max.Y}}
	for _, k := range corners {
		d = math.Min(d, PointSegmentDistance(k, a, c))
	}
	return d
}

// PointSegmentDistance returns the distance from p to segment ab.
func PointSegmentDistance(p, a, b geom.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := math.Max(0, math.Min(1, ((p.X-a.X)*dx+(p.Y-a.Y)*dy)/l2))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

// clipsBox reports whether segment ac intersects box b (Liang-Barsky).
func clipsBox(a, c geom.Point, b geom.Bounds) bool {
	t0, t1 := 0.0, 1.0
	dx, dy := c.X-a.X, c.Y-a.Y
	for _, e := range [4][2]float64{
		{-dx, a.X - b.Min.X},
		{dx, b.Max.X - a.X},
		{-dy, a.Y - b.Min.Y},
		{dy, b.Max.Y - a.Y},
	} {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return false
			}
			continue
		}
		r := q / p
		if p < 0 {
			t0 = math.Max(t0, r)
		} else {
			t1 = math.Min(t1, r)
		}
		if t0 > t1 {
			return false
		}
	}
	return true
}
