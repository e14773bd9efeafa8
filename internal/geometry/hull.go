package geometry

import (
	"math"
	"sort"

	"github.com/ctessum/geom"
)

// arcSegments is the number of segments used to approximate a quarter circle,
// matching the usual buffer resolution of GIS toolkits.
const arcSegments = 8

// ConvexHull returns the counter-clockwise hull of pts (Andrew's monotone
// chain). Fewer than three distinct non-collinear points yield a degenerate
// ring of up to two points.
func ConvexHull(pts []geom.Point) geom.Path {
	ps := make([]geom.Point, 0, len(pts))
	for _, p := range pts {
		if finite(p) {
			ps = append(ps, p)
		}
	}
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].X != ps[j].X {
			return ps[i].X < ps[j].X
		}
		return ps[i].Y < ps[j].Y
	})
	ps = dedupeSorted(ps)
	if len(ps) < 3 {
		return ps
	}
	hull := make(geom.Path, 0, 2*len(ps))
	for _, p := range ps {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(ps) - 2; i >= 0; i-- {
		p := ps[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func dedupeSorted(ps []geom.Point) []geom.Point {
	out := ps[:0]
	for i, p := range ps {
		if i > 0 && p == ps[i-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ConvexBuffer returns the hull of p grown outward by r, with round corners.
// For a convex polygon this equals its buffer; for a concave one it is the
// buffer of its hull.
func ConvexBuffer(p geom.Polygon, r float64) geom.Polygon {
	var pts []geom.Point
	for _, ring := range p {
		pts = append(pts, ring...)
	}
	return BufferPoints(pts, r)
}

// BufferPoints returns the convex hull of discs of radius r around pts.
func BufferPoints(pts []geom.Point, r float64) geom.Polygon {
	if r <= 0 {
		hull := ConvexHull(pts)
		if len(hull) < 3 {
			return nil
		}
		return geom.Polygon{hull}
	}
	n := 4 * arcSegments
	grown := make([]geom.Point, 0, len(pts)*n)
	for _, c := range ConvexHull(pts) {
		for k := range n {
			a := 2 * math.Pi * float64(k) / float64(n)
			grown = append(grown, geom.Point{X: c.X + r*math.Cos(a), Y: c.Y + r*math.Sin(a)})
		}
	}
	hull := ConvexHull(grown)
	if len(hull) < 3 {
		return nil
	}
	return geom.Polygon{hull}
}

// Envelope returns the axis-aligned bounding rectangle of pts as a polygon.
// It is nil when the points span no area.
func Envelope(pts []geom.Point) geom.Polygon {
	if len(pts) == 0 {
		return nil
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX, minY = math.Min(minX, p.X), math.Min(minY, p.Y)
		maxX, maxY = math.Max(maxX, p.X), math.Max(maxY, p.Y)
	}
	if minX == maxX || minY == maxY {
		return nil
	}
	return Rect(minX, minY, maxX, maxY)
}

// Rect returns the counter-clockwise rectangle polygon of a box.
func Rect(minX, minY, maxX, maxY float64) geom.Polygon {
	return geom.Polygon{{
		{X: minX, Y: minY}, {X: maxX, Y: minY}, {X: maxX, Y: maxY}, {X: minX, Y: maxY},
	}}
}

// clipHalfPlane keeps the part of ring where nx*x + ny*y <= c. A concave ring
// cut into several pieces comes back as one ring joined by zero-width edges.
func clipHalfPlane(ring geom.Path, nx, ny, c float64) geom.Path {
	n := len(ring)
	if n == 0 {
		return nil
	}
	out := make(geom.Path, 0, n+1)
	for i := range n {
		a, b := ring[i], ring[(i+1)%n]
		da := nx*a.X + ny*a.Y - c
		db := nx*b.X + ny*b.Y - c
		if da <= 0 {
			out = append(out, a)
		}
		if (da < 0 && db > 0) || (da > 0 && db < 0) {
			t := da / (da - db)
			out = append(out, geom.Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)})
		}
	}
	if len(out) < 3 {
		return nil
	}
	return out
}
