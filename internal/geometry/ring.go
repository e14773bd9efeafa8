// Package geometry holds the polygon operations of a run on top of
// github.com/ctessum/geom: ring repair, convex hull buffers, explode, the
// Voronoi area builder and the face index used to carve 1D coverage out of
// the 2D mesh.
package geometry

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"

	"github.com/couchcryptid/flood-inundation/internal/domain"
)

// SignedArea returns the shoelace area of a ring, positive when
// counter-clockwise. The ring may or may not repeat its first vertex.
func SignedArea(ring geom.Path) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	var s float64
	for i := range n {
		a, b := ring[i], ring[(i+1)%n]
		s += a.X*b.Y - b.X*a.Y
	}
	return s / 2
}

// PointInRing reports whether p lies inside ring using the even-odd rule.
func PointInRing(p geom.Point, ring geom.Path) bool {
	in := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if (a.Y > p.Y) != (b.Y > p.Y) && p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			in = !in
		}
	}
	return in
}

// PointInPolygon reports whether p lies inside p, honouring holes.
func PointInPolygon(pt geom.Point, p geom.Polygon) bool {
	in := false
	for _, ring := range p {
		if PointInRing(pt, ring) {
			in = !in
		}
	}
	return in
}

// cleanRing drops a repeated closing vertex, consecutive duplicates and
// collinear spikes. It returns nil when fewer than three vertices remain.
func cleanRing(ring geom.Path) geom.Path {
	out := make(geom.Path, 0, len(ring))
	for _, p := range ring {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	if len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	for changed := true; changed && len(out) >= 3; {
		changed = false
		for i := 0; i < len(out) && len(out) >= 3; i++ {
			a, b, c := out[(i+len(out)-1)%len(out)], out[i], out[(i+1)%len(out)]
			if cross(a, b, c) == 0 {
				out = append(out[:i], out[i+1:]...)
				changed = true
				i--
			}
		}
	}
	if len(out) < 3 {
		return nil
	}
	return out
}

func cross(a, b, c geom.Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func finite(p geom.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// selfIntersects reports whether two non-adjacent edges of ring cross.
func selfIntersects(ring geom.Path) bool {
	n := len(ring)
	for i := range n {
		a1, a2 := ring[i], ring[(i+1)%n]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if segmentsCross(a1, a2, ring[j], ring[(j+1)%n]) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(p1, p2, q1, q2 geom.Point) bool {
	d1, d2 := cross(q1, q2, p1), cross(q1, q2, p2)
	d3, d4 := cross(p1, p2, q1), cross(p1, p2, q2)
	return ((d1 > 0) != (d2 > 0)) && d1 != 0 && d2 != 0 &&
		((d3 > 0) != (d4 > 0)) && d3 != 0 && d4 != 0
}

// Repair normalises the rings of p and resolves self-intersections by
// running the polygon once through the boolean engine against its own
// envelope. A polygon that collapses to zero area repairs to nil. Polygons
// with non-finite coordinates, or that still self-intersect, fail with
// domain.ErrGeometry.
func Repair(p geom.Polygon) (geom.Polygon, error) {
	var out geom.Polygon
	broken := false
	for _, ring := range p {
		for _, pt := range ring {
			if !finite(pt) {
				return nil, fmt.Errorf("%w: non-finite vertex %v", domain.ErrGeometry, pt)
			}
		}
		r := cleanRing(ring)
		if r == nil || SignedArea(r) == 0 {
			continue
		}
		if selfIntersects(r) {
			broken = true
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, nil
	}
	if !broken {
		return out, nil
	}

	b := out.Bounds()
	resolved := polygonOf(out.Intersection(geom.Polygon{{
		b.Min, {X: b.Max.X, Y: b.Min.Y}, b.Max, {X: b.Min.X, Y: b.Max.Y},
	}}))
	var fixed geom.Polygon
	for _, ring := range resolved {
		r := cleanRing(ring)
		if r == nil || SignedArea(r) == 0 {
			continue
		}
		if selfIntersects(r) {
			return nil, fmt.Errorf("%w: polygon still self-intersects after repair", domain.ErrGeometry)
		}
		fixed = append(fixed, r)
	}
	return fixed, nil
}

// polygonOf unwraps the result of a geom boolean operation, which is always
// a geom.Polygon behind the Polygonal interface.
func polygonOf(p geom.Polygonal) geom.Polygon {
	if p == nil {
		return nil
	}
	if poly, ok := p.(geom.Polygon); ok {
		return poly
	}
	var out geom.Polygon
	for _, part := range p.Polygons() {
		out = append(out, part...)
	}
	return out
}

// Area returns the area of p with holes subtracted.
func Area(p geom.Polygon) float64 {
	if len(p) == 0 {
		return 0
	}
	return p.Area()
}
