package geometry

import (
	"math"
	"sort"

	"github.com/ctessum/geom"
)

// Explode splits a polygon whose rings describe several parts into
// single-part polygons: one outer ring each, followed by the holes directly
// inside it. Nesting is decided by containment, not by winding order, since
// boolean results do not guarantee orientation. Zero-area rings are dropped.
func Explode(p geom.Polygon) []geom.Polygon {
	type ringInfo struct {
		ring   geom.Path
		area   float64
		depth  int
		parent int
	}
	rings := make([]ringInfo, 0, len(p))
	for _, r := range p {
		r = cleanRing(r)
		if r == nil {
			continue
		}
		a := math.Abs(SignedArea(r))
		if a == 0 {
			continue
		}
		rings = append(rings, ringInfo{ring: r, area: a, parent: -1})
	}
	// Larger rings first so a ring's container precedes it.
	sort.SliceStable(rings, func(i, j int) bool { return rings[i].area > rings[j].area })

	for i := range rings {
		inside := interiorPoint(rings[i].ring)
		for j := i - 1; j >= 0; j-- {
			if PointInRing(inside, rings[j].ring) {
				// The smallest container is the nearest larger ring holding that point.
				if rings[i].parent == -1 || rings[j].area < rings[rings[i].parent].area {
					rings[i].parent = j
				}
			}
		}
		if par := rings[i].parent; par >= 0 {
			rings[i].depth = rings[par].depth + 1
		}
	}

	index := make(map[int]int)
	var parts []geom.Polygon
	for i, r := range rings {
		if r.depth%2 == 0 {
			index[i] = len(parts)
			parts = append(parts, geom.Polygon{orient(r.ring, true)})
		}
	}
	for _, r := range rings {
		if r.depth%2 == 1 {
			k := index[r.parent]
			parts[k] = append(parts[k], orient(r.ring, false))
		}
	}
	return parts
}

// interiorPoint returns a point just inside the ring next to its first edge,
// which avoids testing a vertex shared with a neighbouring ring.
func interiorPoint(ring geom.Path) geom.Point {
	a, b := ring[0], ring[1]
	mx, my := (a.X+b.X)/2, (a.Y+b.Y)/2
	dx, dy := b.X-a.X, b.Y-a.Y
	l := math.Hypot(dx, dy)
	if l == 0 {
		return a
	}
	// Left normal points inward for a counter-clockwise ring.
	nx, ny := -dy/l, dx/l
	if SignedArea(ring) < 0 {
		nx, ny = -nx, -ny
	}
	eps := l * 1e-6
	return geom.Point{X: mx + nx*eps, Y: my + ny*eps}
}

// orient returns ring wound counter-clockwise when ccw is set, clockwise
// otherwise.
func orient(ring geom.Path, ccw bool) geom.Path {
	if (SignedArea(ring) > 0) == ccw {
		return ring
	}
	out := make(geom.Path, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}
