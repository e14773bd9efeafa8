package geometry

import (
	"math"

	"github.com/ctessum/geom"

	"github.com/couchcryptid/flood-inundation/internal/domain"
)

// Site is a generating point of the tessellation with its value.
type Site struct {
	Location int
	Point    geom.Point
	Value    float64
}

// DefaultRegion returns the region 1D nodes are tessellated over when no
// bounding file is given: the terrain footprint grown by a tenth of its
// linear scale, united with the envelope of the nodes.
func DefaultRegion(footprint geom.Polygon, nodes []geom.Point) geom.Polygon {
	region := ConvexBuffer(footprint, math.Sqrt(Area(footprint))/10)
	env := Envelope(nodes)
	if env == nil {
		return region
	}
	inside := true
	for _, p := range env[0] {
		if !PointInPolygon(p, region) {
			inside = false
			break
		}
	}
	if inside {
		return region
	}
	return polygonOf(region.Union(env))
}

// Voronoi partitions region into one area per site: the points of region
// closer to that site than to any other. Sites sharing a coordinate collapse
// into the first one, carrying the largest finite value among them. A single
// site receives the whole region. Sites whose cell misses the region get no
// area.
func Voronoi(sites []Site, region geom.Polygon) []domain.AreaPolygon {
	uniq := collapse(sites)
	if len(uniq) == 0 || len(region) == 0 {
		return nil
	}
	if len(uniq) == 1 {
		return []domain.AreaPolygon{{Polygon: copyPolygon(region), Location: uniq[0].Location, Max: uniq[0].Value}}
	}

	g := newBuckets(uniq, region.Bounds())
	clip := newRegionClipper(region)
	out := make([]domain.AreaPolygon, 0, len(uniq))
	for i, s := range uniq {
		cell := g.cell(i)
		if cell == nil {
			continue
		}
		clipped := clip.cell(cell)
		if Area(clipped) <= 0 {
			continue
		}
		out = append(out, domain.AreaPolygon{Polygon: clipped, Location: s.Location, Max: s.Value})
	}
	return out
}

// VoronoiWithin tessellates each region separately with the sites that lie
// inside it. Sites outside every region get no area.
func VoronoiWithin(sites []Site, regions []geom.Polygon) []domain.AreaPolygon {
	var out []domain.AreaPolygon
	for _, region := range regions {
		var inside []Site
		for _, s := range sites {
			if PointInPolygon(s.Point, region) {
				inside = append(inside, s)
			}
		}
		out = append(out, Voronoi(inside, region)...)
	}
	return out
}

// halfPlane is the set of points where nx*x + ny*y <= c.
type halfPlane struct{ nx, ny, c float64 }

// leftOf returns the half-plane to the left of the directed edge a->b.
func leftOf(a, b geom.Point) halfPlane {
	nx, ny := b.Y-a.Y, a.X-b.X
	return halfPlane{nx: nx, ny: ny, c: nx*a.X + ny*a.Y}
}

// edgePlanes returns the inner half-planes of a convex ring, or nil when the
// ring turns clockwise anywhere beyond rounding noise.
func edgePlanes(ring geom.Path) []halfPlane {
	r := cleanRing(ring)
	if r == nil {
		return nil
	}
	r = orient(r, true)
	b := geom.Polygon{r}.Bounds()
	tol := 1e-12 * (b.Max.X - b.Min.X) * (b.Max.Y - b.Min.Y)
	n := len(r)
	for i := range n {
		if cross(r[i], r[(i+1)%n], r[(i+2)%n]) < -tol {
			return nil
		}
	}
	return ringPlanes(r)
}

// ringPlanes returns the half-planes left of each edge of a ring.
func ringPlanes(r geom.Path) []halfPlane {
	n := len(r)
	planes := make([]halfPlane, 0, n)
	for i := range n {
		planes = append(planes, leftOf(r[i], r[(i+1)%n]))
	}
	return planes
}

func clipPlanes(ring geom.Path, planes []halfPlane) geom.Path {
	for _, h := range planes {
		ring = clipHalfPlane(ring, h.nx, h.ny, h.c)
		if ring == nil {
			return nil
		}
	}
	return ring
}

// regionClipper intersects convex Voronoi cells with a region. A convex
// single-ring region is clipped edge by edge. Other regions go through
// polyclip on coordinates snapped to a grid of 1e-9 of the region extent,
// since polyclip loses parts when vertices nearly coincide. The polyclip
// result is checked against a per-ring clip of the region by the cell, which
// is exact in area, and replaced by it when the two disagree.
type regionClipper struct {
	region  geom.Polygon
	hole    []bool
	planes  []halfPlane
	snapped geom.Polygon
	quantum float64
}

func newRegionClipper(region geom.Polygon) *regionClipper {
	rc := &regionClipper{region: region}
	if len(region) == 1 {
		rc.planes = edgePlanes(region[0])
	}
	if rc.planes != nil {
		return rc
	}
	rc.hole = make([]bool, len(region))
	for i, ring := range region {
		if len(ring) < 2 {
			continue
		}
		inside := interiorPoint(ring)
		for j, other := range region {
			if j != i && PointInRing(inside, other) {
				rc.hole[i] = !rc.hole[i]
			}
		}
	}
	b := region.Bounds()
	rc.quantum = math.Max(b.Max.X-b.Min.X, b.Max.Y-b.Min.Y) * 1e-9
	if rc.quantum == 0 {
		rc.quantum = 1e-9
	}
	for _, ring := range region {
		if r := rc.snap(ring); r != nil {
			rc.snapped = append(rc.snapped, r)
		}
	}
	return rc
}

func (rc *regionClipper) snap(ring geom.Path) geom.Path {
	out := make(geom.Path, len(ring))
	for i, p := range ring {
		out[i] = geom.Point{X: math.Round(p.X/rc.quantum) * rc.quantum, Y: math.Round(p.Y/rc.quantum) * rc.quantum}
	}
	return cleanRing(out)
}

func (rc *regionClipper) cell(cell geom.Path) geom.Polygon {
	if rc.planes != nil {
		r := cleanRing(clipPlanes(cell, rc.planes))
		if r == nil {
			return nil
		}
		return geom.Polygon{r}
	}

	planes := ringPlanes(orient(cell, true))
	var exact geom.Polygon
	var want float64
	for i, ring := range rc.region {
		r := cleanRing(clipPlanes(ring, planes))
		if r == nil {
			continue
		}
		if rc.hole[i] {
			want -= math.Abs(SignedArea(r))
		} else {
			want += math.Abs(SignedArea(r))
		}
		exact = append(exact, orient(r, !rc.hole[i]))
	}
	if want <= 0 {
		return nil
	}
	sc := rc.snap(cell)
	if sc == nil {
		return exact
	}
	got := polygonOf(geom.Polygon{sc}.Intersection(rc.snapped))
	if math.Abs(Area(got)-want) > 1e-6*want {
		return exact
	}
	return got
}

func collapse(sites []Site) []Site {
	seen := make(map[geom.Point]int, len(sites))
	out := make([]Site, 0, len(sites))
	for _, s := range sites {
		if !finite(s.Point) {
			continue
		}
		if k, ok := seen[s.Point]; ok {
			if v := s.Value; !math.IsNaN(v) && (math.IsNaN(out[k].Value) || v > out[k].Value) {
				out[k].Value = v
			}
			continue
		}
		seen[s.Point] = len(out)
		out = append(out, s)
	}
	return out
}

func copyPolygon(p geom.Polygon) geom.Polygon {
	out := make(geom.Polygon, len(p))
	for i, r := range p {
		out[i] = append(geom.Path(nil), r...)
	}
	return out
}

// buckets is a uniform grid over the sites used to visit neighbours in order
// of increasing distance.
type buckets struct {
	sites      []Site
	minX, minY float64
	size       float64
	nx, ny     int
	cells      [][]int
	frame      geom.Path
}

func newBuckets(sites []Site, regionBounds *geom.Bounds) *buckets {
	minX, minY := regionBounds.Min.X, regionBounds.Min.Y
	maxX, maxY := regionBounds.Max.X, regionBounds.Max.Y
	for _, s := range sites {
		minX, minY = math.Min(minX, s.Point.X), math.Min(minY, s.Point.Y)
		maxX, maxY = math.Max(maxX, s.Point.X), math.Max(maxY, s.Point.Y)
	}
	margin := 0.1*math.Hypot(maxX-minX, maxY-minY) + 1
	minX, minY, maxX, maxY = minX-margin, minY-margin, maxX+margin, maxY+margin

	w, h := maxX-minX, maxY-minY
	size := math.Sqrt(w * h / float64(len(sites)))
	b := &buckets{
		sites: sites,
		minX:  minX, minY: minY,
		size:  size,
		nx:    int(math.Ceil(w/size)) + 1,
		ny:    int(math.Ceil(h/size)) + 1,
		frame: Rect(minX, minY, maxX, maxY)[0],
	}
	b.cells = make([][]int, b.nx*b.ny)
	for i, s := range sites {
		ix, iy := b.locate(s.Point)
		b.cells[iy*b.nx+ix] = append(b.cells[iy*b.nx+ix], i)
	}
	return b
}

func (b *buckets) locate(p geom.Point) (int, int) {
	ix := min(b.nx-1, max(0, int((p.X-b.minX)/b.size)))
	iy := min(b.ny-1, max(0, int((p.Y-b.minY)/b.size)))
	return ix, iy
}

// cell returns the convex Voronoi cell of site i within the frame. Rings of
// buckets are visited outward until no unvisited site can be closer than
// twice the cell's farthest vertex.
func (b *buckets) cell(i int) geom.Path {
	p := b.sites[i].Point
	ring := append(geom.Path(nil), b.frame...)
	cx, cy := b.locate(p)
	maxRing := max(b.nx, b.ny)
	for k := 0; k <= maxRing; k++ {
		for iy := cy - k; iy <= cy+k; iy++ {
			for ix := cx - k; ix <= cx+k; ix++ {
				if ix < 0 || iy < 0 || ix >= b.nx || iy >= b.ny {
					continue
				}
				if max(abs(ix-cx), abs(iy-cy)) != k {
					continue
				}
				for _, j := range b.cells[iy*b.nx+ix] {
					if j == i {
						continue
					}
					q := b.sites[j].Point
					nx, ny := q.X-p.X, q.Y-p.Y
					c := (q.X*q.X + q.Y*q.Y - p.X*p.X - p.Y*p.Y) / 2
					ring = clipHalfPlane(ring, nx, ny, c)
					if ring == nil {
						return nil
					}
				}
			}
		}
		if float64(k)*b.size >= 2*farthest(p, ring) {
			break
		}
	}
	return ring
}

func farthest(p geom.Point, ring geom.Path) float64 {
	var d float64
	for _, v := range ring {
		d = math.Max(d, math.Hypot(v.X-p.X, v.Y-p.Y))
	}
	return d
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
