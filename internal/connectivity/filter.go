// Package connectivity removes wet regions that are not plausibly connected
// to the hydraulic domain that produced them.
//
// The filter works on the depth grid directly. Wet cells are grouped into
// components where two cells belong together when their squares, each grown
// by one cell width, touch. A component's area is the area of its wet squares
// grown by one cell width with round corners, the Minkowski sum with a disc.
// Its footprint, written to the filter grid, is every cell whose centre lies
// inside that grown shape. Accepted components keep their depth; the rest
// become NaN.
package connectivity

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"

	"github.com/couchcryptid/flood-inundation/internal/domain"
	"github.com/couchcryptid/flood-inundation/internal/geometry"
	"github.com/couchcryptid/flood-inundation/internal/raster"
)

// Marker values written to the filter grid, positive when kept and negative
// when dropped.
const (
	Marker1D = 1
	Marker2D = 2
)

// Result is the outcome of filtering one domain.
type Result struct {
	// Depth is the input depth restricted to accepted components.
	Depth *raster.Grid
	// Filter holds +marker on accepted footprints, -marker on the wet cells
	// of dropped components and NaN elsewhere.
	Filter  *raster.Grid
	Kept    int
	Dropped int
}

// component is one connected wet region.
type component struct {
	wet       []int
	footprint []int
	area      float64
	accepted  bool
}

// Filter2D keeps components whose footprint area exceeds twice the largest
// 2D face area.
func Filter2D(depth *raster.Grid, maxFaceArea float64) (Result, error) {
	threshold := 2 * maxFaceArea
	return run(depth, Marker2D, func(_ *labeling, c *component) bool {
		return c.area > threshold
	}, nil)
}

// Filter1D keeps components whose footprint touches the 1D branch network.
func Filter1D(depth *raster.Grid, branches []geom.LineString) (Result, error) {
	return run(depth, Marker1D, func(_ *labeling, c *component) bool {
		return c.accepted
	}, func(l *labeling) error {
		return l.markBranches(branches)
	})
}

func run(depth *raster.Grid, marker float32, accept func(*labeling, *component) bool, prepare func(*labeling) error) (Result, error) {
	l, err := label(depth)
	if err != nil {
		return Result{}, err
	}
	if prepare != nil {
		if err := prepare(l); err != nil {
			return Result{}, err
		}
	}
	res := Result{Depth: raster.New(depth.Spec), Filter: raster.New(depth.Spec)}
	for _, c := range l.components {
		if accept(l, c) {
			res.Kept++
			for _, i := range c.footprint {
				res.Filter.Data[i] = marker
			}
			for _, i := range c.wet {
				res.Depth.Data[i] = depth.Data[i]
			}
			continue
		}
		res.Dropped++
		for _, i := range c.wet {
			res.Filter.Data[i] = -marker
		}
	}
	return res, nil
}

// labeling is the component structure of one depth grid.
type labeling struct {
	spec       raster.Spec
	reach      float64 // one cell width in model units
	cw, ch     float64
	labels     []int   // component index per cell, -1 when dry
	components []*component
}

type offset struct{ dx, dy int }

func label(depth *raster.Grid) (*labeling, error) {
	if len(depth.Data) != depth.Cells() {
		return nil, fmt.Errorf("%w: depth grid buffer does not match its shape", domain.ErrIO)
	}
	cw, ch := cellSize(depth.Transform)
	r := cw
	w, h := depth.Width, depth.Height

	// Neighbour offsets whose grown squares touch: the gap between the two
	// squares is at most twice the growth.
	var links []offset
	for _, o := range offsetsWithin(cw, ch, 2*r, true) {
		if o.dy > 0 || (o.dy == 0 && o.dx > 0) {
			links = append(links, o)
		}
	}

	parent := make([]int, len(depth.Data))
	for i, v := range depth.Data {
		if v > 0 {
			parent[i] = i
		} else {
			parent[i] = -1
		}
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for y := range h {
		for x := range w {
			i := y*w + x
			if parent[i] < 0 {
				continue
			}
			for _, o := range links {
				nx, ny := x+o.dx, y+o.dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if parent[j] < 0 {
					continue
				}
				if a, b := find(i), find(j); a != b {
					parent[max(a, b)] = min(a, b)
				}
			}
		}
	}

	l := &labeling{spec: depth.Spec, reach: r, cw: cw, ch: ch, labels: make([]int, len(parent))}
	roots := make(map[int]int)
	for i := range parent {
		l.labels[i] = -1
		if parent[i] < 0 {
			continue
		}
		root := find(i)
		k, ok := roots[root]
		if !ok {
			k = len(l.components)
			roots[root] = k
			l.components = append(l.components, &component{})
		}
		l.labels[i] = k
		l.components[k].wet = append(l.components[k].wet, i)
	}

	// Footprint: cells whose centre is within r of a wet square of the component.
	cover := offsetsWithin(cw, ch, r, false)
	seen := make([]int, len(parent))
	for i := range seen {
		seen[i] = -1
	}
	for k, c := range l.components {
		for _, i := range c.wet {
			x, y := i%w, i/w
			for _, o := range cover {
				nx, ny := x+o.dx, y+o.dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if seen[j] == k {
					continue
				}
				seen[j] = k
				c.footprint = append(c.footprint, j)
			}
		}
		c.area = grownArea(c.wet, w, cw, ch, r)
	}
	return l, nil
}

// span is a horizontal stretch of wet cells [c0, c1) in one row.
type span struct{ c0, c1 int }

// grownArea returns the area of the union of the given cells, each a cw x ch
// rectangle, grown by r with round corners. Each horizontal line through the
// shape crosses a union of intervals whose length is exact; the length is
// integrated over y with Gauss-Legendre quadrature between the rows' edges,
// where it is smooth apart from the points where two arcs meet.
func grownArea(cells []int, width int, cw, ch, r float64) float64 {
	rows := make(map[int][]span)
	for _, i := range cells {
		x, y := i%width, i/width
		rs := rows[y]
		if n := len(rs); n > 0 && rs[n-1].c1 == x {
			rs[n-1].c1 = x + 1
		} else {
			rs = append(rs, span{x, x + 1})
		}
		rows[y] = rs
	}

	var cuts []float64
	for y := range rows {
		y0, y1 := float64(y)*ch, float64(y+1)*ch
		cuts = append(cuts, y0-r, y0, y1, y1+r)
	}
	sort.Float64s(cuts)

	var ivs [][2]float64
	length := func(t float64) float64 {
		ivs = ivs[:0]
		lo := int(math.Floor((t-r)/ch)) - 1
		hi := int(math.Floor((t+r)/ch)) + 1
		for y := lo; y <= hi; y++ {
			rs, ok := rows[y]
			if !ok {
				continue
			}
			y0, y1 := float64(y)*ch, float64(y+1)*ch
			var grow float64
			switch {
			case t >= y0 && t <= y1:
				grow = r
			case t < y0:
				grow = arc(r, y0-t)
			default:
				grow = arc(r, t-y1)
			}
			if grow < 0 {
				continue
			}
			for _, sp := range rs {
				ivs = append(ivs, [2]float64{float64(sp.c0)*cw - grow, float64(sp.c1)*cw + grow})
			}
		}
		return unionLength(ivs)
	}

	var area float64
	for k := 0; k+1 < len(cuts); k++ {
		a, b := cuts[k], cuts[k+1]
		if b <= a {
			continue
		}
		area += integrate(length, a, b)
	}
	return area
}

// arc is the half-width of a disc of radius r at distance d from its centre,
// or -1 beyond the disc.
func arc(r, d float64) float64 {
	if d > r {
		return -1
	}
	return math.Sqrt(r*r - d*d)
}

func unionLength(ivs [][2]float64) float64 {
	if len(ivs) == 0 {
		return 0
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i][0] < ivs[j][0] })
	var total float64
	lo, hi := ivs[0][0], ivs[0][1]
	for _, iv := range ivs[1:] {
		if iv[0] > hi {
			total += hi - lo
			lo, hi = iv[0], iv[1]
			continue
		}
		hi = math.Max(hi, iv[1])
	}
	return total + hi - lo
}

// Five-point Gauss-Legendre nodes and weights on [-1, 1].
var (
	glNodes   = [5]float64{-0.9061798459386640, -0.5384693101056831, 0, 0.5384693101056831, 0.9061798459386640}
	glWeights = [5]float64{0.2369268850561891, 0.4786286704993665, 0.5688888888888889, 0.4786286704993665, 0.2369268850561891}
)

// integrate applies the five-point rule on eight equal pieces of [a, b].
func integrate(f func(float64) float64, a, b float64) float64 {
	const pieces = 8
	h := (b - a) / pieces
	var sum float64
	for p := range pieces {
		mid := a + (float64(p)+0.5)*h
		for i, x := range glNodes {
			sum += glWeights[i] * f(mid+x*h/2)
		}
	}
	return sum * h / 2
}

// offsetsWithin lists the cell offsets whose gap is at most dist. With squares
// set the gap is measured between two cell squares, otherwise between a cell
// centre and a cell square.
func offsetsWithin(cw, ch, dist float64, squares bool) []offset {
	gap := func(d int, size float64) float64 {
		a := math.Abs(float64(d))
		if squares {
			return math.Max(0, a-1) * size
		}
		return math.Max(0, a*size-size/2)
	}
	maxX := int(math.Ceil(dist/cw)) + 1
	maxY := int(math.Ceil(dist/ch)) + 1
	var out []offset
	for dy := -maxY; dy <= maxY; dy++ {
		for dx := -maxX; dx <= maxX; dx++ {
			if math.Hypot(gap(dx, cw), gap(dy, ch)) <= dist {
				out = append(out, offset{dx, dy})
			}
		}
	}
	return out
}

func cellSize(a raster.Affine) (float64, float64) {
	return math.Hypot(a.A, a.D), math.Hypot(a.B, a.E)
}

// markBranches accepts every component with a wet square within one cell
// width of a branch segment.
func (l *labeling) markBranches(branches []geom.LineString) error {
	inv, err := l.spec.Transform.Invert()
	if err != nil {
		return err
	}
	w, h := l.spec.Width, l.spec.Height
	rx := int(math.Ceil(l.reach/l.cw)) + 1
	ry := int(math.Ceil(l.reach/l.ch)) + 1
	for _, line := range branches {
		for s := 0; s+1 < len(line); s++ {
			a, b := line[s], line[s+1]
			ax, ay := inv.Apply(a.X, a.Y)
			bx, by := inv.Apply(b.X, b.Y)
			t0, t1, ok := clipUnit(ax, ay, bx, by, -float64(rx), -float64(ry), float64(w+rx), float64(h+ry))
			if !ok {
				continue
			}
			length := math.Hypot(bx-ax, by-ay) * (t1 - t0)
			steps := max(1, int(math.Ceil(length/0.5)))
			for k := 0; k <= steps; k++ {
				t := t0 + (t1-t0)*float64(k)/float64(steps)
				px, py := ax+t*(bx-ax), ay+t*(by-ay)
				cx, cy := int(math.Floor(px)), int(math.Floor(py))
				for y := cy - ry; y <= cy+ry; y++ {
					for x := cx - rx; x <= cx+rx; x++ {
						if x < 0 || y < 0 || x >= w || y >= h {
							continue
						}
						c := l.labels[y*w+x]
						if c < 0 || l.components[c].accepted {
							continue
						}
						if geometry.SegmentBoxDistance(a, b, l.cellBounds(x, y)) <= l.reach {
							l.components[c].accepted = true
						}
					}
				}
			}
		}
	}
	return nil
}

func (l *labeling) cellBounds(col, row int) geom.Bounds {
	tr := l.spec.Transform
	b := geom.Bounds{
		Min: geom.Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: geom.Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, c := range [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		x, y := tr.Apply(float64(col+c[0]), float64(row+c[1]))
		b.Min.X, b.Min.Y = math.Min(b.Min.X, x), math.Min(b.Min.Y, y)
		b.Max.X, b.Max.Y = math.Max(b.Max.X, x), math.Max(b.Max.Y, y)
	}
	return b
}

// clipUnit clips the segment (ax,ay)-(bx,by) to a box and returns the
// parameter range kept.
func clipUnit(ax, ay, bx, by, minX, minY, maxX, maxY float64) (float64, float64, bool) {
	t0, t1 := 0.0, 1.0
	dx, dy := bx-ax, by-ay
	for _, e := range [4][2]float64{{-dx, ax - minX}, {dx, maxX - ax}, {-dy, ay - minY}, {dy, maxY - ay}} {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, false
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
			return 0, 0, false
		}
	}
	return t0, t1, true
}
