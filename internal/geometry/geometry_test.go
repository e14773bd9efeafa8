package geometry

import (
	"fmt"
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-inundation/internal/domain"
)

func totalArea(areas []domain.AreaPolygon) float64 {
	var s float64
	for _, a := range areas {
		s += Area(a.Polygon)
	}
	return s
}

func TestSignedAreaAndContainment(t *testing.T) {
	sq := Rect(0, 0, 2, 2)[0]
	assert.Equal(t, 4.0, SignedArea(sq))
	assert.Equal(t, -4.0, SignedArea(orient(sq, false)))

	assert.True(t, PointInRing(geom.Point{X: 1, Y: 1}, sq))
	assert.False(t, PointInRing(geom.Point{X: 3, Y: 1}, sq))

	holed := append(Rect(0, 0, 4, 4), Rect(1, 1, 3, 3)[0])
	assert.False(t, PointInPolygon(geom.Point{X: 2, Y: 2}, holed))
	assert.True(t, PointInPolygon(geom.Point{X: 0.5, Y: 2}, holed))
}

func TestRepair(t *testing.T) {
	t.Run("drops closing and duplicate vertices", func(t *testing.T) {
		p := geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 0, Y: 0}}}
		got, err := Repair(p)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Len(t, got[0], 4)
		assert.InDelta(t, 1.0, Area(got), 1e-12)
	})

	t.Run("collapsed polygon repairs to nil", func(t *testing.T) {
		got, err := Repair(geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}})
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("non-finite vertices are a geometry error", func(t *testing.T) {
		_, err := Repair(geom.Polygon{{{X: 0, Y: 0}, {X: math.NaN(), Y: 0}, {X: 1, Y: 1}}})
		assert.ErrorIs(t, err, domain.ErrGeometry)
	})
}

func TestConvexHull(t *testing.T) {
	pts := []geom.Point{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 0, Y: 2}, {X: 0, Y: 0}}
	hull := ConvexHull(pts)
	assert.Len(t, hull, 4)
	assert.InDelta(t, 4.0, SignedArea(hull), 1e-12)

	assert.Len(t, ConvexHull([]geom.Point{{X: 0, Y: 0}, {X: 0, Y: 0}}), 1)
}

func TestConvexBuffer(t *testing.T) {
	sq := Rect(0, 0, 2, 2)
	b := ConvexBuffer(sq, 1)
	// Square plus four 2x1 strips plus a full (polygonal) disc.
	want := 4 + 8 + math.Pi
	assert.InDelta(t, want, Area(b), 0.1)
	assert.True(t, PointInPolygon(geom.Point{X: -0.9, Y: 1}, b))
	assert.False(t, PointInPolygon(geom.Point{X: -1.1, Y: 1}, b))

	assert.InDelta(t, 4.0, Area(ConvexBuffer(sq, 0)), 1e-12)
}

func TestExplode(t *testing.T) {
	// Two disjoint squares, the first with a hole, rings given in mixed order
	// and winding.
	p := geom.Polygon{
		orient(Rect(1, 1, 2, 2)[0], true),
		Rect(10, 0, 12, 2)[0],
		orient(Rect(0, 0, 4, 4)[0], false),
	}
	parts := Explode(p)
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 2, "large square keeps its hole")
	assert.InDelta(t, 15.0, Area(parts[0]), 1e-9)
	assert.Len(t, parts[1], 1)
	assert.Greater(t, SignedArea(parts[0][0]), 0.0)
	assert.Less(t, SignedArea(parts[0][1]), 0.0)
}

func TestVoronoi(t *testing.T) {
	region := Rect(0, 0, 10, 10)

	t.Run("two sites split the region at the bisector", func(t *testing.T) {
		cells := Voronoi([]Site{
			{Location: 0, Point: geom.Point{X: 2.5, Y: 5}, Value: 1},
			{Location: 1, Point: geom.Point{X: 7.5, Y: 5}, Value: 2},
		}, region)
		require.Len(t, cells, 2)
		assert.InDelta(t, 50.0, Area(cells[0].Polygon), 1e-6)
		assert.InDelta(t, 50.0, Area(cells[1].Polygon), 1e-6)
		assert.Equal(t, 2.0, cells[1].Max)
	})

	t.Run("cells hold the points nearest their site", func(t *testing.T) {
		sites := []Site{
			{Location: 0, Point: geom.Point{X: 1, Y: 1}},
			{Location: 1, Point: geom.Point{X: 8, Y: 2}},
			{Location: 2, Point: geom.Point{X: 5, Y: 9}},
			{Location: 3, Point: geom.Point{X: 4, Y: 4}},
		}
		cells := Voronoi(sites, region)
		require.Len(t, cells, 4)
		assert.InDelta(t, 100.0, totalArea(cells), 1e-6)

		for x := 0.25; x < 10; x += 0.5 {
			for y := 0.25; y < 10; y += 0.5 {
				pt := geom.Point{X: x, Y: y}
				best, bestD := -1, math.Inf(1)
				for _, s := range sites {
					if d := math.Hypot(s.Point.X-x, s.Point.Y-y); d < bestD {
						best, bestD = s.Location, d
					}
				}
				for _, c := range cells {
					if PointInPolygon(pt, c.Polygon) {
						assert.Equal(t, best, c.Location, "point %v", pt)
					}
				}
			}
		}
	})

	t.Run("single site receives the region", func(t *testing.T) {
		cells := Voronoi([]Site{{Location: 7, Point: geom.Point{X: 3, Y: 3}, Value: 1}}, region)
		require.Len(t, cells, 1)
		assert.Equal(t, 7, cells[0].Location)
		assert.InDelta(t, 100.0, Area(cells[0].Polygon), 1e-9)
	})

	t.Run("duplicates collapse to the first with the largest value", func(t *testing.T) {
		cells := Voronoi([]Site{
			{Location: 0, Point: geom.Point{X: 2, Y: 2}, Value: 1},
			{Location: 1, Point: geom.Point{X: 2, Y: 2}, Value: 3},
			{Location: 2, Point: geom.Point{X: 8, Y: 8}, Value: math.NaN()},
		}, region)
		require.Len(t, cells, 2)
		assert.Equal(t, 0, cells[0].Location)
		assert.Equal(t, 3.0, cells[0].Max)
		assert.True(t, math.IsNaN(cells[1].Max))
	})

	t.Run("collinear sites produce strips", func(t *testing.T) {
		cells := Voronoi([]Site{
			{Location: 0, Point: geom.Point{X: 1, Y: 5}},
			{Location: 1, Point: geom.Point{X: 5, Y: 5}},
			{Location: 2, Point: geom.Point{X: 9, Y: 5}},
		}, region)
		require.Len(t, cells, 3)
		assert.InDelta(t, 30.0, Area(cells[0].Polygon), 1e-6)
		assert.InDelta(t, 40.0, Area(cells[1].Polygon), 1e-6)
	})

	t.Run("no sites", func(t *testing.T) {
		assert.Empty(t, Voronoi(nil, region))
	})
}

func channelSites(n int, y, length float64) []Site {
	sites := make([]Site, n)
	for i := range sites {
		sites[i] = Site{Location: i, Point: geom.Point{X: (float64(i) + 0.5) * length / float64(n), Y: y}, Value: float64(i)}
	}
	return sites
}

func TestVoronoiChannelLayouts(t *testing.T) {
	tests := []struct {
		name   string
		region geom.Polygon
		area   float64
	}{
		{"rectangle", Rect(0, 0, 100, 50), 5000},
		{"clockwise rectangle", geom.Polygon{{{X: 0, Y: 0}, {X: 0, Y: 50}, {X: 100, Y: 50}, {X: 100, Y: 0}}}, 5000},
		{"l-shaped", geom.Polygon{{
			{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 30}, {X: 40, Y: 30}, {X: 40, Y: 50}, {X: 0, Y: 50},
		}}, 100*30 + 40*20},
		{"with a hole", geom.Polygon{
			Rect(0, 0, 100, 50)[0],
			{{X: 45, Y: 35}, {X: 45, Y: 45}, {X: 55, Y: 45}, {X: 55, Y: 35}},
		}, 5000 - 100},
	}
	for _, tt := range tests {
		for _, n := range []int{2, 3, 5, 10, 25} {
			t.Run(fmt.Sprintf("%s/%d nodes", tt.name, n), func(t *testing.T) {
				cells := Voronoi(channelSites(n, 25, 100), tt.region)
				require.Len(t, cells, n)
				assert.InDelta(t, tt.area, totalArea(cells), 1e-6*tt.area)
				for _, c := range cells {
					centre := geom.Point{X: (float64(c.Location) + 0.5) * 100 / float64(n), Y: 25}
					assert.True(t, PointInPolygon(centre, c.Polygon), "site %d lies in its own cell", c.Location)
				}
			})
		}
	}

	t.Run("rectangle strips are equal", func(t *testing.T) {
		cells := Voronoi(channelSites(10, 25, 100), Rect(0, 0, 100, 50))
		require.Len(t, cells, 10)
		for _, c := range cells {
			assert.InDelta(t, 500.0, Area(c.Polygon), 1e-6)
		}
	})
}

func TestVoronoiWithin(t *testing.T) {
	left, right := Rect(0, 0, 5, 10), Rect(5, 0, 10, 10)
	cells := VoronoiWithin([]Site{
		{Location: 0, Point: geom.Point{X: 2, Y: 5}},
		{Location: 1, Point: geom.Point{X: 7, Y: 5}},
		{Location: 2, Point: geom.Point{X: 20, Y: 5}},
	}, []geom.Polygon{left, right})
	require.Len(t, cells, 2)
	assert.InDelta(t, 50.0, Area(cells[0].Polygon), 1e-9)
	assert.Equal(t, 1, cells[1].Location)
}

func TestDefaultRegion(t *testing.T) {
	footprint := Rect(0, 0, 10, 10)

	inside := DefaultRegion(footprint, []geom.Point{{X: 1, Y: 1}, {X: 9, Y: 9}})
	assert.Greater(t, Area(inside), 100.0)
	assert.True(t, PointInPolygon(geom.Point{X: -0.5, Y: 5}, inside))

	grown := DefaultRegion(footprint, []geom.Point{{X: 1, Y: 1}, {X: 30, Y: 30}})
	assert.Greater(t, Area(grown), Area(inside))
}

func TestFaceIndexCarve(t *testing.T) {
	idx := NewFaceIndex([]geom.Polygon{Rect(4, 0, 6, 10), Rect(0, 0, 0, 0)})
	assert.Equal(t, 1, idx.Len())

	parts := idx.Carve([]domain.AreaPolygon{{Polygon: Rect(0, 0, 10, 10), Location: 3, Max: 1.5}})
	require.Len(t, parts, 2, "the face splits the area in two")
	for _, p := range parts {
		assert.Equal(t, 3, p.Location)
		assert.Equal(t, 1.5, p.Max)
		assert.InDelta(t, 40.0, Area(p.Polygon), 1e-6)
	}

	untouched := idx.Carve([]domain.AreaPolygon{{Polygon: Rect(20, 20, 21, 21)}})
	require.Len(t, untouched, 1)
	assert.InDelta(t, 1.0, Area(untouched[0].Polygon), 1e-12)
}

func TestSegmentBoxDistance(t *testing.T) {
	box := geom.Bounds{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 1, Y: 1}}
	assert.Equal(t, 0.0, SegmentBoxDistance(geom.Point{X: -1, Y: 0.5}, geom.Point{X: 2, Y: 0.5}, box))
	assert.InDelta(t, 1.0, SegmentBoxDistance(geom.Point{X: -1, Y: 2}, geom.Point{X: 2, Y: 2}, box), 1e-12)
	assert.InDelta(t, math.Sqrt2, SegmentBoxDistance(geom.Point{X: 2, Y: 2}, geom.Point{X: 3, Y: 3}, box), 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), SegmentBoxDistance(geom.Point{X: 2, Y: 1}, geom.Point{X: 1, Y: 2}, box), 1e-12)
}
