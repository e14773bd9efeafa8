package raster

import (
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-inundation/internal/domain"
)

// unitSpec is a w x h grid of 1m cells with its top-left corner at (0, h).
func unitSpec(w, h int) Spec {
	return Spec{Width: w, Height: h, Transform: NorthUp(0, float64(h), 1, 1)}
}

func rect(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}}
}

func fromValues(spec Spec, vals ...float32) *Grid {
	g := New(spec)
	copy(g.Data, vals)
	return g
}

func nan() float32 { return float32(math.NaN()) }

func TestAffineInvert(t *testing.T) {
	a := Affine{A: 2, B: 0.5, C: 100, D: -0.25, E: -3, F: 500}
	inv, err := a.Invert()
	require.NoError(t, err)

	x, y := a.Apply(7.5, 3.25)
	col, row := inv.Apply(x, y)
	assert.InDelta(t, 7.5, col, 1e-9)
	assert.InDelta(t, 3.25, row, 1e-9)

	_, err = Affine{A: 1, B: 1, D: 1, E: 1}.Invert()
	assert.ErrorIs(t, err, domain.ErrIO)
}

func TestSpecGeometry(t *testing.T) {
	spec := Spec{Width: 4, Height: 2, Transform: NorthUp(10, 20, 5, 5)}
	x, y := spec.Center(0, 0)
	assert.Equal(t, 12.5, x)
	assert.Equal(t, 17.5, y)

	b := spec.Bounds()
	assert.Equal(t, geom.Point{X: 10, Y: 10}, b.Min)
	assert.Equal(t, geom.Point{X: 30, Y: 20}, b.Max)
	assert.InDelta(t, 200.0, spec.Footprint().Area(), 1e-9)
	assert.Equal(t, 25.0, spec.Transform.CellArea())
}

func TestRasterize(t *testing.T) {
	spec := unitSpec(4, 4)

	t.Run("uncovered cells are NaN", func(t *testing.T) {
		g, err := Rasterize(spec, []Shape{{Polygon: rect(0, 0, 1, 1), Value: 1}})
		require.NoError(t, err)
		assert.Equal(t, float32(1), g.At(0, 3))
		assert.Equal(t, 1, CountValid(g))
	})

	t.Run("last writer wins", func(t *testing.T) {
		g, err := Rasterize(spec, []Shape{
			{Polygon: rect(0, 0, 4, 4), Value: 1.0},
			{Polygon: rect(0, 0, 4, 4), Value: 2.0},
		})
		require.NoError(t, err)
		for _, v := range g.Data {
			assert.Equal(t, float32(2), v)
		}

		g, err = Rasterize(spec, []Shape{
			{Polygon: rect(0, 0, 4, 4), Value: 2.0},
			{Polygon: rect(0, 0, 4, 4), Value: 1.0},
		})
		require.NoError(t, err)
		assert.Equal(t, float32(1), g.At(2, 2))
	})

	t.Run("cell centre decides coverage", func(t *testing.T) {
		// Covers x in [0, 1.4): centre 0.5 inside, centre 1.5 outside.
		g, err := Rasterize(spec, []Shape{{Polygon: rect(0, 0, 1.4, 4), Value: 3}})
		require.NoError(t, err)
		assert.True(t, g.Valid(0, 0))
		assert.False(t, g.Valid(1, 0))
	})

	t.Run("holes are not filled", func(t *testing.T) {
		p := rect(0, 0, 4, 4)
		p = append(p, geom.Path{{X: 1, Y: 1}, {X: 1, Y: 3}, {X: 3, Y: 3}, {X: 3, Y: 1}})
		g, err := Rasterize(spec, []Shape{{Polygon: p, Value: 1}})
		require.NoError(t, err)
		assert.Equal(t, 12, CountValid(g))
		assert.False(t, g.Valid(1, 1))
	})

	t.Run("sentinel values burn NaN", func(t *testing.T) {
		g, err := Rasterize(spec, []Shape{
			{Polygon: rect(0, 0, 4, 4), Value: 5},
			{Polygon: rect(0, 0, 2, 4), Value: -999},
			{Polygon: rect(2, 0, 3, 4), Value: math.NaN()},
		})
		require.NoError(t, err)
		assert.False(t, g.Valid(0, 0))
		assert.False(t, g.Valid(2, 0))
		assert.Equal(t, float32(5), g.At(3, 0))
	})

	t.Run("shapes outside the grid are clipped", func(t *testing.T) {
		g, err := Rasterize(spec, []Shape{{Polygon: rect(-10, -10, 0.9, 20), Value: 1}})
		require.NoError(t, err)
		assert.Equal(t, 4, CountValid(g))
	})
}

func TestDepth(t *testing.T) {
	spec := unitSpec(1, 1)
	level, err := Rasterize(spec, []Shape{{Polygon: rect(0, 0, 1, 1), Value: 5}})
	require.NoError(t, err)
	terrain := fromValues(spec, 2)

	d, err := Depth(level, terrain)
	require.NoError(t, err)
	assert.Equal(t, float32(3), d.At(0, 0))

	spec4 := unitSpec(4, 1)
	d, err = Depth(fromValues(spec4, 1, 1, nan(), 3), fromValues(spec4, 1, 2, 0, nan()))
	require.NoError(t, err)
	assert.Equal(t, 0, CountValid(d), "zero, negative and NaN inputs must all be NaN")

	_, err = Depth(level, fromValues(spec4, 0, 0, 0, 0))
	assert.ErrorIs(t, err, domain.ErrIO)
}

func TestPositiveOnly(t *testing.T) {
	spec := unitSpec(3, 1)
	g := PositiveOnly(fromValues(spec, -1, 0, 0.25))
	assert.False(t, g.Valid(0, 0))
	assert.False(t, g.Valid(1, 0))
	assert.Equal(t, float32(0.25), g.At(2, 0))
}

func TestMerge(t *testing.T) {
	spec := unitSpec(4, 1)
	twoD := fromValues(spec, 2, nan(), nan(), 0)
	oneD := fromValues(spec, 1, 1, nan(), 4)

	m, err := Merge(twoD, oneD)
	require.NoError(t, err)
	assert.Equal(t, float32(2), m.At(0, 0), "2D has priority")
	assert.Equal(t, float32(1), m.At(1, 0))
	assert.False(t, m.Valid(2, 0))
	assert.Equal(t, float32(4), m.At(3, 0), "non-positive 2D falls back to 1D")

	only, err := Merge(nil, oneD)
	require.NoError(t, err)
	assert.Equal(t, 3, CountValid(only))

	_, err = Merge(nil, nil)
	assert.ErrorIs(t, err, domain.ErrNoInundationComputed)
}

func TestMask(t *testing.T) {
	spec := unitSpec(2, 1)
	g := fromValues(spec, 1, 2)
	m, err := Mask(g, []bool{false, true})
	require.NoError(t, err)
	assert.False(t, m.Valid(0, 0))
	assert.Equal(t, float32(2), m.At(1, 0))

	_, err = Mask(g, []bool{true})
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	spec := Spec{Width: 4, Height: 1, Transform: NorthUp(0, 1, 2, 2)}
	s := Summarize(fromValues(spec, 1, nan(), 3, 2))
	assert.Equal(t, 4, s.Cells)
	assert.Equal(t, 3, s.Valid)
	assert.Equal(t, 12.0, s.Area)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 3.0, s.Max)
	assert.Equal(t, 2.0, s.Mean)

	empty := Summarize(New(spec))
	assert.Equal(t, 0, empty.Valid)
}
