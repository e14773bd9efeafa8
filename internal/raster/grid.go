// Package raster holds the in-memory float32 grids every stage of a run works
// on. All grids of a run share the terrain's Spec; nothing is ever resampled.
package raster

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"

	"github.com/couchcryptid/flood-inundation/internal/domain"
)

// Affine maps pixel space (col, row) to model space:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
//
// (col, row) = (0, 0) is the outer corner of the top-left cell, so a cell
// centre sits at (col+0.5, row+0.5).
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// NorthUp returns the transform of an unrotated grid with its top-left corner
// at (x0, y0) and square-or-rectangular cells of the given size.
func NorthUp(x0, y0, cellWidth, cellHeight float64) Affine {
	return Affine{A: cellWidth, C: x0, E: -cellHeight, F: y0}
}

// Apply maps a pixel coordinate to model space.
func (a Affine) Apply(col, row float64) (x, y float64) {
	return a.A*col + a.B*row + a.C, a.D*col + a.E*row + a.F
}

func (a Affine) det() float64 { return a.A*a.E - a.B*a.D }

// Invert returns the model-to-pixel transform.
func (a Affine) Invert() (Affine, error) {
	det := a.det()
	if det == 0 || math.IsNaN(det) {
		return Affine{}, fmt.Errorf("%w: singular raster transform %+v", domain.ErrIO, a)
	}
	return Affine{
		A: a.E / det, B: -a.B / det, C: (a.B*a.F - a.E*a.C) / det,
		D: -a.D / det, E: a.A / det, F: (a.D*a.C - a.A*a.F) / det,
	}, nil
}

// CellWidth is the length of one cell along the column axis.
func (a Affine) CellWidth() float64 { return math.Hypot(a.A, a.D) }

// CellArea is the model-space area of one cell.
func (a Affine) CellArea() float64 { return math.Abs(a.det()) }

// Spec is the shape and georeference of a grid.
type Spec struct {
	Width, Height int
	Transform     Affine
}

// Cells returns Width*Height.
func (s Spec) Cells() int { return s.Width * s.Height }

// Center returns the model coordinate of a cell centre.
func (s Spec) Center(col, row int) (x, y float64) {
	return s.Transform.Apply(float64(col)+0.5, float64(row)+0.5)
}

// Bounds returns the model-space envelope of the whole grid.
func (s Spec) Bounds() *geom.Bounds {
	b := &geom.Bounds{
		Min: geom.Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: geom.Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, p := range s.Footprint()[0] {
		b.Min.X, b.Min.Y = math.Min(b.Min.X, p.X), math.Min(b.Min.Y, p.Y)
		b.Max.X, b.Max.Y = math.Max(b.Max.X, p.X), math.Max(b.Max.Y, p.Y)
	}
	return b
}

// Footprint returns the grid outline as a polygon.
func (s Spec) Footprint() geom.Polygon {
	corners := [][2]float64{{0, 0}, {0, float64(s.Height)}, {float64(s.Width), float64(s.Height)}, {float64(s.Width), 0}}
	ring := make(geom.Path, 0, len(corners))
	for _, c := range corners {
		x, y := s.Transform.Apply(c[0], c[1])
		ring = append(ring, geom.Point{X: x, Y: y})
	}
	return geom.Polygon{ring}
}

// Grid is a float32 raster. NaN marks a cell without data.
type Grid struct {
	Spec
	Data []float32
}

// New allocates a grid filled with NaN.
func New(spec Spec) *Grid {
	data := make([]float32, spec.Cells())
	nan := float32(math.NaN())
	for i := range data {
		data[i] = nan
	}
	return &Grid{Spec: spec, Data: data}
}

// Index returns the offset of (col, row) in Data.
func (g *Grid) Index(col, row int) int { return row*g.Width + col }

// At returns the value of a cell.
func (g *Grid) At(col, row int) float32 { return g.Data[g.Index(col, row)] }

// Set stores the value of a cell.
func (g *Grid) Set(col, row int, v float32) { g.Data[g.Index(col, row)] = v }

// Valid reports whether a cell holds data.
func (g *Grid) Valid(col, row int) bool { return !isNaN(g.At(col, row)) }

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	data := make([]float32, len(g.Data))
	copy(data, g.Data)
	return &Grid{Spec: g.Spec, Data: data}
}

// Aligned reports whether two specs describe the same cells.
func Aligned(a, b Spec) bool {
	return a.Width == b.Width && a.Height == b.Height && a.Transform == b.Transform
}

func checkAligned(a, b *Grid) error {
	if !Aligned(a.Spec, b.Spec) {
		return fmt.Errorf("%w: grid %dx%d %+v is not aligned with %dx%d %+v", domain.ErrIO,
			a.Width, a.Height, a.Transform, b.Width, b.Height, b.Transform)
	}
	if len(a.Data) != a.Cells() || len(b.Data) != b.Cells() {
		return fmt.Errorf("%w: grid buffer does not match its shape", domain.ErrIO)
	}
	return nil
}

func isNaN(v float32) bool { return v != v }

// Metadata carries what the writer needs besides the cells.
type Metadata struct {
	// EPSG is the projected (or geographic) CRS code, 0 when unknown.
	EPSG int
	// NoData is the source nodata value, honoured only when HasNoData is set.
	NoData    float64
	HasNoData bool
}
