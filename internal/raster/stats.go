package raster

import (
	"gonum.org/v1/gonum/floats"
)

// Stats summarises the valid cells of a grid.
type Stats struct {
	Cells int
	Valid int
	Area  float64
	Min   float64
	Max   float64
	Mean  float64
}

// Summarize computes Stats over the non-NaN cells of g.
func Summarize(g *Grid) Stats {
	vals := make([]float64, 0, len(g.Data)/4)
	for _, v := range g.Data {
		if !isNaN(v) {
			vals = append(vals, float64(v))
		}
	}
	s := Stats{Cells: len(g.Data), Valid: len(vals)}
	if len(vals) == 0 {
		return s
	}
	s.Area = float64(len(vals)) * g.Transform.CellArea()
	s.Min = floats.Min(vals)
	s.Max = floats.Max(vals)
	s.Mean = floats.Sum(vals) / float64(len(vals))
	return s
}

// CountValid returns the number of non-NaN cells.
func CountValid(g *Grid) int {
	if g == nil {
		return 0
	}
	n := 0
	for _, v := range g.Data {
		if !isNaN(v) {
			n++
		}
	}
	return n
}
