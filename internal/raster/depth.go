package raster

import (
	"fmt"

	"github.com/couchcryptid/flood-inundation/internal/domain"
)

// Depth returns level - terrain per cell. Cells where either input is NaN or
// the difference is not strictly positive are NaN.
func Depth(level, terrain *Grid) (*Grid, error) {
	if err := checkAligned(level, terrain); err != nil {
		return nil, err
	}
	out := New(level.Spec)
	for i, l := range level.Data {
		t := terrain.Data[i]
		if isNaN(l) || isNaN(t) {
			continue
		}
		if d := l - t; d > 0 {
			out.Data[i] = d
		}
	}
	return out, nil
}

// PositiveOnly returns a copy of g with every value <= 0 replaced by NaN.
// It turns a rasterized depth quantity into an inundation depth.
func PositiveOnly(g *Grid) *Grid {
	out := New(g.Spec)
	for i, v := range g.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}
	return out
}

// Merge combines per-domain depths: the 2D depth where it is positive,
// otherwise the positive 1D depth, otherwise NaN. Either input may be nil
// when that domain produced nothing; both nil is ErrNoInundationComputed.
func Merge(twoD, oneD *Grid) (*Grid, error) {
	switch {
	case twoD == nil && oneD == nil:
		return nil, domain.ErrNoInundationComputed
	case twoD == nil:
		return PositiveOnly(oneD), nil
	case oneD == nil:
		return PositiveOnly(twoD), nil
	}
	if err := checkAligned(twoD, oneD); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	out := New(twoD.Spec)
	for i, v := range twoD.Data {
		switch {
		case v > 0:
			out.Data[i] = v
		case oneD.Data[i] > 0:
			out.Data[i] = oneD.Data[i]
		}
	}
	return out, nil
}

// Mask returns a copy of g keeping only the cells where keep is true.
func Mask(g *Grid, keep []bool) (*Grid, error) {
	if len(keep) != len(g.Data) {
		return nil, fmt.Errorf("%w: mask has %d cells, grid has %d", domain.ErrIO, len(keep), len(g.Data))
	}
	out := New(g.Spec)
	for i, k := range keep {
		if k {
			out.Data[i] = g.Data[i]
		}
	}
	return out, nil
}
