// Package series reduces result-store time series to per-location maxima
// over a time window.
package series

import (
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/flood-inundation/internal/domain"
)

// Known variable names per quantity and domain, in lookup order. Result files
// written by different solver versions differ only in capitalisation.
var (
	Level1D = []string{"mesh1d_s1", "Mesh1d_s1"}
	Level2D = []string{"mesh2d_s1", "Mesh2d_s1"}
	Depth2D = []string{"mesh2d_waterdepth", "Mesh2d_waterdepth"}
)

// Source is the part of a result store the extractor reads.
type Source interface {
	HasVariable(name string) bool
	Series(name string) (domain.TimeSeries, error)
}

// Extraction is the outcome of reducing one variable.
type Extraction struct {
	Variable  string
	Max       domain.LocationMax
	Steps     int // time steps inside the window
	Locations int
}

// Resolve returns the first of variants present in src.
func Resolve(src Source, variants []string) (string, error) {
	for _, v := range variants {
		if src.HasVariable(v) {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: none of %s in result store", domain.ErrUnknownQuantity, strings.Join(variants, ", "))
}

// Extract resolves a variable among variants, then returns for every location
// the maximum of its finite samples taken at times inside window. Locations
// without such a sample are absent from the result.
func Extract(src Source, variants []string, window domain.TimeWindow) (Extraction, error) {
	if err := window.Validate(); err != nil {
		return Extraction{}, err
	}
	name, err := Resolve(src, variants)
	if err != nil {
		return Extraction{}, err
	}
	ts, err := src.Series(name)
	if err != nil {
		return Extraction{}, fmt.Errorf("read %s: %w", name, err)
	}
	return Reduce(ts, window)
}

// Reduce computes the windowed maximum of an already loaded series.
func Reduce(ts domain.TimeSeries, window domain.TimeWindow) (Extraction, error) {
	if err := window.Validate(); err != nil {
		return Extraction{}, err
	}
	if len(ts.Times) == 0 {
		return Extraction{}, fmt.Errorf("%w: %s has no time steps", domain.ErrInvalidTimeWindow, ts.Name)
	}
	first, last := ts.Times[0], ts.Times[0]
	for _, t := range ts.Times {
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}
	if !window.Intersects(first, last) {
		return Extraction{}, fmt.Errorf("%w: window does not overlap results from %s to %s",
			domain.ErrInvalidTimeWindow, first.Format("2006-01-02 15:04:05"), last.Format("2006-01-02 15:04:05"))
	}

	out := Extraction{Variable: ts.Name, Max: make(domain.LocationMax), Locations: ts.Locations()}
	for i, t := range ts.Times {
		if !window.Contains(t) || i >= len(ts.Values) {
			continue
		}
		out.Steps++
		for loc, v := range ts.Values[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			if cur, ok := out.Max[loc]; !ok || v > cur {
				out.Max[loc] = v
			}
		}
	}
	return out, nil
}

// MaskDry keeps the level only where the maximum depth is positive, which
// removes bed levels of faces that never got wet. A location without a depth
// maximum is dropped as well.
func MaskDry(level, depth domain.LocationMax) domain.LocationMax {
	out := make(domain.LocationMax, len(level))
	for loc, v := range level {
		if d, ok := depth[loc]; !ok || !(d > 0) {
			continue
		}
		out[loc] = v
	}
	return out
}
