package domain

import "errors"

// Error taxonomy for a run. Every error returned by the pipeline wraps exactly
// one of these so callers can branch with errors.Is.
var (
	// ErrUnknownQuantity is returned for an unrecognised quantity argument or
	// when no known variable name variant exists in the result store.
	ErrUnknownQuantity = errors.New("unknown quantity")

	// ErrInvalidDomain is returned for an unrecognised domain filter.
	ErrInvalidDomain = errors.New("invalid domain")

	// ErrInvalidTimeWindow is returned when start is after end, or when the
	// window does not intersect the time range of the results.
	ErrInvalidTimeWindow = errors.New("invalid time window")

	// ErrNoInundationComputed is returned when neither the 1D nor the 2D
	// domain produced a depth raster.
	ErrNoInundationComputed = errors.New("no inundation computed from 1D and 2D")

	// ErrGeometry is returned for polygons that remain invalid after repair.
	ErrGeometry = errors.New("geometry error")

	// ErrIO wraps raster, vector and result-store read or write failures.
	ErrIO = errors.New("io error")

	// ErrInvalidRequest is returned for malformed run arguments such as a
	// missing path or a negative extrapolation factor.
	ErrInvalidRequest = errors.New("invalid request")
)
