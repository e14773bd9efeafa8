package domain

import (
	"fmt"
	"strings"
	"time"
)

// TimeWindow bounds the samples used for the per-location maximum.
// A zero Start or End leaves that side open. Both bounds are inclusive.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Validate rejects a window whose start lies after its end.
func (w TimeWindow) Validate() error {
	if !w.Start.IsZero() && !w.End.IsZero() && w.Start.After(w.End) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidTimeWindow,
			w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

// Intersects reports whether the window overlaps [first, last].
func (w TimeWindow) Intersects(first, last time.Time) bool {
	if !w.Start.IsZero() && w.Start.After(last) {
		return false
	}
	if !w.End.IsZero() && w.End.Before(first) {
		return false
	}
	return true
}

// TimeSeries holds one result variable: Values[t][loc] is the sample of
// location loc at Times[t]. Location ids are the indices shared with the
// geometry of the same domain.
type TimeSeries struct {
	Name   string
	Times  []time.Time
	Values [][]float64
}

// Locations returns the number of locations per time step.
func (s TimeSeries) Locations() int {
	if len(s.Values) == 0 {
		return 0
	}
	return len(s.Values[0])
}

// LocationMax is the per-location maximum over a time window. A location
// without any finite sample in the window is absent from the map.
type LocationMax map[int]float64

// Get returns the maximum for a location and whether it is defined.
func (m LocationMax) Get(id int) (float64, bool) {
	v, ok := m[id]
	return v, ok
}

// timeLayouts are accepted for user-supplied window bounds. The first is the
// slash-separated date format used by the modelling teams.
var timeLayouts = []string{
	"2006/01/02",
	"2006/01/02 15:04:05",
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseTime parses a window bound. The empty string yields the zero time.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse time %q", ErrInvalidTimeWindow, s)
}
