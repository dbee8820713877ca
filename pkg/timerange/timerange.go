// Package timerange holds the half-open interval type shared by the booking
// service and its Mongo filter translation. Every overlap decision in the
// system goes through Overlaps so boundary semantics never diverge between
// the in-memory checks and the store queries.
package timerange

import (
	"errors"
	"time"
)

var (
	ErrInvalidRange = errors.New("start must be before end")
	ErrPastRange    = errors.New("range must lie entirely in the future")
)

// TimeRange is the half-open interval [Start, End). Immutable value type.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// New builds a range, enforcing strict ordering. A zero-length range is
// invalid: [t, t) reserves nothing.
func New(start, end time.Time) (TimeRange, error) {
	if !start.Before(end) {
		return TimeRange{}, ErrInvalidRange
	}
	return TimeRange{Start: start, End: end}, nil
}

// Overlaps reports whether two half-open intervals intersect. Touching
// endpoints do not overlap: [10:00, 11:00) and [11:00, 12:00) are disjoint.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start.Before(other.End) && r.End.After(other.Start)
}

// InPast reports whether either endpoint is strictly before now. Ranges that
// already started are rejected outright rather than truncated.
func (r TimeRange) InPast(now time.Time) bool {
	return r.Start.Before(now) || r.End.Before(now)
}

// Duration of the interval.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}
