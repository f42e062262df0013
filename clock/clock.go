// Package clock abstracts "now", monotonic time, and broken-down time
// conversion (C1). Go's zone database makes the original daemon's
// thread-safe temporary-TZ-switch trick unnecessary: conversions take an
// explicit *time.Location, so no process-wide environment mutation is ever
// needed.
package clock

import (
	"time"
)

// BrokenDown is a calendar/wall-clock representation of an instant, the
// Go-native analogue of struct tm plus a dst hint.
type BrokenDown struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int

	// DSTHint mirrors the source's dst_hint field: -1 unknown, 0 not in
	// DST, 1 in DST. Go's time.Date doesn't need it for disambiguation,
	// but we thread it through for callers/wire-compat.
	DSTHint int
}

// DSTUnknown is the sentinel for an unresolved dst_hint.
const DSTUnknown = -1

// Clock abstracts all time-related operations performed by the engine, so
// that tests can substitute a deterministic implementation.
type Clock interface {
	// Now returns the current wall-clock instant.
	Now() time.Time
	// Monotonic returns a monotonic duration since an arbitrary epoch; it
	// never decreases and is immune to wall-clock changes.
	Monotonic() time.Duration
	// Mktime converts a broken-down time in the given zone to an instant.
	Mktime(bd BrokenDown, loc *time.Location) (time.Time, error)
	// Localize converts an instant into broken-down form in the given
	// zone.
	Localize(t time.Time, loc *time.Location) BrokenDown
	// SetZone sets the process-default zone used when an event floats
	// (no zone attached).
	SetZone(loc *time.Location)
	// GetZone returns the current process-default zone.
	GetZone() *time.Location
}

// System is the production Clock, backed directly on the OS clock via the
// standard time package. Logf is an optional log sink in the shape of the
// teacher's engine.Init.Logf; NewSystem leaves it unset and System does not
// call it.
type System struct {
	Logf func(format string, v ...interface{})

	zone *time.Location
}

// NewSystem builds a System clock defaulting to the local zone.
func NewSystem() *System {
	return &System{
		zone: time.Local,
	}
}

// Now implements Clock.
func (obj *System) Now() time.Time {
	return time.Now()
}

// Monotonic implements Clock using runtime's monotonic reading embedded in
// time.Time values; subtracting a fixed reference keeps it positive and
// immune to wall-clock adjustment.
func (obj *System) Monotonic() time.Duration {
	return time.Since(processStart)
}

// processStart is recorded once, at package init, as the monotonic
// reference point.
var processStart = time.Now()

// Mktime implements Clock. If the broken-down time does not exist (a DST
// spring-forward gap), Go's time.Date silently normalizes it; we detect this
// by round-tripping and comparing, and in that case accept whichever instant
// the zone database produced. time.Date does not read DSTHint, so no second
// conversion is made.
func (obj *System) Mktime(bd BrokenDown, loc *time.Location) (time.Time, error) {
	t := time.Date(bd.Year, bd.Month, bd.Day, bd.Hour, bd.Minute, bd.Second, 0, loc)
	if roundTripMatches(t, bd, loc) {
		return t, nil
	}
	// Treat the hint as unknown and accept the zone library's choice,
	// same contract as the source.
	bd.DSTHint = DSTUnknown
	return t, nil
}

func roundTripMatches(t time.Time, bd BrokenDown, loc *time.Location) bool {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return y == bd.Year && mo == bd.Month && d == bd.Day &&
		h == bd.Hour && mi == bd.Minute && s == bd.Second && t.Location() == loc
}

// Localize implements Clock.
func (obj *System) Localize(t time.Time, loc *time.Location) BrokenDown {
	lt := t.In(loc)
	y, mo, d := lt.Date()
	h, mi, s := lt.Clock()
	return BrokenDown{
		Year: y, Month: mo, Day: d,
		Hour: h, Minute: mi, Second: s,
		DSTHint: DSTUnknown,
	}
}

// SetZone implements Clock.
func (obj *System) SetZone(loc *time.Location) {
	obj.zone = loc
}

// GetZone implements Clock.
func (obj *System) GetZone() *time.Location {
	if obj.zone == nil {
		return time.Local
	}
	return obj.zone
}

// Equal reports whether two instants represent the same second, which is
// the resolution the engine operates at (sub-minute precision is preserved
// only for absolute-instant events; broken-down ones round up to the
// minute by the caller before reaching the clock).
func Equal(a, b time.Time) bool {
	return a.Truncate(time.Second).Equal(b.Truncate(time.Second))
}

// RoundUpToMinute rounds t forward to the next full minute, or returns t
// unchanged if it already falls exactly on one. Broken-down alarms round up
// to the next full minute per the data model.
func RoundUpToMinute(t time.Time) time.Time {
	if t.Second() == 0 && t.Nanosecond() == 0 {
		return t
	}
	return t.Truncate(time.Minute).Add(time.Minute)
}
