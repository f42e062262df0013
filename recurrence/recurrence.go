// Package recurrence implements the recurrence evaluator (C2): given a
// reference instant and a recurrence descriptor, it computes the next
// firing instant.
package recurrence

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/maemo-leste/alarmd/util/errwrap"
)

// Special is a pre-aggregating step applied before per-field alignment.
type Special int

// The recognized special codes.
const (
	SpecialNone Special = iota
	SpecialBiweekly
	SpecialMonthly
	SpecialYearly
)

// maxDayScan bounds the day-stepping search in Align; a descriptor that
// can't be satisfied within this many days (e.g. "day 30 of February" with
// no last-day fallback) is reported as invalid-recurrence rather than
// looping forever.
const maxDayScan = 4 * 366

// maxMinuteScan bounds the minute/hour search: every (hour, minute)
// combination recurs within 24h, so 1440 minutes always suffices if any
// combination satisfies the masks.
const maxMinuteScan = 24 * 60

// Descriptor is a recurrence mask set (§4.2 of the design). The per-field
// bitmasks reuse github.com/robfig/cron/v3's exported cron.SpecSchedule
// representation (bit-per-value for Minute/Hour/Dom/Month, bit-per-weekday
// for Dow) since it is structurally the same model; the all-zero mask for a
// field means "don't care", the same convention cron uses for an unset
// field. Month bit i corresponds to month i+1 (0=January), matching the
// descriptor's documented 0..11 range; Dom and Dow use cron's own bit
// positions directly (day-of-month 1..31, Sunday=0..Saturday=6).
type Descriptor struct {
	Schedule cron.SpecSchedule

	// LastDayOfMonth, when set, also matches the actual last calendar day
	// of the month in addition to whatever Schedule.Dom specifies.
	LastDayOfMonth bool

	// Special is applied once, before alignment, by Next.
	Special Special
}

// Invalid is returned when a descriptor can never be satisfied (e.g. day 30
// of February with no last-day fallback). Callers treat this as a one-shot
// that retires after its first firing.
type Invalid struct {
	Reason string
}

func (e *Invalid) Error() string {
	return "invalid-recurrence: " + e.Reason
}

func matches(mask uint64, n int) bool {
	if mask == 0 {
		return true // "don't care"
	}
	return mask&(uint64(1)<<uint(n)) != 0
}

func lastDayOfMonth(t time.Time) int {
	firstOfNext := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	return firstOfNext.AddDate(0, 0, -1).Day()
}

func (d Descriptor) domMatches(t time.Time) bool {
	if matches(d.Schedule.Dom, t.Day()) {
		return true
	}
	if d.LastDayOfMonth && t.Day() == lastDayOfMonth(t) {
		return true
	}
	return false
}

// monthDayMatches tests month, day-of-month and day-of-week jointly, per
// §4.2's "(month, day-of-month, day-of-week together)" alignment step: each
// field that is "don't care" passes trivially, otherwise all specified
// fields must agree simultaneously.
func (d Descriptor) monthDayMatches(t time.Time) bool {
	monthBit := int(t.Month()) - 1 // descriptor month range is 0..11
	return matches(d.Schedule.Month, monthBit) &&
		d.domMatches(t) &&
		matches(d.Schedule.Dow, int(t.Weekday()))
}

// Align advances ref to the nearest instant (in loc) that satisfies all of
// the descriptor's masks. Seconds are always zeroed. If ref already
// satisfies every mask it is returned unmoved (aside from zeroing seconds).
// The order of adjustment is seconds, minute, hour, then (month,
// day-of-month, day-of-week) together, per §4.2.
func Align(d Descriptor, ref time.Time, loc *time.Location) (time.Time, error) {
	lt := ref.In(loc)
	t := time.Date(lt.Year(), lt.Month(), lt.Day(), lt.Hour(), lt.Minute(), 0, 0, loc)

	found := false
	for i := 0; i < maxMinuteScan; i++ {
		if matches(d.Schedule.Minute, t.Minute()) && matches(d.Schedule.Hour, t.Hour()) {
			found = true
			break
		}
		t = t.Add(time.Minute)
	}
	if !found {
		return time.Time{}, &Invalid{Reason: "no minute/hour satisfies the masks"}
	}

	found = false
	for i := 0; i < maxDayScan; i++ {
		if d.monthDayMatches(t) {
			found = true
			break
		}
		t = t.AddDate(0, 0, 1)
	}
	if !found {
		return time.Time{}, &Invalid{Reason: "no calendar day within range satisfies month/day-of-month/day-of-week"}
	}
	return t, nil
}

// Next applies Special first (biweekly/monthly/yearly add, or a one-minute
// bump when there is no special code) and then Align, which guarantees a
// strict advance past ref even when ref is already aligned.
func Next(d Descriptor, ref time.Time, loc *time.Location) (time.Time, error) {
	t := ref.In(loc)
	switch d.Special {
	case SpecialBiweekly:
		t = t.AddDate(0, 0, 14)
	case SpecialMonthly:
		t = t.AddDate(0, 1, 0)
	case SpecialYearly:
		t = t.AddDate(1, 0, 0)
	default:
		t = t.Add(time.Minute)
	}
	next, err := Align(d, t, loc)
	if err != nil {
		return time.Time{}, errwrap.Wrapf(err, "next")
	}
	return next, nil
}

// IsOneShot reports whether the descriptor carries no recurrence at all
// (caller convenience: a zero Descriptor with SpecialNone and all-zero
// masks still technically matches every instant, so callers use a separate
// "has period or masks" check at the event level — see queue.Event).
func IsOneShot(d Descriptor) bool {
	return d.Schedule.Minute == 0 && d.Schedule.Hour == 0 && d.Schedule.Dom == 0 &&
		d.Schedule.Dow == 0 && d.Schedule.Month == 0 && d.Special == SpecialNone && !d.LastDayOfMonth
}
