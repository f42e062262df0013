package recurrence

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"
)

func bit(n int) uint64 { return uint64(1) << uint(n) }

func TestAlignAlreadyCompliantDoesNotMove(t *testing.T) {
	loc := time.UTC
	d := Descriptor{
		Schedule: cronSpec(bit(30), bit(7), 0, 0, 0),
	}
	ref := time.Date(2026, 1, 5, 7, 30, 0, 0, loc)
	got, err := Align(d, ref, loc)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if !got.Equal(ref) {
		t.Fatalf("Align moved an already-compliant time: got %v want %v", got, ref)
	}
}

func TestAlignAdvancesToNextMinute(t *testing.T) {
	loc := time.UTC
	d := Descriptor{
		Schedule: cronSpec(bit(0), 0, 0, 0, 0), // minute 0 of every hour
	}
	ref := time.Date(2026, 1, 5, 7, 30, 0, 0, loc)
	got, err := Align(d, ref, loc)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	want := time.Date(2026, 1, 5, 8, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("Align = %v, want %v", got, want)
	}
}

func TestNextStrictlyAdvancesWithNoSpecial(t *testing.T) {
	loc := time.UTC
	d := Descriptor{
		Schedule: cronSpec(bit(30), bit(7), 0, 0, 0),
	}
	aligned := time.Date(2026, 1, 5, 7, 30, 0, 0, loc)
	got, err := Next(d, aligned, loc)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !got.After(aligned) {
		t.Fatalf("Next(%v) = %v, want strictly after", aligned, got)
	}
}

func TestNextBiweekly(t *testing.T) {
	loc := time.UTC
	d := Descriptor{Special: SpecialBiweekly}
	ref := time.Date(2026, 1, 5, 7, 30, 0, 0, loc)
	got, err := Next(d, ref, loc)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := ref.AddDate(0, 0, 14)
	if !got.Equal(want) {
		t.Fatalf("Next biweekly = %v, want %v", got, want)
	}
}

func TestAlignInvalidRecurrence(t *testing.T) {
	loc := time.UTC
	// Day-of-month 30, restricted to February: never satisfiable.
	d := Descriptor{
		Schedule: cronSpec(0, 0, bit(30), bit(1), 0), // month bit(1) = February (0=Jan)
	}
	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, loc)
	if _, err := Align(d, ref, loc); err == nil {
		t.Fatalf("expected invalid-recurrence error")
	}
}

func TestDaylightSavingMinuteAdvance(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("no tzdata: %v", err)
	}
	// Minute 30 of every hour; should not fire twice nor skip across the
	// spring-forward gap, just advance to the next satisfied minute.
	d := Descriptor{Schedule: cronSpec(bit(30), 0, 0, 0, 0)}
	ref := time.Date(2026, 3, 8, 1, 45, 0, 0, loc) // before US spring-forward
	got, err := Align(d, ref, loc)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if got.Minute() != 30 {
		t.Fatalf("Align minute = %d, want 30", got.Minute())
	}
	if !got.After(ref) {
		t.Fatalf("Align(%v) = %v, want strictly after", ref, got)
	}
}

// cronSpec is a small test helper building the cron.SpecSchedule embedded
// in a Descriptor directly from the masks under test.
func cronSpec(minute, hour, dom, month, dow uint64) cron.SpecSchedule {
	return cron.SpecSchedule{Minute: minute, Hour: hour, Dom: dom, Month: month, Dow: dow}
}
