package core

import (
	"os"
	"testing"
	"time"

	"github.com/maemo-leste/alarmd/action"
	"github.com/maemo-leste/alarmd/clock"
	"github.com/maemo-leste/alarmd/envtrack"
	"github.com/maemo-leste/alarmd/queue"
	"github.com/maemo-leste/alarmd/state"
	"github.com/maemo-leste/alarmd/store"
	"github.com/maemo-leste/alarmd/wakeup"
)

func newTestEngine(t *testing.T, now time.Time) *Engine {
	t.Helper()
	dir, err := os.MkdirTemp("", "alarmd-core-test")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	st, err := store.Open(dir, nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	clk := &realishClock{now: now}
	act := action.New(nil, action.ExecConfig{})
	env := envtrack.New(nil)
	wk := wakeup.New(nil, nil)
	e := New(nil, queue.New(), st, clk, act, env, wk, 600)
	if err := e.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return e
}

// realishClock implements the real clock.Clock interface with a settable
// wall time, for exercising
// phase 4's now-relative classification without sleeping in tests.
type realishClock struct {
	now time.Time
	loc *time.Location
}

func (c *realishClock) Now() time.Time           { return c.now }
func (c *realishClock) Monotonic() time.Duration { return time.Duration(c.now.UnixNano()) }
func (c *realishClock) Mktime(bd clock.BrokenDown, loc *time.Location) (time.Time, error) {
	return time.Date(bd.Year, bd.Month, bd.Day, bd.Hour, bd.Minute, bd.Second, 0, loc), nil
}
func (c *realishClock) Localize(t time.Time, loc *time.Location) clock.BrokenDown {
	lt := t.In(loc)
	y, mo, d := lt.Date()
	h, mi, s := lt.Clock()
	return clock.BrokenDown{Year: y, Month: mo, Day: d, Hour: h, Minute: mi, Second: s}
}
func (c *realishClock) SetZone(loc *time.Location) { c.loc = loc }
func (c *realishClock) GetZone() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

func TestPhaseQueuedClassifiesPastTriggerAsLimbo(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, now)
	ev := &queue.Event{State: state.Queued, Trigger: now.Add(-10 * time.Second)}
	e.Queue.Insert(ev)

	e.phaseQueued(ev, now, e.Env.Flags())
	if ev.State != state.Limbo {
		t.Fatalf("expected LIMBO for a trigger within grace, got %s", ev.State)
	}
}

func TestPhaseQueuedClassifiesFarPastTriggerAsMissed(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, now)
	ev := &queue.Event{State: state.Queued, Trigger: now.Add(-5 * time.Minute)}
	e.Queue.Insert(ev)

	e.phaseQueued(ev, now, e.Env.Flags())
	if ev.State != state.Missed {
		t.Fatalf("expected MISSED beyond grace, got %s", ev.State)
	}
}

func TestPhaseSnoozedSetsAnchorAndReturnsToNew(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, now)
	ev := &queue.Event{State: state.Snoozed, Trigger: now, SnoozeSeconds: 120}
	e.Queue.Insert(ev)

	e.phaseSnoozed(ev, now)
	if !ev.HasSnoozeAnchor {
		t.Fatalf("expected a snooze anchor to be set")
	}
	if ev.State != state.New {
		t.Fatalf("expected NEW after snooze, got %s", ev.State)
	}
	if !ev.Trigger.Equal(now.Add(120 * time.Second)) {
		t.Fatalf("expected trigger advanced by the snooze duration, got %s", ev.Trigger)
	}
}

func TestPhaseServedRoutesToRecurringOrDeleted(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, now)

	oneshot := &queue.Event{State: state.Served}
	e.Queue.Insert(oneshot)
	e.phaseServed(oneshot)
	if oneshot.State != state.Deleted {
		t.Fatalf("expected one-shot SERVED -> DELETED, got %s", oneshot.State)
	}

	recurring := &queue.Event{State: state.Served, Recur: queue.Recurrence{Period: time.Hour}}
	e.Queue.Insert(recurring)
	e.phaseServed(recurring)
	if recurring.State != state.Recurring {
		t.Fatalf("expected recurring SERVED -> RECURRING, got %s", recurring.State)
	}
}

func TestDeleteIsUnconditionalFromAnyState(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, now)
	go e.Run()
	defer e.Close()

	ev := &queue.Event{State: state.Limbo, Trigger: now}
	e.Queue.Insert(ev)

	if err := e.Delete(ev.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Give the loop goroutine a moment to run phase 15 and the cleanup
	// sweep; by then the event is either FINALIZED (and purged) or still
	// settling, never left at its original LIMBO state.
	time.Sleep(50 * time.Millisecond)
	if got := e.Queue.Lookup(ev.ID); got != nil && got.State == state.Limbo {
		t.Fatalf("delete did not move the event out of its original state")
	}
}

func TestAddRejectsPastTrigger(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, now)
	go e.Run()
	defer e.Close()

	ev := &queue.Event{
		Spec: queue.TimeSpec{Absolute: now.Add(-time.Hour), HasAbsolute: true},
	}
	if _, err := e.Add(ev); err == nil {
		t.Fatalf("expected an error for a past trigger")
	}
}

func TestComputeQueueStateBucketsByBootFlagPrecedence(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, now)

	desktop := &queue.Event{State: state.Queued, Trigger: now.Add(time.Hour), Flags: queue.FlagBoot | queue.FlagActDead}
	e.Queue.Insert(desktop)
	actdead := &queue.Event{State: state.Queued, Trigger: now.Add(2 * time.Hour), Flags: queue.FlagActDead}
	e.Queue.Insert(actdead)
	nonboot := &queue.Event{State: state.Queued, Trigger: now.Add(3 * time.Hour)}
	e.Queue.Insert(nonboot)

	qs := e.computeQueueState()
	if !qs.NextDesktopBoot.Equal(desktop.Trigger) {
		t.Fatalf("BOOT|ACTDEAD event should count toward the desktop bucket, got %v", qs.NextDesktopBoot)
	}
	if !qs.NextActdeadBoot.Equal(actdead.Trigger) {
		t.Fatalf("ACTDEAD-only event should count toward the actdead bucket, got %v", qs.NextActdeadBoot)
	}
	if !qs.NextNonBoot.Equal(nonboot.Trigger) {
		t.Fatalf("unflagged event should count toward the non-boot bucket, got %v", qs.NextNonBoot)
	}
}

func TestComputeQueueStateLeavesEmptyBucketsAtInfinitySentinel(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, now)

	qs := e.computeQueueState()
	if !qs.NextDesktopBoot.IsZero() || !qs.NextActdeadBoot.IsZero() || !qs.NextNonBoot.IsZero() {
		t.Fatalf("empty queue should leave every bucket at the zero/infinity sentinel, got %+v", qs)
	}
}

func TestAddAcceptsFutureTrigger(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, now)
	go e.Run()
	defer e.Close()

	ev := &queue.Event{
		Spec: queue.TimeSpec{Absolute: now.Add(time.Hour), HasAbsolute: true},
	}
	id, err := e.Add(ev)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected a nonzero assigned identifier")
	}
}
