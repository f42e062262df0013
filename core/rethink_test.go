package core

import (
	"testing"
	"time"

	"github.com/maemo-leste/alarmd/envtrack"
	"github.com/maemo-leste/alarmd/queue"
	"github.com/maemo-leste/alarmd/state"
)

// TestOneShotEventLifecycleEndToEnd drives the engine directly (no Run
// goroutine, no wall-clock sleeps) through add -> queued -> triggered ->
// served -> deleted -> swept, advancing the fake clock between sweeps.
func TestOneShotEventLifecycleEndToEnd(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, now)
	f := e.Env.Flags()
	f.DesktopUp = true
	e.Env.SetFlags(f)

	ev := &queue.Event{
		Spec: queue.TimeSpec{Absolute: now.Add(2 * time.Second), HasAbsolute: true},
	}
	ev.State = state.New
	if err := e.Queue.Insert(ev); err != nil {
		t.Fatalf("insert: %v", err)
	}
	e.Queue.SetTrigger(ev, ev.Spec.Absolute)
	id := ev.ID

	clk := e.Clock.(*realishClock)
	for i := 0; i < 10; i++ {
		clk.now = clk.now.Add(time.Second)
		e.rethinkToFixpoint()
		if e.Queue.Lookup(id) == nil {
			return
		}
	}
	t.Fatalf("event %d was never swept out of the queue", id)
}

func TestPhaseLimboRequiresDesktopUp(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEngine(t, now)
	ev := &queue.Event{State: state.Limbo, Trigger: now}
	e.Queue.Insert(ev)

	var flags envtrack.Flags // desktop down
	e.phaseLimbo(ev, flags)
	if ev.State == state.Triggered {
		t.Fatalf("should not trigger while the desktop is down")
	}
}
