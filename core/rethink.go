// rethink.go implements the 15-phase reconciliation sweep (§4.6) and the
// clock-stability filter (§4.9). Grounded on
// _examples/original_source/src/ticker.c's queue-walk (ticker_do) for the
// phase ordering and on converger's "defer and re-check" idiom for the
// clock-jitter holdoff.
package core

import (
	"time"

	"github.com/maemo-leste/alarmd/queue"
	"github.com/maemo-leste/alarmd/state"
)

// MissedGrace is how far past its trigger a QUEUED event may be found
// before it is classified MISSED rather than LIMBO (§4.6 phase 4).
const MissedGrace = 59 * time.Second

// PostponeDayLimit is the elapsed-beyond-trigger threshold below which a
// POSTPONED event returns to LIMBO rather than being pushed out by whole
// days (§4.6 phase 6).
const PostponeDayLimit = 24 * time.Hour

// ClkJitter is the wall-minus-monotonic delta beyond which the rethink
// defers for stability (§4.9).
const ClkJitter = 2 * time.Second

// ClkStable is how long a deferred rethink waits before re-checking
// stability (§4.9).
const ClkStable = 2 * time.Second

// ClkResched is the accumulated net clock change beyond which queued,
// non-absolute triggers are rescheduled (§4.9).
const ClkResched = 5 * time.Second

// maxSweepPasses bounds the fixpoint loop so a bug in phase logic cannot
// spin the core forever; in practice a handful of passes always converge.
const maxSweepPasses = 64

// rethinkToFixpoint runs sweepOnce repeatedly until an iteration makes no
// change, then recomputes and (if different) broadcasts the queue-state
// snapshot, and re-arms the wakeup scheduler.
func (e *Engine) rethinkToFixpoint() {
	now := e.Clock.Now()
	if !e.clockStable(now) {
		return // deferred; a timer will poke us again once settled
	}

	timeChanged := false
	for i := 0; i < maxSweepPasses; i++ {
		changed, sawTimeChange := e.sweepOnce(e.Clock.Now())
		timeChanged = timeChanged || sawTimeChange
		if !changed {
			break
		}
	}

	snapshot := e.computeQueueState()
	if !e.haveSnapshot || !snapshot.Equal(e.lastSnapshot) {
		e.lastSnapshot = snapshot
		e.haveSnapshot = true
		if e.OnQueueState != nil {
			e.OnQueueState(snapshot)
		}
	}
	if timeChanged && e.OnTimeChange != nil {
		e.OnTimeChange()
	}

	e.rearmWakeups(e.Clock.Now())

	if e.Store.ForceDue(e.Clock.Now()) {
		if err := e.Store.Save(e.Queue.All(), e.DefaultSnooze, e.Clock.Now(), true); err != nil {
			e.Logf("core: forced save after tamper holdoff failed: %v", err)
		}
	} else if err := e.Store.Save(e.Queue.All(), e.DefaultSnooze, e.Clock.Now(), false); err != nil {
		e.Logf("core: save failed: %v", err)
	}
}

// clockStable implements §4.9's clock-stability filter. It returns false
// (meaning "defer this rethink") when the wall-minus-monotonic offset just
// moved by more than ClkJitter; it schedules a re-check after ClkStable and
// invalidates the cached snapshot so a broadcast is forced once stable.
func (e *Engine) clockStable(now time.Time) bool {
	if !e.haveBase {
		e.baseWall, e.baseMono, e.haveBase = now, e.Clock.Monotonic(), true
	}
	offset := now.Sub(e.baseWall) - e.Clock.Monotonic() + e.baseMono

	if !e.haveOffset {
		e.lastOffset, e.haveOffset = offset, true
		e.stableOffset = offset
	}

	delta := offset - e.lastOffset
	if delta < 0 {
		delta = -delta
	}
	e.lastOffset = offset

	if delta > ClkJitter {
		e.haveSnapshot = false // force a broadcast once stability returns
		time.AfterFunc(ClkStable, func() {
			select {
			case e.envPoke <- struct{}{}:
			default:
			}
		})
		return false
	}

	net := offset - e.stableOffset
	if net < 0 {
		net = -net
	}
	if net > ClkResched {
		f := e.Env.Flags()
		signed := offset - e.stableOffset
		f.ClockDelta = int64(signed / time.Second)
		f.ClockMovedForward = signed > 0
		f.ClockMovedBackward = signed < 0
		f.TimeChanged = true
		e.Env.SetFlags(f)
		e.stableOffset = offset
	}
	return true
}

// sweepOnce runs every phase once over the full queue, returning whether
// anything changed and whether a time-change was observed and consumed.
func (e *Engine) sweepOnce(now time.Time) (changed bool, sawTimeChange bool) {
	env := e.Env.Flags()
	events := e.Queue.All()

	for _, ev := range events {
		before := ev.State
		switch ev.State {
		case state.New:
			e.phaseNew(ev, env)
		case state.WaitConn:
			e.phaseWaitConn(ev, env)
		case state.Queued:
			// Phase 3 (time-change) runs once per event below,
			// ahead of phase 4's classification.
			if env.TimeChanged {
				if e.phaseTimeChange(ev, env, now) {
					sawTimeChange = true
				}
			}
			e.phaseQueued(ev, now, env)
		case state.Missed:
			e.phaseMissed(ev)
		case state.Postponed:
			e.phasePostponed(ev, now)
		case state.Limbo:
			e.phaseLimbo(ev, env)
		case state.Triggered:
			e.phaseTriggered(ev)
		case state.WaitSysUI:
			e.phaseWaitSysUI(ev, env)
		case state.SysUIReq, state.SysUIAck:
			e.phaseUIPresence(ev, env)
		case state.SysUIRsp:
			e.phaseSysUIRsp(ev)
		case state.Snoozed:
			e.phaseSnoozed(ev, now)
		case state.Served:
			e.phaseServed(ev)
		case state.Recurring:
			e.phaseRecurring(ev, now)
		case state.Deleted:
			e.phaseDeleted(ev)
		}
		if ev.State != before {
			changed = true
		}
	}

	if env.TimeChanged {
		env.TimeChanged = false
		e.Env.SetFlags(env)
	}

	removed := e.Queue.Purge(func(ev *queue.Event) bool { return ev.State == state.Finalized })
	if len(removed) > 0 {
		changed = true
	}
	return changed, sawTimeChange
}

