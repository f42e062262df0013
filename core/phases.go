// phases.go implements the body of each of the 15 rethink phases (§4.6),
// kept in phase order to make the mapping to the spec's numbered list
// easy to check by eye.
package core

import (
	"time"

	"github.com/maemo-leste/alarmd/envtrack"
	"github.com/maemo-leste/alarmd/queue"
	"github.com/maemo-leste/alarmd/recurrence"
	"github.com/maemo-leste/alarmd/state"
)

// phaseNew is phase 1: NEW -> WAITCONN or QUEUED, running when-queued
// actions either way.
func (e *Engine) phaseNew(ev *queue.Event, env envtrack.Flags) {
	e.Actions.Run(ev, queue.WhenQueued, -1)
	if ev.Flags.Has(queue.FlagConnected) && !env.Connected {
		ev.State, _ = state.Apply(ev.State, state.WaitConn)
		return
	}
	ev.State, _ = state.Apply(ev.State, state.Queued)
}

// phaseWaitConn is phase 2: WAITCONN -> NEW once connected.
func (e *Engine) phaseWaitConn(ev *queue.Event, env envtrack.Flags) {
	if env.Connected {
		ev.State, _ = state.Apply(ev.State, state.New)
	}
}

// phaseTimeChange is phase 3: reschedule a QUEUED event whose trigger is
// not absolute, per §4.9. Returns false only for absolute-time events, which
// are left alone; for every other event it returns true, whether or not the
// trigger moved.
func (e *Engine) phaseTimeChange(ev *queue.Event, env envtrack.Flags, now time.Time) bool {
	if ev.Spec.IsAbsolute() {
		return false
	}
	delta := time.Duration(env.ClockDelta) * time.Second

	if ev.HasSnoozeAnchor {
		e.Queue.SetTrigger(ev, ev.Trigger.Add(delta))
		ev.State, _ = state.Apply(ev.State, state.New)
		return true
	}

	loc := ev.Spec.Zone
	if loc == nil {
		loc = e.Clock.GetZone()
	}
	next, err := e.recomputeNonAbsoluteTrigger(ev, now, loc)
	if err != nil {
		e.Logf("core: phase 3 recompute failed for event %d: %v", ev.ID, err)
		return true
	}
	if next.Before(ev.Trigger) && delta < -5*time.Minute && !ev.Flags.Has(queue.FlagBackReschedule) {
		return true // clock drift should not drag alarms earlier
	}
	if !next.Equal(ev.Trigger) {
		e.Queue.SetTrigger(ev, next)
	}
	return true
}

// recomputeNonAbsoluteTrigger re-derives the next trigger for a
// broken-down or recurrence-masked event from now, used by phase 3.
func (e *Engine) recomputeNonAbsoluteTrigger(ev *queue.Event, now time.Time, loc *time.Location) (time.Time, error) {
	if len(ev.Recur.Masks) > 0 {
		return recurrence.Align(ev.Recur.Masks[0], now, loc)
	}
	t, err := e.Clock.Mktime(ev.Spec.BrokenDown, loc)
	if err != nil {
		return time.Time{}, err
	}
	return clockRoundUp(t), nil
}

func clockRoundUp(t time.Time) time.Time {
	if t.Second() == 0 && t.Nanosecond() == 0 {
		return t
	}
	return t.Truncate(time.Minute).Add(time.Minute)
}

// phaseQueued is phase 4: classify a QUEUED event against now.
func (e *Engine) phaseQueued(ev *queue.Event, now time.Time, env envtrack.Flags) {
	if ev.Trigger.After(now) {
		return // future: contributes to the snapshot only, computed separately
	}
	behind := now.Sub(ev.Trigger)
	if behind <= MissedGrace {
		ev.State, _ = state.Apply(ev.State, state.Limbo)
		return
	}
	ev.State, _ = state.Apply(ev.State, state.Missed)
}

// phaseMissed is phase 5: run when-delayed actions, then branch on the
// delayed-policy flags (first match in RUN_DELAYED, POSTPONE_DELAYED,
// DISABLE_DELAYED order wins, per the resolved Open Question 1).
func (e *Engine) phaseMissed(ev *queue.Event) {
	if ev.Flags.Has(queue.FlagDisabled) {
		return // already disabled by a previous pass: out of the scheduler
	}
	e.Actions.Run(ev, queue.WhenDelayed, -1)
	switch {
	case ev.Flags.Has(queue.FlagRunDelayed):
		ev.State, _ = state.Apply(ev.State, state.Limbo)
	case ev.Flags.Has(queue.FlagPostponeDelayed):
		ev.State, _ = state.Apply(ev.State, state.Postponed)
	case ev.Flags.Has(queue.FlagDisableDelayed):
		ev.Flags |= queue.FlagDisabled
		e.Actions.Run(ev, queue.WhenDisabled, -1)
		// stays MISSED: effectively exits the scheduler until an
		// update clears FlagDisabled.
	default:
		ev.State, _ = state.Apply(ev.State, state.Served)
	}
}

// phasePostponed is phase 6.
func (e *Engine) phasePostponed(ev *queue.Event, now time.Time) {
	elapsed := now.Sub(ev.Trigger)
	if elapsed < PostponeDayLimit {
		ev.State, _ = state.Apply(ev.State, state.Limbo)
		return
	}
	snooze := ev.EffectiveSnooze(e.DefaultSnooze)
	snoozeDays := int64(snooze / PostponeDayLimit)
	if snoozeDays < 1 {
		snoozeDays = 1
	}
	days := int64(elapsed / PostponeDayLimit)
	if days%snoozeDays != 0 {
		days += snoozeDays - (days % snoozeDays)
	}
	e.Queue.SetTrigger(ev, ev.Trigger.Add(time.Duration(days)*PostponeDayLimit))
	ev.State, _ = state.Apply(ev.State, state.New)
}

// phaseLimbo is phase 7: gated on desktop-up and (user-mode or the
// event's own act-dead flag).
func (e *Engine) phaseLimbo(ev *queue.Event, env envtrack.Flags) {
	userMode := !env.ActDead
	if env.DesktopUp && (userMode || ev.Flags.Has(queue.FlagActDead)) {
		ev.State, _ = state.Apply(ev.State, state.Triggered)
	}
}

// phaseTriggered is phase 8.
func (e *Engine) phaseTriggered(ev *queue.Event) {
	res := e.Actions.Run(ev, queue.WhenTriggered, -1)
	if res.Disable {
		ev.Flags |= queue.FlagDisabled
	}
	if hasDialogButton(ev) {
		ev.State, _ = state.Apply(ev.State, state.WaitSysUI)
		return
	}
	if res.Snooze {
		ev.State, _ = state.Apply(ev.State, state.Snoozed)
		return
	}
	ev.State, _ = state.Apply(ev.State, state.Served)
}

func hasDialogButton(ev *queue.Event) bool {
	for _, a := range ev.Actions {
		if a.Label != "" && a.When&queue.WhenResponded != 0 {
			return true
		}
	}
	return false
}

// phaseWaitSysUI is phase 9: request a dialog once the UI is present.
func (e *Engine) phaseWaitSysUI(ev *queue.Event, env envtrack.Flags) {
	// UI presence is a peer flag, read via the tracker directly since
	// envtrack.Flags doesn't carry individual peer bits.
	if e.Env.IsPeerUp(envtrack.PeerUI) {
		ev.State, _ = state.Apply(ev.State, state.SysUIReq)
		if e.OpenDialog != nil {
			e.OpenDialog(ev)
		}
	}
}

// phaseUIPresence is phase 10: SYSUI_REQ/SYSUI_ACK fall back to WAITSYSUI
// if the UI disappears.
func (e *Engine) phaseUIPresence(ev *queue.Event, env envtrack.Flags) {
	if !e.Env.IsPeerUp(envtrack.PeerUI) {
		ev.State, _ = state.Apply(ev.State, state.WaitSysUI)
	}
}

// phaseSysUIRsp is phase 11.
func (e *Engine) phaseSysUIRsp(ev *queue.Event) {
	if ev.Response == -1 && ev.Flags.Has(queue.FlagDisableDelayed) && ev.Recur.IsOneShot() {
		ev.Flags |= queue.FlagDisabled
		ev.State, _ = state.Apply(ev.State, state.Served)
		return
	}
	res := e.Actions.Run(ev, queue.WhenResponded, int(ev.Response))
	if res.Snooze {
		ev.State, _ = state.Apply(ev.State, state.Snoozed)
		return
	}
	if res.Disable {
		ev.Flags |= queue.FlagDisabled
	}
	ev.State, _ = state.Apply(ev.State, state.Served)
}

// phaseSnoozed is phase 12.
func (e *Engine) phaseSnoozed(ev *queue.Event, now time.Time) {
	if !ev.HasSnoozeAnchor {
		ev.SnoozeAnchor = ev.Trigger
		ev.HasSnoozeAnchor = true
	}
	e.Queue.SetTrigger(ev, now.Add(ev.EffectiveSnooze(e.DefaultSnooze)))
	ev.State, _ = state.Apply(ev.State, state.New)
}

// phaseServed is phase 13.
func (e *Engine) phaseServed(ev *queue.Event) {
	if !ev.Recur.IsOneShot() {
		ev.State, _ = state.Apply(ev.State, state.Recurring)
		return
	}
	ev.State, _ = state.Apply(ev.State, state.Deleted)
}

// phaseRecurring is phase 14.
func (e *Engine) phaseRecurring(ev *queue.Event, now time.Time) {
	if ev.Recur.Count > 0 {
		ev.Recur.Count--
	}
	base := ev.Trigger
	if ev.HasSnoozeAnchor {
		base = ev.SnoozeAnchor
		ev.HasSnoozeAnchor = false
		ev.SnoozeAnchor = time.Time{}
	}
	if ev.Recur.Count == 0 {
		ev.State, _ = state.Apply(ev.State, state.Deleted)
		return
	}

	loc := ev.Spec.Zone
	if loc == nil {
		loc = e.Clock.GetZone()
	}
	next, ok := e.nextRecurrence(ev, base, now, loc)
	if !ok {
		ev.State, _ = state.Apply(ev.State, state.Deleted)
		return
	}
	e.Queue.SetTrigger(ev, next)
	ev.State, _ = state.Apply(ev.State, state.New)
}

func (e *Engine) nextRecurrence(ev *queue.Event, base, now time.Time, loc *time.Location) (time.Time, bool) {
	ref := base
	if ref.Before(now) {
		ref = now
	}
	if ev.Recur.Period > 0 {
		next := base.Add(ev.Recur.Period)
		for next.Before(now) {
			next = next.Add(ev.Recur.Period)
		}
		return next, true
	}
	for _, d := range ev.Recur.Masks {
		next, err := recurrence.Next(d, ref, loc)
		if err != nil {
			continue
		}
		return next, true
	}
	return time.Time{}, false
}

// phaseDeleted is phase 15: run when-deleted actions and ask the UI to
// cancel any outstanding dialog; promotion to FINALIZED (and the actual
// memory release) happens in the cleanup sweep at the end of sweepOnce.
func (e *Engine) phaseDeleted(ev *queue.Event) {
	e.Actions.Run(ev, queue.WhenDeleted, -1)
	if e.CancelDialog != nil {
		e.CancelDialog(ev.ID)
	}
	ev.State, _ = state.Apply(ev.State, state.Finalized)
}

// computeQueueState recomputes the broadcast snapshot (§4.6's trailing
// paragraph, §3, §8): the nearest future trigger per boot bucket (desktop,
// actdead, non-boot), the statusbar-icon count, and the "active" UI-facing
// count. Bucketing is grounded on original_source/src/server.c's
// server_event_get_boot_mask: BOOT takes precedence over ACTDEAD, so a
// BOOT+ACTDEAD event counts toward the desktop bucket, an ACTDEAD-only
// event toward the actdead bucket, and everything else toward non-boot
// (mirrors server_rethink_queued's time_filt calls at
// original_source/src/server.c:2095-2107).
func (e *Engine) computeQueueState() QueueState {
	var s QueueState
	now := e.Clock.Now()
	for _, ev := range e.Queue.All() {
		switch ev.State {
		case state.Queued:
			if ev.Flags.Has(queue.FlagDisabled) {
				continue
			}
			if ev.Trigger.After(now) {
				switch {
				case ev.Flags.Has(queue.FlagBoot):
					timeFilt(&s.NextDesktopBoot, ev.Trigger)
				case ev.Flags.Has(queue.FlagActDead):
					timeFilt(&s.NextActdeadBoot, ev.Trigger)
				default:
					timeFilt(&s.NextNonBoot, ev.Trigger)
				}
				if ev.Flags.Has(queue.FlagShowIcon) {
					s.StatusbarIconCount++
				}
			}
		case state.WaitSysUI, state.SysUIReq, state.SysUIAck:
			s.Active++
		}
	}
	return s
}

// timeFilt keeps *low at the earliest of its current value and add,
// treating the zero time.Time as "infinity" (unset), the Go analogue of
// original_source/src/server.c's time_filt (which scans for the lowest
// time_t, with INT_MAX standing in for infinity).
func timeFilt(low *time.Time, add time.Time) {
	if low.IsZero() || add.Before(*low) {
		*low = add
	}
}

// rearmWakeups recomputes the soonest software and hardware wakeup
// instants and re-arms the scheduler (§4.8): the software timer covers
// the soonest trigger among all pending events, the hardware alarm only
// the soonest BOOT/ACTDEAD one.
func (e *Engine) rearmWakeups(now time.Time) {
	var haveSW, haveHW bool
	var sw, hw time.Time

	for _, ev := range e.Queue.All() {
		if ev.State != state.Queued && ev.State != state.Limbo && ev.State != state.Postponed {
			continue
		}
		if ev.Flags.Has(queue.FlagDisabled) {
			continue
		}
		if !haveSW || ev.Trigger.Before(sw) {
			sw, haveSW = ev.Trigger, true
		}
		if ev.Flags.Has(queue.FlagBoot) || ev.Flags.Has(queue.FlagActDead) {
			if !haveHW || ev.Trigger.Before(hw) {
				hw, haveHW = ev.Trigger, true
			}
		}
	}

	if haveSW {
		e.Wake.ArmSoftware(sw, now)
	} else {
		e.Wake.ClearSoftware()
	}
	if haveHW {
		e.Wake.ArmHardware(hw, now)
	} else {
		e.Wake.ClearHardware()
	}
}
