// Package core implements the rethink loop (C6): the single-threaded
// cooperative reconciliation engine that owns the queue, drives every
// state transition, and wires the store, clock, action dispatcher,
// environment tracker and wakeup scheduler together. Grounded on
// engine/graph/engine.go's Engine shape (a struct with Logf/Debug plus an
// Init/Close lifecycle encapsulating state, instead of a global singleton)
// and on converger.converger's channel+callback coalescing idiom, adapted
// from "poke on convergence flip" to "poke on any queue/environment/timer
// event" -- this package is a single actor, not a set of per-resource
// workers, so submissions are serialized through one command channel
// rather than per-vertex goroutines.
package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/maemo-leste/alarmd/action"
	"github.com/maemo-leste/alarmd/clock"
	"github.com/maemo-leste/alarmd/envtrack"
	"github.com/maemo-leste/alarmd/queue"
	"github.com/maemo-leste/alarmd/state"
	"github.com/maemo-leste/alarmd/store"
	"github.com/maemo-leste/alarmd/util/errwrap"
	"github.com/maemo-leste/alarmd/wakeup"
)

// PowerupRequestedBit is multiplexed into the dialog response index's
// int32 wire value (§9 Open Question 2): a caller that wants to request a
// power-up ORs this into the response it acks.
const PowerupRequestedBit int32 = -1 << 31

// QueueState is the broadcast snapshot recomputed after every rethink pass
// (§4.6's trailing paragraph; §3's "queue state snapshot", §8's round-trip
// tuple). Per §3, "Unknown instants carry a sentinel infinity": here that
// sentinel is the zero time.Time, meaning no pending event of that kind
// exists; the rpc layer maps it to the wire's INT_MAX convention.
type QueueState struct {
	NextDesktopBoot time.Time // nearest future BOOT-flagged trigger
	NextActdeadBoot time.Time // nearest future ACTDEAD-only (non-BOOT) trigger
	NextNonBoot     time.Time // nearest future trigger with neither flag

	StatusbarIconCount int
	Active             int // WAITSYSUI/SYSUI_REQ/SYSUI_ACK count
}

// Equal compares two snapshots the way the rethink loop decides whether to
// broadcast: by wall-clock instant (stripping any monotonic reading
// time.Time may carry), not by time.Time's own == operator.
func (q QueueState) Equal(o QueueState) bool {
	return q.NextDesktopBoot.Equal(o.NextDesktopBoot) &&
		q.NextActdeadBoot.Equal(o.NextActdeadBoot) &&
		q.NextNonBoot.Equal(o.NextNonBoot) &&
		q.StatusbarIconCount == o.StatusbarIconCount &&
		q.Active == o.Active
}

// command is one serialized unit of work submitted to the loop goroutine.
type command struct {
	fn   func() (interface{}, error)
	resp chan commandResult
}

type commandResult struct {
	val interface{}
	err error
}

// Engine is the alarm daemon core.
type Engine struct {
	Logf func(format string, v ...interface{})

	Queue         *queue.Queue
	Store         *store.Store
	Clock         clock.Clock
	Actions       *action.Dispatcher
	Env           *envtrack.Tracker
	Wake          *wakeup.Scheduler
	DefaultSnooze int32

	// OnQueueState is invoked (on the loop goroutine) whenever the
	// queue-state snapshot changes after a rethink pass.
	OnQueueState func(QueueState)
	// OnTimeChange is invoked once per rethink that observed a time
	// change, after the phases have run.
	OnTimeChange func()
	// OpenDialog/CancelDialog are invoked to ask the UI to open or
	// cancel a dialog for an event; wired by the rpc layer.
	OpenDialog   func(e *queue.Event)
	CancelDialog func(id int64)

	cmds    chan command
	envPoke chan struct{}
	stop    chan struct{}
	done    chan struct{}

	lastSnapshot  QueueState
	haveSnapshot  bool

	baseWall  time.Time
	baseMono  time.Duration
	haveBase  bool
	lastOffset time.Duration
	haveOffset bool
	stableOffset time.Duration

	once sync.Once
}

// New builds an Engine from its collaborators. DefaultSnooze should
// already be clamped via queue.ClampSnooze.
func New(logf func(format string, v ...interface{}), q *queue.Queue, st *store.Store, clk clock.Clock, act *action.Dispatcher, env *envtrack.Tracker, wk *wakeup.Scheduler, defaultSnooze int32) *Engine {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	e := &Engine{
		Logf:          logf,
		Queue:         q,
		Store:         st,
		Clock:         clk,
		Actions:       act,
		Env:           env,
		Wake:          wk,
		DefaultSnooze: defaultSnooze,
		cmds:          make(chan command),
		envPoke:       make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	e.Env.SetOnChange(func() {
		select {
		case e.envPoke <- struct{}{}:
		default:
		}
	})
	return e
}

// Init loads the persisted queue, if any, inserting every event as-is
// (state is preserved across restart except for the transient UI states
// the codec already collapsed to LIMBO on decode).
func (e *Engine) Init() error {
	events, snooze, nonCanonical, err := e.Store.Load()
	if err != nil {
		return errwrap.Wrapf(err, "load store")
	}
	if snooze != 0 {
		e.DefaultSnooze = queue.ClampSnooze(snooze)
	}
	for _, ev := range events {
		if err := e.Queue.Insert(ev); err != nil {
			e.Logf("core: dropping event on load: %v", err)
		}
	}
	now := e.Clock.Now()
	e.baseWall = now
	e.baseMono = e.Clock.Monotonic()
	e.haveBase = true
	if nonCanonical {
		e.Logf("core: loaded from a non-canonical store file, forcing an immediate save")
		if err := e.Store.Save(e.Queue.All(), e.DefaultSnooze, now, true); err != nil {
			e.Logf("core: forced save after non-canonical load failed: %v", err)
		}
	}
	return nil
}

// Run is the loop goroutine. It blocks until Close is called.
func (e *Engine) Run() {
	defer close(e.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	se := e.Store.Events()

	for {
		select {
		case cmd := <-e.cmds:
			val, err := cmd.fn()
			cmd.resp <- commandResult{val: val, err: err}
			e.rethinkToFixpoint()

		case <-e.Wake.Fire():
			e.rethinkToFixpoint()

		case <-e.envPoke:
			e.rethinkToFixpoint()

		case ev, ok := <-se:
			if ok {
				e.Logf("core: tamper watch event: %v", ev)
				e.Store.CheckTamper(e.Clock.Now())
				e.rethinkToFixpoint()
			}

		case <-ticker.C:
			e.rethinkToFixpoint()

		case <-e.stop:
			return
		}
	}
}

// Close flushes the queue to disk and stops the loop. It must be called
// from a different goroutine than Run.
func (e *Engine) Close() error {
	e.once.Do(func() { close(e.stop) })
	<-e.done
	err := e.Store.Save(e.Queue.All(), e.DefaultSnooze, e.Clock.Now(), true)
	if cerr := e.Store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// submit serializes fn onto the loop goroutine and blocks for its result.
func (e *Engine) submit(fn func() (interface{}, error)) (interface{}, error) {
	req := command{fn: fn, resp: make(chan commandResult, 1)}
	select {
	case e.cmds <- req:
	case <-e.stop:
		return nil, fmt.Errorf("engine is stopped")
	}
	select {
	case res := <-req.resp:
		return res.val, res.err
	case <-e.stop:
		return nil, fmt.Errorf("engine is stopped")
	}
}

// sanityCheck rejects nonsensical action/recurrence combinations (§4.10):
// a sole SNOOZE action with no other type bit, or a zero recurrence period
// paired with a nonzero recur count. Per the resolved Open Question 1, a
// misconfigured delayed-flags combination is logged but not rejected.
func sanityCheck(e *queue.Event, logf func(format string, v ...interface{})) error {
	for _, a := range e.Actions {
		if a.Type == queue.ActionSnooze {
			return fmt.Errorf("action has only the snooze bit set with no other action type")
		}
	}
	if e.Recur.Period == 0 && len(e.Recur.Masks) == 0 && e.Recur.Count != 0 {
		return fmt.Errorf("recur count %d set without a period or mask list", e.Recur.Count)
	}
	multiDelayed := 0
	for _, f := range []queue.Flags{queue.FlagRunDelayed, queue.FlagPostponeDelayed, queue.FlagDisableDelayed} {
		if e.Flags.Has(f) {
			multiDelayed++
		}
	}
	if multiDelayed > 1 {
		logf("core: event has more than one delayed-policy flag set, first match (run, postpone, disable) wins")
	}
	return nil
}

// computeInitialTrigger implements §4.10's "computes initial trigger via
// C2 if the client supplied only broken-down/masked form".
func (e *Engine) computeInitialTrigger(ev *queue.Event, now time.Time) (time.Time, error) {
	if ev.Spec.HasAbsolute {
		return ev.Spec.Absolute, nil
	}
	loc := ev.Spec.Zone
	if loc == nil {
		loc = e.Clock.GetZone()
	}
	t, err := e.Clock.Mktime(ev.Spec.BrokenDown, loc)
	if err != nil {
		return time.Time{}, err
	}
	return clock.RoundUpToMinute(t), nil
}

// Add implements §4.10's add operation.
func (e *Engine) Add(ev *queue.Event) (int64, error) {
	val, err := e.submit(func() (interface{}, error) {
		if err := sanityCheck(ev, e.Logf); err != nil {
			return int64(0), err
		}
		now := e.Clock.Now()
		ev.State = state.New
		ev.Response = -1
		ev.HasSnoozeAnchor = false
		ev.SnoozeAnchor = time.Time{}

		trigger, err := e.computeInitialTrigger(ev, now)
		if err != nil {
			return int64(0), errwrap.Wrapf(err, "compute initial trigger")
		}
		if trigger.Before(now) {
			return int64(0), fmt.Errorf("computed trigger %s is in the past", trigger)
		}
		ev.ID = 0
		if err := e.Queue.Insert(ev); err != nil {
			return int64(0), err
		}
		e.Queue.SetTrigger(ev, trigger)
		return ev.ID, nil
	})
	if err != nil {
		return 0, err
	}
	return val.(int64), nil
}

// Update implements §4.10's update operation: delete the prior identifier
// (its deleted-actions run on the next rethink), then add as new.
func (e *Engine) Update(oldID int64, ev *queue.Event) (int64, error) {
	if oldID != 0 {
		_ = e.Delete(oldID) // a missing prior identifier is not an error here
	}
	return e.Add(ev)
}

// Delete implements §4.10's delete operation: unlike the phase table's
// internal advancement, a client-initiated delete is unconditional from
// any current state (its deleted-actions still run on the next rethink,
// via phase 15).
func (e *Engine) Delete(id int64) error {
	_, err := e.submit(func() (interface{}, error) {
		ev := e.Queue.Lookup(id)
		if ev == nil {
			return nil, fmt.Errorf("no such event %d", id)
		}
		ev.State = state.Deleted
		return nil, nil
	})
	return err
}

// Query implements §4.10's query operation, a passthrough to C4.
func (e *Engine) Query(first, last time.Time, mask, want queue.Flags, app string) ([]int64, error) {
	val, err := e.submit(func() (interface{}, error) {
		return e.Queue.Query(first, last, mask, want, app), nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]int64), nil
}

// Get implements §4.10's get operation: events in DELETED/FINALIZED state
// are hidden from clients.
func (e *Engine) Get(id int64) (*queue.Event, bool) {
	val, _ := e.submit(func() (interface{}, error) {
		ev := e.Queue.Lookup(id)
		if ev == nil || ev.State == state.Deleted || ev.State == state.Finalized {
			return (*queue.Event)(nil), nil
		}
		cp := *ev
		return &cp, nil
	})
	ev, _ := val.(*queue.Event)
	return ev, ev != nil
}

// AckDialog implements §4.10's ack-dialog operation. response may carry
// PowerupRequestedBit ORed in; it is stripped before being stored.
func (e *Engine) AckDialog(id int64, response int32) error {
	_, err := e.submit(func() (interface{}, error) {
		ev := e.Queue.Lookup(id)
		if ev == nil {
			return nil, fmt.Errorf("no such event %d", id)
		}
		if response&PowerupRequestedBit != 0 {
			f := e.Env.Flags()
			f.SendPowerupRequest = true
			e.Env.SetFlags(f)
			response &^= PowerupRequestedBit
		}
		if ev.State == state.SysUIReq {
			ev.State, _ = state.Apply(ev.State, state.SysUIAck)
		}
		if ev.State != state.SysUIAck {
			return nil, fmt.Errorf("event %d is not awaiting a dialog response (state %s)", id, ev.State)
		}
		next, ok := state.Apply(ev.State, state.SysUIRsp)
		if !ok {
			return nil, fmt.Errorf("event %d cannot accept a dialog response from state %s", id, ev.State)
		}
		ev.State = next
		ev.Response = response
		return nil, nil
	})
	return err
}

// AckQueue implements §4.10's ack-queue operation: a batch of dialog-open
// requests were received by the UI, so matching events advance
// SYSUI_REQ -> SYSUI_ACK.
func (e *Engine) AckQueue(ids []int64) error {
	_, err := e.submit(func() (interface{}, error) {
		for _, id := range ids {
			ev := e.Queue.Lookup(id)
			if ev == nil || ev.State != state.SysUIReq {
				continue
			}
			ev.State, _ = state.Apply(ev.State, state.SysUIAck)
		}
		return nil, nil
	})
	return err
}

// SetDefaultSnooze implements the `set_snooze` RPC (§6.1): seconds is
// clamped per §3's "Default snooze" rules before being stored.
func (e *Engine) SetDefaultSnooze(seconds uint32) error {
	_, err := e.submit(func() (interface{}, error) {
		e.DefaultSnooze = queue.ClampSnooze(int32(seconds))
		return nil, nil
	})
	return err
}

// GetDefaultSnooze implements the `get_snooze` RPC.
func (e *Engine) GetDefaultSnooze() uint32 {
	val, _ := e.submit(func() (interface{}, error) {
		return uint32(e.DefaultSnooze), nil
	})
	n, _ := val.(uint32)
	return n
}

// ClearUserData implements the `clear_user_data` RPC: every event is
// deleted (its deleted-actions still run on the next rethink via phase 15)
// but the identifier counter and default snooze survive.
func (e *Engine) ClearUserData() error {
	_, err := e.submit(func() (interface{}, error) {
		for _, ev := range e.Queue.All() {
			ev.State = state.Deleted
		}
		return nil, nil
	})
	return err
}

// RestoreFactorySettings implements the `restore_factory_settings` RPC:
// the queue is wiped immediately (no deleted-actions run), the identifier
// counter is rewound to zero per §3's invariant, and the default snooze
// resets to the built-in default.
func (e *Engine) RestoreFactorySettings() error {
	_, err := e.submit(func() (interface{}, error) {
		e.Queue.Reset()
		e.DefaultSnooze = queue.ClampSnooze(0)
		return nil, nil
	})
	return err
}
