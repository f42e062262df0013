// Package action implements the action dispatcher (C7): it runs the
// declared actions for a given `when` phase, in declared order, per §4.7.
// State transitions (`snooze`, `disable`) are reported back to the caller
// as a Result rather than mutated here directly, keeping the dispatcher
// itself free of queue/state package dependencies beyond the event's own
// action list -- the core applies the Result via state.Apply, matching the
// "the core never directly manipulates process descriptors" design note.
package action

import (
	"github.com/maemo-leste/alarmd/queue"
)

// Dispatcher runs actions and owns the exec/message side-effect
// configuration.
type Dispatcher struct {
	Logf func(format string, v ...interface{})
	Exec ExecConfig
}

// New builds a Dispatcher.
func New(logf func(format string, v ...interface{}), cfg ExecConfig) *Dispatcher {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Dispatcher{Logf: logf, Exec: cfg}
}

// Result reports the side effects of running a batch of actions that the
// core must fold back into event/queue-state: whether a snooze or disable
// was requested.
type Result struct {
	Snooze  bool
	Disable bool
}

// Run executes every action in e.Actions whose When bitset includes phase,
// in declared order (§4.7). responseIndex selects which action is "the
// response action" for WhenResponded; pass -1 when not applicable.
func (d *Dispatcher) Run(e *queue.Event, phase queue.ActionWhen, responseIndex int) Result {
	var res Result
	for i, a := range e.Actions {
		if a.When&phase == 0 {
			continue
		}
		if phase == queue.WhenResponded && i != responseIndex {
			continue
		}
		d.runOne(e, a, &res)
	}
	return res
}

func (d *Dispatcher) runOne(e *queue.Event, a queue.Action, res *Result) {
	if a.Type&queue.ActionSnooze != 0 {
		res.Snooze = true
	}
	if a.Type&queue.ActionDisable != 0 {
		res.Disable = true
	}
	if a.Type&queue.ActionExec != 0 {
		if err := RunExec(a, e.ID, d.Exec, d.Logf); err != nil {
			d.Logf("action: exec for event %d failed: %v", e.ID, err)
		}
	}
	if a.Type&queue.ActionMessage != 0 {
		if err := RunMessage(a, e.ID); err != nil {
			d.Logf("action: message for event %d failed: %v", e.ID, err)
		}
	}
	// ActionBootDesktop/ActionBootActDead influence queue-state
	// bucketing only (§4.7); no runtime effect here.
}
