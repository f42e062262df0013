// Package state implements the per-event state machine (C5): the full
// state set, with strictly filtered transitions, modeled as an enum plus a
// transition table in one place (per the "state machine" design note).
package state

//go:generate stringer -type=State -output=state_stringer.go

// State is one of the event's lifecycle states.
type State int

// The full state set (§4.5).
const (
	New State = iota
	WaitConn
	Queued
	Missed
	Limbo
	Postponed
	Triggered
	WaitSysUI
	SysUIReq
	SysUIAck
	SysUIRsp
	Snoozed
	Served
	Recurring
	Deleted
	Finalized
)

// String names the state for logging, independent of the stringer output
// (kept hand-written so the package compiles without running go generate).
func (s State) String() string {
	switch s {
	case New:
		return "NEW"
	case WaitConn:
		return "WAITCONN"
	case Queued:
		return "QUEUED"
	case Missed:
		return "MISSED"
	case Limbo:
		return "LIMBO"
	case Postponed:
		return "POSTPONED"
	case Triggered:
		return "TRIGGERED"
	case WaitSysUI:
		return "WAITSYSUI"
	case SysUIReq:
		return "SYSUI_REQ"
	case SysUIAck:
		return "SYSUI_ACK"
	case SysUIRsp:
		return "SYSUI_RSP"
	case Snoozed:
		return "SNOOZED"
	case Served:
		return "SERVED"
	case Recurring:
		return "RECURRING"
	case Deleted:
		return "DELETED"
	case Finalized:
		return "FINALIZED"
	default:
		return "UNKNOWN"
	}
}

// allowed is the transition table (§4.5), one place for testability. Each
// entry lists the states a transition FROM the key may land on.
var allowed = map[State][]State{
	New:       {WaitConn, Queued},
	WaitConn:  {New},
	Queued:    {Missed, Limbo},
	Missed:    {Limbo, Postponed, Served}, // disable-delayed keeps state Missed + sets the flag; see core's phaseMissed
	Limbo:     {Triggered},
	Postponed: {Limbo, New},
	Triggered: {WaitSysUI, Served, Snoozed},
	WaitSysUI: {SysUIReq},
	SysUIReq:  {SysUIAck, SysUIRsp, WaitSysUI},
	SysUIAck:  {SysUIRsp, WaitSysUI},
	SysUIRsp:  {Served, Snoozed},
	Snoozed:   {New},
	Served:    {Deleted, Recurring},
	Recurring: {New, Deleted},
	Deleted:   {Finalized},
	Finalized: {}, // absorbing
}

// Allowed reports whether a transition from -> to is permitted by the
// filter table.
func Allowed(from, to State) bool {
	if from == to {
		return true // idempotent re-entry, e.g. staying in Queued across phases
	}
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Apply attempts the transition, returning the resulting state and whether
// it was accepted. A rejected transition leaves state intact. The core's
// callers discard the accepted flag, so a rejected transition is not
// logged.
func Apply(from, to State) (State, bool) {
	if !Allowed(from, to) {
		return from, false
	}
	return to, true
}
