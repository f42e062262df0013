// Package queue implements the in-memory event collection: the event data
// model (§3) and the dual-indexed queue (C4).
package queue

import (
	"time"

	"github.com/maemo-leste/alarmd/clock"
	"github.com/maemo-leste/alarmd/recurrence"
	"github.com/maemo-leste/alarmd/state"
)

// Flags is the event bit set (§3).
type Flags uint32

// The recognized flag bits. RunDelayed/PostponeDelayed/DisableDelayed are
// mutually exclusive; first-match-wins in that literal order when more than
// one is set (see SPEC_FULL.md's Open Question decisions).
const (
	FlagBoot Flags = 1 << iota
	FlagActDead
	FlagShowIcon
	FlagConnected
	FlagRunDelayed
	FlagPostponeDelayed
	FlagDisableDelayed
	FlagBackReschedule
	FlagDisabled
)

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// CookieToken is substituted with the event identifier in an exec action's
// command line, per §3's expansion (ambient data-model addition).
const CookieToken = "[COOKIE]"

// oneYearSeconds is the magic cutoff used to resolve the deprecated
// "alarm_time as seconds-from-now" wire convention (§9 Open Question 3).
const oneYearSeconds = 365 * 24 * 3600

// TimeSpec is the client-supplied time specification: either an absolute
// instant, or a broken-down time plus optional zone ("floats" with the
// active zone when Zone is nil).
type TimeSpec struct {
	Absolute    time.Time // zero value means "use BrokenDown instead"
	HasAbsolute bool

	BrokenDown clock.BrokenDown
	Zone       *time.Location // nil means "floats"
}

// resolveAbsoluteInstant implements the deprecated alarm_time convention:
// a value under oneYearSeconds supplied as an absolute instant is
// interpreted as "seconds from now" rather than an absolute epoch, for
// wire compatibility with older clients. Deprecated: new clients should
// always supply a proper absolute instant or broken-down time.
func resolveAbsoluteInstant(epochSeconds int64, now time.Time) time.Time {
	if epochSeconds < oneYearSeconds {
		return now.Add(time.Duration(epochSeconds) * time.Second)
	}
	return time.Unix(epochSeconds, 0)
}

// ResolveAbsoluteInstant is the exported entry point used by the RPC layer
// when decoding a raw epoch-seconds wire value.
func ResolveAbsoluteInstant(epochSeconds int64, now time.Time) time.Time {
	return resolveAbsoluteInstant(epochSeconds, now)
}

// ActionWhen bits (§4.7).
type ActionWhen uint32

const (
	WhenQueued ActionWhen = 1 << iota
	WhenDelayed
	WhenTriggered
	WhenDisabled
	WhenResponded
	WhenDeleted
)

// ActionType bits (§4.7). Boot hints are carried for queue-state bucketing
// only; they have no other effect in the core.
type ActionType uint32

const (
	ActionNop ActionType = 1 << iota
	ActionSnooze
	ActionDisable
	ActionMessage
	ActionExec
	ActionBootDesktop
	ActionBootActDead
)

// Action is a single action descriptor (§4.7).
type Action struct {
	When  ActionWhen
	Type  ActionType
	Label string // non-empty + When&WhenResponded != 0 makes this a dialog button

	// Exec payload.
	ExecCmd        string
	ExecAppendID   bool // append/substitute the event identifier

	// Message payload.
	MsgInterface   string
	MsgPath        string
	MsgMember      string
	MsgDestination string // empty means "emit a signal"
	MsgArgs        []byte // opaque, pre-serialized by the client
	MsgAutoStart   bool
	MsgSystemBus   bool
	MsgAppendID    bool
}

// Attrs is the free-form user attribute map (§3): name -> one of
// int64/time.Time/string. Stored as interface{} since it is opaque to the
// engine.
type Attrs map[string]interface{}

// Recurrence bundles the two recurrence forms described in §3: a simple
// period+count, or a list of recurrence masks. Both empty means one-shot.
type Recurrence struct {
	Period time.Duration // 0 means "use Masks instead"
	Count  int32         // -1 means infinite

	Masks []recurrence.Descriptor
}

// IsOneShot reports whether no recurrence is configured at all.
func (r Recurrence) IsOneShot() bool {
	return r.Period == 0 && len(r.Masks) == 0
}

// Event is the central entity (§3): an immutable-by-client description plus
// server-owned mutable fields.
type Event struct {
	ID    int64
	State state.State

	Trigger time.Time
	Flags   Flags

	Spec TimeSpec

	SnoozeSeconds   int32 // 0 means "use the queue-wide default"
	SnoozeAnchor    time.Time
	HasSnoozeAnchor bool

	Recur Recurrence

	Actions []Action

	App string

	Title     string
	Message   string
	SoundPath string
	IconPath  string

	UserAttrs Attrs

	Response int32 // last user choice, or -1
}

// EffectiveSnooze returns the per-event snooze override, or def (the
// queue-wide default) when unset.
func (e *Event) EffectiveSnooze(def int32) time.Duration {
	s := e.SnoozeSeconds
	if s == 0 {
		s = def
	}
	return time.Duration(s) * time.Second
}

// ClampSnooze enforces the queue-wide default's bounds: [10, 86400],
// resetting to the built-in default of 600 on overflow or out-of-range.
func ClampSnooze(seconds int32) int32 {
	const (
		min     = 10
		max     = 86400
		builtin = 600
	)
	if seconds < min || seconds > max {
		return builtin
	}
	return seconds
}

// IsAbsolute is a convenience check: whether the time spec was supplied as
// an absolute instant rather than broken-down/masked form.
func (ts TimeSpec) IsAbsolute() bool {
	return ts.HasAbsolute
}
