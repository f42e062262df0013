// Package envtrack implements the environment tracker (C9): aggregation of
// peer-service availability, connectivity, desktop-ready signals, and clock
// jumps into a flag set that gates rethink transitions. It is grounded on
// the teacher's converger package (mutex-guarded map + callback fired on
// change), adapted so the registered key is a fixed peer name rather than a
// dynamically assigned resource UID, and SetConverged becomes SetPeerUp.
package envtrack

import (
	"sync"
)

// Peer names the tracker understands (§4.9, §6.1's NameOwnerChanged list).
type Peer string

// The recognized peers.
const (
	PeerUI       Peer = "ui"
	PeerTime     Peer = "timed"
	PeerDsme     Peer = "dsme"
	PeerMessaging Peer = "messaging"
	PeerStatusbar Peer = "statusbar"
)

// Flags is the aggregated environment flag set (§4.9).
type Flags struct {
	Connected bool
	StartingUp bool

	ActDead   bool
	DesktopUp bool

	TimeChanged       bool
	ZoneChanged       bool
	ClockMovedForward bool
	ClockMovedBackward bool
	ClockDelta        int64 // signed seconds, carried into phase 3

	BroadcastPending    bool
	SendPowerupRequest  bool
	SendStatusbarRequest bool
}

// Tracker aggregates peer presence and environment flags. Mutations poke a
// registered callback exactly once per observed change, mirroring
// converger's mutex+channel+callback idiom, adapted to boolean peer
// presence rather than timeout/UID convergence.
type Tracker struct {
	Logf func(format string, v ...interface{})

	mu       sync.RWMutex
	peers    map[Peer]bool
	fake     map[Peer]bool // debug override mask
	fakeSet  map[Peer]bool // which peers are pinned
	flags    Flags
	onChange func()
}

// New builds a Tracker with every peer initially down.
func New(logf func(format string, v ...interface{})) *Tracker {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Tracker{
		Logf:    logf,
		peers:   make(map[Peer]bool),
		fake:    make(map[Peer]bool),
		fakeSet: make(map[Peer]bool),
	}
}

// SetOnChange registers the callback invoked (synchronously, on the calling
// goroutine) whenever SetPeerUp, SetFake, or SetFlags observes a change.
// The core rethink loop uses this to poke its own coalescing channel,
// exactly as the original converger.SetConverged pokes its channel on a
// convergence flip.
func (obj *Tracker) SetOnChange(fn func()) {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	obj.onChange = fn
}

func (obj *Tracker) notify() {
	if obj.onChange != nil {
		obj.onChange()
	}
}

// SetPeerUp updates the presence of a peer. A debug-pinned peer (via
// SetFake) ignores real presence updates until unpinned.
func (obj *Tracker) SetPeerUp(peer Peer, up bool) {
	obj.mu.Lock()
	if obj.fakeSet[peer] {
		obj.mu.Unlock()
		return
	}
	changed := obj.peers[peer] != up
	obj.peers[peer] = up
	obj.mu.Unlock()
	if changed {
		obj.Logf("envtrack: peer %s up=%v", peer, up)
		obj.notify()
	}
}

// IsPeerUp reports whether peer is currently considered present, honoring
// any debug pin.
func (obj *Tracker) IsPeerUp(peer Peer) bool {
	obj.mu.RLock()
	defer obj.mu.RUnlock()
	if obj.fakeSet[peer] {
		return obj.fake[peer]
	}
	return obj.peers[peer]
}

// SetFake pins peer to a fixed up/down value regardless of real presence
// updates, per the fake-vs-real debug mask (§4.9). Passing up=false pins the
// peer down; only ClearFake removes the pin and resumes real tracking.
func (obj *Tracker) SetFake(peer Peer, up bool) {
	obj.mu.Lock()
	obj.fakeSet[peer] = true
	changed := obj.fake[peer] != up
	obj.fake[peer] = up
	obj.mu.Unlock()
	if changed {
		obj.notify()
	}
}

// ClearFake un-pins peer, resuming real presence tracking.
func (obj *Tracker) ClearFake(peer Peer) {
	obj.mu.Lock()
	delete(obj.fakeSet, peer)
	obj.mu.Unlock()
}

// Flags returns a copy of the current environment flags.
func (obj *Tracker) Flags() Flags {
	obj.mu.RLock()
	defer obj.mu.RUnlock()
	return obj.flags
}

// SetFlags replaces the environment flags wholesale (the core's clock-
// stability filter and dbus signal handlers call this after computing the
// new aggregate state) and notifies on any observable change.
func (obj *Tracker) SetFlags(f Flags) {
	obj.mu.Lock()
	changed := obj.flags != f
	obj.flags = f
	obj.mu.Unlock()
	if changed {
		obj.notify()
	}
}

// DesktopReady reports whether the desktop-ready condition gates phase 7
// (LIMBO -> TRIGGERED): desktop-up and (user-mode or the event's own
// act-dead flag, the latter checked by the caller per-event).
func (obj *Tracker) DesktopReady() bool {
	obj.mu.RLock()
	defer obj.mu.RUnlock()
	return obj.flags.DesktopUp
}
