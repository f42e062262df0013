// queue.go implements the dual-indexed event collection (C4): a single
// owning map plus two ordered index structures, per the "dual indexing"
// design note (own the events once, index them twice, rather than the
// aliased-pointer-vector shape of the original C queue).
package queue

import (
	"sync/atomic"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/maemo-leste/alarmd/state"
)

// triggerKey is the composite (trigger, id) key for the by-trigger index.
// Ties are broken by descending identifier so that, among events sharing a
// trigger, the younger (higher id) one is ordered later: "the event that
// fires first sits at the tail" of a descending-by-trigger, descending-by-id
// ordering (§4.4).
type triggerKey struct {
	trigger time.Time
	id      int64
}

// triggerComparator orders by descending trigger, ties broken by descending
// identifier, matching §4.4 exactly.
func triggerComparator(a, b interface{}) int {
	ka, kb := a.(triggerKey), b.(triggerKey)
	switch {
	case ka.trigger.After(kb.trigger):
		return -1
	case ka.trigger.Before(kb.trigger):
		return 1
	case ka.id > kb.id:
		return -1
	case ka.id < kb.id:
		return 1
	default:
		return 0
	}
}

// Queue is the in-memory dual-indexed event collection.
type Queue struct {
	byID      *treemap.Map // int64 -> *Event, ascending
	byTrigger *treemap.Map // triggerKey -> *Event, descending

	nextID int64
}

// New builds an empty Queue.
func New() *Queue {
	return &Queue{
		byID:      treemap.NewWith(utils.Int64Comparator),
		byTrigger: treemap.NewWith(triggerComparator),
	}
}

// Insert adds an event, assigning an identifier if it is zero. It asserts
// no duplicate identifier exists already.
func (q *Queue) Insert(e *Event) error {
	if e.ID == 0 {
		e.ID = atomic.AddInt64(&q.nextID, 1)
	} else if _, found := q.byID.Get(e.ID); found {
		return &DuplicateIDError{ID: e.ID}
	}
	if e.ID >= q.nextID {
		q.nextID = e.ID
	}
	q.byID.Put(e.ID, e)
	if !e.Trigger.IsZero() {
		q.byTrigger.Put(triggerKey{trigger: e.Trigger, id: e.ID}, e)
	}
	return nil
}

// DuplicateIDError is returned by Insert when the identifier is already in
// use.
type DuplicateIDError struct{ ID int64 }

func (e *DuplicateIDError) Error() string {
	return "duplicate event identifier"
}

// SetTrigger atomically updates an event's by-trigger position. Rescheduling
// moves a single element: the old triggerKey is removed, the event's
// Trigger field is updated, and it is reinserted at the new key.
func (q *Queue) SetTrigger(e *Event, t time.Time) {
	if !e.Trigger.IsZero() {
		q.byTrigger.Remove(triggerKey{trigger: e.Trigger, id: e.ID})
	}
	e.Trigger = t
	if !t.IsZero() {
		q.byTrigger.Put(triggerKey{trigger: t, id: e.ID}, e)
	}
}

// Lookup returns the event with the given identifier, or nil if absent.
func (q *Queue) Lookup(id int64) *Event {
	v, found := q.byID.Get(id)
	if !found {
		return nil
	}
	return v.(*Event)
}

// Next returns the soonest-firing event (earliest trigger; among equal
// triggers the oldest, lowest identifier, per the descending ordering), or
// nil if the queue is empty. This is the "peek the next firing" operation,
// implemented as the tail of the descending-ordered by-trigger index; the
// tree map's Max walks to that tail in O(log n).
func (q *Queue) Next() *Event {
	if q.byTrigger.Size() == 0 {
		return nil
	}
	_, v := q.byTrigger.Max() // descending order: Max() is soonest since key order is reversed
	if v == nil {
		return nil
	}
	return v.(*Event)
}

// Purge physically removes every event whose current State satisfies the
// supplied predicate (the core calls this with state.Finalized after the
// cleanup sweep promotes Deleted -> Finalized).
func (q *Queue) Purge(done func(*Event) bool) []int64 {
	var removed []int64
	it := q.byID.Iterator()
	for it.Next() {
		e := it.Value().(*Event)
		if done(e) {
			removed = append(removed, e.ID)
		}
	}
	for _, id := range removed {
		e := q.Lookup(id)
		if e == nil {
			continue
		}
		if !e.Trigger.IsZero() {
			q.byTrigger.Remove(triggerKey{trigger: e.Trigger, id: e.ID})
		}
		q.byID.Remove(id)
	}
	return removed
}

// Query returns identifiers whose current trigger lies in [first,last] (a
// zero pair means unbounded), whose flags&mask == want, and whose app
// identifier matches when non-empty, in ascending identifier order (§4.4,
// §8's round-trip law: query(0,0,0,0,"") == all active identifiers
// ascending).
func (q *Queue) Query(first, last time.Time, mask, want Flags, app string) []int64 {
	unbounded := first.IsZero() && last.IsZero()
	var out []int64
	it := q.byID.Iterator()
	for it.Next() {
		e := it.Value().(*Event)
		if e.State == state.Deleted || e.State == state.Finalized {
			continue
		}
		if !unbounded {
			if !first.IsZero() && e.Trigger.Before(first) {
				continue
			}
			if !last.IsZero() && e.Trigger.After(last) {
				continue
			}
		}
		if e.Flags&mask != want {
			continue
		}
		if app != "" && e.App != app {
			continue
		}
		out = append(out, e.ID)
	}
	return out
}

// All returns every event in ascending-identifier order, for snapshotting
// (save, queue-state recomputation).
func (q *Queue) All() []*Event {
	out := make([]*Event, 0, q.byID.Size())
	it := q.byID.Iterator()
	for it.Next() {
		out = append(out, it.Value().(*Event))
	}
	return out
}

// Len returns the number of events currently held (including Deleted ones
// not yet swept).
func (q *Queue) Len() int {
	return q.byID.Size()
}

// Reset discards every event and rewinds the identifier counter to zero.
// Per §3's invariant, an identifier is "never reused while any reference
// may survive (cleared only on factory reset)"; this is that one escape
// hatch, used by the restore-factory-settings RPC.
func (q *Queue) Reset() {
	q.byID.Clear()
	q.byTrigger.Clear()
	atomic.StoreInt64(&q.nextID, 0)
}
