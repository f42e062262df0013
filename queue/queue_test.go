package queue

import (
	"testing"
	"time"

	"github.com/maemo-leste/alarmd/state"
)

func TestInsertAssignsIdentifier(t *testing.T) {
	q := New()
	e := &Event{Trigger: time.Now().Add(time.Hour)}
	if err := q.Insert(e); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if e.ID == 0 {
		t.Fatalf("expected a non-zero assigned identifier")
	}
	if got := q.Lookup(e.ID); got != e {
		t.Fatalf("Lookup did not return the inserted event")
	}
}

func TestInsertRejectsDuplicateIdentifier(t *testing.T) {
	q := New()
	e1 := &Event{ID: 5, Trigger: time.Now()}
	if err := q.Insert(e1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	e2 := &Event{ID: 5, Trigger: time.Now()}
	if err := q.Insert(e2); err == nil {
		t.Fatalf("expected duplicate identifier error")
	}
}

func TestNextOrdersByTriggerThenDescendingID(t *testing.T) {
	q := New()
	now := time.Now()

	// Two events sharing a trigger: the younger (higher id) fires later,
	// so the soonest-to-fire is the lower id.
	a := &Event{ID: 1, Trigger: now}
	b := &Event{ID: 2, Trigger: now}
	earlier := &Event{ID: 3, Trigger: now.Add(-time.Minute)}

	for _, e := range []*Event{a, b, earlier} {
		if err := q.Insert(e); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got := q.Next()
	if got.ID != earlier.ID {
		t.Fatalf("Next() = id %d, want the earliest trigger (id %d)", got.ID, earlier.ID)
	}
}

func TestSetTriggerMovesSingleElement(t *testing.T) {
	q := New()
	e := &Event{ID: 1, Trigger: time.Now()}
	if err := q.Insert(e); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	newTrigger := time.Now().Add(time.Hour)
	q.SetTrigger(e, newTrigger)
	if !e.Trigger.Equal(newTrigger) {
		t.Fatalf("SetTrigger did not update Trigger")
	}
	if got := q.Next(); got.ID != e.ID {
		t.Fatalf("SetTrigger did not reindex by-trigger position")
	}
}

func TestQueryUnboundedReturnsAscendingIdentifiers(t *testing.T) {
	q := New()
	ids := []int64{3, 1, 2}
	for _, id := range ids {
		if err := q.Insert(&Event{ID: id, Trigger: time.Now()}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	got := q.Query(time.Time{}, time.Time{}, 0, 0, "")
	want := []int64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("Query returned %d ids, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Query()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestQueryExcludesDeleted(t *testing.T) {
	q := New()
	e := &Event{ID: 1, Trigger: time.Now(), State: state.Deleted}
	if err := q.Insert(e); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got := q.Query(time.Time{}, time.Time{}, 0, 0, "")
	if len(got) != 0 {
		t.Fatalf("Query should exclude DELETED events, got %v", got)
	}
}

func TestQueryFiltersByAppAndFlags(t *testing.T) {
	q := New()
	a := &Event{ID: 1, Trigger: time.Now(), App: "clock", Flags: FlagDisabled}
	b := &Event{ID: 2, Trigger: time.Now(), App: "other"}
	for _, e := range []*Event{a, b} {
		if err := q.Insert(e); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	got := q.Query(time.Time{}, time.Time{}, FlagDisabled, FlagDisabled, "")
	if len(got) != 1 || got[0] != a.ID {
		t.Fatalf("Query by flags = %v, want [%d]", got, a.ID)
	}

	got = q.Query(time.Time{}, time.Time{}, 0, 0, "other")
	if len(got) != 1 || got[0] != b.ID {
		t.Fatalf("Query by app = %v, want [%d]", got, b.ID)
	}
}

func TestPurgeRemovesFinalized(t *testing.T) {
	q := New()
	e := &Event{ID: 1, Trigger: time.Now(), State: state.Finalized}
	if err := q.Insert(e); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	removed := q.Purge(func(e *Event) bool { return e.State == state.Finalized })
	if len(removed) != 1 || removed[0] != e.ID {
		t.Fatalf("Purge removed %v, want [%d]", removed, e.ID)
	}
	if q.Lookup(e.ID) != nil {
		t.Fatalf("Purge did not physically remove the event")
	}
}
