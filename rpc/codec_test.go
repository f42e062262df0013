package rpc

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/maemo-leste/alarmd/clock"
	"github.com/maemo-leste/alarmd/queue"
	"github.com/maemo-leste/alarmd/recurrence"
)

func TestEventWireRoundTripAbsolute(t *testing.T) {
	now := time.Unix(1_800_000_000, 0).UTC()
	ev := &queue.Event{
		Flags:         queue.FlagShowIcon | queue.FlagConnected,
		Trigger:       now.Add(time.Hour),
		Spec:          queue.TimeSpec{HasAbsolute: true, Absolute: now.Add(time.Hour)},
		SnoozeSeconds: 120,
		App:           "clock",
		Title:         "wake up",
		Response:      -1,
		Actions: []queue.Action{
			{When: queue.WhenTriggered, Type: queue.ActionExec, ExecCmd: "/bin/true"},
		},
	}

	w := EncodeEvent(ev)
	if w.Trigger != int32(ev.Trigger.Unix()) {
		t.Fatalf("trigger mismatch: %d vs %d", w.Trigger, ev.Trigger.Unix())
	}
	if w.Flags != uint32(ev.Flags) {
		t.Fatalf("flags mismatch")
	}
	if len(w.Actions) != 1 || w.Actions[0].Exec != "/bin/true" {
		t.Fatalf("action not round-tripped: %+v", w.Actions)
	}

	back := DecodeEvent(w, now)
	if !back.Spec.HasAbsolute {
		t.Fatalf("expected absolute spec")
	}
	if back.Flags != ev.Flags {
		t.Fatalf("flags not round-tripped: %v vs %v", back.Flags, ev.Flags)
	}
	if len(back.Actions) != 1 || back.Actions[0].ExecCmd != "/bin/true" {
		t.Fatalf("action not decoded: %+v", back.Actions)
	}
}

func TestEventWireRoundTripBrokenDown(t *testing.T) {
	ev := &queue.Event{
		Spec: queue.TimeSpec{
			BrokenDown: clock.BrokenDown{Year: 2030, Month: 5, Day: 1, Hour: 7, Minute: 0, Second: 0},
		},
		Response: -1,
	}
	w := EncodeEvent(ev)
	if w.AlarmYear != 2030 || w.AlarmMon != 4 || w.AlarmMday != 1 {
		t.Fatalf("unexpected broken-down wire: %+v", w)
	}
	back := DecodeEvent(w, time.Now())
	if back.Spec.HasAbsolute {
		t.Fatalf("expected broken-down spec")
	}
	if back.Spec.BrokenDown.Year != 2030 || back.Spec.BrokenDown.Month != 5 {
		t.Fatalf("broken-down not round-tripped: %+v", back.Spec.BrokenDown)
	}
}

func TestResolveAbsoluteInstantCutoff(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	w := EventWire{AlarmTime: 30} // "30 seconds from now" per the magic cutoff
	ev := DecodeEvent(w, now)
	if !ev.Spec.Absolute.Equal(now.Add(30 * time.Second)) {
		t.Fatalf("expected seconds-from-now interpretation, got %v", ev.Spec.Absolute)
	}
}

func TestRecurWireRoundTrip(t *testing.T) {
	d := recurrence.Descriptor{
		Schedule:       cron.SpecSchedule{Minute: 1 << 30, Hour: 1 << 7},
		LastDayOfMonth: true,
		Special:        recurrence.SpecialMonthly,
	}
	w := descriptorToWire(d)
	back := wireToDescriptor(w)
	if back.Schedule.Minute != d.Schedule.Minute || back.Schedule.Hour != d.Schedule.Hour {
		t.Fatalf("mask not round-tripped: %+v", back)
	}
	if back.LastDayOfMonth != d.LastDayOfMonth || back.Special != d.Special {
		t.Fatalf("flags not round-tripped: %+v", back)
	}
}
