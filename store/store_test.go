package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maemo-leste/alarmd/clock"
	"github.com/maemo-leste/alarmd/queue"
	"github.com/maemo-leste/alarmd/state"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	events := []*queue.Event{
		{
			ID:      1,
			State:   state.Queued,
			Trigger: time.Unix(1800000000, 0),
			Flags:   queue.FlagBoot | queue.FlagShowIcon,
			App:     "clock",
			Title:   "wake up\\nnow",
			Response: -1,
		},
		{
			ID:    2,
			State: state.Recurring,
			App:   "weather",
		},
	}
	data := Encode(events, 600)
	got, snooze, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if snooze != 600 {
		t.Fatalf("snooze = %d, want 600", snooze)
	}
	if len(got) != len(events) {
		t.Fatalf("got %d events, want %d", len(got), len(events))
	}
	for i, e := range got {
		if e.ID != events[i].ID || e.State != events[i].State || e.App != events[i].App {
			t.Fatalf("event %d round trip mismatch: got %+v want %+v", i, e, events[i])
		}
	}
	if got[0].Title != events[0].Title {
		t.Fatalf("Title round trip mismatch: got %q want %q", got[0].Title, events[0].Title)
	}
}

func TestEncodeDecodeRoundTripsSpecAndUserAttrs(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Skipf("zoneinfo not available: %v", err)
	}
	events := []*queue.Event{
		{
			ID:    3,
			State: state.Queued,
			Spec: queue.TimeSpec{
				BrokenDown: clock.BrokenDown{Hour: 7, Minute: 0, DSTHint: clock.DSTUnknown},
				Zone:       loc,
			},
			UserAttrs: queue.Attrs{
				"count": int64(3),
				"label": "snoozed twice",
				"seen":  time.Unix(1700000000, 0),
			},
			Response: -1,
		},
		{
			ID:    4,
			State: state.Queued,
			Spec: queue.TimeSpec{
				HasAbsolute: true,
				Absolute:    time.Unix(1900000000, 0),
			},
			Response: -1,
		},
	}
	data := Encode(events, 600)
	got, _, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}

	floating := got[0]
	if floating.Spec.HasAbsolute {
		t.Fatalf("floating event should not round-trip as absolute")
	}
	if floating.Spec.BrokenDown.Hour != 7 || floating.Spec.BrokenDown.Minute != 0 {
		t.Fatalf("broken-down time mismatch: got %+v", floating.Spec.BrokenDown)
	}
	if floating.Spec.Zone == nil || floating.Spec.Zone.String() != "Europe/Helsinki" {
		t.Fatalf("zone mismatch: got %v", floating.Spec.Zone)
	}
	if n, ok := floating.UserAttrs["count"].(int64); !ok || n != 3 {
		t.Fatalf("user attr count mismatch: got %+v", floating.UserAttrs["count"])
	}
	if s, ok := floating.UserAttrs["label"].(string); !ok || s != "snoozed twice" {
		t.Fatalf("user attr label mismatch: got %+v", floating.UserAttrs["label"])
	}
	if tm, ok := floating.UserAttrs["seen"].(time.Time); !ok || !tm.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("user attr seen mismatch: got %+v", floating.UserAttrs["seen"])
	}

	absolute := got[1]
	if !absolute.Spec.HasAbsolute || !absolute.Spec.Absolute.Equal(time.Unix(1900000000, 0)) {
		t.Fatalf("absolute spec mismatch: got %+v", absolute.Spec)
	}
}

func TestDecodeCollapsesTransientUIStates(t *testing.T) {
	for _, s := range []state.State{state.Triggered, state.WaitSysUI, state.SysUIReq, state.SysUIAck, state.SysUIRsp} {
		events := []*queue.Event{{ID: 1, State: s}}
		data := Encode(events, 600)
		got, _, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got[0].State != state.Limbo {
			t.Fatalf("state %v should collapse to LIMBO on reload, got %v", s, got[0].State)
		}
	}
}

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{
		"plain text",
		"back\\slash",
		"tab\there",
		"newline\nhere",
		"\x01control\x7f",
		"unicode: \xc3\xa9",
	}
	for _, c := range cases {
		if got := unescape(escape(c)); got != c {
			t.Errorf("round trip mismatch for %q: got %q", c, got)
		}
	}
}

func TestSaveSkipsUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	events := []*queue.Event{{ID: 1, State: state.Queued}}
	now := time.Now()
	if err := s.Save(events, 600, now, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	fi1, _ := os.Stat(filepath.Join(dir, FileQueue))

	// Saving identical content again must not rewrite the file.
	if err := s.Save(events, 600, now.Add(time.Second), false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	fi2, _ := os.Stat(filepath.Join(dir, FileQueue))
	if fi1.ModTime() != fi2.ModTime() {
		t.Fatalf("unchanged save should not rewrite the file")
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	events := []*queue.Event{
		{ID: 1, State: state.Queued, Trigger: time.Unix(1800000000, 0), App: "clock"},
	}
	if err := s.Save(events, 600, time.Now(), false); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s2, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, snooze, nonCanonical, err := s2.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if nonCanonical {
		t.Fatalf("Load should have used the canonical file")
	}
	if snooze != 600 || len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("Load returned unexpected state: snooze=%d events=%+v", snooze, got)
	}
}

func TestLoadFallsBackToBackup(t *testing.T) {
	dir := t.TempDir()
	data := Encode([]*queue.Event{{ID: 7, State: state.Queued}}, 600)
	if err := os.WriteFile(filepath.Join(dir, FileBackup), data, 0o600); err != nil {
		t.Fatalf("seed backup: %v", err)
	}
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, _, nonCanonical, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !nonCanonical {
		t.Fatalf("Load should report non-canonical when only the backup exists")
	}
	if len(got) != 1 || got[0].ID != 7 {
		t.Fatalf("Load from backup returned %+v", got)
	}
}

func TestCheckTamperDetectsExternalChange(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now := time.Now()
	if err := s.Save([]*queue.Event{{ID: 1}}, 600, now, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// External tool overwrites the canonical file out of band.
	time.Sleep(10 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, FileQueue), []byte("[config]\nsnooze=10\n\n"), 0o600); err != nil {
		t.Fatalf("external overwrite: %v", err)
	}
	s.CheckTamper(now.Add(time.Second))
	if s.ForceDue(now.Add(time.Second)) {
		t.Fatalf("holdoff should not have elapsed yet")
	}
	if s.ForceDue(now.Add(61 * time.Second)) != true {
		t.Fatalf("holdoff should have elapsed after 60s")
	}
}
