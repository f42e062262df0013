package envtrack

import "testing"

func TestSetPeerUpNotifiesOnChange(t *testing.T) {
	tr := New(nil)
	calls := 0
	tr.SetOnChange(func() { calls++ })

	tr.SetPeerUp(PeerUI, true)
	if calls != 1 {
		t.Fatalf("expected 1 notification, got %d", calls)
	}
	if !tr.IsPeerUp(PeerUI) {
		t.Fatalf("PeerUI should be up")
	}

	// Setting to the same value again must not notify.
	tr.SetPeerUp(PeerUI, true)
	if calls != 1 {
		t.Fatalf("expected no extra notification for unchanged value, got %d calls", calls)
	}
}

func TestFakePinOverridesRealPresence(t *testing.T) {
	tr := New(nil)
	tr.SetPeerUp(PeerTime, true)
	tr.SetFake(PeerTime, false)
	if tr.IsPeerUp(PeerTime) {
		t.Fatalf("fake pin should override real presence")
	}
	tr.SetPeerUp(PeerTime, true) // ignored while pinned
	if tr.IsPeerUp(PeerTime) {
		t.Fatalf("real presence update should be ignored while pinned")
	}
	tr.ClearFake(PeerTime)
	if !tr.IsPeerUp(PeerTime) {
		t.Fatalf("unpinning should resume real presence tracking")
	}
}

func TestSetFlagsNotifiesOnChange(t *testing.T) {
	tr := New(nil)
	calls := 0
	tr.SetOnChange(func() { calls++ })

	tr.SetFlags(Flags{DesktopUp: true})
	if calls != 1 {
		t.Fatalf("expected 1 notification, got %d", calls)
	}
	if !tr.DesktopReady() {
		t.Fatalf("DesktopReady should reflect DesktopUp")
	}

	tr.SetFlags(Flags{DesktopUp: true})
	if calls != 1 {
		t.Fatalf("expected no extra notification for unchanged flags, got %d", calls)
	}
}
