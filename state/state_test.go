package state

import "testing"

func TestAllowedForwardPaths(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{New, Queued, true},
		{New, WaitConn, true},
		{WaitConn, New, true},
		{Queued, Limbo, true},
		{Limbo, Triggered, true},
		{Triggered, WaitSysUI, true},
		{WaitSysUI, SysUIReq, true},
		{SysUIReq, SysUIAck, true},
		{SysUIAck, SysUIRsp, true},
		{SysUIRsp, Served, true},
		{Served, Recurring, true},
		{Recurring, New, true},
		{Deleted, Finalized, true},
	}
	for _, c := range cases {
		if got := Allowed(c.from, c.to); got != c.want {
			t.Errorf("Allowed(%v, %v) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestSysUIAckOnlyFromReq(t *testing.T) {
	if Allowed(WaitSysUI, SysUIAck) {
		t.Fatalf("SYSUI_ACK must only be accepted from SYSUI_REQ")
	}
	if !Allowed(SysUIReq, SysUIAck) {
		t.Fatalf("SYSUI_ACK must be accepted from SYSUI_REQ")
	}
}

func TestSysUIRspFromReqOrAck(t *testing.T) {
	if !Allowed(SysUIReq, SysUIRsp) {
		t.Fatalf("SYSUI_RSP must be accepted from SYSUI_REQ")
	}
	if !Allowed(SysUIAck, SysUIRsp) {
		t.Fatalf("SYSUI_RSP must be accepted from SYSUI_ACK")
	}
	if Allowed(WaitSysUI, SysUIRsp) {
		t.Fatalf("SYSUI_RSP must not be accepted from WAITSYSUI")
	}
}

func TestFinalizedIsAbsorbing(t *testing.T) {
	for s := New; s <= Finalized; s++ {
		if s == Finalized {
			continue
		}
		if Allowed(Finalized, s) {
			t.Fatalf("FINALIZED must be absorbing, but allows transition to %v", s)
		}
	}
}

func TestRejectedTransitionLeavesStateIntact(t *testing.T) {
	got, ok := Apply(New, Finalized)
	if ok {
		t.Fatalf("New -> Finalized should be rejected")
	}
	if got != New {
		t.Fatalf("rejected Apply must return the original state, got %v", got)
	}
}

func TestAcceptedTransition(t *testing.T) {
	got, ok := Apply(Triggered, Served)
	if !ok || got != Served {
		t.Fatalf("Triggered -> Served should be accepted, got (%v, %v)", got, ok)
	}
}
