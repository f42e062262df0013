// methods.go implements the dbus-exported method set (§6.1). Method names
// are kept verbatim in lower_snake_case -- not idiomatic Go casing -- since
// godbus/dbus/v5's conn.Export uses the Go method name directly as the
// dbus member name, and wire compatibility with existing alarmd clients
// requires "add_event", not "AddEvent". This is the one place in the repo
// where wire fidelity overrides normal naming conventions.
package rpc

import (
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/maemo-leste/alarmd/queue"
)

// methodSet is the receiver exported at ObjectPath/Interface. It only
// depends on *Service for Engine access and logging.
type methodSet struct {
	svc *Service
}

// Add_event implements add_event (§6.1): int32 identifier, 0 = error.
func (m *methodSet) Add_event(w EventWire) (int32, *dbus.Error) {
	ev := DecodeEvent(w, time.Now())
	id, err := m.svc.Engine.Add(ev)
	if err != nil {
		m.svc.Logf("rpc: add_event: %v", err)
		return 0, nil
	}
	return int32(id), nil
}

// Update_event implements update_event (§6.1): the returned identifier
// differs from the supplied one.
func (m *methodSet) Update_event(w EventWire) (int32, *dbus.Error) {
	ev := DecodeEvent(w, time.Now())
	id, err := m.svc.Engine.Update(int64(w.Cookie), ev)
	if err != nil {
		m.svc.Logf("rpc: update_event: %v", err)
		return 0, nil
	}
	return int32(id), nil
}

// Del_event implements del_event (§6.1).
func (m *methodSet) Del_event(cookie int32) (bool, *dbus.Error) {
	if err := m.svc.Engine.Delete(int64(cookie)); err != nil {
		m.svc.Logf("rpc: del_event %d: %v", cookie, err)
		return false, nil
	}
	return true, nil
}

// Get_event implements get_event (§6.1). A missing/deleted event is
// reported as a dbus error, per the method's documented "or error" return.
func (m *methodSet) Get_event(cookie int32) (EventWire, *dbus.Error) {
	ev, ok := m.svc.Engine.Get(int64(cookie))
	if !ok {
		return EventWire{}, dbus.NewError(Interface+".NoSuchEvent", []interface{}{"no such event"})
	}
	return EncodeEvent(ev), nil
}

// Query_event implements query_event (§6.1).
func (m *methodSet) Query_event(first, last, mask, want int32, app string) ([]int32, *dbus.Error) {
	var firstT, lastT time.Time
	if first != 0 {
		firstT = time.Unix(int64(first), 0)
	}
	if last != 0 {
		lastT = time.Unix(int64(last), 0)
	}
	ids, err := m.svc.Engine.Query(firstT, lastT, queue.Flags(uint32(mask)), queue.Flags(uint32(want)), app)
	if err != nil {
		m.svc.Logf("rpc: query_event: %v", err)
		return nil, nil
	}
	out := make([]int32, len(ids))
	for i, id := range ids {
		out[i] = int32(id)
	}
	return out, nil
}

// Set_snooze implements set_snooze (§6.1).
func (m *methodSet) Set_snooze(seconds uint32) (bool, *dbus.Error) {
	if err := m.svc.Engine.SetDefaultSnooze(seconds); err != nil {
		m.svc.Logf("rpc: set_snooze: %v", err)
		return false, nil
	}
	return true, nil
}

// Get_snooze implements get_snooze (§6.1).
func (m *methodSet) Get_snooze() (uint32, *dbus.Error) {
	return m.svc.Engine.GetDefaultSnooze(), nil
}

// Rsp_dialog implements rsp_dialog (§6.1): the UI reports a user-chosen
// button index (or -1 for cancelled); the powerup sentinel bit may be ORed
// into button, per §9 Open Question 2.
func (m *methodSet) Rsp_dialog(cookie, button int32) (bool, *dbus.Error) {
	if err := m.svc.Engine.AckDialog(int64(cookie), button); err != nil {
		m.svc.Logf("rpc: rsp_dialog %d: %v", cookie, err)
		return false, nil
	}
	return true, nil
}

// Ack_dialog implements ack_dialog (§6.1): the UI reports a batch of
// dialog-open requests was received.
func (m *methodSet) Ack_dialog(cookies []int32) (bool, *dbus.Error) {
	ids := make([]int64, len(cookies))
	for i, c := range cookies {
		ids[i] = int64(c)
	}
	if err := m.svc.Engine.AckQueue(ids); err != nil {
		m.svc.Logf("rpc: ack_dialog: %v", err)
		return false, nil
	}
	return true, nil
}

// Alarmd_set_debug implements alarmd_set_debug (§6.1): four uint32
// mask/flag words pin the environment tracker's fake-vs-real peer bits,
// per §4.9's debug override. Returns the resulting state as a single
// packed word (1 bit per peer, in watchedPeers order).
func (m *methodSet) Alarmd_set_debug(connMask, connFlags, peerMask, peerFlags uint32) (uint32, *dbus.Error) {
	return m.svc.applyDebugMask(connMask, connFlags, peerMask, peerFlags), nil
}

// Clear_user_data implements clear_user_data (§6.1).
func (m *methodSet) Clear_user_data() (int32, *dbus.Error) {
	if err := m.svc.Engine.ClearUserData(); err != nil {
		m.svc.Logf("rpc: clear_user_data: %v", err)
		return -1, nil
	}
	return 0, nil
}

// Restore_factory_settings implements restore_factory_settings (§6.1).
func (m *methodSet) Restore_factory_settings() (int32, *dbus.Error) {
	if err := m.svc.Engine.RestoreFactorySettings(); err != nil {
		m.svc.Logf("rpc: restore_factory_settings: %v", err)
		return -1, nil
	}
	return 0, nil
}
