// dialog.go bridges the core's OpenDialog/CancelDialog hooks (§4.6 phases
// 9 and 15) onto the system-ui dialog service, using the method names in
// original_source/src/systemui_dbus.h. The real protocol batches cookies
// into an array; the core calls these per event, so each call is a
// single-element batch -- systemui_alarm_add/del both accept any batch
// size per their documented signature.
package rpc

import (
	"github.com/godbus/dbus/v5"

	"github.com/maemo-leste/alarmd/queue"
)

// Systemui dbus identifiers, from systemui_dbus.h and the "new api"
// placeholder it documents (the real service/path/interface names live in
// the systemui package that is not part of this repo's reference
// material; these match the well-known Maemo/Sailfish defaults).
var (
	SystemUIObjectPath = dbus.ObjectPath("/com/nokia/system_ui/request")
	SystemUIInterface  = "com.nokia.system_ui.request"

	MethodSystemUIAlarmAdd   = "systemui_alarm_add"
	MethodSystemUIAlarmDel   = "systemui_alarm_del"
	MethodSystemUIAlarmQuery = "systemui_alarm_query"
)

// Dialog wires the Engine's OpenDialog/CancelDialog hooks to systemui over
// the Service's own connection.
type Dialog struct {
	Logf func(format string, v ...interface{})
	conn *dbus.Conn
}

// NewDialog builds a Dialog bound to the service's connection. Must be
// called after Service.Start.
func (s *Service) NewDialog() *Dialog {
	return &Dialog{Logf: s.Logf, conn: s.conn}
}

// Open implements OpenDialog: asks systemui to add ev's identifier to its
// dialog queue. Failures are logged only, per §7's "transient peer
// unavailable" policy -- the event has already moved to SYSUI_REQ; it
// returns to WAITSYSUI, and the dialog is requested again, only once the
// rethink sees the UI peer go down.
func (d *Dialog) Open(ev *queue.Event) {
	obj := d.conn.Object(SystemUIService, SystemUIObjectPath)
	call := obj.Call(SystemUIInterface+"."+MethodSystemUIAlarmAdd, 0, []int32{int32(ev.ID)})
	if call.Err != nil {
		d.Logf("rpc: systemui_alarm_add(%d): %v", ev.ID, call.Err)
	}
}

// Cancel implements CancelDialog: asks systemui to drop id from its
// dialog queue (it may have already been accepted into one).
func (d *Dialog) Cancel(id int64) {
	obj := d.conn.Object(SystemUIService, SystemUIObjectPath)
	call := obj.Call(SystemUIInterface+"."+MethodSystemUIAlarmDel, 0, []int32{int32(id)})
	if call.Err != nil {
		d.Logf("rpc: systemui_alarm_del(%d): %v", id, call.Err)
	}
}
