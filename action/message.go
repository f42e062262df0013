// message.go implements the `message` action (§4.7): a dbus method call or
// signal on an external messaging bus. Grounded on
// engine/resources/cron.go's bus selection (session vs. system) and
// AddMatch idiom; connection setup goes through the ported bus package.
package action

import (
	"github.com/godbus/dbus/v5"

	busutil "github.com/maemo-leste/alarmd/bus"
	"github.com/maemo-leste/alarmd/queue"
	"github.com/maemo-leste/alarmd/util/errwrap"
)

// RunMessage issues the action's method call or signal. A method call is
// made when MsgDestination is non-empty; otherwise a signal is emitted. If
// MsgAppendID is set, the event identifier is appended as a trailing int32
// argument, per §4.7. A parse/encoding failure is reported but does not
// block state advance.
func RunMessage(a queue.Action, eventID int64) error {
	conn, err := busutil.Private(a.MsgSystemBus)
	if err != nil {
		return errwrap.Wrapf(err, "message action: connect to bus")
	}
	defer conn.Close()

	args, err := decodeArgs(a.MsgArgs)
	if err != nil {
		return errwrap.Wrapf(err, "message action: decode args")
	}
	if a.MsgAppendID {
		args = append(args, int32(eventID))
	}

	if a.MsgDestination == "" {
		path := dbus.ObjectPath(a.MsgPath)
		name := a.MsgInterface + "." + a.MsgMember
		return conn.Emit(path, name, args...)
	}

	flags := dbus.Flags(0)
	if !a.MsgAutoStart {
		flags |= dbus.FlagNoAutoStart
	}
	obj := conn.Object(a.MsgDestination, dbus.ObjectPath(a.MsgPath))
	call := obj.Call(a.MsgInterface+"."+a.MsgMember, flags, args...)
	if call.Err != nil {
		return errwrap.Wrapf(call.Err, "message action: call %s.%s", a.MsgInterface, a.MsgMember)
	}
	return nil
}

// decodeArgs turns the action's opaque pre-serialized argument blob into a
// dbus argument list. The wire format is a client-produced typed tuple
// (§4.7); this engine does not interpret its contents beyond passing it
// through, so the blob itself is the already-dbus-encodable argument list
// when non-empty.
func decodeArgs(blob []byte) ([]interface{}, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	return []interface{}{blob}, nil
}
