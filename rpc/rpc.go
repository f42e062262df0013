// Package rpc implements the §6.1 RPC surface as a dbus service adaptor:
// the method/signal names, object path and interface are taken verbatim
// from original_source/src/alarm_dbus.h so that clients of the real daemon
// remain wire-compatible. It wraps a *core.Engine and exports its methods
// via godbus/dbus/v5's conn.Export, the same "private connection + Hello
// handshake" idiom the bus package already provides for peer-watching.
package rpc

import (
	"fmt"
	"math"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	busutil "github.com/maemo-leste/alarmd/bus"
	"github.com/maemo-leste/alarmd/core"
	"github.com/maemo-leste/alarmd/util/errwrap"
)

// Wire identifiers, verbatim from original_source/src/alarm_dbus.h.
const (
	ServiceName = "com.nokia.alarmd"
	ObjectPath  = "/com/nokia/alarmd"
	Interface   = "com.nokia.alarmd"

	MethodAddEvent      = "add_event"
	MethodGetEvent       = "get_event"
	MethodDelEvent       = "del_event"
	MethodQueryEvent     = "query_event"
	MethodUpdateEvent    = "update_event"
	MethodSetSnooze      = "set_snooze"
	MethodGetSnooze      = "get_snooze"
	MethodAckDialog      = "ack_dialog"
	MethodRspDialog      = "rsp_dialog"
	MethodSetDebug       = "alarmd_set_debug"
	MethodClearUserData  = "clear_user_data"
	MethodRestoreFactory = "restore_factory_settings"

	SignalQueueStatus = "queue_status_ind"
	SignalTimeChange  = "time_change_ind"
)

// Service exports the Engine over dbus. Logf follows the same
// threaded-closure idiom as every other component.
type Service struct {
	Logf   func(format string, v ...interface{})
	Engine *core.Engine

	conn   *dbus.Conn
	system bool
}

// New builds a Service. system selects the system bus (the real daemon's
// default); false uses the session bus, useful for desktop-session testing.
func New(logf func(format string, v ...interface{}), e *core.Engine, system bool) *Service {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Service{Logf: logf, Engine: e, system: system}
}

// Start opens a private bus connection, requests the well-known service
// name, exports the method set at ObjectPath/Interface, and wires the
// Engine's OnQueueState/OnTimeChange callbacks to emit the corresponding
// signals. The caller must call Close when done.
func (s *Service) Start() error {
	conn, err := busutil.Private(s.system)
	if err != nil {
		return errwrap.Wrapf(err, "rpc: connect to bus")
	}
	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return errwrap.Wrapf(err, "rpc: request name %s", ServiceName)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return fmt.Errorf("rpc: name %s already owned", ServiceName)
	}

	methods := &methodSet{svc: s}
	if err := conn.Export(methods, ObjectPath, Interface); err != nil {
		conn.Close()
		return errwrap.Wrapf(err, "rpc: export methods")
	}
	node := &introspect.Node{
		Name: ObjectPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: Interface,
				Methods: introspect.Methods(methods),
				Signals: []introspect.Signal{
					{Name: SignalQueueStatus, Args: []introspect.Arg{
						{Name: "alarms", Type: "i", Direction: "out"},
						{Name: "desktop", Type: "i", Direction: "out"},
						{Name: "actdead", Type: "i", Direction: "out"},
						{Name: "noboot", Type: "i", Direction: "out"},
					}},
					{Name: SignalTimeChange},
				},
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		conn.Close()
		return errwrap.Wrapf(err, "rpc: export introspection")
	}

	s.conn = conn

	s.Engine.OnQueueState = func(qs core.QueueState) {
		if err := s.conn.Emit(ObjectPath, Interface+"."+SignalQueueStatus,
			int32(qs.Active), instantWire(qs.NextDesktopBoot), instantWire(qs.NextActdeadBoot), instantWire(qs.NextNonBoot)); err != nil {
			s.Logf("rpc: emit %s failed: %v", SignalQueueStatus, err)
		}
	}
	s.Engine.OnTimeChange = func() {
		if err := s.conn.Emit(ObjectPath, Interface+"."+SignalTimeChange); err != nil {
			s.Logf("rpc: emit %s failed: %v", SignalTimeChange, err)
		}
	}
	return nil
}

// instantWire converts a QueueState instant to the wire's epoch-seconds
// int32, mapping the zero time.Time ("infinity"/unset, per §3) to
// math.MaxInt32, the INT_MAX sentinel original_source/src/server.c uses for
// qs_desktop/qs_actdead/qs_no_boot.
func instantWire(t time.Time) int32 {
	if t.IsZero() {
		return math.MaxInt32
	}
	sec := t.Unix()
	if sec > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(sec)
}

// Close tears down the bus connection.
func (s *Service) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Conn exposes the underlying connection, for the UI-dialog bridge (the
// OpenDialog/CancelDialog callbacks wired by cmd/alarmd) to call out to the
// system-ui service.
func (s *Service) Conn() *dbus.Conn { return s.conn }
