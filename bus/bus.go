// Package bus provides private dbus connections and the shared constants
// used to watch peer presence and dispatch message actions.
package bus

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	// DBusInterface is the dbus interface that contains general methods.
	DBusInterface = "org.freedesktop.DBus"
	// DBusAddMatch is the dbus method to receive a subset of dbus
	// broadcast signals.
	DBusAddMatch = DBusInterface + ".AddMatch"
	// DBusRemoveMatch is the dbus method to remove a previously defined
	// AddMatch rule.
	DBusRemoveMatch = DBusInterface + ".RemoveMatch"
	// SignalNameOwnerChanged is emitted whenever a well-known bus name
	// gains or loses an owner; it is how peer presence is tracked.
	SignalNameOwnerChanged = "NameOwnerChanged"
)

// SystemPrivate opens a new private connection to the system bus and
// completes the auth/hello handshake so it is immediately usable. A private
// connection (as opposed to the shared, cached connection) is required so
// that Close actually tears down the socket when we stop watching.
func SystemPrivate() (*dbus.Conn, error) {
	conn, err := dbus.SystemBusPrivate()
	if err != nil {
		return nil, err
	}
	return finishHandshake(conn)
}

// SessionPrivate opens a new private connection to the session bus, with the
// same handshake as SystemPrivate.
func SessionPrivate() (*dbus.Conn, error) {
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, err
	}
	return finishHandshake(conn)
}

func finishHandshake(conn *dbus.Conn) (*dbus.Conn, error) {
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Private opens either the system or session bus depending on system.
func Private(system bool) (*dbus.Conn, error) {
	if system {
		return SystemPrivate()
	}
	return SessionPrivate()
}

// WatchNameOwnerChanged installs a match rule for NameOwnerChanged signals
// scoped to name, and returns the raw signal channel plus a function that
// removes the rule. The caller is responsible for closing conn.
func WatchNameOwnerChanged(conn *dbus.Conn, name string) (chan *dbus.Signal, func(), error) {
	args := []string{
		"type='signal'",
		fmt.Sprintf("interface='%s'", DBusInterface),
		fmt.Sprintf("member='%s'", SignalNameOwnerChanged),
		fmt.Sprintf("arg0='%s'", name),
	}
	if call := conn.BusObject().Call(DBusAddMatch, 0, strings.Join(args, ",")); call.Err != nil {
		return nil, nil, call.Err
	}
	remove := func() {
		conn.BusObject().Call(DBusRemoveMatch, 0, strings.Join(args, ",")) // ignore the error
	}

	ch := make(chan *dbus.Signal, 10)
	conn.Signal(ch)
	return ch, remove, nil
}
