// watch.go wires the §6.1 "Inputs consumed" into the environment tracker:
// NameOwnerChanged for each watched peer, the time daemon's time_changed
// signal, init_done/hildon_ready/home-service ownership as alternative
// "desktop ready" triggers, and data_save_ind/shutdown_ind from the
// device-management service. Grounded on engine/resources/cron.go's
// Watch() NameOwnerChanged idiom, composed with the ported bus package.
//
// The exact well-known bus names for peers other than alarmd itself are
// not present in original_source's retrieved tree (systemui_dbus.h only
// documents method/signal member names, not the service name, which lives
// in a platform package outside this repo's reference material); the
// names below are the well-known Maemo/Sailfish platform defaults and are
// exposed as variables so a deployment can override them without a code
// change.
package rpc

import (
	"github.com/godbus/dbus/v5"

	busutil "github.com/maemo-leste/alarmd/bus"
	"github.com/maemo-leste/alarmd/envtrack"
)

// Well-known bus names of the peers the environment tracker watches.
var (
	SystemUIService = "com.nokia.system_ui"
	TimedService    = "com.nokia.time"
	DsmeService     = "com.nokia.dsme"
	MessagingService = "com.nokia.messaging"
	StatusbarService = "com.nokia.statusbar"
	HomeService      = "com.nokia.hildon_desktop"
)

var watchedPeers = []struct {
	peer envtrack.Peer
	name string
}{
	{envtrack.PeerUI, SystemUIService},
	{envtrack.PeerTime, TimedService},
	{envtrack.PeerDsme, DsmeService},
	{envtrack.PeerMessaging, MessagingService},
	{envtrack.PeerStatusbar, StatusbarService},
}

// WatchPeers starts one goroutine per watched peer, each watching
// NameOwnerChanged on conn and updating env's presence accordingly. It
// also performs one synchronous presence probe at startup (via
// org.freedesktop.DBus.NameHasOwner) so the tracker reflects reality
// immediately rather than waiting for the next ownership flip.
func (s *Service) WatchPeers(env *envtrack.Tracker) error {
	for _, w := range watchedPeers {
		if probeNameHasOwner(s.conn, w.name) {
			env.SetPeerUp(w.peer, true)
		}
		ch, _, err := busutil.WatchNameOwnerChanged(s.conn, w.name)
		if err != nil {
			return err
		}
		go s.runPeerWatch(w.peer, w.name, ch, env)
	}
	return nil
}

func probeNameHasOwner(conn *dbus.Conn, name string) bool {
	if conn == nil {
		return false
	}
	var has bool
	call := conn.BusObject().Call(busutil.DBusInterface+".NameHasOwner", 0, name)
	if call.Err != nil {
		return false
	}
	if err := call.Store(&has); err != nil {
		return false
	}
	return has
}

func (s *Service) runPeerWatch(peer envtrack.Peer, name string, ch chan *dbus.Signal, env *envtrack.Tracker) {
	for sig := range ch {
		if len(sig.Body) != 3 {
			continue
		}
		if owned, _ := sig.Body[0].(string); owned != name {
			continue // the channel carries every signal on the connection
		}
		newOwner, _ := sig.Body[2].(string)
		up := newOwner != ""
		env.SetPeerUp(peer, up)
		if peer == envtrack.PeerUI && up {
			// A freshly (re)started system-ui has forgotten every
			// dialog it previously accepted; WAITSYSUI/SYSUI_REQ
			// events must be re-offered (phase 9/10 handle this via
			// the ordinary env-triggered rethink).
		}
	}
}

// WatchDesktopReady watches the alternative "desktop ready" triggers
// (§6.1): init_done, hildon_ready, or ownership of the home service.
// Any one of the three sets env's DesktopUp flag; none of them ever clear
// it (a desktop, once up, is not considered to go back down by this
// signal set -- matching the spec's silence on a "desktop down" event).
func (s *Service) WatchDesktopReady(env *envtrack.Tracker) error {
	rules := []string{
		"type='signal',interface='com.nokia.startup.signal',member='init_done'",
		"type='signal',interface='com.nokia.hildon_desktop',member='hildon_ready'",
	}
	for _, rule := range rules {
		if call := s.conn.BusObject().Call(busutil.DBusAddMatch, 0, rule); call.Err != nil {
			return call.Err
		}
	}
	ch, _, err := busutil.WatchNameOwnerChanged(s.conn, HomeService)
	if err != nil {
		return err
	}

	sigCh := make(chan *dbus.Signal, 10)
	s.conn.Signal(sigCh)
	go func() {
		for sig := range sigCh {
			if sig.Name != "com.nokia.startup.signal.init_done" && sig.Name != "com.nokia.hildon_desktop.hildon_ready" {
				continue
			}
			f := env.Flags()
			if !f.DesktopUp {
				f.DesktopUp = true
				env.SetFlags(f)
			}
		}
	}()
	go func() {
		for sig := range ch {
			if len(sig.Body) != 3 {
				continue
			}
			if owned, _ := sig.Body[0].(string); owned != HomeService {
				continue
			}
			if owner, _ := sig.Body[2].(string); owner != "" {
				f := env.Flags()
				if !f.DesktopUp {
					f.DesktopUp = true
					env.SetFlags(f)
				}
			}
		}
	}()
	return nil
}

// WatchTimeChanged watches the time daemon's time_changed signal (§6.1)
// and folds it into the environment flags; the core's clock-stability
// filter (§4.9) is what actually decides whether a rethink phase 3 pass
// treats this as a forward/backward jump, this only flips TimeChanged so
// that filter runs at all.
func (s *Service) WatchTimeChanged(env *envtrack.Tracker) error {
	rule := "type='signal',interface='" + TimedService + "',member='time_changed'"
	if call := s.conn.BusObject().Call(busutil.DBusAddMatch, 0, rule); call.Err != nil {
		return call.Err
	}
	ch := make(chan *dbus.Signal, 10)
	s.conn.Signal(ch)
	go func() {
		for sig := range ch {
			if sig.Name != TimedService+".time_changed" {
				continue
			}
			f := env.Flags()
			f.TimeChanged = true
			env.SetFlags(f)
		}
	}()
	return nil
}

// WatchShutdown watches the device-management service's data_save_ind and
// shutdown_ind signals (§6.1). onShutdown is invoked (synchronously, on
// this goroutine) for either: the caller is expected to force a save and
// begin an orderly exit (§5's shutdown sequence).
func (s *Service) WatchShutdown(onShutdown func()) error {
	rule := "type='signal',interface='" + DsmeService + "'"
	if call := s.conn.BusObject().Call(busutil.DBusAddMatch, 0, rule); call.Err != nil {
		return call.Err
	}
	ch := make(chan *dbus.Signal, 10)
	s.conn.Signal(ch)
	go func() {
		for sig := range ch {
			switch sig.Name {
			case DsmeService + ".data_save_ind", DsmeService + ".shutdown_ind":
				onShutdown()
			}
		}
	}()
	return nil
}

// applyDebugMask implements the alarmd_set_debug RPC's fake-vs-real pin
// (§4.9): bit i of peerMask/peerFlags (in watchedPeers order) pins that
// peer's presence; connMask/connFlags bit 0 pins the Connected env flag.
func (s *Service) applyDebugMask(connMask, connFlags, peerMask, peerFlags uint32) uint32 {
	env := s.Engine.Env
	if connMask&1 != 0 {
		f := env.Flags()
		f.Connected = connFlags&1 != 0
		env.SetFlags(f)
	}
	var result uint32
	for i, w := range watchedPeers {
		bit := uint32(1) << uint(i)
		if peerMask&bit != 0 {
			if peerFlags&bit != 0 {
				env.SetFake(w.peer, true)
			} else {
				env.SetFake(w.peer, false)
			}
		} else {
			env.ClearFake(w.peer)
		}
		if env.IsPeerUp(w.peer) {
			result |= bit
		}
	}
	return result
}
