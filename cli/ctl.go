// Mgmt
// Copyright (C) 2013-2024+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// ctl.go is the admin CLI surface for cmd/alarmctl (§6.2). The historical
// alarmd_cli tool packed its whole surface into single-letter flags
// (-l/-i/-L, -g/-d/-c/-r, -b/-D/-e/-n/-a/-A/-x, -s/-S, -t/-T/-C/-Z/-z/-N,
// -X, -w/-W); here each operation gets its own go-arg subcommand instead,
// following the teacher's own RunArgs subcommand idiom (RunEmpty/RunLang/
// RunYaml in cli/run.go) rather than the terser legacy spelling -- every
// documented operation is still reachable, just named instead of coded.
package cli

import (
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	busutil "github.com/maemo-leste/alarmd/bus"
	"github.com/maemo-leste/alarmd/queue"
	"github.com/maemo-leste/alarmd/rpc"
)

// CtlArgs is the top-level admin CLI flag set; exactly one subcommand field
// is set per invocation, same contract as go-arg's other subcommand users.
type CtlArgs struct {
	System bool `arg:"--system" help:"use the system bus instead of the session bus" default:"true"`

	List    *CtlList    `arg:"subcommand:list" help:"list queued event identifiers"`
	Get     *CtlGet     `arg:"subcommand:get" help:"print one event's full detail"`
	Del     *CtlDel     `arg:"subcommand:del" help:"delete an event"`
	Query   *CtlQuery   `arg:"subcommand:query" help:"query identifiers in a time window"`
	Add     *CtlAdd     `arg:"subcommand:add" help:"build and submit a new event"`
	Respond *CtlRespond `arg:"subcommand:respond" help:"send rsp_dialog for a pending dialog"`
	Ack     *CtlAck     `arg:"subcommand:ack" help:"send ack_dialog for a batch of cookies"`
	Snooze  *CtlSnooze  `arg:"subcommand:snooze" help:"get or set the default snooze length"`
	Debug   *CtlDebug   `arg:"subcommand:debug" help:"pin the environment tracker's connection/peer bits"`
	Preset  *CtlPreset  `arg:"subcommand:preset" help:"run a device-management-test preset: cud or rfs"`
	Sleep   *CtlSleep   `arg:"subcommand:sleep" help:"sleep locally for a given duration"`
	Wait    *CtlWait    `arg:"subcommand:wait" help:"poll an event until it is gone or disabled"`
}

// Dial opens a private connection to the bus named by CtlArgs.System and
// returns the alarmd object to call methods on.
func (args *CtlArgs) Dial() (*dbus.Conn, dbus.BusObject, error) {
	conn, err := busutil.Private(args.System)
	if err != nil {
		return nil, nil, err
	}
	return conn, conn.Object(rpc.ServiceName, rpc.ObjectPath), nil
}

func call(obj dbus.BusObject, method string, args ...interface{}) *dbus.Call {
	return obj.Call(rpc.Interface+"."+method, 0, args...)
}

// CtlList implements -l/-i/-L: with no bounds, query_event's full range and
// print every identifier it returns; Long additionally fetches and prints
// each event's title.
type CtlList struct {
	Long bool `arg:"-L" help:"also print each event's title"`
}

func (c *CtlList) Run(conn *dbus.Conn, obj dbus.BusObject) error {
	var ids []int32
	if err := call(obj, rpc.MethodQueryEvent, int32(0), int32(0), int32(0), int32(0), "").Store(&ids); err != nil {
		return err
	}
	for _, id := range ids {
		if !c.Long {
			fmt.Println(id)
			continue
		}
		var w rpc.EventWire
		if err := call(obj, rpc.MethodGetEvent, id).Store(&w); err != nil {
			fmt.Printf("%d\t<error: %v>\n", id, err)
			continue
		}
		fmt.Printf("%d\t%s\t%s\n", id, w.App, w.Title)
	}
	return nil
}

// CtlGet implements -g: print one event's full detail.
type CtlGet struct {
	ID int32 `arg:"positional,required"`
}

func (c *CtlGet) Run(conn *dbus.Conn, obj dbus.BusObject) error {
	var w rpc.EventWire
	if err := call(obj, rpc.MethodGetEvent, c.ID).Store(&w); err != nil {
		return err
	}
	fmt.Printf("%+v\n", w)
	return nil
}

// CtlDel implements -d: delete one event, or every event with All.
type CtlDel struct {
	ID  int32 `arg:"positional" help:"identifier to delete"`
	All bool  `arg:"-c" help:"delete every event (clear_user_data)"`
}

func (c *CtlDel) Run(conn *dbus.Conn, obj dbus.BusObject) error {
	if c.All {
		var rc int32
		return call(obj, rpc.MethodClearUserData).Store(&rc)
	}
	var ok bool
	return call(obj, rpc.MethodDelEvent, c.ID).Store(&ok)
}

// CtlQuery implements a bounded query_event call.
type CtlQuery struct {
	First int32  `arg:"-f" help:"window start, unix seconds, 0 = unbounded"`
	Last  int32  `arg:"-u" help:"window end, unix seconds, 0 = unbounded"`
	Mask  uint32 `arg:"-m" help:"flag bits that must match"`
	Want  uint32 `arg:"-w" help:"flag bits required set within mask"`
	App   string `arg:"-a" help:"restrict to one app id"`
}

func (c *CtlQuery) Run(conn *dbus.Conn, obj dbus.BusObject) error {
	var ids []int32
	if err := call(obj, rpc.MethodQueryEvent, c.First, c.Last, int32(c.Mask), int32(c.Want), c.App).Store(&ids); err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

// CtlAdd implements -b/-D/-e/-n/-a/-A/-x: build one event from flags and
// submit it with add_event. Exec and Dialog each add one action when set;
// either, both or neither may be given (with neither, the alarm carries no
// action at all).
type CtlAdd struct {
	In       int32  `arg:"-b" help:"trigger this many seconds from now" default:"60"`
	App      string `arg:"-n" help:"app id recorded on the event"`
	Title    string `arg:"--title"`
	Message  string `arg:"--message"`
	Dialog   string `arg:"-D" help:"label of a dialog button shown at trigger time"`
	Exec     string `arg:"-e" help:"command run at trigger time"`
	Recur    int32  `arg:"-r" help:"recurrence period in seconds, 0 = one-shot"`
	Count    int32  `arg:"--count" help:"recurrence count, -1 = forever" default:"-1"`
	Snooze   int32  `arg:"-s" help:"per-event snooze length override, 0 = use the default"`
}

func (c *CtlAdd) Run(conn *dbus.Conn, obj dbus.BusObject) error {
	w := rpc.EventWire{
		AlarmTime:  c.In,
		Title:      c.Title,
		Message:    c.Message,
		App:        c.App,
		RecurSecs:  c.Recur,
		RecurCount: c.Count,
		SnoozeSecs: c.Snooze,
	}
	if c.Recur == 0 {
		w.RecurCount = 0 // a one-shot carries no recurrence count
	}
	if c.Exec != "" {
		w.Actions = append(w.Actions, rpc.ActionWire{
			Flags: uint32(queue.WhenTriggered)<<16 | uint32(queue.ActionExec),
			Exec:  c.Exec,
		})
	}
	if c.Dialog != "" {
		w.Actions = append(w.Actions, rpc.ActionWire{
			Flags: uint32(queue.WhenTriggered|queue.WhenResponded)<<16 | uint32(queue.ActionNop),
			Label: c.Dialog,
		})
	}
	var id int32
	if err := call(obj, rpc.MethodAddEvent, w).Store(&id); err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

// CtlRespond implements -r: send rsp_dialog(cookie, button).
type CtlRespond struct {
	ID     int32 `arg:"positional,required"`
	Button int32 `arg:"positional,required"`
}

func (c *CtlRespond) Run(conn *dbus.Conn, obj dbus.BusObject) error {
	var ok bool
	return call(obj, rpc.MethodRspDialog, c.ID, c.Button).Store(&ok)
}

// CtlAck implements ack_dialog for a batch of identifiers.
type CtlAck struct {
	IDs []int32 `arg:"positional" help:"cookies the UI has taken into its dialog queue"`
}

func (c *CtlAck) Run(conn *dbus.Conn, obj dbus.BusObject) error {
	var ok bool
	return call(obj, rpc.MethodAckDialog, c.IDs).Store(&ok)
}

// CtlSnooze implements -s/-S: get, or set, the default snooze length.
type CtlSnooze struct {
	Set int32 `arg:"--set" help:"set the default snooze length in seconds, omit to just print the current value" default:"-1"`
}

func (c *CtlSnooze) Run(conn *dbus.Conn, obj dbus.BusObject) error {
	if c.Set >= 0 {
		var ok bool
		return call(obj, rpc.MethodSetSnooze, uint32(c.Set)).Store(&ok)
	}
	var secs uint32
	if err := call(obj, rpc.MethodGetSnooze).Store(&secs); err != nil {
		return err
	}
	fmt.Println(secs)
	return nil
}

// CtlDebug implements alarmd_set_debug (-t/-T/-C/-Z/-z/-N's integration-test
// shortcuts are expressed here as raw mask/flag words, rather than as OS
// clock/timezone mutation: alarmd's RPC surface has no method to change the
// system clock or zone, that is the time daemon's job, so a CLI that wants
// to exercise the core's clock-jump handling pins the environment tracker's
// bits directly instead, the same lever the real integration tests use).
type CtlDebug struct {
	ConnMask  uint32 `arg:"--conn-mask"`
	ConnFlags uint32 `arg:"--conn-flags"`
	PeerMask  uint32 `arg:"--peer-mask"`
	PeerFlags uint32 `arg:"--peer-flags"`
}

func (c *CtlDebug) Run(conn *dbus.Conn, obj dbus.BusObject) error {
	var result uint32
	if err := call(obj, rpc.MethodSetDebug, c.ConnMask, c.ConnFlags, c.PeerMask, c.PeerFlags).Store(&result); err != nil {
		return err
	}
	fmt.Printf("peer bits: %#x\n", result)
	return nil
}

// CtlPreset implements -X: the same clear_user_data/restore_factory_settings
// presets cmd/alarmd can self-issue at startup, exposed here for an admin to
// trigger them against a running daemon.
type CtlPreset struct {
	Name string `arg:"positional,required" help:"cud or rfs"`
}

func (c *CtlPreset) Run(conn *dbus.Conn, obj dbus.BusObject) error {
	var rc int32
	switch c.Name {
	case "cud":
		return call(obj, rpc.MethodClearUserData).Store(&rc)
	case "rfs":
		return call(obj, rpc.MethodRestoreFactory).Store(&rc)
	default:
		return fmt.Errorf("unknown preset %q, want cud or rfs", c.Name)
	}
}

// CtlSleep implements -w: a plain local sleep, used by test scripts to wait
// out a trigger without round-tripping through the daemon at all.
type CtlSleep struct {
	Seconds int `arg:"positional,required"`
}

func (c *CtlSleep) Run(conn *dbus.Conn, obj dbus.BusObject) error {
	time.Sleep(time.Duration(c.Seconds) * time.Second)
	return nil
}

// CtlWait implements -W: poll get_event until it fails (the event is gone,
// e.g. served and deleted), the identifier's flags gain FlagDisabled, or the
// timeout elapses.
type CtlWait struct {
	ID      int32 `arg:"positional,required"`
	Timeout int   `arg:"-t" help:"give up after this many seconds" default:"60"`
}

func (c *CtlWait) Run(conn *dbus.Conn, obj dbus.BusObject) error {
	deadline := time.Now().Add(time.Duration(c.Timeout) * time.Second)
	for time.Now().Before(deadline) {
		var w rpc.EventWire
		if err := call(obj, rpc.MethodGetEvent, c.ID).Store(&w); err != nil {
			return nil // deleted/served: treat as "done waiting"
		}
		if w.Flags&uint32(queue.FlagDisabled) != 0 {
			return nil
		}
		time.Sleep(time.Second)
	}
	return fmt.Errorf("timed out waiting for event %d", c.ID)
}
