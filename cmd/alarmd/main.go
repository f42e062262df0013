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

// Command alarmd is the dbus alarm scheduling daemon: it wires the clock,
// queue, store, action dispatcher, environment tracker and wakeup scheduler
// into a core.Engine, exports that engine over dbus via the rpc package, and
// runs until asked to stop. Grounded on mgmtmain's main-wiring shape (one
// function assembling every collaborator before handing control to a single
// blocking Run call) and main.go's os/signal idiom for graceful shutdown.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/maemo-leste/alarmd/action"
	"github.com/maemo-leste/alarmd/cli"
	cliUtil "github.com/maemo-leste/alarmd/cli/util"
	"github.com/maemo-leste/alarmd/clock"
	"github.com/maemo-leste/alarmd/core"
	"github.com/maemo-leste/alarmd/envtrack"
	"github.com/maemo-leste/alarmd/queue"
	"github.com/maemo-leste/alarmd/rpc"
	"github.com/maemo-leste/alarmd/store"
	"github.com/maemo-leste/alarmd/wakeup"
)

func main() {
	os.Exit(run())
}

func run() int {
	args := &cli.DaemonArgs{}
	data := &cliUtil.Data{
		Program: cli.ProgramDaemon,
		Version: cli.Version,
		Tagline: cli.Tagline,
		Args:    os.Args,
	}
	if err := cli.Parse(args, data); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logf := func(format string, v ...interface{}) { log.Printf(format, v...) }
	cliUtil.Hello(data.Program, data.Version, cliUtil.Flags{})

	if args.Detach {
		logf("alarmd: -d (detach) requested; daemonizing is left to the service "+
			"supervisor (systemd/init), running in the foreground under %s", os.Args[0])
	}

	st, err := store.Open(args.StateDir, logf)
	if err != nil {
		logf("alarmd: open store: %v", err)
		return 1
	}
	if err := st.WatchTamper(); err != nil {
		logf("alarmd: watch tamper: %v", err) // not fatal: Save still stat-checks on its own
	}

	q := queue.New()
	clk := clock.NewSystem()
	act := action.New(logf, action.ExecConfig{User: args.ExecUser, Group: args.ExecGroup})
	env := envtrack.New(logf)
	rtc := wakeup.NewHardwareRTC(args.RTCPath, logf)
	wake := wakeup.New(rtc, logf)

	e := core.New(logf, q, st, clk, act, env, wake, queue.ClampSnooze(0))
	if err := e.Init(); err != nil {
		logf("alarmd: init: %v", err)
		return 1
	}

	svc := rpc.New(logf, e, args.System)
	if err := svc.Start(); err != nil {
		logf("alarmd: rpc start: %v", err)
		return 1
	}
	defer svc.Close()

	dialog := svc.NewDialog()
	e.OpenDialog = dialog.Open
	e.CancelDialog = dialog.Cancel

	if err := svc.WatchPeers(env); err != nil {
		logf("alarmd: watch peers: %v", err)
	}
	if err := svc.WatchDesktopReady(env); err != nil {
		logf("alarmd: watch desktop-ready: %v", err)
	}
	if err := svc.WatchTimeChanged(env); err != nil {
		logf("alarmd: watch time-changed: %v", err)
	}
	shutdown := make(chan struct{}, 1)
	if err := svc.WatchShutdown(func() {
		select {
		case shutdown <- struct{}{}:
		default:
		}
	}); err != nil {
		logf("alarmd: watch shutdown: %v", err)
	}

	switch args.Preset {
	case "cud":
		if err := e.ClearUserData(); err != nil {
			logf("alarmd: -X cud: %v", err)
		}
	case "rfs":
		if err := e.RestoreFactorySettings(); err != nil {
			logf("alarmd: -X rfs: %v", err)
		}
	case "":
	default:
		logf("alarmd: unknown -X preset %q, ignoring", args.Preset)
	}

	go e.Run()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logf("alarmd: sd_notify READY: %v", err)
	} else if ok {
		logf("alarmd: notified the service manager that we're ready")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logf("alarmd: received %v, shutting down", s)
	case <-shutdown:
		logf("alarmd: device management requested shutdown, flushing and exiting")
	}

	daemon.SdNotify(false, daemon.SdNotifyStopping)

	if err := e.Close(); err != nil {
		logf("alarmd: close: %v", err)
		return 1
	}
	return 0
}
