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

package cli

// DaemonArgs is the flag set for cmd/alarmd (§6.2). Field order matches
// the historical alarmd flags it mirrors: -d detach, -l log driver, -L log
// level, -X self-issued clear-user-data/restore-factory-settings presets.
// A handful of fields the original left to compiled-in defaults (the
// state directory, which bus to use, the RTC device, the exec uid/gid) are
// exposed here too since this daemon has no build-time config story.
type DaemonArgs struct {
	Detach bool   `arg:"-d" help:"accepted for compatibility; the daemon does not detach and stays in the foreground"`
	Log    string `arg:"-l" help:"log driver (accepted but not read; logs always go to stderr)" default:"stderr"`
	Level  string `arg:"-L" help:"log level (accepted but not read; every message is logged)" default:"info"`
	Preset string `arg:"-X" help:"self-issued preset at startup: cud (clear_user_data) or rfs (restore_factory_settings)"`

	StateDir string `arg:"--state-dir" help:"directory holding the persisted queue" default:"/var/lib/alarmd"`
	System   bool   `arg:"--system" help:"use the system bus instead of the session bus" default:"true"`
	RTCPath  string `arg:"--rtc" help:"RTC device used for wakeup alarms" default:"/dev/rtc0"`
	ExecUser string `arg:"--exec-user" help:"user actions run as, empty keeps the daemon's own identity"`
	ExecGroup string `arg:"--exec-group" help:"group actions run as, empty keeps the daemon's own identity"`
}

// Version is overridden at link time in real builds; here it is a plain
// constant, as the teacher's own cli package does in test builds.
const Version = "0.0.1-alarmd"

// Program names used both for the --help banner and go-arg's usage line.
const (
	ProgramDaemon = "alarmd"
	ProgramCtl    = "alarmctl"
)

// Tagline matches the teacher's cli.Tagline idiom: a one-line description
// shown above --help output.
const Tagline = "a dbus alarm scheduling daemon"
