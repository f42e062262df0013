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

// Command alarmctl is the admin CLI for a running alarmd: it dials the
// daemon's dbus service and dispatches to one of the subcommands in
// cli/ctl.go, the same "parse then dispatch on the active subcommand"
// idiom as the teacher's own cli.CLI front end.
package main

import (
	"fmt"
	"os"

	"github.com/maemo-leste/alarmd/cli"
	cliUtil "github.com/maemo-leste/alarmd/cli/util"
)

func main() {
	os.Exit(run())
}

func run() int {
	args := &cli.CtlArgs{}
	data := &cliUtil.Data{
		Program: cli.ProgramCtl,
		Version: cli.Version,
		Tagline: cli.Tagline,
		Args:    os.Args,
	}
	if err := cli.Parse(args, data); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	conn, obj, err := args.Dial()
	if err != nil {
		fmt.Fprintf(os.Stderr, "alarmctl: connect: %v\n", err)
		return 1
	}
	defer conn.Close()

	var runErr error
	switch {
	case args.List != nil:
		runErr = args.List.Run(conn, obj)
	case args.Get != nil:
		runErr = args.Get.Run(conn, obj)
	case args.Del != nil:
		runErr = args.Del.Run(conn, obj)
	case args.Query != nil:
		runErr = args.Query.Run(conn, obj)
	case args.Add != nil:
		runErr = args.Add.Run(conn, obj)
	case args.Respond != nil:
		runErr = args.Respond.Run(conn, obj)
	case args.Ack != nil:
		runErr = args.Ack.Run(conn, obj)
	case args.Snooze != nil:
		runErr = args.Snooze.Run(conn, obj)
	case args.Debug != nil:
		runErr = args.Debug.Run(conn, obj)
	case args.Preset != nil:
		runErr = args.Preset.Run(conn, obj)
	case args.Sleep != nil:
		runErr = args.Sleep.Run(conn, obj)
	case args.Wait != nil:
		runErr = args.Wait.Run(conn, obj)
	default:
		fmt.Fprintln(os.Stderr, "alarmctl: no subcommand given, try --help")
		return 1
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "alarmctl: %v\n", runErr)
		return 1
	}
	return 0
}
