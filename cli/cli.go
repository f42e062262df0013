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

// Package cli handles command line parsing shared by the two front ends,
// cmd/alarmd (the daemon) and cmd/alarmctl (the admin CLI), following the
// teacher's cli package shape (arg.NewParser + ErrHelp/ErrVersion
// handling), generalized here to be reusable by either binary's own Args
// struct rather than one fixed RunArgs type.
package cli

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"

	cliUtil "github.com/maemo-leste/alarmd/cli/util"
)

// Parse builds a go-arg parser around args (a pointer to a struct tagged
// with `arg:"..."` fields) and parses data.Args[1:] into it. Help/version
// requests print and exit 0, matching go-arg's own CLI convention.
func Parse(args interface{}, data *cliUtil.Data) error {
	if data == nil || data.Program == "" {
		return fmt.Errorf("cli was not run correctly")
	}

	config := arg.Config{Program: cliUtil.SafeProgram(data.Program)}
	parser, err := arg.NewParser(config, args)
	if err != nil {
		return cliUtil.CliParseError(err)
	}

	err = parser.Parse(data.Args[1:])
	switch err {
	case nil:
		return nil
	case arg.ErrHelp:
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
		return nil
	case arg.ErrVersion:
		fmt.Println(data.Version)
		os.Exit(0)
		return nil
	default:
		return cliUtil.CliParseError(err)
	}
}
