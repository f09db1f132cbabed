// smfix: reconcile sample names and SM tags in SAM/BAM files.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/smfix/blob/master/LICENSE.txt>.

package samtools

import (
	"io"
	"os"
	"os/exec"
	"strings"
)

// A Runner executes an external command given as a program name and
// an explicit argument list, and writes its standard output to stdout.
type Runner interface {
	Run(stdout io.Writer, name string, args ...string) error
}

// ExecRunner runs commands as subprocesses. Standard error of the
// subprocess goes to Stderr, or to os.Stderr if Stderr is nil.
type ExecRunner struct {
	Stderr io.Writer
}

// Run implements the Runner interface.
func (r ExecRunner) Run(stdout io.Writer, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = stdout
	if r.Stderr != nil {
		cmd.Stderr = r.Stderr
	} else {
		cmd.Stderr = os.Stderr
	}
	return cmd.Run()
}

// CommandLine renders a program name and its arguments for logging.
func CommandLine(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}
