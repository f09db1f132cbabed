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
	"bytes"
	"io/ioutil"
	"os"
)

// DefaultPath is the samtools binary used when none is configured.
const DefaultPath = "samtools"

// A Toolkit invokes the view, reheader and index operations of a
// samtools binary through a Runner.
type Toolkit struct {
	Path   string
	Runner Runner
}

// NewToolkit returns a Toolkit for the samtools binary at path. An
// empty path means DefaultPath, and a nil runner means ExecRunner.
func NewToolkit(path string, runner Runner) *Toolkit {
	if path == "" {
		path = DefaultPath
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Toolkit{Path: path, Runner: runner}
}

// ViewHeaderArgs returns the arguments for printing only the header.
func ViewHeaderArgs(bam string) []string {
	return []string{"view", "-H", bam}
}

// ReheaderArgs returns the arguments for replacing the header of bam
// with the contents of header. The result goes to standard output.
func ReheaderArgs(header, bam string) []string {
	return []string{"reheader", header, bam}
}

// IndexArgs returns the arguments for (re)building the index of bam.
func IndexArgs(bam string) []string {
	return []string{"index", bam}
}

// ViewHeader prints the header of bam as text.
func (tk *Toolkit) ViewHeader(bam string) ([]byte, error) {
	var out bytes.Buffer
	if err := tk.Runner.Run(&out, tk.Path, ViewHeaderArgs(bam)...); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Reheader writes bam with the header taken from the header file to
// output. The output file is created or truncated.
func (tk *Toolkit) Reheader(header, bam, output string) (err error) {
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := f.Close(); err == nil {
			err = nerr
		}
	}()
	return tk.Runner.Run(f, tk.Path, ReheaderArgs(header, bam)...)
}

// Index builds the index of bam next to it.
func (tk *Toolkit) Index(bam string) error {
	return tk.Runner.Run(ioutil.Discard, tk.Path, IndexArgs(bam)...)
}

// CommandLine renders an invocation of this toolkit for logging.
func (tk *Toolkit) CommandLine(args ...string) string {
	return CommandLine(tk.Path, args...)
}
