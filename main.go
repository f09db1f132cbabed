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

// smfix makes the SM tags in the header of a .bam file agree with
// the sample name in its file name, which is everything up to the
// first period. Mismatching headers are replaced with samtools
// reheader, and the index is rebuilt with samtools index.
//
// Please see https://github.com/exascience/smfix for a documentation
// of the tool.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/exascience/smfix/cmd"
)

func printHelp() {
	fmt.Fprint(os.Stderr, "\n", cmd.FixHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage, "\n")
		printHelp()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
		return
	}

	if err := cmd.Fix(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
