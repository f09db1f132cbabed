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

package cmd

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/exascience/smfix/reconcile"
	"github.com/exascience/smfix/samtools"
)

// FixHelp is the help string for this command.
const FixHelp = "smfix parameters:\n" +
	"smfix bam-file [bam-file ...]\n" +
	"[--samtools path]\n" +
	"[--max-retry nr]\n" +
	"[--nr-of-threads nr]\n" +
	"[--log-path path]\n"

// Fix implements the smfix command: for each given BAM file, make the
// SM tags in its header agree with the sample name in its file name.
func Fix(args []string) error {
	var (
		samtoolsPath, logPath string
		maxRetry, nrOfThreads int
	)

	filenames, rest := splitArgs(args)

	var flags flag.FlagSet
	flags.StringVar(&samtoolsPath, "samtools", samtools.DefaultPath, "path of the samtools binary")
	flags.IntVar(&maxRetry, "max-retry", reconcile.DefaultMaxRetry, "number of retries for failing samtools commands")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of BAM files to fix in parallel")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")
	parseFlags(&flags, rest, FixHelp)

	if len(filenames) == 0 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, FixHelp)
		os.Exit(1)
	}

	if err := setLogOutput(logPath); err != nil {
		return err
	}

	// sanity checks

	sanityChecksFailed := false

	for _, filename := range filenames {
		if !checkExist("", filename) || !checkWritableDir(filename) {
			sanityChecksFailed = true
		}
	}

	if samtoolsPath == "" {
		log.Println("Error: Empty samtools path.")
		sanityChecksFailed = true
	}

	if maxRetry < 0 {
		log.Println("Error: Invalid max-retry: ", maxRetry)
		sanityChecksFailed = true
	}

	if nrOfThreads < 0 {
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, FixHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0])
	for _, filename := range filenames {
		fmt.Fprint(&command, " ", filename)
	}
	fmt.Fprint(&command, " --samtools ", samtoolsPath)
	fmt.Fprint(&command, " --max-retry ", maxRetry)
	if nrOfThreads > 0 {
		fmt.Fprint(&command, " --nr-of-threads ", nrOfThreads)
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	cfg := reconcile.Config{Samtools: samtoolsPath, MaxRetry: maxRetry}
	_, errs := reconcile.Batch(reconcile.New(cfg, nil), filenames, nrOfThreads)
	return summarize(filenames, errs)
}

func summarize(filenames []string, errs []error) error {
	var first error
	failed := 0
	for _, err := range errs {
		if err != nil {
			if first == nil {
				first = err
			}
			failed++
		}
	}
	switch failed {
	case 0:
		return nil
	case 1:
		return first
	default:
		return fmt.Errorf("%v of %v BAM files could not be fixed, first error: %w", failed, len(filenames), first)
	}
}
