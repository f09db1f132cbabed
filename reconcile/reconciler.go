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

package reconcile

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/exascience/smfix/internal"
	"github.com/exascience/smfix/sam"
	"github.com/exascience/smfix/samtools"
)

// DefaultMaxRetry is the retry budget for external commands.
const DefaultMaxRetry = 10

// Config holds the settings of a Reconciler.
type Config struct {
	// Samtools is the path of the samtools binary.
	Samtools string

	// MaxRetry is the number of times a failing external command is
	// retried before giving up.
	MaxRetry int
}

// DefaultConfig returns the configuration used when no flags are given.
func DefaultConfig() Config {
	return Config{Samtools: samtools.DefaultPath, MaxRetry: DefaultMaxRetry}
}

// Result describes what Reconcile did for one BAM file.
type Result struct {
	Target       string
	SampleID     string
	Mismatch     bool
	ChangedLines uint
}

// A Reconciler makes the SM tags in BAM headers agree with the sample
// identifier in the BAM file names.
type Reconciler struct {
	cfg     Config
	toolkit *samtools.Toolkit
}

// New returns a Reconciler that invokes samtools through runner. A nil
// runner means samtools.ExecRunner.
func New(cfg Config, runner samtools.Runner) *Reconciler {
	return &Reconciler{
		cfg:     cfg,
		toolkit: samtools.NewToolkit(cfg.Samtools, runner),
	}
}

func (r *Reconciler) viewHeader(target string) (hdr sam.Header, err error) {
	command := r.toolkit.CommandLine(samtools.ViewHeaderArgs(target)...)
	err = samtools.Retry(r.cfg.MaxRetry, command, func(int) error {
		text, err := r.toolkit.ViewHeader(target)
		if err != nil {
			return err
		}
		hdr, err = sam.ParseHeader(bytes.NewReader(text))
		return err
	})
	return hdr, err
}

// Reconcile checks the SM tags in the header of target against the
// sample identifier derived from its file name, and if any differs,
// installs a header in which all SM tags carry that identifier and
// rebuilds the index.
//
// When there is no mismatch, or the identifier is empty, Reconcile
// creates no files and leaves target untouched. The same holds when
// the new header would still name another sample in a read group.
func (r *Reconciler) Reconcile(target string) (Result, error) {
	result := Result{Target: target, SampleID: sam.SampleIdentifier(target)}

	hdr, err := r.viewHeader(target)
	if err != nil {
		return result, err
	}
	if result.SampleID == "" {
		log.Printf("*WARNING*: empty sample name derived from BAM %v, SM tags left as they are\n", target)
		return result, nil
	}
	if !hdr.SampleMismatch(result.SampleID) {
		if !hdr.HasSampleTag() {
			log.Printf("*WARNING*: no SM tag in header of BAM %v, nothing to fix\n", target)
		}
		return result, nil
	}
	result.Mismatch = true

	log.Printf("*WARNING*: mismatch between sample name and SM tag in BAM %v, fixing ...\n", target)

	fixed, changed := hdr.WithSample(result.SampleID)
	result.ChangedLines = changed.Count()
	text, err := fixed.Text()
	if err != nil {
		return result, err
	}
	if names, err := sam.ReadGroupSamples(text); err != nil {
		log.Printf("*WARNING*: could not validate new header for BAM %v: %v\n", target, err)
	} else if err := sam.CheckReadGroupSamples(names, result.SampleID); err != nil {
		return result, fmt.Errorf("new header for BAM %v: %w", target, err)
	} else {
		log.Printf("New header for BAM %v: %v changed line(s), read group samples %v\n", target, result.ChangedLines, names)
	}

	header := sam.HeaderFilename(target)
	if err := ioutil.WriteFile(header, text, 0666); err != nil {
		return result, fmt.Errorf("writing header file %v: %w", header, err)
	}

	reheaded := sam.ReheadedFilename(target)
	command := r.toolkit.CommandLine(samtools.ReheaderArgs(header, target)...) + " > " + reheaded
	if err := samtools.Retry(r.cfg.MaxRetry, command, func(int) error {
		return r.toolkit.Reheader(header, target, reheaded)
	}); err != nil {
		return result, err
	}

	return result, r.finalize(target, header, reheaded)
}

// finalize moves the reheadered data over target, rebuilds the index
// and removes the header file, as one retried step. A move that
// succeeded is not repeated by later attempts.
func (r *Reconciler) finalize(target, header, reheaded string) error {
	command := fmt.Sprintf("mv %v %v; %v; rm %v",
		reheaded, target, r.toolkit.CommandLine(samtools.IndexArgs(target)...), header)
	moved := false
	return samtools.Retry(r.cfg.MaxRetry, command, func(int) error {
		if !moved {
			if err := os.Rename(reheaded, target); err != nil {
				return err
			}
			moved = true
		}
		if err := r.toolkit.Index(target); err != nil {
			return err
		}
		return internal.RemoveIfExists(header)
	})
}
