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
	"fmt"
	"log"
	"path/filepath"
	"runtime"

	"github.com/exascience/pargo/parallel"

	"github.com/exascience/smfix/internal"
)

// Batch reconciles each of the given targets, using at most
// nrOfThreads parallel workers. A value of 0 for nrOfThreads means
// runtime.GOMAXPROCS(0) workers.
//
// The returned slices have one entry per target, in the order of
// targets. A target that refers to the same file as an earlier target
// is not processed and gets an error.
func Batch(r *Reconciler, targets []string, nrOfThreads int) ([]Result, []error) {
	results := make([]Result, len(targets))
	errs := make([]error, len(targets))

	var todo []int
	seen := make(map[string]int)
	for i, target := range targets {
		full, err := internal.FullPathname(target)
		if err == nil {
			full, err = filepath.EvalSymlinks(full)
		}
		if err != nil {
			errs[i] = err
			continue
		}
		if j, found := seen[full]; found {
			errs[i] = fmt.Errorf("BAM %v given more than once (also as %v)", target, targets[j])
			continue
		}
		seen[full] = i
		todo = append(todo, i)
	}

	if nrOfThreads <= 0 {
		nrOfThreads = runtime.GOMAXPROCS(0)
	}
	if nrOfThreads > len(todo) {
		nrOfThreads = len(todo)
	}
	if len(todo) == 0 {
		return results, errs
	}
	parallel.Range(0, len(todo), nrOfThreads, func(low, high int) {
		for _, i := range todo[low:high] {
			results[i], errs[i] = r.Reconcile(targets[i])
			if errs[i] != nil {
				log.Printf("Failed to fix BAM %v: %v\n", targets[i], errs[i])
			}
		}
	})
	return results, errs
}
