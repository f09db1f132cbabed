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

package sam

import (
	"fmt"

	hts "github.com/biogo/hts/sam"
)

var sampleTag = hts.Tag([2]byte{'S', 'M'})

// ReadGroupSamples parses the given header text and returns the
// sample names of its read groups, in read group order. A read group
// without a sample name contributes an empty string.
func ReadGroupSamples(text []byte) ([]string, error) {
	hdr, err := hts.NewHeader(text, nil)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, rg := range hdr.RGs() {
		names = append(names, rg.Get(sampleTag))
	}
	return names, nil
}

// CheckReadGroupSamples returns an error if any of the given read
// group sample names is empty or differs from sampleID.
func CheckReadGroupSamples(names []string, sampleID string) error {
	for i, name := range names {
		switch name {
		case sampleID:
		case "":
			return fmt.Errorf("read group %v has no sample name", i+1)
		default:
			return fmt.Errorf("read group %v has sample name %v instead of %v", i+1, name, sampleID)
		}
	}
	return nil
}
