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

import "strings"

// SampleTag is the prefix of the sample field in @RG header lines.
const SampleTag = "SM:"

// A HeaderLine is one line of a SAM header, as an ordered sequence of
// tab-delimited fields. The record type code (for example "@RG") is
// the first field.
type HeaderLine []string

// ParseHeaderLine splits a header line into its fields. A trailing
// newline, if any, is not part of the line.
func ParseHeaderLine(line string) HeaderLine {
	return HeaderLine(strings.Split(strings.TrimSuffix(line, "\n"), "\t"))
}

// String joins the fields of the header line with tabs.
func (line HeaderLine) String() string {
	return strings.Join(line, "\t")
}

// IsSampleField reports whether the field is a sample field.
func IsSampleField(field string) bool {
	return strings.HasPrefix(field, SampleTag)
}

// HasSampleTag reports whether the header line carries at least one
// sample field.
func (line HeaderLine) HasSampleTag() bool {
	for _, field := range line {
		if IsSampleField(field) {
			return true
		}
	}
	return false
}

// CarriesSample reports whether the header line has a sample field
// that reads exactly SM:sampleID.
func (line HeaderLine) CarriesSample(sampleID string) bool {
	tag := SampleTag + sampleID
	for _, field := range line {
		if field == tag {
			return true
		}
	}
	return false
}

// SampleMismatch reports whether the header line carries sample
// fields, but none of them reads SM:sampleID.
//
// An empty sampleID never mismatches: every sample field already
// starts with "SM:", and overwriting real sample names with an empty
// one would only destroy them.
func (line HeaderLine) SampleMismatch(sampleID string) bool {
	if sampleID == "" {
		return false
	}
	return line.HasSampleTag() && !line.CarriesSample(sampleID)
}

// ReplaceSampleField maps a field to its replacement: sample fields
// become SM:sampleID, all other fields are returned unchanged.
func ReplaceSampleField(field, sampleID string) string {
	if IsSampleField(field) {
		return SampleTag + sampleID
	}
	return field
}

// WithSample returns a copy of the header line in which every sample
// field is replaced by SM:sampleID. Lines that do not mismatch
// sampleID are returned as is.
func (line HeaderLine) WithSample(sampleID string) HeaderLine {
	if !line.SampleMismatch(sampleID) {
		return line
	}
	result := make(HeaderLine, len(line))
	for i, field := range line {
		result[i] = ReplaceSampleField(field, sampleID)
	}
	return result
}

// SampleIdentifier derives the sample identifier from the name of a
// SAM/BAM file: the first period-delimited segment of its base name.
//
// A base name without a period yields the whole base name, and a base
// name starting with a period yields the empty string.
func SampleIdentifier(filename string) string {
	base := filename
	if i := strings.LastIndexByte(filename, '/'); i >= 0 {
		base = filename[i+1:]
	}
	if i := strings.IndexByte(base, '.'); i >= 0 {
		return base[:i]
	}
	return base
}

// HeaderFilename returns the name of the temporary file holding the
// rewritten header for the given SAM/BAM file.
func HeaderFilename(filename string) string {
	return filename + ".header.txt"
}

// ReheadedFilename returns the name of the temporary file receiving
// the reheadered data for the given BAM file. The original name is
// assumed to end in a four character extension such as ".bam".
func ReheadedFilename(filename string) string {
	if len(filename) >= len(BamExt) {
		filename = filename[:len(filename)-len(BamExt)]
	}
	return filename + ".reheaded" + BamExt
}

// SAM file extensions.
const (
	SamExt = ".sam"
	BamExt = ".bam"
)
