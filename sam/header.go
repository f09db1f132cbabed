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
	"bufio"
	"bytes"
	"io"

	"github.com/willf/bitset"
)

// A Header is the text of a SAM header as a sequence of header lines,
// in their original order.
type Header []HeaderLine

// ParseHeader reads header lines until EOF. Every line is kept,
// including lines that do not start with '@'.
func ParseHeader(reader io.Reader) (Header, error) {
	var hdr Header
	buf := bufio.NewReader(reader)
	for {
		line, err := buf.ReadString('\n')
		if len(line) > 0 {
			hdr = append(hdr, ParseHeaderLine(line))
		}
		switch {
		case err == io.EOF:
			return hdr, nil
		case err != nil:
			return hdr, err
		}
	}
}

// Format writes every header line, newline terminated.
func (hdr Header) Format(out io.Writer) error {
	w := bufio.NewWriter(out)
	for _, line := range hdr {
		if _, err := w.WriteString(line.String()); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Text returns the formatted header.
func (hdr Header) Text() ([]byte, error) {
	var buf bytes.Buffer
	if err := hdr.Format(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HasSampleTag reports whether any header line carries a sample field.
func (hdr Header) HasSampleTag() bool {
	for _, line := range hdr {
		if line.HasSampleTag() {
			return true
		}
	}
	return false
}

// SampleMismatch reports whether any header line has sample fields
// of which none reads SM:sampleID.
func (hdr Header) SampleMismatch(sampleID string) bool {
	for _, line := range hdr {
		if line.SampleMismatch(sampleID) {
			return true
		}
	}
	return false
}

// WithSample returns a new header in which the sample fields of all
// mismatching lines are replaced by SM:sampleID, together with the set
// of indices of the lines whose text changed.
func (hdr Header) WithSample(sampleID string) (Header, *bitset.BitSet) {
	changed := bitset.New(uint(len(hdr)))
	result := make(Header, len(hdr))
	for i, line := range hdr {
		if line.SampleMismatch(sampleID) {
			changed.Set(uint(i))
		}
		result[i] = line.WithSample(sampleID)
	}
	return result, changed
}
