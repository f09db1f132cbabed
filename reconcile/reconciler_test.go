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
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/exascience/smfix/samtools"
)

// fakeSamtools stands in for samtools. A "BAM" file is a text file
// holding header lines starting with '@', followed by body lines.
type fakeSamtools struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int // remaining failures per operation, negative means always
}

func newFakeSamtools() *fakeSamtools {
	return &fakeSamtools{calls: make(map[string]int), failures: make(map[string]int)}
}

func (fake *fakeSamtools) count(op string) int {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.calls[op]
}

func (fake *fakeSamtools) Run(stdout io.Writer, name string, args ...string) error {
	if len(args) == 0 {
		return errors.New("no samtools command")
	}
	op := args[0]
	fake.mu.Lock()
	fake.calls[op]++
	switch n := fake.failures[op]; {
	case n < 0:
		fake.mu.Unlock()
		return fmt.Errorf("%v failed", op)
	case n > 0:
		fake.failures[op] = n - 1
		fake.mu.Unlock()
		return fmt.Errorf("%v failed", op)
	}
	fake.mu.Unlock()

	switch {
	case op == "view" && len(args) == 3 && args[1] == "-H":
		header, _, err := splitBam(args[2])
		if err != nil {
			return err
		}
		_, err = io.WriteString(stdout, header)
		return err
	case op == "reheader" && len(args) == 3:
		header, err := ioutil.ReadFile(args[1])
		if err != nil {
			return err
		}
		_, body, err := splitBam(args[2])
		if err != nil {
			return err
		}
		_, err = io.WriteString(stdout, string(header)+body)
		return err
	case op == "index" && len(args) == 2:
		data, err := ioutil.ReadFile(args[1])
		if err != nil {
			return err
		}
		return ioutil.WriteFile(args[1]+".bai", []byte(fmt.Sprint(len(data))), 0666)
	}
	return fmt.Errorf("unsupported samtools command %v", args)
}

func splitBam(filename string) (header, body string, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	var h, b strings.Builder
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "@") {
			h.WriteString(line + "\n")
		} else {
			b.WriteString(line + "\n")
		}
	}
	return h.String(), b.String(), scanner.Err()
}

const testBody = "read1\t0\tchr1\t100\t60\t4M\t*\t0\t0\tACGT\tIIII\n" +
	"read2\t16\tchr1\t200\t60\t4M\t*\t0\t0\tTTGA\tIIII\n"

func writeBam(t *testing.T, dir, name, header string) string {
	t.Helper()
	target := filepath.Join(dir, name)
	if err := ioutil.WriteFile(target, []byte(header+testBody), 0666); err != nil {
		t.Fatal(err)
	}
	return target
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	infos, err := ioutil.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Samtools = "/usr/bin/samtools/samtools"
	return cfg
}

func TestReconcileMismatch(t *testing.T) {
	dir := t.TempDir()
	header := "@HD\tVN:1.6\tSO:coordinate\n" +
		"@SQ\tSN:chr1\tLN:248956422\n" +
		"@RG\tID:1\tSM:WRONGID\n" +
		"@CO\tuser  comment\t\n"
	target := writeBam(t, dir, "SAMPLE01.aligned.bam", header)
	fake := newFakeSamtools()

	result, err := New(testConfig(), fake).Reconcile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Mismatch || result.SampleID != "SAMPLE01" || result.ChangedLines != 1 {
		t.Errorf("unexpected result %+v", result)
	}

	data, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	expected := "@HD\tVN:1.6\tSO:coordinate\n" +
		"@SQ\tSN:chr1\tLN:248956422\n" +
		"@RG\tID:1\tSM:SAMPLE01\n" +
		"@CO\tuser  comment\t\n" + testBody
	if string(data) != expected {
		t.Errorf("unexpected reheadered file:\n%q\nexpected:\n%q", data, expected)
	}
	if _, err := os.Stat(target + ".bai"); err != nil {
		t.Error("index not rebuilt")
	}
	names := listDir(t, dir)
	if len(names) != 2 || names[0] != "SAMPLE01.aligned.bam" || names[1] != "SAMPLE01.aligned.bam.bai" {
		t.Errorf("unexpected files left behind: %v", names)
	}
	if fake.count("reheader") != 1 || fake.count("index") != 1 {
		t.Errorf("unexpected calls %v", fake.calls)
	}
}

func TestReconcileMatch(t *testing.T) {
	dir := t.TempDir()
	target := writeBam(t, dir, "SAMPLE01.aligned.bam", "@HD\tVN:1.6\n@RG\tID:1\tSM:SAMPLE01\n")
	before, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	fake := newFakeSamtools()

	result, err := New(testConfig(), fake).Reconcile(target)
	if err != nil {
		t.Fatal(err)
	}
	if result.Mismatch {
		t.Error("unexpected mismatch")
	}
	after, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("target modified")
	}
	if names := listDir(t, dir); len(names) != 1 {
		t.Errorf("unexpected files created: %v", names)
	}
	if fake.count("view") != 1 || fake.count("reheader") != 0 || fake.count("index") != 0 {
		t.Errorf("unexpected calls %v", fake.calls)
	}
}

func TestReconcileWithoutSampleTag(t *testing.T) {
	dir := t.TempDir()
	target := writeBam(t, dir, "SAMPLE01.bam", "@HD\tVN:1.6\n@SQ\tSN:chr1\tLN:1000\n")
	fake := newFakeSamtools()

	result, err := New(testConfig(), fake).Reconcile(target)
	if err != nil {
		t.Fatal(err)
	}
	if result.Mismatch {
		t.Error("unexpected mismatch")
	}
	if names := listDir(t, dir); len(names) != 1 {
		t.Errorf("unexpected files created: %v", names)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	dir := t.TempDir()
	target := writeBam(t, dir, "SAMPLE01.aligned.bam", "@RG\tID:1\tSM:WRONGID\n@RG\tID:2\tSM:OTHER\tLB:x\n")
	fake := newFakeSamtools()
	r := New(testConfig(), fake)

	first, err := r.Reconcile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Mismatch || first.ChangedLines != 2 {
		t.Errorf("unexpected first result %+v", first)
	}
	fixed, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Reconcile(target)
	if err != nil {
		t.Fatal(err)
	}
	if second.Mismatch {
		t.Error("second run found a mismatch")
	}
	again, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(fixed, again) {
		t.Error("second run modified the target")
	}
	if fake.count("reheader") != 1 || fake.count("index") != 1 {
		t.Errorf("unexpected calls %v", fake.calls)
	}
}

func TestReconcileReheaderFails(t *testing.T) {
	dir := t.TempDir()
	target := writeBam(t, dir, "SAMPLE01.aligned.bam", "@RG\tID:1\tSM:WRONGID\n")
	before, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	fake := newFakeSamtools()
	fake.failures["reheader"] = -1

	_, err = New(testConfig(), fake).Reconcile(target)
	var retryErr *samtools.RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected a RetryError, got %v", err)
	}
	if retryErr.MaxRetry != DefaultMaxRetry || !strings.Contains(retryErr.Command, "reheader") {
		t.Errorf("unexpected RetryError %+v", retryErr)
	}
	if n := fake.count("reheader"); n != DefaultMaxRetry+1 {
		t.Errorf("expected %v reheader attempts, got %v", DefaultMaxRetry+1, n)
	}
	if fake.count("index") != 0 {
		t.Error("index called after failed reheader")
	}
	after, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("target modified by failed reheader")
	}
}

func TestReconcileIndexRetried(t *testing.T) {
	dir := t.TempDir()
	target := writeBam(t, dir, "SAMPLE01.bam", "@RG\tID:1\tSM:WRONGID\n")
	fake := newFakeSamtools()
	fake.failures["index"] = 2

	if _, err := New(testConfig(), fake).Reconcile(target); err != nil {
		t.Fatal(err)
	}
	if n := fake.count("index"); n != 3 {
		t.Errorf("expected 3 index attempts, got %v", n)
	}
	names := listDir(t, dir)
	if len(names) != 2 || names[0] != "SAMPLE01.bam" || names[1] != "SAMPLE01.bam.bai" {
		t.Errorf("unexpected files: %v", names)
	}
}

func TestReconcileViewFails(t *testing.T) {
	dir := t.TempDir()
	target := writeBam(t, dir, "SAMPLE01.bam", "@RG\tID:1\tSM:WRONGID\n")
	fake := newFakeSamtools()
	fake.failures["view"] = -1
	cfg := testConfig()
	cfg.MaxRetry = 2

	if _, err := New(cfg, fake).Reconcile(target); err == nil {
		t.Fatal("expected an error")
	}
	if n := fake.count("view"); n != 3 {
		t.Errorf("expected 3 view attempts, got %v", n)
	}
	if names := listDir(t, dir); len(names) != 1 {
		t.Errorf("unexpected files created: %v", names)
	}
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	a := writeBam(t, dir, "A.bam", "@RG\tID:1\tSM:WRONG\n")
	b := writeBam(t, dir, "B.sorted.bam", "@RG\tID:1\tSM:B\n")
	c := writeBam(t, dir, "C.bam", "@RG\tID:1\tSM:X\n@RG\tID:2\tSM:Y\n")
	duplicate := filepath.Join(dir, ".", "A.bam")
	fake := newFakeSamtools()

	results, errs := Batch(New(testConfig(), fake), []string{a, b, c, duplicate}, 2)
	if len(results) != 4 || len(errs) != 4 {
		t.Fatalf("unexpected result lengths %v, %v", len(results), len(errs))
	}
	for i := 0; i < 3; i++ {
		if errs[i] != nil {
			t.Errorf("unexpected error for %v: %v", results[i].Target, errs[i])
		}
	}
	if errs[3] == nil {
		t.Error("duplicate target not rejected")
	}
	if !results[0].Mismatch || results[1].Mismatch || !results[2].Mismatch {
		t.Errorf("unexpected results %+v", results)
	}
	if fake.count("reheader") != 2 {
		t.Errorf("unexpected calls %v", fake.calls)
	}
}

func TestBatchSymlink(t *testing.T) {
	dir := t.TempDir()
	a := writeBam(t, dir, "A.bam", "@RG\tID:1\tSM:WRONG\n")
	link := filepath.Join(dir, "A.link.bam")
	if err := os.Symlink(a, link); err != nil {
		t.Skip("symlinks not supported:", err)
	}
	fake := newFakeSamtools()

	_, errs := Batch(New(testConfig(), fake), []string{a, link}, 2)
	if errs[0] != nil {
		t.Errorf("unexpected error %v", errs[0])
	}
	if errs[1] == nil {
		t.Error("symlink to an earlier target not rejected")
	}
	if fake.count("view") != 1 || fake.count("reheader") != 1 {
		t.Errorf("unexpected calls %v", fake.calls)
	}
}

func TestBatchEmpty(t *testing.T) {
	results, errs := Batch(New(testConfig(), newFakeSamtools()), nil, 0)
	if len(results) != 0 || len(errs) != 0 {
		t.Error("unexpected results for empty batch")
	}
}

func TestReconcileEmptyIdentifier(t *testing.T) {
	dir := t.TempDir()
	target := writeBam(t, dir, ".hidden.bam", "@HD\tVN:1.6\n@RG\tID:1\tSM:NA12878\n")
	before, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	fake := newFakeSamtools()

	result, err := New(testConfig(), fake).Reconcile(target)
	if err != nil {
		t.Fatal(err)
	}
	if result.SampleID != "" || result.Mismatch {
		t.Errorf("unexpected result %+v", result)
	}
	after, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("target modified")
	}
	if names := listDir(t, dir); len(names) != 1 {
		t.Errorf("unexpected files created: %v", names)
	}
	if fake.count("reheader") != 0 || fake.count("index") != 0 {
		t.Errorf("unexpected calls %v", fake.calls)
	}
}

func TestReconcileNoPeriod(t *testing.T) {
	dir := t.TempDir()
	target := writeBam(t, dir, "SAMPLE02", "@RG\tID:1\tSM:WRONG\n")
	fake := newFakeSamtools()

	result, err := New(testConfig(), fake).Reconcile(target)
	if err != nil {
		t.Fatal(err)
	}
	if result.SampleID != "SAMPLE02" || !result.Mismatch {
		t.Errorf("unexpected result %+v", result)
	}
	data, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "@RG\tID:1\tSM:SAMPLE02\n"+testBody {
		t.Errorf("unexpected reheadered file %q", data)
	}
	names := listDir(t, dir)
	if len(names) != 2 || names[0] != "SAMPLE02" || names[1] != "SAMPLE02.bai" {
		t.Errorf("unexpected files: %v", names)
	}
}

func TestReconcileMixedSampleFields(t *testing.T) {
	dir := t.TempDir()
	target := writeBam(t, dir, "SAMPLE01.bam", "@RG\tID:1\tSM:SAMPLE01\tSM:OTHER\n")
	fake := newFakeSamtools()

	result, err := New(testConfig(), fake).Reconcile(target)
	if err != nil {
		t.Fatal(err)
	}
	if result.Mismatch || fake.count("reheader") != 0 {
		t.Errorf("line carrying SM:SAMPLE01 treated as a mismatch: %+v", result)
	}

	target = writeBam(t, dir, "SAMPLE03.bam", "@RG\tID:1\tSM:SAMPLE03\tSM:OTHER\n@RG\tID:2\tSM:WRONG\n")
	result, err = New(testConfig(), fake).Reconcile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Mismatch || result.ChangedLines != 1 {
		t.Errorf("unexpected result %+v", result)
	}
	data, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	expected := "@RG\tID:1\tSM:SAMPLE03\tSM:OTHER\n@RG\tID:2\tSM:SAMPLE03\n" + testBody
	if string(data) != expected {
		t.Errorf("unexpected reheadered file %q", data)
	}
}

func TestReconcileReadGroupWithoutSample(t *testing.T) {
	dir := t.TempDir()
	target := writeBam(t, dir, "SAMPLE01.bam", "@HD\tVN:1.6\n@RG\tID:1\tSM:WRONG\n@RG\tID:2\tLB:lib\n")
	before, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	fake := newFakeSamtools()

	result, err := New(testConfig(), fake).Reconcile(target)
	if err == nil || !strings.Contains(err.Error(), "no sample name") {
		t.Fatalf("expected a read group error, got %v", err)
	}
	if !result.Mismatch {
		t.Error("mismatch not reported")
	}
	if fake.count("reheader") != 0 {
		t.Error("reheader called for an invalid header")
	}
	after, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("target modified")
	}
	if names := listDir(t, dir); len(names) != 1 {
		t.Errorf("unexpected files created: %v", names)
	}
}
