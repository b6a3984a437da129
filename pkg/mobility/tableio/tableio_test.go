// Licensed to the Apache Software Foundation (ASF) under one or more
// contributor license agreements.  See the NOTICE file distributed with
// this work for additional information regarding copyright ownership.
// The ASF licenses this file to You under the Apache License, Version 2.0
// (the "License"); you may not use this file except in compliance with
// the License.  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tableio

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/beam/sdks/v2/go/pkg/beam/io/filesystem"
	"github.com/apache/beam/sdks/v2/go/pkg/beam/io/filesystem/memfs"
	"github.com/google/go-cmp/cmp"
	"github.com/mobility-data/mobility/pkg/mobility/internal/errors"
	"github.com/mobility-data/mobility/pkg/mobility/table"
)

const content = `country_region_code,date,parks
US,2020-03-01,-3
US,2020-03-02,
`

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in   string
		want Compression
		ok   bool
	}{
		{"", Infer, true},
		{"ZIP", Zip, true},
		{" gzip ", Gzip, true},
		{"snappy", Snappy, true},
		{"none", None, true},
		{"bzip2", "", false},
	}
	for _, test := range tests {
		got, err := ParseCompression(test.in)
		if (err == nil) != test.ok || got != test.want {
			t.Errorf("ParseCompression(%q) = (%v, %v), want %v (ok: %v)", test.in, got, err, test.want, test.ok)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		c        Compression
		filename string
		want     Compression
	}{
		{Infer, "US_mobility_long.zip", Zip},
		{Infer, "gs://bucket/report.csv.gz", Gzip},
		{Infer, "report.csv.sz", Snappy},
		{Infer, "report.csv", None},
		{"", "report.ZIP", Zip},
		{None, "report.zip", None},
		{Gzip, "report.csv", Gzip},
	}
	for _, test := range tests {
		if got := test.c.Resolve(test.filename); got != test.want {
			t.Errorf("%q.Resolve(%q) = %v, want %v", test.c, test.filename, got, test.want)
		}
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, err := table.ReadCSV(strings.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}

	for _, c := range []Compression{None, Zip, Gzip, Snappy} {
		filename := "memfs://roundtrip/" + string(c) + "/long.csv"
		if err := Write(ctx, src, filename, c); err != nil {
			t.Fatalf("Write(%v) failed: %v", c, err)
		}
		raw, err := ReadFile(ctx, filename, c)
		if err != nil {
			t.Fatalf("ReadFile(%v) failed: %v", c, err)
		}
		if d := cmp.Diff(content, string(raw)); d != "" {
			t.Errorf("ReadFile(%v) diff (-want +got):\n%s", c, d)
		}
		got, err := Load(ctx, filename, c)
		if err != nil {
			t.Fatalf("Load(%v) failed: %v", c, err)
		}
		if d := cmp.Diff(src.Names(), got.Names()); d != "" {
			t.Errorf("Load(%v) columns diff (-want +got):\n%s", c, d)
		}
		if got.Len() != src.Len() {
			t.Errorf("Load(%v).Len() = %d, want %d", c, got.Len(), src.Len())
		}
	}
}

func TestWriteZipEntryName(t *testing.T) {
	ctx := context.Background()
	src, err := table.ReadCSV(strings.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	const filename = "memfs://zipentry/US_mobility_long.zip"
	if err := Write(ctx, src, filename, Infer); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data := readMemfs(t, filename)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("output is not a zip archive: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "US_mobility_long" {
		t.Fatalf("zip entries = %v, want exactly [US_mobility_long]", zr.File)
	}
}

func TestLoadZipArchiveErrors(t *testing.T) {
	ctx := context.Background()

	var empty bytes.Buffer
	if err := zip.NewWriter(&empty).Close(); err != nil {
		t.Fatal(err)
	}
	memfs.Write("memfs://badzip/empty.zip", empty.Bytes())

	var multi bytes.Buffer
	zw := zip.NewWriter(&multi)
	for _, name := range []string{"a.csv", "b.csv"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(w, content)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	memfs.Write("memfs://badzip/multi.zip", multi.Bytes())
	memfs.Write("memfs://badzip/garbage.zip", []byte("not a zip"))

	for _, filename := range []string{
		"memfs://badzip/empty.zip",
		"memfs://badzip/multi.zip",
		"memfs://badzip/garbage.zip",
		"memfs://badzip/missing.csv",
	} {
		if _, err := Load(ctx, filename, Infer); !errors.Is(err, errors.IO) {
			t.Errorf("Load(%v) = %v, want IOError", filename, err)
		}
	}
}

func TestLoadParseError(t *testing.T) {
	memfs.Write("memfs://parse/empty.csv", nil)
	if _, err := Load(context.Background(), "memfs://parse/empty.csv", None); !errors.Is(err, errors.Parse) {
		t.Errorf("Load(empty.csv) = %v, want ParseError", err)
	}
}

func TestCommitFailureLeavesNoOutput(t *testing.T) {
	ctx := context.Background()
	const filename = "memfs://commit/out.csv"
	err := Commit(ctx, filename, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return errors.New("disk full")
	})
	if !errors.Is(err, errors.IO) {
		t.Errorf("Commit = %v, want IOError", err)
	}

	fs := memfs.New(ctx)
	files, err := fs.List(ctx, "memfs://commit/*")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("Commit left files behind: %v", files)
	}
}

func TestWriteLocal(t *testing.T) {
	ctx := context.Background()
	src, err := table.ReadCSV(strings.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	filename := filepath.Join(dir, "long.csv")
	if err := Write(ctx, src, filename, Infer); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff(content, string(got)); d != "" {
		t.Errorf("local output diff (-want +got):\n%s", d)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("output dir holds %d entries, want only the committed file", len(entries))
	}
}

func readMemfs(t *testing.T, filename string) []byte {
	t.Helper()
	ctx := context.Background()
	data, err := filesystem.Read(ctx, memfs.New(ctx), filename)
	if err != nil {
		t.Fatalf("reading %v: %v", filename, err)
	}
	return data
}

func TestStageCommitAndDiscard(t *testing.T) {
	ctx := context.Background()
	src, err := table.ReadCSV(strings.NewReader(content))
	if err != nil {
		t.Fatal(err)
	}
	fs := memfs.New(ctx)

	kept, err := StageTable(ctx, src, "memfs://stage/kept.csv", None)
	if err != nil {
		t.Fatalf("StageTable(kept) failed: %v", err)
	}
	dropped, err := StageTable(ctx, src, "memfs://stage/dropped.csv", None)
	if err != nil {
		t.Fatalf("StageTable(dropped) failed: %v", err)
	}
	if files, _ := fs.List(ctx, "memfs://stage/*.csv"); len(files) != 0 {
		t.Errorf("staged files visible before commit: %v", files)
	}

	if err := kept.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	dropped.Discard(ctx)

	files, err := fs.List(ctx, "memfs://stage/*")
	if err != nil {
		t.Fatal(err)
	}
	if d := cmp.Diff([]string{"memfs://stage/kept.csv"}, files); d != "" {
		t.Errorf("files after commit and discard (-want +got):\n%s", d)
	}
	if d := cmp.Diff(content, string(readMemfs(t, "memfs://stage/kept.csv"))); d != "" {
		t.Errorf("committed content diff (-want +got):\n%s", d)
	}
}
