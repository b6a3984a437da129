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
	"compress/gzip"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/golang/snappy"
	"github.com/mobility-data/mobility/pkg/mobility/internal/errors"
)

// Compression names the codec applied to a delimited file.
type Compression string

const (
	// Infer picks the codec from the file extension.
	Infer  Compression = "infer"
	None   Compression = "none"
	Zip    Compression = "zip"
	Gzip   Compression = "gzip"
	Snappy Compression = "snappy"
)

// ParseCompression validates a codec name. The empty string means Infer.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return Infer, nil
	case Infer, None, Zip, Gzip, Snappy:
		return c, nil
	default:
		return "", errors.Errorf("unknown compression %q, want one of infer, none, zip, gzip, snappy", s)
	}
}

// Resolve replaces Infer with the codec implied by filename's extension.
func (c Compression) Resolve(filename string) Compression {
	if c != Infer && c != "" {
		return c
	}
	switch strings.ToLower(path.Ext(filename)) {
	case ".zip":
		return Zip
	case ".gz", ".gzip":
		return Gzip
	case ".sz", ".snappy":
		return Snappy
	default:
		return None
	}
}

// decompress returns the decompressed content of data. c must be resolved.
func decompress(c Compression, filename string, data []byte) ([]byte, error) {
	switch c {
	case None:
		return data, nil
	case Gzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrapf(err, "gzip stream %v", filename)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case Snappy:
		return io.ReadAll(snappy.NewReader(bytes.NewReader(data)))
	case Zip:
		return unzip(filename, data)
	default:
		return nil, errors.Errorf("compression %q not resolved for %v", c, filename)
	}
}

// unzip returns the single file held by a zip archive.
func unzip(filename string, data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrapf(err, "zip archive %v", filename)
	}
	var files []*zip.File
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			files = append(files, f)
		}
	}
	switch len(files) {
	case 0:
		return nil, errors.Errorf("zip archive %v is empty", filename)
	case 1:
	default:
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.Name
		}
		return nil, errors.Errorf("zip archive %v holds %d files %q, want exactly one", filename, len(files), names)
	}

	rc, err := files[0].Open()
	if err != nil {
		return nil, errors.Wrapf(err, "zip entry %v in %v", files[0].Name, filename)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// compressor wraps w so that writes are compressed by c. Closing it
// finishes the stream but leaves w open. c must be resolved.
func compressor(c Compression, filename string, w io.Writer) (io.WriteCloser, error) {
	switch c {
	case None:
		return nopCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case Zip:
		zw := zip.NewWriter(w)
		entry, err := zw.Create(entryName(filename))
		if err != nil {
			return nil, err
		}
		return &zipEntry{Writer: entry, zw: zw}, nil
	default:
		return nil, fmt.Errorf("compression %q not resolved for %v", c, filename)
	}
}

// entryName is the name of the single file in a zip archive written to
// filename: its base name without the .zip suffix.
func entryName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if strings.EqualFold(path.Ext(base), ".zip") {
		base = base[:len(base)-len(".zip")]
	}
	return base
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

type zipEntry struct {
	io.Writer
	zw *zip.Writer
}

func (z *zipEntry) Close() error {
	return z.zw.Close()
}
