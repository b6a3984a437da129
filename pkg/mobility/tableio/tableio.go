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

// Package tableio loads and writes mobility tables as delimited text on any
// file system registered with Beam's filesystem package: local paths,
// gs:// buckets, or memfs:// in tests.
//
// Writes are committed atomically: output is staged under a temporary name
// and renamed into place once complete, so a failed run leaves no partial
// file behind. Callers writing several files can stage them all first and
// commit only once every one has succeeded.
package tableio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/apache/beam/sdks/v2/go/pkg/beam/io/filesystem"
	"github.com/apache/beam/sdks/v2/go/pkg/beam/log"
	"github.com/google/uuid"
	"github.com/mobility-data/mobility/pkg/mobility/internal/errors"
	"github.com/mobility-data/mobility/pkg/mobility/table"

	_ "github.com/apache/beam/sdks/v2/go/pkg/beam/io/filesystem/local"
)

// Load reads the delimited file at filename into a table.
func Load(ctx context.Context, filename string, c Compression) (*table.Table, error) {
	data, err := ReadFile(ctx, filename, c)
	if err != nil {
		return nil, err
	}
	t, err := table.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WithContextf(err, "loading %v", filename)
	}
	log.Infof(ctx, "Loaded %d rows with %d columns from %v", t.Len(), len(t.Columns()), filename)
	return t, nil
}

// ReadFile returns the decompressed content of filename.
func ReadFile(ctx context.Context, filename string, c Compression) ([]byte, error) {
	fs, err := filesystem.New(ctx, filename)
	if err != nil {
		return nil, errors.WithKind(err, errors.IO)
	}
	defer fs.Close()

	data, err := filesystem.Read(ctx, fs, filename)
	if err != nil {
		return nil, errors.WithKind(errors.Wrapf(err, "reading %v", filename), errors.IO)
	}
	raw, err := decompress(c.Resolve(filename), filename, data)
	if err != nil {
		return nil, errors.WithKind(errors.Wrapf(err, "decompressing %v", filename), errors.IO)
	}
	return raw, nil
}

// Write writes t to filename as delimited text with a header row.
func Write(ctx context.Context, t *table.Table, filename string, c Compression) error {
	staged, err := StageTable(ctx, t, filename, c)
	if err != nil {
		return err
	}
	return staged.Commit(ctx)
}

// StageTable writes t as delimited text to a temporary file next to
// filename. Nothing is visible at filename until the result is committed.
func StageTable(ctx context.Context, t *table.Table, filename string, c Compression) (*Staged, error) {
	c = c.Resolve(filename)
	staged, err := Stage(ctx, filename, func(w io.Writer) error {
		cw, err := compressor(c, filename, w)
		if err != nil {
			return err
		}
		if err := t.WriteCSV(cw); err != nil {
			return err
		}
		return cw.Close()
	})
	if err != nil {
		return nil, err
	}
	log.Infof(ctx, "Staged %d rows for %v (compression: %v)", t.Len(), filename, c)
	return staged, nil
}

// Staged is output written under a temporary name, waiting to be renamed
// to its final name by Commit or removed by Discard.
type Staged struct {
	Filename string
	tmp      string
}

func newStaged(filename string) *Staged {
	return &Staged{
		Filename: filename,
		tmp:      fmt.Sprintf("%s.tmp-%s", filename, uuid.NewString()),
	}
}

// Commit calls write with a writer for a temporary file next to filename,
// then renames the temporary file to filename. If write fails the temporary
// file is removed and filename is left untouched.
func Commit(ctx context.Context, filename string, write func(w io.Writer) error) error {
	staged, err := Stage(ctx, filename, write)
	if err != nil {
		return err
	}
	return staged.Commit(ctx)
}

// Stage calls write with a writer for a temporary file next to filename and
// returns the staged file. If write fails the temporary file is removed.
func Stage(ctx context.Context, filename string, write func(w io.Writer) error) (*Staged, error) {
	fs, err := filesystem.New(ctx, filename)
	if err != nil {
		return nil, errors.WithKind(err, errors.IO)
	}
	defer fs.Close()

	staged := newStaged(filename)
	fd, err := fs.OpenWrite(ctx, staged.tmp)
	if err != nil {
		return nil, errors.WithKind(errors.Wrapf(err, "opening %v", staged.tmp), errors.IO)
	}
	buf := bufio.NewWriterSize(fd, 1<<20) // use 1MB buffer

	if err := write(buf); err != nil {
		fd.Close()
		discard(ctx, fs, staged.tmp)
		return nil, errors.Classify(errors.Wrapf(err, "writing %v", filename), errors.IO)
	}
	if err := buf.Flush(); err != nil {
		fd.Close()
		discard(ctx, fs, staged.tmp)
		return nil, errors.WithKind(errors.Wrapf(err, "writing %v", filename), errors.IO)
	}
	if err := fd.Close(); err != nil {
		discard(ctx, fs, staged.tmp)
		return nil, errors.WithKind(errors.Wrapf(err, "closing %v", staged.tmp), errors.IO)
	}
	return staged, nil
}

// StageFile calls build with the path of a temporary file next to filename,
// for writers that need a path rather than an io.Writer. If build fails the
// temporary file is removed.
func StageFile(ctx context.Context, filename string, build func(tmp string) error) (*Staged, error) {
	staged := newStaged(filename)
	if err := build(staged.tmp); err != nil {
		staged.Discard(ctx)
		return nil, errors.Classify(errors.Wrapf(err, "writing %v", filename), errors.IO)
	}
	return staged, nil
}

// Commit renames the staged file to its final name.
func (s *Staged) Commit(ctx context.Context) error {
	fs, err := filesystem.New(ctx, s.Filename)
	if err != nil {
		return errors.WithKind(err, errors.IO)
	}
	defer fs.Close()

	log.Debugf(ctx, "Renaming %v to %v", s.tmp, s.Filename)
	if err := rename(ctx, fs, s.tmp, s.Filename); err != nil {
		discard(ctx, fs, s.tmp)
		return errors.WithKind(errors.Wrapf(err, "committing %v", s.Filename), errors.IO)
	}
	log.Infof(ctx, "Committed %v", s.Filename)
	return nil
}

// Discard removes the staged file, leaving the final name untouched.
func (s *Staged) Discard(ctx context.Context) {
	fs, err := filesystem.New(ctx, s.Filename)
	if err != nil {
		log.Warnf(ctx, "Unable to remove temporary file %v: %v", s.tmp, err)
		return
	}
	defer fs.Close()
	discard(ctx, fs, s.tmp)
}

func rename(ctx context.Context, fs filesystem.Interface, from, to string) error {
	if r, ok := fs.(filesystem.Renamer); ok {
		return r.Rename(ctx, from, to)
	}
	c, canCopy := fs.(filesystem.Copier)
	rm, canRemove := fs.(filesystem.Remover)
	if !canCopy || !canRemove {
		return errors.Errorf("file system for %v supports neither rename nor copy and remove", to)
	}
	if err := c.Copy(ctx, from, to); err != nil {
		return err
	}
	return rm.Remove(ctx, from)
}

// discard removes a temporary file, logging rather than returning failures.
func discard(ctx context.Context, fs filesystem.Interface, filename string) {
	rm, ok := fs.(filesystem.Remover)
	if !ok {
		log.Warnf(ctx, "Unable to remove temporary file %v: file system cannot remove", filename)
		return
	}
	if err := rm.Remove(ctx, filename); err != nil && !os.IsNotExist(err) {
		log.Warnf(ctx, "Unable to remove temporary file %v: %v", filename, err)
	}
}
