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

// Package sink writes reshaped tables in the supported output formats:
// delimited text, Avro object container files, Parquet and SQLite.
package sink

import (
	"context"
	"slices"
	"strings"

	"github.com/mobility-data/mobility/pkg/mobility/internal/errors"
	"github.com/mobility-data/mobility/pkg/mobility/table"
	"github.com/mobility-data/mobility/pkg/mobility/tableio"
)

// Format is an output file format.
type Format string

const (
	CSV     Format = "csv"
	Avro    Format = "avro"
	Parquet Format = "parquet"
	SQLite  Format = "sqlite"
)

// ParseFormat validates a format name. The empty string means CSV.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return CSV, nil
	case CSV, Avro, Parquet, SQLite:
		return f, nil
	default:
		return "", errors.Errorf("unknown output format %q, want one of csv, avro, parquet, sqlite", s)
	}
}

// Options configures a sink.
type Options struct {
	// Compression applies to CSV output only.
	Compression tableio.Compression
	// Measures names the columns written as nullable doubles by typed
	// formats. All other columns are written as nullable strings so that
	// identifying values keep their exact text.
	Measures []string
	// Table is the SQLite table name. Defaults to DefaultTable.
	Table string
}

// DefaultTable is the SQLite table written when Options.Table is empty.
const DefaultTable = "mobility_long"

func (o Options) isMeasure(c table.Column) bool {
	return c.Kind == table.Number && slices.Contains(o.Measures, c.Name)
}

// Write writes t to filename in format f.
func Write(ctx context.Context, t *table.Table, filename string, f Format, opts Options) error {
	staged, err := Stage(ctx, t, filename, f, opts)
	if err != nil {
		return err
	}
	return staged.Commit(ctx)
}

// Stage writes t in format f under a temporary name next to filename. The
// caller commits or discards the result.
func Stage(ctx context.Context, t *table.Table, filename string, f Format, opts Options) (*tableio.Staged, error) {
	switch f {
	case CSV, "":
		return tableio.StageTable(ctx, t, filename, opts.Compression)
	case Avro:
		return stageAvro(ctx, t, filename, opts)
	case Parquet:
		return stageParquet(ctx, t, filename, opts)
	case SQLite:
		return stageSQLite(ctx, t, filename, opts)
	default:
		return nil, errors.Errorf("unknown output format %q", f)
	}
}
