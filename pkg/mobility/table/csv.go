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

package table

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/mobility-data/mobility/pkg/mobility/internal/errors"
)

const bom = "\ufeff"

// ReadCSV reads comma separated text with a header row. Column kinds are
// inferred per column with InferKind. Empty cells are null.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.Newf(errors.Parse, "missing header row")
	}
	if err != nil {
		return nil, errors.WithKind(errors.Wrap(err, "malformed header row"), errors.Parse)
	}
	header[0] = strings.TrimPrefix(header[0], bom)
	for i, name := range header {
		if strings.TrimSpace(name) == "" {
			return nil, errors.Newf(errors.Parse, "malformed header row: column %d has no name", i+1)
		}
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithKind(errors.Wrap(err, "malformed row"), errors.Parse)
		}
		records = append(records, rec)
	}

	columns := make([]Column, len(header))
	for i, name := range header {
		columns[i] = Column{Name: name, Kind: inferKind(records, i)}
	}
	t, err := New(columns...)
	if err != nil {
		return nil, errors.WithKind(errors.Wrap(err, "malformed header row"), errors.Parse)
	}

	t.rows = make([][]Value, len(records))
	for r, rec := range records {
		row := make([]Value, len(rec))
		for i, cell := range rec {
			row[i] = ParseValue(cell, columns[i].Kind)
		}
		t.rows[r] = row
	}
	return t, nil
}

func inferKind(records [][]string, col int) Kind {
	cells := make([]string, len(records))
	for i, rec := range records {
		cells[i] = rec[col]
	}
	return InferKind(cells)
}

// InferKind returns Number unless a non-empty cell fails to parse as a
// float. A column with no values at all is Number, as missing measurements
// are the common case for entirely empty columns.
func InferKind(cells []string) Kind {
	for _, cell := range cells {
		if cell == "" {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return String
		}
	}
	return Number
}

// ParseValue converts a cell's text into a value of the given column kind.
// The empty string is null. Text that does not parse as a number is kept as
// a string even in a Number column.
func ParseValue(cell string, kind Kind) Value {
	if cell == "" {
		return Null()
	}
	if kind == Number {
		if f, err := strconv.ParseFloat(cell, 64); err == nil {
			return parsedNumber(cell, f)
		}
	}
	return StringValue(cell)
}

// WriteCSV writes the table as comma separated text with a header row and
// no index column. Nulls are written as empty fields.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return errors.WithKind(err, errors.IO)
	}
	rec := make([]string, len(t.columns))
	for _, row := range t.rows {
		for i, v := range row {
			rec[i] = v.Text()
		}
		if err := cw.Write(rec); err != nil {
			return errors.WithKind(err, errors.IO)
		}
	}
	cw.Flush()
	return errors.WithKind(cw.Error(), errors.IO)
}
