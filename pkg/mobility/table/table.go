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

// Package table holds a small in-memory, column-typed table and the
// transforms the mobility reshape applies to it: exact-match filtering,
// column renaming and the wide-to-long pivot.
//
// Tables are immutable once built. Every transform returns a new table and
// leaves its receiver untouched, so a loaded table can be shared between
// goroutines.
package table

import (
	"fmt"
	"slices"
	"sort"

	"github.com/mobility-data/mobility/pkg/mobility/internal/errors"
)

// Column describes one column of a table.
type Column struct {
	Name string
	Kind Kind
}

// Table is an ordered set of columns and rows of values.
type Table struct {
	columns []Column
	rows    [][]Value
	index   map[string]int
}

// New returns an empty table with the given columns. Column names must be
// unique.
func New(columns ...Column) (*Table, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, ok := index[c.Name]; ok {
			return nil, errors.Newf(errors.Schema, "duplicate column %q", c.Name)
		}
		index[c.Name] = i
	}
	return &Table{
		columns: slices.Clone(columns),
		index:   index,
	}, nil
}

// Append adds a row. The row must have one value per column.
func (t *Table) Append(row ...Value) error {
	if len(row) != len(t.columns) {
		return errors.Newf(errors.Schema, "row has %d values, table has %d columns", len(row), len(t.columns))
	}
	t.rows = append(t.rows, slices.Clone(row))
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Columns returns the columns in order.
func (t *Table) Columns() []Column {
	return slices.Clone(t.columns)
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

// Row returns the i'th row. The returned slice must not be modified.
func (t *Table) Row(i int) []Value {
	return t.rows[i]
}

// Value returns the value of the named column in the i'th row.
func (t *Table) Value(i int, name string) (Value, error) {
	idx, err := t.lookup("value", name)
	if err != nil {
		return Value{}, err
	}
	return t.rows[i][idx[0]], nil
}

// Indexes returns the positions of the named columns, for use with Row.
func (t *Table) Indexes(names ...string) ([]int, error) {
	return t.lookup("select", names...)
}

// lookup resolves column names to positions. All missing names are reported
// together.
func (t *Table) lookup(op string, names ...string) ([]int, error) {
	idx := make([]int, len(names))
	var missing []string
	for i, name := range names {
		j, ok := t.index[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		idx[i] = j
	}
	if len(missing) > 0 {
		return nil, errors.Newf(errors.Schema, "%s: column(s) %q not found in table with columns %q", op, missing, t.Names())
	}
	return idx, nil
}

// Filter returns the rows whose column text equals value exactly. No
// normalization is applied. A value that matches nothing gives an empty
// table with the same columns.
func (t *Table) Filter(column, value string) (*Table, error) {
	idx, err := t.lookup("filter", column)
	if err != nil {
		return nil, err
	}
	out := t.derive(t.columns)
	for _, row := range t.rows {
		if row[idx[0]].Text() == value {
			out.rows = append(out.rows, row)
		}
	}
	return out, nil
}

// Rename renames columns according to mapping, from current name to new
// name. Columns not in mapping keep their names. Every key of mapping must
// name an existing column, and the result must not contain duplicate names.
func (t *Table) Rename(mapping map[string]string) (*Table, error) {
	from := make([]string, 0, len(mapping))
	for k := range mapping {
		from = append(from, k)
	}
	sort.Strings(from)
	if _, err := t.lookup("rename", from...); err != nil {
		return nil, err
	}

	columns := slices.Clone(t.columns)
	for i, c := range columns {
		if to, ok := mapping[c.Name]; ok {
			columns[i].Name = to
		}
	}
	out, err := New(columns...)
	if err != nil {
		return nil, errors.Wrap(err, "rename: mapping introduces a name collision")
	}
	out.rows = slices.Clone(t.rows)
	return out, nil
}

// derive returns an empty table with the given, already validated, columns.
func (t *Table) derive(columns []Column) *Table {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c.Name] = i
	}
	return &Table{columns: columns, index: index}
}

func (t *Table) String() string {
	return fmt.Sprintf("table%q[%d rows]", t.Names(), len(t.rows))
}
