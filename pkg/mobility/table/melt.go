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

import "github.com/mobility-data/mobility/pkg/mobility/internal/errors"

// Melt pivots the table from wide to long format. For every row, and for
// every column in values in the given order, it emits one row holding the
// ids columns unchanged, varName set to the value column's name and
// valueName set to that column's value. Nulls stay null.
//
// The output keeps input row order, with the len(values) rows derived from
// one input row kept together.
func (t *Table) Melt(ids, values []string, varName, valueName string) (*Table, error) {
	idIdx, err := t.lookup("melt id columns", ids...)
	if err != nil {
		return nil, err
	}
	valIdx, err := t.lookup("melt value columns", values...)
	if err != nil {
		return nil, err
	}

	valueKind := Number
	columns := make([]Column, 0, len(ids)+2)
	for _, i := range idIdx {
		columns = append(columns, t.columns[i])
	}
	for _, i := range valIdx {
		if t.columns[i].Kind != Number {
			valueKind = String
		}
	}
	columns = append(columns, Column{Name: varName, Kind: String}, Column{Name: valueName, Kind: valueKind})

	out, err := New(columns...)
	if err != nil {
		return nil, errors.Wrapf(err, "melt: output columns %q and %q must not repeat an id column", varName, valueName)
	}

	names := make([]Value, len(values))
	for i, v := range values {
		names[i] = StringValue(v)
	}

	out.rows = make([][]Value, 0, len(t.rows)*len(values))
	for _, row := range t.rows {
		for j, vi := range valIdx {
			long := make([]Value, 0, len(columns))
			for _, ii := range idIdx {
				long = append(long, row[ii])
			}
			long = append(long, names[j], row[vi])
			out.rows = append(out.rows, long)
		}
	}
	return out, nil
}
