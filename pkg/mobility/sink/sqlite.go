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

package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/apache/beam/sdks/v2/go/pkg/beam/log"
	"github.com/mobility-data/mobility/pkg/mobility/internal/errors"
	"github.com/mobility-data/mobility/pkg/mobility/table"
	"github.com/mobility-data/mobility/pkg/mobility/tableio"

	_ "modernc.org/sqlite"
)

// stageSQLite builds a fresh database file for filename, which must be a
// local path, under a temporary name.
func stageSQLite(ctx context.Context, t *table.Table, filename string, opts Options) (*tableio.Staged, error) {
	if strings.Contains(filename, "://") {
		return nil, errors.Newf(errors.IO, "sqlite output must be a local path, got %v", filename)
	}
	name := opts.Table
	if name == "" {
		name = DefaultTable
	}

	staged, err := tableio.StageFile(ctx, filename, func(tmp string) error {
		return fillSQLite(ctx, t, tmp, name, opts)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "writing sqlite database %v", filename)
	}
	log.Infof(ctx, "Staged %d rows in table %v for %v", t.Len(), name, filename)
	return staged, nil
}

func fillSQLite(ctx context.Context, t *table.Table, path, name string, opts Options) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	columns := t.Columns()
	defs := make([]string, len(columns))
	cols := make([]string, len(columns))
	marks := make([]string, len(columns))
	measure := make([]bool, len(columns))
	for i, c := range columns {
		measure[i] = opts.isMeasure(c)
		typ := "TEXT"
		if measure[i] {
			typ = "REAL"
		}
		cols[i] = quoteIdent(c.Name)
		defs[i] = cols[i] + " " + typ
		marks[i] = "?"
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))); err != nil {
		return errors.Wrapf(err, "creating table %v", name)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(name), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for i := 0; i < t.Len(); i++ {
		for j, v := range t.Row(i) {
			switch {
			case v.IsNull():
				args[j] = nil
			case measure[j]:
				args[j], _ = v.Float()
			default:
				args[j] = v.Text()
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.Wrapf(err, "inserting row %d", i)
		}
	}
	return tx.Commit()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
