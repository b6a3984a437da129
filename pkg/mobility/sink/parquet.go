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
	"fmt"
	"io"

	"github.com/apache/beam/sdks/v2/go/pkg/beam/log"
	"github.com/mobility-data/mobility/pkg/mobility/internal/errors"
	"github.com/mobility-data/mobility/pkg/mobility/table"
	"github.com/mobility-data/mobility/pkg/mobility/tableio"
	"github.com/xitongsys/parquet-go/writer"
)

// parquetParallelism is the number of goroutines the writer uses to encode
// row groups.
const parquetParallelism = 4

// ParquetMetadata returns the column definitions used for t, in the tag
// syntax of the parquet-go CSV writer.
func ParquetMetadata(t *table.Table, opts Options) []string {
	var md []string
	for _, c := range t.Columns() {
		if opts.isMeasure(c) {
			md = append(md, fmt.Sprintf("name=%s, type=DOUBLE, repetitiontype=OPTIONAL", c.Name))
			continue
		}
		md = append(md, fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", c.Name))
	}
	return md
}

func stageParquet(ctx context.Context, t *table.Table, filename string, opts Options) (*tableio.Staged, error) {
	md := ParquetMetadata(t, opts)
	staged, err := tableio.Stage(ctx, filename, func(w io.Writer) error {
		pw, err := writer.NewCSVWriterFromWriter(md, w, parquetParallelism)
		if err != nil {
			return errors.Wrap(err, "error creating parquet writer")
		}
		rec := make([]*string, len(md))
		for i := 0; i < t.Len(); i++ {
			for j, v := range t.Row(i) {
				rec[j] = nil
				if !v.IsNull() {
					s := v.Text()
					rec[j] = &s
				}
			}
			if err := pw.WriteString(rec); err != nil {
				return errors.Wrapf(err, "error writing parquet row %d", i)
			}
		}
		return pw.WriteStop()
	})
	if err != nil {
		return nil, err
	}
	log.Infof(ctx, "Staged %d parquet rows for %v", t.Len(), filename)
	return staged, nil
}
