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
	"encoding/json"
	"io"

	"github.com/apache/beam/sdks/v2/go/pkg/beam/log"
	"github.com/linkedin/goavro/v2"
	"github.com/mobility-data/mobility/pkg/mobility/internal/errors"
	"github.com/mobility-data/mobility/pkg/mobility/table"
	"github.com/mobility-data/mobility/pkg/mobility/tableio"
)

const avroBatch = 1000

type avroField struct {
	Name    string   `json:"name"`
	Type    []string `json:"type"`
	Default any      `json:"default"`
}

type avroRecord struct {
	Type      string      `json:"type"`
	Name      string      `json:"name"`
	Namespace string      `json:"namespace"`
	Fields    []avroField `json:"fields"`
}

// AvroSchema returns the record schema used for t: every column is a
// nullable field, doubles for measures and strings otherwise.
func AvroSchema(t *table.Table, opts Options) (string, error) {
	rec := avroRecord{Type: "record", Name: "LongRecord", Namespace: "mobility"}
	for _, c := range t.Columns() {
		typ := "string"
		if opts.isMeasure(c) {
			typ = "double"
		}
		rec.Fields = append(rec.Fields, avroField{Name: c.Name, Type: []string{"null", typ}})
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func stageAvro(ctx context.Context, t *table.Table, filename string, opts Options) (*tableio.Staged, error) {
	schema, err := AvroSchema(t, opts)
	if err != nil {
		return nil, err
	}
	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return nil, errors.Wrap(err, "error creating avro codec")
	}

	columns := t.Columns()
	measure := make([]bool, len(columns))
	for i, c := range columns {
		measure[i] = opts.isMeasure(c)
	}

	staged, err := tableio.Stage(ctx, filename, func(w io.Writer) error {
		ocfw, err := goavro.NewOCFWriter(goavro.OCFConfig{
			W:               w,
			Codec:           codec,
			CompressionName: goavro.CompressionSnappyLabel,
			Schema:          schema,
		})
		if err != nil {
			return errors.Wrap(err, "error creating avro writer")
		}

		batch := make([]any, 0, avroBatch)
		for i := 0; i < t.Len(); i++ {
			batch = append(batch, avroNative(columns, measure, t.Row(i)))
			if len(batch) == avroBatch {
				if err := ocfw.Append(batch); err != nil {
					return errors.Wrap(err, "error writing avro")
				}
				batch = batch[:0]
			}
		}
		if len(batch) > 0 {
			if err := ocfw.Append(batch); err != nil {
				return errors.Wrap(err, "error writing avro")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Infof(ctx, "Staged %d avro records for %v", t.Len(), filename)
	return staged, nil
}

func avroNative(columns []table.Column, measure []bool, row []table.Value) map[string]any {
	rec := make(map[string]any, len(columns))
	for i, c := range columns {
		v := row[i]
		switch {
		case v.IsNull():
			rec[c.Name] = nil
		case measure[i]:
			f, _ := v.Float()
			rec[c.Name] = goavro.Union("double", f)
		default:
			rec[c.Name] = goavro.Union("string", v.Text())
		}
	}
	return rec
}
