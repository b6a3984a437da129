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

package reshape

import (
	"cmp"
	"context"
	"reflect"
	"slices"

	"github.com/apache/beam/sdks/v2/go/pkg/beam"
	"github.com/apache/beam/sdks/v2/go/pkg/beam/io/filesystem"
	"github.com/apache/beam/sdks/v2/go/pkg/beam/log"
	"github.com/apache/beam/sdks/v2/go/pkg/beam/register"
	"github.com/mobility-data/mobility/pkg/mobility/internal/errors"
	"github.com/mobility-data/mobility/pkg/mobility/sink"
	"github.com/mobility-data/mobility/pkg/mobility/table"
	"github.com/mobility-data/mobility/pkg/mobility/tableio"
)

func init() {
	beam.RegisterType(reflect.TypeOf((*WideRow)(nil)).Elem())
	beam.RegisterType(reflect.TypeOf((*LongRow)(nil)).Elem())

	register.DoFn3x1[context.Context, string, func(WideRow), error](&readWideFn{})
	register.DoFn3x0[context.Context, WideRow, func(WideRow)](&matchCountryFn{})
	register.DoFn3x0[context.Context, WideRow, func(LongRow)](&pivotFn{})
	register.DoFn3x1[context.Context, []byte, func(*LongRow) bool, error](&writeLongFn{})
	register.Emitter1[WideRow]()
	register.Emitter1[LongRow]()
	register.Iter1[LongRow]()
}

var (
	wideRows     = beam.NewCounter("mobility", "wide_rows")
	longRows     = beam.NewCounter("mobility", "long_rows")
	filteredRows = beam.NewCounter("mobility", "filtered_rows")
)

// WideRow is one row of a wide report file. Empty strings are missing
// values.
type WideRow struct {
	Source   string
	Line     int
	Country  string
	IDs      []string
	Measures []string
}

// LongRow is one activity measurement of a WideRow.
type LongRow struct {
	Source        string
	Line          int
	Ordinal       int
	IDs           []string
	Activity      string
	PercentChange string
}

// Pipeline adds the reshape to s. cfg.Input is a glob that may match many
// files; rows keep the order of the sorted file names, then the order
// within each file. One output is written per country, or a single output
// when no countries are configured.
//
// The glob is expanded and every matched file is read and checked while
// the pipeline is built, so unreadable or malformed input and missing
// columns are reported here with their error kind.
func Pipeline(ctx context.Context, s beam.Scope, cfg Config) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	files, err := checkInputs(ctx, cfg)
	if err != nil {
		return err
	}
	s = s.Scope("mobility.Reshape")

	wide := beam.ParDo(s, &readWideFn{
		Compression:   string(cfg.InputCompression),
		IDColumns:     cfg.IDColumns,
		CountryColumn: cfg.CountryColumn,
		Filter:        len(cfg.Countries) > 0,
	}, beam.CreateList(s, files))

	if len(cfg.Countries) == 0 {
		writeLong(s, cfg, cfg.Output, pivot(s, wide))
		return nil
	}
	for _, code := range cfg.Countries {
		cs := s.Scope("country." + code)
		subset := beam.ParDo(cs, &matchCountryFn{Country: code}, wide)
		writeLong(cs, cfg, cfg.OutputFor(code), pivot(cs, subset))
	}
	return nil
}

// RunPipeline builds the reshape pipeline and executes it on runner.
// Inputs are checked while building, so a failure reported by the runner
// comes from reading or writing files and is classified as IO.
func RunPipeline(ctx context.Context, runner string, cfg Config) error {
	p, s := beam.NewPipelineWithRoot()
	if err := Pipeline(ctx, s, cfg); err != nil {
		return err
	}
	log.Infof(ctx, "Running reshape of %v on %v", cfg.Input, runner)
	if _, err := beam.Run(ctx, runner, p); err != nil {
		return errors.SetTopLevelMsgf(errors.Classify(err, errors.IO), "pipeline on runner %v failed", runner)
	}
	return nil
}

func pivot(s beam.Scope, wide beam.PCollection) beam.PCollection {
	return beam.ParDo(s, &pivotFn{Activities: Activities}, wide)
}

func writeLong(s beam.Scope, cfg Config, output string, long beam.PCollection) {
	opts := cfg.sinkOptions()
	fn := &writeLongFn{
		Output:      output,
		Compression: string(opts.Compression),
		Format:      string(cfg.Format),
		SQLiteTable: opts.Table,
		IDColumns:   cfg.IDColumns,
	}
	beam.ParDo0(s, fn, beam.Impulse(s), beam.SideInput{Input: long})
}

// checkInputs expands cfg.Input and loads every matched file, returning the
// sorted file names.
func checkInputs(ctx context.Context, cfg Config) ([]string, error) {
	fs, err := filesystem.New(ctx, cfg.Input)
	if err != nil {
		return nil, errors.SetTopLevelMsgf(errors.WithKind(err, errors.IO), "unable to load %v", cfg.Input)
	}
	defer fs.Close()

	files, err := fs.List(ctx, cfg.Input)
	if err != nil {
		return nil, errors.SetTopLevelMsgf(errors.WithKind(errors.Wrapf(err, "listing %v", cfg.Input), errors.IO), "unable to load %v", cfg.Input)
	}
	if len(files) == 0 {
		return nil, errors.SetTopLevelMsgf(errors.Newf(errors.IO, "no files match %v", cfg.Input), "unable to load %v", cfg.Input)
	}
	slices.Sort(files)

	f := wideReader{
		Compression:   tableio.Compression(cfg.InputCompression),
		IDColumns:     cfg.IDColumns,
		CountryColumn: cfg.CountryColumn,
		Filter:        len(cfg.Countries) > 0,
	}
	for _, filename := range files {
		if _, err := f.open(ctx, filename); err != nil {
			return nil, errors.SetTopLevelMsgf(err, "unable to load %v", filename)
		}
	}
	log.Infof(ctx, "Checked %d input files matching %v", len(files), cfg.Input)
	return files, nil
}

// wideReader loads a wide report file and locates the columns a WideRow
// is built from.
type wideReader struct {
	Compression   tableio.Compression
	IDColumns     []string
	CountryColumn string
	Filter        bool
}

type wideFile struct {
	t        *table.Table
	ids      []int
	measures []int
	// country is -1 when rows are not filtered by country.
	country int
}

func (r wideReader) open(ctx context.Context, filename string) (*wideFile, error) {
	t, err := tableio.Load(ctx, filename, r.Compression)
	if err != nil {
		return nil, err
	}
	w := &wideFile{country: -1}
	if w.t, err = t.Rename(MeasureAliases); err != nil {
		return nil, errors.WithContextf(err, "reading %v", filename)
	}
	if w.ids, err = w.t.Indexes(r.IDColumns...); err != nil {
		return nil, errors.WithContextf(err, "reading %v", filename)
	}
	if w.measures, err = w.t.Indexes(Activities...); err != nil {
		return nil, errors.WithContextf(err, "reading %v", filename)
	}
	if r.Filter {
		idx, err := w.t.Indexes(r.CountryColumn)
		if err != nil {
			return nil, errors.WithContextf(err, "reading %v", filename)
		}
		w.country = idx[0]
	}
	return w, nil
}

type readWideFn struct {
	Compression   string   `json:"compression"`
	IDColumns     []string `json:"id_columns"`
	CountryColumn string   `json:"country_column"`
	Filter        bool     `json:"filter"`
}

func (f *readWideFn) ProcessElement(ctx context.Context, filename string, emit func(WideRow)) error {
	log.Infof(ctx, "Reading from %v", filename)

	r := wideReader{
		Compression:   tableio.Compression(f.Compression),
		IDColumns:     f.IDColumns,
		CountryColumn: f.CountryColumn,
		Filter:        f.Filter,
	}
	w, err := r.open(ctx, filename)
	if err != nil {
		return err
	}
	for i := 0; i < w.t.Len(); i++ {
		row := w.t.Row(i)
		wr := WideRow{
			Source:   filename,
			Line:     i,
			IDs:      texts(row, w.ids),
			Measures: texts(row, w.measures),
		}
		if w.country >= 0 {
			wr.Country = row[w.country].Text()
		}
		wideRows.Inc(ctx, 1)
		emit(wr)
	}
	return nil
}

func texts(row []table.Value, idx []int) []string {
	out := make([]string, len(idx))
	for j, i := range idx {
		out[j] = row[i].Text()
	}
	return out
}

type matchCountryFn struct {
	Country string `json:"country"`
}

func (f *matchCountryFn) ProcessElement(ctx context.Context, row WideRow, emit func(WideRow)) {
	if row.Country != f.Country {
		return
	}
	filteredRows.Inc(ctx, 1)
	emit(row)
}

type pivotFn struct {
	Activities []string `json:"activities"`
}

func (f *pivotFn) ProcessElement(ctx context.Context, row WideRow, emit func(LongRow)) {
	for i, activity := range f.Activities {
		longRows.Inc(ctx, 1)
		emit(LongRow{
			Source:        row.Source,
			Line:          row.Line,
			Ordinal:       i,
			IDs:           row.IDs,
			Activity:      activity,
			PercentChange: row.Measures[i],
		})
	}
}

// writeLongFn writes every long row of its side input to one file. It runs
// once per output, fed by an impulse, so an empty subset still produces a
// file with a header.
type writeLongFn struct {
	Output      string   `json:"output"`
	Compression string   `json:"compression"`
	Format      string   `json:"format"`
	SQLiteTable string   `json:"sqlite_table"`
	IDColumns   []string `json:"id_columns"`
}

func (f *writeLongFn) ProcessElement(ctx context.Context, _ []byte, rows func(*LongRow) bool) error {
	var all []LongRow
	var row LongRow
	for rows(&row) {
		all = append(all, row)
	}
	slices.SortFunc(all, func(a, b LongRow) int {
		return cmp.Or(
			cmp.Compare(a.Source, b.Source),
			cmp.Compare(a.Line, b.Line),
			cmp.Compare(a.Ordinal, b.Ordinal),
		)
	})

	t, err := longTable(f.IDColumns, all)
	if err != nil {
		return err
	}
	opts := sink.Options{
		Compression: tableio.Compression(f.Compression),
		Measures:    []string{ValueColumn},
		Table:       f.SQLiteTable,
	}
	log.Infof(ctx, "Writing %d rows to %v", t.Len(), f.Output)
	return sink.Write(ctx, t, f.Output, sink.Format(f.Format), opts)
}

// longTable assembles sorted long rows into a table, inferring column kinds
// the way a delimited file is read.
func longTable(ids []string, rows []LongRow) (*table.Table, error) {
	kinds := make([]table.Kind, len(ids)+1)
	cells := make([]string, len(rows))
	for j := range ids {
		for i, r := range rows {
			cells[i] = r.IDs[j]
		}
		kinds[j] = table.InferKind(cells)
	}
	for i, r := range rows {
		cells[i] = r.PercentChange
	}
	kinds[len(ids)] = table.InferKind(cells)

	columns := make([]table.Column, 0, len(ids)+2)
	for j, name := range ids {
		columns = append(columns, table.Column{Name: name, Kind: kinds[j]})
	}
	columns = append(columns,
		table.Column{Name: ActivityColumn, Kind: table.String},
		table.Column{Name: ValueColumn, Kind: kinds[len(ids)]},
	)
	t, err := table.New(columns...)
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		values := make([]table.Value, 0, len(columns))
		for j, id := range r.IDs {
			values = append(values, table.ParseValue(id, kinds[j]))
		}
		values = append(values,
			table.StringValue(r.Activity),
			table.ParseValue(r.PercentChange, kinds[len(ids)]),
		)
		if err := t.Append(values...); err != nil {
			return nil, err
		}
	}
	return t, nil
}
