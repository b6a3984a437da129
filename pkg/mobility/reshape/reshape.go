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

// Package reshape turns the community mobility report from wide format, one
// column per activity category, into long format with one row per region,
// date and activity.
//
// The reshape is a single linear pipeline driven by Config:
//
//	load -> (optional country filter) -> rename -> pivot -> write
//
// Run executes it in memory. Pipeline builds the same transform as an
// Apache Beam graph for inputs spread over many files.
package reshape

import (
	"context"
	"runtime"
	"strings"

	"github.com/apache/beam/sdks/v2/go/pkg/beam/log"
	"github.com/mobility-data/mobility/pkg/mobility/internal/errors"
	"github.com/mobility-data/mobility/pkg/mobility/sink"
	"github.com/mobility-data/mobility/pkg/mobility/table"
	"github.com/mobility-data/mobility/pkg/mobility/tableio"
	"golang.org/x/sync/errgroup"
)

const (
	// ActivityColumn holds the activity name in long format.
	ActivityColumn = "activity"
	// ValueColumn holds the percent change from baseline in long format.
	ValueColumn = "percent_change"
	// DefaultCountryColumn is the column country filters match against.
	DefaultCountryColumn = "country_region_code"
	// CodePlaceholder is replaced by the country code in output paths.
	CodePlaceholder = "{code}"
)

// MeasureAliases maps the report's measurement columns to short activity
// names.
var MeasureAliases = map[string]string{
	"retail_and_recreation_percent_change_from_baseline": "retail_recreation",
	"grocery_and_pharmacy_percent_change_from_baseline":  "grocery_pharmacy",
	"parks_percent_change_from_baseline":                 "parks",
	"transit_stations_percent_change_from_baseline":      "transit_stations",
	"workplaces_percent_change_from_baseline":            "workplaces",
	"residential_percent_change_from_baseline":           "residential",
}

// Activities lists the activity names in output order.
var Activities = []string{
	"retail_recreation",
	"grocery_pharmacy",
	"parks",
	"transit_stations",
	"workplaces",
	"residential",
}

// DefaultIDColumns are the identifying columns carried into long format.
var DefaultIDColumns = []string{
	"country_region_code",
	"sub_region_1",
	"sub_region_2",
	"metro_area",
	"census_fips_code",
	"date",
}

// Config parameterizes a reshape run.
type Config struct {
	Input            string
	InputCompression tableio.Compression

	// Output is the destination. With more than one country it must
	// contain CodePlaceholder.
	Output            string
	OutputCompression tableio.Compression
	// CompressOutput selects zip when OutputCompression is unset.
	CompressOutput bool
	Format         sink.Format
	SQLiteTable    string

	// Countries lists exact-match values of CountryColumn. Each produces
	// its own output. Empty means no filtering.
	Countries     []string
	CountryColumn string
	IDColumns     []string

	// Parallelism bounds how many country subsets are written at once.
	Parallelism int
}

// WithDefaults returns c with unset fields filled in.
func (c Config) WithDefaults() Config {
	if c.CountryColumn == "" {
		c.CountryColumn = DefaultCountryColumn
	}
	if len(c.IDColumns) == 0 {
		c.IDColumns = DefaultIDColumns
	}
	if c.InputCompression == "" {
		c.InputCompression = tableio.Infer
	}
	if c.OutputCompression == "" || c.OutputCompression == tableio.Infer {
		if c.CompressOutput {
			c.OutputCompression = tableio.Zip
		} else {
			c.OutputCompression = tableio.Infer
		}
	}
	if c.Format == "" {
		c.Format = sink.CSV
	}
	if c.Parallelism == 0 {
		c.Parallelism = runtime.GOMAXPROCS(0)
	}
	return c
}

// Validate reports configuration errors. It expects defaults to be applied.
func (c Config) Validate() error {
	if c.Input == "" {
		return errors.New("no input provided")
	}
	if c.Output == "" {
		return errors.New("no output provided")
	}
	if len(c.Countries) > 1 && !strings.Contains(c.Output, CodePlaceholder) {
		return errors.Errorf("output %q must contain %v to hold %d country subsets", c.Output, CodePlaceholder, len(c.Countries))
	}
	seen := make(map[string]bool)
	for _, code := range c.Countries {
		if seen[code] {
			return errors.Errorf("country %q listed twice", code)
		}
		seen[code] = true
	}
	if _, err := sink.ParseFormat(string(c.Format)); err != nil {
		return err
	}
	if _, err := tableio.ParseCompression(string(c.InputCompression)); err != nil {
		return err
	}
	if _, err := tableio.ParseCompression(string(c.OutputCompression)); err != nil {
		return err
	}
	if c.Format != sink.CSV && c.OutputCompression != tableio.Infer && c.OutputCompression != tableio.None {
		return errors.Errorf("compression %v only applies to csv output, not %v", c.OutputCompression, c.Format)
	}
	if c.Parallelism < 0 {
		return errors.Errorf("parallelism must not be negative, got %d", c.Parallelism)
	}
	return nil
}

// OutputFor returns the output path of a country subset.
func (c Config) OutputFor(code string) string {
	return strings.ReplaceAll(c.Output, CodePlaceholder, code)
}

func (c Config) sinkOptions() sink.Options {
	comp := c.OutputCompression
	if c.Format != sink.CSV {
		comp = tableio.None
	}
	return sink.Options{
		Compression: comp,
		Measures:    []string{ValueColumn},
		Table:       c.SQLiteTable,
	}
}

// Reshape renames the measurement columns of wide and pivots them into
// ActivityColumn and ValueColumn, keeping ids.
func Reshape(wide *table.Table, ids []string) (*table.Table, error) {
	renamed, err := wide.Rename(MeasureAliases)
	if err != nil {
		return nil, err
	}
	return renamed.Melt(ids, Activities, ActivityColumn, ValueColumn)
}

// Run loads the input, reshapes it, once per country if countries are
// configured, and writes the results. Outputs are only committed once every
// one of them has been written, so a failed run leaves none behind.
func Run(ctx context.Context, cfg Config) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	wide, err := tableio.Load(ctx, cfg.Input, cfg.InputCompression)
	if err != nil {
		return errors.SetTopLevelMsgf(err, "unable to load %v", cfg.Input)
	}

	if len(cfg.Countries) == 0 {
		staged, err := reshapeAndStage(ctx, cfg, wide, cfg.Output)
		if err != nil {
			return err
		}
		return commit(ctx, []*tableio.Staged{staged})
	}

	// Every subset filters the loaded table, never a previous subset. The
	// table is immutable, so subsets can share it.
	staged := make([]*tableio.Staged, len(cfg.Countries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallelism)
	for i, code := range cfg.Countries {
		g.Go(func() error {
			subset, err := wide.Filter(cfg.CountryColumn, code)
			if err != nil {
				return errors.SetTopLevelMsgf(err, "unable to select country %v", code)
			}
			log.Infof(gctx, "Country %v: %d of %d rows", code, subset.Len(), wide.Len())
			if staged[i], err = reshapeAndStage(gctx, cfg, subset, cfg.OutputFor(code)); err != nil {
				return errors.WithContextf(err, "country %v", code)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		discardAll(ctx, staged)
		return err
	}
	return commit(ctx, staged)
}

func reshapeAndStage(ctx context.Context, cfg Config, wide *table.Table, output string) (*tableio.Staged, error) {
	long, err := Reshape(wide, cfg.IDColumns)
	if err != nil {
		return nil, errors.SetTopLevelMsg(err, "unable to reshape to long format")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	staged, err := sink.Stage(ctx, long, output, cfg.Format, cfg.sinkOptions())
	if err != nil {
		return nil, errors.SetTopLevelMsgf(err, "unable to write %v", output)
	}
	return staged, nil
}

// commit renames staged outputs into place. A rename failure discards the
// outputs not yet committed; earlier renames cannot be undone.
func commit(ctx context.Context, staged []*tableio.Staged) error {
	for i, s := range staged {
		if err := s.Commit(ctx); err != nil {
			discardAll(ctx, staged[i+1:])
			return errors.SetTopLevelMsgf(err, "unable to commit %v", s.Filename)
		}
	}
	return nil
}

func discardAll(ctx context.Context, staged []*tableio.Staged) {
	for _, s := range staged {
		if s != nil {
			s.Discard(ctx)
		}
	}
}

// ExitCode maps an error returned by Run to a process exit status.
func ExitCode(err error) int {
	switch errors.KindOf(err) {
	case errors.IO:
		return 3
	case errors.Parse:
		return 4
	case errors.Schema:
		return 5
	}
	if err != nil {
		return 1
	}
	return 0
}

// ErrorKind names the class of an error returned by Run: IOError,
// ParseError, SchemaError, or Error when unclassified.
func ErrorKind(err error) string {
	return errors.KindOf(err).String()
}
