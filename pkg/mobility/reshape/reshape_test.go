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
	"context"
	"strings"
	"testing"

	"github.com/apache/beam/sdks/v2/go/pkg/beam/io/filesystem/memfs"
	"github.com/google/go-cmp/cmp"
	"github.com/mobility-data/mobility/pkg/mobility/internal/errors"
	"github.com/mobility-data/mobility/pkg/mobility/sink"
	"github.com/mobility-data/mobility/pkg/mobility/table"
	"github.com/mobility-data/mobility/pkg/mobility/tableio"
)

const header = "country_region_code,country_region,sub_region_1,sub_region_2,metro_area,census_fips_code,date," +
	"retail_and_recreation_percent_change_from_baseline,grocery_and_pharmacy_percent_change_from_baseline," +
	"parks_percent_change_from_baseline,transit_stations_percent_change_from_baseline," +
	"workplaces_percent_change_from_baseline,residential_percent_change_from_baseline\n"

const report = header +
	"US,United States,,,,,2020-03-01,-10.0,5.0,,-20.0,-15.0,8.0\n" +
	"NA,Namibia,,,,,2020-03-01,1,2,3,4,5,6\n" +
	"US,United States,Texas,,,48,2020-03-02,-11,4,7,-21,-16,9\n"

const longHeader = "country_region_code,sub_region_1,sub_region_2,metro_area,census_fips_code,date,activity,percent_change\n"

const usLong = longHeader +
	"US,,,,,2020-03-01,retail_recreation,-10.0\n" +
	"US,,,,,2020-03-01,grocery_pharmacy,5.0\n" +
	"US,,,,,2020-03-01,parks,\n" +
	"US,,,,,2020-03-01,transit_stations,-20.0\n" +
	"US,,,,,2020-03-01,workplaces,-15.0\n" +
	"US,,,,,2020-03-01,residential,8.0\n" +
	"US,Texas,,,48,2020-03-02,retail_recreation,-11\n" +
	"US,Texas,,,48,2020-03-02,grocery_pharmacy,4\n" +
	"US,Texas,,,48,2020-03-02,parks,7\n" +
	"US,Texas,,,48,2020-03-02,transit_stations,-21\n" +
	"US,Texas,,,48,2020-03-02,workplaces,-16\n" +
	"US,Texas,,,48,2020-03-02,residential,9\n"

const naLong = longHeader +
	"NA,,,,,2020-03-01,retail_recreation,1\n" +
	"NA,,,,,2020-03-01,grocery_pharmacy,2\n" +
	"NA,,,,,2020-03-01,parks,3\n" +
	"NA,,,,,2020-03-01,transit_stations,4\n" +
	"NA,,,,,2020-03-01,workplaces,5\n" +
	"NA,,,,,2020-03-01,residential,6\n"

func readOutput(t *testing.T, filename string) string {
	t.Helper()
	data, err := tableio.ReadFile(context.Background(), filename, tableio.Infer)
	if err != nil {
		t.Fatalf("reading %v failed: %v", filename, err)
	}
	return string(data)
}

func TestReshape(t *testing.T) {
	wide, err := table.ReadCSV(strings.NewReader(report))
	if err != nil {
		t.Fatal(err)
	}
	long, err := Reshape(wide, DefaultIDColumns)
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}
	if got, want := long.Len(), 6*wide.Len(); got != want {
		t.Errorf("Reshape().Len() = %d, want %d", got, want)
	}
	wantNames := append(append([]string{}, DefaultIDColumns...), ActivityColumn, ValueColumn)
	if d := cmp.Diff(wantNames, long.Names()); d != "" {
		t.Errorf("Reshape() columns diff (-want +got):\n%s", d)
	}
	for i := 0; i < long.Len(); i++ {
		v, _ := long.Value(i, ActivityColumn)
		if want := Activities[i%len(Activities)]; v.Text() != want {
			t.Errorf("row %d: activity = %q, want %q", i, v.Text(), want)
		}
	}
	parks, _ := long.Value(2, ValueColumn)
	if !parks.IsNull() {
		t.Errorf("missing parks measurement = %v, want null", parks)
	}
}

func TestReshapeMissingMeasure(t *testing.T) {
	wide, err := table.ReadCSV(strings.NewReader("country_region_code,sub_region_1,sub_region_2,metro_area,census_fips_code,date,parks_percent_change_from_baseline\nUS,,,,,2020-03-01,3\n"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = Reshape(wide, DefaultIDColumns)
	if !errors.Is(err, errors.Schema) {
		t.Fatalf("Reshape() error = %v, want SchemaError", err)
	}
}

func TestRunSingleCountry(t *testing.T) {
	memfs.Write("memfs://run/single/report.csv", []byte(report))
	cfg := Config{
		Input:     "memfs://run/single/report.csv",
		Output:    "memfs://run/single/US_mobility_long.csv",
		Countries: []string{"US"},
	}
	if err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if d := cmp.Diff(usLong, readOutput(t, cfg.Output)); d != "" {
		t.Errorf("output diff (-want +got):\n%s", d)
	}
}

func TestRunNoFilter(t *testing.T) {
	memfs.Write("memfs://run/all/report.csv", []byte(report))
	cfg := Config{
		Input:  "memfs://run/all/report.csv",
		Output: "memfs://run/all/mobility_long.csv",
	}
	if err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got := readOutput(t, cfg.Output)
	if n := strings.Count(got, "\n") - 1; n != 18 {
		t.Errorf("output has %d rows, want 18", n)
	}
}

func TestRunAbsentCountry(t *testing.T) {
	memfs.Write("memfs://run/absent/report.csv", []byte(report))
	cfg := Config{
		Input:     "memfs://run/absent/report.csv",
		Output:    "memfs://run/absent/ZZ_mobility_long.csv",
		Countries: []string{"ZZ"},
	}
	if err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if d := cmp.Diff(longHeader, readOutput(t, cfg.Output)); d != "" {
		t.Errorf("output diff (-want +got):\n%s", d)
	}
}

func TestRunManyCountries(t *testing.T) {
	memfs.Write("memfs://run/many/report.csv", []byte(report))
	cfg := Config{
		Input:       "memfs://run/many/report.csv",
		Output:      "memfs://run/many/{code}_mobility_long.zip",
		Countries:   []string{"NA", "US"},
		Parallelism: 2,
	}
	if err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := map[string]string{"NA": naLong, "US": usLong}
	for code, w := range want {
		if d := cmp.Diff(w, readOutput(t, cfg.OutputFor(code))); d != "" {
			t.Errorf("country %v output diff (-want +got):\n%s", code, d)
		}
	}
}

func TestRunFailedCountryCommitsNothing(t *testing.T) {
	ctx := context.Background()
	memfs.Write("memfs://run/staged/report.csv", []byte(report))
	// The output of "memfs" lands in memfs://, the output of "US" in an
	// unregistered file system.
	cfg := Config{
		Input:     "memfs://run/staged/report.csv",
		Output:    "{code}://run/staged/out/long.csv",
		Countries: []string{"memfs", "US"},
	}
	err := Run(ctx, cfg)
	if !errors.Is(err, errors.IO) {
		t.Fatalf("Run() = %v, want IOError", err)
	}
	files, err := memfs.New(ctx).List(ctx, "memfs://run/staged/out/*")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("failed run left outputs behind: %v", files)
	}
}

func TestRunErrors(t *testing.T) {
	memfs.Write("memfs://run/errors/report.csv", []byte(report))
	memfs.Write("memfs://run/errors/ragged.csv", []byte("a,b\n1\n"))
	tests := []struct {
		name string
		cfg  Config
		kind errors.Kind
		code int
	}{
		{
			name: "missing input",
			cfg:  Config{Input: "memfs://run/errors/missing.csv", Output: "memfs://run/errors/out.csv"},
			kind: errors.IO,
			code: 3,
		},
		{
			name: "ragged input",
			cfg:  Config{Input: "memfs://run/errors/ragged.csv", Output: "memfs://run/errors/out.csv"},
			kind: errors.Parse,
			code: 4,
		},
		{
			name: "missing country column",
			cfg: Config{
				Input:         "memfs://run/errors/report.csv",
				Output:        "memfs://run/errors/out.csv",
				Countries:     []string{"US"},
				CountryColumn: "iso_3166_2_code",
			},
			kind: errors.Schema,
			code: 5,
		},
		{
			name: "missing id column",
			cfg: Config{
				Input:     "memfs://run/errors/report.csv",
				Output:    "memfs://run/errors/out.csv",
				IDColumns: []string{"place_id"},
			},
			kind: errors.Schema,
			code: 5,
		},
		{
			name: "output without placeholder",
			cfg: Config{
				Input:     "memfs://run/errors/report.csv",
				Output:    "memfs://run/errors/out.csv",
				Countries: []string{"US", "NA"},
			},
			kind: errors.Unknown,
			code: 1,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Run(context.Background(), test.cfg)
			if err == nil {
				t.Fatal("Run succeeded, want error")
			}
			if got := errors.KindOf(err); got != test.kind {
				t.Errorf("KindOf(%v) = %v, want %v", err, got, test.kind)
			}
			if got := ExitCode(err); got != test.code {
				t.Errorf("ExitCode() = %d, want %d", got, test.code)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	base := Config{Input: "in.csv", Output: "{code}.csv"}
	tests := []struct {
		name string
		edit func(c *Config)
		ok   bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"no input", func(c *Config) { c.Input = "" }, false},
		{"no output", func(c *Config) { c.Output = "" }, false},
		{"duplicate country", func(c *Config) { c.Countries = []string{"US", "US"} }, false},
		{"many countries", func(c *Config) { c.Countries = []string{"US", "NA"} }, true},
		{"unknown format", func(c *Config) { c.Format = "xlsx" }, false},
		{"compressed avro", func(c *Config) { c.Format = sink.Avro; c.CompressOutput = true }, false},
		{"avro", func(c *Config) { c.Format = sink.Avro }, true},
		{"negative parallelism", func(c *Config) { c.Parallelism = -1 }, false},
	}
	for _, test := range tests {
		cfg := base
		test.edit(&cfg)
		err := cfg.WithDefaults().Validate()
		if (err == nil) != test.ok {
			t.Errorf("%v: Validate() = %v, want ok: %v", test.name, err, test.ok)
		}
	}
}

func TestWithDefaults(t *testing.T) {
	got := Config{CompressOutput: true}.WithDefaults()
	if got.OutputCompression != tableio.Zip {
		t.Errorf("OutputCompression = %v, want zip", got.OutputCompression)
	}
	if got.CountryColumn != DefaultCountryColumn {
		t.Errorf("CountryColumn = %q, want %q", got.CountryColumn, DefaultCountryColumn)
	}
	if d := cmp.Diff(DefaultIDColumns, got.IDColumns); d != "" {
		t.Errorf("IDColumns diff (-want +got):\n%s", d)
	}
	if got.Parallelism < 1 {
		t.Errorf("Parallelism = %d, want positive", got.Parallelism)
	}
	if got := (Config{OutputCompression: tableio.Gzip, CompressOutput: true}).WithDefaults(); got.OutputCompression != tableio.Gzip {
		t.Errorf("explicit OutputCompression overridden: got %v", got.OutputCompression)
	}
}
