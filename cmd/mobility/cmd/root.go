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

// Package cmd holds the mobility command line.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/mobility-data/mobility/pkg/mobility/config"
	"github.com/mobility-data/mobility/pkg/mobility/logx"
	"github.com/mobility-data/mobility/pkg/mobility/reshape"
	"github.com/mobility-data/mobility/pkg/mobility/sink"
	"github.com/mobility-data/mobility/pkg/mobility/tableio"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Execute runs the command line with args and returns the process exit
// status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRoot()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "%v: %v\n", reshape.ErrorKind(err), err)
	}
	return reshape.ExitCode(err)
}

// NewRoot returns the root command with all subcommands attached.
func NewRoot() *cobra.Command {
	var (
		verbose bool
		logger  *zap.Logger
	)
	root := &cobra.Command{
		Use:   "mobility",
		Short: "Reshape the community mobility report from wide to long format",
		Long: `mobility converts the community mobility report, which holds one column per
activity category, into long format with one row per region, date and
activity.

Settings come from an optional YAML file (--config) and are overridden by
flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = logx.Install(verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newReshapeCmd(), newPipelineCmd())
	return root
}

// settings binds the flags shared by reshape and pipeline.
type settings struct {
	configPath string
	file       config.File
}

func (s *settings) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&s.configPath, "config", "", "YAML config file")
	f.StringVarP(&s.file.Input, "input", "i", "", "input report `path`, any Beam filesystem")
	f.StringVarP(&s.file.Output, "output", "o", "", "output `path`; must contain "+reshape.CodePlaceholder+" for several countries")
	f.StringSliceVarP((*[]string)(&s.file.Countries), "countries", "c", nil, "country codes to keep, one output each")
	f.StringVar(&s.file.CountryColumn, "country-column", reshape.DefaultCountryColumn, "column matched against --countries")
	f.StringSliceVar((*[]string)(&s.file.IDColumns), "id-columns", reshape.DefaultIDColumns, "identifying columns kept in long format")
	f.BoolVar(&s.file.CompressOutput, "compress", false, "zip the output unless --output-compression is set")
	f.StringVar(&s.file.InputCompression, "input-compression", string(tableio.Infer), "input codec: infer, none, zip, gzip, snappy")
	f.StringVar(&s.file.OutputCompression, "output-compression", "", "output codec: infer, none, zip, gzip, snappy")
	f.StringVarP(&s.file.Format, "format", "f", string(sink.CSV), "output format: csv, avro, parquet, sqlite")
	f.StringVar(&s.file.SQLiteTable, "sqlite-table", sink.DefaultTable, "table name for sqlite output")
	f.IntVarP(&s.file.Parallelism, "parallelism", "p", 0, "country subsets written at once, 0 for one per CPU")
}

// flagKeys maps flag names to the File field they set.
var flagKeys = map[string]func(dst, src *config.File){
	"input":              func(d, s *config.File) { d.Input = s.Input },
	"output":             func(d, s *config.File) { d.Output = s.Output },
	"countries":          func(d, s *config.File) { d.Countries = s.Countries },
	"country-column":     func(d, s *config.File) { d.CountryColumn = s.CountryColumn },
	"id-columns":         func(d, s *config.File) { d.IDColumns = s.IDColumns },
	"compress":           func(d, s *config.File) { d.CompressOutput = s.CompressOutput },
	"input-compression":  func(d, s *config.File) { d.InputCompression = s.InputCompression },
	"output-compression": func(d, s *config.File) { d.OutputCompression = s.OutputCompression },
	"format":             func(d, s *config.File) { d.Format = s.Format },
	"sqlite-table":       func(d, s *config.File) { d.SQLiteTable = s.SQLiteTable },
	"parallelism":        func(d, s *config.File) { d.Parallelism = s.Parallelism },
}

// resolve merges the config file, if any, with explicitly set flags.
func (s *settings) resolve(cmd *cobra.Command) (reshape.Config, error) {
	if s.configPath == "" {
		return s.file.Config()
	}
	f, err := config.Load(cmd.Context(), s.configPath)
	if err != nil {
		return reshape.Config{}, err
	}
	for name, set := range flagKeys {
		if cmd.Flags().Changed(name) {
			set(f, &s.file)
		}
	}
	return f.Config()
}
