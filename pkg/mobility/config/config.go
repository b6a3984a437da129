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

// Package config reads reshape settings from a YAML file.
package config

import (
	"bytes"
	"context"
	"io"

	"github.com/mobility-data/mobility/pkg/mobility/internal/errors"
	"github.com/mobility-data/mobility/pkg/mobility/reshape"
	"github.com/mobility-data/mobility/pkg/mobility/sink"
	"github.com/mobility-data/mobility/pkg/mobility/tableio"
	"gopkg.in/yaml.v3"
)

// File is the YAML form of reshape.Config.
type File struct {
	Input             string  `yaml:"input"`
	Output            string  `yaml:"output"`
	Countries         Strings `yaml:"countries"`
	CountryColumn     string  `yaml:"country_column"`
	IDColumns         Strings `yaml:"id_columns"`
	CompressOutput    bool    `yaml:"compress_output"`
	InputCompression  string  `yaml:"input_compression"`
	OutputCompression string  `yaml:"output_compression"`
	Format            string  `yaml:"format"`
	SQLiteTable       string  `yaml:"sqlite_table"`
	Parallelism       int     `yaml:"parallelism"`
}

// Strings is a list that may also be written as a single scalar.
type Strings []string

// UnmarshalYAML accepts either a scalar or a sequence of scalars.
func (s *Strings) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			*s = nil
			return nil
		}
		*s = Strings{n.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := n.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return errors.Errorf("line %d: want a string or a list of strings", n.Line)
	}
}

// Load reads the YAML file at path. Any Beam filesystem path is accepted.
func Load(ctx context.Context, path string) (*File, error) {
	data, err := tableio.ReadFile(ctx, path, tableio.None)
	if err != nil {
		return nil, errors.SetTopLevelMsgf(err, "unable to read config %v", path)
	}
	f, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WithContextf(err, "config %v", path)
	}
	return f, nil
}

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && err != io.EOF {
		return nil, errors.WithKind(errors.Wrap(err, "invalid YAML"), errors.Parse)
	}
	return f, nil
}

// Config converts the file into a reshape.Config, validating enumerated
// values. Defaults are applied later by reshape.
func (f *File) Config() (reshape.Config, error) {
	format, err := sink.ParseFormat(f.Format)
	if err != nil {
		return reshape.Config{}, err
	}
	in, err := tableio.ParseCompression(f.InputCompression)
	if err != nil {
		return reshape.Config{}, errors.WithContext(err, "input_compression")
	}
	out := tableio.Compression("")
	if f.OutputCompression != "" {
		if out, err = tableio.ParseCompression(f.OutputCompression); err != nil {
			return reshape.Config{}, errors.WithContext(err, "output_compression")
		}
	}
	return reshape.Config{
		Input:             f.Input,
		InputCompression:  in,
		Output:            f.Output,
		OutputCompression: out,
		CompressOutput:    f.CompressOutput,
		Format:            format,
		SQLiteTable:       f.SQLiteTable,
		Countries:         f.Countries,
		CountryColumn:     f.CountryColumn,
		IDColumns:         f.IDColumns,
		Parallelism:       f.Parallelism,
	}, nil
}
