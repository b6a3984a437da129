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

package cmd

import (
	"github.com/mobility-data/mobility/pkg/mobility/reshape"
	"github.com/spf13/cobra"

	_ "github.com/apache/beam/sdks/v2/go/pkg/beam/io/filesystem/gcs"
	_ "github.com/apache/beam/sdks/v2/go/pkg/beam/runners/direct"
	_ "github.com/apache/beam/sdks/v2/go/pkg/beam/runners/prism"
)

func newPipelineCmd() *cobra.Command {
	s := &settings{}
	var runner string
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Reshape reports matched by a glob with an Apache Beam pipeline",
		Long: `Runs the reshape as a Beam pipeline. --input may be a glob matching many
report files; their rows are written in file name order.

Example:
  mobility pipeline -i 'gs://bucket/reports/*.csv' -o long.csv --runner prism`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := s.resolve(cmd)
			if err != nil {
				return err
			}
			return reshape.RunPipeline(cmd.Context(), runner, cfg)
		},
	}
	s.bind(cmd)
	cmd.Flags().StringVar(&runner, "runner", "direct", "Beam runner: direct or prism")
	return cmd
}
