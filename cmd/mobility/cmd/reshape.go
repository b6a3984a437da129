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
)

func newReshapeCmd() *cobra.Command {
	s := &settings{}
	cmd := &cobra.Command{
		Use:   "reshape",
		Short: "Reshape a report in memory",
		Long: `Loads the whole report, optionally keeps the rows of each listed country,
renames the six measurement columns to short activity names and writes one
row per activity.

Example:
  mobility reshape -i Global_Mobility_Report.csv -c US -o US_mobility_long.zip`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := s.resolve(cmd)
			if err != nil {
				return err
			}
			return reshape.Run(cmd.Context(), cfg)
		},
	}
	s.bind(cmd)
	return cmd
}
