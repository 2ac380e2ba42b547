// Copyright 2021-2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/penny-vault/fundperf/analysis"
	"github.com/penny-vault/fundperf/report"
)

var runQuiet bool

func init() {
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Only write files; do not print tables")
	rootCmd.AddCommand(runCmd)
}

// runOnce computes every output and writes the report
func runOnce(ctx context.Context, pipeline *analysis.Pipeline) (*analysis.Result, error) {
	res, err := pipeline.Run(ctx)
	if err != nil {
		return nil, err
	}

	writer, err := newReportWriter()
	if err != nil {
		return nil, err
	}
	if err := writer.WriteResult(ctx, res); err != nil {
		return nil, err
	}

	log.Info().Str("RunID", res.RunID.String()).Int("Files", len(writer.Written())).Msg("run complete")
	return res, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute returns, metrics and snapshots and write the report",
	Run: func(cmd *cobra.Command, args []string) {
		pipeline, err := newPipeline()
		if err != nil {
			log.Fatal().Err(err).Msg("invalid configuration")
		}

		res, err := runOnce(cmd.Context(), pipeline)
		if err != nil {
			log.Fatal().Err(err).Msg("run failed")
		}

		if runQuiet {
			return
		}
		report.PrintLatest(os.Stdout, res.Latest)
		report.PrintProportions(os.Stdout, res.Proportions)
		for _, snap := range res.Snapshots {
			report.PrintSnapshot(os.Stdout, snap)
		}
		if res.Exposure != nil {
			report.PrintExposure(os.Stdout, res)
		}
	},
}
