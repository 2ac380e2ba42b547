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
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/penny-vault/fundperf/portfolio"
	"github.com/penny-vault/fundperf/report"
)

var (
	exposureFund  string
	exposureDate  string
	exposureLimit int
)

func init() {
	exposureCmd.Flags().StringVar(&exposureFund, "fund", "", "Fund to decompose: Tactic, Strategic or Global")
	exposureCmd.Flags().StringVar(&exposureDate, "date", "", "Constituents as-of date specified as YYYY-MM-DD")
	exposureCmd.Flags().IntVarP(&exposureLimit, "top", "n", 25, "Number of underlyers to print, 0 prints all")
	rootCmd.AddCommand(exposureCmd)
}

var exposureCmd = &cobra.Command{
	Use:   "exposure",
	Short: "Decompose the ETF positions of a fund into their underlying securities",
	Run: func(cmd *cobra.Command, args []string) {
		pipeline, err := newPipeline()
		if err != nil {
			log.Fatal().Err(err).Msg("invalid configuration")
		}

		cfg := pipeline.Config()
		cfg.Exposure.Enabled = true
		if exposureFund != "" {
			if cfg.Exposure.Fund, err = portfolio.ParseFund(exposureFund); err != nil {
				log.Fatal().Err(err).Str("Fund", exposureFund).Msg("unknown fund")
			}
		}
		if exposureDate != "" {
			if cfg.Exposure.AsOf, err = time.Parse("2006-01-02", exposureDate); err != nil {
				log.Fatal().Err(err).Str("InputStr", exposureDate).Msg("could not parse date - expected format 2006-01-02")
			}
		}

		res, err := runOnce(cmd.Context(), newPipelineWithConfig(cfg))
		if err != nil {
			log.Fatal().Err(err).Msg("run failed")
		}

		report.PrintExposure(os.Stdout, res)
		if res.Exposure != nil {
			report.PrintUnderlyers(os.Stdout, res.Exposure.Underlyers(res.ExposureDate), exposureLimit)
		}
	},
}
