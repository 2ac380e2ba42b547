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
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/penny-vault/fundperf/report"
)

var (
	constituentsDate  string
	constituentsLimit int
)

func init() {
	constituentsCmd.Flags().StringVar(&constituentsDate, "date", "", "As-of date specified as YYYY-MM-DD; blank fetches the latest list")
	constituentsCmd.Flags().IntVarP(&constituentsLimit, "top", "n", 25, "Number of constituents to print, 0 prints all")
	rootCmd.AddCommand(constituentsCmd)
}

var constituentsCmd = &cobra.Command{
	Use:   "constituents ETF",
	Short: "Fetch and print the constituents of an ETF",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var asOf time.Time
		if constituentsDate != "" {
			var err error
			if asOf, err = time.Parse("2006-01-02", constituentsDate); err != nil {
				log.Fatal().Err(err).Str("InputStr", constituentsDate).Msg("could not parse date - expected format 2006-01-02")
			}
		}

		etf := strings.ToUpper(args[0])
		constituents, err := newHoldingsSource(newDataClient()).Fetch(cmd.Context(), etf, asOf)
		if err != nil {
			log.Fatal().Err(err).Str("ETF", etf).Msg("could not fetch constituents")
		}

		report.PrintConstituents(os.Stdout, constituents, constituentsLimit)
	},
}
