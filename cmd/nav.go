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
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/penny-vault/fundperf/data"
)

var navTail int

func init() {
	navCmd.Flags().IntVar(&navTail, "tail", 10, "Number of most recent rows to print, 0 prints all")
	rootCmd.AddCommand(navCmd)
}

var navCmd = &cobra.Command{
	Use:   "nav [ticker...]",
	Short: "Fetch the NAV history of the configured funds",
	Run: func(cmd *cobra.Command, args []string) {
		funds := navFunds()
		if len(args) > 0 {
			wanted := make(map[string]bool, len(args))
			for _, arg := range args {
				wanted[strings.ToUpper(arg)] = true
			}
			selected := make([]data.NAVFund, 0, len(args))
			for _, fund := range funds {
				if wanted[strings.ToUpper(fund.Ticker)] {
					selected = append(selected, fund)
				}
			}
			funds = selected
		}
		if len(funds) == 0 {
			log.Fatal().Strs("Tickers", args).Msg("no configured fund matches")
		}

		nav := newNAVSource(newDataClient()).FetchAll(cmd.Context(), funds)
		if navTail > 0 && nav.Len() > navTail {
			nav = nav.Trim(nav.Dates[nav.Len()-navTail], nav.End())
		}
		fmt.Println(nav.Table())
	},
}
