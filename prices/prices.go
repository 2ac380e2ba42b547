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

// Package prices turns the raw workbook sheets into date indexed price and
// dividend series.
package prices

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/penny-vault/fundperf/dataframe"
	"github.com/penny-vault/fundperf/workbook"
)

var (
	ErrNoPriceColumns = errors.New("price sheet has no (date, price) column pairs")
)

type observation struct {
	date  time.Time
	price float64
}

// BuildPrices converts a sheet of (date, price) column pairs into a dataframe with
// one column per asset. The asset name is the header of the price column. Rows
// without a date are ignored, the first observation of a duplicated (date, asset)
// wins and gaps are forward filled.
func BuildPrices(sheet *workbook.Table) (*dataframe.DataFrame, error) {
	blocks := sheet.Blocks(2, 0)
	if len(blocks) == 0 {
		return nil, ErrNoPriceColumns
	}

	assets := make([]string, 0, len(blocks))
	series := make(map[string][]observation, len(blocks))
	allDates := make([][]time.Time, 0, len(blocks))

	for _, block := range blocks {
		asset := block.Header[1]
		if asset == "" {
			log.Warn().Str("Sheet", sheet.Name).Str("DateHeader", block.Header[0]).Msg("price column has no header; skipping")
			continue
		}

		seen := make(map[time.Time]bool)
		if _, ok := series[asset]; !ok {
			assets = append(assets, asset)
		} else {
			for _, obs := range series[asset] {
				seen[obs.date] = true
			}
		}

		dates := make([]time.Time, 0, len(block.Rows))
		for rowIdx := range block.Rows {
			dt, ok := block.Cell(rowIdx, 0).Date()
			if !ok || seen[dt] {
				continue
			}
			seen[dt] = true

			price, ok := block.Cell(rowIdx, 1).Float()
			if !ok {
				price = math.NaN()
			}
			series[asset] = append(series[asset], observation{date: dt, price: price})
			dates = append(dates, dt)
		}
		allDates = append(allDates, dates)
	}

	df := dataframe.New(dataframe.UnionDates(allDates...), assets, math.NaN())
	for colIdx, asset := range df.ColNames {
		for _, obs := range series[asset] {
			df.Vals[colIdx][df.RowIndex(obs.date)] = obs.price
		}
	}

	log.Debug().Int("Assets", df.ColCount()).Int("Dates", df.Len()).Time("Start", df.Start()).Time("End", df.End()).Msg("built price series")
	return df.FFill(), nil
}

// MergeNAV outer joins fund NAV series onto the sheet prices, keeps only dates up to
// the last sheet date and forward fills the result. An empty NAV frame returns the
// prices unchanged.
func MergeNAV(prices, nav *dataframe.DataFrame) *dataframe.DataFrame {
	if nav == nil || nav.Len() == 0 || nav.ColCount() == 0 {
		return prices
	}

	merged := prices.Merge(nav)
	merged = merged.Trim(merged.Start(), prices.End())
	log.Debug().Strs("Funds", nav.ColNames).Int("Dates", merged.Len()).Msg("merged fund NAV into prices")
	return merged.FFill()
}
