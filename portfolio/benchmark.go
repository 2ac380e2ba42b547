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

package portfolio

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/penny-vault/fundperf/dataframe"
)

// Benchmark is a fixed weight blend of assets rebalanced every period
type Benchmark struct {
	Name    string
	Weights map[string]float64
}

// DefaultBenchmark is 60% Canadian bonds and 40% equities split 35% Canada, 35%
// US, 20% developed international and 10% emerging markets
func DefaultBenchmark() *Benchmark {
	return &Benchmark{
		Name: "Benchmark",
		Weights: map[string]float64{
			"XBB CN Equity": 0.6,
			"XIU CN Equity": 0.4 * 0.35,
			"XUS CN Equity": 0.4 * 0.35,
			"XEF CN Equity": 0.4 * 0.2,
			"XEM CN Equity": 0.4 * 0.1,
		},
	}
}

// Tickers returns the benchmark assets in sorted order
func (bench *Benchmark) Tickers() []string {
	tickers := make([]string, 0, len(bench.Weights))
	for ticker := range bench.Weights {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}

// TotalWeight sums the weights of the blend
func (bench *Benchmark) TotalWeight() float64 {
	total := 0.0
	for _, weight := range bench.Weights {
		total += weight
	}
	return total
}

// AssetWeeklyReturns computes the weekly total return of every asset from split
// adjusted prices and dividends paid: price change plus the week's dividends over
// the week's closing price.
func AssetWeeklyReturns(adjPrices, dividends *dataframe.DataFrame) *dataframe.DataFrame {
	weeklyPrices := adjPrices.Resample(dataframe.Weekly, dataframe.AggLast).FFill()
	returns := weeklyPrices.PctChange().FillNaN(0)

	if dividends == nil || dividends.Len() == 0 {
		return returns
	}

	weeklyDivs := dividends.
		Trim(adjPrices.Start(), adjPrices.End()).
		Resample(dataframe.Weekly, dataframe.AggSum).
		Reindex(weeklyPrices.Dates).
		Select(weeklyPrices.ColNames...).
		FillNaN(0)

	for colIdx, col := range returns.Vals {
		for rowIdx := range col {
			div := weeklyDivs.Vals[colIdx][rowIdx]
			price := weeklyPrices.Vals[colIdx][rowIdx]
			if div == 0 || math.IsNaN(price) || price == 0 {
				continue
			}
			col[rowIdx] += div / price
		}
	}

	return returns
}

// WeeklyReturns blends asset returns into a single column named after the benchmark
func (bench *Benchmark) WeeklyReturns(assetReturns *dataframe.DataFrame) (*dataframe.DataFrame, error) {
	res := dataframe.New(assetReturns.Dates, []string{bench.Name}, 0)
	for _, ticker := range bench.Tickers() {
		col := assetReturns.Column(ticker)
		if col == nil {
			log.Error().Str("Benchmark", bench.Name).Str("Ticker", ticker).Msg("benchmark asset missing from prices")
			return nil, fmt.Errorf("%w: %s", ErrBenchmarkAsset, ticker)
		}
		weight := bench.Weights[ticker]
		for rowIdx, val := range col {
			res.Vals[0][rowIdx] += weight * val
		}
	}
	return res, nil
}
