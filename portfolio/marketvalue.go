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
	"math"
	"time"

	"github.com/penny-vault/fundperf/dataframe"
)

// MarketValues holds the valuation of every fund on the price calendar
type MarketValues struct {
	// PerTicker is quantity × price for each ticker held by a fund
	PerTicker map[Fund]*dataframe.DataFrame

	// Securities sums PerTicker per fund; one column per fund
	Securities *dataframe.DataFrame

	// Cash is the cash balance as of each calendar date
	Cash *dataframe.DataFrame

	// Total is Securities + Cash
	Total *dataframe.DataFrame
}

// NewMarketValues values holdings with prices. A ticker without a price on a date
// contributes nothing.
func NewMarketValues(priceDf *dataframe.DataFrame, holdings *Holdings, cash *CashLedger) *MarketValues {
	calendar := holdings.Calendar
	aligned := priceDf.Select(holdings.Tickers...).Reindex(calendar)

	mv := &MarketValues{
		PerTicker:  make(map[Fund]*dataframe.DataFrame, len(AllFunds)),
		Securities: dataframe.New(calendar, nil, 0),
	}

	for _, fund := range AllFunds {
		perTicker := holdings.Quantities[fund].Mul(aligned).Apply(func(val float64) float64 {
			if math.IsNaN(val) {
				return 0
			}
			return val
		})
		mv.PerTicker[fund] = perTicker
		mv.Securities.Insert(string(fund), perTicker.SumColumns(string(fund)).Vals[0])
	}

	mv.Cash = cash.Balances().ReindexAsOf(calendar, 0)
	mv.Total = mv.Securities.Add(mv.Cash)

	return mv
}

// Start returns the first valuation date
func (mv *MarketValues) Start() time.Time {
	return mv.Total.Start()
}

// End returns the last valuation date
func (mv *MarketValues) End() time.Time {
	return mv.Total.End()
}
