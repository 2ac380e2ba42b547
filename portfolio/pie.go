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
	"sort"
	"time"
)

// Pie is the composition of a fund's securities on a date. Members map ticker to
// its share of the fund's security market value; negative shares are short.
type Pie struct {
	Fund    Fund
	Date    time.Time
	Members map[string]float64
}

// Tickers returns the members ordered by the absolute size of their share
func (pie *Pie) Tickers() []string {
	tickers := make([]string, 0, len(pie.Members))
	for ticker := range pie.Members {
		tickers = append(tickers, ticker)
	}
	sort.Slice(tickers, func(i, j int) bool {
		a, b := math.Abs(pie.Members[tickers[i]]), math.Abs(pie.Members[tickers[j]])
		if a == b {
			return tickers[i] < tickers[j]
		}
		return a > b
	})
	return tickers
}

// Short reports if the ticker is held short
func (pie *Pie) Short(ticker string) bool {
	return pie.Members[ticker] < 0
}

// Proportions returns the pie of every fund on the last valuation date. Zero
// shares are omitted and funds without security value have an empty pie.
func (mv *MarketValues) Proportions() []*Pie {
	pies := make([]*Pie, 0, len(AllFunds))
	lastIdx := mv.Securities.Len() - 1
	for _, fund := range AllFunds {
		pie := &Pie{
			Fund:    fund,
			Date:    mv.End(),
			Members: make(map[string]float64),
		}
		pies = append(pies, pie)

		if lastIdx < 0 {
			continue
		}

		total := mv.Securities.Column(string(fund))[lastIdx]
		if total == 0 || math.IsNaN(total) {
			continue
		}

		perTicker := mv.PerTicker[fund]
		for colIdx, ticker := range perTicker.ColNames {
			val := perTicker.Vals[colIdx][lastIdx]
			if val == 0 {
				continue
			}
			pie.Members[ticker] = val / total
		}
	}
	return pies
}
