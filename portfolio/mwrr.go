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

	"github.com/rs/zerolog/log"

	"github.com/penny-vault/fundperf/dataframe"
)

const (
	daysPerYear = 365.2425

	minRate = -0.9999
	maxRate = 100
)

func toYears(d time.Duration) float64 {
	return d.Hours() / (24 * daysPerYear)
}

// IRR is the annualized rate at which the net present value of the cash flows
// is zero. Investments into the fund are negative and money returned is
// positive. dates must be in order.
func IRR(dates []time.Time, amounts []float64) (float64, error) {
	if len(dates) < 2 || len(dates) != len(amounts) {
		return math.NaN(), ErrNoBracket
	}

	years := make([]float64, len(dates))
	for idx, dt := range dates {
		years[idx] = toYears(dt.Sub(dates[0]))
	}

	npv := func(rate float64) float64 {
		total := 0.0
		for idx, amount := range amounts {
			total += amount / math.Pow(1+rate, years[idx])
		}
		return total
	}

	return fsolve(npv, minRate, maxRate)
}

// MoneyWeightedReturns computes the money weighted return of every fund from
// start through the last valuation date. The value held the day before start
// counts as the opening investment and each external flow as a later one. The
// rate is annualized for periods longer than a year and cumulative otherwise.
func MoneyWeightedReturns(total *dataframe.DataFrame, cash *CashLedger, start time.Time) map[Fund]float64 {
	res := make(map[Fund]float64, len(AllFunds))
	if total.Len() == 0 {
		return res
	}

	flows := AlignFlows(cash.FlowFrame(ExternalFlow), total.Dates).Select(total.ColNames...).FillNaN(0)
	startIdx := total.BeforeIndex(start) + 1
	endIdx := total.Len() - 1
	if startIdx > endIdx {
		return res
	}
	end := total.Dates[endIdx]
	years := toYears(end.Sub(start))

	for _, fund := range AllFunds {
		name := string(fund)
		values := total.Column(name)
		fundFlows := flows.Column(name)
		if values == nil {
			res[fund] = math.NaN()
			continue
		}

		dates := []time.Time{start}
		amounts := []float64{0}
		if startIdx > 0 {
			amounts[0] = -values[startIdx-1]
		}
		for rowIdx := startIdx; rowIdx <= endIdx; rowIdx++ {
			if fundFlows[rowIdx] == 0 {
				continue
			}
			if total.Dates[rowIdx].Equal(start) {
				amounts[0] -= fundFlows[rowIdx]
				continue
			}
			dates = append(dates, total.Dates[rowIdx])
			amounts = append(amounts, -fundFlows[rowIdx])
		}
		dates = append(dates, end)
		amounts = append(amounts, values[endIdx])

		res[fund] = moneyWeighted(fund, dates, amounts, years)
	}

	return res
}

func moneyWeighted(fund Fund, dates []time.Time, amounts []float64, years float64) float64 {
	// without interim flows the rate is the growth of the opening investment
	if len(amounts) == 2 {
		if amounts[0] == 0 {
			return math.NaN()
		}
		growth := amounts[1] / -amounts[0]
		if years > 1 {
			return math.Pow(growth, 1/years) - 1
		}
		return growth - 1
	}

	rate, err := IRR(dates, amounts)
	if err != nil {
		log.Warn().Err(err).Str("Fund", string(fund)).Int("NumFlows", len(amounts)).Msg("money weighted return is undefined")
		return math.NaN()
	}
	if years < 1 {
		return math.Pow(1+rate, years) - 1
	}
	return rate
}
