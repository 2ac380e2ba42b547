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

// Returns are the flow adjusted period returns of every fund
type Returns struct {
	Start            time.Time
	Daily            *dataframe.DataFrame
	Cumulative       *dataframe.DataFrame
	Weekly           *dataframe.DataFrame
	WeeklyCumulative *dataframe.DataFrame
}

// NewReturns computes daily and weekly returns of the total market value with the
// external flows removed. Cumulative returns start at start.
func NewReturns(total *dataframe.DataFrame, cash *CashLedger, start time.Time) *Returns {
	flows := AlignFlows(cash.FlowFrame(ExternalFlow), total.Dates).Select(total.ColNames...).FillNaN(0)

	daily := PeriodReturns(total, flows)
	weeklyValues := total.Resample(dataframe.Weekly, dataframe.AggLast).FFill()
	weeklyFlows := flows.Resample(dataframe.Weekly, dataframe.AggSum)
	weekly := PeriodReturns(weeklyValues, weeklyFlows)

	return &Returns{
		Start:            start,
		Daily:            daily,
		Cumulative:       CumulativeReturns(daily, start),
		Weekly:           weekly,
		WeeklyCumulative: CumulativeReturns(weekly, start),
	}
}

// PeriodReturns computes v[t]/v[t-1] - 1 for every column of values. On periods
// where flows is non-zero the return is (v[t] - cf[t] - v[t-1]) / v[t] instead.
// The first period and any undefined division are 0. values and flows must share
// dates and columns.
func PeriodReturns(values, flows *dataframe.DataFrame) *dataframe.DataFrame {
	res := dataframe.New(values.Dates, values.ColNames, 0)
	for colIdx, colName := range values.ColNames {
		vals := values.Vals[colIdx]
		cf := flows.Column(colName)
		for rowIdx := 1; rowIdx < len(vals); rowIdx++ {
			flow := 0.0
			if cf != nil {
				flow = cf[rowIdx]
			}
			res.Vals[colIdx][rowIdx] = periodReturn(vals[rowIdx-1], vals[rowIdx], flow)
		}
	}
	return res
}

func periodReturn(prev, cur, flow float64) float64 {
	var ret float64
	if flow != 0 {
		ret = (cur - flow - prev) / cur
	} else {
		ret = cur/prev - 1
	}
	if math.IsNaN(ret) || math.IsInf(ret, 0) {
		return 0
	}
	return ret
}

// CumulativeReturns compounds returns from start (inclusive): prod(1 + r) - 1
func CumulativeReturns(returns *dataframe.DataFrame, start time.Time) *dataframe.DataFrame {
	trimmed := returns.Trim(start, returns.End())
	res := dataframe.New(trimmed.Dates, trimmed.ColNames, 0)
	for colIdx, col := range trimmed.Vals {
		growth := 1.0
		for rowIdx, val := range col {
			growth *= 1 + val
			res.Vals[colIdx][rowIdx] = growth - 1
		}
	}
	return res
}

// Growth converts cumulative returns into the value of an initial investment. A
// seed row the day before the first date holds the initial amount.
func Growth(cumulative *dataframe.DataFrame, initial float64) *dataframe.DataFrame {
	if cumulative.Len() == 0 {
		return dataframe.New(nil, cumulative.ColNames, 0)
	}

	dates := append([]time.Time{cumulative.Start().AddDate(0, 0, -1)}, cumulative.Dates...)
	res := dataframe.New(dates, cumulative.ColNames, initial)
	for colIdx, col := range cumulative.Vals {
		for rowIdx, val := range col {
			res.Vals[colIdx][rowIdx+1] = initial * (1 + val)
		}
	}
	return res
}
