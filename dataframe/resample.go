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

package dataframe

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// WeekEnd returns the Sunday closing the week that contains t
func WeekEnd(t time.Time) time.Time {
	offset := (7 - int(t.Weekday())) % 7
	return t.AddDate(0, 0, offset)
}

// Resample buckets the dataframe into periods of the requested frequency and combines
// the observations of each period with agg. Every period between the first and last
// observation is present in the result, labeled with the period's closing date.
func (df *DataFrame) Resample(frequency Frequency, agg Aggregation) *DataFrame {
	if frequency == Daily {
		return df.Copy()
	}

	if frequency != Weekly {
		log.Panic().Str("Frequency", string(frequency)).Msg("unknown frequency provided to dataframe resample function")
	}

	if df.Len() == 0 {
		return New(nil, df.ColNames, 0)
	}

	first := WeekEnd(df.Start())
	last := WeekEnd(df.End())

	dates := make([]time.Time, 0)
	for dt := first; !dt.After(last); dt = dt.AddDate(0, 0, 7) {
		dates = append(dates, dt)
	}

	fill := math.NaN()
	if agg == AggSum {
		fill = 0
	}
	res := New(dates, df.ColNames, fill)

	period := 0
	for rowIdx, dt := range df.Dates {
		for dates[period].Before(dt) {
			period++
		}
		for colIdx, col := range df.Vals {
			val := col[rowIdx]
			if math.IsNaN(val) {
				continue
			}
			switch agg {
			case AggLast:
				res.Vals[colIdx][period] = val
			case AggSum:
				res.Vals[colIdx][period] += val
			}
		}
	}

	return res
}
