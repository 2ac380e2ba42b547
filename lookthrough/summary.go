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

package lookthrough

import (
	"math"
	"sort"
	"time"
)

// DurationBucket is the fixed income exposure whose duration falls in (Low, High]
type DurationBucket struct {
	Label    string  `json:"label"`
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
	Exposure float64 `json:"exposure"`
}

// FixedIncomeSummary describes the fixed income exposure on a date. Duration and
// Coupon are NaN when no security reports them.
type FixedIncomeSummary struct {
	Date     time.Time         `json:"date"`
	Total    float64           `json:"total"`
	Duration float64           `json:"duration"`
	Coupon   float64           `json:"coupon"`
	Buckets  []*DurationBucket `json:"buckets"`
}

// UnderlyerRow is one security in the underlyer table
type UnderlyerRow struct {
	Underlying string  `json:"underlying"`
	Exposure   float64 `json:"exposure"`
	Pct        float64 `json:"pct"`
	Meta       *Meta   `json:"meta"`
}

// Summary are the headline look-through figures on a date
type Summary struct {
	Date               time.Time `json:"date"`
	TotalValue         float64   `json:"total_value"`
	DistinctUnderlyers int       `json:"distinct_underlyers"`
	ETFsHeld           int       `json:"etfs_held"`
}

var (
	durationEdges  = []float64{-0.01, 1, 3, 5, 7, 10, 20, 100}
	durationLabels = []string{"0-1", "1-3", "3-5", "5-7", "7-10", "10-20", "20+"}
)

func newDurationBuckets() []*DurationBucket {
	buckets := make([]*DurationBucket, len(durationLabels))
	for idx, label := range durationLabels {
		buckets[idx] = &DurationBucket{
			Label: label,
			Low:   durationEdges[idx],
			High:  durationEdges[idx+1],
		}
	}
	return buckets
}

func bucketFor(buckets []*DurationBucket, duration float64) *DurationBucket {
	for _, bucket := range buckets {
		if duration > bucket.Low && duration <= bucket.High {
			return bucket
		}
	}
	return nil
}

// FixedIncome summarizes the exposure to securities with a duration or coupon on
// the exposure date nearest to date. Averages are weighted by exposure and divided
// by max(total, 1).
func (exposure *Exposure) FixedIncome(date time.Time) *FixedIncomeSummary {
	summary := &FixedIncomeSummary{
		Duration: math.NaN(),
		Coupon:   math.NaN(),
		Buckets:  newDurationBuckets(),
	}

	rowIdx := exposure.Values.NearestIndex(date)
	if rowIdx == -1 {
		return summary
	}
	summary.Date = exposure.Values.Dates[rowIdx]

	var durSum, couponSum float64
	var hasDuration, hasCoupon bool
	for colIdx, ticker := range exposure.Values.ColNames {
		meta := exposure.Meta[ticker]
		val := exposure.Values.Vals[colIdx][rowIdx]
		if !meta.IsFixedIncome() || val == 0 || math.IsNaN(val) {
			continue
		}
		summary.Total += val
		if !math.IsNaN(meta.Duration) {
			hasDuration = true
			durSum += val * meta.Duration
			if bucket := bucketFor(summary.Buckets, meta.Duration); bucket != nil {
				bucket.Exposure += val
			}
		}
		if !math.IsNaN(meta.Coupon) {
			hasCoupon = true
			couponSum += val * meta.Coupon
		}
	}

	denom := math.Max(summary.Total, 1)
	if hasDuration {
		summary.Duration = durSum / denom
	}
	if hasCoupon {
		summary.Coupon = couponSum / denom
	}
	return summary
}

// Underlyers lists the securities exposed on the date nearest to date, largest
// first, with their share of the total
func (exposure *Exposure) Underlyers(date time.Time) []*UnderlyerRow {
	rowIdx := exposure.Values.NearestIndex(date)
	if rowIdx == -1 {
		return nil
	}

	rows := make([]*UnderlyerRow, 0, exposure.Values.ColCount())
	total := 0.0
	for colIdx, ticker := range exposure.Values.ColNames {
		val := exposure.Values.Vals[colIdx][rowIdx]
		if val == 0 || math.IsNaN(val) {
			continue
		}
		total += val
		rows = append(rows, &UnderlyerRow{
			Underlying: ticker,
			Exposure:   val,
			Meta:       exposure.Meta[ticker],
		})
	}

	for _, row := range rows {
		row.Pct = row.Exposure / total
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Exposure > rows[j].Exposure
	})
	return rows
}

// Summary returns the headline figures on the date nearest to date
func (exposure *Exposure) Summary(date time.Time) *Summary {
	summary := &Summary{
		DistinctUnderlyers: exposure.Values.ColCount(),
		ETFsHeld:           exposure.Held,
	}
	rowIdx := exposure.Values.NearestIndex(date)
	if rowIdx == -1 {
		return summary
	}
	summary.Date = exposure.Values.Dates[rowIdx]
	summary.TotalValue = exposure.Total().Value("Total", summary.Date)
	return summary
}
