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

package report

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/penny-vault/fundperf/analysis"
	"github.com/penny-vault/fundperf/dataframe"
	"github.com/penny-vault/fundperf/lookthrough"
	"github.com/penny-vault/fundperf/portfolio"
)

// Number is a float that encodes NaN and infinities as JSON null
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// Summary is the content of summary.json
type Summary struct {
	RunID       string             `json:"run_id"`
	Generated   time.Time          `json:"generated"`
	Start       string             `json:"start"`
	End         string             `json:"end"`
	Funds       []*FundSummary     `json:"funds"`
	Benchmark   *BenchmarkSummary  `json:"benchmark"`
	Metrics     []*MetricSummary   `json:"metrics"`
	Snapshots   []*SnapshotSummary `json:"snapshots"`
	Proportions []*PieSummary      `json:"proportions"`
	Exposure    *ExposureSummary   `json:"exposure,omitempty"`
}

type FundSummary struct {
	Fund                   string `json:"fund"`
	MarketValue            Number `json:"market_value"`
	Securities             Number `json:"securities"`
	Cash                   Number `json:"cash"`
	CumulativeReturn       Number `json:"cumulative_return"`
	WeeklyCumulativeReturn Number `json:"weekly_cumulative_return"`
	MoneyWeightedReturn    Number `json:"money_weighted_return"`
	Growth                 Number `json:"growth"`
}

type BenchmarkSummary struct {
	Name             string            `json:"name"`
	Weights          map[string]Number `json:"weights"`
	CumulativeReturn Number            `json:"cumulative_return"`
	Growth           Number            `json:"growth"`
}

type Target struct {
	VAM Number `json:"vam"`
	RI  Number `json:"ri"`
	RA  Number `json:"ra"`
}

type MetricSummary struct {
	Fund   string `json:"fund"`
	Window int    `json:"window"`
	Date   string `json:"date"`
	VAM    Number `json:"vam"`
	RA     Number `json:"ra"`
	RI     Number `json:"ri"`
	Target Target `json:"target"`
}

type SnapshotSummary struct {
	Label     string `json:"label"`
	Date      string `json:"date"`
	Positions int    `json:"positions"`
}

type PieSummary struct {
	Fund    string            `json:"fund"`
	Date    string            `json:"date"`
	Members map[string]Number `json:"members"`
}

type BucketSummary struct {
	Label    string `json:"label"`
	Exposure Number `json:"exposure"`
}

type FixedIncomeSummary struct {
	Total    Number           `json:"total"`
	Duration Number           `json:"duration"`
	Coupon   Number           `json:"coupon"`
	Buckets  []*BucketSummary `json:"buckets"`
}

type ExposureSummary struct {
	Date               string              `json:"date"`
	TotalValue         Number              `json:"total_value"`
	DistinctUnderlyers int                 `json:"distinct_underlyers"`
	ETFsHeld           int                 `json:"etfs_held"`
	FixedIncome        *FixedIncomeSummary `json:"fixed_income"`
}

func lastValue(df *dataframe.DataFrame, col string) Number {
	if df == nil || df.Len() == 0 {
		return Number(math.NaN())
	}
	vals := df.Column(col)
	if vals == nil {
		return Number(math.NaN())
	}
	return Number(vals[len(vals)-1])
}

func moneyWeighted(rates map[portfolio.Fund]float64, fund portfolio.Fund) Number {
	rate, ok := rates[fund]
	if !ok {
		return Number(math.NaN())
	}
	return Number(rate)
}

// NewSummary condenses a result into its headline figures
func NewSummary(res *analysis.Result) *Summary {
	summary := &Summary{
		RunID:     res.RunID.String(),
		Generated: res.Generated,
		Start:     res.Start.Format(dateLayout),
		End:       res.End.Format(dateLayout),
	}

	for _, fund := range portfolio.AllFunds {
		name := string(fund)
		summary.Funds = append(summary.Funds, &FundSummary{
			Fund:                   name,
			MarketValue:            lastValue(res.MarketValues.Total, name),
			Securities:             lastValue(res.MarketValues.Securities, name),
			Cash:                   lastValue(res.MarketValues.Cash, name),
			CumulativeReturn:       lastValue(res.Returns.Cumulative, name),
			WeeklyCumulativeReturn: lastValue(res.Returns.WeeklyCumulative, name),
			MoneyWeightedReturn:    moneyWeighted(res.MoneyWeighted, fund),
			Growth:                 lastValue(res.Growth, name),
		})
	}

	if res.Benchmark != nil {
		bench := &BenchmarkSummary{
			Name:             res.Benchmark.Name,
			Weights:          make(map[string]Number, len(res.Benchmark.Weights)),
			CumulativeReturn: lastValue(res.BenchmarkCumulative, res.Benchmark.Name),
			Growth:           lastValue(res.BenchmarkGrowth, res.Benchmark.Name),
		}
		for ticker, weight := range res.Benchmark.Weights {
			bench.Weights[ticker] = Number(weight)
		}
		summary.Benchmark = bench
	}

	for _, latest := range res.Latest {
		summary.Metrics = append(summary.Metrics, &MetricSummary{
			Fund:   string(latest.Fund),
			Window: latest.Window,
			Date:   latest.Date.Format(dateLayout),
			VAM:    Number(latest.VAM),
			RA:     Number(latest.RA),
			RI:     Number(latest.RI),
			Target: Target{
				VAM: Number(latest.Target.VAM),
				RI:  Number(latest.Target.RI),
				RA:  Number(latest.Target.RA),
			},
		})
	}

	for _, snap := range res.Snapshots {
		summary.Snapshots = append(summary.Snapshots, &SnapshotSummary{
			Label:     snap.Label,
			Date:      snap.Date.Format(dateLayout),
			Positions: len(snap.Rows),
		})
	}

	for _, pie := range res.Proportions {
		members := make(map[string]Number, len(pie.Members))
		for ticker, share := range pie.Members {
			members[ticker] = Number(share)
		}
		summary.Proportions = append(summary.Proportions, &PieSummary{
			Fund:    string(pie.Fund),
			Date:    pie.Date.Format(dateLayout),
			Members: members,
		})
	}

	if res.Exposure != nil {
		summary.Exposure = newExposureSummary(res.Exposure, res.ExposureDate)
	}

	return summary
}

func newExposureSummary(exposure *lookthrough.Exposure, date time.Time) *ExposureSummary {
	headline := exposure.Summary(date)
	fi := exposure.FixedIncome(date)

	buckets := make([]*BucketSummary, len(fi.Buckets))
	for idx, bucket := range fi.Buckets {
		buckets[idx] = &BucketSummary{Label: bucket.Label, Exposure: Number(bucket.Exposure)}
	}

	return &ExposureSummary{
		Date:               headline.Date.Format(dateLayout),
		TotalValue:         Number(headline.TotalValue),
		DistinctUnderlyers: headline.DistinctUnderlyers,
		ETFsHeld:           headline.ETFsHeld,
		FixedIncome: &FixedIncomeSummary{
			Total:    Number(fi.Total),
			Duration: Number(fi.Duration),
			Coupon:   Number(fi.Coupon),
			Buckets:  buckets,
		},
	}
}

// sortedKeys returns the keys of m in order
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
