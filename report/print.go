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
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/olekukonko/tablewriter"

	"github.com/penny-vault/fundperf/analysis"
	"github.com/penny-vault/fundperf/lookthrough"
	"github.com/penny-vault/fundperf/portfolio"
)

func formatFloat(val float64, decimals int) string {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return "-"
	}
	return fmt.Sprintf("%.*f", decimals, val)
}

func formatPct(val float64) string {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", val*100)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoFormatHeaders(false)
	return table
}

// PrintLatest renders the most recent metrics next to their targets
func PrintLatest(w io.Writer, latest []*portfolio.LatestMetric) {
	table := newTable(w, "Fund", "Window", "Date", "VAM", "RA", "RI", "Target VAM", "Target RA", "Target RI")
	for _, metric := range latest {
		table.Append([]string{
			string(metric.Fund),
			fmt.Sprintf("%dw", metric.Window),
			metric.Date.Format(dateLayout),
			formatFloat(metric.VAM, 1),
			formatFloat(metric.RA, 1),
			formatFloat(metric.RI, 2),
			formatFloat(metric.Target.VAM, 1),
			formatFloat(metric.Target.RA, 1),
			formatFloat(metric.Target.RI, 2),
		})
	}
	table.Render()
}

// PrintSnapshot renders the positions of a snapshot; tickers flat in both funds are skipped
func PrintSnapshot(w io.Writer, snap *portfolio.Snapshot) {
	fmt.Fprintf(w, "%s (%s)\n", snap.Label, snap.Date.Format(dateLayout))
	table := newTable(w, "Ticker", string(portfolio.Tactic), string(portfolio.Strategic), "Price")
	for _, row := range snap.Rows {
		if row.Tactic == 0 && row.Strategic == 0 {
			continue
		}
		table.Append([]string{
			row.Ticker,
			formatFloat(row.Tactic, 2),
			formatFloat(row.Strategic, 2),
			formatFloat(row.Price, 2),
		})
	}
	table.Render()
}

// PrintProportions renders the composition of each fund
func PrintProportions(w io.Writer, pies []*portfolio.Pie) {
	table := newTable(w, "Fund", "Date", "Ticker", "Share", "Short")
	for _, pie := range pies {
		for _, ticker := range pie.Tickers() {
			short := ""
			if pie.Short(ticker) {
				short = "yes"
			}
			table.Append([]string{
				string(pie.Fund),
				pie.Date.Format(dateLayout),
				ticker,
				formatPct(pie.Members[ticker]),
				short,
			})
		}
	}
	table.Render()
}

// PrintBenchmark renders the benchmark blend
func PrintBenchmark(w io.Writer, bench *portfolio.Benchmark) {
	table := newTable(w, "Asset", "Weight")
	for _, ticker := range sortedKeys(bench.Weights) {
		table.Append([]string{ticker, formatPct(bench.Weights[ticker])})
	}
	table.SetFooter([]string{bench.Name, formatPct(bench.TotalWeight())})
	table.Render()
}

// PrintUnderlyers renders the largest underlying securities; limit <= 0 prints all
func PrintUnderlyers(w io.Writer, rows []*lookthrough.UnderlyerRow, limit int) {
	table := newTable(w, "Underlying", "Name", "ETF", "Sector", "Exposure", "Pct")
	for idx, row := range rows {
		if limit > 0 && idx >= limit {
			break
		}
		var name, etf string
		if row.Meta != nil {
			name = row.Meta.Name
			etf = row.Meta.ETF
		}
		table.Append([]string{
			row.Underlying,
			name,
			etf,
			row.Meta.Get(lookthrough.Sector),
			formatFloat(row.Exposure, 2),
			formatPct(row.Pct),
		})
	}
	table.Render()
}

// PrintConstituents renders an ETF constituent list largest weight first; limit <= 0 prints all
func PrintConstituents(w io.Writer, constituents []*lookthrough.Constituent, limit int) {
	sorted := make([]*lookthrough.Constituent, len(constituents))
	copy(sorted, constituents)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Weight, sorted[j].Weight
		if math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		return a > b
	})

	table := newTable(w, "Ticker", "Name", "Sector", "Asset Class", "Weight (%)", "Market Value", "Duration")
	for idx, c := range sorted {
		if limit > 0 && idx >= limit {
			break
		}
		table.Append([]string{
			c.Ticker,
			c.Name,
			c.Sector,
			c.AssetClass,
			formatFloat(c.Weight, 2),
			formatFloat(c.MarketValue, 2),
			formatFloat(c.Duration, 2),
		})
	}
	if len(constituents) > 0 {
		table.SetFooter([]string{constituents[0].ETF, constituents[0].EffectiveDate.Format(dateLayout), "", "",
			"", fmt.Sprintf("%d rows", len(constituents)), ""})
	}
	table.Render()
}

// PrintExposure renders the headline look-through figures and the exposure by
// every dimension on date
func PrintExposure(w io.Writer, res *analysis.Result) {
	exposure := res.Exposure
	if exposure == nil {
		fmt.Fprintln(w, "no look-through exposure")
		return
	}

	headline := exposure.Summary(res.ExposureDate)
	fmt.Fprintf(w, "Look-through on %s: %s across %d underlyers in %d ETFs\n",
		headline.Date.Format(dateLayout), formatFloat(headline.TotalValue, 2),
		headline.DistinctUnderlyers, headline.ETFsHeld)

	for _, dim := range lookthrough.Dimensions {
		agg := exposure.AggregateDimension(dim)
		rowIdx := agg.NearestIndex(res.ExposureDate)
		if rowIdx == -1 {
			continue
		}
		total := 0.0
		for _, col := range agg.Vals {
			total += col[rowIdx]
		}

		table := newTable(w, string(dim), "Exposure", "Pct")
		for colIdx, group := range agg.ColNames {
			val := agg.Vals[colIdx][rowIdx]
			if val == 0 {
				continue
			}
			table.Append([]string{group, formatFloat(val, 2), formatPct(val / total)})
		}
		table.Render()
	}

	fi := exposure.FixedIncome(res.ExposureDate)
	table := newTable(w, "Duration", "Exposure")
	for _, bucket := range fi.Buckets {
		table.Append([]string{bucket.Label, formatFloat(bucket.Exposure, 2)})
	}
	table.SetFooter([]string{
		fmt.Sprintf("dur %s / cpn %s", formatFloat(fi.Duration, 2), formatFloat(fi.Coupon, 2)),
		formatFloat(fi.Total, 2),
	})
	table.Render()
}
