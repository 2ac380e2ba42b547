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

// Package report writes analysis results to CSV, JSON and xlsx files and renders
// them as terminal tables.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-json"
	dfgo "github.com/rocketlaunchr/dataframe-go"
	"github.com/rs/zerolog/log"

	"github.com/penny-vault/fundperf/analysis"
	"github.com/penny-vault/fundperf/dataframe"
	"github.com/penny-vault/fundperf/lookthrough"
	"github.com/penny-vault/fundperf/portfolio"
)

// DefaultWorkbook is the name of the xlsx report written next to the CSV files
const DefaultWorkbook = "report.xlsx"

// Writer writes output files into a directory
type Writer struct {
	dir      string
	workbook string
	written  []string
}

type WriterOption func(*Writer)

// WithWorkbook sets the file name of the xlsx report; an empty name disables it
func WithWorkbook(name string) WriterOption {
	return func(writer *Writer) {
		writer.workbook = name
	}
}

// NewWriter creates dir if needed and returns a writer for it
func NewWriter(dir string, opts ...WriterOption) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Error().Err(err).Str("Dir", dir).Msg("could not create output directory")
		return nil, err
	}
	writer := &Writer{
		dir:      dir,
		workbook: DefaultWorkbook,
	}
	for _, opt := range opts {
		opt(writer)
	}
	return writer, nil
}

// Written returns the paths of every file written so far
func (writer *Writer) Written() []string {
	return writer.written
}

// WriteResult writes every output of a run
func (writer *Writer) WriteResult(ctx context.Context, res *analysis.Result) error {
	subLog := log.With().Str("RunID", res.RunID.String()).Str("Dir", writer.dir).Logger()

	steps := []func(context.Context, *analysis.Result) error{
		writer.writeReturns,
		writer.writeValues,
		writer.writeCash,
		writer.writeSnapshots,
		writer.writeProportions,
		writer.writeMetrics,
		writer.writeExposure,
	}
	for _, step := range steps {
		if err := step(ctx, res); err != nil {
			return err
		}
	}

	if err := writer.WriteSummary(NewSummary(res)); err != nil {
		return err
	}

	if err := writer.WriteWorkbook(res); err != nil {
		return err
	}

	subLog.Info().Int("Files", len(writer.written)).Msg("wrote report")
	return nil
}

func (writer *Writer) writeReturns(ctx context.Context, res *analysis.Result) error {
	frames := []struct {
		name string
		df   *dataframe.DataFrame
	}{
		{"returns_daily.csv", res.Returns.Daily},
		{"returns_daily_cumulative.csv", res.Returns.Cumulative},
		{"returns_weekly.csv", res.Returns.Weekly},
		{"returns_weekly_cumulative.csv", res.Returns.WeeklyCumulative},
		{"growth.csv", res.Growth},
		{"benchmark_weekly.csv", res.BenchmarkWeekly},
		{"benchmark_cumulative.csv", res.BenchmarkCumulative},
		{"benchmark_growth.csv", res.BenchmarkGrowth},
	}
	for _, frame := range frames {
		if err := writer.writeFrame(ctx, frame.name, frame.df); err != nil {
			return err
		}
	}
	return nil
}

func (writer *Writer) writeValues(ctx context.Context, res *analysis.Result) error {
	mv := res.MarketValues
	if err := writer.writeFrame(ctx, "market_values.csv", mv.Total); err != nil {
		return err
	}
	if err := writer.writeFrame(ctx, "market_values_securities.csv", mv.Securities); err != nil {
		return err
	}
	for _, fund := range portfolio.AllFunds {
		slug := Slug(string(fund))
		if err := writer.writeFrame(ctx, "market_values_"+slug+".csv", mv.PerTicker[fund]); err != nil {
			return err
		}
		if err := writer.writeFrame(ctx, "holdings_"+slug+".csv", res.Reconstruction.Holdings.Quantities[fund]); err != nil {
			return err
		}
	}
	return nil
}

func (writer *Writer) writeCash(ctx context.Context, res *analysis.Result) error {
	if err := writer.writeFrame(ctx, "cash_balances.csv", res.MarketValues.Cash); err != nil {
		return err
	}

	flows := res.Reconstruction.Cash.Flows()
	dates := make([]string, len(flows))
	funds := make([]string, len(flows))
	kinds := make([]string, len(flows))
	tickers := make([]string, len(flows))
	amounts := make([]string, len(flows))
	for idx, flow := range flows {
		dates[idx] = flow.Date.Format(dateLayout)
		funds[idx] = string(flow.Fund)
		kinds[idx] = string(flow.Kind)
		tickers[idx] = flow.Ticker
		amounts[idx] = flow.Amount.String()
	}

	return writer.writeCSV(ctx, "cash_flows.csv", []dfgo.Series{
		stringSeries("Date", dates),
		stringSeries("Fund", funds),
		stringSeries("Kind", kinds),
		stringSeries("Ticker", tickers),
		stringSeries("Amount", amounts),
	})
}

func (writer *Writer) writeSnapshots(ctx context.Context, res *analysis.Result) error {
	for _, snap := range res.Snapshots {
		tickers := make([]string, len(snap.Rows))
		tactic := make([]float64, len(snap.Rows))
		strategic := make([]float64, len(snap.Rows))
		price := make([]float64, len(snap.Rows))
		for idx, row := range snap.Rows {
			tickers[idx] = row.Ticker
			tactic[idx] = row.Tactic
			strategic[idx] = row.Strategic
			price[idx] = row.Price
		}

		name := fmt.Sprintf("snapshot_%s_%s.csv", Slug(snap.Label), snap.Date.Format(dateLayout))
		if err := writer.writeCSV(ctx, name, []dfgo.Series{
			stringSeries("Ticker", tickers),
			floatSeries(string(portfolio.Tactic), tactic),
			floatSeries(string(portfolio.Strategic), strategic),
			floatSeries("Price", price),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (writer *Writer) writeProportions(ctx context.Context, res *analysis.Result) error {
	var funds, tickers, short []string
	var shares []float64
	for _, pie := range res.Proportions {
		for _, ticker := range pie.Tickers() {
			funds = append(funds, string(pie.Fund))
			tickers = append(tickers, ticker)
			shares = append(shares, pie.Members[ticker])
			short = append(short, strconv.FormatBool(pie.Short(ticker)))
		}
	}

	return writer.writeCSV(ctx, "proportions.csv", []dfgo.Series{
		stringSeries("Fund", funds),
		stringSeries("Ticker", tickers),
		floatSeries("Share", shares),
		stringSeries("Short", short),
	})
}

func (writer *Writer) writeMetrics(ctx context.Context, res *analysis.Result) error {
	for _, metrics := range res.Metrics {
		series := frameSeries(metrics.VAM, "VAM")
		series = append(series, frameSeries(metrics.RA, "RA")[1:]...)
		series = append(series, frameSeries(metrics.RI, "RI")[1:]...)
		if err := writer.writeCSV(ctx, fmt.Sprintf("metrics_%dw.csv", metrics.Window), series); err != nil {
			return err
		}
	}

	n := len(res.Latest)
	funds := make([]string, n)
	dates := make([]string, n)
	windows := make([]float64, n)
	vam, ra, ri := make([]float64, n), make([]float64, n), make([]float64, n)
	tVAM, tRA, tRI := make([]float64, n), make([]float64, n), make([]float64, n)
	for idx, latest := range res.Latest {
		funds[idx] = string(latest.Fund)
		dates[idx] = latest.Date.Format(dateLayout)
		windows[idx] = float64(latest.Window)
		vam[idx], ra[idx], ri[idx] = latest.VAM, latest.RA, latest.RI
		tVAM[idx], tRA[idx], tRI[idx] = latest.Target.VAM, latest.Target.RA, latest.Target.RI
	}

	return writer.writeCSV(ctx, "latest_metrics.csv", []dfgo.Series{
		stringSeries("Fund", funds),
		floatSeries("Window", windows),
		stringSeries("Date", dates),
		floatSeries("VAM", vam),
		floatSeries("RA", ra),
		floatSeries("RI", ri),
		floatSeries("Target VAM", tVAM),
		floatSeries("Target RA", tRA),
		floatSeries("Target RI", tRI),
	})
}

func (writer *Writer) writeExposure(ctx context.Context, res *analysis.Result) error {
	exposure := res.Exposure
	if exposure == nil {
		return nil
	}

	for _, dim := range lookthrough.Dimensions {
		name := "exposure_" + Slug(string(dim)) + ".csv"
		if err := writer.writeFrame(ctx, name, exposure.AggregateDimension(dim)); err != nil {
			return err
		}
	}

	rows := exposure.Long()
	dates := make([]string, len(rows))
	underlyings := make([]string, len(rows))
	values := make([]float64, len(rows))
	sectors := make([]string, len(rows))
	classes := make([]string, len(rows))
	for idx, row := range rows {
		dates[idx] = row.Date.Format(dateLayout)
		underlyings[idx] = row.Underlying
		values[idx] = row.Exposure
		sectors[idx] = row.Meta.Get(lookthrough.Sector)
		classes[idx] = row.Meta.Get(lookthrough.AssetClass)
	}
	if err := writer.writeCSV(ctx, "exposure_long.csv", []dfgo.Series{
		stringSeries("Date", dates),
		stringSeries("Underlying", underlyings),
		floatSeries("Exposure", values),
		stringSeries(string(lookthrough.Sector), sectors),
		stringSeries(string(lookthrough.AssetClass), classes),
	}); err != nil {
		return err
	}

	underlyers := exposure.Underlyers(res.ExposureDate)
	names := make([]string, len(underlyers))
	etfs := make([]string, len(underlyers))
	exp := make([]float64, len(underlyers))
	pct := make([]float64, len(underlyers))
	for idx, row := range underlyers {
		names[idx] = row.Underlying
		if row.Meta != nil {
			etfs[idx] = row.Meta.ETF
		}
		exp[idx] = row.Exposure
		pct[idx] = row.Pct
	}
	if err := writer.writeCSV(ctx, "underlyers.csv", []dfgo.Series{
		stringSeries("Underlying", names),
		stringSeries("ETF", etfs),
		floatSeries("Exposure", exp),
		floatSeries("Pct", pct),
	}); err != nil {
		return err
	}

	fi := exposure.FixedIncome(res.ExposureDate)
	labels := make([]string, len(fi.Buckets))
	bucketExp := make([]float64, len(fi.Buckets))
	for idx, bucket := range fi.Buckets {
		labels[idx] = bucket.Label
		bucketExp[idx] = bucket.Exposure
	}
	return writer.writeCSV(ctx, "fixed_income_buckets.csv", []dfgo.Series{
		stringSeries("Duration", labels),
		floatSeries("Exposure", bucketExp),
	})
}

// WriteSummary writes summary.json
func (writer *Writer) WriteSummary(summary *Summary) error {
	buf, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	path := filepath.Join(writer.dir, "summary.json")
	if err := os.WriteFile(path, buf, 0644); err != nil {
		log.Error().Err(err).Str("FileName", path).Msg("error writing file")
		return err
	}
	writer.written = append(writer.written, path)
	return nil
}
