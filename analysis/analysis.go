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

// Package analysis runs the performance pipeline end to end: workbook inputs,
// holdings reconstruction, returns, benchmark, rolling metrics, snapshots and the
// optional ETF look-through.
package analysis

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/penny-vault/fundperf/common"
	"github.com/penny-vault/fundperf/data"
	"github.com/penny-vault/fundperf/dataframe"
	"github.com/penny-vault/fundperf/lookthrough"
	"github.com/penny-vault/fundperf/observability/opentelemetry"
	"github.com/penny-vault/fundperf/portfolio"
	"github.com/penny-vault/fundperf/prices"
	"github.com/penny-vault/fundperf/workbook"
)

// Inputs are the parsed workbook sheets plus any fetched NAV history
type Inputs struct {
	Prices       *dataframe.DataFrame
	NAV          *dataframe.DataFrame
	Dividends    []*prices.Dividend
	Splits       []*prices.Split
	Transactions []*portfolio.Transaction
	Investments  []*portfolio.Investment
}

// Result is everything one run computes
type Result struct {
	RunID     uuid.UUID
	Generated time.Time
	Start     time.Time
	End       time.Time

	Prices         *dataframe.DataFrame
	Reconstruction *portfolio.Reconstruction
	MarketValues   *portfolio.MarketValues
	Returns        *portfolio.Returns
	Growth         *dataframe.DataFrame
	MoneyWeighted  map[portfolio.Fund]float64

	Benchmark           *portfolio.Benchmark
	BenchmarkWeekly     *dataframe.DataFrame
	BenchmarkCumulative *dataframe.DataFrame
	BenchmarkGrowth     *dataframe.DataFrame

	Metrics     []*portfolio.Metrics
	Latest      []*portfolio.LatestMetric
	Snapshots   []*portfolio.Snapshot
	Proportions []*portfolio.Pie

	Exposure     *lookthrough.Exposure
	ExposureDate time.Time
}

// Pipeline computes a Result from a Config
type Pipeline struct {
	cfg      Config
	nav      *data.NAVSource
	navFunds []data.NAVFund
	holdings *data.HoldingsSource
	metrics  *common.Memo[*portfolio.Metrics]
	now      func() time.Time
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithNAV merges the NAV history of funds into the price table
func WithNAV(src *data.NAVSource, funds []data.NAVFund) Option {
	return func(p *Pipeline) {
		p.nav = src
		p.navFunds = funds
	}
}

// WithHoldings enables the look-through step using src for ETF constituents
func WithHoldings(src *data.HoldingsSource) Option {
	return func(p *Pipeline) {
		p.holdings = src
	}
}

// WithClock overrides the time source used to stamp results
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a pipeline. Metric computations are memoized for the life of the
// pipeline so repeated scheduled runs over unchanged data skip them.
func New(cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		metrics: common.NewMemo[*portfolio.Metrics]("metrics"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the pipeline configuration
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run loads the workbook, fetches vendor data and analyzes it
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "analysis.Run")
	defer span.End()

	inputs, err := p.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not load inputs")
		return nil, err
	}

	res, err := p.Analyze(ctx, inputs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analysis failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("RunID", res.RunID.String()))
	return res, nil
}

// Load reads the workbook sheets and, when configured, the fund NAV histories
func (p *Pipeline) Load(ctx context.Context) (*Inputs, error) {
	subLog := log.With().Str("Workbook", p.cfg.WorkbookPath).Logger()

	wb, err := workbook.Open(p.cfg.WorkbookPath)
	if err != nil {
		return nil, err
	}

	sheets := make(map[string]*workbook.Table)
	for _, name := range []string{p.cfg.Sheets.Prices, p.cfg.Sheets.Dividends, p.cfg.Sheets.Splits, p.cfg.Sheets.Transactions, p.cfg.Sheets.Investments} {
		table, err := wb.Table(name)
		if err != nil {
			return nil, err
		}
		sheets[name] = table
	}

	inputs := &Inputs{
		Dividends: prices.ParseDividends(sheets[p.cfg.Sheets.Dividends]),
		Splits:    prices.ParseSplits(sheets[p.cfg.Sheets.Splits]),
	}

	if inputs.Prices, err = prices.BuildPrices(sheets[p.cfg.Sheets.Prices]); err != nil {
		return nil, err
	}
	if inputs.Transactions, err = portfolio.ParseTransactions(sheets[p.cfg.Sheets.Transactions]); err != nil {
		return nil, err
	}
	if inputs.Investments, err = portfolio.ParseInvestments(sheets[p.cfg.Sheets.Investments]); err != nil {
		return nil, err
	}

	if p.nav != nil && len(p.navFunds) > 0 {
		inputs.NAV = p.nav.FetchAll(ctx, p.navFunds)
	}

	subLog.Info().
		Int("Assets", inputs.Prices.ColCount()).
		Int("Dividends", len(inputs.Dividends)).
		Int("Splits", len(inputs.Splits)).
		Int("Transactions", len(inputs.Transactions)).
		Int("Investments", len(inputs.Investments)).
		Msg("loaded workbook")

	return inputs, nil
}

// Analyze computes every output from parsed inputs
func (p *Pipeline) Analyze(ctx context.Context, inputs *Inputs) (*Result, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	res := &Result{
		RunID:     uuid.New(),
		Generated: p.now(),
		Benchmark: p.cfg.Benchmark,
	}
	subLog := log.With().Str("RunID", res.RunID.String()).Logger()

	priceDf := inputs.Prices
	if inputs.NAV != nil {
		priceDf = prices.MergeNAV(priceDf, inputs.NAV)
	}
	priceDf = priceDf.Trim(p.cfg.PricesStart, priceDf.End())
	if priceDf.Len() == 0 {
		return nil, fmt.Errorf("%w: nothing on or after %s", ErrNoPrices, p.cfg.PricesStart.Format(dateLayout))
	}
	res.Prices = priceDf
	res.End = priceDf.End()

	res.Start = p.cfg.StartingDate
	if res.Start.IsZero() {
		res.Start = res.End.AddDate(-p.cfg.Years, 0, 0)
	}

	recon, err := portfolio.Reconstruct(priceDf.Dates, inputs.Transactions, inputs.Dividends, inputs.Investments)
	if err != nil {
		return nil, err
	}
	res.Reconstruction = recon

	res.MarketValues = portfolio.NewMarketValues(priceDf, recon.Holdings, recon.Cash)
	res.Returns = portfolio.NewReturns(res.MarketValues.Total, recon.Cash, res.Start)
	res.Growth = portfolio.Growth(res.Returns.Cumulative, p.cfg.InitialInvestment)
	res.MoneyWeighted = portfolio.MoneyWeightedReturns(res.MarketValues.Total, recon.Cash, res.Start)
	res.Proportions = res.MarketValues.Proportions()

	if err := p.benchmark(res, inputs); err != nil {
		return nil, err
	}

	if err := p.rollingMetrics(res); err != nil {
		return nil, err
	}

	res.Snapshots = p.snapshots(recon.Holdings, priceDf, res.End)

	if p.holdings != nil && p.cfg.Exposure.Enabled {
		p.exposure(ctx, res)
	}

	subLog.Info().
		Time("Start", res.Start).
		Time("End", res.End).
		Int("Snapshots", len(res.Snapshots)).
		Int("Metrics", len(res.Latest)).
		Msg("analysis complete")

	return res, nil
}

func (p *Pipeline) benchmark(res *Result, inputs *Inputs) error {
	adjusted := prices.AdjustPrices(res.Prices, inputs.Splits)
	dividends := prices.BuildDividends(inputs.Dividends)

	assetReturns := portfolio.AssetWeeklyReturns(adjusted, dividends)
	weekly, err := p.cfg.Benchmark.WeeklyReturns(assetReturns)
	if err != nil {
		return err
	}

	res.BenchmarkWeekly = weekly
	res.BenchmarkCumulative = portfolio.CumulativeReturns(weekly, res.Start)
	res.BenchmarkGrowth = portfolio.Growth(res.BenchmarkCumulative, p.cfg.InitialInvestment)

	log.Debug().Object("Benchmark", p.cfg.Benchmark).Int("Weeks", weekly.Len()).Msg("computed benchmark returns")
	return nil
}

func (p *Pipeline) rollingMetrics(res *Result) error {
	weekly := res.Returns.Weekly
	bench := res.BenchmarkWeekly

	res.Metrics = make([]*portfolio.Metrics, 0, len(p.cfg.Windows))
	res.Latest = make([]*portfolio.LatestMetric, 0, len(p.cfg.Windows)*len(portfolio.AllFunds))

	for _, window := range p.cfg.Windows {
		window := window
		metrics, err := p.metrics.Do(func() (*portfolio.Metrics, error) {
			return portfolio.NewMetrics(weekly, bench, window)
		}, window, weekly.ColNames, weekly.Dates, weekly.Vals, bench.Vals)
		if err != nil {
			return err
		}

		metrics = metrics.Since(p.cfg.MetricsStart)
		res.Metrics = append(res.Metrics, metrics)

		for _, latest := range metrics.Latest(p.cfg.Targets) {
			log.Info().Object("Metric", latest).Msg("latest metric")
			res.Latest = append(res.Latest, latest)
		}
	}
	return nil
}

func (p *Pipeline) snapshots(holdings *portfolio.Holdings, priceDf *dataframe.DataFrame, end time.Time) []*portfolio.Snapshot {
	dates := p.cfg.Snapshots
	if len(dates) == 0 {
		dates = []SnapshotDate{{Label: "Today", Date: end}}
	}

	snaps := make([]*portfolio.Snapshot, 0, len(dates))
	for _, sd := range dates {
		snap, err := holdings.Snapshot(sd.Label, sd.Date, priceDf)
		if err != nil {
			log.Warn().Err(err).Str("Label", sd.Label).Time("Date", sd.Date).Msg("skipping snapshot")
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// exposure decomposes the configured fund's ETF positions from the start of the
// return period onward. Vendor failures leave the exposure empty.
// heldETFs returns the etfs with a nonzero quantity on any date of held
func heldETFs(held *dataframe.DataFrame, etfs []string) []string {
	res := make([]string, 0, len(etfs))
	for _, etf := range etfs {
		for _, qty := range held.Column(etf) {
			if qty != 0 && !math.IsNaN(qty) {
				res = append(res, etf)
				break
			}
		}
	}
	return res
}

func (p *Pipeline) exposure(ctx context.Context, res *Result) {
	fund := p.cfg.Exposure.Fund
	quantities := res.Reconstruction.Holdings.Quantities[fund].Trim(res.Start, res.End)
	held := lookthrough.NormalizeHoldings(quantities)
	priceDf := lookthrough.NormalizePrices(res.Prices)

	etfs := heldETFs(held, p.holdings.ETFs())

	if len(etfs) == 0 {
		log.Warn().Str("Fund", string(fund)).Msg("fund holds none of the configured ETFs; skipping look-through")
		return
	}

	constituents := p.holdings.FetchAll(ctx, etfs, p.cfg.Exposure.AsOf)
	res.Exposure = lookthrough.Decompose(held.Select(etfs...), priceDf, constituents)

	date := p.cfg.Exposure.AsOf
	if date.IsZero() {
		date = res.End
	}
	if nearest, ok := res.Exposure.NearestDate(date); ok {
		res.ExposureDate = nearest
	}
}
