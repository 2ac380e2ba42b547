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

package analysis_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/penny-vault/fundperf/analysis"
	"github.com/penny-vault/fundperf/data"
	"github.com/penny-vault/fundperf/dataframe"
	"github.com/penny-vault/fundperf/lookthrough"
	"github.com/penny-vault/fundperf/portfolio"
	"github.com/penny-vault/fundperf/workbook"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func weekdays(from, to time.Time) []time.Time {
	dates := make([]time.Time, 0)
	for dt := from; !dt.After(to); dt = dt.AddDate(0, 0, 1) {
		if dt.Weekday() != time.Saturday && dt.Weekday() != time.Sunday {
			dates = append(dates, dt)
		}
	}
	return dates
}

var benchTickers = []string{"XBB CN Equity", "XIU CN Equity", "XUS CN Equity", "XEF CN Equity", "XEM CN Equity"}

// buildInputs holds 10 shares of AAA bought at 100 with a 1000 contribution. AAA
// gains 1 per day and every benchmark asset is flat at 10.
func buildInputs() *analysis.Inputs {
	cal := weekdays(date(2023, 1, 2), date(2023, 6, 30))
	cols := append([]string{"AAA"}, benchTickers...)
	priceDf := dataframe.New(cal, cols, 10)
	for idx := range cal {
		priceDf.Vals[0][idx] = 100 + float64(idx)
	}

	return &analysis.Inputs{
		Prices: priceDf,
		Transactions: []*portfolio.Transaction{
			{Date: date(2023, 1, 2), Fund: portfolio.Tactic, Ticker: "AAA", Quantity: 10, Price: 100},
			{Date: date(2023, 1, 2), Fund: portfolio.Strategic, Ticker: "XUS CN Equity", Quantity: 5, Price: 10},
		},
		Investments: []*portfolio.Investment{
			{Date: date(2023, 1, 2), Fund: portfolio.Tactic, Amount: decimal.NewFromInt(1000)},
			{Date: date(2023, 1, 2), Fund: portfolio.Strategic, Amount: decimal.NewFromInt(50)},
		},
	}
}

func testConfig() analysis.Config {
	cfg := analysis.DefaultConfig()
	cfg.PricesStart = date(2023, 1, 1)
	cfg.StartingDate = date(2023, 1, 2)
	cfg.MetricsStart = date(2023, 1, 1)
	cfg.Windows = []int{4}
	return cfg
}

var _ = Describe("Pipeline", func() {
	var (
		ctx    context.Context
		inputs *analysis.Inputs
	)

	BeforeEach(func() {
		ctx = context.Background()
		inputs = buildInputs()
	})

	It("computes returns net of the initial contribution", func() {
		res, err := analysis.New(testConfig()).Analyze(ctx, inputs)
		Expect(err).To(BeNil())

		Expect(res.RunID.String()).To(HaveLen(36))
		Expect(res.Start).To(Equal(date(2023, 1, 2)))
		Expect(res.End).To(Equal(date(2023, 6, 30)))

		tactic := res.Returns.Daily.Column("Tactic")
		Expect(tactic[0]).To(Equal(0.0))
		Expect(tactic[1]).To(BeNumerically("~", 0.01, 1e-12))

		strategic := res.Returns.Daily.Column("Strategic")
		for _, r := range strategic {
			Expect(r).To(BeNumerically("~", 0, 1e-12))
		}

		total := res.MarketValues.Total
		global := total.Column("Global")
		for idx := range global {
			Expect(global[idx]).To(BeNumerically("~", total.Column("Tactic")[idx]+total.Column("Strategic")[idx], 1e-9))
		}
	})

	It("grows the initial investment from a seed the day before the start", func() {
		res, err := analysis.New(testConfig()).Analyze(ctx, inputs)
		Expect(err).To(BeNil())

		Expect(res.Growth.Start()).To(Equal(date(2023, 1, 1)))
		Expect(res.Growth.Column("Tactic")[0]).To(Equal(1000.0))
		last := res.Growth.Len() - 1
		lastPrice := inputs.Prices.Column("AAA")[inputs.Prices.Len()-1]
		Expect(res.Growth.Column("Tactic")[last]).To(BeNumerically("~", 10*lastPrice, 1e-6))

		Expect(res.BenchmarkGrowth.Column("Benchmark")[res.BenchmarkGrowth.Len()-1]).To(BeNumerically("~", 1000, 1e-9))
	})

	It("reports the money weighted return of the period", func() {
		res, err := analysis.New(testConfig()).Analyze(ctx, inputs)
		Expect(err).To(BeNil())

		lastPrice := inputs.Prices.Column("AAA")[inputs.Prices.Len()-1]
		Expect(res.MoneyWeighted[portfolio.Tactic]).To(BeNumerically("~", 10*lastPrice/1000-1, 1e-9))
		Expect(res.MoneyWeighted[portfolio.Strategic]).To(BeNumerically("~", 0, 1e-9))
		Expect(res.MoneyWeighted[portfolio.Global]).To(BeNumerically("~", (10*lastPrice+50)/1050-1, 1e-9))
	})

	It("reports rolling metrics against the benchmark for every fund and window", func() {
		cfg := testConfig()
		cfg.Windows = []int{4, 8}
		res, err := analysis.New(cfg).Analyze(ctx, inputs)
		Expect(err).To(BeNil())

		Expect(res.Metrics).To(HaveLen(2))
		Expect(res.Latest).To(HaveLen(6))
		for _, latest := range res.Latest {
			Expect(latest.Target).To(Equal(portfolio.DefaultTargets()[latest.Fund]))
		}

		vam := res.Metrics[0].VAM.Column("Tactic")
		Expect(math.IsNaN(vam[0])).To(BeTrue())
		Expect(vam[len(vam)-1]).To(BeNumerically(">", 0))

		// flat fund against a flat benchmark has no active risk
		ri := res.Metrics[0].RI.Column("Strategic")
		Expect(math.IsNaN(ri[len(ri)-1])).To(BeTrue())
	})

	It("reuses memoized metrics across runs over the same data", func() {
		pipeline := analysis.New(testConfig())
		first, err := pipeline.Analyze(ctx, inputs)
		Expect(err).To(BeNil())
		second, err := pipeline.Analyze(ctx, inputs)
		Expect(err).To(BeNil())

		Expect(second.RunID).ToNot(Equal(first.RunID))
		n := first.Metrics[0].VAM.Len() - 1
		Expect(&second.Metrics[0].VAM.Vals[0][n]).To(BeIdenticalTo(&first.Metrics[0].VAM.Vals[0][n]))
	})

	It("snapshots holdings on the last date when no dates are configured", func() {
		res, err := analysis.New(testConfig()).Analyze(ctx, inputs)
		Expect(err).To(BeNil())

		Expect(res.Snapshots).To(HaveLen(1))
		snap := res.Snapshots[0]
		Expect(snap.Label).To(Equal("Today"))
		Expect(snap.Rows).To(HaveLen(2))
	})

	It("skips snapshot dates before the price calendar", func() {
		cfg := testConfig()
		cfg.Snapshots = []analysis.SnapshotDate{
			{Label: "Too early", Date: date(2020, 1, 1)},
			{Label: "Tactic 1", Date: date(2023, 3, 4)},
		}
		res, err := analysis.New(cfg).Analyze(ctx, inputs)
		Expect(err).To(BeNil())

		Expect(res.Snapshots).To(HaveLen(1))
		Expect(res.Snapshots[0].Label).To(Equal("Tactic 1"))
	})

	It("fails when the benchmark references an unknown asset", func() {
		cfg := testConfig()
		cfg.Benchmark = &portfolio.Benchmark{Name: "Bonds", Weights: map[string]float64{"ZAG CN Equity": 1}}
		_, err := analysis.New(cfg).Analyze(ctx, inputs)
		Expect(errors.Is(err, portfolio.ErrBenchmarkAsset)).To(BeTrue())
	})

	It("fails when no prices remain after the start date", func() {
		cfg := testConfig()
		cfg.PricesStart = date(2024, 1, 1)
		_, err := analysis.New(cfg).Analyze(ctx, inputs)
		Expect(errors.Is(err, analysis.ErrNoPrices)).To(BeTrue())
	})

	It("merges NAV history into the price table", func() {
		nav := dataframe.New([]time.Time{date(2023, 1, 3)}, []string{"NBC5703"}, 12.5)
		inputs.NAV = nav
		res, err := analysis.New(testConfig()).Analyze(ctx, inputs)
		Expect(err).To(BeNil())
		Expect(res.Prices.Value("NBC5703", date(2023, 6, 30))).To(Equal(12.5))
	})

	It("reports a missing workbook", func() {
		cfg := testConfig()
		cfg.WorkbookPath = filepath.Join(GinkgoT().TempDir(), "missing.xlsx")
		_, err := analysis.New(cfg).Run(ctx)
		Expect(errors.Is(err, workbook.ErrMissingSourceFile)).To(BeTrue())
	})

	Context("look-through", func() {
		var httpClient *http.Client

		BeforeEach(func() {
			httpClient = data.NewHTTPClient(5 * time.Second)
			httpmock.ActivateNonDefault(httpClient)
		})

		AfterEach(func() {
			httpmock.DeactivateAndReset()
		})

		It("decomposes the fund's ETF positions", func() {
			src := data.NewHoldingsSource(data.NewClient(httpClient), data.HoldingsConfig{
				BaseURL: "https://etf.test",
				ETFs:    map[string]string{"XUS": "1/xus", "XEF": "2/xef"},
			})
			asOf := date(2023, 6, 30)
			httpmock.RegisterResponder("GET", src.JSONURL("1/xus", asOf, false), httpmock.NewStringResponder(200,
				`[{"Ticker": "AAPL", "Sector": "Information Technology", "Market Value": 600, "Weight (%)": 60},
				  {"Ticker": "MSFT", "Sector": "Information Technology", "Market Value": 400, "Weight (%)": 40}]`))

			cfg := testConfig()
			cfg.Exposure = analysis.ExposureConfig{Enabled: true, Fund: portfolio.Global, AsOf: asOf}
			res, err := analysis.New(cfg, analysis.WithHoldings(src)).Analyze(ctx, inputs)
			Expect(err).To(BeNil())

			Expect(res.Exposure).ToNot(BeNil())
			Expect(res.ExposureDate).To(Equal(asOf))
			Expect(res.Exposure.Values.Value("AAPL", asOf)).To(BeNumerically("~", 30, 1e-9))
			Expect(res.Exposure.Values.Value("MSFT", asOf)).To(BeNumerically("~", 20, 1e-9))

			sectors := res.Exposure.AggregateDimension(lookthrough.Sector)
			Expect(sectors.Value("Information Technology", asOf)).To(BeNumerically("~", 50, 1e-9))
		})

		It("decomposes an ETF sold before the end of the window", func() {
			src := data.NewHoldingsSource(data.NewClient(httpClient), data.HoldingsConfig{
				BaseURL: "https://etf.test",
				ETFs:    map[string]string{"XUS": "1/xus"},
			})
			asOf := date(2023, 6, 30)
			httpmock.RegisterResponder("GET", src.JSONURL("1/xus", asOf, false), httpmock.NewStringResponder(200,
				`[{"Ticker": "AAPL", "Sector": "Information Technology", "Market Value": 600, "Weight (%)": 60},
				  {"Ticker": "MSFT", "Sector": "Information Technology", "Market Value": 400, "Weight (%)": 40}]`))

			inputs.Transactions = append(inputs.Transactions,
				&portfolio.Transaction{Date: date(2023, 3, 1), Fund: portfolio.Strategic, Ticker: "XUS CN Equity", Quantity: -5, Price: 10})

			cfg := testConfig()
			cfg.Exposure = analysis.ExposureConfig{Enabled: true, Fund: portfolio.Global, AsOf: asOf}
			res, err := analysis.New(cfg, analysis.WithHoldings(src)).Analyze(ctx, inputs)
			Expect(err).To(BeNil())

			Expect(res.Exposure).ToNot(BeNil())
			Expect(res.Exposure.Held).To(Equal(1))
			Expect(res.Exposure.Values.Value("AAPL", date(2023, 2, 1))).To(BeNumerically("~", 30, 1e-9))
			Expect(res.Exposure.Values.Value("MSFT", date(2023, 2, 28))).To(BeNumerically("~", 20, 1e-9))
			Expect(res.Exposure.Values.Value("AAPL", date(2023, 3, 1))).To(BeNumerically("~", 0, 1e-9))
			Expect(res.Exposure.Values.Value("AAPL", asOf)).To(BeNumerically("~", 0, 1e-9))
		})
	})
})

var _ = Describe("Config", func() {
	AfterEach(func() {
		viper.Reset()
	})

	It("uses the defaults when nothing is configured", func() {
		cfg, err := analysis.ConfigFromViper()
		Expect(err).To(BeNil())
		Expect(cfg.Sheets.Prices).To(Equal("Copy source"))
		Expect(cfg.PricesStart).To(Equal(date(2019, 1, 6)))
		Expect(cfg.Windows).To(Equal([]int{52, 156}))
		Expect(cfg.Benchmark.TotalWeight()).To(BeNumerically("~", 1, 1e-12))
	})

	It("reads overrides", func() {
		viper.Set("workbook.path", "/data/book.xlsx")
		viper.Set("workbook.sheet_prices", "Prices")
		viper.Set("analysis.starting_date", "2023-05-01")
		viper.Set("analysis.windows", []int{26})
		viper.Set("benchmark.name", "Balanced")
		viper.Set("benchmark.assets", []map[string]interface{}{
			{"ticker": "XBB CN Equity", "weight": 0.5},
			{"ticker": "XIU CN Equity", "weight": 0.5},
		})
		viper.Set("metrics.targets", map[string]interface{}{
			"tactic": map[string]interface{}{"vam": 300, "ri": 0.6, "ra": 500},
		})
		viper.Set("report.snapshots", []map[string]interface{}{
			{"label": "Strategic 1", "date": "2024-02-01"},
			{"label": "Today", "date": "2024-01-15"},
		})

		cfg, err := analysis.ConfigFromViper()
		Expect(err).To(BeNil())
		Expect(cfg.WorkbookPath).To(Equal("/data/book.xlsx"))
		Expect(cfg.Sheets.Prices).To(Equal("Prices"))
		Expect(cfg.Sheets.Dividends).To(Equal("Copy dividends"))
		Expect(cfg.StartingDate).To(Equal(date(2023, 5, 1)))
		Expect(cfg.Windows).To(Equal([]int{26}))
		Expect(cfg.Benchmark.Name).To(Equal("Balanced"))
		Expect(cfg.Benchmark.Weights).To(HaveKeyWithValue("XBB CN Equity", 0.5))
		Expect(cfg.Targets[portfolio.Tactic]).To(Equal(portfolio.Target{VAM: 300, RI: 0.6, RA: 500}))
		Expect(cfg.Targets[portfolio.Global]).To(Equal(portfolio.Target{VAM: 130, RI: 0.5, RA: 260}))
		Expect(cfg.Snapshots).To(HaveLen(2))
		Expect(cfg.Snapshots[0].Label).To(Equal("Today"))
	})

	It("rejects malformed dates", func() {
		viper.Set("analysis.metrics_start", "01/01/2024")
		_, err := analysis.ConfigFromViper()
		Expect(errors.Is(err, analysis.ErrInvalidConfig)).To(BeTrue())
	})

	It("rejects non-positive windows", func() {
		viper.Set("analysis.windows", []int{0})
		_, err := analysis.ConfigFromViper()
		Expect(errors.Is(err, analysis.ErrInvalidConfig)).To(BeTrue())
	})
})
