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

package portfolio_test

import (
	"bytes"
	"math"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/penny-vault/fundperf/dataframe"
	"github.com/penny-vault/fundperf/portfolio"
	"github.com/penny-vault/fundperf/prices"
	"github.com/penny-vault/fundperf/workbook"
)

var _ = Describe("Portfolio", func() {
	var (
		calendar    []time.Time
		priceDf     *dataframe.DataFrame
		trxs        []*portfolio.Transaction
		divs        []*prices.Dividend
		investments []*portfolio.Investment
	)

	BeforeEach(func() {
		calendar = weekdays(date(2024, 1, 1), date(2024, 3, 29))
		priceDf = dataframe.New(calendar, []string{"X", "Y"}, 0)
		for rowIdx := range calendar {
			priceDf.Vals[0][rowIdx] = 10 + 0.01*float64(rowIdx)
			priceDf.Vals[1][rowIdx] = 50 - 0.02*float64(rowIdx)
		}

		trxs = []*portfolio.Transaction{
			{Date: date(2024, 1, 1), Fund: portfolio.Tactic, Ticker: "X", Quantity: 100, Price: 10},
			{Date: date(2024, 1, 10), Fund: portfolio.Strategic, Ticker: "Y", Quantity: 20, Price: 49.9},
			{Date: date(2024, 1, 10), Fund: portfolio.Strategic, Ticker: "Y", Quantity: 5, Price: 49.9},
			{Date: date(2024, 1, 13), Fund: portfolio.Strategic, Ticker: "X", Quantity: 30, Price: 10.1},
			{Date: date(2024, 2, 1), Fund: portfolio.Tactic, Ticker: "X", Quantity: -40, Price: 10.2},
		}

		divs = []*prices.Dividend{
			{Asset: "X", ExDate: date(2024, 2, 1), Payable: date(2024, 2, 15), Amount: 0.5},
			{Asset: "X", ExDate: date(2024, 1, 1), Payable: date(2024, 1, 5), Amount: 1},
			{Asset: "X", ExDate: date(2024, 6, 1), Payable: date(2024, 6, 15), Amount: 1},
			{Asset: "Z", ExDate: date(2024, 2, 1), Payable: date(2024, 2, 15), Amount: 1},
		}

		investments = []*portfolio.Investment{
			{Date: date(2024, 1, 1), Fund: portfolio.Tactic, Amount: decimal.NewFromInt(1000)},
			{Date: date(2024, 1, 6), Fund: portfolio.Strategic, Amount: decimal.NewFromInt(2000)},
			{Date: date(2024, 3, 4), Fund: portfolio.Tactic, Amount: decimal.NewFromInt(-100)},
		}
	})

	Describe("Reconstruct", func() {
		It("fails on an empty calendar", func() {
			_, err := portfolio.Reconstruct(nil, trxs, divs, investments)
			Expect(err).To(MatchError(portfolio.ErrEmptyCalendar))
		})

		It("accumulates holdings as of each calendar date", func() {
			rec, err := portfolio.Reconstruct(calendar, trxs, divs, investments)
			Expect(err).To(BeNil())
			h := rec.Holdings
			Expect(h.Tickers).To(Equal([]string{"X", "Y"}))
			Expect(h.Quantity(portfolio.Strategic, "Y", date(2024, 1, 9))).To(Equal(0.0))
			Expect(h.Quantity(portfolio.Strategic, "Y", date(2024, 1, 10))).To(Equal(25.0), "same day transactions are summed")
			Expect(h.Quantity(portfolio.Strategic, "X", date(2024, 1, 12))).To(Equal(0.0))
			Expect(h.Quantity(portfolio.Strategic, "X", date(2024, 1, 15))).To(Equal(30.0), "weekend trades apply on the next calendar date")
			Expect(h.Quantity(portfolio.Tactic, "X", date(2024, 1, 31))).To(Equal(100.0))
			Expect(h.Quantity(portfolio.Tactic, "X", date(2024, 2, 1))).To(Equal(60.0))
		})

		It("has Global equal to the sum of the funds for every ticker", func() {
			rec, err := portfolio.Reconstruct(calendar, trxs, divs, investments)
			Expect(err).To(BeNil())
			h := rec.Holdings
			for _, ticker := range h.Tickers {
				for _, dt := range calendar {
					Expect(h.Quantity(portfolio.Global, ticker, dt)).To(Equal(
						h.Quantity(portfolio.Tactic, ticker, dt) + h.Quantity(portfolio.Strategic, ticker, dt)))
				}
			}
		})

		It("pays the dividend on the holding before the ex-date", func() {
			rec, err := portfolio.Reconstruct(calendar, trxs, divs, investments)
			Expect(err).To(BeNil())

			dividends := make([]*portfolio.CashFlow, 0)
			for _, flow := range rec.Cash.Flows() {
				if flow.Kind == portfolio.DividendFlow {
					dividends = append(dividends, flow)
				}
			}

			Expect(dividends).To(HaveLen(2))
			Expect(dividends[0].Fund).To(Equal(portfolio.Tactic))
			Expect(dividends[0].Date).To(Equal(date(2024, 2, 15)))
			Expect(dividends[0].Amount.Equal(decimal.NewFromInt(50))).To(BeTrue(), "100 units held on 2024-01-31 × $0.50")
			Expect(dividends[1].Fund).To(Equal(portfolio.Strategic))
			Expect(dividends[1].Amount.Equal(decimal.NewFromInt(15))).To(BeTrue())
		})

		It("uses the last calendar day before a weekend ex-date", func() {
			weekendDivs := []*prices.Dividend{
				{Asset: "X", ExDate: date(2024, 1, 14), Payable: date(2024, 1, 25), Amount: 1},
				{Asset: "X", ExDate: date(2024, 2, 3), Payable: date(2024, 2, 20), Amount: 1},
			}
			rec, err := portfolio.Reconstruct(calendar, trxs, weekendDivs, nil)
			Expect(err).To(BeNil())

			paid := make(map[string]decimal.Decimal)
			for _, flow := range rec.Cash.Flows() {
				if flow.Kind == portfolio.DividendFlow {
					paid[flow.Date.Format("2006-01-02")+" "+string(flow.Fund)] = flow.Amount
				}
			}

			Expect(paid).To(HaveLen(3))
			// Strategic bought X on Saturday 2024-01-13, after Friday's holding was fixed
			Expect(paid).ToNot(HaveKey("2024-01-25 Strategic"))
			Expect(paid["2024-01-25 Tactic"].Equal(decimal.NewFromInt(100))).To(BeTrue())
			Expect(paid["2024-02-20 Tactic"].Equal(decimal.NewFromInt(60))).To(BeTrue(), "holding on Friday 2024-02-02")
			Expect(paid["2024-02-20 Strategic"].Equal(decimal.NewFromInt(30))).To(BeTrue())
		})

		It("settles every transaction against cash", func() {
			rec, err := portfolio.Reconstruct(calendar, trxs, nil, nil)
			Expect(err).To(BeNil())
			Expect(rec.Cash.Balance(portfolio.Tactic, date(2024, 1, 31)).Equal(decimal.NewFromInt(-1000))).To(BeTrue())
			Expect(rec.Cash.Balance(portfolio.Tactic, date(2024, 2, 1)).Equal(decimal.RequireFromString("-592"))).To(BeTrue())
		})
	})

	Describe("CashLedger", func() {
		It("conserves cash for every fund and date", func() {
			rec, err := portfolio.Reconstruct(calendar, trxs, divs, investments)
			Expect(err).To(BeNil())

			balances := rec.Cash.Balances()
			for _, fund := range portfolio.AllFunds {
				for rowIdx, dt := range balances.Dates {
					expected := decimal.Zero
					for _, flow := range rec.Cash.Flows() {
						if !flow.Date.After(dt) && (fund == portfolio.Global || flow.Fund == fund) {
							expected = expected.Add(flow.Amount)
						}
					}
					Expect(rec.Cash.Balance(fund, dt).Equal(expected)).To(BeTrue())
					Expect(balances.Column(string(fund))[rowIdx]).To(BeNumerically("~", expected.InexactFloat64(), 1e-9))
				}
			}
		})

		It("keeps Global equal to the sum of the funds", func() {
			rec, err := portfolio.Reconstruct(calendar, trxs, divs, investments)
			Expect(err).To(BeNil())
			for _, dt := range rec.Cash.Dates() {
				sum := rec.Cash.Balance(portfolio.Tactic, dt).Add(rec.Cash.Balance(portfolio.Strategic, dt))
				Expect(rec.Cash.Balance(portfolio.Global, dt).Equal(sum)).To(BeTrue())
			}
		})

		It("sums flows by kind", func() {
			rec, err := portfolio.Reconstruct(calendar, trxs, divs, investments)
			Expect(err).To(BeNil())
			external := rec.Cash.FlowFrame(portfolio.ExternalFlow)
			Expect(external.Value("Tactic", date(2024, 1, 1))).To(Equal(1000.0))
			Expect(external.Value("Global", date(2024, 1, 6))).To(Equal(2000.0))
			Expect(external.Value("Tactic", date(2024, 2, 15))).To(Equal(0.0))
		})

		It("aligns weekend flows to the next calendar date", func() {
			rec, err := portfolio.Reconstruct(calendar, trxs, divs, investments)
			Expect(err).To(BeNil())
			aligned := portfolio.AlignFlows(rec.Cash.FlowFrame(portfolio.ExternalFlow), calendar)
			Expect(aligned.Value("Strategic", date(2024, 1, 8))).To(Equal(2000.0))
			Expect(aligned.Len()).To(Equal(len(calendar)))
		})
	})

	Describe("MarketValues", func() {
		var (
			mv *portfolio.MarketValues
		)

		BeforeEach(func() {
			rec, err := portfolio.Reconstruct(calendar, trxs, divs, investments)
			Expect(err).To(BeNil())
			mv = portfolio.NewMarketValues(priceDf, rec.Holdings, rec.Cash)
		})

		It("values positions at quantity × price", func() {
			idx := mv.Total.RowIndex(date(2024, 1, 31))
			Expect(mv.PerTicker[portfolio.Tactic].Column("X")[idx]).To(BeNumerically("~", 100*priceDf.Vals[0][idx], 1e-9))
		})

		It("has Global equal to the sum of the funds", func() {
			for _, frame := range []*dataframe.DataFrame{mv.Securities, mv.Cash, mv.Total} {
				tactic := frame.Column("Tactic")
				strategic := frame.Column("Strategic")
				for rowIdx, val := range frame.Column("Global") {
					Expect(val).To(BeNumerically("~", tactic[rowIdx]+strategic[rowIdx], 1e-9))
				}
			}
		})

		It("treats missing prices as zero value", func() {
			sparse := priceDf.Select("X")
			rec, err := portfolio.Reconstruct(calendar, trxs, nil, nil)
			Expect(err).To(BeNil())
			values := portfolio.NewMarketValues(sparse, rec.Holdings, rec.Cash)
			for _, val := range values.PerTicker[portfolio.Strategic].Column("Y") {
				Expect(val).To(Equal(0.0))
			}
		})

		It("computes proportions of the last date", func() {
			pies := mv.Proportions()
			Expect(pies).To(HaveLen(3))
			Expect(pies[0].Fund).To(Equal(portfolio.Tactic))
			Expect(pies[0].Members).To(HaveLen(1))
			Expect(pies[0].Members["X"]).To(BeNumerically("~", 1.0, 1e-12))

			total := 0.0
			for _, share := range pies[2].Members {
				total += share
			}
			Expect(total).To(BeNumerically("~", 1.0, 1e-12))
			Expect(pies[2].Tickers()).To(HaveLen(2))
		})

		It("flags short positions", func() {
			short := append(trxs, &portfolio.Transaction{Date: date(2024, 3, 1), Fund: portfolio.Tactic, Ticker: "Y", Quantity: -10, Price: 49})
			rec, err := portfolio.Reconstruct(calendar, short, nil, nil)
			Expect(err).To(BeNil())
			pies := portfolio.NewMarketValues(priceDf, rec.Holdings, rec.Cash).Proportions()
			Expect(pies[0].Short("Y")).To(BeTrue())
			Expect(pies[0].Short("X")).To(BeFalse())
		})
	})

	Describe("Snapshot", func() {
		It("reports holdings and price as of the date", func() {
			rec, err := portfolio.Reconstruct(calendar, trxs, divs, investments)
			Expect(err).To(BeNil())

			snap, err := rec.Holdings.Snapshot("Today", date(2024, 2, 3), priceDf)
			Expect(err).To(BeNil())
			Expect(snap.Rows).To(HaveLen(2))
			Expect(snap.Rows[0].Ticker).To(Equal("X"))
			Expect(snap.Rows[0].Tactic).To(Equal(60.0))
			Expect(snap.Rows[0].Strategic).To(Equal(30.0))
			Expect(snap.Rows[0].Price).To(Equal(priceDf.Value("X", date(2024, 2, 2))))
		})

		It("errors before the calendar", func() {
			rec, err := portfolio.Reconstruct(calendar, trxs, divs, investments)
			Expect(err).To(BeNil())
			_, err = rec.Holdings.Snapshot("Tactic 1", date(2023, 12, 1), priceDf)
			Expect(err).To(MatchError(ContainSubstring("Tactic 1")))
		})
	})

	Describe("Parsing", func() {
		It("reads transactions and skips malformed rows", func() {
			sheet := workbook.NewTable("Transactions",
				[]string{"Date", "Type", "Ticker", "Quantity", "Price"},
				[]workbook.Cell{workbook.Date(date(2024, 1, 2)), workbook.Str("Tactic"), workbook.Str("X"), workbook.Num(10), workbook.Num(5)},
				[]workbook.Cell{workbook.Date(date(2024, 1, 1)), workbook.Str("Strategic"), workbook.Str("Y"), workbook.Num(-5), workbook.Num(7)},
				[]workbook.Cell{workbook.Date(date(2024, 1, 3)), workbook.Str("Unknown"), workbook.Str("Y"), workbook.Num(1), workbook.Num(1)},
				[]workbook.Cell{{}, workbook.Str("Tactic"), workbook.Str("Y"), workbook.Num(1), workbook.Num(1)},
			)
			parsed, err := portfolio.ParseTransactions(sheet)
			Expect(err).To(BeNil())
			Expect(parsed).To(HaveLen(2))
			Expect(parsed[0].Fund).To(Equal(portfolio.Strategic))
			Expect(parsed[0].Value().Equal(decimal.NewFromInt(35))).To(BeTrue())
		})

		It("settles a transaction without a price at zero and warns", func() {
			var buf bytes.Buffer
			orig := log.Logger
			log.Logger = zerolog.New(&buf)
			defer func() { log.Logger = orig }()

			sheet := workbook.NewTable("Transactions",
				[]string{"Date", "Type", "Ticker", "Quantity", "Price"},
				[]workbook.Cell{workbook.Date(date(2024, 1, 2)), workbook.Str("Tactic"), workbook.Str("X"), workbook.Num(10), {}},
				[]workbook.Cell{workbook.Date(date(2024, 1, 3)), workbook.Str("Tactic"), workbook.Str("Y"), workbook.Num(4), workbook.Str("n/a")},
			)
			parsed, err := portfolio.ParseTransactions(sheet)
			Expect(err).To(BeNil())
			Expect(parsed).To(HaveLen(2))
			Expect(parsed[0].Price).To(Equal(0.0))
			Expect(parsed[1].Price).To(Equal(0.0))
			Expect(parsed[0].Value().IsZero()).To(BeTrue())
			Expect(strings.Count(buf.String(), "transaction has no price")).To(Equal(2))
		})

		It("requires the investment columns", func() {
			_, err := portfolio.ParseInvestments(workbook.NewTable("Investments", []string{"Date", "Amount"}))
			Expect(err).To(MatchError(portfolio.ErrMissingColumn))
		})

		It("reads investments", func() {
			parsed, err := portfolio.ParseInvestments(workbook.NewTable("Investments",
				[]string{"Date", "Type", "Amount"},
				[]workbook.Cell{workbook.Str("2024-01-05"), workbook.Str("strategic"), workbook.Str("1,000.50")},
			))
			Expect(err).To(BeNil())
			Expect(parsed).To(HaveLen(1))
			Expect(parsed[0].Amount.String()).To(Equal("1000.5"))
			Expect(math.IsNaN(parsed[0].Amount.InexactFloat64())).To(BeFalse())
		})
	})
})
