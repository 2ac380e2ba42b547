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
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/penny-vault/fundperf/dataframe"
	"github.com/penny-vault/fundperf/prices"
)

// Holdings are the cumulative quantities of every ticker per fund on the price
// calendar. Every fund frame has the same tickers as columns.
type Holdings struct {
	Calendar   []time.Time
	Tickers    []string
	Quantities map[Fund]*dataframe.DataFrame
}

// Reconstruction is the result of replaying the transaction history
type Reconstruction struct {
	Holdings *Holdings
	Cash     *CashLedger
}

// Reconstruct replays transactions, dividends and investments over the price
// calendar. Holdings before a ticker's first transaction are zero, dividends are
// paid on the quantity held the last calendar day before the ex-date and every
// transaction settles against the fund's cash.
func Reconstruct(calendar []time.Time, trxs []*Transaction, divs []*prices.Dividend, investments []*Investment) (*Reconstruction, error) {
	if len(calendar) == 0 {
		return nil, ErrEmptyCalendar
	}

	holdings := buildHoldings(calendar, trxs)
	ledger := NewCashLedger()

	for _, trx := range trxs {
		ledger.Add(&CashFlow{
			Date:   trx.Date,
			Fund:   trx.Fund,
			Kind:   SettlementFlow,
			Ticker: trx.Ticker,
			Amount: trx.Value(),
		})
	}

	for _, inv := range investments {
		ledger.Add(&CashFlow{
			Date:   inv.Date,
			Fund:   inv.Fund,
			Kind:   ExternalFlow,
			Amount: inv.Amount,
		})
	}

	for _, div := range divs {
		for _, flow := range holdings.Entitlements(div) {
			ledger.Add(flow)
		}
	}

	log.Debug().Int("Tickers", len(holdings.Tickers)).Int("Flows", len(ledger.Flows())).Msg("reconstructed holdings and cash")

	return &Reconstruction{
		Holdings: holdings,
		Cash:     ledger,
	}, nil
}

func buildHoldings(calendar []time.Time, trxs []*Transaction) *Holdings {
	tickerSet := make(map[string]bool)
	tickers := make([]string, 0)
	for _, trx := range trxs {
		if !tickerSet[trx.Ticker] {
			tickerSet[trx.Ticker] = true
			tickers = append(tickers, trx.Ticker)
		}
	}
	sort.Strings(tickers)

	holdings := &Holdings{
		Calendar:   calendar,
		Tickers:    tickers,
		Quantities: make(map[Fund]*dataframe.DataFrame, len(AllFunds)),
	}

	global := dataframe.New(calendar, tickers, 0)
	for _, fund := range Components {
		dates := make([]time.Time, 0)
		for _, trx := range trxs {
			if trx.Fund == fund {
				dates = append(dates, trx.Date)
			}
		}

		deltas := dataframe.New(dataframe.UnionDates(dates), tickers, 0)
		for _, trx := range trxs {
			if trx.Fund == fund {
				deltas.Column(trx.Ticker)[deltas.RowIndex(trx.Date)] += trx.Quantity
			}
		}

		quantities := deltas.CumSum().ReindexAsOf(calendar, 0)
		holdings.Quantities[fund] = quantities
		global = global.Add(quantities)
	}
	holdings.Quantities[Global] = global

	return holdings
}

// Quantity returns the holding of ticker in fund as of date
func (holdings *Holdings) Quantity(fund Fund, ticker string, date time.Time) float64 {
	df, ok := holdings.Quantities[fund]
	if !ok {
		return 0
	}
	col := df.Column(ticker)
	rowIdx := df.AsOfIndex(date)
	if col == nil || rowIdx == -1 {
		return 0
	}
	return col[rowIdx]
}

// Entitlements computes the cash each component fund receives from div. The
// quantity used is the holding on the last calendar day strictly before the
// ex-date; dividends without such a day, or with an ex-date past the end of the
// calendar, pay nothing.
func (holdings *Holdings) Entitlements(div *prices.Dividend) []*CashFlow {
	subLog := log.With().Object("Dividend", div).Logger()
	if div.ExDate.IsZero() {
		subLog.Debug().Msg("dividend has no ex-date; skipping")
		return nil
	}

	cal := &dataframe.DataFrame{Dates: holdings.Calendar}
	if div.ExDate.After(cal.End()) {
		subLog.Warn().Msg("ex-date is after the last price date; skipping")
		return nil
	}

	rowIdx := cal.BeforeIndex(div.ExDate)
	if rowIdx == -1 {
		subLog.Warn().Msg("no price date before the ex-date; skipping")
		return nil
	}

	flows := make([]*CashFlow, 0, len(Components))
	for _, fund := range Components {
		col := holdings.Quantities[fund].Column(div.Asset)
		if col == nil || col[rowIdx] == 0 {
			continue
		}
		flows = append(flows, &CashFlow{
			Date:   div.Payable,
			Fund:   fund,
			Kind:   DividendFlow,
			Ticker: div.Asset,
			Amount: decimal.NewFromFloat(col[rowIdx]).Mul(decimal.NewFromFloat(div.Amount)),
		})
	}
	return flows
}
