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

	"github.com/shopspring/decimal"

	"github.com/penny-vault/fundperf/dataframe"
)

// FlowKind is the source of a cash flow
type FlowKind string

const (
	ExternalFlow   FlowKind = "External"
	SettlementFlow FlowKind = "Settlement"
	DividendFlow   FlowKind = "Dividend"
)

// CashFlow is a single movement of cash in a fund
type CashFlow struct {
	Date   time.Time
	Fund   Fund
	Kind   FlowKind
	Ticker string
	Amount decimal.Decimal
}

// CashLedger records the cash flows of every component fund. Balances are exact
// sums of the recorded flows.
type CashLedger struct {
	flows  []*CashFlow
	sorted bool
}

// NewCashLedger creates an empty ledger
func NewCashLedger() *CashLedger {
	return &CashLedger{
		flows:  make([]*CashFlow, 0),
		sorted: true,
	}
}

// Add records a flow; zero amounts are ignored
func (ledger *CashLedger) Add(flow *CashFlow) {
	if flow.Amount.IsZero() {
		return
	}
	ledger.flows = append(ledger.flows, flow)
	ledger.sorted = false
}

// Flows returns every flow ordered by date
func (ledger *CashLedger) Flows() []*CashFlow {
	if !ledger.sorted {
		sort.SliceStable(ledger.flows, func(i, j int) bool {
			return ledger.flows[i].Date.Before(ledger.flows[j].Date)
		})
		ledger.sorted = true
	}
	return ledger.flows
}

// Dates returns the distinct dates with at least one flow
func (ledger *CashLedger) Dates() []time.Time {
	dates := make([]time.Time, 0, len(ledger.flows))
	for _, flow := range ledger.Flows() {
		if len(dates) == 0 || !dates[len(dates)-1].Equal(flow.Date) {
			dates = append(dates, flow.Date)
		}
	}
	return dates
}

func matches(flow *CashFlow, fund Fund, kinds []FlowKind) bool {
	if fund != Global && flow.Fund != fund {
		return false
	}
	if len(kinds) == 0 {
		return true
	}
	for _, kind := range kinds {
		if flow.Kind == kind {
			return true
		}
	}
	return false
}

// Balance returns the cumulative cash of fund through date (inclusive). The Global
// balance is the sum of the component funds.
func (ledger *CashLedger) Balance(fund Fund, date time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, flow := range ledger.Flows() {
		if flow.Date.After(date) {
			break
		}
		if matches(flow, fund, nil) {
			total = total.Add(flow.Amount)
		}
	}
	return total
}

// FlowFrame sums flows of the given kinds per date with one column per fund
// (including Global). All kinds are included when none are given.
func (ledger *CashLedger) FlowFrame(kinds ...FlowKind) *dataframe.DataFrame {
	dates := ledger.Dates()
	sums := make([][]decimal.Decimal, len(AllFunds))
	for fundIdx := range sums {
		sums[fundIdx] = make([]decimal.Decimal, len(dates))
	}

	rowIdx := -1
	var current time.Time
	for _, flow := range ledger.Flows() {
		if rowIdx == -1 || !flow.Date.Equal(current) {
			rowIdx++
			current = flow.Date
		}
		for fundIdx, fund := range AllFunds {
			if matches(flow, fund, kinds) {
				sums[fundIdx][rowIdx] = sums[fundIdx][rowIdx].Add(flow.Amount)
			}
		}
	}

	df := dataframe.New(dates, FundNames(AllFunds), 0)
	for fundIdx := range sums {
		for rowIdx, val := range sums[fundIdx] {
			df.Vals[fundIdx][rowIdx] = val.InexactFloat64()
		}
	}
	return df
}

// Balances returns the cumulative balance of every fund on each flow date
func (ledger *CashLedger) Balances() *dataframe.DataFrame {
	dates := ledger.Dates()
	df := dataframe.New(dates, FundNames(AllFunds), 0)
	running := make([]decimal.Decimal, len(AllFunds))

	flows := ledger.Flows()
	flowIdx := 0
	for rowIdx, date := range dates {
		for ; flowIdx < len(flows) && flows[flowIdx].Date.Equal(date); flowIdx++ {
			for fundIdx, fund := range AllFunds {
				if matches(flows[flowIdx], fund, nil) {
					running[fundIdx] = running[fundIdx].Add(flows[flowIdx].Amount)
				}
			}
		}
		for fundIdx := range running {
			df.Vals[fundIdx][rowIdx] = running[fundIdx].InexactFloat64()
		}
	}
	return df
}

// AlignFlows moves flows onto calendar, summing every flow into the first calendar
// date on or after it. Flows after the last calendar date are dropped.
func AlignFlows(flows *dataframe.DataFrame, calendar []time.Time) *dataframe.DataFrame {
	aligned := dataframe.New(calendar, flows.ColNames, 0)
	target := &dataframe.DataFrame{Dates: calendar}
	for rowIdx, date := range flows.Dates {
		calIdx := target.BeforeIndex(date) + 1
		if calIdx >= len(calendar) {
			continue
		}
		for colIdx, col := range flows.Vals {
			aligned.Vals[colIdx][calIdx] += col[rowIdx]
		}
	}
	return aligned
}
