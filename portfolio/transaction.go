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
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/penny-vault/fundperf/workbook"
)

var (
	ErrUnknownFund      = errors.New("unknown fund")
	ErrMissingColumn    = errors.New("sheet is missing a required column")
	ErrDateOutOfRange   = errors.New("date is outside of the price calendar")
	ErrBenchmarkAsset   = errors.New("benchmark asset has no weekly returns")
	ErrEmptyCalendar    = errors.New("price calendar is empty")
	ErrInvalidWindow    = errors.New("metric window must be positive")
	ErrMisalignedSeries = errors.New("series are not on the same dates")
)

// Fund is one of the managed sub-portfolios
type Fund string

const (
	Tactic    Fund = "Tactic"
	Strategic Fund = "Strategic"
	Global    Fund = "Global"
)

// Components are the funds that hold positions; Global is their sum
var Components = []Fund{Tactic, Strategic}

// AllFunds lists every fund reported, components first
var AllFunds = []Fund{Tactic, Strategic, Global}

// ParseFund maps a sheet value to a Fund
func ParseFund(s string) (Fund, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tactic", "tactique":
		return Tactic, nil
	case "strategic", "stratégique", "strategique":
		return Strategic, nil
	case "global":
		return Global, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFund, s)
}

// FundNames returns the string names of funds
func FundNames(funds []Fund) []string {
	names := make([]string, len(funds))
	for idx, fund := range funds {
		names[idx] = string(fund)
	}
	return names
}

// Transaction is a signed quantity change of a ticker in a fund. Positive quantities
// are buys.
type Transaction struct {
	Date     time.Time
	Fund     Fund
	Ticker   string
	Quantity float64
	Price    float64
}

// Value is the cash impact of the transaction on the fund
func (trx *Transaction) Value() decimal.Decimal {
	return decimal.NewFromFloat(trx.Quantity).Mul(decimal.NewFromFloat(trx.Price)).Neg()
}

// Investment is an external contribution (positive) or withdrawal (negative)
type Investment struct {
	Date   time.Time
	Fund   Fund
	Amount decimal.Decimal
}

func requireColumns(sheet *workbook.Table, names ...string) ([]int, error) {
	indexes := make([]int, len(names))
	for idx, name := range names {
		indexes[idx] = sheet.ColIndex(name)
		if indexes[idx] == -1 {
			return nil, fmt.Errorf("%w: %s in %s", ErrMissingColumn, name, sheet.Name)
		}
	}
	return indexes, nil
}

// ParseTransactions reads the transactions sheet (Date, Type, Ticker, Quantity,
// Price). Type holds the fund. Rows with a missing date or quantity, or an
// unknown fund, are skipped with a warning.
func ParseTransactions(sheet *workbook.Table) ([]*Transaction, error) {
	cols, err := requireColumns(sheet, "Date", "Type", "Ticker", "Quantity", "Price")
	if err != nil {
		return nil, err
	}

	trxs := make([]*Transaction, 0, len(sheet.Rows))
	for rowIdx := range sheet.Rows {
		date, dateOk := sheet.Cell(rowIdx, cols[0]).Date()
		fund, fundErr := ParseFund(sheet.Cell(rowIdx, cols[1]).String())
		ticker := sheet.Cell(rowIdx, cols[2]).String()
		qty, qtyOk := sheet.Cell(rowIdx, cols[3]).Float()
		price, priceOk := sheet.Cell(rowIdx, cols[4]).Float()

		if !dateOk || !qtyOk || ticker == "" || fundErr != nil || fund == Global {
			log.Warn().Str("Sheet", sheet.Name).Int("Row", rowIdx+2).Str("Ticker", ticker).Msg("skipping malformed transaction")
			continue
		}

		if !priceOk || math.IsNaN(price) {
			log.Warn().Str("Sheet", sheet.Name).Int("Row", rowIdx+2).Str("Ticker", ticker).Msg("transaction has no price; settling at zero")
			price = 0
		}

		trxs = append(trxs, &Transaction{
			Date:     date,
			Fund:     fund,
			Ticker:   ticker,
			Quantity: qty,
			Price:    price,
		})
	}

	sort.SliceStable(trxs, func(i, j int) bool {
		return trxs[i].Date.Before(trxs[j].Date)
	})

	return trxs, nil
}

// ParseInvestments reads the investments sheet (Date, Type, Amount)
func ParseInvestments(sheet *workbook.Table) ([]*Investment, error) {
	cols, err := requireColumns(sheet, "Date", "Type", "Amount")
	if err != nil {
		return nil, err
	}

	investments := make([]*Investment, 0, len(sheet.Rows))
	for rowIdx := range sheet.Rows {
		date, dateOk := sheet.Cell(rowIdx, cols[0]).Date()
		fund, fundErr := ParseFund(sheet.Cell(rowIdx, cols[1]).String())
		amount, amountOk := sheet.Cell(rowIdx, cols[2]).Float()

		if !dateOk || !amountOk || fundErr != nil || fund == Global {
			log.Warn().Str("Sheet", sheet.Name).Int("Row", rowIdx+2).Msg("skipping malformed investment")
			continue
		}

		investments = append(investments, &Investment{
			Date:   date,
			Fund:   fund,
			Amount: decimal.NewFromFloat(amount),
		})
	}

	sort.SliceStable(investments, func(i, j int) bool {
		return investments[i].Date.Before(investments[j].Date)
	})

	return investments, nil
}
