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

package prices

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/penny-vault/fundperf/dataframe"
	"github.com/penny-vault/fundperf/workbook"
)

const dividendBlockWidth = 5

// Dividend is one distribution of an asset
type Dividend struct {
	Asset    string
	Declared time.Time
	ExDate   time.Time
	Record   time.Time
	Payable  time.Time
	Amount   float64
}

// MarshalZerologObject implements the zerolog marshaler so a dividend can be logged
func (d *Dividend) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Asset", d.Asset)
	e.Time("ExDate", d.ExDate)
	e.Time("Payable", d.Payable)
	e.Float64("Amount", d.Amount)
}

// ParseDividends reads a sheet of repeating (declared, ex, record, payable, amount)
// blocks. The asset name is the header of the block's first column and the first
// data row of every block is a sub-header. Rows without a payable date are dropped
// and only the first distribution per (payable date, asset) is kept.
func ParseDividends(sheet *workbook.Table) []*Dividend {
	divs := make([]*Dividend, 0)
	seen := make(map[string]map[time.Time]bool)

	for _, block := range sheet.Blocks(dividendBlockWidth, 1) {
		asset := block.Name
		if _, ok := seen[asset]; !ok {
			seen[asset] = make(map[time.Time]bool)
		}

		for rowIdx := range block.Rows {
			payable, ok := block.Cell(rowIdx, 3).Date()
			if !ok || seen[asset][payable] {
				continue
			}
			seen[asset][payable] = true

			div := &Dividend{
				Asset:   asset,
				Payable: payable,
			}
			div.Declared, _ = block.Cell(rowIdx, 0).Date()
			div.ExDate, _ = block.Cell(rowIdx, 1).Date()
			div.Record, _ = block.Cell(rowIdx, 2).Date()
			if amount, ok := block.Cell(rowIdx, 4).Float(); ok {
				div.Amount = amount
			}
			divs = append(divs, div)
		}
	}

	sort.SliceStable(divs, func(i, j int) bool {
		return divs[i].Payable.Before(divs[j].Payable)
	})

	log.Debug().Int("Count", len(divs)).Msg("parsed dividends")
	return divs
}

// BuildDividends pivots distributions into a dataframe indexed by payable date with
// one column per asset and 0 where an asset paid nothing.
func BuildDividends(divs []*Dividend) *dataframe.DataFrame {
	assets := make([]string, 0)
	known := make(map[string]bool)
	dates := make([]time.Time, 0, len(divs))
	for _, div := range divs {
		if !known[div.Asset] {
			known[div.Asset] = true
			assets = append(assets, div.Asset)
		}
		dates = append(dates, div.Payable)
	}

	df := dataframe.New(dataframe.UnionDates(dates), assets, 0)
	for _, div := range divs {
		amount := div.Amount
		if math.IsNaN(amount) {
			amount = 0
		}
		df.Column(div.Asset)[df.RowIndex(div.Payable)] = amount
	}

	return df
}
