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
	"fmt"
	"math"
	"time"

	"github.com/penny-vault/fundperf/dataframe"
)

// SnapshotRow is the position of one ticker on a snapshot date
type SnapshotRow struct {
	Ticker    string  `json:"ticker"`
	Tactic    float64 `json:"tactic"`
	Strategic float64 `json:"strategic"`
	Price     float64 `json:"price"`
}

// Snapshot is the state of the component funds on a named report date
type Snapshot struct {
	Label string         `json:"label"`
	Date  time.Time      `json:"date"`
	Rows  []*SnapshotRow `json:"rows"`
}

// Snapshot returns the holdings of every ticker as of date together with its price.
// Missing prices are 0.
func (holdings *Holdings) Snapshot(label string, date time.Time, priceDf *dataframe.DataFrame) (*Snapshot, error) {
	cal := &dataframe.DataFrame{Dates: holdings.Calendar}
	rowIdx := cal.AsOfIndex(date)
	if rowIdx == -1 {
		return nil, fmt.Errorf("%w: %s on %s", ErrDateOutOfRange, label, date.Format("2006-01-02"))
	}

	priceIdx := priceDf.AsOfIndex(date)
	snap := &Snapshot{
		Label: label,
		Date:  date,
		Rows:  make([]*SnapshotRow, 0, len(holdings.Tickers)),
	}

	for _, ticker := range holdings.Tickers {
		row := &SnapshotRow{
			Ticker:    ticker,
			Tactic:    holdings.Quantities[Tactic].Column(ticker)[rowIdx],
			Strategic: holdings.Quantities[Strategic].Column(ticker)[rowIdx],
		}
		if col := priceDf.Column(ticker); col != nil && priceIdx != -1 && !math.IsNaN(col[priceIdx]) {
			row.Price = col[priceIdx]
		}
		snap.Rows = append(snap.Rows, row)
	}

	return snap, nil
}
