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

package lookthrough

import (
	"math"
	"strings"

	"github.com/penny-vault/fundperf/dataframe"
)

// NormalizeTicker reduces an exchange decorated ticker to its root:
// "XBB CN Equity" and "xbb.to" both become "XBB"
func NormalizeTicker(raw string) string {
	ticker := strings.ToUpper(strings.TrimSpace(raw))
	if idx := strings.Index(ticker, " "); idx != -1 {
		ticker = ticker[:idx]
	}
	if idx := strings.Index(ticker, "."); idx != -1 {
		ticker = ticker[:idx]
	}
	return ticker
}

func groupColumns(df *dataframe.DataFrame) ([]string, map[string][]int) {
	names := make([]string, 0, df.ColCount())
	groups := make(map[string][]int, df.ColCount())
	for colIdx, colName := range df.ColNames {
		norm := NormalizeTicker(colName)
		if _, ok := groups[norm]; !ok {
			names = append(names, norm)
		}
		groups[norm] = append(groups[norm], colIdx)
	}
	return names, groups
}

// NormalizeHoldings renames quantity columns to their normalized ticker and sums
// columns that collapse to the same ticker
func NormalizeHoldings(df *dataframe.DataFrame) *dataframe.DataFrame {
	names, groups := groupColumns(df)
	res := dataframe.New(df.Dates, names, 0)
	for colIdx, name := range names {
		for _, srcIdx := range groups[name] {
			for rowIdx, val := range df.Vals[srcIdx] {
				if !math.IsNaN(val) {
					res.Vals[colIdx][rowIdx] += val
				}
			}
		}
	}
	return res
}

// NormalizePrices renames price columns to their normalized ticker. When several
// columns collapse to the same ticker the first non-missing price wins.
func NormalizePrices(df *dataframe.DataFrame) *dataframe.DataFrame {
	names, groups := groupColumns(df)
	res := dataframe.New(df.Dates, names, math.NaN())
	for colIdx, name := range names {
		for rowIdx := range df.Dates {
			for _, srcIdx := range groups[name] {
				if val := df.Vals[srcIdx][rowIdx]; !math.IsNaN(val) {
					res.Vals[colIdx][rowIdx] = val
					break
				}
			}
		}
	}
	return res
}
