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
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/penny-vault/fundperf/dataframe"
	"github.com/penny-vault/fundperf/workbook"
)

// Split is a share split; prices on and after ExDate are multiplied by Factor
type Split struct {
	Asset  string
	ExDate time.Time
	Factor float64
}

// ParseSplits reads the splits sheet with Asset, Ex-Date and Split columns. Rows
// missing any of the three are skipped.
func ParseSplits(sheet *workbook.Table) []*Split {
	assetIdx := sheet.ColIndex("Asset")
	exIdx := sheet.ColIndex("Ex-Date")
	factorIdx := -1
	for _, name := range []string{"Split", "Split-factor", "Split Factor"} {
		if factorIdx = sheet.ColIndex(name); factorIdx != -1 {
			break
		}
	}

	if assetIdx == -1 || exIdx == -1 || factorIdx == -1 {
		log.Warn().Str("Sheet", sheet.Name).Strs("Header", sheet.Header).Msg("splits sheet is missing required columns")
		return nil
	}

	splits := make([]*Split, 0, len(sheet.Rows))
	for rowIdx := range sheet.Rows {
		asset := sheet.Cell(rowIdx, assetIdx).String()
		exDate, dateOk := sheet.Cell(rowIdx, exIdx).Date()
		factor, factorOk := sheet.Cell(rowIdx, factorIdx).Float()
		if asset == "" || !dateOk || !factorOk {
			continue
		}
		splits = append(splits, &Split{
			Asset:  asset,
			ExDate: exDate,
			Factor: factor,
		})
	}

	return splits
}

// AdjustPrices applies splits to every price column whose name contains the split
// asset and returns a new dataframe
func AdjustPrices(prices *dataframe.DataFrame, splits []*Split) *dataframe.DataFrame {
	adjusted := prices.Copy()
	for _, split := range splits {
		first := adjusted.BeforeIndex(split.ExDate) + 1
		for colIdx, colName := range adjusted.ColNames {
			if !strings.Contains(colName, split.Asset) {
				continue
			}
			col := adjusted.Vals[colIdx]
			for rowIdx := first; rowIdx < len(col); rowIdx++ {
				col[rowIdx] *= split.Factor
			}
		}
	}
	return adjusted
}
