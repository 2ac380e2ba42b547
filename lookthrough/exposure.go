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
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/penny-vault/fundperf/dataframe"
)

const Unknown = "Unknown"

// Dimension is a descriptive attribute exposures can be grouped by
type Dimension string

const (
	Sector     Dimension = "Sector"
	AssetClass Dimension = "Asset Class"
	Location   Dimension = "Location"
	Currency   Dimension = "Currency"
)

// Dimensions lists every supported grouping
var Dimensions = []Dimension{Sector, AssetClass, Location, Currency}

// Meta describes an underlying security as reported on its latest effective date
type Meta struct {
	Name          string
	Sector        string
	AssetClass    string
	Location      string
	Currency      string
	Duration      float64
	Coupon        float64
	Maturity      string
	ETF           string
	EffectiveDate time.Time
}

// Get returns the dimension value or Unknown when it is missing
func (m *Meta) Get(dim Dimension) string {
	var val string
	if m != nil {
		switch dim {
		case Sector:
			val = m.Sector
		case AssetClass:
			val = m.AssetClass
		case Location:
			val = m.Location
		case Currency:
			val = m.Currency
		}
	}
	if val == "" {
		return Unknown
	}
	return val
}

// IsFixedIncome reports if the security carries a duration or a coupon
func (m *Meta) IsFixedIncome() bool {
	return m != nil && (!math.IsNaN(m.Duration) || !math.IsNaN(m.Coupon))
}

// Exposure is the value of every underlying security held through ETFs
type Exposure struct {
	// Values has one column per underlying security
	Values *dataframe.DataFrame

	// ETFValues is quantity × price of every ETF that has constituents
	ETFValues *dataframe.DataFrame

	Meta map[string]*Meta

	// Held is the number of ETFs in the holdings
	Held int
}

// Row is one non-zero entry of the long form
type Row struct {
	Date       time.Time
	Underlying string
	Exposure   float64
	Meta       *Meta
}

func latestMeta(constituents []*Constituent) map[string]*Meta {
	meta := make(map[string]*Meta)
	for _, c := range constituents {
		if existing, ok := meta[c.Ticker]; ok && !c.EffectiveDate.After(existing.EffectiveDate) {
			continue
		}
		meta[c.Ticker] = &Meta{
			Name:          c.Name,
			Sector:        c.Sector,
			AssetClass:    c.AssetClass,
			Location:      c.Location,
			Currency:      c.Currency,
			Duration:      c.Duration,
			Coupon:        c.Coupon,
			Maturity:      c.Maturity,
			ETF:           c.ETF,
			EffectiveDate: c.EffectiveDate,
		}
	}
	return meta
}

// effectiveWeights returns the fractional weight of every constituent of one ETF.
// Weights are derived from market values when the ETF's market values sum to a
// positive amount, otherwise the reported weights are used. Duplicated tickers are
// summed.
func effectiveWeights(constituents []*Constituent) ([]string, map[string]float64) {
	mvTotal := 0.0
	for _, c := range constituents {
		if !math.IsNaN(c.MarketValue) {
			mvTotal += c.MarketValue
		}
	}

	tickers := make([]string, 0, len(constituents))
	weights := make(map[string]float64, len(constituents))
	for _, c := range constituents {
		pct := c.Weight
		if mvTotal > 0 {
			pct = c.MarketValue / mvTotal * 100
		}
		if math.IsNaN(pct) {
			pct = 0
		}
		if _, ok := weights[c.Ticker]; !ok {
			tickers = append(tickers, c.Ticker)
		}
		weights[c.Ticker] += pct / 100
	}
	return tickers, weights
}

// Decompose spreads the value of every ETF position over its constituents.
// Holdings and prices must use normalized tickers as column names. Exposures of a
// security held by several ETFs add up.
func Decompose(holdings, prices *dataframe.DataFrame, constituents []*Constituent) *Exposure {
	exposure := &Exposure{
		Values:    dataframe.New(holdings.Dates, nil, 0),
		ETFValues: dataframe.New(holdings.Dates, nil, 0),
		Meta:      make(map[string]*Meta),
		Held:      holdings.ColCount(),
	}

	byETF := make(map[string][]*Constituent)
	for _, c := range constituents {
		if c.Ticker == "" {
			continue
		}
		byETF[c.ETF] = append(byETF[c.ETF], c)
	}

	aligned := prices.ReindexAsOf(holdings.Dates, math.NaN())
	etfs := make([]string, 0, holdings.ColCount())
	kept := make([]*Constituent, 0, len(constituents))
	for colIdx, etf := range holdings.ColNames {
		price := aligned.Column(etf)
		if price == nil || len(byETF[etf]) == 0 {
			continue
		}
		value := make([]float64, holdings.Len())
		for rowIdx, qty := range holdings.Vals[colIdx] {
			if v := qty * price[rowIdx]; !math.IsNaN(v) {
				value[rowIdx] = v
			}
		}
		exposure.ETFValues.Insert(etf, value)
		etfs = append(etfs, etf)
		kept = append(kept, byETF[etf]...)
	}

	if len(etfs) == 0 {
		log.Warn().Strs("Holdings", holdings.ColNames).Msg("no held ETF has both a price and constituents")
		return exposure
	}

	exposure.Meta = latestMeta(kept)
	for _, etf := range etfs {
		tickers, weights := effectiveWeights(byETF[etf])
		value := exposure.ETFValues.Column(etf)
		for _, ticker := range tickers {
			col := exposure.Values.Column(ticker)
			if col == nil {
				col = make([]float64, exposure.Values.Len())
				exposure.Values.Insert(ticker, col)
			}
			w := weights[ticker]
			for rowIdx, v := range value {
				col[rowIdx] += v * w
			}
		}
	}

	log.Info().Strs("ETFs", etfs).Int("Underlyers", exposure.Values.ColCount()).Msg("decomposed ETF holdings")
	return exposure
}

// Long returns every non-zero exposure ordered by date then underlying
func (exposure *Exposure) Long() []*Row {
	rows := make([]*Row, 0)
	for rowIdx, date := range exposure.Values.Dates {
		for colIdx, ticker := range exposure.Values.ColNames {
			val := exposure.Values.Vals[colIdx][rowIdx]
			if val == 0 || math.IsNaN(val) {
				continue
			}
			rows = append(rows, &Row{
				Date:       date,
				Underlying: ticker,
				Exposure:   val,
				Meta:       exposure.Meta[ticker],
			})
		}
	}
	return rows
}

// AggregateDimension sums exposures per date by the value of dim. Categories are
// sorted and missing values are grouped under Unknown.
func (exposure *Exposure) AggregateDimension(dim Dimension) *dataframe.DataFrame {
	categories := make([]string, 0)
	seen := make(map[string]bool)
	for _, ticker := range exposure.Values.ColNames {
		cat := exposure.Meta[ticker].Get(dim)
		if !seen[cat] {
			seen[cat] = true
			categories = append(categories, cat)
		}
	}
	sort.Strings(categories)

	res := dataframe.New(exposure.Values.Dates, categories, 0)
	for colIdx, ticker := range exposure.Values.ColNames {
		dst := res.Column(exposure.Meta[ticker].Get(dim))
		for rowIdx, val := range exposure.Values.Vals[colIdx] {
			if !math.IsNaN(val) {
				dst[rowIdx] += val
			}
		}
	}
	return res
}

// NearestDate returns the exposure date closest to date
func (exposure *Exposure) NearestDate(date time.Time) (time.Time, bool) {
	idx := exposure.Values.NearestIndex(date)
	if idx == -1 {
		return time.Time{}, false
	}
	return exposure.Values.Dates[idx], true
}

// Total returns the sum of every underlying exposure on each date
func (exposure *Exposure) Total() *dataframe.DataFrame {
	return exposure.Values.SumColumns("Total")
}
