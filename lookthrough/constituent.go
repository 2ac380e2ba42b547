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

// Package lookthrough decomposes ETF positions into the securities the ETFs hold.
package lookthrough

import (
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Column names of a constituents payload
const (
	ColTicker         = "Ticker"
	ColName           = "Name"
	ColSector         = "Sector"
	ColAssetClass     = "Asset Class"
	ColMarketValue    = "Market Value"
	ColWeight         = "Weight (%)"
	ColNotional       = "Notional Value"
	ColShares         = "Shares"
	ColPrice          = "Price"
	ColLocation       = "Location"
	ColExchange       = "Exchange"
	ColCurrency       = "Currency"
	ColFXRate         = "FX Rate"
	ColMarketCurrency = "Market Currency"
	ColDuration       = "Duration"
	ColCoupon         = "Coupon (%)"
	ColMaturity       = "Maturity"
	ColEffectiveDate  = "Effective Date"
)

// TargetColumns are the constituent fields kept from vendor payloads
var TargetColumns = []string{
	ColTicker, ColName, ColSector, ColAssetClass, ColMarketValue, ColWeight,
	ColNotional, ColShares, ColPrice, ColLocation, ColExchange, ColCurrency,
	ColFXRate, ColMarketCurrency, ColDuration, ColCoupon, ColMaturity, ColEffectiveDate,
}

// NumericColumns are parsed as numbers; unparseable values are missing (NaN)
var NumericColumns = map[string]bool{
	ColMarketValue: true,
	ColWeight:      true,
	ColNotional:    true,
	ColShares:      true,
	ColPrice:       true,
	ColFXRate:      true,
	ColDuration:    true,
	ColCoupon:      true,
}

// Constituent is one security held by an ETF on EffectiveDate. Missing numeric
// fields are NaN and missing text fields are empty.
type Constituent struct {
	ETF            string
	Ticker         string
	Name           string
	Sector         string
	AssetClass     string
	MarketValue    float64
	Weight         float64
	Notional       float64
	Shares         float64
	Price          float64
	Location       string
	Exchange       string
	Currency       string
	FXRate         float64
	MarketCurrency string
	Duration       float64
	Coupon         float64
	Maturity       string
	EffectiveDate  time.Time
}

// NewConstituent returns a constituent with every numeric field missing
func NewConstituent(etf string) *Constituent {
	nan := math.NaN()
	return &Constituent{
		ETF:         etf,
		MarketValue: nan,
		Weight:      nan,
		Notional:    nan,
		Shares:      nan,
		Price:       nan,
		FXRate:      nan,
		Duration:    nan,
		Coupon:      nan,
	}
}

// SetText assigns a text column by name; unknown columns are ignored
func (c *Constituent) SetText(col, val string) {
	val = strings.TrimSpace(val)
	switch col {
	case ColTicker:
		c.Ticker = val
	case ColName:
		c.Name = val
	case ColSector:
		c.Sector = val
	case ColAssetClass:
		c.AssetClass = val
	case ColLocation:
		c.Location = val
	case ColExchange:
		c.Exchange = val
	case ColCurrency:
		c.Currency = val
	case ColMarketCurrency:
		c.MarketCurrency = val
	case ColMaturity:
		c.Maturity = val
	}
}

// SetNumber assigns a numeric column by name; unknown columns are ignored
func (c *Constituent) SetNumber(col string, val float64) {
	switch col {
	case ColMarketValue:
		c.MarketValue = val
	case ColWeight:
		c.Weight = val
	case ColNotional:
		c.Notional = val
	case ColShares:
		c.Shares = val
	case ColPrice:
		c.Price = val
	case ColFXRate:
		c.FXRate = val
	case ColDuration:
		c.Duration = val
	case ColCoupon:
		c.Coupon = val
	}
}

// IsFixedIncome reports if the security carries a duration or a coupon
func (c *Constituent) IsFixedIncome() bool {
	return !math.IsNaN(c.Duration) || !math.IsNaN(c.Coupon)
}

func (c *Constituent) MarshalZerologObject(e *zerolog.Event) {
	e.Str("ETF", c.ETF).Str("Ticker", c.Ticker).Str("Name", c.Name).Float64("Weight", c.Weight).Float64("MarketValue", c.MarketValue)
}

// NormalizeWeights scales the weights of one payload to percent when the largest
// weight is at most 1.5, which means the vendor reported fractions
func NormalizeWeights(constituents []*Constituent) {
	maxWeight := math.NaN()
	for _, c := range constituents {
		if math.IsNaN(c.Weight) {
			continue
		}
		if math.IsNaN(maxWeight) || c.Weight > maxWeight {
			maxWeight = c.Weight
		}
	}

	if math.IsNaN(maxWeight) || maxWeight > 1.5 {
		return
	}

	for _, c := range constituents {
		c.Weight *= 100
	}
}

// StripPreamble drops every row up to and including the first row whose ticker is
// the literal column header
func StripPreamble(constituents []*Constituent) []*Constituent {
	for idx, c := range constituents {
		if c.Ticker == ColTicker {
			return constituents[idx+1:]
		}
	}
	return constituents
}
