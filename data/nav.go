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

package data

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/penny-vault/fundperf/dataframe"
	"github.com/penny-vault/fundperf/workbook"
)

// DefaultNAVURL is the historical NAV endpoint; {key} is replaced by the fund key
const DefaultNAVURL = "https://www.nbinvestments.ca/bin/fundDetailsHistoricalData?fundKey={key}&period=custom&startDate=&endDate=&lang=en"

// NAVFund identifies a mutual fund whose NAV history is merged into the price table
type NAVFund struct {
	Ticker string `mapstructure:"ticker" json:"ticker"`
	Key    int    `mapstructure:"key" json:"key"`
	Name   string `mapstructure:"name" json:"name"`
}

// DefaultNAVFunds returns the funds fetched when none are configured
func DefaultNAVFunds() []NAVFund {
	return []NAVFund{
		{Ticker: "NBC5703", Key: 105946, Name: "NBI International Equity Fund"},
	}
}

type navRecord struct {
	Date  string      `json:"date"`
	Value interface{} `json:"value"`
}

// NAVSource fetches fund NAV histories
type NAVSource struct {
	client      *Client
	urlTemplate string
}

// NewNAVSource creates a NAV source; an empty urlTemplate uses DefaultNAVURL
func NewNAVSource(client *Client, urlTemplate string) *NAVSource {
	if urlTemplate == "" {
		urlTemplate = DefaultNAVURL
	}
	return &NAVSource{
		client:      client,
		urlTemplate: urlTemplate,
	}
}

// URL returns the endpoint for fund
func (src *NAVSource) URL(fund NAVFund) string {
	return strings.ReplaceAll(src.urlTemplate, "{key}", strconv.Itoa(fund.Key))
}

// Fetch downloads the NAV history of fund as a single column named by its ticker
func (src *NAVSource) Fetch(ctx context.Context, fund NAVFund) (*dataframe.DataFrame, error) {
	var nav *dataframe.DataFrame
	err := src.client.Fetch(ctx, src.URL(fund), func(body []byte) (err error) {
		nav, err = ParseNAV(fund.Ticker, body)
		return err
	})
	return nav, err
}

// FetchAll downloads every fund and merges the results. A fund that fails is
// logged and left out.
func (src *NAVSource) FetchAll(ctx context.Context, funds []NAVFund) *dataframe.DataFrame {
	res := dataframe.New(nil, nil, 0)
	for _, fund := range funds {
		subLog := log.With().Str("Ticker", fund.Ticker).Int("FundKey", fund.Key).Logger()
		nav, err := src.Fetch(ctx, fund)
		if err != nil {
			subLog.Warn().Err(err).Msg("could not fetch fund NAV; continuing without it")
			continue
		}
		if nav.Len() == 0 {
			subLog.Warn().Msg("no NAV data returned for fund")
			continue
		}
		subLog.Info().Int("Rows", nav.Len()).Time("Start", nav.Start()).Time("End", nav.End()).Msg("fetched fund NAV")
		res = res.Merge(nav)
	}
	return res
}

// ParseNAV reads a [{"date":"MM/DD/YYYY","value":"$12.34"}] payload. Later
// records win when a date repeats.
func ParseNAV(ticker string, body []byte) (*dataframe.DataFrame, error) {
	var records []*navRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%w: NAV payload for %s: %s", ErrDataShape, ticker, err)
	}

	values := make(map[time.Time]float64, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		dt, err := time.Parse("01/02/2006", strings.TrimSpace(rec.Date))
		if err != nil {
			return nil, fmt.Errorf("%w: NAV date %q for %s", ErrDataShape, rec.Date, ticker)
		}
		values[dt] = navValue(rec.Value)
	}

	dates := make([]time.Time, 0, len(values))
	for dt := range values {
		dates = append(dates, dt)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	df := dataframe.New(dates, []string{ticker}, math.NaN())
	for idx, dt := range dates {
		df.Vals[0][idx] = values[dt]
	}
	return df, nil
}

func navValue(raw interface{}) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case string:
		if val, ok := workbook.ParseNumber(v); ok {
			return val
		}
	}
	return math.NaN()
}
