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

package data_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/fundperf/common"
	"github.com/penny-vault/fundperf/data"
)

const holdingsJSON = `{
  "meta": {"fund": "XUS", "count": 3},
  "aaData": {
    "holdings": [
      {"Ticker": "AAPL", "Name": "APPLE INC", "Sector": "Information Technology", "Asset Class": "Equity",
       "Market Value": "1,000.50", "Weight (%)": 0.5, "Location": "United States", "Currency": "USD"},
      {"security": {"symbol": "MSFT", "securityName": "MICROSOFT CORP", "gicsSector": "Information Technology", "assetType": "Equity"},
       "Market Value": 800, "Weight (%)": "0.4"},
      {"Ticker": "CAD", "Name": "CASH", "Asset Class": "Cash", "Market Value": 199.5, "Weight (%)": 0.1}
    ]
  }
}`

const holdingsCSV = "\xef\xbb\xbfiShares Canadian Corporate Bond Index ETF\r\n" +
	"Fund Holdings as of,\"Mar 01, 2024\"\r\n" +
	"\r\n" +
	"Ticker,Name,Sector,Asset Class,Market Value,Weight (%),Notional Value,Shares,Price,Location,Exchange,Currency,FX Rate,Market Currency,Duration,Coupon (%),Maturity\r\n" +
	"RY,ROYAL BANK OF CANADA,Financials,Fixed Income,\"12,345.00\",61.5,\"12,345.00\",\"12,000.00\",102.88,Canada,-,CAD,1.00,CAD,3.10,4.64,\"Jan 15, 2027\"\r\n" +
	"TD,TORONTO-DOMINION BANK,Financials,Fixed Income,\"9,876.00\",38.5,\"9,876.00\",\"10,000.00\",98.76,Canada,-,CAD,1.00,CAD,-,5.42,\"Jul 10, 2026\"\r\n" +
	"\r\n" +
	"\"The content contained herein is owned or licensed by BlackRock\"\r\n"

func fetchBody(ctx context.Context, client *data.Client, url string) ([]byte, error) {
	var res []byte
	err := client.Fetch(ctx, url, func(body []byte) error {
		res = body
		return nil
	})
	return res, err
}

var _ = Describe("Vendor client", func() {
	var (
		httpClient *http.Client
		ctx        context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		httpClient = data.NewHTTPClient(5 * time.Second)
		httpmock.ActivateNonDefault(httpClient)
	})

	AfterEach(func() {
		httpmock.DeactivateAndReset()
	})

	It("reports HTTP errors as vendor fetch errors", func() {
		httpmock.RegisterResponder("GET", "https://vendor.test/down", httpmock.NewStringResponder(503, "unavailable"))

		client := data.NewClient(httpClient)
		_, err := fetchBody(ctx, client, "https://vendor.test/down")
		Expect(errors.Is(err, data.ErrVendorFetch)).To(BeTrue())
	})

	It("sends a browser user agent", func() {
		var agent string
		httpmock.RegisterResponder("GET", "https://vendor.test/ua", func(req *http.Request) (*http.Response, error) {
			agent = req.Header.Get("User-Agent")
			return httpmock.NewStringResponse(200, "ok"), nil
		})

		client := data.NewClient(httpClient)
		body, err := fetchBody(ctx, client, "https://vendor.test/ua")
		Expect(err).To(BeNil())
		Expect(string(body)).To(Equal("ok"))
		Expect(agent).To(Equal(data.DefaultUserAgent))
	})

	It("serves repeated requests from the cache", func() {
		httpmock.RegisterResponder("GET", "https://vendor.test/cached", httpmock.NewStringResponder(200, "payload"))

		cache, err := common.NewCache(common.CacheConfig{LocalSize: 8, TTL: time.Minute})
		Expect(err).To(BeNil())
		client := data.NewClient(httpClient, data.WithCache(cache), data.WithRateLimit(100, 1))

		for ii := 0; ii < 3; ii++ {
			body, err := fetchBody(ctx, client, "https://vendor.test/cached")
			Expect(err).To(BeNil())
			Expect(string(body)).To(Equal("payload"))
		}
		Expect(httpmock.GetTotalCallCount()).To(Equal(1))
	})

	It("does not cache a payload the decoder rejects", func() {
		calls := 0
		httpmock.RegisterResponder("GET", "https://vendor.test/nav/7", func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(200, "<html>maintenance</html>"), nil
			}
			return httpmock.NewStringResponse(200, `[{"date": "03/01/2024", "value": "$12.50"}]`), nil
		})

		cache, err := common.NewCache(common.CacheConfig{LocalSize: 8, TTL: time.Minute})
		Expect(err).To(BeNil())
		src := data.NewNAVSource(data.NewClient(httpClient, data.WithCache(cache)), "https://vendor.test/nav/{key}")
		fund := data.NAVFund{Ticker: "NBC7", Key: 7}

		_, err = src.Fetch(ctx, fund)
		Expect(errors.Is(err, data.ErrDataShape)).To(BeTrue())
		Expect(cache.Len()).To(Equal(0))

		for ii := 0; ii < 2; ii++ {
			nav, err := src.Fetch(ctx, fund)
			Expect(err).To(BeNil())
			Expect(nav.Vals[0]).To(Equal([]float64{12.5}))
		}
		Expect(calls).To(Equal(2))
	})
})

var _ = Describe("NAV", func() {
	It("parses dollar values and sorts by date", func() {
		df, err := data.ParseNAV("NBC5703", []byte(`[
			{"date": "03/01/2024", "value": "$12.50"},
			{"date": "02/29/2024", "value": "$12.34"},
			{"date": "02/28/2024", "value": 12.1}
		]`))
		Expect(err).To(BeNil())
		Expect(df.ColNames).To(Equal([]string{"NBC5703"}))
		Expect(df.Dates).To(Equal([]time.Time{
			time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		}))
		Expect(df.Vals[0]).To(Equal([]float64{12.1, 12.34, 12.5}))
	})

	It("returns an empty series for an empty payload", func() {
		df, err := data.ParseNAV("NBC5703", []byte(`[]`))
		Expect(err).To(BeNil())
		Expect(df.Len()).To(Equal(0))
	})

	It("rejects a payload that is not a list", func() {
		_, err := data.ParseNAV("NBC5703", []byte(`{"error": "bad fund"}`))
		Expect(errors.Is(err, data.ErrDataShape)).To(BeTrue())
	})

	It("continues without funds that fail to download", func() {
		httpClient := data.NewHTTPClient(5 * time.Second)
		httpmock.ActivateNonDefault(httpClient)
		defer httpmock.DeactivateAndReset()

		src := data.NewNAVSource(data.NewClient(httpClient), "https://nav.test/fund?key={key}")
		httpmock.RegisterResponder("GET", "https://nav.test/fund?key=1",
			httpmock.NewStringResponder(200, `[{"date": "01/02/2024", "value": "$10.00"}]`))
		httpmock.RegisterResponder("GET", "https://nav.test/fund?key=2",
			httpmock.NewStringResponder(500, "boom"))

		df := src.FetchAll(context.Background(), []data.NAVFund{
			{Ticker: "GOOD", Key: 1},
			{Ticker: "BAD", Key: 2},
		})
		Expect(df.ColNames).To(Equal([]string{"GOOD"}))
		Expect(df.Value("GOOD", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))).To(Equal(10.0))
	})

	It("substitutes the fund key into the default endpoint", func() {
		src := data.NewNAVSource(data.NewClient(nil), "")
		Expect(src.URL(data.DefaultNAVFunds()[0])).To(ContainSubstring("fundKey=105946&"))
	})
})

var _ = Describe("Constituents", func() {
	Context("JSON payloads", func() {
		It("finds the first list of objects and falls back to the security object", func() {
			cs, err := data.ParseConstituentsJSON("XUS", []byte(holdingsJSON), "")
			Expect(err).To(BeNil())
			Expect(cs).To(HaveLen(3))

			Expect(cs[0].ETF).To(Equal("XUS"))
			Expect(cs[0].Ticker).To(Equal("AAPL"))
			Expect(cs[0].MarketValue).To(Equal(1000.5))
			Expect(cs[0].Weight).To(BeNumerically("~", 50, 1e-9))
			Expect(cs[0].Location).To(Equal("United States"))
			Expect(math.IsNaN(cs[0].Duration)).To(BeTrue())

			Expect(cs[1].Ticker).To(Equal("MSFT"))
			Expect(cs[1].Name).To(Equal("MICROSOFT CORP"))
			Expect(cs[1].Sector).To(Equal("Information Technology"))
			Expect(cs[1].AssetClass).To(Equal("Equity"))
			Expect(cs[1].Weight).To(BeNumerically("~", 40, 1e-9))
		})

		It("follows a configured JSON path", func() {
			cs, err := data.ParseConstituentsJSON("XUS", []byte(holdingsJSON), "$.aaData.holdings")
			Expect(err).To(BeNil())
			Expect(cs).To(HaveLen(3))
		})

		It("drops rows up to an embedded header row", func() {
			body := `[{"Ticker": "Fund Holdings as of"}, {"Ticker": "Ticker", "Weight (%)": "Weight (%)"},
				{"Ticker": "RY", "Weight (%)": 60}, {"Ticker": "TD", "Weight (%)": 40}]`
			cs, err := data.ParseConstituentsJSON("XIU", []byte(body), "")
			Expect(err).To(BeNil())
			Expect(cs).To(HaveLen(2))
			Expect(cs[0].Ticker).To(Equal("RY"))
			Expect(cs[0].Weight).To(Equal(60.0))
		})

		It("rejects payloads without tickers", func() {
			_, err := data.ParseConstituentsJSON("XIU", []byte(`[{"Name": "A", "Weight (%)": 10}]`), "")
			Expect(errors.Is(err, data.ErrDataShape)).To(BeTrue())
		})

		It("rejects payloads without weight or market value", func() {
			_, err := data.ParseConstituentsJSON("XIU", []byte(`[{"Ticker": "RY", "Name": "ROYAL BANK"}]`), "")
			Expect(errors.Is(err, data.ErrDataShape)).To(BeTrue())
		})

		It("reports a payload with no list of objects", func() {
			_, err := data.ParseConstituentsJSON("XIU", []byte(`{"status": "ok", "rows": [1, 2, 3]}`), "")
			Expect(errors.Is(err, data.ErrNoHoldings)).To(BeTrue())
		})
	})

	Context("CSV payloads", func() {
		It("reads the table between the header line and the first blank line", func() {
			cs, err := data.ParseConstituentsCSV("XCB", []byte(holdingsCSV))
			Expect(err).To(BeNil())
			Expect(cs).To(HaveLen(2))

			Expect(cs[0].ETF).To(Equal("XCB"))
			Expect(cs[0].Ticker).To(Equal("RY"))
			Expect(cs[0].MarketValue).To(Equal(12345.0))
			Expect(cs[0].Shares).To(Equal(12000.0))
			Expect(cs[0].Weight).To(Equal(61.5))
			Expect(cs[0].Duration).To(Equal(3.10))
			Expect(cs[0].Coupon).To(Equal(4.64))
			Expect(cs[0].Maturity).To(Equal("Jan 15, 2027"))
			Expect(cs[0].IsFixedIncome()).To(BeTrue())

			Expect(cs[1].Ticker).To(Equal("TD"))
			Expect(math.IsNaN(cs[1].Duration)).To(BeTrue())
		})

		It("scales fractional weights to percent", func() {
			body := "Ticker,Name,Weight (%)\nRY,ROYAL BANK,0.75\nTD,TD BANK,0.25\n"
			cs, err := data.ParseConstituentsCSV("XIU", []byte(body))
			Expect(err).To(BeNil())
			Expect(cs[0].Weight).To(BeNumerically("~", 75, 1e-9))
			Expect(cs[1].Weight).To(BeNumerically("~", 25, 1e-9))
		})

		It("fails when no header line exists", func() {
			_, err := data.ParseConstituentsCSV("XIU", []byte("nothing to see here\n"))
			Expect(errors.Is(err, data.ErrDataShape)).To(BeTrue())
		})
	})

	Context("fetching", func() {
		var (
			httpClient *http.Client
			src        *data.HoldingsSource
			asOf       time.Time
		)

		BeforeEach(func() {
			httpClient = data.NewHTTPClient(5 * time.Second)
			httpmock.ActivateNonDefault(httpClient)
			src = data.NewHoldingsSource(data.NewClient(httpClient), data.HoldingsConfig{
				BaseURL:     "https://etf.test/products",
				Concurrency: 2,
				ETFs: map[string]string{
					"XUS": "1/xus",
					"XCB": "2/xcb",
				},
			})
			asOf = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		})

		AfterEach(func() {
			httpmock.DeactivateAndReset()
		})

		It("builds the vendor urls", func() {
			Expect(src.JSONURL("1/xus", asOf, false)).To(Equal("https://etf.test/products/1/xus/1464253357814.ajax?asOfDate=20240301&fileType=json&tab=lookthrus"))
			Expect(src.JSONURL("1/xus", time.Time{}, true)).To(Equal("https://etf.test/products/1/xus/1464253357804.ajax?fileType=json&tab=lookthrus"))
			Expect(src.CSVURL("2/xcb", "XCB")).To(Equal("https://etf.test/products/2/xcb/1464253357814.ajax?dataType=fund&fileName=XCB_holdings&fileType=csv"))
		})

		It("falls back from json to csv and stamps the effective date", func() {
			httpmock.RegisterResponder("GET", src.JSONURL("2/xcb", asOf, false), httpmock.NewStringResponder(404, "missing"))
			httpmock.RegisterResponder("GET", src.JSONURL("2/xcb", asOf, true), httpmock.NewStringResponder(200, "<html>not json</html>"))
			httpmock.RegisterResponder("GET", src.CSVURL("2/xcb", "XCB"), httpmock.NewStringResponder(200, holdingsCSV))

			cs, err := src.Fetch(context.Background(), "XCB", asOf)
			Expect(err).To(BeNil())
			Expect(cs).To(HaveLen(2))
			for _, c := range cs {
				Expect(c.EffectiveDate).To(Equal(asOf))
			}
		})

		It("rejects an etf without an endpoint", func() {
			_, err := src.Fetch(context.Background(), "ZZZ", asOf)
			Expect(errors.Is(err, data.ErrUnknownETF)).To(BeTrue())
		})

		It("excludes etfs that fail from the combined result", func() {
			httpmock.RegisterResponder("GET", src.JSONURL("1/xus", asOf, false), httpmock.NewStringResponder(200, holdingsJSON))

			cs := src.FetchAll(context.Background(), []string{"XUS", "XCB", "ZZZ"}, asOf)
			Expect(cs).To(HaveLen(3))

			etfs := map[string]bool{}
			for _, c := range cs {
				etfs[c.ETF] = true
			}
			Expect(etfs).To(Equal(map[string]bool{"XUS": true}))
		})

		It("lists the configured etfs in order", func() {
			Expect(src.ETFs()).To(Equal([]string{"XCB", "XUS"}))
		})
	})
})
