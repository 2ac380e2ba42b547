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

package prices_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/fundperf/dataframe"
	"github.com/penny-vault/fundperf/prices"
	"github.com/penny-vault/fundperf/workbook"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var (
	num = workbook.Num
	str = workbook.Str
	dt  = func(y int, m time.Month, d int) workbook.Cell { return workbook.Date(date(y, m, d)) }
)

var _ = Describe("Prices", func() {
	Context("with a sheet of (date, price) pairs", func() {
		var (
			sheet *workbook.Table
		)

		BeforeEach(func() {
			sheet = workbook.NewTable("Copy source",
				[]string{"Date", "XBB CN Equity", "Date", "XIU CN Equity"},
				[]workbook.Cell{dt(2024, 1, 2), num(28.0), dt(2024, 1, 2), num(32.0)},
				[]workbook.Cell{dt(2024, 1, 3), num(28.2), dt(2024, 1, 4), num(32.5)},
				[]workbook.Cell{dt(2024, 1, 3), num(99.0), {}, num(50.0)},
				[]workbook.Cell{dt(2024, 1, 5), num(28.4)},
			)
		})

		It("builds a forward filled series on the union of dates", func() {
			df, err := prices.BuildPrices(sheet)
			Expect(err).To(BeNil())
			Expect(df.ColNames).To(Equal([]string{"XBB CN Equity", "XIU CN Equity"}))
			Expect(df.Dates).To(Equal([]time.Time{date(2024, 1, 2), date(2024, 1, 3), date(2024, 1, 4), date(2024, 1, 5)}))
			Expect(df.Column("XBB CN Equity")).To(Equal([]float64{28.0, 28.2, 28.2, 28.4}))
			Expect(df.Column("XIU CN Equity")).To(Equal([]float64{32.0, 32.0, 32.5, 32.5}))
		})

		It("keeps the first duplicate observation", func() {
			df, err := prices.BuildPrices(sheet)
			Expect(err).To(BeNil())
			Expect(df.Value("XBB CN Equity", date(2024, 1, 3))).To(Equal(28.2))
		})

		It("errors without column pairs", func() {
			_, err := prices.BuildPrices(workbook.NewTable("empty", []string{"Date"}))
			Expect(err).To(MatchError(prices.ErrNoPriceColumns))
		})

		It("merges NAV series up to the last sheet date", func() {
			df, err := prices.BuildPrices(sheet)
			Expect(err).To(BeNil())

			nav := &dataframe.DataFrame{
				Dates:    []time.Time{date(2024, 1, 1), date(2024, 1, 3), date(2024, 1, 8)},
				ColNames: []string{"NBC5703"},
				Vals:     [][]float64{{10, 10.5, 11}},
			}
			merged := prices.MergeNAV(df, nav)
			Expect(merged.Start()).To(Equal(date(2024, 1, 1)))
			Expect(merged.End()).To(Equal(date(2024, 1, 5)))
			Expect(merged.Column("NBC5703")).To(Equal([]float64{10, 10, 10.5, 10.5, 10.5}))
			Expect(math.IsNaN(merged.Value("XBB CN Equity", date(2024, 1, 1)))).To(BeTrue())
			Expect(merged.Value("XBB CN Equity", date(2024, 1, 5))).To(Equal(28.4))
		})

		It("leaves prices unchanged when no NAV is available", func() {
			df, err := prices.BuildPrices(sheet)
			Expect(err).To(BeNil())
			Expect(prices.MergeNAV(df, &dataframe.DataFrame{})).To(BeIdenticalTo(df))
		})
	})

	Context("with dividend blocks", func() {
		var (
			sheet *workbook.Table
		)

		BeforeEach(func() {
			sheet = workbook.NewTable("Copy dividends",
				[]string{"XBB CN Equity", "", "", "", "", "XIU CN Equity", "", "", "", ""},
				[]workbook.Cell{str("Declared Date"), str("Ex-Date"), str("Record Date"), str("Payable Date"), str("Dividend Amount"),
					str("Declared Date"), str("Ex-Date"), str("Record Date"), str("Payable Date"), str("Dividend Amount")},
				[]workbook.Cell{dt(2024, 1, 20), dt(2024, 1, 25), dt(2024, 1, 26), dt(2024, 2, 1), num(0.07),
					dt(2024, 3, 15), dt(2024, 3, 20), dt(2024, 3, 21), dt(2024, 4, 2), num(0.25)},
				[]workbook.Cell{dt(2024, 1, 21), dt(2024, 1, 26), dt(2024, 1, 27), dt(2024, 2, 1), num(0.99),
					{}, dt(2024, 6, 20), {}, {}, num(0.25)},
			)
		})

		It("parses the long form without sub-headers, duplicates or missing payable dates", func() {
			divs := prices.ParseDividends(sheet)
			Expect(divs).To(HaveLen(2))
			Expect(divs[0].Asset).To(Equal("XBB CN Equity"))
			Expect(divs[0].ExDate).To(Equal(date(2024, 1, 25)))
			Expect(divs[0].Amount).To(Equal(0.07))
			Expect(divs[1].Asset).To(Equal("XIU CN Equity"))
			Expect(divs[1].Payable).To(Equal(date(2024, 4, 2)))
		})

		It("pivots on payable date with zeros", func() {
			df := prices.BuildDividends(prices.ParseDividends(sheet))
			Expect(df.Dates).To(Equal([]time.Time{date(2024, 2, 1), date(2024, 4, 2)}))
			Expect(df.Column("XBB CN Equity")).To(Equal([]float64{0.07, 0}))
			Expect(df.Column("XIU CN Equity")).To(Equal([]float64{0, 0.25}))
		})
	})

	Context("with splits", func() {
		It("multiplies prices on and after the ex-date", func() {
			splits := prices.ParseSplits(workbook.NewTable("Copy splits",
				[]string{"Asset", "Ex-Date", "Split"},
				[]workbook.Cell{str("XIU"), dt(2024, 1, 3), num(2)},
				[]workbook.Cell{str(""), dt(2024, 1, 3), num(2)},
			))
			Expect(splits).To(HaveLen(1))

			df := &dataframe.DataFrame{
				Dates:    []time.Time{date(2024, 1, 2), date(2024, 1, 3), date(2024, 1, 4)},
				ColNames: []string{"XIU CN Equity", "XBB CN Equity"},
				Vals:     [][]float64{{10, 5, 5.5}, {1, 1, 1}},
			}
			adj := prices.AdjustPrices(df, splits)
			Expect(adj.Column("XIU CN Equity")).To(Equal([]float64{10, 10, 11}))
			Expect(adj.Column("XBB CN Equity")).To(Equal([]float64{1, 1, 1}))
			Expect(df.Column("XIU CN Equity")).To(Equal([]float64{10, 5, 5.5}))
		})
	})
})
