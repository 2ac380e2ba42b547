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

package cmd

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/penny-vault/fundperf/data"
)

func readConfig(toml string) {
	viper.Reset()
	viper.SetConfigType("toml")
	Expect(viper.ReadConfig(strings.NewReader(toml))).To(Succeed())
}

var _ = Describe("Sources", func() {
	AfterEach(func() {
		viper.Reset()
	})

	It("upper-cases configured ETF keys", func() {
		readConfig(`
[holdings.etfs]
xbb = "239493/ishares-core-canadian-universe-bond-index-etf"
Xus = "239626/ishares-core-sp-500-index-etf"
`)
		src := newHoldingsSource(data.NewClient(data.NewHTTPClient(time.Second)))
		Expect(src.ETFs()).To(Equal([]string{"XBB", "XUS"}))
	})

	It("reads NAV funds from an array of tables", func() {
		readConfig(`
[[nav.funds]]
ticker = "FND001"
key = 42
name = "Balanced Fund"
`)
		Expect(navFunds()).To(Equal([]data.NAVFund{{Ticker: "FND001", Key: 42, Name: "Balanced Fund"}}))
	})

	It("falls back to the default NAV funds", func() {
		readConfig("")
		Expect(navFunds()).To(Equal(data.DefaultNAVFunds()))
	})
})

var _ = Describe("Schedule", func() {
	var toronto *time.Location

	BeforeEach(func() {
		var err error
		toronto, err = time.LoadLocation("America/Toronto")
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		viper.Reset()
	})

	It("builds the market calendar from configured holidays", func() {
		readConfig(`
[[schedule.holidays]]
date = "2022-07-01"

[[schedule.holidays]]
date = "2022-11-25"
early_close = 1300

[[schedule.holidays]]
date = "not a date"
`)
		cal := marketCalendar(toronto)
		Expect(cal.IsMarketDay(time.Date(2022, 7, 1, 12, 0, 0, 0, toronto))).To(BeFalse())
		Expect(cal.IsMarketDay(time.Date(2022, 7, 4, 12, 0, 0, 0, toronto))).To(BeTrue())
		Expect(cal.EarlyClose(time.Date(2022, 11, 25, 0, 0, 0, 0, toronto))).To(Equal(1300))
		Expect(cal.IsMarketOpen(time.Date(2022, 11, 25, 14, 0, 0, 0, toronto))).To(BeFalse())
	})

	It("uses extended hours when configured", func() {
		readConfig(`
[schedule]
extended_hours = true
`)
		cal := marketCalendar(toronto)
		Expect(cal.IsMarketOpen(time.Date(2022, 7, 4, 7, 30, 0, 0, toronto))).To(BeTrue())
	})

	It("forwards cron log messages to zerolog", func() {
		logger := cronLogger{logger: log.Logger}
		Expect(func() {
			logger.Info("wake", "now", time.Now(), "entry", 1)
			logger.Error(data.ErrVendorFetch, "job failed", "odd")
		}).NotTo(Panic())
	})
})
