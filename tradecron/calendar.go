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

package tradecron

import (
	"time"
)

// MarketHours are the open and close of a session as hhmm
type MarketHours struct {
	Open  int
	Close int
}

var (
	RegularHours = MarketHours{
		Open:  930,
		Close: 1600,
	}
	ExtendedHours = MarketHours{
		Open:  700,
		Close: 2000,
	}
)

// Holiday is a day the exchange is closed or, when EarlyClose is set, closes
// early at EarlyClose (hhmm)
type Holiday struct {
	Date       time.Time
	EarlyClose int
}

// Calendar knows which days an exchange trades
type Calendar struct {
	hours    MarketHours
	tz       *time.Location
	holidays map[string]int
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// NewCalendar creates a trading calendar in tz
func NewCalendar(tz *time.Location, hours MarketHours, holidays ...Holiday) *Calendar {
	cal := &Calendar{
		hours:    hours,
		tz:       tz,
		holidays: make(map[string]int, len(holidays)),
	}
	for _, holiday := range holidays {
		cal.holidays[dayKey(holiday.Date)] = holiday.EarlyClose
	}
	return cal
}

func (cal *Calendar) midnight(t time.Time) time.Time {
	t = t.In(cal.tz)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, cal.tz)
}

// EarlyClose returns close time of an early close market day, e.g. 1300
func (cal *Calendar) EarlyClose(t time.Time) int {
	return cal.holidays[dayKey(t.In(cal.tz))]
}

// IsMarketHoliday returns true if the exchange is closed all day on t
func (cal *Calendar) IsMarketHoliday(t time.Time) bool {
	closeTime, ok := cal.holidays[dayKey(t.In(cal.tz))]
	return ok && closeTime == 0
}

// IsMarketDay returns true if the specified date is a valid trading day
// (i.e. not a market holiday or weekend)
func (cal *Calendar) IsMarketDay(t time.Time) bool {
	t = t.In(cal.tz)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !cal.IsMarketHoliday(t)
}

// IsMarketOpen returns true if the specified time is during market hours
func (cal *Calendar) IsMarketOpen(t time.Time) bool {
	if !cal.IsMarketDay(t) {
		return false
	}

	closeTime := cal.hours.Close
	if earlyClose := cal.EarlyClose(t); earlyClose != 0 {
		closeTime = earlyClose
	}

	t = t.In(cal.tz)
	timeOfDay := t.Hour()*100 + t.Minute()
	return timeOfDay >= cal.hours.Open && timeOfDay <= closeTime
}

// scan returns the first market day walking from begin by step days, stopping
// after n days; zero when none trade
func (cal *Calendar) scan(begin time.Time, step, n int) time.Time {
	day := cal.midnight(begin)
	for idx := 0; idx < n; idx++ {
		if cal.IsMarketDay(day) {
			return day
		}
		day = day.AddDate(0, 0, step)
	}
	return time.Time{}
}

func (cal *Calendar) monday(t time.Time) time.Time {
	t = cal.midnight(t)
	return t.AddDate(0, 0, -((int(t.Weekday()) + 6) % 7))
}

// FirstTradingDayOfWeek returns the first trading day of the Monday to Friday
// week containing t
func (cal *Calendar) FirstTradingDayOfWeek(t time.Time) time.Time {
	return cal.scan(cal.monday(t), 1, 5)
}

// LastTradingDayOfWeek returns the last trading day of the Monday to Friday
// week containing t
func (cal *Calendar) LastTradingDayOfWeek(t time.Time) time.Time {
	return cal.scan(cal.monday(t).AddDate(0, 0, 4), -1, 5)
}

// FirstTradingDayOfMonth returns the first trading day of the month containing t
func (cal *Calendar) FirstTradingDayOfMonth(t time.Time) time.Time {
	t = t.In(cal.tz)
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, cal.tz)
	return cal.scan(first, 1, 31)
}

// LastTradingDayOfMonth returns the last trading day of the month containing t
func (cal *Calendar) LastTradingDayOfMonth(t time.Time) time.Time {
	t = t.In(cal.tz)
	last := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, cal.tz).AddDate(0, 1, -1)
	return cal.scan(last, -1, 31)
}
