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

// Package tradecron schedules jobs on the trading days of an exchange
package tradecron

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	AtOpen       = "@open"
	AtClose      = "@close"
	AtWeekBegin  = "@weekbegin"
	AtWeekEnd    = "@weekend"
	AtMonthBegin = "@monthbegin"
	AtMonthEnd   = "@monthend"

	maxIters = 100_000
)

// TradeCron is a cron.Schedule that only fires on trading days
type TradeCron struct {
	Schedule       cron.Schedule
	ScheduleString string
	TimeSpec       string
	TimeFlag       string
	DateFlag       string

	// marketHoursOnly restricts wildcard hour schedules to the session
	marketHoursOnly bool
	calendar        *Calendar
}

// New parses a market aware schedule in the standard CRON format of:
// Minutes(Min) Hours(H) DayOfMonth(DoM) Month(M) DayOfWeek(DoW)
//
// Wildcard hours only fire while the market is open. Modifiers:
//
//	@open       - minute and hour are an offset from the open, e.g. "@open 15"
//	@close      - minute and hour are an offset from the close, e.g. "@close 30"
//	@weekbegin  - first trading day of the week
//	@weekend    - last trading day of the week
//	@monthbegin - first trading day of the month
//	@monthend   - last trading day of the month
//
// Trailing fields may be omitted: "@close 30" runs 30 minutes after every close.
func New(cronSpec string, cal *Calendar) (*TradeCron, error) {
	specParser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	timeSpecTokens := make([]string, 0, 5)
	specialTokens := make([]string, 0, 2)
	for _, token := range expandBriefFormat(cronSpec) {
		if token[0] == '@' {
			specialTokens = append(specialTokens, token)
		} else {
			timeSpecTokens = append(timeSpecTokens, token)
		}
	}

	tc := &TradeCron{
		ScheduleString: cronSpec,
		calendar:       cal,
	}

	var err error
	for _, token := range specialTokens {
		switch token {
		case AtOpen, AtClose:
			if tc.TimeFlag != "" {
				return nil, ErrConflictingModifiers
			}
			ref := cal.hours.Open
			if token == AtClose {
				ref = cal.hours.Close
			}
			if tc.TimeSpec, err = parseTimeRelativeTo(timeSpecTokens, ref/100, ref%100); err != nil {
				return nil, err
			}
			tc.TimeFlag = token
		case AtWeekBegin, AtWeekEnd, AtMonthBegin, AtMonthEnd:
			if tc.DateFlag != "" {
				return nil, ErrConflictingModifiers
			}
			tc.DateFlag = token
		default:
			return nil, ErrUnknownModifier
		}
	}

	if tc.TimeSpec == "" {
		tc.TimeSpec = strings.Join(timeSpecTokens, " ")
		tc.marketHoursOnly = len(timeSpecTokens) > 1 && isWildcard(timeSpecTokens[1])
	}

	tc.Schedule, err = specParser.Parse("CRON_TZ=" + cal.tz.String() + " " + tc.TimeSpec)
	if err != nil {
		log.Error().Err(err).Str("TimeSpec", tc.TimeSpec).Str("TradeCronSpec", cronSpec).Msg("robfig/cron could not parse timespec")
		return nil, err
	}

	return tc, nil
}

func sameDay(a, b time.Time) bool {
	return !a.IsZero() && !b.IsZero() && a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func (tc *TradeCron) matchesDateFlag(t time.Time) bool {
	switch tc.DateFlag {
	case AtWeekBegin:
		return sameDay(t, tc.calendar.FirstTradingDayOfWeek(t))
	case AtWeekEnd:
		return sameDay(t, tc.calendar.LastTradingDayOfWeek(t))
	case AtMonthBegin:
		return sameDay(t, tc.calendar.FirstTradingDayOfMonth(t))
	case AtMonthEnd:
		return sameDay(t, tc.calendar.LastTradingDayOfMonth(t))
	}
	return true
}

// Next returns the first activation after t; the zero time when there is none
func (tc *TradeCron) Next(t time.Time) time.Time {
	check := t.In(tc.calendar.tz)
	for iter := 0; iter < maxIters; iter++ {
		next := tc.Schedule.Next(check)
		if next.IsZero() {
			return next
		}

		if !tc.calendar.IsMarketDay(next) || !tc.matchesDateFlag(next) {
			// nothing else fires today
			check = tc.calendar.midnight(next).AddDate(0, 0, 1).Add(-time.Nanosecond)
			continue
		}

		if tc.marketHoursOnly && !tc.calendar.IsMarketOpen(next) {
			check = next
			continue
		}

		return next
	}

	log.Error().Str("TimeSpec", tc.TimeSpec).Str("DateFlag", tc.DateFlag).Time("From", t).Msg("tradecron schedule never fires")
	return time.Time{}
}

// IsTradeDay reports if the schedule fires on the day of forDate. The time of
// forDate is ignored.
func (tc *TradeCron) IsTradeDay(forDate time.Time) bool {
	dayBefore := tc.calendar.midnight(forDate).Add(-time.Nanosecond)
	return sameDay(tc.Next(dayBefore), forDate.In(tc.calendar.tz))
}
