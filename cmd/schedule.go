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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/penny-vault/fundperf/common"
	"github.com/penny-vault/fundperf/tradecron"
)

func init() {
	scheduleCmd.Flags().String("spec", "", "Trading day cron expression of run times (default \"@close 30\")")
	viper.BindPFlag("schedule.spec", scheduleCmd.Flags().Lookup("spec"))
	rootCmd.AddCommand(scheduleCmd)
}

// cronLogger routes scheduler messages to zerolog
type cronLogger struct {
	logger zerolog.Logger
}

func keysAndValues(event *zerolog.Event, kv []interface{}) *zerolog.Event {
	for idx := 0; idx+1 < len(kv); idx += 2 {
		if key, ok := kv[idx].(string); ok {
			event = event.Interface(key, kv[idx+1])
		}
	}
	return event
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	keysAndValues(l.logger.Debug(), kv).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	keysAndValues(l.logger.Error().Err(err), kv).Msg(msg)
}

// marketCalendar builds the exchange calendar from the [[schedule.holidays]] tables
func marketCalendar(tz *time.Location) *tradecron.Calendar {
	var raw []struct {
		Date       string `mapstructure:"date"`
		EarlyClose int    `mapstructure:"early_close"`
	}
	if err := viper.UnmarshalKey("schedule.holidays", &raw); err != nil {
		log.Error().Err(err).Msg("could not read schedule.holidays")
	}

	holidays := make([]tradecron.Holiday, 0, len(raw))
	for _, h := range raw {
		dt, err := time.ParseInLocation("2006-01-02", h.Date, tz)
		if err != nil {
			log.Warn().Err(err).Str("Date", h.Date).Msg("skipping malformed holiday")
			continue
		}
		holidays = append(holidays, tradecron.Holiday{Date: dt, EarlyClose: h.EarlyClose})
	}

	hours := tradecron.RegularHours
	if viper.GetBool("schedule.extended_hours") {
		hours = tradecron.ExtendedHours
	}
	return tradecron.NewCalendar(tz, hours, holidays...)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the analysis on a cron schedule until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		pipeline, err := newPipeline()
		if err != nil {
			log.Fatal().Err(err).Msg("invalid configuration")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		tz := common.GetTimezone()
		spec := viper.GetString("schedule.spec")
		logger := cronLogger{logger: log.With().Str("Spec", spec).Str("Timezone", tz.String()).Logger()}

		scheduler := cron.New(
			cron.WithLocation(tz),
			cron.WithLogger(logger),
			cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
		)

		schedule, err := tradecron.New(spec, marketCalendar(tz))
		if err != nil {
			log.Fatal().Err(err).Str("Spec", spec).Msg("invalid cron expression")
		}

		// the pipeline is shared between runs so unchanged metric inputs hit its memo
		scheduler.Schedule(schedule, cron.FuncJob(func() {
			if _, err := runOnce(ctx, pipeline); err != nil {
				log.Error().Err(err).Msg("scheduled run failed")
			}
		}))

		scheduler.Start()
		for _, entry := range scheduler.Entries() {
			logger.logger.Info().Time("Next", entry.Next).Msg("scheduled analysis")
		}

		<-ctx.Done()
		log.Info().Msg("shutting down scheduler")
		<-scheduler.Stop().Done()
	},
}
