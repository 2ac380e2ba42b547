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
	"context"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"runtime/trace"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/penny-vault/fundperf/common"
	"github.com/penny-vault/fundperf/observability/opentelemetry"
)

var (
	cfgFile string
	Profile bool
	Trace   bool

	logCloser      io.Closer
	tracerShutdown func(context.Context) error
	stopProfiling  []func()
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is fundperf.toml in /etc/fundperf, $HOME/.config/fundperf or .)")

	// Workbook
	rootCmd.PersistentFlags().StringP("workbook", "w", "", "Path of the source workbook")
	viper.BindPFlag("workbook.path", rootCmd.PersistentFlags().Lookup("workbook"))

	// Output
	rootCmd.PersistentFlags().StringP("output", "o", "output", "Directory reports are written to")
	viper.BindPFlag("output.dir", rootCmd.PersistentFlags().Lookup("output"))

	// Logging configuration
	rootCmd.PersistentFlags().String("log-level", "warning", "Logging level")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().Bool("log-report-caller", false, "Log function name that called log statement")
	viper.BindPFlag("log.report_caller", rootCmd.PersistentFlags().Lookup("log-report-caller"))

	rootCmd.PersistentFlags().String("log-output", "stderr", "Write logs to specified output one of: file path, `stdout`, or `stderr`")
	viper.BindPFlag("log.output", rootCmd.PersistentFlags().Lookup("log-output"))

	rootCmd.PersistentFlags().Bool("log-pretty", true, "Write human readable logs instead of JSON")
	viper.BindPFlag("log.pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))

	// Tracing
	rootCmd.PersistentFlags().String("otlp-endpoint", "", "OTLP collector to send traces to, if blank tracing is disabled")
	viper.BindPFlag("otlp.endpoint", rootCmd.PersistentFlags().Lookup("otlp-endpoint"))

	rootCmd.PersistentFlags().BoolVar(&Profile, "cpu-profile", false, "Run pprof and save in profile.out")
	rootCmd.PersistentFlags().BoolVar(&Trace, "trace", false, "Trace program execution and save in trace.out")
}

// initConfig reads the config file and FUNDPERF_ environment variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("fundperf")
		viper.SetConfigType("toml")
		viper.AddConfigPath("/etc/fundperf/")
		viper.AddConfigPath("$HOME/.config/fundperf")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("FUNDPERF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Fatal().Err(err).Msg("could not read config file")
		}
		log.Debug().Msg("no config file found; using defaults")
	}
}

func startProfiling() error {
	if Profile {
		fh, err := os.Create("profile.out")
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(fh); err != nil {
			return err
		}
		stopProfiling = append(stopProfiling, func() {
			pprof.StopCPUProfile()
			fh.Close()
		})
	}

	if Trace {
		fh, err := os.Create("trace.out")
		if err != nil {
			return fmt.Errorf("failed to create trace output file: %w", err)
		}
		if err := trace.Start(fh); err != nil {
			return fmt.Errorf("failed to start trace: %w", err)
		}
		stopProfiling = append(stopProfiling, func() {
			trace.Stop()
			if err := fh.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close trace file")
			}
		})
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:     "fundperf",
	Version: common.CurrentVersion.String(),
	Short:   "Measure the performance of a managed fund against its benchmark",
	Long: `Reconstructs fund holdings from a transaction workbook, computes returns,
rolling value-added metrics against a blended benchmark and the look-through
exposure of ETF positions.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if logCloser, err = common.SetupLogging(); err != nil {
			return err
		}
		if tracerShutdown, err = opentelemetry.Setup(common.CurrentVersion.String()); err != nil {
			log.Error().Err(err).Msg("could not set up tracing; continuing without it")
		}
		return startProfiling()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		for _, stop := range stopProfiling {
			stop()
		}
		if tracerShutdown != nil {
			if err := tracerShutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("could not flush traces")
			}
		}
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
