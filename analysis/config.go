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

package analysis

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/penny-vault/fundperf/portfolio"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrNoPrices      = errors.New("no prices in the analysis period")
)

const dateLayout = "2006-01-02"

// Sheets names the workbook sheets read by the pipeline
type Sheets struct {
	Prices       string `mapstructure:"sheet_prices"`
	Dividends    string `mapstructure:"sheet_dividends"`
	Splits       string `mapstructure:"sheet_splits"`
	Transactions string `mapstructure:"sheet_transactions"`
	Investments  string `mapstructure:"sheet_investments"`
}

// SnapshotDate is a named report date for a holdings snapshot
type SnapshotDate struct {
	Label string    `json:"label"`
	Date  time.Time `json:"date"`
}

// ExposureConfig controls the look-through step
type ExposureConfig struct {
	Enabled bool
	Fund    portfolio.Fund
	AsOf    time.Time
}

// Config drives one run of the pipeline
type Config struct {
	WorkbookPath string
	Sheets       Sheets

	// PricesStart drops prices before this date
	PricesStart time.Time

	// StartingDate anchors cumulative returns; when zero it is Years before the
	// last price date
	StartingDate time.Time
	Years        int

	InitialInvestment float64
	MetricsStart      time.Time
	Windows           []int

	Benchmark *portfolio.Benchmark
	Targets   map[portfolio.Fund]portfolio.Target
	Snapshots []SnapshotDate
	Exposure  ExposureConfig
}

// DefaultConfig returns the configuration used for keys that are not set
func DefaultConfig() Config {
	return Config{
		WorkbookPath: "stock_final.xlsx",
		Sheets: Sheets{
			Prices:       "Copy source",
			Dividends:    "Copy dividends",
			Splits:       "Copy splits",
			Transactions: "Transactions",
			Investments:  "Investments",
		},
		PricesStart:       time.Date(2019, 1, 6, 0, 0, 0, 0, time.UTC),
		Years:             3,
		InitialInvestment: 1000,
		MetricsStart:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Windows:           []int{52, 156},
		Benchmark:         portfolio.DefaultBenchmark(),
		Targets:           portfolio.DefaultTargets(),
		Exposure: ExposureConfig{
			Fund: portfolio.Global,
		},
	}
}

// Validate checks the configuration is usable
func (cfg *Config) Validate() error {
	if cfg.InitialInvestment <= 0 {
		return fmt.Errorf("%w: initial investment must be positive", ErrInvalidConfig)
	}
	if cfg.StartingDate.IsZero() && cfg.Years <= 0 {
		return fmt.Errorf("%w: analysis.years must be positive when no starting date is set", ErrInvalidConfig)
	}
	for _, window := range cfg.Windows {
		if window <= 0 {
			return fmt.Errorf("%w: %w %d", ErrInvalidConfig, portfolio.ErrInvalidWindow, window)
		}
	}
	if cfg.Benchmark == nil || len(cfg.Benchmark.Weights) == 0 {
		return fmt.Errorf("%w: benchmark has no assets", ErrInvalidConfig)
	}
	return nil
}

type benchmarkAsset struct {
	Ticker string  `mapstructure:"ticker"`
	Weight float64 `mapstructure:"weight"`
}

type snapshotEntry struct {
	Label string `mapstructure:"label"`
	Date  string `mapstructure:"date"`
}

// ConfigFromViper reads the workbook, analysis, benchmark, metrics and report keys
func ConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if path := viper.GetString("workbook.path"); path != "" {
		cfg.WorkbookPath = path
	}
	sheets := cfg.Sheets
	if err := viper.UnmarshalKey("workbook", &sheets); err != nil {
		return cfg, fmt.Errorf("%w: workbook: %s", ErrInvalidConfig, err)
	}
	cfg.Sheets = sheets

	var err error
	if cfg.PricesStart, err = dateKey("analysis.prices_start", cfg.PricesStart); err != nil {
		return cfg, err
	}
	if cfg.StartingDate, err = dateKey("analysis.starting_date", cfg.StartingDate); err != nil {
		return cfg, err
	}
	if cfg.MetricsStart, err = dateKey("analysis.metrics_start", cfg.MetricsStart); err != nil {
		return cfg, err
	}
	if viper.IsSet("analysis.years") {
		cfg.Years = viper.GetInt("analysis.years")
	}
	if viper.IsSet("analysis.initial_investment") {
		cfg.InitialInvestment = viper.GetFloat64("analysis.initial_investment")
	}
	if viper.IsSet("analysis.windows") {
		cfg.Windows = viper.GetIntSlice("analysis.windows")
	}

	if viper.IsSet("benchmark.assets") {
		var assets []benchmarkAsset
		if err := viper.UnmarshalKey("benchmark.assets", &assets); err != nil {
			return cfg, fmt.Errorf("%w: benchmark.assets: %s", ErrInvalidConfig, err)
		}
		bench := &portfolio.Benchmark{
			Name:    "Benchmark",
			Weights: make(map[string]float64, len(assets)),
		}
		for _, asset := range assets {
			bench.Weights[asset.Ticker] += asset.Weight
		}
		cfg.Benchmark = bench
	}
	if name := viper.GetString("benchmark.name"); name != "" {
		cfg.Benchmark.Name = name
	}

	if viper.IsSet("metrics.targets") {
		var targets map[string]portfolio.Target
		if err := viper.UnmarshalKey("metrics.targets", &targets); err != nil {
			return cfg, fmt.Errorf("%w: metrics.targets: %s", ErrInvalidConfig, err)
		}
		for name, target := range targets {
			fund, err := portfolio.ParseFund(name)
			if err != nil {
				return cfg, fmt.Errorf("%w: metrics.targets: %w", ErrInvalidConfig, err)
			}
			cfg.Targets[fund] = target
		}
	}

	if viper.IsSet("report.snapshots") {
		var entries []snapshotEntry
		if err := viper.UnmarshalKey("report.snapshots", &entries); err != nil {
			return cfg, fmt.Errorf("%w: report.snapshots: %s", ErrInvalidConfig, err)
		}
		for _, entry := range entries {
			dt, err := time.Parse(dateLayout, strings.TrimSpace(entry.Date))
			if err != nil {
				return cfg, fmt.Errorf("%w: snapshot %q date %q", ErrInvalidConfig, entry.Label, entry.Date)
			}
			cfg.Snapshots = append(cfg.Snapshots, SnapshotDate{Label: entry.Label, Date: dt})
		}
		sortSnapshots(cfg.Snapshots)
	}

	cfg.Exposure.Enabled = viper.GetBool("holdings.enabled")
	if fund := viper.GetString("holdings.fund"); fund != "" {
		if cfg.Exposure.Fund, err = portfolio.ParseFund(fund); err != nil {
			return cfg, fmt.Errorf("%w: holdings.fund: %w", ErrInvalidConfig, err)
		}
	}
	if cfg.Exposure.AsOf, err = dateKey("holdings.date", time.Time{}); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func dateKey(key string, def time.Time) (time.Time, error) {
	val := strings.TrimSpace(viper.GetString(key))
	if val == "" {
		return def, nil
	}
	dt, err := time.Parse(dateLayout, val)
	if err != nil {
		return def, fmt.Errorf("%w: %s must be YYYY-MM-DD, got %q", ErrInvalidConfig, key, val)
	}
	return dt, nil
}

func sortSnapshots(snaps []SnapshotDate) {
	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].Date.Equal(snaps[j].Date) {
			return snaps[i].Label < snaps[j].Label
		}
		return snaps[i].Date.Before(snaps[j].Date)
	})
}
