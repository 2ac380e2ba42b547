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

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/penny-vault/fundperf/analysis"
	"github.com/penny-vault/fundperf/common"
	"github.com/penny-vault/fundperf/data"
	"github.com/penny-vault/fundperf/report"
)

func init() {
	viper.SetDefault("holdings.timeout", 30)
	viper.SetDefault("holdings.rate_limit", 2.0)
	viper.SetDefault("holdings.concurrency", 4)
	viper.SetDefault("cache.local_size", 256)
	viper.SetDefault("cache.ttl", 6*60*60)
	viper.SetDefault("output.workbook", report.DefaultWorkbook)
	viper.SetDefault("schedule.spec", "@close 30")
}

// newDataClient builds the one HTTP client shared by every vendor source
func newDataClient() *data.Client {
	opts := []data.Option{
		data.WithRateLimit(viper.GetFloat64("holdings.rate_limit"), 1),
	}
	if ua := viper.GetString("holdings.user_agent"); ua != "" {
		opts = append(opts, data.WithUserAgent(ua))
	}

	cache, err := common.NewCacheFromViper()
	if err != nil {
		log.Warn().Err(err).Msg("response cache disabled")
	} else {
		opts = append(opts, data.WithCache(cache))
	}

	timeout := time.Duration(viper.GetInt("holdings.timeout")) * time.Second
	return data.NewClient(data.NewHTTPClient(timeout), opts...)
}

func navFunds() []data.NAVFund {
	if !viper.IsSet("nav.funds") {
		return data.DefaultNAVFunds()
	}
	funds := make([]data.NAVFund, 0)
	if err := viper.UnmarshalKey("nav.funds", &funds); err != nil {
		log.Fatal().Err(err).Msg("could not parse nav.funds")
	}
	return funds
}

func newNAVSource(client *data.Client) *data.NAVSource {
	return data.NewNAVSource(client, viper.GetString("nav.url"))
}

func newHoldingsSource(client *data.Client) *data.HoldingsSource {
	cfg := data.HoldingsConfig{
		BaseURL:     viper.GetString("holdings.base_url"),
		PrimaryID:   viper.GetString("holdings.primary_id"),
		AlternateID: viper.GetString("holdings.alternate_id"),
		JSONPath:    viper.GetString("holdings.json_path"),
		Concurrency: viper.GetInt("holdings.concurrency"),
	}
	if viper.IsSet("holdings.etfs") {
		cfg.ETFs = make(map[string]string)
		for etf, fragment := range viper.GetStringMapString("holdings.etfs") {
			cfg.ETFs[strings.ToUpper(etf)] = fragment
		}
	}
	return data.NewHoldingsSource(client, cfg)
}

// newPipeline reads the analysis configuration and wires the vendor sources
func newPipeline() (*analysis.Pipeline, error) {
	cfg, err := analysis.ConfigFromViper()
	if err != nil {
		return nil, err
	}
	return newPipelineWithConfig(cfg), nil
}

func newPipelineWithConfig(cfg analysis.Config) *analysis.Pipeline {
	client := newDataClient()
	return analysis.New(cfg,
		analysis.WithNAV(newNAVSource(client), navFunds()),
		analysis.WithHoldings(newHoldingsSource(client)),
	)
}

func newReportWriter() (*report.Writer, error) {
	return report.NewWriter(viper.GetString("output.dir"), report.WithWorkbook(viper.GetString("output.workbook")))
}
