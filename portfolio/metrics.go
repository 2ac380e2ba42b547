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

package portfolio

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/penny-vault/fundperf/dataframe"
)

const periodsPerYear = 52

// Target is the objective of a fund for each metric
type Target struct {
	VAM float64 `mapstructure:"VAM" json:"vam"`
	RI  float64 `mapstructure:"RI" json:"ri"`
	RA  float64 `mapstructure:"RA" json:"ra"`
}

// DefaultTargets are the objectives used when none are configured
func DefaultTargets() map[Fund]Target {
	return map[Fund]Target{
		Global:    {VAM: 130, RI: 0.5, RA: 260},
		Strategic: {VAM: 100, RI: 0.5, RA: 200},
		Tactic:    {VAM: 250, RI: 0.5, RA: 500},
	}
}

// Metrics are rolling statistics of a fund's weekly excess return over the
// benchmark, in basis points:
//
//	VAM = ((1 + mean) ^ 52 - 1) × 10000
//	RA  = sqrt(52 × variance) × 10000
//	RI  = VAM / RA
//
// A value is NaN until the window is full and whenever the window contains a
// missing return.
type Metrics struct {
	Window int
	Excess *dataframe.DataFrame
	VAM    *dataframe.DataFrame
	RA     *dataframe.DataFrame
	RI     *dataframe.DataFrame
}

// LatestMetric is the most recent value of every metric for one fund
type LatestMetric struct {
	Fund   Fund      `json:"fund"`
	Window int       `json:"window"`
	Date   time.Time `json:"date"`
	VAM    float64   `json:"vam"`
	RA     float64   `json:"ra"`
	RI     float64   `json:"ri"`
	Target Target    `json:"target"`
}

// NewMetrics computes rolling metrics of every column of fundReturns against the
// single column benchmark, which is aligned on the fund dates
func NewMetrics(fundReturns, benchmark *dataframe.DataFrame, window int) (*Metrics, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	if benchmark.ColCount() != 1 {
		return nil, ErrMisalignedSeries
	}

	bench := benchmark.Reindex(fundReturns.Dates).Vals[0]
	excess := fundReturns.Copy()
	for _, col := range excess.Vals {
		for rowIdx := range col {
			col[rowIdx] -= bench[rowIdx]
		}
	}

	mean := excess.RollingMean(window)
	variance := excess.RollingVar(window)

	vam := mean.Apply(func(avg float64) float64 {
		return (math.Pow(1+avg, periodsPerYear) - 1) * 10000
	})
	ra := variance.Apply(func(v float64) float64 {
		return math.Sqrt(periodsPerYear*v) * 10000
	})

	ri := vam.Copy()
	for colIdx, col := range ri.Vals {
		for rowIdx := range col {
			risk := ra.Vals[colIdx][rowIdx]
			if risk == 0 || math.IsNaN(risk) {
				col[rowIdx] = math.NaN()
				continue
			}
			col[rowIdx] /= risk
		}
	}

	log.Debug().Int("Window", window).Int("Periods", excess.Len()).Msg("computed rolling metrics")

	return &Metrics{
		Window: window,
		Excess: excess,
		VAM:    vam,
		RA:     ra,
		RI:     ri,
	}, nil
}

// Since returns a copy of the metrics restricted to dates on or after start
func (metrics *Metrics) Since(start time.Time) *Metrics {
	end := metrics.VAM.End()
	return &Metrics{
		Window: metrics.Window,
		Excess: metrics.Excess.Trim(start, end),
		VAM:    metrics.VAM.Trim(start, end),
		RA:     metrics.RA.Trim(start, end),
		RI:     metrics.RI.Trim(start, end),
	}
}

// Latest reports the last value of each fund's metrics together with its target
func (metrics *Metrics) Latest(targets map[Fund]Target) []*LatestMetric {
	if metrics.VAM.Len() == 0 {
		return nil
	}

	lastIdx := metrics.VAM.Len() - 1
	latest := make([]*LatestMetric, 0, metrics.VAM.ColCount())
	for colIdx, colName := range metrics.VAM.ColNames {
		fund := Fund(colName)
		latest = append(latest, &LatestMetric{
			Fund:   fund,
			Window: metrics.Window,
			Date:   metrics.VAM.End(),
			VAM:    metrics.VAM.Vals[colIdx][lastIdx],
			RA:     metrics.RA.Vals[colIdx][lastIdx],
			RI:     metrics.RI.Vals[colIdx][lastIdx],
			Target: targets[fund],
		})
	}
	return latest
}
