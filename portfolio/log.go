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
	"github.com/rs/zerolog"
)

func (trx *Transaction) MarshalZerologObject(e *zerolog.Event) {
	e.Time("Date", trx.Date).Str("Fund", string(trx.Fund)).Str("Ticker", trx.Ticker).Float64("Quantity", trx.Quantity).Float64("Price", trx.Price)
}

func (inv *Investment) MarshalZerologObject(e *zerolog.Event) {
	e.Time("Date", inv.Date).Str("Fund", string(inv.Fund)).Str("Amount", inv.Amount.String())
}

func (flow *CashFlow) MarshalZerologObject(e *zerolog.Event) {
	e.Time("Date", flow.Date).
		Str("Fund", string(flow.Fund)).
		Str("Kind", string(flow.Kind)).
		Str("Ticker", flow.Ticker).
		Str("Amount", flow.Amount.String())
}

func (m *LatestMetric) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Fund", string(m.Fund))
	e.Int("Window", m.Window)
	e.Time("Date", m.Date)
	e.Float64("VAM", m.VAM)
	e.Float64("RA", m.RA)
	e.Float64("RI", m.RI)
	e.Float64("Target.VAM", m.Target.VAM)
	e.Float64("Target.RA", m.Target.RA)
	e.Float64("Target.RI", m.Target.RI)
}

func (bench *Benchmark) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Name", bench.Name)
	dict := zerolog.Dict()
	for ticker, weight := range bench.Weights {
		dict.Float64(ticker, weight)
	}
	e.Dict("Weights", dict)
}
