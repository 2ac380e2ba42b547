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

package dataframe

import (
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FFill replaces NaN values with the last non-NaN value of the same column and returns a new dataframe.
// Leading NaNs are left untouched.
func (df *DataFrame) FFill() *DataFrame {
	df = df.Copy()
	for _, col := range df.Vals {
		last := math.NaN()
		for rowIdx, val := range col {
			if math.IsNaN(val) {
				col[rowIdx] = last
			} else {
				last = val
			}
		}
	}
	return df
}

// FillNaN replaces every NaN with val and returns a new dataframe
func (df *DataFrame) FillNaN(val float64) *DataFrame {
	df = df.Copy()
	for _, col := range df.Vals {
		for rowIdx := range col {
			if math.IsNaN(col[rowIdx]) {
				col[rowIdx] = val
			}
		}
	}
	return df
}

// CumSum computes the running sum of each column; NaN contributes nothing
func (df *DataFrame) CumSum() *DataFrame {
	df = df.Copy()
	for _, col := range df.Vals {
		acc := 0.0
		for rowIdx, val := range col {
			if !math.IsNaN(val) {
				acc += val
			}
			col[rowIdx] = acc
		}
	}
	return df
}

// PctChange computes val[t] / val[t-1] - 1 for each column. The first row and rows whose
// previous value is zero or NaN are NaN.
func (df *DataFrame) PctChange() *DataFrame {
	res := New(df.Dates, df.ColNames, math.NaN())
	for colIdx, col := range df.Vals {
		for rowIdx := 1; rowIdx < len(col); rowIdx++ {
			prev := col[rowIdx-1]
			if prev == 0 || math.IsNaN(prev) {
				continue
			}
			res.Vals[colIdx][rowIdx] = col[rowIdx]/prev - 1
		}
	}
	return res
}

func (df *DataFrame) checkAligned(other *DataFrame) {
	if df.Len() != other.Len() {
		log.Panic().Err(ErrDateIndexNotAligned).Int("Rows", df.Len()).Int("OtherRows", other.Len()).Msg("dataframes must have the same number of rows")
	}
}

func (df *DataFrame) combine(other *DataFrame, op func(dst, s []float64)) *DataFrame {
	df.checkAligned(other)
	df = df.Copy()

	otherMap := make(map[string]int, len(other.ColNames))
	for idx, val := range other.ColNames {
		otherMap[val] = idx
	}

	for idx, colName := range df.ColNames {
		if otherIdx, ok := otherMap[colName]; ok {
			op(df.Vals[idx], other.Vals[otherIdx])
		}
	}
	return df
}

// Add adds the corresponding column in other to each column in df and returns a new dataframe.
// Panics if rows are not equal.
func (df *DataFrame) Add(other *DataFrame) *DataFrame {
	return df.combine(other, floats.Add)
}

// Mul multiplies all columns in dataframe df by the corresponding column in dataframe other and returns a new dataframe
// panics if rows are not equal.
func (df *DataFrame) Mul(other *DataFrame) *DataFrame {
	return df.combine(other, floats.Mul)
}

// SumColumns sums every column of each row, skipping NaN, and returns it as a single column
func (df *DataFrame) SumColumns(name string) *DataFrame {
	res := New(df.Dates, []string{name}, 0)
	for _, col := range df.Vals {
		for rowIdx, val := range col {
			if !math.IsNaN(val) {
				res.Vals[0][rowIdx] += val
			}
		}
	}
	return res
}

// rolling applies fn over a trailing window of `window` rows. The warm-up period and any
// window containing a NaN yield NaN. Invalid windows result in a dataframe of all NaN.
func (df *DataFrame) rolling(window int, fn func([]float64) float64) *DataFrame {
	res := New(df.Dates, df.ColNames, math.NaN())
	if window <= 0 {
		log.Error().Int("Window", window).Msg("rolling window must be positive")
		return res
	}

	for colIdx, col := range df.Vals {
		nanCount := 0
		for rowIdx, val := range col {
			if math.IsNaN(val) {
				nanCount++
			}
			if rowIdx >= window && math.IsNaN(col[rowIdx-window]) {
				nanCount--
			}
			if rowIdx < window-1 || nanCount > 0 {
				continue
			}
			res.Vals[colIdx][rowIdx] = fn(col[rowIdx-window+1 : rowIdx+1])
		}
	}

	return res
}

// RollingMean computes the simple moving average over the trailing window
// NOTE: window is in terms of rows. if the dataframe is sampled weekly then the mean is weekly
func (df *DataFrame) RollingMean(window int) *DataFrame {
	return df.rolling(window, func(x []float64) float64 {
		return stat.Mean(x, nil)
	})
}

// RollingVar computes the sample (n-1) variance over the trailing window
func (df *DataFrame) RollingVar(window int) *DataFrame {
	return df.rolling(window, func(x []float64) float64 {
		return stat.Variance(x, nil)
	})
}

// Apply returns a new dataframe with fn applied to every value
func (df *DataFrame) Apply(fn func(float64) float64) *DataFrame {
	df = df.Copy()
	for _, col := range df.Vals {
		for rowIdx, val := range col {
			col[rowIdx] = fn(val)
		}
	}
	return df
}
