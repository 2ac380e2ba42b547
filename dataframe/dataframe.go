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
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// New creates a dataframe over dates with the named columns, every cell set to fill
func New(dates []time.Time, colNames []string, fill float64) *DataFrame {
	df := &DataFrame{
		Dates:    make([]time.Time, len(dates)),
		ColNames: make([]string, len(colNames)),
		Vals:     make([][]float64, len(colNames)),
	}

	copy(df.Dates, dates)
	copy(df.ColNames, colNames)

	for colIdx := range df.Vals {
		df.Vals[colIdx] = filled(len(dates), fill)
	}

	return df
}

func filled(n int, val float64) []float64 {
	col := make([]float64, n)
	for idx := range col {
		col[idx] = val
	}
	return col
}

// ColIndex returns the index of specified column; returns -1 if column doesn't exist
func (df *DataFrame) ColIndex(colName string) int {
	for idx, val := range df.ColNames {
		if colName == val {
			return idx
		}
	}

	return -1
}

// ColCount returns the number of columns in the dataframe
func (df *DataFrame) ColCount() int {
	return len(df.ColNames)
}

// Len returns the number of rows in the dataframe
func (df *DataFrame) Len() int {
	return len(df.Dates)
}

// Column returns the values of the named column or nil if it does not exist. The
// returned slice is shared with the dataframe.
func (df *DataFrame) Column(colName string) []float64 {
	colIdx := df.ColIndex(colName)
	if colIdx == -1 {
		return nil
	}
	return df.Vals[colIdx]
}

// Copy creates a deep copy of the dataframe
func (df *DataFrame) Copy() *DataFrame {
	df2 := &DataFrame{
		ColNames: make([]string, len(df.ColNames)),
		Dates:    make([]time.Time, len(df.Dates)),
		Vals:     make([][]float64, len(df.Vals)),
	}

	copy(df2.ColNames, df.ColNames)
	copy(df2.Dates, df.Dates)

	for idx := range df2.Vals {
		df2.Vals[idx] = make([]float64, len(df.Vals[idx]))
		copy(df2.Vals[idx], df.Vals[idx])
	}

	return df2
}

// Insert a new column to the end of the dataframe. If a column with the same name
// already exists its values are replaced.
func (df *DataFrame) Insert(name string, col []float64) *DataFrame {
	if colIdx := df.ColIndex(name); colIdx != -1 {
		df.Vals[colIdx] = col
		return df
	}
	df.ColNames = append(df.ColNames, name)
	df.Vals = append(df.Vals, col)
	return df
}

// Select returns a new dataframe with the requested columns in the requested order.
// Columns that do not exist are filled with NaN.
func (df *DataFrame) Select(colNames ...string) *DataFrame {
	res := &DataFrame{
		Dates:    df.Dates,
		ColNames: make([]string, 0, len(colNames)),
		Vals:     make([][]float64, 0, len(colNames)),
	}

	for _, name := range colNames {
		col := df.Column(name)
		if col == nil {
			col = filled(df.Len(), math.NaN())
		} else {
			tmp := make([]float64, len(col))
			copy(tmp, col)
			col = tmp
		}
		res.ColNames = append(res.ColNames, name)
		res.Vals = append(res.Vals, col)
	}

	return res
}

// Start returns the first date of the dataframe
func (df *DataFrame) Start() time.Time {
	if len(df.Dates) == 0 {
		return time.Time{}
	}
	return df.Dates[0]
}

// End returns the last time in the DataFrame
func (df *DataFrame) End() time.Time {
	if len(df.Dates) == 0 {
		return time.Time{}
	}
	return df.Dates[len(df.Dates)-1]
}

// RowIndex returns the index of the row for date or -1 if the date is not in the index
func (df *DataFrame) RowIndex(date time.Time) int {
	idx := sort.Search(len(df.Dates), func(i int) bool {
		return !df.Dates[i].Before(date)
	})
	if idx < len(df.Dates) && df.Dates[idx].Equal(date) {
		return idx
	}
	return -1
}

// AsOfIndex returns the index of the last row on or before date, -1 if date is before
// the first row
func (df *DataFrame) AsOfIndex(date time.Time) int {
	idx := sort.Search(len(df.Dates), func(i int) bool {
		return df.Dates[i].After(date)
	})
	return idx - 1
}

// BeforeIndex returns the index of the last row strictly before date, -1 if there is none
func (df *DataFrame) BeforeIndex(date time.Time) int {
	idx := sort.Search(len(df.Dates), func(i int) bool {
		return !df.Dates[i].Before(date)
	})
	return idx - 1
}

// NearestIndex returns the index of the row closest to date; ties go to the earlier row
func (df *DataFrame) NearestIndex(date time.Time) int {
	if df.Len() == 0 {
		return -1
	}
	after := sort.Search(len(df.Dates), func(i int) bool {
		return !df.Dates[i].Before(date)
	})
	switch {
	case after == 0:
		return 0
	case after == len(df.Dates):
		return len(df.Dates) - 1
	}
	if df.Dates[after].Sub(date) < date.Sub(df.Dates[after-1]) {
		return after
	}
	return after - 1
}

// Value returns the value of colName on date, NaN when either is missing
func (df *DataFrame) Value(colName string, date time.Time) float64 {
	col := df.Column(colName)
	rowIdx := df.RowIndex(date)
	if col == nil || rowIdx == -1 {
		return math.NaN()
	}
	return col[rowIdx]
}

// Reindex places the dataframe on a new date index. Dates that do not exist in the
// dataframe are filled with NaN.
func (df *DataFrame) Reindex(dates []time.Time) *DataFrame {
	res := New(dates, df.ColNames, math.NaN())
	for newIdx, dt := range dates {
		oldIdx := df.RowIndex(dt)
		if oldIdx == -1 {
			continue
		}
		for colIdx := range df.Vals {
			res.Vals[colIdx][newIdx] = df.Vals[colIdx][oldIdx]
		}
	}
	return res
}

// ReindexAsOf places the dataframe on a new date index taking, for every new date, the
// last row on or before it. Dates before the first row receive fill.
func (df *DataFrame) ReindexAsOf(dates []time.Time, fill float64) *DataFrame {
	res := New(dates, df.ColNames, fill)
	for newIdx, dt := range dates {
		oldIdx := df.AsOfIndex(dt)
		if oldIdx == -1 {
			continue
		}
		for colIdx := range df.Vals {
			res.Vals[colIdx][newIdx] = df.Vals[colIdx][oldIdx]
		}
	}
	return res
}

// Merge outer joins df and other on date. Columns that exist in both take the value of
// df unless it is NaN.
func (df *DataFrame) Merge(other *DataFrame) *DataFrame {
	dates := UnionDates(df.Dates, other.Dates)
	res := df.Reindex(dates)
	right := other.Reindex(dates)
	for colIdx, colName := range right.ColNames {
		existing := res.Column(colName)
		if existing == nil {
			res.Insert(colName, right.Vals[colIdx])
			continue
		}
		for rowIdx, val := range existing {
			if math.IsNaN(val) {
				existing[rowIdx] = right.Vals[colIdx][rowIdx]
			}
		}
	}
	return res
}

// UnionDates returns the sorted, de-duplicated union of the supplied date slices
func UnionDates(dates ...[]time.Time) []time.Time {
	seen := make(map[time.Time]bool)
	res := make([]time.Time, 0)
	for _, dd := range dates {
		for _, dt := range dd {
			if !seen[dt] {
				seen[dt] = true
				res = append(res, dt)
			}
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Before(res[j]) })
	return res
}

// Trim the dataframe to the specified date range (inclusive)
func (df *DataFrame) Trim(begin, end time.Time) *DataFrame {
	df2 := &DataFrame{
		ColNames: df.ColNames,
		Dates:    []time.Time{},
		Vals:     make([][]float64, len(df.Vals)),
	}

	for colIdx := range df2.Vals {
		df2.Vals[colIdx] = []float64{}
	}

	if end.Before(begin) || df.Len() == 0 {
		return df2
	}

	beginIdx := sort.Search(len(df.Dates), func(i int) bool {
		return !df.Dates[i].Before(begin)
	})

	endIdx := sort.Search(len(df.Dates), func(i int) bool {
		return df.Dates[i].After(end)
	})

	if beginIdx >= endIdx {
		return df2
	}

	df2.Dates = df.Dates[beginIdx:endIdx]
	for colIdx, col := range df.Vals {
		df2.Vals[colIdx] = col[beginIdx:endIdx]
	}

	return df2
}

// Table prints an ASCII formatted table to stdout
func (df *DataFrame) Table() string {
	if len(df.Dates) == 0 {
		return "<NO DATA>" // nothing to do as there is no data available in the dataframe
	}

	// construct table header
	tableCols := append([]string{"Date"}, df.ColNames...)

	// initialize table
	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader(tableCols)
	footer := make([]string, len(tableCols))
	footer[0] = "Num Rows"
	if len(footer) > 1 {
		footer[1] = fmt.Sprintf("%d", df.Len())
	}
	table.SetFooter(footer)
	table.SetBorder(false) // Set Border to false

	for idx, date := range df.Dates {
		row := make([]string, 0, len(df.Vals)+1)
		row = append(row, date.Format("2006-01-02"))
		for _, col := range df.Vals {
			row = append(row, fmt.Sprintf("%.4f", col[idx]))
		}
		table.Append(row)
	}

	table.Render()
	return s.String()
}
