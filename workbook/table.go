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

package workbook

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingSourceFile = errors.New("source workbook not found")
	ErrSheetNotFound     = errors.New("sheet not found in workbook")
)

type CellKind int

const (
	Empty CellKind = iota
	Number
	Text
	Time
)

// Cell is a single spreadsheet value. Only the field matching Kind is meaningful.
type Cell struct {
	Kind CellKind
	Num  float64
	Str  string
	Time time.Time
}

// Table is a sheet read as a header row followed by data rows. Rows may be shorter
// than the header; missing trailing cells are empty.
type Table struct {
	Name   string
	Header []string
	Rows   [][]Cell
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	time.RFC3339,
}

// Num creates a numeric cell
func Num(val float64) Cell {
	return Cell{Kind: Number, Num: val}
}

// Str creates a text cell; blank strings are empty cells
func Str(val string) Cell {
	if strings.TrimSpace(val) == "" {
		return Cell{}
	}
	return Cell{Kind: Text, Str: val}
}

// Date creates a date cell truncated to midnight UTC
func Date(val time.Time) Cell {
	return Cell{Kind: Time, Time: Midnight(val)}
}

// Midnight drops the time of day and location from t
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (c Cell) IsEmpty() bool {
	return c.Kind == Empty
}

// Float returns the numeric value of the cell. Text is parsed after removing
// thousands separators, currency and percent signs.
func (c Cell) Float() (float64, bool) {
	switch c.Kind {
	case Number:
		return c.Num, true
	case Text:
		return ParseNumber(c.Str)
	}
	return 0, false
}

// Date returns the date value of the cell. Text is parsed with a small set of
// common layouts.
func (c Cell) Date() (time.Time, bool) {
	switch c.Kind {
	case Time:
		return c.Time, true
	case Text:
		s := strings.TrimSpace(c.Str)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return Midnight(t), true
			}
		}
	}
	return time.Time{}, false
}

// String returns the cell as text
func (c Cell) String() string {
	switch c.Kind {
	case Number:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case Text:
		return strings.TrimSpace(c.Str)
	case Time:
		return c.Time.Format("2006-01-02")
	}
	return ""
}

// ParseNumber parses s after stripping ',', '%', '$' and surrounding whitespace
func ParseNumber(s string) (float64, bool) {
	s = strings.NewReplacer(",", "", "%", "", "$", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

// NewTable builds a table from a header and rows
func NewTable(name string, header []string, rows ...[]Cell) *Table {
	return &Table{
		Name:   name,
		Header: header,
		Rows:   rows,
	}
}

// ColIndex returns the index of the named column or -1
func (t *Table) ColIndex(name string) int {
	for idx, val := range t.Header {
		if strings.EqualFold(strings.TrimSpace(val), name) {
			return idx
		}
	}
	return -1
}

// Cell returns the cell at row, col; out of range positions are empty
func (t *Table) Cell(row, col int) Cell {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return Cell{}
	}
	return t.Rows[row][col]
}

// Blocks splits a wide sheet made of repeating groups of `width` columns into one
// table per group. The first skipRows data rows of every group are discarded and
// rows that are empty across the whole group are dropped. A trailing partial group
// is ignored.
func (t *Table) Blocks(width, skipRows int) []*Table {
	if width <= 0 {
		return nil
	}

	numBlocks := len(t.Header) / width
	blocks := make([]*Table, 0, numBlocks)
	for blockIdx := 0; blockIdx < numBlocks; blockIdx++ {
		first := blockIdx * width
		block := &Table{
			Name:   t.Header[first],
			Header: append([]string{}, t.Header[first:first+width]...),
			Rows:   make([][]Cell, 0, len(t.Rows)),
		}

		for rowIdx := skipRows; rowIdx < len(t.Rows); rowIdx++ {
			row := make([]Cell, width)
			empty := true
			for offset := range row {
				row[offset] = t.Cell(rowIdx, first+offset)
				if !row[offset].IsEmpty() {
					empty = false
				}
			}
			if !empty {
				block.Rows = append(block.Rows, row)
			}
		}

		blocks = append(blocks, block)
	}

	return blocks
}
