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
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx/v3"
)

// Workbook is an opened xlsx file
type Workbook struct {
	Path string
	file *xlsx.File
}

// Open reads the workbook at path. A missing file is reported as ErrMissingSourceFile.
func Open(path string) (*Workbook, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingSourceFile, path)
	}

	file, err := xlsx.OpenFile(path)
	if err != nil {
		log.Error().Err(err).Str("Path", path).Msg("could not open workbook")
		return nil, err
	}

	return &Workbook{
		Path: path,
		file: file,
	}, nil
}

// SheetNames returns the sheet names in workbook order
func (wb *Workbook) SheetNames() []string {
	names := make([]string, 0, len(wb.file.Sheets))
	for _, sheet := range wb.file.Sheets {
		names = append(names, sheet.Name)
	}
	return names
}

// Table reads the named sheet. The first row is the header.
func (wb *Workbook) Table(name string) (*Table, error) {
	sheet, ok := wb.file.Sheet[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, name)
	}

	subLog := log.With().Str("Workbook", wb.Path).Str("Sheet", name).Logger()

	table := &Table{
		Name: name,
		Rows: make([][]Cell, 0, sheet.MaxRow),
	}

	for rowIdx := 0; rowIdx < sheet.MaxRow; rowIdx++ {
		row := make([]Cell, sheet.MaxCol)
		empty := true
		for colIdx := 0; colIdx < sheet.MaxCol; colIdx++ {
			xc, err := sheet.Cell(rowIdx, colIdx)
			if err != nil {
				subLog.Error().Err(err).Int("Row", rowIdx).Int("Col", colIdx).Msg("could not read cell")
				return nil, err
			}
			row[colIdx] = convertCell(xc, wb.file.Date1904)
			if !row[colIdx].IsEmpty() {
				empty = false
			}
		}

		if rowIdx == 0 {
			table.Header = make([]string, len(row))
			for colIdx, cell := range row {
				table.Header[colIdx] = cell.String()
			}
			continue
		}

		if !empty {
			table.Rows = append(table.Rows, row)
		}
	}

	subLog.Debug().Int("Rows", len(table.Rows)).Int("Cols", len(table.Header)).Msg("loaded sheet")
	return table, nil
}

func convertCell(xc *xlsx.Cell, date1904 bool) Cell {
	if xc == nil || strings.TrimSpace(xc.Value) == "" {
		return Cell{}
	}

	if xc.IsTime() {
		if t, err := xc.GetTime(date1904); err == nil {
			return Date(t)
		}
	}

	if xc.Type() == xlsx.CellTypeNumeric {
		if val, err := xc.Float(); err == nil {
			return Num(val)
		}
	}

	return Str(xc.Value)
}
