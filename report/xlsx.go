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

package report

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx/v3"

	"github.com/penny-vault/fundperf/analysis"
	"github.com/penny-vault/fundperf/dataframe"
	"github.com/penny-vault/fundperf/portfolio"
)

const maxSheetName = 31

var sheetNameReplacer = strings.NewReplacer(":", "-", "\\", "-", "/", "-", "?", "", "*", "", "[", "(", "]", ")")

// SheetName makes name usable as an xlsx sheet name
func SheetName(name string) string {
	name = strings.TrimSpace(sheetNameReplacer.Replace(name))
	if len(name) > maxSheetName {
		name = strings.TrimSpace(name[:maxSheetName])
	}
	return name
}

// RatiosSheetName labels a metric window in years when it is a whole number of
// years and in weeks otherwise
func RatiosSheetName(window int) string {
	if window%52 == 0 {
		return fmt.Sprintf("Ratios - %dY", window/52)
	}
	return fmt.Sprintf("Ratios - %dW", window)
}

func setFloat(cell *xlsx.Cell, val float64) {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return
	}
	cell.SetFloat(val)
}

func addHeader(sheet *xlsx.Sheet, names ...string) {
	row := sheet.AddRow()
	for _, name := range names {
		row.AddCell().SetString(name)
	}
}

func addSheet(file *xlsx.File, name string) (*xlsx.Sheet, error) {
	sheet, err := file.AddSheet(SheetName(name))
	if err != nil {
		log.Error().Err(err).Str("Sheet", name).Msg("could not add sheet to report workbook")
		return nil, err
	}
	return sheet, nil
}

func addSnapshotSheet(file *xlsx.File, snap *portfolio.Snapshot) error {
	sheet, err := addSheet(file, fmt.Sprintf("%s - %s", snap.Label, snap.Date.Format(dateLayout)))
	if err != nil {
		return err
	}

	addHeader(sheet, "Ticker", string(portfolio.Tactic), string(portfolio.Strategic), "Price")
	for _, snapRow := range snap.Rows {
		row := sheet.AddRow()
		row.AddCell().SetString(snapRow.Ticker)
		setFloat(row.AddCell(), snapRow.Tactic)
		setFloat(row.AddCell(), snapRow.Strategic)
		setFloat(row.AddCell(), snapRow.Price)
	}
	return nil
}

func addRatiosSheet(file *xlsx.File, metrics *portfolio.Metrics) error {
	sheet, err := addSheet(file, RatiosSheetName(metrics.Window))
	if err != nil {
		return err
	}

	frames := []struct {
		name string
		df   *dataframe.DataFrame
	}{
		{"VAM", metrics.VAM},
		{"RA", metrics.RA},
		{"RI", metrics.RI},
	}

	header := []string{"Date"}
	for _, frame := range frames {
		for _, col := range frame.df.ColNames {
			header = append(header, frame.name+" "+col)
		}
	}
	addHeader(sheet, header...)

	for rowIdx, dt := range metrics.VAM.Dates {
		row := sheet.AddRow()
		row.AddCell().SetDate(dt)
		for _, frame := range frames {
			for _, col := range frame.df.Vals {
				setFloat(row.AddCell(), col[rowIdx])
			}
		}
	}
	return nil
}

func addLatestSheet(file *xlsx.File, latest []*portfolio.LatestMetric) error {
	sheet, err := addSheet(file, "Latest")
	if err != nil {
		return err
	}

	addHeader(sheet, "Fund", "Window", "Date", "VAM", "RA", "RI", "Target VAM", "Target RA", "Target RI")
	for _, metric := range latest {
		row := sheet.AddRow()
		row.AddCell().SetString(string(metric.Fund))
		row.AddCell().SetInt(metric.Window)
		row.AddCell().SetDate(metric.Date)
		for _, val := range []float64{metric.VAM, metric.RA, metric.RI, metric.Target.VAM, metric.Target.RA, metric.Target.RI} {
			setFloat(row.AddCell(), val)
		}
	}
	return nil
}

// WriteWorkbook writes the snapshot and ratio sheets of a result to the xlsx report
func (writer *Writer) WriteWorkbook(res *analysis.Result) error {
	if writer.workbook == "" {
		return nil
	}

	file := xlsx.NewFile()
	for _, snap := range res.Snapshots {
		if err := addSnapshotSheet(file, snap); err != nil {
			return err
		}
	}
	for _, metrics := range res.Metrics {
		if err := addRatiosSheet(file, metrics); err != nil {
			return err
		}
	}
	if len(res.Latest) > 0 {
		if err := addLatestSheet(file, res.Latest); err != nil {
			return err
		}
	}

	if len(file.Sheets) == 0 {
		log.Warn().Msg("nothing to write to report workbook")
		return nil
	}

	path := filepath.Join(writer.dir, writer.workbook)
	start := time.Now()
	if err := file.Save(path); err != nil {
		log.Error().Err(err).Str("FileName", path).Msg("error saving report workbook")
		return err
	}
	log.Debug().Str("FileName", path).Dur("Elapsed", time.Since(start)).Int("Sheets", len(file.Sheets)).Msg("saved report workbook")

	writer.written = append(writer.written, path)
	return nil
}
