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
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	dfgo "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/exports"
	"github.com/rs/zerolog/log"

	"github.com/penny-vault/fundperf/dataframe"
)

const dateLayout = "2006-01-02"

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a label into a file name fragment: "Tactic 1" becomes "tactic_1"
func Slug(label string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(label), "_"), "_")
}

func stringSeries(name string, vals []string) dfgo.Series {
	items := make([]interface{}, len(vals))
	for idx, val := range vals {
		items[idx] = val
	}
	return dfgo.NewSeriesString(name, nil, items...)
}

func floatSeries(name string, vals []float64) dfgo.Series {
	items := make([]interface{}, len(vals))
	for idx, val := range vals {
		if math.IsInf(val, 0) {
			val = math.NaN()
		}
		items[idx] = val
	}
	return dfgo.NewSeriesFloat64(name, nil, items...)
}

// frameSeries converts a date indexed frame into a Date column followed by one
// column per series. Column names are prefixed with prefix when it is set.
func frameSeries(df *dataframe.DataFrame, prefix string) []dfgo.Series {
	dates := make([]string, df.Len())
	for idx, dt := range df.Dates {
		dates[idx] = dt.Format(dateLayout)
	}

	series := make([]dfgo.Series, 0, df.ColCount()+1)
	series = append(series, stringSeries("Date", dates))
	for colIdx, name := range df.ColNames {
		if prefix != "" {
			name = prefix + " " + name
		}
		series = append(series, floatSeries(name, df.Vals[colIdx]))
	}
	return series
}

// exportCSV writes the series as CSV; missing values are empty cells
func exportCSV(ctx context.Context, w io.Writer, series []dfgo.Series) error {
	empty := ""
	return exports.ExportToCSV(ctx, w, dfgo.NewDataFrame(series...), exports.CSVExportOptions{
		NullString: &empty,
	})
}

func (writer *Writer) writeCSV(ctx context.Context, name string, series []dfgo.Series) error {
	path := filepath.Join(writer.dir, name)
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		log.Error().Err(err).Str("FileName", path).Msg("error opening file")
		return err
	}
	defer fh.Close()

	if err := exportCSV(ctx, fh, series); err != nil {
		log.Error().Err(err).Str("FileName", path).Msg("error writing file")
		return fmt.Errorf("write %s: %w", name, err)
	}

	writer.written = append(writer.written, path)
	return nil
}

func (writer *Writer) writeFrame(ctx context.Context, name string, df *dataframe.DataFrame) error {
	if df == nil {
		return nil
	}
	return writer.writeCSV(ctx, name, frameSeries(df, ""))
}
