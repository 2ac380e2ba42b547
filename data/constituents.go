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

package data

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/goccy/go-json"
	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/imports"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/penny-vault/fundperf/lookthrough"
	"github.com/penny-vault/fundperf/workbook"
)

const (
	DefaultHoldingsBaseURL = "https://www.blackrock.com/ca/investors/en/products"
	DefaultPrimaryID       = "1464253357814"
	DefaultAlternateID     = "1464253357804"

	maxSearchDepth = 10
)

// DefaultETFs maps each supported ETF to the product path fragment of its holdings page
func DefaultETFs() map[string]string {
	return map[string]string{
		"XUS": "251422/ishares-sp-500-index-etf",
		"XEF": "251421/ishares-msci-eafe-imi-index-etf",
		"XEM": "239636/ishares-msci-emerging-markets-index-etf",
		"XIU": "239832/ishares-sptsx-60-index-etf",
		"XCB": "239485/ishares-canadian-corporate-bond-index-etf",
	}
}

// HoldingsConfig configures a HoldingsSource; zero fields take the defaults
type HoldingsConfig struct {
	BaseURL     string
	PrimaryID   string
	AlternateID string
	JSONPath    string
	ETFs        map[string]string
	Concurrency int
}

// HoldingsSource fetches ETF constituent lists
type HoldingsSource struct {
	client *Client
	cfg    HoldingsConfig
	today  func() time.Time
}

// NewHoldingsSource creates a holdings source
func NewHoldingsSource(client *Client, cfg HoldingsConfig) *HoldingsSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHoldingsBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PrimaryID == "" {
		cfg.PrimaryID = DefaultPrimaryID
	}
	if cfg.AlternateID == "" {
		cfg.AlternateID = DefaultAlternateID
	}
	if len(cfg.ETFs) == 0 {
		cfg.ETFs = DefaultETFs()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	return &HoldingsSource{
		client: client,
		cfg:    cfg,
		today: func() time.Time {
			return workbook.Midnight(time.Now())
		},
	}
}

// ETFs returns the configured ETF tickers in sorted order
func (src *HoldingsSource) ETFs() []string {
	etfs := make([]string, 0, len(src.cfg.ETFs))
	for etf := range src.cfg.ETFs {
		etfs = append(etfs, etf)
	}
	sort.Strings(etfs)
	return etfs
}

// JSONURL returns the look-through JSON endpoint of an ETF
func (src *HoldingsSource) JSONURL(fragment string, asOf time.Time, alternate bool) string {
	id := src.cfg.PrimaryID
	if alternate {
		id = src.cfg.AlternateID
	}
	params := url.Values{}
	params.Set("tab", "lookthrus")
	params.Set("fileType", "json")
	if !asOf.IsZero() {
		params.Set("asOfDate", asOf.Format("20060102"))
	}
	return fmt.Sprintf("%s/%s/%s.ajax?%s", src.cfg.BaseURL, fragment, id, params.Encode())
}

// CSVURL returns the holdings CSV download of an ETF
func (src *HoldingsSource) CSVURL(fragment, etf string) string {
	params := url.Values{}
	params.Set("fileType", "csv")
	params.Set("fileName", etf+"_holdings")
	params.Set("dataType", "fund")
	return fmt.Sprintf("%s/%s/%s.ajax?%s", src.cfg.BaseURL, fragment, src.cfg.PrimaryID, params.Encode())
}

// Fetch downloads the constituents of etf. The JSON endpoints are tried first
// and the CSV download is the last resort. A zero asOf requests the latest
// holdings, which are stamped with today's date.
func (src *HoldingsSource) Fetch(ctx context.Context, etf string, asOf time.Time) ([]*lookthrough.Constituent, error) {
	fragment, ok := src.cfg.ETFs[etf]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownETF, etf)
	}

	subLog := log.With().Str("ETF", etf).Logger()

	constituents, err := src.fetchJSON(ctx, etf, fragment, asOf)
	if err != nil {
		subLog.Debug().Err(err).Msg("json holdings unavailable; falling back to csv")
		err = src.client.Fetch(ctx, src.CSVURL(fragment, etf), func(body []byte) (err error) {
			constituents, err = ParseConstituentsCSV(etf, body)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	effective := asOf
	if effective.IsZero() {
		effective = src.today()
	}
	for _, c := range constituents {
		if c.EffectiveDate.IsZero() {
			c.EffectiveDate = effective
		}
	}

	subLog.Info().Int("Constituents", len(constituents)).Time("EffectiveDate", effective).Msg("fetched etf holdings")
	return constituents, nil
}

func (src *HoldingsSource) fetchJSON(ctx context.Context, etf, fragment string, asOf time.Time) ([]*lookthrough.Constituent, error) {
	var lastErr error
	for _, alternate := range []bool{false, true} {
		var constituents []*lookthrough.Constituent
		err := src.client.Fetch(ctx, src.JSONURL(fragment, asOf, alternate), func(body []byte) (err error) {
			constituents, err = ParseConstituentsJSON(etf, body, src.cfg.JSONPath)
			return err
		})
		if err != nil {
			lastErr = err
			continue
		}
		return constituents, nil
	}
	return nil, lastErr
}

// FetchAll downloads every requested ETF on a bounded pool. ETFs that fail are
// logged and left out of the result.
func (src *HoldingsSource) FetchAll(ctx context.Context, etfs []string, asOf time.Time) []*lookthrough.Constituent {
	results := make([][]*lookthrough.Constituent, len(etfs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(src.cfg.Concurrency)

	for idx, etf := range etfs {
		idx, etf := idx, etf
		g.Go(func() error {
			constituents, err := src.Fetch(gctx, etf, asOf)
			if err != nil {
				log.Warn().Err(err).Str("ETF", etf).Msg("could not fetch etf holdings; excluding it")
				return nil
			}
			results[idx] = constituents
			return nil
		})
	}

	// workers never return an error
	_ = g.Wait()

	all := make([]*lookthrough.Constituent, 0)
	for _, constituents := range results {
		all = append(all, constituents...)
	}
	return all
}

// ParseConstituentsJSON reads the holdings list out of a look-through payload.
// When jsonPath is empty the first list of objects found in the document is used.
func ParseConstituentsJSON(etf string, body []byte, jsonPath string) ([]*lookthrough.Constituent, error) {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s holdings json: %s", ErrDataShape, etf, err)
	}

	var items []interface{}
	if jsonPath != "" {
		found, err := jsonpath.Get(jsonPath, doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %s holdings json path %q: %s", ErrDataShape, etf, jsonPath, err)
		}
		list, ok := found.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: %s holdings json path %q is not a list", ErrDataShape, etf, jsonPath)
		}
		items = list
	} else {
		items = findObjectList(doc, 0)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHoldings, etf)
	}

	constituents := make([]*lookthrough.Constituent, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		c := lookthrough.NewConstituent(etf)
		for _, col := range lookthrough.TargetColumns {
			cell := jsonCell(obj[col])
			if cell.IsEmpty() {
				cell = securityField(obj, col)
			}
			assignCell(c, col, cell)
		}
		constituents = append(constituents, c)
	}

	return finishPayload(etf, constituents)
}

// findObjectList returns the first list, searched depth first, whose leading
// elements are all objects
func findObjectList(node interface{}, depth int) []interface{} {
	if depth > maxSearchDepth {
		return nil
	}

	switch v := node.(type) {
	case []interface{}:
		if isObjectList(v) {
			return v
		}
		for _, elem := range v {
			if found := findObjectList(elem, depth+1); found != nil {
				return found
			}
		}
	case map[string]interface{}:
		// sorted keys keep the search deterministic
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if found := findObjectList(v[k], depth+1); found != nil {
				return found
			}
		}
	}
	return nil
}

func isObjectList(list []interface{}) bool {
	if len(list) == 0 {
		return false
	}
	n := len(list)
	if n > 5 {
		n = 5
	}
	for _, elem := range list[:n] {
		if _, ok := elem.(map[string]interface{}); !ok {
			return false
		}
	}
	return true
}

var securityAliases = map[string][]string{
	lookthrough.ColTicker:     {"ticker", "symbol"},
	lookthrough.ColName:       {"name", "securityName"},
	lookthrough.ColSector:     {"sector", "gicsSector"},
	lookthrough.ColAssetClass: {"assetClass", "assetType"},
}

func securityField(obj map[string]interface{}, col string) workbook.Cell {
	aliases, ok := securityAliases[col]
	if !ok {
		return workbook.Cell{}
	}
	sec, ok := obj["security"].(map[string]interface{})
	if !ok {
		return workbook.Cell{}
	}
	for _, alias := range aliases {
		if cell := jsonCell(sec[alias]); !cell.IsEmpty() {
			return cell
		}
	}
	return workbook.Cell{}
}

func jsonCell(val interface{}) workbook.Cell {
	switch v := val.(type) {
	case float64:
		return workbook.Num(v)
	case string:
		return workbook.Str(v)
	case bool:
		return workbook.Str(strconv.FormatBool(v))
	}
	return workbook.Cell{}
}

func assignCell(c *lookthrough.Constituent, col string, cell workbook.Cell) {
	switch {
	case cell.IsEmpty():
	case col == lookthrough.ColEffectiveDate:
		if dt, ok := cell.Date(); ok {
			c.EffectiveDate = dt
		}
	case lookthrough.NumericColumns[col]:
		if val, ok := cell.Float(); ok {
			c.SetNumber(col, val)
		}
	default:
		c.SetText(col, cell.String())
	}
}

// ParseConstituentsCSV reads a holdings CSV download. Everything before the
// line starting with "Ticker," and after the first blank line that follows it
// is ignored.
func ParseConstituentsCSV(etf string, body []byte) ([]*lookthrough.Constituent, error) {
	table, header, err := extractCSVTable(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s holdings csv: %s", ErrDataShape, etf, err)
	}

	present := make(map[string]bool, len(header))
	for _, col := range header {
		present[col] = true
	}

	dictate := make(map[string]interface{})
	for col := range lookthrough.NumericColumns {
		if present[col] {
			dictate[col] = imports.Converter{
				ConcreteType: float64(0),
				ConverterFunc: func(in interface{}) (interface{}, error) {
					s, _ := in.(string)
					if val, ok := workbook.ParseNumber(s); ok {
						return val, nil
					}
					return nil, nil
				},
			}
		}
	}

	nilValue := ""
	df, err := imports.LoadFromCSV(context.Background(), bytes.NewReader(table), imports.CSVLoadOptions{
		DictateDataType: dictate,
		NilValue:        &nilValue,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s holdings csv: %s", ErrDataShape, etf, err)
	}

	constituents := make([]*lookthrough.Constituent, df.NRows())
	for idx := range constituents {
		constituents[idx] = lookthrough.NewConstituent(etf)
	}

	for _, series := range df.Series {
		col := series.Name()
		if !isTargetColumn(col) {
			continue
		}
		for row, c := range constituents {
			assignCell(c, col, seriesCell(series, row))
		}
	}

	return finishPayload(etf, constituents)
}

func seriesCell(series dataframe.Series, row int) workbook.Cell {
	switch v := series.Value(row).(type) {
	case float64:
		return workbook.Num(v)
	case string:
		return workbook.Str(v)
	}
	return workbook.Cell{}
}

func isTargetColumn(col string) bool {
	for _, target := range lookthrough.TargetColumns {
		if col == target {
			return true
		}
	}
	return false
}

// extractCSVTable returns the header line and the data rows that follow it up
// to the first blank line
func extractCSVTable(body []byte) ([]byte, []string, error) {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))

	var out bytes.Buffer
	var header []string
	inTable := false

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !inTable {
			if !strings.HasPrefix(line, lookthrough.ColTicker+",") {
				continue
			}
			fields, err := csv.NewReader(strings.NewReader(line)).Read()
			if err != nil {
				return nil, nil, err
			}
			header = fields
			inTable = true
		} else if strings.TrimSpace(strings.ReplaceAll(line, ",", "")) == "" {
			break
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	if !inTable {
		return nil, nil, fmt.Errorf("no line starting with %q", lookthrough.ColTicker+",")
	}
	return out.Bytes(), header, nil
}

// finishPayload applies the steps shared by both payload formats and checks the
// payload carries the columns the decomposition needs
func finishPayload(etf string, constituents []*lookthrough.Constituent) ([]*lookthrough.Constituent, error) {
	constituents = lookthrough.StripPreamble(constituents)
	if len(constituents) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHoldings, etf)
	}

	hasTicker := false
	hasSize := false
	for _, c := range constituents {
		if c.Ticker != "" {
			hasTicker = true
		}
		if !math.IsNaN(c.Weight) || !math.IsNaN(c.MarketValue) {
			hasSize = true
		}
	}
	if !hasTicker {
		return nil, fmt.Errorf("%w: %s holdings have no %s column", ErrDataShape, etf, lookthrough.ColTicker)
	}
	if !hasSize {
		return nil, fmt.Errorf("%w: %s holdings have neither %s nor %s", ErrDataShape, etf, lookthrough.ColWeight, lookthrough.ColMarketValue)
	}

	lookthrough.NormalizeWeights(constituents)
	return constituents, nil
}
