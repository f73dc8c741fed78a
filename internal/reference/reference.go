// Package reference builds an independent, schema-unaware extraction of a
// statement's transactions straight from the deterministic table library.
// The result is never authoritative on its own; the reconciliation stage
// uses it purely as a cross-check signal to arbitrate debit/credit
// ambiguity in the model-extracted records.
package reference

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-extractor/internal/locator"
)

// Table is the reconciliation reference: raw string cells, no schema.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Empty reports whether the reference carries no usable rows.
func (t Table) Empty() bool { return len(t.Rows) == 0 }

// Summary describes what the builder found.
type Summary struct {
	RowCount  int
	Headers   []string
	DateRange string
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{1,2}[-/]\d{1,2}[-/]\d{2,4}`),
	regexp.MustCompile(`\d{1,2}\s+\w{3}\s*,?\s+\d{4}`),
	regexp.MustCompile(`\d{1,2}-\w{3}-\d{2,4}`),
	regexp.MustCompile(`\d{4}[-/]\d{1,2}[-/]\d{1,2}`),
	regexp.MustCompile(`\d{1,2}\s+\w{3}\s*,?\s+\d{2}`),
}

var headerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`date|dt|txn.*date|transaction.*date`),
	regexp.MustCompile(`balance|bal|amount|amt`),
	regexp.MustCompile(`debit|credit|withdrawal|deposit`),
	regexp.MustCompile(`description|particulars|narration|details|reference|remark`),
	regexp.MustCompile(`cheque|chq|ref.*no|reference.*no`),
}

// dateLayouts pair a Go time layout with the text pattern that selects it.
var dateLayouts = []struct {
	layout  string
	pattern *regexp.Regexp
}{
	{"2-1-2006", regexp.MustCompile(`\d{1,2}-\d{1,2}-\d{4}`)},
	{"2/1/2006", regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`)},
	{"2 Jan, 2006", regexp.MustCompile(`\d{1,2}\s+\w{3},\s+\d{4}`)},
	{"2 Jan 2006", regexp.MustCompile(`\d{1,2}\s+\w{3}\s+\d{4}`)},
	{"2-Jan-2006", regexp.MustCompile(`\d{1,2}-\w{3}-\d{4}`)},
	{"2-Jan-06", regexp.MustCompile(`\d{1,2}-\w{3}-\d{2}`)},
	{"2 Jan, 06", regexp.MustCompile(`\d{1,2}\s+\w{3},\s+\d{2}`)},
	{"2 Jan 06", regexp.MustCompile(`\d{1,2}\s+\w{3}\s+\d{2}`)},
}

func isDateLike(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" || strings.EqualFold(v, "nan") {
		return false
	}
	for _, p := range datePatterns {
		if p.MatchString(v) {
			return true
		}
	}
	return false
}

// standardizeDate normalizes the many statement date formats to "02 Jan 2006".
// Unrecognized values come back unchanged.
func standardizeDate(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return v
	}
	for _, dl := range dateLayouts {
		m := dl.pattern.FindString(v)
		if m == "" {
			continue
		}
		t, err := time.Parse(dl.layout, m)
		if err != nil {
			continue
		}
		return t.Format("02 Jan 2006")
	}
	return v
}

func isHeaderRow(row []string) bool {
	var parts []string
	for _, cell := range row {
		c := strings.ToLower(strings.TrimSpace(cell))
		if c != "" && c != "nan" {
			parts = append(parts, c)
		}
	}
	text := strings.Join(parts, " ")
	if text == "" {
		return false
	}
	matches := 0
	for _, p := range headerPatterns {
		if p.MatchString(text) {
			matches++
		}
	}
	return matches >= 2
}

var whitespaceRuns = regexp.MustCompile(`\s+`)

// extractHeaders scans the first rows of a grid for a header row and returns
// cleaned header names plus the row index, or ok=false.
func extractHeaders(rows [][]string) ([]string, int, bool) {
	for i := 0; i < len(rows) && i < 5; i++ {
		if !isHeaderRow(rows[i]) {
			continue
		}
		var headers []string
		for _, cell := range rows[i] {
			h := strings.TrimSpace(cell)
			h = strings.ReplaceAll(h, "\n", " ")
			h = strings.ReplaceAll(h, "\r", " ")
			h = whitespaceRuns.ReplaceAllString(h, " ")
			if h == "" || strings.EqualFold(h, "nan") {
				h = fmt.Sprintf("Column_%d", len(headers))
			}
			headers = append(headers, h)
		}
		return headers, i, true
	}
	return nil, 0, false
}

// isTransactionRows checks for a date-bearing column: within the first four
// columns, a sampled column must be date-like in at least two values, or one
// value covering at least 15% of the sample.
func isTransactionRows(rows [][]string) bool {
	if len(rows) < 2 {
		return false
	}
	cols := len(rows[0])
	for col := 0; col < cols && col < 4; col++ {
		var samples []string
		for i := 0; i < len(rows) && i < 20; i++ {
			if col >= len(rows[i]) {
				continue
			}
			v := strings.TrimSpace(rows[i][col])
			if v != "" && !strings.EqualFold(v, "nan") {
				samples = append(samples, v)
			}
		}
		if len(samples) < 3 {
			continue
		}
		dateMatches := 0
		for _, v := range samples {
			if isDateLike(v) {
				dateMatches++
			}
		}
		if dateMatches >= 2 || (dateMatches >= 1 && float64(dateMatches)/float64(len(samples)) >= 0.15) {
			return true
		}
	}
	return false
}

// findDateColumn locates the column whose sampled values are mostly dates.
func findDateColumn(rows [][]string, startRow int) (int, bool) {
	if len(rows) == 0 {
		return 0, false
	}
	cols := len(rows[0])
	for col := 0; col < cols; col++ {
		var samples []string
		for i := startRow; i < len(rows) && i < startRow+10; i++ {
			if col >= len(rows[i]) {
				continue
			}
			v := strings.TrimSpace(rows[i][col])
			if v != "" && !strings.EqualFold(v, "nan") {
				samples = append(samples, v)
			}
		}
		if len(samples) == 0 {
			continue
		}
		dateMatches := 0
		for _, v := range samples {
			if isDateLike(v) {
				dateMatches++
			}
		}
		if float64(dateMatches)/float64(len(samples)) > 0.5 {
			return col, true
		}
	}
	return 0, false
}

// mergeMultiline folds continuation rows (no date in the date column) into
// the preceding dated row, concatenating text cells and filling empty ones.
func mergeMultiline(rows [][]string, dateCol, startRow int) [][]string {
	var merged [][]string
	var current []string

	for i := startRow; i < len(rows); i++ {
		row := rows[i]
		hasDate := dateCol < len(row) && isDateLike(row[dateCol])
		if hasDate {
			if current != nil {
				merged = append(merged, current)
			}
			current = append([]string(nil), row...)
			continue
		}
		if current == nil {
			continue
		}
		for col := 0; col < len(row) && col < len(current); col++ {
			v := strings.TrimSpace(row[col])
			if v == "" || strings.EqualFold(v, "nan") {
				continue
			}
			existing := strings.TrimSpace(current[col])
			if existing == "" || strings.EqualFold(existing, "nan") {
				current[col] = v
			} else if col != dateCol {
				current[col] = existing + " " + v
			}
		}
	}
	if current != nil {
		merged = append(merged, current)
	}
	return merged
}

func dropEmptyRows(rows [][]string) [][]string {
	var out [][]string
	for _, row := range rows {
		empty := true
		for _, cell := range row {
			v := strings.TrimSpace(cell)
			if v != "" && !strings.EqualFold(v, "nan") {
				empty = false
				break
			}
		}
		if !empty {
			out = append(out, row)
		}
	}
	return out
}

// Builder assembles the reconciliation reference from deterministic grids.
type Builder struct {
	tables locator.TableReader
	log    zerolog.Logger
}

// NewBuilder creates a Builder over the given table library.
func NewBuilder(tables locator.TableReader, log zerolog.Logger) *Builder {
	return &Builder{tables: tables, log: log}
}

// reference extraction favors ruled-line grids first, then the tuned
// whitespace mode; the order differs from the locator on purpose since
// cell fidelity matters more than recall here.
var referenceStrategies = []locator.Flavor{locator.FlavorLattice, locator.FlavorStreamTuned}

// Build extracts the reference table for a whole document. Returns an empty
// table (not an error) when nothing usable is found.
func (b *Builder) Build(ctx context.Context, path, password string) (Table, Summary, error) {
	var grids []locator.Grid
	for _, flavor := range referenceStrategies {
		found, err := b.tables.ReadTables(ctx, path, "all", flavor, password)
		if err != nil {
			b.log.Warn().Err(err).Str("flavor", string(flavor)).Msg("reference extraction strategy failed, trying next")
			continue
		}
		if len(found) > 0 {
			grids = found
			break
		}
	}
	if len(grids) == 0 {
		return Table{}, Summary{}, nil
	}

	var table Table
	firstProcessed := false
	var firstDate, lastDate string

	for _, g := range grids {
		rows := dropEmptyRows(g.Cells)
		if len(rows) == 0 || !isTransactionRows(rows) {
			continue
		}

		startRow := 0
		if !firstProcessed {
			if headers, idx, ok := extractHeaders(rows); ok {
				table.Headers = headers
				startRow = idx + 1
			} else {
				for i := range rows[0] {
					table.Headers = append(table.Headers, fmt.Sprintf("Column_%d", i))
				}
			}
			firstProcessed = true
		} else if isHeaderRow(rows[0]) {
			startRow = 1
		}

		dateCol, ok := findDateColumn(rows, startRow)
		if !ok {
			continue
		}

		for _, row := range mergeMultiline(rows, dateCol, startRow) {
			if dateCol >= len(row) || !isDateLike(row[dateCol]) {
				continue
			}
			cells := make([]string, len(row))
			for i, cell := range row {
				v := strings.TrimSpace(cell)
				if strings.EqualFold(v, "nan") {
					v = ""
				}
				cells[i] = v
			}
			table.Rows = append(table.Rows, cells)

			std := standardizeDate(row[dateCol])
			if firstDate == "" {
				firstDate = std
			}
			lastDate = std
		}
	}

	summary := Summary{RowCount: len(table.Rows), Headers: table.Headers}
	if firstDate != "" {
		summary.DateRange = fmt.Sprintf("%s to %s", firstDate, lastDate)
	}
	b.log.Info().Int("rows", summary.RowCount).Str("date_range", summary.DateRange).Msg("reference table built")
	return table, summary, nil
}
