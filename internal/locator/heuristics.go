package locator

import (
	"regexp"
	"strings"
)

// Heuristic signals for deciding whether a detected grid is a transaction
// table: header keyword density, date-pattern density in the leading columns,
// and transaction-keyword density across the full cell text.

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{1,2}[-/]\d{1,2}[-/]\d{2,4}`),
	regexp.MustCompile(`\d{1,2}\s+\w{3}\s*,?\s+\d{4}`),
	regexp.MustCompile(`\d{1,2}-\w{3}-\d{2,4}`),
	regexp.MustCompile(`\d{4}[-/]\d{1,2}[-/]\d{1,2}`),
}

var headerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`date|dt|txn.*date|transaction.*date`),
	regexp.MustCompile(`balance|bal|amount|amt`),
	regexp.MustCompile(`debit|credit|withdrawal|deposit`),
	regexp.MustCompile(`description|particulars|narration|details|reference`),
}

var transactionKeywords = []string{
	"debit", "credit", "balance", "withdrawal", "deposit",
	"transfer", "payment", "upi", "imps", "neft", "rtgs",
}

// isDateLike reports whether a cell value looks like a calendar date.
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

// isHeaderRow reports whether a row reads like a banking column header:
// at least two of the header keyword groups must match the joined row text.
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

// isTransactionGrid applies the retention rule:
// (has_headers AND keywords>=1) OR (date_found AND keywords>=1).
func isTransactionGrid(g Grid) bool {
	if len(g.Cells) < 2 {
		return false
	}

	hasHeaders := false
	for i := 0; i < len(g.Cells) && i < 3; i++ {
		if isHeaderRow(g.Cells[i]) {
			hasHeaders = true
			break
		}
	}

	cols := 0
	if len(g.Cells) > 0 {
		cols = len(g.Cells[0])
	}
	dateFound := false
	for col := 0; col < cols && col < 4 && !dateFound; col++ {
		var samples []string
		for i := 0; i < len(g.Cells) && i < 10; i++ {
			if col >= len(g.Cells[i]) {
				continue
			}
			v := strings.TrimSpace(g.Cells[i][col])
			if v != "" && !strings.EqualFold(v, "nan") {
				samples = append(samples, v)
			}
		}
		if len(samples) < 2 {
			continue
		}
		dateMatches := 0
		for _, v := range samples {
			if isDateLike(v) {
				dateMatches++
			}
		}
		if dateMatches >= 1 {
			dateFound = true
		}
	}

	var b strings.Builder
	for _, row := range g.Cells {
		for _, cell := range row {
			b.WriteString(strings.ToLower(cell))
			b.WriteByte(' ')
		}
	}
	allText := b.String()
	keywordMatches := 0
	for _, kw := range transactionKeywords {
		if strings.Contains(allText, kw) {
			keywordMatches++
		}
	}

	return (hasHeaders && keywordMatches >= 1) || (dateFound && keywordMatches >= 1)
}
