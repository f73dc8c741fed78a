// Package redactor whites out everything above the transaction table header
// on each page of a statement PDF, so that account-holder details never
// reach an external model. The redacted copy is only written when at least
// one page was actually modified.
package redactor

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-extractor/internal/pdfdoc"
)

const (
	// lineTolerance groups text blocks into logical lines by rounded
	// vertical position.
	lineTolerance = 6.0
	// boundaryOffset is subtracted from the detected header position so the
	// header row itself survives redaction.
	boundaryOffset = 15.0
)

var dateRegex = regexp.MustCompile(`(?i)(\b(?:\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}|\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2})\b|\b\d{1,2}(?:st|nd|rd|th)?[\s\-]?(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)[a-z]*[\s\-]?\d{2,4}\b)`)

var amountRegex = regexp.MustCompile(`(?:INR|Rs\.?|₹)?\s*[-+]?(?:\d{1,3}(?:,\d{2,3})+|\d+)(?:\.\d+)?\s*(?:Cr|Dr|CR|DR)?`)

var columnKeywords = []string{
	"transaction", "txn", "description", "details", "narration",
	"amount", "debit", "credit", "balance", "withdrawal", "deposit", "particulars",
}

var summaryBlacklist = []string{
	"summary", "minimum amount", "payment due", "credit limit",
	"available credit", "statement date", "account details", "transaction period",
}

// line is a merged logical line of page text at a vertical position
// (top-left page coordinates).
type line struct {
	y    float64
	text string
}

// mergeBlocksByLine groups text blocks sharing a rounded vertical position
// into lines ordered top-to-bottom, each joined left-to-right.
func mergeBlocksByLine(blocks []pdfdoc.TextBlock, tolerance float64) []line {
	groups := make(map[float64][]pdfdoc.TextBlock)
	for _, b := range blocks {
		y := math.Round(b.Y0/tolerance) * tolerance
		groups[y] = append(groups[y], b)
	}

	ys := make([]float64, 0, len(groups))
	for y := range groups {
		ys = append(ys, y)
	}
	sort.Float64s(ys)

	lines := make([]line, 0, len(ys))
	for _, y := range ys {
		blks := groups[y]
		sort.Slice(blks, func(i, j int) bool { return blks[i].X0 < blks[j].X0 })
		var parts []string
		for _, b := range blks {
			if t := strings.TrimSpace(b.Text); t != "" {
				parts = append(parts, t)
			}
		}
		lines = append(lines, line{y: y, text: strings.Join(parts, " ")})
	}
	return lines
}

// isTransactionLine reports whether the line at idx looks like a transaction:
// a date and an amount on the same line, or an amount with a date found one
// or two lines above.
func isTransactionLine(idx int, lines []line) bool {
	text := lines[idx].text
	if dateRegex.MatchString(text) && amountRegex.MatchString(text) {
		return true
	}
	if amountRegex.MatchString(text) {
		for back := 1; back <= 2; back++ {
			if idx-back >= 0 && dateRegex.MatchString(lines[idx-back].text) {
				return true
			}
		}
	}
	return false
}

// isHeaderLine reports whether a line is likely the table header: it must
// not be a summary/account-info phrase, must contain "date", and must match
// at least one column keyword.
func isHeaderLine(text string) bool {
	low := strings.ToLower(text)
	for _, b := range summaryBlacklist {
		if strings.Contains(low, b) {
			return false
		}
	}
	if !strings.Contains(low, "date") {
		return false
	}
	for _, k := range columnKeywords {
		if strings.Contains(low, k) {
			return true
		}
	}
	return false
}

// detectHeaderY finds the vertical position of the transaction table header.
// A header line qualifies when a window of the following ~10 lines contains
// at least two transaction-like lines. A 3-line sliding window covering the
// split header form ("Date" / "Transaction" / "Amount") is checked as a
// fallback, using the lowest line of the window.
func detectHeaderY(lines []line) (float64, bool) {
	for i, l := range lines {
		if isHeaderLine(l.text) {
			txCount := 0
			for j := i + 1; j < len(lines) && j < i+10; j++ {
				if isTransactionLine(j, lines) {
					txCount++
				}
			}
			if txCount >= 2 {
				return l.y, true
			}
		}

		end := i + 3
		if end > len(lines) {
			end = len(lines)
		}
		var combined strings.Builder
		maxY := l.y
		for _, cl := range lines[i:end] {
			combined.WriteString(strings.ToLower(cl.text))
			combined.WriteByte(' ')
			if cl.y > maxY {
				maxY = cl.y
			}
		}
		c := combined.String()
		if strings.Contains(c, "date") && strings.Contains(c, "transaction") && strings.Contains(c, "amount") {
			txCount := 0
			for j := i + 3; j < len(lines) && j < i+13; j++ {
				if isTransactionLine(j, lines) {
					txCount++
				}
			}
			if txCount >= 2 {
				return maxY, true
			}
		}
	}
	return 0, false
}

// Redactor produces privacy-safe statement copies.
type Redactor struct {
	opener pdfdoc.Opener
	log    zerolog.Logger
}

// New creates a Redactor over the given document opener.
func New(opener pdfdoc.Opener, log zerolog.Logger) *Redactor {
	return &Redactor{opener: opener, log: log}
}

// Redact detects the transaction table header on each page and paints the
// region above it white. The modified copy is saved to outPath only when at
// least one page changed; the returned bool reports whether it was written.
func (r *Redactor) Redact(ctx context.Context, path, password, outPath string) (bool, error) {
	doc, err := r.opener.Open(ctx, path, password)
	if err != nil {
		return false, fmt.Errorf("Redact: opening %q: %w", path, err)
	}
	defer doc.Close()

	modified := false
	for page := 1; page <= doc.PageCount(); page++ {
		blocks, err := doc.TextBlocks(page)
		if err != nil {
			return false, fmt.Errorf("Redact: text blocks for page %d: %w", page, err)
		}
		lines := mergeBlocksByLine(blocks, lineTolerance)
		headerY, found := detectHeaderY(lines)
		if !found {
			continue
		}

		w, _, err := doc.PageSize(page)
		if err != nil {
			return false, fmt.Errorf("Redact: page size for page %d: %w", page, err)
		}
		boundary := math.Max(0, headerY-boundaryOffset)
		if err := doc.WhiteOut(page, pdfdoc.Rect{X0: 0, Y0: 0, X1: w, Y1: boundary}); err != nil {
			return false, fmt.Errorf("Redact: painting page %d: %w", page, err)
		}
		r.log.Info().Int("page", page).Float64("boundary", boundary).Msg("redacted page header region")
		modified = true
	}

	if !modified {
		return false, nil
	}
	if err := doc.SaveAs(outPath); err != nil {
		return false, fmt.Errorf("Redact: saving %q: %w", outPath, err)
	}
	return true, nil
}
