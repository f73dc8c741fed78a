package reference

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-extractor/internal/locator"
	"github.com/dvloznov/statement-extractor/internal/pdfdoc"
)

func TestStandardizeDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"01-02-2024", "01 Feb 2024"},
		{"1/2/2024", "01 Feb 2024"},
		{"15 Jan, 2024", "15 Jan 2024"},
		{"15 Jan 2024", "15 Jan 2024"},
		{"15-Jan-2024", "15 Jan 2024"},
		{"15-Jan-24", "15 Jan 2024"},
		{"not a date", "not a date"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := standardizeDate(tt.input); got != tt.want {
			t.Errorf("standardizeDate(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFindDateColumn(t *testing.T) {
	rows := [][]string{
		{"something", "01-02-2024", "500.00"},
		{"else", "02-02-2024", "600.00"},
		{"more", "03-02-2024", "700.00"},
	}
	col, ok := findDateColumn(rows, 0)
	if !ok || col != 1 {
		t.Errorf("findDateColumn() = %d, %v, want 1, true", col, ok)
	}

	noDates := [][]string{{"a", "b"}, {"c", "d"}}
	if _, ok := findDateColumn(noDates, 0); ok {
		t.Error("findDateColumn() found a date column in dateless rows")
	}
}

func TestMergeMultiline(t *testing.T) {
	rows := [][]string{
		{"01-02-2024", "UPI PAYMENT", "500.00"},
		{"", "TO MERCHANT REF 123", ""},
		{"02-02-2024", "NEFT CREDIT", "1000.00"},
	}

	got := mergeMultiline(rows, 0, 0)
	want := [][]string{
		{"01-02-2024", "UPI PAYMENT TO MERCHANT REF 123", "500.00"},
		{"02-02-2024", "NEFT CREDIT", "1000.00"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mergeMultiline() = %v, want %v", got, want)
	}
}

func TestMergeMultilineFillsEmptyCells(t *testing.T) {
	rows := [][]string{
		{"01-02-2024", "PAYMENT", ""},
		{"", "", "450.00"},
	}
	got := mergeMultiline(rows, 0, 0)
	if len(got) != 1 || got[0][2] != "450.00" {
		t.Errorf("mergeMultiline() = %v, want amount folded into dated row", got)
	}
}

func TestExtractHeaders(t *testing.T) {
	rows := [][]string{
		{"ACME BANK LIMITED", "", ""},
		{"Date", "Narration\nDetails", "Balance"},
		{"01-02-2024", "UPI", "100.00"},
	}
	headers, idx, ok := extractHeaders(rows)
	if !ok {
		t.Fatal("extractHeaders() ok = false, want true")
	}
	if idx != 1 {
		t.Errorf("header row index = %d, want 1", idx)
	}
	want := []string{"Date", "Narration Details", "Balance"}
	if !reflect.DeepEqual(headers, want) {
		t.Errorf("headers = %v, want %v", headers, want)
	}
}

// mockTableReader serves canned grids per flavor.
type mockTableReader struct {
	results map[locator.Flavor][]locator.Grid
	errs    map[locator.Flavor]error
}

func (m *mockTableReader) ReadTables(ctx context.Context, path, pages string, flavor locator.Flavor, password string) ([]locator.Grid, error) {
	if err := m.errs[flavor]; err != nil {
		return nil, err
	}
	return m.results[flavor], nil
}

func statementGrid() locator.Grid {
	return locator.Grid{
		Page: 1,
		BBox: pdfdoc.Rect{X0: 10, Y0: 100, X1: 500, Y1: 700},
		Cells: [][]string{
			{"Date", "Narration", "Debit", "Credit", "Balance"},
			{"01-02-2024", "UPI PAYMENT", "500.00", "", "4500.00"},
			{"", "TO MERCHANT", "", "", ""},
			{"02-02-2024", "NEFT CREDIT", "", "1000.00", "5500.00"},
			{"03-02-2024", "ATM WITHDRAWAL", "200.00", "nan", "5300.00"},
		},
	}
}

func TestBuilderBuild(t *testing.T) {
	reader := &mockTableReader{
		results: map[locator.Flavor][]locator.Grid{locator.FlavorLattice: {statementGrid()}},
	}
	b := NewBuilder(reader, zerolog.Nop())

	table, summary, err := b.Build(context.Background(), "statement.pdf", "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if table.Empty() {
		t.Fatal("Build() returned empty table")
	}
	if len(table.Rows) != 3 {
		t.Fatalf("Build() = %d rows, want 3 (continuation merged)", len(table.Rows))
	}
	if table.Rows[0][1] != "UPI PAYMENT TO MERCHANT" {
		t.Errorf("continuation not merged: %v", table.Rows[0])
	}
	if table.Rows[2][3] != "" {
		t.Errorf("nan cell not cleaned: %v", table.Rows[2])
	}

	wantHeaders := []string{"Date", "Narration", "Debit", "Credit", "Balance"}
	if !reflect.DeepEqual(summary.Headers, wantHeaders) {
		t.Errorf("headers = %v, want %v", summary.Headers, wantHeaders)
	}
	if summary.RowCount != 3 {
		t.Errorf("row count = %d, want 3", summary.RowCount)
	}
	if summary.DateRange != "01 Feb 2024 to 03 Feb 2024" {
		t.Errorf("date range = %q", summary.DateRange)
	}
}

func TestBuilderBuildFallsBackAcrossStrategies(t *testing.T) {
	reader := &mockTableReader{
		results: map[locator.Flavor][]locator.Grid{locator.FlavorStreamTuned: {statementGrid()}},
		errs:    map[locator.Flavor]error{locator.FlavorLattice: errors.New("no ruled lines")},
	}
	b := NewBuilder(reader, zerolog.Nop())

	table, _, err := b.Build(context.Background(), "statement.pdf", "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if table.Empty() {
		t.Error("Build() empty table, want fallback strategy result")
	}
}

func TestBuilderBuildNothingFound(t *testing.T) {
	b := NewBuilder(&mockTableReader{}, zerolog.Nop())

	table, summary, err := b.Build(context.Background(), "statement.pdf", "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !table.Empty() || summary.RowCount != 0 {
		t.Errorf("Build() = %+v, want empty table without error", table)
	}
}
