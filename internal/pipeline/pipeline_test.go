package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-extractor/internal/locator"
	"github.com/dvloznov/statement-extractor/internal/pdfdoc"
	"github.com/dvloznov/statement-extractor/internal/schema"
)

// --- mocks ---

type fakeDocument struct {
	blocks  []pdfdoc.TextBlock
	savedTo string
}

func (f *fakeDocument) PageCount() int                                 { return 1 }
func (f *fakeDocument) PageSize(page int) (w, h float64, err error)    { return 200, 300, nil }
func (f *fakeDocument) TextBlocks(page int) ([]pdfdoc.TextBlock, error) { return f.blocks, nil }
func (f *fakeDocument) WhiteOut(page int, r pdfdoc.Rect) error          { return nil }
func (f *fakeDocument) SaveAs(path string) error {
	f.savedTo = path
	return nil
}
func (f *fakeDocument) Close() error { return nil }

type fakeOpener struct {
	doc *fakeDocument
}

func (f *fakeOpener) Open(ctx context.Context, path, password string) (pdfdoc.Document, error) {
	return f.doc, nil
}

type fakeRasterizer struct{}

func (fakeRasterizer) RenderPage(ctx context.Context, path string, page, dpi int) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 200, 300)), nil
}

type fakeTableReader struct {
	grids []locator.Grid
}

func (f *fakeTableReader) ReadTables(ctx context.Context, path, pages string, flavor locator.Flavor, password string) ([]locator.Grid, error) {
	return f.grids, nil
}

type fakeAI struct {
	classify    bool
	classifyErr error
	inferRaw    string
	extractRaw  string

	classifyCalls int
	extractCalls  int
}

func (f *fakeAI) ClassifyTable(ctx context.Context, png []byte) (bool, error) {
	f.classifyCalls++
	if f.classifyErr != nil {
		return true, f.classifyErr
	}
	return f.classify, nil
}

func (f *fakeAI) InferSchema(ctx context.Context, png []byte) (string, error) {
	return f.inferRaw, nil
}

func (f *fakeAI) ExtractTable(ctx context.Context, png []byte, schemaTemplate string) (string, error) {
	f.extractCalls++
	return f.extractRaw, nil
}

func (f *fakeAI) ReconcileRecords(ctx context.Context, recordsJSON, referenceJSON, schemaTemplate string) (string, error) {
	return recordsJSON, nil
}

// --- fixtures ---

func statementGrid() locator.Grid {
	return locator.Grid{
		Page: 1,
		BBox: pdfdoc.Rect{X0: 10, Y0: 100, X1: 190, Y1: 250},
		Cells: [][]string{
			{"Date", "Narration", "Debit", "Credit", "Balance"},
			{"01-02-2024", "UPI PAYMENT", "500.00", "", "4500.00"},
			{"02-02-2024", "NEFT CREDIT", "", "1000.00", "5500.00"},
		},
	}
}

func headerBlocks() []pdfdoc.TextBlock {
	return []pdfdoc.TextBlock{
		{Rect: pdfdoc.Rect{X0: 10, Y0: 30}, Text: "MR EXAMPLE CUSTOMER, 12 SAMPLE STREET"},
		{Rect: pdfdoc.Rect{X0: 10, Y0: 90}, Text: "Date Narration Debit Credit Balance"},
		{Rect: pdfdoc.Rect{X0: 10, Y0: 120}, Text: "01-02-2024 UPI PAYMENT 500.00"},
		{Rect: pdfdoc.Rect{X0: 10, Y0: 150}, Text: "02-02-2024 NEFT CREDIT 1,000.00"},
	}
}

const extractResponse = `[
  {"dt":"01-02-2024","desc":"UPI PAYMENT","ref":null,"dr":500.00,"cr":0,"bal":4500.00,"type":"W"},
  {"dt":"02-02-2024","desc":"NEFT CREDIT","ref":null,"dr":0,"cr":1000.00,"bal":5500.00,"type":"D"}
]`

func testDeps(tables *fakeTableReader, ai *fakeAI) Deps {
	return Deps{
		Opener:  &fakeOpener{doc: &fakeDocument{blocks: headerBlocks()}},
		Raster:  fakeRasterizer{},
		Tables:  tables,
		AI:      ai,
		Locator: locator.Config{Pages: "all", DPI: 72, Padding: 10, OverlapThreshold: 0.3},
		Log:     zerolog.Nop(),
		Validate: func(path, password string) (pdfdoc.Info, error) {
			return pdfdoc.Info{PageCount: 1}, nil
		},
	}
}

// --- tests ---

func TestRunEndToEnd(t *testing.T) {
	tables := &fakeTableReader{grids: []locator.Grid{statementGrid()}}
	ai := &fakeAI{
		classify:   true,
		inferRaw:   schema.DefaultTemplate + "\nDate order: ASCENDING",
		extractRaw: extractResponse,
	}

	result, err := Run(context.Background(), "statement.pdf", "", testDeps(tables, ai))
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Records, 2)
	assert.Equal(t, "UPI PAYMENT", result.Records[0].Narration)
	assert.Equal(t, "Withdrawal", result.Records[0].TransactionType)
	assert.Equal(t, 500.0, result.Records[0].WithdrawalDR)
	assert.Equal(t, "Deposit", result.Records[1].TransactionType)
	assert.Equal(t, 1000.0, result.Records[1].DepositCR)

	assert.False(t, result.Report.Skipped, "reference rows exist, reconciliation must run")
	assert.Empty(t, result.Report.ContinuityFailures)
	assert.NotEmpty(t, result.Diagnostics)
}

func TestRunNoTablesYieldsEmptyResult(t *testing.T) {
	tables := &fakeTableReader{}
	ai := &fakeAI{classify: true, extractRaw: "[]"}

	result, err := Run(context.Background(), "statement.pdf", "", testDeps(tables, ai))
	require.NoError(t, err, "a statement without tables is an empty result, not a failure")

	assert.Empty(t, result.Records)
	found := false
	for _, d := range result.Diagnostics {
		if d.Stage == "locate" && d.Severity == SeverityWarning {
			found = true
		}
	}
	assert.True(t, found, "missing no-tables diagnostic: %+v", result.Diagnostics)
}

func TestRunNegativeVerdictStillExtracts(t *testing.T) {
	tables := &fakeTableReader{grids: []locator.Grid{statementGrid()}}
	ai := &fakeAI{classify: false, extractRaw: extractResponse}

	result, err := Run(context.Background(), "statement.pdf", "", testDeps(tables, ai))
	require.NoError(t, err)

	// A negative verdict skips schema inference, never extraction; the
	// extract prompt itself answers [] for a genuinely non-transactional
	// image.
	require.Len(t, result.Records, 2, "crop with a negative verdict must still be extracted")
	assert.Equal(t, 1, ai.extractCalls)
	assert.Equal(t, "UPI PAYMENT", result.Records[0].Narration)
}

func TestRunClassificationStopsAfterFirstPositive(t *testing.T) {
	second := statementGrid()
	second.Page = 2
	tables := &fakeTableReader{grids: []locator.Grid{statementGrid(), second}}
	ai := &fakeAI{
		classify:   true,
		inferRaw:   schema.DefaultTemplate,
		extractRaw: extractResponse,
	}

	result, err := Run(context.Background(), "statement.pdf", "", testDeps(tables, ai))
	require.NoError(t, err)

	assert.Equal(t, 1, ai.classifyCalls, "classification ends once a schema image is found")
	assert.Equal(t, 2, ai.extractCalls, "every crop is extracted")
	assert.Len(t, result.Records, 4)
}

func TestRunClassifierFailureFailsOpen(t *testing.T) {
	tables := &fakeTableReader{grids: []locator.Grid{statementGrid()}}
	ai := &fakeAI{
		classifyErr: errors.New("classifier down"),
		inferRaw:    "no schema here",
		extractRaw:  extractResponse,
	}

	result, err := Run(context.Background(), "statement.pdf", "", testDeps(tables, ai))
	require.NoError(t, err)
	assert.Len(t, result.Records, 2, "classifier failure must not discard the table")
}

func TestRunExtractionSentinelSkipsTable(t *testing.T) {
	tables := &fakeTableReader{grids: []locator.Grid{statementGrid()}}
	ai := &fakeAI{
		classify:   true,
		inferRaw:   schema.DefaultTemplate,
		extractRaw: "Error extracting table: model exhausted",
	}

	result, err := Run(context.Background(), "statement.pdf", "", testDeps(tables, ai))
	require.NoError(t, err)
	assert.Empty(t, result.Records)

	found := false
	for _, d := range result.Diagnostics {
		if d.Stage == "extract" && d.Severity == SeverityWarning {
			found = true
		}
	}
	assert.True(t, found, "missing extraction-failure diagnostic: %+v", result.Diagnostics)
}

func TestRunSurfacesPasswordErrors(t *testing.T) {
	deps := testDeps(&fakeTableReader{}, &fakeAI{})
	deps.Validate = func(path, password string) (pdfdoc.Info, error) {
		return pdfdoc.Info{Encrypted: true}, pdfdoc.ErrPasswordRequired
	}

	_, err := Run(context.Background(), "statement.pdf", "", deps)
	require.Error(t, err)
	assert.ErrorIs(t, err, pdfdoc.ErrPasswordRequired)
}

func TestRunUnusableSchemaInferenceFallsBackToDefault(t *testing.T) {
	tables := &fakeTableReader{grids: []locator.Grid{statementGrid()}}
	ai := &fakeAI{
		classify:   true,
		inferRaw:   "I cannot determine the column layout.",
		extractRaw: extractResponse,
	}

	result, err := Run(context.Background(), "statement.pdf", "", testDeps(tables, ai))
	require.NoError(t, err)
	assert.Len(t, result.Records, 2, "default schema must carry extraction when inference fails")

	found := false
	for _, d := range result.Diagnostics {
		if d.Stage == "extract" && d.Severity == SeverityWarning {
			found = true
		}
	}
	assert.True(t, found, "missing schema-fallback diagnostic: %+v", result.Diagnostics)
}
