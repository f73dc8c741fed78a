package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-extractor/internal/reference"
	"github.com/dvloznov/statement-extractor/internal/schema"
)

// mockVisionClient stubs the AI boundary with function fields.
type mockVisionClient struct {
	reconcileFn func(ctx context.Context, recordsJSON, referenceJSON, schemaTemplate string) (string, error)
	calls       int
}

func (m *mockVisionClient) ClassifyTable(ctx context.Context, png []byte) (bool, error) {
	return true, nil
}

func (m *mockVisionClient) InferSchema(ctx context.Context, png []byte) (string, error) {
	return "", nil
}

func (m *mockVisionClient) ExtractTable(ctx context.Context, png []byte, schemaTemplate string) (string, error) {
	return "[]", nil
}

func (m *mockVisionClient) ReconcileRecords(ctx context.Context, recordsJSON, referenceJSON, schemaTemplate string) (string, error) {
	m.calls++
	if m.reconcileFn == nil {
		return recordsJSON, nil
	}
	return m.reconcileFn(ctx, recordsJSON, referenceJSON, schemaTemplate)
}

func sampleRecords() []schema.Record {
	return []schema.Record{
		{Date: "01-02-2024", Description: "SALARY CREDIT", Credit: 5000, Balance: 6000, Type: "D"},
		{Date: "02-02-2024", Description: "ATM WDL", Debit: 5500, Balance: 500, Type: "W"},
	}
}

func sampleReference() reference.Table {
	return reference.Table{
		Headers: []string{"Date", "Narration", "Debit", "Credit", "Balance"},
		Rows: [][]string{
			{"01 Feb 2024", "SALARY CREDIT", "", "5000.00", "6000.00"},
			{"02 Feb 2024", "ATM WDL", "5500.00", "", "500.00"},
		},
	}
}

func TestReconcileSkipsOnEmptyReference(t *testing.T) {
	ai := &mockVisionClient{}
	r := New(ai, zerolog.Nop())

	records := sampleRecords()
	got, report := r.Reconcile(context.Background(), records, reference.Table{}, schema.Default())

	assert.True(t, report.Skipped)
	assert.Equal(t, records, got)
	assert.Zero(t, ai.calls, "AI must not be called without a reference")
}

func TestReconcileSkipsOnNoRecords(t *testing.T) {
	ai := &mockVisionClient{}
	r := New(ai, zerolog.Nop())

	got, report := r.Reconcile(context.Background(), nil, sampleReference(), schema.Default())

	assert.True(t, report.Skipped)
	assert.Empty(t, got)
	assert.Zero(t, ai.calls)
}

func TestReconcileAppliesOnlyDebitCreditChanges(t *testing.T) {
	ai := &mockVisionClient{
		reconcileFn: func(ctx context.Context, recordsJSON, referenceJSON, schemaTemplate string) (string, error) {
			var batch []schema.Record
			require.NoError(t, json.Unmarshal([]byte(recordsJSON), &batch))
			// Swap dr/cr on the first record and tamper with other fields;
			// only the amounts may stick.
			batch[0].Debit, batch[0].Credit = batch[0].Credit, batch[0].Debit
			batch[0].Description = "TAMPERED"
			batch[0].Date = "31-12-1999"
			out, err := json.Marshal(batch)
			require.NoError(t, err)
			return string(out), nil
		},
	}
	r := New(ai, zerolog.Nop())

	records := []schema.Record{
		// Extracted with dr/cr swapped relative to the reference.
		{Date: "01-02-2024", Description: "SALARY CREDIT", Debit: 5000, Balance: 6000, Type: "D"},
		{Date: "02-02-2024", Description: "ATM WDL", Debit: 5500, Balance: 500, Type: "W"},
	}
	got, report := r.Reconcile(context.Background(), records, sampleReference(), schema.Default())

	require.Len(t, got, 2)
	assert.Equal(t, 0.0, float64(got[0].Debit))
	assert.Equal(t, 5000.0, float64(got[0].Credit))
	assert.Equal(t, "SALARY CREDIT", got[0].Description, "non-amount fields must come from the original")
	assert.Equal(t, "01-02-2024", got[0].Date)
	assert.Equal(t, records[1], got[1], "untouched record must pass through verbatim")

	require.Len(t, report.Corrections, 1)
	c := report.Corrections[0]
	assert.Equal(t, 0, c.Index)
	assert.Equal(t, 5000.0, c.OldDebit)
	assert.Equal(t, 0.0, c.NewDebit)
	assert.Contains(t, c.ReferenceRow, "SALARY CREDIT")
}

func TestReconcileKeepsOriginalsOnLengthMismatch(t *testing.T) {
	ai := &mockVisionClient{
		reconcileFn: func(ctx context.Context, recordsJSON, referenceJSON, schemaTemplate string) (string, error) {
			return `[{"dt":"01-02-2024","desc":"ONLY ONE","ref":null,"dr":0,"cr":0,"bal":0,"type":"W"}]`, nil
		},
	}
	r := New(ai, zerolog.Nop())

	records := sampleRecords()
	got, report := r.Reconcile(context.Background(), records, sampleReference(), schema.Default())

	assert.Equal(t, records, got, "row-count mismatch must leave records unchanged")
	assert.Equal(t, 1, report.BatchesDiscarded)
	assert.Empty(t, report.Corrections)
}

func TestReconcileKeepsOriginalsOnTransportFailure(t *testing.T) {
	ai := &mockVisionClient{
		reconcileFn: func(ctx context.Context, recordsJSON, referenceJSON, schemaTemplate string) (string, error) {
			return "", errors.New("model unavailable")
		},
	}
	r := New(ai, zerolog.Nop())

	records := sampleRecords()
	got, report := r.Reconcile(context.Background(), records, sampleReference(), schema.Default())

	assert.Equal(t, records, got)
	assert.Equal(t, 1, report.BatchesDiscarded)
	assert.False(t, report.Skipped)
}

func TestReconcileKeepsOriginalsOnGarbageResponse(t *testing.T) {
	ai := &mockVisionClient{
		reconcileFn: func(ctx context.Context, recordsJSON, referenceJSON, schemaTemplate string) (string, error) {
			return "I am unable to reconcile these records.", nil
		},
	}
	r := New(ai, zerolog.Nop())

	records := sampleRecords()
	got, _ := r.Reconcile(context.Background(), records, sampleReference(), schema.Default())
	assert.Equal(t, records, got)
}

func TestTruncateRespectsRuneBoundaries(t *testing.T) {
	long := strings.Repeat("₹", 45)
	got := truncate(long, 40)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 40, utf8.RuneCountInString(got))

	assert.Equal(t, "café", truncate("café", 40), "short strings pass through unchanged")
}

func TestReconcileBatchesLongInputs(t *testing.T) {
	ai := &mockVisionClient{}
	r := New(ai, zerolog.Nop())
	r.batchSize = 10

	var records []schema.Record
	for i := 0; i < 25; i++ {
		records = append(records, schema.Record{Date: "01-02-2024", Description: "TX", Balance: 100})
	}

	got, report := r.Reconcile(context.Background(), records, sampleReference(), schema.Default())

	assert.Len(t, got, 25)
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 3, ai.calls)
}
