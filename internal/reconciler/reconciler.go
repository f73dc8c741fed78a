// Package reconciler cross-checks model-extracted records against the
// deterministic reference table and corrects debit/credit swaps. The stage
// is strictly best-effort: any failure — transport, parsing, row-count
// mismatch — resolves to "keep the original records unchanged". It can only
// improve data, never remove or corrupt it.
package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-extractor/internal/reference"
	"github.com/dvloznov/statement-extractor/internal/sanitizer"
	"github.com/dvloznov/statement-extractor/internal/schema"
	"github.com/dvloznov/statement-extractor/internal/vision"
)

// defaultBatchSize caps how many records one correction call carries. The
// full reference table rides along with every batch; only the record side is
// chunked to bound payload growth on very long statements.
const defaultBatchSize = 50

// Correction describes one applied debit/credit swap.
type Correction struct {
	Index       int
	Description string
	OldDebit    float64
	NewDebit    float64
	OldCredit   float64
	NewCredit   float64
	// ReferenceRow is the closest-matching reference row text, when one
	// could be attributed by description similarity.
	ReferenceRow string
}

// Report summarizes a reconciliation run.
type Report struct {
	Skipped          bool
	Batches          int
	BatchesDiscarded int
	Corrections      []Correction
	// ContinuityFailures lists the row indices still breaking balance
	// continuity after correction.
	ContinuityFailures []int
}

// Reconciler drives the AI correction call.
type Reconciler struct {
	ai        vision.Client
	batchSize int
	log       zerolog.Logger
}

// New creates a Reconciler with the default batch size.
func New(ai vision.Client, log zerolog.Logger) *Reconciler {
	return &Reconciler{ai: ai, batchSize: defaultBatchSize, log: log}
}

// Reconcile corrects debit/credit assignments in records using the reference
// table. The output always has exactly the same length and order as the
// input; when either side is empty or a batch fails validation, the affected
// records come back verbatim.
func (r *Reconciler) Reconcile(ctx context.Context, records []schema.Record, ref reference.Table, desc schema.Descriptor) ([]schema.Record, Report) {
	if len(records) == 0 || ref.Empty() {
		r.log.Info().Msg("no records or empty reference, skipping reconciliation")
		return records, Report{Skipped: true}
	}

	refJSON, err := json.MarshalIndent(ref.Rows, "", "  ")
	if err != nil {
		r.log.Warn().Err(err).Msg("could not encode reference rows, skipping reconciliation")
		return records, Report{Skipped: true}
	}

	out := make([]schema.Record, len(records))
	copy(out, records)

	report := Report{}
	for start := 0; start < len(records); start += r.batchSize {
		end := start + r.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		report.Batches++

		corrected, ok := r.reconcileBatch(ctx, batch, string(refJSON), desc)
		if !ok {
			report.BatchesDiscarded++
			continue
		}

		for i := range batch {
			if float64(batch[i].Debit) == float64(corrected[i].Debit) &&
				float64(batch[i].Credit) == float64(corrected[i].Credit) {
				continue
			}
			// Only the debit/credit pair may change; every other field is
			// carried from the original record.
			fixed := batch[i]
			fixed.Debit = corrected[i].Debit
			fixed.Credit = corrected[i].Credit
			out[start+i] = fixed

			c := Correction{
				Index:        start + i,
				Description:  batch[i].Description,
				OldDebit:     float64(batch[i].Debit),
				NewDebit:     float64(fixed.Debit),
				OldCredit:    float64(batch[i].Credit),
				NewCredit:    float64(fixed.Credit),
				ReferenceRow: closestReferenceRow(batch[i].Description, ref.Rows),
			}
			report.Corrections = append(report.Corrections, c)
			r.log.Info().
				Str("desc", truncate(c.Description, 40)).
				Float64("dr_old", c.OldDebit).Float64("dr_new", c.NewDebit).
				Float64("cr_old", c.OldCredit).Float64("cr_new", c.NewCredit).
				Msg("corrected debit/credit swap")
		}
	}

	report.ContinuityFailures = CheckContinuity(out, desc.DateOrder)
	return out, report
}

// reconcileBatch runs one correction call. Returns ok=false when the
// response cannot be parsed or its length differs from the batch.
func (r *Reconciler) reconcileBatch(ctx context.Context, batch []schema.Record, refJSON string, desc schema.Descriptor) ([]schema.Record, bool) {
	recordsJSON, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		r.log.Warn().Err(err).Msg("could not encode record batch")
		return nil, false
	}

	raw, err := r.ai.ReconcileRecords(ctx, string(recordsJSON), refJSON, desc.Template)
	if err != nil {
		r.log.Warn().Err(err).Msg("reconciliation call failed, keeping original records")
		return nil, false
	}

	clean := sanitizer.Clean(raw)
	var corrected []schema.Record
	if err := json.Unmarshal([]byte(clean), &corrected); err != nil {
		r.log.Warn().Err(err).Msg("reconciliation response not parseable, keeping original records")
		return nil, false
	}
	if len(corrected) != len(batch) {
		r.log.Warn().Int("got", len(corrected)).Int("want", len(batch)).
			Msg("reconciliation row count mismatch, keeping original records")
		return nil, false
	}
	return corrected, true
}

// closestReferenceRow attributes a correction to the reference row whose
// joined text best matches the record description.
func closestReferenceRow(description string, rows [][]string) string {
	target := strings.TrimSpace(description)
	if target == "" {
		return ""
	}
	texts := make([]string, len(rows))
	for i, row := range rows {
		texts[i] = strings.Join(row, " ")
	}
	ranks := fuzzy.RankFindNormalizedFold(target, texts)
	if len(ranks) == 0 {
		return ""
	}
	best := ranks[0]
	for _, rk := range ranks[1:] {
		if rk.Distance < best.Distance {
			best = rk
		}
	}
	return best.Target
}

// truncate trims to n runes so multi-byte description text stays valid UTF-8
// in log output.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// String renders a short human-readable reconciliation outcome.
func (rep Report) String() string {
	if rep.Skipped {
		return "reconciliation skipped"
	}
	return fmt.Sprintf("reconciliation: %d correction(s) across %d batch(es), %d discarded, %d continuity failure(s)",
		len(rep.Corrections), rep.Batches, rep.BatchesDiscarded, len(rep.ContinuityFailures))
}
