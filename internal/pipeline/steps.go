package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-extractor/internal/locator"
	"github.com/dvloznov/statement-extractor/internal/pdfdoc"
	"github.com/dvloznov/statement-extractor/internal/reconciler"
	"github.com/dvloznov/statement-extractor/internal/redactor"
	"github.com/dvloznov/statement-extractor/internal/reference"
	"github.com/dvloznov/statement-extractor/internal/sanitizer"
	"github.com/dvloznov/statement-extractor/internal/schema"
	"github.com/dvloznov/statement-extractor/internal/vision"
)

// Step 1: ValidateDocumentStep checks the PDF is readable and unlocks it.
// Password errors (pdfdoc.ErrPasswordRequired, pdfdoc.ErrWrongPassword)
// propagate to the caller; nothing downstream can run without a readable
// document.
type ValidateDocumentStep struct {
	validate func(path, password string) (pdfdoc.Info, error)
}

func (s *ValidateDocumentStep) Execute(ctx context.Context, state *PipelineState) error {
	info, err := s.validate(state.PDFPath, state.Password)
	if err != nil {
		return err
	}
	state.Info = info
	state.diag("validate", fmt.Sprintf("document readable: %d page(s), encrypted=%t", info.PageCount, info.Encrypted), SeverityInfo)
	return nil
}

// Step 2: RedactHeadersStep whites out repeating page headers above the
// detected transaction boundary. Best-effort: failure keeps the original
// document and records a diagnostic.
type RedactHeadersStep struct {
	opener pdfdoc.Opener
	log    zerolog.Logger
}

func (s *RedactHeadersStep) Execute(ctx context.Context, state *PipelineState) error {
	outPath := filepath.Join(state.TempDir, "redacted.pdf")
	modified, err := redactor.New(s.opener, s.log).Redact(ctx, state.PDFPath, state.Password, outPath)
	if err != nil {
		s.log.Warn().Err(err).Msg("header redaction failed, continuing with original document")
		state.diag("redact", "header redaction failed: "+err.Error(), SeverityWarning)
		return nil
	}
	if modified {
		state.WorkingPath = outPath
		state.Redacted = true
		state.diag("redact", "page headers redacted", SeverityInfo)
	}
	return nil
}

// Step 3: LocateTablesStep finds transaction table candidates and crops them
// out of rasterized pages. Zero candidates is a diagnosed empty result, not
// an error.
type LocateTablesStep struct {
	tables locator.TableReader
	raster pdfdoc.Rasterizer
	cfg    locator.Config
	log    zerolog.Logger
}

func (s *LocateTablesStep) Execute(ctx context.Context, state *PipelineState) error {
	loc := locator.New(s.tables, s.raster, s.cfg, s.log)

	candidates, err := loc.Locate(ctx, state.WorkingPath, state.workingPassword())
	if err != nil {
		return fmt.Errorf("locating tables: %w", err)
	}
	if len(candidates) == 0 {
		state.diag("locate", "no transaction tables detected", SeverityWarning)
		return nil
	}
	state.Candidates = candidates

	images, err := loc.CropAll(ctx, state.WorkingPath, candidates, state.TempDir)
	if err != nil {
		return fmt.Errorf("cropping tables: %w", err)
	}
	state.Images = images
	state.diag("locate", fmt.Sprintf("%d table candidate(s) cropped", len(images)), SeverityInfo)
	return nil
}

// Step 4: ExtractTablesStep picks the schema-inference image by classifying
// crops until the first positive verdict, then extracts records from every
// crop. Classification gates only schema inference: a crop the classifier
// rejects still goes through extraction, where a genuinely non-transactional
// image comes back as an empty array. A failing table is skipped with a
// diagnostic; the run carries on.
type ExtractTablesStep struct {
	ai  vision.Client
	log zerolog.Logger
}

func (s *ExtractTablesStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Descriptor = schema.Default()
	inferred := false

	for _, img := range state.Images {
		tag := fmt.Sprintf("page %d table %d", img.Page, img.Index)

		if !inferred {
			transactional, err := s.ai.ClassifyTable(ctx, img.PNG)
			if err != nil {
				// Fail-open: the classifier already returned true; note it.
				state.diag("extract", tag+": classification failed, treating as transactional", SeverityWarning)
			}
			if transactional {
				inferred = true
				raw, err := s.ai.InferSchema(ctx, img.PNG)
				if err != nil {
					state.diag("extract", "schema inference failed, using default schema", SeverityWarning)
				} else if desc, perr := schema.ParseInference(raw); perr != nil {
					s.log.Warn().Err(perr).Msg("schema inference response unusable, using default schema")
					state.diag("extract", "schema inference response unusable, using default schema", SeverityWarning)
				} else {
					state.Descriptor = desc
				}
			} else {
				state.diag("extract", tag+": classifier verdict negative, extracting with current schema", SeverityInfo)
			}
		}

		raw, err := s.ai.ExtractTable(ctx, img.PNG, state.Descriptor.Template)
		if err != nil || vision.IsExtractError(raw) {
			state.diag("extract", tag+": extraction failed, skipped", SeverityWarning)
			continue
		}

		records := sanitizer.Decode(raw)
		if len(records) == 0 {
			state.diag("extract", tag+": no records decoded", SeverityInfo)
			continue
		}
		state.Batches = append(state.Batches, TableRecords{Page: img.Page, Index: img.Index, Records: records})
		s.log.Info().Str("table", tag).Int("records", len(records)).Msg("table extracted")
	}
	return nil
}

// Step 5: BuildReferenceStep extracts the deterministic cross-check table.
// Best-effort: failure leaves an empty reference and reconciliation skips.
type BuildReferenceStep struct {
	tables locator.TableReader
	log    zerolog.Logger
}

func (s *BuildReferenceStep) Execute(ctx context.Context, state *PipelineState) error {
	if len(state.Batches) == 0 {
		return nil
	}
	ref, summary, err := reference.NewBuilder(s.tables, s.log).Build(ctx, state.WorkingPath, state.workingPassword())
	if err != nil {
		s.log.Warn().Err(err).Msg("reference extraction failed, reconciliation will skip")
		state.diag("reference", "reference extraction failed: "+err.Error(), SeverityWarning)
		return nil
	}
	state.Reference = ref
	state.ReferenceSummary = summary
	return nil
}

// Step 6: ReconcileStep flattens per-table batches in page order and corrects
// debit/credit swaps against the reference table.
type ReconcileStep struct {
	ai  vision.Client
	log zerolog.Logger
}

func (s *ReconcileStep) Execute(ctx context.Context, state *PipelineState) error {
	for _, b := range state.Batches {
		state.Records = append(state.Records, b.Records...)
	}
	if len(state.Records) == 0 {
		return nil
	}

	records, report := reconciler.New(s.ai, s.log).Reconcile(ctx, state.Records, state.Reference, state.Descriptor)
	state.Records = records
	state.Report = report
	state.diag("reconcile", report.String(), SeverityInfo)
	if len(report.ContinuityFailures) > 0 {
		state.diag("reconcile", fmt.Sprintf("%d row(s) break balance continuity", len(report.ContinuityFailures)), SeverityWarning)
	}
	return nil
}

// Step 7: ExpandStep converts compact records into display records.
type ExpandStep struct{}

func (s *ExpandStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Display = schema.Expand(state.Records)
	return nil
}
