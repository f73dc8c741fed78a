// Package pipeline orchestrates a full statement extraction run: document
// validation, header redaction, table localization, AI extraction, reference
// reconciliation and schema expansion. Stages after validation are
// best-effort: a statement with no detectable tables produces an empty
// result with diagnostics, not an error.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-extractor/internal/locator"
	"github.com/dvloznov/statement-extractor/internal/logger"
	"github.com/dvloznov/statement-extractor/internal/pdfdoc"
	"github.com/dvloznov/statement-extractor/internal/reconciler"
	"github.com/dvloznov/statement-extractor/internal/reference"
	"github.com/dvloznov/statement-extractor/internal/schema"
	"github.com/dvloznov/statement-extractor/internal/vision"
)

// PipelineStep represents a single stage of the extraction pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// Severity grades a diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Diagnostic records a non-fatal observation made during a run.
type Diagnostic struct {
	Stage    string   `json:"stage"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// TableRecords is the decoded output of one extracted table crop.
type TableRecords struct {
	Page    int
	Index   int
	Records []schema.Record
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	PDFPath  string
	Password string
	TempDir  string
	RunID    string

	Info pdfdoc.Info
	// WorkingPath is the document the table stages read: the redacted copy
	// when header redaction fired, the original otherwise.
	WorkingPath string
	Redacted    bool

	Candidates []locator.Candidate
	Images     []locator.TableImage

	Descriptor schema.Descriptor
	Batches    []TableRecords

	Reference        reference.Table
	ReferenceSummary reference.Summary

	Records []schema.Record
	Report  reconciler.Report
	Display []schema.DisplayRecord

	Diagnostics []Diagnostic
}

// workingPassword returns the password for the working document. The
// redacted copy is saved decrypted, so it needs none.
func (s *PipelineState) workingPassword() string {
	if s.Redacted {
		return ""
	}
	return s.Password
}

func (s *PipelineState) diag(stage, message string, severity Severity) {
	s.Diagnostics = append(s.Diagnostics, Diagnostic{Stage: stage, Message: message, Severity: severity})
}

// Deps carries the external services a pipeline run needs.
type Deps struct {
	Opener  pdfdoc.Opener
	Raster  pdfdoc.Rasterizer
	Tables  locator.TableReader
	AI      vision.Client
	Locator locator.Config
	Log     zerolog.Logger
	// Validate overrides document validation; nil means pdfdoc.Validate.
	Validate func(path, password string) (pdfdoc.Info, error)
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%T) failed: %w", i+1, step, err)
		}
	}
	return nil
}

// NewExtractionPipeline creates the standard 7-step statement extraction
// pipeline.
func NewExtractionPipeline(deps Deps) *Pipeline {
	validate := deps.Validate
	if validate == nil {
		validate = pdfdoc.Validate
	}
	return NewPipeline(
		&ValidateDocumentStep{validate: validate},
		&RedactHeadersStep{opener: deps.Opener, log: deps.Log},
		&LocateTablesStep{tables: deps.Tables, raster: deps.Raster, cfg: deps.Locator, log: deps.Log},
		&ExtractTablesStep{ai: deps.AI, log: deps.Log},
		&BuildReferenceStep{tables: deps.Tables, log: deps.Log},
		&ReconcileStep{ai: deps.AI, log: deps.Log},
		&ExpandStep{},
	)
}

// Result is the outcome of a completed run.
type Result struct {
	RunID       string
	Records     []schema.DisplayRecord
	Report      reconciler.Report
	Reference   reference.Summary
	Diagnostics []Diagnostic
}

// Run executes one extraction over a local PDF. Scratch files (the redacted
// copy, table crops) live in a run-scoped temp directory that is removed
// regardless of outcome.
func Run(ctx context.Context, path, password string, deps Deps) (Result, error) {
	runID := uuid.NewString()
	deps.Log = logger.WithRun(deps.Log, runID)

	tempDir, err := os.MkdirTemp("", "stmtx-"+runID)
	if err != nil {
		return Result{RunID: runID}, fmt.Errorf("Run: create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	state := &PipelineState{
		PDFPath:     path,
		Password:    password,
		TempDir:     tempDir,
		RunID:       runID,
		WorkingPath: path,
	}

	if err := NewExtractionPipeline(deps).Execute(ctx, state); err != nil {
		return Result{RunID: runID, Diagnostics: state.Diagnostics}, err
	}

	deps.Log.Info().
		Int("records", len(state.Display)).
		Int("tables", len(state.Images)).
		Int("diagnostics", len(state.Diagnostics)).
		Msg("extraction run finished")

	return Result{
		RunID:       runID,
		Records:     state.Display,
		Report:      state.Report,
		Reference:   state.ReferenceSummary,
		Diagnostics: state.Diagnostics,
	}, nil
}
