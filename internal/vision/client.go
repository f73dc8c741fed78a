// Package vision is the external AI-capability boundary of the pipeline.
// Four single-shot prompt/response calls are defined; the concrete backend
// (Gemini here) is swappable — only the contracts matter to callers.
package vision

import (
	"context"
	"strings"
	"time"
)

// Client is the wire-level contract the core pipeline depends on. All calls
// are blocking single-shot exchanges: no streaming, no multi-turn state.
type Client interface {
	// ClassifyTable reports whether the table image contains transactions.
	// The call fails open: when the verdict cannot be obtained the returned
	// bool is true, with the error kept for logging, so a real table is
	// never silently discarded.
	ClassifyTable(ctx context.Context, png []byte) (bool, error)

	// InferSchema returns the raw schema-inference response for a table
	// image. The caller parses it and falls back to the default schema.
	InferSchema(ctx context.Context, png []byte) (string, error)

	// ExtractTable returns raw structured text for all transactions in the
	// image, using the given schema template. On transport failure the
	// returned string is an extraction-error sentinel (IsExtractError)
	// rather than an error, so one bad table degrades instead of aborting.
	ExtractTable(ctx context.Context, png []byte, schemaTemplate string) (string, error)

	// ReconcileRecords asks the model to correct debit/credit assignments
	// in recordsJSON using referenceJSON rows, returning raw structured
	// text of the same length as the input.
	ReconcileRecords(ctx context.Context, recordsJSON, referenceJSON, schemaTemplate string) (string, error)
}

// extractErrorPrefix marks the sentinel value ExtractTable produces after
// exhausting its retry budget.
const extractErrorPrefix = "Error extracting table:"

// IsExtractError reports whether a raw extraction result is the failure
// sentinel; downstream stages skip such tables instead of parsing them.
func IsExtractError(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), extractErrorPrefix)
}

// Config carries the model and retry settings for the Gemini client.
type Config struct {
	// ClassifierModel serves the cheap classification and schema-inference
	// calls.
	ClassifierModel string
	// ExtractorModel serves bulk extraction and reconciliation.
	ExtractorModel string
	// MaxRetries bounds attempts per call.
	MaxRetries int
	// Timeout bounds the wall clock of a single attempt.
	Timeout time.Duration
	// Backoff is the base delay between attempts; it doubles per retry.
	Backoff time.Duration
}

// DefaultConfig returns the production model and retry settings.
func DefaultConfig() Config {
	return Config{
		ClassifierModel: "gemini-2.5-flash-lite",
		ExtractorModel:  "gemini-2.5-flash",
		MaxRetries:      3,
		Timeout:         2 * time.Minute,
		Backoff:         time.Second,
	}
}
