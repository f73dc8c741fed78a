package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/dvloznov/statement-extractor/internal/schema"
)

// generator is the transport seam below the Gemini client; tests substitute
// it to exercise retry and fail-open behavior without the network.
type generator interface {
	generate(ctx context.Context, model string, parts []*genai.Part) (string, error)
}

// Gemini implements Client on top of the Gen AI SDK.
type Gemini struct {
	gen generator
	cfg Config
	log zerolog.Logger
}

// NewGemini creates a Gemini-backed vision client. Credentials and the
// Vertex/Dev split come from the standard GOOGLE_* environment variables.
func NewGemini(ctx context.Context, cfg Config, log zerolog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGemini: create genai client: %w", err)
	}
	return &Gemini{gen: &genaiGenerator{client: client}, cfg: cfg, log: log}, nil
}

type genaiGenerator struct {
	client *genai.Client
}

func (g *genaiGenerator) generate(ctx context.Context, model string, parts []*genai.Part) (string, error) {
	contents := []*genai.Content{{Role: "user", Parts: parts}}
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model %s", model)
	}
	return text, nil
}

// call runs one prompt/response exchange with the retry budget and
// per-attempt timeout from the config.
func (g *Gemini) call(ctx context.Context, model string, parts []*genai.Part) (string, error) {
	var lastErr error
	backoff := g.cfg.Backoff
	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		text, err := g.gen.generate(attemptCtx, model, parts)
		cancel()
		if err == nil {
			return text, nil
		}
		lastErr = err
		g.log.Warn().Err(err).Str("model", model).Int("attempt", attempt).Msg("model call failed")

		if attempt == g.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", lastErr
}

func imagePart(png []byte) *genai.Part {
	return &genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: png}}
}

// ClassifyTable implements the strict YES/NO classification. Any failure to
// obtain a verdict fails open to true.
func (g *Gemini) ClassifyTable(ctx context.Context, png []byte) (bool, error) {
	parts := []*genai.Part{{Text: classifyPrompt}, imagePart(png)}
	text, err := g.call(ctx, g.cfg.ClassifierModel, parts)
	if err != nil {
		return true, fmt.Errorf("ClassifyTable: %w", err)
	}
	return strings.ToUpper(strings.TrimSpace(text)) == "YES", nil
}

// InferSchema returns the raw column-order/date-direction response for the
// first transactional table image.
func (g *Gemini) InferSchema(ctx context.Context, png []byte) (string, error) {
	parts := []*genai.Part{{Text: inferSchemaPrompt(schema.DefaultTemplate)}, imagePart(png)}
	text, err := g.call(ctx, g.cfg.ClassifierModel, parts)
	if err != nil {
		return "", fmt.Errorf("InferSchema: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// ExtractTable requests all transactions of one table image as raw
// structured text. Transport failure degrades to the extraction-error
// sentinel instead of an error.
func (g *Gemini) ExtractTable(ctx context.Context, png []byte, schemaTemplate string) (string, error) {
	parts := []*genai.Part{{Text: extractPrompt(schemaTemplate)}, imagePart(png)}
	text, err := g.call(ctx, g.cfg.ExtractorModel, parts)
	if err != nil {
		return fmt.Sprintf("%s %v", extractErrorPrefix, err), nil
	}
	return strings.TrimSpace(text), nil
}

// ReconcileRecords runs the correction call over the full extracted record
// set and the deterministic reference rows.
func (g *Gemini) ReconcileRecords(ctx context.Context, recordsJSON, referenceJSON, schemaTemplate string) (string, error) {
	parts := []*genai.Part{{Text: reconcilePrompt(schemaTemplate, recordsJSON, referenceJSON)}}
	text, err := g.call(ctx, g.cfg.ExtractorModel, parts)
	if err != nil {
		return "", fmt.Errorf("ReconcileRecords: %w", err)
	}
	return strings.TrimSpace(text), nil
}
