package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// DateOrder declares the direction dates run in a statement table.
type DateOrder string

const (
	Ascending  DateOrder = "ASCENDING"
	Descending DateOrder = "DESCENDING"
)

// DefaultTemplate is the canonical compact schema in its fixed field order.
// It is both the prompt template sent to the model and the fallback when
// inference produces nothing usable.
const DefaultTemplate = `[{"dt":"DD-MM-YYYY","desc":"COMPLETE_EXACT_DESCRIPTION","ref":null,"dr":0.00,"cr":0.00,"bal":0.00,"type":"W"}]`

// CanonicalFields lists the seven compact field names in canonical order.
var CanonicalFields = []string{"dt", "desc", "ref", "dr", "cr", "bal", "type"}

// Descriptor captures the column order and date direction inferred from the
// first transactional table of a document. It is created once per document
// and treated as read-only for the remainder of the run.
type Descriptor struct {
	// Fields holds the compact field names reordered to match the observed
	// column sequence.
	Fields []string
	// Template is the reordered schema array literal used verbatim in
	// extraction prompts.
	Template string
	// DateOrder is the declared date direction of the table.
	DateOrder DateOrder
}

// Default returns the canonical descriptor: fixed field order, ascending dates.
func Default() Descriptor {
	fields := make([]string, len(CanonicalFields))
	copy(fields, CanonicalFields)
	return Descriptor{
		Fields:    fields,
		Template:  DefaultTemplate,
		DateOrder: Ascending,
	}
}

var arrayPattern = regexp.MustCompile(`(?s)(\[.*\])`)

// ParseInference extracts a Descriptor from a raw schema-inference response.
// The response is expected to contain a bracketed schema array and an
// ASCENDING/DESCENDING declaration; anything unparseable yields an error so
// the caller can fall back to Default.
func ParseInference(raw string) (Descriptor, error) {
	m := arrayPattern.FindStringSubmatch(raw)
	if m == nil {
		return Descriptor{}, fmt.Errorf("schema inference: no bracketed array in response")
	}
	tmpl := strings.TrimSpace(m[1])

	fields, err := orderedKeys(tmpl)
	if err != nil {
		return Descriptor{}, fmt.Errorf("schema inference: %w", err)
	}
	if len(fields) != len(CanonicalFields) {
		return Descriptor{}, fmt.Errorf("schema inference: got %d fields, want %d", len(fields), len(CanonicalFields))
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		seen[f] = true
	}
	for _, f := range CanonicalFields {
		if !seen[f] {
			return Descriptor{}, fmt.Errorf("schema inference: missing field %q", f)
		}
	}

	order := Ascending
	if strings.Contains(strings.ToUpper(raw), string(Descending)) {
		order = Descending
	}

	return Descriptor{Fields: fields, Template: tmpl, DateOrder: order}, nil
}

// orderedKeys returns the object keys of the first element of a JSON array in
// document order. encoding/json maps do not preserve order, so the token
// stream is walked directly.
func orderedKeys(arrayText string) ([]string, error) {
	var probe []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(arrayText), &probe); err != nil {
		return nil, fmt.Errorf("invalid JSON array: %w", err)
	}
	if len(probe) == 0 {
		return nil, fmt.Errorf("empty schema array")
	}

	dec := json.NewDecoder(strings.NewReader(arrayText))
	// Consume '[' then '{'.
	for _, want := range []json.Delim{'[', '{'} {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		d, ok := tok.(json.Delim)
		if !ok || d != want {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
	}

	var keys []string
	depth := 0
	expectKey := true
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				if depth == 0 {
					return keys, nil
				}
				depth--
				if depth == 0 {
					expectKey = true
				}
			}
			continue
		}
		if depth == 0 && expectKey {
			k, ok := tok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected key token %v", tok)
			}
			keys = append(keys, k)
			expectKey = false
			continue
		}
		if depth == 0 {
			expectKey = true
		}
	}
}
