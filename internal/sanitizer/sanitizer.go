// Package sanitizer repairs malformed model output into valid JSON arrays.
// Clean is a total function: any input, including binary garbage, comes back
// as a string that parses as a JSON array, worst case "[]".
package sanitizer

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/dvloznov/statement-extractor/internal/schema"
)

var (
	fencePattern         = regexp.MustCompile("(?i)```(?:json)?\\s*")
	arrayPattern         = regexp.MustCompile(`(?s)(\[.*\])`)
	objectPattern        = regexp.MustCompile(`(?s)\{[^{}]*\}`)
	trailingCommaBracket = regexp.MustCompile(`,\s*]`)
	trailingCommaBrace   = regexp.MustCompile(`,\s*}`)
	recordPattern        = regexp.MustCompile(`(?s)\{[^{}]*"dt"[^{}]*?\}`)
	backslashRuns        = regexp.MustCompile(`\\+`)
	// invalidEscape matches a backslash starting none of the JSON escape
	// sequences; legitimate escapes like \" and \\ are left alone.
	invalidEscape = regexp.MustCompile(`\\([^"\\/bfnrtu])`)
)

// Clean sanitizes raw model output into a valid JSON array string.
// Ordered repair attempts: strip code fences, extract the first bracketed
// array (falling back to collecting brace-delimited objects), drop trailing
// commas and parse; on failure collapse escaped-newline noise and invalid
// escapes, then retry once with single quotes converted to double quotes.
func Clean(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "[]"
	}
	txt := strings.TrimSpace(raw)
	txt = fencePattern.ReplaceAllString(txt, "")
	txt = strings.ReplaceAll(txt, "```", "")

	var candidate string
	if m := arrayPattern.FindStringSubmatch(txt); m != nil {
		candidate = m[1]
	} else if objs := objectPattern.FindAllString(txt, -1); len(objs) > 0 {
		candidate = "[" + strings.Join(objs, ",") + "]"
	} else {
		candidate = txt
	}

	candidate = trailingCommaBracket.ReplaceAllString(candidate, "]")
	candidate = trailingCommaBrace.ReplaceAllString(candidate, "}")
	if isArray(candidate) {
		return candidate
	}

	// Escape cleanup is lossy, so it only runs once the array has already
	// failed to parse: literal \n noise becomes a space and backslashes
	// that start no valid escape are dropped.
	candidate = strings.ReplaceAll(candidate, `\n`, " ")
	candidate = invalidEscape.ReplaceAllString(candidate, "$1")

	if isArray(candidate) {
		return candidate
	}

	alt := strings.ReplaceAll(candidate, "'", `"`)
	alt = trailingCommaBracket.ReplaceAllString(alt, "]")
	alt = trailingCommaBrace.ReplaceAllString(alt, "}")
	if isArray(alt) {
		return alt
	}

	return "[]"
}

// Decode sanitizes raw model output and unmarshals it into compact records.
// If the sanitized text still fails to decode as a whole array, individual
// record fragments anchored on the "dt" key are recovered one at a time and
// any fragment that still fails is discarded. Never returns an error.
func Decode(raw string) []schema.Record {
	clean := Clean(raw)

	var records []schema.Record
	if err := json.Unmarshal([]byte(clean), &records); err == nil {
		return records
	}

	return recoverRecords(raw)
}

// recoverRecords is the last-resort scan over the unrepaired text.
func recoverRecords(raw string) []schema.Record {
	var records []schema.Record
	for _, frag := range recordPattern.FindAllString(raw, -1) {
		frag = trailingCommaBrace.ReplaceAllString(frag, "}")
		frag = backslashRuns.ReplaceAllString(frag, `\`)
		var rec schema.Record
		if err := json.Unmarshal([]byte(frag), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}

func isArray(s string) bool {
	var probe []json.RawMessage
	return json.Unmarshal([]byte(s), &probe) == nil
}
