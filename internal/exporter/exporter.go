// Package exporter serializes display records to CSV and JSON.
package exporter

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/dvloznov/statement-extractor/internal/schema"
)

// Conventional output suffixes for exports derived from a statement name.
const (
	CSVSuffix  = "_hybrid_transactions.csv"
	JSONSuffix = "_hybrid_transactions.json"
)

// WriteCSV writes records as flat CSV columns.
func WriteCSV(records []schema.DisplayRecord, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("WriteCSV: create %q: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&records, f); err != nil {
		return fmt.Errorf("WriteCSV: marshal: %w", err)
	}
	return nil
}

// WriteJSON writes records as an indented JSON array of objects.
func WriteJSON(records []schema.DisplayRecord, path string) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("WriteJSON: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("WriteJSON: write %q: %w", path, err)
	}
	return nil
}
