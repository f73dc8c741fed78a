package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-extractor/internal/exporter"
	"github.com/dvloznov/statement-extractor/internal/gcsfetch"
	"github.com/dvloznov/statement-extractor/internal/locator"
	"github.com/dvloznov/statement-extractor/internal/logger"
	"github.com/dvloznov/statement-extractor/internal/pdfdoc"
	"github.com/dvloznov/statement-extractor/internal/pdftools"
	"github.com/dvloznov/statement-extractor/internal/pipeline"
	"github.com/dvloznov/statement-extractor/internal/reference"
	"github.com/dvloznov/statement-extractor/internal/vision"
)

func main() {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "extract":
		runExtract(log)
	case "reference":
		runReference(log)
	case "upload":
		runUpload(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Statement Extractor CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  extract    Extract transactions from a bank statement PDF")
	fmt.Println("  reference  Dump the deterministic reference table for a PDF")
	fmt.Println("  upload     Upload a local file to GCS")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runExtract(log zerolog.Logger) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	pdfPath := fs.String("pdf", "", "Statement PDF: local path or gs:// URI")
	password := fs.String("password", "", "PDF password, if encrypted")
	outDir := fs.String("out", ".", "Output directory for exports")
	uploadURI := fs.String("upload", "", "Optional gs:// URI prefix to upload exports to")
	fs.Parse(os.Args[2:])

	if *pdfPath == "" {
		log.Fatal().Msg("Error: --pdf is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	localPath, base := resolveInput(ctx, log, *pdfPath)

	ai, err := vision.NewGemini(ctx, vision.DefaultConfig(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create AI client")
	}

	tc := pdftools.DefaultToolchain()
	deps := pipeline.Deps{
		Opener:  pdftools.NewOpener(tc),
		Raster:  pdftools.NewRasterizer(tc),
		Tables:  pdftools.NewCamelot(tc),
		AI:      ai,
		Locator: locator.DefaultConfig(),
		Log:     log,
	}

	log.Info().Str("pdf", *pdfPath).Msg("Starting extraction")

	result, err := pipeline.Run(ctx, localPath, *password, deps)
	switch {
	case errors.Is(err, pdfdoc.ErrPasswordRequired):
		log.Fatal().Msg("Document is encrypted; supply --password")
	case errors.Is(err, pdfdoc.ErrWrongPassword):
		log.Fatal().Msg("Wrong password for document")
	case err != nil:
		log.Fatal().Err(err).Msg("Extraction failed")
	}

	for _, d := range result.Diagnostics {
		fmt.Printf("[%s] %s: %s\n", d.Severity, d.Stage, d.Message)
	}
	fmt.Printf("\nExtracted %d transaction(s). %s\n", len(result.Records), result.Report)

	csvPath := filepath.Join(*outDir, base+exporter.CSVSuffix)
	jsonPath := filepath.Join(*outDir, base+exporter.JSONSuffix)
	if err := exporter.WriteCSV(result.Records, csvPath); err != nil {
		log.Fatal().Err(err).Msg("CSV export failed")
	}
	if err := exporter.WriteJSON(result.Records, jsonPath); err != nil {
		log.Fatal().Err(err).Msg("JSON export failed")
	}
	fmt.Printf("Wrote %s and %s\n", csvPath, jsonPath)

	if *uploadURI != "" {
		for _, p := range []string{csvPath, jsonPath} {
			dest := strings.TrimSuffix(*uploadURI, "/") + "/" + filepath.Base(p)
			if err := gcsfetch.Upload(ctx, dest, p); err != nil {
				log.Fatal().Err(err).Str("dest", dest).Msg("Upload failed")
			}
			fmt.Printf("Uploaded %s\n", dest)
		}
	}
}

func runReference(log zerolog.Logger) {
	fs := flag.NewFlagSet("reference", flag.ExitOnError)
	pdfPath := fs.String("pdf", "", "Statement PDF: local path or gs:// URI")
	password := fs.String("password", "", "PDF password, if encrypted")
	fs.Parse(os.Args[2:])

	if *pdfPath == "" {
		log.Fatal().Msg("Error: --pdf is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	localPath, _ := resolveInput(ctx, log, *pdfPath)

	builder := reference.NewBuilder(pdftools.NewCamelot(pdftools.DefaultToolchain()), log)
	table, summary, err := builder.Build(ctx, localPath, *password)
	if err != nil {
		log.Fatal().Err(err).Msg("Reference extraction failed")
	}

	fmt.Printf("Rows: %d\nHeaders: %s\nDate range: %s\n\n", summary.RowCount, strings.Join(summary.Headers, " | "), summary.DateRange)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(table.Rows); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode reference rows")
	}
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	uri := fs.String("uri", "", "Destination gs:// URI")
	filePath := fs.String("file", "", "Path to local file")
	fs.Parse(os.Args[2:])

	if *uri == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -uri gs://bucket/object -file PATH")
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	log.Info().Str("uri", *uri).Str("file", *filePath).Msg("Uploading file to GCS")

	if err := gcsfetch.Upload(ctx, *uri, *filePath); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}
	fmt.Printf("Uploaded %s to %s\n", *filePath, *uri)
}

// resolveInput fetches gs:// inputs into a local temp file. Returns the local
// path and the statement's base name without extension, used to derive export
// filenames.
func resolveInput(ctx context.Context, log zerolog.Logger, input string) (localPath, base string) {
	if !gcsfetch.IsURI(input) {
		name := filepath.Base(input)
		return input, strings.TrimSuffix(name, filepath.Ext(name))
	}

	data, err := gcsfetch.Fetch(ctx, input)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch statement from GCS")
	}
	name := gcsfetch.Filename(input)
	f, err := os.CreateTemp("", "stmtx-input-*.pdf")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create temp file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		log.Fatal().Err(err).Msg("Failed to write temp file")
	}
	f.Close()
	return f.Name(), strings.TrimSuffix(name, filepath.Ext(name))
}
