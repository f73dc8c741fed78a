// Package locator finds candidate transaction tables inside a statement PDF.
// A deterministic table-extraction library (behind the TableReader interface)
// supplies geometric grid matches; heuristics filter out non-transactional
// grids; overlapping survivors are merged per page and cropped out of
// rasterized page images.
package locator

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-extractor/internal/pdfdoc"
)

// Flavor selects a grid-detection strategy of the table library.
type Flavor string

const (
	// FlavorStreamTuned is the loosely-tolerant whitespace-grid mode
	// (edge tolerance 75, row tolerance 10).
	FlavorStreamTuned Flavor = "stream-tuned"
	// FlavorStream is the default whitespace-grid mode.
	FlavorStream Flavor = "stream"
	// FlavorLattice detects ruled-line tables.
	FlavorLattice Flavor = "lattice"
)

// strategies is the fixed fallback order; each is attempted only when the
// previous one produced zero grids.
var strategies = []Flavor{FlavorStreamTuned, FlavorStream, FlavorLattice}

// Grid is one geometric table match: rows of cell strings plus the bounding
// box (PDF coordinates, bottom-left origin) and 1-based page number.
type Grid struct {
	Page  int
	BBox  pdfdoc.Rect
	Cells [][]string
}

// TableReader is the deterministic table-extraction library boundary.
type TableReader interface {
	ReadTables(ctx context.Context, path, pages string, flavor Flavor, password string) ([]Grid, error)
}

// Candidate is a retained table region awaiting cropping.
type Candidate struct {
	Page int
	BBox pdfdoc.Rect
}

// TableImage is one cropped table, tagged with its origin.
type TableImage struct {
	Page  int
	Index int // ordinal within the page, 1-based
	Path  string
	PNG   []byte
}

// Config carries the locator tunables.
type Config struct {
	Pages            string  // page range passed to the table library
	DPI              int     // raster resolution for crops
	Padding          int     // crop margin in pixels
	OverlapThreshold float64 // bbox merge threshold
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{Pages: "all", DPI: 300, Padding: 20, OverlapThreshold: 0.3}
}

// Locator detects, filters, merges and crops transaction table candidates.
type Locator struct {
	tables TableReader
	raster pdfdoc.Rasterizer
	cfg    Config
	log    zerolog.Logger
}

// New creates a Locator over the given table library and rasterizer.
func New(tables TableReader, raster pdfdoc.Rasterizer, cfg Config, log zerolog.Logger) *Locator {
	return &Locator{tables: tables, raster: raster, cfg: cfg, log: log}
}

// Locate scans the PDF for transaction table candidates. Grid-detection
// strategies cascade: a strategy that errors or returns nothing falls through
// to the next. All strategies failing surfaces zero candidates, not an error.
func (l *Locator) Locate(ctx context.Context, path, password string) ([]Candidate, error) {
	var grids []Grid
	for _, flavor := range strategies {
		found, err := l.tables.ReadTables(ctx, path, l.cfg.Pages, flavor, password)
		if err != nil {
			l.log.Warn().Err(err).Str("flavor", string(flavor)).Msg("table detection strategy failed, trying next")
			continue
		}
		if len(found) > 0 {
			grids = found
			l.log.Info().Str("flavor", string(flavor)).Int("grids", len(found)).Msg("table grids detected")
			break
		}
	}
	if len(grids) == 0 {
		return nil, nil
	}

	var candidates []Candidate
	for _, g := range grids {
		if !isTransactionGrid(g) {
			continue
		}
		candidates = append(candidates, Candidate{Page: g.Page, BBox: g.BBox})
	}

	merged := MergeOverlapping(candidates, l.cfg.OverlapThreshold)

	// Page order, then top-to-bottom within a page (PDF origin is
	// bottom-left, so larger Y1 means closer to the top).
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Page != merged[j].Page {
			return merged[i].Page < merged[j].Page
		}
		return merged[i].BBox.Y1 > merged[j].BBox.Y1
	})
	return merged, nil
}

// CropAll rasterizes each candidate's page at the configured DPI and writes
// one padded PNG crop per candidate into outDir.
func (l *Locator) CropAll(ctx context.Context, path string, candidates []Candidate, outDir string) ([]TableImage, error) {
	pageCache := make(map[int]image.Image)
	perPage := make(map[int]int)

	var images []TableImage
	for _, c := range candidates {
		pageImg, ok := pageCache[c.Page]
		if !ok {
			var err error
			pageImg, err = l.raster.RenderPage(ctx, path, c.Page, l.cfg.DPI)
			if err != nil {
				return nil, fmt.Errorf("CropAll: rendering page %d: %w", c.Page, err)
			}
			pageCache[c.Page] = pageImg
		}

		crop := cropCandidate(pageImg, c.BBox, l.cfg.DPI, l.cfg.Padding)
		perPage[c.Page]++
		idx := perPage[c.Page]

		name := fmt.Sprintf("page%d_table%d.png", c.Page, idx)
		outPath := filepath.Join(outDir, name)
		data, err := encodePNG(crop)
		if err != nil {
			return nil, fmt.Errorf("CropAll: encoding %s: %w", name, err)
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("CropAll: writing %s: %w", outPath, err)
		}

		images = append(images, TableImage{Page: c.Page, Index: idx, Path: outPath, PNG: data})
		l.log.Info().Int("page", c.Page).Int("table", idx).Str("path", outPath).Msg("cropped table candidate")
	}
	return images, nil
}

// cropCandidate converts the candidate's PDF-space bounding box into pixel
// space and crops with padding. Raster pixels map to PDF units via dpi/72;
// the vertical axis flips between the two coordinate systems.
func cropCandidate(pageImg image.Image, bbox pdfdoc.Rect, dpi, padding int) image.Image {
	bounds := pageImg.Bounds()
	scale := float64(dpi) / 72.0
	pageHeight := float64(bounds.Dy()) / scale

	x0 := int(bbox.X0*scale) - padding
	y0 := int((pageHeight-bbox.Y1)*scale) - padding
	x1 := int(bbox.X1*scale) + padding
	y1 := int((pageHeight-bbox.Y0)*scale) + padding

	x0 = clamp(x0, 0, bounds.Dx())
	y0 = clamp(y0, 0, bounds.Dy())
	x1 = clamp(x1, 0, bounds.Dx())
	y1 = clamp(y1, 0, bounds.Dy())
	if x1 <= x0 || y1 <= y0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}

	out := image.NewRGBA(image.Rect(0, 0, x1-x0, y1-y0))
	draw.Draw(out, out.Bounds(), pageImg, image.Pt(bounds.Min.X+x0, bounds.Min.Y+y0), draw.Src)
	return out
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
