// Package pdfdoc provides PDF document access for the extraction pipeline:
// validation and password authentication via pdfcpu, plus the narrow
// interfaces behind which page rasterization and positioned text extraction
// live. The concrete rasterizer is a library capability supplied by the
// caller; the pipeline only depends on the contracts defined here.
package pdfdoc

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Password failures are surfaced distinctly: they require user input, not
// automatic recovery.
var (
	ErrPasswordRequired = errors.New("pdfdoc: document is encrypted and no password was supplied")
	ErrWrongPassword    = errors.New("pdfdoc: wrong password")
)

// Info describes a validated PDF document.
type Info struct {
	PageCount int
	Encrypted bool
}

// Validate opens and validates the PDF at path, authenticating with password
// when the document is encrypted. Returns ErrPasswordRequired or
// ErrWrongPassword for authentication failures; any other error is a hard
// file/parse failure.
func Validate(path, password string) (Info, error) {
	info, err := readInfo(path, "")
	if err == nil {
		return info, nil
	}
	if !isPasswordError(err) {
		return Info{}, fmt.Errorf("Validate: reading %q: %w", path, err)
	}
	if password == "" {
		return Info{Encrypted: true}, ErrPasswordRequired
	}
	info, err = readInfo(path, password)
	if err != nil {
		if isPasswordError(err) {
			return Info{Encrypted: true}, ErrWrongPassword
		}
		return Info{}, fmt.Errorf("Validate: reading %q: %w", path, err)
	}
	info.Encrypted = true
	return info, nil
}

func readInfo(path, password string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password

	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return Info{}, err
	}
	return Info{PageCount: ctx.PageCount}, nil
}

func isPasswordError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypted")
}

// Rect is a rectangle in PDF page space (origin bottom-left for geometry
// coming from the table library, top-left for text block coordinates;
// producers document which convention they use).
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Area returns the rectangle's area, never negative.
func (r Rect) Area() float64 {
	w, h := r.Width(), r.Height()
	if w < 0 || h < 0 {
		return 0
	}
	return w * h
}

// TextBlock is a run of text with its bounding rectangle, in top-left page
// coordinates.
type TextBlock struct {
	Rect
	Text string
}

// Document is an open PDF exposing the operations the redactor needs:
// positioned text per page, painting, and saving a modified copy.
type Document interface {
	PageCount() int
	// PageSize returns the width and height of a 1-based page in PDF units.
	PageSize(page int) (w, h float64, err error)
	// TextBlocks returns the positioned text blocks of a 1-based page.
	TextBlocks(page int) ([]TextBlock, error)
	// WhiteOut paints the given page region opaque white.
	WhiteOut(page int, r Rect) error
	// SaveAs writes the (possibly modified) document to path.
	SaveAs(path string) error
	Close() error
}

// Opener opens a PDF for text-level access, authenticating when needed.
type Opener interface {
	Open(ctx context.Context, path, password string) (Document, error)
}

// Rasterizer renders a single 1-based PDF page to an image at the given DPI.
type Rasterizer interface {
	RenderPage(ctx context.Context, path string, page, dpi int) (image.Image, error)
}
