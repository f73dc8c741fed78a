package pdftools

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/dvloznov/statement-extractor/internal/pdfdoc"
)

// Opener opens PDFs for text-geometry reads and header redaction. Text
// comes from mutool's structured-text dump; white-out rectangles are
// appended to the page content streams by a mutool run script.
type Opener struct {
	tc Toolchain
}

// NewOpener creates a mutool-backed document opener.
func NewOpener(tc Toolchain) *Opener {
	return &Opener{tc: tc}
}

// Open reads the document's text geometry up front. Encrypted documents are
// decrypted into a temp copy first so mutool sees plain content; the copy is
// removed on Close.
func (o *Opener) Open(ctx context.Context, path, password string) (pdfdoc.Document, error) {
	readPath := path
	tmpCopy := ""
	if password != "" {
		tmp, err := decryptCopy(path, password)
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		readPath = tmp
		tmpCopy = tmp
	}

	pages, err := o.readStext(ctx, readPath)
	if err != nil {
		if tmpCopy != "" {
			os.Remove(tmpCopy)
		}
		return nil, fmt.Errorf("Open: %w", err)
	}

	return &document{tc: o.tc, path: readPath, tmpCopy: tmpCopy, pages: pages}, nil
}

func decryptCopy(path, password string) (string, error) {
	f, err := os.CreateTemp("", "stmtx-decrypted-*.pdf")
	if err != nil {
		return "", fmt.Errorf("decryptCopy: temp file: %w", err)
	}
	f.Close()

	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password
	if err := api.DecryptFile(path, f.Name(), conf); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("decryptCopy: %w", err)
	}
	return f.Name(), nil
}

// structured-text XML as emitted by "mutool draw -F stext". Coordinates are
// top-left origin, y growing downward.
type stextDocument struct {
	Pages []stextPage `xml:"page"`
}

type stextPage struct {
	Width  float64      `xml:"width,attr"`
	Height float64      `xml:"height,attr"`
	Blocks []stextBlock `xml:"block"`
}

type stextBlock struct {
	Lines []stextLine `xml:"line"`
}

type stextLine struct {
	BBox  string      `xml:"bbox,attr"`
	Fonts []stextFont `xml:"font"`
}

type stextFont struct {
	Chars []stextChar `xml:"char"`
}

type stextChar struct {
	C string `xml:"c,attr"`
}

func (o *Opener) readStext(ctx context.Context, path string) ([]stextPage, error) {
	cmd := exec.CommandContext(ctx, o.tc.mutool(), "draw", "-F", "stext", "-o", "-", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("readStext: mutool draw: %w: %s", err, stderr.String())
	}

	var doc stextDocument
	if err := xml.Unmarshal(stdout.Bytes(), &doc); err != nil {
		return nil, fmt.Errorf("readStext: decoding stext: %w", err)
	}
	return doc.Pages, nil
}

func parseBBox(s string) (pdfdoc.Rect, bool) {
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return pdfdoc.Rect{}, false
	}
	var vals [4]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return pdfdoc.Rect{}, false
		}
		vals[i] = v
	}
	return pdfdoc.Rect{X0: vals[0], Y0: vals[1], X1: vals[2], Y1: vals[3]}, true
}

type whiteOutOp struct {
	Page int     `json:"page"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
}

type document struct {
	tc      Toolchain
	path    string
	tmpCopy string
	pages   []stextPage
	ops     []whiteOutOp
}

func (d *document) PageCount() int {
	return len(d.pages)
}

func (d *document) PageSize(page int) (w, h float64, err error) {
	if page < 1 || page > len(d.pages) {
		return 0, 0, fmt.Errorf("PageSize: page %d out of range", page)
	}
	p := d.pages[page-1]
	return p.Width, p.Height, nil
}

// TextBlocks returns one block per text line, top-left origin coordinates.
func (d *document) TextBlocks(page int) ([]pdfdoc.TextBlock, error) {
	if page < 1 || page > len(d.pages) {
		return nil, fmt.Errorf("TextBlocks: page %d out of range", page)
	}

	var blocks []pdfdoc.TextBlock
	for _, b := range d.pages[page-1].Blocks {
		for _, line := range b.Lines {
			rect, ok := parseBBox(line.BBox)
			if !ok {
				continue
			}
			var sb strings.Builder
			for _, font := range line.Fonts {
				for _, ch := range font.Chars {
					sb.WriteString(ch.C)
				}
			}
			text := strings.TrimSpace(sb.String())
			if text == "" {
				continue
			}
			blocks = append(blocks, pdfdoc.TextBlock{Rect: rect, Text: text})
		}
	}
	return blocks, nil
}

// WhiteOut queues a filled white rectangle over the given region (top-left
// origin). The paint happens in SaveAs.
func (d *document) WhiteOut(page int, r pdfdoc.Rect) error {
	if page < 1 || page > len(d.pages) {
		return fmt.Errorf("WhiteOut: page %d out of range", page)
	}
	// Content streams use bottom-left origin; flip here so the script stays
	// coordinate-agnostic.
	pageH := d.pages[page-1].Height
	d.ops = append(d.ops, whiteOutOp{
		Page: page,
		X:    r.X0,
		Y:    pageH - r.Y1,
		W:    r.X1 - r.X0,
		H:    r.Y1 - r.Y0,
	})
	return nil
}

// whiteOutScript appends a white-fill rectangle stream to each target page's
// content array. Arguments: input path, output path, ops JSON.
const whiteOutScript = `
var doc = new PDFDocument(scriptArgs[0]);
var ops = JSON.parse(scriptArgs[2]);
for (var i = 0; i < ops.length; i++) {
    var op = ops[i];
    var pageObj = doc.findPage(op.page - 1);
    var fill = doc.addStream("q 1 1 1 rg " + op.x + " " + op.y + " " + op.w + " " + op.h + " re f Q");
    var contents = pageObj.Contents;
    if (contents.isArray()) {
        contents.push(fill);
    } else {
        var arr = doc.newArray();
        arr.push(contents);
        arr.push(fill);
        pageObj.Contents = arr;
    }
}
doc.save(scriptArgs[1], "garbage,compress");
`

func (d *document) SaveAs(outPath string) error {
	if len(d.ops) == 0 {
		return fmt.Errorf("SaveAs: nothing to save, no regions painted")
	}

	opsJSON, err := json.Marshal(d.ops)
	if err != nil {
		return fmt.Errorf("SaveAs: encoding paint ops: %w", err)
	}

	scriptPath := filepath.Join(filepath.Dir(outPath), "whiteout.js")
	if err := os.WriteFile(scriptPath, []byte(whiteOutScript), 0o644); err != nil {
		return fmt.Errorf("SaveAs: writing script: %w", err)
	}
	defer os.Remove(scriptPath)

	cmd := exec.Command(d.tc.mutool(), "run", scriptPath, d.path, outPath, string(opsJSON))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("SaveAs: mutool run: %w: %s", err, stderr.String())
	}
	return nil
}

func (d *document) Close() error {
	if d.tmpCopy != "" {
		return os.Remove(d.tmpCopy)
	}
	return nil
}
