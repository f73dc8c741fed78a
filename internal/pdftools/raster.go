package pdftools

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
)

// Rasterizer renders single PDF pages to images with pdftoppm.
type Rasterizer struct {
	tc Toolchain
}

// NewRasterizer creates a pdftoppm-backed rasterizer.
func NewRasterizer(tc Toolchain) *Rasterizer {
	return &Rasterizer{tc: tc}
}

// RenderPage renders one 1-based page at the given DPI.
func (r *Rasterizer) RenderPage(ctx context.Context, path string, page, dpi int) (image.Image, error) {
	// -singlefile with stdout output yields exactly one PNG.
	cmd := exec.CommandContext(ctx, r.tc.pdftoppm(),
		"-png", "-singlefile",
		"-r", strconv.Itoa(dpi),
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("RenderPage: pdftoppm page %d: %w: %s", page, err, stderr.String())
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("RenderPage: decoding pdftoppm output for page %d: %w", page, err)
	}
	return img, nil
}
