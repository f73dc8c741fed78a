// Package pdftools binds the pipeline's PDF boundaries to external tools:
// MuPDF's mutool for text geometry and redaction, Poppler's pdftoppm for
// rasterization, and camelot (via python3) for deterministic table grids.
// All three are invoked as subprocesses; none of them is linked in.
package pdftools

// Toolchain names the external binaries. Zero values fall back to the
// conventional names on PATH.
type Toolchain struct {
	Mutool   string
	Pdftoppm string
	Python   string
}

// DefaultToolchain returns the conventional binary names.
func DefaultToolchain() Toolchain {
	return Toolchain{Mutool: "mutool", Pdftoppm: "pdftoppm", Python: "python3"}
}

func (t Toolchain) mutool() string {
	if t.Mutool == "" {
		return "mutool"
	}
	return t.Mutool
}

func (t Toolchain) pdftoppm() string {
	if t.Pdftoppm == "" {
		return "pdftoppm"
	}
	return t.Pdftoppm
}

func (t Toolchain) python() string {
	if t.Python == "" {
		return "python3"
	}
	return t.Python
}
