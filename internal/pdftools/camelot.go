package pdftools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/dvloznov/statement-extractor/internal/locator"
	"github.com/dvloznov/statement-extractor/internal/pdfdoc"
)

// camelotScript dumps every detected table as one JSON object: page number,
// bounding box in PDF coordinates (bottom-left origin) and the cell grid.
// Arguments: path, pages, flavor, edge_tol, row_tol, password.
const camelotScript = `
import json, sys
import camelot

path, pages, flavor, edge_tol, row_tol, password = sys.argv[1:7]
kwargs = {"pages": pages, "flavor": flavor}
if password:
    kwargs["password"] = password
if flavor == "stream" and edge_tol:
    kwargs["edge_tol"] = int(edge_tol)
    kwargs["row_tol"] = int(row_tol)

tables = camelot.read_pdf(path, **kwargs)
out = []
for t in tables:
    out.append({
        "page": t.page,
        "bbox": list(t._bbox),
        "cells": t.df.astype(str).values.tolist(),
    })
json.dump(out, sys.stdout)
`

type camelotTable struct {
	Page  int        `json:"page"`
	BBox  []float64  `json:"bbox"`
	Cells [][]string `json:"cells"`
}

// Camelot reads table grids by running the camelot library under python3.
type Camelot struct {
	tc Toolchain
}

// NewCamelot creates a camelot-backed table reader.
func NewCamelot(tc Toolchain) *Camelot {
	return &Camelot{tc: tc}
}

// ReadTables detects table grids on the given pages with the given flavor.
func (c *Camelot) ReadTables(ctx context.Context, path, pages string, flavor locator.Flavor, password string) ([]locator.Grid, error) {
	name, edgeTol, rowTol := flavorArgs(flavor)

	cmd := exec.CommandContext(ctx, c.tc.python(), "-c", camelotScript,
		path, pages, name, edgeTol, rowTol, password)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ReadTables: camelot %s: %w: %s", name, err, stderr.String())
	}

	var tables []camelotTable
	if err := json.Unmarshal(stdout.Bytes(), &tables); err != nil {
		return nil, fmt.Errorf("ReadTables: decoding camelot output: %w", err)
	}

	grids := make([]locator.Grid, 0, len(tables))
	for _, t := range tables {
		if len(t.BBox) != 4 {
			continue
		}
		grids = append(grids, locator.Grid{
			Page:  t.Page,
			BBox:  pdfdoc.Rect{X0: t.BBox[0], Y0: t.BBox[1], X1: t.BBox[2], Y1: t.BBox[3]},
			Cells: t.Cells,
		})
	}
	return grids, nil
}

func flavorArgs(flavor locator.Flavor) (name, edgeTol, rowTol string) {
	switch flavor {
	case locator.FlavorStreamTuned:
		return "stream", "75", "10"
	case locator.FlavorLattice:
		return "lattice", "", ""
	default:
		return "stream", "", ""
	}
}
