package locator

import (
	"sort"

	"github.com/dvloznov/statement-extractor/internal/pdfdoc"
)

// boxesOverlap reports whether two bounding boxes overlap significantly:
// intersection area divided by the smaller box's area must exceed threshold.
func boxesOverlap(a, b pdfdoc.Rect, threshold float64) bool {
	interX0 := max(a.X0, b.X0)
	interY0 := max(a.Y0, b.Y0)
	interX1 := min(a.X1, b.X1)
	interY1 := min(a.Y1, b.Y1)

	if interX0 >= interX1 || interY0 >= interY1 {
		return false
	}

	interArea := (interX1 - interX0) * (interY1 - interY0)
	smaller := min(a.Area(), b.Area())
	if smaller <= 0 {
		return false
	}
	return interArea/smaller > threshold
}

// mergeBoxes returns the union bounding box of two rectangles.
func mergeBoxes(a, b pdfdoc.Rect) pdfdoc.Rect {
	return pdfdoc.Rect{
		X0: min(a.X0, b.X0),
		Y0: min(a.Y0, b.Y0),
		X1: max(a.X1, b.X1),
		Y1: max(a.Y1, b.Y1),
	}
}

// MergeOverlapping merges candidates on the same page whose bounding boxes
// overlap by more than threshold. Merging is transitive within a page: a
// candidate absorbs every overlapping neighbor in one pass. The operation is
// idempotent — merging an already-merged set changes nothing.
func MergeOverlapping(candidates []Candidate, threshold float64) []Candidate {
	byPage := make(map[int][]Candidate)
	var pages []int
	for _, c := range candidates {
		if _, ok := byPage[c.Page]; !ok {
			pages = append(pages, c.Page)
		}
		byPage[c.Page] = append(byPage[c.Page], c)
	}
	sort.Ints(pages)

	var merged []Candidate
	for _, page := range pages {
		list := byPage[page]
		used := make([]bool, len(list))
		for i := range list {
			if used[i] {
				continue
			}
			current := list[i]
			used[i] = true
			for j := i + 1; j < len(list); j++ {
				if used[j] {
					continue
				}
				if boxesOverlap(current.BBox, list[j].BBox, threshold) {
					current.BBox = mergeBoxes(current.BBox, list[j].BBox)
					used[j] = true
				}
			}
			merged = append(merged, current)
		}
	}
	return merged
}
