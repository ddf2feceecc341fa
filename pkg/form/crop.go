package form

import (
	"image"

	"github.com/disintegration/imaging"

	"formscan/pkg/ocr"
)

// Padding applied around the start anchor word.
const (
	padLeft     = 5
	padVertical = 15
)

// Region is a pixel rectangle derived from anchor words. Top may be negative
// when the anchor sits near the top edge; Clamp brings it inside the image.
type Region struct {
	Left, Top, Width, Height int
}

// Rect returns the region as a rectangle without normalising it, so a region
// with non-positive width or height stays empty.
func (r Region) Rect() image.Rectangle {
	return image.Rectangle{
		Min: image.Pt(r.Left, r.Top),
		Max: image.Pt(r.Left+r.Width, r.Top+r.Height),
	}
}

// Empty reports whether the region covers no pixels.
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Clamp intersects the region with bounds.
func (r Region) Clamp(bounds image.Rectangle) Region {
	if r.Empty() {
		return Region{}
	}
	c := r.Rect().Intersect(bounds)
	if c.Empty() {
		return Region{}
	}
	return Region{Left: c.Min.X, Top: c.Min.Y, Width: c.Dx(), Height: c.Dy()}
}

// RegionFor derives the crop rectangle between start and end. The left edge,
// top and height come from the first word of start; the right edge is the left
// of the first word of end, or the image width when end is EndOfLine or absent.
func RegionFor(bounds image.Rectangle, words []ocr.Word, start, end Phrase) (Region, error) {
	si, ok := Locate(start, words)
	if !ok {
		return Region{}, &AnchorNotFoundError{Phrase: start}
	}
	anchor := words[si]
	right := bounds.Dx()
	if !end.IsEndOfLine() {
		if ei, ok := Locate(end, words); ok {
			right = words[ei].Left
		}
	}
	left := max(anchor.Left-padLeft, 0)
	return Region{
		Left:   left,
		Top:    anchor.Top - padVertical,
		Width:  right - left,
		Height: anchor.Height + 2*padVertical,
	}, nil
}

// Crop cuts the region between start and end out of img. A degenerate region
// yields an empty image.
func Crop(img image.Image, words []ocr.Word, start, end Phrase) (*image.NRGBA, Region, error) {
	r, err := RegionFor(img.Bounds(), words, start, end)
	if err != nil {
		return nil, Region{}, err
	}
	c := r.Clamp(img.Bounds())
	if c.Empty() {
		return &image.NRGBA{}, c, nil
	}
	return imaging.Crop(img, c.Rect()), c, nil
}
