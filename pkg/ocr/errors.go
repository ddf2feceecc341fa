package ocr

import "errors"

var (
	// ErrNoWords is returned when the engine recognizes no words on a page.
	ErrNoWords = errors.New("no words recognized")
	// ErrEmptyImage is returned for images with zero area.
	ErrEmptyImage = errors.New("empty image")
	// ErrUnknownMode is returned for a text pass mode the engine does not know.
	ErrUnknownMode = errors.New("unknown ocr mode")
)
