package form

import (
	"errors"
	"fmt"
)

var (
	// ErrAnchorNotFound is wrapped by AnchorNotFoundError.
	ErrAnchorNotFound = errors.New("anchor phrase not found")
	// ErrInvalidTemplate is wrapped by every template validation failure.
	ErrInvalidTemplate = errors.New("invalid form template")
)

// AnchorNotFoundError reports a start phrase missing from the OCR words.
type AnchorNotFoundError struct {
	Field  string
	Phrase Phrase
}

func (e *AnchorNotFoundError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("field %q: %v: %q", e.Field, ErrAnchorNotFound, e.Phrase.String())
	}
	return fmt.Sprintf("%v: %q", ErrAnchorNotFound, e.Phrase.String())
}

func (e *AnchorNotFoundError) Unwrap() error { return ErrAnchorNotFound }
