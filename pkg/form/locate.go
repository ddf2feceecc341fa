package form

import (
	"strings"

	"formscan/pkg/ocr"
)

// Phrase is an ordered list of words searched for in OCR output.
type Phrase []string

// EndOfLine is the end phrase meaning "crop to the right edge of the image".
var EndOfLine = Phrase{"\n"}

// IsEndOfLine reports whether p is the EndOfLine sentinel.
func (p Phrase) IsEndOfLine() bool {
	return len(p) == 1 && p[0] == "\n"
}

func (p Phrase) String() string {
	if p.IsEndOfLine() {
		return "<end of line>"
	}
	return strings.Join(p, " ")
}

// Locate returns the index of the first word where phrase occurs as consecutive
// words. A word matches a phrase element when it contains it, ignoring case, so
// OCR noise such as trailing punctuation ("Water.") still matches; "Waterproof"
// matches "Water" as well.
func Locate(phrase Phrase, words []ocr.Word) (int, bool) {
	if len(phrase) == 0 {
		return -1, false
	}
	for i := range words {
		if matchesAt(phrase, words, i) {
			return i, true
		}
	}
	return -1, false
}

// matchesAt reports whether phrase matches words starting at i. A phrase
// running past the end of words does not match.
func matchesAt(phrase Phrase, words []ocr.Word, i int) bool {
	if i+len(phrase) > len(words) {
		return false
	}
	for j, p := range phrase {
		if !containsFold(words[i+j].Text, p) {
			return false
		}
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
