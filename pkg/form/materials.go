package form

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// DefaultThreshold is the similarity a token must exceed to match a vocabulary entry.
const DefaultThreshold = 75

const materialsPrefix = "materials used:"

// Vocabulary is the ordered list of names a free-text field is matched against.
type Vocabulary []string

// indel distance: a substitution costs a deletion plus an insertion.
var ratioParams = levenshtein.NewParams().SubCost(2)

// Ratio scores the similarity of a and b from 0 to 100 as
// round(100 * (len(a)+len(b)-indel) / (len(a)+len(b))). Empty input scores 0.
func Ratio(a, b string) int {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	total := la + lb
	dist := levenshtein.Distance(a, b, ratioParams)
	return int(math.Round(100 * float64(total-dist) / float64(total)))
}

// ExtractMaterials reports the vocabulary entries found in a handwritten
// transcription. The text is lowercased, the "materials used:" label removed
// and split on whitespace; an entry matches on the first token whose Ratio
// against the lowercased entry exceeds threshold. Matches come back in
// vocabulary order, each entry at most once.
func ExtractMaterials(text string, vocab Vocabulary, threshold int) []string {
	text = strings.ReplaceAll(strings.ToLower(text), materialsPrefix, "")
	tokens := strings.Fields(text)
	var found []string
	for _, entry := range vocab {
		want := strings.ToLower(entry)
		for _, tok := range tokens {
			if Ratio(want, tok) > threshold {
				found = append(found, entry)
				break
			}
		}
	}
	return found
}
