package form

import (
	"strings"
	"unicode"
)

// OptionSet is the fixed list of values a field may take, e.g. {`3/4"`, `5/8"`}.
type OptionSet []string

// Tally counts, per option, the characters of a and b that occur anywhere in
// the option. Position is ignored.
func (o OptionSet) Tally(a, b string) []int {
	tally := make([]int, len(o))
	for _, s := range []string{a, b} {
		for _, r := range s {
			for i, opt := range o {
				if strings.ContainsRune(opt, r) {
					tally[i]++
				}
			}
		}
	}
	return tally
}

// SharedRunes returns the letters and digits that appear in more than one
// option. Character voting only separates options whose letters and digits are
// disjoint, so a non-empty result means the vote can be unreliable.
func (o OptionSet) SharedRunes() []rune {
	seen := map[rune]int{}
	for i, opt := range o {
		for _, r := range opt {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				continue
			}
			if prev, ok := seen[r]; !ok {
				seen[r] = i
			} else if prev != i {
				seen[r] = -1
			}
		}
	}
	var shared []rune
	for _, opt := range o {
		for _, r := range opt {
			if seen[r] == -1 {
				shared = append(shared, r)
				seen[r] = -2
			}
		}
	}
	return shared
}

// ReconcileOption votes the characters of two readings of the same region
// against options and returns the option with the strictly highest tally. A tie
// for first place or no votes at all leaves the field unresolved.
func ReconcileOption(a, b string, options OptionSet) (string, bool) {
	tally := options.Tally(a, b)
	best, second := -1, -1
	for i, n := range tally {
		switch {
		case best < 0 || n > tally[best]:
			best, second = i, best
		case second < 0 || n > tally[second]:
			second = i
		}
	}
	if best < 0 || tally[best] == 0 {
		return "", false
	}
	if second >= 0 && tally[second] == tally[best] {
		return "", false
	}
	return options[best], true
}
