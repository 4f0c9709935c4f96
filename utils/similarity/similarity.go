package similarity

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
)

// HintThreshold is the lowest score at which a title hint is considered to
// name the same film as the provider title.
const HintThreshold = 0.6

// Score returns how alike two film titles are, from 0.0 to 1.0, using
// Levenshtein distance over normalized titles.
//
// A title that is a word-aligned prefix of the other scores at least 0.9, so
// "Dune" matches "Dune: Part Two" and "Mission Impossible" matches its
// subtitled sequels.
func Score(a, b string) float64 {
	a = normalize(a)
	b = normalize(b)

	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	if prefixContains(a, b) {
		return 0.9
	}

	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(longest)
}

// HintMatches reports whether hint plausibly names one of the titles. An
// empty hint always matches.
func HintMatches(hint string, titles ...string) bool {
	if strings.TrimSpace(hint) == "" {
		return true
	}
	for _, title := range titles {
		if strings.TrimSpace(title) == "" {
			continue
		}
		if Score(hint, title) >= HintThreshold {
			return true
		}
	}
	return false
}

func prefixContains(a, b string) bool {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	return strings.HasPrefix(longer, shorter) && longer[len(shorter)] == ' '
}

// normalize folds a title to lower-case ASCII words. "&" reads as "and" and a
// leading article is dropped, so "The Batman" and "batman" compare equal.
func normalize(s string) string {
	s = unidecode.Unidecode(strings.ReplaceAll(s, "&", " and "))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '.' || r == '-' || r == '_' || r == ':':
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	if len(words) > 1 {
		switch words[0] {
		case "the", "a", "an":
			words = words[1:]
		}
	}
	return strings.Join(words, " ")
}

// levenshtein is the edit distance between two rune slices, two rows at a time.
func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
