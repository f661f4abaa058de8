package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize applies Unicode NFKC, full case folding and whitespace collapsing
// to s. Both paragraph text and queries go through it before matching.
func Normalize(s string) string {
	// A Caser keeps state between calls and must not be shared.
	folded := cases.Fold().String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(folded), " ")
}

// Tokens splits normalised text into maximal runs of letters and digits.
func Tokens(normalized string) []string {
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var stopwords = map[string]struct{}{
	"a": {}, "about": {}, "all": {}, "also": {}, "an": {}, "and": {}, "any": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "been": {}, "but": {}, "by": {}, "can": {}, "could": {}, "did": {}, "do": {}, "does": {},
	"for": {}, "from": {}, "had": {}, "has": {}, "have": {}, "he": {}, "her": {}, "him": {}, "his": {},
	"how": {}, "i": {}, "if": {}, "in": {}, "into": {}, "is": {}, "it": {}, "its": {}, "me": {}, "my": {},
	"of": {}, "on": {}, "or": {}, "our": {}, "she": {}, "so": {}, "than": {}, "that": {}, "the": {},
	"their": {}, "them": {}, "then": {}, "there": {}, "they": {}, "this": {}, "to": {}, "was": {}, "we": {},
	"were": {}, "what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "whom": {}, "why": {},
	"will": {}, "with": {}, "would": {}, "you": {}, "your": {},
}

// contentTokens drops stopwords unless nothing would remain.
func contentTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return tokens
	}
	return out
}
