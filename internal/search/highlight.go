package search

import (
	"regexp"
	"strings"
)

// Span is a half-open byte range [Start, End) of a paragraph's text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Highlight returns every case-insensitive literal occurrence of query in
// text. It is independent of fuzzy ranking: a paragraph that matched only
// fuzzily may yield no spans. A blank query yields none.
func Highlight(text, query string) []Span {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(query))
	if err != nil {
		return nil
	}
	locs := re.FindAllStringIndex(text, -1)
	spans := make([]Span, len(locs))
	for i, l := range locs {
		spans[i] = Span{Start: l[0], End: l[1]}
	}
	return spans
}
