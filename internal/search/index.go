// Package search implements fuzzy full-text search over the paragraphs of a
// transcript.
//
// A paragraph matches a query when its normalised text contains the
// normalised query (score 1.0), or when its fuzzy score reaches the
// threshold. The fuzzy score of a paragraph is the IDF-weighted mean, over
// the query's content tokens, of each token's best similarity to any token of
// the paragraph:
//
//	sim(a, b) = 1 - DamerauLevenshtein(a, b) / max(len(a), len(b))
//
// [DefaultFuzzyThreshold] of 0.70 tolerates roughly 30% character divergence,
// so a transposition like "Ehdu" still finds "Ehud" while unrelated strings
// score far below it. Match position inside the paragraph is irrelevant.
//
// An [Index] is built once per transcript and is read-only afterwards; all
// methods are safe for concurrent use.
package search

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/transcriptqa/internal/transcript"
)

const (
	// DefaultFuzzyThreshold is the minimum fuzzy score of a match.
	DefaultFuzzyThreshold = 0.70

	// DefaultMaxResults caps the number of results of a single search.
	DefaultMaxResults = 100
)

// Option is a functional option for [NewIndex].
type Option func(*Index)

// WithFuzzyThreshold overrides [DefaultFuzzyThreshold]. Values outside (0, 1]
// are ignored.
func WithFuzzyThreshold(f float64) Option {
	return func(ix *Index) {
		if f > 0 && f <= 1 {
			ix.threshold = f
		}
	}
}

// WithMaxResults overrides [DefaultMaxResults]. Non-positive values are
// ignored.
func WithMaxResults(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.maxResults = n
		}
	}
}

// Index is the search view of one transcript.
type Index struct {
	t          *transcript.Transcript
	threshold  float64
	maxResults int

	norm    []string // normalised paragraph text
	paraTok [][]int  // distinct vocabulary ids per paragraph
	vocab   []string
	idf     []float64
	idfMiss float64 // weight of query tokens absent from the transcript
}

// NewIndex builds the index for t. A nil transcript yields an empty index.
func NewIndex(t *transcript.Transcript, opts ...Option) *Index {
	if t == nil {
		t = &transcript.Transcript{}
	}
	ix := &Index{
		t:          t,
		threshold:  DefaultFuzzyThreshold,
		maxResults: DefaultMaxResults,
		norm:       make([]string, len(t.Paragraphs)),
		paraTok:    make([][]int, len(t.Paragraphs)),
	}
	for _, o := range opts {
		o(ix)
	}

	ids := make(map[string]int)
	var df []int
	for i, p := range t.Paragraphs {
		ix.norm[i] = Normalize(p.Text)
		seen := make(map[int]struct{})
		for _, tok := range Tokens(ix.norm[i]) {
			id, ok := ids[tok]
			if !ok {
				id = len(ix.vocab)
				ids[tok] = id
				ix.vocab = append(ix.vocab, tok)
				df = append(df, 0)
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			df[id]++
			ix.paraTok[i] = append(ix.paraTok[i], id)
		}
	}

	n := float64(len(t.Paragraphs))
	ix.idf = make([]float64, len(df))
	for id, d := range df {
		ix.idf[id] = math.Log((n+1)/(float64(d)+1)) + 1
	}
	ix.idfMiss = math.Log(n+1) + 1
	return ix
}

// Transcript returns the indexed transcript.
func (ix *Index) Transcript() *transcript.Transcript { return ix.t }

// Len returns the number of indexed paragraphs.
func (ix *Index) Len() int { return len(ix.norm) }

// Threshold returns the fuzzy match threshold in use.
func (ix *Index) Threshold() float64 { return ix.threshold }

// Filters narrow a search. Zero values disable a filter; set filters are
// combined with AND.
type Filters struct {
	// Speaker keeps paragraphs whose speaker id equals *Speaker.
	Speaker *int
	// Entity keeps paragraphs whose text contains Entity, ignoring case.
	Entity string
}

// Result is one matching paragraph.
type Result struct {
	Index     int
	Paragraph transcript.Paragraph
	Score     float64
}

// Search returns the paragraphs matching query and f, at most MaxResults of
// them, ordered by descending score with ties in transcript order. An empty
// query matches every paragraph with score 0 in transcript order.
func (ix *Index) Search(query string, f Filters) []Result {
	q := ix.prepare(query)

	entity := ""
	if strings.TrimSpace(f.Entity) != "" {
		entity = Normalize(f.Entity)
	}

	results := make([]Result, 0)
	for i, p := range ix.t.Paragraphs {
		var score float64
		if !q.empty() {
			score = ix.score(q, i)
			if score < ix.threshold {
				continue
			}
		}
		if f.Speaker != nil && (p.Speaker == nil || *p.Speaker != *f.Speaker) {
			continue
		}
		if entity != "" && !strings.Contains(ix.norm[i], entity) {
			continue
		}
		results = append(results, Result{Index: i, Paragraph: p, Score: score})
	}

	if !q.empty() {
		slices.SortStableFunc(results, func(a, b Result) int { return cmp.Compare(b.Score, a.Score) })
	}
	if len(results) > ix.maxResults {
		results = results[:ix.maxResults]
	}
	return results
}

// Score returns the relevance of every paragraph to query, indexed like the
// transcript's paragraphs. It is the relevance primitive shared by search and
// retrieval: 1 for a substring match, the fuzzy score otherwise, 0 for an
// empty query. No threshold is applied.
func (ix *Index) Score(query string) []float64 {
	q := ix.prepare(query)
	out := make([]float64, len(ix.norm))
	if q.empty() {
		return out
	}
	for i := range out {
		out[i] = ix.score(q, i)
	}
	return out
}

// query is a prepared search query. Each token carries its similarity to
// every vocabulary term so paragraphs are scored by lookup.
type query struct {
	norm   string
	tokens []queryToken
}

type queryToken struct {
	weight float64
	sims   []float64 // by vocabulary id
}

func (q *query) empty() bool { return q.norm == "" }

func (ix *Index) prepare(raw string) *query {
	q := &query{norm: Normalize(raw)}
	if q.empty() {
		return q
	}
	for _, tok := range contentTokens(Tokens(q.norm)) {
		qt := queryToken{weight: ix.idfMiss, sims: make([]float64, len(ix.vocab))}
		for id, term := range ix.vocab {
			s := similarity(tok, term)
			qt.sims[id] = s
			if s == 1 {
				qt.weight = ix.idf[id]
			}
		}
		q.tokens = append(q.tokens, qt)
	}
	return q
}

func (ix *Index) score(q *query, i int) float64 {
	if strings.Contains(ix.norm[i], q.norm) {
		return 1
	}
	if len(q.tokens) == 0 {
		return 0
	}
	var sum, weights float64
	for _, qt := range q.tokens {
		best := 0.0
		for _, id := range ix.paraTok[i] {
			if s := qt.sims[id]; s > best {
				best = s
			}
		}
		sum += qt.weight * best
		weights += qt.weight
	}
	return sum / weights
}

// similarity is 1 minus the Damerau-Levenshtein distance of a and b
// normalised by the longer length, in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 0
	}
	d := matchr.DamerauLevenshtein(a, b)
	return max(0, 1-float64(d)/float64(longest))
}
