// Package retrieve selects the transcript paragraphs used as evidence for a
// question.
//
// Every paragraph is ranked by the search index's relevance primitive
// ([search.Index.Score]), optionally blended with semantic similarity from a
// [Scorer]. The evidence is the longest prefix of that ranking that fits the
// context budget, and is never empty for a non-empty transcript: a question
// that matches nothing still gets the top-ranked paragraph, flagged as low
// confidence.
//
// A [Retriever] is read-only after construction and safe for concurrent use.
package retrieve

import (
	"cmp"
	"context"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/transcriptqa/internal/observe"
	"github.com/MrWong99/transcriptqa/internal/search"
	"github.com/MrWong99/transcriptqa/internal/transcript"
)

const (
	// DefaultContextBudget is the maximum summed rune length of the evidence
	// paragraphs.
	DefaultContextBudget = 6000

	// DefaultMaxParagraphs caps the number of evidence paragraphs.
	DefaultMaxParagraphs = 10

	// DefaultMinScore is the top score below which a result is flagged as low
	// confidence.
	DefaultMinScore = 0.2

	// DefaultSemanticWeight is the share of the semantic similarity in the
	// blended ranking score.
	DefaultSemanticWeight = 0.5
)

// Scorer scores every paragraph of a transcript against a question. The i-th
// score corresponds to the i-th paragraph.
type Scorer interface {
	Similarities(ctx context.Context, question string) ([]float64, error)
}

// Evidence is one paragraph selected for a question.
type Evidence struct {
	Index     int
	Paragraph transcript.Paragraph
	Score     float64
}

// Result is the evidence for one question.
type Result struct {
	// Evidence is ordered by rank.
	Evidence []Evidence

	// LowConfidence is set when the best ranking score is below the minimum
	// score. The evidence is still returned.
	LowConfidence bool

	// Semantic reports whether the ranking used semantic similarity.
	Semantic bool
}

// Option is a functional option for [New].
type Option func(*Retriever)

// WithContextBudget overrides [DefaultContextBudget]. Non-positive values are
// ignored.
func WithContextBudget(runes int) Option {
	return func(r *Retriever) {
		if runes > 0 {
			r.budget = runes
		}
	}
}

// WithMaxParagraphs overrides [DefaultMaxParagraphs]. Non-positive values are
// ignored.
func WithMaxParagraphs(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.maxParagraphs = n
		}
	}
}

// WithMinScore overrides [DefaultMinScore].
func WithMinScore(s float64) Option {
	return func(r *Retriever) { r.minScore = s }
}

// WithSemantic blends s into the ranking with the given weight in (0, 1].
// A nil scorer or a weight outside that range disables semantic ranking.
func WithSemantic(s Scorer, weight float64) Option {
	return func(r *Retriever) {
		if s == nil || weight <= 0 || weight > 1 {
			r.semantic, r.weight = nil, 0
			return
		}
		r.semantic, r.weight = s, weight
	}
}

// WithMetrics records retrieval latency on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Retriever) { r.metrics = m }
}

// Retriever selects evidence paragraphs from one transcript.
type Retriever struct {
	t             *transcript.Transcript
	idx           *search.Index
	budget        int
	maxParagraphs int
	minScore      float64
	semantic      Scorer
	weight        float64
	metrics       *observe.Metrics
}

// New returns a Retriever over t ranking with idx, which must index t. When idx
// is nil or indexes a different transcript, an index is built for t with
// default options.
func New(t *transcript.Transcript, idx *search.Index, opts ...Option) *Retriever {
	if t == nil {
		t = &transcript.Transcript{}
	}
	if idx == nil || idx.Transcript() != t {
		idx = search.NewIndex(t)
	}
	r := &Retriever{
		t:             t,
		idx:           idx,
		budget:        DefaultContextBudget,
		maxParagraphs: DefaultMaxParagraphs,
		minScore:      DefaultMinScore,
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Transcript returns the transcript the retriever selects from.
func (r *Retriever) Transcript() *transcript.Transcript { return r.t }

// Retrieve returns the evidence for question. The result is empty only when
// the transcript is empty. An error is returned only when ctx is done.
func (r *Retriever) Retrieve(ctx context.Context, question string) (*Result, error) {
	start := time.Now()
	defer func() {
		r.metrics.RetrievalDuration.Record(ctx, time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.t.Empty() {
		return &Result{}, nil
	}

	ranked, semantic := r.rank(ctx, question)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Semantic: semantic}
	used := 0
	for _, e := range ranked {
		if len(res.Evidence) >= r.maxParagraphs {
			break
		}
		n := utf8.RuneCountInString(e.Paragraph.Text)
		if len(res.Evidence) > 0 && used+n > r.budget {
			break
		}
		used += n
		res.Evidence = append(res.Evidence, e)
	}
	res.LowConfidence = res.Evidence[0].Score < r.minScore

	observe.Logger(ctx).Debug("evidence retrieved",
		"paragraphs", len(res.Evidence),
		"runes", used,
		"top_score", res.Evidence[0].Score,
		"semantic", semantic,
		"low_confidence", res.LowConfidence,
	)
	return res, nil
}

// TopK returns the k best-ranked paragraphs for question without applying the
// context budget. A non-positive k returns the whole ranking.
func (r *Retriever) TopK(ctx context.Context, question string, k int) ([]Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ranked, _ := r.rank(ctx, question)
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// rank orders every paragraph by descending score, ties in transcript order.
// It reports whether semantic similarity contributed to the scores.
func (r *Retriever) rank(ctx context.Context, question string) ([]Evidence, bool) {
	scores := r.idx.Score(question)
	semantic := false
	if r.semantic != nil {
		sims, err := r.semantic.Similarities(ctx, question)
		switch {
		case err != nil:
			observe.Logger(ctx).Warn("semantic ranking unavailable, using lexical ranking", "err", err)
		case len(sims) != len(scores):
			observe.Logger(ctx).Warn("semantic ranking unavailable, using lexical ranking",
				"err", "similarity count mismatch",
				"similarities", len(sims),
				"paragraphs", len(scores),
			)
		default:
			for i, s := range sims {
				scores[i] = r.weight*max(0, s) + (1-r.weight)*scores[i]
			}
			semantic = true
		}
	}

	ranked := make([]Evidence, len(r.t.Paragraphs))
	for i, p := range r.t.Paragraphs {
		ranked[i] = Evidence{Index: i, Paragraph: p, Score: scores[i]}
	}
	slices.SortStableFunc(ranked, func(a, b Evidence) int { return cmp.Compare(b.Score, a.Score) })
	return ranked, semantic
}
