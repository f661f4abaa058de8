package transcript

import (
	"cmp"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"
)

// DefaultGapThreshold is the silence between two words of the same speaker
// that starts a new paragraph when the input carries no paragraph boundaries.
const DefaultGapThreshold = 2 * time.Second

// boundaryTolerance absorbs rounding between paragraph and word timestamps.
const boundaryTolerance = 1e-3

const altPath = "results.channels[0].alternatives[0]"

type buildConfig struct {
	gap time.Duration
}

// BuildOption configures [Build].
type BuildOption func(*buildConfig)

// WithGapThreshold overrides [DefaultGapThreshold]. Non-positive values are
// ignored.
func WithGapThreshold(d time.Duration) BuildOption {
	return func(c *buildConfig) {
		if d > 0 {
			c.gap = d
		}
	}
}

// Build converts a raw transcription into a [Transcript]. It is a pure
// function: the same raw input always yields a deep-equal result.
//
// Build returns a [*MalformedInputError] when results, its channel array, the
// primary channel's alternatives, or the best alternative's word array are
// absent, or when a paragraphs object is present without its paragraph array.
func Build(raw *Raw, opts ...BuildOption) (*Transcript, error) {
	cfg := buildConfig{gap: DefaultGapThreshold}
	for _, o := range opts {
		o(&cfg)
	}

	alt, err := primaryAlternative(raw)
	if err != nil {
		return nil, err
	}

	words := buildWords(alt.Words)

	var paras []Paragraph
	if alt.Paragraphs != nil {
		if alt.Paragraphs.Paragraphs == nil {
			return nil, &MalformedInputError{Field: altPath + ".paragraphs.paragraphs"}
		}
		paras = fromSourceParagraphs(alt.Paragraphs.Paragraphs, words)
	} else {
		paras = groupWords(words, cfg.gap.Seconds())
	}

	t := &Transcript{
		Metadata:   buildMetadata(raw.Metadata),
		Summary:    buildSummary(raw.Results.Summary),
		Topics:     buildTopics(raw.Results.Topics, words),
		Entities:   buildEntities(raw.Results.Entities, alt.Entities),
		Paragraphs: paras,
		Words:      words,
	}
	partition(t.Paragraphs, t.Metadata.Duration)
	t.Speakers = roster(t.Paragraphs)

	t.FullTranscript = strings.TrimSpace(alt.Transcript)
	if t.FullTranscript == "" {
		texts := make([]string, len(t.Paragraphs))
		for i, p := range t.Paragraphs {
			texts[i] = p.Text
		}
		t.FullTranscript = strings.Join(texts, "\n\n")
	}
	return t, nil
}

func primaryAlternative(raw *Raw) (*RawAlternative, error) {
	switch {
	case raw == nil:
		return nil, &MalformedInputError{Field: "document"}
	case raw.Results == nil:
		return nil, &MalformedInputError{Field: "results"}
	case len(raw.Results.Channels) == 0:
		return nil, &MalformedInputError{Field: "results.channels"}
	case len(raw.Results.Channels[0].Alternatives) == 0:
		return nil, &MalformedInputError{Field: "results.channels[0].alternatives"}
	}
	alt := &raw.Results.Channels[0].Alternatives[0]
	if alt.Words == nil {
		return nil, &MalformedInputError{Field: altPath + ".words"}
	}
	return alt, nil
}

func buildWords(src []RawWord) []Word {
	words := make([]Word, len(src))
	for i, w := range src {
		pw := w.PunctuatedWord
		if pw == "" {
			pw = w.Word
		}
		words[i] = Word{
			Word:           w.Word,
			Start:          w.Start,
			End:            w.End,
			Confidence:     w.Confidence,
			Speaker:        cloneSpeaker(w.Speaker),
			PunctuatedWord: pw,
		}
	}
	// Stable, so entity and topic word anchors stay valid for already
	// ordered input.
	slices.SortStableFunc(words, func(a, b Word) int { return cmp.Compare(a.Start, b.Start) })
	return words
}

// fromSourceParagraphs adopts the upstream paragraph boundaries and assigns
// each paragraph the words starting at or after its own start.
func fromSourceParagraphs(src []RawParagraph, words []Word) []Paragraph {
	src = slices.Clone(src)
	slices.SortStableFunc(src, func(a, b RawParagraph) int { return cmp.Compare(a.Start, b.Start) })

	firsts := make([]int, len(src))
	for i := 1; i < len(src); i++ {
		idx := sort.Search(len(words), func(j int) bool {
			return words[j].Start >= src[i].Start-boundaryTolerance
		})
		firsts[i] = max(idx, firsts[i-1])
	}

	out := make([]Paragraph, 0, len(src))
	for i, rp := range src {
		first, last := firsts[i], len(words)
		if i+1 < len(src) {
			last = firsts[i+1]
		}

		sentences := cleanSentences(rp.Sentences)
		if len(sentences) == 0 {
			sentences = splitSentences(words[first:last])
		}
		if len(sentences) == 0 {
			// Nothing to show. Hand any words to the previous paragraph so
			// the word ranges stay contiguous.
			if len(out) > 0 {
				prev := &out[len(out)-1]
				prev.LastWord = last
			} else if i+1 < len(src) {
				firsts[i+1] = first
			}
			continue
		}

		numWords := rp.NumWords
		if numWords <= 0 {
			numWords = last - first
		}
		out = append(out, Paragraph{
			Speaker:   cloneSpeaker(rp.Speaker),
			Start:     rp.Start,
			End:       rp.End,
			NumWords:  numWords,
			Text:      joinSentences(sentences),
			Sentences: sentences,
			FirstWord: first,
			LastWord:  last,
		})
	}
	return out
}

// groupWords builds paragraphs from runs of words with the same speaker,
// breaking on a speaker change or a pause longer than gap seconds.
func groupWords(words []Word, gap float64) []Paragraph {
	out := make([]Paragraph, 0)
	start := 0
	for i := 1; i <= len(words); i++ {
		if i < len(words) &&
			sameSpeaker(words[i].Speaker, words[i-1].Speaker) &&
			words[i].Start-words[i-1].End <= gap {
			continue
		}
		sentences := splitSentences(words[start:i])
		out = append(out, Paragraph{
			Speaker:   cloneSpeaker(words[start].Speaker),
			Start:     words[start].Start,
			End:       words[i-1].End,
			NumWords:  i - start,
			Text:      joinSentences(sentences),
			Sentences: sentences,
			FirstWord: start,
			LastWord:  i,
		})
		start = i
	}
	return out
}

// partition stretches paragraph spans so they tile [0, duration] without gaps
// or overlaps. Paragraphs must already be sorted by start.
func partition(paras []Paragraph, duration float64) {
	for i := range paras {
		if i == 0 {
			paras[i].Start = 0
		}
		if i+1 < len(paras) {
			paras[i].End = paras[i+1].Start
		} else {
			paras[i].End = max(paras[i].End, duration)
		}
	}
}

func roster(paras []Paragraph) []int {
	ids := make([]int, 0)
	for _, p := range paras {
		if p.Speaker != nil && !slices.Contains(ids, *p.Speaker) {
			ids = append(ids, *p.Speaker)
		}
	}
	slices.Sort(ids)
	return ids
}

func buildMetadata(m *RawMetadata) Metadata {
	if m == nil {
		return Metadata{Channels: 1}
	}
	channels := m.Channels
	if channels == 0 {
		channels = 1
	}
	return Metadata{
		Duration:  m.Duration,
		Channels:  channels,
		RequestID: m.RequestID,
		Model:     maps.Clone(m.ModelInfo),
	}
}

func buildSummary(s *RawSummary) string {
	if s == nil {
		return ""
	}
	if short := strings.TrimSpace(s.Short); short != "" {
		return short
	}
	return strings.TrimSpace(s.Result)
}

func buildEntities(results *RawEntities, alt []RawEntity) []Entity {
	src := alt
	if results != nil && results.Entities != nil {
		src = results.Entities
	}
	out := make([]Entity, len(src))
	for i, e := range src {
		out[i] = Entity{
			Label:      e.Label,
			Value:      e.Value,
			Confidence: e.Confidence,
			StartWord:  e.StartWord,
			EndWord:    e.EndWord,
		}
	}
	return out
}

func buildTopics(src *RawTopics, words []Word) []Topic {
	out := make([]Topic, 0)
	if src == nil {
		return out
	}
	for _, seg := range src.Segments {
		var start, end float64
		if seg.StartWord >= 0 && seg.StartWord < len(words) {
			start = words[seg.StartWord].Start
		}
		if last := min(seg.EndWord, len(words)-1); last >= 0 {
			end = words[last].End
		}
		for _, tp := range seg.Topics {
			conf := tp.Confidence
			if conf == 0 {
				conf = tp.ConfidenceScore
			}
			out = append(out, Topic{
				Topic:      tp.Topic,
				Confidence: conf,
				StartWord:  seg.StartWord,
				EndWord:    seg.EndWord,
				Start:      start,
				End:        end,
			})
		}
	}
	return out
}

func sameSpeaker(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneSpeaker(s *int) *int {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
