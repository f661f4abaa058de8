// Package transcript turns a raw diarized transcription into the structured,
// immutable transcript every read path of the explorer works on.
//
// The raw input is the JSON document of a Deepgram pre-recorded request made
// with diarize, paragraphs, detect_entities, topics and summarize enabled.
// [Parse] decodes it into the [Raw] schema and [Build] validates the required
// structure and derives the [Transcript]:
//
//   - words in time order, each with its punctuated form and speaker id
//     (nil when diarization did not assign one);
//   - paragraphs taken from the upstream paragraph boundaries, or grouped from
//     the words by speaker and silence gap when the upstream step produced
//     none;
//   - sentences split at terminal punctuation when a paragraph carries none;
//   - entities and topics carried over, anchored to word index ranges;
//   - the sorted speaker roster.
//
// Paragraphs partition the recording: the first starts at 0, each ends where
// the next begins and the last ends at the recording duration. Their word
// ranges are contiguous and cover every word.
//
// A built [Transcript] is never mutated. It is shared by reference between
// concurrent readers without locking.
package transcript

import (
	"fmt"
	"slices"
	"strings"
)

// Word is a single recognised token.
type Word struct {
	Word           string  `json:"word"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Confidence     float64 `json:"confidence"`
	Speaker        *int    `json:"speaker"`
	PunctuatedWord string  `json:"punctuated_word"`
}

// Sentence is a run of words collapsed to text plus its time span.
type Sentence struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Paragraph is the unit of search, retrieval and display.
type Paragraph struct {
	// Speaker is nil for unassigned speech or cross-talk.
	Speaker   *int       `json:"speaker"`
	Start     float64    `json:"start"`
	End       float64    `json:"end"`
	NumWords  int        `json:"num_words"`
	Text      string     `json:"text"`
	Sentences []Sentence `json:"sentences"`

	// FirstWord and LastWord delimit the half-open range of indices into
	// Transcript.Words covered by this paragraph.
	FirstWord int `json:"first_word"`
	LastWord  int `json:"last_word"`
}

// Entity is a named entity detected upstream.
type Entity struct {
	Label      string  `json:"label"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	StartWord  int     `json:"start_word"`
	EndWord    int     `json:"end_word"`
}

// Topic is a topic label detected upstream for a span of words. Start and End
// are the seconds covered by that span.
type Topic struct {
	Topic      string  `json:"topic"`
	Confidence float64 `json:"confidence"`
	StartWord  int     `json:"start_word"`
	EndWord    int     `json:"end_word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
}

// ModelInfo describes one model used by the transcription service.
type ModelInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Arch    string `json:"arch"`
}

// Metadata describes the recording and the transcription request.
type Metadata struct {
	Duration  float64              `json:"duration"`
	Channels  int                  `json:"channels"`
	RequestID string               `json:"request_id,omitempty"`
	Model     map[string]ModelInfo `json:"model"`
}

// Transcript is the structured, read-only transcript of one recording.
type Transcript struct {
	Metadata       Metadata    `json:"metadata"`
	Summary        string      `json:"summary"`
	Topics         []Topic     `json:"topics"`
	Entities       []Entity    `json:"entities"`
	Speakers       []int       `json:"speakers"`
	Paragraphs     []Paragraph `json:"paragraphs"`
	Words          []Word      `json:"words"`
	FullTranscript string      `json:"full_transcript"`
}

// Empty reports whether t has no paragraphs. A nil Transcript is empty.
func (t *Transcript) Empty() bool {
	return t == nil || len(t.Paragraphs) == 0
}

// UniqueEntities returns the entities deduplicated by case-insensitive value,
// keeping the first occurrence of each, in transcript order.
func (t *Transcript) UniqueEntities() []Entity {
	seen := make(map[string]struct{}, len(t.Entities))
	out := make([]Entity, 0, len(t.Entities))
	for _, e := range t.Entities {
		key := strings.ToLower(strings.TrimSpace(e.Value))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

// ParagraphAt returns the paragraph containing second sec, or -1 when t is
// empty. Times past the end map to the last paragraph.
func (t *Transcript) ParagraphAt(sec float64) int {
	if t.Empty() {
		return -1
	}
	i, _ := slices.BinarySearchFunc(t.Paragraphs, sec, func(p Paragraph, s float64) int {
		switch {
		case p.End <= s:
			return -1
		case p.Start > s:
			return 1
		default:
			return 0
		}
	})
	return min(i, len(t.Paragraphs)-1)
}

// Stats summarises the size of a transcript.
type Stats struct {
	Duration   float64
	Paragraphs int
	Words      int
	Speakers   int
	Entities   int
	Topics     int
}

// Stats returns counts describing t.
func (t *Transcript) Stats() Stats {
	return Stats{
		Duration:   t.Metadata.Duration,
		Paragraphs: len(t.Paragraphs),
		Words:      len(t.Words),
		Speakers:   len(t.Speakers),
		Entities:   len(t.UniqueEntities()),
		Topics:     len(t.Topics),
	}
}

// FormatTimestamp renders sec as minutes and zero-padded seconds ("m:ss").
// Minutes are not wrapped into hours, so 3725s is "62:05".
func FormatTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	s := int(sec)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
