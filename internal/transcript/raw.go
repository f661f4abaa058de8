package transcript

import (
	"encoding/json"
	"fmt"
	"io"
)

// Raw is the subset of a Deepgram pre-recorded response the builder reads.
// Pointer and slice fields distinguish an absent field (nil) from an empty
// one.
type Raw struct {
	Metadata *RawMetadata `json:"metadata"`
	Results  *RawResults  `json:"results"`
}

// RawMetadata is the response metadata block.
type RawMetadata struct {
	RequestID string               `json:"request_id"`
	Duration  float64              `json:"duration"`
	Channels  int                  `json:"channels"`
	ModelInfo map[string]ModelInfo `json:"model_info"`
}

// RawResults is the response results block.
type RawResults struct {
	Channels []RawChannel `json:"channels"`
	Summary  *RawSummary  `json:"summary"`
	Topics   *RawTopics   `json:"topics"`
	Entities *RawEntities `json:"entities"`
}

// RawChannel is one audio channel.
type RawChannel struct {
	Alternatives []RawAlternative `json:"alternatives"`
}

// RawAlternative is one transcription hypothesis for a channel.
type RawAlternative struct {
	Transcript string         `json:"transcript"`
	Confidence float64        `json:"confidence"`
	Words      []RawWord      `json:"words"`
	Paragraphs *RawParagraphs `json:"paragraphs"`
	Entities   []RawEntity    `json:"entities"`
}

// RawWord is a recognised word with optional diarization.
type RawWord struct {
	Word           string  `json:"word"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Confidence     float64 `json:"confidence"`
	Speaker        *int    `json:"speaker"`
	PunctuatedWord string  `json:"punctuated_word"`
}

// RawParagraphs holds the upstream paragraph segmentation.
type RawParagraphs struct {
	Transcript string         `json:"transcript"`
	Paragraphs []RawParagraph `json:"paragraphs"`
}

// RawParagraph is one upstream paragraph.
type RawParagraph struct {
	Sentences []Sentence `json:"sentences"`
	Speaker   *int       `json:"speaker"`
	NumWords  int        `json:"num_words"`
	Start     float64    `json:"start"`
	End       float64    `json:"end"`
}

// RawSummary is the summarize=v2 output.
type RawSummary struct {
	Result string `json:"result"`
	Short  string `json:"short"`
}

// RawTopics is the topics output.
type RawTopics struct {
	Segments []RawTopicSegment `json:"segments"`
}

// RawTopicSegment is a word span with its detected topics. EndWord is
// inclusive.
type RawTopicSegment struct {
	Text      string     `json:"text"`
	StartWord int        `json:"start_word"`
	EndWord   int        `json:"end_word"`
	Topics    []RawTopic `json:"topics"`
}

// RawTopic is a single topic label. Deepgram reports the score as
// confidence_score; older exports used confidence.
type RawTopic struct {
	Topic           string  `json:"topic"`
	Confidence      float64 `json:"confidence"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// RawEntities is the detect_entities output at results level.
type RawEntities struct {
	Entities []RawEntity `json:"entities"`
}

// RawEntity is one detected entity.
type RawEntity struct {
	Label      string  `json:"label"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	StartWord  int     `json:"start_word"`
	EndWord    int     `json:"end_word"`
}

// Parse decodes a raw transcription document. Syntax and type errors are
// reported as [*MalformedInputError]; structural checks happen in [Build].
func Parse(r io.Reader) (*Raw, error) {
	var raw Raw
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, &MalformedInputError{Field: "document", Err: fmt.Errorf("decode: %w", err)}
	}
	return &raw, nil
}
