// Package summary generates and stores the detailed, table-of-contents style
// summary of a transcript.
//
// The summary is produced once by a language model from the whole transcript
// rendered as "[m:ss] Name: text" lines, saved as JSON next to the transcript
// and served read-only afterwards.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/transcriptqa/internal/speaker"
	"github.com/MrWong99/transcriptqa/internal/transcript"
	"github.com/MrWong99/transcriptqa/pkg/provider/llm"
)

const (
	// DefaultMaxChars caps the rendered transcript sent to the model.
	DefaultMaxChars = 600_000

	// DefaultMaxTokens caps the generated summary.
	DefaultMaxTokens = 16_000

	// TruncationMarker is appended when the rendered transcript was cut.
	TruncationMarker = "\n\n[TRANSCRIPT TRUNCATED]"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("summary: empty response from model")

// ErrTruncated is returned when the model hit its token limit before closing
// the JSON document.
var ErrTruncated = errors.New("summary: reply cut off by the token limit")

// Detailed is the table-of-contents summary of a transcript.
type Detailed struct {
	Headline   string      `json:"headline"`
	Overview   string      `json:"overview"`
	Sections   []Section   `json:"sections"`
	KeyFigures []KeyFigure `json:"key_figures_mentioned"`
	KeyThemes  []string    `json:"key_themes"`
}

// Section is one topical segment of the conversation. Timestamps are
// approximate "m:ss" strings chosen by the model.
type Section struct {
	Title            string   `json:"title"`
	TimestampStart   string   `json:"timestamp_start"`
	TimestampEnd     string   `json:"timestamp_end"`
	Summary          string   `json:"summary"`
	KeyPoints        []string `json:"key_points"`
	SpeakersInvolved []string `json:"speakers_involved"`
}

// KeyFigure is a person referenced in the conversation.
type KeyFigure struct {
	Name    string `json:"name"`
	Context string `json:"context"`
}

// SystemPrompt instructs the model to produce a [Detailed] JSON object.
const SystemPrompt = `You are an expert analyst creating a detailed table of contents and summary for the transcript of an audio recording.

Produce a JSON object with this exact structure:
{
  "headline": "A single headline summarizing the entire conversation",
  "overview": "A 2-3 paragraph executive summary covering the key themes, context, and significance",
  "sections": [
    {
      "title": "Section title",
      "timestamp_start": "approximate start time like '0:00'",
      "timestamp_end": "approximate end time like '12:30'",
      "summary": "2-4 sentence summary of this section",
      "key_points": ["bullet point 1", "bullet point 2"],
      "speakers_involved": ["Name 1", "Name 2"]
    }
  ],
  "key_figures_mentioned": [
    {"name": "Person Name", "context": "Brief description of how they are referenced"}
  ],
  "key_themes": ["theme 1", "theme 2"]
}

Break the conversation into 8-15 logical sections based on topic shifts. Be thorough and specific: include names, places, and concrete details from the conversation. Do not editorialize or add moral judgments. Reply with the JSON object only.`

// Option is a functional option for [Generate].
type Option func(*config)

type config struct {
	names     *speaker.Directory
	maxChars  int
	maxTokens int
}

// WithNames resolves speaker ids to display names.
func WithNames(d *speaker.Directory) Option {
	return func(c *config) { c.names = d }
}

// WithMaxChars overrides [DefaultMaxChars]. Non-positive values are ignored.
func WithMaxChars(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxChars = n
		}
	}
}

// WithMaxTokens overrides [DefaultMaxTokens]. Non-positive values are ignored.
func WithMaxTokens(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// Render formats every paragraph of t as "[m:ss] Name: text", one per line,
// cut to maxChars runes with [TruncationMarker] appended when longer.
func Render(t *transcript.Transcript, names *speaker.Directory, maxChars int) string {
	var sb strings.Builder
	for i, p := range t.Paragraphs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "[%s] %s: %s", transcript.FormatTimestamp(p.Start), names.Name(p.Speaker), p.Text)
	}
	text := sb.String()
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	n := 0
	for i := range text {
		if n == maxChars {
			return text[:i] + TruncationMarker
		}
		n++
	}
	return text
}

// Generate asks p for the detailed summary of t. The model is called once.
func Generate(ctx context.Context, p llm.Provider, t *transcript.Transcript, opts ...Option) (*Detailed, error) {
	if t.Empty() {
		return nil, errors.New("summary: transcript has no paragraphs")
	}
	cfg := config{maxChars: DefaultMaxChars, maxTokens: DefaultMaxTokens}
	for _, o := range opts {
		o(&cfg)
	}

	resp, err := p.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: SystemPrompt,
		Messages: []llm.Message{{
			Role:    "user",
			Content: "Here is the full transcript:\n\n" + Render(t, cfg.names, cfg.maxChars),
		}},
		MaxTokens: cfg.maxTokens,
		JSONMode:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("summary: generate: %w", err)
	}
	if resp == nil {
		return nil, ErrEmptyResponse
	}
	if resp.Truncated() {
		return nil, fmt.Errorf("%w (max_tokens %d)", ErrTruncated, cfg.maxTokens)
	}
	return Parse(resp.Content)
}

// Parse decodes a model reply into a [Detailed]. A surrounding Markdown code
// fence is tolerated.
func Parse(text string) (*Detailed, error) {
	text = stripFence(strings.TrimSpace(text))
	if text == "" {
		return nil, ErrEmptyResponse
	}
	var d Detailed
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return nil, fmt.Errorf("summary: decode model reply: %w", err)
	}
	return &d, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an info string such as "json".
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// LoadFile reads a summary saved by [SaveFile].
func LoadFile(path string) (*Detailed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	var d Detailed
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("summary: decode %s: %w", path, err)
	}
	return &d, nil
}

// SaveFile atomically writes d to path as indented JSON.
func SaveFile(path string, d *Detailed) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("summary: encode: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("summary: write %s: %w", path, err)
	}
	tmp := f.Name()
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("summary: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("summary: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("summary: write %s: %w", path, err)
	}
	return nil
}
