package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// LoadFile reads a raw transcription document from path and builds it.
func LoadFile(path string, opts ...BuildOption) (*Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: open raw: %w", err)
	}
	defer f.Close()

	raw, err := Parse(f)
	if err != nil {
		return nil, err
	}
	return Build(raw, opts...)
}

// LoadStructured decodes a structured transcript previously written by
// [SaveStructured] and checks it with [Validate].
func LoadStructured(r io.Reader) (*Transcript, error) {
	var t Transcript
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("transcript: decode structured: %w", err)
	}
	if err := Validate(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadStructuredFile is [LoadStructured] for a file path.
func LoadStructuredFile(path string) (*Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: open structured: %w", err)
	}
	defer f.Close()
	return LoadStructured(f)
}

// SaveStructured writes t as indented JSON.
func SaveStructured(w io.Writer, t *Transcript) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("transcript: encode structured: %w", err)
	}
	return nil
}

// SaveStructuredFile writes t to path, replacing the file atomically.
func SaveStructuredFile(path string, t *Transcript) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".transcript-*.json")
	if err != nil {
		return fmt.Errorf("transcript: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := SaveStructured(tmp, t); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("transcript: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("transcript: rename: %w", err)
	}
	return nil
}

// Validate checks that the paragraphs of t partition the recording and that
// their word ranges tile the word list. All violations are joined.
func Validate(t *Transcript) error {
	if t == nil {
		return errors.New("transcript: nil transcript")
	}
	var errs []error
	nextWord := 0
	for i, p := range t.Paragraphs {
		if i == 0 && p.Start != 0 {
			errs = append(errs, &ValidationError{Paragraph: i, Reason: fmt.Sprintf("first paragraph starts at %.3f, want 0", p.Start)})
		}
		if i > 0 && !approxEqual(p.Start, t.Paragraphs[i-1].End) {
			errs = append(errs, &ValidationError{Paragraph: i, Reason: fmt.Sprintf("starts at %.3f but previous ends at %.3f", p.Start, t.Paragraphs[i-1].End)})
		}
		if p.End < p.Start {
			errs = append(errs, &ValidationError{Paragraph: i, Reason: "ends before it starts"})
		}
		if p.FirstWord != nextWord || p.LastWord < p.FirstWord {
			errs = append(errs, &ValidationError{Paragraph: i, Reason: fmt.Sprintf("word range [%d,%d) does not continue at %d", p.FirstWord, p.LastWord, nextWord)})
		}
		nextWord = p.LastWord
	}
	if len(t.Paragraphs) > 0 && nextWord != len(t.Words) {
		errs = append(errs, fmt.Errorf("transcript: paragraphs cover %d of %d words", nextWord, len(t.Words)))
	}
	return errors.Join(errs...)
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= boundaryTolerance
}
