// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider transcribes one complete recording and returns the backend's raw
// response document. The transcript package parses that document with
// [transcript.Parse], so a provider must return the diarized, paragraph-aware
// JSON shape produced by Deepgram's pre-recorded API.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"io"
)

// Keyword is a vocabulary hint that raises the recognition probability of an
// uncommon word such as a proper noun.
type Keyword struct {
	// Keyword is the word or phrase to boost.
	Keyword string

	// Boost is the intensity. Typical values are 1 to 10; negative values
	// suppress the word.
	Boost float64
}

// Request describes the recording handed to [Provider.Transcribe].
type Request struct {
	// ContentType is the MIME type of the audio, e.g. "audio/mp4". Empty lets
	// the backend sniff the format.
	ContentType string

	// Language is the BCP-47 language tag, e.g. "en". Empty uses the
	// provider's default.
	Language string

	// Keywords are recognition hints.
	Keywords []Keyword
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe uploads audio and returns the raw response document. It
	// blocks until the backend has transcribed the whole recording or ctx is
	// done.
	Transcribe(ctx context.Context, audio io.Reader, req Request) ([]byte, error)
}
