// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Response: []byte(`{"results": ...}`)}
//	raw, _ := p.Transcribe(ctx, audio, stt.Request{})
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/transcriptqa/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Audio is everything read from the audio reader.
	Audio []byte
	Req   stt.Request
}

// Provider is a mock implementation of stt.Provider. The audio reader is
// drained on every call.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Transcribe.
	Response []byte

	// Err, if non-nil, is returned from Transcribe.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Response or Err.
func (p *Provider) Transcribe(_ context.Context, audio io.Reader, req stt.Request) ([]byte, error) {
	data, readErr := io.ReadAll(audio)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, TranscribeCall{Audio: data, Req: req})
	if readErr != nil {
		return nil, readErr
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Response, nil
}

// CallCount returns the number of Transcribe calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ stt.Provider = (*Provider)(nil)
