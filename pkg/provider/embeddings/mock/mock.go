// Package mock provides an in-memory [embeddings.Provider] for tests.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/transcriptqa/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider returns vectors from VectorFunc, or the canned Vectors when
// VectorFunc is nil. Every Embed call is recorded.
type Provider struct {
	// VectorFunc maps one text to its vector.
	VectorFunc func(text string) []float32

	// Vectors is returned as-is when VectorFunc is nil. A nil Vectors yields
	// one nil vector per text.
	Vectors [][]float32

	// Err fails every call.
	Err error

	// ModelName is returned by Model. Defaults to "mock".
	ModelName string

	mu    sync.Mutex
	calls [][]string
}

// Embed records texts and returns their vectors.
func (p *Provider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls = append(p.calls, slices.Clone(texts))
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	switch {
	case p.VectorFunc != nil:
		out := make([][]float32, len(texts))
		for i, t := range texts {
			out[i] = p.VectorFunc(t)
		}
		return out, nil
	case p.Vectors != nil:
		return p.Vectors, nil
	default:
		return make([][]float32, len(texts)), nil
	}
}

// Model returns ModelName.
func (p *Provider) Model() string {
	if p.ModelName == "" {
		return "mock"
	}
	return p.ModelName
}

// Calls returns the texts of every Embed call so far.
func (p *Provider) Calls() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}
