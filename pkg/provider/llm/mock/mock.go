// Package mock is a recording [llm.Provider] for tests.
//
//	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Barak did."}}
//	... exercise the code under test ...
//	req := p.Calls()[0].Req
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/transcriptqa/pkg/provider/llm"
)

// CompleteCall is one recorded Complete invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider returns canned replies and records every request. Configure the
// exported fields before use; they are read under a lock.
type Provider struct {
	// CompleteResponse and CompleteErr are returned by Complete.
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	// CompleteFunc, when set, computes the reply instead. It runs without
	// the lock held, so it may block to simulate a slow model.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// ModelCapabilities is returned by Capabilities. The zero value means
	// an unknown window, which disables prompt fitting.
	ModelCapabilities llm.ModelCapabilities

	mu    sync.Mutex
	calls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, CompleteCall{Ctx: ctx, Req: req})
	fn, resp, err := p.CompleteFunc, p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return resp, err
}

// Capabilities implements [llm.Provider].
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompleteCall(nil), p.calls...)
}
