// Package anyllm answers questions through github.com/mozilla-ai/any-llm-go,
// which puts Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq and local
// llama.cpp servers behind one completion API.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/transcriptqa/pkg/provider/llm"
)

// backends maps a provider name to its any-llm-go constructor.
var backends = map[string]func(...anyllmlib.Option) (anyllmlib.Provider, error){
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) },
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) },
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) },
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
}

// Backends returns the provider names accepted by [New], sorted.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Provider implements [llm.Provider].
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New returns a Provider for model on the named backend. opts are any-llm-go
// options such as [anyllmlib.WithAPIKey] and [anyllmlib.WithBaseURL]; without
// a key the backend reads its usual environment variable
// (ANTHROPIC_API_KEY, GEMINI_API_KEY, ...).
func New(backend, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	name := strings.ToLower(backend)
	newBackend, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q (supported: %s)", backend, strings.Join(Backends(), ", "))
	}
	b, err := newBackend(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", name, err)
	}
	return &Provider{backend: b, name: name, model: model}, nil
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s/%s: %w", p.name, p.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s/%s: response has no choices", p.name, p.model)
	}
	choice := resp.Choices[0]
	out := &llm.CompletionResponse{
		Content:      choice.Message.ContentString(),
		FinishReason: string(choice.FinishReason),
	}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

// Capabilities implements [llm.Provider].
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return llm.CapabilitiesFor(p.model)
}

func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: make([]anyllmlib.Message, 0, len(req.Messages)+1),
	}
	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, anyllmlib.Message{Role: m.Role, Content: m.Content, Name: m.Name})
	}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params
}
