// Package openai answers questions through the OpenAI chat completions API or
// any server speaking it (vLLM, LM Studio, OpenRouter, ...).
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/transcriptqa/pkg/provider/llm"
)

// Provider implements [llm.Provider].
type Provider struct {
	client oai.Client
	model  string
	caps   llm.ModelCapabilities
}

var _ llm.Provider = (*Provider)(nil)

// Option configures [New].
type Option func(*settings)

type settings struct {
	requestOpts []option.RequestOption
	caps        *llm.ModelCapabilities
}

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.requestOpts = append(s.requestOpts, option.WithBaseURL(url)) }
}

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(s *settings) { s.requestOpts = append(s.requestOpts, option.WithOrganization(org)) }
}

// WithHTTPClient replaces the HTTP client, e.g. to set a transport timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.requestOpts = append(s.requestOpts, option.WithHTTPClient(c)) }
}

// WithCapabilities overrides the token limits looked up by model name, for
// self-hosted models served under custom names.
func WithCapabilities(c llm.ModelCapabilities) Option {
	return func(s *settings) { s.caps = &c }
}

// New returns a Provider for model. The client never retries: a question
// reaches the model at most once.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	s := settings{requestOpts: []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}}
	for _, o := range opts {
		o(&s)
	}

	p := &Provider{
		client: oai.NewClient(s.requestOpts...),
		model:  model,
		caps:   llm.CapabilitiesFor(model),
	}
	if s.caps != nil {
		p.caps = *s.caps
	}
	return p, nil
}

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: %s: %w", p.model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %s: response has no choices", p.model)
	}
	choice := resp.Choices[0]
	return &llm.CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Capabilities implements [llm.Provider].
func (p *Provider) Capabilities() llm.ModelCapabilities { return p.caps }

func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, oai.SystemMessage(m.Content))
		case "user":
			msgs = append(msgs, oai.UserMessage(m.Content))
		case "assistant":
			msgs = append(msgs, oai.AssistantMessage(m.Content))
		default:
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: msgs,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.JSONMode {
		params.ResponseFormat.OfJSONObject = &shared.ResponseFormatJSONObjectParam{}
	}
	return params, nil
}
