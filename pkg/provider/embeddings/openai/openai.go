// Package openai embeds text with the OpenAI embeddings endpoint or any
// server that mirrors it.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/transcriptqa/pkg/provider/embeddings"
)

// DefaultModel is used when New receives an empty model.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// maxInputs is the largest input array one request may carry.
const maxInputs = 2048

var _ embeddings.Provider = (*Provider)(nil)

// Provider implements [embeddings.Provider].
type Provider struct {
	client oai.Client
	model  string
	dims   int
}

type settings struct {
	requestOpts []option.RequestOption
	dims        int
}

// Option configures a Provider.
type Option func(*settings)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.requestOpts = append(s.requestOpts, option.WithBaseURL(url)) }
}

// WithHTTPClient replaces the SDK's HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.requestOpts = append(s.requestOpts, option.WithHTTPClient(c)) }
}

// WithMaxRetries overrides the SDK's retry count for throttled or failed
// requests.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.requestOpts = append(s.requestOpts, option.WithMaxRetries(n)) }
}

// WithDimensions shortens text-embedding-3 vectors to n components.
func WithDimensions(n int) Option {
	return func(s *settings) { s.dims = n }
}

// New returns a Provider for model, or [DefaultModel] when model is empty.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai embeddings: api key must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	s := settings{requestOpts: []option.RequestOption{option.WithAPIKey(apiKey)}}
	for _, o := range opts {
		o(&s)
	}
	if s.dims < 0 {
		return nil, fmt.Errorf("openai embeddings: dimensions %d must not be negative", s.dims)
	}
	return &Provider{client: oai.NewClient(s.requestOpts...), model: model, dims: s.dims}, nil
}

// Model returns the model name, suffixed with "@n" when vectors are
// shortened since shortened vectors are not comparable with full ones.
func (p *Provider) Model() string {
	if p.dims > 0 {
		return fmt.Sprintf("%s@%d", p.model, p.dims)
	}
	return p.model
}

// Embed splits texts into requests of at most 2048 inputs.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += maxInputs {
		hi := min(lo+maxInputs, len(texts))
		vecs, err := p.request(ctx, texts[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("openai embeddings: inputs %d-%d: %w", lo, hi-1, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *Provider) request(ctx context.Context, texts []string) ([][]float32, error) {
	params := oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if p.dims > 0 {
		params.Dimensions = param.NewOpt(int64(p.dims))
	}
	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("got %d vectors for %d texts", len(resp.Data), len(texts))
	}

	// The endpoint does not promise response order; index is authoritative.
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		i := int(d.Index)
		if i < 0 || i >= len(vecs) || vecs[i] != nil {
			return nil, fmt.Errorf("bad vector index %d", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			vec[j] = float32(x)
		}
		vecs[i] = vec
	}
	return vecs, nil
}
