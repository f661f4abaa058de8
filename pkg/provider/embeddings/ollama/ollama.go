// Package ollama embeds text with a local Ollama server through its
// /api/embed endpoint.
//
//	p, err := ollama.New("", "nomic-embed-text") // http://localhost:11434
//	vecs, err := p.Embed(ctx, []string{"search_document: [Host] Welcome back."})
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/transcriptqa/pkg/provider/embeddings"
)

// DefaultBaseURL is where a stock Ollama install listens.
const DefaultBaseURL = "http://localhost:11434"

var _ embeddings.Provider = (*Provider)(nil)

// APIError is returned when the server answers with a non-200 status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ollama: status %d", e.StatusCode)
	}
	return fmt.Sprintf("ollama: status %d: %s", e.StatusCode, e.Message)
}

// Provider implements [embeddings.Provider] against one Ollama model.
type Provider struct {
	endpoint  string
	model     string
	keepAlive string
	truncate  *bool
	client    *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithTimeout bounds each request. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client = &http.Client{Timeout: d} }
}

// WithKeepAlive sets how long the server keeps the model loaded after a
// request, in Ollama duration syntax ("5m", "-1").
func WithKeepAlive(d string) Option {
	return func(p *Provider) { p.keepAlive = d }
}

// WithoutTruncate makes the server reject paragraphs longer than the model's
// context instead of cutting them.
func WithoutTruncate() Option {
	return func(p *Provider) {
		off := false
		p.truncate = &off
	}
}

// New returns a Provider for model. An empty baseURL means [DefaultBaseURL].
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("ollama: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Provider{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/embed",
		model:    model,
		client:   http.DefaultClient,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Model returns the Ollama model name.
func (p *Provider) Model() string { return p.model }

type embedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	Truncate  *bool    `json:"truncate,omitempty"`
	KeepAlive string   `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error"`
}

// Embed sends texts in a single request.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embedRequest{
		Model:     p.model,
		Input:     texts,
		Truncate:  p.truncate,
		KeepAlive: p.keepAlive,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		var out embedResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &out) == nil && out.Error != "" {
			msg = out.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: got %d vectors for %d texts", len(out.Embeddings), len(texts))
	}
	dims := len(out.Embeddings[0])
	for i, v := range out.Embeddings {
		if len(v) == 0 || len(v) != dims {
			return nil, fmt.Errorf("ollama: vector %d has %d dimensions, want %d", i, len(v), dims)
		}
	}
	return out.Embeddings, nil
}
