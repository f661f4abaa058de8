// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// pre-recorded REST API. It implements the stt.Provider interface.
//
// Every request asks for the features the transcript builder consumes:
// diarization, paragraphs, smart formatting, entity detection, topics and a
// short summary.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/transcriptqa/pkg/provider/stt"
)

const (
	defaultBaseURL  = "https://api.deepgram.com"
	defaultModel    = "nova-3"
	defaultLanguage = "en"

	// defaultTimeout covers the upload and transcription of a long recording.
	defaultTimeout = 10 * time.Minute

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 4 << 10
)

// APIError is returned when Deepgram answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deepgram: status %d: %s", e.StatusCode, e.Body)
}

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 language code for recognition.
// A non-empty [stt.Request.Language] takes precedence.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithBaseURL overrides the API endpoint, e.g. for a self-hosted deployment.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout sets the HTTP client timeout. Default: 10 minutes.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.client.Timeout = d
	}
}

// Provider implements stt.Provider backed by the Deepgram pre-recorded API.
type Provider struct {
	apiKey   string
	baseURL  string
	model    string
	language string
	client   *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		model:    defaultModel,
		language: defaultLanguage,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads audio and returns Deepgram's JSON response unchanged.
func (p *Provider) Transcribe(ctx context.Context, audio io.Reader, req stt.Request) ([]byte, error) {
	endpoint, err := p.buildURL(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, audio)
	if err != nil {
		return nil, fmt.Errorf("deepgram: new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+p.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("deepgram: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deepgram: read response: %w", err)
	}
	if !json.Valid(body) {
		return nil, errors.New("deepgram: response is not valid JSON")
	}
	return body, nil
}

// buildURL constructs the /v1/listen endpoint URL for req.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.baseURL + "/v1/listen")
	if err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	if lang != "" {
		q.Set("language", lang)
	}
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	q.Set("diarize", "true")
	q.Set("paragraphs", "true")
	q.Set("detect_entities", "true")
	q.Set("topics", "true")
	q.Set("summarize", "v2")

	for _, kw := range req.Keywords {
		// nova-3 takes plain key terms; older models take word:boost.
		if strings.HasPrefix(p.model, "nova-3") {
			q.Add("keyterm", kw.Keyword)
			continue
		}
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ stt.Provider = (*Provider)(nil)
