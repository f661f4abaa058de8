// Package answer turns a natural-language question into an answer grounded in
// transcript excerpts.
//
// The [Synthesizer] retrieves evidence paragraphs, renders them into a prompt
// and makes exactly one completion call under a timeout. The sources of an
// answer are exactly the paragraphs that were in the prompt, so every
// citation is a literal excerpt of the transcript.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/transcriptqa/internal/observe"
	"github.com/MrWong99/transcriptqa/internal/retrieve"
	"github.com/MrWong99/transcriptqa/internal/search"
	"github.com/MrWong99/transcriptqa/internal/speaker"
	"github.com/MrWong99/transcriptqa/internal/transcript"
	"github.com/MrWong99/transcriptqa/pkg/provider/llm"
)

const (
	// DefaultTimeout bounds the model call of one question.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxTokens caps the length of a generated answer.
	DefaultMaxTokens = 1000

	// DefaultExcerptChars is the number of runes of a paragraph kept in a
	// source citation.
	DefaultExcerptChars = 300

	// NoAnswer replaces an empty completion.
	NoAnswer = "No answer generated."

	// NoDataAnswer is returned without a model call when the transcript has
	// no paragraphs.
	NoDataAnswer = "The transcript is empty, so there is nothing to answer from."
)

// Source is one paragraph cited by an answer.
type Source struct {
	Index       int     `json:"index"`
	Text        string  `json:"text"`
	Speaker     *int    `json:"speaker"`
	SpeakerName string  `json:"speaker_name"`
	Start       float64 `json:"start"`
	Score       float64 `json:"score"`
}

// Answer is the reply to one question.
type Answer struct {
	Text          string   `json:"answer"`
	Sources       []Source `json:"sources"`
	LowConfidence bool     `json:"low_confidence"`
}

// Retriever selects evidence for a question. [*retrieve.Retriever]
// implements it.
type Retriever interface {
	Retrieve(ctx context.Context, question string) (*retrieve.Result, error)
}

// Option is a functional option for [New].
type Option func(*Synthesizer)

// WithTimeout overrides [DefaultTimeout]. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxTokens overrides [DefaultMaxTokens]. Non-positive values are ignored.
func WithMaxTokens(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature. Zero keeps the provider
// default.
func WithTemperature(t float64) Option {
	return func(s *Synthesizer) { s.temperature = t }
}

// WithExcerptChars overrides [DefaultExcerptChars]. Non-positive values are
// ignored.
func WithExcerptChars(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.excerptChars = n
		}
	}
}

// WithSummary controls whether the transcript summary leads the prompt.
// Enabled by default.
func WithSummary(include bool) Option {
	return func(s *Synthesizer) { s.includeSummary = include }
}

// WithNames resolves speaker ids to display names.
func WithNames(d *speaker.Directory) Option {
	return func(s *Synthesizer) { s.names = d }
}

// WithProviderName labels provider metrics. Defaults to "llm".
func WithProviderName(name string) Option {
	return func(s *Synthesizer) { s.providerName = name }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Synthesizer) { s.metrics = m }
}

// Synthesizer answers questions about one transcript. It is read-only after
// construction and safe for concurrent use.
type Synthesizer struct {
	t              *transcript.Transcript
	retriever      Retriever
	provider       llm.Provider
	names          *speaker.Directory
	timeout        time.Duration
	maxTokens      int
	temperature    float64
	excerptChars   int
	includeSummary bool
	providerName   string
	metrics        *observe.Metrics
}

// New returns a Synthesizer answering from t with evidence chosen by r and
// answers generated by provider.
func New(t *transcript.Transcript, r Retriever, provider llm.Provider, opts ...Option) *Synthesizer {
	if t == nil {
		t = &transcript.Transcript{}
	}
	s := &Synthesizer{
		t:              t,
		retriever:      r,
		provider:       provider,
		timeout:        DefaultTimeout,
		maxTokens:      DefaultMaxTokens,
		excerptChars:   DefaultExcerptChars,
		includeSummary: true,
		providerName:   "llm",
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if limit := provider.Capabilities().MaxOutputTokens; limit > 0 && s.maxTokens > limit {
		s.maxTokens = limit
	}
	return s
}

type completion struct {
	resp *llm.CompletionResponse
	err  error
}

// Ask answers question. It returns a [*search.InvalidQueryError] for an empty
// question and a [*UpstreamGenerationError] when the model fails or times
// out. An empty transcript yields [NoDataAnswer] without calling the model.
func (s *Synthesizer) Ask(ctx context.Context, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		s.metrics.RecordQuestion(ctx, observe.QuestionInvalid)
		return nil, &search.InvalidQueryError{Param: "question", Value: question, Reason: "must not be empty"}
	}
	if s.t.Empty() {
		s.metrics.RecordQuestion(ctx, observe.QuestionNoData)
		return &Answer{Text: NoDataAnswer, Sources: []Source{}, LowConfidence: true}, nil
	}

	ctx, span := observe.StartSpan(ctx, "answer.Ask")
	defer span.End()
	log := observe.Logger(ctx)

	res, err := s.retriever.Retrieve(ctx, question)
	if err != nil {
		observe.Fail(span, err)
		return nil, fmt.Errorf("answer: retrieve: %w", err)
	}
	if len(res.Evidence) == 0 {
		s.metrics.RecordQuestion(ctx, observe.QuestionNoData)
		return &Answer{Text: NoDataAnswer, Sources: []Source{}, LowConfidence: true}, nil
	}

	summary := ""
	if s.includeSummary {
		summary = s.t.Summary
	}
	evidence, req := s.fitPrompt(summary, res.Evidence, question)
	if dropped := len(res.Evidence) - len(evidence); dropped > 0 {
		log.Debug("evidence trimmed to fit the model context window", "dropped", dropped)
	}

	resp, err := s.complete(ctx, req)
	if err != nil {
		var upstream *UpstreamGenerationError
		switch {
		case errors.As(err, &upstream) && upstream.Timeout:
			s.metrics.RecordQuestion(ctx, observe.QuestionTimeout)
		default:
			s.metrics.RecordQuestion(ctx, observe.QuestionFailed)
		}
		observe.Fail(span, err)
		log.Warn("answer generation failed", "err", err, "evidence", len(evidence))
		return nil, err
	}

	text := NoAnswer
	if resp != nil && strings.TrimSpace(resp.Content) != "" {
		text = resp.Content
	}

	if resp.Truncated() {
		log.Warn("answer cut off at the token limit", "max_tokens", s.maxTokens)
	}

	sources := make([]Source, len(evidence))
	for i, e := range evidence {
		sources[i] = Source{
			Index:       e.Index,
			Text:        truncateRunes(e.Paragraph.Text, s.excerptChars),
			Speaker:     e.Paragraph.Speaker,
			SpeakerName: s.names.Name(e.Paragraph.Speaker),
			Start:       e.Paragraph.Start,
			Score:       e.Score,
		}
	}

	s.metrics.RecordQuestion(ctx, observe.QuestionAnswered)
	log.Info("question answered",
		"evidence", len(sources),
		"low_confidence", res.LowConfidence,
		"semantic", res.Semantic,
	)
	return &Answer{Text: text, Sources: sources, LowConfidence: res.LowConfidence}, nil
}

// fitPrompt builds the request for question, dropping the lowest-ranked
// evidence until the prompt and a reply of maxTokens fit the model's context
// window. The top paragraph is always kept. The returned evidence is exactly
// what the prompt contains.
func (s *Synthesizer) fitPrompt(summary string, evidence []retrieve.Evidence, question string) ([]retrieve.Evidence, llm.CompletionRequest) {
	budget := s.provider.Capabilities().PromptBudget(s.maxTokens)
	for {
		req := llm.CompletionRequest{
			SystemPrompt: SystemPrompt,
			Messages: []llm.Message{{
				Role:    "user",
				Content: BuildUserMessage(summary, evidence, s.names, question),
			}},
			MaxTokens:   s.maxTokens,
			Temperature: s.temperature,
		}
		if budget == 0 || len(evidence) <= 1 || promptTokens(req) <= budget {
			return evidence, req
		}
		evidence = evidence[:len(evidence)-1]
	}
}

func promptTokens(req llm.CompletionRequest) int {
	return llm.EstimateTokens(append([]llm.Message{{Role: "system", Content: req.SystemPrompt}}, req.Messages...))
}

// complete makes the single model call of a question. The call runs on its own
// goroutine so Ask returns when the deadline passes even if the provider does
// not honour cancellation; its late result is discarded.
func (s *Synthesizer) complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.metrics.InflightQuestions.Add(ctx, 1)
	defer s.metrics.InflightQuestions.Add(ctx, -1)

	start := time.Now()
	done := make(chan completion, 1)
	go func() {
		resp, err := s.provider.Complete(callCtx, req)
		done <- completion{resp: resp, err: err}
	}()

	var c completion
	select {
	case c = <-done:
	case <-callCtx.Done():
		c.err = callCtx.Err()
	}
	s.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())

	if c.err == nil {
		s.metrics.RecordProviderRequest(ctx, s.providerName, "llm", "ok")
		return c.resp, nil
	}
	s.metrics.RecordProviderRequest(ctx, s.providerName, "llm", "error")
	s.metrics.RecordProviderError(ctx, s.providerName, "llm")

	// The caller going away is not an upstream failure.
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(c.err, ctxErr) {
		return nil, ctxErr
	}
	if errors.Is(c.err, context.DeadlineExceeded) {
		return nil, &UpstreamGenerationError{Timeout: true, After: s.timeout, Err: c.err}
	}
	return nil, &UpstreamGenerationError{Err: c.err}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for j := range s {
		if i == n {
			return s[:j]
		}
		i++
	}
	return s
}
