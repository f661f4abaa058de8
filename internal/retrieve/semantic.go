package retrieve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/transcriptqa/internal/observe"
	"github.com/MrWong99/transcriptqa/internal/speaker"
	"github.com/MrWong99/transcriptqa/internal/transcript"
	"github.com/MrWong99/transcriptqa/pkg/provider/embeddings"
)

const (
	defaultBatchSize   = 64
	defaultConcurrency = 4
)

// SemanticOption is a functional option for [NewSemantic].
type SemanticOption func(*semanticConfig)

type semanticConfig struct {
	cachePath      string
	batchSize      int
	concurrency    int
	documentPrefix string
	queryPrefix    string
	providerName   string
}

// WithCachePath loads paragraph vectors from path when they match the model
// and transcript, and writes freshly computed vectors there.
func WithCachePath(path string) SemanticOption {
	return func(c *semanticConfig) { c.cachePath = path }
}

// WithBatchSize sets how many paragraphs are sent per embedding request.
// Non-positive values are ignored.
func WithBatchSize(n int) SemanticOption {
	return func(c *semanticConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithConcurrency caps the number of embedding requests in flight.
// Non-positive values are ignored.
func WithConcurrency(n int) SemanticOption {
	return func(c *semanticConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithPrefixes sets the task prefixes some embedding models expect, e.g.
// "search_document: " and "search_query: " for nomic-embed-text.
func WithPrefixes(document, query string) SemanticOption {
	return func(c *semanticConfig) {
		c.documentPrefix = document
		c.queryPrefix = query
	}
}

// WithProviderName labels provider metrics. Defaults to "embeddings".
func WithProviderName(name string) SemanticOption {
	return func(c *semanticConfig) { c.providerName = name }
}

// Semantic scores paragraphs by cosine similarity between their embedding
// and the question's. It implements [Scorer].
type Semantic struct {
	provider     embeddings.Provider
	providerName string
	queryPrefix  string
	vectors      [][]float32
	metrics      *observe.Metrics
}

// NewSemantic embeds every paragraph of t as "[Name] text", with names
// resolving speaker ids. Vectors are read from the cache when it matches the
// provider's model and the paragraph count; otherwise they are computed in
// batches and the cache is rewritten. A failure to write the cache is logged,
// not returned.
func NewSemantic(ctx context.Context, t *transcript.Transcript, names *speaker.Directory, p embeddings.Provider, opts ...SemanticOption) (*Semantic, error) {
	if p == nil {
		return nil, errors.New("retrieve: semantic: embeddings provider is nil")
	}
	if t == nil {
		t = &transcript.Transcript{}
	}
	cfg := semanticConfig{
		batchSize:    defaultBatchSize,
		concurrency:  defaultConcurrency,
		providerName: "embeddings",
	}
	for _, o := range opts {
		o(&cfg)
	}

	s := &Semantic{
		provider:     p,
		providerName: cfg.providerName,
		queryPrefix:  cfg.queryPrefix,
		metrics:      observe.DefaultMetrics(),
	}

	model := p.Model()
	if cfg.cachePath != "" {
		vectors, err := LoadVectors(cfg.cachePath, model, len(t.Paragraphs))
		switch {
		case err == nil:
			slog.Info("paragraph embeddings loaded from cache", "path", cfg.cachePath, "model", model, "count", len(vectors))
			s.vectors = vectors
			return s, nil
		case errors.Is(err, os.ErrNotExist):
		default:
			slog.Warn("ignoring paragraph embeddings cache", "path", cfg.cachePath, "err", err)
		}
	}

	texts := make([]string, len(t.Paragraphs))
	for i, para := range t.Paragraphs {
		texts[i] = cfg.documentPrefix + "[" + names.Name(para.Speaker) + "] " + para.Text
	}

	vectors, err := s.embedAll(ctx, texts, cfg.batchSize, cfg.concurrency)
	if err != nil {
		return nil, err
	}
	s.vectors = vectors

	if cfg.cachePath != "" {
		if err := SaveVectors(cfg.cachePath, model, vectors); err != nil {
			slog.Warn("failed to write paragraph embeddings cache", "path", cfg.cachePath, "err", err)
		} else {
			slog.Info("paragraph embeddings cached", "path", cfg.cachePath, "model", model, "count", len(vectors))
		}
	}
	return s, nil
}

// embedAll embeds texts in batches with at most concurrency requests in
// flight. Each batch writes its own slice window, so no locking is needed.
func (s *Semantic) embedAll(ctx context.Context, texts []string, batchSize, concurrency int) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)

	for lo := 0; lo < len(texts); lo += batchSize {
		hi := min(lo+batchSize, len(texts))
		eg.Go(func() error {
			start := time.Now()
			batch, err := s.provider.Embed(egCtx, texts[lo:hi])
			s.metrics.EmbeddingDuration.Record(egCtx, time.Since(start).Seconds())
			if err != nil {
				s.metrics.RecordProviderRequest(egCtx, s.providerName, "embeddings", "error")
				s.metrics.RecordProviderError(egCtx, s.providerName, "embeddings")
				return fmt.Errorf("retrieve: embed paragraphs %d-%d: %w", lo, hi-1, err)
			}
			s.metrics.RecordProviderRequest(egCtx, s.providerName, "embeddings", "ok")
			if len(batch) != hi-lo {
				return fmt.Errorf("retrieve: embed paragraphs %d-%d: got %d vectors, want %d", lo, hi-1, len(batch), hi-lo)
			}
			copy(vectors[lo:hi], batch)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Len returns the number of paragraph vectors.
func (s *Semantic) Len() int { return len(s.vectors) }

// Similarities embeds question and returns its cosine similarity to every
// paragraph.
func (s *Semantic) Similarities(ctx context.Context, question string) ([]float64, error) {
	start := time.Now()
	q, err := embeddings.EmbedOne(ctx, s.provider, s.queryPrefix+question)
	s.metrics.EmbeddingDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, s.providerName, "embeddings", "error")
		s.metrics.RecordProviderError(ctx, s.providerName, "embeddings")
		return nil, fmt.Errorf("retrieve: embed question: %w", err)
	}
	s.metrics.RecordProviderRequest(ctx, s.providerName, "embeddings", "ok")

	out := make([]float64, len(s.vectors))
	for i, v := range s.vectors {
		out[i] = embeddings.Cosine(q, v)
	}
	return out, nil
}

// vectorCache is the on-disk form of the paragraph vectors.
type vectorCache struct {
	Model   string      `json:"model"`
	Count   int         `json:"count"`
	Vectors [][]float32 `json:"vectors"`
}

// LoadVectors reads paragraph vectors from path and checks they were computed
// by model for count paragraphs. A bare JSON array of vectors carries no
// model and is accepted when its length matches count.
func LoadVectors(path, model string, count int) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var vectors [][]float32
		if err := json.Unmarshal(trimmed, &vectors); err != nil {
			return nil, fmt.Errorf("retrieve: decode %s: %w", path, err)
		}
		if len(vectors) != count {
			return nil, fmt.Errorf("retrieve: %s holds %d vectors, transcript has %d paragraphs", path, len(vectors), count)
		}
		return vectors, nil
	}

	var c vectorCache
	if err := json.Unmarshal(trimmed, &c); err != nil {
		return nil, fmt.Errorf("retrieve: decode %s: %w", path, err)
	}
	if c.Model != model {
		return nil, fmt.Errorf("retrieve: %s was computed by model %q, want %q", path, c.Model, model)
	}
	if c.Count != count || len(c.Vectors) != count {
		return nil, fmt.Errorf("retrieve: %s holds %d vectors, transcript has %d paragraphs", path, len(c.Vectors), count)
	}
	return c.Vectors, nil
}

// SaveVectors atomically writes vectors computed by model to path.
func SaveVectors(path, model string, vectors [][]float32) error {
	data, err := json.Marshal(vectorCache{Model: model, Count: len(vectors), Vectors: vectors})
	if err != nil {
		return fmt.Errorf("retrieve: encode vectors: %w", err)
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("retrieve: write %s: %w", path, err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("retrieve: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("retrieve: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("retrieve: write %s: %w", path, err)
	}
	return nil
}

var _ Scorer = (*Semantic)(nil)
