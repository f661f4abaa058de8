package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/transcriptqa/internal/answer"
	"github.com/MrWong99/transcriptqa/internal/retrieve"
	"github.com/MrWong99/transcriptqa/internal/search"
	"github.com/MrWong99/transcriptqa/internal/transcript"
)

const (
	// DefaultListenAddr is used when server.listen_addr is empty.
	DefaultListenAddr = ":8080"

	// DefaultShutdownTimeout is used when server.shutdown_timeout is zero.
	DefaultShutdownTimeout = 15 * time.Second
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
	"stt":        {"deepgram"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and validates
// the result. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field of cfg with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Transcript.GapThreshold == 0 {
		cfg.Transcript.GapThreshold = transcript.DefaultGapThreshold
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = search.DefaultMaxResults
	}
	if cfg.Search.FuzzyThreshold == 0 {
		cfg.Search.FuzzyThreshold = search.DefaultFuzzyThreshold
	}
	if cfg.Retrieval.ContextBudget == 0 {
		cfg.Retrieval.ContextBudget = retrieve.DefaultContextBudget
	}
	if cfg.Retrieval.MaxParagraphs == 0 {
		cfg.Retrieval.MaxParagraphs = retrieve.DefaultMaxParagraphs
	}
	if cfg.Retrieval.MinScore == 0 {
		cfg.Retrieval.MinScore = retrieve.DefaultMinScore
	}
	if cfg.Retrieval.SemanticWeight == 0 {
		cfg.Retrieval.SemanticWeight = retrieve.DefaultSemanticWeight
	}
	if cfg.Answer.Timeout == 0 {
		cfg.Answer.Timeout = answer.DefaultTimeout
	}
	if cfg.Answer.MaxTokens == 0 {
		cfg.Answer.MaxTokens = answer.DefaultMaxTokens
	}
	if cfg.Answer.ExcerptChars == 0 {
		cfg.Answer.ExcerptChars = answer.DefaultExcerptChars
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %v must be between 0 and 1", r))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; questions cannot be answered")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Transcript.EmbeddingsPath == "" {
		slog.Warn("providers.embeddings is configured but transcript.embeddings_path is empty; vectors are recomputed on every start")
	}

	// Transcript
	if cfg.Providers.STT.Name != "" && (cfg.Transcript.AudioPath == "" || cfg.Transcript.RawPath == "") {
		errs = append(errs, errors.New("providers.stt requires transcript.audio_path and transcript.raw_path"))
	}
	if lang, ok := cfg.Providers.STT.Options["language"].(string); ok && lang != "" {
		if _, err := language.Parse(lang); err != nil {
			errs = append(errs, fmt.Errorf("providers.stt.options.language %q is not a BCP-47 tag: %w", lang, err))
		}
	}
	if cfg.Transcript.RawPath == "" && cfg.Transcript.StructuredPath == "" {
		errs = append(errs, errors.New("transcript: one of raw_path or structured_path is required"))
	}
	if cfg.Transcript.GapThreshold < 0 {
		errs = append(errs, fmt.Errorf("transcript.gap_threshold %s must not be negative", cfg.Transcript.GapThreshold))
	}

	// Speakers
	for id, name := range cfg.Speakers {
		if id < 0 {
			errs = append(errs, fmt.Errorf("speakers: id %d must not be negative", id))
		}
		if name == "" {
			errs = append(errs, fmt.Errorf("speakers[%d]: name is required", id))
		}
	}

	// Search
	if cfg.Search.MaxResults < 0 {
		errs = append(errs, fmt.Errorf("search.max_results %d must not be negative", cfg.Search.MaxResults))
	}
	if cfg.Search.FuzzyThreshold < 0 || cfg.Search.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("search.fuzzy_threshold %.2f is out of range (0, 1]", cfg.Search.FuzzyThreshold))
	}

	// Retrieval
	if cfg.Retrieval.ContextBudget < 0 {
		errs = append(errs, fmt.Errorf("retrieval.context_budget %d must not be negative", cfg.Retrieval.ContextBudget))
	}
	if cfg.Retrieval.MaxParagraphs < 0 {
		errs = append(errs, fmt.Errorf("retrieval.max_paragraphs %d must not be negative", cfg.Retrieval.MaxParagraphs))
	}
	if cfg.Retrieval.MinScore < 0 || cfg.Retrieval.MinScore > 1 {
		errs = append(errs, fmt.Errorf("retrieval.min_score %.2f is out of range [0, 1]", cfg.Retrieval.MinScore))
	}
	if cfg.Retrieval.SemanticWeight < 0 || cfg.Retrieval.SemanticWeight > 1 {
		errs = append(errs, fmt.Errorf("retrieval.semantic_weight %.2f is out of range [0, 1]", cfg.Retrieval.SemanticWeight))
	}
	if cfg.Retrieval.EmbeddingBatchSize < 0 {
		errs = append(errs, fmt.Errorf("retrieval.embedding_batch_size %d must not be negative", cfg.Retrieval.EmbeddingBatchSize))
	}
	if cfg.Retrieval.EmbeddingConcurrency < 0 {
		errs = append(errs, fmt.Errorf("retrieval.embedding_concurrency %d must not be negative", cfg.Retrieval.EmbeddingConcurrency))
	}

	// Answer
	if cfg.Answer.Timeout < 0 {
		errs = append(errs, fmt.Errorf("answer.timeout %s must not be negative", cfg.Answer.Timeout))
	}
	if cfg.Answer.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("answer.max_tokens %d must not be negative", cfg.Answer.MaxTokens))
	}
	if cfg.Answer.Temperature < 0 || cfg.Answer.Temperature > 2 {
		errs = append(errs, fmt.Errorf("answer.temperature %.2f is out of range [0, 2]", cfg.Answer.Temperature))
	}
	if cfg.Answer.ExcerptChars < 0 {
		errs = append(errs, fmt.Errorf("answer.excerpt_chars %d must not be negative", cfg.Answer.ExcerptChars))
	}
	cb := cfg.Answer.CircuitBreaker
	if cb.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("answer.circuit_breaker.max_failures %d must not be negative", cb.MaxFailures))
	}
	if cb.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("answer.circuit_breaker.reset_timeout %s must not be negative", cb.ResetTimeout))
	}
	if cb.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("answer.circuit_breaker.half_open_max %d must not be negative", cb.HalfOpenMax))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
