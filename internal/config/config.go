// Package config provides the configuration schema, loader, and provider registry
// for the transcriptqa server.
package config

import "time"

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Transcript TranscriptConfig `yaml:"transcript"`

	// Speakers maps diarized speaker ids to display names. Unmapped ids are
	// shown as "Speaker N".
	Speakers map[int]string `yaml:"speakers"`

	Search    SearchConfig    `yaml:"search"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Answer    AnswerConfig    `yaml:"answer"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Changes are applied without restart.
	LogLevel LogLevel `yaml:"log_level"`

	// CORSOrigins lists the origins allowed to call the API from a browser.
	// "*" allows any origin. Empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins"`

	// MCPEnabled exposes the transcript tools over MCP at /mcp.
	MCPEnabled bool `yaml:"mcp_enabled"`

	// ShutdownTimeout bounds graceful shutdown. Defaults to 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// TraceSampleRatio is the fraction of requests traced, in [0, 1].
	// 0 traces every request.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig selects the model providers.
type ProvidersConfig struct {
	// LLM generates answers and summaries. Required for /api/ask.
	LLM ProviderEntry `yaml:"llm"`

	// Embeddings enables semantic re-ranking when set.
	Embeddings ProviderEntry `yaml:"embeddings"`

	// STT transcribes transcript.audio_path into transcript.raw_path. Only
	// the transcribe command uses it.
	STT ProviderEntry `yaml:"stt"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// TranscriptConfig locates the transcript and its derived files.
type TranscriptConfig struct {
	// RawPath is the speech-to-text JSON the transcript is built from.
	RawPath string `yaml:"raw_path"`

	// StructuredPath is a transcript previously written by "transcriptqa build".
	// It is preferred over RawPath when both are set and the file exists.
	StructuredPath string `yaml:"structured_path"`

	// AudioPath is the recording served at /api/audio.
	AudioPath string `yaml:"audio_path"`

	// SummaryPath is the detailed summary served at /api/summary.
	SummaryPath string `yaml:"summary_path"`

	// EmbeddingsPath caches paragraph vectors for semantic re-ranking.
	EmbeddingsPath string `yaml:"embeddings_path"`

	// GapThreshold is the pause that starts a new paragraph when the raw
	// transcript carries no paragraphs of its own. Defaults to 2s.
	GapThreshold time.Duration `yaml:"gap_threshold"`
}

// SearchConfig tunes the keyword search.
type SearchConfig struct {
	// MaxResults caps one search. Defaults to 100.
	MaxResults int `yaml:"max_results"`

	// FuzzyThreshold is the minimum similarity of a fuzzy match in (0, 1].
	// Defaults to 0.70.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// RetrievalConfig tunes evidence selection for questions.
type RetrievalConfig struct {
	// ContextBudget is the maximum number of runes of evidence per prompt.
	ContextBudget int `yaml:"context_budget"`

	// MaxParagraphs caps the number of evidence paragraphs.
	MaxParagraphs int `yaml:"max_paragraphs"`

	// MinScore marks an answer low-confidence when the best evidence scores
	// below it.
	MinScore float64 `yaml:"min_score"`

	// SemanticWeight is the share of the cosine similarity in the blended
	// score when an embeddings provider is configured. In [0, 1].
	SemanticWeight float64 `yaml:"semantic_weight"`

	// EmbeddingBatchSize is the number of paragraphs per embeddings call.
	EmbeddingBatchSize int `yaml:"embedding_batch_size"`

	// EmbeddingConcurrency is the number of embeddings calls in flight.
	EmbeddingConcurrency int `yaml:"embedding_concurrency"`

	// DocumentPrefix and QueryPrefix are prepended to texts before embedding,
	// as some models expect (e.g., "search_document: ").
	DocumentPrefix string `yaml:"document_prefix"`
	QueryPrefix    string `yaml:"query_prefix"`
}

// AnswerConfig tunes answer generation.
type AnswerConfig struct {
	// Timeout bounds the model call of one question. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout"`

	// MaxTokens caps the generated answer.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is the sampling temperature; zero keeps the provider default.
	Temperature float64 `yaml:"temperature"`

	// ExcerptChars is the number of runes of a paragraph quoted per source.
	ExcerptChars int `yaml:"excerpt_chars"`

	// IncludeSummary leads the prompt with the transcript summary. Defaults
	// to true.
	IncludeSummary *bool `yaml:"include_summary"`

	// CircuitBreaker guards the LLM provider.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// SummaryEnabled reports whether the transcript summary leads the prompt.
func (a AnswerConfig) SummaryEnabled() bool {
	return a.IncludeSummary == nil || *a.IncludeSummary
}

// CircuitBreakerConfig configures the breaker around the LLM provider.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that open the circuit.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long the circuit stays open before a probe.
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// HalfOpenMax is the number of probe calls allowed while half-open.
	HalfOpenMax int `yaml:"half_open_max"`
}
