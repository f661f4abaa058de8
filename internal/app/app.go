// Package app wires the transcript explorer's subsystems into a running server.
//
// The App struct owns the full lifecycle: New loads the transcript and builds
// the read views (search index, retriever, answer synthesizer, MCP tools, HTTP
// routes), Run serves HTTP until the context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject the transcript, a listener or metrics via functional
// options. When an option is not provided, New loads real implementations
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/transcriptqa/internal/answer"
	"github.com/MrWong99/transcriptqa/internal/api"
	"github.com/MrWong99/transcriptqa/internal/config"
	"github.com/MrWong99/transcriptqa/internal/health"
	"github.com/MrWong99/transcriptqa/internal/mcpserver"
	"github.com/MrWong99/transcriptqa/internal/observe"
	"github.com/MrWong99/transcriptqa/internal/resilience"
	"github.com/MrWong99/transcriptqa/internal/retrieve"
	"github.com/MrWong99/transcriptqa/internal/search"
	"github.com/MrWong99/transcriptqa/internal/speaker"
	"github.com/MrWong99/transcriptqa/internal/transcript"
	"github.com/MrWong99/transcriptqa/pkg/provider/embeddings"
	"github.com/MrWong99/transcriptqa/pkg/provider/llm"
	"github.com/MrWong99/transcriptqa/pkg/provider/stt"
)

// readHeaderTimeout bounds how long a client may take to send request headers.
const readHeaderTimeout = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider

	// STT is only used by [Transcribe]; the server never calls it.
	STT stt.Provider
}

// App owns all subsystem lifetimes of the explorer.
type App struct {
	cfg       *config.Config
	providers *Providers
	version   string
	metrics   *observe.Metrics
	levelVar  *slog.LevelVar

	// Read views, built once in New.
	transcript *transcript.Transcript
	names      *speaker.Directory
	index      *search.Index
	retriever  *retrieve.Retriever
	semantic   *retrieve.Semantic
	llm        *resilience.GuardedLLM
	synth      *answer.Synthesizer
	mcp        *mcpserver.Server
	api        *api.Server

	server   *http.Server
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithTranscript uses t instead of loading the transcript from config.
func WithTranscript(t *transcript.Transcript) Option {
	return func(a *App) { a.transcript = t }
}

// WithListener serves on ln instead of listening on server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets configuration reloads change the log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithVersion sets the version announced over MCP.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously: transcript loading, index
// construction, paragraph embedding (when an embeddings provider is
// configured) and HTTP routing.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		version:   "dev",
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Transcript ────────────────────────────────────────────────────
	if a.transcript == nil {
		t, err := LoadTranscript(cfg.Transcript)
		if err != nil {
			return nil, fmt.Errorf("app: load transcript: %w", err)
		}
		a.transcript = t
	}
	a.names = speaker.NewDirectory(cfg.Speakers)

	// ── 2. Search index ──────────────────────────────────────────────────
	a.index = search.NewIndex(a.transcript,
		search.WithFuzzyThreshold(cfg.Search.FuzzyThreshold),
		search.WithMaxResults(cfg.Search.MaxResults),
	)

	// ── 3. Retriever ─────────────────────────────────────────────────────
	a.initRetriever(ctx)

	// ── 4. Answer synthesizer ────────────────────────────────────────────
	if providers.LLM != nil {
		cb := cfg.Answer.CircuitBreaker
		a.llm = resilience.NewGuardedLLM(providers.LLM, resilience.CircuitBreakerConfig{
			Name:         "llm/" + cfg.Providers.LLM.Name,
			MaxFailures:  cb.MaxFailures,
			ResetTimeout: cb.ResetTimeout,
			HalfOpenMax:  cb.HalfOpenMax,
			OnStateChange: func(name string, _, to resilience.State) {
				a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		})
		a.synth = answer.New(a.transcript, a.retriever, a.llm,
			answer.WithNames(a.names),
			answer.WithTimeout(cfg.Answer.Timeout),
			answer.WithMaxTokens(cfg.Answer.MaxTokens),
			answer.WithTemperature(cfg.Answer.Temperature),
			answer.WithExcerptChars(cfg.Answer.ExcerptChars),
			answer.WithSummary(cfg.Answer.SummaryEnabled()),
			answer.WithProviderName(cfg.Providers.LLM.Name),
			answer.WithMetrics(a.metrics),
		)
	}

	// ── 5. HTTP ──────────────────────────────────────────────────────────
	a.initHTTP()

	slog.Info("app initialised",
		"paragraphs", len(a.transcript.Paragraphs),
		"speakers", len(a.transcript.Speakers),
		"semantic", a.semantic != nil,
		"llm", a.synth != nil,
		"mcp", a.mcp != nil,
	)
	return a, nil
}

// LoadTranscript loads the structured transcript when one exists and builds
// it from the raw transcription otherwise.
func LoadTranscript(cfg config.TranscriptConfig) (*transcript.Transcript, error) {
	if cfg.StructuredPath != "" {
		t, err := transcript.LoadStructuredFile(cfg.StructuredPath)
		if err == nil {
			slog.Debug("loaded structured transcript", "path", cfg.StructuredPath)
			return t, nil
		}
		if !errors.Is(err, os.ErrNotExist) || cfg.RawPath == "" {
			return nil, err
		}
		slog.Info("structured transcript not found, building from raw", "structured_path", cfg.StructuredPath)
	}
	if cfg.RawPath == "" {
		return nil, errors.New("no transcript path configured")
	}
	return transcript.LoadFile(cfg.RawPath, transcript.WithGapThreshold(cfg.GapThreshold))
}

// initRetriever builds the retriever. A failing embeddings provider only
// disables semantic re-ranking.
func (a *App) initRetriever(ctx context.Context) {
	rc := a.cfg.Retrieval
	opts := []retrieve.Option{
		retrieve.WithContextBudget(rc.ContextBudget),
		retrieve.WithMaxParagraphs(rc.MaxParagraphs),
		retrieve.WithMinScore(rc.MinScore),
		retrieve.WithMetrics(a.metrics),
	}

	if a.providers.Embeddings != nil && !a.transcript.Empty() {
		sem, err := retrieve.NewSemantic(ctx, a.transcript, a.names, a.providers.Embeddings,
			retrieve.WithCachePath(a.cfg.Transcript.EmbeddingsPath),
			retrieve.WithBatchSize(rc.EmbeddingBatchSize),
			retrieve.WithConcurrency(rc.EmbeddingConcurrency),
			retrieve.WithPrefixes(rc.DocumentPrefix, rc.QueryPrefix),
			retrieve.WithProviderName(a.cfg.Providers.Embeddings.Name),
		)
		if err != nil {
			slog.Warn("semantic re-ranking disabled", "err", err)
		} else {
			a.semantic = sem
			opts = append(opts, retrieve.WithSemantic(sem, rc.SemanticWeight))
		}
	}

	a.retriever = retrieve.New(a.transcript, a.index, opts...)
}

func (a *App) initHTTP() {
	checkers := []health.Checker{
		health.TranscriptLoaded(func() *transcript.Transcript { return a.transcript }),
		// A configured but unavailable model fails readiness; a search-only
		// deployment does not.
		health.ProviderConfigured("llm", a.synth != nil || a.cfg.Providers.LLM.Name == ""),
	}
	if a.llm != nil {
		checkers = append(checkers, health.BreakerClosed(a.llm.Breaker()))
	}
	probes := health.New(checkers...)
	probes.Version = a.version

	apiOpts := []api.Option{
		api.WithNames(a.names),
		api.WithSummaryPath(a.cfg.Transcript.SummaryPath),
		api.WithAudioPath(a.cfg.Transcript.AudioPath),
		api.WithHealth(probes),
		api.WithMetricsEndpoint(observe.MetricsHandler()),
		api.WithCORSOrigins(a.cfg.Server.CORSOrigins),
		api.WithMetrics(a.metrics),
	}
	if a.synth != nil {
		apiOpts = append(apiOpts, api.WithAsker(a.synth))
	}
	if a.cfg.Server.MCPEnabled {
		var asker mcpserver.Asker
		if a.synth != nil {
			asker = a.synth
		}
		a.mcp = mcpserver.New(a.index, asker, a.names,
			mcpserver.WithVersion(a.version),
			mcpserver.WithMetrics(a.metrics),
		)
		apiOpts = append(apiOpts, api.WithMCP(a.mcp.Handler()))
	}
	a.api = api.New(a.index, apiOpts...)

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	a.closers = append(a.closers, a.server.Close)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Transcript returns the loaded transcript.
func (a *App) Transcript() *transcript.Transcript { return a.transcript }

// Names returns the live speaker directory.
func (a *App) Names() *speaker.Directory { return a.names }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the server fails.
// When ctx is done the server drains in-flight requests for at most
// server.shutdown_timeout and Run returns nil.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen on %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: drain http: %w", err)
		}
		return nil
	})

	slog.Info("app running", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
	return g.Wait()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies the live-reloadable parts of a reload from old to next:
// the log level and the speaker names. Changes to other sections are logged
// and take effect on the next start. Its signature matches the
// [config.NewWatcher] callback.
func (a *App) ApplyConfig(old, next *config.Config) config.ConfigDiff {
	d := config.Diff(old, next)
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SpeakersChanged {
		a.names.Set(d.NewSpeakers)
		slog.Info("speaker names reloaded", "speakers", len(d.NewSpeakers))
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("configuration changes require a restart", "sections", d.RestartRequired)
	}
	return d
}

// SlogLevel converts a config log level to its slog level. Unknown levels
// map to info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
