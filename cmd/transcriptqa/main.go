// Command transcriptqa serves a searchable, question-answerable view of one
// recorded conversation.
//
// Usage:
//
//	transcriptqa [serve] -config config.yaml     run the HTTP server (default)
//	transcriptqa transcribe -config config.yaml  recording → raw transcription (Deepgram)
//	transcriptqa build -config config.yaml       raw transcription → structured JSON
//	transcriptqa summarize -config config.yaml   generate the detailed summary
//	transcriptqa embed -config config.yaml       precompute paragraph embeddings
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/transcriptqa/internal/app"
	"github.com/MrWong99/transcriptqa/internal/config"
	"github.com/MrWong99/transcriptqa/internal/observe"
	"github.com/MrWong99/transcriptqa/internal/retrieve"
	"github.com/MrWong99/transcriptqa/internal/speaker"
	"github.com/MrWong99/transcriptqa/internal/summary"
	"github.com/MrWong99/transcriptqa/internal/transcript"
	"github.com/MrWong99/transcriptqa/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/transcriptqa/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/transcriptqa/pkg/provider/embeddings/openai"
	"github.com/MrWong99/transcriptqa/pkg/provider/llm"
	"github.com/MrWong99/transcriptqa/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/transcriptqa/pkg/provider/llm/openai"
	"github.com/MrWong99/transcriptqa/pkg/provider/stt"
	"github.com/MrWong99/transcriptqa/pkg/provider/stt/deepgram"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// ── Subcommand & flags ────────────────────────────────────────────────────
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("transcriptqa "+cmd, flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	out := fs.String("out", "", "output path (transcribe and build: transcript.structured_path, summarize: transcript.summary_path)")
	force := fs.Bool("force", false, "embed: ignore an existing embeddings cache")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "transcriptqa: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "transcriptqa: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levels := new(slog.LevelVar)
	levels.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levels})))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		return serve(ctx, *configPath, cfg, levels)
	case "transcribe":
		return transcribe(ctx, cfg, *out)
	case "build":
		return build(cfg, *out)
	case "summarize":
		return summarize(ctx, cfg, *out)
	case "embed":
		return embed(ctx, cfg, *force)
	default:
		fmt.Fprintf(os.Stderr, "transcriptqa: unknown command %q (want serve, transcribe, build, summarize or embed)\n", cmd)
		return 2
	}
}

// ── serve ─────────────────────────────────────────────────────────────────────

func serve(ctx context.Context, configPath string, cfg *config.Config, levels *slog.LevelVar) int {
	slog.Info("transcriptqa starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "transcriptqa",
		ServiceVersion: version,
		SampleRatio:    cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	providers, err := buildProviders(cfg, newRegistry())
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithLevelVar(levels),
		app.WithVersion(version),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(configPath, func(old, next *config.Config) {
		application.ApplyConfig(old, next)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		go func() { _ = watcher.Run(ctx) }()
		go reloadOnHangup(ctx, watcher)
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// reloadOnHangup re-reads the config file on every SIGHUP until ctx is done.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if changed, err := w.Reload(); err != nil {
				slog.Warn("config reload failed", "err", err)
			} else if !changed {
				slog.Info("config unchanged")
			}
		}
	}
}

// ── transcribe ────────────────────────────────────────────────────────────────

func transcribe(ctx context.Context, cfg *config.Config, out string) int {
	if out == "" {
		out = cfg.Transcript.StructuredPath
	}
	if cfg.Providers.STT.Name == "" {
		fmt.Fprintln(os.Stderr, "transcriptqa transcribe: providers.stt is required")
		return 2
	}

	providers, err := buildProviders(cfg, newRegistry())
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	req := stt.Request{
		Language: optString(cfg.Providers.STT.Options, "language"),
		Keywords: optKeywords(cfg.Providers.STT.Options, "keywords"),
	}
	t, err := app.Transcribe(ctx, providers.STT, cfg.Transcript, req)
	if err != nil {
		slog.Error("transcription failed", "err", err)
		return 1
	}
	if out != "" {
		if err := transcript.SaveStructuredFile(out, t); err != nil {
			slog.Error("failed to write structured transcript", "path", out, "err", err)
			return 1
		}
		slog.Info("structured transcript written", "path", out)
	}
	printStats(t.Stats())
	return 0
}

// ── build ─────────────────────────────────────────────────────────────────────

func build(cfg *config.Config, out string) int {
	if out == "" {
		out = cfg.Transcript.StructuredPath
	}
	if cfg.Transcript.RawPath == "" || out == "" {
		fmt.Fprintln(os.Stderr, "transcriptqa build: transcript.raw_path and an output path (-out or transcript.structured_path) are required")
		return 2
	}

	start := time.Now()
	t, err := transcript.LoadFile(cfg.Transcript.RawPath, transcript.WithGapThreshold(cfg.Transcript.GapThreshold))
	if err != nil {
		slog.Error("failed to build transcript", "raw_path", cfg.Transcript.RawPath, "err", err)
		return 1
	}
	if err := transcript.SaveStructuredFile(out, t); err != nil {
		slog.Error("failed to write structured transcript", "path", out, "err", err)
		return 1
	}

	slog.Info("structured transcript written", "path", out, "elapsed", time.Since(start).Round(time.Millisecond))
	printStats(t.Stats())
	return 0
}

func printStats(st transcript.Stats) {
	fmt.Printf("Duration   : %s\n", transcript.FormatTimestamp(st.Duration))
	fmt.Printf("Paragraphs : %d\n", st.Paragraphs)
	fmt.Printf("Words      : %d\n", st.Words)
	fmt.Printf("Speakers   : %d\n", st.Speakers)
	fmt.Printf("Entities   : %d\n", st.Entities)
	fmt.Printf("Topics     : %d\n", st.Topics)
}

// ── summarize ─────────────────────────────────────────────────────────────────

func summarize(ctx context.Context, cfg *config.Config, out string) int {
	if out == "" {
		out = cfg.Transcript.SummaryPath
	}
	if out == "" {
		fmt.Fprintln(os.Stderr, "transcriptqa summarize: an output path (-out or transcript.summary_path) is required")
		return 2
	}

	providers, err := buildProviders(cfg, newRegistry())
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if providers.LLM == nil {
		slog.Error("summarize needs providers.llm")
		return 1
	}
	t, err := app.LoadTranscript(cfg.Transcript)
	if err != nil {
		slog.Error("failed to load transcript", "err", err)
		return 1
	}

	start := time.Now()
	d, err := summary.Generate(ctx, providers.LLM, t, summary.WithNames(speaker.NewDirectory(cfg.Speakers)))
	if err != nil {
		slog.Error("failed to generate summary", "err", err)
		return 1
	}
	if err := summary.SaveFile(out, d); err != nil {
		slog.Error("failed to write summary", "path", out, "err", err)
		return 1
	}
	slog.Info("summary written",
		"path", out,
		"sections", len(d.Sections),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return 0
}

// ── embed ─────────────────────────────────────────────────────────────────────

func embed(ctx context.Context, cfg *config.Config, force bool) int {
	path := cfg.Transcript.EmbeddingsPath
	if path == "" {
		fmt.Fprintln(os.Stderr, "transcriptqa embed: transcript.embeddings_path is required")
		return 2
	}

	providers, err := buildProviders(cfg, newRegistry())
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if providers.Embeddings == nil {
		slog.Error("embed needs providers.embeddings")
		return 1
	}
	t, err := app.LoadTranscript(cfg.Transcript)
	if err != nil {
		slog.Error("failed to load transcript", "err", err)
		return 1
	}
	if force {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Error("failed to remove embeddings cache", "path", path, "err", err)
			return 1
		}
	}

	rc := cfg.Retrieval
	start := time.Now()
	sem, err := retrieve.NewSemantic(ctx, t, speaker.NewDirectory(cfg.Speakers), providers.Embeddings,
		retrieve.WithCachePath(path),
		retrieve.WithBatchSize(rc.EmbeddingBatchSize),
		retrieve.WithConcurrency(rc.EmbeddingConcurrency),
		retrieve.WithPrefixes(rc.DocumentPrefix, rc.QueryPrefix),
		retrieve.WithProviderName(cfg.Providers.Embeddings.Name),
	)
	if err != nil {
		slog.Error("failed to embed paragraphs", "err", err)
		return 1
	}
	slog.Info("paragraph embeddings ready",
		"path", path,
		"vectors", sem.Len(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmBackends are the LLM names served through any-llm-go. "openai" uses
// the native openai-go client instead.
var anyllmBackends = []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

func newRegistry() *config.Registry {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	return reg
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		// Self-hosted OpenAI-compatible servers use model names the built-in
		// table does not know.
		if window := optInt(entry.Options, "context_window"); window > 0 {
			opts = append(opts, oallm.WithCapabilities(llm.ModelCapabilities{
				ContextWindow:   window,
				MaxOutputTokens: optInt(entry.Options, "max_output_tokens"),
			}))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range anyllmBackends {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────
	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, oaembed.WithDimensions(n))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if ka := optString(entry.Options, "keep_alive"); ka != "" {
			opts = append(opts, ollamaembed.WithKeepAlive(ka))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	slog.Debug("registered providers",
		"llm", reg.LLMNames(),
		"embeddings", reg.EmbeddingsNames(),
		"stt", reg.STTNames(),
	)
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.Providers.LLM.Model)
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name, "model", cfg.Providers.Embeddings.Model)
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name, "model", cfg.Providers.STT.Model)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      transcriptqa, startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("LLM", providerValue(cfg.Providers.LLM))
	printRow("Embeddings", providerValue(cfg.Providers.Embeddings))
	printRow("Transcript", pathValue(cfg.Transcript.StructuredPath, cfg.Transcript.RawPath))
	printRow("Summary", pathValue(cfg.Transcript.SummaryPath))
	printRow("Audio", pathValue(cfg.Transcript.AudioPath))
	printRow("Speakers", fmt.Sprintf("%d named", len(cfg.Speakers)))
	if cfg.Server.MCPEnabled {
		printRow("MCP", "/mcp")
	} else {
		printRow("MCP", "(disabled)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerValue(e config.ProviderEntry) string {
	switch {
	case e.Name == "":
		return "(not configured)"
	case e.Model != "":
		return e.Name + " / " + e.Model
	default:
		return e.Name
	}
}

// pathValue returns the first non-empty path.
func pathValue(paths ...string) string {
	for _, p := range paths {
		if p != "" {
			return p
		}
	}
	return "(not configured)"
}

func printRow(kind, value string) {
	if r := []rune(value); len(r) > 19 {
		value = "…" + string(r[len(r)-18:])
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	v, _ := opts[key].(string)
	return v
}

// optInt reads an integer option. YAML decodes whole numbers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// optKeywords reads a list of "word" or "word:boost" strings. Entries without
// a valid boost get a boost of 1.
func optKeywords(opts map[string]any, key string) []stt.Keyword {
	list, _ := opts[key].([]any)
	var kws []stt.Keyword
	for _, v := range list {
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		kw := stt.Keyword{Keyword: s, Boost: 1}
		if i := strings.LastIndexByte(s, ':'); i > 0 {
			if b, err := strconv.ParseFloat(s[i+1:], 64); err == nil {
				kw = stt.Keyword{Keyword: s[:i], Boost: b}
			}
		}
		kws = append(kws, kw)
	}
	return kws
}
