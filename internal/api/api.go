// Package api serves the transcript explorer's HTTP interface.
//
// Routes:
//
//	GET  /api/transcript  the structured transcript
//	GET  /api/search      fuzzy search: q, speaker, entity, highlight
//	POST /api/ask         {"question": ...} → grounded answer with sources
//	GET  /api/summary     the detailed summary, when one was generated
//	GET  /api/audio       the recording, with range requests
//	GET  /api/speakers    speaker ids with display names
//
// Health probes, /metrics and /mcp are mounted when configured. Errors are
// JSON objects {"error": "..."}: 400 for invalid input, 502 when the language
// model fails and 504 when it times out.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/transcriptqa/internal/answer"
	"github.com/MrWong99/transcriptqa/internal/health"
	"github.com/MrWong99/transcriptqa/internal/observe"
	"github.com/MrWong99/transcriptqa/internal/search"
	"github.com/MrWong99/transcriptqa/internal/speaker"
	"github.com/MrWong99/transcriptqa/internal/summary"
	"github.com/MrWong99/transcriptqa/internal/transcript"
)

// maxAskBody bounds the request body of POST /api/ask.
const maxAskBody = 64 << 10

// Asker answers questions. [*answer.Synthesizer] implements it.
type Asker interface {
	Ask(ctx context.Context, question string) (*answer.Answer, error)
}

// Option is a functional option for [New].
type Option func(*Server)

// WithAsker enables POST /api/ask. Without it the route answers 503.
func WithAsker(a Asker) Option {
	return func(s *Server) { s.asker = a }
}

// WithNames resolves speaker ids to display names.
func WithNames(d *speaker.Directory) Option {
	return func(s *Server) { s.names = d }
}

// WithSummaryPath serves the summary file at path on /api/summary.
func WithSummaryPath(path string) Option {
	return func(s *Server) { s.summaryPath = path }
}

// WithAudioPath serves the recording at path on /api/audio.
func WithAudioPath(path string) Option {
	return func(s *Server) { s.audioPath = path }
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMCP mounts h at /mcp.
func WithMCP(h http.Handler) Option {
	return func(s *Server) { s.mcp = h }
}

// WithMetricsEndpoint mounts h at /metrics.
func WithMetricsEndpoint(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithCORSOrigins allows browser calls from origins. "*" allows any origin.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server holds the read views the handlers serve. It is safe for concurrent
// use.
type Server struct {
	idx            *search.Index
	asker          Asker
	names          *speaker.Directory
	summaryPath    string
	audioPath      string
	health         *health.Handler
	mcp            http.Handler
	metricsHandler http.Handler
	corsOrigins    []string
	metrics        *observe.Metrics

	transcriptOnce sync.Once
	transcriptJSON []byte
	transcriptErr  error
}

// New returns a Server over the transcript indexed by idx.
func New(idx *search.Index, opts ...Option) *Server {
	s := &Server{idx: idx}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/transcript", s.handleTranscript)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/audio", s.handleAudio)
	mux.HandleFunc("GET /api/speakers", s.handleSpeakers)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	if s.mcp != nil {
		mux.Handle("/mcp", s.mcp)
	}

	var h http.Handler = mux
	h = corsMiddleware(s.corsOrigins)(h)
	h = observe.Middleware(s.metrics)(h)
	return h
}

// ─── handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	s.transcriptOnce.Do(func() {
		s.transcriptJSON, s.transcriptErr = json.Marshal(s.idx.Transcript())
	})
	if s.transcriptErr != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, s.transcriptErr)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(s.transcriptJSON)
}

// searchHit is one row of a search response. Highlights are byte offsets
// into paragraph.text.
type searchHit struct {
	Paragraph  transcript.Paragraph `json:"paragraph"`
	Index      int                  `json:"index"`
	Score      float64              `json:"score"`
	Highlights [][2]int             `json:"highlights"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
	Total   int         `json:"total"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	q := r.URL.Query()

	sp, err := search.ParseSpeaker(q.Get("speaker"))
	if err != nil {
		writeError(ctx, w, http.StatusBadRequest, err)
		return
	}
	highlight := true
	if v := q.Get("highlight"); v != "" {
		highlight, err = strconv.ParseBool(v)
		if err != nil {
			writeError(ctx, w, http.StatusBadRequest, &search.InvalidQueryError{Param: "highlight", Value: v, Reason: "not a boolean"})
			return
		}
	}
	query := q.Get("q")
	filters := search.Filters{Speaker: sp, Entity: q.Get("entity")}

	results := s.idx.Search(query, filters)
	resp := searchResponse{Results: make([]searchHit, len(results)), Total: len(results)}
	for i, res := range results {
		hit := searchHit{Paragraph: res.Paragraph, Index: res.Index, Score: res.Score, Highlights: [][2]int{}}
		if highlight {
			for _, span := range search.Highlight(res.Paragraph.Text, query) {
				hit.Highlights = append(hit.Highlights, [2]int{span.Start, span.End})
			}
		}
		resp.Results[i] = hit
	}

	s.metrics.SearchDuration.Record(ctx, time.Since(start).Seconds())
	s.metrics.RecordSearch(ctx, sp != nil || strings.TrimSpace(filters.Entity) != "")
	writeJSON(ctx, w, http.StatusOK, resp)
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.asker == nil {
		writeError(ctx, w, http.StatusServiceUnavailable, errors.New("no language model configured"))
		return
	}

	var req askRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBody))
	if err := dec.Decode(&req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, &search.InvalidQueryError{Param: "body", Value: "", Reason: err.Error()})
		return
	}

	ans, err := s.asker.Ask(ctx, req.Question)
	if err != nil {
		if ctx.Err() != nil {
			observe.Logger(ctx).Debug("client went away before the answer was ready", "err", err)
			return
		}
		writeError(ctx, w, statusFor(err), err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, ans)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.summaryPath == "" {
		writeError(ctx, w, http.StatusNotFound, errors.New("no summary configured"))
		return
	}
	d, err := summary.LoadFile(s.summaryPath)
	if errors.Is(err, os.ErrNotExist) {
		writeError(ctx, w, http.StatusNotFound, errors.New("summary has not been generated"))
		return
	}
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, d)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if s.audioPath == "" {
		writeError(r.Context(), w, http.StatusNotFound, errors.New("no audio configured"))
		return
	}
	if _, err := os.Stat(s.audioPath); err != nil {
		writeError(r.Context(), w, http.StatusNotFound, errors.New("audio file not found"))
		return
	}
	http.ServeFile(w, r, s.audioPath)
}

func (s *Server) handleSpeakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, s.names.Roster(s.idx.Transcript().Speakers))
}

// ─── responses ──────────────────────────────────────────────────────────────

// statusFor maps a request error to its HTTP status.
func statusFor(err error) int {
	var invalid *search.InvalidQueryError
	var upstream *answer.UpstreamGenerationError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &upstream) && upstream.Timeout:
		return http.StatusGatewayTimeout
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	observe.Logger(ctx).Log(ctx, level, "request failed", "status", status, "err", err)
	writeJSON(ctx, w, status, errorResponse{Error: err.Error()})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		observe.Logger(ctx).Warn("encode response", "err", err)
	}
}
