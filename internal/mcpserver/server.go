// Package mcpserver exposes the transcript as Model Context Protocol tools so
// MCP-capable assistants can search it and ask questions about it.
//
// Three tools are registered:
//
//   - search_transcript: fuzzy keyword search with speaker/entity filters.
//   - ask_transcript: a grounded answer with cited source paragraphs.
//   - get_paragraph: one paragraph by index, with its neighbours.
//
// [Handler] serves them over the streamable HTTP transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/transcriptqa/internal/answer"
	"github.com/MrWong99/transcriptqa/internal/observe"
	"github.com/MrWong99/transcriptqa/internal/search"
	"github.com/MrWong99/transcriptqa/internal/speaker"
	"github.com/MrWong99/transcriptqa/internal/transcript"
)

const (
	// Name is the implementation name announced to clients.
	Name = "transcriptqa"

	// defaultSearchLimit caps search_transcript results unless the caller
	// asks for fewer.
	defaultSearchLimit = 20

	// maxContext caps the neighbours returned by get_paragraph on each side.
	maxContext = 5
)

// Asker answers questions. [*answer.Synthesizer] implements it.
type Asker interface {
	Ask(ctx context.Context, question string) (*answer.Answer, error)
}

// Option is a functional option for [New].
type Option func(*Server)

// WithVersion sets the implementation version announced to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server holds the MCP server and the transcript views its tools read.
type Server struct {
	idx     *search.Index
	asker   Asker
	names   *speaker.Directory
	version string
	metrics *observe.Metrics

	mcp *mcpsdk.Server
}

// New builds the MCP server over idx. asker may be nil, in which case
// ask_transcript is not registered.
func New(idx *search.Index, asker Asker, names *speaker.Directory, opts ...Option) *Server {
	s := &Server{
		idx:     idx,
		asker:   asker,
		names:   names,
		version: "dev",
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	s.mcp = mcpsdk.NewServer(&mcpsdk.Implementation{Name: Name, Version: s.version}, nil)
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "search_transcript",
		Description: "Search the transcript paragraphs by keyword. Tolerates typos. Optionally filter by speaker id or by an entity value mentioned in the paragraph.",
	}, s.searchTool)
	if s.asker != nil {
		mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
			Name:        "ask_transcript",
			Description: "Answer a natural-language question using only the transcript. Returns the answer and the paragraphs it was based on.",
		}, s.askTool)
	}
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "get_paragraph",
		Description: "Return one transcript paragraph by index, optionally with surrounding paragraphs for context.",
	}, s.paragraphTool)
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcpsdk.Server { return s.mcp }

// Handler returns the streamable HTTP handler serving the tools.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.mcp }, nil)
}

// ─── search_transcript ──────────────────────────────────────────────────────

// SearchInput is the argument of search_transcript.
type SearchInput struct {
	Query   string `json:"query" jsonschema:"keywords to look for; empty lists paragraphs in order"`
	Speaker *int   `json:"speaker,omitempty" jsonschema:"only paragraphs by this speaker id"`
	Entity  string `json:"entity,omitempty" jsonschema:"only paragraphs mentioning this entity value"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 20"`
}

// Hit is one search result.
type Hit struct {
	Index   int     `json:"index"`
	Speaker string  `json:"speaker"`
	Start   string  `json:"start"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}

// SearchOutput is the result of search_transcript.
type SearchOutput struct {
	Results []Hit `json:"results"`
	Total   int   `json:"total"`
}

func (s *Server) searchTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in SearchInput) (_ *mcpsdk.CallToolResult, _ SearchOutput, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "search_transcript", start, err) }()

	if in.Speaker != nil && *in.Speaker < 0 {
		return nil, SearchOutput{}, &search.InvalidQueryError{Param: "speaker", Value: fmt.Sprint(*in.Speaker), Reason: "must not be negative"}
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	results := s.idx.Search(in.Query, search.Filters{Speaker: in.Speaker, Entity: in.Entity})
	s.metrics.RecordSearch(ctx, in.Speaker != nil || in.Entity != "")
	out := SearchOutput{Results: make([]Hit, 0, min(limit, len(results))), Total: len(results)}
	for _, r := range results[:min(limit, len(results))] {
		out.Results = append(out.Results, Hit{
			Index:   r.Index,
			Speaker: s.names.Name(r.Paragraph.Speaker),
			Start:   transcript.FormatTimestamp(r.Paragraph.Start),
			Score:   r.Score,
			Text:    r.Paragraph.Text,
		})
	}
	return textResult(out), out, nil
}

// ─── ask_transcript ─────────────────────────────────────────────────────────

// AskInput is the argument of ask_transcript.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the transcript"`
}

func (s *Server) askTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in AskInput) (_ *mcpsdk.CallToolResult, _ answer.Answer, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "ask_transcript", start, err) }()

	ans, err := s.asker.Ask(ctx, in.Question)
	if err != nil {
		return nil, answer.Answer{}, err
	}
	return textResult(ans), *ans, nil
}

// ─── get_paragraph ──────────────────────────────────────────────────────────

// ParagraphInput is the argument of get_paragraph.
type ParagraphInput struct {
	Index   int `json:"index" jsonschema:"zero-based paragraph index"`
	Context int `json:"context,omitempty" jsonschema:"number of neighbouring paragraphs to include on each side, at most 5"`
}

// ParagraphView is one paragraph as returned by get_paragraph.
type ParagraphView struct {
	Index   int    `json:"index"`
	Speaker string `json:"speaker"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Text    string `json:"text"`
}

// ParagraphOutput is the result of get_paragraph, in transcript order.
type ParagraphOutput struct {
	Paragraphs []ParagraphView `json:"paragraphs"`
}

func (s *Server) paragraphTool(ctx context.Context, _ *mcpsdk.CallToolRequest, in ParagraphInput) (_ *mcpsdk.CallToolResult, _ ParagraphOutput, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "get_paragraph", start, err) }()

	paras := s.idx.Transcript().Paragraphs
	if in.Index < 0 || in.Index >= len(paras) {
		return nil, ParagraphOutput{}, &search.InvalidQueryError{
			Param:  "index",
			Value:  fmt.Sprint(in.Index),
			Reason: fmt.Sprintf("out of range [0, %d)", len(paras)),
		}
	}
	n := min(max(in.Context, 0), maxContext)
	lo, hi := max(in.Index-n, 0), min(in.Index+n+1, len(paras))

	out := ParagraphOutput{Paragraphs: make([]ParagraphView, 0, hi-lo)}
	for i := lo; i < hi; i++ {
		p := paras[i]
		out.Paragraphs = append(out.Paragraphs, ParagraphView{
			Index:   i,
			Speaker: s.names.Name(p.Speaker),
			Start:   transcript.FormatTimestamp(p.Start),
			End:     transcript.FormatTimestamp(p.End),
			Text:    p.Text,
		})
	}
	return textResult(out), out, nil
}

// ─── helpers ────────────────────────────────────────────────────────────────

func (s *Server) observe(ctx context.Context, tool string, start time.Time, err error) {
	s.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
		observe.Logger(ctx).Warn("mcp tool failed", "tool", tool, "err", err)
	}
	s.metrics.RecordToolCall(ctx, tool, status)
}

// textResult renders v as the JSON text content of a tool result, for
// clients that do not read structured content.
func textResult(v any) *mcpsdk.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(err.Error())
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}
}
