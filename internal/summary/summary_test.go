package summary_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/MrWong99/transcriptqa/internal/speaker"
	"github.com/MrWong99/transcriptqa/internal/summary"
	"github.com/MrWong99/transcriptqa/internal/transcript"
	"github.com/MrWong99/transcriptqa/pkg/provider/llm"
	llmmock "github.com/MrWong99/transcriptqa/pkg/provider/llm/mock"
)

func sp(n int) *int { return &n }

func fixture() *transcript.Transcript {
	return &transcript.Transcript{Paragraphs: []transcript.Paragraph{
		{Speaker: sp(0), Start: 0, End: 75, Text: "Good evening."},
		{Speaker: sp(1), Start: 75, End: 130, Text: "Thank you for having me."},
		{Start: 130, End: 140, Text: "Applause."},
	}}
}

const reply = `{
  "headline": "An evening interview",
  "overview": "Two people talk.",
  "sections": [
    {"title": "Greetings", "timestamp_start": "0:00", "timestamp_end": "2:10",
     "summary": "They greet.", "key_points": ["hello"], "speakers_involved": ["Host", "Guest"]}
  ],
  "key_figures_mentioned": [{"name": "Guest", "context": "interviewee"}],
  "key_themes": ["politeness"]
}`

func TestRender(t *testing.T) {
	t.Parallel()
	names := speaker.NewDirectory(map[int]string{0: "Host"})
	got := summary.Render(fixture(), names, 0)
	want := "[0:00] Host: Good evening.\n[1:15] Speaker 1: Thank you for having me.\n[2:10] Unknown: Applause."
	if got != want {
		t.Errorf("Render =\n%q\nwant\n%q", got, want)
	}
}

func TestRender_Truncates(t *testing.T) {
	t.Parallel()
	got := summary.Render(fixture(), nil, 10)
	want := "[0:00] Spe" + summary.TruncationMarker
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: reply}}

	d, err := summary.Generate(context.Background(), p, fixture(),
		summary.WithNames(speaker.NewDirectory(map[int]string{0: "Host", 1: "Guest"})),
	)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if d.Headline != "An evening interview" {
		t.Errorf("Headline = %q", d.Headline)
	}
	if len(d.Sections) != 1 || d.Sections[0].TimestampEnd != "2:10" {
		t.Errorf("Sections = %+v", d.Sections)
	}
	if len(d.KeyFigures) != 1 || d.KeyFigures[0].Name != "Guest" {
		t.Errorf("KeyFigures = %+v", d.KeyFigures)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("model called %d times, want 1", len(calls))
	}
	req := calls[0].Req
	if !req.JSONMode {
		t.Error("expected JSON mode")
	}
	if req.MaxTokens != summary.DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", req.MaxTokens, summary.DefaultMaxTokens)
	}
	if !strings.Contains(req.Messages[0].Content, "[1:15] Guest: Thank you for having me.") {
		t.Errorf("transcript not rendered into prompt:\n%s", req.Messages[0].Content)
	}
}

func TestGenerate_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	if _, err := summary.Generate(ctx, &llmmock.Provider{}, &transcript.Transcript{}); err == nil {
		t.Error("expected error for empty transcript")
	}

	upstream := errors.New("rate limited")
	if _, err := summary.Generate(ctx, &llmmock.Provider{CompleteErr: upstream}, fixture()); !errors.Is(err, upstream) {
		t.Errorf("expected wrapped upstream error, got %v", err)
	}

	empty := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{}}
	if _, err := summary.Generate(ctx, empty, fixture()); !errors.Is(err, summary.ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}

	cut := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content:      `{"title": "Camp Da`,
		FinishReason: llm.FinishLength,
	}}
	if _, err := summary.Generate(ctx, cut, fixture()); !errors.Is(err, summary.ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare", in: `{"headline":"h"}`, want: "h"},
		{name: "fenced json", in: "```json\n{\"headline\":\"h\"}\n```", want: "h"},
		{name: "fenced plain", in: "```\n{\"headline\":\"h\"}\n```  ", want: "h"},
		{name: "empty", in: "  ", wantErr: true},
		{name: "not json", in: "Sorry, I cannot do that.", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d, err := summary.Parse(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Headline != tc.want {
				t.Errorf("Headline = %q, want %q", d.Headline, tc.want)
			}
		})
	}
}

func TestSaveLoadFile(t *testing.T) {
	t.Parallel()
	d, err := summary.Parse(reply)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	path := filepath.Join(t.TempDir(), "detailed_summary.json")
	if err := summary.SaveFile(path, d); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	got, err := summary.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !reflect.DeepEqual(got, d) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, d)
	}
	if _, err := summary.LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
