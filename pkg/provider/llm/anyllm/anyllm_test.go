package anyllm

import (
	"slices"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/transcriptqa/pkg/provider/llm"
)

func TestBackends(t *testing.T) {
	t.Parallel()
	got := Backends()
	want := []string{"anthropic", "deepseek", "gemini", "groq", "llamacpp", "llamafile", "mistral", "ollama", "openai"}
	if !slices.Equal(got, want) {
		t.Errorf("Backends() = %v, want %v", got, want)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		model   string
		opts    []anyllmlib.Option
		wantErr bool
	}{
		{"anthropic with key", "anthropic", "claude-sonnet-4-5", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}, false},
		{"backend name is case-insensitive", "Anthropic", "claude-sonnet-4-5", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}, false},
		{"local ollama needs no key", "ollama", "llama3.1", nil, false},
		{"empty model", "anthropic", "", []anyllmlib.Option{anyllmlib.WithAPIKey("k")}, true},
		{"unknown backend", "fakecloud", "some-model", []anyllmlib.Option{anyllmlib.WithAPIKey("k")}, true},
		{"empty backend", "", "gpt-4o", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(tc.backend, tc.model, tc.opts...)
			if (err != nil) != tc.wantErr {
				t.Fatalf("New error = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && p.model != tc.model {
				t.Errorf("model = %q, want %q", p.model, tc.model)
			}
		})
	}
}

func TestNew_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected an error without an api key")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "claude-sonnet-4-5"}

	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Use ONLY the provided transcript excerpts to answer.",
		Messages:     []llm.Message{{Role: "user", Content: "Who went to Camp David?"}},
		Temperature:  0.2,
		MaxTokens:    1000,
	})
	if params.Model != "claude-sonnet-4-5" {
		t.Errorf("Model = %q", params.Model)
	}
	if len(params.Messages) != 2 || params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Fatalf("messages = %+v, want system first", params.Messages)
	}
	if got := params.Messages[1].ContentString(); got != "Who went to Camp David?" {
		t.Errorf("user content = %q", got)
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Error("temperature not forwarded")
	}
	if params.MaxTokens == nil || *params.MaxTokens != 1000 {
		t.Error("max tokens not forwarded")
	}

	bare := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "q"}}})
	if bare.Temperature != nil || bare.MaxTokens != nil {
		t.Error("zero temperature and max tokens must keep backend defaults")
	}
	if len(bare.Messages) != 1 {
		t.Errorf("messages = %d, want 1 without a system prompt", len(bare.Messages))
	}
}

func TestCapabilities(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gemini-2.0-flash"}
	if got := p.Capabilities(); got != llm.CapabilitiesFor("gemini-2.0-flash") {
		t.Errorf("Capabilities() = %+v", got)
	}
}
