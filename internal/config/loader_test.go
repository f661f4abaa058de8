package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/transcriptqa/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantErr string // substring; empty means valid
	}{
		{
			name:    "missing transcript source",
			yaml:    "server:\n  log_level: info\n",
			wantErr: "raw_path or structured_path",
		},
		{
			name: "structured path alone is enough",
			yaml: "transcript:\n  structured_path: s.json\n",
		},
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: verbose\ntranscript:\n  raw_path: r.json\n",
			wantErr: "log_level",
		},
		{
			name:    "fuzzy threshold above one",
			yaml:    "transcript:\n  raw_path: r.json\nsearch:\n  fuzzy_threshold: 1.5\n",
			wantErr: "fuzzy_threshold",
		},
		{
			name:    "semantic weight out of range",
			yaml:    "transcript:\n  raw_path: r.json\nretrieval:\n  semantic_weight: -0.1\n",
			wantErr: "semantic_weight",
		},
		{
			name:    "negative context budget",
			yaml:    "transcript:\n  raw_path: r.json\nretrieval:\n  context_budget: -1\n",
			wantErr: "context_budget",
		},
		{
			name:    "negative timeout",
			yaml:    "transcript:\n  raw_path: r.json\nanswer:\n  timeout: -1s\n",
			wantErr: "answer.timeout",
		},
		{
			name:    "temperature out of range",
			yaml:    "transcript:\n  raw_path: r.json\nanswer:\n  temperature: 3\n",
			wantErr: "temperature",
		},
		{
			name:    "empty speaker name",
			yaml:    "transcript:\n  raw_path: r.json\nspeakers:\n  2: \"\"\n",
			wantErr: "speakers[2]",
		},
		{
			name:    "tls without key",
			yaml:    "server:\n  tls:\n    cert_file: c.pem\ntranscript:\n  raw_path: r.json\n",
			wantErr: "tls",
		},
		{
			name:    "trace sample ratio above one",
			yaml:    "server:\n  trace_sample_ratio: 1.5\ntranscript:\n  raw_path: r.json\n",
			wantErr: "trace_sample_ratio",
		},
		{
			name:    "stt without audio path",
			yaml:    "providers:\n  stt:\n    name: deepgram\ntranscript:\n  raw_path: r.json\n",
			wantErr: "audio_path",
		},
		{
			name:    "stt language not a tag",
			yaml:    "providers:\n  stt:\n    name: deepgram\n    options:\n      language: \"not a tag!\"\ntranscript:\n  raw_path: r.json\n  audio_path: a.mp4\n",
			wantErr: "BCP-47",
		},
		{
			name: "stt with paths and language",
			yaml: "providers:\n  stt:\n    name: deepgram\n    options:\n      language: de-DE\ntranscript:\n  raw_path: r.json\n  audio_path: a.mp4\n",
		},
		{
			name: "unknown provider name only warns",
			yaml: "providers:\n  llm:\n    name: my-llm\ntranscript:\n  raw_path: r.json\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error mentioning %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error should mention %q, got: %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
search:
  fuzzy_threshold: 2
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"log_level", "fuzzy_threshold", "raw_path"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:1"},
		Search: config.SearchConfig{MaxResults: 5},
	}
	config.ApplyDefaults(cfg)
	if cfg.Server.ListenAddr != "127.0.0.1:1" {
		t.Errorf("listen_addr overwritten: %q", cfg.Server.ListenAddr)
	}
	if cfg.Search.MaxResults != 5 {
		t.Errorf("max_results overwritten: %d", cfg.Search.MaxResults)
	}
	if cfg.Search.FuzzyThreshold == 0 {
		t.Error("fuzzy_threshold should have been defaulted")
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	if !slices.Contains(config.ValidProviderNames["llm"], "openai") {
		t.Error(`ValidProviderNames["llm"] should contain "openai"`)
	}
	if !slices.Contains(config.ValidProviderNames["embeddings"], "ollama") {
		t.Error(`ValidProviderNames["embeddings"] should contain "ollama"`)
	}
	if !slices.Contains(config.ValidProviderNames["stt"], "deepgram") {
		t.Error(`ValidProviderNames["stt"] should contain "deepgram"`)
	}
}
