package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/transcriptqa/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server:     config.ServerConfig{LogLevel: config.LogInfo, ListenAddr: ":8080"},
		Transcript: config.TranscriptConfig{RawPath: "r.json"},
		Speakers:   map[int]string{0: "Host"},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, cfg)
	if d.Changed() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level alone should not require a restart, got %v", d.RestartRequired)
	}
}

func TestDiff_SpeakersChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Speakers = map[int]string{0: "Host", 1: "Guest"}

	d := config.Diff(old, new)
	if !d.SpeakersChanged {
		t.Fatal("expected SpeakersChanged=true")
	}
	if d.NewSpeakers[1] != "Guest" {
		t.Errorf("NewSpeakers[1] = %q, want Guest", d.NewSpeakers[1])
	}
	// The diff owns its copy.
	new.Speakers[1] = "Mutated"
	if d.NewSpeakers[1] != "Guest" {
		t.Error("NewSpeakers aliases the new config's map")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.ListenAddr = ":9090"
	new.Answer.Timeout = 5 * time.Second
	new.Providers.LLM.Model = "gpt-4o"

	d := config.Diff(old, new)
	want := []string{"answer", "providers", "server"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.LogLevelChanged || d.SpeakersChanged {
		t.Error("unexpected live changes")
	}
}
