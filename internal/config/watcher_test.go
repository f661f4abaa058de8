package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/transcriptqa/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
providers:
  llm:
    name: openai
transcript:
  raw_path: episode.json
speakers:
  0: Host
`

const watcherUpdatedYAML = `
server:
  log_level: debug
providers:
  llm:
    name: openai
transcript:
  raw_path: episode.json
speakers:
  0: Host
  1: Guest
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// changes records onChange calls on a buffered channel.
type changes chan [2]*config.Config

func (c changes) record(old, next *config.Config) { c <- [2]*config.Config{old, next} }

func newWatcher(t *testing.T, content string, opts ...config.WatcherOption) (*config.Watcher, string, changes) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, content)
	ch := make(changes, 4)
	w, err := config.NewWatcher(path, ch.record, opts...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, path, ch
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _, _ := newWatcher(t, watcherValidYAML)
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("log_level = %q, want %q", got, config.LogInfo)
	}
	if got := w.Current().Speakers[0]; got != "Host" {
		t.Errorf("speakers[0] = %q, want Host", got)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected an error for a missing file")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherInvalidYAML)
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected an error for an invalid file")
	}
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		content     string
		wantChanged bool
		wantErr     bool
		wantLevel   config.LogLevel
	}{
		{"unchanged content", watcherValidYAML, false, false, config.LogInfo},
		{"new speaker and level", watcherUpdatedYAML, true, false, config.LogDebug},
		{"invalid revision", watcherInvalidYAML, false, true, config.LogInfo},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w, path, ch := newWatcher(t, watcherValidYAML)
			writeFile(t, path, tc.content)

			changed, err := w.Reload()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Reload error = %v, wantErr %v", err, tc.wantErr)
			}
			if changed != tc.wantChanged {
				t.Errorf("changed = %v, want %v", changed, tc.wantChanged)
			}
			if got := w.Current().Server.LogLevel; got != tc.wantLevel {
				t.Errorf("current log_level = %q, want %q", got, tc.wantLevel)
			}
			if !tc.wantChanged {
				if len(ch) != 0 {
					t.Errorf("onChange called %d times, want 0", len(ch))
				}
				return
			}
			got := <-ch
			if got[0].Server.LogLevel != config.LogInfo || got[1].Server.LogLevel != config.LogDebug {
				t.Errorf("onChange(old=%q, next=%q)", got[0].Server.LogLevel, got[1].Server.LogLevel)
			}
			if d := config.Diff(got[0], got[1]); !d.SpeakersChanged || d.NewSpeakers[1] != "Guest" {
				t.Errorf("diff = %+v, want speaker 1 added", d)
			}
		})
	}
}

func TestWatcher_RunPicksUpEdits(t *testing.T) {
	t.Parallel()
	w, path, ch := newWatcher(t, watcherValidYAML, config.WithInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeFile(t, path, watcherUpdatedYAML)
	select {
	case got := <-ch:
		if got[1].Server.LogLevel != config.LogDebug {
			t.Errorf("next log_level = %q, want debug", got[1].Server.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("edit not picked up within 2s")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	w, path, ch := newWatcher(t, watcherValidYAML)

	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("touch: %v", err)
	}
	changed, err := w.Reload()
	if err != nil || changed {
		t.Errorf("Reload after touch = %v, %v; want false, nil", changed, err)
	}
	if len(ch) != 0 {
		t.Error("onChange called for a touch")
	}
}
