package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often [Watcher.Run] polls the config file.
const DefaultWatchInterval = 5 * time.Second

// fileState identifies one revision of the config file.
type fileState struct {
	mtime time.Time
	size  int64
	sum   [sha256.Size]byte
}

// Watcher keeps the config file and the running server in step. It loads the
// file once on construction, then reloads it when polled by [Watcher.Run] or
// when [Watcher.Reload] is called (for example on SIGHUP). A revision that
// fails to parse or validate is logged and skipped; the previous config stays
// current and onChange is not called.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, next *Config)
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	state   fileState
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval of [Watcher.Run].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for skipped revisions and reloads.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher loads path and returns a Watcher reporting later changes to
// onChange. onChange may be nil.
func NewWatcher(path string, onChange func(old, next *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.state = cfg, st
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls the file until ctx is done. Files whose mtime and size are
// unchanged are not re-read.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			info, err := os.Stat(w.path)
			if err != nil {
				w.log.Warn("config file unavailable", "path", w.path, "err", err)
				continue
			}
			w.mu.Lock()
			same := info.ModTime().Equal(w.state.mtime) && info.Size() == w.state.size
			w.mu.Unlock()
			if same {
				continue
			}
			if _, err := w.Reload(); err != nil {
				w.log.Warn("config change ignored", "path", w.path, "err", err)
			}
		}
	}
}

// Reload re-reads the file now. It reports whether the content changed and
// onChange was called. An invalid file returns an error and leaves the
// current config in place.
func (w *Watcher) Reload() (bool, error) {
	cfg, st, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if st.sum == w.state.sum {
		w.state = st
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	w.current, w.state = cfg, st
	w.mu.Unlock()

	w.log.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true, nil
}

func (w *Watcher) read() (*Config, fileState, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{mtime: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}, nil
}
