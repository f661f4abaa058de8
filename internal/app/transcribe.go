package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/transcriptqa/internal/config"
	"github.com/MrWong99/transcriptqa/internal/transcript"
	"github.com/MrWong99/transcriptqa/pkg/provider/stt"
)

// Transcribe sends the recording at cfg.AudioPath to p and writes the raw
// response to cfg.RawPath before building it, so a build failure never costs
// a second transcription. It returns the built transcript.
func Transcribe(ctx context.Context, p stt.Provider, cfg config.TranscriptConfig, req stt.Request) (*transcript.Transcript, error) {
	if cfg.AudioPath == "" || cfg.RawPath == "" {
		return nil, errors.New("app: transcribe: audio_path and raw_path are required")
	}

	f, err := os.Open(cfg.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("app: transcribe: %w", err)
	}
	defer f.Close()

	if req.ContentType == "" {
		req.ContentType = mime.TypeByExtension(filepath.Ext(cfg.AudioPath))
	}
	if info, err := f.Stat(); err == nil {
		slog.Info("transcribing recording", "path", cfg.AudioPath, "bytes", info.Size(), "content_type", req.ContentType)
	}

	start := time.Now()
	raw, err := p.Transcribe(ctx, f, req)
	if err != nil {
		return nil, fmt.Errorf("app: transcribe: %w", err)
	}
	if err := writeFileAtomic(cfg.RawPath, raw); err != nil {
		return nil, fmt.Errorf("app: save raw transcription: %w", err)
	}
	slog.Info("raw transcription saved", "path", cfg.RawPath, "elapsed", time.Since(start).Round(time.Second))

	parsed, err := transcript.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return transcript.Build(parsed, transcript.WithGapThreshold(cfg.GapThreshold))
}

// writeFileAtomic replaces path with data via a temp file in the same
// directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".raw-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
