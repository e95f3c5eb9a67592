package whisper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Model download URLs (Hugging Face)
var modelURLs = map[string]string{
	"tiny.en":        "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.en.bin",
	"base.en":        "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.en.bin",
	"small.en":       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.en.bin",
	"medium.en":      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.en.bin",
	"large-v3":       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin",
	"large-v3-turbo": "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3-turbo.bin",
}

// progress logs how much of a model has arrived, at most every two seconds
// plus once at the end.
type progress struct {
	total int64
	done  int64
	model string
	every rate.Sometimes
	log   zerolog.Logger
}

func newProgress(model string, total int64, log zerolog.Logger) *progress {
	return &progress{
		total: total,
		model: model,
		every: rate.Sometimes{First: 1, Interval: 2 * time.Second},
		log:   log,
	}
}

func (p *progress) Write(b []byte) (int, error) {
	p.done += int64(len(b))
	if p.done >= p.total {
		p.report()
	} else {
		p.every.Do(p.report)
	}
	return len(b), nil
}

func (p *progress) report() {
	p.log.Info().
		Str("model", p.model).
		Float64("percent", float64(p.done)/float64(p.total)*100).
		Float64("downloaded_mb", float64(p.done)/(1<<20)).
		Float64("total_mb", float64(p.total)/(1<<20)).
		Msg("Downloading model")
}

// downloadModel fetches a known model to destPath via a temp file.
func downloadModel(ctx context.Context, model string, destPath string, log zerolog.Logger) error {
	url, ok := modelURLs[model]
	if !ok {
		return fmt.Errorf("unknown model: %s", model)
	}
	return fetch(ctx, http.DefaultClient, model, url, destPath, log)
}

func fetch(ctx context.Context, client *http.Client, model, url, destPath string, log zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	tmpPath := destPath + ".tmp"
	defer os.Remove(tmpPath)

	log.Info().Str("model", model).Str("url", url).Msg("Starting model download")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download model: HTTP %d", resp.StatusCode)
	}

	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	var dst io.Writer = out
	if resp.ContentLength > 0 {
		dst = io.MultiWriter(out, newProgress(model, resp.ContentLength, log))
	} else {
		log.Warn().Str("model", model).Msg("Content-Length not provided, progress tracking unavailable")
	}

	written, err := io.Copy(dst, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to move model file: %w", err)
	}

	log.Info().
		Str("model", model).
		Str("path", destPath).
		Float64("size_mb", float64(written)/(1<<20)).
		Msg("Model downloaded")
	return nil
}

// TODO: Add SHA256 verification
