package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog"

	"github.com/petems/lfs-stt/internal/config"
)

// Transcriber turns one finished 16 kHz mono session into text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
	Close() error
}

type whisperTranscriber struct {
	model     whisper.Model
	modelPath string
	language  string
	threads   int
	log       zerolog.Logger

	// one inference at a time; whisper contexts are heavy
	mu sync.Mutex
}

var _ Transcriber = (*whisperTranscriber)(nil)

// New loads the configured model, downloading a known model name into the
// models directory first if it is missing.
func New(ctx context.Context, cfg config.WhisperConfig, log zerolog.Logger) (Transcriber, error) {
	modelPath, err := ResolveModel(ctx, cfg, config.ModelsPath(), log)
	if err != nil {
		return nil, err
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	log.Info().Str("model", modelPath).Msg("Whisper model loaded")

	return &whisperTranscriber{
		model:     model,
		modelPath: modelPath,
		language:  cfg.Language,
		threads:   cfg.Threads,
		log:       log,
	}, nil
}

// ResolveModel returns the model file to load. An explicit model_path must
// exist; a model name resolves under modelsDir and is downloaded if absent.
func ResolveModel(ctx context.Context, cfg config.WhisperConfig, modelsDir string, log zerolog.Logger) (string, error) {
	if cfg.ModelPath != "" {
		if _, err := os.Stat(cfg.ModelPath); err != nil {
			return "", fmt.Errorf("failed to find model: %w", err)
		}
		return cfg.ModelPath, nil
	}

	modelPath := filepath.Join(modelsDir, cfg.Model+".bin")
	if _, err := os.Stat(modelPath); errors.Is(err, os.ErrNotExist) {
		if err := downloadModel(ctx, cfg.Model, modelPath, log); err != nil {
			return "", fmt.Errorf("failed to download model: %w", err)
		}
	}
	return modelPath, nil
}

func (w *whisperTranscriber) Transcribe(ctx context.Context, samples []float32) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model == nil {
		return "", errors.New("transcriber closed")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("failed to create context: %w", err)
	}

	if w.threads > 0 {
		wctx.SetThreads(uint(w.threads))
	}
	if w.language != "auto" && w.language != "" {
		if err := wctx.SetLanguage(w.language); err != nil {
			w.log.Warn().Err(err).Str("language", w.language).Msg("Failed to set language, using default")
		}
	}
	wctx.SetTranslate(false)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper process failed: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read segment: %w", err)
		}
		parts = append(parts, segment.Text)
	}

	return strings.Join(parts, " "), nil
}

func (w *whisperTranscriber) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model != nil {
		err := w.model.Close()
		w.model = nil
		return err
	}
	return nil
}

// annotations matches whisper's non-speech markers such as [BLANK_AUDIO],
// [MUSIC] or (wind blowing).
var annotations = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)

// Clean strips non-speech annotations and collapses whitespace.
func Clean(text string) string {
	text = annotations.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}
