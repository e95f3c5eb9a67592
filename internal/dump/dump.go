// Package dump writes the resampled stream to a WAV file for listening to
// what the transcriber hears.
package dump

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

const bitDepth = 16

// Writer appends mono float frames to a 16-bit PCM WAV file. The header is
// finalized on Close.
type Writer struct {
	mu      sync.Mutex
	f       *os.File
	enc     *wav.Encoder
	buf     *audio.IntBuffer
	samples int
	rate    int
	log     zerolog.Logger
	failed  bool
	closed  bool
}

// Create opens path for writing, replacing any existing file.
func Create(path string, rate int, log zerolog.Logger) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create dump directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create dump file: %w", err)
	}

	log.Info().Str("path", path).Int("rate", rate).Msg("Dumping resampled audio")

	return &Writer{
		f:    f,
		enc:  wav.NewEncoder(f, rate, bitDepth, 1, 1),
		rate: rate,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
			SourceBitDepth: bitDepth,
		},
		log: log,
	}, nil
}

// Write converts frame to 16-bit PCM, clipping to the valid range.
func (w *Writer) Write(frame []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}

	if cap(w.buf.Data) < len(frame) {
		w.buf.Data = make([]int, len(frame))
	}
	w.buf.Data = w.buf.Data[:len(frame)]
	for i, v := range frame {
		w.buf.Data[i] = toPCM16(v)
	}

	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("failed to write dump: %w", err)
	}
	w.samples += len(frame)
	return nil
}

func toPCM16(v float32) int {
	s := math.Round(float64(v) * math.MaxInt16)
	if s > math.MaxInt16 {
		return math.MaxInt16
	}
	if s < math.MinInt16 {
		return math.MinInt16
	}
	return int(s)
}

// Tap adapts the writer to a frame callback. Write errors are logged once and
// further frames are skipped.
func (w *Writer) Tap() func([]float32) {
	return func(frame []float32) {
		if w.failed {
			return
		}
		if err := w.Write(frame); err != nil {
			w.failed = true
			w.log.Error().Err(err).Msg("Stopping audio dump")
		}
	}
}

// Samples is the number of samples written so far.
func (w *Writer) Samples() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.samples
}

// Close finalizes the WAV header and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.enc.Close(); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to finalize dump: %w", err)
	}

	w.log.Info().
		Int("samples", w.samples).
		Float64("seconds", float64(w.samples)/float64(w.rate)).
		Msg("Audio dump closed")
	return w.f.Close()
}
