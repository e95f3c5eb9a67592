package resample

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/petems/lfs-stt/internal/audio"
	"github.com/petems/lfs-stt/internal/observe"
	"github.com/rs/zerolog"
)

// Resampler is the fixed-chunk conversion a Stage drives. *Converter is the
// implementation used unless StageConfig names another.
type Resampler interface {
	InputFramesNext() int
	OutputFramesNext() int
	OutputDelay() int
	Process(in, out []float32) (read, written int, err error)
}

var _ Resampler = (*Converter)(nil)

// StageConfig configures a Stage.
type StageConfig struct {
	Format      audio.Format
	ChunkFrames int
	// Resampler replaces the Converter built from Format and ChunkFrames. It
	// must expect Format.SampleRate input.
	Resampler Resampler
	// Tap, if set, sees every resampled frame before it is forwarded. It runs
	// on the stage goroutine.
	Tap     func([]float32)
	Metrics *observe.Metrics
	Logger  zerolog.Logger
}

// Stage downmixes raw blocks, feeds them through the Converter and emits one
// 16 kHz frame per processed chunk. It runs regardless of recording state so
// the converter history stays continuous.
type Stage struct {
	format  audio.Format
	conv    Resampler
	carry   []float32
	tap     func([]float32)
	metrics *observe.Metrics
	log     zerolog.Logger

	warnPartial sync.Once

	consumed atomic.Uint64
	emitted  atomic.Uint64
}

// NewStage validates the native format and builds the converter.
func NewStage(cfg StageConfig) (*Stage, error) {
	if err := cfg.Format.Validate(); err != nil {
		return nil, err
	}
	conv := cfg.Resampler
	if conv == nil {
		c, err := NewConverter(cfg.Format.SampleRate, TargetRate, cfg.ChunkFrames)
		if err != nil {
			return nil, err
		}
		conv = c
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}

	cfg.Logger.Debug().
		Str("format", cfg.Format.String()).
		Int("chunk_in", conv.InputFramesNext()).
		Int("chunk_out", conv.OutputFramesNext()).
		Int("delay_frames", conv.OutputDelay()).
		Msg("Resampler ready")

	return &Stage{
		format:  cfg.Format,
		conv:    conv,
		carry:   make([]float32, 0, 2*conv.InputFramesNext()),
		tap:     cfg.Tap,
		metrics: m,
		log:     cfg.Logger,
	}, nil
}

// Process converts one raw interleaved block. Input that does not fill a
// whole chunk is carried into the next call, so the result may be empty.
func (s *Stage) Process(frame []float32) ([][]float32, error) {
	if s.format.Channels > 1 && len(frame)%s.format.Channels != 0 {
		s.warnPartial.Do(func() {
			s.log.Warn().
				Int("samples", len(frame)).
				Int("channels", s.format.Channels).
				Msg("Capture block has a partial frame, dropping trailing samples")
		})
	}

	var mono []float32
	if s.format.Channels == 1 {
		mono = frame
	} else {
		mono = audio.Downmix(frame, s.format.Channels)
	}
	s.carry = append(s.carry, mono...)

	need := s.conv.InputFramesNext()
	var out [][]float32
	off := 0
	for len(s.carry)-off >= need {
		buf := make([]float32, s.conv.OutputFramesNext())
		read, written, err := s.conv.Process(s.carry[off:], buf)
		if err != nil {
			return out, err
		}
		off += read
		out = append(out, buf[:written])
		need = s.conv.InputFramesNext()
	}

	if off > 0 {
		n := copy(s.carry, s.carry[off:])
		s.carry = s.carry[:n]
	}
	return out, nil
}

// Pending is the number of carried input frames waiting for a full chunk.
func (s *Stage) Pending() int { return len(s.carry) }

// Run consumes in until it is closed, forwarding resampled frames to out in
// order. A converter error stops the stage and is returned as is. The caller
// owns out and closes it once Run returns.
func (s *Stage) Run(in <-chan []float32, out chan<- []float32) error {
	ctx := context.Background()

	for frame := range in {
		frames, err := s.Process(frame)
		if err != nil {
			s.metrics.ResampleErrors.Add(ctx, 1)
			s.log.Error().Err(err).Msg("Resampler failed, stopping pipeline")
			return err
		}
		for _, f := range frames {
			if s.tap != nil {
				s.tap(f)
			}
			out <- f
			s.emitted.Add(1)
		}
		if len(frames) > 0 {
			s.metrics.ResampledFrames.Add(ctx, int64(len(frames)))
		}
		s.consumed.Add(1)
	}
	return nil
}

// Consumed is the number of raw blocks fully processed and forwarded.
func (s *Stage) Consumed() uint64 { return s.consumed.Load() }

// Emitted is the number of resampled frames forwarded.
func (s *Stage) Emitted() uint64 { return s.emitted.Load() }
