// Package pipeline wires capture, resampling and recording-gated
// accumulation together and hands finished sessions to the transcriber.
//
// Data flows Source -> Stage -> Accumulator -> Sessions. Begin and End flip
// the shared recording state; they never touch the audio path.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/petems/lfs-stt/internal/audio"
	"github.com/petems/lfs-stt/internal/observe"
	"github.com/petems/lfs-stt/internal/recording"
	"github.com/petems/lfs-stt/internal/resample"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultMaxRecording sizes the session buffer when no limit is configured.
const DefaultMaxRecording = 10 * time.Second

// resampledBuffer decouples the stage from the accumulator by a few frames.
const resampledBuffer = 4

// Config configures a Pipeline.
type Config struct {
	Source audio.Source
	// ChunkFrames is the nominal resampler chunk; zero uses the default.
	ChunkFrames int
	// MaxRecording is a capacity hint for session buffers, not a cutoff.
	MaxRecording    time.Duration
	DispatchTimeout time.Duration
	// PauseWhenIdle stops the hardware stream between sessions. Input short
	// of one resampler chunk when a session ends stays in the stage and is
	// emitted at the start of the next session, ahead of fresh audio.
	PauseWhenIdle bool
	// Tap receives every resampled frame, recording or not.
	Tap     func([]float32)
	Metrics *observe.Metrics
	Logger  zerolog.Logger

	resampler resample.Resampler
}

// Pipeline owns one capture session. Run it once.
type Pipeline struct {
	src      audio.Source
	state    *recording.State
	stage    *resample.Stage
	acc      *Accumulator
	sessions chan Session
	pause    bool
	metrics  *observe.Metrics
	log      zerolog.Logger

	dropWarn rate.Sometimes

	// serializes Begin/End so resume/pause pair up with state flips
	ctl sync.Mutex
}

// New validates the source format and builds the stages. A format with an
// unsupported channel count fails here with an *audio.ConfigurationError.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, errors.New("pipeline: nil source")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.MaxRecording <= 0 {
		cfg.MaxRecording = DefaultMaxRecording
	}

	stage, err := resample.NewStage(resample.StageConfig{
		Format:      cfg.Source.Format(),
		ChunkFrames: cfg.ChunkFrames,
		Resampler:   cfg.resampler,
		Tap:         cfg.Tap,
		Metrics:     cfg.Metrics,
		Logger:      cfg.Logger.With().Str("component", "resample").Logger(),
	})
	if err != nil {
		return nil, err
	}

	state := recording.New()
	sessions := make(chan Session, 1)
	acc := NewAccumulator(AccumulatorConfig{
		Watcher:         state.Subscribe(),
		Out:             sessions,
		CapacityHint:    int(cfg.MaxRecording.Seconds() * resample.TargetRate),
		DispatchTimeout: cfg.DispatchTimeout,
		Metrics:         cfg.Metrics,
		Logger:          cfg.Logger.With().Str("component", "accumulator").Logger(),
	})

	return &Pipeline{
		src:      cfg.Source,
		state:    state,
		stage:    stage,
		acc:      acc,
		sessions: sessions,
		pause:    cfg.PauseWhenIdle,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
		dropWarn: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}, nil
}

// Run starts the stages and blocks until the source is drained. Cancelling
// ctx ends any live session, closes the source and lets every stage finish
// what is already queued. Sessions is closed when Run returns. A resampler
// failure is returned as *Error and the live session is discarded.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.pause {
		if err := p.src.Resume(); err != nil {
			_ = p.src.Close()
			close(p.sessions)
			return &Error{Stage: "capture", Err: err}
		}
	}

	resampled := make(chan []float32, resampledBuffer)
	done := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := p.stage.Run(p.src.Frames(), resampled)
		if err != nil {
			p.acc.Abort()
		}
		close(resampled)
		if err != nil {
			return &Error{Stage: "resample", Err: err}
		}
		return nil
	})

	g.Go(func() error {
		defer close(done)
		return p.acc.Run(resampled)
	})

	g.Go(func() error {
		p.monitor(done)
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-done:
		}
		if ctx.Err() != nil {
			if err := p.End(); err != nil {
				p.log.Warn().Err(err).Msg("Failed to end session on shutdown")
			}
		}
		if err := p.src.Close(); err != nil {
			p.log.Warn().Err(err).Msg("Failed to close capture source")
		}
		return nil
	})

	err := g.Wait()
	p.log.Debug().
		Uint64("relay_dropped", p.src.Dropped()).
		Uint64("blocks", p.stage.Consumed()).
		Msg("Pipeline stopped")
	return err
}

// monitor surfaces capture faults and relay drops off the real-time thread.
func (p *Pipeline) monitor(done <-chan struct{}) {
	ctx := context.Background()
	errs := p.src.Errors()
	var reported uint64

	for {
		select {
		case <-done:
			p.recordDrops(ctx, &reported)
			return

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			op := "unknown"
			var capErr *audio.CaptureError
			if errors.As(err, &capErr) {
				op = capErr.Op
			}
			p.metrics.RecordCaptureError(ctx, op)
			p.log.Warn().Err(err).Str("op", op).Msg("Capture error")

		case <-p.src.Drops():
			total := p.recordDrops(ctx, &reported)
			p.dropWarn.Do(func() {
				p.log.Warn().
					Uint64("dropped_total", total).
					Msg("Capture relay full, dropping newest blocks")
			})
		}
	}
}

func (p *Pipeline) recordDrops(ctx context.Context, reported *uint64) uint64 {
	total := p.src.Dropped()
	if delta := total - *reported; delta > 0 {
		p.metrics.RelayDrops.Add(ctx, int64(delta))
		*reported = total
	}
	return total
}

// Begin starts a session. Calling it while already recording is a no-op.
func (p *Pipeline) Begin() error {
	p.ctl.Lock()
	defer p.ctl.Unlock()

	was := p.state.IsRecording()
	if !was && p.pause {
		if err := p.src.Resume(); err != nil {
			return err
		}
	}
	snap := p.state.Set(true)
	if !was {
		p.log.Info().Uint64("session", snap.Session).Msg("Recording started")
	}
	return nil
}

// End finishes the current session. Calling it while idle is a no-op.
func (p *Pipeline) End() error {
	p.ctl.Lock()
	defer p.ctl.Unlock()

	was := p.state.IsRecording()
	snap := p.state.Set(false)
	if !was {
		return nil
	}
	p.log.Info().Uint64("session", snap.Session).Msg("Recording stopped")
	if p.pause {
		return p.src.Pause()
	}
	return nil
}

// Toggle ends a live session or begins a new one, and reports whether the
// pipeline is now recording.
func (p *Pipeline) Toggle() (bool, error) {
	if p.Recording() {
		return false, p.End()
	}
	return true, p.Begin()
}

// Recording reports the current state.
func (p *Pipeline) Recording() bool { return p.state.IsRecording() }

// Subscribe gives an extra reader its own view of the recording state.
func (p *Pipeline) Subscribe() *recording.Watcher { return p.state.Subscribe() }

// Sessions yields finished, non-empty sessions. It has one slot; a reader
// that falls behind by more than the dispatch timeout loses sessions.
func (p *Pipeline) Sessions() <-chan Session { return p.sessions }

// Format is the native capture format.
func (p *Pipeline) Format() audio.Format { return p.src.Format() }

// Stats is a point-in-time view of pipeline counters.
type Stats struct {
	RelayDropped    uint64
	BlocksResampled uint64
	FramesResampled uint64
	FramesProcessed uint64
	Sessions        AccumulatorStats
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		RelayDropped:    p.src.Dropped(),
		BlocksResampled: p.stage.Consumed(),
		FramesResampled: p.stage.Emitted(),
		FramesProcessed: p.acc.Processed(),
		Sessions:        p.acc.Stats(),
	}
}
