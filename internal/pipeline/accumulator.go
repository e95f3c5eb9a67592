package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/petems/lfs-stt/internal/observe"
	"github.com/petems/lfs-stt/internal/recording"
	"github.com/rs/zerolog"
)

// DefaultDispatchTimeout bounds how long a flush waits for the transcriber.
const DefaultDispatchTimeout = 2 * time.Second

// AccumulatorConfig configures an Accumulator.
type AccumulatorConfig struct {
	Watcher *recording.Watcher
	Out     chan<- Session
	// CapacityHint pre-sizes each session buffer, in samples. Sessions may
	// grow past it.
	CapacityHint    int
	DispatchTimeout time.Duration
	Metrics         *observe.Metrics
	Logger          zerolog.Logger
}

// Accumulator gates resampled frames by the recording state and hands each
// finished session to Out.
type Accumulator struct {
	watch   *recording.Watcher
	out     chan<- Session
	capHint int
	timeout time.Duration
	metrics *observe.Metrics
	log     zerolog.Logger
	aborted atomic.Bool

	// owned by the Run goroutine
	live    []float32
	session uint64
	active  bool
	started time.Time

	observed   atomic.Uint64
	processed  atomic.Uint64
	dispatched atomic.Uint64
	empty      atomic.Uint64
	dropped    atomic.Uint64
}

func NewAccumulator(cfg AccumulatorConfig) *Accumulator {
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Accumulator{
		watch:   cfg.Watcher,
		out:     cfg.Out,
		capHint: cfg.CapacityHint,
		timeout: cfg.DispatchTimeout,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}
}

// Abort makes the accumulator discard the live session when its input
// closes instead of dispatching it.
func (a *Accumulator) Abort() { a.aborted.Store(true) }

// Run waits on both the frame stream and state changes until in is closed.
// It closes Out before returning.
func (a *Accumulator) Run(in <-chan []float32) error {
	defer close(a.out)

	for {
		select {
		case <-a.watch.Changed():
			a.sync()

		case frame, ok := <-in:
			if !ok {
				a.drain()
				return nil
			}
			// A frame that arrives after a change is judged by the new state.
			a.sync()
			if a.active {
				a.live = append(a.live, frame...)
			}
			a.processed.Add(1)
		}
	}
}

func (a *Accumulator) drain() {
	if a.aborted.Load() {
		if a.active {
			a.log.Warn().
				Uint64("session", a.session).
				Int("samples", len(a.live)).
				Msg("Discarding session after pipeline failure")
			a.finish(observe.OutcomeAborted, Session{ID: a.session, Samples: a.live})
			a.live = nil
		}
		return
	}

	a.sync()
	if a.active {
		a.flush()
	}
}

// sync applies the latest observed state. A new session number while still
// recording means an end and begin were coalesced: flush the old session and
// start a fresh one.
func (a *Accumulator) sync() {
	snap, changed := a.watch.Observe()
	a.observed.Store(snap.Version)
	if !changed {
		return
	}
	if a.active && (!snap.Recording || snap.Session != a.session) {
		a.flush()
	}
	if snap.Recording && !a.active {
		a.start(snap.Session)
	}
}

func (a *Accumulator) start(session uint64) {
	a.session = session
	a.active = true
	a.started = time.Now()
	a.live = make([]float32, 0, a.capHint)
	a.metrics.Recording.Add(context.Background(), 1)
	a.log.Debug().Uint64("session", session).Msg("Session started")
}

func (a *Accumulator) finish(outcome string, sess Session) {
	a.active = false
	ctx := context.Background()
	a.metrics.Recording.Add(ctx, -1)
	a.metrics.RecordFlush(ctx, outcome, sess.Duration().Seconds())
}

func (a *Accumulator) flush() {
	sess := Session{ID: a.session, Samples: a.live}
	a.live = nil

	if len(sess.Samples) == 0 {
		a.empty.Add(1)
		a.finish(observe.OutcomeEmpty, sess)
		a.log.Debug().Uint64("session", sess.ID).Msg("Discarding empty session")
		return
	}

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	select {
	case a.out <- sess:
		a.dispatched.Add(1)
		a.finish(observe.OutcomeDispatched, sess)
		a.log.Info().
			Uint64("session", sess.ID).
			Dur("audio", sess.Duration()).
			Dur("wall", time.Since(a.started)).
			Msg("Session dispatched")
	case <-timer.C:
		a.dropped.Add(1)
		a.finish(observe.OutcomeDropped, sess)
		a.log.Error().
			Err(ErrDispatchBackpressure).
			Uint64("session", sess.ID).
			Dur("audio", sess.Duration()).
			Dur("timeout", a.timeout).
			Msg("Dropping session, transcriber did not accept it in time")
	}
}

// Observed is the state version the accumulator has acted on.
func (a *Accumulator) Observed() uint64 { return a.observed.Load() }

// Processed is the number of resampled frames handled so far.
func (a *Accumulator) Processed() uint64 { return a.processed.Load() }

// AccumulatorStats counts session outcomes.
type AccumulatorStats struct {
	Dispatched uint64
	Empty      uint64
	Dropped    uint64
}

func (a *Accumulator) Stats() AccumulatorStats {
	return AccumulatorStats{
		Dispatched: a.dispatched.Load(),
		Empty:      a.empty.Load(),
		Dropped:    a.dropped.Load(),
	}
}
