// Package app turns hotkeys and chat commands into recording sessions, and
// finished sessions into chat messages waiting to be accepted.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/petems/lfs-stt/internal/command"
	"github.com/petems/lfs-stt/internal/config"
	"github.com/petems/lfs-stt/internal/inject"
	"github.com/petems/lfs-stt/internal/observe"
	"github.com/petems/lfs-stt/internal/pipeline"
	"github.com/petems/lfs-stt/internal/whisper"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNothingPending is returned by Accept when no message is waiting.
var ErrNothingPending = errors.New("no pending message")

const deliverTimeout = 5 * time.Second

// Recorder is the part of the pipeline the app drives.
type Recorder interface {
	Begin() error
	End() error
	Recording() bool
	Sessions() <-chan pipeline.Session
}

// StatusUpdater is an interface for updating status (e.g., tray icon).
// Recording state itself is read from the pipeline by the status surface.
type StatusUpdater interface {
	SetIdle()
	SetProcessing()
	SetError()
	SetPreview(channel, text string)
	SetChannel(channel string)
}

type Config struct {
	Recorder      Recorder
	Transcriber   whisper.Transcriber
	Injector      inject.Injector
	Config        *config.Config
	Metrics       *observe.Metrics
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

type App struct {
	rec     Recorder
	stt     whisper.Transcriber
	inj     inject.Injector
	cfg     *config.Config
	metrics *observe.Metrics
	log     zerolog.Logger
	status  StatusUpdater

	previewFor time.Duration
	stopAfter  time.Duration

	mu       sync.Mutex
	channel  int
	pending  string
	preview  *time.Timer
	previewN uint64
	autoStop *time.Timer
	takes    uint64
}

func New(cfg Config) *App {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	a := &App{
		rec:        cfg.Recorder,
		stt:        cfg.Transcriber,
		inj:        cfg.Injector,
		cfg:        cfg.Config,
		metrics:    m,
		log:        cfg.Logger,
		status:     cfg.StatusUpdater,
		previewFor: time.Duration(cfg.Config.Chat.PreviewTimeoutSecs) * time.Second,
	}
	if cfg.Config.Audio.AutoStop {
		a.stopAfter = time.Duration(cfg.Config.Audio.RecordingTimeoutSecs) * time.Second
	}
	return a
}

// OnHotkey handles a press or release of the recording hotkey.
func (a *App) OnHotkey(pressed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg.Mode == config.ModeToggle {
		if pressed {
			a.toggleLocked()
		}
		return
	}
	if pressed {
		a.startLocked()
	} else {
		a.stopLocked()
	}
}

// Handle runs one chat command.
func (a *App) Handle(ctx context.Context, cmd command.Command) {
	a.log.Debug().Str("command", cmd.String()).Msg("Command")

	switch cmd {
	case command.Toggle:
		a.Toggle()
	case command.Start:
		a.Start()
	case command.Stop:
		a.Stop()
	case command.Accept:
		if err := a.Accept(ctx); err != nil && !errors.Is(err, ErrNothingPending) {
			a.log.Error().Err(err).Msg("Accept failed")
		}
	case command.Next:
		a.NextChannel()
	case command.Prev:
		a.PrevChannel()
	}
}

func (a *App) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startLocked()
}

func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *App) Toggle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.toggleLocked()
}

func (a *App) toggleLocked() {
	if a.rec.Recording() {
		a.stopLocked()
	} else {
		a.startLocked()
	}
}

func (a *App) startLocked() {
	if a.rec.Recording() {
		return
	}
	if err := a.rec.Begin(); err != nil {
		a.log.Error().Err(err).Msg("Failed to start recording")
		a.setError()
		return
	}
	a.takes++
	a.armAutoStopLocked(a.takes)
}

func (a *App) stopLocked() {
	a.disarmAutoStopLocked()
	if err := a.rec.End(); err != nil {
		a.log.Error().Err(err).Msg("Failed to stop recording")
		a.setError()
	}
}

func (a *App) armAutoStopLocked(take uint64) {
	limit := a.stopAfter
	if limit <= 0 {
		return
	}
	a.autoStop = time.AfterFunc(limit, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.takes != take || !a.rec.Recording() {
			return
		}
		a.log.Info().Dur("limit", limit).Msg("Recording limit reached")
		a.stopLocked()
	})
}

func (a *App) disarmAutoStopLocked() {
	if a.autoStop != nil {
		a.autoStop.Stop()
		a.autoStop = nil
	}
}

// Run transcribes finished sessions until ctx is done or the pipeline closes
// its session channel.
func (a *App) Run(ctx context.Context) error {
	sessions := a.rec.Sessions()
	for {
		select {
		case <-ctx.Done():
			return nil
		case sess, ok := <-sessions:
			if !ok {
				return nil
			}
			a.transcribe(ctx, sess)
		}
	}
}

func (a *App) transcribe(ctx context.Context, sess pipeline.Session) {
	if a.status != nil {
		a.status.SetProcessing()
	}

	ctx, span := observe.StartSpan(ctx, "app.transcribe", trace.WithAttributes(
		attribute.Int64("session.id", int64(sess.ID)),
		attribute.Float64("session.seconds", sess.Duration().Seconds()),
	))
	defer span.End()

	start := time.Now()
	text, err := a.stt.Transcribe(ctx, sess.Samples)
	a.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.TranscriptionErrors.Add(ctx, 1)
		a.log.Error().Err(err).Uint64("session", sess.ID).Msg("Transcription failed")
		a.setError()
		return
	}

	text = whisper.Clean(text)
	if text == "" {
		a.log.Info().Uint64("session", sess.ID).Msg("Nothing recognised")
		if a.status != nil {
			a.status.SetIdle()
		}
		return
	}

	a.log.Info().
		Uint64("session", sess.ID).
		Dur("took", time.Since(start)).
		Str("text", text).
		Msg("Message ready")
	a.setPending(text)
}

func (a *App) setPending(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending = text
	a.previewN++
	if a.preview != nil {
		a.preview.Stop()
		a.preview = nil
	}
	if a.previewFor > 0 {
		n := a.previewN
		a.preview = time.AfterFunc(a.previewFor, func() {
			a.expirePreview(n)
		})
	}
	if a.status != nil {
		a.status.SetPreview(a.channelLocked().Display, text)
	}
}

func (a *App) expirePreview(n uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.previewN != n || a.pending == "" {
		return
	}
	a.log.Debug().Msg("Message preview expired")
	a.clearPendingLocked()
	if a.status != nil {
		a.status.SetIdle()
	}
}

func (a *App) clearPendingLocked() {
	a.pending = ""
	a.previewN++
	if a.preview != nil {
		a.preview.Stop()
		a.preview = nil
	}
}

// Pending returns the message waiting for Accept, if any.
func (a *App) Pending() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending, a.pending != ""
}

// Accept delivers the pending message to the active chat channel.
func (a *App) Accept(ctx context.Context) error {
	a.mu.Lock()
	if a.pending == "" {
		a.mu.Unlock()
		return ErrNothingPending
	}
	ch := a.channelLocked()
	msg := Compose(ch.Prefix, a.pending, a.cfg.Chat.MaxMessageLen)
	a.clearPendingLocked()
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	if err := a.inj.Deliver(ctx, msg); err != nil {
		a.setError()
		return fmt.Errorf("failed to deliver message: %w", err)
	}
	a.log.Info().Str("channel", ch.Display).Str("text", msg).Msg("Message sent")
	if a.status != nil {
		a.status.SetIdle()
	}
	return nil
}

// Compose prefixes text and truncates the result to max runes. A max of
// zero or less leaves the length alone.
func Compose(prefix, text string, max int) string {
	msg := prefix + text
	if max <= 0 || utf8.RuneCountInString(msg) <= max {
		return msg
	}
	n := 0
	for i := range msg {
		if n == max {
			return msg[:i]
		}
		n++
	}
	return msg
}

// Channel returns the active chat channel.
func (a *App) Channel() config.ChatChannel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.channelLocked()
}

func (a *App) channelLocked() config.ChatChannel {
	chans := a.cfg.Chat.Channels
	if len(chans) == 0 {
		return config.ChatChannel{}
	}
	return chans[a.channel%len(chans)]
}

func (a *App) NextChannel() { a.cycleChannel(1) }

func (a *App) PrevChannel() { a.cycleChannel(-1) }

func (a *App) cycleChannel(step int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.cfg.Chat.Channels)
	if n == 0 {
		return
	}
	a.channel = ((a.channel+step)%n + n) % n
	ch := a.channelLocked()
	a.log.Info().Str("channel", ch.Display).Msg("Chat channel changed")
	if a.status != nil {
		a.status.SetChannel(ch.Display)
		if a.pending != "" {
			a.status.SetPreview(ch.Display, a.pending)
		}
	}
}

func (a *App) setError() {
	if a.status != nil {
		a.status.SetError()
	}
}

// Shutdown ends a live session and stops the timers.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rec.Recording() {
		a.stopLocked()
	}
	a.disarmAutoStopLocked()
	a.clearPendingLocked()
	return nil
}

// Tray actions

// SetMode switches between push-to-talk and toggle, and saves the choice.
func (a *App) SetMode(mode string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if mode != config.ModePushToTalk && mode != config.ModeToggle {
		return fmt.Errorf("unknown mode %q", mode)
	}
	old := a.cfg.Mode
	a.cfg.Mode = mode
	a.log.Info().Str("from", old).Str("to", mode).Msg("Changed mode")
	return a.cfg.Save()
}

func (a *App) Mode() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Mode
}
