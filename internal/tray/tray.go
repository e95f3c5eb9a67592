package tray

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/getlantern/systray"
	"github.com/petems/lfs-stt/internal/app"
	"github.com/petems/lfs-stt/internal/config"
	"github.com/petems/lfs-stt/internal/logging"
	"github.com/petems/lfs-stt/internal/recording"
	"github.com/rs/zerolog"
)

const previewRunes = 40

type Config struct {
	App     *app.App
	Watcher *recording.Watcher
	Version string
	Commit  string
	Logger  zerolog.Logger
	// OnQuit runs when Quit is picked from the menu.
	OnQuit func()
}

type UI struct {
	app     *app.App
	watcher *recording.Watcher
	version string
	commit  string
	log     zerolog.Logger
	onQuit  func()

	ready atomic.Bool

	mu        sync.Mutex
	status    string
	recording bool
	preview   string
	channel   string

	// Menu items
	mStartStop *systray.MenuItem
	mPreview   *systray.MenuItem
	mAccept    *systray.MenuItem
	mChannel   *systray.MenuItem
	mNext      *systray.MenuItem
	mMode      *systray.MenuItem
}

// Status update methods for the app to call

func (u *UI) SetIdle() {
	u.mu.Lock()
	u.preview = ""
	u.mu.Unlock()
	u.updateStatus("idle")
}

func (u *UI) SetProcessing() {
	u.updateStatus("processing")
}

func (u *UI) SetError() {
	u.updateStatus("error")
}

func (u *UI) SetPreview(channel, text string) {
	u.mu.Lock()
	u.preview = previewLine(channel, text)
	u.mu.Unlock()
	u.updateStatus("preview")
}

func (u *UI) SetChannel(channel string) {
	u.mu.Lock()
	u.channel = channel
	u.mu.Unlock()
	u.refresh()
}

func New(cfg Config) *UI {
	u := &UI{
		app:     cfg.App,
		watcher: cfg.Watcher,
		version: cfg.Version,
		commit:  cfg.Commit,
		log:     cfg.Logger,
		onQuit:  cfg.OnQuit,
		status:  "idle",
	}
	if cfg.App != nil {
		u.channel = cfg.App.Channel().Display
	}
	return u
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
	u.mu.Lock()
	u.channel = application.Channel().Display
	u.mu.Unlock()
}

// Run blocks on the tray event loop, which must own the main thread. It
// returns once Quit is picked or ctx is done.
func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	if u.watcher != nil {
		go watchRecording(ctx, u.watcher, u.setRecording)
	}
	systray.Run(u.onReady, u.onExit)
	return nil
}

// watchRecording reports every logical change of the recording state until
// ctx is done.
func watchRecording(ctx context.Context, w *recording.Watcher, set func(bool)) {
	snap := w.Peek()
	set(snap.Recording)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.Changed():
			if snap, changed := w.Observe(); changed {
				set(snap.Recording)
			}
		}
	}
}

func (u *UI) setRecording(on bool) {
	u.mu.Lock()
	u.recording = on
	u.mu.Unlock()
	u.refresh()
}

func (u *UI) onReady() {
	systray.SetTooltip("Speech to text for in-game chat")

	// Build menu
	u.mStartStop = systray.AddMenuItem("Start Recording", "Start or stop recording")
	systray.AddSeparator()

	u.mPreview = systray.AddMenuItem("No message", "Pending message")
	u.mPreview.Disable()
	u.mAccept = systray.AddMenuItem("Send Message", "Send the pending message to chat")
	u.mChannel = systray.AddMenuItem("Channel", "Active chat channel")
	u.mChannel.Disable()
	u.mNext = systray.AddMenuItem("Next Channel", "Cycle the chat channel")
	systray.AddSeparator()

	u.mMode = systray.AddMenuItem(modeTitle(u.app.Mode()), "Toggle between modes")

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Show Log Path", "Print the log file location")
	mAbout := systray.AddMenuItem("About", "About lfs-stt")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.ready.Store(true)
	u.refresh()

	// Event loop
	go u.handleEvents(mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			u.app.Toggle()
		case <-u.mAccept.ClickedCh:
			if err := u.app.Accept(context.Background()); err != nil {
				u.log.Warn().Err(err).Msg("Send from tray failed")
			}
		case <-u.mNext.ClickedCh:
			u.app.NextChannel()
		case <-u.mMode.ClickedCh:
			u.toggleMode()
		case <-mLogs.ClickedCh:
			u.log.Info().Str("path", logging.LogPath()).Msg("Log file")
		case <-mAbout.ClickedCh:
			u.log.Info().Str("version", u.version).Str("commit", u.commit).Msg("lfs-stt")
		case <-mQuit.ClickedCh:
			if u.onQuit != nil {
				u.onQuit()
			}
			systray.Quit()
			return
		}
	}
}

func (u *UI) toggleMode() {
	next := config.ModeToggle
	if u.app.Mode() == config.ModeToggle {
		next = config.ModePushToTalk
	}
	if err := u.app.SetMode(next); err != nil {
		u.log.Error().Err(err).Msg("Failed to save mode")
	}
	u.mMode.SetTitle(modeTitle(u.app.Mode()))
}

func (u *UI) onExit() {}

func (u *UI) updateStatus(status string) {
	u.mu.Lock()
	u.status = status
	u.mu.Unlock()
	u.refresh()
}

// refresh pushes the current state to the tray once it is built.
func (u *UI) refresh() {
	if !u.ready.Load() {
		return
	}
	u.mu.Lock()
	status, rec, preview, channel := u.status, u.recording, u.preview, u.channel
	u.mu.Unlock()

	systray.SetTitle(titleFor(status, rec))
	if rec {
		u.mStartStop.SetTitle("Stop Recording")
	} else {
		u.mStartStop.SetTitle("Start Recording")
	}
	if preview == "" {
		u.mPreview.SetTitle("No message")
		u.mAccept.Disable()
	} else {
		u.mPreview.SetTitle(preview)
		u.mAccept.Enable()
	}
	u.mChannel.SetTitle("Channel: " + channel)
}

// titleFor is the tray title: microphone emoji plus status indicator.
// A live recording wins over any other status.
func titleFor(status string, recording bool) string {
	if recording {
		status = "recording"
	}
	return fmt.Sprintf("🎤 %s", emojiForStatus(status))
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "recording":
		return "🔴" // Red - recording
	case "processing":
		return "🟡" // Yellow - processing transcription
	case "preview":
		return "💬" // Message waiting to be sent
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - ready/idle
	}
}

func modeTitle(mode string) string {
	if mode == config.ModeToggle {
		return "Mode: Toggle"
	}
	return "Mode: Push-to-Talk"
}

func previewLine(channel, text string) string {
	r := []rune(text)
	if len(r) > previewRunes {
		text = string(r[:previewRunes-1]) + "…"
	}
	if channel == "" {
		return text
	}
	return channel + ": " + text
}
