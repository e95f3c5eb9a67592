package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petems/lfs-stt/internal/app"
	"github.com/petems/lfs-stt/internal/audio"
	"github.com/petems/lfs-stt/internal/command"
	"github.com/petems/lfs-stt/internal/config"
	"github.com/petems/lfs-stt/internal/dump"
	"github.com/petems/lfs-stt/internal/hotkey"
	"github.com/petems/lfs-stt/internal/inject"
	"github.com/petems/lfs-stt/internal/logging"
	"github.com/petems/lfs-stt/internal/observe"
	"github.com/petems/lfs-stt/internal/permissions"
	"github.com/petems/lfs-stt/internal/pipeline"
	"github.com/petems/lfs-stt/internal/resample"
	"github.com/petems/lfs-stt/internal/tray"
	"github.com/petems/lfs-stt/internal/whisper"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "config file (.json, .yaml); defaults to "+config.DefaultPath())
	listDevices := flag.Bool("list-devices", false, "print input devices and exit")
	flag.Parse()

	if *listDevices {
		if err := printDevices(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.Level())

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("lfs-stt stopped")
	}
}

func printDevices() error {
	devices, err := audio.ScanDevices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		mark := " "
		if d.Default {
			mark = "*"
		}
		fmt.Printf("%s %s (%d ch, %.0f Hz)\n", mark, d.Name, d.Channels, d.DefaultRate)
	}
	return nil
}

func run(cfg *config.Config, log zerolog.Logger) error {
	// macOS requires explicit microphone + accessibility approval before capture or hotkeys work
	if err := permissions.EnsurePermissions(); err != nil {
		if errors.Is(err, permissions.ErrMicrophone) {
			return err
		}
		log.Warn().Err(err).Msg("Hotkey may not work")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "lfs-stt",
		ServiceVersion: Version,
	})
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown")
		}
	}()
	metrics := observe.DefaultMetrics()

	// Initialize whisper
	transcriber, err := whisper.New(ctx, cfg.Whisper, component(log, "whisper"))
	if err != nil {
		return fmt.Errorf("failed to initialize whisper: %w", err)
	}
	defer transcriber.Close()

	// Initialize message delivery
	injector, err := inject.New(cfg.Inject)
	if err != nil {
		return fmt.Errorf("failed to initialize delivery: %w", err)
	}

	// Initialize audio capture
	capture, err := audio.Open(cfg.Audio, component(log, "capture"))
	if err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}

	var tap func([]float32)
	if path := cfg.Debug.DumpResampled; path != "" {
		w, err := dump.Create(path, resample.TargetRate, component(log, "dump"))
		if err != nil {
			capture.Close()
			return err
		}
		defer w.Close()
		tap = w.Tap()
	}

	pipe, err := pipeline.New(pipeline.Config{
		Source:          capture,
		MaxRecording:    time.Duration(cfg.Audio.RecordingTimeoutSecs) * time.Second,
		DispatchTimeout: time.Duration(cfg.Audio.DispatchTimeoutMs) * time.Millisecond,
		PauseWhenIdle:   cfg.Audio.PauseWhenIdle,
		Tap:             tap,
		Metrics:         metrics,
		Logger:          component(log, "pipeline"),
	})
	if err != nil {
		capture.Close()
		return err
	}
	log.Info().Str("format", pipe.Format().String()).Msg("Audio input ready")

	var (
		trayUI *tray.UI
		status app.StatusUpdater
	)
	if cfg.Tray.Enabled {
		trayUI = tray.New(tray.Config{
			Watcher: pipe.Subscribe(),
			Version: Version,
			Commit:  Commit,
			Logger:  component(log, "tray"),
			OnQuit:  stop,
		})
		status = trayUI
	}

	application := app.New(app.Config{
		Recorder:      pipe,
		Transcriber:   transcriber,
		Injector:      injector,
		Config:        cfg,
		Metrics:       metrics,
		Logger:        component(log, "app"),
		StatusUpdater: status,
	})
	if trayUI != nil {
		trayUI.SetApp(application)
	}

	// Register global hotkey
	hkManager, err := hotkey.New()
	if err != nil {
		log.Warn().Err(err).Msg("Global hotkey unavailable")
	} else {
		defer hkManager.Close()
		if err := hkManager.Register(cfg.PlatformHotkey(), application.OnHotkey); err != nil {
			log.Warn().Err(err).Str("hotkey", cfg.PlatformHotkey()).Msg("Failed to register hotkey")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := pipe.Run(gctx)
		// The source can also end on its own; take everything else down.
		stop()
		return err
	})
	g.Go(func() error {
		// Keeps consuming until the pipeline closes its sessions, so a
		// session flushed during shutdown is never left undelivered.
		return application.Run(context.WithoutCancel(gctx))
	})
	g.Go(func() error {
		<-gctx.Done()
		return application.Shutdown(context.Background())
	})
	if cfg.Metrics.Listen != "" {
		g.Go(func() error {
			return observe.Serve(gctx, cfg.Metrics.Listen, component(log, "metrics"))
		})
	}
	if cfg.Commands.Stdin {
		g.Go(func() error {
			err := command.Listen(gctx, os.Stdin,
				func(c command.Command) { application.Handle(gctx, c) },
				func(line string) { log.Debug().Str("line", line).Msg("Ignoring input") })
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	log.Info().
		Str("version", Version).
		Str("mode", cfg.Mode).
		Str("hotkey", cfg.PlatformHotkey()).
		Msg("lfs-stt starting...")

	if trayUI == nil {
		err = g.Wait()
	} else {
		// Start tray UI - MUST run on main thread
		go func() {
			<-gctx.Done()
			stop()
		}()
		_ = trayUI.Run(ctx)
		stop()
		err = g.Wait()
	}

	log.Info().Msg("Shutting down...")
	return err
}

func component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
