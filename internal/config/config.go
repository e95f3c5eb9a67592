// Package config loads and saves the lfs-stt settings file.
//
// Defaults are applied first and the file overlays them, so a partial file
// only changes what it names. Files ending in .yaml or .yml are read as YAML
// with unknown keys rejected; anything else is JSON.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const appName = "lfs-stt"

// Recording modes.
const (
	ModePushToTalk = "PushToTalk"
	ModeToggle     = "Toggle"
)

// Delivery modes for accepted messages.
const (
	InjectClipboard = "clipboard"
	InjectStdout    = "stdout"
)

// DefaultMaxMessageLen is the in-game chat limit.
const DefaultMaxMessageLen = 95

type Config struct {
	LogLevel     string         `json:"log_level" yaml:"log_level"`
	Hotkey       string         `json:"hotkey" yaml:"hotkey"`
	HotkeyDarwin string         `json:"hotkey_darwin" yaml:"hotkey_darwin"`
	Mode         string         `json:"mode" yaml:"mode"` // "PushToTalk" or "Toggle"
	Audio        AudioConfig    `json:"audio" yaml:"audio"`
	Whisper      WhisperConfig  `json:"whisper" yaml:"whisper"`
	Chat         ChatConfig     `json:"chat" yaml:"chat"`
	Inject       InjectConfig   `json:"inject" yaml:"inject"`
	Tray         TrayConfig     `json:"tray" yaml:"tray"`
	Commands     CommandsConfig `json:"commands" yaml:"commands"`
	Metrics      MetricsConfig  `json:"metrics" yaml:"metrics"`
	Debug        DebugConfig    `json:"debug" yaml:"debug"`

	path string
}

type AudioConfig struct {
	DeviceID        string `json:"device_id" yaml:"device_id"`
	SampleRate      int    `json:"sample_rate" yaml:"sample_rate"` // 0 = device default
	Channels        int    `json:"channels" yaml:"channels"`       // 0 = device default
	FramesPerBuffer int    `json:"frames_per_buffer" yaml:"frames_per_buffer"`
	RelayCapacity   int    `json:"relay_capacity" yaml:"relay_capacity"`
	// PauseWhenIdle stops the stream between sessions. Up to one resampler
	// chunk of the previous session's tail then opens the next session.
	PauseWhenIdle bool `json:"pause_when_idle" yaml:"pause_when_idle"`

	// RecordingTimeoutSecs sizes the session buffer and, with AutoStop,
	// ends sessions that run longer.
	RecordingTimeoutSecs int  `json:"recording_timeout_secs" yaml:"recording_timeout_secs"`
	AutoStop             bool `json:"auto_stop" yaml:"auto_stop"`

	DispatchTimeoutMs int `json:"dispatch_timeout_ms" yaml:"dispatch_timeout_ms"`
}

type WhisperConfig struct {
	Model     string `json:"model" yaml:"model"`           // "base.en", "small", etc.
	ModelPath string `json:"model_path" yaml:"model_path"` // overrides Model
	Language  string `json:"language" yaml:"language"`     // "auto", "en", etc.
	Threads   int    `json:"threads" yaml:"threads"`
}

type ChatChannel struct {
	Display string `json:"display" yaml:"display"`
	Prefix  string `json:"prefix" yaml:"prefix"`
}

type ChatConfig struct {
	Channels           []ChatChannel `json:"channels" yaml:"channels"`
	MaxMessageLen      int           `json:"max_message_len" yaml:"max_message_len"`
	PreviewTimeoutSecs int           `json:"preview_timeout_secs" yaml:"preview_timeout_secs"`
}

type InjectConfig struct {
	Mode string `json:"mode" yaml:"mode"`
}

type TrayConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

type CommandsConfig struct {
	Stdin bool `json:"stdin" yaml:"stdin"`
}

type MetricsConfig struct {
	Listen string `json:"listen" yaml:"listen"` // empty disables /metrics
}

type DebugConfig struct {
	// DumpResampled names a WAV file that receives the whole 16 kHz stream.
	DumpResampled string `json:"dump_resampled" yaml:"dump_resampled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		Hotkey:       "Alt+Space",
		HotkeyDarwin: "Alt+Space", // Option+Space
		Mode:         ModePushToTalk,
		Audio: AudioConfig{
			RelayCapacity:        32,
			PauseWhenIdle:        false,
			RecordingTimeoutSecs: 10,
			DispatchTimeoutMs:    2000,
		},
		Whisper: WhisperConfig{
			Model:    "base.en",
			Language: "auto",
			Threads:  0, // Auto-detect
		},
		Chat: ChatConfig{
			Channels: []ChatChannel{
				{Display: "All", Prefix: ""},
				{Display: "Team", Prefix: "!t "},
			},
			MaxMessageLen:      DefaultMaxMessageLen,
			PreviewTimeoutSecs: 20,
		},
		Inject: InjectConfig{
			Mode: InjectClipboard,
		},
		Tray: TrayConfig{
			Enabled: true,
		},
	}
}

// Load reads the config at path, or at the platform default when path is
// empty. A missing file yields the defaults. The result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	}
	return json.Unmarshal(data, cfg)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Path is where Save writes.
func (c *Config) Path() string {
	if c.path == "" {
		return DefaultPath()
	}
	return c.path
}

// Save writes the config back in the format of its path.
func (c *Config) Save() error {
	path := c.Path()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil || c.LogLevel == "" {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: trace, debug, info, warn, error", c.LogLevel))
	}
	if c.Mode != ModePushToTalk && c.Mode != ModeToggle {
		errs = append(errs, fmt.Errorf("mode %q is invalid; valid values: %s, %s", c.Mode, ModePushToTalk, ModeToggle))
	}

	if c.Audio.Channels < 0 || c.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels must be 0 (device default), 1 or 2, got %d", c.Audio.Channels))
	}
	if c.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must not be negative, got %d", c.Audio.SampleRate))
	}
	if c.Audio.FramesPerBuffer < 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must not be negative, got %d", c.Audio.FramesPerBuffer))
	}
	if c.Audio.RelayCapacity <= 0 {
		errs = append(errs, fmt.Errorf("audio.relay_capacity must be positive, got %d", c.Audio.RelayCapacity))
	}
	if c.Audio.RecordingTimeoutSecs <= 0 || c.Audio.RecordingTimeoutSecs > 255 {
		errs = append(errs, fmt.Errorf("audio.recording_timeout_secs must be between 1 and 255, got %d", c.Audio.RecordingTimeoutSecs))
	}
	if c.Audio.DispatchTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.dispatch_timeout_ms must be positive, got %d", c.Audio.DispatchTimeoutMs))
	}

	if c.Whisper.Model == "" && c.Whisper.ModelPath == "" {
		errs = append(errs, errors.New("whisper.model or whisper.model_path must be set"))
	}
	if c.Whisper.Threads < 0 {
		errs = append(errs, fmt.Errorf("whisper.threads must not be negative, got %d", c.Whisper.Threads))
	}

	if len(c.Chat.Channels) == 0 {
		errs = append(errs, errors.New("chat.channels must list at least one channel"))
	}
	for i, ch := range c.Chat.Channels {
		if ch.Display == "" {
			errs = append(errs, fmt.Errorf("chat.channels[%d].display cannot be empty", i))
		}
	}
	if c.Chat.MaxMessageLen <= 0 {
		errs = append(errs, fmt.Errorf("chat.max_message_len must be positive, got %d", c.Chat.MaxMessageLen))
	}
	if c.Chat.PreviewTimeoutSecs < 0 {
		errs = append(errs, fmt.Errorf("chat.preview_timeout_secs must not be negative, got %d", c.Chat.PreviewTimeoutSecs))
	}

	if c.Inject.Mode != InjectClipboard && c.Inject.Mode != InjectStdout {
		errs = append(errs, fmt.Errorf("inject.mode %q is invalid; valid values: %s, %s", c.Inject.Mode, InjectClipboard, InjectStdout))
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// PlatformHotkey returns the appropriate hotkey for the current platform
func (c *Config) PlatformHotkey() string {
	if runtime.GOOS == "darwin" && c.HotkeyDarwin != "" {
		return c.HotkeyDarwin
	}
	return c.Hotkey
}

// DefaultPath returns the platform-specific config file path
func DefaultPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName, "config.json")
}

// ModelsPath returns the platform-specific models directory path
func ModelsPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, appName, "models")
}
