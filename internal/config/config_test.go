package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModePushToTalk {
		t.Errorf("mode = %q, want %q", cfg.Mode, ModePushToTalk)
	}
	if cfg.Chat.MaxMessageLen != 95 {
		t.Errorf("max_message_len = %d, want 95", cfg.Chat.MaxMessageLen)
	}
	if cfg.Audio.RecordingTimeoutSecs != 10 || cfg.Chat.PreviewTimeoutSecs != 20 {
		t.Errorf("unexpected timeouts %d/%d", cfg.Audio.RecordingTimeoutSecs, cfg.Chat.PreviewTimeoutSecs)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadJSONOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"mode": "Toggle", "audio": {"channels": 2}, "chat": {"channels": [{"display": "Admin", "prefix": "/msg "}]}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != ModeToggle {
		t.Errorf("mode = %q, want Toggle", cfg.Mode)
	}
	if cfg.Audio.Channels != 2 {
		t.Errorf("channels = %d, want 2", cfg.Audio.Channels)
	}
	// Untouched keys keep their defaults.
	if cfg.Audio.RelayCapacity != 32 {
		t.Errorf("relay_capacity = %d, want 32", cfg.Audio.RelayCapacity)
	}
	if len(cfg.Chat.Channels) != 1 || cfg.Chat.Channels[0].Prefix != "/msg " {
		t.Errorf("unexpected channels %+v", cfg.Chat.Channels)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
log_level: debug
whisper:
  model_path: /models/ggml-base.en.bin
chat:
  max_message_len: 64
  channels:
    - display: All
      prefix: ""
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Level() != zerolog.DebugLevel {
		t.Errorf("level = %v, want debug", cfg.Level())
	}
	if cfg.Whisper.ModelPath != "/models/ggml-base.en.bin" {
		t.Errorf("model_path = %q", cfg.Whisper.ModelPath)
	}
	if cfg.Chat.MaxMessageLen != 64 {
		t.Errorf("max_message_len = %d, want 64", cfg.Chat.MaxMessageLen)
	}
}

func TestLoadYAMLRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("insim_host: 127.0.0.1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadReportsInvalidSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"mode": "Hold", "audio": {"channels": 6}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error, got %+v", cfg)
	}
	msg := err.Error()
	for _, want := range []string{path, "mode", "audio.channels"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Mode = "Hold"
	cfg.Audio.Channels = 6
	cfg.Chat.Channels = []ChatChannel{{Display: "", Prefix: "!"}}
	cfg.Inject.Mode = "paste"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"mode", "audio.channels", "chat.channels[0].display", "inject.mode"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"mono", func(c *Config) { c.Audio.Channels = 1 }, false},
		{"no channels", func(c *Config) { c.Chat.Channels = nil }, true},
		{"no model", func(c *Config) { c.Whisper.Model = "" }, true},
		{"model path only", func(c *Config) { c.Whisper.Model = ""; c.Whisper.ModelPath = "/m.bin" }, false},
		{"zero relay", func(c *Config) { c.Audio.RelayCapacity = 0 }, true},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"long timeout", func(c *Config) { c.Audio.RecordingTimeoutSecs = 300 }, true},
		{"zero dispatch timeout", func(c *Config) { c.Audio.DispatchTimeoutMs = 0 }, true},
		{"stdout inject", func(c *Config) { c.Inject.Mode = InjectStdout }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			cfg.Mode = ModeToggle
			cfg.Metrics.Listen = "127.0.0.1:9464"
			if err := cfg.Save(); err != nil {
				t.Fatalf("Save: %v", err)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load after save: %v", err)
			}
			if loaded.Mode != ModeToggle || loaded.Metrics.Listen != "127.0.0.1:9464" {
				t.Fatalf("saved values not read back: %+v", loaded)
			}
		})
	}
}

func TestDefaultPathUsesXDG(t *testing.T) {
	if os.Getenv("HOME") == "" {
		t.Skip("HOME not set")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)

	if got := DefaultPath(); got != filepath.Join(dir, "lfs-stt", "config.json") && !strings.HasSuffix(got, filepath.Join("lfs-stt", "config.json")) {
		t.Errorf("DefaultPath() = %q", got)
	}
	if got := ModelsPath(); !strings.HasSuffix(got, filepath.Join("lfs-stt", "models")) {
		t.Errorf("ModelsPath() = %q", got)
	}
}
