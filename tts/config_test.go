package tts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Engine != "mock" {
		t.Errorf("Engine = %q, want mock", cfg.Engine)
	}
	if cfg.MaxWords != 15 {
		t.Errorf("MaxWords = %d, want 15", cfg.MaxWords)
	}
	if cfg.Speed != 1.0 {
		t.Errorf("Speed = %f, want 1.0", cfg.Speed)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"engine case folded", func(c *Config) { c.Engine = "PIPER" }, ""},
		{"unknown engine", func(c *Config) { c.Engine = "espeak" }, "invalid engine"},
		{"low sample rate", func(c *Config) { c.SampleRate = 100 }, "sample_rate"},
		{"three channels", func(c *Config) { c.Channels = 3 }, "channels"},
		{"zero max words", func(c *Config) { c.MaxWords = 0 }, "max_words"},
		{"zero speed", func(c *Config) { c.Speed = 0 }, "speed"},
		{"negative speaker", func(c *Config) { c.SpeakerID = -1 }, "speaker_id"},
		{"tiny buffer", func(c *Config) { c.Playback.Buffer = time.Millisecond }, "buffer"},
		{"piper without command", func(c *Config) { c.Engine = "piper"; c.Piper.Command = " " }, "piper command"},
		{"piper short timeout", func(c *Config) { c.Engine = "piper"; c.Piper.Timeout = time.Millisecond }, "timeout"},
		{"mock slow speech", func(c *Config) { c.Mock.WordsPerMinute = 10 }, "words_per_minute"},
		{"cache bad level", func(c *Config) { c.Cache.Enabled = true; c.Cache.CompressionLevel = 40 }, "compression_level"},
		{"cache disabled ignores level", func(c *Config) { c.Cache.CompressionLevel = 40 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFromViper(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	yaml := `
engine: piper
sample_rate: 24000
max_words: 20
speed: 1.25
model:
  model_path: /models/voice.onnx
  tokens_path: /models/voice.onnx.json
playback:
  buffer: 200ms
piper:
  command: "piper --cuda"
  timeout: 45s
cache:
  enabled: true
  ttl: 10m
`
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFromViper(v)
	if err != nil {
		t.Fatalf("LoadConfigFromViper: %v", err)
	}

	if cfg.Engine != "piper" || cfg.SampleRate != 24000 || cfg.MaxWords != 20 || cfg.Speed != 1.25 {
		t.Errorf("top level values not loaded: %+v", cfg)
	}
	if cfg.Model.ModelPath != "/models/voice.onnx" || cfg.Model.TokensPath != "/models/voice.onnx.json" {
		t.Errorf("model = %+v", cfg.Model)
	}
	if cfg.Playback.Buffer != 200*time.Millisecond {
		t.Errorf("buffer = %v", cfg.Playback.Buffer)
	}
	if cfg.Piper.Command != "piper --cuda" || cfg.Piper.Timeout != 45*time.Second {
		t.Errorf("piper = %+v", cfg.Piper)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	// untouched values keep their defaults
	if cfg.Channels != 1 || cfg.Piper.NoiseW != 0.8 {
		t.Errorf("defaults lost: channels=%d noise_w=%f", cfg.Channels, cfg.Piper.NoiseW)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CHUNKVOICE_ENGINE", "piper")
	t.Setenv("CHUNKVOICE_SPEED", "0.8")
	t.Setenv("CHUNKVOICE_MODEL_MODEL_PATH", "/env/model.onnx")
	t.Setenv("CHUNKVOICE_PLAYBACK_MAX_QUEUED", "5s")

	v := viper.New()
	v.Set("engine", "mock")
	v.Set("speed", 1.5)

	cfg, err := LoadConfigFromViper(v)
	if err != nil {
		t.Fatalf("LoadConfigFromViper: %v", err)
	}
	if cfg.Engine != "piper" {
		t.Errorf("Engine = %q, env should win", cfg.Engine)
	}
	if cfg.Speed != 0.8 {
		t.Errorf("Speed = %f, env should win", cfg.Speed)
	}
	if cfg.Model.ModelPath != "/env/model.onnx" {
		t.Errorf("ModelPath = %q", cfg.Model.ModelPath)
	}
	if cfg.Playback.MaxQueued != 5*time.Second {
		t.Errorf("MaxQueued = %v", cfg.Playback.MaxQueued)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	v := viper.New()
	v.Set("engine", "festival")
	if _, err := LoadConfigFromViper(v); err == nil {
		t.Error("expected validation error")
	}
}

func TestExpandPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	cfg := DefaultConfig()
	cfg.Model.ModelPath = "~/voices/a.onnx"
	cfg.Output.CacheDir = "/abs/cache"
	if err := cfg.ExpandPaths(); err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, "voices", "a.onnx"); cfg.Model.ModelPath != want {
		t.Errorf("ModelPath = %q, want %q", cfg.Model.ModelPath, want)
	}
	if cfg.Output.CacheDir != "/abs/cache" {
		t.Errorf("absolute path changed: %q", cfg.Output.CacheDir)
	}
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadConfigFromViper(v)
	if err != nil {
		t.Fatalf("LoadConfigFromViper: %v", err)
	}
	if cfg.Playback.Buffer != 100*time.Millisecond || cfg.Piper.Timeout != 30*time.Second {
		t.Errorf("durations from defaults: buffer=%v timeout=%v", cfg.Playback.Buffer, cfg.Piper.Timeout)
	}
}
