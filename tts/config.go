package tts

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dgnsrekt/chunkvoice/tts/segment"
	"github.com/mitchellh/go-homedir"
)

// EnvPrefix is prepended to every environment variable read by LoadEnv.
const EnvPrefix = "CHUNKVOICE_"

// Config contains all synthesis configuration options.
type Config struct {
	// Engine selection and request defaults
	Engine     string  `yaml:"engine" env:"ENGINE"`
	SampleRate int     `yaml:"sample_rate" env:"SAMPLE_RATE"`
	Channels   int     `yaml:"channels" env:"CHANNELS"`
	MaxWords   int     `yaml:"max_words" env:"MAX_WORDS"`
	SpeakerID  int     `yaml:"speaker_id" env:"SPEAKER_ID"`
	Speed      float64 `yaml:"speed" env:"SPEED"`

	Model    ModelConfig    `yaml:"model" envPrefix:"MODEL_"`
	Output   OutputConfig   `yaml:"output" envPrefix:"OUTPUT_"`
	Playback PlaybackConfig `yaml:"playback" envPrefix:"PLAYBACK_"`

	// Engine-specific configurations
	Piper PiperConfig `yaml:"piper" envPrefix:"PIPER_"`
	Mock  MockConfig  `yaml:"mock" envPrefix:"MOCK_"`

	Cache   CacheConfig   `yaml:"cache" envPrefix:"CACHE_"`
	History HistoryConfig `yaml:"history" envPrefix:"HISTORY_"`
	Bus     BusConfig     `yaml:"bus" envPrefix:"BUS_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

// OutputConfig overrides the directories rendered files are written to.
// Empty values fall back to platform defaults.
type OutputConfig struct {
	MusicDir   string `yaml:"music_dir" env:"MUSIC_DIR"`
	PrivateDir string `yaml:"private_dir" env:"PRIVATE_DIR"`
	CacheDir   string `yaml:"cache_dir" env:"CACHE_DIR"`
}

// PlaybackConfig contains audio device settings.
type PlaybackConfig struct {
	Buffer                time.Duration `yaml:"buffer" env:"BUFFER"`
	MaxQueued             time.Duration `yaml:"max_queued" env:"MAX_QUEUED"`
	VolumeEventsPerSecond float64       `yaml:"volume_events_per_second" env:"VOLUME_EVENTS_PER_SECOND"`
}

// PiperConfig contains Piper engine settings.
type PiperConfig struct {
	// Command is the piper executable, optionally followed by extra arguments.
	Command    string        `yaml:"command" env:"COMMAND"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	NoiseScale float64       `yaml:"noise_scale" env:"NOISE_SCALE"`
	NoiseW     float64       `yaml:"noise_w" env:"NOISE_W"`
}

// MockConfig contains settings for the tone engine used in tests and demos.
type MockConfig struct {
	SampleRate     int           `yaml:"sample_rate" env:"SAMPLE_RATE"`
	WordsPerMinute int           `yaml:"words_per_minute" env:"WORDS_PER_MINUTE"`
	Frequency      float64       `yaml:"frequency" env:"FREQUENCY"`
	Delay          time.Duration `yaml:"delay" env:"DELAY"`
}

// CacheConfig controls the synthesized chunk cache.
type CacheConfig struct {
	Enabled          bool          `yaml:"enabled" env:"ENABLED"`
	Dir              string        `yaml:"dir" env:"DIR"`
	MemoryEntries    int           `yaml:"memory_entries" env:"MEMORY_ENTRIES"`
	TTL              time.Duration `yaml:"ttl" env:"TTL"`
	CompressionLevel int           `yaml:"compression_level" env:"COMPRESSION_LEVEL"`
	MaxDiskMB        int           `yaml:"max_disk_mb" env:"MAX_DISK_MB"`
}

// HistoryConfig controls the request history database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// BusConfig contains the NATS command surface settings.
type BusConfig struct {
	URL           string `yaml:"url" env:"URL"`
	SubjectPrefix string `yaml:"subject_prefix" env:"SUBJECT_PREFIX"`
	Embedded      bool   `yaml:"embedded" env:"EMBEDDED"`
	Host          string `yaml:"host" env:"HOST"`
	Port          int    `yaml:"port" env:"PORT"`
}

// MetricsConfig controls the Prometheus endpoint served by `serve`.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine:     "mock",
		SampleRate: 22050,
		Channels:   1,
		MaxWords:   segment.DefaultMaxWords,
		SpeakerID:  0,
		Speed:      1.0,

		Playback: PlaybackConfig{
			Buffer:                100 * time.Millisecond,
			MaxQueued:             30 * time.Second,
			VolumeEventsPerSecond: 20,
		},
		Piper: PiperConfig{
			Command:    "piper",
			Timeout:    30 * time.Second,
			NoiseScale: 0.667,
			NoiseW:     0.8,
		},
		Mock: MockConfig{
			SampleRate:     22050,
			WordsPerMinute: 150,
			Frequency:      440,
		},
		Cache: CacheConfig{
			Enabled:          false,
			MemoryEntries:    256,
			TTL:              time.Hour,
			CompressionLevel: 3,
			MaxDiskMB:        100,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Bus: BusConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "chunkvoice",
			Host:          "127.0.0.1",
			Port:          4222,
		},
		Metrics: MetricsConfig{
			Addr: ":9464",
		},
	}
}

// LoadEnv overrides fields of c from CHUNKVOICE_* environment variables.
func (c *Config) LoadEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// ExpandPaths resolves a leading ~ in every configured path.
func (c *Config) ExpandPaths() error {
	paths := []*string{
		&c.Model.ModelPath,
		&c.Model.TokensPath,
		&c.Model.DataDirPath,
		&c.Output.MusicDir,
		&c.Output.PrivateDir,
		&c.Output.CacheDir,
		&c.Cache.Dir,
		&c.History.Path,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validEngines := []string{"mock", "piper"}
	engineValid := false
	for _, e := range validEngines {
		if strings.EqualFold(c.Engine, e) {
			engineValid = true
			c.Engine = strings.ToLower(c.Engine)
			break
		}
	}
	if !engineValid {
		return fmt.Errorf("invalid engine '%s': must be one of %v", c.Engine, validEngines)
	}

	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000, got %d", c.SampleRate)
	}
	if c.Channels < 1 || c.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if c.MaxWords < 1 {
		return fmt.Errorf("max_words must be at least 1, got %d", c.MaxWords)
	}
	if c.Speed <= 0 {
		return fmt.Errorf("speed must be positive, got %f", c.Speed)
	}
	if c.SpeakerID < 0 {
		return fmt.Errorf("speaker_id must not be negative, got %d", c.SpeakerID)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	switch c.Engine {
	case "piper":
		if err := c.Piper.Validate(); err != nil {
			return fmt.Errorf("piper config: %w", err)
		}
	case "mock":
		if err := c.Mock.Validate(); err != nil {
			return fmt.Errorf("mock config: %w", err)
		}
	}

	return nil
}

// Validate checks if the playback configuration is valid.
func (c *PlaybackConfig) Validate() error {
	if c.Buffer < 10*time.Millisecond || c.Buffer > 2*time.Second {
		return fmt.Errorf("buffer must be between 10ms and 2s, got %v", c.Buffer)
	}
	if c.MaxQueued < time.Second {
		return fmt.Errorf("max_queued must be at least 1s, got %v", c.MaxQueued)
	}
	if c.VolumeEventsPerSecond < 0 {
		return fmt.Errorf("volume_events_per_second must not be negative, got %f", c.VolumeEventsPerSecond)
	}
	return nil
}

// Validate checks if the Piper configuration is valid.
func (c *PiperConfig) Validate() error {
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("piper command cannot be empty")
	}
	if c.NoiseScale < 0 || c.NoiseScale > 2.0 {
		return fmt.Errorf("noise_scale must be between 0.0 and 2.0, got %f", c.NoiseScale)
	}
	if c.NoiseW < 0 || c.NoiseW > 2.0 {
		return fmt.Errorf("noise_w must be between 0.0 and 2.0, got %f", c.NoiseW)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second, got %v", c.Timeout)
	}
	return nil
}

// Validate checks if the Mock configuration is valid.
func (c *MockConfig) Validate() error {
	if c.WordsPerMinute < 50 || c.WordsPerMinute > 500 {
		return fmt.Errorf("words_per_minute must be between 50 and 500, got %d", c.WordsPerMinute)
	}
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000, got %d", c.SampleRate)
	}
	if c.Frequency <= 0 {
		return fmt.Errorf("frequency must be positive, got %f", c.Frequency)
	}
	return nil
}

// Validate checks if the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MemoryEntries < 0 {
		return fmt.Errorf("memory_entries must not be negative, got %d", c.MemoryEntries)
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 22 {
		return fmt.Errorf("compression_level must be between 1 and 22, got %d", c.CompressionLevel)
	}
	if c.MaxDiskMB < 1 || c.MaxDiskMB > 10000 {
		return fmt.Errorf("max_disk_mb must be between 1 and 10000, got %d", c.MaxDiskMB)
	}
	return nil
}

// Format returns the playback format described by the configuration.
func (c *Config) Format() Format {
	return Format{SampleRate: c.SampleRate, Channels: c.Channels}
}
