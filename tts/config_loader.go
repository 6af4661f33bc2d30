package tts

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadConfigFromViper builds a Config from defaults, then the values set in v,
// then CHUNKVOICE_* environment variables. The result is validated.
func LoadConfigFromViper(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	getString(v, "engine", &cfg.Engine)
	getInt(v, "sample_rate", &cfg.SampleRate)
	getInt(v, "channels", &cfg.Channels)
	getInt(v, "max_words", &cfg.MaxWords)
	getInt(v, "speaker_id", &cfg.SpeakerID)
	getFloat(v, "speed", &cfg.Speed)

	// Model files
	getString(v, "model.model_path", &cfg.Model.ModelPath)
	getString(v, "model.tokens_path", &cfg.Model.TokensPath)
	getString(v, "model.data_dir_path", &cfg.Model.DataDirPath)

	// Output directories
	getString(v, "output.music_dir", &cfg.Output.MusicDir)
	getString(v, "output.private_dir", &cfg.Output.PrivateDir)
	getString(v, "output.cache_dir", &cfg.Output.CacheDir)

	// Playback settings
	if v.IsSet("playback.buffer") {
		cfg.Playback.Buffer = v.GetDuration("playback.buffer")
	}
	if v.IsSet("playback.max_queued") {
		cfg.Playback.MaxQueued = v.GetDuration("playback.max_queued")
	}
	getFloat(v, "playback.volume_events_per_second", &cfg.Playback.VolumeEventsPerSecond)

	cfg.Piper = loadPiperConfig(v)
	cfg.Mock = loadMockConfig(v)

	// Cache settings
	getBool(v, "cache.enabled", &cfg.Cache.Enabled)
	getString(v, "cache.dir", &cfg.Cache.Dir)
	getInt(v, "cache.memory_entries", &cfg.Cache.MemoryEntries)
	if v.IsSet("cache.ttl") {
		cfg.Cache.TTL = v.GetDuration("cache.ttl")
	}
	getInt(v, "cache.compression_level", &cfg.Cache.CompressionLevel)
	getInt(v, "cache.max_disk_mb", &cfg.Cache.MaxDiskMB)

	// History and serve settings
	getBool(v, "history.enabled", &cfg.History.Enabled)
	getString(v, "history.path", &cfg.History.Path)
	getString(v, "bus.url", &cfg.Bus.URL)
	getString(v, "bus.subject_prefix", &cfg.Bus.SubjectPrefix)
	getBool(v, "bus.embedded", &cfg.Bus.Embedded)
	getString(v, "bus.host", &cfg.Bus.Host)
	getInt(v, "bus.port", &cfg.Bus.Port)
	getString(v, "metrics.addr", &cfg.Metrics.Addr)

	if err := cfg.LoadEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.ExpandPaths(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadPiperConfig loads Piper-specific configuration from Viper.
func loadPiperConfig(v *viper.Viper) PiperConfig {
	cfg := DefaultConfig().Piper

	getString(v, "piper.command", &cfg.Command)
	if v.IsSet("piper.timeout") {
		cfg.Timeout = v.GetDuration("piper.timeout")
	}
	getFloat(v, "piper.noise_scale", &cfg.NoiseScale)
	getFloat(v, "piper.noise_w", &cfg.NoiseW)

	return cfg
}

// loadMockConfig loads Mock-specific configuration from Viper.
func loadMockConfig(v *viper.Viper) MockConfig {
	cfg := DefaultConfig().Mock

	getInt(v, "mock.sample_rate", &cfg.SampleRate)
	getInt(v, "mock.words_per_minute", &cfg.WordsPerMinute)
	getFloat(v, "mock.frequency", &cfg.Frequency)
	if v.IsSet("mock.delay") {
		cfg.Delay = v.GetDuration("mock.delay")
	}

	return cfg
}

// SetDefaults registers default configuration values with Viper.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("engine", d.Engine)
	v.SetDefault("sample_rate", d.SampleRate)
	v.SetDefault("channels", d.Channels)
	v.SetDefault("max_words", d.MaxWords)
	v.SetDefault("speaker_id", d.SpeakerID)
	v.SetDefault("speed", d.Speed)

	v.SetDefault("playback.buffer", d.Playback.Buffer.String())
	v.SetDefault("playback.max_queued", d.Playback.MaxQueued.String())
	v.SetDefault("playback.volume_events_per_second", d.Playback.VolumeEventsPerSecond)

	v.SetDefault("piper.command", d.Piper.Command)
	v.SetDefault("piper.timeout", d.Piper.Timeout.String())
	v.SetDefault("piper.noise_scale", d.Piper.NoiseScale)
	v.SetDefault("piper.noise_w", d.Piper.NoiseW)

	v.SetDefault("mock.sample_rate", d.Mock.SampleRate)
	v.SetDefault("mock.words_per_minute", d.Mock.WordsPerMinute)
	v.SetDefault("mock.frequency", d.Mock.Frequency)
	v.SetDefault("mock.delay", d.Mock.Delay.String())

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.memory_entries", d.Cache.MemoryEntries)
	v.SetDefault("cache.ttl", d.Cache.TTL.String())
	v.SetDefault("cache.compression_level", d.Cache.CompressionLevel)
	v.SetDefault("cache.max_disk_mb", d.Cache.MaxDiskMB)

	v.SetDefault("history.enabled", d.History.Enabled)

	v.SetDefault("bus.url", d.Bus.URL)
	v.SetDefault("bus.subject_prefix", d.Bus.SubjectPrefix)
	v.SetDefault("bus.embedded", d.Bus.Embedded)
	v.SetDefault("bus.host", d.Bus.Host)
	v.SetDefault("bus.port", d.Bus.Port)

	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

func getString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func getInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func getFloat(v *viper.Viper, key string, dst *float64) {
	if v.IsSet(key) {
		*dst = v.GetFloat64(key)
	}
}

func getBool(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(key) {
		*dst = v.GetBool(key)
	}
}
