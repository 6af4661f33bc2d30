package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Engine synthesizes speech for one chunk of text at a time.
// Implementations are not required to be safe for concurrent use.
type Engine interface {
	// Name identifies the engine and its model, for logs and cache keys.
	Name() string

	// Synthesize converts text to mono float samples. A zero-length buffer
	// with a nil error means the engine produced no audio for the text.
	Synthesize(ctx context.Context, text string, speakerID int, speed float64) (AudioBuffer, error)

	// Close releases the engine's resources.
	Close() error
}

// Sink plays audio buffers on an output device.
type Sink interface {
	// Start opens the device and begins accepting audio.
	Start() error

	// Enqueue appends buf after every previously enqueued buffer.
	// It blocks while the sink holds more audio than it is configured to queue.
	Enqueue(ctx context.Context, buf AudioBuffer) error

	// Drain waits until every enqueued buffer has been played.
	Drain(ctx context.Context) error

	// Stop flushes pending audio, halts playback and releases the device.
	Stop() error
}

// EngineFactory builds an engine for a model.
type EngineFactory func(model ModelConfig) (Engine, error)

// SinkFactory builds a sink for a playback format. onVolume receives the
// playback level in [0, 1] as the device consumes audio.
type SinkFactory func(format Format, onVolume func(float64)) (Sink, error)

// AudioBuffer is mono float audio at a fixed sample rate.
type AudioBuffer struct {
	Samples    []float32
	SampleRate int
}

// Len returns the number of samples.
func (b AudioBuffer) Len() int {
	return len(b.Samples)
}

// Duration returns the playback length of the buffer.
func (b AudioBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Format describes the playback device configuration.
type Format struct {
	SampleRate int
	Channels   int
}

// ModelConfig locates the files an engine loads.
type ModelConfig struct {
	ModelPath   string `json:"modelPath" yaml:"model_path" env:"MODEL_PATH"`
	TokensPath  string `json:"tokensPath" yaml:"tokens_path" env:"TOKENS_PATH"`
	DataDirPath string `json:"dataDirPath" yaml:"data_dir_path" env:"DATA_DIR_PATH"`
}

// ParseModelConfig decodes a model configuration from its JSON form.
func ParseModelConfig(data []byte) (ModelConfig, error) {
	var mc ModelConfig
	if err := json.Unmarshal(data, &mc); err != nil {
		return mc, fmt.Errorf("invalid model config: %w", err)
	}
	return mc, nil
}

// Request is a single synthesis request.
type Request struct {
	ID        string
	Text      string
	SpeakerID int
	Speed     float64
}

// SaveOptions controls where a rendered file is written.
type SaveOptions struct {
	// IsSaving selects the persistent music directory instead of the cache.
	IsSaving Flag `json:"isSaving"`
	// FileName is an optional file name, sanitized before use.
	FileName string `json:"fileName,omitempty"`
}

// Flag is a boolean that also accepts numbers when decoded from JSON.
// Any non-zero number is true.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch s {
	case "true":
		*f = true
		return nil
	case "false", "null":
		*f = false
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("flag must be a boolean or number, got %s", s)
	}
	*f = n != 0
	return nil
}

// VolumeUpdate reports the playback level.
type VolumeUpdate struct {
	Volume float64 `json:"volume"`
}

// ChunkEvent is reported before each chunk is sent to the engine.
type ChunkEvent struct {
	RequestID string
	Index     int
	Total     int
	Text      string
}

// Report summarizes a finished request.
type Report struct {
	Chunks     int
	Samples    int
	SampleRate int
	Duration   time.Duration
	Path       string
	Bytes      int64
}
