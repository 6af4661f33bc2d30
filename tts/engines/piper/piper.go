// Package piper runs the Piper neural TTS command line program as an engine.
//
// Each chunk is synthesized by a fresh piper process that reads the text on
// stdin and writes raw 16-bit mono PCM on stdout.
package piper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/mattn/go-shellwords"
)

// DefaultSampleRate is used when the voice config does not name a rate.
const DefaultSampleRate = 22050

const maxStderr = 4 << 10

// Error kinds.
const (
	KindDependency = "dependency"
	KindModel      = "model"
	KindProcess    = "process"
	KindTimeout    = "timeout"
	KindClosed     = "closed"
)

// Error is a piper specific failure.
type Error struct {
	Kind    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("piper %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("piper %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// voiceConfig is the subset of a piper voice .onnx.json file we read.
type voiceConfig struct {
	Audio struct {
		SampleRate int `json:"sample_rate"`
	} `json:"audio"`
	NumSpeakers int `json:"num_speakers"`
}

// Engine synthesizes speech with the piper executable.
type Engine struct {
	argv     []string
	model    tts.ModelConfig
	cfg      tts.PiperConfig
	rate     int
	speakers int
	logger   *log.Logger

	mu     sync.Mutex
	closed bool
}

// New checks that the piper executable and model exist and reads the voice
// config for the output sample rate.
func New(cfg tts.PiperConfig, model tts.ModelConfig, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.Default()
	}

	argv, err := shellwords.NewParser().Parse(cfg.Command)
	if err != nil {
		return nil, &Error{Kind: KindDependency, Message: "invalid piper command", Cause: err}
	}
	if len(argv) == 0 {
		return nil, &Error{Kind: KindDependency, Message: "piper command is not configured"}
	}
	bin, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, &Error{
			Kind:    KindDependency,
			Message: "piper binary not found, install it from https://github.com/rhasspy/piper",
			Cause:   err,
		}
	}
	argv[0] = bin

	if model.ModelPath == "" {
		return nil, &Error{Kind: KindModel, Message: "no model path given"}
	}
	if _, err := os.Stat(model.ModelPath); err != nil {
		return nil, &Error{Kind: KindModel, Message: "model file not found: " + model.ModelPath, Cause: err}
	}
	if model.TokensPath == "" {
		if _, err := os.Stat(model.ModelPath + ".json"); err == nil {
			model.TokensPath = model.ModelPath + ".json"
		}
	}

	vc, err := readVoiceConfig(model.TokensPath)
	if err != nil {
		return nil, &Error{Kind: KindModel, Message: "unreadable voice config " + model.TokensPath, Cause: err}
	}

	e := &Engine{
		argv:     argv,
		model:    model,
		cfg:      cfg,
		rate:     vc.Audio.SampleRate,
		speakers: vc.NumSpeakers,
		logger:   logger.WithPrefix("piper"),
	}
	if e.rate <= 0 {
		e.rate = DefaultSampleRate
	}
	e.logger.Debug("engine ready", "binary", bin, "model", model.ModelPath, "rate", e.rate, "speakers", e.speakers)
	return e, nil
}

func readVoiceConfig(path string) (voiceConfig, error) {
	var vc voiceConfig
	if path == "" {
		return vc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return vc, err
	}
	if err := json.Unmarshal(data, &vc); err != nil {
		return vc, err
	}
	return vc, nil
}

// Name identifies the engine by its model file.
func (e *Engine) Name() string {
	return "piper:" + filepath.Base(e.model.ModelPath)
}

// CacheIdentity covers everything besides the request that shapes the
// audio: the voice files, extra command arguments and noise settings.
func (e *Engine) CacheIdentity() string {
	return strings.Join([]string{
		"piper",
		absPath(e.model.ModelPath),
		absPath(e.model.TokensPath),
		absPath(e.model.DataDirPath),
		strings.Join(e.argv[1:], " "),
		formatFloat(e.cfg.NoiseScale),
		formatFloat(e.cfg.NoiseW),
	}, "\x00")
}

func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// SampleRate is the rate of the audio the model produces.
func (e *Engine) SampleRate() int {
	return e.rate
}

// args builds the piper argument list for one request.
func (e *Engine) args(speakerID int, speed float64) []string {
	args := append([]string(nil), e.argv[1:]...)
	args = append(args, "--model", e.model.ModelPath, "--output-raw")
	if e.model.TokensPath != "" {
		args = append(args, "--config", e.model.TokensPath)
	}
	if e.model.DataDirPath != "" {
		args = append(args, "--espeak_data", e.model.DataDirPath)
	}
	if e.speakers > 1 && speakerID > 0 {
		args = append(args, "--speaker", strconv.Itoa(speakerID))
	}
	if speed > 0 && speed != 1 {
		args = append(args, "--length_scale", formatFloat(1/speed))
	}
	if e.cfg.NoiseScale > 0 {
		args = append(args, "--noise_scale", formatFloat(e.cfg.NoiseScale))
	}
	if e.cfg.NoiseW > 0 {
		args = append(args, "--noise_w", formatFloat(e.cfg.NoiseW))
	}
	return args
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Synthesize runs piper once for text. Output that is empty is returned as
// an empty buffer.
func (e *Engine) Synthesize(ctx context.Context, text string, speakerID int, speed float64) (tts.AudioBuffer, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return tts.AudioBuffer{}, &Error{Kind: KindClosed, Message: "engine is closed"}
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	var stdout bytes.Buffer
	stderr := &tailBuffer{max: maxStderr}
	cmd := exec.CommandContext(ctx, e.argv[0], e.args(speakerID, speed)...)
	cmd.Stdin = strings.NewReader(text + "\n")
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return tts.AudioBuffer{}, &Error{Kind: KindTimeout, Message: fmt.Sprintf("synthesis timed out after %v", e.cfg.Timeout), Cause: err}
		}
		msg := "synthesis failed"
		if s := strings.TrimSpace(stderr.String()); s != "" {
			msg = s
		}
		return tts.AudioBuffer{}, &Error{Kind: KindProcess, Message: msg, Cause: err}
	}

	samples := decodeS16LE(stdout.Bytes())
	e.logger.Debug("synthesized", "chars", len(text), "samples", len(samples), "elapsed", time.Since(start))
	return tts.AudioBuffer{Samples: samples, SampleRate: e.rate}, nil
}

// Close marks the engine closed. Running processes finish on their own.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func decodeS16LE(raw []byte) []float32 {
	out := make([]float32, len(raw)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return out
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
