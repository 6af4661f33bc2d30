// Package mock provides a tone generating engine for tests and demos.
package mock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/chunkvoice/tts"
)

// ErrClosed is returned by Synthesize after Close.
var ErrClosed = errors.New("mock engine is closed")

// Engine renders each chunk as a sine tone whose length follows the word
// count at a fixed speaking rate.
type Engine struct {
	cfg tts.MockConfig

	mu        sync.Mutex
	closed    bool
	callCount int
	failErr   error
}

// New creates a tone engine. Zero fields in cfg take the defaults.
func New(cfg tts.MockConfig) *Engine {
	def := tts.DefaultConfig().Mock
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.WordsPerMinute <= 0 {
		cfg.WordsPerMinute = def.WordsPerMinute
	}
	if cfg.Frequency <= 0 {
		cfg.Frequency = def.Frequency
	}
	return &Engine{cfg: cfg}
}

// Name identifies the engine.
func (e *Engine) Name() string {
	return "mock"
}

// CacheIdentity includes the tone settings.
func (e *Engine) CacheIdentity() string {
	return fmt.Sprintf("mock:%d:%d:%g", e.cfg.SampleRate, e.cfg.WordsPerMinute, e.cfg.Frequency)
}

// SetFailure makes every following call fail with err. A nil err clears it.
func (e *Engine) SetFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failErr = err
}

// CallCount returns the number of Synthesize calls.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callCount
}

// Duration returns how long the tone for text lasts at speed.
func (e *Engine) Duration(text string, speed float64) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	if speed <= 0 {
		speed = 1
	}
	perWord := time.Minute / time.Duration(e.cfg.WordsPerMinute)
	return time.Duration(float64(time.Duration(words)*perWord) / speed)
}

// Synthesize returns a tone. Text without words yields an empty buffer.
// Each speaker shifts the pitch by a semitone.
func (e *Engine) Synthesize(ctx context.Context, text string, speakerID int, speed float64) (tts.AudioBuffer, error) {
	e.mu.Lock()
	e.callCount++
	closed, failErr := e.closed, e.failErr
	e.mu.Unlock()

	if closed {
		return tts.AudioBuffer{}, ErrClosed
	}
	if failErr != nil {
		return tts.AudioBuffer{}, failErr
	}

	if e.cfg.Delay > 0 {
		select {
		case <-time.After(e.cfg.Delay):
		case <-ctx.Done():
			return tts.AudioBuffer{}, ctx.Err()
		}
	}

	rate := e.cfg.SampleRate
	n := int(e.Duration(text, speed).Seconds() * float64(rate))
	freq := e.cfg.Frequency * math.Pow(2, float64(speakerID)/12)

	samples := make([]float32, n)
	fade := min(n/2, rate/100)
	for i := range samples {
		amp := 0.3
		if i < fade {
			amp *= float64(i) / float64(fade)
		} else if n-i <= fade {
			amp *= float64(n-i-1) / float64(fade)
		}
		samples[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return tts.AudioBuffer{Samples: samples, SampleRate: rate}, nil
}

// Close marks the engine closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
