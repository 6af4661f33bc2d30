package tts_test

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dgnsrekt/chunkvoice/tts"
)

// fakeEngine returns one sample per character of each chunk, or scripted
// results for specific calls.
type fakeEngine struct {
	mu       sync.Mutex
	rate     int
	calls    []string
	failOn   int // 1-based call number that fails; 0 never fails
	failErr  error
	empty    map[int]bool // 1-based call numbers that return no audio
	rates    map[int]int  // per-call sample rate overrides
	panicOn  int
	closed   bool
	closeErr error
	block    chan struct{}
}

func newFakeEngine(rate int) *fakeEngine {
	return &fakeEngine{rate: rate, empty: map[int]bool{}, rates: map[int]int{}}
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Synthesize(ctx context.Context, text string, _ int, _ float64) (tts.AudioBuffer, error) {
	e.mu.Lock()
	e.calls = append(e.calls, text)
	n := len(e.calls)
	block := e.block
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return tts.AudioBuffer{}, ctx.Err()
		}
	}
	if n == e.panicOn {
		panic("engine exploded")
	}
	if n == e.failOn {
		if e.failErr != nil {
			return tts.AudioBuffer{}, e.failErr
		}
		return tts.AudioBuffer{}, errors.New("synthesis failed")
	}
	if e.empty[n] {
		return tts.AudioBuffer{SampleRate: e.rate}, nil
	}

	rate := e.rate
	if r, ok := e.rates[n]; ok {
		rate = r
	}
	samples := make([]float32, len(text))
	for i := range samples {
		samples[i] = float32(n) / 10
	}
	return tts.AudioBuffer{Samples: samples, SampleRate: rate}, nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return e.closeErr
}

func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *fakeEngine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// recordingSink keeps every enqueued buffer in order.
type recordingSink struct {
	mu         sync.Mutex
	started    bool
	stopped    bool
	buffers    []tts.AudioBuffer
	enqueueErr error
	startErr   error
	onVolume   func(float64)
}

func (s *recordingSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *recordingSink) Enqueue(_ context.Context, buf tts.AudioBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return tts.ErrSinkClosed
	}
	if !s.started {
		return tts.ErrSinkNotStarted
	}
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.buffers = append(s.buffers, buf)
	if s.onVolume != nil {
		s.onVolume(0.5)
	}
	return nil
}

func (s *recordingSink) Drain(context.Context) error { return nil }

func (s *recordingSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *recordingSink) Buffers() []tts.AudioBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tts.AudioBuffer(nil), s.buffers...)
}

func (s *recordingSink) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// memRecorder collects history records.
type memRecorder struct {
	mu      sync.Mutex
	records []tts.Record
}

func (r *memRecorder) Record(_ context.Context, rec tts.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *memRecorder) Records() []tts.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tts.Record(nil), r.records...)
}

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "word"
	}
	return strings.Join(w, " ")
}
