// Package audio plays synthesized speech on the system output device.
//
// Buffers are converted to the device format and appended to a Queue, which
// the device pulls from on its own schedule. The queue never blocks the
// device: when it runs dry it hands out silence.
package audio

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"

	"github.com/dgnsrekt/chunkvoice/tts"
)

const bytesPerSample = 4

// Queue is a FIFO of interleaved float32 samples that implements io.Reader
// in little-endian float32 form.
type Queue struct {
	mu        sync.Mutex
	buf       []float32
	maxQueued int // in samples, zero means unbounded
	closed    bool
	changed   chan struct{}

	levels chan float64
	done   chan struct{}
}

// NewQueue creates a queue that holds at most maxQueued samples before Push
// blocks. onLevel, if set, receives the RMS level of each read that carried
// audio. It runs on its own goroutine; levels that arrive while it is still
// busy with the previous one are dropped.
func NewQueue(maxQueued int, onLevel func(float64)) *Queue {
	q := &Queue{
		maxQueued: max(0, maxQueued),
		changed:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	if onLevel != nil {
		q.levels = make(chan float64, 1)
		go q.dispatch(onLevel)
	}
	return q
}

func (q *Queue) dispatch(onLevel func(float64)) {
	for {
		select {
		case v := <-q.levels:
			onLevel(v)
		case <-q.done:
			return
		}
	}
}

// signal wakes every waiter. The caller holds q.mu.
func (q *Queue) signal() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Push appends samples after everything queued before. It blocks while the
// queue is full, except that an empty queue always accepts a push.
func (q *Queue) Push(ctx context.Context, samples []float32) error {
	if len(samples) == 0 {
		return nil
	}

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return tts.ErrSinkClosed
		}
		if q.maxQueued == 0 || len(q.buf) == 0 || len(q.buf)+len(samples) <= q.maxQueued {
			q.buf = append(q.buf, samples...)
			q.signal()
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Read fills p with queued samples followed by silence. It returns io.EOF
// once the queue is closed.
func (q *Queue) Read(p []byte) (int, error) {
	n := len(p) / bytesPerSample

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, io.EOF
	}

	k := min(n, len(q.buf))
	var sum float64
	for i, s := range q.buf[:k] {
		binary.LittleEndian.PutUint32(p[i*bytesPerSample:], math.Float32bits(s))
		sum += float64(s) * float64(s)
	}
	clear(p[k*bytesPerSample : n*bytesPerSample])

	if k > 0 {
		q.buf = q.buf[k:]
		if len(q.buf) == 0 {
			q.buf = nil
		}
		q.signal()
	}
	q.mu.Unlock()

	if k > 0 && q.levels != nil {
		select {
		case q.levels <- min(1, math.Sqrt(sum/float64(k))):
		default:
		}
	}
	return n * bytesPerSample, nil
}

// SetLimit changes the number of samples Push accepts before blocking.
func (q *Queue) SetLimit(maxQueued int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxQueued = max(0, maxQueued)
	q.signal()
}

// Len returns the number of samples waiting to be read.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Drain blocks until the queue is empty or closed.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.closed || len(q.buf) == 0 {
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close discards queued audio and releases blocked callers.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.buf = nil
	q.signal()
	close(q.done)
}
