package audio_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/dgnsrekt/chunkvoice/tts/audio"
)

func decode(p []byte) []float32 {
	out := make([]float32, len(p)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
	}
	return out
}

// TestQueueFIFO verifies samples come out in push order, followed by silence.
func TestQueueFIFO(t *testing.T) {
	q := audio.NewQueue(0, nil)
	ctx := context.Background()

	if err := q.Push(ctx, []float32{0.1, 0.2}); err != nil {
		t.Fatal(err)
	}
	if err := q.Push(ctx, []float32{0.3}); err != nil {
		t.Fatal(err)
	}

	p := make([]byte, 5*4)
	n, err := q.Read(p)
	if err != nil || n != len(p) {
		t.Fatalf("Read = %d, %v", n, err)
	}

	want := []float32{0.1, 0.2, 0.3, 0, 0}
	got := decode(p)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
	if q.Len() != 0 {
		t.Errorf("len %d after reading everything", q.Len())
	}
}

// TestQueueReadNeverBlocks verifies an empty queue yields silence immediately.
func TestQueueReadNeverBlocks(t *testing.T) {
	q := audio.NewQueue(0, nil)
	p := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	done := make(chan struct{})
	go func() {
		_, _ = q.Read(p)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Read blocked on empty queue")
	}
	for i, b := range p {
		if b != 0 {
			t.Fatalf("byte %d = %d, want silence", i, b)
		}
	}
}

func TestQueueBackpressure(t *testing.T) {
	q := audio.NewQueue(4, nil)
	ctx := context.Background()

	// An empty queue accepts more than the limit.
	if err := q.Push(ctx, make([]float32, 6)); err != nil {
		t.Fatal(err)
	}

	pushed := make(chan error, 1)
	go func() { pushed <- q.Push(ctx, []float32{1, 1}) }()

	select {
	case err := <-pushed:
		t.Fatalf("Push returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	// Reading four samples leaves two queued, making room.
	if _, err := q.Read(make([]byte, 16)); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-pushed:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Push still blocked after Read")
	}
	if q.Len() != 4 {
		t.Errorf("Len = %d, want 4", q.Len())
	}
}

func TestQueuePushCanceled(t *testing.T) {
	q := audio.NewQueue(1, nil)
	if err := q.Push(context.Background(), []float32{1}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Push(ctx, []float32{1}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	q := audio.NewQueue(1, nil)
	if err := q.Push(context.Background(), []float32{1}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var blockedErr error
	go func() {
		defer wg.Done()
		blockedErr = q.Push(context.Background(), []float32{1})
	}()
	time.Sleep(10 * time.Millisecond)

	q.Close()
	wg.Wait()

	if !errors.Is(blockedErr, tts.ErrSinkClosed) {
		t.Errorf("blocked Push err = %v", blockedErr)
	}
	if _, err := q.Read(make([]byte, 4)); err != io.EOF {
		t.Errorf("Read after Close err = %v", err)
	}
	if err := q.Drain(context.Background()); err != nil {
		t.Errorf("Drain after Close = %v", err)
	}
	q.Close()
}

func TestQueueDrain(t *testing.T) {
	q := audio.NewQueue(0, nil)
	if err := q.Push(context.Background(), make([]float32, 8)); err != nil {
		t.Fatal(err)
	}

	drained := make(chan error, 1)
	go func() { drained <- q.Drain(context.Background()) }()

	select {
	case <-drained:
		t.Fatal("Drain returned with audio queued")
	case <-time.After(20 * time.Millisecond):
	}

	_, _ = q.Read(make([]byte, 32))
	select {
	case err := <-drained:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Drain did not return after the queue emptied")
	}
}

func TestQueueLevel(t *testing.T) {
	levels := make(chan float64, 4)
	q := audio.NewQueue(0, func(v float64) { levels <- v })
	defer q.Close()

	next := func() float64 {
		t.Helper()
		select {
		case v := <-levels:
			return v
		case <-time.After(time.Second):
			t.Fatal("no level reported")
			return 0
		}
	}

	_ = q.Push(context.Background(), []float32{0.5, -0.5, 0.5, -0.5})
	_, _ = q.Read(make([]byte, 16))
	if v := next(); math.Abs(v-0.5) > 1e-6 {
		t.Errorf("level = %v, want 0.5", v)
	}

	_, _ = q.Read(make([]byte, 16)) // silence reports nothing
	select {
	case v := <-levels:
		t.Errorf("silence reported level %v", v)
	case <-time.After(50 * time.Millisecond):
	}

	_ = q.Push(context.Background(), []float32{4, 4})
	_, _ = q.Read(make([]byte, 8))
	if v := next(); v != 1 {
		t.Errorf("clipped level = %v, want 1", v)
	}
}

// TestQueueSlowLevelListener verifies a stalled listener neither delays the
// device pull nor queues up stale levels.
func TestQueueSlowLevelListener(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	q := audio.NewQueue(0, func(float64) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
	})
	defer q.Close()

	start := time.Now()
	for range 10 {
		_ = q.Push(context.Background(), []float32{0.5, 0.5})
		if _, err := q.Read(make([]byte, 8)); err != nil {
			t.Fatal(err)
		}
	}
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Errorf("reads took %v with a blocked listener", d)
	}

	close(release)
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	// one level in the listener plus at most one buffered
	if calls > 2 {
		t.Errorf("listener called %d times, want stale levels dropped", calls)
	}
}
