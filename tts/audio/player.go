//go:build !nocgo

package audio

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process. It is created on first use with
// the first requested format; later players convert to that format.
var (
	sharedMu     sync.Mutex
	sharedCtx    *oto.Context
	sharedFormat tts.Format
)

func deviceContext(format tts.Format, buffer time.Duration) (*oto.Context, tts.Format, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedCtx != nil {
		return sharedCtx, sharedFormat, nil
	}

	if buffer <= 0 {
		switch runtime.GOOS {
		case "darwin":
			buffer = 100 * time.Millisecond
		default:
			buffer = 50 * time.Millisecond
		}
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   buffer,
	})
	if err != nil {
		return nil, tts.Format{}, fmt.Errorf("create audio context: %w", err)
	}
	<-ready

	sharedCtx, sharedFormat = ctx, format
	return ctx, format, nil
}

// Player is a tts.Sink that plays on the default output device.
type Player struct {
	requested tts.Format
	format    tts.Format
	opts      Options
	queue     *Queue
	logger    *log.Logger

	mu      sync.Mutex
	player  *oto.Player
	started bool
	stopped bool
}

// NewPlayer creates a player for format. Nothing is opened until Start.
func NewPlayer(format tts.Format, onVolume func(float64), opts Options) (*Player, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("invalid playback format %+v", format)
	}
	opts = opts.withDefaults()

	return &Player{
		requested: format,
		opts:      opts,
		logger:    opts.Logger.WithPrefix("audio"),
		queue:     NewQueue(0, onVolume),
	}, nil
}

// Start opens the device and begins pulling audio from the queue.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return tts.ErrSinkClosed
	}
	if p.started {
		return nil
	}

	ctx, format, err := deviceContext(p.requested, p.opts.Buffer)
	if err != nil {
		return err
	}
	if format != p.requested {
		p.logger.Warn("audio device already open with a different format, converting",
			"device_rate", format.SampleRate, "device_channels", format.Channels,
			"rate", p.requested.SampleRate, "channels", p.requested.Channels)
	}

	p.format = format
	p.queue.SetLimit(samplesFor(p.opts.MaxQueued, format))
	p.player = ctx.NewPlayer(p.queue)
	p.player.Play()
	p.started = true

	p.logger.Debug("playback started", "rate", format.SampleRate, "channels", format.Channels)
	return nil
}

// Enqueue converts buf to the device format and queues it for playback.
func (p *Player) Enqueue(ctx context.Context, buf tts.AudioBuffer) error {
	p.mu.Lock()
	started, stopped, format := p.started, p.stopped, p.format
	p.mu.Unlock()

	if stopped {
		return tts.ErrSinkClosed
	}
	if !started {
		return tts.ErrSinkNotStarted
	}
	return p.queue.Push(ctx, Convert(buf, format))
}

// Drain waits for queued audio and the device buffer to play out.
func (p *Player) Drain(ctx context.Context) error {
	if err := p.queue.Drain(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	player, format := p.player, p.format
	p.mu.Unlock()
	if player == nil || format.SampleRate <= 0 {
		return nil
	}

	frames := player.BufferedSize() / bytesPerSample / max(1, format.Channels)
	timer := time.NewTimer(time.Duration(frames) * time.Second / time.Duration(format.SampleRate))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop discards pending audio and closes the device player.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	p.queue.Close()

	if p.player == nil {
		return nil
	}
	p.player.Pause()
	err := p.player.Close()
	p.player = nil
	return err
}
