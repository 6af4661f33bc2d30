package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/tts/segment"
	"github.com/dgnsrekt/chunkvoice/tts/wav"
)

// Orchestrator drives segmented text through an engine one chunk at a time.
// Chunks are synthesized strictly in order and never concurrently.
type Orchestrator struct {
	// MaxWords bounds the size of each chunk.
	MaxWords int
	// Progress, if set, is called before each chunk is synthesized.
	Progress func(ChunkEvent)

	logger *log.Logger
}

// NewOrchestrator creates an orchestrator. A nil logger uses the default logger.
func NewOrchestrator(maxWords int, logger *log.Logger) *Orchestrator {
	if maxWords < 1 {
		maxWords = segment.DefaultMaxWords
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		MaxWords: maxWords,
		logger:   logger.WithPrefix("orchestrator"),
	}
}

// Validate reports the error a request would fail with before any synthesis.
func (o *Orchestrator) Validate(req Request, engine Engine) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyInput
	}
	if engine == nil {
		return ErrNotInitialized
	}
	return nil
}

// Stream synthesizes req and enqueues each chunk's audio on sink as soon as
// it is produced. Audio already enqueued stays enqueued if a later chunk fails.
func (o *Orchestrator) Stream(ctx context.Context, engine Engine, sink Sink, req Request) (Report, error) {
	if err := o.Validate(req, engine); err != nil {
		return Report{}, err
	}
	if sink == nil {
		return Report{}, ErrNotInitialized
	}

	var rep Report
	err := o.run(ctx, engine, req, &rep, func(c segment.Chunk, buf AudioBuffer) error {
		if err := sink.Enqueue(ctx, buf); err != nil {
			var te *Error
			if errors.As(err, &te) {
				return err
			}
			return generationError(fmt.Sprintf("playback rejected chunk %d", c.Index+1), err)
		}
		return nil
	})
	return rep, err
}

// Render synthesizes req and returns all audio joined in chunk order. The
// sample rate is taken from the first chunk that produced audio. A request
// that produces no audio at all fails with a generation error.
func (o *Orchestrator) Render(ctx context.Context, engine Engine, req Request) (AudioBuffer, Report, error) {
	if err := o.Validate(req, engine); err != nil {
		return AudioBuffer{}, Report{}, err
	}

	var (
		rep Report
		out AudioBuffer
	)
	err := o.run(ctx, engine, req, &rep, func(_ segment.Chunk, buf AudioBuffer) error {
		out.Samples = append(out.Samples, buf.Samples...)
		return nil
	})
	if err != nil {
		return AudioBuffer{}, rep, err
	}
	if out.Len() == 0 {
		return AudioBuffer{}, rep, generationError("no audio produced", nil)
	}

	out.SampleRate = rep.SampleRate
	return out, rep, nil
}

// SaveFile renders req and writes it to path as a WAV file. Nothing is
// written unless every chunk was synthesized.
func (o *Orchestrator) SaveFile(ctx context.Context, engine Engine, req Request, path string) (Report, error) {
	buf, rep, err := o.Render(ctx, engine, req)
	if err != nil {
		return rep, err
	}

	size, err := wav.WriteFile(path, buf.Samples, buf.SampleRate)
	if err != nil {
		return rep, writeError("could not write "+path, err)
	}
	if size <= wav.HeaderSize {
		return rep, writeError(fmt.Sprintf("%s holds no audio (%d bytes)", path, size), nil)
	}

	rep.Path = path
	rep.Bytes = size
	o.logger.Debug("wrote audio file", "path", path, "bytes", size, "duration", rep.Duration)
	return rep, nil
}

// run synthesizes every chunk of req in order and hands non-empty buffers to
// emit. The first failure stops the loop.
func (o *Orchestrator) run(ctx context.Context, engine Engine, req Request, rep *Report, emit func(segment.Chunk, AudioBuffer) error) error {
	chunks := segment.Split(strings.TrimSpace(req.Text), o.MaxWords)
	rep.Chunks = len(chunks)

	for _, c := range chunks {
		text := segment.Terminate(c.Text)
		if o.Progress != nil {
			o.Progress(ChunkEvent{RequestID: req.ID, Index: c.Index, Total: len(chunks), Text: text})
		}

		start := time.Now()
		buf, err := engine.Synthesize(ctx, text, req.SpeakerID, req.Speed)
		if err != nil {
			o.logger.Warn("synthesis failed", "request", req.ID, "chunk", c.Index, "err", err)
			var te *Error
			if errors.As(err, &te) {
				return err
			}
			return generationError(fmt.Sprintf("chunk %d of %d", c.Index+1, len(chunks)), err)
		}
		o.logger.Debug("synthesized chunk",
			"request", req.ID, "chunk", c.Index, "samples", buf.Len(), "rate", buf.SampleRate, "elapsed", time.Since(start))

		if buf.Len() == 0 {
			continue
		}
		if rep.SampleRate == 0 {
			rep.SampleRate = buf.SampleRate
		} else if buf.SampleRate != rep.SampleRate {
			o.logger.Warn("chunk sample rate differs from request rate",
				"request", req.ID, "chunk", c.Index, "rate", buf.SampleRate, "want", rep.SampleRate)
		}

		if err := emit(c, buf); err != nil {
			return err
		}
		rep.Samples += buf.Len()
	}

	if rep.SampleRate > 0 {
		rep.Duration = time.Duration(rep.Samples) * time.Second / time.Duration(rep.SampleRate)
	}
	return nil
}
