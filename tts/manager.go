package tts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

// PlaybackMessage is the result of a successful SynthesizeAndPlay task.
const PlaybackMessage = "Audio generated and played successfully"

// Request modes recorded in history and metrics.
const (
	ModePlay = "play"
	ModeFile = "file"
)

// Record describes a finished request.
type Record struct {
	ID         string
	Mode       string
	TextChars  int
	Chunks     int
	SpeakerID  int
	Speed      float64
	SampleRate int
	Samples    int
	Path       string
	Code       ErrorCode
	Message    string
	StartedAt  time.Time
	Elapsed    time.Duration
}

// Recorder persists finished requests.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// NewEngine creates the engine on Initialize. Required.
	NewEngine EngineFactory
	// NewSink creates the playback sink on Initialize. When nil the manager
	// can only render files.
	NewSink SinkFactory
	// Dirs are the output directories for SynthesizeToFile.
	Dirs OutputDirs
	// MaxWords bounds chunk size.
	MaxWords int
	// VolumeEventsPerSecond throttles volume listeners. Zero disables throttling.
	VolumeEventsPerSecond float64
	// Recorder, if set, receives a Record for every finished request.
	Recorder Recorder
	Logger   *log.Logger
	// Now overrides the clock used for default file names.
	Now func() time.Time
}

// Manager owns the engine and sink handles and runs requests against them.
// Each synthesis request runs on its own goroutine and reports through a Task.
type Manager struct {
	opts   ManagerOptions
	orch   *Orchestrator
	logger *log.Logger

	mu     sync.Mutex // guards the handles and serializes engine calls
	state  *stateMachine
	engine Engine
	sink   Sink
	format Format

	listenersMu       sync.RWMutex
	volumeListeners   []func(VolumeUpdate)
	progressListeners []func(ChunkEvent)
	limiter           *rate.Limiter

	wg      sync.WaitGroup
	metrics managerMetrics
}

type managerMetrics struct {
	requests metric.Int64Counter
	chunks   metric.Int64Counter
	duration metric.Float64Histogram
	audio    metric.Float64Counter
}

// NewManager creates an uninitialized manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		opts:   opts,
		logger: opts.Logger.WithPrefix("tts"),
		state:  newStateMachine(),
	}
	m.orch = NewOrchestrator(opts.MaxWords, opts.Logger)
	m.orch.Progress = m.emitProgress

	if opts.VolumeEventsPerSecond > 0 {
		burst := max(1, int(math.Ceil(opts.VolumeEventsPerSecond)))
		m.limiter = rate.NewLimiter(rate.Limit(opts.VolumeEventsPerSecond), burst)
	}

	m.initMetrics()
	return m
}

func (m *Manager) initMetrics() {
	meter := otel.Meter("github.com/dgnsrekt/chunkvoice/tts")

	var err error
	if m.metrics.requests, err = meter.Int64Counter("chunkvoice.requests",
		metric.WithDescription("Synthesis requests by mode and result code")); err != nil {
		m.logger.Warn("failed to create metric", "name", "chunkvoice.requests", "err", err)
	}
	if m.metrics.chunks, err = meter.Int64Counter("chunkvoice.chunks",
		metric.WithDescription("Chunks sent to the engine")); err != nil {
		m.logger.Warn("failed to create metric", "name", "chunkvoice.chunks", "err", err)
	}
	if m.metrics.duration, err = meter.Float64Histogram("chunkvoice.request.duration",
		metric.WithDescription("Wall time of synthesis requests"), metric.WithUnit("s")); err != nil {
		m.logger.Warn("failed to create metric", "name", "chunkvoice.request.duration", "err", err)
	}
	if m.metrics.audio, err = meter.Float64Counter("chunkvoice.audio.seconds",
		metric.WithDescription("Seconds of audio synthesized"), metric.WithUnit("s")); err != nil {
		m.logger.Warn("failed to create metric", "name", "chunkvoice.audio.seconds", "err", err)
	}
}

// Initialize creates the engine and sink. Handles from an earlier
// initialization are released first. A factory that panics fails the call
// with an init error.
func (m *Manager) Initialize(sampleRate float64, channels int, model ModelConfig) error {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return initError(fmt.Sprintf("invalid sample rate %v", sampleRate), nil)
	}
	if channels <= 0 {
		return initError(fmt.Sprintf("invalid channel count %d", channels), nil)
	}
	if m.opts.NewEngine == nil {
		return initError("no engine factory configured", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.releaseLocked(); err != nil {
		m.logger.Warn("failed to release previous handles", "err", err)
	}
	if err := m.state.transition(StateInitializing); err != nil {
		return initError("manager is busy", err)
	}

	var engine Engine
	err := protect(func() (err error) {
		engine, err = m.opts.NewEngine(model)
		if err == nil && engine == nil {
			err = errors.New("engine factory returned no engine")
		}
		return err
	})
	if err != nil {
		m.setState(StateUninitialized)
		return initError("could not load engine", err)
	}

	format := Format{SampleRate: int(math.Round(sampleRate)), Channels: channels}
	var sink Sink
	if m.opts.NewSink != nil {
		err = protect(func() (err error) {
			if sink, err = m.opts.NewSink(format, m.emitVolume); err != nil {
				return err
			}
			return sink.Start()
		})
		if err != nil {
			if sink != nil {
				_ = protect(sink.Stop)
			}
			_ = protect(engine.Close)
			m.setState(StateUninitialized)
			return initError("could not open audio output", err)
		}
	}

	m.engine, m.sink, m.format = engine, sink, format
	m.setState(StateReady)
	m.logger.Info("initialized", "engine", engine.Name(), "rate", format.SampleRate, "channels", format.Channels, "playback", sink != nil)
	return nil
}

// Deinitialize stops the sink and closes the engine. It waits for an engine
// call in progress to return, and is a no-op when nothing is initialized.
func (m *Manager) Deinitialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseLocked()
}

func (m *Manager) releaseLocked() error {
	if m.engine == nil && m.sink == nil {
		return nil
	}
	m.setState(StateClosing)

	var errs []error
	if m.sink != nil {
		if err := protect(m.sink.Stop); err != nil {
			errs = append(errs, fmt.Errorf("stop sink: %w", err))
		}
		m.sink = nil
	}
	if m.engine != nil {
		if err := protect(m.engine.Close); err != nil {
			errs = append(errs, fmt.Errorf("close engine: %w", err))
		}
		m.engine = nil
	}

	m.setState(StateUninitialized)
	m.logger.Info("deinitialized")
	return errors.Join(errs...)
}

// setState applies a transition the caller expects to be valid. The caller
// holds m.mu.
func (m *Manager) setState(to StateType) {
	if err := m.state.transition(to); err != nil {
		m.logger.Error("lifecycle out of step", "err", err)
	}
}

// protect runs fn and reports a panic as an error.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// State returns the lifecycle state.
func (m *Manager) State() StateType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.current
}

// Format returns the playback format of the live sink.
func (m *Manager) Format() Format {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.format
}

// SynthesizeAndPlay streams text to the sink in the background.
func (m *Manager) SynthesizeAndPlay(text string, speakerID int, speed float64) *Task {
	req := m.newRequest(text, speakerID, speed)
	return m.dispatch(req, ModePlay, func(ctx context.Context) (string, Report, error) {
		engine, sink := m.handles()
		rep, err := m.orch.Stream(ctx, engine, sink, req)
		if err != nil {
			return "", rep, err
		}
		return PlaybackMessage, rep, nil
	})
}

// SynthesizeToFile renders text to a WAV file in the background. The task
// result is the absolute path of the file.
func (m *Manager) SynthesizeToFile(text string, speakerID int, speed float64, opts SaveOptions) *Task {
	req := m.newRequest(text, speakerID, speed)
	return m.dispatch(req, ModeFile, func(ctx context.Context) (string, Report, error) {
		engine, _ := m.handles()
		if err := m.orch.Validate(req, engine); err != nil {
			return "", Report{}, err
		}

		path, err := m.opts.Dirs.OutputPath(opts, m.opts.Now())
		if err != nil {
			return "", Report{}, writeError("could not prepare output location", err)
		}

		rep, err := m.orch.SaveFile(ctx, engine, req, path)
		if err != nil {
			return "", rep, err
		}
		return path, rep, nil
	})
}

// Drain waits until the sink has played everything enqueued so far.
func (m *Manager) Drain(ctx context.Context) error {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()

	if sink == nil {
		return ErrNotInitialized
	}
	return sink.Drain(ctx)
}

// Wait blocks until every dispatched request has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown waits for in-flight requests, bounded by ctx, then deinitializes.
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutting down with requests in flight", "err", ctx.Err())
	}
	return m.Deinitialize()
}

// OnVolume registers a listener for playback level updates.
func (m *Manager) OnVolume(fn func(VolumeUpdate)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.volumeListeners = append(m.volumeListeners, fn)
}

// OnProgress registers a listener called before each chunk is synthesized.
func (m *Manager) OnProgress(fn func(ChunkEvent)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.progressListeners = append(m.progressListeners, fn)
}

func (m *Manager) emitVolume(level float64) {
	if m.limiter != nil && !m.limiter.Allow() {
		return
	}

	m.listenersMu.RLock()
	listeners := m.volumeListeners
	m.listenersMu.RUnlock()

	update := VolumeUpdate{Volume: level}
	for _, fn := range listeners {
		fn(update)
	}
}

func (m *Manager) emitProgress(ev ChunkEvent) {
	if m.metrics.chunks != nil {
		m.metrics.chunks.Add(context.Background(), 1)
	}

	m.listenersMu.RLock()
	listeners := m.progressListeners
	m.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func (m *Manager) newRequest(text string, speakerID int, speed float64) Request {
	return Request{
		ID:        uuid.NewString(),
		Text:      text,
		SpeakerID: speakerID,
		Speed:     speed,
	}
}

// handles returns guarded views of the live handles, or nil for absent ones.
func (m *Manager) handles() (Engine, Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		engine Engine
		sink   Sink
	)
	if m.engine != nil {
		engine = guardedEngine{m: m, name: m.engine.Name()}
	}
	if m.sink != nil {
		sink = guardedSink{m: m}
	}
	return engine, sink
}

// dispatch runs fn on a new goroutine and resolves the returned task with its
// outcome. Panics are reported as generation errors.
func (m *Manager) dispatch(req Request, mode string, fn func(ctx context.Context) (string, Report, error)) *Task {
	task := newTask(req.ID)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		started := m.opts.Now()
		var (
			result string
			rep    Report
			err    error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = generationError("request panicked", fmt.Errorf("%v", r))
				}
			}()
			result, rep, err = fn(context.Background())
		}()

		m.finish(req, mode, rep, err, started)
		task.resolve(result, err)
	}()

	return task
}

// finish logs, measures and records a completed request.
func (m *Manager) finish(req Request, mode string, rep Report, err error, started time.Time) {
	elapsed := m.opts.Now().Sub(started)
	code := CodeOf(err)

	if err != nil {
		m.logger.Error("request failed", "request", req.ID, "mode", mode, "code", code, "err", err)
	} else {
		m.logger.Info("request finished", "request", req.ID, "mode", mode,
			"chunks", rep.Chunks, "audio", rep.Duration, "elapsed", elapsed)
	}

	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("code", string(code)),
	)
	if m.metrics.requests != nil {
		m.metrics.requests.Add(ctx, 1, attrs)
	}
	if m.metrics.duration != nil {
		m.metrics.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if m.metrics.audio != nil && err == nil {
		m.metrics.audio.Add(ctx, rep.Duration.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
	}

	if m.opts.Recorder == nil {
		return
	}
	rec := Record{
		ID:         req.ID,
		Mode:       mode,
		TextChars:  len([]rune(strings.TrimSpace(req.Text))),
		Chunks:     rep.Chunks,
		SpeakerID:  req.SpeakerID,
		Speed:      req.Speed,
		SampleRate: rep.SampleRate,
		Samples:    rep.Samples,
		Path:       rep.Path,
		Code:       code,
		Message:    MessageOf(err),
		StartedAt:  started,
		Elapsed:    elapsed,
	}
	if rerr := m.opts.Recorder.Record(ctx, rec); rerr != nil {
		m.logger.Warn("failed to record request", "request", req.ID, "err", rerr)
	}
}

// guardedEngine serializes engine calls through the manager and fails once
// the engine has been released.
type guardedEngine struct {
	m    *Manager
	name string
}

func (g guardedEngine) Name() string { return g.name }

func (g guardedEngine) Synthesize(ctx context.Context, text string, speakerID int, speed float64) (AudioBuffer, error) {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()

	if g.m.engine == nil {
		return AudioBuffer{}, ErrNotInitialized
	}
	return g.m.engine.Synthesize(ctx, text, speakerID, speed)
}

func (g guardedEngine) Close() error { return nil }

// guardedSink forwards to the live sink. Enqueue runs outside the manager
// lock so a full queue does not block engine calls or Deinitialize.
type guardedSink struct {
	m *Manager
}

func (g guardedSink) current() Sink {
	g.m.mu.Lock()
	defer g.m.mu.Unlock()
	return g.m.sink
}

func (g guardedSink) Start() error { return nil }

func (g guardedSink) Enqueue(ctx context.Context, buf AudioBuffer) error {
	sink := g.current()
	if sink == nil {
		return ErrNotInitialized
	}
	if err := sink.Enqueue(ctx, buf); err != nil {
		if errors.Is(err, ErrSinkClosed) {
			return ErrNotInitialized
		}
		return err
	}
	return nil
}

func (g guardedSink) Drain(ctx context.Context) error {
	sink := g.current()
	if sink == nil {
		return ErrNotInitialized
	}
	return sink.Drain(ctx)
}

func (g guardedSink) Stop() error { return nil }
