package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/nats-io/nats.go"
)

// Manager is the command surface served on the bus.
type Manager interface {
	Initialize(sampleRate float64, channels int, model tts.ModelConfig) error
	SynthesizeAndPlay(text string, speakerID int, speed float64) *tts.Task
	SynthesizeToFile(text string, speakerID int, speed float64, opts tts.SaveOptions) *tts.Task
	Deinitialize() error
	OnVolume(fn func(tts.VolumeUpdate))
	OnProgress(fn func(tts.ChunkEvent))
}

// Service answers requests for a Manager.
type Service struct {
	conn   *nats.Conn
	mgr    Manager
	prefix string
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	subs   []*nats.Subscription
	wg     sync.WaitGroup
}

// NewService creates a service. Call Start to subscribe.
func NewService(conn *nats.Conn, mgr Manager, prefix string, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		conn:   conn,
		mgr:    mgr,
		prefix: prefix,
		logger: logger.WithPrefix("bus"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the request subjects and forwards manager events.
func (s *Service) Start() error {
	handlers := map[string]nats.MsgHandler{
		SubjectInitialize:   s.handleInitialize,
		SubjectPlay:         s.handlePlay,
		SubjectGenerate:     s.handleGenerate,
		SubjectDeinitialize: s.handleDeinitialize,
	}
	for name, h := range handlers {
		sub, err := s.conn.Subscribe(Subject(s.prefix, name), h)
		if err != nil {
			s.unsubscribe()
			return err
		}
		s.subs = append(s.subs, sub)
	}

	s.mgr.OnVolume(func(v tts.VolumeUpdate) {
		s.publish(SubjectVolume, v)
	})
	s.mgr.OnProgress(func(ev tts.ChunkEvent) {
		s.publish(SubjectProgress, ProgressEvent{RequestID: ev.RequestID, Index: ev.Index, Total: ev.Total, Text: ev.Text})
	})

	s.logger.Info("serving", "prefix", s.prefix)
	return s.conn.Flush()
}

// Close stops taking requests and waits for pending replies.
func (s *Service) Close() {
	s.unsubscribe()
	s.cancel()
	s.wg.Wait()
}

func (s *Service) unsubscribe() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) publish(name string, v any) {
	if s.ctx.Err() != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to encode event", "subject", name, "err", err)
		return
	}
	if err := s.conn.Publish(Subject(s.prefix, name), data); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		s.logger.Warn("failed to publish event", "subject", name, "err", err)
	}
}

func (s *Service) respond(msg *nats.Msg, reply Reply) {
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("failed to encode reply", "err", err)
		return
	}
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send reply", "subject", msg.Subject, "err", err)
	}
}

func (s *Service) badRequest(msg *nats.Msg, err error) {
	s.logger.Warn("rejecting request", "subject", msg.Subject, "err", err)
	s.respond(msg, failure(CodeBadRequest, err.Error()))
}

// guard is deferred by every handler goroutine. A panic is logged and
// answered with a generation error.
func (s *Service) guard(msg *nats.Msg) {
	r := recover()
	if r == nil {
		return
	}
	s.logger.Error("request handler panicked", "subject", msg.Subject, "panic", r)
	s.respond(msg, failure(string(tts.CodeGeneration), fmt.Sprintf("request failed: %v", r)))
}

func (s *Service) handleInitialize(msg *nats.Msg) {
	var req InitializeRequest
	if err := decode(msg.Data, &req); err != nil {
		s.badRequest(msg, err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.guard(msg)
		err := s.mgr.Initialize(req.SampleRate, req.Channels, tts.ModelConfig(req.ModelConfig))
		s.respond(msg, replyFor("", err))
	}()
}

func (s *Service) handleDeinitialize(msg *nats.Msg) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.guard(msg)
		s.respond(msg, replyFor("", s.mgr.Deinitialize()))
	}()
}

func (s *Service) handlePlay(msg *nats.Msg) {
	var req SpeakRequest
	if err := decode(msg.Data, &req); err != nil {
		s.badRequest(msg, err)
		return
	}
	s.await(msg, s.mgr.SynthesizeAndPlay(req.Text, req.SpeakerID, req.Speed))
}

func (s *Service) handleGenerate(msg *nats.Msg) {
	var req GenerateRequest
	if err := decode(msg.Data, &req); err != nil {
		s.badRequest(msg, err)
		return
	}
	s.await(msg, s.mgr.SynthesizeToFile(req.Text, req.SpeakerID, req.Speed, req.Options))
}

// await replies once task finishes. Replies are dropped if the service closes first.
func (s *Service) await(msg *nats.Msg, task *tts.Task) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.guard(msg)
		res, err := task.Wait(s.ctx)
		if errors.Is(err, context.Canceled) && s.ctx.Err() != nil {
			return
		}
		s.respond(msg, replyFor(res, err))
	}()
}
