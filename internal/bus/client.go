package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/nats-io/nats.go"
)

// Connect dials the NATS server at url.
func Connect(url string, logger *log.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = log.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name(tts.AppName),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected to NATS", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Debug("connected to NATS", "url", url)
	return conn, nil
}

// Client sends commands to a Service.
type Client struct {
	conn   *nats.Conn
	prefix string
}

// NewClient creates a client for the service serving prefix.
func NewClient(conn *nats.Conn, prefix string) *Client {
	return &Client{conn: conn, prefix: prefix}
}

// Initialize asks the service to load an engine and open playback.
func (c *Client) Initialize(ctx context.Context, sampleRate float64, channels int, model tts.ModelConfig) error {
	_, err := c.request(ctx, SubjectInitialize, InitializeRequest{
		SampleRate:  sampleRate,
		Channels:    channels,
		ModelConfig: ModelConfig(model),
	})
	return err
}

// SynthesizeAndPlay speaks text on the service's output device.
func (c *Client) SynthesizeAndPlay(ctx context.Context, text string, speakerID int, speed float64) (string, error) {
	return c.request(ctx, SubjectPlay, SpeakRequest{Text: text, SpeakerID: speakerID, Speed: speed})
}

// SynthesizeToFile renders text on the service and returns the file path.
func (c *Client) SynthesizeToFile(ctx context.Context, text string, speakerID int, speed float64, opts tts.SaveOptions) (string, error) {
	return c.request(ctx, SubjectGenerate, GenerateRequest{Text: text, SpeakerID: speakerID, Speed: speed, Options: opts})
}

// Deinitialize releases the service's engine and device.
func (c *Client) Deinitialize(ctx context.Context) error {
	_, err := c.request(ctx, SubjectDeinitialize, struct{}{})
	return err
}

// OnVolume subscribes to playback level events.
func (c *Client) OnVolume(fn func(tts.VolumeUpdate)) (*nats.Subscription, error) {
	return c.conn.Subscribe(Subject(c.prefix, SubjectVolume), func(msg *nats.Msg) {
		var v tts.VolumeUpdate
		if err := json.Unmarshal(msg.Data, &v); err == nil {
			fn(v)
		}
	})
}

// OnProgress subscribes to chunk progress events.
func (c *Client) OnProgress(fn func(ProgressEvent)) (*nats.Subscription, error) {
	return c.conn.Subscribe(Subject(c.prefix, SubjectProgress), func(msg *nats.Msg) {
		var ev ProgressEvent
		if err := json.Unmarshal(msg.Data, &ev); err == nil {
			fn(ev)
		}
	})
}

func (c *Client) request(ctx context.Context, name string, body any) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	msg, err := c.conn.RequestWithContext(ctx, Subject(c.prefix, name), data)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", name, err)
	}

	var reply Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("decode %s reply: %w", name, err)
	}
	return reply.Result, reply.Err()
}
