package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/internal/bus"
	"github.com/dgnsrekt/chunkvoice/tts"
)

// callRemote runs fn against the service on the configured bus. A service
// that has not been initialized yet is initialized with the local
// configuration and the call is retried once.
func callRemote(ctx context.Context, fn func(*bus.Client) (string, error)) (string, error) {
	conn, err := bus.Connect(cfg.Bus.URL, log.Default())
	if err != nil {
		return "", err
	}
	defer conn.Close()

	client := bus.NewClient(conn, cfg.Bus.SubjectPrefix)
	out := log.NewWithOptions(os.Stderr, log.Options{Prefix: "remote"})
	if sub, err := client.OnProgress(func(ev bus.ProgressEvent) {
		out.Info("chunk", "n", fmt.Sprintf("%d/%d", ev.Index+1, ev.Total), "text", ev.Text)
	}); err == nil {
		defer func() { _ = sub.Unsubscribe() }()
	}

	res, err := fn(client)
	if tts.CodeOf(err) != tts.CodeNotInitialized {
		return res, err
	}

	log.Info("initializing remote service", "url", cfg.Bus.URL)
	if err := client.Initialize(ctx, float64(cfg.SampleRate), cfg.Channels, cfg.Model); err != nil {
		return "", err
	}
	return fn(client)
}
