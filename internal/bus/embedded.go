package bus

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer is an in-process NATS server.
type EmbeddedServer struct {
	ns     *server.Server
	logger *log.Logger
}

// StartEmbedded starts a NATS server on cfg.Host and cfg.Port. A port of -1
// picks a free one.
func StartEmbedded(cfg tts.BusConfig, logger *log.Logger) (*EmbeddedServer, error) {
	if logger == nil {
		logger = log.Default()
	}

	ns, err := server.NewServer(&server.Options{
		ServerName: tts.AppName,
		Host:       cfg.Host,
		Port:       cfg.Port,
		NoLog:      true,
		NoSigs:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server failed to start within 5 seconds")
	}

	logger = logger.WithPrefix("nats")
	logger.Info("embedded NATS server started", "url", ns.ClientURL())
	return &EmbeddedServer{ns: ns, logger: logger}, nil
}

// URL returns the client URL of the server.
func (e *EmbeddedServer) URL() string {
	return e.ns.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (e *EmbeddedServer) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.logger.Info("shutting down embedded NATS server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
