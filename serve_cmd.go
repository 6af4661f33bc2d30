package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/internal/bus"
	"github.com/dgnsrekt/chunkvoice/internal/telemetry"
	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var (
	serveNoPlayback bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the synthesis commands over NATS",
		Long: paragraph(fmt.Sprintf("\n%s initialize, play, generate and deinitialize requests on NATS subjects under the configured prefix, and publish volume and progress events. Metrics are served over HTTP.", keyword("Answer"))),
		Example: paragraph("chunkvoice serve --embedded\n" +
			"chunkvoice serve --metrics-addr :9464"),
		Args: cobra.NoArgs,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().Bool("embedded", false, "run an in-process NATS server")
	serveCmd.Flags().Int("port", 0, "port for the embedded NATS server (-1 picks a free one)")
	serveCmd.Flags().String("metrics-addr", "", "listen address for /metrics and /healthz (empty disables)")
	serveCmd.Flags().BoolVar(&serveNoPlayback, "no-playback", false, "render files only, without opening an audio device")

	for _, name := range []string{"embedded", "port", "metrics-addr"} {
		_ = viper.BindPFlag(flagKeys[name], serveCmd.Flags().Lookup(name))
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logToStderr()
	logger := log.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, err := telemetry.Setup(ctx, tts.AppName, Version, logger)
	if err != nil {
		return fmt.Errorf("unable to set up telemetry: %w", err)
	}
	defer func() { _ = metrics.Shutdown(context.Background()) }()

	url := cfg.Bus.URL
	if cfg.Bus.Embedded {
		ns, err := bus.StartEmbedded(cfg.Bus, logger)
		if err != nil {
			return err
		}
		defer ns.Shutdown()
		url = ns.URL()
	}

	conn, err := bus.Connect(url, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	rt, err := newRuntime(ctx, cfg, !serveNoPlayback, logger)
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	svc := bus.NewService(conn, rt.mgr, cfg.Bus.SubjectPrefix, logger)
	if err := svc.Start(); err != nil {
		return err
	}
	defer svc.Close()

	g, gctx := errgroup.WithContext(ctx)
	if addr := cfg.Metrics.Addr; addr != "" {
		srv := &http.Server{
			Addr: addr,
			Handler: metrics.Mux(func() error {
				if status := conn.Status(); status != nats.CONNECTED {
					return fmt.Errorf("nats connection %s", status)
				}
				return nil
			}),
			ReadHeaderTimeout: 5 * time.Second, //nolint:mnd
		}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return nil
	})

	logger.Info("serving", "url", url, "prefix", cfg.Bus.SubjectPrefix, "engine", cfg.Engine, "playback", !serveNoPlayback)
	return g.Wait()
}
