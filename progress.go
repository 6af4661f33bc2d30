package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/dgnsrekt/chunkvoice/ui"
)

// present runs work while showing its progress: a TUI on a terminal, log
// lines on stderr otherwise.
func present(ctx context.Context, mode string, mgr *tts.Manager, plain bool, work func() (string, error)) (string, error) {
	if plain || !isTerminal(os.Stderr) {
		logProgress(mgr, mode)
		return work()
	}

	uiCfg := ui.Config{Engine: cfg.Engine, Mode: mode, MaxWidth: 100} //nolint:mnd
	return ui.Run(ctx, os.Stderr, uiCfg, work, func(send func(tea.Msg)) {
		mgr.OnProgress(func(ev tts.ChunkEvent) { send(ui.ProgressMsg(ev)) })
		if mode == tts.ModePlay {
			mgr.OnVolume(func(v tts.VolumeUpdate) { send(ui.VolumeMsg(v)) })
		}
	})
}

// logProgress prints one line per chunk on stderr.
func logProgress(mgr *tts.Manager, mode string) {
	out := log.NewWithOptions(os.Stderr, log.Options{Prefix: mode})
	mgr.OnProgress(func(ev tts.ChunkEvent) {
		out.Info("chunk", "n", fmt.Sprintf("%d/%d", ev.Index+1, ev.Total), "text", ev.Text)
	})
}
